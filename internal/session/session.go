// Package session wires the cache, action registry and readable exporter
// for one user session.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"eventdash/internal/actions"
	"eventdash/internal/cache"
	"eventdash/internal/readable"
	"eventdash/internal/store"
)

// Options configures a Session.
type Options struct {
	Logger   *slog.Logger
	Location *time.Location
	Now      func() time.Time
	Sinks    []readable.Sink
}

// Session owns the state of one signed-in user. Nothing in it is global.
type Session struct {
	Cache    *cache.Cache
	Registry *actions.Registry
	Exporter *readable.Exporter

	logger *slog.Logger
}

// New builds a session over st with both event actions registered.
func New(st store.Store, opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := cache.New(st, logger.With("component", "cache"))
	reg := actions.NewRegistry(logger.With("component", "actions"))
	if err := actions.RegisterEventActions(reg, actions.EventOptions{Location: opts.Location, Now: opts.Now}); err != nil {
		return nil, fmt.Errorf("failed to register event actions: %w", err)
	}

	return &Session{
		Cache:    c,
		Registry: reg,
		Exporter: readable.NewExporter(c, logger.With("component", "readable"), opts.Sinks...),
		logger:   logger,
	}, nil
}

// Context returns ctx carrying the session cache, as the actions expect.
func (s *Session) Context(ctx context.Context) context.Context {
	return cache.NewContext(ctx, s.Cache)
}

// Invoke runs an action within the session.
func (s *Session) Invoke(ctx context.Context, name string, args actions.Args) (actions.Invocation, error) {
	return s.Registry.Invoke(s.Context(ctx), name, args)
}

// Close stops the exporter.
func (s *Session) Close() {
	s.Exporter.Close()
	s.logger.Debug("Session closed")
}
