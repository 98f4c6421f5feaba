package actions

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry holds the actions of one session and runs them.
// It is safe for concurrent use.
type Registry struct {
	logger *slog.Logger

	mu      sync.RWMutex
	actions map[string]*Action
	order   []string

	subMu   sync.RWMutex
	subs    map[int]func(Invocation)
	nextSub int

	now func() time.Time
}

// NewRegistry creates a new empty action registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:  logger,
		actions: make(map[string]*Action),
		subs:    make(map[int]func(Invocation)),
		now:     time.Now,
	}
}

// Register adds an action. Names stay unique for the registry's lifetime.
func (r *Registry) Register(a *Action) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("invalid action: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.actions[a.Name]; exists {
		return fmt.Errorf("%w: %s", ErrActionExists, a.Name)
	}

	r.actions[a.Name] = a
	r.order = append(r.order, a.Name)

	r.logger.Debug("Registered action", "name", a.Name, "parameters", len(a.Parameters))
	return nil
}

// MustRegister registers an action and panics on error.
func (r *Registry) MustRegister(a *Action) {
	if err := r.Register(a); err != nil {
		panic(fmt.Sprintf("failed to register action %s: %v", a.Name, err))
	}
}

// Get returns an action by name, or nil if not found.
func (r *Registry) Get(name string) *Action {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.actions[name]
}

// Descriptors returns all actions in registration order.
func (r *Registry) Descriptors() []*Action {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Action, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.actions[name])
	}
	return out
}

// Names returns all registered action names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Subscribe registers fn to receive every invocation status change.
// The returned func removes the subscription.
func (r *Registry) Subscribe(fn func(Invocation)) (cancel func()) {
	r.subMu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	r.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.subMu.Lock()
			delete(r.subs, id)
			r.subMu.Unlock()
		})
	}
}

// Invoke runs the named action and blocks until it finishes. The returned
// error is the invocation's error; the Invocation is also returned on
// failure so callers can render it. Unknown names yield ErrActionNotFound
// and a zero Invocation.
func (r *Registry) Invoke(ctx context.Context, name string, args Args) (Invocation, error) {
	a := r.Get(name)
	if a == nil {
		return Invocation{}, fmt.Errorf("%w: %s", ErrActionNotFound, name)
	}

	inv := r.begin(a, args)
	inv = r.run(ctx, a, inv)
	return inv, inv.Err
}

// Call is an invocation running in the background.
type Call struct {
	done chan struct{}
	mu   sync.Mutex
	inv  Invocation
}

// Done is closed once the invocation has left StatusPending.
func (c *Call) Done() <-chan struct{} { return c.done }

// Invocation returns the latest snapshot.
func (c *Call) Invocation() Invocation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inv
}

// Wait blocks until the invocation finishes or ctx is done.
func (c *Call) Wait(ctx context.Context) (Invocation, error) {
	select {
	case <-c.done:
		inv := c.Invocation()
		return inv, inv.Err
	case <-ctx.Done():
		return c.Invocation(), ctx.Err()
	}
}

// Start runs the named action in a new goroutine and returns at once with
// the invocation in StatusPending.
func (r *Registry) Start(ctx context.Context, name string, args Args) (*Call, error) {
	a := r.Get(name)
	if a == nil {
		return nil, fmt.Errorf("%w: %s", ErrActionNotFound, name)
	}

	call := &Call{done: make(chan struct{}), inv: r.begin(a, args)}
	go func() {
		final := r.run(ctx, a, call.Invocation())
		call.mu.Lock()
		call.inv = final
		call.mu.Unlock()
		close(call.done)
	}()
	return call, nil
}

func (r *Registry) begin(a *Action, args Args) Invocation {
	if args == nil {
		args = Args{}
	}
	inv := Invocation{
		ID:        uuid.NewString(),
		Action:    a.Name,
		Args:      args,
		Status:    StatusPending,
		StartedAt: r.now(),
		render:    a.Render,
	}
	r.publish(inv)
	return inv
}

func (r *Registry) run(ctx context.Context, a *Action, inv Invocation) Invocation {
	r.logger.Debug("Executing action", "action", a.Name, "invocation", inv.ID)

	result, err := r.execute(ctx, a, inv.Args)

	inv.FinishedAt = r.now()
	if err != nil {
		inv.Status = StatusFailed
		inv.Err = err
		r.logger.Warn("Action failed", "action", a.Name, "invocation", inv.ID, "error", err)
	} else {
		inv.Status = StatusComplete
		inv.Result = result
		r.logger.Info("Action completed", "action", a.Name, "invocation", inv.ID,
			"duration", inv.FinishedAt.Sub(inv.StartedAt))
	}
	r.publish(inv)
	return inv
}

func (r *Registry) execute(ctx context.Context, a *Action, args Args) (result any, err error) {
	if err := validateArgs(a, args); err != nil {
		return nil, err
	}
	defer func() {
		if p := recover(); p != nil {
			if perr, ok := p.(error); ok {
				err = fmt.Errorf("action %s panicked: %w", a.Name, perr)
				return
			}
			err = fmt.Errorf("action %s panicked: %v", a.Name, p)
		}
	}()
	return a.Handler(ctx, args)
}

func (r *Registry) publish(inv Invocation) {
	r.subMu.RLock()
	subs := make([]func(Invocation), 0, len(r.subs))
	for _, fn := range r.subs {
		subs = append(subs, fn)
	}
	r.subMu.RUnlock()

	for _, fn := range subs {
		fn(inv)
	}
}

// validateArgs checks presence of required parameters and the type of
// every declared parameter that was supplied.
func validateArgs(a *Action, args Args) error {
	for _, p := range a.Parameters {
		v, ok := args[p.Name]
		if !ok || v == nil {
			if p.Required {
				return fmt.Errorf("%w: %s", ErrMissingParam, p.Name)
			}
			continue
		}

		switch p.Type {
		case TypeString:
			s, isString := v.(string)
			if !isString {
				return fmt.Errorf("%w: %s must be a string, got %T", ErrInvalidParamType, p.Name, v)
			}
			if p.Required && strings.TrimSpace(s) == "" {
				return fmt.Errorf("%w: %s", ErrMissingParam, p.Name)
			}
		case TypeNumber:
			switch v.(type) {
			case float64, float32, int, int64, int32:
			default:
				return fmt.Errorf("%w: %s must be a number, got %T", ErrInvalidParamType, p.Name, v)
			}
		case TypeBoolean:
			if _, isBool := v.(bool); !isBool {
				return fmt.Errorf("%w: %s must be a boolean, got %T", ErrInvalidParamType, p.Name, v)
			}
		}
	}
	return nil
}
