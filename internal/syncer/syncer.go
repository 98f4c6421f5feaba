// Package syncer mirrors events from the primary store into a calendar
// store so they also show up in the user's calendar apps.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"eventdash/internal/models"
	"eventdash/internal/store"
)

// DefaultStateFile is used when Options.StateFile is empty.
const DefaultStateFile = "sync-state.json"

// SyncState keeps track of which events have been mirrored.
// The key is the source event id, and the value is the id in the target.
type SyncState map[string]string

// Options configures a Syncer.
type Options struct {
	StateFile string
	DryRun    bool
	Location  *time.Location
	Now       func() time.Time
}

// Result counts what one Sync did.
type Result struct {
	Copied  int
	Skipped int
	Failed  int
}

// Syncer copies events from source to target.
type Syncer struct {
	logger    *slog.Logger
	source    store.Store
	target    store.Store
	state     SyncState
	stateFile string
	dryRun    bool
	loc       *time.Location
	now       func() time.Time
}

// NewSyncer creates a new Syncer, loading the previous state if any.
func NewSyncer(logger *slog.Logger, source, target store.Store, opts Options) (*Syncer, error) {
	stateFile := opts.StateFile
	if stateFile == "" {
		stateFile = DefaultStateFile
	}

	state, err := loadState(stateFile)
	if err != nil {
		// If the file doesn't exist, we can start with an empty state.
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("No sync state file found, starting fresh.", "file", stateFile)
			state = make(SyncState)
		} else {
			return nil, fmt.Errorf("failed to load sync state: %w", err)
		}
	}

	s := &Syncer{
		logger:    logger,
		source:    source,
		target:    target,
		state:     state,
		stateFile: stateFile,
		dryRun:    opts.DryRun,
		loc:       opts.Location,
		now:       opts.Now,
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Sync mirrors the events of today and the following days-1 days.
// Failures of single events are logged and counted, not returned.
func (s *Syncer) Sync(ctx context.Context, days int) (Result, error) {
	var res Result
	s.logger.Info("Starting sync cycle.", "days", days)

	start := s.now().In(s.loc)
	for i := 0; i < days; i++ {
		date := start.AddDate(0, 0, i).Format(models.DateLayout)
		events, err := s.source.QueryByDate(ctx, date)
		if err != nil {
			return res, fmt.Errorf("failed to fetch events for %s: %w", date, err)
		}
		for _, ev := range events {
			copied, err := s.syncEvent(ctx, ev)
			switch {
			case err != nil:
				res.Failed++
				s.logger.Error("Failed to sync event", "id", ev.ID, "type", ev.Type, "date", ev.Date, "error", err)
			case copied:
				res.Copied++
			default:
				res.Skipped++
			}
		}
	}

	if !s.dryRun {
		if err := s.saveState(); err != nil {
			s.logger.Error("Failed to save sync state", "error", err)
		}
	}

	s.logger.Info("Sync cycle finished.", "copied", res.Copied, "skipped", res.Skipped, "failed", res.Failed)
	return res, nil
}

// syncEvent reports whether ev was copied to the target.
func (s *Syncer) syncEvent(ctx context.Context, ev models.Event) (bool, error) {
	if _, exists := s.state[ev.ID]; exists {
		// Updates are not mirrored; events are immutable once stored.
		s.logger.Debug("Event already synced, skipping.", "id", ev.ID, "type", ev.Type)
		return false, nil
	}

	if s.dryRun {
		s.logger.Info("[DRY RUN] Would copy event", "id", ev.ID, "type", ev.Type, "date", ev.Date, "time", ev.Time)
		return true, nil
	}

	stored, err := s.target.Create(ctx, ev.WithID(""))
	if err != nil {
		return false, fmt.Errorf("failed to create event in target: %w", err)
	}

	s.state[ev.ID] = stored.ID
	return true, nil
}

// State returns a copy of the mapping from source to target ids.
func (s *Syncer) State() SyncState {
	out := make(SyncState, len(s.state))
	for k, v := range s.state {
		out[k] = v
	}
	return out
}

// loadState loads the sync state from the JSON file.
func loadState(path string) (SyncState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var state SyncState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	if state == nil {
		state = make(SyncState)
	}
	return state, nil
}

// saveState saves the current sync state to the JSON file.
func (s *Syncer) saveState() error {
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal sync state: %w", err)
	}
	return os.WriteFile(s.stateFile, data, 0o644)
}
