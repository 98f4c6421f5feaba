// Package readable publishes the event cache as a read-only document for
// the conversational agent and any other consumer.
package readable

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"eventdash/internal/cache"
	"eventdash/internal/models"
)

// Description labels the exported state for the agent.
const Description = "The state of the events list"

const publishTimeout = 5 * time.Second

// State is one export of the cache.
type State struct {
	Description string          `json:"description"`
	Value       json.RawMessage `json:"value"`
	Version     uint64          `json:"version"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Events decodes Value.
func (s State) Events() ([]models.Event, error) {
	var events []models.Event
	if err := json.Unmarshal(s.Value, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// Sink receives every new State.
type Sink interface {
	Publish(ctx context.Context, st State) error
}

// Exporter follows a cache and keeps its latest serialized state.
type Exporter struct {
	logger *slog.Logger
	sinks  []Sink
	now    func() time.Time

	mu      sync.RWMutex
	current State
	closed  bool

	pending chan State
	done    chan struct{}
	cancel  func()
	once    sync.Once
}

// NewExporter subscribes to c. Sinks are fed from a background goroutine
// until Close; a slow sink only ever sees the newest state.
func NewExporter(c *cache.Cache, logger *slog.Logger, sinks ...Sink) *Exporter {
	e := &Exporter{
		logger:  logger,
		sinks:   sinks,
		now:     time.Now,
		pending: make(chan State, 1),
		done:    make(chan struct{}),
	}

	e.cancel = c.Subscribe(e.update)
	snap := c.Snapshot()
	e.mu.Lock()
	if e.current.Description == "" || snap.Version > e.current.Version {
		e.current = e.encode(snap)
	}
	e.mu.Unlock()

	go e.run()
	return e
}

// Current returns the latest exported state.
func (e *Exporter) Current() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current
}

// Close stops following the cache and waits for the sink goroutine.
func (e *Exporter) Close() {
	e.once.Do(func() {
		e.cancel()
		e.mu.Lock()
		e.closed = true
		close(e.pending)
		e.mu.Unlock()
		<-e.done
	})
}

func (e *Exporter) update(snap cache.Snapshot) {
	st := e.encode(snap)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	if snap.Version <= e.current.Version {
		e.logger.Debug("Dropping stale readable state", "version", snap.Version, "current", e.current.Version)
		return
	}
	e.current = st

	if len(e.sinks) == 0 {
		return
	}
	// Replace an unsent state with the newer one.
	for {
		select {
		case e.pending <- st:
			return
		default:
		}
		select {
		case <-e.pending:
		default:
		}
	}
}

func (e *Exporter) encode(snap cache.Snapshot) State {
	events := snap.Events
	if events == nil {
		events = []models.Event{}
	}
	value, err := json.Marshal(events)
	if err != nil {
		e.logger.Error("Failed to encode readable state", "version", snap.Version, "error", err)
		value = json.RawMessage("[]")
	}
	return State{
		Description: Description,
		Value:       value,
		Version:     snap.Version,
		UpdatedAt:   e.now(),
	}
}

func (e *Exporter) run() {
	defer close(e.done)
	for st := range e.pending {
		for _, sink := range e.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
			if err := sink.Publish(ctx, st); err != nil {
				e.logger.Warn("Failed to publish readable state", "version", st.Version, "error", err)
			}
			cancel()
		}
	}
}
