// Package cache holds the in-memory view of the events currently shown on
// the dashboard and keeps it in step with the store.
//
// Only AddEvent (append) and FetchEvents (replace) mutate the sequence.
// Store calls run outside the lock, so when a fetch and an add are in flight
// together the one that completes last decides the final contents.
package cache

import (
	"context"
	"log/slog"
	"sync"

	"eventdash/internal/models"
	"eventdash/internal/store"
)

// Snapshot is the cache contents after one mutation. Version increases by
// one with every mutation.
type Snapshot struct {
	Events  []models.Event
	Version uint64
}

// Cache is the single mutable owner of the displayed events.
type Cache struct {
	store  store.Store
	logger *slog.Logger

	mu      sync.Mutex
	events  []models.Event
	version uint64

	subMu   sync.RWMutex
	subs    map[int]func(Snapshot)
	nextSub int
}

// New returns an empty cache backed by st.
func New(st store.Store, logger *slog.Logger) *Cache {
	return &Cache{
		store:  st,
		logger: logger,
		events: []models.Event{},
		subs:   make(map[int]func(Snapshot)),
	}
}

// AddEvent persists ev and appends the stored record. It reports false,
// and leaves the cache untouched, when the store rejected the write; the
// failure is logged, not returned.
func (c *Cache) AddEvent(ctx context.Context, ev models.Event) (models.Event, bool) {
	stored, err := c.store.Create(ctx, ev)
	if err != nil {
		c.logger.Error("Error adding event", "type", ev.Type, "date", ev.Date, "error", err)
		return ev, false
	}

	c.mu.Lock()
	c.events = append(c.events, stored)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Debug("Event added to cache", "id", stored.ID, "date", stored.Date, "count", len(snap.Events))
	c.notify(snap)
	return stored.WithID(stored.ID), true
}

// FetchEvents replaces the whole cache with the store's events for date and
// returns them. A store failure is logged and leaves the cache empty.
func (c *Cache) FetchEvents(ctx context.Context, date string) []models.Event {
	fetched, err := c.store.QueryByDate(ctx, date)
	if err != nil {
		c.logger.Error("Error fetching events", "date", date, "error", err)
		fetched = []models.Event{}
	}
	if fetched == nil {
		fetched = []models.Event{}
	}

	c.mu.Lock()
	c.events = fetched
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Debug("Cache replaced", "date", date, "count", len(snap.Events))
	c.notify(snap)
	return cloneEvents(fetched)
}

// Events returns a copy of the current sequence.
func (c *Cache) Events() []models.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneEvents(c.events)
}

// Snapshot returns the current sequence with its version.
func (c *Cache) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{Events: cloneEvents(c.events), Version: c.version}
}

// Subscribe registers fn to receive a snapshot after every mutation.
// Concurrent mutations may deliver snapshots out of order; compare Version.
// The returned func removes the subscription.
func (c *Cache) Subscribe(fn func(Snapshot)) (cancel func()) {
	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subs, id)
			c.subMu.Unlock()
		})
	}
}

func (c *Cache) snapshotLocked() Snapshot {
	c.version++
	return Snapshot{Events: cloneEvents(c.events), Version: c.version}
}

func (c *Cache) notify(snap Snapshot) {
	c.subMu.RLock()
	subs := make([]func(Snapshot), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.subMu.RUnlock()

	for _, fn := range subs {
		fn(Snapshot{Events: cloneEvents(snap.Events), Version: snap.Version})
	}
}

func cloneEvents(in []models.Event) []models.Event {
	out := make([]models.Event, len(in))
	for i, ev := range in {
		out[i] = ev.WithID(ev.ID)
	}
	return out
}
