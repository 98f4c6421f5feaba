package store

import (
	"context"
	"sync"

	"eventdash/internal/models"

	"github.com/google/uuid"
)

// Memory keeps events in process memory. It is the backend for tests and
// for EVENTDASH_BACKEND=memory; nothing survives a restart.
type Memory struct {
	mu     sync.RWMutex
	events []models.Event
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Create(ctx context.Context, ev models.Event) (models.Event, error) {
	if err := ctx.Err(); err != nil {
		return models.Event{}, Wrap("memory", "create", err)
	}

	stored := ev.WithID(uuid.NewString())

	m.mu.Lock()
	m.events = append(m.events, stored)
	m.mu.Unlock()

	return stored.WithID(stored.ID), nil
}

func (m *Memory) QueryByDate(ctx context.Context, date string) ([]models.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, Wrap("memory", "query", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Event, 0)
	for _, ev := range m.events {
		if ev.Date == date {
			out = append(out, ev.WithID(ev.ID))
		}
	}
	return out, nil
}

// Len reports how many events have been created.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}
