package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"eventdash/internal/models"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	type TEXT NOT NULL,
	date TEXT NOT NULL,
	time TEXT NOT NULL,
	venue TEXT NOT NULL DEFAULT '',
	guests INTEGER NOT NULL DEFAULT 0,
	guest_list TEXT NOT NULL DEFAULT '[]',
	customization TEXT NOT NULL DEFAULT '',
	catering TEXT NOT NULL DEFAULT '',
	services TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_events_date ON events(date);
`

// SQLite stores events in a local SQLite database file.
type SQLite struct {
	db   *sql.DB
	path string
}

// NewSQLite opens (creating if needed) the database at path.
// Use ":memory:" for a throwaway database.
func NewSQLite(path string) (*SQLite, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every pooled connection to ":memory:" would get its own empty database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLite{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLite) Path() string {
	return s.path
}

func (s *SQLite) Create(ctx context.Context, ev models.Event) (models.Event, error) {
	guestList, err := json.Marshal(nonNil(ev.GuestList))
	if err != nil {
		return models.Event{}, Wrap("sqlite", "create", err)
	}
	services, err := json.Marshal(nonNil(ev.Services))
	if err != nil {
		return models.Event{}, Wrap("sqlite", "create", err)
	}

	stored := ev.WithID(uuid.NewString())
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (id, type, date, time, venue, guests, guest_list, customization, catering, services)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stored.ID, stored.Type, stored.Date, stored.Time, stored.Venue, stored.Guests,
		string(guestList), stored.Customization, stored.Catering, string(services),
	)
	if err != nil {
		return models.Event{}, Wrap("sqlite", "create", err)
	}
	return stored, nil
}

func (s *SQLite) QueryByDate(ctx context.Context, date string) ([]models.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, date, time, venue, guests, guest_list, customization, catering, services
		FROM events
		WHERE date = ?
		ORDER BY seq`, date)
	if err != nil {
		return nil, Wrap("sqlite", "query", err)
	}
	defer rows.Close()

	events := make([]models.Event, 0)
	for rows.Next() {
		var (
			ev                  models.Event
			guestList, services string
		)
		if err := rows.Scan(&ev.ID, &ev.Type, &ev.Date, &ev.Time, &ev.Venue, &ev.Guests,
			&guestList, &ev.Customization, &ev.Catering, &services); err != nil {
			return nil, Wrap("sqlite", "query", err)
		}
		if err := json.Unmarshal([]byte(guestList), &ev.GuestList); err != nil {
			return nil, Wrap("sqlite", "query", fmt.Errorf("event %s guest list: %w", ev.ID, err))
		}
		if err := json.Unmarshal([]byte(services), &ev.Services); err != nil {
			return nil, Wrap("sqlite", "query", fmt.Errorf("event %s services: %w", ev.ID, err))
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, Wrap("sqlite", "query", err)
	}
	return events, nil
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
