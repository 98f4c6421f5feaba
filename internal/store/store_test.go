package store

import (
	"context"
	"errors"
	"testing"

	"eventdash/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func birthday(date, clock string) models.Event {
	return models.Event{
		Type:          "Birthday",
		Date:          date,
		Time:          clock,
		Venue:         "Venue A",
		Guests:        50,
		GuestList:     []string{"Guest 1", "Guest 2"},
		Customization: "Custom decorations",
		Catering:      "Full course meal",
		Services:      []string{"Photography", "Music"},
	}
}

// backends returns a fresh instance of every process-local backend.
func backends(t *testing.T) map[string]Store {
	t.Helper()

	sq, err := NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sq.Close() })

	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": sq,
	}
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()

	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			empty, err := st.QueryByDate(ctx, "2025-03-10")
			require.NoError(t, err)
			assert.NotNil(t, empty)
			assert.Empty(t, empty)

			first, err := st.Create(ctx, birthday("2025-03-10", "18:00"))
			require.NoError(t, err)
			assert.NotEmpty(t, first.ID)

			second, err := st.Create(ctx, birthday("2025-03-10", "09:00"))
			require.NoError(t, err)
			assert.NotEqual(t, first.ID, second.ID)

			_, err = st.Create(ctx, birthday("2025-03-11", "10:00"))
			require.NoError(t, err)

			got, err := st.QueryByDate(ctx, "2025-03-10")
			require.NoError(t, err)
			assert.Equal(t, []models.Event{first, second}, got, "creation order, exact fields")

			other, err := st.QueryByDate(ctx, "2025-3-10")
			require.NoError(t, err)
			assert.Empty(t, other, "dates compare as strings")
		})
	}
}

func TestSQLiteRoundTripsNilSlicesAsEmpty(t *testing.T) {
	ctx := context.Background()
	st, err := NewSQLite(":memory:")
	require.NoError(t, err)
	defer st.Close()

	_, err = st.Create(ctx, models.Event{Type: "Meeting", Date: "2025-05-01", Time: "08:30"})
	require.NoError(t, err)

	got, err := st.QueryByDate(ctx, "2025-05-01")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{}, got[0].GuestList)
	assert.Equal(t, []string{}, got[0].Services)
}

func TestSQLiteClosedDatabaseIsUnavailable(t *testing.T) {
	st, err := NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Close())

	_, err = st.Create(context.Background(), birthday("2025-03-10", "18:00"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)

	var se *Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "sqlite", se.Backend)
	assert.Equal(t, "create", se.Op)

	_, err = st.QueryByDate(context.Background(), "2025-03-10")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestMemoryHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewMemory()
	_, err := m.Create(ctx, birthday("2025-03-10", "18:00"))
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, m.Len())
}

func TestWrapKeepsExistingStoreError(t *testing.T) {
	inner := &Error{Backend: "caldav", Op: "query", Err: errors.New("boom")}
	assert.Same(t, inner, Wrap("sqlite", "create", inner))
	assert.NoError(t, Wrap("sqlite", "create", nil))
}
