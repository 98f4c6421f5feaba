package syncer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"eventdash/internal/models"
	"eventdash/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedNow() time.Time {
	return time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
}

// rejectingStore fails to create events of one type.
type rejectingStore struct {
	*store.Memory
	reject string
}

func (r *rejectingStore) Create(ctx context.Context, ev models.Event) (models.Event, error) {
	if ev.Type == r.reject {
		return models.Event{}, store.Wrap("rejecting", "create", errors.New("quota exceeded"))
	}
	return r.Memory.Create(ctx, ev)
}

func seed(t *testing.T, st store.Store, events ...models.Event) []models.Event {
	t.Helper()
	out := make([]models.Event, len(events))
	for i, ev := range events {
		stored, err := st.Create(context.Background(), ev)
		require.NoError(t, err)
		out[i] = stored
	}
	return out
}

func newSyncer(t *testing.T, source, target store.Store, stateFile string, dryRun bool) *Syncer {
	t.Helper()
	s, err := NewSyncer(discardLogger(), source, target, Options{
		StateFile: stateFile,
		DryRun:    dryRun,
		Location:  time.UTC,
		Now:       fixedNow,
	})
	require.NoError(t, err)
	return s
}

func TestSyncCopiesEventsInWindow(t *testing.T) {
	ctx := context.Background()
	source, target := store.NewMemory(), store.NewMemory()
	src := seed(t, source,
		models.Event{Type: "Birthday", Date: "2025-03-10", Time: "18:00"},
		models.Event{Type: "Meeting", Date: "2025-03-12", Time: "09:00"},
		models.Event{Type: "Later", Date: "2025-03-20", Time: "09:00"},
	)
	stateFile := filepath.Join(t.TempDir(), "state.json")

	s := newSyncer(t, source, target, stateFile, false)
	res, err := s.Sync(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, Result{Copied: 2}, res)
	assert.Equal(t, 2, target.Len())

	mirrored, err := target.QueryByDate(ctx, "2025-03-10")
	require.NoError(t, err)
	require.Len(t, mirrored, 1)
	assert.Equal(t, "Birthday", mirrored[0].Type)
	assert.NotEqual(t, src[0].ID, mirrored[0].ID)
	assert.Equal(t, mirrored[0].ID, s.State()[src[0].ID])

	_, err = os.Stat(stateFile)
	assert.NoError(t, err)
}

func TestSyncSkipsAlreadyMirrored(t *testing.T) {
	ctx := context.Background()
	source, target := store.NewMemory(), store.NewMemory()
	seed(t, source, models.Event{Type: "Birthday", Date: "2025-03-10", Time: "18:00"})
	stateFile := filepath.Join(t.TempDir(), "state.json")

	_, err := newSyncer(t, source, target, stateFile, false).Sync(ctx, 1)
	require.NoError(t, err)

	res, err := newSyncer(t, source, target, stateFile, false).Sync(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, Result{Skipped: 1}, res)
	assert.Equal(t, 1, target.Len())
}

func TestSyncDryRunWritesNothing(t *testing.T) {
	ctx := context.Background()
	source, target := store.NewMemory(), store.NewMemory()
	seed(t, source, models.Event{Type: "Birthday", Date: "2025-03-10", Time: "18:00"})
	stateFile := filepath.Join(t.TempDir(), "state.json")

	res, err := newSyncer(t, source, target, stateFile, true).Sync(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, Result{Copied: 1}, res)
	assert.Zero(t, target.Len())

	_, err = os.Stat(stateFile)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSyncContinuesAfterFailure(t *testing.T) {
	ctx := context.Background()
	source := store.NewMemory()
	target := &rejectingStore{Memory: store.NewMemory(), reject: "Secret"}
	seed(t, source,
		models.Event{Type: "Secret", Date: "2025-03-10", Time: "10:00"},
		models.Event{Type: "Public", Date: "2025-03-10", Time: "11:00"},
	)

	s := newSyncer(t, source, target, filepath.Join(t.TempDir(), "state.json"), false)
	res, err := s.Sync(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, Result{Copied: 1, Failed: 1}, res)
	assert.Len(t, s.State(), 1)
}

func TestNewSyncerRejectsCorruptState(t *testing.T) {
	stateFile := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(stateFile, []byte("{not json"), 0o644))

	_, err := NewSyncer(discardLogger(), store.NewMemory(), store.NewMemory(), Options{StateFile: stateFile})
	assert.Error(t, err)
}
