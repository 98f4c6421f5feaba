package actions

import (
	"context"
	"errors"
	"testing"
	"time"

	"eventdash/internal/cache"
	"eventdash/internal/models"
	"eventdash/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var berlin = func() *time.Location {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		return time.FixedZone("CET", 3600)
	}
	return loc
}()

// fixedNow is 2025-03-10 12:00 in berlin.
func fixedNow() time.Time {
	return time.Date(2025, 3, 10, 12, 0, 0, 0, berlin)
}

type failingStore struct{}

func (failingStore) Create(ctx context.Context, ev models.Event) (models.Event, error) {
	return models.Event{}, store.Wrap("failing", "create", errors.New("disk full"))
}

func (failingStore) QueryByDate(ctx context.Context, date string) ([]models.Event, error) {
	return nil, store.Wrap("failing", "query", errors.New("disk full"))
}

func newEventRegistry(t *testing.T, st store.Store) (*Registry, *cache.Cache, context.Context) {
	t.Helper()
	c := cache.New(st, discardLogger())
	reg := NewRegistry(discardLogger())
	require.NoError(t, RegisterEventActions(reg, EventOptions{Location: berlin, Now: fixedNow}))
	return reg, c, cache.NewContext(context.Background(), c)
}

func TestRegisterEventActionsTwice(t *testing.T) {
	reg := NewRegistry(discardLogger())
	require.NoError(t, RegisterEventActions(reg, EventOptions{}))
	assert.ErrorIs(t, RegisterEventActions(reg, EventOptions{}), ErrActionExists)
	assert.Equal(t, []string{AddEventAction, FetchEventsAction}, reg.Names())
}

func TestAddEventInFuture(t *testing.T) {
	reg, c, ctx := newEventRegistry(t, store.NewMemory())

	inv, err := reg.Invoke(ctx, AddEventAction, Args{"date": "2025-03-10", "time": "18:00", "eventType": "Birthday"})
	require.NoError(t, err)
	require.Equal(t, StatusComplete, inv.Status)

	ev, ok := inv.Result.(models.Event)
	require.True(t, ok)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, "Birthday", ev.Type)
	assert.Equal(t, DefaultVenue, ev.Venue)
	assert.Equal(t, DefaultGuests, ev.Guests)
	assert.Equal(t, []string{"Guest 1", "Guest 2", "Guest 3"}, ev.GuestList)
	assert.Equal(t, []string{"Photography", "Music"}, ev.Services)

	assert.Equal(t, []models.Event{ev}, c.Events())
	assert.Equal(t, View{Title: "Event added: Birthday on 2025-03-10 at 18:00"}, inv.Render())
}

func TestAddEventRejectsPastAndPresent(t *testing.T) {
	tests := []struct {
		name  string
		date  string
		clock string
	}{
		{name: "earlier same day", date: "2025-03-10", clock: "09:00"},
		{name: "previous day", date: "2025-03-09", clock: "23:59"},
		{name: "exactly now", date: "2025-03-10", clock: "12:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := store.NewMemory()
			reg, c, ctx := newEventRegistry(t, st)

			inv, err := reg.Invoke(ctx, AddEventAction, Args{"date": tt.date, "time": tt.clock, "eventType": "Meeting"})

			var temporal *TemporalValidationError
			require.ErrorAs(t, err, &temporal)
			assert.Equal(t, StatusFailed, inv.Status)
			assert.Equal(t, View{Title: "Cannot add an event in the past.", IsError: true}, inv.Render())
			assert.Empty(t, c.Events())
			assert.Zero(t, st.Len())
			assert.Equal(t, uint64(0), c.Snapshot().Version)
		})
	}
}

func TestAddEventMalformedArguments(t *testing.T) {
	reg, c, ctx := newEventRegistry(t, store.NewMemory())

	inv, err := reg.Invoke(ctx, AddEventAction, Args{"date": "10/03/2025", "time": "18:00", "eventType": "Party"})
	assert.ErrorIs(t, err, ErrInvalidParam)
	assert.True(t, inv.Render().IsError)
	assert.Equal(t, "Failed to add event", inv.Render().Title)

	_, err = reg.Invoke(ctx, AddEventAction, Args{"date": "2025-03-11", "time": "18:00"})
	assert.ErrorIs(t, err, ErrMissingParam)
	assert.Empty(t, c.Events())
}

func TestAddEventStoreFailureCompletesWithoutID(t *testing.T) {
	reg, c, ctx := newEventRegistry(t, failingStore{})

	inv, err := reg.Invoke(ctx, AddEventAction, Args{"date": "2025-03-11", "time": "10:00", "eventType": "Party"})
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, inv.Status)

	ev := inv.Result.(models.Event)
	assert.Empty(t, ev.ID)
	assert.Empty(t, c.Events())
	assert.Equal(t, View{
		Title: "Event added: Party on 2025-03-11 at 10:00",
		Lines: []string{"Not saved: the event store is unavailable."},
	}, inv.Render())
}

func TestFetchEventsRendersList(t *testing.T) {
	st := store.NewMemory()
	reg, c, ctx := newEventRegistry(t, st)

	_, err := reg.Invoke(ctx, AddEventAction, Args{"date": "2025-03-10", "time": "18:00", "eventType": "Birthday"})
	require.NoError(t, err)
	_, err = reg.Invoke(ctx, AddEventAction, Args{"date": "2025-03-10", "time": "20:00", "eventType": "Dinner"})
	require.NoError(t, err)

	inv, err := reg.Invoke(ctx, FetchEventsAction, Args{"date": "2025-03-10"})
	require.NoError(t, err)

	res, ok := inv.Result.(FetchResult)
	require.True(t, ok)
	assert.Equal(t, "2025-03-10", res.Date)
	assert.Len(t, res.EventsData, 2)
	assert.Equal(t, res.EventsData, c.Events())
	assert.Equal(t, View{
		Title: "Events on 2025-03-10",
		Lines: []string{"Birthday at 18:00", "Dinner at 20:00"},
	}, inv.Render())
}

func TestFetchEventsEmptyDate(t *testing.T) {
	reg, c, ctx := newEventRegistry(t, store.NewMemory())

	_, err := reg.Invoke(ctx, AddEventAction, Args{"date": "2025-03-10", "time": "18:00", "eventType": "Birthday"})
	require.NoError(t, err)

	inv, err := reg.Invoke(ctx, FetchEventsAction, Args{"date": "2025-03-12"})
	require.NoError(t, err)
	assert.Equal(t, View{Title: "No events found for this date."}, inv.Render())
	assert.Empty(t, c.Events())
}

func TestFetchEventsStoreFailureRendersEmpty(t *testing.T) {
	reg, _, ctx := newEventRegistry(t, failingStore{})

	inv, err := reg.Invoke(ctx, FetchEventsAction, Args{"date": "2025-03-12"})
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, inv.Status)
	assert.Equal(t, "No events found for this date.", inv.Render().Title)
}

func TestEventActionsWithoutCacheFail(t *testing.T) {
	reg := NewRegistry(discardLogger())
	require.NoError(t, RegisterEventActions(reg, EventOptions{Location: berlin, Now: fixedNow}))

	inv, err := reg.Invoke(context.Background(), FetchEventsAction, Args{"date": "2025-03-12"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no event cache in context")
	assert.Equal(t, StatusFailed, inv.Status)

	var missing *cache.MissingContextError
	assert.ErrorAs(t, err, &missing)
}

func TestPendingViews(t *testing.T) {
	assert.Equal(t, "Adding event...", NewAddEventAction(EventOptions{}).Render.Pending().Title)
	assert.Equal(t, "Fetching events...", NewFetchEventsAction().Render.Pending().Title)
}

func TestFailedViewWithoutError(t *testing.T) {
	v := NewFetchEventsAction().Render.Failed(nil)
	assert.Equal(t, View{Title: "Failed to fetch events", IsError: true}, v)
}
