package readable

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"eventdash/internal/cache"
	"eventdash/internal/models"
	"eventdash/internal/store"

	"github.com/emersion/go-ical"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	timeout = time.Second
	tick    = 5 * time.Millisecond
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingSink stores every published state.
type recordingSink struct {
	mu     sync.Mutex
	states []State
	err    error
}

func (s *recordingSink) Publish(ctx context.Context, st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, st)
	return s.err
}

func (s *recordingSink) last() (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.states) == 0 {
		return State{}, false
	}
	return s.states[len(s.states)-1], true
}

func birthday(date, clock string) models.Event {
	return models.Event{Type: "Birthday", Date: date, Time: clock, Venue: "Venue A", Guests: 50}
}

func TestExporterStartsWithEmptyList(t *testing.T) {
	c := cache.New(store.NewMemory(), discardLogger())
	exp := NewExporter(c, discardLogger())
	defer exp.Close()

	st := exp.Current()
	assert.Equal(t, "The state of the events list", st.Description)
	assert.JSONEq(t, `[]`, string(st.Value))
	assert.Equal(t, uint64(0), st.Version)
}

func TestExporterFollowsEveryMutation(t *testing.T) {
	ctx := context.Background()
	c := cache.New(store.NewMemory(), discardLogger())
	exp := NewExporter(c, discardLogger())
	defer exp.Close()

	added, ok := c.AddEvent(ctx, birthday("2025-03-10", "18:00"))
	require.True(t, ok)

	events, err := exp.Current().Events()
	require.NoError(t, err)
	assert.Equal(t, []models.Event{added}, events)
	assert.Equal(t, uint64(1), exp.Current().Version)

	c.FetchEvents(ctx, "2025-03-11")
	assert.JSONEq(t, `[]`, string(exp.Current().Value))
	assert.Equal(t, uint64(2), exp.Current().Version)
}

func TestExporterDropsStaleSnapshot(t *testing.T) {
	ctx := context.Background()
	c := cache.New(store.NewMemory(), discardLogger())
	exp := NewExporter(c, discardLogger())
	defer exp.Close()

	c.AddEvent(ctx, birthday("2025-03-10", "18:00"))
	c.AddEvent(ctx, birthday("2025-03-10", "19:00"))
	before := exp.Current()

	exp.update(cache.Snapshot{Events: []models.Event{}, Version: 1})
	assert.Equal(t, before, exp.Current())
}

func TestExporterFeedsSinks(t *testing.T) {
	ctx := context.Background()
	c := cache.New(store.NewMemory(), discardLogger())
	sink := &recordingSink{}
	exp := NewExporter(c, discardLogger(), sink)

	added, ok := c.AddEvent(ctx, birthday("2025-03-10", "18:00"))
	require.True(t, ok)

	require.Eventually(t, func() bool {
		st, ok := sink.last()
		return ok && st.Version == 1
	}, timeout, tick)

	exp.Close()
	st, _ := sink.last()
	events, err := st.Events()
	require.NoError(t, err)
	assert.Equal(t, []models.Event{added}, events)
}

func TestExporterSinkFailureDoesNotTouchCache(t *testing.T) {
	ctx := context.Background()
	c := cache.New(store.NewMemory(), discardLogger())
	sink := &recordingSink{err: errors.New("broker down")}
	exp := NewExporter(c, discardLogger(), sink)
	defer exp.Close()

	_, ok := c.AddEvent(ctx, birthday("2025-03-10", "18:00"))
	require.True(t, ok)

	require.Eventually(t, func() bool { _, ok := sink.last(); return ok }, timeout, tick)
	assert.Len(t, c.Events(), 1)
	assert.Equal(t, uint64(1), exp.Current().Version)
}

func TestExporterCloseStopsFollowing(t *testing.T) {
	ctx := context.Background()
	c := cache.New(store.NewMemory(), discardLogger())
	exp := NewExporter(c, discardLogger(), &recordingSink{})
	exp.Close()
	exp.Close()

	c.AddEvent(ctx, birthday("2025-03-10", "18:00"))
	assert.Equal(t, uint64(0), exp.Current().Version)
}

// fakePublisher captures Redis PUBLISH calls.
type fakePublisher struct {
	channel string
	payload []byte
	err     error
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.channel = channel
	f.payload, _ = message.([]byte)
	cmd := redis.NewIntResult(1, f.err)
	return cmd
}

func TestRedisSinkPublishesJSON(t *testing.T) {
	pub := &fakePublisher{}
	sink := newRedisSink(pub, "")
	assert.Equal(t, DefaultChannel, sink.Channel())

	st := State{Description: Description, Value: []byte(`[{"type":"Birthday"}]`), Version: 3}
	require.NoError(t, sink.Publish(context.Background(), st))

	assert.Equal(t, "eventdash:readable", pub.channel)
	assert.JSONEq(t, `{
		"description": "The state of the events list",
		"value": [{"type":"Birthday"}],
		"version": 3,
		"updatedAt": "0001-01-01T00:00:00Z"
	}`, string(pub.payload))
}

func TestRedisSinkWrapsPublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("connection reset")}
	sink := newRedisSink(pub, "custom")

	err := sink.Publish(context.Background(), State{Value: []byte(`[]`)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, "custom", pub.channel)
}

func TestNewRedisSinkRejectsBadURL(t *testing.T) {
	_, _, err := NewRedisSink(context.Background(), "not a url", "")
	assert.Error(t, err)
}

func TestEncodeICS(t *testing.T) {
	loc := time.FixedZone("UTC+1", 3600)
	events := []models.Event{
		{
			ID: "evt-1", Type: "Birthday", Date: "2025-03-10", Time: "18:00", Venue: "Venue A",
			Guests: 2, GuestList: []string{"Ann", "Bob"}, Catering: "Buffet",
			Services: []string{"Photography", "Music"},
		},
		{ID: "evt-2", Type: "Broken", Date: "2025-13-40", Time: "25:00"},
		{ID: "evt-3", Type: "Meeting", Date: "2025-03-10", Time: "09:30"},
	}

	var buf bytes.Buffer
	stamp := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, EncodeICS(&buf, events, loc, stamp))

	cal, err := ical.NewDecoder(strings.NewReader(buf.String())).Decode()
	require.NoError(t, err)

	vevents := cal.Events()
	require.Len(t, vevents, 2)

	first := vevents[0]
	uid, err := first.Props.Text(ical.PropUID)
	require.NoError(t, err)
	assert.Equal(t, "evt-1", uid)

	summary, err := first.Props.Text(ical.PropSummary)
	require.NoError(t, err)
	assert.Equal(t, "Birthday", summary)

	start, err := first.DateTimeStart(time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 10, 17, 0, 0, 0, time.UTC), start)

	desc, err := first.Props.Text(ical.PropDescription)
	require.NoError(t, err)
	assert.Contains(t, desc, "Guests: 2 (Ann, Bob)")
	assert.Contains(t, desc, "Catering: Buffet")

	categories := first.Props.Get(ical.PropCategories)
	require.NotNil(t, categories)
	services, err := categories.TextList()
	require.NoError(t, err)
	assert.Equal(t, []string{"Photography", "Music"}, services)

	second, err := vevents[1].Props.Text(ical.PropUID)
	require.NoError(t, err)
	assert.Equal(t, "evt-3", second)
}
