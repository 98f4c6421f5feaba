package actions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"eventdash/internal/cache"
	"eventdash/internal/models"
)

// Names of the event actions.
const (
	AddEventAction    = "addEventWithDateTime"
	FetchEventsAction = "fetchEventsForDate"
)

// Fixed attributes of events created through AddEventAction.
const (
	DefaultVenue         = "Venue A"
	DefaultGuests        = 50
	DefaultCustomization = "Custom decorations"
	DefaultCatering      = "Full course meal"
)

// EventOptions configures the event actions.
type EventOptions struct {
	// Location interprets date and time arguments. Nil means time.Local.
	Location *time.Location
	// Now is the clock used by the temporal guard. Nil means time.Now.
	Now func() time.Time
}

func (o EventOptions) location() *time.Location {
	if o.Location == nil {
		return time.Local
	}
	return o.Location
}

func (o EventOptions) now() time.Time {
	if o.Now == nil {
		return time.Now()
	}
	return o.Now()
}

// FetchResult is the result of FetchEventsAction.
type FetchResult struct {
	EventsData []models.Event `json:"eventsData"`
	Date       string         `json:"date"`
}

// DefaultEvent returns an event of the given type at date and clock with
// the fixed venue, guest and service attributes.
func DefaultEvent(kind, date, clock string) models.Event {
	return models.Event{
		Type:          kind,
		Date:          date,
		Time:          clock,
		Venue:         DefaultVenue,
		Guests:        DefaultGuests,
		GuestList:     []string{"Guest 1", "Guest 2", "Guest 3"},
		Customization: DefaultCustomization,
		Catering:      DefaultCatering,
		Services:      []string{"Photography", "Music"},
	}
}

// NewAddEventAction returns the action that schedules a new event. The
// cache is taken from the invocation context.
func NewAddEventAction(opts EventOptions) *Action {
	return &Action{
		Name:        AddEventAction,
		Description: "Adds a new event with a specific date, time and type",
		Parameters: []Parameter{
			{Name: "date", Type: TypeString, Description: "The date of the event (YYYY-MM-DD)", Required: true},
			{Name: "time", Type: TypeString, Description: "The time of the event (HH:mm)", Required: true},
			{Name: "eventType", Type: TypeString, Description: "The type of the event", Required: true},
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			date, clock, kind := args.String("date"), args.String("time"), args.String("eventType")

			at, err := models.ParseDateTime(date, clock, opts.location())
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidParam, err)
			}
			if now := opts.now(); !at.After(now) {
				return nil, &TemporalValidationError{At: at, Now: now}
			}

			ev, _ := cache.FromContext(ctx).AddEvent(ctx, DefaultEvent(kind, date, clock))
			return ev, nil
		},
		Render: Renderer{
			Pending: func() View { return View{Title: "Adding event..."} },
			Complete: func(result any) View {
				ev, _ := result.(models.Event)
				v := View{Title: fmt.Sprintf("Event added: %s on %s at %s", ev.Type, ev.Date, ev.Time)}
				if ev.ID == "" {
					v.Lines = []string{"Not saved: the event store is unavailable."}
				}
				return v
			},
			Failed: failedView("Failed to add event"),
		},
	}
}

// NewFetchEventsAction returns the action that loads the events of one
// date into the cache.
func NewFetchEventsAction() *Action {
	return &Action{
		Name:        FetchEventsAction,
		Description: "Fetches events for a specific date",
		Parameters: []Parameter{
			{Name: "date", Type: TypeString, Description: "The date to fetch events for (YYYY-MM-DD)", Required: true},
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			date := args.String("date")
			events := cache.FromContext(ctx).FetchEvents(ctx, date)
			return FetchResult{EventsData: events, Date: date}, nil
		},
		Render: Renderer{
			Pending: func() View { return View{Title: "Fetching events..."} },
			Complete: func(result any) View {
				res, _ := result.(FetchResult)
				if len(res.EventsData) == 0 {
					return View{Title: "No events found for this date."}
				}
				lines := make([]string, len(res.EventsData))
				for i, ev := range res.EventsData {
					lines[i] = fmt.Sprintf("%s at %s", ev.Type, ev.Time)
				}
				return View{Title: "Events on " + res.Date, Lines: lines}
			},
			Failed: failedView("Failed to fetch events"),
		},
	}
}

// RegisterEventActions registers both event actions on reg.
func RegisterEventActions(reg *Registry, opts EventOptions) error {
	for _, a := range []*Action{NewAddEventAction(opts), NewFetchEventsAction()} {
		if err := reg.Register(a); err != nil {
			return err
		}
	}
	return nil
}

func failedView(fallback string) func(error) View {
	return func(err error) View {
		var temporal *TemporalValidationError
		switch {
		case err == nil:
			return View{Title: fallback, IsError: true}
		case errors.As(err, &temporal):
			return View{Title: temporal.Error(), IsError: true}
		default:
			return View{Title: fallback, Lines: []string{err.Error()}, IsError: true}
		}
	}
}
