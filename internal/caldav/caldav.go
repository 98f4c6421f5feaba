package caldav

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"sort"
	"strconv"
	"time"

	"eventdash/internal/models"
	"eventdash/internal/store"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"
)

const (
	// ICloudEndpoint is used when no CALDAV_ENDPOINT is configured.
	ICloudEndpoint = "https://caldav.icloud.com/"

	backendName = "caldav"
	productID   = "-//eventdash//EN"

	// Domain fields travel as extension properties so a query can be
	// answered without guessing from SUMMARY or DTSTART.
	propType          = "X-EVENTDASH-TYPE"
	propDate          = "X-EVENTDASH-DATE"
	propTime          = "X-EVENTDASH-TIME"
	propGuests        = "X-EVENTDASH-GUESTS"
	propGuestList     = "X-EVENTDASH-GUEST-LIST"
	propCustomization = "X-EVENTDASH-CUSTOMIZATION"
	propCatering      = "X-EVENTDASH-CATERING"
	propServices      = "X-EVENTDASH-SERVICES"
	propCollection    = "X-EVENTDASH-COLLECTION"

	eventDuration = time.Hour
)

// customTransport handles adding Basic Auth and custom headers to requests.
type customTransport struct {
	Username  string
	Password  string
	Transport http.RoundTripper
}

// RoundTrip adds required headers and authentication to each request.
func (t *customTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(t.Username, t.Password)
	req.Header.Set("User-Agent", "eventdash/1.0")
	return t.Transport.RoundTrip(req)
}

// calendarClient is the subset of *caldav.Client the store needs.
type calendarClient interface {
	PutCalendarObject(ctx context.Context, path string, cal *ical.Calendar) (*caldav.CalendarObject, error)
	QueryCalendar(ctx context.Context, calendar string, query *caldav.CalendarQuery) ([]caldav.CalendarObject, error)
}

// Store keeps events in a single calendar on a CalDAV server.
type Store struct {
	client       calendarClient
	logger       *slog.Logger
	calendarPath string
	loc          *time.Location
	now          func() time.Time
}

// NewStore connects to endpoint and resolves the calendar named calendarName.
// Dates and times are interpreted in loc.
func NewStore(ctx context.Context, logger *slog.Logger, endpoint, username, password, calendarName string, loc *time.Location) (*Store, error) {
	if endpoint == "" {
		endpoint = ICloudEndpoint
	}
	transport := &customTransport{
		Username:  username,
		Password:  password,
		Transport: http.DefaultTransport,
	}
	httpClient := &http.Client{Transport: transport, Timeout: 30 * time.Second}

	client, err := caldav.NewClient(httpClient, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create caldav client: %w", err)
	}

	logger.Info("Finding CalDAV calendar", "endpoint", endpoint, "calendarName", calendarName)
	calendarPath, err := findCalendar(ctx, client, calendarName)
	if err != nil {
		return nil, fmt.Errorf("could not find calendar '%s': %w", calendarName, err)
	}
	logger.Info("Successfully found CalDAV calendar", "path", calendarPath)

	return newStore(client, logger, calendarPath, loc), nil
}

func newStore(client calendarClient, logger *slog.Logger, calendarPath string, loc *time.Location) *Store {
	if loc == nil {
		loc = time.Local
	}
	return &Store{
		client:       client,
		logger:       logger,
		calendarPath: calendarPath,
		loc:          loc,
		now:          time.Now,
	}
}

// Create writes ev as a new calendar object named after a fresh UID.
func (s *Store) Create(ctx context.Context, ev models.Event) (models.Event, error) {
	stored := ev.WithID(GenerateUID())

	cal, err := toICal(stored, s.loc, s.now())
	if err != nil {
		return models.Event{}, store.Wrap(backendName, "create", err)
	}

	objectPath := path.Join(s.calendarPath, stored.ID+".ics")
	if _, err := s.client.PutCalendarObject(ctx, objectPath, cal); err != nil {
		return models.Event{}, store.Wrap(backendName, "create", fmt.Errorf("failed to put calendar object: %w", err))
	}

	s.logger.Debug("Created event on CalDAV server", "id", stored.ID, "type", stored.Type, "date", stored.Date)
	return stored, nil
}

// QueryByDate asks the server for the whole local day and keeps the events
// whose stored date matches exactly.
func (s *Store) QueryByDate(ctx context.Context, date string) ([]models.Event, error) {
	dayStart, err := time.ParseInLocation(models.DateLayout, date, s.loc)
	if err != nil {
		// Not a parseable date, so nothing can carry it.
		return []models.Event{}, nil
	}

	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:     ical.CompCalendar,
			AllProps: true,
			AllComps: true,
		},
		CompFilter: caldav.CompFilter{
			Name: ical.CompCalendar,
			Comps: []caldav.CompFilter{{
				Name:  ical.CompEvent,
				Start: dayStart.UTC(),
				End:   dayStart.AddDate(0, 0, 1).UTC(),
			}},
		},
	}

	objects, err := s.client.QueryCalendar(ctx, s.calendarPath, query)
	if err != nil {
		return nil, store.Wrap(backendName, "query", fmt.Errorf("failed to query calendar: %w", err))
	}

	type created struct {
		ev models.Event
		at time.Time
	}
	var matched []created
	for _, obj := range objects {
		if obj.Data == nil {
			continue
		}
		for _, ve := range obj.Data.Events() {
			ev, ok, err := fromICal(ve)
			if err != nil {
				s.logger.Warn("Skipping unreadable calendar object", "path", obj.Path, "error", err)
				continue
			}
			if !ok || ev.Date != date {
				continue
			}
			at, _ := ve.Props.DateTime(ical.PropCreated, time.UTC)
			matched = append(matched, created{ev: ev, at: at})
		}
	}

	sort.SliceStable(matched, func(i, j int) bool { return matched[i].at.Before(matched[j].at) })

	events := make([]models.Event, 0, len(matched))
	for _, m := range matched {
		events = append(events, m.ev)
	}
	return events, nil
}

// toICal converts an event to a calendar holding a single VEVENT.
func toICal(ev models.Event, loc *time.Location, now time.Time) (*ical.Calendar, error) {
	start, err := ev.StartsAt(loc)
	if err != nil {
		return nil, err
	}
	guestList, err := json.Marshal(ev.GuestList)
	if err != nil {
		return nil, err
	}
	services, err := json.Marshal(ev.Services)
	if err != nil {
		return nil, err
	}

	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, ev.ID)
	ve.Props.SetText(ical.PropSummary, ev.Type)
	ve.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	ve.Props.SetDateTime(ical.PropCreated, now.UTC())
	ve.Props.SetDateTime(ical.PropDateTimeStart, start.UTC())
	ve.Props.SetDateTime(ical.PropDateTimeEnd, start.Add(eventDuration).UTC())
	if ev.Venue != "" {
		ve.Props.SetText(ical.PropLocation, ev.Venue)
	}

	ve.Props.SetText(propCollection, store.Collection)
	ve.Props.SetText(propType, ev.Type)
	ve.Props.SetText(propDate, ev.Date)
	ve.Props.SetText(propTime, ev.Time)
	ve.Props.SetText(propGuests, strconv.Itoa(ev.Guests))
	ve.Props.SetText(propGuestList, string(guestList))
	ve.Props.SetText(propCustomization, ev.Customization)
	ve.Props.SetText(propCatering, ev.Catering)
	ve.Props.SetText(propServices, string(services))

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	cal.Children = append(cal.Children, ve)
	return cal, nil
}

// textProps are the VEVENT properties fromICal reads.
var textProps = []string{
	ical.PropUID, ical.PropLocation, propType, propDate, propTime, propGuests,
	propGuestList, propCustomization, propCatering, propServices,
}

// fromICal reads an event back from a VEVENT. ok is false for VEVENTs that
// were not written by this store.
func fromICal(ve ical.Event) (models.Event, bool, error) {
	if ve.Props.Get(propDate) == nil {
		return models.Event{}, false, nil
	}

	text := make(map[string]string, len(textProps))
	for _, name := range textProps {
		v, err := ve.Props.Text(name)
		if err != nil {
			return models.Event{}, false, fmt.Errorf("%s: %w", name, err)
		}
		text[name] = v
	}

	ev := models.Event{
		ID:            text[ical.PropUID],
		Type:          text[propType],
		Date:          text[propDate],
		Time:          text[propTime],
		Venue:         text[ical.PropLocation],
		Customization: text[propCustomization],
		Catering:      text[propCatering],
	}
	if v := text[propGuests]; v != "" {
		guests, err := strconv.Atoi(v)
		if err != nil {
			return models.Event{}, false, fmt.Errorf("guests: %w", err)
		}
		ev.Guests = guests
	}
	if v := text[propGuestList]; v != "" {
		if err := json.Unmarshal([]byte(v), &ev.GuestList); err != nil {
			return models.Event{}, false, fmt.Errorf("guest list: %w", err)
		}
	}
	if v := text[propServices]; v != "" {
		if err := json.Unmarshal([]byte(v), &ev.Services); err != nil {
			return models.Event{}, false, fmt.Errorf("services: %w", err)
		}
	}
	return ev, true, nil
}

// findCalendar discovers the user's calendars and returns the path of the one with the matching name.
func findCalendar(ctx context.Context, client *caldav.Client, name string) (string, error) {
	principalPath, err := client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to find principal path: %w", err)
	}

	homeSetPath, err := client.FindCalendarHomeSet(ctx, principalPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendar home set: %w", err)
	}

	calendars, err := client.FindCalendars(ctx, homeSetPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendars: %w", err)
	}

	for _, cal := range calendars {
		if cal.Name == name {
			return cal.Path, nil
		}
	}

	return "", fmt.Errorf("no calendar found with name '%s'", name)
}

// GenerateUID creates a new unique identifier for an event.
func GenerateUID() string {
	return uuid.New().String()
}
