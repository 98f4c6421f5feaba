package google

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"eventdash/internal/models"
	"eventdash/internal/store"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

const (
	credentialsFile = "credentials.json"
	backendName     = "google"

	// Private extended property keys. keyDate is what QueryByDate filters on.
	keyCollection    = "eventdashCollection"
	keyType          = "eventdashType"
	keyDate          = "eventdashDate"
	keyTime          = "eventdashTime"
	keyGuests        = "eventdashGuests"
	keyGuestList     = "eventdashGuestList"
	keyCustomization = "eventdashCustomization"
	keyCatering      = "eventdashCatering"
	keyServices      = "eventdashServices"

	eventDuration = time.Hour
)

// CalendarStore keeps dashboard events in a Google Calendar.
type CalendarStore struct {
	service    *calendar.Service
	logger     *slog.Logger
	calendarID string
	loc        *time.Location
}

// NewStore creates a Google Calendar backed store.
// It handles loading credentials and setting up an authenticated HTTP client.
// The accountName is used to find the token file written by the auth command.
func NewStore(ctx context.Context, logger *slog.Logger, clientID, clientSecret, accountName, calendarID string, loc *time.Location) (*CalendarStore, error) {
	config, err := getOAuthConfig(clientID, clientSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to get OAuth config: %w", err)
	}

	tokenFile := TokenFile(accountName)
	token, err := tokenFromFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("could not load token for account %s: %w. Please run the 'auth' command first", accountName, err)
	}

	client := config.Client(ctx, token)
	service, err := calendar.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	return newCalendarStore(service, logger, calendarID, loc), nil
}

func newCalendarStore(service *calendar.Service, logger *slog.Logger, calendarID string, loc *time.Location) *CalendarStore {
	if calendarID == "" {
		calendarID = "primary"
	}
	if loc == nil {
		loc = time.Local
	}
	return &CalendarStore{service: service, logger: logger, calendarID: calendarID, loc: loc}
}

// Create inserts ev and returns it carrying the Google event id.
func (c *CalendarStore) Create(ctx context.Context, ev models.Event) (models.Event, error) {
	item, err := c.toGoogleEvent(ev)
	if err != nil {
		return models.Event{}, store.Wrap(backendName, "create", err)
	}

	created, err := c.service.Events.Insert(c.calendarID, item).Context(ctx).Do()
	if err != nil {
		return models.Event{}, store.Wrap(backendName, "create", fmt.Errorf("failed to insert event: %w", err))
	}

	c.logger.Debug("Inserted event into Google Calendar", "id", created.Id, "calendarID", c.calendarID)
	return ev.WithID(created.Id), nil
}

// QueryByDate lists events whose private date property equals date.
func (c *CalendarStore) QueryByDate(ctx context.Context, date string) ([]models.Event, error) {
	c.logger.Debug("Fetching events for date", "calendarID", c.calendarID, "date", date)

	events := make([]models.Event, 0)
	err := c.service.Events.List(c.calendarID).
		PrivateExtendedProperty(keyDate+"="+date).
		ShowDeleted(false).
		SingleEvents(true).
		OrderBy("updated").
		Pages(ctx, func(page *calendar.Events) error {
			for _, item := range page.Items {
				ev, ok, err := fromGoogleEvent(item)
				if err != nil {
					c.logger.Warn("Skipping unreadable Google event", "id", item.Id, "error", err)
					continue
				}
				// The API filter is the primary check; this guards against
				// servers that ignore it.
				if ok && ev.Date == date {
					events = append(events, ev)
				}
			}
			return nil
		})
	if err != nil {
		return nil, store.Wrap(backendName, "query", fmt.Errorf("failed to retrieve events: %w", err))
	}

	c.logger.Info("Successfully fetched events from Google Calendar", "count", len(events), "calendarID", c.calendarID)
	return events, nil
}

// toGoogleEvent converts an event to the Google Calendar representation.
func (c *CalendarStore) toGoogleEvent(ev models.Event) (*calendar.Event, error) {
	start, err := ev.StartsAt(c.loc)
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

	return &calendar.Event{
		Summary:  ev.Type,
		Location: ev.Venue,
		Start: &calendar.EventDateTime{
			DateTime: start.Format(time.RFC3339),
			TimeZone: timeZoneName(c.loc),
		},
		End: &calendar.EventDateTime{
			DateTime: start.Add(eventDuration).Format(time.RFC3339),
			TimeZone: timeZoneName(c.loc),
		},
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{
				keyCollection:    store.Collection,
				keyType:          ev.Type,
				keyDate:          ev.Date,
				keyTime:          ev.Time,
				keyGuests:        strconv.Itoa(ev.Guests),
				keyGuestList:     string(guestList),
				keyCustomization: ev.Customization,
				keyCatering:      ev.Catering,
				keyServices:      string(services),
			},
		},
	}, nil
}

// timeZoneName returns the IANA name Google expects, or "" when loc has
// none. DateTime carries the offset either way.
func timeZoneName(loc *time.Location) string {
	name := loc.String()
	if name == "Local" || name == "UTC" {
		return ""
	}
	if _, err := time.LoadLocation(name); err != nil {
		return ""
	}
	return name
}

// fromGoogleEvent reads an event back. ok is false for Google events that
// were not created by this store.
func fromGoogleEvent(item *calendar.Event) (models.Event, bool, error) {
	if item.ExtendedProperties == nil || item.ExtendedProperties.Private[keyCollection] != store.Collection {
		return models.Event{}, false, nil
	}
	props := item.ExtendedProperties.Private

	ev := models.Event{
		ID:            item.Id,
		Type:          props[keyType],
		Date:          props[keyDate],
		Time:          props[keyTime],
		Venue:         item.Location,
		Customization: props[keyCustomization],
		Catering:      props[keyCatering],
	}
	if v := props[keyGuests]; v != "" {
		guests, err := strconv.Atoi(v)
		if err != nil {
			return models.Event{}, false, fmt.Errorf("guests: %w", err)
		}
		ev.Guests = guests
	}
	if v := props[keyGuestList]; v != "" {
		if err := json.Unmarshal([]byte(v), &ev.GuestList); err != nil {
			return models.Event{}, false, fmt.Errorf("guest list: %w", err)
		}
	}
	if v := props[keyServices]; v != "" {
		if err := json.Unmarshal([]byte(v), &ev.Services); err != nil {
			return models.Event{}, false, fmt.Errorf("services: %w", err)
		}
	}
	return ev, true, nil
}

// GetOAuthConfigForAuthFlow is used by the auth command to get the config for the web flow.
func GetOAuthConfigForAuthFlow(clientID, clientSecret string) (*oauth2.Config, error) {
	return getOAuthConfig(clientID, clientSecret)
}

// getOAuthConfig reads credentials and returns an OAuth2 config.
// It prioritizes environment variables over a local credentials.json file.
func getOAuthConfig(clientID, clientSecret string) (*oauth2.Config, error) {
	if clientID != "" && clientSecret != "" {
		return &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  "urn:ietf:wg:oauth:2.0:oob",
			Scopes:       []string{calendar.CalendarEventsScope},
			Endpoint:     google.Endpoint,
		}, nil
	}

	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		if _, ok := err.(*fs.PathError); ok {
			return nil, fmt.Errorf("credentials.json not found. Please provide GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET env vars or place credentials.json in the root directory")
		}
		return nil, fmt.Errorf("unable to read client secret file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, calendar.CalendarEventsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}
	config.RedirectURL = "urn:ietf:wg:oauth:2.0:oob" // For desktop app flow
	return config, nil
}

// TokenFromWeb is called by the auth flow to retrieve a token.
func TokenFromWeb(ctx context.Context, config *oauth2.Config, authCode string) (*oauth2.Token, error) {
	return config.Exchange(ctx, authCode)
}

// TokenFile names the token file for an account.
func TokenFile(accountName string) string {
	return "token-" + accountName + ".json"
}

// SaveToken saves a token to a file path.
func SaveToken(path string, token *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("unable to create token file: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}

// tokenFromFile retrieves a token from a local file.
func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

// GetTokenAccounts lists the accounts that have a token file in dir.
func GetTokenAccounts(dir string) ([]string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var accounts []string
	for _, file := range files {
		if strings.HasPrefix(file.Name(), "token-") && strings.HasSuffix(file.Name(), ".json") {
			accountName := strings.TrimSuffix(strings.TrimPrefix(file.Name(), "token-"), ".json")
			accounts = append(accounts, accountName)
		}
	}
	return accounts, nil
}
