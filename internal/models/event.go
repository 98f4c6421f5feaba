package models

import (
	"fmt"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"

	// dateTimeLayout joins Date and Time as "YYYY-MM-DDTHH:mm".
	dateTimeLayout = DateLayout + "T" + TimeLayout
)

// Event is a single scheduled event as shown on the dashboard.
// It is independent of the backend that stores it.
type Event struct {
	ID            string   `json:"id,omitempty"` // Assigned by the store on creation
	Type          string   `json:"type"`         // Free-text category (e.g. "Birthday")
	Date          string   `json:"date"`         // Calendar date, YYYY-MM-DD
	Time          string   `json:"time"`         // Local time, HH:mm
	Venue         string   `json:"venue"`
	Guests        int      `json:"guests"`
	GuestList     []string `json:"guestList"` // Need not match Guests
	Customization string   `json:"customization"`
	Catering      string   `json:"catering"`
	Services      []string `json:"services"`
}

// StartsAt combines Date and Time into a moment in loc.
func (e Event) StartsAt(loc *time.Location) (time.Time, error) {
	return ParseDateTime(e.Date, e.Time, loc)
}

// WithID returns a copy of the event carrying the given id.
func (e Event) WithID(id string) Event {
	e.ID = id
	e.GuestList = cloneStrings(e.GuestList)
	e.Services = cloneStrings(e.Services)
	return e
}

// ParseDateTime parses a YYYY-MM-DD date and an HH:mm time as a local
// timestamp in loc. A nil loc means time.Local.
func ParseDateTime(date, clock string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(dateTimeLayout, date+"T"+clock, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date/time %q %q: %w", date, clock, err)
	}
	return t, nil
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
