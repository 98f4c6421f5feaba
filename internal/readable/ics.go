package readable

import (
	"fmt"
	"io"
	"strings"
	"time"

	"eventdash/internal/models"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"
)

const (
	productID     = "-//eventdash//readable//EN"
	eventDuration = time.Hour
)

// EncodeICS writes events as one iCalendar document. Events whose date or
// time cannot be parsed are skipped.
func EncodeICS(w io.Writer, events []models.Event, loc *time.Location, stamp time.Time) error {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	cal.Props.SetText("X-WR-CALDESC", Description)

	for _, ev := range events {
		start, err := ev.StartsAt(loc)
		if err != nil {
			continue
		}

		uid := ev.ID
		if uid == "" {
			uid = uuid.NewString()
		}

		ve := ical.NewEvent()
		ve.Props.SetText(ical.PropUID, uid)
		ve.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
		ve.Props.SetDateTime(ical.PropDateTimeStart, start.UTC())
		ve.Props.SetDateTime(ical.PropDateTimeEnd, start.Add(eventDuration).UTC())
		ve.Props.SetText(ical.PropSummary, ev.Type)
		if ev.Venue != "" {
			ve.Props.SetText(ical.PropLocation, ev.Venue)
		}
		ve.Props.SetText(ical.PropDescription, describe(ev))
		if len(ev.Services) > 0 {
			categories := ical.NewProp(ical.PropCategories)
			categories.SetTextList(ev.Services)
			ve.Props.Set(categories)
		}
		cal.Children = append(cal.Children, ve.Component)
	}

	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("failed to encode calendar: %w", err)
	}
	return nil
}

func describe(ev models.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Guests: %d", ev.Guests)
	if len(ev.GuestList) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(ev.GuestList, ", "))
	}
	if ev.Customization != "" {
		fmt.Fprintf(&b, "\nCustomization: %s", ev.Customization)
	}
	if ev.Catering != "" {
		fmt.Fprintf(&b, "\nCatering: %s", ev.Catering)
	}
	return b.String()
}
