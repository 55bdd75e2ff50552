/*
Package ics converts agenda events to and from iCalendar (RFC 5545).

PURPOSE:
  Lets coaches subscribe to their agenda from a phone calendar and move
  appointments in from other tools.

EXPORT:
  - Untimed events become all-day VEVENTs (DTSTART;VALUE=DATE)
  - Timed events get DTSTART/DTEND in UTC, DefaultDuration apart
  - Recurring series keep their RRULE; occurrences are not written out
  - Reminders become a DISPLAY VALARM with TRIGGER:-P{n}D
  - Kind travels in CATEGORIES, origin in X-AGENDA-ORIGIN

IMPORT:
  Every VEVENT becomes an agenda.Draft. Events exported from a derived
  source are skipped, because the projector recreates them from the roster.

SEE ALSO:
  - agenda/types.go: Event and Draft
  - api/handlers.go: /api/export.ics and /api/import
*/
package ics

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/andenutri/agenda-engine/agenda"
)

const (
	// PropertyOrigin carries agenda.Origin through a round trip.
	PropertyOrigin = "X-AGENDA-ORIGIN"

	DefaultProductID = "-//andenutri//agenda-engine//EN"
	DefaultDuration  = time.Hour
)

// ExportOptions controls calendar rendering.
type ExportOptions struct {
	ProductID string
	Name      string
	// Location is the wall-clock zone of event times. Defaults to UTC.
	Location *time.Location
	// Duration of timed events. Defaults to DefaultDuration.
	Duration time.Duration
	// Now stamps DTSTAMP. Defaults to time.Now.
	Now time.Time
}

func (o ExportOptions) withDefaults() ExportOptions {
	if o.ProductID == "" {
		o.ProductID = DefaultProductID
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Duration <= 0 {
		o.Duration = DefaultDuration
	}
	if o.Now.IsZero() {
		o.Now = time.Now()
	}
	return o
}

// Export renders events as a VCALENDAR document. Expanded occurrences of a
// series (SeriesID set) are written once, as their series.
func Export(events []agenda.Event, opts ExportOptions) string {
	opts = opts.withDefaults()

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(opts.ProductID)
	if opts.Name != "" {
		cal.SetName(opts.Name)
	}

	written := make(map[string]bool, len(events))
	for _, ev := range events {
		if ev.SeriesID != "" {
			continue
		}
		if written[ev.ID] {
			continue
		}
		written[ev.ID] = true
		addEvent(cal, ev, opts)
	}
	return cal.Serialize()
}

func addEvent(cal *ical.Calendar, ev agenda.Event, opts ExportOptions) {
	ve := cal.AddEvent(ev.ID)
	ve.SetDtStampTime(opts.Now.UTC())
	if !ev.CreatedAt.IsZero() {
		ve.SetCreatedTime(ev.CreatedAt.UTC())
	}
	if !ev.UpdatedAt.IsZero() {
		ve.SetModifiedAt(ev.UpdatedAt.UTC())
	}
	ve.SetSummary(ev.Title)
	if ev.Description != "" {
		ve.SetDescription(ev.Description)
	}

	if ev.Time == nil {
		start := ev.Date.Time()
		ve.SetProperty(ical.ComponentPropertyDtStart, start.Format(dateLayout), ical.WithValue(string(ical.ValueDataTypeDate)))
		ve.SetProperty(ical.ComponentPropertyDtEnd, start.AddDate(0, 0, 1).Format(dateLayout), ical.WithValue(string(ical.ValueDataTypeDate)))
	} else {
		start := time.Date(ev.Date.Year, ev.Date.Month, ev.Date.Day, ev.Time.Hour, ev.Time.Minute, 0, 0, opts.Location)
		ve.SetStartAt(start)
		ve.SetEndAt(start.Add(opts.Duration))
	}

	ve.SetProperty(ical.ComponentPropertyCategories, string(ev.Kind))
	ve.SetProperty(ical.ComponentProperty(PropertyOrigin), string(ev.Origin))
	if ev.Color != "" {
		ve.SetProperty(ical.ComponentPropertyColor, ev.Color)
	}
	if ev.Recurrence != "" {
		ve.AddProperty(ical.ComponentPropertyRrule, ev.Recurrence)
	}

	if ev.Reminder != nil {
		alarm := ve.AddAlarm()
		alarm.SetAction(ical.ActionDisplay)
		alarm.SetTrigger(triggerFor(*ev.Reminder))
		alarm.SetProperty(ical.ComponentPropertyDescription, ev.Title)
	}
}

const dateLayout = "20060102"

// triggerFor renders the VALARM trigger relative to the event start.
func triggerFor(r agenda.Reminder) string {
	if r.LeadTimeDays == 0 {
		return "PT0S"
	}
	return fmt.Sprintf("-P%dD", r.LeadTimeDays)
}
