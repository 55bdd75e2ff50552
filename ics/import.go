package ics

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/andenutri/agenda-engine/agenda"
)

// ImportResult is the outcome of Import.
type ImportResult struct {
	Drafts []agenda.Draft
	// Skipped lists UIDs left out: derived events and events without a usable start.
	Skipped []string
}

// Import reads a VCALENDAR and converts its VEVENTs to drafts. Timed events
// are converted to wall-clock times in loc (UTC when nil).
func Import(r io.Reader, loc *time.Location) (ImportResult, error) {
	if loc == nil {
		loc = time.UTC
	}
	cal, err := ical.ParseCalendar(r)
	if err != nil {
		return ImportResult{}, fmt.Errorf("parse calendar: %w", err)
	}

	var res ImportResult
	for _, ve := range cal.Events() {
		uid := propertyValue(ve, ical.ComponentPropertyUniqueId)
		if agenda.Origin(propertyValue(ve, ical.ComponentProperty(PropertyOrigin))).IsDerived() ||
			agenda.OriginOfID(uid).IsDerived() {
			res.Skipped = append(res.Skipped, uid)
			continue
		}
		d, err := draftOf(ve, loc)
		if err != nil {
			res.Skipped = append(res.Skipped, uid)
			continue
		}
		res.Drafts = append(res.Drafts, d)
	}
	return res, nil
}

func draftOf(ve *ical.VEvent, loc *time.Location) (agenda.Draft, error) {
	d := agenda.Draft{
		Title:       strings.TrimSpace(propertyValue(ve, ical.ComponentPropertySummary)),
		Description: propertyValue(ve, ical.ComponentPropertyDescription),
		Color:       propertyValue(ve, ical.ComponentPropertyColor),
		Recurrence:  propertyValue(ve, ical.ComponentPropertyRrule),
	}
	if d.Title == "" {
		d.Title = "(untitled)"
	}

	start := ve.GetProperty(ical.ComponentPropertyDtStart)
	if start == nil {
		return agenda.Draft{}, fmt.Errorf("missing DTSTART")
	}
	if isDateValue(start) {
		t, err := time.Parse(dateLayout, strings.TrimSpace(start.Value))
		if err != nil {
			return agenda.Draft{}, fmt.Errorf("DTSTART: %w", err)
		}
		d.Date = agenda.DateOf(t)
	} else {
		t, err := ve.GetStartAt()
		if err != nil {
			return agenda.Draft{}, fmt.Errorf("DTSTART: %w", err)
		}
		t = t.In(loc)
		d.Date = agenda.DateOf(t)
		d.Time = &agenda.Clock{Hour: t.Hour(), Minute: t.Minute()}
	}

	if cat := propertyValue(ve, ical.ComponentPropertyCategories); cat != "" {
		for _, c := range strings.Split(cat, ",") {
			if k, err := agenda.ParseKind(c); err == nil {
				d.Kind = k
				break
			}
		}
	}

	d.NoReminder = true
	for _, comp := range ve.Components {
		alarm, ok := comp.(*ical.VAlarm)
		if !ok {
			continue
		}
		trigger := alarm.GetProperty(ical.ComponentPropertyTrigger)
		if trigger == nil {
			continue
		}
		if r, ok := parseTrigger(trigger.Value); ok {
			d.Reminder = &r
			d.NoReminder = false
			break
		}
	}
	return d, nil
}

func propertyValue(ve *ical.VEvent, p ical.ComponentProperty) string {
	if prop := ve.GetProperty(p); prop != nil {
		return prop.Value
	}
	return ""
}

func isDateValue(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// parseTrigger reads relative triggers like "-P2D", "-P1W", "-PT30M" and
// "PT0S". Sub-day offsets collapse to a same-day reminder.
func parseTrigger(v string) (agenda.Reminder, bool) {
	v = strings.ToUpper(strings.TrimSpace(v))
	v = strings.TrimPrefix(v, "-")
	v = strings.TrimPrefix(v, "+")
	if !strings.HasPrefix(v, "P") {
		return agenda.Reminder{}, false
	}
	v = v[1:]
	if strings.HasPrefix(v, "T") {
		return agenda.Reminder{LeadTimeDays: 0}, true
	}
	if i := strings.Index(v, "T"); i >= 0 {
		v = v[:i]
	}
	if v == "" {
		return agenda.Reminder{}, false
	}
	unit := v[len(v)-1]
	n, err := strconv.Atoi(v[:len(v)-1])
	if err != nil || n < 0 {
		return agenda.Reminder{}, false
	}
	switch unit {
	case 'D':
		return agenda.Reminder{LeadTimeDays: n}, true
	case 'W':
		return agenda.Reminder{LeadTimeDays: n * 7}, true
	}
	return agenda.Reminder{}, false
}
