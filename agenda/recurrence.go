package agenda

import (
	"fmt"

	"github.com/teambition/rrule-go"
)

// maxOccurrencesPerSeries caps expansion of open-ended rules inside huge windows.
const maxOccurrencesPerSeries = 1000

// ValidateRecurrence checks an RRULE body such as "FREQ=WEEKLY;BYDAY=MO;COUNT=8".
func ValidateRecurrence(rule string) error {
	if _, err := rrule.StrToRRule(rule); err != nil {
		return invalid("recurrence", fmt.Sprintf("bad RRULE %q: %v", rule, err))
	}
	return nil
}

// ExpandSeries returns the occurrences of a recurring user event inside w.
// Each occurrence gets an OccurrenceID and SeriesID; acknowledgement is read
// per occurrence from the series' AcknowledgedDates. A non-recurring event is
// returned as-is when it falls inside w.
func ExpandSeries(series Event, w Window) []Event {
	if !series.IsRecurring() {
		if w.Contains(series.Date) {
			return []Event{series}
		}
		return nil
	}

	r, err := rrule.StrToRRule(series.Recurrence)
	if err != nil {
		// Stored rules are validated on write; an unreadable one still shows
		// its first occurrence rather than vanishing.
		if w.Contains(series.Date) {
			return []Event{series}
		}
		return nil
	}
	r.DTStart(series.Date.Time())

	times := r.Between(w.Start.Time(), w.End.Time(), true)
	if len(times) > maxOccurrencesPerSeries {
		times = times[:maxOccurrencesPerSeries]
	}

	out := make([]Event, 0, len(times))
	for _, t := range times {
		d := DateOf(t)
		occ := series
		occ.ID = OccurrenceID(series.ID, d)
		occ.SeriesID = series.ID
		occ.Date = d
		occ.Acknowledged = series.Acknowledged || containsDate(series.AcknowledgedDates, d)
		occ.AcknowledgedDates = nil
		out = append(out, occ)
	}
	return out
}
