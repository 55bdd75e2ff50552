package agenda

import "context"

// =============================================================================
// REMINDER SCHEDULER - Answers "what is due right now"
// =============================================================================

// Reminders computes reminder due-state. It owns no timers and sends no
// notifications; the UI polls it at whatever cadence it likes.
type Reminders struct {
	Store Repository
}

// IsDue reports whether ev's reminder is due on asOf.
//
// A reminder is due from its trigger date (date - lead time) until it is
// acknowledged. Stored events stay due after their date until acknowledged
// or deleted. Derived events cannot be acknowledged, so their reminders are
// only due between the trigger date and the event date.
func IsDue(ev Event, asOf Date) bool {
	if ev.Reminder == nil || ev.Acknowledged {
		return false
	}
	if asOf.Before(ev.Reminder.TriggerDate(ev.Date)) {
		return false
	}
	if ev.Origin.IsDerived() && asOf.After(ev.Date) {
		return false
	}
	return true
}

// Due filters events down to the ones whose reminder is due on asOf, sorted.
func (r Reminders) Due(events []Event, asOf Date) []Event {
	var due []Event
	for _, ev := range events {
		if IsDue(ev, asOf) {
			due = append(due, ev)
		}
	}
	SortEvents(due)
	return due
}

// Acknowledge marks the reminder of id as shown. Acknowledging twice is not
// an error. An occurrence id acknowledges that occurrence only.
func (r Reminders) Acknowledge(ctx context.Context, id string) error {
	if origin := OriginOfID(id); origin.IsDerived() {
		return &DerivedEventImmutableError{ID: id, Origin: origin}
	}
	if seriesID, d, ok := SplitOccurrenceID(id); ok {
		_, err := r.Store.Update(ctx, seriesID, Patch{AcknowledgeDate: &d})
		return err
	}
	ack := true
	_, err := r.Store.Update(ctx, id, Patch{Acknowledged: &ack})
	return err
}
