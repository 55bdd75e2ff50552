/*
store.go - Persistence contract for user-created events

PURPOSE:
  Defines the interface between the agenda engine and whatever durable store
  holds coach-created events (SQLite, a document store, browser-local
  storage, an in-memory mock). Only user-created events are ever stored;
  derived events never reach a Repository.

REQUIRED SEMANTICS:
  - Range query by date, inclusive on both ends
  - Stable identity (ids assigned by the store, opaque to callers)
  - Per-field patch updates: a field absent from the Patch is never written
  - Every mutation is durable when the call returns (no implicit batching)
  - Unacknowledged reminders are reachable however old the event is

  Recurring series are returned by Query when they START on or before the
  window end, even if the series row's own date is earlier than the window.
  The controller expands them.

SHARED HELPERS:
  ValidateDraft, NewEvent and ApplyPatch hold the rules every implementation
  must apply, so the memory and SQLite stores cannot drift apart.

IMPLEMENTATIONS:
  - agenda/store/memory.go: in-memory, for tests and the local fallback
  - store/sqlite/sqlite.go: durable

SEE ALSO:
  - controller.go: the only caller that mutates
  - errors.go: ValidationError, NotFoundError
*/
package agenda

import (
	"context"
	"sort"
	"strings"
	"time"
)

// =============================================================================
// REPOSITORY - Interface for event persistence
// =============================================================================

// Repository stores user-created events.
type Repository interface {
	// Query returns stored events whose date falls inside w, plus recurring
	// series starting on or before w.End, ordered by SortEvents.
	Query(ctx context.Context, w Window) ([]Event, error)

	// Get returns one event or a *NotFoundError.
	Get(ctx context.Context, id string) (Event, error)

	// Create validates the draft, assigns identity and persists it.
	Create(ctx context.Context, d Draft) (Event, error)

	// Update merges p into the stored event. Unknown id: *NotFoundError.
	// Kind change: *ValidationError.
	Update(ctx context.Context, id string, p Patch) (Event, error)

	// Delete removes the event. Unknown id: *NotFoundError, even when the
	// caller considers "already gone" a success.
	Delete(ctx context.Context, id string) error

	// PendingReminders returns every stored event matching HasPendingReminder
	// for asOf, with no lower date bound, ordered by SortEvents.
	PendingReminders(ctx context.Context, asOf Date) ([]Event, error)
}

// QueryDay is the single-day form of Query.
func QueryDay(ctx context.Context, repo Repository, d Date) ([]Event, error) {
	events, err := repo.Query(ctx, DayWindow(d))
	if err != nil {
		return nil, err
	}
	// Drop series that start earlier; they are expanded by the controller.
	out := events[:0]
	for _, ev := range events {
		if ev.Date.Equal(d) {
			out = append(out, ev)
		}
	}
	return out, nil
}

// MatchesWindow is the Query predicate shared by implementations.
func MatchesWindow(ev Event, w Window) bool {
	if w.Contains(ev.Date) {
		return true
	}
	return ev.Recurrence != "" && ev.Date.BeforeOrEqual(w.End)
}

// HasPendingReminder is the PendingReminders predicate shared by
// implementations: the event carries a reminder that is not acknowledged and
// whose first trigger date is on or before asOf. Recurring series qualify on
// their first occurrence; per-occurrence acknowledgement is checked after
// expansion.
func HasPendingReminder(ev Event, asOf Date) bool {
	if ev.Reminder == nil || ev.Acknowledged {
		return false
	}
	return ev.Reminder.TriggerDate(ev.Date).BeforeOrEqual(asOf)
}

// =============================================================================
// VALIDATION & PATCH RULES
// =============================================================================

// ValidateDraft checks a create payload.
func ValidateDraft(d Draft) error {
	if strings.TrimSpace(d.Title) == "" {
		return invalid("title", "must not be empty")
	}
	if d.Date.IsZero() {
		return invalid("date", "is required")
	}
	if d.Kind != "" && !d.Kind.Valid() {
		return invalid("kind", "unknown kind "+string(d.Kind))
	}
	if d.Time != nil && !d.Time.Valid() {
		return invalid("time", "out of range")
	}
	if d.Reminder != nil && d.Reminder.LeadTimeDays < 0 {
		return invalid("reminder", "lead time must not be negative")
	}
	if d.Recurrence != "" {
		if err := ValidateRecurrence(d.Recurrence); err != nil {
			return err
		}
	}
	return nil
}

// NewEvent builds the stored form of a validated draft. Kind defaults to
// appointment; color and reminder default from the kind table.
func NewEvent(id string, d Draft, now time.Time) Event {
	kind := d.Kind
	if kind == "" {
		kind = KindAppointment
	}
	style := kind.Style()

	ev := Event{
		ID:          id,
		Title:       strings.TrimSpace(d.Title),
		Description: d.Description,
		Date:        d.Date,
		Time:        cloneClock(d.Time),
		Kind:        kind,
		Subject:     cloneSubject(d.Subject),
		Color:       d.Color,
		Origin:      OriginUser,
		Recurrence:  strings.TrimSpace(d.Recurrence),
		Amount:      d.Amount,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if ev.Color == "" {
		ev.Color = style.Color
	}
	switch {
	case d.NoReminder:
	case d.Reminder != nil:
		r := *d.Reminder
		ev.Reminder = &r
	case style.Reminder != nil:
		r := *style.Reminder
		ev.Reminder = &r
	}
	return ev
}

// ApplyPatch merges p into ev. Fields absent from p are untouched.
func ApplyPatch(ev Event, p Patch, now time.Time) (Event, error) {
	if p.Kind != nil && *p.Kind != ev.Kind {
		return Event{}, invalid("kind", "is immutable; delete and recreate the event")
	}
	if p.Title != nil {
		if strings.TrimSpace(*p.Title) == "" {
			return Event{}, invalid("title", "must not be empty")
		}
		ev.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		ev.Description = *p.Description
	}
	if p.Date != nil {
		if p.Date.IsZero() {
			return Event{}, invalid("date", "is required")
		}
		ev.Date = *p.Date
	}
	switch {
	case p.ClearTime:
		ev.Time = nil
	case p.Time != nil:
		if !p.Time.Valid() {
			return Event{}, invalid("time", "out of range")
		}
		ev.Time = cloneClock(p.Time)
	}
	switch {
	case p.ClearSubject:
		ev.Subject = nil
	case p.Subject != nil:
		ev.Subject = cloneSubject(p.Subject)
	}
	if p.Color != nil {
		ev.Color = *p.Color
		if ev.Color == "" {
			ev.Color = ev.Kind.Style().Color
		}
	}
	switch {
	case p.ClearReminder:
		ev.Reminder = nil
	case p.Reminder != nil:
		if p.Reminder.LeadTimeDays < 0 {
			return Event{}, invalid("reminder", "lead time must not be negative")
		}
		r := *p.Reminder
		ev.Reminder = &r
	}
	if p.Acknowledged != nil {
		ev.Acknowledged = *p.Acknowledged
	}
	if p.Recurrence != nil {
		rule := strings.TrimSpace(*p.Recurrence)
		if rule != "" {
			if err := ValidateRecurrence(rule); err != nil {
				return Event{}, err
			}
		}
		ev.Recurrence = rule
	}
	if p.AcknowledgeDate != nil && !containsDate(ev.AcknowledgedDates, *p.AcknowledgeDate) {
		dates := append(append([]Date{}, ev.AcknowledgedDates...), *p.AcknowledgeDate)
		sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
		ev.AcknowledgedDates = dates
	}
	switch {
	case p.ClearAmount:
		ev.Amount = nil
	case p.Amount != nil:
		a := *p.Amount
		ev.Amount = &a
	}
	ev.UpdatedAt = now
	return ev, nil
}

// =============================================================================
// ORDERING
// =============================================================================

// SortEvents orders by date, then time (untimed last), then title, then id.
func SortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return compareEvents(events[i], events[j]) < 0
	})
}

func compareEvents(a, b Event) int {
	if c := a.Date.Compare(b.Date); c != 0 {
		return c
	}
	return compareWithinDay(a, b)
}

// compareWithinDay is the in-cell display order.
func compareWithinDay(a, b Event) int {
	if c := compareClocks(a.Time, b.Time); c != 0 {
		return c
	}
	if c := strings.Compare(a.Title, b.Title); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

func containsDate(dates []Date, d Date) bool {
	for _, x := range dates {
		if x.Equal(d) {
			return true
		}
	}
	return false
}

func cloneClock(c *Clock) *Clock {
	if c == nil {
		return nil
	}
	v := *c
	return &v
}

func cloneSubject(s *SubjectRef) *SubjectRef {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
