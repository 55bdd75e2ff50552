// Package store provides Repository implementations.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/andenutri/agenda-engine/agenda"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev and the local
// fallback when no database is configured)
// =============================================================================

type Memory struct {
	mu     sync.RWMutex
	events map[string]agenda.Event

	// Now and NewID are replaceable for deterministic tests.
	Now   func() time.Time
	NewID func() string
}

func NewMemory() *Memory {
	return &Memory{
		events: make(map[string]agenda.Event),
		Now:    func() time.Time { return time.Now().UTC() },
		NewID:  func() string { return uuid.NewString() },
	}
}

func (m *Memory) Query(_ context.Context, w agenda.Window) ([]agenda.Event, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []agenda.Event
	for _, ev := range m.events {
		if agenda.MatchesWindow(ev, w) {
			result = append(result, clone(ev))
		}
	}
	agenda.SortEvents(result)
	return result, nil
}

func (m *Memory) PendingReminders(_ context.Context, asOf agenda.Date) ([]agenda.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []agenda.Event
	for _, ev := range m.events {
		if agenda.HasPendingReminder(ev, asOf) {
			result = append(result, clone(ev))
		}
	}
	agenda.SortEvents(result)
	return result, nil
}

func (m *Memory) Get(_ context.Context, id string) (agenda.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ev, ok := m.events[id]
	if !ok {
		return agenda.Event{}, &agenda.NotFoundError{ID: id}
	}
	return clone(ev), nil
}

func (m *Memory) Create(_ context.Context, d agenda.Draft) (agenda.Event, error) {
	if err := agenda.ValidateDraft(d); err != nil {
		return agenda.Event{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	ev := agenda.NewEvent(m.NewID(), d, m.Now())
	m.events[ev.ID] = ev
	return clone(ev), nil
}

// Update applies the patch under the write lock, so two concurrent patches
// touching different fields both survive.
func (m *Memory) Update(_ context.Context, id string, p agenda.Patch) (agenda.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev, ok := m.events[id]
	if !ok {
		return agenda.Event{}, &agenda.NotFoundError{ID: id}
	}
	updated, err := agenda.ApplyPatch(ev, p, m.Now())
	if err != nil {
		return agenda.Event{}, err
	}
	m.events[id] = updated
	return clone(updated), nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.events[id]; !ok {
		return &agenda.NotFoundError{ID: id}
	}
	delete(m.events, id)
	return nil
}

// Len returns the number of stored events.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}

// clone detaches pointer fields so callers cannot mutate stored state.
func clone(ev agenda.Event) agenda.Event {
	if ev.Time != nil {
		t := *ev.Time
		ev.Time = &t
	}
	if ev.Subject != nil {
		s := *ev.Subject
		ev.Subject = &s
	}
	if ev.Reminder != nil {
		r := *ev.Reminder
		ev.Reminder = &r
	}
	if ev.Amount != nil {
		a := *ev.Amount
		ev.Amount = &a
	}
	ev.AcknowledgedDates = append([]agenda.Date(nil), ev.AcknowledgedDates...)
	return ev
}
