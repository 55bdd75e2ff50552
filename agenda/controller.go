/*
controller.go - Agenda orchestration

PURPOSE:
  Answers "what should the UI show for view V anchored at date D" and routes
  create/update/delete to the Repository.

DATA FLOW (GetView):
  1. DateGrid lays out the cells; the window is their min/max date
     (GridOptions.SpillWeeks widens month views to whole weeks)
  2. Projector expands derived events from the roster for that window
  3. Repository returns stored events; recurring series are expanded
  4. Both sets are merged by id, filtered, and assigned to cells by date
  5. Inside a cell: time ascending (untimed last), then title, then id

MUTATIONS:
  Derived ids (see ids.go) are rejected with DerivedEventImmutableError
  before the store is touched. An occurrence id of a recurring series
  addresses the whole series.

STALE RESPONSES:
  The store call is the only point where GetView waits. GetViewTracked tags
  each call with a ViewTracker generation and returns ErrStaleView when a
  newer request started meanwhile; callers drop that result.

  A fresh create/update is NOT guaranteed to show up in an immediate
  re-query. Callers merge it into their current View with Upsert instead.

SEE ALSO:
  - grid.go, projector.go, store.go, reminder.go
  - api/handlers.go: HTTP surface over Controller
*/
package agenda

import (
	"context"
	"sort"
	"strings"
	"sync/atomic"
)

// Controller binds grid, projector, store and reminders together.
type Controller struct {
	Store     Repository
	Projector Projector
	Grid      GridOptions
}

func NewController(store Repository, grid GridOptions) *Controller {
	return &Controller{Store: store, Grid: grid}
}

// ViewRequest selects what GetView renders.
type ViewRequest struct {
	View   Granularity
	Anchor Date
	Roster []Client

	// Kinds keeps only these kinds when non-empty.
	Kinds []Kind
	// Subject keeps events whose client id equals it or whose client name
	// contains it (case-insensitive).
	Subject string
}

// View is a rendered agenda.
type View struct {
	View       Granularity
	Anchor     Date
	Window     Window
	Cells      []Cell
	Events     []Event
	Generation uint64

	// Kinds and Subject are the filters the view was rendered with; Upsert
	// applies them too.
	Kinds   []Kind
	Subject string
}

// =============================================================================
// READS
// =============================================================================

// GetView renders req.
func (c *Controller) GetView(ctx context.Context, req ViewRequest) (View, error) {
	g, err := ParseGranularity(string(req.View))
	if err != nil {
		return View{}, err
	}
	req.View = g
	if req.Anchor.IsZero() {
		return View{}, invalid("date", "is required")
	}

	cells := BuildGrid(req.Anchor, req.View, c.Grid)
	w := queryWindow(cells, req.View, c.Grid)

	events, err := c.EventsIn(ctx, w, req.Roster)
	if err != nil {
		return View{}, err
	}
	events = filterEvents(events, req.Kinds, req.Subject)

	view := View{
		View: req.View, Anchor: req.Anchor, Window: w, Cells: cells, Events: events,
		Kinds: req.Kinds, Subject: req.Subject,
	}
	view.assign()
	return view, nil
}

// GetViewTracked is GetView for callers that may issue overlapping requests
// (page navigation while a query is in flight). Only the newest request of
// the tracker gets a result; older ones fail with ErrStaleView.
func (c *Controller) GetViewTracked(ctx context.Context, t *ViewTracker, req ViewRequest) (View, error) {
	gen := t.Begin()
	view, err := c.GetView(ctx, req)
	if !t.IsCurrent(gen) {
		return View{}, ErrStaleView
	}
	if err != nil {
		return View{}, err
	}
	view.Generation = gen
	return view, nil
}

// EventsIn merges derived and stored events inside w, expanded and sorted.
func (c *Controller) EventsIn(ctx context.Context, w Window, roster []Client) ([]Event, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	derived := c.Projector.Project(roster, w)

	stored, err := c.Store.Query(ctx, w)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(derived)+len(stored))
	merged := make([]Event, 0, len(derived)+len(stored))
	add := func(ev Event) {
		if seen[ev.ID] {
			return
		}
		seen[ev.ID] = true
		merged = append(merged, ev)
	}
	for _, ev := range derived {
		add(ev)
	}
	for _, ev := range stored {
		for _, occ := range ExpandSeries(ev, w) {
			add(occ)
		}
	}
	SortEvents(merged)
	return merged, nil
}

// GetEvent returns a stored event. An occurrence id returns that occurrence
// of its series. Derived events have no standalone identity outside a
// window and are reported as not found.
func (c *Controller) GetEvent(ctx context.Context, id string) (Event, error) {
	if OriginOfID(id).IsDerived() {
		return Event{}, &NotFoundError{ID: id}
	}
	seriesID, d, ok := SplitOccurrenceID(id)
	if !ok {
		return c.Store.Get(ctx, id)
	}
	series, err := c.Store.Get(ctx, seriesID)
	if err != nil {
		return Event{}, err
	}
	for _, occ := range ExpandSeries(series, DayWindow(d)) {
		if occ.ID == id {
			return occ, nil
		}
	}
	return Event{}, &NotFoundError{ID: id}
}

// DueReminders returns reminders due on asOf across stored and derived events.
//
// Stored events come from Repository.PendingReminders, so an unacknowledged
// reminder stays due however long ago its event was and however long its
// lead time is. Derived events are only due up to their own date, so they
// are projected over [asOf, asOf + longest kind lead time].
func (c *Controller) DueReminders(ctx context.Context, asOf Date, roster []Client) ([]Event, error) {
	derived := c.Projector.Project(roster, Window{Start: asOf, End: asOf.AddDays(MaxKindLeadDays())})

	pending, err := c.Store.PendingReminders(ctx, asOf)
	if err != nil {
		return nil, err
	}
	events := derived
	for _, ev := range pending {
		if !ev.IsRecurring() {
			events = append(events, ev)
			continue
		}
		// Occurrences later than asOf + lead have not triggered yet.
		w := Window{Start: ev.Date, End: asOf.AddDays(ev.Reminder.LeadTimeDays)}
		events = append(events, ExpandSeries(ev, w)...)
	}
	return Reminders{Store: c.Store}.Due(events, asOf), nil
}

// Upcoming is one entry of the "next events" list.
type Upcoming struct {
	Event     Event
	DaysUntil int
}

// Upcoming lists events in [from, from+days] with their distance from from.
func (c *Controller) Upcoming(ctx context.Context, from Date, days int, roster []Client) ([]Upcoming, error) {
	if days < 0 {
		return nil, invalid("days", "must not be negative")
	}
	events, err := c.EventsIn(ctx, Window{Start: from, End: from.AddDays(days)}, roster)
	if err != nil {
		return nil, err
	}
	out := make([]Upcoming, len(events))
	for i, ev := range events {
		out[i] = Upcoming{Event: ev, DaysUntil: from.DaysUntil(ev.Date)}
	}
	return out, nil
}

// YearSummary counts events per month of year (index 0 = January).
func (c *Controller) YearSummary(ctx context.Context, year int, roster []Client) ([12]int, error) {
	var counts [12]int
	w := Window{Start: NewDate(year, 1, 1), End: NewDate(year, 12, 31)}
	events, err := c.EventsIn(ctx, w, roster)
	if err != nil {
		return counts, err
	}
	for _, ev := range events {
		counts[ev.Date.Month-1]++
	}
	return counts, nil
}

// =============================================================================
// MUTATIONS
// =============================================================================

func (c *Controller) CreateEvent(ctx context.Context, d Draft) (Event, error) {
	if err := ValidateDraft(d); err != nil {
		return Event{}, err
	}
	return c.Store.Create(ctx, d)
}

func (c *Controller) UpdateEvent(ctx context.Context, id string, p Patch) (Event, error) {
	target, err := storedID(id)
	if err != nil {
		return Event{}, err
	}
	return c.Store.Update(ctx, target, p)
}

func (c *Controller) DeleteEvent(ctx context.Context, id string) error {
	target, err := storedID(id)
	if err != nil {
		return err
	}
	return c.Store.Delete(ctx, target)
}

func (c *Controller) AcknowledgeReminder(ctx context.Context, id string) error {
	return Reminders{Store: c.Store}.Acknowledge(ctx, id)
}

// storedID maps a caller-supplied id to the stored row it addresses.
func storedID(id string) (string, error) {
	if origin := OriginOfID(id); origin.IsDerived() {
		return "", &DerivedEventImmutableError{ID: id, Origin: origin}
	}
	if seriesID, _, ok := SplitOccurrenceID(id); ok {
		return seriesID, nil
	}
	return id, nil
}

// =============================================================================
// VIEW - Cell assignment and local merge
// =============================================================================

func (v *View) assign() {
	index := make(map[Date]int, len(v.Cells))
	for i := range v.Cells {
		v.Cells[i].Events = nil
		if d := v.Cells[i].Date; d != nil {
			index[*d] = i
		}
	}
	for _, ev := range v.Events {
		if i, ok := index[ev.Date]; ok {
			v.Cells[i].Events = append(v.Cells[i].Events, ev)
		}
	}
	for i := range v.Cells {
		sortWithinDay(v.Cells[i].Events)
	}
}

// Upsert places a just-created or just-updated event into the view without
// a re-query. An event moved outside the window, or no longer matching the
// view's filters, is dropped from it; a recurring series is expanded over
// the window.
func (v *View) Upsert(ev Event) {
	v.removeID(ev.ID)
	v.Events = append(v.Events, filterEvents(ExpandSeries(ev, v.Window), v.Kinds, v.Subject)...)
	SortEvents(v.Events)
	v.assign()
}

// Remove drops an event (or every occurrence of a series) from the view.
func (v *View) Remove(id string) {
	v.removeID(id)
	v.assign()
}

func (v *View) removeID(id string) {
	out := v.Events[:0]
	for _, ev := range v.Events {
		if ev.ID == id || ev.SeriesID == id {
			continue
		}
		out = append(out, ev)
	}
	v.Events = out
}

func sortWithinDay(events []Event) {
	sort.SliceStable(events, func(i, j int) bool { return compareWithinDay(events[i], events[j]) < 0 })
}

func filterEvents(events []Event, kinds []Kind, subject string) []Event {
	subject = strings.ToLower(strings.TrimSpace(subject))
	if len(kinds) == 0 && subject == "" {
		return events
	}
	allowed := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		allowed[k] = true
	}
	out := make([]Event, 0, len(events))
	for _, ev := range events {
		if len(allowed) > 0 && !allowed[ev.Kind] {
			continue
		}
		if subject != "" {
			if ev.Subject == nil {
				continue
			}
			if strings.ToLower(ev.Subject.ID) != subject && !strings.Contains(strings.ToLower(ev.Subject.Name), subject) {
				continue
			}
		}
		out = append(out, ev)
	}
	return out
}

// =============================================================================
// VIEW TRACKER
// =============================================================================

// ViewTracker hands out increasing generations to one UI consumer (a tab, a
// widget). Safe for concurrent use.
type ViewTracker struct {
	gen atomic.Uint64
}

// Begin starts a request and returns its generation.
func (t *ViewTracker) Begin() uint64 { return t.gen.Add(1) }

// IsCurrent reports whether gen is still the newest request.
func (t *ViewTracker) IsCurrent(gen uint64) bool { return t.gen.Load() == gen }
