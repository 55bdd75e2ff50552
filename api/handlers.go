/*
handlers.go - HTTP API handlers for the agenda engine

PURPOSE:
  Exposes the agenda controller and the client roster via REST API. Handles
  HTTP request/response and JSON, and delegates every rule to the agenda
  package.

ENDPOINTS:
  Agenda:
    GET    /api/agenda                 Month/week/day grid (view, date, kind, client)
    GET    /api/reminders              Reminders due on as_of (default today)
    GET    /api/upcoming               Events in the next N days with days_until
    GET    /api/summary/{year}         Event count per month

  Events:
    GET    /api/events                 Stored events between from and to
    POST   /api/events                 Create
    GET    /api/events/{id}            Get (occurrence ids included)
    PATCH  /api/events/{id}            Partial update
    DELETE /api/events/{id}            Delete
    POST   /api/events/{id}/acknowledge Acknowledge the reminder

  Calendar files:
    GET    /api/export.ics             iCalendar feed (derived events included)
    POST   /api/import                 Create events from an iCalendar body

  Scenarios (dev only):
    GET    /api/scenarios              List demo scenarios
    GET    /api/scenarios/current      Currently loaded scenario
    POST   /api/scenarios/load         Reset and load a scenario

  Clients:
    GET    /api/clients                List roster
    POST   /api/clients                Upsert roster record
    GET    /api/clients/{id}           Get
    DELETE /api/clients/{id}           Delete
    GET    /api/reassessment/{code}    Public reassessment form lookup

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, bad window
  - 404: Event or client not found
  - 409: Mutation of a derived event; superseded view request
  - 500: Internal errors

STALE VIEWS:
  Clients that navigate quickly send X-Agenda-Session. Each session gets an
  agenda.ViewTracker, and a superseded /api/agenda request answers 409 so
  the client drops it. Trackers live in an LRU of SetSessionCacheSize
  entries.

SECURITY NOTE:
  No authentication. The server is meant to sit behind the CRM's gateway.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - scheduler.go: Background reminder sweep
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/andenutri/agenda-engine/agenda"
	"github.com/andenutri/agenda-engine/ics"
	"github.com/andenutri/agenda-engine/logger"
)

const (
	// SessionHeader keys the per-client ViewTracker.
	SessionHeader = "X-Agenda-Session"

	defaultUpcomingDays = 7
	defaultExportDays   = 365
	defaultSessionCache = 1024
	maxImportBytes      = 5 << 20
)

// RosterStore is the client roster the projector reads.
type RosterStore interface {
	ListClients(ctx context.Context) ([]agenda.Client, error)
	GetClient(ctx context.Context, id string) (*agenda.Client, error)
	SaveClient(ctx context.Context, c agenda.Client) error
	DeleteClient(ctx context.Context, id string) error
	FindClientByReassessmentCode(ctx context.Context, code string) (*agenda.Client, error)
}

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Agenda *agenda.Controller
	Roster RosterStore
	Log    *logger.Logger

	// Location decides what "today" is and the wall clock of ICS times.
	Location *time.Location
	Now      func() time.Time

	// Sweeper is optional; when set, /health reports its last run.
	Sweeper *ReminderSweeper

	// Resetter enables the demo scenarios (see scenarios.go). Nil disables them.
	Resetter Resetter

	// trackers maps X-Agenda-Session to its ViewTracker. Bounded; an
	// evicted session starts over at generation 1.
	trackers *lru.Cache[string, *agenda.ViewTracker]

	scenarioMu      sync.Mutex
	currentScenario string
}

// NewHandler creates a handler over the controller and roster.
func NewHandler(ctrl *agenda.Controller, roster RosterStore, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.NewNop()
	}
	trackers, _ := lru.New[string, *agenda.ViewTracker](defaultSessionCache)
	return &Handler{
		Agenda:   ctrl,
		Roster:   roster,
		Log:      log,
		Location: time.UTC,
		Now:      time.Now,
		trackers: trackers,
	}
}

// SetSessionCacheSize bounds the number of tracked sessions. Existing
// trackers are dropped.
func (h *Handler) SetSessionCacheSize(n int) error {
	trackers, err := lru.New[string, *agenda.ViewTracker](n)
	if err != nil {
		return fmt.Errorf("session cache: %w", err)
	}
	h.trackers = trackers
	return nil
}

func (h *Handler) today() agenda.Date {
	return agenda.DateOf(h.Now().In(h.Location))
}

func (h *Handler) tracker(session string) *agenda.ViewTracker {
	if t, ok := h.trackers.Get(session); ok {
		return t
	}
	t := &agenda.ViewTracker{}
	if prev, ok, _ := h.trackers.PeekOrAdd(session, t); ok {
		return prev
	}
	return t
}

// =============================================================================
// AGENDA HANDLERS
// =============================================================================

// GetAgenda renders a grid.
// GET /api/agenda?view=month&date=2025-06-01&kind=birthday,appointment&client=ana
func (h *Handler) GetAgenda(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	anchor, err := h.dateParam(r, "date", h.today())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	kinds, err := parseKinds(q["kind"])
	if err != nil {
		writeDomainError(w, err)
		return
	}
	roster, err := h.Roster.ListClients(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load clients", err)
		return
	}

	req := agenda.ViewRequest{
		View:    agenda.Granularity(q.Get("view")),
		Anchor:  anchor,
		Roster:  roster,
		Kinds:   kinds,
		Subject: q.Get("client"),
	}

	var view agenda.View
	if session := r.Header.Get(SessionHeader); session != "" {
		view, err = h.Agenda.GetViewTracked(ctx, h.tracker(session), req)
	} else {
		view, err = h.Agenda.GetView(ctx, req)
	}
	if err != nil {
		h.fail(w, "get agenda", err)
		return
	}

	writeJSON(w, http.StatusOK, toViewDTO(view))
}

// ListReminders returns reminders due on as_of.
// GET /api/reminders?as_of=2025-06-14
func (h *Handler) ListReminders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	asOf, err := h.dateParam(r, "as_of", h.today())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	roster, err := h.Roster.ListClients(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load clients", err)
		return
	}
	due, err := h.Agenda.DueReminders(ctx, asOf, roster)
	if err != nil {
		h.fail(w, "due reminders", err)
		return
	}
	writeJSON(w, http.StatusOK, RemindersDTO{AsOf: asOf.String(), Reminders: toEventDTOs(due)})
}

// ListUpcoming returns events in [from, from+days].
// GET /api/upcoming?days=7&from=2025-06-01
func (h *Handler) ListUpcoming(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	from, err := h.dateParam(r, "from", h.today())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	days := defaultUpcomingDays
	if s := r.URL.Query().Get("days"); s != "" {
		if days, err = strconv.Atoi(s); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid days", err)
			return
		}
	}
	roster, err := h.Roster.ListClients(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load clients", err)
		return
	}
	upcoming, err := h.Agenda.Upcoming(ctx, from, days, roster)
	if err != nil {
		h.fail(w, "upcoming", err)
		return
	}
	dtos := make([]UpcomingDTO, len(upcoming))
	for i, u := range upcoming {
		dtos[i] = UpcomingDTO{EventDTO: toEventDTO(u.Event), DaysUntil: u.DaysUntil}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetSummary returns per-month counts for a year.
// GET /api/summary/2025
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil || year < 1 || year > 9999 {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return
	}
	roster, err := h.Roster.ListClients(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load clients", err)
		return
	}
	months, err := h.Agenda.YearSummary(ctx, year, roster)
	if err != nil {
		h.fail(w, "year summary", err)
		return
	}
	total := 0
	for _, n := range months {
		total += n
	}
	writeJSON(w, http.StatusOK, SummaryDTO{Year: year, Months: months, Total: total})
}

// =============================================================================
// EVENT HANDLERS
// =============================================================================

// ListEvents returns stored events between from and to (default: this month).
// GET /api/events?from=2025-06-01&to=2025-06-30
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	today := h.today()
	win, err := h.windowParams(r, today.StartOfMonth(), today.EndOfMonth())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	events, err := h.Agenda.Store.Query(r.Context(), win)
	if err != nil {
		h.fail(w, "list events", err)
		return
	}
	writeJSON(w, http.StatusOK, toEventDTOs(events))
}

// CreateEvent creates a user event.
// POST /api/events
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req CreateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	draft, err := req.toDraft()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	ev, err := h.Agenda.CreateEvent(r.Context(), draft)
	if err != nil {
		h.fail(w, "create event", err)
		return
	}
	h.Log.Info("event created", "id", ev.ID, "kind", ev.Kind, "date", ev.Date.String())
	writeJSON(w, http.StatusCreated, toEventDTO(ev))
}

// GetEvent returns a single stored event or occurrence.
// GET /api/events/{id}
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := h.Agenda.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "get event", err)
		return
	}
	writeJSON(w, http.StatusOK, toEventDTO(ev))
}

// UpdateEvent applies a partial update.
// PATCH /api/events/{id}
func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	patch, err := req.toPatch()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	ev, err := h.Agenda.UpdateEvent(r.Context(), id, patch)
	if err != nil {
		h.fail(w, "update event", err)
		return
	}
	writeJSON(w, http.StatusOK, toEventDTO(ev))
}

// DeleteEvent removes a user event (or a whole series).
// DELETE /api/events/{id}
func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Agenda.DeleteEvent(r.Context(), id); err != nil {
		h.fail(w, "delete event", err)
		return
	}
	h.Log.Info("event deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

// AcknowledgeEvent marks a reminder as shown. Repeating it is harmless.
// POST /api/events/{id}/acknowledge
func (h *Handler) AcknowledgeEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Agenda.AcknowledgeReminder(r.Context(), id); err != nil {
		h.fail(w, "acknowledge reminder", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "acknowledged": true})
}

// =============================================================================
// CALENDAR FILES
// =============================================================================

// ExportICS renders events and projections as an iCalendar feed.
// GET /api/export.ics?from=2025-01-01&to=2025-12-31
func (h *Handler) ExportICS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	today := h.today()
	win, err := h.windowParams(r, today.AddDays(-defaultExportDays), today.AddDays(defaultExportDays))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	roster, err := h.Roster.ListClients(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load clients", err)
		return
	}
	events, err := h.Agenda.EventsIn(ctx, win, roster)
	if err != nil {
		h.fail(w, "export", err)
		return
	}
	// Series are written once with their RRULE, not as occurrences.
	events = h.withSeries(ctx, events)

	body := ics.Export(events, ics.ExportOptions{
		Name:     "Agenda",
		Location: h.Location,
		Now:      h.Now(),
	})
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="agenda.ics"`)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(body))
}

// withSeries swaps expanded occurrences for their stored series row.
func (h *Handler) withSeries(ctx context.Context, events []agenda.Event) []agenda.Event {
	out := make([]agenda.Event, 0, len(events))
	seen := make(map[string]bool)
	for _, ev := range events {
		if ev.SeriesID == "" {
			out = append(out, ev)
			continue
		}
		if seen[ev.SeriesID] {
			continue
		}
		seen[ev.SeriesID] = true
		series, err := h.Agenda.Store.Get(ctx, ev.SeriesID)
		if err != nil {
			h.Log.Warn("export: series lookup failed", "series_id", ev.SeriesID, "error", err)
			continue
		}
		out = append(out, series)
	}
	return out
}

// ImportICS creates one event per VEVENT of the request body.
// POST /api/import
func (h *Handler) ImportICS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, err := ics.Import(http.MaxBytesReader(w, r.Body, maxImportBytes), h.Location)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid calendar", err)
		return
	}

	resp := ImportResponse{Created: []EventDTO{}, Skipped: res.Skipped}
	if resp.Skipped == nil {
		resp.Skipped = []string{}
	}
	for _, d := range res.Drafts {
		ev, err := h.Agenda.CreateEvent(ctx, d)
		if err != nil {
			if !agenda.IsClientError(err) {
				h.fail(w, "import", err)
				return
			}
			resp.Failed = append(resp.Failed, fmt.Sprintf("%s (%s): %v", d.Title, d.Date, err))
			continue
		}
		resp.Created = append(resp.Created, toEventDTO(ev))
	}
	h.Log.Info("calendar imported", "created", len(resp.Created), "skipped", len(resp.Skipped), "failed", len(resp.Failed))
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// CLIENT HANDLERS
// =============================================================================

// ListClients returns the roster.
func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.Roster.ListClients(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list clients", err)
		return
	}
	dtos := make([]ClientDTO, len(clients))
	for i, c := range clients {
		dtos[i] = toClientDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SaveClient inserts or replaces a roster record.
func (h *Handler) SaveClient(w http.ResponseWriter, r *http.Request) {
	var req ClientDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	c, err := req.toClient()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := h.Roster.SaveClient(r.Context(), c); err != nil {
		h.fail(w, "save client", err)
		return
	}
	writeJSON(w, http.StatusCreated, toClientDTO(c))
}

// GetClient returns a single roster record.
func (h *Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	c, err := h.Roster.GetClient(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get client", err)
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "Client not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toClientDTO(*c))
}

// DeleteClient removes a roster record; its derived events go with it.
func (h *Handler) DeleteClient(w http.ResponseWriter, r *http.Request) {
	if err := h.Roster.DeleteClient(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete client", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetReassessment resolves a public form code to the minimum the form shows.
// GET /api/reassessment/{code}
func (h *Handler) GetReassessment(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	c, err := h.Roster.FindClientByReassessmentCode(r.Context(), code)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to look up code", err)
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "Unknown reassessment code", nil)
		return
	}
	writeJSON(w, http.StatusOK, ReassessmentDTO{
		ClientID:         c.ID,
		Name:             c.Name,
		Code:             agenda.ReassessmentCode(*c),
		ReassessmentDate: dateString(c.ReassessmentDate),
	})
}

// Health reports liveness and the last reminder sweep.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthDTO{Status: "ok"}
	if h.Sweeper != nil {
		if last, ok := h.Sweeper.Last(); ok {
			sweep := &SweepDTO{RanAt: last.RanAt.Format(time.RFC3339), AsOf: last.AsOf.String(), Due: len(last.Due)}
			if last.Err != nil {
				sweep.Error = last.Err.Error()
			}
			resp.LastSweep = sweep
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) dateParam(r *http.Request, name string, def agenda.Date) (agenda.Date, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	d, err := agenda.ParseDate(s)
	if err != nil {
		return agenda.Date{}, &agenda.ValidationError{Field: name, Reason: err.Error()}
	}
	return d, nil
}

func (h *Handler) windowParams(r *http.Request, defStart, defEnd agenda.Date) (agenda.Window, error) {
	start, err := h.dateParam(r, "from", defStart)
	if err != nil {
		return agenda.Window{}, err
	}
	end, err := h.dateParam(r, "to", defEnd)
	if err != nil {
		return agenda.Window{}, err
	}
	return agenda.NewWindow(start, end)
}

// parseKinds accepts repeated and comma-separated kind parameters.
func parseKinds(values []string) ([]agenda.Kind, error) {
	var kinds []agenda.Kind
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			k, err := agenda.ParseKind(part)
			if err != nil {
				return nil, err
			}
			kinds = append(kinds, k)
		}
	}
	return kinds, nil
}

// fail writes err with its domain status and logs server-side failures.
func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if status := statusOf(err); status == http.StatusInternalServerError {
		h.Log.Error(op+" failed", "error", err)
	}
	writeDomainError(w, err)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, agenda.ErrStaleView), errors.Is(err, agenda.ErrDerivedEventImmutable):
		return http.StatusConflict
	case agenda.IsNotFound(err):
		return http.StatusNotFound
	case agenda.IsClientError(err):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeDomainError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	message := http.StatusText(status)
	switch status {
	case http.StatusBadRequest:
		message = "Invalid request"
	case http.StatusNotFound:
		message = "Event not found"
	case http.StatusConflict:
		message = "Conflict"
	}
	writeError(w, status, message, err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
