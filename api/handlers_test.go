/*
handlers_test.go - HTTP tests for the agenda API

Tests for:
- Event CRUD and patch semantics over HTTP
- Status mapping (400 validation, 404 unknown, 409 derived)
- Agenda views with roster projections
- Reminders, upcoming, summary
- iCalendar export/import
- Roster and reassessment lookup
- Health with the reminder sweeper
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andenutri/agenda-engine/agenda"
	"github.com/andenutri/agenda-engine/logger"
	"github.com/andenutri/agenda-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type testServer struct {
	handler *Handler
	router  http.Handler
	store   *sqlite.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctrl := agenda.NewController(store, agenda.GridOptions{})
	h := NewHandler(ctrl, store, logger.NewNop())
	h.Now = func() time.Time { return testNow }

	return &testServer{handler: h, router: NewRouter(h, RouterOptions{}), store: store}
}

func (s *testServer) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

const anaJSON = `{
	"id": "client-ana",
	"name": "Ana Souza",
	"birth_date": "1990-06-15",
	"purchase_date": "2025-01-01",
	"plan_duration_days": 90,
	"plan_status": "active"
}`

func (s *testServer) saveAna(t *testing.T) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/clients", anaJSON)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

// =============================================================================
// EVENT CRUD
// =============================================================================

func TestEvents_CRUD(t *testing.T) {
	// GIVEN: An empty agenda
	// WHEN: Creating, reading, patching and deleting an appointment
	// THEN: Each step answers with the documented status and body

	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/events", `{"title":"Consulta","date":"2025-03-10","time":"09:30","reminder":"2d"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[EventDTO](t, rec)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, agenda.KindAppointment, created.Kind)
	assert.Equal(t, "09:30", created.Time)
	require.NotNil(t, created.Reminder)
	assert.Equal(t, 2, created.Reminder.LeadTimeDays)

	rec = s.do(t, http.MethodGet, "/api/events/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Consulta", decode[EventDTO](t, rec).Title)

	rec = s.do(t, http.MethodPatch, "/api/events/"+created.ID, `{"title":"Retorno","clear_time":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	patched := decode[EventDTO](t, rec)
	assert.Equal(t, "Retorno", patched.Title)
	assert.Empty(t, patched.Time)
	assert.Equal(t, "2025-03-10", patched.Date, "untouched fields survive")

	rec = s.do(t, http.MethodGet, "/api/events?from=2025-03-01&to=2025-03-31", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]EventDTO](t, rec), 1)

	rec = s.do(t, http.MethodDelete, "/api/events/"+created.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/events/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/events/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEvents_ValidationIs400(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"title":`},
		{"missing title", `{"date":"2025-03-10"}`},
		{"missing date", `{"title":"x"}`},
		{"bad date", `{"title":"x","date":"2025-02-30"}`},
		{"bad time", `{"title":"x","date":"2025-03-10","time":"25:00"}`},
		{"unknown kind", `{"title":"x","date":"2025-03-10","kind":"party"}`},
		{"bad reminder", `{"title":"x","date":"2025-03-10","reminder":"soon"}`},
		{"bad recurrence", `{"title":"x","date":"2025-03-10","recurrence":"FREQ=SOMETIMES"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/events", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode[ErrorResponse](t, rec).Error)
		})
	}
}

func TestEvents_KindPatchIs400(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/events", `{"title":"Consulta","date":"2025-03-10"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[EventDTO](t, rec).ID

	rec = s.do(t, http.MethodPatch, "/api/events/"+id, `{"kind":"other"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEvents_AcknowledgeIsIdempotent(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/events", `{"title":"Consulta","date":"2025-03-10"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[EventDTO](t, rec).ID

	for i := 0; i < 2; i++ {
		rec = s.do(t, http.MethodPost, "/api/events/"+id+"/acknowledge", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	rec = s.do(t, http.MethodGet, "/api/events/"+id, "")
	assert.True(t, decode[EventDTO](t, rec).Acknowledged)
}

// =============================================================================
// AGENDA VIEWS & DERIVED EVENTS
// =============================================================================

func TestAgenda_MonthViewIncludesProjections(t *testing.T) {
	// GIVEN: Ana, whose 90-day plan bought 2025-01-01 expires 2025-04-01
	// WHEN: Requesting the March and April 2025 month views
	// THEN: March spans 03-01..03-31 with no events; April holds the expiration

	s := newTestServer(t)
	s.saveAna(t)

	rec := s.do(t, http.MethodGet, "/api/agenda?view=month&date=2025-03-01", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	view := decode[ViewDTO](t, rec)

	assert.Equal(t, agenda.GranularityMonth, view.View)
	assert.Equal(t, "2025-03-01", view.Start)
	assert.Equal(t, "2025-03-31", view.End)
	assert.Len(t, view.Cells, 37, "6 padding + 31 days")
	assert.Empty(t, view.Events)

	rec = s.do(t, http.MethodGet, "/api/agenda?view=month&date=2025-04-01", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	view = decode[ViewDTO](t, rec)

	assert.Equal(t, "2025-04-01", view.Start)
	assert.Equal(t, "2025-04-30", view.End)
	assert.Len(t, view.Cells, 32, "2 padding + 30 days")

	require.Len(t, view.Events, 1)
	assert.Equal(t, agenda.KindPlanExpiration, view.Events[0].Kind)
	assert.Equal(t, "2025-04-01", view.Events[0].Date)
	assert.Equal(t, agenda.OriginDerivedExpiration, view.Events[0].Origin)
}

func TestAgenda_FiltersAndBadParams(t *testing.T) {
	s := newTestServer(t)
	s.saveAna(t)
	rec := s.do(t, http.MethodPost, "/api/events", `{"title":"Consulta","date":"2025-06-10"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/agenda?date=2025-06-01&kind=birthday", "")
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[ViewDTO](t, rec)
	require.Len(t, view.Events, 1)
	assert.Equal(t, agenda.KindBirthday, view.Events[0].Kind)

	rec = s.do(t, http.MethodGet, "/api/agenda?date=2025-06-01&kind=appointment,birthday", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode[ViewDTO](t, rec).Total)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/agenda?kind=party", "").Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/agenda?view=year", "").Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/agenda?date=tomorrow", "").Code)
}

func TestAgenda_SessionHeaderTracksGenerations(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/agenda?view=week&date=2025-03-05", "", SessionHeader, "tab-1")
	require.Equal(t, http.StatusOK, rec.Code)
	first := decode[ViewDTO](t, rec).Generation

	rec = s.do(t, http.MethodGet, "/api/agenda?view=week&date=2025-03-12", "", SessionHeader, "tab-1")
	require.Equal(t, http.StatusOK, rec.Code)
	second := decode[ViewDTO](t, rec).Generation

	rec = s.do(t, http.MethodGet, "/api/agenda?view=week&date=2025-03-12", "", SessionHeader, "tab-2")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, uint64(1), first)
	assert.Equal(t, uint64(2), second)
	assert.Equal(t, uint64(1), decode[ViewDTO](t, rec).Generation, "sessions are independent")
}

func TestAgenda_SessionTrackersAreBounded(t *testing.T) {
	// GIVEN: Room for two sessions
	// WHEN: A third session arrives
	// THEN: The least recently used one is evicted and starts over

	s := newTestServer(t)
	require.NoError(t, s.handler.SetSessionCacheSize(2))
	assert.Error(t, s.handler.SetSessionCacheSize(0))

	view := func(session string) uint64 {
		rec := s.do(t, http.MethodGet, "/api/agenda?view=day&date=2025-03-05", "", SessionHeader, session)
		require.Equal(t, http.StatusOK, rec.Code)
		return decode[ViewDTO](t, rec).Generation
	}

	assert.Equal(t, uint64(1), view("tab-a"))
	assert.Equal(t, uint64(1), view("tab-b"))
	assert.Equal(t, uint64(2), view("tab-a"))
	assert.Equal(t, uint64(1), view("tab-c"))
	assert.Equal(t, 2, s.handler.trackers.Len())

	assert.Equal(t, uint64(3), view("tab-a"), "recently used session kept")
	assert.Equal(t, uint64(1), view("tab-b"), "evicted session starts over")
}

func TestAgenda_DerivedEventsAreReadOnly(t *testing.T) {
	// GIVEN: The id of a projected plan expiration
	// WHEN: Patching, deleting or acknowledging it
	// THEN: 409 each time

	s := newTestServer(t)
	s.saveAna(t)

	rec := s.do(t, http.MethodGet, "/api/agenda?view=day&date=2025-04-01", "")
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[ViewDTO](t, rec)
	require.Len(t, view.Events, 1)
	id := view.Events[0].ID

	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPatch, "/api/events/"+id, `{"title":"x"}`).Code)
	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodDelete, "/api/events/"+id, "").Code)
	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, "/api/events/"+id+"/acknowledge", "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/events/"+id, "").Code)
}

// =============================================================================
// REMINDERS, UPCOMING, SUMMARY
// =============================================================================

func TestReminders(t *testing.T) {
	s := newTestServer(t)
	s.saveAna(t)
	rec := s.do(t, http.MethodPost, "/api/events", `{"title":"Consulta","date":"2025-03-10","reminder":"2 dias"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/reminders?as_of=2025-03-08", "")
	require.Equal(t, http.StatusOK, rec.Code)
	due := decode[RemindersDTO](t, rec)
	assert.Equal(t, "2025-03-08", due.AsOf)
	require.Len(t, due.Reminders, 1)
	assert.Equal(t, "Consulta", due.Reminders[0].Title)

	rec = s.do(t, http.MethodGet, "/api/reminders?as_of=2025-03-26", "")
	require.Equal(t, http.StatusOK, rec.Code)
	due = decode[RemindersDTO](t, rec)
	require.Len(t, due.Reminders, 2, "consulta still unacknowledged + plan expiration")
	assert.Equal(t, agenda.KindPlanExpiration, due.Reminders[1].Kind)
}

func TestUpcomingAndSummary(t *testing.T) {
	s := newTestServer(t)
	s.saveAna(t)

	rec := s.do(t, http.MethodGet, "/api/upcoming?from=2025-03-28&days=7", "")
	require.Equal(t, http.StatusOK, rec.Code)
	upcoming := decode[[]UpcomingDTO](t, rec)
	require.Len(t, upcoming, 1)
	assert.Equal(t, 4, upcoming[0].DaysUntil)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/upcoming?days=x", "").Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/upcoming?days=-3", "").Code)

	rec = s.do(t, http.MethodGet, "/api/summary/2025", "")
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[SummaryDTO](t, rec)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Months[3])
	assert.Equal(t, 1, summary.Months[5])

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/summary/abc", "").Code)
}

// =============================================================================
// CALENDAR FILES
// =============================================================================

func TestExportImport(t *testing.T) {
	// GIVEN: A weekly series, a single event and a roster birthday
	// WHEN: Exporting and importing the feed into a fresh server
	// THEN: The series and the event come back; the birthday is skipped

	s := newTestServer(t)
	s.saveAna(t)
	rec := s.do(t, http.MethodPost, "/api/events", `{"title":"Caminhada","date":"2025-03-03","recurrence":"FREQ=WEEKLY;COUNT=4","kind":"other"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = s.do(t, http.MethodPost, "/api/events", `{"title":"Consulta","date":"2025-03-10","time":"14:00"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/export.ics?from=2025-03-01&to=2025-06-30", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/calendar")
	feed := rec.Body.String()
	assert.Equal(t, 4, strings.Count(feed, "BEGIN:VEVENT"), "series once, consulta, expiration, birthday")
	assert.Contains(t, feed, "RRULE:FREQ=WEEKLY;COUNT=4")

	other := newTestServer(t)
	rec = other.do(t, http.MethodPost, "/api/import", feed)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[ImportResponse](t, rec)
	assert.Len(t, res.Created, 2)
	assert.Len(t, res.Skipped, 2)
	assert.Empty(t, res.Failed)

	rec = other.do(t, http.MethodGet, "/api/agenda?date=2025-03-01", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, decode[ViewDTO](t, rec).Total, "4 occurrences + consulta")
}

// =============================================================================
// CLIENTS
// =============================================================================

func TestClients(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/clients", anaJSON)
	require.Equal(t, http.StatusCreated, rec.Code)
	saved := decode[ClientDTO](t, rec)
	assert.Equal(t, "2025-04-01", saved.PlanExpiration)
	assert.Equal(t, "CLIENT-A", saved.ReassessmentCode)

	rec = s.do(t, http.MethodGet, "/api/clients", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]ClientDTO](t, rec), 1)

	rec = s.do(t, http.MethodGet, "/api/reassessment/client-a", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Ana Souza", decode[ReassessmentDTO](t, rec).Name)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/reassessment/NOPE", "").Code)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/clients", `{"id":"x"}`).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/clients", `{"id":"x","name":"X","birth_date":"soon"}`).Code)

	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/api/clients/client-ana", "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/clients/client-ana", "").Code)
}

// =============================================================================
// HEALTH
// =============================================================================

func TestHealth_ReportsLastSweep(t *testing.T) {
	s := newTestServer(t)
	s.saveAna(t)

	rec := s.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decode[HealthDTO](t, rec).LastSweep)

	sweeper := NewReminderSweeper(s.handler.Agenda, s.store, nil, "")
	sweeper.Now = func() time.Time { return time.Date(2025, 3, 30, 8, 0, 0, 0, time.UTC) }
	sweeper.Sweep(context.Background())
	s.handler.Sweeper = sweeper

	rec = s.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[HealthDTO](t, rec)
	require.NotNil(t, health.LastSweep)
	assert.Equal(t, "2025-03-30", health.LastSweep.AsOf)
	assert.Equal(t, 1, health.LastSweep.Due)
	assert.Empty(t, health.LastSweep.Error)
}
