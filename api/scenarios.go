/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	coaching data for demos and UI work. Each scenario creates clients and
	user events that exercise specific agenda features.

AVAILABLE SCENARIOS:

	new-client:     One client: upcoming birthday, plan expiring soon, first appointments
	busy-week:      Several clients, a weekly group session, mixed kinds this week
	renewals:       Plans expiring over the next weeks, paused plans not projected
	leap-birthday:  Client born on Feb 29 (Feb 28 in common years)

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Save roster clients
 3. Create user events through the controller (same validation as the API)

Dates are relative to "today" in the handler's location, so a scenario
always looks current.

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "busy-week"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx, today)
 3. Add it to scenarioLoaders

NOTE:

	Scenarios reset the database. Handler.Resetter is only set when the
	server runs with scenarios enabled.

SEE ALSO:
  - handlers.go: Handler and routes
  - store/sqlite/sqlite.go: Reset
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/andenutri/agenda-engine/agenda"
)

// Resetter clears all stored data. The SQLite store implements it.
type Resetter interface {
	Reset(ctx context.Context) error
}

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "new-client",
		Name:        "New Client",
		Description: "One client with a birthday next week, a plan expiring in 10 days and two appointments",
		Category:    "roster",
	},
	{
		ID:          "busy-week",
		Name:        "Busy Week",
		Description: "Weekly group session plus appointments, follow-ups and reassessments this week",
		Category:    "agenda",
	},
	{
		ID:          "renewals",
		Name:        "Renewals",
		Description: "Active plans expiring over the next month; paused plans are not projected",
		Category:    "roster",
	},
	{
		ID:          "leap-birthday",
		Name:        "Leap-Day Birthday",
		Description: "Client born on Feb 29, celebrated on Feb 28 in common years",
		Category:    "roster",
	},
}

type scenarioLoader func(h *Handler, ctx context.Context, today agenda.Date) error

var scenarioLoaders = map[string]scenarioLoader{
	"new-client":    (*Handler).loadNewClientScenario,
	"busy-week":     (*Handler).loadBusyWeekScenario,
	"renewals":      (*Handler).loadRenewalsScenario,
	"leap-birthday": (*Handler).loadLeapBirthdayScenario,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.scenarioMu.Lock()
	current := h.currentScenario
	h.scenarioMu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current, Description: "Currently loaded scenario"})
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	if h.Resetter == nil {
		writeError(w, http.StatusNotFound, "Scenarios are disabled", nil)
		return
	}
	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	load, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	h.scenarioMu.Lock()
	defer h.scenarioMu.Unlock()

	ctx := r.Context()
	if err := h.Resetter.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	if err := load(h, ctx, h.today()); err != nil {
		h.Log.Error("scenario load failed", "scenario", req.ScenarioID, "error", err)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	h.currentScenario = req.ScenarioID
	h.Log.Info("scenario loaded", "scenario", req.ScenarioID)

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadNewClientScenario(ctx context.Context, today agenda.Date) error {
	// Born 35 years before next week; 90-day plan bought 80 days ago.
	birth := today.AddDays(5).AddMonths(-35 * 12)
	purchase := today.AddDays(-80)
	reassess := today.AddDays(30)
	ana := agenda.Client{
		ID:               "client-ana",
		Name:             "Ana Souza",
		BirthDate:        &birth,
		PurchaseDate:     &purchase,
		PlanDurationDays: intPtr(90),
		PlanStatus:       agenda.PlanActive,
		ReassessmentDate: &reassess,
		RenewalAmount:    decimalPtr("450.00"),
	}
	if err := h.Roster.SaveClient(ctx, ana); err != nil {
		return err
	}

	subject := &agenda.SubjectRef{ID: ana.ID, Name: ana.Name}
	return h.createAll(ctx, []agenda.Draft{
		{Title: "Primeira consulta", Date: today.AddDays(1), Time: &agenda.Clock{Hour: 9}, Kind: agenda.KindAppointment, Subject: subject},
		{Title: "Retorno", Date: today.AddDays(15), Time: &agenda.Clock{Hour: 9}, Kind: agenda.KindAppointment, Subject: subject},
		{Title: "Enviar plano alimentar", Date: today.AddDays(2), Kind: agenda.KindFollowUp, Subject: subject},
	})
}

func (h *Handler) loadBusyWeekScenario(ctx context.Context, today agenda.Date) error {
	clients := []agenda.Client{
		{ID: "client-bia", Name: "Beatriz Lima", PlanStatus: agenda.PlanActive},
		{ID: "client-caio", Name: "Caio Ramos", PlanStatus: agenda.PlanActive},
		{ID: "client-duda", Name: "Duda Alves", PlanStatus: agenda.PlanInactive},
	}
	birth := today.AddDays(3).AddMonths(-28 * 12)
	clients[0].BirthDate = &birth
	reassess := today.AddDays(2)
	clients[1].ReassessmentDate = &reassess
	for _, c := range clients {
		if err := h.Roster.SaveClient(ctx, c); err != nil {
			return err
		}
	}

	weekStart := today.StartOfWeek(h.Agenda.Grid.WeekStart)
	ref := func(c agenda.Client) *agenda.SubjectRef { return &agenda.SubjectRef{ID: c.ID, Name: c.Name} }

	if err := h.createAll(ctx, []agenda.Draft{
		{Title: "Grupo de caminhada", Date: weekStart.AddDays(2), Time: &agenda.Clock{Hour: 7}, Kind: agenda.KindOther, Recurrence: "FREQ=WEEKLY;COUNT=12"},
		{Title: "Consulta", Date: weekStart.AddDays(1), Time: &agenda.Clock{Hour: 10}, Kind: agenda.KindAppointment, Subject: ref(clients[0])},
		{Title: "Consulta", Date: weekStart.AddDays(1), Time: &agenda.Clock{Hour: 14, Minute: 30}, Kind: agenda.KindAppointment, Subject: ref(clients[1])},
		{Title: "Ligar para reativar plano", Date: weekStart.AddDays(3), Kind: agenda.KindFollowUp, Subject: ref(clients[2])},
		{Title: "Reunião de equipe", Date: weekStart.AddDays(4), Time: &agenda.Clock{Hour: 18}, Kind: agenda.KindOther, NoReminder: true},
	}); err != nil {
		return err
	}

	// One reminder already seen.
	ev, err := h.Agenda.CreateEvent(ctx, agenda.Draft{
		Title: "Pedir exames", Date: today, Kind: agenda.KindFollowUp, Subject: ref(clients[0]),
	})
	if err != nil {
		return err
	}
	return h.Agenda.AcknowledgeReminder(ctx, ev.ID)
}

func (h *Handler) loadRenewalsScenario(ctx context.Context, today agenda.Date) error {
	plans := []struct {
		id, name  string
		boughtAgo int
		duration  int
		status    agenda.PlanStatus
		amount    string
	}{
		{"client-eva", "Eva Martins", 85, 90, agenda.PlanActive, "450.00"},
		{"client-fabio", "Fábio Costa", 170, 180, agenda.PlanActive, "820.00"},
		{"client-gabi", "Gabi Rocha", 20, 30, agenda.PlanActive, "160.00"},
		{"client-hugo", "Hugo Pires", 85, 90, agenda.PlanPaused, "450.00"},
		{"client-iris", "Íris Nunes", 400, 365, agenda.PlanExpired, "1500.00"},
	}
	for _, p := range plans {
		purchase := today.AddDays(-p.boughtAgo)
		c := agenda.Client{
			ID:               p.id,
			Name:             p.name,
			PurchaseDate:     &purchase,
			PlanDurationDays: intPtr(p.duration),
			PlanStatus:       p.status,
			RenewalAmount:    decimalPtr(p.amount),
		}
		if err := h.Roster.SaveClient(ctx, c); err != nil {
			return err
		}
	}

	// A renewal call ahead of the nearest expiration.
	return h.createAll(ctx, []agenda.Draft{
		{
			Title:    "Conversa de renovação",
			Date:     today.AddDays(3),
			Time:     &agenda.Clock{Hour: 11},
			Kind:     agenda.KindFollowUp,
			Subject:  &agenda.SubjectRef{ID: "client-eva", Name: "Eva Martins"},
			Reminder: &agenda.Reminder{LeadTimeDays: 1},
		},
	})
}

func (h *Handler) loadLeapBirthdayScenario(ctx context.Context, today agenda.Date) error {
	birth := agenda.NewDate(2000, 2, 29)
	return h.Roster.SaveClient(ctx, agenda.Client{
		ID:         "client-leo",
		Name:       "Leo Bissexto",
		BirthDate:  &birth,
		PlanStatus: agenda.PlanActive,
	})
}

func (h *Handler) createAll(ctx context.Context, drafts []agenda.Draft) error {
	for _, d := range drafts {
		if _, err := h.Agenda.CreateEvent(ctx, d); err != nil {
			return fmt.Errorf("create %q: %w", d.Title, err)
		}
	}
	return nil
}

func intPtr(n int) *int { return &n }

func decimalPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}
