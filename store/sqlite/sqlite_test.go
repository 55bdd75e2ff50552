package sqlite_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andenutri/agenda-engine/agenda"
	"github.com/andenutri/agenda-engine/store/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func d(s string) agenda.Date { return agenda.MustParseDate(s) }

func datePtr(s string) *agenda.Date {
	v := d(s)
	return &v
}

// =============================================================================
// EVENTS
// =============================================================================

func TestStore_PendingReminders(t *testing.T) {
	// GIVEN: Events spread over two years with mixed reminder state
	// WHEN: Asking for pending reminders
	// THEN: The lead-time arithmetic in SQL matches agenda.HasPendingReminder

	s := newTestStore(t)
	ctx := context.Background()
	asOf := d("2026-06-01")

	drafts := []agenda.Draft{
		{Title: "Antigo", Date: d("2024-01-10"), Reminder: &agenda.Reminder{LeadTimeDays: 1}},
		{Title: "Longo", Date: d("2026-08-30"), Reminder: &agenda.Reminder{LeadTimeDays: 91}},
		{Title: "Cedo", Date: d("2026-09-02"), Reminder: &agenda.Reminder{LeadTimeDays: 91}},
		{Title: "Sem lembrete", Date: d("2026-05-01"), NoReminder: true},
		{Title: "Visto", Date: d("2026-05-02")},
		{Title: "Série", Date: d("2025-01-06"), Kind: agenda.KindFollowUp, Recurrence: "FREQ=WEEKLY"},
	}
	var all []agenda.Event
	for _, dr := range drafts {
		ev, err := s.Create(ctx, dr)
		require.NoError(t, err)
		all = append(all, ev)
	}
	ack := true
	_, err := s.Update(ctx, all[4].ID, agenda.Patch{Acknowledged: &ack})
	require.NoError(t, err)

	pending, err := s.PendingReminders(ctx, asOf)
	require.NoError(t, err)

	var titles []string
	for _, ev := range pending {
		titles = append(titles, ev.Title)
		assert.True(t, agenda.HasPendingReminder(ev, asOf), ev.Title)
	}
	assert.ElementsMatch(t, []string{"Antigo", "Longo", "Série"}, titles)
}

func TestStore_CreateGetRoundTrip(t *testing.T) {
	// GIVEN: A fully populated draft
	// WHEN: Creating it and reading it back
	// THEN: Every field survives the SQLite columns

	s := newTestStore(t)
	ctx := context.Background()
	amount := decimal.RequireFromString("199.90")

	created, err := s.Create(ctx, agenda.Draft{
		Title:       "Consulta",
		Description: "bring exams",
		Date:        d("2025-03-10"),
		Time:        &agenda.Clock{Hour: 9, Minute: 30},
		Kind:        agenda.KindReassessment,
		Subject:     &agenda.SubjectRef{ID: "c1", Name: "Ana"},
		Reminder:    &agenda.Reminder{LeadTimeDays: 2},
		Recurrence:  "FREQ=MONTHLY;COUNT=3",
		Amount:      &amount,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, agenda.OriginUser, created.Origin)
	assert.Equal(t, "green", created.Color)

	got, err := s.Get(ctx, created.ID)
	require.NoError(t, err)

	assert.Equal(t, "Consulta", got.Title)
	assert.Equal(t, "bring exams", got.Description)
	assert.Equal(t, d("2025-03-10"), got.Date)
	require.NotNil(t, got.Time)
	assert.Equal(t, "09:30", got.Time.String())
	assert.Equal(t, agenda.KindReassessment, got.Kind)
	assert.Equal(t, &agenda.SubjectRef{ID: "c1", Name: "Ana"}, got.Subject)
	assert.Equal(t, &agenda.Reminder{LeadTimeDays: 2}, got.Reminder)
	assert.Equal(t, "FREQ=MONTHLY;COUNT=3", got.Recurrence)
	require.NotNil(t, got.Amount)
	assert.True(t, got.Amount.Equal(amount), "amount %s", got.Amount)
}

func TestStore_CreateRejectsInvalidDraft(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create(context.Background(), agenda.Draft{Title: "", Date: d("2025-03-10")})
	assert.ErrorIs(t, err, agenda.ErrValidation)
}

func TestStore_QueryWindowAndSeries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, dr := range []agenda.Draft{
		{Title: "before", Date: d("2025-02-28")},
		{Title: "inside", Date: d("2025-03-15")},
		{Title: "edge", Date: d("2025-03-31")},
		{Title: "after", Date: d("2025-04-01")},
		{Title: "series", Date: d("2025-01-06"), Recurrence: "FREQ=WEEKLY"},
	} {
		_, err := s.Create(ctx, dr)
		require.NoError(t, err)
	}

	events, err := s.Query(ctx, agenda.Window{Start: d("2025-03-01"), End: d("2025-03-31")})
	require.NoError(t, err)

	var titles []string
	for _, ev := range events {
		titles = append(titles, ev.Title)
	}
	assert.Equal(t, []string{"series", "inside", "edge"}, titles)

	_, err = s.Query(ctx, agenda.Window{Start: d("2025-03-31"), End: d("2025-03-01")})
	assert.ErrorIs(t, err, agenda.ErrInvalidWindow)
}

func TestStore_UpdateWritesOnlyPatchedColumns(t *testing.T) {
	// GIVEN: Two patches on different fields applied one after the other
	// THEN: The second does not revert the first

	s := newTestStore(t)
	ctx := context.Background()
	ev, err := s.Create(ctx, agenda.Draft{Title: "Consulta", Date: d("2025-03-10"), Time: &agenda.Clock{Hour: 9}})
	require.NoError(t, err)

	title := "Retorno"
	_, err = s.Update(ctx, ev.ID, agenda.Patch{Title: &title})
	require.NoError(t, err)

	desc := "fasting"
	updated, err := s.Update(ctx, ev.ID, agenda.Patch{Description: &desc, ClearTime: true})
	require.NoError(t, err)
	assert.Equal(t, "Retorno", updated.Title)

	got, err := s.Get(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "Retorno", got.Title)
	assert.Equal(t, "fasting", got.Description)
	assert.Nil(t, got.Time)
	assert.True(t, got.UpdatedAt.After(got.CreatedAt) || got.UpdatedAt.Equal(got.CreatedAt))
}

func TestStore_UpdateKindIsRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ev, err := s.Create(ctx, agenda.Draft{Title: "Consulta", Date: d("2025-03-10")})
	require.NoError(t, err)

	k := agenda.KindOther
	_, err = s.Update(ctx, ev.ID, agenda.Patch{Kind: &k})
	assert.ErrorIs(t, err, agenda.ErrValidation)

	got, err := s.Get(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, agenda.KindAppointment, got.Kind)
}

func TestStore_AcknowledgedDatesPersist(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ev, err := s.Create(ctx, agenda.Draft{Title: "Weekly", Date: d("2025-03-03"), Recurrence: "FREQ=WEEKLY"})
	require.NoError(t, err)

	for _, date := range []string{"2025-03-17", "2025-03-10", "2025-03-17"} {
		dt := d(date)
		_, err := s.Update(ctx, ev.ID, agenda.Patch{AcknowledgeDate: &dt})
		require.NoError(t, err)
	}

	got, err := s.Get(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, []agenda.Date{d("2025-03-10"), d("2025-03-17")}, got.AcknowledgedDates)
}

func TestStore_UnknownIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	assert.True(t, agenda.IsNotFound(err))

	title := "x"
	_, err = s.Update(ctx, "missing", agenda.Patch{Title: &title})
	assert.True(t, agenda.IsNotFound(err))

	assert.True(t, agenda.IsNotFound(s.Delete(ctx, "missing")))
}

func TestStore_Delete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ev, err := s.Create(ctx, agenda.Draft{Title: "Consulta", Date: d("2025-03-10")})
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, ev.ID))

	_, err = s.Get(ctx, ev.ID)
	assert.True(t, agenda.IsNotFound(err))
}

// =============================================================================
// CLIENT ROSTER
// =============================================================================

func TestStore_SaveClientUpserts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	duration := 90
	amount := decimal.RequireFromString("450")

	require.NoError(t, s.SaveClient(ctx, agenda.Client{
		ID:               "client-ana",
		Name:             "Ana",
		BirthDate:        datePtr("1990-06-15"),
		PurchaseDate:     datePtr("2025-01-01"),
		PlanDurationDays: &duration,
		PlanStatus:       agenda.PlanActive,
		RenewalAmount:    &amount,
	}))

	got, err := s.GetClient(ctx, "client-ana")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, d("1990-06-15"), *got.BirthDate)
	require.NotNil(t, got.PlanDurationDays)
	assert.Equal(t, 90, *got.PlanDurationDays)
	exp, ok := got.PlanExpiration()
	require.True(t, ok)
	assert.Equal(t, d("2025-04-01"), exp)
	assert.True(t, got.RenewalAmount.Equal(amount))

	// Saving again replaces the record.
	require.NoError(t, s.SaveClient(ctx, agenda.Client{ID: "client-ana", Name: "Ana Souza", PlanStatus: agenda.PlanPaused}))
	got, err = s.GetClient(ctx, "client-ana")
	require.NoError(t, err)
	assert.Equal(t, "Ana Souza", got.Name)
	assert.Equal(t, agenda.PlanPaused, got.PlanStatus)
	assert.Nil(t, got.BirthDate)
	assert.Nil(t, got.PlanDurationDays)
}

func TestStore_SaveClientValidation(t *testing.T) {
	s := newTestStore(t)
	err := s.SaveClient(context.Background(), agenda.Client{ID: "x"})
	assert.ErrorIs(t, err, agenda.ErrValidation)
}

func TestStore_ListAndDeleteClients(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveClient(ctx, agenda.Client{ID: "2", Name: "Bia"}))
	require.NoError(t, s.SaveClient(ctx, agenda.Client{ID: "1", Name: "Ana"}))

	clients, err := s.ListClients(ctx)
	require.NoError(t, err)
	require.Len(t, clients, 2)
	assert.Equal(t, "Ana", clients[0].Name)
	assert.Equal(t, agenda.PlanInactive, clients[0].PlanStatus, "status defaults to inactive")

	require.NoError(t, s.DeleteClient(ctx, "1"))
	got, err := s.GetClient(ctx, "1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_FindClientByReassessmentCode(t *testing.T) {
	// GIVEN: One client with an explicit code, one relying on the id prefix
	// THEN: Both resolve, case-insensitively

	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveClient(ctx, agenda.Client{ID: "abcdef123456", Name: "Ana"}))
	require.NoError(t, s.SaveClient(ctx, agenda.Client{ID: "zz", Name: "Bia", ReassessmentCode: "reav-01"}))

	got, err := s.FindClientByReassessmentCode(ctx, "abcdef12")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Ana", got.Name)

	got, err = s.FindClientByReassessmentCode(ctx, "REAV-01")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Bia", got.Name)

	got, err = s.FindClientByReassessmentCode(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_Reset(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.Create(ctx, agenda.Draft{Title: "Consulta", Date: d("2025-03-10")})
	require.NoError(t, err)
	require.NoError(t, s.SaveClient(ctx, agenda.Client{ID: "1", Name: "Ana"}))

	require.NoError(t, s.Reset(ctx))

	events, err := s.Query(ctx, agenda.Window{Start: d("2025-01-01"), End: d("2025-12-31")})
	require.NoError(t, err)
	assert.Empty(t, events)
	clients, err := s.ListClients(ctx)
	require.NoError(t, err)
	assert.Empty(t, clients)
}
