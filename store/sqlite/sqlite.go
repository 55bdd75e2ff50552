/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements agenda.Repository (user-created events) and the client roster
  the projector reads. The same patterns apply to PostgreSQL with minor SQL
  dialect differences.

INTERFACES IMPLEMENTED:
  agenda.Repository: Query, Get, Create, Update, Delete, PendingReminders
  api.RosterStore:   ListClients, GetClient, SaveClient, DeleteClient,
                     FindClientByReassessmentCode

PATCH SEMANTICS:
  Update reads the row, applies agenda.ApplyPatch, and writes back ONLY the
  columns the patch names (agenda.Patch.Columns). Two writers patching
  different fields of the same event never clobber each other; two writers
  patching the same field are last-write-wins.

KEY TABLES:
  events:  user-created events (derived events are never stored)
  clients: roster records used for birthday/expiration/reassessment projection

INDEXES:
  - idx_events_date: range queries (hot path)
  - idx_events_recurrence: recurring series lookup
  - idx_events_pending_reminder: unacknowledged reminders
  - idx_clients_reassessment_code: public form lookup

CONCURRENCY:
  Uses sync.RWMutex plus a single connection, so ":memory:" databases are
  shared by every caller of the same Store.

USAGE:
  store, err := sqlite.New("./data/agenda.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ctrl := agenda.NewController(store, agenda.GridOptions{})

SEE ALSO:
  - agenda/store.go: Repository contract and shared patch rules
  - agenda/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/andenutri/agenda-engine/agenda"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex

	now func() time.Time
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- User-created events
	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		date TEXT NOT NULL,
		time TEXT,
		kind TEXT NOT NULL,
		subject_id TEXT,
		subject_name TEXT,
		color TEXT NOT NULL DEFAULT '',
		reminder_lead_days INTEGER,
		acknowledged BOOLEAN NOT NULL DEFAULT FALSE,
		origin TEXT NOT NULL DEFAULT 'user-created',
		recurrence TEXT NOT NULL DEFAULT '',
		acknowledged_dates_json TEXT NOT NULL DEFAULT '[]',
		amount TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_date
		ON events(date);
	CREATE INDEX IF NOT EXISTS idx_events_recurrence
		ON events(date) WHERE recurrence <> '';
	CREATE INDEX IF NOT EXISTS idx_events_pending_reminder
		ON events(date) WHERE reminder_lead_days IS NOT NULL AND acknowledged = FALSE;
	CREATE INDEX IF NOT EXISTS idx_events_subject
		ON events(subject_id) WHERE subject_id IS NOT NULL;

	-- Client roster (read by the projector)
	CREATE TABLE IF NOT EXISTS clients (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		birth_date TEXT,
		purchase_date TEXT,
		plan_duration_days INTEGER,
		plan_status TEXT NOT NULL DEFAULT 'inactive',
		reassessment_date TEXT,
		reassessment_code TEXT NOT NULL DEFAULT '',
		renewal_amount TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_clients_reassessment_code
		ON clients(reassessment_code) WHERE reassessment_code <> '';
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// EVENT STORE (agenda.Repository interface)
// =============================================================================

const eventColumns = `id, title, description, date, time, kind, subject_id, subject_name, color,
	reminder_lead_days, acknowledged, origin, recurrence, acknowledged_dates_json, amount,
	created_at, updated_at`

// Query returns events dated inside w plus recurring series starting by w.End.
func (s *Store) Query(ctx context.Context, w agenda.Window) ([]agenda.Event, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + eventColumns + ` FROM events
		WHERE (date >= ? AND date <= ?) OR (recurrence <> '' AND date <= ?)
		ORDER BY date`
	rows, err := s.db.QueryContext(ctx, query, w.Start.String(), w.End.String(), w.End.String())
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []agenda.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	agenda.SortEvents(events)
	return events, nil
}

// PendingReminders returns unacknowledged events whose reminder has
// triggered by asOf. The lead-time arithmetic runs in SQL so old rows are
// never filtered by a date window.
func (s *Store) PendingReminders(ctx context.Context, asOf agenda.Date) ([]agenda.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + eventColumns + ` FROM events
		WHERE reminder_lead_days IS NOT NULL
		  AND acknowledged = FALSE
		  AND date(date, '-' || reminder_lead_days || ' days') <= ?
		ORDER BY date`
	rows, err := s.db.QueryContext(ctx, query, asOf.String())
	if err != nil {
		return nil, fmt.Errorf("query pending reminders: %w", err)
	}
	defer rows.Close()

	var events []agenda.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	agenda.SortEvents(events)
	return events, nil
}

// Get retrieves an event by ID.
func (s *Store) Get(ctx context.Context, id string) (agenda.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getEvent(ctx, s.db, id)
}

// Create validates and inserts a new event.
func (s *Store) Create(ctx context.Context, d agenda.Draft) (agenda.Event, error) {
	if err := agenda.ValidateDraft(d); err != nil {
		return agenda.Event{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ev := agenda.NewEvent(uuid.NewString(), d, s.now())
	ackDates, err := json.Marshal(dateStrings(ev.AcknowledgedDates))
	if err != nil {
		return agenda.Event{}, err
	}

	query := `INSERT INTO events (` + eventColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	subjectID, subjectName := subjectColumns(ev.Subject)
	_, err = s.db.ExecContext(ctx, query,
		ev.ID, ev.Title, ev.Description, ev.Date.String(), clockColumn(ev.Time), string(ev.Kind),
		subjectID, subjectName, ev.Color, reminderColumn(ev.Reminder), ev.Acknowledged,
		string(ev.Origin), ev.Recurrence, string(ackDates), amountColumn(ev.Amount),
		ev.CreatedAt.Format(time.RFC3339Nano), ev.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return agenda.Event{}, fmt.Errorf("insert event: %w", err)
	}
	return ev, nil
}

// Update merges p into the stored row, writing only the patched columns.
func (s *Store) Update(ctx context.Context, id string, p agenda.Patch) (agenda.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return agenda.Event{}, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	current, err := s.getEvent(ctx, tx, id)
	if err != nil {
		return agenda.Event{}, err
	}
	updated, err := agenda.ApplyPatch(current, p, s.now())
	if err != nil {
		return agenda.Event{}, err
	}

	sets := []string{"updated_at = ?"}
	args := []any{updated.UpdatedAt.Format(time.RFC3339Nano)}
	for _, col := range p.Columns() {
		switch col {
		case agenda.ColTitle:
			sets, args = append(sets, "title = ?"), append(args, updated.Title)
		case agenda.ColDescription:
			sets, args = append(sets, "description = ?"), append(args, updated.Description)
		case agenda.ColDate:
			sets, args = append(sets, "date = ?"), append(args, updated.Date.String())
		case agenda.ColTime:
			sets, args = append(sets, "time = ?"), append(args, clockColumn(updated.Time))
		case agenda.ColSubject:
			subjectID, subjectName := subjectColumns(updated.Subject)
			sets, args = append(sets, "subject_id = ?", "subject_name = ?"), append(args, subjectID, subjectName)
		case agenda.ColColor:
			sets, args = append(sets, "color = ?"), append(args, updated.Color)
		case agenda.ColReminder:
			sets, args = append(sets, "reminder_lead_days = ?"), append(args, reminderColumn(updated.Reminder))
		case agenda.ColAcknowledged:
			sets, args = append(sets, "acknowledged = ?"), append(args, updated.Acknowledged)
		case agenda.ColRecurrence:
			sets, args = append(sets, "recurrence = ?"), append(args, updated.Recurrence)
		case agenda.ColAcknowledgedDates:
			b, err := json.Marshal(dateStrings(updated.AcknowledgedDates))
			if err != nil {
				return agenda.Event{}, err
			}
			sets, args = append(sets, "acknowledged_dates_json = ?"), append(args, string(b))
		case agenda.ColAmount:
			sets, args = append(sets, "amount = ?"), append(args, amountColumn(updated.Amount))
		}
	}
	args = append(args, id)

	if _, err := tx.ExecContext(ctx, "UPDATE events SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...); err != nil {
		return agenda.Event{}, fmt.Errorf("update event: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return agenda.Event{}, fmt.Errorf("commit update: %w", err)
	}
	return updated, nil
}

// Delete removes an event; unknown ids are reported, not ignored.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM events WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &agenda.NotFoundError{ID: id}
	}
	return nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) getEvent(ctx context.Context, db queryRower, id string) (agenda.Event, error) {
	row := db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return agenda.Event{}, &agenda.NotFoundError{ID: id}
	}
	return ev, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (agenda.Event, error) {
	var (
		ev                                 agenda.Event
		date, kind, origin, ackDates       string
		createdAt, updatedAt               string
		clock, subjectID, subjectName, amt sql.NullString
		leadDays                           sql.NullInt64
	)
	err := row.Scan(&ev.ID, &ev.Title, &ev.Description, &date, &clock, &kind, &subjectID, &subjectName,
		&ev.Color, &leadDays, &ev.Acknowledged, &origin, &ev.Recurrence, &ackDates, &amt,
		&createdAt, &updatedAt)
	if err != nil {
		return agenda.Event{}, err
	}

	if ev.Date, err = agenda.ParseDate(date); err != nil {
		return agenda.Event{}, fmt.Errorf("event %s: %w", ev.ID, err)
	}
	if clock.Valid && clock.String != "" {
		c, err := agenda.ParseClock(clock.String)
		if err != nil {
			return agenda.Event{}, fmt.Errorf("event %s: %w", ev.ID, err)
		}
		ev.Time = &c
	}
	ev.Kind = agenda.Kind(kind)
	ev.Origin = agenda.Origin(origin)
	if subjectID.Valid {
		ev.Subject = &agenda.SubjectRef{ID: subjectID.String, Name: subjectName.String}
	}
	if leadDays.Valid {
		ev.Reminder = &agenda.Reminder{LeadTimeDays: int(leadDays.Int64)}
	}
	if amt.Valid {
		a, err := decimal.NewFromString(amt.String)
		if err != nil {
			return agenda.Event{}, fmt.Errorf("event %s amount: %w", ev.ID, err)
		}
		ev.Amount = &a
	}
	var raw []string
	if err := json.Unmarshal([]byte(ackDates), &raw); err != nil {
		return agenda.Event{}, fmt.Errorf("event %s acknowledged dates: %w", ev.ID, err)
	}
	for _, r := range raw {
		d, err := agenda.ParseDate(r)
		if err != nil {
			return agenda.Event{}, fmt.Errorf("event %s acknowledged dates: %w", ev.ID, err)
		}
		ev.AcknowledgedDates = append(ev.AcknowledgedDates, d)
	}
	ev.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	ev.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return ev, nil
}

// =============================================================================
// CLIENT ROSTER
// =============================================================================

// SaveClient inserts or replaces a roster record.
func (s *Store) SaveClient(ctx context.Context, c agenda.Client) error {
	if strings.TrimSpace(c.ID) == "" || strings.TrimSpace(c.Name) == "" {
		return &agenda.ValidationError{Field: "client", Reason: "id and name are required"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO clients (id, name, birth_date, purchase_date, plan_duration_days, plan_status,
			reassessment_date, reassessment_code, renewal_amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			birth_date = excluded.birth_date,
			purchase_date = excluded.purchase_date,
			plan_duration_days = excluded.plan_duration_days,
			plan_status = excluded.plan_status,
			reassessment_date = excluded.reassessment_date,
			reassessment_code = excluded.reassessment_code,
			renewal_amount = excluded.renewal_amount
	`
	status := c.PlanStatus
	if status == "" {
		status = agenda.PlanInactive
	}
	var duration sql.NullInt64
	if c.PlanDurationDays != nil {
		duration = sql.NullInt64{Int64: int64(*c.PlanDurationDays), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		c.ID, c.Name, dateColumn(c.BirthDate), dateColumn(c.PurchaseDate), duration, string(status),
		dateColumn(c.ReassessmentDate), strings.ToUpper(strings.TrimSpace(c.ReassessmentCode)),
		amountColumn(c.RenewalAmount), s.now().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("save client: %w", err)
	}
	return nil
}

const clientColumns = `id, name, birth_date, purchase_date, plan_duration_days, plan_status,
	reassessment_date, reassessment_code, renewal_amount`

// GetClient retrieves a client by ID. Returns nil, nil when absent.
func (s *Store) GetClient(ctx context.Context, id string) (*agenda.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = ?`, id)
	c, err := scanClient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListClients returns the whole roster ordered by name.
func (s *Store) ListClients(ctx context.Context) ([]agenda.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+clientColumns+` FROM clients ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	var clients []agenda.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

// DeleteClient removes a client. Derived events of the client disappear
// with it since they are never stored.
func (s *Store) DeleteClient(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM clients WHERE id = ?", id)
	return err
}

// FindClientByReassessmentCode resolves the public form code, including the
// id-prefix fallback code of clients without an explicit one.
func (s *Store) FindClientByReassessmentCode(ctx context.Context, code string) (*agenda.Client, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, nil
	}
	clients, err := s.ListClients(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range clients {
		if agenda.ReassessmentCode(c) == code {
			c := c
			return &c, nil
		}
	}
	return nil, nil
}

func scanClient(row scanner) (agenda.Client, error) {
	var (
		c                         agenda.Client
		status, code              string
		birth, purchase, reassess sql.NullString
		amount                    sql.NullString
		duration                  sql.NullInt64
	)
	if err := row.Scan(&c.ID, &c.Name, &birth, &purchase, &duration, &status, &reassess, &code, &amount); err != nil {
		return agenda.Client{}, err
	}
	c.PlanStatus = agenda.PlanStatus(status)
	c.ReassessmentCode = code
	var err error
	if c.BirthDate, err = parseDateColumn(birth); err != nil {
		return agenda.Client{}, err
	}
	if c.PurchaseDate, err = parseDateColumn(purchase); err != nil {
		return agenda.Client{}, err
	}
	if c.ReassessmentDate, err = parseDateColumn(reassess); err != nil {
		return agenda.Client{}, err
	}
	if duration.Valid {
		n := int(duration.Int64)
		c.PlanDurationDays = &n
	}
	if amount.Valid {
		a, err := decimal.NewFromString(amount.String)
		if err != nil {
			return agenda.Client{}, fmt.Errorf("client %s renewal amount: %w", c.ID, err)
		}
		c.RenewalAmount = &a
	}
	return c, nil
}

// Reset clears every table (dev only).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"events", "clients"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func dateColumn(d *agenda.Date) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return nullString(d.String())
}

func parseDateColumn(v sql.NullString) (*agenda.Date, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	d, err := agenda.ParseDate(v.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func clockColumn(c *agenda.Clock) sql.NullString {
	if c == nil {
		return sql.NullString{}
	}
	return nullString(c.String())
}

func subjectColumns(s *agenda.SubjectRef) (sql.NullString, sql.NullString) {
	if s == nil {
		return sql.NullString{}, sql.NullString{}
	}
	return sql.NullString{String: s.ID, Valid: true}, sql.NullString{String: s.Name, Valid: true}
}

func reminderColumn(r *agenda.Reminder) sql.NullInt64 {
	if r == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(r.LeadTimeDays), Valid: true}
}

func amountColumn(a *decimal.Decimal) sql.NullString {
	if a == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: a.String(), Valid: true}
}

func dateStrings(dates []agenda.Date) []string {
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = d.String()
	}
	return out
}
