// scheduler.go - Periodic reminder sweep
//
// PURPOSE:
//
//	Evaluates due reminders on a cron schedule so notification hooks (push,
//	e-mail, the /health report) see them without a UI polling. The agenda
//	package itself owns no timers; this is the only place that does.
//
// DESIGN:
//   - robfig/cron drives the cadence; overlapping runs are skipped
//   - Each run computes DueReminders for "today" in the configured location
//   - The latest result is kept for /health
//   - OnDue receives the due list; acknowledging stays a user action
//
// CONFIGURATION:
//   - Spec: 5-field cron expression (default "*/15 * * * *")
//   - Enabled: false leaves Start a no-op
//
// USAGE:
//
//	sweeper := NewReminderSweeper(ctrl, store, log, "*/15 * * * *")
//	if err := sweeper.Start(); err != nil { ... }
//	// ... later
//	sweeper.Stop()
//
// SEE ALSO:
//   - agenda/reminder.go: due-state rules
//   - handlers.go: GET /api/reminders (on-demand equivalent)
package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/andenutri/agenda-engine/agenda"
	"github.com/andenutri/agenda-engine/logger"
)

// SweepResult is the outcome of one sweep.
type SweepResult struct {
	RanAt time.Time
	AsOf  agenda.Date
	Due   []agenda.Event
	Err   error
}

// ReminderSweeper periodically computes due reminders.
type ReminderSweeper struct {
	Agenda   *agenda.Controller
	Roster   RosterStore
	Log      *logger.Logger
	Spec     string
	Enabled  bool
	Location *time.Location
	Now      func() time.Time

	// OnDue is called after every successful sweep with a non-empty result.
	OnDue func(asOf agenda.Date, due []agenda.Event)

	cron *cron.Cron
	mu   sync.Mutex
	last *SweepResult
}

// NewReminderSweeper creates a sweeper. An empty spec disables it.
func NewReminderSweeper(ctrl *agenda.Controller, roster RosterStore, log *logger.Logger, spec string) *ReminderSweeper {
	if log == nil {
		log = logger.NewNop()
	}
	return &ReminderSweeper{
		Agenda:   ctrl,
		Roster:   roster,
		Log:      log.With("component", "reminder-sweeper"),
		Spec:     spec,
		Enabled:  spec != "",
		Location: time.UTC,
		Now:      time.Now,
	}
}

// Start schedules the sweep and runs it once right away.
func (s *ReminderSweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Log.Info("disabled, not starting")
		return nil
	}
	if s.cron != nil {
		return nil
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(s.Location),
		cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(s.Log))),
	)
	if _, err := c.AddFunc(s.Spec, func() { s.Sweep(context.Background()) }); err != nil {
		return fmt.Errorf("invalid reminder schedule %q: %w", s.Spec, err)
	}
	s.cron = c
	c.Start()

	go s.Sweep(context.Background())

	s.Log.Info("started", "schedule", s.Spec)
	return nil
}

// Stop stops scheduling and waits for a running sweep to finish.
func (s *ReminderSweeper) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
		s.Log.Info("stopped")
	}
}

// Sweep computes reminders due today and records the result.
func (s *ReminderSweeper) Sweep(ctx context.Context) SweepResult {
	now := s.Now()
	res := SweepResult{RanAt: now, AsOf: agenda.DateOf(now.In(s.Location))}

	roster, err := s.Roster.ListClients(ctx)
	if err == nil {
		res.Due, err = s.Agenda.DueReminders(ctx, res.AsOf, roster)
	}
	res.Err = err

	if err != nil {
		s.Log.Error("sweep failed", "as_of", res.AsOf.String(), "error", err)
	} else {
		s.Log.Debug("sweep completed", "as_of", res.AsOf.String(), "due", len(res.Due))
	}

	s.mu.Lock()
	s.last = &res
	onDue := s.OnDue
	s.mu.Unlock()

	if err == nil && len(res.Due) > 0 && onDue != nil {
		onDue(res.AsOf, res.Due)
	}
	return res
}

// Last returns the most recent sweep, if any ran.
func (s *ReminderSweeper) Last() (SweepResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return SweepResult{}, false
	}
	return *s.last, true
}
