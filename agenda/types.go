/*
Package agenda provides the calendar/agenda engine of the coaching CRM.

PURPOSE:
  One backend-agnostic core behind every agenda screen: it lays out
  month/week/day grids, projects events derived from client records
  (birthdays, plan expirations, scheduled reassessments), merges them with
  coach-created events from a Repository, and answers which reminders are
  due right now.

KEY CONCEPTS IN THIS FILE (types.go):
  - Kind: what an event is; fixes its default color and reminder
  - Origin: user-created vs. one of the derived sources
  - Event: a concrete dated occurrence
  - Draft / Patch: the create and partial-update payloads

DESIGN PRINCIPLES:
  1. Derived events are never stored. They are recomputed from their source
     record on every query and carry deterministic ids.
  2. Kind is immutable. Changing an event's kind is delete + recreate.
  3. Updates are patches. A field absent from a Patch is never touched.

SEE ALSO:
  - grid.go: DateGrid
  - projector.go: EventProjector
  - store.go: Repository contract
  - reminder.go: ReminderScheduler
  - controller.go: AgendaController
*/
package agenda

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// KIND - What an event is
// =============================================================================

type Kind string

const (
	KindAppointment    Kind = "appointment"
	KindReassessment   Kind = "reassessment"
	KindFollowUp       Kind = "follow-up"
	KindBirthday       Kind = "birthday"
	KindPlanExpiration Kind = "plan-expiration"
	KindOther          Kind = "other"
)

// KindStyle is the per-kind default display and reminder policy.
type KindStyle struct {
	Color    string
	Reminder *Reminder // nil = no reminder by default
}

// kindTable is the single source of kind defaults. Adding a kind means adding
// a row here; nothing else switches on kind for styling.
var kindTable = map[Kind]KindStyle{
	KindAppointment:    {Color: "blue", Reminder: &Reminder{LeadTimeDays: 1}},
	KindReassessment:   {Color: "green", Reminder: &Reminder{LeadTimeDays: 1}},
	KindFollowUp:       {Color: "purple", Reminder: &Reminder{LeadTimeDays: 0}},
	KindBirthday:       {Color: "pink", Reminder: &Reminder{LeadTimeDays: 0}},
	KindPlanExpiration: {Color: "red", Reminder: &Reminder{LeadTimeDays: 7}},
	KindOther:          {Color: "gray"},
}

// MaxKindLeadDays is the longest default reminder lead time in the kind table.
func MaxKindLeadDays() int {
	longest := 0
	for _, s := range kindTable {
		if s.Reminder != nil && s.Reminder.LeadTimeDays > longest {
			longest = s.Reminder.LeadTimeDays
		}
	}
	return longest
}

// Kinds lists every kind in display order.
func Kinds() []Kind {
	return []Kind{KindAppointment, KindReassessment, KindFollowUp, KindBirthday, KindPlanExpiration, KindOther}
}

func (k Kind) Valid() bool {
	_, ok := kindTable[k]
	return ok
}

// Style returns the default styling of k. Unknown kinds get KindOther's.
func (k Kind) Style() KindStyle {
	if s, ok := kindTable[k]; ok {
		return s
	}
	return kindTable[KindOther]
}

func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", invalid("kind", fmt.Sprintf("unknown kind %q", s))
	}
	return k, nil
}

// =============================================================================
// ORIGIN - Where an event comes from
// =============================================================================

type Origin string

const (
	OriginUser                Origin = "user-created"
	OriginDerivedBirthday     Origin = "derived-birthday"
	OriginDerivedExpiration   Origin = "derived-expiration"
	OriginDerivedReassessment Origin = "derived-reassessment"
)

func (o Origin) IsDerived() bool {
	switch o {
	case OriginDerivedBirthday, OriginDerivedExpiration, OriginDerivedReassessment:
		return true
	}
	return false
}

// =============================================================================
// REMINDER
// =============================================================================

// Reminder fires LeadTimeDays before the event date. 0 means on the day.
type Reminder struct {
	LeadTimeDays int `json:"lead_time_days" yaml:"lead_time_days"`
}

// TriggerDate is the first date on which the reminder is due.
func (r Reminder) TriggerDate(eventDate Date) Date {
	return eventDate.AddDays(-r.LeadTimeDays)
}

// ParseLeadTime reads lead-time labels: "2d", "1dia", "3 days", "1w",
// "1semana". Sub-day labels ("30min", "2h") are same-day reminders since
// events are dated, not timed, for reminder purposes.
func ParseLeadTime(s string) (Reminder, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Reminder{}, invalid("reminder", "empty lead time")
	}
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return Reminder{}, invalid("reminder", fmt.Sprintf("lead time %q must start with a number", s))
	}
	n, _ := strconv.Atoi(s[:i])
	unit := strings.TrimSpace(s[i:])
	switch unit {
	case "", "d", "day", "days", "dia", "dias":
		return Reminder{LeadTimeDays: n}, nil
	case "w", "week", "weeks", "semana", "semanas":
		return Reminder{LeadTimeDays: n * 7}, nil
	case "m", "min", "mins", "minutes", "h", "hour", "hours", "hora", "horas":
		return Reminder{LeadTimeDays: 0}, nil
	}
	return Reminder{}, invalid("reminder", fmt.Sprintf("unknown lead time unit %q", unit))
}

// =============================================================================
// EVENT
// =============================================================================

// SubjectRef is a weak reference to a client record. The engine never owns
// or mutates the client.
type SubjectRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Event is a scheduled occurrence.
type Event struct {
	ID           string
	Title        string
	Description  string
	Date         Date
	Time         *Clock
	Kind         Kind
	Subject      *SubjectRef
	Color        string
	Reminder     *Reminder
	Acknowledged bool
	Origin       Origin

	// Amount is the renewal value shown on plan-expiration events.
	Amount *decimal.Decimal

	// Recurrence is an RFC 5545 RRULE body (e.g. "FREQ=WEEKLY;COUNT=4")
	// anchored at Date. Only user-created events may recur.
	Recurrence string
	// AcknowledgedDates records per-occurrence acknowledgements of a series.
	AcknowledgedDates []Date
	// SeriesID is set on expanded occurrences and names the stored series.
	SeriesID string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsRecurring reports whether the event is a stored series to expand.
func (e Event) IsRecurring() bool { return e.Recurrence != "" && e.SeriesID == "" }

// Draft is the create payload. ID, Origin and timestamps are assigned by the store.
type Draft struct {
	Title       string
	Description string
	Date        Date
	Time        *Clock
	Kind        Kind
	Subject     *SubjectRef
	Color       string // empty = kind default
	Reminder    *Reminder
	NoReminder  bool // suppress the kind's default reminder
	Recurrence  string
	Amount      *decimal.Decimal
}

// Patch is a partial update. Nil fields are left untouched; Clear* flags
// null out optional fields.
type Patch struct {
	Title        *string
	Description  *string
	Date         *Date
	Time         *Clock
	Kind         *Kind
	Subject      *SubjectRef
	Color        *string
	Reminder     *Reminder
	Acknowledged *bool
	Recurrence   *string
	Amount       *decimal.Decimal

	// AcknowledgeDate appends one occurrence date to AcknowledgedDates.
	AcknowledgeDate *Date

	ClearTime     bool
	ClearSubject  bool
	ClearReminder bool
	ClearAmount   bool
}

// Column names a persisted field touched by a patch.
type Column string

const (
	ColTitle             Column = "title"
	ColDescription       Column = "description"
	ColDate              Column = "date"
	ColTime              Column = "time"
	ColSubject           Column = "subject"
	ColColor             Column = "color"
	ColReminder          Column = "reminder"
	ColAcknowledged      Column = "acknowledged"
	ColRecurrence        Column = "recurrence"
	ColAcknowledgedDates Column = "acknowledged_dates"
	ColAmount            Column = "amount"
)

// Columns lists the fields the patch writes, so stores can update only those.
func (p Patch) Columns() []Column {
	var cols []Column
	add := func(set bool, c Column) {
		if set {
			cols = append(cols, c)
		}
	}
	add(p.Title != nil, ColTitle)
	add(p.Description != nil, ColDescription)
	add(p.Date != nil, ColDate)
	add(p.Time != nil || p.ClearTime, ColTime)
	add(p.Subject != nil || p.ClearSubject, ColSubject)
	add(p.Color != nil, ColColor)
	add(p.Reminder != nil || p.ClearReminder, ColReminder)
	add(p.Acknowledged != nil, ColAcknowledged)
	add(p.Recurrence != nil, ColRecurrence)
	add(p.AcknowledgeDate != nil, ColAcknowledgedDates)
	add(p.Amount != nil || p.ClearAmount, ColAmount)
	return cols
}

func (p Patch) IsEmpty() bool { return len(p.Columns()) == 0 && p.Kind == nil }
