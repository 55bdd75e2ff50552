/*
projector.go - Derived events from client records

PURPOSE:
  Expands the client roster into concrete dated events inside a window:
  birthdays, plan expirations and scheduled reassessments. Nothing here is
  stored. The same roster and window always yield the same events, with the
  same ids, in the same order.

RULES:
  Birthday:
    One event per year Y in the window (Y after the birth year) when
    (birthMonth, birthDay) of Y falls inside the window. Feb 29 birthdays
    land on Feb 28 in non-leap years.

  Plan expiration:
    purchaseDate + planDurationDays, only while the plan status is active.

  Reassessment:
    The date the coach scheduled, as-is.

  Records missing the fields a rule needs are skipped for that rule. Partial
  client data is normal.

SEE ALSO:
  - ids.go: DerivedID
  - controller.go: merges projections with stored events
*/
package agenda

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CLIENT ROSTER - Read-only input owned by the client-management side
// =============================================================================

type PlanStatus string

const (
	PlanActive    PlanStatus = "active"
	PlanInactive  PlanStatus = "inactive"
	PlanPaused    PlanStatus = "paused"
	PlanExpired   PlanStatus = "expired"
	PlanCancelled PlanStatus = "cancelled"
)

// Client is the slice of a client record the engine reads.
type Client struct {
	ID               string
	Name             string
	BirthDate        *Date
	PurchaseDate     *Date
	PlanDurationDays *int
	PlanStatus       PlanStatus
	ReassessmentDate *Date
	ReassessmentCode string
	RenewalAmount    *decimal.Decimal
}

func (c Client) subject() *SubjectRef {
	return &SubjectRef{ID: c.ID, Name: c.Name}
}

// PlanExpiration returns purchase + duration when both are known.
func (c Client) PlanExpiration() (Date, bool) {
	if c.PurchaseDate == nil || c.PurchaseDate.IsZero() || c.PlanDurationDays == nil {
		return Date{}, false
	}
	return c.PurchaseDate.AddDays(*c.PlanDurationDays), true
}

// ReassessmentCode is the lookup code of the public reassessment form: the
// explicit code when set, else the first 8 characters of the id upper-cased.
func ReassessmentCode(c Client) string {
	if code := strings.TrimSpace(c.ReassessmentCode); code != "" {
		return strings.ToUpper(code)
	}
	id := c.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return strings.ToUpper(id)
}

// =============================================================================
// PROJECTOR
// =============================================================================

// TitleFormats are fmt patterns taking the client name.
type TitleFormats struct {
	Birthday       string
	PlanExpiration string
	Reassessment   string
}

var DefaultTitles = TitleFormats{
	Birthday:       "Birthday: %s",
	PlanExpiration: "Plan expires: %s",
	Reassessment:   "Reassessment: %s",
}

// Projector expands derived events. The zero value uses DefaultTitles.
type Projector struct {
	Titles TitleFormats
}

// Project returns every derived event of roster inside w, sorted.
func (p Projector) Project(roster []Client, w Window) []Event {
	if w.Validate() != nil {
		return nil
	}
	titles := p.titles()

	var out []Event
	for _, c := range roster {
		if c.ID == "" {
			continue
		}
		out = append(out, projectBirthdays(c, w, titles.Birthday)...)
		if ev, ok := projectExpiration(c, w, titles.PlanExpiration); ok {
			out = append(out, ev)
		}
		if ev, ok := projectReassessment(c, w, titles.Reassessment); ok {
			out = append(out, ev)
		}
	}
	SortEvents(out)
	return out
}

func (p Projector) titles() TitleFormats {
	t := p.Titles
	if t.Birthday == "" {
		t.Birthday = DefaultTitles.Birthday
	}
	if t.PlanExpiration == "" {
		t.PlanExpiration = DefaultTitles.PlanExpiration
	}
	if t.Reassessment == "" {
		t.Reassessment = DefaultTitles.Reassessment
	}
	return t
}

// BirthdayIn returns the birthday of someone born on birth in year.
// Feb 29 maps to Feb 28 when year is not a leap year.
func BirthdayIn(birth Date, year int) Date {
	if birth.Month == time.February && birth.Day == 29 && !IsLeapYear(year) {
		return Date{Year: year, Month: time.February, Day: 28}
	}
	return Date{Year: year, Month: birth.Month, Day: birth.Day}
}

func projectBirthdays(c Client, w Window, title string) []Event {
	if c.BirthDate == nil || c.BirthDate.IsZero() {
		return nil
	}
	var out []Event
	for _, y := range w.Years() {
		if y <= c.BirthDate.Year {
			continue
		}
		d := BirthdayIn(*c.BirthDate, y)
		if !w.Contains(d) {
			continue
		}
		out = append(out, derivedEvent(KindBirthday, OriginDerivedBirthday, c, d, fmt.Sprintf(title, c.Name)))
	}
	return out
}

func projectExpiration(c Client, w Window, title string) (Event, bool) {
	if c.PlanStatus != PlanActive {
		return Event{}, false
	}
	d, ok := c.PlanExpiration()
	if !ok || !w.Contains(d) {
		return Event{}, false
	}
	ev := derivedEvent(KindPlanExpiration, OriginDerivedExpiration, c, d, fmt.Sprintf(title, c.Name))
	if c.RenewalAmount != nil {
		amount := *c.RenewalAmount
		ev.Amount = &amount
	}
	return ev, true
}

func projectReassessment(c Client, w Window, title string) (Event, bool) {
	if c.ReassessmentDate == nil || c.ReassessmentDate.IsZero() || !w.Contains(*c.ReassessmentDate) {
		return Event{}, false
	}
	ev := derivedEvent(KindReassessment, OriginDerivedReassessment, c, *c.ReassessmentDate, fmt.Sprintf(title, c.Name))
	ev.Description = "code " + ReassessmentCode(c)
	return ev, true
}

func derivedEvent(kind Kind, origin Origin, c Client, d Date, title string) Event {
	style := kind.Style()
	ev := Event{
		ID:      DerivedID(origin, kind, c.ID, d),
		Title:   title,
		Date:    d,
		Kind:    kind,
		Subject: c.subject(),
		Color:   style.Color,
		Origin:  origin,
	}
	if style.Reminder != nil {
		r := *style.Reminder
		ev.Reminder = &r
	}
	return ev
}
