/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupling the agenda
  model from the wire contract. Dates travel as "YYYY-MM-DD", times as
  "HH:MM", money as decimal strings.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

PATCH BODIES:
  UpdateEventRequest follows patch semantics: absent (null) fields are left
  untouched. Optional fields are cleared with the explicit clear_* flags,
  since JSON null cannot be told apart from "absent" here.

VALIDATION:
  Validation is done in the agenda package, not in DTOs. DTOs only parse.

SEE ALSO:
  - handlers.go: Uses these types
  - agenda/types.go: Domain types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/andenutri/agenda-engine/agenda"
)

// =============================================================================
// EVENTS
// =============================================================================

// EventDTO represents an event in API responses.
type EventDTO struct {
	ID           string             `json:"id"`
	Title        string             `json:"title"`
	Description  string             `json:"description,omitempty"`
	Date         string             `json:"date"`
	Time         string             `json:"time,omitempty"`
	Kind         agenda.Kind        `json:"kind"`
	Subject      *agenda.SubjectRef `json:"subject,omitempty"`
	Color        string             `json:"color"`
	Reminder     *agenda.Reminder   `json:"reminder,omitempty"`
	Acknowledged bool               `json:"acknowledged"`
	Origin       agenda.Origin      `json:"origin"`
	Amount       *decimal.Decimal   `json:"amount,omitempty"`
	Recurrence   string             `json:"recurrence,omitempty"`
	SeriesID     string             `json:"series_id,omitempty"`
	CreatedAt    string             `json:"created_at,omitempty"`
	UpdatedAt    string             `json:"updated_at,omitempty"`
}

func toEventDTO(ev agenda.Event) EventDTO {
	dto := EventDTO{
		ID:           ev.ID,
		Title:        ev.Title,
		Description:  ev.Description,
		Date:         ev.Date.String(),
		Kind:         ev.Kind,
		Subject:      ev.Subject,
		Color:        ev.Color,
		Reminder:     ev.Reminder,
		Acknowledged: ev.Acknowledged,
		Origin:       ev.Origin,
		Amount:       ev.Amount,
		Recurrence:   ev.Recurrence,
		SeriesID:     ev.SeriesID,
	}
	if ev.Time != nil {
		dto.Time = ev.Time.String()
	}
	if !ev.CreatedAt.IsZero() {
		dto.CreatedAt = ev.CreatedAt.Format(time.RFC3339)
	}
	if !ev.UpdatedAt.IsZero() {
		dto.UpdatedAt = ev.UpdatedAt.Format(time.RFC3339)
	}
	return dto
}

func toEventDTOs(events []agenda.Event) []EventDTO {
	dtos := make([]EventDTO, len(events))
	for i, ev := range events {
		dtos[i] = toEventDTO(ev)
	}
	return dtos
}

// CreateEventRequest is the body of POST /api/events.
type CreateEventRequest struct {
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Date        string             `json:"date"`
	Time        string             `json:"time"`
	Kind        string             `json:"kind"`
	Subject     *agenda.SubjectRef `json:"subject"`
	Color       string             `json:"color"`
	// Reminder accepts lead-time labels such as "1d", "2 dias", "1w".
	Reminder   string           `json:"reminder"`
	NoReminder bool             `json:"no_reminder"`
	Recurrence string           `json:"recurrence"`
	Amount     *decimal.Decimal `json:"amount"`
}

func (req CreateEventRequest) toDraft() (agenda.Draft, error) {
	d := agenda.Draft{
		Title:       req.Title,
		Description: req.Description,
		Subject:     req.Subject,
		Color:       req.Color,
		NoReminder:  req.NoReminder,
		Recurrence:  req.Recurrence,
		Amount:      req.Amount,
	}
	var err error
	if req.Date != "" {
		if d.Date, err = agenda.ParseDate(req.Date); err != nil {
			return agenda.Draft{}, &agenda.ValidationError{Field: "date", Reason: err.Error()}
		}
	}
	if req.Time != "" {
		c, err := agenda.ParseClock(req.Time)
		if err != nil {
			return agenda.Draft{}, &agenda.ValidationError{Field: "time", Reason: err.Error()}
		}
		d.Time = &c
	}
	if req.Kind != "" {
		if d.Kind, err = agenda.ParseKind(req.Kind); err != nil {
			return agenda.Draft{}, err
		}
	}
	if req.Reminder != "" {
		r, err := agenda.ParseLeadTime(req.Reminder)
		if err != nil {
			return agenda.Draft{}, err
		}
		d.Reminder = &r
	}
	return d, nil
}

// UpdateEventRequest is the body of PATCH /api/events/{id}.
type UpdateEventRequest struct {
	Title        *string            `json:"title"`
	Description  *string            `json:"description"`
	Date         *string            `json:"date"`
	Time         *string            `json:"time"`
	Kind         *string            `json:"kind"`
	Subject      *agenda.SubjectRef `json:"subject"`
	Color        *string            `json:"color"`
	Reminder     *string            `json:"reminder"`
	Acknowledged *bool              `json:"acknowledged"`
	Recurrence   *string            `json:"recurrence"`
	Amount       *decimal.Decimal   `json:"amount"`

	ClearTime     bool `json:"clear_time"`
	ClearSubject  bool `json:"clear_subject"`
	ClearReminder bool `json:"clear_reminder"`
	ClearAmount   bool `json:"clear_amount"`
}

func (req UpdateEventRequest) toPatch() (agenda.Patch, error) {
	p := agenda.Patch{
		Title:         req.Title,
		Description:   req.Description,
		Subject:       req.Subject,
		Color:         req.Color,
		Acknowledged:  req.Acknowledged,
		Recurrence:    req.Recurrence,
		Amount:        req.Amount,
		ClearTime:     req.ClearTime,
		ClearSubject:  req.ClearSubject,
		ClearReminder: req.ClearReminder,
		ClearAmount:   req.ClearAmount,
	}
	if req.Date != nil {
		d, err := agenda.ParseDate(*req.Date)
		if err != nil {
			return agenda.Patch{}, &agenda.ValidationError{Field: "date", Reason: err.Error()}
		}
		p.Date = &d
	}
	if req.Time != nil {
		c, err := agenda.ParseClock(*req.Time)
		if err != nil {
			return agenda.Patch{}, &agenda.ValidationError{Field: "time", Reason: err.Error()}
		}
		p.Time = &c
	}
	if req.Kind != nil {
		k := agenda.Kind(*req.Kind)
		p.Kind = &k
	}
	if req.Reminder != nil {
		r, err := agenda.ParseLeadTime(*req.Reminder)
		if err != nil {
			return agenda.Patch{}, err
		}
		p.Reminder = &r
	}
	return p, nil
}

// =============================================================================
// VIEWS
// =============================================================================

// CellDTO is one grid cell. Date is empty for padding cells.
type CellDTO struct {
	Date     string     `json:"date,omitempty"`
	Position int        `json:"position"`
	Events   []EventDTO `json:"events"`
}

// ViewDTO is the response of GET /api/agenda. Events covers the whole query
// window, which for month views includes the leading and trailing days of
// the first and last weeks; those events appear in no cell.
type ViewDTO struct {
	View       agenda.Granularity `json:"view"`
	Anchor     string             `json:"anchor"`
	Start      string             `json:"start"`
	End        string             `json:"end"`
	Cells      []CellDTO          `json:"cells"`
	Events     []EventDTO         `json:"events"`
	Total      int                `json:"total"`
	Generation uint64             `json:"generation,omitempty"`
}

func toViewDTO(v agenda.View) ViewDTO {
	dto := ViewDTO{
		View:       v.View,
		Anchor:     v.Anchor.String(),
		Start:      v.Window.Start.String(),
		End:        v.Window.End.String(),
		Cells:      make([]CellDTO, len(v.Cells)),
		Events:     toEventDTOs(v.Events),
		Total:      len(v.Events),
		Generation: v.Generation,
	}
	for i, c := range v.Cells {
		cell := CellDTO{Position: c.Position, Events: toEventDTOs(c.Events)}
		if c.Date != nil {
			cell.Date = c.Date.String()
		}
		dto.Cells[i] = cell
	}
	return dto
}

// UpcomingDTO is one entry of GET /api/upcoming.
type UpcomingDTO struct {
	EventDTO
	DaysUntil int `json:"days_until"`
}

// SummaryDTO is the response of GET /api/summary/{year}.
type SummaryDTO struct {
	Year   int     `json:"year"`
	Months [12]int `json:"months"`
	Total  int     `json:"total"`
}

// RemindersDTO is the response of GET /api/reminders.
type RemindersDTO struct {
	AsOf      string     `json:"as_of"`
	Reminders []EventDTO `json:"reminders"`
}

// ImportResponse summarizes POST /api/import.
type ImportResponse struct {
	Created []EventDTO `json:"created"`
	Skipped []string   `json:"skipped"`
	Failed  []string   `json:"failed,omitempty"`
}

// =============================================================================
// CLIENTS
// =============================================================================

// ClientDTO represents a roster record.
type ClientDTO struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	BirthDate        string           `json:"birth_date,omitempty"`
	PurchaseDate     string           `json:"purchase_date,omitempty"`
	PlanDurationDays *int             `json:"plan_duration_days,omitempty"`
	PlanStatus       string           `json:"plan_status,omitempty"`
	ReassessmentDate string           `json:"reassessment_date,omitempty"`
	ReassessmentCode string           `json:"reassessment_code,omitempty"`
	RenewalAmount    *decimal.Decimal `json:"renewal_amount,omitempty"`
	PlanExpiration   string           `json:"plan_expiration,omitempty"`
}

func toClientDTO(c agenda.Client) ClientDTO {
	dto := ClientDTO{
		ID:               c.ID,
		Name:             c.Name,
		PlanDurationDays: c.PlanDurationDays,
		PlanStatus:       string(c.PlanStatus),
		ReassessmentCode: agenda.ReassessmentCode(c),
		RenewalAmount:    c.RenewalAmount,
		BirthDate:        dateString(c.BirthDate),
		PurchaseDate:     dateString(c.PurchaseDate),
		ReassessmentDate: dateString(c.ReassessmentDate),
	}
	if exp, ok := c.PlanExpiration(); ok {
		dto.PlanExpiration = exp.String()
	}
	return dto
}

func (dto ClientDTO) toClient() (agenda.Client, error) {
	c := agenda.Client{
		ID:               dto.ID,
		Name:             dto.Name,
		PlanDurationDays: dto.PlanDurationDays,
		PlanStatus:       agenda.PlanStatus(dto.PlanStatus),
		ReassessmentCode: dto.ReassessmentCode,
		RenewalAmount:    dto.RenewalAmount,
	}
	var err error
	if c.BirthDate, err = parseOptionalDate("birth_date", dto.BirthDate); err != nil {
		return agenda.Client{}, err
	}
	if c.PurchaseDate, err = parseOptionalDate("purchase_date", dto.PurchaseDate); err != nil {
		return agenda.Client{}, err
	}
	if c.ReassessmentDate, err = parseOptionalDate("reassessment_date", dto.ReassessmentDate); err != nil {
		return agenda.Client{}, err
	}
	return c, nil
}

// ReassessmentDTO is what the public reassessment form may see.
type ReassessmentDTO struct {
	ClientID         string `json:"client_id"`
	Name             string `json:"name"`
	Code             string `json:"code"`
	ReassessmentDate string `json:"reassessment_date,omitempty"`
}

func dateString(d *agenda.Date) string {
	if d == nil {
		return ""
	}
	return d.String()
}

func parseOptionalDate(field, s string) (*agenda.Date, error) {
	if s == "" {
		return nil, nil
	}
	d, err := agenda.ParseDate(s)
	if err != nil {
		return nil, &agenda.ValidationError{Field: field, Reason: err.Error()}
	}
	return &d, nil
}

// =============================================================================
// MISC
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// HealthDTO is the response of GET /health.
type HealthDTO struct {
	Status    string     `json:"status"`
	LastSweep *SweepDTO `json:"last_sweep,omitempty"`
}

// SweepDTO reports the latest reminder sweep.
type SweepDTO struct {
	RanAt string `json:"ran_at"`
	AsOf  string `json:"as_of"`
	Due   int    `json:"due"`
	Error string `json:"error,omitempty"`
}

// ErrorResponse is the standard error format.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
