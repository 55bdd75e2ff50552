package agenda

// =============================================================================
// WINDOW - Closed date range bounding every query and projection
// =============================================================================

// Window is the closed range [Start, End]. Both ends are inclusive.
//
// Examples:
//   - Month grid of June 2025: 2025-06-01 .. 2025-06-30
//   - Week grid (Sunday start) of 2025-06-04: 2025-06-01 .. 2025-06-07
//   - Single day: Start == End
type Window struct {
	Start Date
	End   Date
}

func NewWindow(start, end Date) (Window, error) {
	w := Window{Start: start, End: end}
	if err := w.Validate(); err != nil {
		return Window{}, err
	}
	return w, nil
}

// DayWindow is the one-day window used by single-day queries.
func DayWindow(d Date) Window { return Window{Start: d, End: d} }

func (w Window) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() || w.End.Before(w.Start) {
		return ErrInvalidWindow
	}
	return nil
}

// Contains returns true if d is within [Start, End].
func (w Window) Contains(d Date) bool {
	return d.AfterOrEqual(w.Start) && d.BeforeOrEqual(w.End)
}

// Days returns every date in the window in order.
func (w Window) Days() []Date {
	var days []Date
	for current := w.Start; current.BeforeOrEqual(w.End); current = current.AddDays(1) {
		days = append(days, current)
	}
	return days
}

// Years returns each calendar year the window touches.
func (w Window) Years() []int {
	var years []int
	for y := w.Start.Year; y <= w.End.Year; y++ {
		years = append(years, y)
	}
	return years
}

func (w Window) String() string {
	return "[" + w.Start.String() + ", " + w.End.String() + "]"
}
