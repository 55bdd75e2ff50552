package agenda

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// DATE GRID - Cell layout for month/week/day views
// =============================================================================

type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(strings.ToLower(strings.TrimSpace(s))); g {
	case GranularityDay, GranularityWeek, GranularityMonth:
		return g, nil
	case "":
		return GranularityMonth, nil
	}
	return "", invalid("view", fmt.Sprintf("unknown view %q (use day, week or month)", s))
}

// GridOptions configures the layout. The zero value is a Sunday-first week
// with no trailing padding.
type GridOptions struct {
	WeekStart time.Weekday
	// FullWeeks pads a month grid with trailing cells up to a multiple of 7.
	FullWeeks bool
	// SpillWeeks widens a month view's query window to whole weeks, so the
	// view also returns events on the adjacent-month days behind padding
	// cells. They are not placed in cells.
	SpillWeeks bool
}

// Cell is one grid slot. Date is nil for padding cells outside the month.
type Cell struct {
	Date     *Date
	Position int
	Events   []Event
}

func (c Cell) IsPadding() bool { return c.Date == nil }

// BuildGrid produces the ordered cells needed to render view g anchored at
// anchor. It is pure date arithmetic; an unknown granularity is a programming
// error and panics.
//
//   - month: one leading padding cell per weekday before the 1st, then one
//     cell per day of the month (trailing padding only with FullWeeks)
//   - week: 7 cells from the start of anchor's week
//   - day: exactly one cell
func BuildGrid(anchor Date, g Granularity, opts GridOptions) []Cell {
	switch g {
	case GranularityMonth:
		return monthGrid(anchor, opts)
	case GranularityWeek:
		start := anchor.StartOfWeek(opts.WeekStart)
		cells := make([]Cell, 7)
		for i := range cells {
			d := start.AddDays(i)
			cells[i] = Cell{Date: &d, Position: i}
		}
		return cells
	case GranularityDay:
		d := anchor
		return []Cell{{Date: &d, Position: 0}}
	}
	panic(fmt.Sprintf("agenda: invalid granularity %q", g))
}

func monthGrid(anchor Date, opts GridOptions) []Cell {
	first := anchor.StartOfMonth()
	lead := weekdayIndex(first.Weekday(), opts.WeekStart)
	days := first.DaysInMonth()

	total := lead + days
	if opts.FullWeeks && total%7 != 0 {
		total += 7 - total%7
	}

	cells := make([]Cell, total)
	for i := range cells {
		cells[i].Position = i
		if day := i - lead; day >= 0 && day < days {
			d := first.AddDays(day)
			cells[i].Date = &d
		}
	}
	return cells
}

// WindowOf returns the min/max date spanned by the non-padding cells.
func WindowOf(cells []Cell) Window {
	var w Window
	for _, c := range cells {
		if c.Date == nil {
			continue
		}
		if w.Start.IsZero() || c.Date.Before(w.Start) {
			w.Start = *c.Date
		}
		if w.End.IsZero() || c.Date.After(w.End) {
			w.End = *c.Date
		}
	}
	return w
}

// WindowFor is the date range a view queries: the grid's min/max date, or
// whole weeks for a month view with SpillWeeks.
func WindowFor(anchor Date, g Granularity, opts GridOptions) Window {
	return queryWindow(BuildGrid(anchor, g, opts), g, opts)
}

func queryWindow(cells []Cell, g Granularity, opts GridOptions) Window {
	w := WindowOf(cells)
	if opts.SpillWeeks && g == GranularityMonth && !w.Start.IsZero() {
		w.Start = w.Start.StartOfWeek(opts.WeekStart)
		w.End = w.End.StartOfWeek(opts.WeekStart).AddDays(6)
	}
	return w
}
