package agenda_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andenutri/agenda-engine/agenda"
)

func d(s string) agenda.Date { return agenda.MustParseDate(s) }

func datedCells(cells []agenda.Cell) []agenda.Cell {
	var out []agenda.Cell
	for _, c := range cells {
		if !c.IsPadding() {
			out = append(out, c)
		}
	}
	return out
}

func leadingPadding(cells []agenda.Cell) int {
	n := 0
	for _, c := range cells {
		if !c.IsPadding() {
			break
		}
		n++
	}
	return n
}

// =============================================================================
// MONTH GRID
// =============================================================================

func TestBuildGrid_Month_LeapFebruary(t *testing.T) {
	// GIVEN: February 2024 (leap year), week starting Sunday
	// WHEN: Building the month grid
	// THEN: 29 dated cells after 4 leading padding cells (Feb 1 2024 is a Thursday)

	cells := agenda.BuildGrid(d("2024-02-10"), agenda.GranularityMonth, agenda.GridOptions{})

	assert.Len(t, datedCells(cells), 29)
	assert.Equal(t, 4, leadingPadding(cells))
	assert.Len(t, cells, 33, "no trailing padding by default")
	assert.Equal(t, d("2024-02-29"), *cells[len(cells)-1].Date)
}

func TestBuildGrid_Month_NonLeapFebruary(t *testing.T) {
	cells := agenda.BuildGrid(d("2025-02-01"), agenda.GranularityMonth, agenda.GridOptions{})

	assert.Len(t, datedCells(cells), 28)
	assert.Equal(t, 6, leadingPadding(cells), "Feb 1 2025 is a Saturday")
}

func TestBuildGrid_Month_FullWeeksPadsTrailing(t *testing.T) {
	// GIVEN: A UI that wants whole rows
	// WHEN: Building February 2024
	// THEN: Total cell count is a multiple of 7 and trailing cells are padding

	cells := agenda.BuildGrid(d("2024-02-10"), agenda.GranularityMonth, agenda.GridOptions{FullWeeks: true})

	require.Len(t, cells, 35)
	assert.True(t, cells[33].IsPadding())
	assert.True(t, cells[34].IsPadding())
	assert.Len(t, datedCells(cells), 29)
}

func TestBuildGrid_Month_MondayStart(t *testing.T) {
	// June 1 2025 is a Sunday: column 0 for Sunday-start, column 6 for Monday-start.
	sunday := agenda.BuildGrid(d("2025-06-15"), agenda.GranularityMonth, agenda.GridOptions{WeekStart: time.Sunday})
	monday := agenda.BuildGrid(d("2025-06-15"), agenda.GranularityMonth, agenda.GridOptions{WeekStart: time.Monday})

	assert.Equal(t, 0, leadingPadding(sunday))
	assert.Equal(t, 6, leadingPadding(monday))
	assert.Len(t, datedCells(monday), 30)
}

func TestBuildGrid_Month_YearBoundaries(t *testing.T) {
	// GIVEN: Anchors on the last and first day of a year
	// THEN: Each grid shows the anchor's own month

	dec := datedCells(agenda.BuildGrid(d("2025-12-31"), agenda.GranularityMonth, agenda.GridOptions{}))
	require.Len(t, dec, 31)
	assert.Equal(t, d("2025-12-01"), *dec[0].Date)
	assert.Equal(t, d("2025-12-31"), *dec[30].Date)

	jan := datedCells(agenda.BuildGrid(d("2026-01-01"), agenda.GranularityMonth, agenda.GridOptions{}))
	require.Len(t, jan, 31)
	assert.Equal(t, d("2026-01-01"), *jan[0].Date)
}

func TestBuildGrid_PositionsAreSequential(t *testing.T) {
	cells := agenda.BuildGrid(d("2025-03-01"), agenda.GranularityMonth, agenda.GridOptions{FullWeeks: true})
	for i, c := range cells {
		assert.Equal(t, i, c.Position)
	}
}

// =============================================================================
// WEEK & DAY GRIDS
// =============================================================================

func TestBuildGrid_Week_CrossesYear(t *testing.T) {
	// GIVEN: Wednesday 2025-01-01, Sunday week start
	// THEN: Sunday 2024-12-29 through Saturday 2025-01-04

	cells := agenda.BuildGrid(d("2025-01-01"), agenda.GranularityWeek, agenda.GridOptions{})

	require.Len(t, cells, 7)
	assert.Equal(t, d("2024-12-29"), *cells[0].Date)
	assert.Equal(t, d("2025-01-04"), *cells[6].Date)
	for _, c := range cells {
		assert.False(t, c.IsPadding())
	}
}

func TestBuildGrid_Week_MondayStart(t *testing.T) {
	cells := agenda.BuildGrid(d("2025-06-15"), agenda.GranularityWeek, agenda.GridOptions{WeekStart: time.Monday})

	require.Len(t, cells, 7)
	assert.Equal(t, d("2025-06-09"), *cells[0].Date)
	assert.Equal(t, d("2025-06-15"), *cells[6].Date)
}

func TestBuildGrid_Day(t *testing.T) {
	cells := agenda.BuildGrid(d("2024-02-29"), agenda.GranularityDay, agenda.GridOptions{})

	require.Len(t, cells, 1)
	assert.Equal(t, d("2024-02-29"), *cells[0].Date)
}

func TestBuildGrid_InvalidGranularityPanics(t *testing.T) {
	assert.Panics(t, func() {
		agenda.BuildGrid(d("2025-01-01"), agenda.Granularity("year"), agenda.GridOptions{})
	})
}

func TestParseGranularity(t *testing.T) {
	g, err := agenda.ParseGranularity("")
	require.NoError(t, err)
	assert.Equal(t, agenda.GranularityMonth, g)

	g, err = agenda.ParseGranularity(" Week ")
	require.NoError(t, err)
	assert.Equal(t, agenda.GranularityWeek, g)

	_, err = agenda.ParseGranularity("fortnight")
	assert.ErrorIs(t, err, agenda.ErrValidation)
}

func TestBuildGrid_Month_EveryMonth(t *testing.T) {
	// GIVEN: Every month of century, leap and common years, both week starts
	// THEN: One cell per day, distinct and contiguous from the 1st, with
	//       leading padding equal to the 1st's weekday offset

	for _, year := range []int{1900, 2000, 2023, 2024} {
		for month := time.January; month <= time.December; month++ {
			for _, ws := range []time.Weekday{time.Sunday, time.Monday} {
				anchor := agenda.NewDate(year, month, 15)
				cells := agenda.BuildGrid(anchor, agenda.GranularityMonth, agenda.GridOptions{WeekStart: ws})
				dated := datedCells(cells)
				name := anchor.StartOfMonth().String() + "/" + ws.String()

				require.Len(t, dated, agenda.DaysInMonth(year, month), name)
				seen := map[agenda.Date]bool{}
				for i, c := range dated {
					assert.Equal(t, agenda.NewDate(year, month, 1).AddDays(i), *c.Date, name)
					assert.False(t, seen[*c.Date], name)
					seen[*c.Date] = true
				}
				first := agenda.NewDate(year, month, 1)
				assert.Equal(t, (int(first.Weekday())-int(ws)+7)%7, leadingPadding(cells), name)
				assert.Len(t, cells, leadingPadding(cells)+len(dated), name)
			}
		}
	}
}

// =============================================================================
// WINDOWS
// =============================================================================

func TestWindowFor_MonthIsGridSpan(t *testing.T) {
	// GIVEN: March 2025 (Sat 1st to Mon 31st), Sunday week start
	// THEN: The query window is the month itself, padding included or not

	w := agenda.WindowFor(d("2025-03-01"), agenda.GranularityMonth, agenda.GridOptions{})
	assert.Equal(t, agenda.Window{Start: d("2025-03-01"), End: d("2025-03-31")}, w)

	w = agenda.WindowFor(d("2025-03-01"), agenda.GranularityMonth, agenda.GridOptions{FullWeeks: true})
	assert.Equal(t, agenda.Window{Start: d("2025-03-01"), End: d("2025-03-31")}, w)
}

func TestWindowFor_SpillWeeksExtendsMonthToWholeWeeks(t *testing.T) {
	// GIVEN: March 2025 with SpillWeeks
	// THEN: The query window covers Sun Feb 23 through Sat Apr 5

	w := agenda.WindowFor(d("2025-03-01"), agenda.GranularityMonth, agenda.GridOptions{SpillWeeks: true})

	assert.Equal(t, d("2025-02-23"), w.Start)
	assert.Equal(t, d("2025-04-05"), w.End)

	// Week and day views are already whole.
	week := agenda.WindowFor(d("2025-03-05"), agenda.GranularityWeek, agenda.GridOptions{SpillWeeks: true})
	assert.Equal(t, agenda.Window{Start: d("2025-03-02"), End: d("2025-03-08")}, week)
}

func TestWindowOf_IgnoresPadding(t *testing.T) {
	w := agenda.WindowOf(agenda.BuildGrid(d("2025-03-01"), agenda.GranularityMonth, agenda.GridOptions{FullWeeks: true}))

	assert.Equal(t, d("2025-03-01"), w.Start)
	assert.Equal(t, d("2025-03-31"), w.End)
}

func TestWindow_Validate(t *testing.T) {
	_, err := agenda.NewWindow(d("2025-03-02"), d("2025-03-01"))
	assert.ErrorIs(t, err, agenda.ErrInvalidWindow)

	_, err = agenda.NewWindow(agenda.Date{}, d("2025-03-01"))
	assert.ErrorIs(t, err, agenda.ErrInvalidWindow)

	w, err := agenda.NewWindow(d("2025-03-01"), d("2025-03-01"))
	require.NoError(t, err)
	assert.True(t, w.Contains(d("2025-03-01")))
	assert.False(t, w.Contains(d("2025-03-02")))
}

// =============================================================================
// DATES
// =============================================================================

func TestDate_Arithmetic(t *testing.T) {
	assert.Equal(t, d("2025-03-01"), d("2025-02-28").AddDays(1))
	assert.Equal(t, d("2024-02-29"), d("2024-02-28").AddDays(1))
	assert.Equal(t, d("2025-04-01"), d("2025-01-01").AddDays(90))
	assert.Equal(t, 90, d("2025-01-01").DaysUntil(d("2025-04-01")))
	assert.Equal(t, -1, d("2025-01-01").DaysUntil(d("2024-12-31")))
	assert.True(t, agenda.IsLeapYear(2000))
	assert.False(t, agenda.IsLeapYear(1900))
}

func TestParseDateAndClock(t *testing.T) {
	_, err := agenda.ParseDate("2025-02-30")
	assert.Error(t, err)

	c, err := agenda.ParseClock("09:30")
	require.NoError(t, err)
	assert.Equal(t, "09:30", c.String())

	_, err = agenda.ParseClock("24:00")
	assert.Error(t, err)
}
