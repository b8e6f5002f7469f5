package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendtrack/internal/attendance"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func TestBuildGrid(t *testing.T) {
	tests := []struct {
		name                    string
		year, month             int
		leading, days, trailing int
	}{
		// 1 March 2025 is a Saturday.
		{"march 2025", 2025, 3, 6, 31, 5},
		// 1 February 2026 is a Sunday and fills exactly four rows.
		{"february 2026", 2026, 2, 0, 28, 0},
		{"leap february", 2024, 2, 4, 29, 2},
		{"october 2026", 2026, 10, 4, 31, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := BuildGrid(tt.year, tt.month, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.leading, g.Leading)
			assert.Equal(t, tt.days, g.Days)
			assert.Equal(t, tt.trailing, g.Trailing)
			assert.Len(t, g.Cells, tt.leading+tt.days+tt.trailing)
			assert.Zero(t, len(g.Cells)%7)
			assert.Len(t, g.Weeks(), len(g.Cells)/7)
		})
	}
}

func TestBuildGridCounts(t *testing.T) {
	counts := map[string]attendance.DayCount{
		"2025-03-03": {Present: 2, Absent: 0},
		"2025-03-04": {Present: 1, Absent: 1},
		"2025-03-05": {Present: 0, Absent: 3},
	}
	g, err := BuildGrid(2025, 3, counts)
	require.NoError(t, err)

	day := func(d int) Cell { return g.Cells[g.Leading+d-1] }
	assert.True(t, day(3).Marked)
	assert.True(t, day(3).PresentPlus)
	assert.False(t, day(3).AbsentPlus)
	assert.True(t, day(4).Marked)
	assert.False(t, day(4).PresentPlus)
	assert.True(t, day(5).AbsentPlus)
	assert.False(t, day(6).Marked)
	assert.Equal(t, "2025-03-06", day(6).Date)
	assert.True(t, g.Cells[0].Blank())
}

func TestBuildGridRejectsBadMonth(t *testing.T) {
	_, err := BuildGrid(2025, 13, nil)
	assert.Error(t, err)
}

func newSelection() *Selection {
	loc := time.FixedZone("IST", 5*3600+1800)
	// 20:00 UTC on the 14th is already the 15th in IST.
	return NewSelection(fixedClock{time.Date(2025, 3, 14, 20, 0, 0, 0, time.UTC)}, loc)
}

func TestSelectionDefaultsToLocalToday(t *testing.T) {
	s := newSelection()
	assert.Equal(t, "2025-03-15", s.Selected())
	assert.Equal(t, "2025-03-15", s.Today())
	y, m := s.View()
	assert.Equal(t, 2025, y)
	assert.Equal(t, 3, m)
}

func TestClickFutureIsIgnored(t *testing.T) {
	counts := map[string]attendance.DayCount{"2025-03-16": {Present: 1}}
	s := newSelection()
	for _, d := range []string{"2025-03-16", "2025-04-01", "2026-01-01"} {
		assert.Equal(t, Ignored, s.Click(d, counts), d)
		assert.Equal(t, "2025-03-15", s.Selected())
	}
	s.Click("2025-03-10", counts)
	assert.Equal(t, Ignored, s.Click("2025-03-16", counts))
	assert.Equal(t, "2025-03-10", s.Selected())
}

func TestClickSelectsPastDate(t *testing.T) {
	s := newSelection()
	assert.Equal(t, Selected, s.Click("2025-03-01", nil))
	assert.Equal(t, "2025-03-01", s.Selected())
	assert.Equal(t, Selected, s.Click("2025-03-15", nil))
}

func TestClickSelectedDate(t *testing.T) {
	counts := map[string]attendance.DayCount{"2025-03-10": {Absent: 1}}
	s := newSelection()

	assert.Equal(t, Ignored, s.Click("2025-03-15", counts), "today has no records")

	require.Equal(t, Selected, s.Click("2025-03-10", counts))
	assert.Equal(t, OpenDetail, s.Click("2025-03-10", counts))
	assert.Equal(t, "2025-03-10", s.Selected())
}

func TestClickMalformedDate(t *testing.T) {
	s := newSelection()
	assert.Equal(t, Ignored, s.Click("15/03/2025", nil))
	assert.Equal(t, "2025-03-15", s.Selected())
}

func TestMonthNavigationKeepsSelection(t *testing.T) {
	s := newSelection()
	s.PrevMonth()
	s.PrevMonth()
	s.PrevMonth()
	y, m := s.View()
	assert.Equal(t, 2024, y)
	assert.Equal(t, 12, m)
	assert.Equal(t, "2025-03-15", s.Selected())

	s.NextMonth()
	y, m = s.View()
	assert.Equal(t, 2025, y)
	assert.Equal(t, 1, m)
	assert.Equal(t, 2025, s.Grid(nil).Year)
}
