// Package calendar builds month grids and tracks the selected attendance date.
package calendar

import (
	"fmt"
	"time"

	"attendtrack/internal/attendance"
)

// Cell is one square of the month grid. Blank padding cells have Day == 0.
type Cell struct {
	Day     int    `json:"day,omitempty"`
	Date    string `json:"date,omitempty"`
	Present int    `json:"present"`
	Absent  int    `json:"absent"`
	// Marked is set when either count is positive.
	Marked      bool `json:"marked"`
	PresentPlus bool `json:"present_plus"`
	AbsentPlus  bool `json:"absent_plus"`
}

// Blank reports whether c is padding.
func (c Cell) Blank() bool { return c.Day == 0 }

// Grid is a month laid out in rows of seven, Sunday first.
type Grid struct {
	Year     int    `json:"year"`
	Month    int    `json:"month"`
	Leading  int    `json:"leading"`
	Days     int    `json:"days"`
	Trailing int    `json:"trailing"`
	Cells    []Cell `json:"cells"`
}

// Weeks splits the cells into rows of seven.
func (g Grid) Weeks() [][]Cell {
	var out [][]Cell
	for i := 0; i < len(g.Cells); i += 7 {
		out = append(out, g.Cells[i:i+7])
	}
	return out
}

// BuildGrid lays out year/month with the sparse per-day counts.
func BuildGrid(year, month int, counts map[string]attendance.DayCount) (Grid, error) {
	if month < 1 || month > 12 {
		return Grid{}, fmt.Errorf("invalid month %d", month)
	}
	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	days := first.AddDate(0, 1, -1).Day()
	leading := int(first.Weekday())
	trailing := (7 - (leading+days)%7) % 7

	g := Grid{
		Year:     year,
		Month:    month,
		Leading:  leading,
		Days:     days,
		Trailing: trailing,
		Cells:    make([]Cell, 0, leading+days+trailing),
	}
	for i := 0; i < leading; i++ {
		g.Cells = append(g.Cells, Cell{})
	}
	for d := 1; d <= days; d++ {
		date := fmt.Sprintf("%04d-%02d-%02d", year, month, d)
		dc := counts[date]
		g.Cells = append(g.Cells, Cell{
			Day:         d,
			Date:        date,
			Present:     dc.Present,
			Absent:      dc.Absent,
			Marked:      dc.Present > 0 || dc.Absent > 0,
			PresentPlus: dc.Present > 1,
			AbsentPlus:  dc.Absent > 1,
		})
	}
	for i := 0; i < trailing; i++ {
		g.Cells = append(g.Cells, Cell{})
	}
	return g, nil
}
