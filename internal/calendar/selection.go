package calendar

import (
	"time"

	"attendtrack/internal/attendance"
)

// Clock supplies the viewer's current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Outcome is the effect of clicking a date.
type Outcome int

const (
	// Ignored means nothing changed.
	Ignored Outcome = iota
	// Selected means the clicked date is now the target of marking.
	Selected
	// OpenDetail means the selected date was clicked again and has records to show.
	OpenDetail
)

func (o Outcome) String() string {
	switch o {
	case Selected:
		return "selected"
	case OpenDetail:
		return "open_detail"
	default:
		return "ignored"
	}
}

// Selection holds the selected date and the month being viewed.
type Selection struct {
	clock    Clock
	loc      *time.Location
	selected string
	year     int
	month    time.Month
}

// NewSelection starts on today in loc, viewing the current month.
func NewSelection(clock Clock, loc *time.Location) *Selection {
	if clock == nil {
		clock = SystemClock{}
	}
	if loc == nil {
		loc = time.Local
	}
	s := &Selection{clock: clock, loc: loc}
	now := s.now()
	s.selected = now.Format(attendance.DateLayout)
	s.year, s.month = now.Year(), now.Month()
	return s
}

func (s *Selection) now() time.Time { return s.clock.Now().In(s.loc) }

// Today is the viewer's local date.
func (s *Selection) Today() string { return s.now().Format(attendance.DateLayout) }

// Selected is the date attendance marks are written to.
func (s *Selection) Selected() string { return s.selected }

// View returns the month being displayed.
func (s *Selection) View() (int, int) { return s.year, int(s.month) }

// IsFuture reports whether date is strictly after the viewer's today.
func (s *Selection) IsFuture(date string) bool {
	return date > s.Today()
}

// Click applies a click on date given the counts of the viewed month.
func (s *Selection) Click(date string, counts map[string]attendance.DayCount) Outcome {
	if _, err := time.Parse(attendance.DateLayout, date); err != nil || s.IsFuture(date) {
		return Ignored
	}
	if date != s.selected {
		s.selected = date
		return Selected
	}
	dc := counts[date]
	if dc.Present > 0 || dc.Absent > 0 {
		return OpenDetail
	}
	return Ignored
}

// NextMonth moves the view forward without touching the selected date.
func (s *Selection) NextMonth() { s.shift(1) }

// PrevMonth moves the view back without touching the selected date.
func (s *Selection) PrevMonth() { s.shift(-1) }

func (s *Selection) shift(n int) {
	t := time.Date(s.year, s.month+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	s.year, s.month = t.Year(), t.Month()
}

// Grid builds the grid of the viewed month.
func (s *Selection) Grid(counts map[string]attendance.DayCount) Grid {
	g, _ := BuildGrid(s.year, int(s.month), counts)
	return g
}
