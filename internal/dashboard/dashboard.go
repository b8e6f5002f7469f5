// Package dashboard is the client-side state of a logged-in student: cached
// attendance counts, the calendar selection, marks with their projections and
// the fingerprint enrollment prompt.
//
// Every mutation waits for the server write before refetching what depends on it.
package dashboard

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"attendtrack/internal/apperr"
	"attendtrack/internal/attendance"
	"attendtrack/internal/biometric"
	"attendtrack/internal/calendar"
	"attendtrack/internal/debounce"
	"attendtrack/internal/marks"
	"attendtrack/internal/prefs"
	"attendtrack/internal/student"
	"attendtrack/internal/subject"
)

// PromptDelay is how long after load the enrollment prompt appears.
const PromptDelay = 1500 * time.Millisecond

// API is the server surface the dashboard uses.
type API interface {
	Me(ctx context.Context) (student.Profile, error)
	Attendance(ctx context.Context, in attendance.Inclusion) (attendance.Summary, error)
	Mark(ctx context.Context, subjectID int64, date string, status attendance.Status) (attendance.Record, error)
	Month(ctx context.Context, year, month int) (map[string]attendance.DayCount, error)
	OnDate(ctx context.Context, date string) ([]attendance.DayEntry, error)
	SubjectHistory(ctx context.Context, subjectID int64) (attendance.SubjectHistory, error)
	DeleteAttendance(ctx context.Context, id int64) error
	Marks(ctx context.Context) ([]marks.SubjectMarks, error)
	SetMarks(ctx context.Context, subjectID int64, ia int, score *float64) error
	RegisterChallenge(ctx context.Context) (biometric.RegistrationOptions, error)
	RegisterCredential(ctx context.Context, nc biometric.NewCredential) (int, error)
	Credentials(ctx context.Context) ([]biometric.Credential, error)
	DeleteCredential(ctx context.Context, id string) (int, error)
	DismissPrompt(ctx context.Context) error
}

// Enroller performs the platform credential-creation ceremony.
type Enroller interface {
	Supported() bool
	Create(ctx context.Context, opts biometric.RegistrationOptions) (biometric.NewCredential, error)
}

// Dashboard holds the cached state. Methods are safe for concurrent use so
// debounced marks writes may land from a timer goroutine.
type Dashboard struct {
	api      API
	prefs    *prefs.Store
	enroller Enroller
	clock    debounce.Clock
	sched    *debounce.Scheduler

	mu       sync.Mutex
	profile  student.Profile
	subjects []attendance.SubjectCount
	sel      *calendar.Selection
	month    map[string]attendance.DayCount
	marks    []marks.SubjectMarks
}

// Config wires a Dashboard.
type Config struct {
	API      API
	Prefs    *prefs.Store
	Enroller Enroller
	Clock    calendar.Clock
	Location *time.Location
	// Timers drives the marks debounce and the enrollment prompt.
	Timers debounce.Clock
	// OnWriteError receives failures of debounced marks writes.
	OnWriteError func(key string, err error)
}

type wallTimers struct{}

func (wallTimers) AfterFunc(d time.Duration, f func()) debounce.Timer { return time.AfterFunc(d, f) }

// New creates a Dashboard. Call Load before reading state.
func New(cfg Config) *Dashboard {
	if cfg.Prefs == nil {
		cfg.Prefs = prefs.New(nil)
	}
	if cfg.Timers == nil {
		cfg.Timers = wallTimers{}
	}
	d := &Dashboard{
		api:      cfg.API,
		prefs:    cfg.Prefs,
		enroller: cfg.Enroller,
		clock:    cfg.Timers,
		sel:      calendar.NewSelection(cfg.Clock, cfg.Location),
		month:    map[string]attendance.DayCount{},
	}
	opts := []debounce.Option{debounce.WithClock(cfg.Timers)}
	if cfg.OnWriteError != nil {
		opts = append(opts, debounce.OnError(cfg.OnWriteError))
	}
	d.sched = debounce.New(opts...)
	return d
}

// Load fetches the profile, attendance, the viewed month and marks.
func (d *Dashboard) Load(ctx context.Context) error {
	p, err := d.api.Me(ctx)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.profile = p
	d.mu.Unlock()

	if err := d.refreshAttendance(ctx); err != nil {
		return err
	}
	if err := d.refreshMonth(ctx); err != nil {
		return err
	}
	return d.refreshMarks(ctx)
}

// Profile returns the cached profile.
func (d *Dashboard) Profile() student.Profile {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.profile
}

func (d *Dashboard) refreshAttendance(ctx context.Context) error {
	sum, err := d.api.Attendance(ctx, d.Inclusion())
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.subjects = sum.Subjects
	d.mu.Unlock()
	return nil
}

func (d *Dashboard) refreshMonth(ctx context.Context) error {
	d.mu.Lock()
	year, month := d.sel.View()
	d.mu.Unlock()
	days, err := d.api.Month(ctx, year, month)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if y, m := d.sel.View(); y == year && m == month {
		d.month = days
	}
	return nil
}

func (d *Dashboard) refreshMarks(ctx context.Context) error {
	list, err := d.api.Marks(ctx)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.marks = list
	d.mu.Unlock()
	return nil
}

// Inclusion reads the optional-category toggles.
func (d *Dashboard) Inclusion() attendance.Inclusion {
	return attendance.Inclusion{
		LibraryPE: d.prefs.Toggle(string(subject.LibraryPE)),
		Remedial:  d.prefs.Toggle(string(subject.Remedial)),
	}
}

// Summary recomputes the overall figure from the cached counts.
func (d *Dashboard) Summary() attendance.Summary {
	d.mu.Lock()
	subjects := d.subjects
	d.mu.Unlock()
	return attendance.Summarize(subjects, d.Inclusion())
}

// Sections groups the cached subjects by category.
func (d *Dashboard) Sections() map[subject.Category][]attendance.SubjectCount {
	d.mu.Lock()
	defer d.mu.Unlock()
	return attendance.ByCategory(d.subjects)
}

// Toggle flips whether section counts towards the overall figure and
// recomputes it locally.
func (d *Dashboard) Toggle(section subject.Category) (attendance.Summary, error) {
	if err := d.prefs.SetToggle(string(section), !d.prefs.Toggle(string(section))); err != nil {
		return attendance.Summary{}, err
	}
	return d.Summary(), nil
}

// Expanded reports whether section is open.
func (d *Dashboard) Expanded(section subject.Category) bool {
	return d.prefs.Expanded(string(section))
}

// ToggleExpanded opens or closes section.
func (d *Dashboard) ToggleExpanded(section subject.Category) error {
	return d.prefs.SetExpanded(string(section), !d.prefs.Expanded(string(section)))
}

// Selected is the date marks are written to.
func (d *Dashboard) Selected() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sel.Selected()
}

// Grid renders the viewed month from the cached counts.
func (d *Dashboard) Grid() calendar.Grid {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sel.Grid(d.month)
}

// Click applies a calendar click. When the detail view opens its records are fetched.
func (d *Dashboard) Click(ctx context.Context, date string) (calendar.Outcome, []attendance.DayEntry, error) {
	counts, err := d.countsFor(ctx, date)
	if err != nil {
		return calendar.Ignored, nil, err
	}
	d.mu.Lock()
	out := d.sel.Click(date, counts)
	d.mu.Unlock()
	if out != calendar.OpenDetail {
		return out, nil, nil
	}
	entries, err := d.api.OnDate(ctx, date)
	return out, entries, err
}

// countsFor returns the day counts a click on date is judged against. A
// second click on the selected date outside the viewed month fetches that
// date's month.
func (d *Dashboard) countsFor(ctx context.Context, date string) (map[string]attendance.DayCount, error) {
	d.mu.Lock()
	year, month := d.sel.View()
	selected := d.sel.Selected()
	counts := d.month
	d.mu.Unlock()
	if date != selected {
		return counts, nil
	}
	t, err := time.Parse(attendance.DateLayout, date)
	if err != nil || (t.Year() == year && int(t.Month()) == month) {
		return counts, nil
	}
	return d.api.Month(ctx, t.Year(), int(t.Month()))
}

// NextMonth moves the view forward and fetches its counts.
func (d *Dashboard) NextMonth(ctx context.Context) error {
	d.mu.Lock()
	d.sel.NextMonth()
	d.mu.Unlock()
	return d.refreshMonth(ctx)
}

// PrevMonth moves the view back and fetches its counts.
func (d *Dashboard) PrevMonth(ctx context.Context) error {
	d.mu.Lock()
	d.sel.PrevMonth()
	d.mu.Unlock()
	return d.refreshMonth(ctx)
}

// Mark records status for subjectID on the selected date, then refetches
// the counts and the month.
func (d *Dashboard) Mark(ctx context.Context, subjectID int64, status attendance.Status) (attendance.Record, error) {
	rec, err := d.api.Mark(ctx, subjectID, d.Selected(), status)
	if err != nil {
		return attendance.Record{}, err
	}
	return rec, d.afterAttendanceWrite(ctx)
}

// DeleteAttendance removes a record, then refetches the counts and the month.
func (d *Dashboard) DeleteAttendance(ctx context.Context, id int64) error {
	if err := d.api.DeleteAttendance(ctx, id); err != nil {
		return err
	}
	return d.afterAttendanceWrite(ctx)
}

func (d *Dashboard) afterAttendanceWrite(ctx context.Context) error {
	if err := d.refreshAttendance(ctx); err != nil {
		return err
	}
	return d.refreshMonth(ctx)
}

// SubjectHistory lists the dates a subject was marked.
func (d *Dashboard) SubjectHistory(ctx context.Context, subjectID int64) (attendance.SubjectHistory, error) {
	return d.api.SubjectHistory(ctx, subjectID)
}

// Marks returns the cached marks with projections.
func (d *Dashboard) Marks() []marks.SubjectMarks {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]marks.SubjectMarks(nil), d.marks...)
}

func marksKey(subjectID int64, ia int) string { return fmt.Sprintf("%d:%d", subjectID, ia) }

var errMarksRange = apperr.Invalid("Marks should be between 0 and 50")

// ParseScore reads a marks input. Empty input clears the assessment.
func ParseScore(input string) (*float64, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(input, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > marks.MaxScore {
		return nil, errMarksRange
	}
	return &v, nil
}

// EditMarks applies an input edit. The projection updates at once and the
// write is debounced. Rejected input drops any pending write for the slot.
func (d *Dashboard) EditMarks(subjectID int64, ia int, input string) error {
	key := marksKey(subjectID, ia)
	if ia < 1 || ia > marks.Assessments {
		return apperr.Invalid("Invalid input")
	}
	score, err := ParseScore(input)
	if err != nil {
		d.sched.Cancel(key)
		return err
	}
	d.applyLocal(subjectID, ia, score)
	d.sched.Schedule(key, func(ctx context.Context) error {
		if err := d.api.SetMarks(ctx, subjectID, ia, score); err != nil {
			return err
		}
		return d.refreshMarks(ctx)
	})
	return nil
}

func (d *Dashboard) applyLocal(subjectID int64, ia int, score *float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.marks {
		m := &d.marks[i]
		if m.SubjectID != subjectID {
			continue
		}
		var s *marks.Score
		if score != nil {
			s = &marks.Score{Obtained: *score, Max: marks.MaxScore}
		}
		switch ia {
		case 1:
			m.IA1 = s
		case 2:
			m.IA2 = s
		case 3:
			m.IA3 = s
		}
		m.Projection = marks.Project(m.Scores())
	}
}

// BlurMarks sends the pending write of a slot immediately.
func (d *Dashboard) BlurMarks(ctx context.Context, subjectID int64, ia int) error {
	return d.sched.Flush(ctx, marksKey(subjectID, ia))
}

// FlushMarks sends every pending marks write.
func (d *Dashboard) FlushMarks(ctx context.Context) error {
	return d.sched.FlushAll(ctx)
}

// PromptEligible reports whether the enrollment prompt should be offered.
func (d *Dashboard) PromptEligible() bool {
	p := d.Profile()
	return d.enroller != nil && d.enroller.Supported() && !p.BiometricPrompted && !p.HasBiometric
}

// SchedulePrompt calls show once after PromptDelay when the prompt is eligible.
// It returns nil when nothing was scheduled.
func (d *Dashboard) SchedulePrompt(show func()) debounce.Timer {
	if !d.PromptEligible() {
		return nil
	}
	return d.clock.AfterFunc(PromptDelay, func() {
		if d.PromptEligible() {
			show()
		}
	})
}

// DismissPrompt records that the student declined enrollment.
func (d *Dashboard) DismissPrompt(ctx context.Context) error {
	if err := d.api.DismissPrompt(ctx); err != nil {
		return err
	}
	d.mu.Lock()
	d.profile.BiometricPrompted = true
	d.mu.Unlock()
	return nil
}

// Enroll registers this device and remembers the student for one-tap login.
func (d *Dashboard) Enroll(ctx context.Context) (int, error) {
	if d.enroller == nil || !d.enroller.Supported() {
		return 0, &apperr.CeremonyError{Reason: apperr.CeremonyUnsupported}
	}
	opts, err := d.api.RegisterChallenge(ctx)
	if err != nil {
		return 0, err
	}
	cctx, cancel := context.WithTimeout(ctx, biometric.CeremonyTimeout)
	nc, err := d.enroller.Create(cctx, opts)
	cancel()
	if err != nil {
		return 0, err
	}
	n, err := d.api.RegisterCredential(ctx, nc)
	if err != nil {
		return 0, err
	}

	d.mu.Lock()
	d.profile.HasBiometric = true
	d.profile.BiometricPrompted = true
	u := prefs.User{Username: d.profile.USN, Name: d.profile.Name}
	d.mu.Unlock()
	if err := d.prefs.Remember(u); err != nil {
		return n, err
	}
	return n, nil
}

// Credentials lists the enrolled devices.
func (d *Dashboard) Credentials(ctx context.Context) ([]biometric.Credential, error) {
	return d.api.Credentials(ctx)
}

type remover interface {
	Remove(id string) error
}

// DeleteCredential removes a device. When none remain the remembered user is
// cleared; the prompted flag stays set.
func (d *Dashboard) DeleteCredential(ctx context.Context, id string) (int, error) {
	n, err := d.api.DeleteCredential(ctx, id)
	if err != nil {
		return 0, err
	}
	if r, ok := d.enroller.(remover); ok {
		_ = r.Remove(id)
	}
	if n == 0 {
		d.mu.Lock()
		d.profile.HasBiometric = false
		d.mu.Unlock()
		if err := d.prefs.Forget(); err != nil {
			return n, err
		}
	}
	return n, nil
}
