package dashboard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type manualTimer struct {
	f       func()
	at      time.Duration
	stopped bool
}

func (t *manualTimer) Stop() bool { was := !t.stopped; t.stopped = true; return was }

type manualTimers struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*manualTimer
}

func (m *manualTimers) AfterFunc(d time.Duration, f func()) debounce.Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTimer{f: f, at: m.now + d}
	m.timers = append(m.timers, t)
	return t
}

func (m *manualTimers) Advance(d time.Duration) {
	m.mu.Lock()
	m.now += d
	var due []*manualTimer
	for _, t := range m.timers {
		if !t.stopped && t.at <= m.now {
			t.stopped = true
			due = append(due, t)
		}
	}
	m.mu.Unlock()
	for _, t := range due {
		t.f()
	}
}

type fakeAPI struct {
	mu        sync.Mutex
	calls     []string
	profile   student.Profile
	subjects  []attendance.SubjectCount
	days      map[string]attendance.DayCount
	entries   []attendance.DayEntry
	marks     map[int64][3]*float64
	remaining int
	markErr   error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		profile: student.Profile{USN: "1MJ22CS001", Name: "Asha"},
		subjects: []attendance.SubjectCount{
			{Subject: subject.Subject{ID: 1, Name: "Machine Learning"}, Category: subject.Theory, Present: 8, Total: 10},
			{Subject: subject.Subject{ID: 2, Name: "Machine Learning Lab"}, Category: subject.Lab, Present: 2, Total: 2},
			{Subject: subject.Subject{ID: 3, Name: "Library"}, Category: subject.LibraryPE, Present: 0, Total: 4},
		},
		days:  map[string]attendance.DayCount{},
		marks: map[int64][3]*float64{1: {}},
	}
}

func (f *fakeAPI) call(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
}

func (f *fakeAPI) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAPI) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *fakeAPI) Me(context.Context) (student.Profile, error) {
	f.call("me")
	return f.profile, nil
}

func (f *fakeAPI) Attendance(_ context.Context, in attendance.Inclusion) (attendance.Summary, error) {
	f.call("attendance")
	return attendance.Summarize(f.subjects, in), nil
}

func (f *fakeAPI) Mark(_ context.Context, subjectID int64, date string, status attendance.Status) (attendance.Record, error) {
	f.call("mark " + date)
	if f.markErr != nil {
		return attendance.Record{}, f.markErr
	}
	for i := range f.subjects {
		if f.subjects[i].ID == subjectID {
			f.subjects[i].Total++
			if status == attendance.Present {
				f.subjects[i].Present++
			}
		}
	}
	dc := f.days[date]
	if status == attendance.Present {
		dc.Present++
	} else {
		dc.Absent++
	}
	f.days[date] = dc
	return attendance.Record{ID: 99, SubjectID: subjectID, Date: date, Status: status}, nil
}

func (f *fakeAPI) Month(context.Context, int, int) (map[string]attendance.DayCount, error) {
	f.call("month")
	out := make(map[string]attendance.DayCount, len(f.days))
	for k, v := range f.days {
		out[k] = v
	}
	return out, nil
}

func (f *fakeAPI) OnDate(_ context.Context, date string) ([]attendance.DayEntry, error) {
	f.call("date " + date)
	return f.entries, nil
}

func (f *fakeAPI) SubjectHistory(context.Context, int64) (attendance.SubjectHistory, error) {
	f.call("history")
	return attendance.SubjectHistory{}, nil
}

func (f *fakeAPI) DeleteAttendance(context.Context, int64) error {
	f.call("delete")
	return nil
}

func (f *fakeAPI) Marks(context.Context) ([]marks.SubjectMarks, error) {
	f.call("marks")
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []marks.SubjectMarks
	for id, scores := range f.marks {
		m := marks.SubjectMarks{SubjectID: id}
		slots := []**marks.Score{&m.IA1, &m.IA2, &m.IA3}
		for i, s := range scores {
			if s != nil {
				*slots[i] = &marks.Score{Obtained: *s, Max: marks.MaxScore}
			}
		}
		m.Projection = marks.Project(m.Scores())
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeAPI) SetMarks(_ context.Context, subjectID int64, ia int, score *float64) error {
	f.call("set-marks")
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.marks[subjectID]
	s[ia-1] = score
	f.marks[subjectID] = s
	return nil
}

func (f *fakeAPI) RegisterChallenge(context.Context) (biometric.RegistrationOptions, error) {
	f.call("register-challenge")
	return biometric.RegistrationOptions{Challenge: "aa", UserID: f.profile.USN, UserName: f.profile.Name}, nil
}

func (f *fakeAPI) RegisterCredential(context.Context, biometric.NewCredential) (int, error) {
	f.call("register-credential")
	f.remaining++
	return f.remaining, nil
}

func (f *fakeAPI) Credentials(context.Context) ([]biometric.Credential, error) {
	f.call("credentials")
	return nil, nil
}

func (f *fakeAPI) DeleteCredential(context.Context, string) (int, error) {
	f.call("delete-credential")
	f.remaining--
	return f.remaining, nil
}

func (f *fakeAPI) DismissPrompt(context.Context) error {
	f.call("dismiss")
	return nil
}

type fakeEnroller struct {
	supported bool
	removed   []string
}

func (e *fakeEnroller) Supported() bool { return e.supported }

func (e *fakeEnroller) Create(_ context.Context, opts biometric.RegistrationOptions) (biometric.NewCredential, error) {
	return biometric.NewCredential{Challenge: opts.Challenge, CredentialID: "cred-1", PublicKey: "pk"}, nil
}

func (e *fakeEnroller) Remove(id string) error {
	e.removed = append(e.removed, id)
	return nil
}

var today = time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)

type fixture struct {
	api    *fakeAPI
	prefs  *prefs.Store
	timers *manualTimers
	enr    *fakeEnroller
	d      *Dashboard
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	f := fixture{
		api:    newFakeAPI(),
		prefs:  prefs.New(nil),
		timers: &manualTimers{},
		enr:    &fakeEnroller{supported: true},
	}
	f.d = New(Config{
		API:      f.api,
		Prefs:    f.prefs,
		Enroller: f.enr,
		Clock:    fixedClock{today},
		Location: time.UTC,
		Timers:   f.timers,
	})
	require.NoError(t, f.d.Load(context.Background()))
	f.api.reset()
	return f
}

func TestToggleRecomputesWithoutRoundTrip(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, 83.33, f.d.Summary().Overall)

	sum, err := f.d.Toggle(subject.LibraryPE)
	require.NoError(t, err)
	assert.Equal(t, 62.5, sum.Overall)
	assert.True(t, f.prefs.Toggle("library_pe"))

	sum, err = f.d.Toggle(subject.LibraryPE)
	require.NoError(t, err)
	assert.Equal(t, 83.33, sum.Overall)
	assert.Empty(t, f.api.Calls())
}

func TestSectionsAndExpanded(t *testing.T) {
	f := newFixture(t)
	assert.Len(t, f.d.Sections()[subject.Lab], 1)

	assert.False(t, f.d.Expanded(subject.Lab))
	require.NoError(t, f.d.ToggleExpanded(subject.Lab))
	assert.True(t, f.d.Expanded(subject.Lab))
}

func TestMarkWritesBeforeRefetch(t *testing.T) {
	f := newFixture(t)
	f.d.Click(context.Background(), "2025-03-10")

	rec, err := f.d.Mark(context.Background(), 1, attendance.Present)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-10", rec.Date)
	assert.Equal(t, []string{"mark 2025-03-10", "attendance", "month"}, f.api.Calls())

	cell := f.d.Grid().Cells[f.d.Grid().Leading+9]
	assert.Equal(t, 1, cell.Present)
	assert.True(t, cell.Marked)
}

func TestFailedMarkDoesNotRefetch(t *testing.T) {
	f := newFixture(t)
	f.api.markErr = apperr.Invalid("cannot mark attendance for a future date")

	_, err := f.d.Mark(context.Background(), 1, attendance.Present)
	require.Error(t, err)
	assert.Equal(t, []string{"mark 2025-03-15"}, f.api.Calls())
}

func TestClickRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out, _, err := f.d.Click(ctx, "2025-03-16")
	require.NoError(t, err)
	assert.Equal(t, calendar.Ignored, out)
	assert.Equal(t, "2025-03-15", f.d.Selected())

	out, _, _ = f.d.Click(ctx, "2025-03-15")
	assert.Equal(t, calendar.Ignored, out, "selected date without records")

	_, err = f.d.Mark(ctx, 1, attendance.Absent)
	require.NoError(t, err)
	f.api.entries = []attendance.DayEntry{{AttendanceID: 99, SubjectName: "Machine Learning", Status: attendance.Absent}}
	f.api.reset()

	out, entries, err := f.d.Click(ctx, "2025-03-15")
	require.NoError(t, err)
	assert.Equal(t, calendar.OpenDetail, out)
	assert.Len(t, entries, 1)
	assert.Equal(t, []string{"date 2025-03-15"}, f.api.Calls())
}

func TestClickSelectedDateFromAnotherMonth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.d.Mark(ctx, 1, attendance.Present)
	require.NoError(t, err)
	f.api.entries = []attendance.DayEntry{{AttendanceID: 7, SubjectName: "Machine Learning", Status: attendance.Present}}
	require.NoError(t, f.d.PrevMonth(ctx))
	f.api.reset()

	out, entries, err := f.d.Click(ctx, "2025-03-15")
	require.NoError(t, err)
	assert.Equal(t, calendar.OpenDetail, out)
	assert.Len(t, entries, 1)
	assert.Equal(t, []string{"month", "date 2025-03-15"}, f.api.Calls())
	assert.Equal(t, time.February, time.Month(f.d.Grid().Month), "view stays where it was")
}

func TestMonthNavigationRefetchesOnly(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.d.PrevMonth(context.Background()))

	assert.Equal(t, "2025-03-15", f.d.Selected())
	assert.Equal(t, time.February, time.Month(f.d.Grid().Month))
	assert.Equal(t, []string{"month"}, f.api.Calls())
}

func TestDeleteRefetches(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.d.DeleteAttendance(context.Background(), 99))
	assert.Equal(t, []string{"delete", "attendance", "month"}, f.api.Calls())
}

func TestEditMarksDebouncesAndProjectsLocally(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.d.EditMarks(1, 1, "1"))
	require.NoError(t, f.d.EditMarks(1, 1, "18"))
	assert.Equal(t, "Min 21.0 in IA-2 & IA-3 for 20 avg", f.d.Marks()[0].Projection.Message)
	assert.Empty(t, f.api.Calls())

	f.timers.Advance(debounce.DefaultDelay)
	assert.Equal(t, []string{"set-marks", "marks"}, f.api.Calls())
	require.NotNil(t, f.d.Marks()[0].IA1)
	assert.Equal(t, 18.0, f.d.Marks()[0].IA1.Obtained)
}

func TestBlurFlushesImmediately(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.d.EditMarks(1, 2, "40"))
	require.NoError(t, f.d.BlurMarks(context.Background(), 1, 2))
	assert.Equal(t, []string{"set-marks", "marks"}, f.api.Calls())

	f.timers.Advance(time.Second)
	assert.Len(t, f.api.Calls(), 2)
}

func TestOutOfRangeMarksAreRejected(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.d.EditMarks(1, 3, "30"))
	err := f.d.EditMarks(1, 3, "51")
	assert.Equal(t, "Marks should be between 0 and 50", apperr.Message(err))

	require.NoError(t, f.d.FlushMarks(context.Background()))
	assert.Empty(t, f.api.Calls(), "rejected edit drops the pending write")
}

func TestParseScore(t *testing.T) {
	v, err := ParseScore("")
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = ParseScore(" 12.5 ")
	require.NoError(t, err)
	assert.Equal(t, 12.5, *v)

	for _, in := range []string{"-1", "50.5", "abc", "NaN", "nan", "Inf", "-inf", "+Infinity"} {
		_, err := ParseScore(in)
		assert.Error(t, err, in)
	}
}

func TestEnrollmentPromptFiresOnceAfterDelay(t *testing.T) {
	f := newFixture(t)
	shown := 0
	require.NotNil(t, f.d.SchedulePrompt(func() { shown++ }))

	f.timers.Advance(PromptDelay - time.Millisecond)
	assert.Zero(t, shown)
	f.timers.Advance(time.Millisecond)
	assert.Equal(t, 1, shown)
	f.timers.Advance(time.Hour)
	assert.Equal(t, 1, shown)
}

func TestPromptNotScheduledWhenIneligible(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.d.DismissPrompt(context.Background()))
	assert.Nil(t, f.d.SchedulePrompt(func() { t.Fatal("shown") }))

	f = newFixture(t)
	f.enr.supported = false
	assert.Nil(t, f.d.SchedulePrompt(func() { t.Fatal("shown") }))
}

func TestEnrollRemembersAndDeleteLastForgets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	n, err := f.d.Enroll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	u, ok := f.prefs.Remembered()
	require.True(t, ok)
	assert.Equal(t, "1MJ22CS001", u.Username)
	assert.True(t, f.d.Profile().BiometricPrompted)

	n, err = f.d.DeleteCredential(ctx, "cred-1")
	require.NoError(t, err)
	assert.Zero(t, n)
	_, ok = f.prefs.Remembered()
	assert.False(t, ok)
	assert.True(t, f.d.Profile().BiometricPrompted, "prompted flag is not reset")
	assert.False(t, f.d.Profile().HasBiometric)
	assert.Equal(t, []string{"cred-1"}, f.enr.removed)
}

func TestDeleteWithCredentialsLeftKeepsRememberedUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.d.Enroll(ctx)
	require.NoError(t, err)
	_, err = f.d.Enroll(ctx)
	require.NoError(t, err)

	n, err := f.d.DeleteCredential(ctx, "cred-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, ok := f.prefs.Remembered()
	assert.True(t, ok)
}

func TestEnrollUnsupported(t *testing.T) {
	f := newFixture(t)
	f.enr.supported = false
	_, err := f.d.Enroll(context.Background())
	assert.Equal(t, apperr.KindCeremony, apperr.KindOf(err))
	assert.False(t, errors.Is(err, apperr.ErrNotAuthenticated))
}
