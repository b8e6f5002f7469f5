package attendance

import (
	"context"
	"fmt"
	"time"

	"attendtrack/internal/apperr"
	"attendtrack/internal/subject"
)

// DateLayout is the ISO calendar date used on the wire and in storage.
const DateLayout = "2006-01-02"

// Status of one attendance row.
type Status string

const (
	Present Status = "present"
	Absent  Status = "absent"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool { return s == Present || s == Absent }

// Record represents a recorded attendance row.
type Record struct {
	ID        int64     `json:"id"`
	StudentID int64     `json:"student_id"`
	SubjectID int64     `json:"subject_id"`
	Date      string    `json:"date"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// RawCount is a subject with its unprocessed present/total counts.
type RawCount struct {
	Subject subject.Subject
	Present int
	Total   int
}

// DayEntry is one row of the per-date detail view.
type DayEntry struct {
	AttendanceID int64  `json:"attendance_id"`
	SubjectName  string `json:"subject_name"`
	SubjectCode  string `json:"subject_code"`
	Status       Status `json:"status"`
}

// DayCount is the aggregate of one calendar day.
type DayCount struct {
	Present int `json:"present"`
	Absent  int `json:"absent"`
}

// SubjectDate is one row of a subject's attendance history.
type SubjectDate struct {
	AttendanceID int64  `json:"attendance_id"`
	Date         string `json:"date"`
	Status       Status `json:"status"`
}

// SubjectHistory is a subject with every date it was marked, newest first.
type SubjectHistory struct {
	SubjectName string        `json:"subject_name"`
	SubjectCode string        `json:"subject_code"`
	Dates       []SubjectDate `json:"attendance_dates"`
}

// AdminRecord is an attendance row joined with student and subject names.
type AdminRecord struct {
	ID          int64  `json:"id"`
	StudentID   int64  `json:"student_id"`
	USN         string `json:"usn"`
	StudentName string `json:"student_name"`
	SubjectName string `json:"subject_name"`
	Date        string `json:"date"`
	Status      Status `json:"status"`
}

// Store is the persistence contract of the attendance service.
type Store interface {
	SubjectCounts(ctx context.Context, studentID int64) ([]RawCount, error)
	OwnedSubject(ctx context.Context, studentID, subjectID int64) (subject.Subject, error)
	InsertRecord(ctx context.Context, rec Record) (Record, error)
	RecordsOn(ctx context.Context, studentID int64, date string) ([]DayEntry, error)
	MonthCounts(ctx context.Context, studentID int64, from, to string) (map[string]DayCount, error)
	SubjectRecords(ctx context.Context, studentID, subjectID int64) ([]SubjectDate, error)
	DeleteOwned(ctx context.Context, studentID, recordID int64) error
	ListAll(ctx context.Context) ([]AdminRecord, error)
	SubjectNames(ctx context.Context) ([]string, error)
	DeleteRecord(ctx context.Context, recordID int64) error
}

// Service coordinates attendance marking and aggregation.
type Service struct {
	store      Store
	classifier *subject.Classifier
	loc        *time.Location
	now        func() time.Time
}

// NewService creates a service backed by a store.
func NewService(store Store, classifier *subject.Classifier, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{store: store, classifier: classifier, loc: loc, now: time.Now}
}

// SetClock replaces the wall clock used to resolve today.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Today is the current date in the configured timezone.
func (s *Service) Today() string { return s.now().In(s.loc).Format(DateLayout) }

// Summary returns per-subject counts and the overall percentage for the given toggles.
func (s *Service) Summary(ctx context.Context, studentID int64, in Inclusion) (Summary, error) {
	raw, err := s.store.SubjectCounts(ctx, studentID)
	if err != nil {
		return Summary{}, fmt.Errorf("subject counts: %w", err)
	}
	return Summarize(Categorize(raw, s.classifier), in), nil
}

// Mark records one attendance row for an owned subject. An empty date means today.
// Several rows for the same subject and date are allowed.
func (s *Service) Mark(ctx context.Context, studentID, subjectID int64, date string, status Status) (Record, error) {
	if subjectID <= 0 || !status.Valid() {
		return Record{}, apperr.Invalid("invalid input")
	}
	day, err := s.resolveDate(date)
	if err != nil {
		return Record{}, err
	}
	if _, err := s.store.OwnedSubject(ctx, studentID, subjectID); err != nil {
		return Record{}, err
	}
	rec, err := s.store.InsertRecord(ctx, Record{
		StudentID: studentID,
		SubjectID: subjectID,
		Date:      day,
		Status:    status,
	})
	if err != nil {
		return Record{}, fmt.Errorf("insert attendance: %w", err)
	}
	return rec, nil
}

func (s *Service) resolveDate(date string) (string, error) {
	today := s.Today()
	if date == "" {
		return today, nil
	}
	if _, err := time.ParseInLocation(DateLayout, date, s.loc); err != nil {
		return "", apperr.Invalid("date must be formatted YYYY-MM-DD")
	}
	// Lexical comparison is chronological for zero-padded ISO dates.
	if date > today {
		return "", apperr.Invalid("cannot mark attendance for a future date")
	}
	return date, nil
}

// OnDate lists the student's rows for one date.
func (s *Service) OnDate(ctx context.Context, studentID int64, date string) ([]DayEntry, error) {
	if date == "" {
		return nil, apperr.Invalid("date is required")
	}
	if _, err := time.Parse(DateLayout, date); err != nil {
		return nil, apperr.Invalid("date must be formatted YYYY-MM-DD")
	}
	return s.store.RecordsOn(ctx, studentID, date)
}

// Month returns the sparse per-day counts of one month.
func (s *Service) Month(ctx context.Context, studentID int64, year, month int) (map[string]DayCount, error) {
	if year < 1 || month < 1 || month > 12 {
		return nil, apperr.Invalid("invalid year or month")
	}
	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	next := first.AddDate(0, 1, 0)
	return s.store.MonthCounts(ctx, studentID, first.Format(DateLayout), next.Format(DateLayout))
}

// SubjectHistory lists every date an owned subject was marked.
func (s *Service) SubjectHistory(ctx context.Context, studentID, subjectID int64) (SubjectHistory, error) {
	if subjectID <= 0 {
		return SubjectHistory{}, apperr.Invalid("subject id is required")
	}
	subj, err := s.store.OwnedSubject(ctx, studentID, subjectID)
	if err != nil {
		return SubjectHistory{}, err
	}
	dates, err := s.store.SubjectRecords(ctx, studentID, subjectID)
	if err != nil {
		return SubjectHistory{}, fmt.Errorf("subject records: %w", err)
	}
	return SubjectHistory{SubjectName: subj.Name, SubjectCode: subj.Code, Dates: dates}, nil
}

// DeleteOwn removes a row only when it belongs to the student.
func (s *Service) DeleteOwn(ctx context.Context, studentID, recordID int64) error {
	if recordID <= 0 {
		return apperr.Invalid("attendance id is required")
	}
	return s.store.DeleteOwned(ctx, studentID, recordID)
}

// AdminList returns every row and the distinct subject names for filtering.
func (s *Service) AdminList(ctx context.Context) ([]AdminRecord, []string, error) {
	records, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list attendance: %w", err)
	}
	names, err := s.store.SubjectNames(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("subject names: %w", err)
	}
	return records, names, nil
}

// AdminDelete removes any row.
func (s *Service) AdminDelete(ctx context.Context, recordID int64) error {
	if recordID <= 0 {
		return apperr.Invalid("attendance id is required")
	}
	return s.store.DeleteRecord(ctx, recordID)
}
