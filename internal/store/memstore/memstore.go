// Package memstore keeps every table in process memory. It backs tests and
// STORAGE_BACKEND=memory.
package memstore

import (
	"sort"
	"sync"
	"time"

	"attendtrack/internal/attendance"
	"attendtrack/internal/audit"
	"attendtrack/internal/biometric"
	"attendtrack/internal/student"
	"attendtrack/internal/subject"
)

type credentialRow struct {
	studentID int64
	cred      biometric.Credential
}

type marksKey struct {
	studentID, subjectID int64
	ia                   int
}

// Store holds all rows behind one mutex. Each domain gets its own view.
type Store struct {
	mu sync.RWMutex

	nextID      int64
	students    []student.Student
	subjects    []subject.Subject
	attendance  []attendance.Record
	marks       map[marksKey]float64
	marksAt     map[marksKey]time.Time
	credentials []credentialRow
	events      []audit.Event
	now         func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		marks:   make(map[marksKey]float64),
		marksAt: make(map[marksKey]time.Time),
		now:     time.Now,
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// Students returns the student.Store view.
func (s *Store) Students() *Students { return &Students{s} }

// Attendance returns the attendance.Store view.
func (s *Store) Attendance() *Attendance { return &Attendance{s} }

// Marks returns the marks.Store view.
func (s *Store) Marks() *Marks { return &Marks{s} }

// Biometric returns the biometric.Store view.
func (s *Store) Biometric() *Biometric { return &Biometric{s} }

// Audit returns the audit.Store view.
func (s *Store) Audit() *Audit { return &Audit{s} }

func (s *Store) studentByID(id int64) (student.Student, bool) {
	for _, st := range s.students {
		if st.ID == id {
			return st, true
		}
	}
	return student.Student{}, false
}

func (s *Store) studentByHandle(handle string) (student.Student, bool) {
	for _, st := range s.students {
		if st.USN == handle || st.Username == handle {
			return st, true
		}
	}
	return student.Student{}, false
}

func (s *Store) ownedSubject(studentID, subjectID int64) (subject.Subject, bool) {
	for _, sub := range s.subjects {
		if sub.ID == subjectID && sub.StudentID == studentID {
			return sub, true
		}
	}
	return subject.Subject{}, false
}

func (s *Store) subjectByID(id int64) (subject.Subject, bool) {
	for _, sub := range s.subjects {
		if sub.ID == id {
			return sub, true
		}
	}
	return subject.Subject{}, false
}

func (s *Store) subjectsOf(studentID int64) []subject.Subject {
	out := []subject.Subject{}
	for _, sub := range s.subjects {
		if sub.StudentID == studentID {
			out = append(out, sub)
		}
	}
	return out
}

func (s *Store) credentialsOf(studentID int64) []biometric.Credential {
	out := []biometric.Credential{}
	for _, row := range s.credentials {
		if row.studentID == studentID {
			out = append(out, row.cred)
		}
	}
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
