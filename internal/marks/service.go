// Package marks stores internal-assessment scores and projects the target average.
package marks

import (
	"context"
	"fmt"
	"time"

	"attendtrack/internal/apperr"
	"attendtrack/internal/subject"
)

// Score is one stored assessment result.
type Score struct {
	Obtained float64 `json:"obtained"`
	Max      float64 `json:"max"`
}

// Entry is a stored marks row.
type Entry struct {
	StudentID int64
	SubjectID int64
	IA        int
	Obtained  float64
	UpdatedAt time.Time
}

// SubjectMarks is one subject with its three assessment slots and projection.
type SubjectMarks struct {
	SubjectID   int64      `json:"subject_id"`
	SubjectName string     `json:"subject_name"`
	SubjectCode string     `json:"subject_code"`
	IA1         *Score     `json:"ia1"`
	IA2         *Score     `json:"ia2"`
	IA3         *Score     `json:"ia3"`
	Projection  Projection `json:"projection"`
}

// Scores returns the obtained values in assessment order, nil where missing.
func (m SubjectMarks) Scores() [Assessments]*float64 {
	var out [Assessments]*float64
	for i, s := range []*Score{m.IA1, m.IA2, m.IA3} {
		if s != nil {
			v := s.Obtained
			out[i] = &v
		}
	}
	return out
}

// Store is the persistence contract of the marks service.
type Store interface {
	Subjects(ctx context.Context, studentID int64) ([]subject.Subject, error)
	OwnsSubject(ctx context.Context, studentID, subjectID int64) (bool, error)
	Entries(ctx context.Context, studentID int64) ([]Entry, error)
	Upsert(ctx context.Context, e Entry) error
	Delete(ctx context.Context, studentID, subjectID int64, ia int) error
}

// Service lists and updates marks.
type Service struct {
	store Store
}

// NewService creates a service backed by a store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// List returns every subject of the student with its marks and projection.
func (s *Service) List(ctx context.Context, studentID int64) ([]SubjectMarks, error) {
	subjects, err := s.store.Subjects(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("subjects: %w", err)
	}
	entries, err := s.store.Entries(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("marks: %w", err)
	}
	bySubject := make(map[int64][Assessments]*Score, len(subjects))
	for _, e := range entries {
		slots := bySubject[e.SubjectID]
		slots[e.IA-1] = &Score{Obtained: e.Obtained, Max: MaxScore}
		bySubject[e.SubjectID] = slots
	}
	out := make([]SubjectMarks, 0, len(subjects))
	for _, subj := range subjects {
		slots := bySubject[subj.ID]
		m := SubjectMarks{
			SubjectID:   subj.ID,
			SubjectName: subj.Name,
			SubjectCode: subj.Code,
			IA1:         slots[0],
			IA2:         slots[1],
			IA3:         slots[2],
		}
		m.Projection = Project(m.Scores())
		out = append(out, m)
	}
	return out, nil
}

// Set stores a score for one assessment; a nil score clears it.
func (s *Service) Set(ctx context.Context, studentID, subjectID int64, ia int, score *float64) error {
	if subjectID <= 0 || ia < 1 || ia > Assessments {
		return apperr.Invalid("Invalid input")
	}
	if score != nil && (*score < 0 || *score > MaxScore) {
		return apperr.Invalid("Marks should be between 0 and 50")
	}
	owned, err := s.store.OwnsSubject(ctx, studentID, subjectID)
	if err != nil {
		return fmt.Errorf("subject ownership: %w", err)
	}
	if !owned {
		return apperr.ErrNotFound
	}
	if score == nil {
		return s.store.Delete(ctx, studentID, subjectID, ia)
	}
	return s.store.Upsert(ctx, Entry{StudentID: studentID, SubjectID: subjectID, IA: ia, Obtained: *score})
}
