package marks

import (
	"context"
	"database/sql"

	"attendtrack/internal/subject"
)

// Repository persists marks in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Subjects lists a student's subjects in creation order.
func (r *Repository) Subjects(ctx context.Context, studentID int64) ([]subject.Subject, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, student_id, name, code, elective FROM subjects WHERE student_id = $1 ORDER BY id
	`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []subject.Subject
	for rows.Next() {
		var s subject.Subject
		if err := rows.Scan(&s.ID, &s.StudentID, &s.Name, &s.Code, &s.Elective); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// OwnsSubject reports whether the subject belongs to the student.
func (r *Repository) OwnsSubject(ctx context.Context, studentID, subjectID int64) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM subjects WHERE id = $1 AND student_id = $2)
	`, subjectID, studentID).Scan(&ok)
	return ok, err
}

// Entries returns every marks row of the student.
func (r *Repository) Entries(ctx context.Context, studentID int64) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT student_id, subject_id, ia_number, marks_obtained, updated_at
		FROM marks WHERE student_id = $1
		ORDER BY subject_id, ia_number
	`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.StudentID, &e.SubjectID, &e.IA, &e.Obtained, &e.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// Upsert writes one row per (student, subject, assessment).
func (r *Repository) Upsert(ctx context.Context, e Entry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO marks (student_id, subject_id, ia_number, marks_obtained, max_marks)
		VALUES ($1, $2, $3, $4, 50)
		ON CONFLICT (student_id, subject_id, ia_number) DO UPDATE SET
			marks_obtained = EXCLUDED.marks_obtained,
			updated_at = NOW()
	`, e.StudentID, e.SubjectID, e.IA, e.Obtained)
	return err
}

// Delete clears one assessment. Clearing an empty slot is not an error.
func (r *Repository) Delete(ctx context.Context, studentID, subjectID int64, ia int) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM marks WHERE student_id = $1 AND subject_id = $2 AND ia_number = $3
	`, studentID, subjectID, ia)
	return err
}

var _ Store = (*Repository)(nil)
