package attendance

import (
	"context"
	"database/sql"
	"errors"

	"attendtrack/internal/apperr"
	"attendtrack/internal/subject"
)

// Repository persists attendance data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// SubjectCounts returns every subject of the student with folded present/total counts.
// Repeated rows for the same day each count once.
func (r *Repository) SubjectCounts(ctx context.Context, studentID int64) ([]RawCount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.student_id, s.name, s.code, s.elective,
			COUNT(a.id) FILTER (WHERE a.status = 'present') AS present,
			COUNT(a.id) AS total
		FROM subjects s
		LEFT JOIN attendance a ON a.subject_id = s.id AND a.student_id = s.student_id
		WHERE s.student_id = $1
		GROUP BY s.id
		ORDER BY s.id
	`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []RawCount
	for rows.Next() {
		var rc RawCount
		if err := rows.Scan(&rc.Subject.ID, &rc.Subject.StudentID, &rc.Subject.Name, &rc.Subject.Code, &rc.Subject.Elective, &rc.Present, &rc.Total); err != nil {
			return nil, err
		}
		res = append(res, rc)
	}
	return res, rows.Err()
}

// OwnedSubject loads a subject only when it belongs to the student.
func (r *Repository) OwnedSubject(ctx context.Context, studentID, subjectID int64) (subject.Subject, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, student_id, name, code, elective
		FROM subjects WHERE id = $1 AND student_id = $2
	`, subjectID, studentID)
	var s subject.Subject
	if err := row.Scan(&s.ID, &s.StudentID, &s.Name, &s.Code, &s.Elective); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return subject.Subject{}, apperr.ErrNotFound
		}
		return subject.Subject{}, err
	}
	return s, nil
}

// InsertRecord writes a new attendance row.
func (r *Repository) InsertRecord(ctx context.Context, rec Record) (Record, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance (student_id, subject_id, date, status)
		VALUES ($1, $2, $3::date, $4)
		RETURNING id, created_at
	`, rec.StudentID, rec.SubjectID, rec.Date, rec.Status)
	if err := row.Scan(&rec.ID, &rec.CreatedAt); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// RecordsOn lists the student's rows for a single date.
func (r *Repository) RecordsOn(ctx context.Context, studentID int64, date string) ([]DayEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.id, s.name, s.code, a.status
		FROM attendance a
		JOIN subjects s ON s.id = a.subject_id
		WHERE a.student_id = $1 AND a.date = $2::date
		ORDER BY s.name, a.id
	`, studentID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []DayEntry{}
	for rows.Next() {
		var e DayEntry
		if err := rows.Scan(&e.AttendanceID, &e.SubjectName, &e.SubjectCode, &e.Status); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// MonthCounts returns per-day counts in [from, to). Days without rows are absent from the map.
func (r *Repository) MonthCounts(ctx context.Context, studentID int64, from, to string) (map[string]DayCount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT to_char(date, 'YYYY-MM-DD'),
			COUNT(*) FILTER (WHERE status = 'present'),
			COUNT(*) FILTER (WHERE status = 'absent')
		FROM attendance
		WHERE student_id = $1 AND date >= $2::date AND date < $3::date
		GROUP BY date
	`, studentID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]DayCount{}
	for rows.Next() {
		var (
			day string
			dc  DayCount
		)
		if err := rows.Scan(&day, &dc.Present, &dc.Absent); err != nil {
			return nil, err
		}
		res[day] = dc
	}
	return res, rows.Err()
}

// SubjectRecords lists the dates a subject was marked, newest first.
func (r *Repository) SubjectRecords(ctx context.Context, studentID, subjectID int64) ([]SubjectDate, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, to_char(date, 'YYYY-MM-DD'), status
		FROM attendance
		WHERE student_id = $1 AND subject_id = $2
		ORDER BY date DESC, id DESC
	`, studentID, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []SubjectDate{}
	for rows.Next() {
		var d SubjectDate
		if err := rows.Scan(&d.AttendanceID, &d.Date, &d.Status); err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

// DeleteOwned removes a row scoped to the student. A row owned by someone else reports not found.
func (r *Repository) DeleteOwned(ctx context.Context, studentID, recordID int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM attendance WHERE id = $1 AND student_id = $2`, recordID, studentID)
	if err != nil {
		return err
	}
	return affected(res)
}

// ListAll returns every attendance row joined with its student and subject.
func (r *Repository) ListAll(ctx context.Context) ([]AdminRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.id, st.id, st.usn, st.name, s.name, to_char(a.date, 'YYYY-MM-DD'), a.status
		FROM attendance a
		JOIN students st ON st.id = a.student_id
		JOIN subjects s ON s.id = a.subject_id
		ORDER BY a.date DESC, st.usn, s.name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []AdminRecord{}
	for rows.Next() {
		var ar AdminRecord
		if err := rows.Scan(&ar.ID, &ar.StudentID, &ar.USN, &ar.StudentName, &ar.SubjectName, &ar.Date, &ar.Status); err != nil {
			return nil, err
		}
		res = append(res, ar)
	}
	return res, rows.Err()
}

// SubjectNames returns the distinct subject names across all students.
func (r *Repository) SubjectNames(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT name FROM subjects ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		res = append(res, name)
	}
	return res, rows.Err()
}

// DeleteRecord removes any row by id.
func (r *Repository) DeleteRecord(ctx context.Context, recordID int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM attendance WHERE id = $1`, recordID)
	if err != nil {
		return err
	}
	return affected(res)
}

func affected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

var _ Store = (*Repository)(nil)
