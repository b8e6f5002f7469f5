package student

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"attendtrack/internal/apperr"
	"attendtrack/internal/subject"
)

const uniqueViolation = "23505"

// Repository persists students in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const studentColumns = `id, usn, username, name, semester, college, password_hash, biometric_prompted, created_at`

func scanStudent(row interface{ Scan(...any) error }) (Student, error) {
	var s Student
	err := row.Scan(&s.ID, &s.USN, &s.Username, &s.Name, &s.Semester, &s.College, &s.PasswordHash, &s.BiometricPrompted, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Student{}, apperr.ErrNotFound
	}
	return s, err
}

// Create inserts the student and its seed subjects in one transaction.
func (r *Repository) Create(ctx context.Context, s Student, seeds []subject.Seed) (Student, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Student{}, err
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM students WHERE usn = $1 OR username = $1)
	`, s.USN).Scan(&exists); err != nil {
		return Student{}, err
	}
	if exists {
		return Student{}, ErrDuplicate
	}

	row := tx.QueryRowContext(ctx, `
		INSERT INTO students (usn, username, name, semester, college, password_hash)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+studentColumns,
		s.USN, s.Username, s.Name, s.Semester, s.College, s.PasswordHash)
	created, err := scanStudent(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Student{}, ErrDuplicate
		}
		return Student{}, err
	}

	for _, seed := range seeds {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO subjects (student_id, name, code, elective)
			VALUES ($1, $2, $3, $4)
		`, created.ID, seed.Name, seed.Code, seed.Elective); err != nil {
			return Student{}, err
		}
	}
	return created, tx.Commit()
}

// ByHandle loads a student by usn or username.
func (r *Repository) ByHandle(ctx context.Context, handle string) (Student, error) {
	return scanStudent(r.db.QueryRowContext(ctx, `
		SELECT `+studentColumns+` FROM students WHERE usn = $1 OR username = $1
		ORDER BY id LIMIT 1
	`, handle))
}

// ByID loads a student by id.
func (r *Repository) ByID(ctx context.Context, id int64) (Student, error) {
	return scanStudent(r.db.QueryRowContext(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id))
}

// List returns every student ordered by usn.
func (r *Repository) List(ctx context.Context) ([]Student, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+studentColumns+` FROM students ORDER BY usn`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []Student{}
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// Mappings returns every subject with its owner.
func (r *Repository) Mappings(ctx context.Context) ([]Mapping, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.name, s.code, st.id, st.usn, st.name
		FROM subjects s
		JOIN students st ON st.id = s.student_id
		ORDER BY st.usn, s.id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []Mapping{}
	for rows.Next() {
		var m Mapping
		if err := rows.Scan(&m.SubjectID, &m.SubjectName, &m.SubjectCode, &m.StudentID, &m.USN, &m.StudentName); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
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
	res := []subject.Subject{}
	for rows.Next() {
		var s subject.Subject
		if err := rows.Scan(&s.ID, &s.StudentID, &s.Name, &s.Code, &s.Elective); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// CredentialCount returns how many biometric credentials the student has.
func (r *Repository) CredentialCount(ctx context.Context, studentID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM biometric_credentials WHERE student_id = $1`, studentID).Scan(&n)
	return n, err
}

// SetPrompted records that the enrollment prompt was shown.
func (r *Repository) SetPrompted(ctx context.Context, studentID int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE students SET biometric_prompted = TRUE WHERE id = $1`, studentID)
	if err != nil {
		return err
	}
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
