package biometric

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"attendtrack/internal/apperr"
)

const uniqueViolation = "23505"

// Repository persists credentials in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func scanAccount(row *sql.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.USN, &a.Username, &a.Name, &a.Prompted)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, apperr.ErrNotFound
	}
	return a, err
}

// AccountByHandle loads a student by usn or username.
func (r *Repository) AccountByHandle(ctx context.Context, handle string) (Account, error) {
	return scanAccount(r.db.QueryRowContext(ctx, `
		SELECT id, usn, username, name, biometric_prompted
		FROM students WHERE usn = $1 OR username = $1
		ORDER BY id LIMIT 1
	`, handle))
}

// AccountByID loads a student by id.
func (r *Repository) AccountByID(ctx context.Context, id int64) (Account, error) {
	return scanAccount(r.db.QueryRowContext(ctx, `
		SELECT id, usn, username, name, biometric_prompted FROM students WHERE id = $1
	`, id))
}

// Credentials returns the student's credentials in registration order.
func (r *Repository) Credentials(ctx context.Context, studentID int64) ([]Credential, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT credential_id, public_key, device_name, registered_at
		FROM biometric_credentials WHERE student_id = $1
		ORDER BY id
	`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []Credential{}
	for rows.Next() {
		var c Credential
		if err := rows.Scan(&c.ID, &c.PublicKey, &c.DeviceName, &c.RegisteredAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// AddCredential appends a credential and marks the student as prompted.
func (r *Repository) AddCredential(ctx context.Context, studentID int64, c Credential) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO biometric_credentials (student_id, credential_id, public_key, device_name, registered_at)
		VALUES ($1, $2, $3, $4, $5)
	`, studentID, c.ID, c.PublicKey, c.DeviceName, c.RegisteredAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return 0, ErrDuplicateCredential
		}
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE students SET biometric_prompted = TRUE WHERE id = $1`, studentID); err != nil {
		return 0, err
	}
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM biometric_credentials WHERE student_id = $1`, studentID).Scan(&n); err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

// RemoveCredential deletes one of the student's credentials and returns the remaining count.
func (r *Repository) RemoveCredential(ctx context.Context, studentID int64, credentialID string) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		DELETE FROM biometric_credentials WHERE student_id = $1 AND credential_id = $2
	`, studentID, credentialID)
	if err != nil {
		return 0, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return 0, err
	} else if n == 0 {
		return 0, apperr.ErrNotFound
	}
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM biometric_credentials WHERE student_id = $1`, studentID).Scan(&n); err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

// SetPrompted records that the enrollment prompt was shown.
func (r *Repository) SetPrompted(ctx context.Context, studentID int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE students SET biometric_prompted = TRUE WHERE id = $1`, studentID)
	return err
}

var _ Store = (*Repository)(nil)
