package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB wraps sql.DB for Postgres using pgx.
type DB struct {
	Client *sql.DB
}

// NewDB opens a Postgres pool and pings it.
func NewDB(ctx context.Context, connString string) (*DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &DB{Client: db}, nil
}

// Healthy verifies postgres connectivity.
func (d *DB) Healthy(ctx context.Context) bool {
	if d == nil || d.Client == nil {
		return false
	}
	return d.Client.PingContext(ctx) == nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}

// EnsureSchema creates the tables when they do not exist.
func (d *DB) EnsureSchema(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := d.Client.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema step %d: %w", i, err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS students (
		id BIGSERIAL PRIMARY KEY,
		usn TEXT NOT NULL UNIQUE,
		username TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		semester INT NOT NULL DEFAULT 6,
		college TEXT NOT NULL DEFAULT 'MVJ College of Engineering',
		password_hash TEXT NOT NULL,
		biometric_prompted BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS subjects (
		id BIGSERIAL PRIMARY KEY,
		student_id BIGINT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		code TEXT NOT NULL,
		elective BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE INDEX IF NOT EXISTS subjects_student_idx ON subjects (student_id)`,
	`CREATE TABLE IF NOT EXISTS attendance (
		id BIGSERIAL PRIMARY KEY,
		student_id BIGINT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
		subject_id BIGINT NOT NULL REFERENCES subjects(id) ON DELETE CASCADE,
		date DATE NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('present', 'absent')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS attendance_student_date_idx ON attendance (student_id, date)`,
	`CREATE TABLE IF NOT EXISTS marks (
		student_id BIGINT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
		subject_id BIGINT NOT NULL REFERENCES subjects(id) ON DELETE CASCADE,
		ia_number INT NOT NULL CHECK (ia_number BETWEEN 1 AND 3),
		marks_obtained DOUBLE PRECISION NOT NULL CHECK (marks_obtained BETWEEN 0 AND 50),
		max_marks DOUBLE PRECISION NOT NULL DEFAULT 50,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (student_id, subject_id, ia_number)
	)`,
	`CREATE TABLE IF NOT EXISTS biometric_credentials (
		id BIGSERIAL PRIMARY KEY,
		student_id BIGINT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
		credential_id TEXT NOT NULL,
		public_key TEXT NOT NULL,
		device_name TEXT NOT NULL,
		registered_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (student_id, credential_id)
	)`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		id UUID PRIMARY KEY,
		kind TEXT NOT NULL,
		student_id BIGINT,
		actor TEXT NOT NULL DEFAULT '',
		detail TEXT NOT NULL DEFAULT '',
		ip TEXT NOT NULL DEFAULT '',
		occurred_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS audit_log_occurred_idx ON audit_log (occurred_at DESC)`,
}
