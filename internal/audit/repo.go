package audit

import (
	"context"
	"database/sql"
)

// Repository persists audit events in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Insert writes an event. Redelivered events are ignored.
func (r *Repository) Insert(ctx context.Context, e Event) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, kind, student_id, actor, detail, ip, occurred_at)
		VALUES ($1, $2, NULLIF($3, 0), $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, e.ID, e.Kind, e.StudentID, e.Actor, e.Detail, e.IP, e.At)
	return err
}

// List returns the newest events first.
func (r *Repository) List(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, kind, COALESCE(student_id, 0), actor, detail, ip, occurred_at
		FROM audit_log
		ORDER BY occurred_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []Event{}
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Kind, &e.StudentID, &e.Actor, &e.Detail, &e.IP, &e.At); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

var _ Store = (*Repository)(nil)
