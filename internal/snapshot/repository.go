package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the subset of pgxpool.Pool used by the repository.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists snapshots in Postgres.
type Repository struct {
	db  DBTX
	now func() time.Time
}

// NewRepository constructs a repository on top of a pool or transaction.
func NewRepository(db DBTX) *Repository {
	return &Repository{db: db, now: time.Now}
}

const uniqueViolation = "23505"

// Insert writes a new snapshot. ErrDuplicate is returned when the kind and
// period are already stored.
func (r *Repository) Insert(ctx context.Context, s Snapshot) (Snapshot, error) {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	now := r.now().UTC()
	s.CreatedAt, s.UpdatedAt = now, now
	_, err := r.db.Exec(ctx, `INSERT INTO dashboard_snapshots (id, kind, period, payload, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)`, s.ID, s.Kind, s.Period, []byte(s.Payload), s.CreatedAt, s.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Snapshot{}, ErrDuplicate
		}
		return Snapshot{}, fmt.Errorf("snapshot: insert: %w", err)
	}
	return s, nil
}

// Replace overwrites the payload of the snapshot stored for the kind and period.
func (r *Repository) Replace(ctx context.Context, s Snapshot) (Snapshot, error) {
	s.UpdatedAt = r.now().UTC()
	row := r.db.QueryRow(ctx, `UPDATE dashboard_snapshots SET payload = $3, updated_at = $4
WHERE kind = $1 AND period = $2
RETURNING id, created_at`, s.Kind, s.Period, []byte(s.Payload), s.UpdatedAt)
	if err := row.Scan(&s.ID, &s.CreatedAt); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: replace: %w", err)
	}
	return s, nil
}

// Save inserts the snapshot or replaces the stored one for the same kind and
// period. The boolean reports whether a new row was created.
func (r *Repository) Save(ctx context.Context, s Snapshot) (Snapshot, bool, error) {
	saved, err := r.Insert(ctx, s)
	if err == nil {
		return saved, true, nil
	}
	if !errors.Is(err, ErrDuplicate) {
		return Snapshot{}, false, err
	}
	saved, err = r.Replace(ctx, s)
	if err != nil {
		return Snapshot{}, false, err
	}
	return saved, false, nil
}

// List returns the latest snapshots of a kind, newest period first.
func (r *Repository) List(ctx context.Context, kind string, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 12
	}
	rows, err := r.db.Query(ctx, `SELECT id, kind, period, payload, created_at, updated_at
FROM dashboard_snapshots WHERE kind = $1 ORDER BY period DESC LIMIT $2`, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("snapshot: list: %w", err)
	}
	defer rows.Close()

	items := make([]Snapshot, 0, limit)
	for rows.Next() {
		var s Snapshot
		var payload []byte
		if err := rows.Scan(&s.ID, &s.Kind, &s.Period, &payload, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("snapshot: scan: %w", err)
		}
		s.Payload = payload
		items = append(items, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("snapshot: list: %w", err)
	}
	return items, nil
}
