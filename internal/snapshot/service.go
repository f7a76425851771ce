package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Saver is the persistence contract used by Store.
type Saver interface {
	Save(ctx context.Context, s Snapshot) (Snapshot, bool, error)
	List(ctx context.Context, kind string, limit int) ([]Snapshot, error)
}

// Store records snapshots and announces them.
type Store struct {
	repo      Saver
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewStore wires the repository with an optional publisher.
func NewStore(repo Saver, publisher Publisher, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{repo: repo, publisher: publisher, logger: logger, now: time.Now}
}

// Record marshals payload and stores it under kind and period. The boolean
// reports whether a new row was created. A failed announcement is logged and
// does not fail the write.
func (s *Store) Record(ctx context.Context, kind, period string, payload any) (Snapshot, bool, error) {
	if s == nil || s.repo == nil {
		return Snapshot{}, false, errors.New("snapshot: store not configured")
	}
	if kind == "" || period == "" {
		return Snapshot{}, false, errors.New("snapshot: kind and period required")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("snapshot: marshal payload: %w", err)
	}
	saved, created, err := s.repo.Save(ctx, Snapshot{Kind: kind, Period: period, Payload: raw})
	if err != nil {
		return Snapshot{}, false, err
	}
	if s.publisher != nil {
		event := Event{ID: saved.ID, Kind: saved.Kind, Period: saved.Period, Created: created, At: s.now().UTC()}
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.Warn("snapshot publish failed", slog.String("kind", kind), slog.String("period", period), slog.Any("error", err))
		}
	}
	return saved, created, nil
}

// List returns stored snapshots of a kind.
func (s *Store) List(ctx context.Context, kind string, limit int) ([]Snapshot, error) {
	if s == nil || s.repo == nil {
		return nil, errors.New("snapshot: store not configured")
	}
	return s.repo.List(ctx, kind, limit)
}
