package jobs

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/hibiken/asynq"

	"github.com/marsukat/marsukat-dashboard/internal/dashboard"
	jobmetrics "github.com/marsukat/marsukat-dashboard/internal/jobs"
	"github.com/marsukat/marsukat-dashboard/internal/snapshot"
)

// SummaryBuilder computes the yearly dashboard summary.
type SummaryBuilder interface {
	Summary(ctx context.Context, year int) (dashboard.Summary, error)
}

// SnapshotRecorder stores a computed view.
type SnapshotRecorder interface {
	Record(ctx context.Context, kind, period string, payload any) (snapshot.Snapshot, bool, error)
}

// SnapshotJob stores the yearly summary so past dashboards stay available.
type SnapshotJob struct {
	Dashboard SummaryBuilder
	Store     SnapshotRecorder
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
}

// NewSnapshotJob wires dependencies for the snapshot handler.
func NewSnapshotJob(dash SummaryBuilder, store SnapshotRecorder, logger *slog.Logger, metrics *jobmetrics.Metrics) *SnapshotJob {
	return &SnapshotJob{
		Dashboard: dash,
		Store:     store,
		Logger:    logger,
		Metrics:   metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes dashboard snapshot tasks.
func (j *SnapshotJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Dashboard == nil || j.Store == nil {
		return errors.New("dashboard snapshot: handler not configured")
	}
	var payload SnapshotPayload
	if err := decodePayload(t, &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Year == 0 {
		payload.Year = j.now().Year()
	}

	tracker := j.metrics().Track(TaskDashboardSnapshot)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int("year", payload.Year))
	summary, err := j.Dashboard.Summary(ctx, payload.Year)
	if err != nil {
		resultErr = err
		logger.Error("build summary", slog.Any("error", err))
		return resultErr
	}
	saved, created, err := j.Store.Record(ctx, snapshot.KindSummary, strconv.Itoa(payload.Year), summary)
	if err != nil {
		resultErr = err
		logger.Error("store snapshot", slog.Any("error", err))
		return resultErr
	}
	j.metrics().AddSnapshot(saved.Kind, created)
	logger.Info("stored dashboard snapshot", slog.String("id", saved.ID.String()), slog.Bool("created", created))
	return resultErr
}

func (j *SnapshotJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskDashboardSnapshot))
	}
	return slog.Default().With(slog.String("job", TaskDashboardSnapshot))
}

func (j *SnapshotJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *SnapshotJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
