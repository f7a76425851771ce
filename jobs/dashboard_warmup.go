package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/marsukat/marsukat-dashboard/internal/aggregate"
	"github.com/marsukat/marsukat-dashboard/internal/dashboard"
	jobmetrics "github.com/marsukat/marsukat-dashboard/internal/jobs"
	"github.com/marsukat/marsukat-dashboard/internal/upstream"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Warmer is the dashboard surface touched by the warmup job.
type Warmer interface {
	Invalidate(ctx context.Context) (int64, error)
	OrderItems(ctx context.Context, filter dashboard.OrderItemsFilter) ([]dashboard.OrderItemRow, error)
	ProductionByMonth(ctx context.Context, year int) ([]aggregate.PeriodTotal, error)
	SalesComparison(ctx context.Context, filter dashboard.SalesFilter) (dashboard.Comparison, error)
	TopDepartments(ctx context.Context, filter dashboard.TopFilter) ([]aggregate.KeyTotal, error)
	StatusBreakdown(ctx context.Context, resource upstream.Resource) ([]dashboard.StatusCount, error)
}

// WarmupJob pre-populates the dashboard cache.
type WarmupJob struct {
	Dashboard Warmer
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
}

// NewWarmupJob wires dependencies for the warmup handler.
func NewWarmupJob(dash Warmer, logger *slog.Logger, metrics *jobmetrics.Metrics) *WarmupJob {
	return &WarmupJob{
		Dashboard: dash,
		Logger:    logger,
		Metrics:   metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes dashboard warmup tasks.
func (j *WarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Dashboard == nil {
		return errors.New("dashboard warmup: handler not configured")
	}
	var payload WarmupPayload
	if err := decodePayload(t, &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskDashboardWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	now := j.now()
	years := []int{payload.Year}
	if payload.Year == 0 {
		years = []int{now.Year(), now.Year() - 1}
	}
	logger := j.logger().With(slog.Any("years", years))
	logger.Info("starting dashboard warmup")

	if payload.Invalidate {
		if _, err := j.Dashboard.Invalidate(ctx); err != nil {
			resultErr = err
			logger.Error("invalidate cache", slog.Any("error", err))
			return resultErr
		}
	}

	if err := j.warmShared(ctx); err != nil {
		resultErr = err
		logger.Error("warm shared views", slog.Any("error", err))
		return resultErr
	}
	for _, year := range years {
		if err := j.warmYear(ctx, year); err != nil {
			resultErr = err
			logger.Error("warm year", slog.Int("year", year), slog.Any("error", err))
			return resultErr
		}
	}

	logger.Info("completed dashboard warmup", slog.Duration("duration", time.Since(now)))
	return resultErr
}

func (j *WarmupJob) warmShared(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	if _, err := j.Dashboard.OrderItems(ctx, dashboard.OrderItemsFilter{}); err != nil {
		return err
	}
	for _, resource := range []upstream.Resource{upstream.ResourceOrderItems, upstream.ResourceRentals, upstream.ResourceCommercialJobs} {
		if _, err := j.Dashboard.StatusBreakdown(ctx, resource); err != nil {
			return err
		}
	}
	return nil
}

func (j *WarmupJob) warmYear(ctx context.Context, year int) error {
	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	if _, err := j.Dashboard.ProductionByMonth(ctx, year); err != nil {
		return err
	}
	if _, err := j.Dashboard.SalesComparison(ctx, dashboard.SalesFilter{Granularity: aggregate.GranularityMonth, Year: year}); err != nil {
		return err
	}
	if _, err := j.Dashboard.TopDepartments(ctx, dashboard.TopFilter{Year: year}); err != nil {
		return err
	}
	return nil
}

func (j *WarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskDashboardWarmup))
	}
	return slog.Default().With(slog.String("job", TaskDashboardWarmup))
}

func (j *WarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *WarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
