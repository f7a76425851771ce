package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/hibiken/asynq"

	"github.com/marsukat/marsukat-dashboard/jobs"
)

// JobsCLI wraps manual management helpers for dashboard jobs.
type JobsCLI struct {
	client    *jobs.Client
	inspector *asynq.Inspector
}

// NewJobsCLI initialises the CLI helpers using the provided Redis address.
func NewJobsCLI(redisAddr string) *JobsCLI {
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	return &JobsCLI{client: jobs.NewClient(opts), inspector: asynq.NewInspector(opts)}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		if closeErr := c.inspector.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if c.client != nil {
		if closeErr := c.client.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// Trigger enqueues a supported job by name. An empty year lets the job pick
// the current one.
func (c *JobsCLI) Trigger(ctx context.Context, name, year string) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	y, err := parseYear(year)
	if err != nil {
		return nil, err
	}
	switch name {
	case "warmup", jobs.TaskDashboardWarmup:
		return c.client.EnqueueWarmup(ctx, jobs.WarmupPayload{Year: y, Invalidate: true})
	case "snapshot", jobs.TaskDashboardSnapshot:
		return c.client.EnqueueSnapshot(ctx, jobs.SnapshotPayload{Year: y})
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
}

func parseYear(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	y, err := strconv.Atoi(raw)
	if err != nil || y < 1900 || y > 9999 {
		return 0, fmt.Errorf("jobs cli: invalid year %q", raw)
	}
	return y, nil
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
}

// InspectQueue reports the queue metrics for the default queue.
func (c *JobsCLI) InspectQueue(ctx context.Context) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
	}
	return stats, nil
}
