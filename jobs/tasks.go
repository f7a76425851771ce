package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskDashboardWarmup refreshes the dashboard cache.
	TaskDashboardWarmup = "dashboard:warmup"
	// TaskDashboardSnapshot computes and stores the yearly dashboard summary.
	TaskDashboardSnapshot = "dashboard:snapshot"
)

// WarmupPayload selects the years to warm. Zero warms the current and
// previous year.
type WarmupPayload struct {
	Year       int  `json:"year,omitempty"`
	Invalidate bool `json:"invalidate,omitempty"`
}

// SnapshotPayload selects the summary year. Zero uses the current year.
type SnapshotPayload struct {
	Year int `json:"year,omitempty"`
}

// NewWarmupTask constructs a dashboard warmup task.
func NewWarmupTask(payload WarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDashboardWarmup, data), nil
}

// NewSnapshotTask constructs a dashboard snapshot task.
func NewSnapshotTask(payload SnapshotPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDashboardSnapshot, data), nil
}

func decodePayload(t *asynq.Task, dest any) error {
	if len(t.Payload()) == 0 {
		return nil
	}
	return json.Unmarshal(t.Payload(), dest)
}
