package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueCritical carries escalated notifications.
	QueueCritical = "critical"

	// TaskTypeNotify is the task type for delivering notifications.
	TaskTypeNotify = "notify:send"
	// TaskTypeIdempotencyCleanup prunes old idempotency keys.
	TaskTypeIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// NotifyPayload describes one queued notification.
type NotifyPayload struct {
	RecipientID int64             `json:"recipient_id"`
	Priority    string            `json:"priority"`
	Title       string            `json:"title"`
	Body        string            `json:"body"`
	Amount      float64           `json:"amount,omitempty"`
	Meta        map[string]string `json:"meta,omitempty"`
}

// NewNotifyTask constructs an Asynq task for a notification.
func NewNotifyTask(payload NotifyPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeNotify, data), nil
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskTypeIdempotencyCleanup, nil)
}

// NotifyJob delivers queued notifications.
type NotifyJob struct {
	logger *slog.Logger
}

// NewNotifyJob constructs NotifyJob.
func NewNotifyJob(logger *slog.Logger) *NotifyJob {
	return &NotifyJob{logger: logger}
}

// Handle processes TaskTypeNotify tasks. Delivery currently goes to the
// log sink; the push/email gateway plugs in here.
func (j *NotifyJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload NotifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	j.logger.Info("deliver notification",
		slog.Int64("recipient_id", payload.RecipientID),
		slog.String("priority", payload.Priority),
		slog.String("title", payload.Title))
	return nil
}

// IdempotencyCleaner matches shared.IdempotencyStore.
type IdempotencyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// IdempotencyCleanupJob prunes processed keys past retention.
type IdempotencyCleanupJob struct {
	store  IdempotencyCleaner
	logger *slog.Logger
}

// NewIdempotencyCleanupJob constructs the job.
func NewIdempotencyCleanupJob(store IdempotencyCleaner, logger *slog.Logger) *IdempotencyCleanupJob {
	return &IdempotencyCleanupJob{store: store, logger: logger}
}

// Handle processes TaskTypeIdempotencyCleanup tasks.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if err := j.store.Cleanup(ctx, 30*24*time.Hour); err != nil {
		j.logger.Error("idempotency cleanup", slog.Any("error", err))
		return err
	}
	return nil
}
