package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/sitekart/sitekart/internal/notify"
)

const (
	// QueueDefault is the queue for scheduled maintenance jobs.
	QueueDefault = "default"
	// QueueEvents carries outbound notification events.
	QueueEvents = "events"

	// TaskNotifyEvent delivers a lifecycle event to the notification channel.
	TaskNotifyEvent = "notify:event"
	// TaskQuotationExpireSweep expires sent or viewed quotations past validity.
	TaskQuotationExpireSweep = "quotation:expire_sweep"
	// TaskIdempotencyCleanup purges old idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// NewNotifyEventTask wraps event in an asynq task.
func NewNotifyEventTask(event notify.Event) (*asynq.Task, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotifyEvent, data, asynq.Queue(QueueEvents), asynq.MaxRetry(8)), nil
}

// NewQuotationExpireSweepTask builds the expiry sweep task.
func NewQuotationExpireSweepTask() *asynq.Task {
	return asynq.NewTask(TaskQuotationExpireSweep, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(1))
}

// IdempotencyCleanupPayload configures the retention of idempotency keys.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewIdempotencyCleanupTask builds the cleanup task.
func NewIdempotencyCleanupTask(payload IdempotencyCleanupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data, asynq.Queue(QueueDefault), asynq.MaxRetry(1)), nil
}
