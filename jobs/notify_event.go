package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/sitekart/sitekart/internal/notify"
)

// Enqueuer submits tasks. *asynq.Client satisfies it.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueSink is a notify.Sink that defers delivery to the worker.
type QueueSink struct {
	enqueuer Enqueuer
}

// NewQueueSink constructs a QueueSink.
func NewQueueSink(enqueuer Enqueuer) *QueueSink {
	return &QueueSink{enqueuer: enqueuer}
}

// Publish enqueues event for delivery.
func (s *QueueSink) Publish(ctx context.Context, event notify.Event) error {
	if s == nil || s.enqueuer == nil {
		return errors.New("jobs: queue sink not configured")
	}
	task, err := NewNotifyEventTask(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.ID, err)
	}
	// the event id doubles as task id so a re-published event is not delivered twice
	_, err = s.enqueuer.EnqueueContext(ctx, task, asynq.TaskID(event.ID))
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

// NotifyDeliveryJob hands queued events to the downstream sink.
type NotifyDeliveryJob struct {
	Sink   notify.Sink
	Logger *slog.Logger
}

// Handle processes TaskNotifyEvent tasks.
func (j *NotifyDeliveryJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Sink == nil {
		return errors.New("notify delivery: handler not configured")
	}
	var event notify.Event
	if err := json.Unmarshal(t.Payload(), &event); err != nil {
		return fmt.Errorf("decode event: %v: %w", err, asynq.SkipRetry)
	}
	if err := j.Sink.Publish(ctx, event); err != nil {
		if j.Logger != nil {
			j.Logger.Warn("deliver event", slog.String("event_id", event.ID), slog.String("type", string(event.Type)), slog.Any("error", err))
		}
		return err
	}
	return nil
}
