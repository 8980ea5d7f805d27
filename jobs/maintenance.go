package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/sitekart/sitekart/internal/jobs"
)

// DefaultIdempotencyRetention applies when the cleanup payload is empty.
const DefaultIdempotencyRetention = 30 * 24 * time.Hour

// QuotationExpirer expires overdue quotations.
type QuotationExpirer interface {
	ExpireDue(ctx context.Context) (int, error)
}

// ExpirySweepJob runs the scheduled quotation expiry.
type ExpirySweepJob struct {
	Quotations QuotationExpirer
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// Handle processes TaskQuotationExpireSweep tasks.
func (j *ExpirySweepJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Quotations == nil {
		return errors.New("expiry sweep: handler not configured")
	}
	tracker := j.Metrics.Track(TaskQuotationExpireSweep)
	defer func() { err = tracker.End(err) }()

	expired, err := j.Quotations.ExpireDue(ctx)
	j.Metrics.AddSwept(TaskQuotationExpireSweep, expired)
	if j.Logger != nil {
		if err != nil {
			j.Logger.Warn("quotation expiry sweep", slog.Int("expired", expired), slog.Any("error", err))
		} else if expired > 0 {
			j.Logger.Info("quotation expiry sweep", slog.Int("expired", expired))
		}
	}
	return err
}

// IdempotencyCleaner purges old idempotency keys.
type IdempotencyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// IdempotencyCleanupJob runs the scheduled key purge.
type IdempotencyCleanupJob struct {
	Store   IdempotencyCleaner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle processes TaskIdempotencyCleanup tasks.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	payload := IdempotencyCleanupPayload{Retention: DefaultIdempotencyRetention}
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	if payload.Retention <= 0 {
		payload.Retention = DefaultIdempotencyRetention
	}
	tracker := j.Metrics.Track(TaskIdempotencyCleanup)
	defer func() { err = tracker.End(err) }()

	removed, err := j.Store.Cleanup(ctx, payload.Retention)
	if err != nil {
		return fmt.Errorf("cleanup idempotency keys: %w", err)
	}
	j.Metrics.AddSwept(TaskIdempotencyCleanup, int(removed))
	if j.Logger != nil && removed > 0 {
		j.Logger.Info("idempotency cleanup", slog.Int64("removed", removed))
	}
	return nil
}
