package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sitekart/sitekart/internal/platform/db"
)

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	Actor    Actor
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// AuditLogger writes records into audit_logs.
type AuditLogger struct {
	pool db.Querier
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool db.Querier) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errors.New("audit log requires action/entity/entity_id")
	}
	metaJSON, err := json.Marshal(log.Meta)
	if err != nil {
		return err
	}
	var at *time.Time
	if !log.At.IsZero() {
		at = &log.At
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO audit_logs (actor_id, actor_role, action, entity, entity_id, meta, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))`,
		log.Actor.ID, string(log.Actor.Role), log.Action, log.Entity, log.EntityID, metaJSON, at)
	return err
}
