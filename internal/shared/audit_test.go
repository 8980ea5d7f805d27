package shared

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditLoggerRecord(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	at := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec(`INSERT INTO audit_logs`).
		WithArgs(int64(7), "seller", "quotation.sent", "quotation", "12", []byte(`{"version":2}`), &at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	logger := NewAuditLogger(mock)
	err = logger.Record(context.Background(), AuditLog{
		Actor:    Actor{ID: 7, Role: RoleSeller},
		Action:   "quotation.sent",
		Entity:   "quotation",
		EntityID: "12",
		Meta:     map[string]any{"version": 2},
		At:       at,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditLoggerRequiresFields(t *testing.T) {
	logger := NewAuditLogger(nil)
	assert.Error(t, logger.Record(context.Background(), AuditLog{Action: "quotation.sent"}))

	var missing *AuditLogger
	assert.Error(t, missing.Record(context.Background(), AuditLog{Action: "a", Entity: "b", EntityID: "c"}))
}
