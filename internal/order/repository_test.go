package order

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitekart/sitekart/internal/shared"
)

func anyArgs(n int) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = pgxmock.AnyArg()
	}
	return out
}

func TestRepositoryInsertMapsDuplicateOrder(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	mock.ExpectQuery(`INSERT INTO orders`).WithArgs(anyArgs(15)...).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: constraintQuotationUnique})
	mock.ExpectRollback()

	o := Order{OrderNumber: "ORD-1", QuotationID: 1, Status: StatusPending, CreatedAt: time.Now()}
	err = NewRepository(mock).WithTx(context.Background(), func(ctx context.Context, tx TxRepository) error {
		return tx.Insert(ctx, &o)
	})
	require.ErrorIs(t, err, shared.ErrDuplicateOrder)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryUpdateLostRace(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	mock.ExpectExec(`UPDATE orders SET`).
		WithArgs(append([]any{int64(3), "pending", int64(1)}, anyArgs(11)...)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	o := Order{ID: 3, Status: StatusConfirmed, Revision: 1}
	err = NewRepository(mock).WithTx(context.Background(), func(ctx context.Context, tx TxRepository) error {
		return tx.Update(ctx, &o, StatusPending, 1)
	})
	require.ErrorIs(t, err, shared.ErrConcurrentModification)
	assert.Equal(t, int64(1), o.Revision)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryGetByQuotationNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`FROM orders WHERE quotation_id = \$1`).WithArgs(int64(4)).WillReturnError(pgx.ErrNoRows)

	_, err = NewRepository(mock).GetByQuotation(context.Background(), 4)
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
