package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sitekart/sitekart/internal/platform/db"
	"github.com/sitekart/sitekart/internal/shared"
)

const constraintQuotationUnique = "orders_quotation_id_key"

const selectColumns = `SELECT id, order_number, quotation_id, project_id, customer_id, seller_id,
items, subtotal, gst_total, labor_cost, transport_cost, discount_amount, total, gst_breakdown,
status, tracking_number, carrier, cancellation_reason,
confirmed_at, processing_at, shipped_at, delivered_at, cancelled_at, returned_at,
revision, created_at, updated_at
FROM orders`

// Repository persists orders in PostgreSQL.
type Repository struct {
	pool db.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool db.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	q db.Querier
}

// WithTx wraps fn in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{q: tx})
	})
}

// Get loads an order by id.
func (r *Repository) Get(ctx context.Context, id int64) (Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, selectColumns+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, fmt.Errorf("order %d: %w", id, shared.ErrNotFound)
	}
	return o, err
}

// GetByQuotation loads the order materialized from a quotation.
func (r *Repository) GetByQuotation(ctx context.Context, quotationID int64) (Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, selectColumns+` WHERE quotation_id = $1`, quotationID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, fmt.Errorf("order for quotation %d: %w", quotationID, shared.ErrNotFound)
	}
	return o, err
}

func (t *txRepo) Insert(ctx context.Context, o *Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("encode items: %w", err)
	}
	breakdown, err := json.Marshal(o.GSTBreakdown)
	if err != nil {
		return fmt.Errorf("encode gst breakdown: %w", err)
	}
	err = t.q.QueryRow(ctx, `INSERT INTO orders (
order_number, quotation_id, project_id, customer_id, seller_id,
items, subtotal, gst_total, labor_cost, transport_cost, discount_amount, total, gst_breakdown,
status, revision, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, 1, $15, $15)
RETURNING id, revision`,
		o.OrderNumber, o.QuotationID, o.ProjectID, o.CustomerID, o.SellerID,
		items, o.Subtotal, o.GSTTotal, o.LaborCost, o.TransportCost, o.DiscountAmount, o.Total, breakdown,
		string(o.Status), o.CreatedAt,
	).Scan(&o.ID, &o.Revision)
	if db.IsUniqueViolation(err, constraintQuotationUnique) {
		return fmt.Errorf("quotation %d: %w", o.QuotationID, shared.ErrDuplicateOrder)
	}
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (t *txRepo) Update(ctx context.Context, o *Order, expectedStatus Status, expectedRevision int64) error {
	tag, err := t.q.Exec(ctx, `UPDATE orders SET
status = $4, tracking_number = $5, carrier = $6, cancellation_reason = $7,
confirmed_at = $8, processing_at = $9, shipped_at = $10, delivered_at = $11, cancelled_at = $12, returned_at = $13,
revision = revision + 1, updated_at = $14
WHERE id = $1 AND status = $2 AND revision = $3`,
		o.ID, string(expectedStatus), expectedRevision,
		string(o.Status), o.TrackingNumber, o.Carrier, o.CancellationReason,
		o.ConfirmedAt, o.ProcessingAt, o.ShippedAt, o.DeliveredAt, o.CancelledAt, o.ReturnedAt,
		o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update order %d: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %d at %s rev %d: %w", o.ID, expectedStatus, expectedRevision, shared.ErrConcurrentModification)
	}
	o.Revision = expectedRevision + 1
	return nil
}

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o                Order
		items, breakdown []byte
		status           string
	)
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.QuotationID, &o.ProjectID, &o.CustomerID, &o.SellerID,
		&items, &o.Subtotal, &o.GSTTotal, &o.LaborCost, &o.TransportCost, &o.DiscountAmount, &o.Total, &breakdown,
		&status, &o.TrackingNumber, &o.Carrier, &o.CancellationReason,
		&o.ConfirmedAt, &o.ProcessingAt, &o.ShippedAt, &o.DeliveredAt, &o.CancelledAt, &o.ReturnedAt,
		&o.Revision, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return Order{}, err
	}
	o.Status = Status(status)
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return Order{}, fmt.Errorf("decode items of order %d: %w", o.ID, err)
	}
	if len(breakdown) > 0 {
		if err := json.Unmarshal(breakdown, &o.GSTBreakdown); err != nil {
			return Order{}, fmt.Errorf("decode gst breakdown of order %d: %w", o.ID, err)
		}
	}
	return o, nil
}
