package invoice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sitekart/sitekart/internal/platform/db"
	"github.com/sitekart/sitekart/internal/shared"
)

const constraintOrderUnique = "invoices_order_id_key"

const selectColumns = `SELECT id, invoice_number, order_id, quotation_id, customer_id, seller_id,
items, subtotal, gst_total, labor_cost, transport_cost, discount_amount, total, gst_breakdown,
payment_status, transaction_id, paid_at, due_date, revision, created_at, updated_at
FROM invoices`

// Repository persists invoices in PostgreSQL.
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

// Get loads an invoice by id.
func (r *Repository) Get(ctx context.Context, id int64) (Invoice, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx, selectColumns+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, fmt.Errorf("invoice %d: %w", id, shared.ErrNotFound)
	}
	return inv, err
}

// GetByOrder loads the invoice raised for an order.
func (r *Repository) GetByOrder(ctx context.Context, orderID int64) (Invoice, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx, selectColumns+` WHERE order_id = $1`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, fmt.Errorf("invoice for order %d: %w", orderID, shared.ErrNotFound)
	}
	return inv, err
}

func (t *txRepo) Insert(ctx context.Context, inv *Invoice) error {
	items, err := json.Marshal(inv.Items)
	if err != nil {
		return fmt.Errorf("encode items: %w", err)
	}
	breakdown, err := json.Marshal(inv.GSTBreakdown)
	if err != nil {
		return fmt.Errorf("encode gst breakdown: %w", err)
	}
	err = t.q.QueryRow(ctx, `INSERT INTO invoices (
invoice_number, order_id, quotation_id, customer_id, seller_id,
items, subtotal, gst_total, labor_cost, transport_cost, discount_amount, total, gst_breakdown,
payment_status, due_date, revision, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, 1, $16, $16)
RETURNING id, revision`,
		inv.InvoiceNumber, inv.OrderID, inv.QuotationID, inv.CustomerID, inv.SellerID,
		items, inv.Subtotal, inv.GSTTotal, inv.LaborCost, inv.TransportCost, inv.DiscountAmount, inv.Total, breakdown,
		string(inv.PaymentStatus), inv.DueDate, inv.CreatedAt,
	).Scan(&inv.ID, &inv.Revision)
	if db.IsUniqueViolation(err, constraintOrderUnique) {
		return fmt.Errorf("order %d: %w", inv.OrderID, shared.ErrDuplicateInvoice)
	}
	if err != nil {
		return fmt.Errorf("insert invoice: %w", err)
	}
	return nil
}

func (t *txRepo) MarkPaid(ctx context.Context, inv *Invoice, expectedRevision int64) error {
	tag, err := t.q.Exec(ctx, `UPDATE invoices
SET payment_status = 'paid', transaction_id = $3, paid_at = $4, revision = revision + 1, updated_at = $4
WHERE id = $1 AND payment_status = 'pending' AND revision = $2`,
		inv.ID, expectedRevision, inv.TransactionID, inv.PaidAt,
	)
	if err != nil {
		return fmt.Errorf("mark invoice %d paid: %w", inv.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("invoice %d rev %d: %w", inv.ID, expectedRevision, shared.ErrConcurrentModification)
	}
	inv.Revision = expectedRevision + 1
	return nil
}

func scanInvoice(row pgx.Row) (Invoice, error) {
	var (
		inv              Invoice
		items, breakdown []byte
		status           string
	)
	err := row.Scan(
		&inv.ID, &inv.InvoiceNumber, &inv.OrderID, &inv.QuotationID, &inv.CustomerID, &inv.SellerID,
		&items, &inv.Subtotal, &inv.GSTTotal, &inv.LaborCost, &inv.TransportCost, &inv.DiscountAmount, &inv.Total, &breakdown,
		&status, &inv.TransactionID, &inv.PaidAt, &inv.DueDate, &inv.Revision, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return Invoice{}, err
	}
	inv.PaymentStatus = PaymentStatus(status)
	if err := json.Unmarshal(items, &inv.Items); err != nil {
		return Invoice{}, fmt.Errorf("decode items of invoice %d: %w", inv.ID, err)
	}
	if len(breakdown) > 0 {
		if err := json.Unmarshal(breakdown, &inv.GSTBreakdown); err != nil {
			return Invoice{}, fmt.Errorf("decode gst breakdown of invoice %d: %w", inv.ID, err)
		}
	}
	return inv, nil
}
