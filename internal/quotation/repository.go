package quotation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sitekart/sitekart/internal/platform/db"
	"github.com/sitekart/sitekart/internal/pricing"
	"github.com/sitekart/sitekart/internal/shared"
)

const (
	constraintOneActive     = "quotations_one_active_per_project"
	constraintNumberVersion = "quotations_number_version_key"
)

const selectColumns = `SELECT id, quotation_number, version, previous_version_id, project_id, customer_id, seller_id,
items, labor_cost, transport_cost, discount, discount_type, subtotal, gst_total, discount_amount, total, gst_breakdown,
status, valid_until, notes, terms, rejection_reason,
sent_at, viewed_at, accepted_at, rejected_at, expired_at, revised_at,
revision, created_at, updated_at
FROM quotations`

// Repository persists quotations in PostgreSQL.
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

// Get loads one quotation version.
func (r *Repository) Get(ctx context.Context, id int64) (Quotation, error) {
	q, err := scanQuotation(r.pool.QueryRow(ctx, selectColumns+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Quotation{}, fmt.Errorf("quotation %d: %w", id, shared.ErrNotFound)
	}
	return q, err
}

// ActiveForProject returns the project's open quotation.
func (r *Repository) ActiveForProject(ctx context.Context, projectID int64) (Quotation, error) {
	q, err := scanQuotation(r.pool.QueryRow(ctx, selectColumns+`
WHERE project_id = $1 AND status IN ('draft', 'sent', 'viewed')
ORDER BY version DESC LIMIT 1`, projectID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Quotation{}, fmt.Errorf("active quotation for project %d: %w", projectID, shared.ErrNotFound)
	}
	return q, err
}

// ListByProject lists every version for a project, newest first.
func (r *Repository) ListByProject(ctx context.Context, projectID int64) ([]Quotation, error) {
	rows, err := r.pool.Query(ctx, selectColumns+`
WHERE project_id = $1 ORDER BY created_at DESC, version DESC`, projectID)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// ListExpirable lists sent or viewed quotations whose validity ended before now.
func (r *Repository) ListExpirable(ctx context.Context, now time.Time, limit int) ([]Quotation, error) {
	rows, err := r.pool.Query(ctx, selectColumns+`
WHERE status IN ('sent', 'viewed') AND valid_until < $1
ORDER BY valid_until LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (t *txRepo) Insert(ctx context.Context, q *Quotation) error {
	items, breakdown, err := encodeDocument(q)
	if err != nil {
		return err
	}
	err = t.q.QueryRow(ctx, `INSERT INTO quotations (
quotation_number, version, previous_version_id, project_id, customer_id, seller_id,
items, labor_cost, transport_cost, discount, discount_type, subtotal, gst_total, discount_amount, total, gst_breakdown,
status, valid_until, notes, terms, revision, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, 1, $21, $21)
RETURNING id, revision`,
		q.QuotationNumber, q.Version, q.PreviousVersionID, q.ProjectID, q.CustomerID, q.SellerID,
		items, q.LaborCost, q.TransportCost, q.Discount, string(q.DiscountType), q.Subtotal, q.GSTTotal, q.DiscountAmount, q.Total, breakdown,
		string(q.Status), q.ValidUntil, q.Notes, q.Terms, q.CreatedAt,
	).Scan(&q.ID, &q.Revision)
	switch {
	case db.IsUniqueViolation(err, constraintOneActive):
		return fmt.Errorf("project %d: %w", q.ProjectID, shared.ErrDuplicateActive)
	case db.IsUniqueViolation(err, constraintNumberVersion):
		return fmt.Errorf("quotation %s v%d: %w", q.QuotationNumber, q.Version, shared.ErrConcurrentModification)
	case err != nil:
		return fmt.Errorf("insert quotation: %w", err)
	}
	q.UpdatedAt = q.CreatedAt
	return nil
}

func (t *txRepo) Update(ctx context.Context, q *Quotation, expectedStatus Status, expectedRevision int64) error {
	items, breakdown, err := encodeDocument(q)
	if err != nil {
		return err
	}
	tag, err := t.q.Exec(ctx, `UPDATE quotations SET
items = $4, labor_cost = $5, transport_cost = $6, discount = $7, discount_type = $8,
subtotal = $9, gst_total = $10, discount_amount = $11, total = $12, gst_breakdown = $13,
status = $14, valid_until = $15, notes = $16, terms = $17, rejection_reason = $18,
sent_at = $19, viewed_at = $20, accepted_at = $21, rejected_at = $22, expired_at = $23, revised_at = $24,
revision = revision + 1, updated_at = $25
WHERE id = $1 AND status = $2 AND revision = $3`,
		q.ID, string(expectedStatus), expectedRevision,
		items, q.LaborCost, q.TransportCost, q.Discount, string(q.DiscountType),
		q.Subtotal, q.GSTTotal, q.DiscountAmount, q.Total, breakdown,
		string(q.Status), q.ValidUntil, q.Notes, q.Terms, q.RejectionReason,
		q.SentAt, q.ViewedAt, q.AcceptedAt, q.RejectedAt, q.ExpiredAt, q.RevisedAt,
		q.UpdatedAt,
	)
	if db.IsUniqueViolation(err, constraintOneActive) {
		return fmt.Errorf("project %d: %w", q.ProjectID, shared.ErrDuplicateActive)
	}
	if err != nil {
		return fmt.Errorf("update quotation %d: %w", q.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("quotation %d at %s rev %d: %w", q.ID, expectedStatus, expectedRevision, shared.ErrConcurrentModification)
	}
	q.Revision = expectedRevision + 1
	return nil
}

func encodeDocument(q *Quotation) ([]byte, []byte, error) {
	items, err := json.Marshal(q.Items)
	if err != nil {
		return nil, nil, fmt.Errorf("encode items: %w", err)
	}
	breakdown, err := json.Marshal(q.GSTBreakdown)
	if err != nil {
		return nil, nil, fmt.Errorf("encode gst breakdown: %w", err)
	}
	return items, breakdown, nil
}

func collect(rows pgx.Rows) ([]Quotation, error) {
	defer rows.Close()
	var out []Quotation
	for rows.Next() {
		q, err := scanQuotation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func scanQuotation(row pgx.Row) (Quotation, error) {
	var (
		q                    Quotation
		items, breakdown     []byte
		status, discountType string
	)
	err := row.Scan(
		&q.ID, &q.QuotationNumber, &q.Version, &q.PreviousVersionID, &q.ProjectID, &q.CustomerID, &q.SellerID,
		&items, &q.LaborCost, &q.TransportCost, &q.Discount, &discountType, &q.Subtotal, &q.GSTTotal, &q.DiscountAmount, &q.Total, &breakdown,
		&status, &q.ValidUntil, &q.Notes, &q.Terms, &q.RejectionReason,
		&q.SentAt, &q.ViewedAt, &q.AcceptedAt, &q.RejectedAt, &q.ExpiredAt, &q.RevisedAt,
		&q.Revision, &q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		return Quotation{}, err
	}
	q.Status = Status(status)
	q.DiscountType = pricing.DiscountType(discountType)
	if err := json.Unmarshal(items, &q.Items); err != nil {
		return Quotation{}, fmt.Errorf("decode items of quotation %d: %w", q.ID, err)
	}
	if len(breakdown) > 0 {
		if err := json.Unmarshal(breakdown, &q.GSTBreakdown); err != nil {
			return Quotation{}, fmt.Errorf("decode gst breakdown of quotation %d: %w", q.ID, err)
		}
	}
	return q, nil
}
