package invoice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sitekart/sitekart/internal/notify"
	"github.com/sitekart/sitekart/internal/numbering"
	"github.com/sitekart/sitekart/internal/order"
	"github.com/sitekart/sitekart/internal/pricing"
	"github.com/sitekart/sitekart/internal/shared"
	"github.com/sitekart/sitekart/internal/tax"
)

const idempotencyModule = "invoice.payment"

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Invoice, error)
	GetByOrder(ctx context.Context, orderID int64) (Invoice, error)
}

// TxRepository is the write side, used inside WithTx.
type TxRepository interface {
	// Insert stores inv. A second invoice for an order fails with
	// ErrDuplicateInvoice.
	Insert(ctx context.Context, inv *Invoice) error
	// MarkPaid settles inv when it is still pending at expectedRevision.
	MarkPaid(ctx context.Context, inv *Invoice, expectedRevision int64) error
}

// OrderReader loads orders.
type OrderReader interface {
	Get(ctx context.Context, id int64) (order.Order, error)
}

// NumberPort issues document numbers.
type NumberPort interface {
	Next(ctx context.Context, prefix string) (string, error)
}

// IdempotencyPort records processed payment transactions.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// AuditPort records invoice changes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort counts reconciliation failures.
type MetricsPort interface {
	IncReconciliationFailure(document string)
}

// Config tunes invoicing.
type Config struct {
	GraceDays int
}

// Deps groups the collaborators of Service.
type Deps struct {
	Repo        RepositoryPort
	Orders      OrderReader
	Numbers     NumberPort
	Idempotency IdempotencyPort
	Events      *notify.Publisher
	Audit       AuditPort
	Metrics     MetricsPort
	Logger      *slog.Logger
}

// Service raises and settles invoices.
type Service struct {
	repo        RepositoryPort
	orders      OrderReader
	numbers     NumberPort
	idempotency IdempotencyPort
	events      *notify.Publisher
	audit       AuditPort
	metrics     MetricsPort
	logger      *slog.Logger
	cfg         Config
	now         func() time.Time
}

// NewService constructs the invoice service.
func NewService(deps Deps, cfg Config) *Service {
	if cfg.GraceDays <= 0 {
		cfg.GraceDays = 15
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        deps.Repo,
		orders:      deps.Orders,
		numbers:     deps.Numbers,
		idempotency: deps.Idempotency,
		events:      deps.Events,
		audit:       deps.Audit,
		metrics:     deps.Metrics,
		logger:      logger,
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// GenerateInvoice raises the single invoice of an order. The GST breakdown is
// recomputed from the frozen items and must agree with the order's GST total
// within tax.Tolerance.
func (s *Service) GenerateInvoice(ctx context.Context, actor shared.Actor, orderID int64) (Invoice, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return Invoice{}, err
	}
	if !actor.Is(shared.RoleSystem) && !(actor.Is(shared.RoleSeller) && actor.ID == o.SellerID) {
		return Invoice{}, fmt.Errorf("generate invoice: %w", shared.ErrActorNotPermitted)
	}
	if !o.Status.Invoiceable() {
		return Invoice{}, fmt.Errorf("%w: order %d is %s", shared.ErrOrderNotInvoiceable, o.ID, o.Status)
	}
	if existing, err := s.repo.GetByOrder(ctx, o.ID); err == nil {
		return Invoice{}, fmt.Errorf("%w: invoice %s exists for order %d", shared.ErrDuplicateInvoice, existing.InvoiceNumber, o.ID)
	} else if !errors.Is(err, shared.ErrNotFound) {
		return Invoice{}, fmt.Errorf("check existing invoice: %w", err)
	}

	priced, err := pricing.PriceItems(pricing.Lines(o.Items))
	if err != nil {
		return Invoice{}, fmt.Errorf("reprice order %d: %w", o.ID, err)
	}
	breakdown := priced.RoundedBreakdown()
	if recomputed := tax.Round2(priced.GSTTotal); !tax.WithinTolerance(recomputed, o.GSTTotal) {
		s.logger.Error("gst breakdown does not reconcile",
			slog.Int64("order_id", o.ID),
			slog.Float64("order_gst_total", o.GSTTotal),
			slog.Float64("recomputed_gst_total", recomputed))
		if s.metrics != nil {
			s.metrics.IncReconciliationFailure("invoice")
		}
		return Invoice{}, fmt.Errorf("%w: order %d gst %.2f, breakdown %.2f", shared.ErrTaxReconciliation, o.ID, o.GSTTotal, recomputed)
	}

	number, err := s.numbers.Next(ctx, numbering.PrefixInvoice)
	if err != nil {
		return Invoice{}, err
	}
	now := s.now()
	inv := Invoice{
		InvoiceNumber:  number,
		OrderID:        o.ID,
		QuotationID:    o.QuotationID,
		CustomerID:     o.CustomerID,
		SellerID:       o.SellerID,
		Items:          pricing.CloneItems(o.Items),
		Subtotal:       o.Subtotal,
		GSTTotal:       o.GSTTotal,
		LaborCost:      o.LaborCost,
		TransportCost:  o.TransportCost,
		DiscountAmount: o.DiscountAmount,
		Total:          o.Total,
		GSTBreakdown:   breakdown,
		PaymentStatus:  PaymentPending,
		DueDate:        now.AddDate(0, 0, s.cfg.GraceDays),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.Insert(ctx, &inv)
	})
	if err != nil {
		return Invoice{}, fmt.Errorf("generate invoice for order %d: %w", o.ID, err)
	}
	s.recordAudit(ctx, actor, "invoice.create", inv, map[string]any{"order_id": o.ID, "total": inv.Total})
	return inv, nil
}

// GetInvoice reads an invoice visible to actor.
func (s *Service) GetInvoice(ctx context.Context, actor shared.Actor, id int64) (Invoice, error) {
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	switch {
	case actor.Is(shared.RoleSystem):
	case actor.Is(shared.RoleCustomer) && actor.ID == inv.CustomerID:
	case actor.Is(shared.RoleSeller) && actor.ID == inv.SellerID:
	default:
		return Invoice{}, fmt.Errorf("invoice %d: %w", inv.ID, shared.ErrActorNotPermitted)
	}
	return inv, nil
}

// MarkInvoicePaid settles an invoice from a gateway callback. Replaying the
// callback of the settling transaction returns the paid invoice.
func (s *Service) MarkInvoicePaid(ctx context.Context, cb PaymentCallback) (Invoice, error) {
	if cb.TransactionID == "" {
		return Invoice{}, shared.Invalid(shared.ErrInvalidRequest, "transaction_id", "is required")
	}
	inv, err := s.repo.Get(ctx, cb.InvoiceID)
	if err != nil {
		return Invoice{}, err
	}
	if inv.PaymentStatus == PaymentPaid {
		return settled(inv, cb)
	}
	if !sameAmount(cb.Amount, inv.Total) {
		return Invoice{}, &shared.FieldError{
			Field:  "amount",
			Reason: fmt.Sprintf("%.2f does not match invoice total %.2f", cb.Amount, inv.Total),
			Err:    shared.ErrPaymentMismatch,
		}
	}

	key := paymentKey(cb.TransactionID)
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
			if !errors.Is(err, shared.ErrIdempotencyConflict) {
				return Invoice{}, fmt.Errorf("record payment %s: %w", cb.TransactionID, err)
			}
			// The transaction is being or has been applied elsewhere.
			current, err := s.repo.Get(ctx, cb.InvoiceID)
			if err != nil {
				return Invoice{}, err
			}
			if current.PaymentStatus == PaymentPaid {
				return settled(current, cb)
			}
			return Invoice{}, fmt.Errorf("payment %s in progress: %w", cb.TransactionID, shared.ErrConcurrentModification)
		}
	}

	now := s.now()
	expected := inv.Revision
	inv.PaymentStatus = PaymentPaid
	inv.TransactionID = cb.TransactionID
	inv.PaidAt = &now
	inv.UpdatedAt = now
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.MarkPaid(ctx, &inv, expected)
	})
	if err != nil {
		if s.idempotency != nil {
			if derr := s.idempotency.Delete(ctx, key); derr != nil {
				s.logger.Warn("release payment key", slog.String("transaction_id", cb.TransactionID), slog.Any("error", derr))
			}
		}
		if errors.Is(err, shared.ErrConcurrentModification) {
			if current, gerr := s.repo.Get(ctx, cb.InvoiceID); gerr == nil && current.PaymentStatus == PaymentPaid {
				return settled(current, cb)
			}
		}
		return Invoice{}, fmt.Errorf("mark invoice %d paid: %w", inv.ID, err)
	}

	s.recordAudit(ctx, shared.SystemActor, "invoice.paid", inv, map[string]any{"transaction_id": cb.TransactionID, "amount": cb.Amount})
	s.events.Publish(ctx, notify.NewEvent(notify.InvoicePaid, map[string]any{
		"invoice_id":     inv.ID,
		"invoice_number": inv.InvoiceNumber,
		"order_id":       inv.OrderID,
		"transaction_id": inv.TransactionID,
		"total":          inv.Total,
		"total_display":  notify.FormatINR(inv.Total),
	}, inv.CustomerID, inv.SellerID))
	return inv, nil
}

func settled(inv Invoice, cb PaymentCallback) (Invoice, error) {
	if inv.TransactionID == cb.TransactionID {
		return inv, nil
	}
	return Invoice{}, fmt.Errorf("%w: invoice %d settled by transaction %s", shared.ErrInvoiceAlreadyPaid, inv.ID, inv.TransactionID)
}

func sameAmount(paid, total float64) bool {
	return decimal.NewFromFloat(paid).Round(2).Equal(decimal.NewFromFloat(total).Round(2))
}

func paymentKey(transactionID string) string {
	return "payment:" + transactionID
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Actor, action string, inv Invoice, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   action,
		Entity:   "invoice",
		EntityID: strconv.FormatInt(inv.ID, 10),
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.logger.Warn("audit invoice", slog.String("action", action), slog.Int64("invoice_id", inv.ID), slog.Any("error", err))
	}
}
