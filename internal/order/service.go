package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/sitekart/sitekart/internal/notify"
	"github.com/sitekart/sitekart/internal/numbering"
	"github.com/sitekart/sitekart/internal/pricing"
	"github.com/sitekart/sitekart/internal/quotation"
	"github.com/sitekart/sitekart/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Order, error)
	GetByQuotation(ctx context.Context, quotationID int64) (Order, error)
}

// TxRepository is the write side, used inside WithTx.
type TxRepository interface {
	// Insert stores o. A second order for the same quotation fails with
	// ErrDuplicateOrder.
	Insert(ctx context.Context, o *Order) error
	// Update is conditional on the stored status and revision.
	Update(ctx context.Context, o *Order, expectedStatus Status, expectedRevision int64) error
}

// QuotationReader loads quotations.
type QuotationReader interface {
	Get(ctx context.Context, id int64) (quotation.Quotation, error)
}

// NumberPort issues document numbers.
type NumberPort interface {
	Next(ctx context.Context, prefix string) (string, error)
}

// AuditPort records order changes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort observes status changes.
type MetricsPort interface {
	ObserveTransition(entity, from, to string)
}

// Deps groups the collaborators of Service.
type Deps struct {
	Repo       RepositoryPort
	Quotations QuotationReader
	Numbers    NumberPort
	Events     *notify.Publisher
	Audit      AuditPort
	Metrics    MetricsPort
	Logger     *slog.Logger
}

// Service materializes and fulfils orders.
type Service struct {
	repo       RepositoryPort
	quotations QuotationReader
	numbers    NumberPort
	events     *notify.Publisher
	audit      AuditPort
	metrics    MetricsPort
	logger     *slog.Logger
	now        func() time.Time
}

// NewService constructs the order service.
func NewService(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:       deps.Repo,
		quotations: deps.Quotations,
		numbers:    deps.Numbers,
		events:     deps.Events,
		audit:      deps.Audit,
		metrics:    deps.Metrics,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// MaterializeOrder creates the single order of an accepted quotation. Items
// and amounts are copied verbatim; nothing is repriced.
func (s *Service) MaterializeOrder(ctx context.Context, actor shared.Actor, quotationID int64) (Order, error) {
	q, err := s.quotations.Get(ctx, quotationID)
	if err != nil {
		return Order{}, err
	}
	switch {
	case actor.Is(shared.RoleSystem):
	case actor.Is(shared.RoleCustomer) && actor.ID == q.CustomerID:
	case actor.Is(shared.RoleSeller) && actor.ID == q.SellerID:
	default:
		return Order{}, fmt.Errorf("materialize order: %w", shared.ErrActorNotPermitted)
	}
	if q.Status != quotation.StatusAccepted {
		return Order{}, fmt.Errorf("%w: quotation %d is %s", shared.ErrQuotationNotAccepted, q.ID, q.Status)
	}
	if existing, err := s.repo.GetByQuotation(ctx, q.ID); err == nil {
		return Order{}, fmt.Errorf("%w: order %s exists for quotation %d", shared.ErrDuplicateOrder, existing.OrderNumber, q.ID)
	} else if !errors.Is(err, shared.ErrNotFound) {
		return Order{}, fmt.Errorf("check existing order: %w", err)
	}

	number, err := s.numbers.Next(ctx, numbering.PrefixOrder)
	if err != nil {
		return Order{}, err
	}
	now := s.now()
	o := Order{
		OrderNumber:    number,
		QuotationID:    q.ID,
		ProjectID:      q.ProjectID,
		CustomerID:     q.CustomerID,
		SellerID:       q.SellerID,
		Items:          pricing.CloneItems(q.Items),
		Subtotal:       q.Subtotal,
		GSTTotal:       q.GSTTotal,
		LaborCost:      q.LaborCost,
		TransportCost:  q.TransportCost,
		DiscountAmount: q.DiscountAmount,
		Total:          q.Total,
		GSTBreakdown:   append(pricing.Breakdown(nil), q.GSTBreakdown...),
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.Insert(ctx, &o)
	})
	if err != nil {
		return Order{}, fmt.Errorf("materialize order for quotation %d: %w", q.ID, err)
	}

	s.recordAudit(ctx, actor, "order.create", o, map[string]any{"quotation_id": q.ID, "total": o.Total})
	s.publish(ctx, notify.OrderCreated, o)
	return o, nil
}

// GetOrder reads an order visible to actor.
func (s *Service) GetOrder(ctx context.Context, actor shared.Actor, id int64) (Order, error) {
	o, err := s.repo.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if err := authorize(actor, o); err != nil {
		return Order{}, err
	}
	return o, nil
}

// UpdateStatus moves an order along its fulfilment chain.
func (s *Service) UpdateStatus(ctx context.Context, actor shared.Actor, id int64, change StatusChange) (Order, error) {
	o, err := s.GetOrder(ctx, actor, id)
	if err != nil {
		return Order{}, err
	}
	if err := CanTransition(o.Status, change.Target, actor.Role); err != nil {
		return Order{}, err
	}
	from, expected := o.Status, o.Revision
	now := s.now()
	o.Status = change.Target
	o.stamp(change.Target, now)
	if change.TrackingNumber != "" {
		o.TrackingNumber = change.TrackingNumber
	}
	if change.Carrier != "" {
		o.Carrier = change.Carrier
	}
	if change.Target == StatusCancelled {
		o.CancellationReason = change.Reason
	}
	o.UpdatedAt = now

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.Update(ctx, &o, from, expected)
	})
	if err != nil {
		return Order{}, fmt.Errorf("order %d %s -> %s: %w", o.ID, from, change.Target, err)
	}
	if s.metrics != nil {
		s.metrics.ObserveTransition("order", string(from), string(o.Status))
	}
	s.recordAudit(ctx, actor, "order."+string(o.Status), o, map[string]any{"from": string(from), "tracking_number": o.TrackingNumber, "carrier": o.Carrier})
	s.publish(ctx, notify.OrderStatusChanged, o)
	return o, nil
}

// CancelOrder cancels an order that has not shipped yet.
func (s *Service) CancelOrder(ctx context.Context, actor shared.Actor, id int64, reason string) (Order, error) {
	return s.UpdateStatus(ctx, actor, id, StatusChange{Target: StatusCancelled, Reason: reason})
}

func authorize(actor shared.Actor, o Order) error {
	switch {
	case actor.Is(shared.RoleSystem):
	case actor.Is(shared.RoleCustomer) && actor.ID == o.CustomerID:
	case actor.Is(shared.RoleSeller) && actor.ID == o.SellerID:
	default:
		return fmt.Errorf("order %d: %w", o.ID, shared.ErrActorNotPermitted)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, typ notify.EventType, o Order) {
	s.events.Publish(ctx, notify.NewEvent(typ, map[string]any{
		"order_id":        o.ID,
		"order_number":    o.OrderNumber,
		"quotation_id":    o.QuotationID,
		"status":          string(o.Status),
		"tracking_number": o.TrackingNumber,
		"total":           o.Total,
		"total_display":   notify.FormatINR(o.Total),
	}, o.CustomerID, o.SellerID))
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Actor, action string, o Order, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   action,
		Entity:   "order",
		EntityID: strconv.FormatInt(o.ID, 10),
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.logger.Warn("audit order", slog.String("action", action), slog.Int64("order_id", o.ID), slog.Any("error", err))
	}
}
