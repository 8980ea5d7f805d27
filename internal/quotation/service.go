package quotation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/sitekart/sitekart/internal/catalog"
	"github.com/sitekart/sitekart/internal/notify"
	"github.com/sitekart/sitekart/internal/numbering"
	"github.com/sitekart/sitekart/internal/pricing"
	"github.com/sitekart/sitekart/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Quotation, error)
	ActiveForProject(ctx context.Context, projectID int64) (Quotation, error)
	ListByProject(ctx context.Context, projectID int64) ([]Quotation, error)
	ListExpirable(ctx context.Context, now time.Time, limit int) ([]Quotation, error)
}

// TxRepository is the write side, used inside WithTx.
type TxRepository interface {
	// Insert stores q and assigns ID, Revision and timestamps.
	Insert(ctx context.Context, q *Quotation) error
	// Update persists q only when the stored row still has status
	// expectedStatus and revision expectedRevision. It fails with
	// ErrConcurrentModification otherwise and bumps q.Revision on success.
	Update(ctx context.Context, q *Quotation, expectedStatus Status, expectedRevision int64) error
}

// CatalogPort supplies projects and material defaults.
type CatalogPort interface {
	Project(ctx context.Context, id int64) (catalog.Project, error)
	LineDefaults(ctx context.Context, materialID int64) (catalog.LineDefaults, error)
}

// NumberPort issues document numbers.
type NumberPort interface {
	Next(ctx context.Context, prefix string) (string, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort observes status changes.
type MetricsPort interface {
	ObserveTransition(entity, from, to string)
}

// Config tunes the service.
type Config struct {
	DefaultValidity time.Duration
	ExpiryBatchSize int
}

// Deps groups the collaborators of Service.
type Deps struct {
	Repo    RepositoryPort
	Catalog CatalogPort
	Numbers NumberPort
	Events  *notify.Publisher
	Audit   AuditPort
	Metrics MetricsPort
	Logger  *slog.Logger
}

// Service owns the quotation lifecycle.
type Service struct {
	repo    RepositoryPort
	catalog CatalogPort
	numbers NumberPort
	events  *notify.Publisher
	audit   AuditPort
	metrics MetricsPort
	logger  *slog.Logger
	cfg     Config
	now     func() time.Time
}

// NewService constructs the quotation service.
func NewService(deps Deps, cfg Config) *Service {
	if cfg.DefaultValidity <= 0 {
		cfg.DefaultValidity = 15 * 24 * time.Hour
	}
	if cfg.ExpiryBatchSize <= 0 {
		cfg.ExpiryBatchSize = 200
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    deps.Repo,
		catalog: deps.Catalog,
		numbers: deps.Numbers,
		events:  deps.Events,
		audit:   deps.Audit,
		metrics: deps.Metrics,
		logger:  logger,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CreateQuotation opens a draft for a project. A project holds at most one
// draft, sent or viewed quotation at a time.
func (s *Service) CreateQuotation(ctx context.Context, actor shared.Actor, input CreateInput) (Quotation, error) {
	if !actor.Is(shared.RoleSeller) {
		return Quotation{}, fmt.Errorf("create quotation: %w", shared.ErrActorNotPermitted)
	}
	project, err := s.catalog.Project(ctx, input.ProjectID)
	if err != nil {
		return Quotation{}, fmt.Errorf("load project: %w", err)
	}
	if input.CustomerID != 0 && input.CustomerID != project.CustomerID {
		return Quotation{}, shared.Invalid(shared.ErrInvalidRequest, "customer_id", "does not own the project")
	}
	if _, err := s.repo.ActiveForProject(ctx, project.ID); err == nil {
		return Quotation{}, fmt.Errorf("project %d: %w", project.ID, shared.ErrDuplicateActive)
	} else if !errors.Is(err, shared.ErrNotFound) {
		return Quotation{}, fmt.Errorf("check active quotation: %w", err)
	}

	var items []pricing.LineItem
	if len(input.Items) == 0 {
		items, err = s.seedFromProject(ctx, project)
	} else {
		items, err = s.resolveLines(ctx, input.Items)
	}
	if err != nil {
		return Quotation{}, err
	}

	now := s.now()
	validUntil := input.ValidUntil
	if validUntil.IsZero() {
		validUntil = now.Add(s.cfg.DefaultValidity)
	}
	q := Quotation{
		Version:       1,
		ProjectID:     project.ID,
		CustomerID:    project.CustomerID,
		SellerID:      actor.ID,
		Items:         items,
		LaborCost:     input.LaborCost,
		TransportCost: input.TransportCost,
		Discount:      input.Discount,
		DiscountType:  input.DiscountType,
		Status:        StatusDraft,
		ValidUntil:    validUntil.UTC(),
		Notes:         input.Notes,
		Terms:         input.Terms,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if q.DiscountType == "" {
		q.DiscountType = pricing.DiscountFixed
	}
	if err := q.Reprice(); err != nil {
		return Quotation{}, err
	}
	q.QuotationNumber, err = s.numbers.Next(ctx, numbering.PrefixQuotation)
	if err != nil {
		return Quotation{}, err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.Insert(ctx, &q)
	})
	if err != nil {
		return Quotation{}, fmt.Errorf("create quotation: %w", err)
	}
	s.recordAudit(ctx, actor, "quotation.create", q, map[string]any{"project_id": q.ProjectID, "total": q.Total})
	return q, nil
}

// AddLineItem appends a line to a draft.
func (s *Service) AddLineItem(ctx context.Context, actor shared.Actor, id int64, input LineInput) (Quotation, error) {
	return s.mutateDraft(ctx, actor, id, "quotation.add_line", func(q *Quotation) error {
		item, err := s.resolveLine(ctx, input)
		if err != nil {
			return err
		}
		item.LineNo = q.nextLineNo()
		q.Items = append(q.Items, item)
		return nil
	})
}

// RemoveLineItem deletes a line from a draft.
func (s *Service) RemoveLineItem(ctx context.Context, actor shared.Actor, id int64, lineNo int) (Quotation, error) {
	return s.mutateDraft(ctx, actor, id, "quotation.remove_line", func(q *Quotation) error {
		for i, item := range q.Items {
			if item.LineNo == lineNo {
				q.Items = append(q.Items[:i:i], q.Items[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("line %d: %w", lineNo, shared.ErrNotFound)
	})
}

// UpdateDraft edits the header of a draft.
func (s *Service) UpdateDraft(ctx context.Context, actor shared.Actor, id int64, input DraftUpdate) (Quotation, error) {
	return s.mutateDraft(ctx, actor, id, "quotation.update", func(q *Quotation) error {
		if input.LaborCost != nil {
			q.LaborCost = *input.LaborCost
		}
		if input.TransportCost != nil {
			q.TransportCost = *input.TransportCost
		}
		if input.Discount != nil {
			q.Discount = *input.Discount
		}
		if input.DiscountType != nil {
			q.DiscountType = *input.DiscountType
		}
		if input.ValidUntil != nil {
			q.ValidUntil = input.ValidUntil.UTC()
		}
		if input.Notes != nil {
			q.Notes = *input.Notes
		}
		if input.Terms != nil {
			q.Terms = *input.Terms
		}
		return nil
	})
}

// SendQuotation issues a draft to the customer.
func (s *Service) SendQuotation(ctx context.Context, actor shared.Actor, id int64) (Quotation, error) {
	q, err := s.load(ctx, actor, id)
	if err != nil {
		return Quotation{}, err
	}
	to, err := Transition(q.Status, EventSend, actor.Role)
	if err != nil {
		return Quotation{}, err
	}
	now := s.now()
	if len(q.Items) == 0 {
		return Quotation{}, &shared.FieldError{Field: "items", Reason: "must contain at least one line", Err: shared.ErrIncompleteQuotation, Cause: shared.ErrEmptyItemSet}
	}
	if !q.ValidUntil.After(now) {
		return Quotation{}, shared.Invalid(shared.ErrIncompleteQuotation, "valid_until", "must be in the future")
	}
	if err := q.Reprice(); err != nil {
		return Quotation{}, &shared.FieldError{Field: "items", Reason: err.Error(), Err: shared.ErrIncompleteQuotation, Cause: err}
	}

	from, expected := q.Status, q.Revision
	q.Status = to
	q.SentAt = &now
	if err := s.commit(ctx, &q, from, expected); err != nil {
		return Quotation{}, err
	}
	s.afterTransition(ctx, actor, q, from, notify.QuotationSent)
	return q, nil
}

// GetQuotation reads a quotation. An overdue open quotation is expired on
// read, and the customer's first read marks it viewed.
func (s *Service) GetQuotation(ctx context.Context, actor shared.Actor, id int64) (Quotation, error) {
	q, err := s.load(ctx, actor, id)
	if err != nil {
		return Quotation{}, err
	}
	if _, err := s.expireIfOverdue(ctx, &q); err != nil {
		return Quotation{}, err
	}
	if actor.Is(shared.RoleCustomer) {
		if q.Status == StatusDraft {
			return Quotation{}, fmt.Errorf("%w: quotation has not been sent", shared.ErrQuotationNotViewable)
		}
		if q.Status == StatusSent {
			return s.markViewed(ctx, actor, q)
		}
	}
	return q, nil
}

// ViewQuotation records that the customer opened the quotation. Repeated
// views are no-ops.
func (s *Service) ViewQuotation(ctx context.Context, actor shared.Actor, id int64) (Quotation, error) {
	q, err := s.load(ctx, actor, id)
	if err != nil {
		return Quotation{}, err
	}
	expired, err := s.expireIfOverdue(ctx, &q)
	if err != nil {
		return Quotation{}, err
	}
	if expired {
		return Quotation{}, fmt.Errorf("quotation %d: %w", q.ID, shared.ErrQuotationExpired)
	}
	return s.markViewed(ctx, actor, q)
}

func (s *Service) markViewed(ctx context.Context, actor shared.Actor, q Quotation) (Quotation, error) {
	to, err := Transition(q.Status, EventView, actor.Role)
	if err != nil {
		return Quotation{}, err
	}
	if to == q.Status {
		return q, nil
	}
	now := s.now()
	from, expected := q.Status, q.Revision
	q.Status = to
	q.ViewedAt = &now
	if err := s.commit(ctx, &q, from, expected); err != nil {
		return Quotation{}, err
	}
	s.afterTransition(ctx, actor, q, from, "")
	return q, nil
}

// AcceptQuotation records the customer's acceptance.
func (s *Service) AcceptQuotation(ctx context.Context, actor shared.Actor, id int64) (Quotation, error) {
	q, err := s.load(ctx, actor, id)
	if err != nil {
		return Quotation{}, err
	}
	expired, err := s.expireIfOverdue(ctx, &q)
	if err != nil {
		return Quotation{}, err
	}
	if expired || q.Status == StatusExpired {
		return Quotation{}, fmt.Errorf("quotation %d: %w", q.ID, shared.ErrQuotationExpired)
	}
	to, err := Transition(q.Status, EventAccept, actor.Role)
	if err != nil {
		return Quotation{}, err
	}
	if err := q.Reprice(); err != nil {
		return Quotation{}, err
	}
	now := s.now()
	from, expected := q.Status, q.Revision
	q.Status = to
	q.AcceptedAt = &now
	if q.ViewedAt == nil {
		q.ViewedAt = &now
	}
	if err := s.commit(ctx, &q, from, expected); err != nil {
		return Quotation{}, err
	}
	s.afterTransition(ctx, actor, q, from, notify.QuotationAccepted)
	return q, nil
}

// RejectQuotation records the customer's rejection.
func (s *Service) RejectQuotation(ctx context.Context, actor shared.Actor, id int64, reason string) (Quotation, error) {
	q, err := s.load(ctx, actor, id)
	if err != nil {
		return Quotation{}, err
	}
	expired, err := s.expireIfOverdue(ctx, &q)
	if err != nil {
		return Quotation{}, err
	}
	if expired || q.Status == StatusExpired {
		return Quotation{}, fmt.Errorf("quotation %d: %w", q.ID, shared.ErrQuotationExpired)
	}
	to, err := Transition(q.Status, EventReject, actor.Role)
	if err != nil {
		return Quotation{}, err
	}
	if err := q.Reprice(); err != nil {
		return Quotation{}, err
	}
	now := s.now()
	from, expected := q.Status, q.Revision
	q.Status = to
	q.RejectedAt = &now
	q.RejectionReason = reason
	if err := s.commit(ctx, &q, from, expected); err != nil {
		return Quotation{}, err
	}
	s.afterTransition(ctx, actor, q, from, notify.QuotationRejected)
	return q, nil
}

// ReviseQuotation supersedes a sent or viewed quotation with a new draft
// version. The old version becomes read-only.
func (s *Service) ReviseQuotation(ctx context.Context, actor shared.Actor, id int64) (Quotation, error) {
	old, err := s.load(ctx, actor, id)
	if err != nil {
		return Quotation{}, err
	}
	expired, err := s.expireIfOverdue(ctx, &old)
	if err != nil {
		return Quotation{}, err
	}
	if expired {
		return Quotation{}, fmt.Errorf("quotation %d: %w", old.ID, shared.ErrQuotationExpired)
	}
	to, err := Transition(old.Status, EventRevise, actor.Role)
	if err != nil {
		return Quotation{}, err
	}
	if err := old.Reprice(); err != nil {
		return Quotation{}, err
	}

	now := s.now()
	from, expected := old.Status, old.Revision
	old.Status = to
	old.RevisedAt = &now

	prevID := old.ID
	next := Quotation{
		QuotationNumber:   old.QuotationNumber,
		Version:           old.Version + 1,
		PreviousVersionID: &prevID,
		ProjectID:         old.ProjectID,
		CustomerID:        old.CustomerID,
		SellerID:          old.SellerID,
		Items:             pricing.CloneItems(old.Items),
		LaborCost:         old.LaborCost,
		TransportCost:     old.TransportCost,
		Discount:          old.Discount,
		DiscountType:      old.DiscountType,
		Status:            StatusDraft,
		ValidUntil:        old.ValidUntil,
		Notes:             old.Notes,
		Terms:             old.Terms,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := next.Reprice(); err != nil {
		return Quotation{}, err
	}

	old.UpdatedAt = now
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.Update(ctx, &old, from, expected); err != nil {
			return err
		}
		return tx.Insert(ctx, &next)
	})
	if err != nil {
		return Quotation{}, fmt.Errorf("revise quotation %d: %w", old.ID, err)
	}
	s.observe(from, old.Status)
	s.recordAudit(ctx, actor, "quotation.revise", old, map[string]any{"next_id": next.ID, "next_version": next.Version})
	s.publish(ctx, notify.QuotationRevised, next)
	return next, nil
}

// ExpireQuotation expires an overdue sent or viewed quotation on behalf of
// the scheduler.
func (s *Service) ExpireQuotation(ctx context.Context, actor shared.Actor, id int64) (Quotation, error) {
	if !actor.Is(shared.RoleSystem) {
		return Quotation{}, fmt.Errorf("expire quotation: %w", shared.ErrActorNotPermitted)
	}
	q, err := s.repo.Get(ctx, id)
	if err != nil {
		return Quotation{}, err
	}
	expired, err := s.expireIfOverdue(ctx, &q)
	if err != nil {
		return Quotation{}, err
	}
	if !expired {
		return Quotation{}, fmt.Errorf("%w: quotation %d is %s and valid until %s", shared.ErrInvalidTransition, q.ID, q.Status, q.ValidUntil.Format(time.RFC3339))
	}
	return q, nil
}

// ExpireDue expires every overdue open quotation and returns how many were
// expired. Quotations acted on concurrently are skipped.
func (s *Service) ExpireDue(ctx context.Context) (int, error) {
	due, err := s.repo.ListExpirable(ctx, s.now(), s.cfg.ExpiryBatchSize)
	if err != nil {
		return 0, fmt.Errorf("list expirable quotations: %w", err)
	}
	var (
		count int
		errs  []error
	)
	for i := range due {
		q := due[i]
		expired, err := s.expireIfOverdue(ctx, &q)
		switch {
		case errors.Is(err, shared.ErrConcurrentModification):
			s.logger.Info("skip expiring quotation modified concurrently", slog.Int64("quotation_id", q.ID))
		case err != nil:
			errs = append(errs, fmt.Errorf("quotation %d: %w", q.ID, err))
		case expired:
			count++
		}
	}
	return count, errors.Join(errs...)
}

// History lists every version of every quotation of a project.
func (s *Service) History(ctx context.Context, actor shared.Actor, projectID int64) ([]Quotation, error) {
	list, err := s.repo.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	out := make([]Quotation, 0, len(list))
	for _, q := range list {
		if err := authorize(actor, q); err != nil {
			continue
		}
		if actor.Is(shared.RoleCustomer) && q.Status == StatusDraft {
			continue
		}
		out = append(out, q)
	}
	return out, nil
}

func (s *Service) expireIfOverdue(ctx context.Context, q *Quotation) (bool, error) {
	if !q.Status.Active() || q.Status == StatusDraft || !q.Overdue(s.now()) {
		return false, nil
	}
	to, err := Transition(q.Status, EventExpire, shared.RoleSystem)
	if err != nil {
		return false, err
	}
	now := s.now()
	from, expected := q.Status, q.Revision
	next := *q
	next.Status = to
	next.ExpiredAt = &now
	if err := s.commit(ctx, &next, from, expected); err != nil {
		return false, err
	}
	*q = next
	s.afterTransition(ctx, shared.SystemActor, *q, from, notify.QuotationExpired)
	return true, nil
}

func (s *Service) mutateDraft(ctx context.Context, actor shared.Actor, id int64, action string, fn func(*Quotation) error) (Quotation, error) {
	if !actor.Is(shared.RoleSeller) {
		return Quotation{}, fmt.Errorf("%s: %w", action, shared.ErrActorNotPermitted)
	}
	q, err := s.load(ctx, actor, id)
	if err != nil {
		return Quotation{}, err
	}
	if q.Status != StatusDraft {
		return Quotation{}, fmt.Errorf("%w: quotation %d is %s", shared.ErrQuotationLocked, q.ID, q.Status)
	}
	expected := q.Revision
	if err := fn(&q); err != nil {
		return Quotation{}, err
	}
	if err := q.Reprice(); err != nil {
		return Quotation{}, err
	}
	if err := s.commit(ctx, &q, StatusDraft, expected); err != nil {
		return Quotation{}, err
	}
	s.recordAudit(ctx, actor, action, q, map[string]any{"total": q.Total, "items": len(q.Items)})
	return q, nil
}

func (s *Service) load(ctx context.Context, actor shared.Actor, id int64) (Quotation, error) {
	q, err := s.repo.Get(ctx, id)
	if err != nil {
		return Quotation{}, err
	}
	if err := authorize(actor, q); err != nil {
		return Quotation{}, err
	}
	return q, nil
}

func authorize(actor shared.Actor, q Quotation) error {
	switch actor.Role {
	case shared.RoleSeller:
		if actor.ID != q.SellerID {
			return fmt.Errorf("quotation %d: %w", q.ID, shared.ErrActorNotPermitted)
		}
	case shared.RoleCustomer:
		if actor.ID != q.CustomerID {
			return fmt.Errorf("quotation %d: %w", q.ID, shared.ErrActorNotPermitted)
		}
	case shared.RoleDesigner, shared.RoleSystem:
	default:
		return fmt.Errorf("quotation %d: %w", q.ID, shared.ErrActorNotPermitted)
	}
	return nil
}

func (s *Service) commit(ctx context.Context, q *Quotation, from Status, expected int64) error {
	q.UpdatedAt = s.now()
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.Update(ctx, q, from, expected)
	})
}

func (s *Service) seedFromProject(ctx context.Context, project catalog.Project) ([]pricing.LineItem, error) {
	items := make([]pricing.LineItem, 0, len(project.Materials))
	for i, pm := range project.Materials {
		item := pricing.LineItem{
			LineNo:       i + 1,
			MaterialID:   pm.MaterialID,
			MaterialName: pm.MaterialName,
			Category:     pm.Category,
			Quantity:     pm.Quantity,
			Unit:         pm.Unit,
			PricePerUnit: pm.PricePerUnit,
		}
		if pm.GSTRate != nil {
			item.GSTRate = *pm.GSTRate
		} else {
			d, err := s.catalog.LineDefaults(ctx, pm.MaterialID)
			if err != nil {
				return nil, fmt.Errorf("defaults for material %d: %w", pm.MaterialID, err)
			}
			item.GSTRate = d.GSTRate
			item.HSNCode = d.HSNCode
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *Service) resolveLines(ctx context.Context, inputs []LineInput) ([]pricing.LineItem, error) {
	items := make([]pricing.LineItem, 0, len(inputs))
	for i, in := range inputs {
		item, err := s.resolveLine(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		item.LineNo = i + 1
		items = append(items, item)
	}
	return items, nil
}

func (s *Service) resolveLine(ctx context.Context, in LineInput) (pricing.LineItem, error) {
	d, err := s.catalog.LineDefaults(ctx, in.MaterialID)
	if err != nil {
		return pricing.LineItem{}, fmt.Errorf("defaults for material %d: %w", in.MaterialID, err)
	}
	item := pricing.LineItem{
		MaterialID:   in.MaterialID,
		MaterialName: d.Name,
		Category:     d.Category,
		HSNCode:      d.HSNCode,
		Quantity:     in.Quantity,
		Unit:         d.Unit,
		PricePerUnit: d.PricePerUnit,
		GSTRate:      d.GSTRate,
	}
	if in.MaterialName != "" {
		item.MaterialName = in.MaterialName
	}
	if in.Unit != "" {
		item.Unit = in.Unit
	}
	if in.PricePerUnit != nil {
		item.PricePerUnit = *in.PricePerUnit
	}
	if in.GSTRate != nil {
		item.GSTRate = *in.GSTRate
	}
	if err := pricing.PriceLineItems([]pricing.LineItem{item}); err != nil {
		return pricing.LineItem{}, err
	}
	return item, nil
}

func (s *Service) afterTransition(ctx context.Context, actor shared.Actor, q Quotation, from Status, event notify.EventType) {
	s.observe(from, q.Status)
	s.recordAudit(ctx, actor, "quotation."+string(q.Status), q, map[string]any{"from": string(from), "revision": q.Revision})
	if event != "" {
		s.publish(ctx, event, q)
	}
}

func (s *Service) observe(from, to Status) {
	if s.metrics != nil {
		s.metrics.ObserveTransition("quotation", string(from), string(to))
	}
}

func (s *Service) publish(ctx context.Context, typ notify.EventType, q Quotation) {
	s.events.Publish(ctx, notify.NewEvent(typ, map[string]any{
		"quotation_id":     q.ID,
		"quotation_number": q.QuotationNumber,
		"version":          q.Version,
		"project_id":       q.ProjectID,
		"status":           string(q.Status),
		"total":            q.Total,
		"total_display":    notify.FormatINR(q.Total),
	}, q.CustomerID, q.SellerID))
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Actor, action string, q Quotation, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   action,
		Entity:   "quotation",
		EntityID: strconv.FormatInt(q.ID, 10),
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.logger.Warn("audit quotation", slog.String("action", action), slog.Int64("quotation_id", q.ID), slog.Any("error", err))
	}
}
