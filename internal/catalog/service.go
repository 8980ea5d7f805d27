package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sitekart/sitekart/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	RateLoader
	UpsertRate(ctx context.Context, rate GSTRate) (GSTRate, error)
	GetMaterial(ctx context.Context, id int64) (Material, error)
	GetProject(ctx context.Context, id int64) (Project, error)
}

// AuditPort records rate edits.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service exposes the GST rate table, materials and projects.
type Service struct {
	repo   RepositoryPort
	cache  *RateCache
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the catalog service.
func NewService(repo RepositoryPort, cache *RateCache, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, audit: audit, logger: logger, now: time.Now}
}

// UpsertRate creates or edits a category rate. The shared cache is
// invalidated before returning, so pricing after a successful call always
// sees the new rate.
func (s *Service) UpsertRate(ctx context.Context, actor shared.Actor, rate GSTRate) (GSTRate, error) {
	if !actor.Is(shared.RoleSeller) {
		return GSTRate{}, fmt.Errorf("edit gst rate: %w", shared.ErrActorNotPermitted)
	}
	rate.MaterialCategory = NormalizeCategory(rate.MaterialCategory)
	if err := rate.Validate(); err != nil {
		return GSTRate{}, err
	}
	rate.UpdatedBy = actor.ID
	rate.UpdatedAt = s.now().UTC()

	saved, err := s.repo.UpsertRate(ctx, rate)
	if err != nil {
		return GSTRate{}, err
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Error("invalidate gst rate cache", slog.String("category", saved.MaterialCategory), slog.Any("error", err))
		return GSTRate{}, fmt.Errorf("gst rate saved but cache not invalidated: %w", err)
	}
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			Actor:    actor,
			Action:   "gst_rate.upsert",
			Entity:   "gst_rate",
			EntityID: saved.MaterialCategory,
			Meta:     map[string]any{"cgst": saved.CGST, "sgst": saved.SGST, "igst": saved.IGST, "hsn_code": saved.HSNCode},
			At:       saved.UpdatedAt,
		}); err != nil {
			s.logger.Warn("audit gst rate", slog.String("category", saved.MaterialCategory), slog.Any("error", err))
		}
	}
	return saved, nil
}

// Rates lists the current rate table.
func (s *Service) Rates(ctx context.Context) ([]GSTRate, error) {
	table, err := s.cache.Table(ctx)
	if err != nil {
		return nil, err
	}
	return table.All(), nil
}

// RateFor returns the rate of category.
func (s *Service) RateFor(ctx context.Context, category string) (GSTRate, error) {
	table, err := s.cache.Table(ctx)
	if err != nil {
		return GSTRate{}, err
	}
	rate, ok := table.Lookup(category)
	if !ok {
		return GSTRate{}, fmt.Errorf("gst rate for category %q: %w", category, shared.ErrNotFound)
	}
	return rate, nil
}

// Material loads a catalog material.
func (s *Service) Material(ctx context.Context, id int64) (Material, error) {
	return s.repo.GetMaterial(ctx, id)
}

// Project loads a project from the project service tables.
func (s *Service) Project(ctx context.Context, id int64) (Project, error) {
	return s.repo.GetProject(ctx, id)
}

// LineDefaults resolves what a new quotation line for materialID inherits.
// The material's own rate wins; otherwise the category rate applies.
func (s *Service) LineDefaults(ctx context.Context, materialID int64) (LineDefaults, error) {
	m, err := s.repo.GetMaterial(ctx, materialID)
	if err != nil {
		return LineDefaults{}, err
	}
	d := LineDefaults{
		MaterialID:   m.ID,
		Name:         m.Name,
		Category:     m.Category,
		Unit:         m.Unit,
		PricePerUnit: m.PricePerUnit,
	}
	rate, err := s.RateFor(ctx, m.Category)
	switch {
	case err == nil:
		d.HSNCode = rate.HSNCode
		d.GSTRate = rate.Combined()
	case !errors.Is(err, shared.ErrNotFound) || m.GSTRate == nil:
		return LineDefaults{}, err
	}
	if m.GSTRate != nil {
		d.GSTRate = *m.GSTRate
	}
	return d, nil
}
