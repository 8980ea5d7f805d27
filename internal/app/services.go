package app

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/sitekart/sitekart/internal/catalog"
	"github.com/sitekart/sitekart/internal/invoice"
	"github.com/sitekart/sitekart/internal/notify"
	"github.com/sitekart/sitekart/internal/numbering"
	"github.com/sitekart/sitekart/internal/observability"
	"github.com/sitekart/sitekart/internal/order"
	"github.com/sitekart/sitekart/internal/platform/db"
	"github.com/sitekart/sitekart/internal/quotation"
	"github.com/sitekart/sitekart/internal/shared"
)

// ServiceDeps are the process resources the domain services are built on.
type ServiceDeps struct {
	Config  *Config
	Logger  *slog.Logger
	Pool    db.Pool
	Redis   *redis.Client
	Sink    notify.Sink
	Metrics *observability.Metrics
}

// Services is the wired domain layer shared by the API and the worker.
type Services struct {
	RateCache   *catalog.RateCache
	Catalog     *catalog.Service
	Quotations  *quotation.Service
	Orders      *order.Service
	Invoices    *invoice.Service
	Idempotency *shared.IdempotencyStore
}

// NewServices wires repositories, collaborators and services.
func NewServices(deps ServiceDeps) *Services {
	cfg := deps.Config
	if cfg == nil {
		cfg = &Config{}
	}
	audit := shared.NewAuditLogger(deps.Pool)
	idempotency := shared.NewIdempotencyStore(deps.Pool)
	numbers := numbering.New(deps.Redis)
	events := notify.NewPublisher(deps.Sink, deps.Logger)

	catalogRepo := catalog.NewRepository(deps.Pool)
	rateCache := catalog.NewRateCache(deps.Redis, catalogRepo)
	catalogService := catalog.NewService(catalogRepo, rateCache, audit, deps.Logger)

	quotationRepo := quotation.NewRepository(deps.Pool)
	quotations := quotation.NewService(quotation.Deps{
		Repo:    quotationRepo,
		Catalog: catalogService,
		Numbers: numbers,
		Events:  events,
		Audit:   audit,
		Metrics: deps.Metrics,
		Logger:  deps.Logger,
	}, quotation.Config{DefaultValidity: cfg.QuotationValidity})

	orderRepo := order.NewRepository(deps.Pool)
	orders := order.NewService(order.Deps{
		Repo:       orderRepo,
		Quotations: quotationRepo,
		Numbers:    numbers,
		Events:     events,
		Audit:      audit,
		Metrics:    deps.Metrics,
		Logger:     deps.Logger,
	})

	invoices := invoice.NewService(invoice.Deps{
		Repo:        invoice.NewRepository(deps.Pool),
		Orders:      orderRepo,
		Numbers:     numbers,
		Idempotency: idempotency,
		Events:      events,
		Audit:       audit,
		Metrics:     deps.Metrics,
		Logger:      deps.Logger,
	}, invoice.Config{GraceDays: cfg.InvoiceGraceDays})

	return &Services{
		RateCache:   rateCache,
		Catalog:     catalogService,
		Quotations:  quotations,
		Orders:      orders,
		Invoices:    invoices,
		Idempotency: idempotency,
	}
}

// OrderMaterializer adapts the order service to the quotation accept flow.
// The accepting actor is taken from ctx; without one the system actor is used.
func OrderMaterializer(orders *order.Service) quotation.MaterializeFunc {
	return func(ctx context.Context, quotationID int64) (any, error) {
		actor, ok := shared.ActorFromContext(ctx)
		if !ok {
			actor = shared.SystemActor
		}
		return orders.MaterializeOrder(ctx, actor, quotationID)
	}
}
