package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sitekart/sitekart/internal/catalog"
	"github.com/sitekart/sitekart/internal/invoice"
	"github.com/sitekart/sitekart/internal/observability"
	"github.com/sitekart/sitekart/internal/order"
	"github.com/sitekart/sitekart/internal/platform/httpx"
	"github.com/sitekart/sitekart/internal/quotation"
	"github.com/sitekart/sitekart/internal/rbac"
	"github.com/sitekart/sitekart/jobs"
)

// Pinger reports backing store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	Metrics          *observability.Metrics
	RBACMiddleware   rbac.Middleware
	CatalogHandler   *catalog.Handler
	QuotationHandler *quotation.Handler
	OrderHandler     *order.Handler
	InvoiceHandler   *invoice.Handler
	JobHandler       *jobs.Handler
	Pool             Pinger
}

// NewRouter constructs the chi.Router with SiteKart defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if params.Pool != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := params.Pool.Ping(ctx); err != nil {
				params.Logger.Warn("readiness ping", slog.Any("error", err))
				httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "database unreachable")
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Route("/api", func(r chi.Router) {
		// the gateway authenticates with its own token, not actor headers
		if params.InvoiceHandler != nil {
			params.InvoiceHandler.MountCallback(r)
		}
		r.Group(func(r chi.Router) {
			r.Use(params.RBACMiddleware.Authenticate)
			if params.CatalogHandler != nil {
				r.Route("/catalog", params.CatalogHandler.MountRoutes)
			}
			if params.QuotationHandler != nil {
				params.QuotationHandler.MountRoutes(r)
			}
			if params.OrderHandler != nil {
				params.OrderHandler.MountRoutes(r)
			}
			if params.InvoiceHandler != nil {
				params.InvoiceHandler.MountRoutes(r)
			}
		})
	})

	return r
}
