package invoice

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/sitekart/sitekart/internal/platform/httpx"
	"github.com/sitekart/sitekart/internal/rbac"
	"github.com/sitekart/sitekart/internal/shared"
)

// HeaderPaymentToken carries the shared secret of the payment gateway.
const HeaderPaymentToken = "X-Payment-Token"

// CallbackConfig guards the payment callback endpoint.
type CallbackConfig struct {
	// TokenHash is the bcrypt hash of the gateway token. An empty hash
	// disables the callback.
	TokenHash string
	// RateLimit is the number of callbacks accepted per IP per minute.
	RateLimit int
}

// Handler exposes invoice endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
	callback  CallbackConfig
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware, callback CallbackConfig) *Handler {
	if callback.RateLimit <= 0 {
		callback.RateLimit = 120
	}
	return &Handler{logger: logger, service: service, rbac: rbac, validator: httpx.NewValidator(), callback: callback}
}

// MountRoutes registers actor-authenticated invoice routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/invoices", func(r chi.Router) {
		r.Use(h.rbac.RequireRole(shared.RoleCustomer, shared.RoleSeller))
		r.With(h.rbac.RequireRole(shared.RoleSeller)).Post("/", h.generate)
		r.Get("/{id}", h.get)
	})
}

// MountCallback registers the gateway callback. It sits outside actor
// authentication and is verified by token instead.
func (h *Handler) MountCallback(r chi.Router) {
	limiter := httprate.Limit(h.callback.RateLimit, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "payment callback rate exceeded")
		}),
	)
	r.With(limiter, h.verifyToken).Post("/payments/callback", h.paymentCallback)
}

type generateRequest struct {
	OrderID int64 `json:"order_id" validate:"required,gt=0"`
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.GenerateInvoice(r.Context(), rbac.Actor(r), req.OrderID)
	if err != nil {
		h.logger.Warn("generate invoice", slog.Int64("order_id", req.OrderID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.GetInvoice(r.Context(), rbac.Actor(r), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) paymentCallback(w http.ResponseWriter, r *http.Request) {
	var cb PaymentCallback
	if err := httpx.Bind(r, h.validator, &cb); err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.MarkInvoicePaid(r.Context(), cb)
	if err != nil {
		h.logger.Warn("payment callback",
			slog.Int64("invoice_id", cb.InvoiceID),
			slog.String("transaction_id", cb.TransactionID),
			slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) verifyToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(HeaderPaymentToken)
		if h.callback.TokenHash == "" || token == "" {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "payment token required")
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(h.callback.TokenHash), []byte(token)); err != nil {
			h.logger.Warn("payment callback token rejected", slog.String("remote", r.RemoteAddr))
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid payment token")
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), shared.SystemActor)))
	})
}
