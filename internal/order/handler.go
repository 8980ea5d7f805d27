package order

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/sitekart/sitekart/internal/platform/httpx"
	"github.com/sitekart/sitekart/internal/rbac"
	"github.com/sitekart/sitekart/internal/shared"
)

// Handler exposes order endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validator: httpx.NewValidator()}
}

// MountRoutes registers order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Use(h.rbac.RequireRole(shared.RoleCustomer, shared.RoleSeller))
		r.Post("/", h.materialize)
		r.Get("/{id}", h.get)
		r.Post("/{id}/cancel", h.cancel)
		r.With(h.rbac.RequireRole(shared.RoleSeller)).Post("/{id}/status", h.updateStatus)
	})
}

type materializeRequest struct {
	QuotationID int64 `json:"quotation_id" validate:"required,gt=0"`
}

type statusRequest struct {
	Status         string `json:"status" validate:"required,oneof=confirmed processing shipped delivered cancelled returned"`
	TrackingNumber string `json:"tracking_number" validate:"max=64"`
	Carrier        string `json:"carrier" validate:"max=64"`
	Reason         string `json:"reason" validate:"max=1000"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

func (h *Handler) materialize(w http.ResponseWriter, r *http.Request) {
	var req materializeRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	o, err := h.service.MaterializeOrder(r.Context(), rbac.Actor(r), req.QuotationID)
	if err != nil {
		h.logger.Warn("materialize order", slog.Int64("quotation_id", req.QuotationID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, o)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	o, err := h.service.GetOrder(r.Context(), rbac.Actor(r), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req statusRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	o, err := h.service.UpdateStatus(r.Context(), rbac.Actor(r), id, StatusChange{
		Target:         Status(req.Status),
		TrackingNumber: req.TrackingNumber,
		Carrier:        req.Carrier,
		Reason:         req.Reason,
	})
	if err != nil {
		h.logger.Warn("update order status", slog.Int64("order_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req cancelRequest
	if r.ContentLength != 0 {
		if err := httpx.Bind(r, h.validator, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	o, err := h.service.CancelOrder(r.Context(), rbac.Actor(r), id, req.Reason)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, o)
}
