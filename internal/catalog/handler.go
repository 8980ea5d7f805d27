package catalog

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/sitekart/sitekart/internal/platform/httpx"
	"github.com/sitekart/sitekart/internal/rbac"
	"github.com/sitekart/sitekart/internal/shared"
	"github.com/sitekart/sitekart/internal/tax"
)

// Handler manages catalog endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	v := httpx.NewValidator()
	_ = tax.RegisterValidation(v)
	return &Handler{logger: logger, service: service, rbac: rbac, validator: v}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/gst-rates", h.listRates)
	r.Get("/materials/{id}/defaults", h.materialDefaults)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireRole(shared.RoleSeller))
		r.Put("/gst-rates/{category}", h.upsertRate)
	})
}

type rateRequest struct {
	HSNCode string  `json:"hsn_code" validate:"required,numeric"`
	CGST    float64 `json:"cgst" validate:"gte=0"`
	SGST    float64 `json:"sgst" validate:"gte=0,eqfield=CGST"`
	IGST    float64 `json:"igst" validate:"gte=0"`
}

func (h *Handler) listRates(w http.ResponseWriter, r *http.Request) {
	rates, err := h.service.Rates(r.Context())
	if err != nil {
		h.logger.Error("list gst rates", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rates": rates})
}

func (h *Handler) upsertRate(w http.ResponseWriter, r *http.Request) {
	var req rateRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	rate, err := h.service.UpsertRate(r.Context(), rbac.Actor(r), GSTRate{
		MaterialCategory: chi.URLParam(r, "category"),
		HSNCode:          req.HSNCode,
		CGST:             req.CGST,
		SGST:             req.SGST,
		IGST:             req.IGST,
	})
	if err != nil {
		h.logger.Warn("upsert gst rate", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rate)
}

func (h *Handler) materialDefaults(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	d, err := h.service.LineDefaults(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"material_id":    d.MaterialID,
		"name":           d.Name,
		"category":       d.Category,
		"hsn_code":       d.HSNCode,
		"unit":           d.Unit,
		"price_per_unit": d.PricePerUnit,
		"gst_rate":       d.GSTRate,
	})
}
