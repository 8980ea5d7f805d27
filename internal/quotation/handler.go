package quotation

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/sitekart/sitekart/internal/platform/httpx"
	"github.com/sitekart/sitekart/internal/pricing"
	"github.com/sitekart/sitekart/internal/rbac"
	"github.com/sitekart/sitekart/internal/shared"
	"github.com/sitekart/sitekart/internal/tax"
)

// MaterializeFunc turns an accepted quotation into an order.
type MaterializeFunc func(ctx context.Context, quotationID int64) (any, error)

// Handler exposes quotation endpoints.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	rbac        rbac.Middleware
	validator   *validator.Validate
	materialize MaterializeFunc
}

// NewHandler builds the handler. materialize may be nil.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware, materialize MaterializeFunc) *Handler {
	v := httpx.NewValidator()
	_ = tax.RegisterValidation(v)
	return &Handler{logger: logger, service: service, rbac: rbac, validator: v, materialize: materialize}
}

// MountRoutes registers quotation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/projects/{id}/quotations", h.history)
	r.Route("/quotations", func(r chi.Router) {
		r.Get("/{id}", h.get)
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireRole(shared.RoleSeller))
			r.Post("/", h.create)
			r.Patch("/{id}", h.updateDraft)
			r.Post("/{id}/items", h.addLine)
			r.Delete("/{id}/items/{line}", h.removeLine)
			r.Post("/{id}/send", h.send)
			r.Post("/{id}/revise", h.revise)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireRole(shared.RoleCustomer))
			r.Post("/{id}/view", h.view)
			r.Post("/{id}/accept", h.accept)
			r.Post("/{id}/reject", h.reject)
		})
	})
}

type lineRequest struct {
	MaterialID   int64    `json:"material_id" validate:"required,gt=0"`
	MaterialName string   `json:"material_name" validate:"omitempty,max=200"`
	Unit         string   `json:"unit" validate:"omitempty,max=20"`
	Quantity     float64  `json:"quantity" validate:"gt=0"`
	PricePerUnit *float64 `json:"price_per_unit" validate:"omitempty,gte=0"`
	GSTRate      *float64 `json:"gst_rate" validate:"omitempty,gst_rate"`
}

func (l lineRequest) input() LineInput {
	return LineInput{
		MaterialID:   l.MaterialID,
		MaterialName: l.MaterialName,
		Unit:         l.Unit,
		Quantity:     l.Quantity,
		PricePerUnit: l.PricePerUnit,
		GSTRate:      l.GSTRate,
	}
}

type createRequest struct {
	ProjectID     int64         `json:"project_id" validate:"required,gt=0"`
	CustomerID    int64         `json:"customer_id" validate:"omitempty,gt=0"`
	Items         []lineRequest `json:"items" validate:"dive"`
	LaborCost     float64       `json:"labor_cost" validate:"gte=0"`
	TransportCost float64       `json:"transport_cost" validate:"gte=0"`
	Discount      float64       `json:"discount" validate:"gte=0"`
	DiscountType  string        `json:"discount_type" validate:"omitempty,oneof=percentage fixed"`
	ValidUntil    *time.Time    `json:"valid_until"`
	Notes         string        `json:"notes" validate:"max=2000"`
	Terms         string        `json:"terms" validate:"max=4000"`
}

type updateRequest struct {
	LaborCost     *float64   `json:"labor_cost" validate:"omitempty,gte=0"`
	TransportCost *float64   `json:"transport_cost" validate:"omitempty,gte=0"`
	Discount      *float64   `json:"discount" validate:"omitempty,gte=0"`
	DiscountType  *string    `json:"discount_type" validate:"omitempty,oneof=percentage fixed"`
	ValidUntil    *time.Time `json:"valid_until"`
	Notes         *string    `json:"notes" validate:"omitempty,max=2000"`
	Terms         *string    `json:"terms" validate:"omitempty,max=4000"`
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := CreateInput{
		ProjectID:     req.ProjectID,
		CustomerID:    req.CustomerID,
		LaborCost:     req.LaborCost,
		TransportCost: req.TransportCost,
		Discount:      req.Discount,
		DiscountType:  pricing.DiscountType(req.DiscountType),
		Notes:         req.Notes,
		Terms:         req.Terms,
	}
	if req.ValidUntil != nil {
		input.ValidUntil = *req.ValidUntil
	}
	for _, line := range req.Items {
		input.Items = append(input.Items, line.input())
	}
	q, err := h.service.CreateQuotation(r.Context(), rbac.Actor(r), input)
	if err != nil {
		h.fail(w, "create quotation", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, q)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	q, err := h.service.GetQuotation(r.Context(), rbac.Actor(r), id)
	if err != nil {
		h.fail(w, "get quotation", err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	projectID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	list, err := h.service.History(r.Context(), rbac.Actor(r), projectID)
	if err != nil {
		h.fail(w, "quotation history", err)
		return
	}
	page, perPage := httpx.PageParams(r)
	p := shared.NewPagination(page, perPage, len(list))
	start, end := p.Bounds()
	httpx.JSON(w, http.StatusOK, map[string]any{"quotations": list[start:end], "pagination": p})
}

func (h *Handler) updateDraft(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	update := DraftUpdate{
		LaborCost:     req.LaborCost,
		TransportCost: req.TransportCost,
		Discount:      req.Discount,
		ValidUntil:    req.ValidUntil,
		Notes:         req.Notes,
		Terms:         req.Terms,
	}
	if req.DiscountType != nil {
		dt := pricing.DiscountType(*req.DiscountType)
		update.DiscountType = &dt
	}
	q, err := h.service.UpdateDraft(r.Context(), rbac.Actor(r), id, update)
	if err != nil {
		h.fail(w, "update quotation", err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) addLine(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req lineRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	q, err := h.service.AddLineItem(r.Context(), rbac.Actor(r), id, req.input())
	if err != nil {
		h.fail(w, "add quotation line", err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) removeLine(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	line, err := strconv.Atoi(chi.URLParam(r, "line"))
	if err != nil || line <= 0 {
		httpx.RespondError(w, shared.Invalid(shared.ErrInvalidRequest, "line", "must be a positive integer"))
		return
	}
	q, err := h.service.RemoveLineItem(r.Context(), rbac.Actor(r), id, line)
	if err != nil {
		h.fail(w, "remove quotation line", err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, "send quotation", h.service.SendQuotation)
}

func (h *Handler) view(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, "view quotation", h.service.ViewQuotation)
}

func (h *Handler) revise(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	q, err := h.service.ReviseQuotation(r.Context(), rbac.Actor(r), id)
	if err != nil {
		h.fail(w, "revise quotation", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, q)
}

func (h *Handler) accept(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	q, err := h.service.AcceptQuotation(r.Context(), rbac.Actor(r), id)
	if err != nil {
		h.fail(w, "accept quotation", err)
		return
	}
	resp := map[string]any{"quotation": q}
	if h.materialize != nil {
		order, err := h.materialize(r.Context(), q.ID)
		if err != nil {
			// The order can be materialized later through POST /orders.
			h.logger.Error("materialize order", slog.Int64("quotation_id", q.ID), slog.Any("error", err))
			resp["order_pending"] = true
		} else {
			resp["order"] = order
		}
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req rejectRequest
	if r.ContentLength != 0 {
		if err := httpx.Bind(r, h.validator, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	q, err := h.service.RejectQuotation(r.Context(), rbac.Actor(r), id, req.Reason)
	if err != nil {
		h.fail(w, "reject quotation", err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) act(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, shared.Actor, int64) (Quotation, error)) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	q, err := fn(r.Context(), rbac.Actor(r), id)
	if err != nil {
		h.fail(w, op, err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if kind, ok := shared.KindOf(err); !ok || kind == shared.KindIntegrity {
		h.logger.Error(op, slog.Any("error", err))
	} else {
		h.logger.Debug(op, slog.String("code", shared.CodeOf(err)), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
