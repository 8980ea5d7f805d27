package quotation

import (
	"time"

	"github.com/sitekart/sitekart/internal/pricing"
)

// Status is the lifecycle state of a quotation version.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusSent     Status = "sent"
	StatusViewed   Status = "viewed"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
	StatusRevised  Status = "revised"
)

// Active reports whether s still counts as the project's open quotation.
func (s Status) Active() bool {
	return s == StatusDraft || s == StatusSent || s == StatusViewed
}

// Terminal reports whether no further transition may leave s.
func (s Status) Terminal() bool {
	return !s.Active()
}

// ActiveStatuses lists the statuses of an open quotation.
var ActiveStatuses = []Status{StatusDraft, StatusSent, StatusViewed}

// Quotation is one version of a seller's priced offer for a project.
type Quotation struct {
	ID                int64                `json:"id"`
	QuotationNumber   string               `json:"quotation_number"`
	Version           int                  `json:"version"`
	PreviousVersionID *int64               `json:"previous_version_id,omitempty"`
	ProjectID         int64                `json:"project_id"`
	CustomerID        int64                `json:"customer_id"`
	SellerID          int64                `json:"seller_id"`
	Items             []pricing.LineItem   `json:"items"`
	LaborCost         float64              `json:"labor_cost"`
	TransportCost     float64              `json:"transport_cost"`
	Discount          float64              `json:"discount"`
	DiscountType      pricing.DiscountType `json:"discount_type"`
	Subtotal          float64              `json:"subtotal"`
	GSTTotal          float64              `json:"gst_total"`
	DiscountAmount    float64              `json:"discount_amount"`
	Total             float64              `json:"total"`
	GSTBreakdown      pricing.Breakdown    `json:"gst_breakdown"`
	Status            Status               `json:"status"`
	ValidUntil        time.Time            `json:"valid_until"`
	Notes             string               `json:"notes,omitempty"`
	Terms             string               `json:"terms,omitempty"`
	RejectionReason   string               `json:"rejection_reason,omitempty"`
	SentAt            *time.Time           `json:"sent_at,omitempty"`
	ViewedAt          *time.Time           `json:"viewed_at,omitempty"`
	AcceptedAt        *time.Time           `json:"accepted_at,omitempty"`
	RejectedAt        *time.Time           `json:"rejected_at,omitempty"`
	ExpiredAt         *time.Time           `json:"expired_at,omitempty"`
	RevisedAt         *time.Time           `json:"revised_at,omitempty"`
	Revision          int64                `json:"revision"`
	CreatedAt         time.Time            `json:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at"`
}

// Adjustments returns the document-level pricing inputs.
func (q *Quotation) Adjustments() pricing.Adjustments {
	return pricing.Adjustments{
		LaborCost:     q.LaborCost,
		TransportCost: q.TransportCost,
		Discount:      q.Discount,
		DiscountType:  q.DiscountType,
	}
}

// Reprice recomputes every derived amount from the items.
func (q *Quotation) Reprice() error {
	if err := pricing.PriceLineItems(q.Items); err != nil {
		return err
	}
	totals, err := pricing.Compute(pricing.Lines(q.Items), q.Adjustments())
	if err != nil {
		return err
	}
	q.Subtotal = totals.Subtotal
	q.GSTTotal = totals.GSTTotal
	q.LaborCost = totals.LaborCost
	q.TransportCost = totals.TransportCost
	q.DiscountAmount = totals.DiscountAmount
	q.Total = totals.Total
	q.GSTBreakdown = totals.Breakdown
	return nil
}

// Overdue reports whether the validity window has passed at now.
func (q *Quotation) Overdue(now time.Time) bool {
	return now.After(q.ValidUntil)
}

func (q *Quotation) nextLineNo() int {
	next := 1
	for _, item := range q.Items {
		if item.LineNo >= next {
			next = item.LineNo + 1
		}
	}
	return next
}

// LineInput describes a line to add. Missing values are taken from the
// catalog defaults of the material.
type LineInput struct {
	MaterialID   int64
	MaterialName string
	Unit         string
	Quantity     float64
	PricePerUnit *float64
	GSTRate      *float64
}

// CreateInput describes a new quotation. When Items is empty the project's
// selected materials seed the lines.
type CreateInput struct {
	ProjectID     int64
	CustomerID    int64
	Items         []LineInput
	LaborCost     float64
	TransportCost float64
	Discount      float64
	DiscountType  pricing.DiscountType
	ValidUntil    time.Time
	Notes         string
	Terms         string
}

// DraftUpdate carries optional edits to a draft's header.
type DraftUpdate struct {
	LaborCost     *float64
	TransportCost *float64
	Discount      *float64
	DiscountType  *pricing.DiscountType
	ValidUntil    *time.Time
	Notes         *string
	Terms         *string
}
