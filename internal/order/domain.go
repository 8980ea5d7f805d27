package order

import (
	"time"

	"github.com/sitekart/sitekart/internal/pricing"
)

// Status is the fulfilment state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
	StatusReturned   Status = "returned"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled, StatusReturned:
		return true
	}
	return false
}

// Terminal reports whether no transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled || s == StatusReturned
}

// Invoiceable reports whether an invoice may be raised for an order in s.
func (s Status) Invoiceable() bool {
	return s != StatusCancelled && s != StatusReturned
}

// Order is the binding record created from an accepted quotation. Items and
// amounts are frozen copies of the quotation's.
type Order struct {
	ID                 int64              `json:"id"`
	OrderNumber        string             `json:"order_number"`
	QuotationID        int64              `json:"quotation_id"`
	ProjectID          int64              `json:"project_id"`
	CustomerID         int64              `json:"customer_id"`
	SellerID           int64              `json:"seller_id"`
	Items              []pricing.LineItem `json:"items"`
	Subtotal           float64            `json:"subtotal"`
	GSTTotal           float64            `json:"gst_total"`
	LaborCost          float64            `json:"labor_cost"`
	TransportCost      float64            `json:"transport_cost"`
	DiscountAmount     float64            `json:"discount_amount"`
	Total              float64            `json:"total"`
	GSTBreakdown       pricing.Breakdown  `json:"gst_breakdown"`
	Status             Status             `json:"status"`
	TrackingNumber     string             `json:"tracking_number,omitempty"`
	Carrier            string             `json:"carrier,omitempty"`
	CancellationReason string             `json:"cancellation_reason,omitempty"`
	ConfirmedAt        *time.Time         `json:"confirmed_at,omitempty"`
	ProcessingAt       *time.Time         `json:"processing_at,omitempty"`
	ShippedAt          *time.Time         `json:"shipped_at,omitempty"`
	DeliveredAt        *time.Time         `json:"delivered_at,omitempty"`
	CancelledAt        *time.Time         `json:"cancelled_at,omitempty"`
	ReturnedAt         *time.Time         `json:"returned_at,omitempty"`
	Revision           int64              `json:"revision"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// stamp records when the order reached s.
func (o *Order) stamp(s Status, at time.Time) {
	switch s {
	case StatusConfirmed:
		o.ConfirmedAt = &at
	case StatusProcessing:
		o.ProcessingAt = &at
	case StatusShipped:
		o.ShippedAt = &at
	case StatusDelivered:
		o.DeliveredAt = &at
	case StatusCancelled:
		o.CancelledAt = &at
	case StatusReturned:
		o.ReturnedAt = &at
	}
}

// StatusChange describes a requested transition.
type StatusChange struct {
	Target         Status
	TrackingNumber string
	Carrier        string
	Reason         string
}
