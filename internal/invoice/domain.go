package invoice

import (
	"time"

	"github.com/sitekart/sitekart/internal/pricing"
)

// PaymentStatus tracks settlement of an invoice. It only moves forward.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

// Invoice is the tax document derived from an order.
type Invoice struct {
	ID             int64              `json:"id"`
	InvoiceNumber  string             `json:"invoice_number"`
	OrderID        int64              `json:"order_id"`
	QuotationID    int64              `json:"quotation_id"`
	CustomerID     int64              `json:"customer_id"`
	SellerID       int64              `json:"seller_id"`
	Items          []pricing.LineItem `json:"items"`
	Subtotal       float64            `json:"subtotal"`
	GSTTotal       float64            `json:"gst_total"`
	LaborCost      float64            `json:"labor_cost"`
	TransportCost  float64            `json:"transport_cost"`
	DiscountAmount float64            `json:"discount_amount"`
	Total          float64            `json:"total"`
	GSTBreakdown   pricing.Breakdown  `json:"gst_breakdown"`
	PaymentStatus  PaymentStatus      `json:"payment_status"`
	TransactionID  string             `json:"transaction_id,omitempty"`
	PaidAt         *time.Time         `json:"paid_at,omitempty"`
	DueDate        time.Time          `json:"due_date"`
	Revision       int64              `json:"revision"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// PaymentCallback is the settlement notice sent by the payment gateway.
type PaymentCallback struct {
	InvoiceID     int64   `json:"invoice_id" validate:"required,gt=0"`
	TransactionID string  `json:"transaction_id" validate:"required,max=128"`
	Amount        float64 `json:"amount" validate:"gt=0"`
}
