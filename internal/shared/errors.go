package shared

import (
	"errors"
	"fmt"
)

// ErrorKind classifies domain failures so transports can map them uniformly.
type ErrorKind string

const (
	KindValidation  ErrorKind = "validation"
	KindState       ErrorKind = "state"
	KindConcurrency ErrorKind = "concurrency"
	KindIntegrity   ErrorKind = "integrity"
	KindNotFound    ErrorKind = "not_found"
	KindForbidden   ErrorKind = "forbidden"
)

// DomainError is a sentinel with a stable code and a kind.
type DomainError struct {
	Code    string
	Kind    ErrorKind
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

func newDomainError(code string, kind ErrorKind, msg string) *DomainError {
	return &DomainError{Code: code, Kind: kind, Message: msg}
}

// Validation errors.
var (
	ErrInvalidTaxRate       = newDomainError("InvalidTaxRate", KindValidation, "gst rate must be one of 0, 5, 12, 18, 28")
	ErrInvalidAmount        = newDomainError("InvalidAmount", KindValidation, "amount must not be negative")
	ErrInvalidLineItem      = newDomainError("InvalidLineItem", KindValidation, "invalid line item")
	ErrInvalidDiscountType  = newDomainError("InvalidDiscountType", KindValidation, "discount type must be percentage or fixed")
	ErrEmptyItemSet         = newDomainError("EmptyItemSet", KindValidation, "at least one line item is required")
	ErrIncompleteQuotation  = newDomainError("IncompleteQuotation", KindValidation, "quotation is incomplete")
	ErrDiscountExceedsTotal = newDomainError("DiscountExceedsTotal", KindValidation, "discount exceeds the total before discount")
	ErrPaymentMismatch      = newDomainError("PaymentAmountMismatch", KindValidation, "payment amount does not match invoice total")
	ErrInvalidRate          = newDomainError("InvalidGSTRate", KindValidation, "invalid gst rate record")
	ErrInvalidRequest       = newDomainError("InvalidRequest", KindValidation, "malformed request")
)

// State errors.
var (
	ErrQuotationNotViewable = newDomainError("QuotationNotViewable", KindState, "quotation is not open for customer action")
	ErrQuotationExpired     = newDomainError("QuotationExpired", KindState, "quotation has expired")
	ErrQuotationLocked      = newDomainError("QuotationLocked", KindState, "quotation can only be edited while draft")
	ErrQuotationNotAccepted = newDomainError("QuotationNotAccepted", KindState, "quotation is not accepted")
	ErrInvalidTransition    = newDomainError("InvalidTransition", KindState, "transition not allowed from current status")
	ErrDuplicateActive      = newDomainError("DuplicateActiveQuotation", KindState, "project already has an active quotation")
	ErrDuplicateOrder       = newDomainError("DuplicateOrder", KindState, "order already exists for quotation")
	ErrDuplicateInvoice     = newDomainError("DuplicateInvoice", KindState, "invoice already exists for order")
	ErrOrderNotInvoiceable  = newDomainError("OrderNotInvoiceable", KindState, "order cannot be invoiced in its current status")
	ErrInvoiceAlreadyPaid   = newDomainError("InvoiceAlreadyPaid", KindState, "invoice already paid")
)

var (
	// ErrConcurrentModification indicates a conditional write lost the race.
	ErrConcurrentModification = newDomainError("ConcurrentModification", KindConcurrency, "document was modified concurrently, re-read and retry")

	// ErrTaxReconciliation indicates frozen totals disagree with a recomputation.
	ErrTaxReconciliation = newDomainError("TaxReconciliationError", KindIntegrity, "recomputed tax does not reconcile with stored totals")

	// ErrNotFound indicates resource not found.
	ErrNotFound = newDomainError("NotFound", KindNotFound, "resource not found")

	// ErrActorNotPermitted indicates the actor role may not trigger the action.
	ErrActorNotPermitted = newDomainError("ActorNotPermitted", KindForbidden, "actor is not permitted to perform this action")
)

// FieldError attaches a field-level reason to a validation sentinel.
type FieldError struct {
	Field  string
	Reason string
	Err    error
	Cause  error
}

func (e *FieldError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Err, e.Reason)
	}
	return fmt.Sprintf("%s: %s %s", e.Err, e.Field, e.Reason)
}

// Unwrap exposes both the sentinel and the optional underlying cause.
func (e *FieldError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
}

// Invalid builds a FieldError for err.
func Invalid(err error, field, reason string) error {
	return &FieldError{Field: field, Reason: reason, Err: err}
}

// KindOf returns the kind of the first DomainError found in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return "", false
}

// CodeOf returns the stable code of the DomainError in err's chain.
func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
