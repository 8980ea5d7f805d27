package catalog

import (
	"fmt"
	"strings"
	"time"

	"github.com/sitekart/sitekart/internal/shared"
	"github.com/sitekart/sitekart/internal/tax"
)

// GSTRate is the tax configuration of one material category.
type GSTRate struct {
	MaterialCategory string    `json:"material_category"`
	HSNCode          string    `json:"hsn_code"`
	CGST             float64   `json:"cgst"`
	SGST             float64   `json:"sgst"`
	IGST             float64   `json:"igst"`
	UpdatedBy        int64     `json:"updated_by"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Combined is the intra-state rate applied to line totals.
func (r GSTRate) Combined() float64 {
	return r.CGST + r.SGST
}

// Validate enforces the rate record invariants.
func (r GSTRate) Validate() error {
	if NormalizeCategory(r.MaterialCategory) == "" {
		return shared.Invalid(shared.ErrInvalidRate, "material_category", "is required")
	}
	if !validHSN(r.HSNCode) {
		return shared.Invalid(shared.ErrInvalidRate, "hsn_code", "must be 4, 6 or 8 digits")
	}
	if r.CGST < 0 || r.SGST < 0 || r.IGST < 0 {
		return shared.Invalid(shared.ErrInvalidRate, "cgst", "rates must not be negative")
	}
	if r.CGST != r.SGST {
		return shared.Invalid(shared.ErrInvalidRate, "sgst", fmt.Sprintf("must equal cgst (%v)", r.CGST))
	}
	if !tax.IsAllowedRate(r.Combined()) {
		return shared.Invalid(shared.ErrInvalidTaxRate, "cgst", fmt.Sprintf("combined rate %v is not an allowed slab", r.Combined()))
	}
	return nil
}

func validHSN(code string) bool {
	switch len(code) {
	case 4, 6, 8:
	default:
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// NormalizeCategory canonicalises category keys.
func NormalizeCategory(category string) string {
	return strings.ToLower(strings.TrimSpace(category))
}

// Material is a seller's catalog entry.
type Material struct {
	ID           int64    `json:"id"`
	SellerID     int64    `json:"seller_id"`
	Name         string   `json:"name"`
	Category     string   `json:"category"`
	Unit         string   `json:"unit"`
	PricePerUnit float64  `json:"price_per_unit"`
	GSTRate      *float64 `json:"gst_rate,omitempty"`
}

// Project is the customer's measured project as supplied by the project service.
type Project struct {
	ID         int64             `json:"id"`
	CustomerID int64             `json:"customer_id"`
	Name       string            `json:"name"`
	Materials  []ProjectMaterial `json:"materials"`
}

// ProjectMaterial is a material selection on a project.
type ProjectMaterial struct {
	MaterialID   int64    `json:"material_id"`
	MaterialName string   `json:"material_name"`
	Category     string   `json:"category"`
	Quantity     float64  `json:"quantity"`
	Unit         string   `json:"unit"`
	PricePerUnit float64  `json:"price_per_unit"`
	GSTRate      *float64 `json:"gst_rate,omitempty"`
}

// LineDefaults are the values a new quotation line inherits from the catalog.
type LineDefaults struct {
	MaterialID   int64
	Name         string
	Category     string
	HSNCode      string
	Unit         string
	PricePerUnit float64
	GSTRate      float64
}
