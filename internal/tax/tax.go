// Package tax computes Indian GST on taxable values.
//
// Amounts are plain float64 currency units. Nothing in this package rounds
// except Round2, which callers apply at presentation and aggregation
// boundaries only.
package tax

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/sitekart/sitekart/internal/shared"
)

// AllowedRates lists the combined GST slabs a line item may carry.
var AllowedRates = []float64{0, 5, 12, 18, 28}

// Tolerance is the largest difference treated as rounding noise (one paisa).
const Tolerance = 0.01

// LineTax is the intra-state split of the tax on one taxable value.
type LineTax struct {
	CGST     float64 `json:"cgst"`
	SGST     float64 `json:"sgst"`
	Combined float64 `json:"combined"`
}

// InterStateTax is the tax on a supply crossing state lines.
type InterStateTax struct {
	IGST float64 `json:"igst"`
}

// IsAllowedRate reports whether rate is one of AllowedRates.
func IsAllowedRate(rate float64) bool {
	for _, r := range AllowedRates {
		if r == rate {
			return true
		}
	}
	return false
}

// ComputeLineTax splits the GST on subtotal at ratePercent into equal central
// and state halves.
func ComputeLineTax(subtotal, ratePercent float64) (LineTax, error) {
	if err := checkInputs(subtotal, ratePercent); err != nil {
		return LineTax{}, err
	}
	half := subtotal * ratePercent / 200
	return LineTax{
		CGST:     half,
		SGST:     half,
		Combined: subtotal * ratePercent / 100,
	}, nil
}

// ComputeInterStateTax returns the IGST on subtotal at ratePercent.
func ComputeInterStateTax(subtotal, ratePercent float64) (InterStateTax, error) {
	if err := checkInputs(subtotal, ratePercent); err != nil {
		return InterStateTax{}, err
	}
	return InterStateTax{IGST: subtotal * ratePercent / 100}, nil
}

func checkInputs(subtotal, ratePercent float64) error {
	if subtotal < 0 {
		return shared.Invalid(shared.ErrInvalidAmount, "subtotal", fmt.Sprintf("must be >= 0, got %v", subtotal))
	}
	if !IsAllowedRate(ratePercent) {
		return shared.Invalid(shared.ErrInvalidTaxRate, "gst_rate", fmt.Sprintf("%v is not an allowed slab", ratePercent))
	}
	return nil
}

// Round2 rounds v half away from zero to two decimal places.
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// WithinTolerance reports whether a and b agree to the paisa.
func WithinTolerance(a, b float64) bool {
	diff := decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).Abs()
	return diff.LessThanOrEqual(decimal.NewFromFloat(Tolerance))
}
