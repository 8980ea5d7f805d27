// Package pricing turns line items into document totals.
package pricing

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/sitekart/sitekart/internal/shared"
	"github.com/sitekart/sitekart/internal/tax"
)

// DiscountType controls how Adjustments.Discount is interpreted.
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// Valid reports whether t is a known discount type.
func (t DiscountType) Valid() bool {
	return t == DiscountPercentage || t == DiscountFixed
}

const epsilon = 1e-9

// Line is the priced part of a document line.
type Line struct {
	Quantity     float64
	PricePerUnit float64
	GSTRate      float64
}

// LinePrice holds the unrounded amounts of one line.
type LinePrice struct {
	Subtotal  float64
	CGST      float64
	SGST      float64
	GSTAmount float64
	Total     float64
}

// PriceLine prices a single line.
func PriceLine(l Line) (LinePrice, error) {
	if l.Quantity <= 0 {
		return LinePrice{}, shared.Invalid(shared.ErrInvalidLineItem, "quantity", fmt.Sprintf("must be > 0, got %v", l.Quantity))
	}
	if l.PricePerUnit < 0 {
		return LinePrice{}, shared.Invalid(shared.ErrInvalidLineItem, "price_per_unit", fmt.Sprintf("must be >= 0, got %v", l.PricePerUnit))
	}
	subtotal := l.Quantity * l.PricePerUnit
	lt, err := tax.ComputeLineTax(subtotal, l.GSTRate)
	if err != nil {
		return LinePrice{}, err
	}
	return LinePrice{
		Subtotal:  subtotal,
		CGST:      lt.CGST,
		SGST:      lt.SGST,
		GSTAmount: lt.Combined,
		Total:     subtotal + lt.Combined,
	}, nil
}

// RateGroup aggregates every line sharing one GST rate.
type RateGroup struct {
	Rate         float64 `json:"rate"`
	TaxableValue float64 `json:"taxable_value"`
	CGST         float64 `json:"cgst"`
	SGST         float64 `json:"sgst"`
	TaxAmount    float64 `json:"tax_amount"`
}

// Breakdown is a per-rate aggregation ordered by ascending rate.
type Breakdown []RateGroup

// TaxTotal sums the tax across all groups.
func (b Breakdown) TaxTotal() float64 {
	var total float64
	for _, g := range b {
		total += g.TaxAmount
	}
	return total
}

// Result is the unrounded aggregate of a set of lines.
type Result struct {
	Subtotal  float64
	GSTTotal  float64
	Breakdown Breakdown
}

// RequireItems fails with EmptyItemSet when items is empty.
func RequireItems(items []Line) error {
	if len(items) == 0 {
		return shared.Invalid(shared.ErrEmptyItemSet, "items", "must contain at least one line")
	}
	return nil
}

// PriceItems aggregates items. An empty set prices to zero.
func PriceItems(items []Line) (Result, error) {
	var res Result
	groups := make(map[float64]*RateGroup)
	for i, item := range items {
		lp, err := PriceLine(item)
		if err != nil {
			return Result{}, fmt.Errorf("line %d: %w", i+1, err)
		}
		res.Subtotal += lp.Subtotal
		res.GSTTotal += lp.GSTAmount

		g, ok := groups[item.GSTRate]
		if !ok {
			g = &RateGroup{Rate: item.GSTRate}
			groups[item.GSTRate] = g
		}
		g.TaxableValue += lp.Subtotal
		g.CGST += lp.CGST
		g.SGST += lp.SGST
		g.TaxAmount += lp.GSTAmount
	}
	res.Breakdown = make(Breakdown, 0, len(groups))
	for _, g := range groups {
		res.Breakdown = append(res.Breakdown, *g)
	}
	sort.Slice(res.Breakdown, func(i, j int) bool { return res.Breakdown[i].Rate < res.Breakdown[j].Rate })
	return res, nil
}

// Adjustments are the document-level charges and discount.
type Adjustments struct {
	LaborCost     float64
	TransportCost float64
	Discount      float64
	DiscountType  DiscountType
}

// Validate checks signs and the discount type.
func (a Adjustments) Validate() error {
	if a.LaborCost < 0 {
		return shared.Invalid(shared.ErrInvalidAmount, "labor_cost", "must be >= 0")
	}
	if a.TransportCost < 0 {
		return shared.Invalid(shared.ErrInvalidAmount, "transport_cost", "must be >= 0")
	}
	if a.Discount < 0 {
		return shared.Invalid(shared.ErrInvalidAmount, "discount", "must be >= 0")
	}
	if a.Discount > 0 && !a.DiscountType.Valid() {
		return shared.Invalid(shared.ErrInvalidDiscountType, "discount_type", fmt.Sprintf("unknown type %q", a.DiscountType))
	}
	return nil
}

// ApplyDiscount returns the discount amount taken off base. A discount equal
// to base brings the total to zero; anything above it is rejected.
func ApplyDiscount(base, discount float64, kind DiscountType) (float64, error) {
	if discount < 0 {
		return 0, shared.Invalid(shared.ErrInvalidAmount, "discount", "must be >= 0")
	}
	if discount == 0 {
		return 0, nil
	}
	var amount float64
	switch kind {
	case DiscountPercentage:
		if discount > 100 {
			return 0, shared.Invalid(shared.ErrDiscountExceedsTotal, "discount", fmt.Sprintf("%v%% is above 100%%", discount))
		}
		amount = base * discount / 100
	case DiscountFixed:
		amount = discount
	default:
		return 0, shared.Invalid(shared.ErrInvalidDiscountType, "discount_type", fmt.Sprintf("unknown type %q", kind))
	}
	if amount-base > epsilon {
		return 0, shared.Invalid(shared.ErrDiscountExceedsTotal, "discount", fmt.Sprintf("%.2f exceeds %.2f", amount, base))
	}
	return amount, nil
}

// Totals are the stored, rounded amounts of a priced document.
type Totals struct {
	Subtotal       float64   `json:"subtotal"`
	GSTTotal       float64   `json:"gst_total"`
	LaborCost      float64   `json:"labor_cost"`
	TransportCost  float64   `json:"transport_cost"`
	DiscountAmount float64   `json:"discount_amount"`
	Total          float64   `json:"total"`
	Breakdown      Breakdown `json:"gst_breakdown"`
}

// Compute prices items, applies adjustments and rounds once at the end.
// Total is derived from the rounded components so that
// Total == Subtotal + GSTTotal + LaborCost + TransportCost - DiscountAmount
// holds on the returned values.
func Compute(items []Line, adj Adjustments) (Totals, error) {
	if err := adj.Validate(); err != nil {
		return Totals{}, err
	}
	res, err := PriceItems(items)
	if err != nil {
		return Totals{}, err
	}
	base := res.Subtotal + res.GSTTotal + adj.LaborCost + adj.TransportCost
	discount, err := ApplyDiscount(base, adj.Discount, adj.DiscountType)
	if err != nil {
		return Totals{}, err
	}

	t := Totals{
		Subtotal:       tax.Round2(res.Subtotal),
		GSTTotal:       tax.Round2(res.GSTTotal),
		LaborCost:      tax.Round2(adj.LaborCost),
		TransportCost:  tax.Round2(adj.TransportCost),
		DiscountAmount: tax.Round2(discount),
		Breakdown:      res.RoundedBreakdown(),
	}
	t.Total = tax.Round2(t.Subtotal + t.GSTTotal + t.LaborCost + t.TransportCost - t.DiscountAmount)
	if t.Total < 0 {
		t.Total = 0
	}
	return t, nil
}

func roundMoney(v float64) float64 {
	return tax.Round2(v)
}

// RoundedBreakdown rounds the breakdown of r to two decimals. The paisa lost
// to per-group rounding is handed to the groups with the largest remainders,
// so the rounded taxable values sum to Round2(r.Subtotal) and the rounded
// taxes to Round2(r.GSTTotal).
func (r Result) RoundedBreakdown() Breakdown {
	n := len(r.Breakdown)
	taxable := make([]float64, n)
	taxes := make([]float64, n)
	for i, g := range r.Breakdown {
		taxable[i] = g.TaxableValue
		taxes[i] = g.TaxAmount
	}
	taxable = allocateCents(taxable, r.Subtotal)
	taxes = allocateCents(taxes, r.GSTTotal)

	out := make(Breakdown, n)
	for i, g := range r.Breakdown {
		amount := decimal.NewFromFloat(taxes[i])
		cgst := amount.Div(decimal.NewFromInt(2)).Round(2)
		out[i] = RateGroup{
			Rate:         g.Rate,
			TaxableValue: taxable[i],
			CGST:         cgst.InexactFloat64(),
			SGST:         amount.Sub(cgst).InexactFloat64(),
			TaxAmount:    taxes[i],
		}
	}
	return out
}

// allocateCents truncates values to the paisa and distributes the shortfall
// against Round2(total) one paisa at a time, largest remainder first.
func allocateCents(values []float64, total float64) []float64 {
	if len(values) == 0 {
		return values
	}
	cent := decimal.New(1, -2)
	floors := make([]decimal.Decimal, len(values))
	remainders := make([]decimal.Decimal, len(values))
	sum := decimal.Zero
	for i, v := range values {
		d := decimal.NewFromFloat(v)
		floors[i] = d.Truncate(2)
		remainders[i] = d.Sub(floors[i])
		sum = sum.Add(floors[i])
	}
	order := make([]int, len(values))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return remainders[order[a]].GreaterThan(remainders[order[b]])
	})
	residual := decimal.NewFromFloat(total).Round(2).Sub(sum).Div(cent).IntPart()
	for k := int64(0); k < residual; k++ {
		i := order[int(k)%len(order)]
		floors[i] = floors[i].Add(cent)
	}
	for k := int64(0); k > residual; k-- {
		i := order[len(order)-1-int(-k)%len(order)]
		floors[i] = floors[i].Sub(cent)
	}

	out := make([]float64, len(values))
	for i, d := range floors {
		out[i] = d.InexactFloat64()
	}
	return out
}
