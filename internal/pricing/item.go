package pricing

// LineItem is a priced document line. Quotations, orders and invoices all
// carry the same shape; orders and invoices hold frozen copies.
type LineItem struct {
	LineNo       int     `json:"line_no"`
	MaterialID   int64   `json:"material_id"`
	MaterialName string  `json:"material_name"`
	Category     string  `json:"category,omitempty"`
	HSNCode      string  `json:"hsn_code,omitempty"`
	Quantity     float64 `json:"quantity"`
	Unit         string  `json:"unit"`
	PricePerUnit float64 `json:"price_per_unit"`
	GSTRate      float64 `json:"gst_rate"`
	Subtotal     float64 `json:"subtotal"`
	GSTAmount    float64 `json:"gst_amount"`
	Total        float64 `json:"total"`
}

// Line returns the inputs the pricer needs.
func (li LineItem) Line() Line {
	return Line{Quantity: li.Quantity, PricePerUnit: li.PricePerUnit, GSTRate: li.GSTRate}
}

// Lines maps items to pricer inputs.
func Lines(items []LineItem) []Line {
	out := make([]Line, len(items))
	for i, item := range items {
		out[i] = item.Line()
	}
	return out
}

// PriceLineItems fills the derived amounts of every item in place.
func PriceLineItems(items []LineItem) error {
	for i := range items {
		lp, err := PriceLine(items[i].Line())
		if err != nil {
			return err
		}
		items[i].Subtotal = roundMoney(lp.Subtotal)
		items[i].GSTAmount = roundMoney(lp.GSTAmount)
		items[i].Total = roundMoney(lp.Total)
	}
	return nil
}

// CloneItems deep-copies items.
func CloneItems(items []LineItem) []LineItem {
	if items == nil {
		return nil
	}
	return append([]LineItem(nil), items...)
}
