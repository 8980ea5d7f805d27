package catalog

import "sort"

// RateTable is an immutable, versioned snapshot of the GST rate table.
type RateTable struct {
	Version int64
	rates   map[string]GSTRate
}

// NewRateTable builds a snapshot keyed by normalised category.
func NewRateTable(version int64, rates []GSTRate) *RateTable {
	m := make(map[string]GSTRate, len(rates))
	for _, r := range rates {
		m[NormalizeCategory(r.MaterialCategory)] = r
	}
	return &RateTable{Version: version, rates: m}
}

// Lookup returns the rate for category.
func (t *RateTable) Lookup(category string) (GSTRate, bool) {
	if t == nil {
		return GSTRate{}, false
	}
	r, ok := t.rates[NormalizeCategory(category)]
	return r, ok
}

// All returns every rate ordered by category.
func (t *RateTable) All() []GSTRate {
	if t == nil {
		return nil
	}
	out := make([]GSTRate, 0, len(t.rates))
	for _, r := range t.rates {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MaterialCategory < out[j].MaterialCategory })
	return out
}

// Len reports the number of categories.
func (t *RateTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rates)
}
