package order

import (
	"context"
	"fmt"
	"sync"

	"github.com/sitekart/sitekart/internal/pricing"
	"github.com/sitekart/sitekart/internal/quotation"
	"github.com/sitekart/sitekart/internal/shared"
)

type memoryRepo struct {
	mu     sync.Mutex
	rows   map[int64]Order
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{rows: map[int64]Order{}}
}

func cloneOrder(o Order) Order {
	o.Items = pricing.CloneItems(o.Items)
	o.GSTBreakdown = append(pricing.Breakdown(nil), o.GSTBreakdown...)
	return o
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := make(map[int64]Order, len(m.rows))
	for id, o := range m.rows {
		snapshot[id] = o
	}
	nextID := m.nextID
	if err := fn(ctx, &memoryTx{m: m}); err != nil {
		m.rows, m.nextID = snapshot, nextID
		return err
	}
	return nil
}

func (m *memoryRepo) Get(_ context.Context, id int64) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.rows[id]
	if !ok {
		return Order{}, fmt.Errorf("order %d: %w", id, shared.ErrNotFound)
	}
	return cloneOrder(o), nil
}

func (m *memoryRepo) GetByQuotation(_ context.Context, quotationID int64) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.rows {
		if o.QuotationID == quotationID {
			return cloneOrder(o), nil
		}
	}
	return Order{}, fmt.Errorf("order for quotation %d: %w", quotationID, shared.ErrNotFound)
}

func (m *memoryRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type memoryTx struct {
	m *memoryRepo
}

func (t *memoryTx) Insert(_ context.Context, o *Order) error {
	for _, row := range t.m.rows {
		if row.QuotationID == o.QuotationID {
			return fmt.Errorf("quotation %d: %w", o.QuotationID, shared.ErrDuplicateOrder)
		}
	}
	t.m.nextID++
	o.ID = t.m.nextID
	o.Revision = 1
	t.m.rows[o.ID] = cloneOrder(*o)
	return nil
}

func (t *memoryTx) Update(_ context.Context, o *Order, expectedStatus Status, expectedRevision int64) error {
	row, ok := t.m.rows[o.ID]
	if !ok || row.Status != expectedStatus || row.Revision != expectedRevision {
		return fmt.Errorf("order %d: %w", o.ID, shared.ErrConcurrentModification)
	}
	o.Revision = expectedRevision + 1
	t.m.rows[o.ID] = cloneOrder(*o)
	return nil
}

type quotationStore map[int64]quotation.Quotation

func (s quotationStore) Get(_ context.Context, id int64) (quotation.Quotation, error) {
	q, ok := s[id]
	if !ok {
		return quotation.Quotation{}, fmt.Errorf("quotation %d: %w", id, shared.ErrNotFound)
	}
	return q, nil
}

type counterNumbers struct {
	mu sync.Mutex
	n  int
}

func (c *counterNumbers) Next(_ context.Context, prefix string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return fmt.Sprintf("%s-TEST-%04d", prefix, c.n), nil
}

type countingMetrics struct {
	mu          sync.Mutex
	transitions []string
}

func (c *countingMetrics) ObserveTransition(entity, from, to string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transitions = append(c.transitions, entity+":"+from+"->"+to)
}
