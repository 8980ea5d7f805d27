package invoice

import (
	"context"
	"fmt"
	"sync"

	"github.com/sitekart/sitekart/internal/order"
	"github.com/sitekart/sitekart/internal/pricing"
	"github.com/sitekart/sitekart/internal/shared"
)

type memoryRepo struct {
	mu     sync.Mutex
	rows   map[int64]Invoice
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{rows: map[int64]Invoice{}}
}

func cloneInvoice(inv Invoice) Invoice {
	inv.Items = pricing.CloneItems(inv.Items)
	inv.GSTBreakdown = append(pricing.Breakdown(nil), inv.GSTBreakdown...)
	if inv.PaidAt != nil {
		at := *inv.PaidAt
		inv.PaidAt = &at
	}
	return inv
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := make(map[int64]Invoice, len(m.rows))
	for id, inv := range m.rows {
		snapshot[id] = inv
	}
	nextID := m.nextID
	if err := fn(ctx, &memoryTx{m: m}); err != nil {
		m.rows, m.nextID = snapshot, nextID
		return err
	}
	return nil
}

func (m *memoryRepo) Get(_ context.Context, id int64) (Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.rows[id]
	if !ok {
		return Invoice{}, fmt.Errorf("invoice %d: %w", id, shared.ErrNotFound)
	}
	return cloneInvoice(inv), nil
}

func (m *memoryRepo) GetByOrder(_ context.Context, orderID int64) (Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range m.rows {
		if inv.OrderID == orderID {
			return cloneInvoice(inv), nil
		}
	}
	return Invoice{}, fmt.Errorf("invoice for order %d: %w", orderID, shared.ErrNotFound)
}

func (m *memoryRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type memoryTx struct {
	m *memoryRepo
}

func (t *memoryTx) Insert(_ context.Context, inv *Invoice) error {
	for _, row := range t.m.rows {
		if row.OrderID == inv.OrderID {
			return fmt.Errorf("order %d: %w", inv.OrderID, shared.ErrDuplicateInvoice)
		}
	}
	t.m.nextID++
	inv.ID = t.m.nextID
	inv.Revision = 1
	t.m.rows[inv.ID] = cloneInvoice(*inv)
	return nil
}

func (t *memoryTx) MarkPaid(_ context.Context, inv *Invoice, expectedRevision int64) error {
	row, ok := t.m.rows[inv.ID]
	if !ok || row.PaymentStatus != PaymentPending || row.Revision != expectedRevision {
		return fmt.Errorf("invoice %d: %w", inv.ID, shared.ErrConcurrentModification)
	}
	row.PaymentStatus = PaymentPaid
	row.TransactionID = inv.TransactionID
	row.PaidAt = inv.PaidAt
	row.UpdatedAt = inv.UpdatedAt
	row.Revision = expectedRevision + 1
	inv.Revision = row.Revision
	t.m.rows[inv.ID] = cloneInvoice(row)
	return nil
}

type orderStore map[int64]order.Order

func (s orderStore) Get(_ context.Context, id int64) (order.Order, error) {
	o, ok := s[id]
	if !ok {
		return order.Order{}, fmt.Errorf("order %d: %w", id, shared.ErrNotFound)
	}
	return o, nil
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

type memoryKeys struct {
	mu   sync.Mutex
	keys map[string]string
}

func newMemoryKeys() *memoryKeys {
	return &memoryKeys{keys: map[string]string{}}
}

func (k *memoryKeys) CheckAndInsert(_ context.Context, key, module string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.keys[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	k.keys[key] = module
	return nil
}

func (k *memoryKeys) Delete(_ context.Context, key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.keys, key)
	return nil
}

func (k *memoryKeys) has(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	_, ok := k.keys[key]
	return ok
}

type countingMetrics struct {
	mu       sync.Mutex
	failures map[string]int
}

func (c *countingMetrics) IncReconciliationFailure(document string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failures == nil {
		c.failures = map[string]int{}
	}
	c.failures[document]++
}

func (c *countingMetrics) count(document string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failures[document]
}
