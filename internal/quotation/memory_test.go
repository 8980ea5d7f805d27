package quotation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sitekart/sitekart/internal/catalog"
	"github.com/sitekart/sitekart/internal/pricing"
	"github.com/sitekart/sitekart/internal/shared"
)

type memoryRepo struct {
	mu     sync.Mutex
	rows   map[int64]Quotation
	nextID int64

	// pending Get calls held until all of them have read.
	readers  int
	released chan struct{}
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{rows: map[int64]Quotation{}}
}

func cloneQuotation(q Quotation) Quotation {
	q.Items = pricing.CloneItems(q.Items)
	q.GSTBreakdown = append(pricing.Breakdown(nil), q.GSTBreakdown...)
	return q
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := make(map[int64]Quotation, len(m.rows))
	for id, q := range m.rows {
		snapshot[id] = q
	}
	nextID := m.nextID
	if err := fn(ctx, &memoryTx{m: m}); err != nil {
		m.rows = snapshot
		m.nextID = nextID
		return err
	}
	return nil
}

func (m *memoryRepo) Get(_ context.Context, id int64) (Quotation, error) {
	m.mu.Lock()
	var wait chan struct{}
	if m.readers > 0 {
		m.readers--
		wait = m.released
		if m.readers == 0 {
			close(m.released)
		}
	}
	q, ok := m.rows[id]
	if ok {
		q = cloneQuotation(q)
	}
	m.mu.Unlock()
	if wait != nil {
		<-wait
	}
	if !ok {
		return Quotation{}, fmt.Errorf("quotation %d: %w", id, shared.ErrNotFound)
	}
	return q, nil
}

// holdReads makes the next n Get calls return together, so concurrent
// writers all start from the same revision.
func (m *memoryRepo) holdReads(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readers = n
	m.released = make(chan struct{})
}

func (m *memoryRepo) ActiveForProject(_ context.Context, projectID int64) (Quotation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, q := range m.rows {
		if q.ProjectID == projectID && q.Status.Active() {
			return cloneQuotation(q), nil
		}
	}
	return Quotation{}, fmt.Errorf("active quotation for project %d: %w", projectID, shared.ErrNotFound)
}

func (m *memoryRepo) ListByProject(_ context.Context, projectID int64) ([]Quotation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Quotation
	for _, q := range m.rows {
		if q.ProjectID == projectID {
			out = append(out, cloneQuotation(q))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memoryRepo) ListExpirable(_ context.Context, now time.Time, limit int) ([]Quotation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Quotation
	for _, q := range m.rows {
		if (q.Status == StatusSent || q.Status == StatusViewed) && q.ValidUntil.Before(now) {
			out = append(out, cloneQuotation(q))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// set overwrites a stored row, bypassing the conditional write.
func (m *memoryRepo) set(q Quotation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[q.ID] = cloneQuotation(q)
}

type memoryTx struct {
	m *memoryRepo
}

func (t *memoryTx) Insert(_ context.Context, q *Quotation) error {
	for _, row := range t.m.rows {
		if q.Status.Active() && row.ProjectID == q.ProjectID && row.Status.Active() {
			return fmt.Errorf("project %d: %w", q.ProjectID, shared.ErrDuplicateActive)
		}
		if row.QuotationNumber == q.QuotationNumber && row.Version == q.Version {
			return fmt.Errorf("quotation %s v%d: %w", q.QuotationNumber, q.Version, shared.ErrConcurrentModification)
		}
	}
	t.m.nextID++
	q.ID = t.m.nextID
	q.Revision = 1
	t.m.rows[q.ID] = cloneQuotation(*q)
	return nil
}

func (t *memoryTx) Update(_ context.Context, q *Quotation, expectedStatus Status, expectedRevision int64) error {
	row, ok := t.m.rows[q.ID]
	if !ok || row.Status != expectedStatus || row.Revision != expectedRevision {
		return fmt.Errorf("quotation %d: %w", q.ID, shared.ErrConcurrentModification)
	}
	q.Revision = expectedRevision + 1
	t.m.rows[q.ID] = cloneQuotation(*q)
	return nil
}

type fakeCatalog struct {
	projects map[int64]catalog.Project
	defaults map[int64]catalog.LineDefaults
}

func (c *fakeCatalog) Project(_ context.Context, id int64) (catalog.Project, error) {
	p, ok := c.projects[id]
	if !ok {
		return catalog.Project{}, fmt.Errorf("project %d: %w", id, shared.ErrNotFound)
	}
	return p, nil
}

func (c *fakeCatalog) LineDefaults(_ context.Context, materialID int64) (catalog.LineDefaults, error) {
	d, ok := c.defaults[materialID]
	if !ok {
		return catalog.LineDefaults{}, fmt.Errorf("material %d: %w", materialID, shared.ErrNotFound)
	}
	return d, nil
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

type recordingAudit struct {
	mu      sync.Mutex
	actions []string
}

func (a *recordingAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, log.Action)
	return nil
}

type countingMetrics struct {
	mu          sync.Mutex
	transitions map[string]int
}

func (c *countingMetrics) ObserveTransition(entity, from, to string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transitions == nil {
		c.transitions = map[string]int{}
	}
	c.transitions[entity+":"+from+"->"+to]++
}
