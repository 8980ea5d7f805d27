package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/sitekart/sitekart/internal/shared"
)

type memoryCatalogRepo struct {
	mu        sync.Mutex
	rates     map[string]GSTRate
	materials map[int64]Material
	projects  map[int64]Project
	listCalls int
	listErr   error
}

func newMemoryCatalogRepo() *memoryCatalogRepo {
	return &memoryCatalogRepo{
		rates:     map[string]GSTRate{},
		materials: map[int64]Material{},
		projects:  map[int64]Project{},
	}
}

func (m *memoryCatalogRepo) ListRates(context.Context) ([]GSTRate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]GSTRate, 0, len(m.rates))
	for _, r := range m.rates {
		out = append(out, r)
	}
	return out, nil
}

func (m *memoryCatalogRepo) UpsertRate(_ context.Context, rate GSTRate) (GSTRate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rates[rate.MaterialCategory] = rate
	return rate, nil
}

func (m *memoryCatalogRepo) GetMaterial(_ context.Context, id int64) (Material, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mat, ok := m.materials[id]
	if !ok {
		return Material{}, fmt.Errorf("material %d: %w", id, shared.ErrNotFound)
	}
	return mat, nil
}

func (m *memoryCatalogRepo) GetProject(_ context.Context, id int64) (Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[id]
	if !ok {
		return Project{}, fmt.Errorf("project %d: %w", id, shared.ErrNotFound)
	}
	return p, nil
}

func (m *memoryCatalogRepo) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listCalls
}

type recordingAudit struct {
	mu   sync.Mutex
	logs []shared.AuditLog
	err  error
}

func (a *recordingAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.logs = append(a.logs, log)
	return nil
}
