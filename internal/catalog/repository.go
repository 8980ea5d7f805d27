package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sitekart/sitekart/internal/platform/db"
	"github.com/sitekart/sitekart/internal/shared"
)

// Repository reads and writes catalog tables.
type Repository struct {
	pool db.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool db.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListRates returns every configured GST rate.
func (r *Repository) ListRates(ctx context.Context) ([]GSTRate, error) {
	rows, err := r.pool.Query(ctx, `SELECT material_category, hsn_code, cgst, sgst, igst, updated_by, updated_at
FROM gst_rates ORDER BY material_category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var rates []GSTRate
	for rows.Next() {
		var rate GSTRate
		if err := rows.Scan(&rate.MaterialCategory, &rate.HSNCode, &rate.CGST, &rate.SGST, &rate.IGST, &rate.UpdatedBy, &rate.UpdatedAt); err != nil {
			return nil, err
		}
		rates = append(rates, rate)
	}
	return rates, rows.Err()
}

// UpsertRate inserts or replaces the rate of a category.
func (r *Repository) UpsertRate(ctx context.Context, rate GSTRate) (GSTRate, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO gst_rates (material_category, hsn_code, cgst, sgst, igst, updated_by, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (material_category) DO UPDATE
SET hsn_code = EXCLUDED.hsn_code, cgst = EXCLUDED.cgst, sgst = EXCLUDED.sgst, igst = EXCLUDED.igst,
    updated_by = EXCLUDED.updated_by, updated_at = EXCLUDED.updated_at
RETURNING updated_at`,
		rate.MaterialCategory, rate.HSNCode, rate.CGST, rate.SGST, rate.IGST, rate.UpdatedBy, rate.UpdatedAt,
	).Scan(&rate.UpdatedAt)
	if err != nil {
		return GSTRate{}, fmt.Errorf("upsert gst rate: %w", err)
	}
	return rate, nil
}

// GetMaterial loads one catalog material.
func (r *Repository) GetMaterial(ctx context.Context, id int64) (Material, error) {
	var m Material
	err := r.pool.QueryRow(ctx, `SELECT id, seller_id, name, category, unit, price_per_unit, gst_rate
FROM materials WHERE id = $1`, id).Scan(&m.ID, &m.SellerID, &m.Name, &m.Category, &m.Unit, &m.PricePerUnit, &m.GSTRate)
	if errors.Is(err, pgx.ErrNoRows) {
		return Material{}, fmt.Errorf("material %d: %w", id, shared.ErrNotFound)
	}
	return m, err
}

// GetProject loads a project with its material selections.
func (r *Repository) GetProject(ctx context.Context, id int64) (Project, error) {
	var p Project
	err := r.pool.QueryRow(ctx, `SELECT id, customer_id, name FROM projects WHERE id = $1`, id).Scan(&p.ID, &p.CustomerID, &p.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return Project{}, fmt.Errorf("project %d: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return Project{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT pm.material_id, m.name, m.category, pm.quantity, pm.unit, pm.price_per_unit, pm.gst_rate
FROM project_materials pm
JOIN materials m ON m.id = pm.material_id
WHERE pm.project_id = $1
ORDER BY pm.id`, id)
	if err != nil {
		return Project{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var pm ProjectMaterial
		if err := rows.Scan(&pm.MaterialID, &pm.MaterialName, &pm.Category, &pm.Quantity, &pm.Unit, &pm.PricePerUnit, &pm.GSTRate); err != nil {
			return Project{}, err
		}
		p.Materials = append(p.Materials, pm)
	}
	return p, rows.Err()
}
