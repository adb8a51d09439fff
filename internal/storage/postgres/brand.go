package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/catalog-service/internal/domain/brand"
	"github.com/xenking/catalog-service/internal/domain/category"
)

const (
	findBrandByNameSQL = `SELECT id, tenant_id, name, slug, image, is_active
		FROM brands WHERE tenant_id = $1 AND name = $2`

	// A concurrent insert of the same name waits for the other transaction
	// and then does nothing; the caller re-reads the winner.
	createBrandSQL = `INSERT INTO brands (id, tenant_id, name, slug, image, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, name) DO NOTHING`

	getBrandsByIDsSQL = `SELECT id, tenant_id, name, slug, image, is_active FROM brands WHERE id = ANY($1)`

	getCategoriesByIDsSQL = `SELECT id, tenant_id, name, slug FROM categories WHERE id = ANY($1)`

	upsertCategorySQL = `INSERT INTO categories (id, tenant_id, name, slug) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, slug = EXCLUDED.slug`
)

var _ brand.Repository = (*BrandRepository)(nil)

// BrandRepository implements brand.Repository backed by PostgreSQL.
type BrandRepository struct {
	db DBTX
}

// NewBrandRepository returns a BrandRepository that uses db.
func NewBrandRepository(db DBTX) *BrandRepository {
	return &BrandRepository{db: db}
}

func (r *BrandRepository) FindByName(ctx context.Context, tenantID, name string) (*brand.Brand, error) {
	rows, err := r.db.Query(ctx, findBrandByNameSQL, tenantID, name)
	if err != nil {
		return nil, fmt.Errorf("finding brand %q: %w", name, err)
	}
	b, err := pgx.CollectExactlyOneRow(rows, scanBrand)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, brand.ErrNotFound
		}
		return nil, fmt.Errorf("finding brand %q: %w", name, err)
	}
	return &b, nil
}

// Create inserts b, returning brand.ErrAlreadyExists when the name is taken.
func (r *BrandRepository) Create(ctx context.Context, b *brand.Brand) error {
	tag, err := r.db.Exec(ctx, createBrandSQL, b.ID, b.TenantID, b.Name, b.Slug, b.Image, b.IsActive)
	if err != nil {
		if isUniqueViolation(err) {
			return brand.ErrAlreadyExists
		}
		return fmt.Errorf("creating brand %q: %w", b.Name, err)
	}
	if tag.RowsAffected() == 0 {
		return brand.ErrAlreadyExists
	}
	return nil
}

func (r *BrandRepository) GetByIDs(ctx context.Context, ids []string) ([]brand.Brand, error) {
	rows, err := r.db.Query(ctx, getBrandsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting brands: %w", err)
	}
	return pgx.CollectRows(rows, scanBrand)
}

func scanBrand(row pgx.CollectableRow) (brand.Brand, error) {
	var b brand.Brand
	err := row.Scan(&b.ID, &b.TenantID, &b.Name, &b.Slug, &b.Image, &b.IsActive)
	return b, err
}

var _ category.Repository = (*CategoryRepository)(nil)

// CategoryRepository implements category.Repository backed by PostgreSQL.
type CategoryRepository struct {
	db DBTX
}

// NewCategoryRepository returns a CategoryRepository that uses db.
func NewCategoryRepository(db DBTX) *CategoryRepository {
	return &CategoryRepository{db: db}
}

func (r *CategoryRepository) GetByIDs(ctx context.Context, ids []string) ([]category.Category, error) {
	rows, err := r.db.Query(ctx, getCategoriesByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting categories: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (category.Category, error) {
		var c category.Category
		err := row.Scan(&c.ID, &c.TenantID, &c.Name, &c.Slug)
		return c, err
	})
}

// Upsert stores c, replacing the name and slug of an existing category.
func (r *CategoryRepository) Upsert(ctx context.Context, c category.Category) error {
	if _, err := r.db.Exec(ctx, upsertCategorySQL, c.ID, c.TenantID, c.Name, c.Slug); err != nil {
		return fmt.Errorf("upserting category %q: %w", c.ID, err)
	}
	return nil
}
