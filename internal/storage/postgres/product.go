package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/catalog-service/internal/domain/product"
)

const productColumns = `p.id, p.tenant_id, p.name, p.slug, COALESCE(p.bar_code, ''),
	COALESCE(p.vendor_id, ''), COALESCE(p.brand_id, ''), COALESCE(p.category_id, ''),
	COALESCE(p.inventory_id, ''), p.description, p.images, p.attributes, p.price_tier_ids,
	p.in_case, p.is_active, p.priority, p.created_at, p.updated_at`

const (
	createProductSQL = `INSERT INTO products (
		id, tenant_id, name, slug, bar_code, vendor_id, brand_id, category_id, inventory_id,
		description, images, attributes, price_tier_ids, in_case, is_active, priority
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	ON CONFLICT (tenant_id, bar_code) WHERE bar_code IS NOT NULL DO NOTHING
	RETURNING created_at, updated_at`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products p WHERE p.id = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products p WHERE p.id = ANY($1)`

	findProductByExternalRefSQL = `SELECT ` + productColumns + `
		FROM products p
		JOIN product_external_refs r ON r.product_id = p.id
		WHERE r.tenant_id = $1 AND r.external_system_id = $2 AND r.external_product_id = $3
		FOR UPDATE OF p`

	addExternalRefSQL = `INSERT INTO product_external_refs (
		tenant_id, external_system_id, external_product_id, product_id, metadata
	) VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT DO NOTHING`

	externalIDsSQL = `SELECT product_id, external_product_id FROM product_external_refs
		WHERE external_system_id = $1 AND product_id = ANY($2)`

	existingBarCodesSQL = `SELECT bar_code FROM products WHERE tenant_id = $1 AND bar_code = ANY($2)`

	appendPriceTierSQL = `UPDATE products
		SET price_tier_ids = array_append(price_tier_ids, $2), updated_at = now()
		WHERE id = $1`

	updateProductSQL = `UPDATE products SET
		name = $2, slug = $3, bar_code = $4, vendor_id = $5, brand_id = $6, category_id = $7,
		inventory_id = $8, description = $9, images = $10, attributes = $11, in_case = $12,
		is_active = $13, priority = $14, updated_at = now()
	WHERE id = $1`

	setProductActiveSQL = `UPDATE products SET is_active = $3, updated_at = now()
		WHERE tenant_id = $1 AND id = $2`

	setProductInventorySQL = `UPDATE products SET inventory_id = $2, updated_at = now() WHERE id = $1`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	db DBTX
}

// NewProductRepository returns a ProductRepository that uses db.
func NewProductRepository(db DBTX) *ProductRepository {
	return &ProductRepository{db: db}
}

// Create inserts p. A barcode already used within the tenant yields
// product.ErrDuplicate.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	attrs, err := marshalAttributes(p.Attributes)
	if err != nil {
		return err
	}

	err = r.db.QueryRow(ctx, createProductSQL,
		p.ID, p.TenantID, p.Name, p.Slug, nullable(p.BarCode), nullable(p.VendorID),
		nullable(p.BrandID), nullable(p.CategoryID), nullable(p.InventoryID),
		p.Description, nonNil(p.Images), attrs, nonNil(p.PriceTierIDs), p.InCase, p.IsActive, p.Priority,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isUniqueViolation(err) {
			return product.ErrDuplicate
		}
		return fmt.Errorf("creating product %q: %w", p.ID, err)
	}
	return nil
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.db.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.db.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// FindByExternalRef returns the product correlated with ref and locks it.
func (r *ProductRepository) FindByExternalRef(ctx context.Context, ref product.ExternalRef) (*product.Product, error) {
	rows, err := r.db.Query(ctx, findProductByExternalRefSQL, ref.TenantID, ref.ExternalSystemID, ref.ExternalProductID)
	if err != nil {
		return nil, fmt.Errorf("finding product by external ref: %w", err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("finding product by external ref: %w", err)
	}
	return &p, nil
}

// AddExternalRef records ref for productID. An existing correlation yields
// product.ErrDuplicate.
func (r *ProductRepository) AddExternalRef(ctx context.Context, productID string, ref product.ExternalRef) error {
	meta := ref.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshaling external ref metadata: %w", err)
	}

	tag, err := r.db.Exec(ctx, addExternalRefSQL,
		ref.TenantID, ref.ExternalSystemID, ref.ExternalProductID, productID, metaJSON)
	if err != nil {
		return fmt.Errorf("adding external ref for %q: %w", productID, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrDuplicate
	}
	return nil
}

// ExternalIDs maps product IDs to their external product IDs in
// externalSystemID. Products without a correlation are absent.
func (r *ProductRepository) ExternalIDs(ctx context.Context, externalSystemID string, productIDs []string) (map[string]string, error) {
	rows, err := r.db.Query(ctx, externalIDsSQL, externalSystemID, productIDs)
	if err != nil {
		return nil, fmt.Errorf("listing external ids: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string, len(productIDs))
	for rows.Next() {
		var productID, externalID string
		if err := rows.Scan(&productID, &externalID); err != nil {
			return nil, fmt.Errorf("scanning external id: %w", err)
		}
		out[productID] = externalID
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing external ids: %w", err)
	}
	return out, nil
}

// ExistingBarCodes returns the subset of barCodes already used in tenantID.
func (r *ProductRepository) ExistingBarCodes(ctx context.Context, tenantID string, barCodes []string) ([]string, error) {
	rows, err := r.db.Query(ctx, existingBarCodesSQL, tenantID, barCodes)
	if err != nil {
		return nil, fmt.Errorf("checking barcodes: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// AppendPriceTier appends tierID to the product's tier references.
func (r *ProductRepository) AppendPriceTier(ctx context.Context, productID, tierID string) error {
	tag, err := r.db.Exec(ctx, appendPriceTierSQL, productID, tierID)
	if err != nil {
		return fmt.Errorf("appending price tier to %q: %w", productID, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// Update writes the mutable fields of p.
func (r *ProductRepository) Update(ctx context.Context, p *product.Product) error {
	attrs, err := marshalAttributes(p.Attributes)
	if err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx, updateProductSQL,
		p.ID, p.Name, p.Slug, nullable(p.BarCode), nullable(p.VendorID), nullable(p.BrandID),
		nullable(p.CategoryID), nullable(p.InventoryID), p.Description, nonNil(p.Images), attrs,
		p.InCase, p.IsActive, p.Priority,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return product.ErrDuplicate
		}
		return fmt.Errorf("updating product %q: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// SetActive flips the active flag of a tenant's product.
func (r *ProductRepository) SetActive(ctx context.Context, tenantID, id string, active bool) error {
	tag, err := r.db.Exec(ctx, setProductActiveSQL, tenantID, id, active)
	if err != nil {
		return fmt.Errorf("setting product %q active=%t: %w", id, active, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// SetInventory links the product to an inventory record.
func (r *ProductRepository) SetInventory(ctx context.Context, id, inventoryID string) error {
	tag, err := r.db.Exec(ctx, setProductInventorySQL, id, inventoryID)
	if err != nil {
		return fmt.Errorf("setting inventory of %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// List returns one page of products matching f and the total match count.
func (r *ProductRepository) List(ctx context.Context, f product.Filter) ([]product.Product, int, error) {
	where, args := buildProductFilter(f)

	var total int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM products p`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting products: %w", err)
	}

	query := `SELECT ` + productColumns + ` FROM products p` + where + ` ORDER BY ` + productOrder(f.Sort)
	if f.Limit > 0 {
		args = append(args, f.Limit, f.Offset)
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing products: %w", err)
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, 0, fmt.Errorf("listing products: %w", err)
	}
	return products, total, nil
}

func buildProductFilter(f product.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.TenantID != "" {
		add("p.tenant_id = $%d", f.TenantID)
	}
	if f.IDs != nil {
		add("p.id = ANY($%d)", f.IDs)
	}
	if f.Name != "" {
		add("(p.name ILIKE $%[1]d OR p.slug ILIKE $%[1]d)", "%"+f.Name+"%")
	}
	if f.BarCode != "" {
		add("p.bar_code = $%d", f.BarCode)
	}
	if f.VendorID != "" {
		add("p.vendor_id = $%d", f.VendorID)
	}
	if len(f.BrandIDs) > 0 {
		add("p.brand_id = ANY($%d)", f.BrandIDs)
	}
	if len(f.CategoryIDs) > 0 {
		add("p.category_id = ANY($%d)", f.CategoryIDs)
	}
	if len(f.AttributeValues) > 0 {
		add("EXISTS (SELECT 1 FROM jsonb_array_elements(p.attributes) a WHERE a->>'value' = ANY($%d))", f.AttributeValues)
	}
	if f.InCase != nil {
		add("p.in_case = $%d", *f.InCase)
	}
	if f.OnlyActive {
		conds = append(conds, "p.is_active")
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func productOrder(s product.Sort) string {
	switch s {
	case product.SortNewest:
		return "p.created_at DESC, p.id"
	case product.SortNameAsc:
		return "p.name, p.id"
	case product.SortUpdatedAt:
		return "p.updated_at DESC, p.id"
	default:
		return "p.priority DESC, p.created_at DESC, p.id"
	}
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p     product.Product
		attrs []byte
	)
	err := row.Scan(
		&p.ID, &p.TenantID, &p.Name, &p.Slug, &p.BarCode,
		&p.VendorID, &p.BrandID, &p.CategoryID,
		&p.InventoryID, &p.Description, &p.Images, &attrs, &p.PriceTierIDs,
		&p.InCase, &p.IsActive, &p.Priority, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return p, err
	}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &p.Attributes); err != nil {
			return p, fmt.Errorf("decoding attributes of %q: %w", p.ID, err)
		}
	}
	return p, nil
}

func marshalAttributes(attrs []product.Attribute) ([]byte, error) {
	if attrs == nil {
		attrs = []product.Attribute{}
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("marshaling attributes: %w", err)
	}
	return b, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
