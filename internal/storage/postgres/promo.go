package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/catalog-service/internal/domain/promo"
)

const promoColumns = `p.id, p.tenant_id, p.name, p.start_date, p.end_date, p.threshold_quantity,
	p.promo_percent, p.gift_quantity, p.is_active, t.type_id, t.code, t.name, p.products,
	p.gift_products, p.tradeshops, COALESCE(p.external_system_id, ''), COALESCE(p.external_promo_id, ''),
	p.third_party, p.created_at`

const (
	createPromoSQL = `INSERT INTO promos (
		id, tenant_id, name, start_date, end_date, threshold_quantity, promo_percent, gift_quantity,
		is_active, promo_type_id, products, gift_products, tradeshops, external_system_id,
		external_promo_id, third_party
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	ON CONFLICT (tenant_id, external_system_id, external_promo_id) WHERE external_promo_id IS NOT NULL
	DO NOTHING
	RETURNING created_at`

	promoFromSQL = ` FROM promos p JOIN promo_types t ON t.type_id = p.promo_type_id`

	getPromoByIDSQL = `SELECT ` + promoColumns + promoFromSQL + ` WHERE p.id = $1`

	findPromoByExternalRefSQL = `SELECT ` + promoColumns + promoFromSQL + `
		WHERE p.tenant_id = $1 AND p.external_system_id = $2 AND p.external_promo_id = $3`

	updatePromoSQL = `UPDATE promos SET
		name = $2, start_date = $3, end_date = $4, threshold_quantity = $5, promo_percent = $6,
		gift_quantity = $7, is_active = $8, products = $9, gift_products = $10, tradeshops = $11,
		updated_at = now()
	WHERE id = $1`

	listPromosByProductSQL = `SELECT ` + promoColumns + promoFromSQL + `
		WHERE p.tenant_id = $1 AND p.products @> ARRAY[$2::text] ORDER BY p.seq`

	listPromosByProductsSQL = `SELECT ` + promoColumns + promoFromSQL + `
		WHERE p.tenant_id = $1 AND p.products && $2::text[] ORDER BY p.seq`

	findPromoTypeByCodeSQL = `SELECT type_id, code, name FROM promo_types WHERE code = $1`
)

var _ promo.Repository = (*PromoRepository)(nil)

// PromoRepository implements promo.Repository backed by PostgreSQL. Lists
// are returned in creation order.
type PromoRepository struct {
	db DBTX
}

// NewPromoRepository returns a PromoRepository that uses db.
func NewPromoRepository(db DBTX) *PromoRepository {
	return &PromoRepository{db: db}
}

// Create inserts p. A promo with the same upstream identity yields
// promo.ErrDuplicate.
func (r *PromoRepository) Create(ctx context.Context, p *promo.Promo) error {
	var systemID, promoID *string
	if p.External != nil {
		systemID = nullable(p.External.ExternalSystemID)
		promoID = nullable(p.External.ExternalPromoID)
	}
	thirdParty := []byte(p.ThirdParty)
	if len(thirdParty) == 0 {
		thirdParty = []byte("{}")
	}

	err := r.db.QueryRow(ctx, createPromoSQL,
		p.ID, p.TenantID, p.Name, p.StartDate, p.EndDate, p.ThresholdQuantity, p.PromoPercent,
		p.GiftQuantity, p.IsActive, p.Type.ID, nonNil(p.Products), nonNil(p.GiftProducts),
		nonNil(p.Tradeshops), systemID, promoID, thirdParty,
	).Scan(&p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isUniqueViolation(err) {
			return promo.ErrDuplicate
		}
		return fmt.Errorf("creating promo %q: %w", p.ID, err)
	}
	return nil
}

func (r *PromoRepository) GetByID(ctx context.Context, id string) (*promo.Promo, error) {
	return r.one(ctx, getPromoByIDSQL, id)
}

func (r *PromoRepository) FindByExternalRef(ctx context.Context, ref promo.ExternalRef) (*promo.Promo, error) {
	return r.one(ctx, findPromoByExternalRefSQL, ref.TenantID, ref.ExternalSystemID, ref.ExternalPromoID)
}

func (r *PromoRepository) one(ctx context.Context, sql string, args ...any) (*promo.Promo, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("getting promo: %w", err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanPromo)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promo.ErrNotFound
		}
		return nil, fmt.Errorf("getting promo: %w", err)
	}
	return &p, nil
}

func (r *PromoRepository) Update(ctx context.Context, p *promo.Promo) error {
	tag, err := r.db.Exec(ctx, updatePromoSQL,
		p.ID, p.Name, p.StartDate, p.EndDate, p.ThresholdQuantity, p.PromoPercent, p.GiftQuantity,
		p.IsActive, nonNil(p.Products), nonNil(p.GiftProducts), nonNil(p.Tradeshops),
	)
	if err != nil {
		return fmt.Errorf("updating promo %q: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return promo.ErrNotFound
	}
	return nil
}

func (r *PromoRepository) ListByProduct(ctx context.Context, tenantID, productID string) ([]promo.Promo, error) {
	rows, err := r.db.Query(ctx, listPromosByProductSQL, tenantID, productID)
	if err != nil {
		return nil, fmt.Errorf("listing promos of %q: %w", productID, err)
	}
	return pgx.CollectRows(rows, scanPromo)
}

func (r *PromoRepository) ListByProducts(ctx context.Context, tenantID string, productIDs []string) ([]promo.Promo, error) {
	rows, err := r.db.Query(ctx, listPromosByProductsSQL, tenantID, productIDs)
	if err != nil {
		return nil, fmt.Errorf("listing promos: %w", err)
	}
	return pgx.CollectRows(rows, scanPromo)
}

func scanPromo(row pgx.CollectableRow) (promo.Promo, error) {
	var (
		p               promo.Promo
		systemID, extID string
		thirdParty      []byte
	)
	err := row.Scan(
		&p.ID, &p.TenantID, &p.Name, &p.StartDate, &p.EndDate, &p.ThresholdQuantity,
		&p.PromoPercent, &p.GiftQuantity, &p.IsActive, &p.Type.ID, &p.Type.Code, &p.Type.Name,
		&p.Products, &p.GiftProducts, &p.Tradeshops, &systemID, &extID, &thirdParty, &p.CreatedAt,
	)
	if err != nil {
		return p, err
	}
	if extID != "" {
		p.External = &promo.ExternalRef{
			TenantID:         p.TenantID,
			ExternalSystemID: systemID,
			ExternalPromoID:  extID,
		}
	}
	p.ThirdParty = thirdParty
	return p, nil
}

var _ promo.TypeRepository = (*PromoTypeRepository)(nil)

// PromoTypeRepository reads the promo type reference table.
type PromoTypeRepository struct {
	db DBTX
}

// NewPromoTypeRepository returns a PromoTypeRepository that uses db.
func NewPromoTypeRepository(db DBTX) *PromoTypeRepository {
	return &PromoTypeRepository{db: db}
}

// FindByCode returns promo.ErrUnknownPromoType when code is not seeded.
func (r *PromoTypeRepository) FindByCode(ctx context.Context, code string) (*promo.Type, error) {
	var t promo.Type
	err := r.db.QueryRow(ctx, findPromoTypeByCodeSQL, code).Scan(&t.ID, &t.Code, &t.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promo.ErrUnknownPromoType
		}
		return nil, fmt.Errorf("finding promo type %q: %w", code, err)
	}
	return &t, nil
}
