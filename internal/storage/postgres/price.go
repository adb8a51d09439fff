package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/catalog-service/internal/domain/price"
)

const (
	tierColumns = `id, product_id, type, level, entity_references, price, cost`

	createTierSQL = `INSERT INTO price_tiers (id, product_id, type, level, entity_references, price, cost)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	getTierByIDSQL = `SELECT ` + tierColumns + ` FROM price_tiers WHERE id = $1`

	listTiersByProductSQL = `SELECT ` + tierColumns + ` FROM price_tiers WHERE product_id = $1 ORDER BY seq`

	listTiersByProductsSQL = `SELECT ` + tierColumns + ` FROM price_tiers WHERE product_id = ANY($1) ORDER BY seq`
)

var _ price.Repository = (*PriceRepository)(nil)

// PriceRepository implements price.Repository backed by PostgreSQL. Tiers
// are listed in insertion order.
type PriceRepository struct {
	db DBTX
}

// NewPriceRepository returns a PriceRepository that uses db.
func NewPriceRepository(db DBTX) *PriceRepository {
	return &PriceRepository{db: db}
}

func (r *PriceRepository) Create(ctx context.Context, t *price.Tier) error {
	_, err := r.db.Exec(ctx, createTierSQL,
		t.ID, t.ProductID, string(t.Type), t.Level, nonNil(t.EntityReferences), t.Prices.Price, t.Prices.Cost)
	if err != nil {
		return fmt.Errorf("creating price tier %q: %w", t.ID, err)
	}
	return nil
}

func (r *PriceRepository) GetByID(ctx context.Context, id string) (*price.Tier, error) {
	rows, err := r.db.Query(ctx, getTierByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting price tier %q: %w", id, err)
	}
	t, err := pgx.CollectExactlyOneRow(rows, scanTier)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, price.ErrNotFound
		}
		return nil, fmt.Errorf("getting price tier %q: %w", id, err)
	}
	return &t, nil
}

func (r *PriceRepository) ListByProduct(ctx context.Context, productID string) ([]price.Tier, error) {
	rows, err := r.db.Query(ctx, listTiersByProductSQL, productID)
	if err != nil {
		return nil, fmt.Errorf("listing price tiers of %q: %w", productID, err)
	}
	return pgx.CollectRows(rows, scanTier)
}

func (r *PriceRepository) ListByProducts(ctx context.Context, productIDs []string) (map[string][]price.Tier, error) {
	rows, err := r.db.Query(ctx, listTiersByProductsSQL, productIDs)
	if err != nil {
		return nil, fmt.Errorf("listing price tiers: %w", err)
	}
	tiers, err := pgx.CollectRows(rows, scanTier)
	if err != nil {
		return nil, fmt.Errorf("listing price tiers: %w", err)
	}

	out := make(map[string][]price.Tier, len(productIDs))
	for _, t := range tiers {
		out[t.ProductID] = append(out[t.ProductID], t)
	}
	return out, nil
}

func scanTier(row pgx.CollectableRow) (price.Tier, error) {
	var (
		t   price.Tier
		typ string
	)
	err := row.Scan(&t.ID, &t.ProductID, &typ, &t.Level, &t.EntityReferences, &t.Prices.Price, &t.Prices.Cost)
	t.Type = price.TierType(typ)
	return t, err
}
