package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/xenking/catalog-service/internal/domain/visibility"
)

const (
	// Union keeps first-seen order of merchant IDs.
	addMerchantsSQL = `INSERT INTO product_active_merchants (product_id, tenant_id, type, level, entity_references)
		VALUES ($1, $2, $3, $4, $5::text[])
		ON CONFLICT (product_id, tenant_id) DO UPDATE SET
			entity_references = ARRAY(
				SELECT ref
				FROM unnest(product_active_merchants.entity_references || EXCLUDED.entity_references)
					WITH ORDINALITY AS t(ref, ord)
				GROUP BY ref
				ORDER BY min(ord)
			),
			updated_at = now()`

	// Never inserts; rows without any of the merchants are left alone.
	removeMerchantsSQL = `UPDATE product_active_merchants SET
			entity_references = ARRAY(
				SELECT ref
				FROM unnest(entity_references) WITH ORDINALITY AS t(ref, ord)
				WHERE ref <> ALL ($3::text[])
				ORDER BY ord
			),
			updated_at = now()
		WHERE product_id = $1 AND tenant_id = $2 AND entity_references && $3::text[]`

	listVisibleProductIDsSQL = `SELECT product_id FROM product_active_merchants
		WHERE tenant_id = $1 AND entity_references @> ARRAY[$2::text]
		ORDER BY product_id`
)

var _ visibility.Store = (*VisibilityStore)(nil)

// VisibilityStore implements visibility.Store backed by PostgreSQL. Each
// call pipelines one statement per product in a single round trip.
type VisibilityStore struct {
	db DBTX
}

// NewVisibilityStore returns a VisibilityStore that uses db.
func NewVisibilityStore(db DBTX) *VisibilityStore {
	return &VisibilityStore{db: db}
}

func (s *VisibilityStore) Add(ctx context.Context, tenantID string, productIDs, merchantIDs []string) error {
	b := &pgx.Batch{}
	for _, id := range productIDs {
		b.Queue(addMerchantsSQL, id, tenantID, visibility.EntryType, visibility.EntryLevel, merchantIDs)
	}
	if err := s.db.SendBatch(ctx, b).Close(); err != nil {
		return fmt.Errorf("adding merchants to %d products: %w", len(productIDs), err)
	}
	return nil
}

func (s *VisibilityStore) Remove(ctx context.Context, tenantID string, productIDs, merchantIDs []string) error {
	b := &pgx.Batch{}
	for _, id := range productIDs {
		b.Queue(removeMerchantsSQL, id, tenantID, merchantIDs)
	}
	if err := s.db.SendBatch(ctx, b).Close(); err != nil {
		return fmt.Errorf("removing merchants from %d products: %w", len(productIDs), err)
	}
	return nil
}

func (s *VisibilityStore) ListVisibleProductIDs(ctx context.Context, tenantID, merchantID string) ([]string, error) {
	rows, err := s.db.Query(ctx, listVisibleProductIDsSQL, tenantID, merchantID)
	if err != nil {
		return nil, fmt.Errorf("listing visible products for %q: %w", merchantID, err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
