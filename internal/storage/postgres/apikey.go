package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/catalog-service/internal/domain/auth"
)

const (
	findAPIKeyByHashSQL = `SELECT id, key_hash, name, scopes FROM api_keys WHERE key_hash = $1 AND active`

	upsertAPIKeySQL = `INSERT INTO api_keys (id, key_hash, name, scopes) VALUES ($1, $2, $3, $4)
		ON CONFLICT (key_hash) DO UPDATE SET name = EXCLUDED.name, scopes = EXCLUDED.scopes, active = TRUE`
)

var _ auth.Repository = (*APIKeyRepository)(nil)

// APIKeyRepository provides API key lookups backed by PostgreSQL.
type APIKeyRepository struct {
	db DBTX
}

// NewAPIKeyRepository returns an APIKeyRepository that uses db.
func NewAPIKeyRepository(db DBTX) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// FindByHash looks up an active API key by its HMAC-SHA256 hash.
func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*auth.APIKeyInfo, error) {
	var info auth.APIKeyInfo
	err := r.db.QueryRow(ctx, findAPIKeyByHashSQL, hash).Scan(&info.ID, &info.KeyHash, &info.Name, &info.Scopes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, fmt.Errorf("finding api key by hash: %w", err)
	}
	return &info, nil
}

// Upsert stores an API key, reactivating it when the hash already exists.
func (r *APIKeyRepository) Upsert(ctx context.Context, info auth.APIKeyInfo) error {
	if _, err := r.db.Exec(ctx, upsertAPIKeySQL, info.ID, info.KeyHash, info.Name, nonNil(info.Scopes)); err != nil {
		return fmt.Errorf("upserting api key %q: %w", info.Name, err)
	}
	return nil
}
