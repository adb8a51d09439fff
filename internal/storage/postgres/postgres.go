// Package postgres implements the catalog repositories on PostgreSQL.
package postgres

import (
	"context"
	"fmt"
	"net"

	"github.com/go-faster/errors"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/catalog-service/db"
	"github.com/xenking/catalog-service/internal/domain/uow"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx so every repository
// can run inside or outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// NewPool creates a pgxpool.Pool configured with shopspring/decimal support
// for NUMERIC columns.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	return pool, nil
}

// RunMigrations executes the embedded DDL schema against the pool.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, db.Schema); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// NewRepositories binds every repository to db.
func NewRepositories(db DBTX) uow.Repositories {
	return uow.Repositories{
		Products:   NewProductRepository(db),
		Prices:     NewPriceRepository(db),
		Brands:     NewBrandRepository(db),
		Promos:     NewPromoRepository(db),
		PromoTypes: NewPromoTypeRepository(db),
		Visibility: NewVisibilityStore(db),
	}
}

var _ uow.UnitOfWork = (*TxManager)(nil)

// TxManager runs units of work in pool transactions.
type TxManager struct {
	pool *pgxpool.Pool
}

// NewTxManager returns a TxManager that uses the given pool.
func NewTxManager(pool *pgxpool.Pool) *TxManager {
	return &TxManager{pool: pool}
}

// Do begins a transaction, hands fn repositories bound to it and commits
// when fn succeeds.
func (m *TxManager) Do(ctx context.Context, fn func(ctx context.Context, r uow.Repositories) error) error {
	return pgx.BeginFunc(ctx, m.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewRepositories(tx))
	})
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// IsTransient reports whether err comes from infrastructure that may
// recover on retry: unreachable server, timeouts, lost connections,
// serialization failures and deadlocks.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return true
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "40001", pgErr.Code == "40P01":
			return true
		case len(pgErr.Code) == 5 && (pgErr.Code[:2] == "08" || pgErr.Code[:2] == "53" || pgErr.Code[:3] == "57P"):
			return true
		}
		return false
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
