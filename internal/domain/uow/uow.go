// Package uow defines the transactional boundary shared by catalog writers.
package uow

import (
	"context"

	"github.com/xenking/catalog-service/internal/domain/brand"
	"github.com/xenking/catalog-service/internal/domain/price"
	"github.com/xenking/catalog-service/internal/domain/product"
	"github.com/xenking/catalog-service/internal/domain/promo"
	"github.com/xenking/catalog-service/internal/domain/visibility"
)

// Repositories are bound to a single transaction.
type Repositories struct {
	Products   product.Repository
	Prices     price.Repository
	Brands     brand.Repository
	Promos     promo.Repository
	PromoTypes promo.TypeRepository
	Visibility visibility.Store
}

// UnitOfWork runs fn inside one transaction. The transaction commits when
// fn returns nil and rolls back otherwise.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, r Repositories) error) error
}
