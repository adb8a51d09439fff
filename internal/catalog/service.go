// Package catalog serves catalog reads and user-initiated writes. It
// composes price resolution, promo matching, merchant visibility and live
// distributor snapshots per tenant.
package catalog

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/catalog-service/internal/directory"
	"github.com/xenking/catalog-service/internal/distributor"
	"github.com/xenking/catalog-service/internal/domain/brand"
	"github.com/xenking/catalog-service/internal/domain/category"
	"github.com/xenking/catalog-service/internal/domain/price"
	"github.com/xenking/catalog-service/internal/domain/product"
	"github.com/xenking/catalog-service/internal/domain/promo"
	"github.com/xenking/catalog-service/internal/domain/uow"
	"github.com/xenking/catalog-service/internal/domain/visibility"
	"github.com/xenking/catalog-service/internal/integration"
)

// ErrNotFound is returned when a product, tier or promo is not visible to
// the caller.
var ErrNotFound = errors.New("not found")

// Directory looks up records owned by neighbouring services.
type Directory interface {
	Merchant(ctx context.Context, id string) (*directory.Merchant, error)
	Customers(ctx context.Context, ids []string) (map[string]directory.Customer, error)
	Inventory(ctx context.Context, id string) (*directory.Inventory, error)
}

// SnapshotFetcher returns live distributor data for a merchant channel.
type SnapshotFetcher interface {
	ProductsByChannel(ctx context.Context, channel string) (distributor.Snapshot, error)
}

// Caller identifies who is asking. MerchantID set means a merchant is
// browsing; otherwise the customer fields drive price selection.
type Caller struct {
	MerchantID     string
	BusinessTypeID string
	CustomerID     string
	CategoryID     string
}

// IsMerchant reports whether a merchant is browsing.
func (c Caller) IsMerchant() bool { return c.MerchantID != "" }

func (c Caller) priceContext() price.Context {
	if c.IsMerchant() {
		return price.ForMerchant(c.MerchantID, c.BusinessTypeID)
	}
	return price.ForCustomer(c.CustomerID, c.CategoryID)
}

// Price is the computed price of an item. It is never persisted.
type Price struct {
	Price  decimal.Decimal
	Cost   decimal.Decimal
	Source PriceSource
}

// PriceSource tells where Price came from.
type PriceSource string

const (
	SourceNone     PriceSource = "none"
	SourceDefault  PriceSource = "default"
	SourceCategory PriceSource = "category"
	SourceCustom   PriceSource = "custom"
	SourceLive     PriceSource = "live"
	// SourceUnavailable marks items of gated tenants without live data.
	SourceUnavailable PriceSource = "unavailable"
)

// Item is a product with its computed and populated fields.
type Item struct {
	Product   product.Product
	Price     Price
	Stock     *int64
	Promos    []promo.Promo
	Brand     *brand.Brand
	Category  *category.Category
	Customer  *directory.Customer
	Inventory *directory.Inventory
}

// strategy is the per-tenant behaviour of the façade.
type strategy struct {
	integration *integration.Integration
	gated       bool
	live        SnapshotFetcher
}

// strategies is keyed by integration kind.
var strategies = map[integration.Kind]func(in integration.Integration, live SnapshotFetcher) strategy{
	integration.KindDirect: func(in integration.Integration, _ SnapshotFetcher) strategy {
		return strategy{integration: &in}
	},
	integration.KindDistributor: func(in integration.Integration, live SnapshotFetcher) strategy {
		return strategy{integration: &in, gated: true, live: live}
	},
}

// Deps are the collaborators of Service.
type Deps struct {
	UoW        uow.UnitOfWork
	Repos      uow.Repositories
	Categories category.Repository
	// Directory is optional; without it merchants, customers and inventory
	// are not looked up.
	Directory Directory
	// Publisher is optional.
	Publisher    product.Publisher
	Integrations []integration.Integration
	// Snapshots are keyed by integration name.
	Snapshots    map[string]SnapshotFetcher
	DefaultImage string
	Now          func() time.Time
	NewID        func() string
}

// Service is the catalog façade.
type Service struct {
	uow        uow.UnitOfWork
	repos      uow.Repositories
	categories category.Repository
	directory  Directory
	publisher  product.Publisher
	resolver   *price.Resolver
	matcher    *promo.Matcher
	visibility *visibility.Service
	byTenant   map[string]strategy
	image      string
	now        func() time.Time
	newID      func() string
}

// NewService creates a Service.
func NewService(d Deps) *Service {
	s := &Service{
		uow:        d.UoW,
		repos:      d.Repos,
		categories: d.Categories,
		directory:  d.Directory,
		publisher:  d.Publisher,
		resolver:   price.NewResolver(d.Repos.Prices),
		matcher:    promo.NewMatcher(d.Repos.Promos),
		visibility: visibility.NewService(d.Repos.Visibility),
		byTenant:   make(map[string]strategy, len(d.Integrations)),
		image:      d.DefaultImage,
		now:        d.Now,
		newID:      d.NewID,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	for _, in := range d.Integrations {
		build, ok := strategies[in.Kind]
		if !ok {
			continue
		}
		s.byTenant[in.TenantID] = build(in, d.Snapshots[in.Name])
	}
	return s
}

func (s *Service) strategyFor(tenantID string) strategy {
	return s.byTenant[tenantID]
}
