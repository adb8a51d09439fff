package catalog

import (
	"context"
	"slices"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/catalog-service/internal/directory"
	"github.com/xenking/catalog-service/internal/distributor"
	"github.com/xenking/catalog-service/internal/domain/brand"
	"github.com/xenking/catalog-service/internal/domain/category"
	"github.com/xenking/catalog-service/internal/domain/price"
	"github.com/xenking/catalog-service/internal/domain/product"
	"github.com/xenking/catalog-service/internal/domain/promo"
)

// DefaultLimit is the page size when none is given.
const DefaultLimit = 20

// MerchantPageLimit caps the merchant product list.
const MerchantPageLimit = 1000

// Query selects a page of the catalog.
type Query struct {
	TenantID        string
	Caller          Caller
	IDs             []string
	Name            string
	BarCode         string
	VendorID        string
	BrandIDs        []string
	CategoryIDs     []string
	AttributeValues []string
	InCase          *int
	OnlyActive      bool
	Sort            product.Sort
	// Page is 1-based.
	Page  int
	Limit int
	// All disables pagination.
	All bool
}

// Page is one page of items.
type Page struct {
	Items       []Item
	Total       int
	TotalPages  int
	CurrentPage int
}

// List returns a page of products with resolved prices, active promos and
// populated references. Merchants of gated tenants only see products they
// were granted.
func (s *Service) List(ctx context.Context, q Query) (*Page, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 0 {
		return nil, &ValidationError{Field: "limit", Reason: "must be positive"}
	}
	if q.Limit == 0 {
		q.Limit = DefaultLimit
	}

	f := product.Filter{
		TenantID:        q.TenantID,
		IDs:             q.IDs,
		Name:            q.Name,
		BarCode:         q.BarCode,
		VendorID:        q.VendorID,
		BrandIDs:        q.BrandIDs,
		CategoryIDs:     q.CategoryIDs,
		AttributeValues: q.AttributeValues,
		InCase:          q.InCase,
		OnlyActive:      q.OnlyActive,
		Sort:            q.Sort,
	}
	page := &Page{Items: []Item{}, CurrentPage: q.Page, TotalPages: 1}
	if !q.All {
		f.Limit = q.Limit
		f.Offset = (q.Page - 1) * q.Limit
	} else {
		page.CurrentPage = 1
	}

	st := s.strategyFor(q.TenantID)
	if st.gated && q.Caller.IsMerchant() {
		visible, err := s.visibility.VisibleProductIDs(ctx, q.TenantID, q.Caller.MerchantID)
		if err != nil {
			return nil, errors.Wrap(err, "visible products")
		}
		ids := restrict(q.IDs, visible)
		if len(ids) == 0 {
			return page, nil
		}
		f.IDs = ids
	}

	products, total, err := s.repos.Products.List(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	items, err := s.assemble(ctx, st, q.Caller, products, false)
	if err != nil {
		return nil, err
	}

	page.Items = items
	page.Total = total
	if !q.All {
		page.TotalPages = (total + q.Limit - 1) / q.Limit
	}
	return page, nil
}

// Get returns one product as seen by caller. tenantID, when set, must own
// the product.
func (s *Service) Get(ctx context.Context, tenantID, productID string, caller Caller) (*Item, error) {
	p, err := s.repos.Products.GetByID(ctx, productID)
	switch {
	case errors.Is(err, product.ErrNotFound):
		return nil, ErrNotFound
	case err != nil:
		return nil, errors.Wrap(err, "get product")
	}
	if tenantID != "" && p.TenantID != tenantID {
		return nil, ErrNotFound
	}

	st := s.strategyFor(p.TenantID)
	if st.gated && caller.IsMerchant() {
		visible, err := s.visibility.VisibleProductIDs(ctx, p.TenantID, caller.MerchantID)
		if err != nil {
			return nil, errors.Wrap(err, "visible products")
		}
		if !slices.Contains(visible, p.ID) {
			return nil, ErrNotFound
		}
	}

	items, err := s.assemble(ctx, st, caller, []product.Product{*p}, true)
	if err != nil {
		return nil, err
	}
	return &items[0], nil
}

// MerchantProducts lists a tenant's products for one merchant, highest
// priority first.
func (s *Service) MerchantProducts(ctx context.Context, tenantID, merchantID string) (*Page, error) {
	if merchantID == "" {
		return nil, &ValidationError{Field: "merchantId", Reason: "required"}
	}
	return s.List(ctx, Query{
		TenantID: tenantID,
		Caller:   Caller{MerchantID: merchantID},
		Sort:     product.SortPriority,
		Page:     1,
		Limit:    MerchantPageLimit,
	})
}

// VisibleProductIDs returns the products merchantID may see in tenantID.
func (s *Service) VisibleProductIDs(ctx context.Context, tenantID, merchantID string) ([]string, error) {
	if tenantID == "" || merchantID == "" {
		return nil, &ValidationError{Field: "customerId", Reason: "tenant and merchant are required"}
	}
	return s.visibility.VisibleProductIDs(ctx, tenantID, merchantID)
}

// ResolvePrice returns the tier price of a product for caller.
func (s *Service) ResolvePrice(ctx context.Context, productID string, caller Caller) (price.Resolution, error) {
	if _, err := s.repos.Products.GetByID(ctx, productID); err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return price.Resolution{}, ErrNotFound
		}
		return price.Resolution{}, errors.Wrap(err, "get product")
	}
	if caller.BusinessTypeID == "" {
		s.merchant(ctx, &caller)
	}
	return s.resolver.Resolve(ctx, productID, caller.priceContext())
}

// GetTier returns one price tier.
func (s *Service) GetTier(ctx context.Context, id string) (*price.Tier, error) {
	t, err := s.repos.Prices.GetByID(ctx, id)
	if errors.Is(err, price.ErrNotFound) {
		return nil, ErrNotFound
	}
	return t, err
}

// GetPromo returns one promo.
func (s *Service) GetPromo(ctx context.Context, id string) (*promo.Promo, error) {
	p, err := s.repos.Promos.GetByID(ctx, id)
	if errors.Is(err, promo.ErrNotFound) {
		return nil, ErrNotFound
	}
	return p, err
}

// live is the distributor data of one request.
type live struct {
	enabled  bool
	channel  *int64
	snapshot distributor.Snapshot
	refs     map[string]string
}

// merchant looks up the calling merchant and fills its business type when
// the caller did not give one. Lookup failures only degrade pricing.
func (s *Service) merchant(ctx context.Context, caller *Caller) *directory.Merchant {
	if s.directory == nil || !caller.IsMerchant() {
		return nil
	}
	m, err := s.directory.Merchant(ctx, caller.MerchantID)
	if err != nil {
		zctx.From(ctx).Warn("Merchant lookup failed",
			zap.String("merchant_id", caller.MerchantID),
			zap.Error(err),
		)
		return nil
	}
	if caller.BusinessTypeID == "" {
		caller.BusinessTypeID = m.BusinessTypeID
	}
	return m
}

// liveData fetches at most one snapshot per request. It may fill
// caller.BusinessTypeID from the merchant record.
func (s *Service) liveData(ctx context.Context, st strategy, caller *Caller, ids []string) (live, error) {
	var ld live
	if !caller.IsMerchant() {
		return ld, nil
	}
	if !st.gated {
		if caller.BusinessTypeID == "" {
			s.merchant(ctx, caller)
		}
		return ld, nil
	}

	ld.enabled = st.live != nil
	var channel string
	if m := s.merchant(ctx, caller); m != nil {
		channel, _ = m.Channel(st.integration.HoldingKey)
	}
	if channel != "" {
		if n, err := strconv.ParseInt(channel, 10, 64); err == nil {
			ld.channel = &n
		}
	}
	if !ld.enabled || channel == "" {
		return ld, nil
	}

	snap, err := st.live.ProductsByChannel(ctx, channel)
	if err != nil {
		zctx.From(ctx).Error("Live snapshot failed, zeroing prices",
			zap.String("integration", st.integration.Name),
			zap.String("merchant_id", caller.MerchantID),
			zap.String("channel", channel),
			zap.Error(err),
		)
		return ld, nil
	}
	refs, err := s.repos.Products.ExternalIDs(ctx, st.integration.ExternalSystemID, ids)
	if err != nil {
		return ld, errors.Wrap(err, "external ids")
	}
	ld.snapshot = snap
	ld.refs = refs
	return ld, nil
}

func (s *Service) assemble(ctx context.Context, st strategy, caller Caller, products []product.Product, withInventory bool) ([]Item, error) {
	items := make([]Item, 0, len(products))
	if len(products) == 0 {
		return items, nil
	}
	ids := make([]string, len(products))
	for i, p := range products {
		ids[i] = p.ID
	}

	ld, err := s.liveData(ctx, st, &caller, ids)
	if err != nil {
		return nil, err
	}
	tiers, err := s.repos.Prices.ListByProducts(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "load tiers")
	}
	promos, err := s.activePromos(ctx, products, ld.channel)
	if err != nil {
		return nil, err
	}
	brands, categories, err := s.references(ctx, products)
	if err != nil {
		return nil, err
	}
	customers := s.customers(ctx, products)

	pctx := caller.priceContext()
	for _, p := range products {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		item := Item{
			Product:  p,
			Price:    priceOf(price.Resolve(tiers[p.ID], pctx)),
			Promos:   promos[p.ID],
			Brand:    brands[p.BrandID],
			Category: categories[p.CategoryID],
		}
		if item.Promos == nil {
			item.Promos = []promo.Promo{}
		}
		if c, ok := customers[p.TenantID]; ok {
			item.Customer = &c
		}
		if ld.enabled {
			overlay(&item, ld)
		}
		if withInventory {
			item.Inventory = s.inventory(ctx, p)
		}
		items = append(items, item)
	}
	return items, nil
}

func priceOf(r price.Resolution) Price {
	if !r.Found {
		return Price{Source: SourceNone}
	}
	return Price{Price: r.Prices.Price, Cost: r.Prices.Cost, Source: PriceSource(r.Type)}
}

// overlay replaces the tier price with live data. Without a matching row
// the item has no price, cost or stock. A matched row carries no cost, so
// the tier cost stays.
func overlay(item *Item, ld live) {
	stock := int64(0)
	item.Stock = &stock
	cost := item.Price.Cost
	item.Price.Price = decimal.Zero
	item.Price.Cost = decimal.Zero
	item.Price.Source = SourceUnavailable

	ref := ld.refs[item.Product.ID]
	if ref == "" {
		return
	}
	row, ok := ld.snapshot[ref]
	if !ok {
		return
	}
	stock = row.Quantity
	item.Price.Price = row.Price
	item.Price.Cost = cost
	item.Price.Source = SourceLive
}

func (s *Service) activePromos(ctx context.Context, products []product.Product, channel *int64) (map[string][]promo.Promo, error) {
	byTenant := make(map[string][]string)
	for _, p := range products {
		byTenant[p.TenantID] = append(byTenant[p.TenantID], p.ID)
	}
	out := make(map[string][]promo.Promo, len(products))
	now := s.now()
	for tenantID, ids := range byTenant {
		m, err := s.matcher.MatchActiveMany(ctx, tenantID, ids, channel, now)
		if err != nil {
			return nil, errors.Wrap(err, "match promos")
		}
		for id, list := range m {
			out[id] = list
		}
	}
	return out, nil
}

func (s *Service) references(ctx context.Context, products []product.Product) (map[string]*brand.Brand, map[string]*category.Category, error) {
	var brandIDs, categoryIDs []string
	for _, p := range products {
		if p.BrandID != "" && !slices.Contains(brandIDs, p.BrandID) {
			brandIDs = append(brandIDs, p.BrandID)
		}
		if p.CategoryID != "" && !slices.Contains(categoryIDs, p.CategoryID) {
			categoryIDs = append(categoryIDs, p.CategoryID)
		}
	}

	brands := make(map[string]*brand.Brand, len(brandIDs))
	if len(brandIDs) > 0 {
		list, err := s.repos.Brands.GetByIDs(ctx, brandIDs)
		if err != nil {
			return nil, nil, errors.Wrap(err, "load brands")
		}
		for i := range list {
			brands[list[i].ID] = &list[i]
		}
	}

	categories := make(map[string]*category.Category, len(categoryIDs))
	if len(categoryIDs) > 0 && s.categories != nil {
		list, err := s.categories.GetByIDs(ctx, categoryIDs)
		if err != nil {
			return nil, nil, errors.Wrap(err, "load categories")
		}
		for i := range list {
			categories[list[i].ID] = &list[i]
		}
	}
	return brands, categories, nil
}

// customers populates tenants from the directory. Failures degrade to
// unpopulated items.
func (s *Service) customers(ctx context.Context, products []product.Product) map[string]directory.Customer {
	if s.directory == nil {
		return nil
	}
	var ids []string
	for _, p := range products {
		if !slices.Contains(ids, p.TenantID) {
			ids = append(ids, p.TenantID)
		}
	}
	out, err := s.directory.Customers(ctx, ids)
	if err != nil {
		zctx.From(ctx).Warn("Customer lookup failed", zap.Error(err))
		return nil
	}
	return out
}

func (s *Service) inventory(ctx context.Context, p product.Product) *directory.Inventory {
	if s.directory == nil || p.InventoryID == "" {
		return nil
	}
	inv, err := s.directory.Inventory(ctx, p.InventoryID)
	if err != nil {
		zctx.From(ctx).Warn("Inventory lookup failed",
			zap.String("inventory_id", p.InventoryID),
			zap.Error(err),
		)
		return nil
	}
	return inv
}

// restrict narrows requested IDs to the visible set. A nil request means
// every visible product.
func restrict(requested, visible []string) []string {
	if requested == nil {
		return visible
	}
	out := make([]string, 0, len(requested))
	for _, id := range requested {
		if slices.Contains(visible, id) {
			out = append(out, id)
		}
	}
	return out
}
