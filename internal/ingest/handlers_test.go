package ingest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/catalog-service/internal/domain/brand"
	"github.com/xenking/catalog-service/internal/domain/price"
	"github.com/xenking/catalog-service/internal/domain/product"
	"github.com/xenking/catalog-service/internal/domain/promo"
	"github.com/xenking/catalog-service/internal/integration"
	"github.com/xenking/catalog-service/internal/storage/memstore"
)

const (
	tenantCola = "66ebe3e3c0acbbab7824b195"
	image      = "https://pics.example/default.jpg"
)

var cola = integration.Integration{
	Name:             "cola",
	Kind:             integration.KindDistributor,
	TenantID:         tenantCola,
	ExternalSystemID: "cola",
	SubjectPrefix:    "cola",
}

type recordingPublisher struct {
	mu      sync.Mutex
	created []product.CreatedEvent
	err     error
}

func (p *recordingPublisher) ProductCreated(_ context.Context, ev product.CreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, ev)
	return p.err
}

func (p *recordingPublisher) ProductsCreated(_ context.Context, evs []product.CreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, evs...)
	return p.err
}

func sequentialIDs() func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%03d", n)
	}
}

func newHandlers(t *testing.T) (*Handlers, *memstore.Store, *recordingPublisher) {
	t.Helper()
	store := memstore.New()
	pub := &recordingPublisher{}
	return NewHandlers(store, pub, image, WithIDGenerator(sequentialIDs())), store, pub
}

func ptr[T any](v T) *T { return &v }

func colaProduct(id, barcode string) NewProductEvent {
	return NewProductEvent{
		ProductID:   id,
		ProductName: "Coca Cola 1.5L",
		BrandName:   "Coca Cola",
		SectorName:  "Drinks",
		Capacity:    ptr(1.5),
		InCase:      6,
		Barcode:     barcode,
	}
}

func findProduct(t *testing.T, store *memstore.Store, extID string) *product.Product {
	t.Helper()
	p, err := store.Repositories().Products.FindByExternalRef(context.Background(), product.ExternalRef{
		TenantID:          tenantCola,
		ExternalSystemID:  "cola",
		ExternalProductID: extID,
	})
	require.NoError(t, err)
	return p
}

func TestNewProduct(t *testing.T) {
	h, store, pub := newHandlers(t)
	ctx := context.Background()

	outcome, err := h.NewProduct(ctx, cola, colaProduct("4402", "8850999220000"))
	require.NoError(t, err)
	assert.Equal(t, Applied, outcome)

	p := findProduct(t, store, "4402")
	assert.Equal(t, tenantCola, p.TenantID)
	assert.Equal(t, "coca-cola-1-5l", p.Slug)
	assert.Equal(t, []string{image}, p.Images)
	assert.False(t, p.IsActive)
	assert.Equal(t, 6, p.InCase)
	require.Len(t, p.Attributes, 1)
	assert.Equal(t, product.SizeAttributeSlug, p.Attributes[0].Slug)
	assert.Equal(t, 1.5, p.Attributes[0].Value)
	require.NotEmpty(t, p.BrandID)

	require.Len(t, p.PriceTierIDs, 1)
	tier, err := store.Repositories().Prices.GetByID(ctx, p.PriceTierIDs[0])
	require.NoError(t, err)
	assert.Equal(t, price.TierDefault, tier.Type)
	assert.Equal(t, price.DefaultLevel, tier.Level)
	assert.True(t, tier.Prices.Price.IsZero())
	assert.True(t, tier.Prices.Cost.IsZero())

	require.Len(t, pub.created, 1)
	assert.Equal(t, p.ID, pub.created[0].ID)
	assert.Equal(t, tenantCola, pub.created[0].CustomerID)
	assert.Equal(t, p.PriceTierIDs, pub.created[0].Prices)
}

func TestNewProduct_ReplayIsSkipped(t *testing.T) {
	h, store, pub := newHandlers(t)
	ctx := context.Background()
	ev := colaProduct("4402", "8850999220000")

	_, err := h.NewProduct(ctx, cola, ev)
	require.NoError(t, err)

	outcome, err := h.NewProduct(ctx, cola, ev)
	require.NoError(t, err)
	assert.Equal(t, SkippedDuplicate, outcome)

	list, total, err := store.Repositories().Products.List(ctx, product.Filter{TenantID: tenantCola})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, list, 1)
	assert.Len(t, pub.created, 1)
}

func TestNewProduct_BarcodeCollisionRollsBack(t *testing.T) {
	h, store, pub := newHandlers(t)
	ctx := context.Background()

	_, err := h.NewProduct(ctx, cola, colaProduct("4402", "8850999220000"))
	require.NoError(t, err)

	outcome, err := h.NewProduct(ctx, cola, colaProduct("4403", "8850999220000"))
	require.NoError(t, err)
	assert.Equal(t, SkippedDuplicate, outcome)

	_, err = store.Repositories().Products.FindByExternalRef(ctx, product.ExternalRef{
		TenantID: tenantCola, ExternalSystemID: "cola", ExternalProductID: "4403",
	})
	assert.ErrorIs(t, err, product.ErrNotFound)
	assert.Len(t, pub.created, 1)
}

func TestNewProduct_FailureIsAtomic(t *testing.T) {
	h, store, pub := newHandlers(t)
	ctx := context.Background()
	boom := errors.New("tier insert failed")
	store.FailOn("Prices.Create", boom)

	_, err := h.NewProduct(ctx, cola, colaProduct("4402", "8850999220000"))
	require.ErrorIs(t, err, boom)

	_, total, err := store.Repositories().Products.List(ctx, product.Filter{})
	require.NoError(t, err)
	assert.Zero(t, total)
	_, err = store.Repositories().Brands.FindByName(ctx, tenantCola, "Coca Cola")
	assert.ErrorIs(t, err, brand.ErrNotFound, "brand created in the failed unit must roll back")
	assert.Empty(t, pub.created)

	store.FailOn("Prices.Create", nil)
	outcome, err := h.NewProduct(ctx, cola, colaProduct("4402", "8850999220000"))
	require.NoError(t, err)
	assert.Equal(t, Applied, outcome)
}

func TestNewProduct_ReusesExistingBrand(t *testing.T) {
	h, store, _ := newHandlers(t)
	ctx := context.Background()
	require.NoError(t, store.Repositories().Brands.Create(ctx, &brand.Brand{
		ID: "brand-cc", TenantID: tenantCola, Name: "Coca Cola",
	}))

	_, err := h.NewProduct(ctx, cola, colaProduct("4402", "1"))
	require.NoError(t, err)
	_, err = h.NewProduct(ctx, cola, colaProduct("4403", "2"))
	require.NoError(t, err)

	assert.Equal(t, "brand-cc", findProduct(t, store, "4402").BrandID)
	assert.Equal(t, "brand-cc", findProduct(t, store, "4403").BrandID)
}

func TestNewProduct_SupplierOverridesTenant(t *testing.T) {
	h, store, _ := newHandlers(t)
	ctx := context.Background()

	ev := NewProductEvent{
		SupplierID:  "supplier-1",
		BasID:       "bas-77",
		ProductName: "Sprite",
		VendorID:    "vendor-9",
		Price:       ptr(decimal.NewFromInt(1200)),
	}
	outcome, err := h.NewProduct(ctx, cola, ev)
	require.NoError(t, err)
	assert.Equal(t, Applied, outcome)

	p, err := store.Repositories().Products.FindByExternalRef(ctx, product.ExternalRef{
		TenantID: "supplier-1", ExternalSystemID: "cola", ExternalProductID: "bas-77",
	})
	require.NoError(t, err)
	assert.Equal(t, "supplier-1", p.TenantID)
	assert.Equal(t, "vendor-9", p.VendorID)

	tier, err := store.Repositories().Prices.GetByID(ctx, p.PriceTierIDs[0])
	require.NoError(t, err)
	assert.True(t, tier.Prices.Price.Equal(decimal.NewFromInt(1200)))
}

func TestNewProduct_Invalid(t *testing.T) {
	h, _, _ := newHandlers(t)
	_, err := h.NewProduct(context.Background(), cola, NewProductEvent{ProductName: "x"})
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

func TestProductUpdated(t *testing.T) {
	h, store, _ := newHandlers(t)
	ctx := context.Background()
	_, err := h.NewProduct(ctx, cola, colaProduct("4402", "8850999220000"))
	require.NoError(t, err)
	before := findProduct(t, store, "4402")

	outcome, err := h.ProductUpdated(ctx, cola, ProductUpdatedEvent{
		ProductID: "4402",
		UpdatedFields: ProductFields{
			ProductName: ptr("Coca Cola Zero 2L"),
			Capacity:    ptr(2.0),
			Barcode:     ptr(""),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, Applied, outcome)

	after := findProduct(t, store, "4402")
	assert.Equal(t, "Coca Cola Zero 2L", after.Name)
	assert.Equal(t, "coca-cola-zero-2l", after.Slug)
	assert.Equal(t, before.BarCode, after.BarCode, "empty barcode is not a change")
	assert.Equal(t, before.InCase, after.InCase)
	require.Len(t, after.Attributes, 1)
	assert.Equal(t, before.Attributes[0].ID, after.Attributes[0].ID)
	assert.Equal(t, 2.0, after.Attributes[0].Value)
	assert.Equal(t, before.PriceTierIDs, after.PriceTierIDs)
}

func TestProductUpdated_Missing(t *testing.T) {
	h, _, _ := newHandlers(t)
	outcome, err := h.ProductUpdated(context.Background(), cola, ProductUpdatedEvent{
		ProductID:     "nope",
		UpdatedFields: ProductFields{ProductName: ptr("x")},
	})
	require.NoError(t, err)
	assert.Equal(t, SkippedMissing, outcome)
}

func TestProductUpdated_BarcodeCollision(t *testing.T) {
	h, store, _ := newHandlers(t)
	ctx := context.Background()
	_, err := h.NewProduct(ctx, cola, colaProduct("4402", "8850999220000"))
	require.NoError(t, err)
	_, err = h.NewProduct(ctx, cola, colaProduct("4403", "8850999220017"))
	require.NoError(t, err)

	outcome, err := h.ProductUpdated(ctx, cola, ProductUpdatedEvent{
		ProductID: "4403",
		UpdatedFields: ProductFields{
			ProductName: ptr("Renamed"),
			Barcode:     ptr("8850999220000"),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, SkippedDuplicate, outcome)

	after := findProduct(t, store, "4403")
	assert.Equal(t, "8850999220017", after.BarCode)
	assert.NotEqual(t, "Renamed", after.Name, "the whole update rolls back")
}

func TestProductDeactivated(t *testing.T) {
	h, store, _ := newHandlers(t)
	ctx := context.Background()
	_, err := h.NewProduct(ctx, cola, colaProduct("4402", "1"))
	require.NoError(t, err)
	p := findProduct(t, store, "4402")
	require.NoError(t, store.Repositories().Products.SetActive(ctx, tenantCola, p.ID, true))

	outcome, err := h.ProductDeactivated(ctx, cola, ProductDeactivatedEvent{ProductID: p.ID})
	require.NoError(t, err)
	assert.Equal(t, Applied, outcome)
	assert.False(t, findProduct(t, store, "4402").IsActive)

	outcome, err = h.ProductDeactivated(ctx, cola, ProductDeactivatedEvent{ExternalProductID: "4402"})
	require.NoError(t, err)
	assert.Equal(t, Applied, outcome)

	outcome, err = h.ProductDeactivated(ctx, cola, ProductDeactivatedEvent{ProductID: "ghost"})
	require.NoError(t, err)
	assert.Equal(t, SkippedMissing, outcome)

	other := cola
	other.TenantID = "someone-else"
	outcome, err = h.ProductDeactivated(ctx, other, ProductDeactivatedEvent{ProductID: p.ID})
	require.NoError(t, err)
	assert.Equal(t, SkippedMissing, outcome, "deactivation is tenant scoped")
}

func TestMerchantProductsUpdated(t *testing.T) {
	h, store, _ := newHandlers(t)
	ctx := context.Background()
	vis := store.Repositories().Visibility

	outcome, err := h.MerchantProductsUpdated(ctx, cola, MerchantProductsUpdatedEvent{
		MerchantID: "m1",
		ActiveList: []string{"p1", "p2"},
	})
	require.NoError(t, err)
	assert.Equal(t, Applied, outcome)

	_, err = h.MerchantProductsUpdated(ctx, cola, MerchantProductsUpdatedEvent{
		MerchantIDs:  []string{"m1", "m2"},
		ActiveList:   []string{"p3"},
		InactiveList: []string{"p1"},
	})
	require.NoError(t, err)

	ids, err := vis.ListVisibleProductIDs(ctx, tenantCola, "m1")
	require.NoError(t, err)
	assert.Equal(t, []string{"p2", "p3"}, ids)

	ids, err = vis.ListVisibleProductIDs(ctx, tenantCola, "m2")
	require.NoError(t, err)
	assert.Equal(t, []string{"p3"}, ids)

	_, err = h.MerchantProductsUpdated(ctx, cola, MerchantProductsUpdatedEvent{ActiveList: []string{"p1"}})
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

func promoEvent() PromoReceivedEvent {
	return PromoReceivedEvent{
		Name:              "Summer",
		StartDate:         time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:           time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		ThresholdQuantity: decimal.NewFromInt(10),
		PromoPercent:      decimal.NewFromInt(5),
		IsActive:          true,
		Tradeshops:        []int64{101},
		Products:          []string{"p1"},
		PromoID:           "77",
		PromoTypeCode:     "z>x%",
	}
}

func TestPromoReceived(t *testing.T) {
	h, store, _ := newHandlers(t)
	ctx := context.Background()

	outcome, err := h.PromoReceived(ctx, cola, promoEvent(), []byte(`{"thirdPartyPromoId":77}`))
	require.NoError(t, err)
	assert.Equal(t, Applied, outcome)

	outcome, err = h.PromoReceived(ctx, cola, promoEvent(), nil)
	require.NoError(t, err)
	assert.Equal(t, SkippedDuplicate, outcome)

	list, err := store.Repositories().Promos.ListByProduct(ctx, tenantCola, "p1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 3, list[0].Type.ID)
	assert.Equal(t, "77", list[0].External.ExternalPromoID)
	assert.JSONEq(t, `{"thirdPartyPromoId":77}`, string(list[0].ThirdParty))
}

func TestPromoReceived_UnknownType(t *testing.T) {
	h, _, _ := newHandlers(t)
	ev := promoEvent()
	ev.PromoTypeCode = "bogus"

	_, err := h.PromoReceived(context.Background(), cola, ev, nil)
	assert.ErrorIs(t, err, promo.ErrUnknownPromoType)
}

func TestPromoUpdated(t *testing.T) {
	h, store, _ := newHandlers(t)
	ctx := context.Background()
	_, err := h.PromoReceived(ctx, cola, promoEvent(), nil)
	require.NoError(t, err)
	list, err := store.Repositories().Promos.ListByProduct(ctx, tenantCola, "p1")
	require.NoError(t, err)
	id := list[0].ID

	outcome, err := h.PromoUpdated(ctx, cola, PromoUpdatedEvent{
		ID:            id,
		UpdatedFields: PromoFields{IsActive: ptr(false), Tradeshops: []int64{5, 6}},
	})
	require.NoError(t, err)
	assert.Equal(t, Applied, outcome)

	got, err := store.Repositories().Promos.GetByID(ctx, id)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Equal(t, []int64{5, 6}, got.Tradeshops)
	assert.Equal(t, "Summer", got.Name)

	outcome, err = h.PromoUpdated(ctx, cola, PromoUpdatedEvent{
		ID:            "ghost",
		UpdatedFields: PromoFields{Name: ptr("x")},
	})
	require.NoError(t, err)
	assert.Equal(t, SkippedMissing, outcome)
}

func TestInventoryCreated(t *testing.T) {
	h, store, _ := newHandlers(t)
	ctx := context.Background()
	_, err := h.NewProduct(ctx, cola, colaProduct("4402", "1"))
	require.NoError(t, err)
	p := findProduct(t, store, "4402")

	outcome, err := h.InventoryCreated(ctx, InventoryCreatedEvent{ID: "inv-1", ProductID: p.ID})
	require.NoError(t, err)
	assert.Equal(t, Applied, outcome)
	assert.Equal(t, "inv-1", findProduct(t, store, "4402").InventoryID)

	outcome, err = h.InventoryCreated(ctx, InventoryCreatedEvent{ID: "inv-2", ProductID: "ghost"})
	require.NoError(t, err)
	assert.Equal(t, SkippedMissing, outcome)
}

func TestPublishFailureKeepsCommit(t *testing.T) {
	h, store, pub := newHandlers(t)
	pub.err = errors.New("nats down")

	outcome, err := h.NewProduct(context.Background(), cola, colaProduct("4402", "1"))
	require.NoError(t, err)
	assert.Equal(t, Applied, outcome)
	findProduct(t, store, "4402")
}
