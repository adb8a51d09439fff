// Package storagetest checks that a storage backend honors the catalog
// repository contracts. The in-memory store runs it as a unit test and
// PostgreSQL runs it against a container.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/catalog-service/internal/domain/price"
	"github.com/xenking/catalog-service/internal/domain/product"
	"github.com/xenking/catalog-service/internal/domain/promo"
	"github.com/xenking/catalog-service/internal/domain/uow"
)

// Run exercises u. Every subtest works in its own tenant, so u may be
// shared with other tests.
func Run(t *testing.T, u uow.UnitOfWork) {
	t.Run("Products", func(t *testing.T) { testProducts(t, u) })
	t.Run("Listing", func(t *testing.T) { testListing(t, u) })
	t.Run("PriceTiers", func(t *testing.T) { testPriceTiers(t, u) })
	t.Run("Visibility", func(t *testing.T) { testVisibility(t, u) })
	t.Run("Promos", func(t *testing.T) { testPromos(t, u) })
	t.Run("Rollback", func(t *testing.T) { testRollback(t, u) })
}

func tenant() string { return "tenant-" + uuid.NewString() }

func do(t *testing.T, u uow.UnitOfWork, fn func(ctx context.Context, r uow.Repositories) error) {
	t.Helper()
	require.NoError(t, u.Do(context.Background(), fn))
}

func newProduct(tenantID, name, barCode string) *product.Product {
	return &product.Product{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		Name:     name,
		Slug:     product.Slugify(name),
		BarCode:  barCode,
		Images:   []string{"default.png"},
		Attributes: []product.Attribute{
			{ID: "a1", Name: "Volume", Slug: "volume", Key: "volume", Value: 0.5},
		},
		InCase:   12,
		IsActive: true,
	}
}

func testProducts(t *testing.T, u uow.UnitOfWork) {
	ctx := context.Background()
	tn := tenant()
	p := newProduct(tn, "Cola 0.5", "111")
	ref := product.ExternalRef{TenantID: tn, ExternalSystemID: "bas", ExternalProductID: "ext-1"}

	do(t, u, func(ctx context.Context, r uow.Repositories) error {
		if err := r.Products.Create(ctx, p); err != nil {
			return err
		}
		return r.Products.AddExternalRef(ctx, p.ID, ref)
	})

	err := u.Do(ctx, func(ctx context.Context, r uow.Repositories) error {
		return r.Products.Create(ctx, newProduct(tn, "Other", "111"))
	})
	require.ErrorIs(t, err, product.ErrDuplicate, "barcode is unique per tenant")

	do(t, u, func(ctx context.Context, r uow.Repositories) error {
		got, err := r.Products.GetByID(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, "Cola 0.5", got.Name)
		assert.Equal(t, []string{"default.png"}, got.Images)
		require.Len(t, got.Attributes, 1)
		assert.Equal(t, 0.5, got.Attributes[0].Value)

		_, err = r.Products.GetByID(ctx, "missing")
		assert.ErrorIs(t, err, product.ErrNotFound)

		found, err := r.Products.FindByExternalRef(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, p.ID, found.ID)

		ext, err := r.Products.ExternalIDs(ctx, "bas", []string{p.ID, "missing"})
		require.NoError(t, err)
		assert.Equal(t, map[string]string{p.ID: "ext-1"}, ext)

		existing, err := r.Products.ExistingBarCodes(ctx, tn, []string{"111", "222"})
		require.NoError(t, err)
		assert.Equal(t, []string{"111"}, existing)

		require.NoError(t, r.Products.SetActive(ctx, tn, p.ID, false))
		require.NoError(t, r.Products.SetInventory(ctx, p.ID, "inv-1"))
		return nil
	})

	do(t, u, func(ctx context.Context, r uow.Repositories) error {
		got, err := r.Products.GetByID(ctx, p.ID)
		require.NoError(t, err)
		assert.False(t, got.IsActive)
		assert.Equal(t, "inv-1", got.InventoryID)
		return nil
	})
}

func testListing(t *testing.T, u uow.UnitOfWork) {
	tn := tenant()
	names := []string{"Fanta", "Aqua", "Cola", "Bonaqua"}
	ids := make(map[string]string)
	do(t, u, func(ctx context.Context, r uow.Repositories) error {
		for i, name := range names {
			p := newProduct(tn, name, "")
			p.CategoryID = "drinks"
			if i%2 == 1 {
				p.CategoryID = "water"
			}
			ids[name] = p.ID
			if err := r.Products.Create(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})

	tests := []struct {
		name   string
		filter product.Filter
		want   []string
		total  int
	}{
		{"ByName", product.Filter{Sort: product.SortNameAsc}, []string{"Aqua", "Bonaqua", "Cola", "Fanta"}, 4},
		{"Page", product.Filter{Sort: product.SortNameAsc, Limit: 2, Offset: 2}, []string{"Cola", "Fanta"}, 4},
		{"Category", product.Filter{Sort: product.SortNameAsc, CategoryIDs: []string{"water"}}, []string{"Aqua", "Bonaqua"}, 2},
		{"NameContains", product.Filter{Sort: product.SortNameAsc, Name: "AQUA"}, []string{"Aqua", "Bonaqua"}, 2},
		{"IDs", product.Filter{Sort: product.SortNameAsc, IDs: []string{ids["Cola"]}}, []string{"Cola"}, 1},
		{"NoIDs", product.Filter{IDs: []string{}}, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := tt.filter
			f.TenantID = tn
			var got []string
			var total int
			do(t, u, func(ctx context.Context, r uow.Repositories) error {
				items, n, err := r.Products.List(ctx, f)
				for _, p := range items {
					got = append(got, p.Name)
				}
				total = n
				return err
			})
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.total, total)
		})
	}
}

func testPriceTiers(t *testing.T, u uow.UnitOfWork) {
	p := newProduct(tenant(), "Juice", "")
	tiers := []*price.Tier{
		{ID: uuid.NewString(), ProductID: p.ID, Type: price.TierDefault, Level: price.DefaultLevel,
			Prices: price.Prices{Price: decimal.NewFromInt(100), Cost: decimal.NewFromInt(60)}},
		{ID: uuid.NewString(), ProductID: p.ID, Type: price.TierCustom, Level: 5, EntityReferences: []string{"m1"},
			Prices: price.Prices{Price: decimal.RequireFromString("95.50"), Cost: decimal.NewFromInt(60)}},
	}
	do(t, u, func(ctx context.Context, r uow.Repositories) error {
		if err := r.Products.Create(ctx, p); err != nil {
			return err
		}
		for _, tier := range tiers {
			if err := r.Prices.Create(ctx, tier); err != nil {
				return err
			}
			if err := r.Products.AppendPriceTier(ctx, p.ID, tier.ID); err != nil {
				return err
			}
		}
		return nil
	})

	do(t, u, func(ctx context.Context, r uow.Repositories) error {
		got, err := r.Products.GetByID(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{tiers[0].ID, tiers[1].ID}, got.PriceTierIDs)

		list, err := r.Prices.ListByProduct(ctx, p.ID)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, price.TierCustom, list[1].Type)
		assert.Equal(t, []string{"m1"}, list[1].EntityReferences)
		assert.True(t, decimal.RequireFromString("95.5").Equal(list[1].Prices.Price))

		byProduct, err := r.Prices.ListByProducts(ctx, []string{p.ID, "missing"})
		require.NoError(t, err)
		assert.Len(t, byProduct[p.ID], 2)

		_, err = r.Prices.GetByID(ctx, "missing")
		assert.ErrorIs(t, err, price.ErrNotFound)
		return nil
	})
}

func testVisibility(t *testing.T, u uow.UnitOfWork) {
	tn := tenant()
	list := func(merchant string) []string {
		var ids []string
		do(t, u, func(ctx context.Context, r uow.Repositories) error {
			var err error
			ids, err = r.Visibility.ListVisibleProductIDs(ctx, tn, merchant)
			return err
		})
		return ids
	}

	do(t, u, func(ctx context.Context, r uow.Repositories) error {
		return r.Visibility.Add(ctx, tn, []string{"p2", "p1"}, []string{"m1", "m2"})
	})
	do(t, u, func(ctx context.Context, r uow.Repositories) error {
		return r.Visibility.Add(ctx, tn, []string{"p1"}, []string{"m1"})
	})
	assert.Equal(t, []string{"p1", "p2"}, list("m1"))
	assert.Equal(t, []string{"p1", "p2"}, list("m2"))

	do(t, u, func(ctx context.Context, r uow.Repositories) error {
		return r.Visibility.Remove(ctx, tn, []string{"p2", "p3"}, []string{"m1"})
	})
	assert.Equal(t, []string{"p1"}, list("m1"))
	assert.Equal(t, []string{"p1", "p2"}, list("m2"))
	assert.Empty(t, list("m3"))
}

func testPromos(t *testing.T, u uow.UnitOfWork) {
	ctx := context.Background()
	tn := tenant()
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	ext := &promo.ExternalRef{TenantID: tn, ExternalSystemID: "bas", ExternalPromoID: "promo-1"}

	var typ *promo.Type
	do(t, u, func(ctx context.Context, r uow.Repositories) error {
		var err error
		typ, err = r.PromoTypes.FindByCode(ctx, "z>x%")
		return err
	})
	require.Equal(t, 3, typ.ID)

	newPromo := func(id string, products ...string) *promo.Promo {
		return &promo.Promo{
			ID:                id,
			TenantID:          tn,
			Name:              "Spring",
			StartDate:         start,
			EndDate:           start.AddDate(0, 1, 0),
			ThresholdQuantity: decimal.NewFromInt(10),
			PromoPercent:      decimal.NewFromInt(5),
			IsActive:          true,
			Type:              *typ,
			Products:          products,
			Tradeshops:        []int64{101},
			External:          ext,
		}
	}
	first := newPromo(uuid.NewString(), "p1", "p2")
	do(t, u, func(ctx context.Context, r uow.Repositories) error {
		return r.Promos.Create(ctx, first)
	})

	err := u.Do(ctx, func(ctx context.Context, r uow.Repositories) error {
		return r.Promos.Create(ctx, newPromo(uuid.NewString(), "p3"))
	})
	require.ErrorIs(t, err, promo.ErrDuplicate, "upstream identity is unique")

	do(t, u, func(ctx context.Context, r uow.Repositories) error {
		got, err := r.Promos.FindByExternalRef(ctx, *ext)
		require.NoError(t, err)
		assert.Equal(t, first.ID, got.ID)
		assert.Equal(t, "z>x%", got.Type.Code)
		assert.Equal(t, []int64{101}, got.Tradeshops)

		got.Name = "Spring sale"
		got.Products = []string{"p2"}
		require.NoError(t, r.Promos.Update(ctx, got))

		list, err := r.Promos.ListByProducts(ctx, tn, []string{"p1"})
		require.NoError(t, err)
		assert.Empty(t, list)

		list, err = r.Promos.ListByProduct(ctx, tn, "p2")
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "Spring sale", list[0].Name)
		return nil
	})

	_, err = typFind(ctx, u, "unknown")
	assert.ErrorIs(t, err, promo.ErrUnknownPromoType)
}

func typFind(ctx context.Context, u uow.UnitOfWork, code string) (*promo.Type, error) {
	var typ *promo.Type
	err := u.Do(ctx, func(ctx context.Context, r uow.Repositories) error {
		var err error
		typ, err = r.PromoTypes.FindByCode(ctx, code)
		return err
	})
	return typ, err
}

func testRollback(t *testing.T, u uow.UnitOfWork) {
	ctx := context.Background()
	p := newProduct(tenant(), "Ghost", "")
	boom := errors.New("boom")

	err := u.Do(ctx, func(ctx context.Context, r uow.Repositories) error {
		if err := r.Products.Create(ctx, p); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	do(t, u, func(ctx context.Context, r uow.Repositories) error {
		_, err := r.Products.GetByID(ctx, p.ID)
		assert.ErrorIs(t, err, product.ErrNotFound)
		return nil
	})
}
