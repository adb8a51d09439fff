package memstore

import (
	"context"
	"slices"

	"github.com/xenking/catalog-service/internal/domain/brand"
	"github.com/xenking/catalog-service/internal/domain/category"
	"github.com/xenking/catalog-service/internal/domain/price"
	"github.com/xenking/catalog-service/internal/domain/promo"
	"github.com/xenking/catalog-service/internal/domain/visibility"
)

var (
	_ price.Repository     = prices{}
	_ brand.Repository     = brands{}
	_ category.Repository  = categories{}
	_ promo.Repository     = promos{}
	_ promo.TypeRepository = promoTypes{}
	_ visibility.Store     = visibilityStore{}
)

type prices struct{ *view }

func (r prices) Create(_ context.Context, t *price.Tier) error {
	st, done, err := r.enter("Prices.Create")
	if err != nil {
		return err
	}
	defer done()

	tier := *t
	tier.EntityReferences = slices.Clone(t.EntityReferences)
	st.tiers[t.ID] = tier
	st.tierSeq[t.ID] = st.next()
	return nil
}

func (r prices) GetByID(_ context.Context, id string) (*price.Tier, error) {
	st, done, err := r.enter("Prices.GetByID")
	if err != nil {
		return nil, err
	}
	defer done()

	t, ok := st.tiers[id]
	if !ok {
		return nil, price.ErrNotFound
	}
	return &t, nil
}

func (r prices) ListByProduct(ctx context.Context, productID string) ([]price.Tier, error) {
	m, err := r.ListByProducts(ctx, []string{productID})
	if err != nil {
		return nil, err
	}
	return m[productID], nil
}

func (r prices) ListByProducts(_ context.Context, productIDs []string) (map[string][]price.Tier, error) {
	st, done, err := r.enter("Prices.ListByProducts")
	if err != nil {
		return nil, err
	}
	defer done()

	out := make(map[string][]price.Tier, len(productIDs))
	for _, t := range st.tiers {
		if slices.Contains(productIDs, t.ProductID) {
			out[t.ProductID] = append(out[t.ProductID], t)
		}
	}
	for id, tiers := range out {
		out[id] = bySeq(tiers, func(t price.Tier) int { return st.tierSeq[t.ID] })
	}
	return out, nil
}

type brands struct{ *view }

func (r brands) FindByName(_ context.Context, tenantID, name string) (*brand.Brand, error) {
	st, done, err := r.enter("Brands.FindByName")
	if err != nil {
		return nil, err
	}
	defer done()

	for _, b := range st.brands {
		if b.TenantID == tenantID && b.Name == name {
			return &b, nil
		}
	}
	return nil, brand.ErrNotFound
}

func (r brands) Create(_ context.Context, b *brand.Brand) error {
	st, done, err := r.enter("Brands.Create")
	if err != nil {
		return err
	}
	defer done()

	for _, cur := range st.brands {
		if cur.TenantID == b.TenantID && cur.Name == b.Name {
			return brand.ErrAlreadyExists
		}
	}
	st.brands[b.ID] = *b
	return nil
}

func (r brands) GetByIDs(_ context.Context, ids []string) ([]brand.Brand, error) {
	st, done, err := r.enter("Brands.GetByIDs")
	if err != nil {
		return nil, err
	}
	defer done()

	var out []brand.Brand
	for _, id := range ids {
		if b, ok := st.brands[id]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

type categories struct{ *view }

func (r categories) GetByIDs(_ context.Context, ids []string) ([]category.Category, error) {
	st, done, err := r.enter("Categories.GetByIDs")
	if err != nil {
		return nil, err
	}
	defer done()

	var out []category.Category
	for _, id := range ids {
		if c, ok := st.categories[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

type promos struct{ *view }

func clonePromo(p promo.Promo) promo.Promo {
	p.Products = slices.Clone(p.Products)
	p.GiftProducts = slices.Clone(p.GiftProducts)
	p.Tradeshops = slices.Clone(p.Tradeshops)
	if p.External != nil {
		ext := *p.External
		p.External = &ext
	}
	return p
}

func (r promos) Create(_ context.Context, p *promo.Promo) error {
	st, done, err := r.enter("Promos.Create")
	if err != nil {
		return err
	}
	defer done()

	if _, ok := st.promos[p.ID]; ok {
		return promo.ErrDuplicate
	}
	if p.External != nil {
		for _, cur := range st.promos {
			if cur.External != nil && *cur.External == *p.External {
				return promo.ErrDuplicate
			}
		}
	}
	st.promos[p.ID] = clonePromo(*p)
	st.promoSeq[p.ID] = st.next()
	return nil
}

func (r promos) GetByID(_ context.Context, id string) (*promo.Promo, error) {
	st, done, err := r.enter("Promos.GetByID")
	if err != nil {
		return nil, err
	}
	defer done()

	p, ok := st.promos[id]
	if !ok {
		return nil, promo.ErrNotFound
	}
	out := clonePromo(p)
	return &out, nil
}

func (r promos) FindByExternalRef(_ context.Context, ref promo.ExternalRef) (*promo.Promo, error) {
	st, done, err := r.enter("Promos.FindByExternalRef")
	if err != nil {
		return nil, err
	}
	defer done()

	for _, p := range st.promos {
		if p.External != nil && *p.External == ref {
			out := clonePromo(p)
			return &out, nil
		}
	}
	return nil, promo.ErrNotFound
}

func (r promos) Update(_ context.Context, p *promo.Promo) error {
	st, done, err := r.enter("Promos.Update")
	if err != nil {
		return err
	}
	defer done()

	if _, ok := st.promos[p.ID]; !ok {
		return promo.ErrNotFound
	}
	st.promos[p.ID] = clonePromo(*p)
	return nil
}

func (r promos) ListByProduct(ctx context.Context, tenantID, productID string) ([]promo.Promo, error) {
	return r.ListByProducts(ctx, tenantID, []string{productID})
}

func (r promos) ListByProducts(_ context.Context, tenantID string, productIDs []string) ([]promo.Promo, error) {
	st, done, err := r.enter("Promos.ListByProducts")
	if err != nil {
		return nil, err
	}
	defer done()

	var out []promo.Promo
	for _, p := range st.promos {
		if p.TenantID != tenantID {
			continue
		}
		if slices.ContainsFunc(p.Products, func(id string) bool { return slices.Contains(productIDs, id) }) {
			out = append(out, clonePromo(p))
		}
	}
	return bySeq(out, func(p promo.Promo) int { return st.promoSeq[p.ID] }), nil
}

type promoTypes struct{ *view }

func (r promoTypes) FindByCode(_ context.Context, code string) (*promo.Type, error) {
	st, done, err := r.enter("PromoTypes.FindByCode")
	if err != nil {
		return nil, err
	}
	defer done()

	t, ok := st.promoTypes[code]
	if !ok {
		return nil, promo.ErrUnknownPromoType
	}
	return &t, nil
}

type visibilityStore struct{ *view }

func (r visibilityStore) Add(_ context.Context, tenantID string, productIDs, merchantIDs []string) error {
	st, done, err := r.enter("Visibility.Add")
	if err != nil {
		return err
	}
	defer done()

	for _, id := range productIDs {
		k := visKey{id, tenantID}
		e, ok := st.visibility[k]
		if !ok {
			e = visibility.Entry{
				ProductID: id,
				TenantID:  tenantID,
				Type:      visibility.EntryType,
				Level:     visibility.EntryLevel,
			}
		}
		refs := slices.Clone(e.EntityReferences)
		for _, m := range merchantIDs {
			if !slices.Contains(refs, m) {
				refs = append(refs, m)
			}
		}
		e.EntityReferences = refs
		st.visibility[k] = e
	}
	return nil
}

func (r visibilityStore) Remove(_ context.Context, tenantID string, productIDs, merchantIDs []string) error {
	st, done, err := r.enter("Visibility.Remove")
	if err != nil {
		return err
	}
	defer done()

	for _, id := range productIDs {
		k := visKey{id, tenantID}
		e, ok := st.visibility[k]
		if !ok {
			continue
		}
		e.EntityReferences = slices.DeleteFunc(slices.Clone(e.EntityReferences), func(m string) bool {
			return slices.Contains(merchantIDs, m)
		})
		st.visibility[k] = e
	}
	return nil
}

func (r visibilityStore) ListVisibleProductIDs(_ context.Context, tenantID, merchantID string) ([]string, error) {
	st, done, err := r.enter("Visibility.ListVisibleProductIDs")
	if err != nil {
		return nil, err
	}
	defer done()

	out := []string{}
	for k, e := range st.visibility {
		if k.tenant == tenantID && slices.Contains(e.EntityReferences, merchantID) {
			out = append(out, k.product)
		}
	}
	slices.Sort(out)
	return out, nil
}
