package memstore

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/xenking/catalog-service/internal/domain/product"
)

var _ product.Repository = products{}

type products struct{ *view }

func cloneProduct(p product.Product) product.Product {
	p.Images = slices.Clone(p.Images)
	p.Attributes = slices.Clone(p.Attributes)
	p.PriceTierIDs = slices.Clone(p.PriceTierIDs)
	return p
}

func barCodeTaken(st *state, tenantID, barCode, exceptID string) bool {
	if barCode == "" {
		return false
	}
	for id, p := range st.products {
		if id != exceptID && p.TenantID == tenantID && p.BarCode == barCode {
			return true
		}
	}
	return false
}

func (r products) Create(_ context.Context, p *product.Product) error {
	st, done, err := r.enter("Products.Create")
	if err != nil {
		return err
	}
	defer done()

	if _, ok := st.products[p.ID]; ok || barCodeTaken(st, p.TenantID, p.BarCode, "") {
		return product.ErrDuplicate
	}
	st.products[p.ID] = cloneProduct(*p)
	st.created[p.ID] = st.next()
	return nil
}

func (r products) GetByID(_ context.Context, id string) (*product.Product, error) {
	st, done, err := r.enter("Products.GetByID")
	if err != nil {
		return nil, err
	}
	defer done()

	p, ok := st.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	out := cloneProduct(p)
	return &out, nil
}

func (r products) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	st, done, err := r.enter("Products.GetByIDs")
	if err != nil {
		return nil, err
	}
	defer done()

	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := st.products[id]; ok {
			out = append(out, cloneProduct(p))
		}
	}
	return out, nil
}

func (r products) FindByExternalRef(_ context.Context, ref product.ExternalRef) (*product.Product, error) {
	st, done, err := r.enter("Products.FindByExternalRef")
	if err != nil {
		return nil, err
	}
	defer done()

	id, ok := st.refs[refKey{ref.TenantID, ref.ExternalSystemID, ref.ExternalProductID}]
	if !ok {
		return nil, product.ErrNotFound
	}
	p, ok := st.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	out := cloneProduct(p)
	return &out, nil
}

func (r products) AddExternalRef(_ context.Context, productID string, ref product.ExternalRef) error {
	st, done, err := r.enter("Products.AddExternalRef")
	if err != nil {
		return err
	}
	defer done()

	k := refKey{ref.TenantID, ref.ExternalSystemID, ref.ExternalProductID}
	if _, ok := st.refs[k]; ok {
		return product.ErrDuplicate
	}
	st.refs[k] = productID
	return nil
}

func (r products) ExternalIDs(_ context.Context, externalSystemID string, productIDs []string) (map[string]string, error) {
	st, done, err := r.enter("Products.ExternalIDs")
	if err != nil {
		return nil, err
	}
	defer done()

	out := make(map[string]string, len(productIDs))
	for k, id := range st.refs {
		if k.system == externalSystemID && slices.Contains(productIDs, id) {
			out[id] = k.external
		}
	}
	return out, nil
}

func (r products) ExistingBarCodes(_ context.Context, tenantID string, barCodes []string) ([]string, error) {
	st, done, err := r.enter("Products.ExistingBarCodes")
	if err != nil {
		return nil, err
	}
	defer done()

	var out []string
	for _, code := range barCodes {
		if barCodeTaken(st, tenantID, code, "") && !slices.Contains(out, code) {
			out = append(out, code)
		}
	}
	return out, nil
}

func (r products) AppendPriceTier(_ context.Context, productID, tierID string) error {
	st, done, err := r.enter("Products.AppendPriceTier")
	if err != nil {
		return err
	}
	defer done()

	p, ok := st.products[productID]
	if !ok {
		return product.ErrNotFound
	}
	p = cloneProduct(p)
	p.PriceTierIDs = append(p.PriceTierIDs, tierID)
	st.products[productID] = p
	return nil
}

func (r products) Update(_ context.Context, p *product.Product) error {
	st, done, err := r.enter("Products.Update")
	if err != nil {
		return err
	}
	defer done()

	cur, ok := st.products[p.ID]
	if !ok {
		return product.ErrNotFound
	}
	if barCodeTaken(st, cur.TenantID, p.BarCode, p.ID) {
		return product.ErrDuplicate
	}
	next := cloneProduct(*p)
	next.TenantID = cur.TenantID
	next.PriceTierIDs = cur.PriceTierIDs
	next.CreatedAt = cur.CreatedAt
	st.products[p.ID] = next
	return nil
}

func (r products) SetActive(_ context.Context, tenantID, id string, active bool) error {
	st, done, err := r.enter("Products.SetActive")
	if err != nil {
		return err
	}
	defer done()

	p, ok := st.products[id]
	if !ok || p.TenantID != tenantID {
		return product.ErrNotFound
	}
	p.IsActive = active
	st.products[id] = p
	return nil
}

func (r products) SetInventory(_ context.Context, id, inventoryID string) error {
	st, done, err := r.enter("Products.SetInventory")
	if err != nil {
		return err
	}
	defer done()

	p, ok := st.products[id]
	if !ok {
		return product.ErrNotFound
	}
	p.InventoryID = inventoryID
	st.products[id] = p
	return nil
}

func (r products) List(_ context.Context, f product.Filter) ([]product.Product, int, error) {
	st, done, err := r.enter("Products.List")
	if err != nil {
		return nil, 0, err
	}
	defer done()

	var matched []product.Product
	for _, p := range st.products {
		if matches(p, f) {
			matched = append(matched, cloneProduct(p))
		}
	}
	slices.SortFunc(matched, productOrder(f.Sort, st.created))

	total := len(matched)
	if f.Offset > 0 {
		matched = matched[min(f.Offset, len(matched)):]
	}
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, total, nil
}

func matches(p product.Product, f product.Filter) bool {
	switch {
	case f.TenantID != "" && p.TenantID != f.TenantID:
		return false
	case f.IDs != nil && !slices.Contains(f.IDs, p.ID):
		return false
	case f.Name != "" && !containsFold(p.Name, f.Name) && !containsFold(p.Slug, f.Name):
		return false
	case f.BarCode != "" && p.BarCode != f.BarCode:
		return false
	case f.VendorID != "" && p.VendorID != f.VendorID:
		return false
	case len(f.BrandIDs) > 0 && !slices.Contains(f.BrandIDs, p.BrandID):
		return false
	case len(f.CategoryIDs) > 0 && !slices.Contains(f.CategoryIDs, p.CategoryID):
		return false
	case f.InCase != nil && p.InCase != *f.InCase:
		return false
	case f.OnlyActive && !p.IsActive:
		return false
	}
	if len(f.AttributeValues) > 0 {
		return slices.ContainsFunc(p.Attributes, func(a product.Attribute) bool {
			return slices.Contains(f.AttributeValues, fmt.Sprint(a.Value))
		})
	}
	return true
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func productOrder(s product.Sort, created map[string]int) func(a, b product.Product) int {
	newest := func(a, b product.Product) int { return created[b.ID] - created[a.ID] }
	switch s {
	case product.SortNewest, product.SortUpdatedAt:
		return newest
	case product.SortNameAsc:
		return func(a, b product.Product) int {
			if c := strings.Compare(a.Name, b.Name); c != 0 {
				return c
			}
			return strings.Compare(a.ID, b.ID)
		}
	default:
		return func(a, b product.Product) int {
			if a.Priority != b.Priority {
				return b.Priority - a.Priority
			}
			return newest(a, b)
		}
	}
}
