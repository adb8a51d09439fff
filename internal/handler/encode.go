package handler

import (
	"fmt"
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/catalog-service/internal/catalog"
	"github.com/xenking/catalog-service/internal/directory"
	"github.com/xenking/catalog-service/internal/domain/brand"
	"github.com/xenking/catalog-service/internal/domain/category"
	"github.com/xenking/catalog-service/internal/domain/price"
	"github.com/xenking/catalog-service/internal/domain/product"
	"github.com/xenking/catalog-service/internal/domain/promo"
)

func encodeDecimal(e *jx.Encoder, d decimal.Decimal) {
	e.Num(jx.Num(d.String()))
}

func encodeTime(e *jx.Encoder, t time.Time) {
	if t.IsZero() {
		e.Null()
		return
	}
	e.Str(t.UTC().Format(time.RFC3339))
}

func encodeStrings(e *jx.Encoder, values []string) {
	e.ArrStart()
	for _, v := range values {
		e.Str(v)
	}
	e.ArrEnd()
}

func optStr(e *jx.Encoder, name, v string) {
	if v == "" {
		return
	}
	e.FieldStart(name)
	e.Str(v)
}

func encodeAttribute(e *jx.Encoder, a product.Attribute) {
	e.ObjStart()
	optStr(e, "id", a.ID)
	e.FieldStart("name")
	e.Str(a.Name)
	e.FieldStart("slug")
	e.Str(a.Slug)
	e.FieldStart("key")
	e.Str(a.Key)
	e.FieldStart("value")
	switch v := a.Value.(type) {
	case nil:
		e.Null()
	case string:
		e.Str(v)
	case float64:
		e.Float64(v)
	case int:
		e.Int(v)
	case int64:
		e.Int64(v)
	case bool:
		e.Bool(v)
	default:
		e.Str(fmt.Sprint(v))
	}
	e.ObjEnd()
}

// encodeProductFields writes the stored product shape without the enclosing
// braces.
func (h *Handler) encodeProductFields(e *jx.Encoder, p product.Product) {
	e.FieldStart("id")
	e.Str(p.ID)
	e.FieldStart("customerId")
	e.Str(p.TenantID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("slug")
	e.Str(p.Slug)
	optStr(e, "barCode", p.BarCode)
	optStr(e, "vendorId", p.VendorID)
	optStr(e, "brandId", p.BrandID)
	optStr(e, "categoryId", p.CategoryID)
	optStr(e, "inventoryId", p.InventoryID)
	optStr(e, "description", p.Description)
	e.FieldStart("images")
	e.ArrStart()
	for _, img := range p.Images {
		e.Str(h.imageURL(img))
	}
	e.ArrEnd()
	e.FieldStart("attributes")
	e.ArrStart()
	for _, a := range p.Attributes {
		encodeAttribute(e, a)
	}
	e.ArrEnd()
	e.FieldStart("prices")
	encodeStrings(e, p.PriceTierIDs)
	e.FieldStart("inCase")
	e.Int(p.InCase)
	e.FieldStart("isActive")
	e.Bool(p.IsActive)
	e.FieldStart("priority")
	e.Int(p.Priority)
	e.FieldStart("createdAt")
	encodeTime(e, p.CreatedAt)
	e.FieldStart("updatedAt")
	encodeTime(e, p.UpdatedAt)
}

func (h *Handler) encodeProduct(e *jx.Encoder, p product.Product) {
	e.ObjStart()
	h.encodeProductFields(e, p)
	e.ObjEnd()
}

func encodeBrand(e *jx.Encoder, b *brand.Brand) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(b.ID)
	e.FieldStart("name")
	e.Str(b.Name)
	e.FieldStart("slug")
	e.Str(b.Slug)
	optStr(e, "image", b.Image)
	e.FieldStart("isActive")
	e.Bool(b.IsActive)
	e.ObjEnd()
}

func encodeCategory(e *jx.Encoder, c *category.Category) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(c.ID)
	e.FieldStart("name")
	e.Str(c.Name)
	e.FieldStart("slug")
	e.Str(c.Slug)
	e.ObjEnd()
}

func encodeCustomer(e *jx.Encoder, c *directory.Customer) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(c.ID)
	e.FieldStart("name")
	e.Str(c.Name)
	optStr(e, "type", c.Type)
	optStr(e, "logo", c.Logo)
	optStr(e, "phone", c.Phone)
	e.ObjEnd()
}

func encodeInventory(e *jx.Encoder, inv *directory.Inventory) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(inv.ID)
	e.FieldStart("totalStock")
	e.Int64(inv.TotalStock)
	e.FieldStart("reservedStock")
	e.Int64(inv.ReservedStock)
	e.FieldStart("availableStock")
	e.Int64(inv.AvailableStock)
	e.ObjEnd()
}

func encodePromo(e *jx.Encoder, p promo.Promo) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(p.ID)
	e.FieldStart("customerId")
	e.Str(p.TenantID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("startDate")
	encodeTime(e, p.StartDate)
	e.FieldStart("endDate")
	encodeTime(e, p.EndDate)
	e.FieldStart("thresholdQuantity")
	encodeDecimal(e, p.ThresholdQuantity)
	e.FieldStart("promoPercent")
	encodeDecimal(e, p.PromoPercent)
	e.FieldStart("giftQuantity")
	encodeDecimal(e, p.GiftQuantity)
	e.FieldStart("isActive")
	e.Bool(p.IsActive)
	if p.Type.ID != 0 {
		e.FieldStart("promoTypeId")
		e.Int(p.Type.ID)
		e.FieldStart("promoType")
		e.Str(p.Type.Code)
	}
	e.FieldStart("products")
	encodeStrings(e, p.Products)
	e.FieldStart("giftProducts")
	encodeStrings(e, p.GiftProducts)
	e.FieldStart("tradeshops")
	e.ArrStart()
	for _, ts := range p.Tradeshops {
		e.Int64(ts)
	}
	e.ArrEnd()
	e.ObjEnd()
}

func encodeTier(e *jx.Encoder, t *price.Tier) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(t.ID)
	e.FieldStart("productId")
	e.Str(t.ProductID)
	e.FieldStart("type")
	e.Str(string(t.Type))
	e.FieldStart("level")
	e.Int(t.Level)
	e.FieldStart("entityReferences")
	encodeStrings(e, t.EntityReferences)
	e.FieldStart("prices")
	e.ObjStart()
	e.FieldStart("price")
	encodeDecimal(e, t.Prices.Price)
	e.FieldStart("cost")
	encodeDecimal(e, t.Prices.Cost)
	e.ObjEnd()
	e.ObjEnd()
}

func encodeResolution(e *jx.Encoder, productID string, r price.Resolution) {
	e.ObjStart()
	e.FieldStart("productId")
	e.Str(productID)
	e.FieldStart("found")
	e.Bool(r.Found)
	optStr(e, "tierId", r.TierID)
	optStr(e, "type", string(r.Type))
	if r.Found {
		e.FieldStart("level")
		e.Int(r.Level)
	}
	e.FieldStart("price")
	encodeDecimal(e, r.Prices.Price)
	e.FieldStart("cost")
	encodeDecimal(e, r.Prices.Cost)
	e.ObjEnd()
}

func (h *Handler) encodeItem(e *jx.Encoder, it catalog.Item) {
	e.ObjStart()
	h.encodeProductFields(e, it.Product)

	e.FieldStart("price")
	e.ObjStart()
	e.FieldStart("price")
	encodeDecimal(e, it.Price.Price)
	e.FieldStart("cost")
	encodeDecimal(e, it.Price.Cost)
	e.FieldStart("source")
	e.Str(string(it.Price.Source))
	e.ObjEnd()

	if it.Stock != nil {
		e.FieldStart("stock")
		e.Int64(*it.Stock)
	}
	e.FieldStart("promos")
	e.ArrStart()
	for _, p := range it.Promos {
		encodePromo(e, p)
	}
	e.ArrEnd()
	if it.Brand != nil {
		e.FieldStart("brand")
		encodeBrand(e, it.Brand)
	}
	if it.Category != nil {
		e.FieldStart("category")
		encodeCategory(e, it.Category)
	}
	if it.Customer != nil {
		e.FieldStart("customer")
		encodeCustomer(e, it.Customer)
	}
	if it.Inventory != nil {
		e.FieldStart("inventory")
		encodeInventory(e, it.Inventory)
	}
	e.ObjEnd()
}

func (h *Handler) encodePage(e *jx.Encoder, p *catalog.Page) {
	e.ObjStart()
	e.FieldStart("data")
	e.ArrStart()
	for _, it := range p.Items {
		h.encodeItem(e, it)
	}
	e.ArrEnd()
	e.FieldStart("total")
	e.Int(p.Total)
	e.FieldStart("totalPages")
	e.Int(p.TotalPages)
	e.FieldStart("currentPage")
	e.Int(p.CurrentPage)
	e.ObjEnd()
}
