package handler

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-faster/jx"

	"github.com/xenking/catalog-service/internal/catalog"
	"github.com/xenking/catalog-service/internal/domain/product"
)

// caller reads the price context of a read request.
func caller(q url.Values) catalog.Caller {
	return catalog.Caller{
		MerchantID:     q.Get("merchantId"),
		BusinessTypeID: q.Get("businessTypeId"),
		CustomerID:     q.Get("buyerId"),
		CategoryID:     q.Get("categoryId"),
	}
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseQuery(q url.Values) (catalog.Query, error) {
	query := catalog.Query{
		TenantID:        q.Get("customerId"),
		Caller:          caller(q),
		IDs:             splitList(q.Get("ids")),
		Name:            q.Get("name"),
		BarCode:         q.Get("barCode"),
		VendorID:        q.Get("vendorId"),
		BrandIDs:        splitList(q.Get("brands")),
		CategoryIDs:     splitList(q.Get("categories")),
		AttributeValues: splitList(q.Get("attributeValues")),
		OnlyActive:      q.Get("isActive") == "true",
		Sort:            product.Sort(q.Get("sort")),
	}
	if v := q.Get("inCase"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return query, &catalog.ValidationError{Field: "inCase", Reason: "must be an integer"}
		}
		query.InCase = &n
	}
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return query, &catalog.ValidationError{Field: "page", Reason: "must be a positive integer"}
		}
		query.Page = n
	}
	switch v := q.Get("limit"); v {
	case "":
	case "all":
		query.All = true
	default:
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return query, &catalog.ValidationError{Field: "limit", Reason: "must be a positive integer or 'all'"}
		}
		query.Limit = n
	}
	switch query.Sort {
	case "", product.SortPriority, product.SortNewest, product.SortNameAsc, product.SortUpdatedAt:
	default:
		return query, &catalog.ValidationError{Field: "sort", Reason: "unknown order " + strconv.Quote(string(query.Sort))}
	}
	return query, nil
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	query, err := parseQuery(r.URL.Query())
	if err != nil {
		fail(w, r, err)
		return
	}
	page, err := h.catalog.List(r.Context(), query)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodePage(e, page) })
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	item, err := h.catalog.Get(r.Context(), q.Get("customerId"), r.PathValue("id"), caller(q))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeItem(e, *item) })
}

func (h *Handler) resolvePrice(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	res, err := h.catalog.ResolvePrice(r.Context(), id, caller(r.URL.Query()))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeResolution(e, id, res) })
}

func (h *Handler) createTier(w http.ResponseWriter, r *http.Request) {
	in, err := decodeBody(w, r, decodeNewTier)
	if err != nil {
		fail(w, r, err)
		return
	}
	tier, err := h.catalog.CreateTier(r.Context(), r.PathValue("id"), in)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeTier(e, tier) })
}

func (h *Handler) getTier(w http.ResponseWriter, r *http.Request) {
	tier, err := h.catalog.GetTier(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeTier(e, tier) })
}

func (h *Handler) getPromo(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.GetPromo(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodePromo(e, *p) })
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	in, err := decodeBody(w, r, decodeNewProduct)
	if err != nil {
		fail(w, r, err)
		return
	}
	p, err := h.catalog.Create(r.Context(), in)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { h.encodeProduct(e, *p) })
}

func (h *Handler) bulkCreate(w http.ResponseWriter, r *http.Request) {
	in, err := decodeBody(w, r, decodeNewProducts)
	if err != nil {
		fail(w, r, err)
		return
	}
	created, err := h.catalog.BulkCreate(r.Context(), in)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("data")
		e.ArrStart()
		for _, p := range created {
			h.encodeProduct(e, p)
		}
		e.ArrEnd()
		e.FieldStart("total")
		e.Int(len(created))
		e.ObjEnd()
	})
}

func (h *Handler) merchantProducts(w http.ResponseWriter, r *http.Request) {
	page, err := h.catalog.MerchantProducts(r.Context(), r.URL.Query().Get("customerId"), r.PathValue("merchantId"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodePage(e, page) })
}

// merchantVisibility lists the product IDs a merchant may see.
func (h *Handler) merchantVisibility(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ids, err := h.catalog.VisibleProductIDs(r.Context(), q.Get("customerId"), q.Get("merchantId"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("data")
		encodeStrings(e, ids)
		e.FieldStart("total")
		e.Int(len(ids))
		e.ObjEnd()
	})
}
