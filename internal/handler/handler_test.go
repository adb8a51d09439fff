package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/catalog-service/internal/catalog"
	"github.com/xenking/catalog-service/internal/domain/auth"
	"github.com/xenking/catalog-service/internal/domain/price"
	"github.com/xenking/catalog-service/internal/storage/memstore"
)

const (
	tenant   = "tenant-1"
	validKey = "secret-key"
	readKey  = "read-only-key"
)

type fakeKeys struct{}

func (fakeKeys) Authenticate(_ context.Context, key, scope string) (*auth.APIKeyInfo, error) {
	switch key {
	case validKey:
		return &auth.APIKeyInfo{ID: "k1", Name: "backoffice", Scopes: []string{auth.ScopeCatalogWrite}}, nil
	case readKey:
		if scope == "" {
			return &auth.APIKeyInfo{ID: "k2", Name: "reader"}, nil
		}
	}
	return nil, auth.ErrUnauthorized
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	store := memstore.New()
	var n int
	svc := catalog.NewService(catalog.Deps{
		UoW:        store,
		Repos:      store.Repositories(),
		Categories: store.Categories(),
		Now:        func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) },
		NewID: func() string {
			n++
			return fmt.Sprintf("id-%03d", n)
		},
	})
	mux := http.NewServeMux()
	NewHandler(HandlerConfig{ImageBaseURL: "https://cdn.example/"}, svc, fakeKeys{}).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, key, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if key != "" {
		req.Header.Set(APIKeyHeader, key)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var out map[string]any
	if resp.StatusCode != 499 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp.StatusCode, out
}

func TestHandler_CreateAndRead(t *testing.T) {
	srv := newServer(t)

	status, body := do(t, srv, http.MethodPost, "/api/products", validKey, `{
		"customerId": "tenant-1",
		"name": "Coca-Cola 0.5",
		"barCode": "5449000000996",
		"images": ["cola.png"],
		"attributes": [{"name": "Volume", "value": 0.5}],
		"inCase": 12,
		"price": 1500,
		"cost": "900.50"
	}`)
	require.Equal(t, http.StatusCreated, status, body)
	id := body["id"].(string)
	assert.Equal(t, "coca-cola-0-5", body["slug"])
	assert.Equal(t, []any{"https://cdn.example/cola.png"}, body["images"])
	tiers := body["prices"].([]any)
	require.Len(t, tiers, 1)

	status, body = do(t, srv, http.MethodGet, "/api/products/"+id, "", "")
	require.Equal(t, http.StatusOK, status)
	p := body["price"].(map[string]any)
	assert.Equal(t, 1500.0, p["price"])
	assert.Equal(t, 900.5, p["cost"])
	assert.Equal(t, "default", p["source"])
	assert.Equal(t, []any{}, body["promos"])

	status, body = do(t, srv, http.MethodPost, "/api/products/"+id+"/prices", validKey,
		`{"type":"custom","level":5,"entityReferences":["m1"],"prices":{"price":1400,"cost":900}}`)
	require.Equal(t, http.StatusCreated, status, body)
	tierID := body["id"].(string)

	status, body = do(t, srv, http.MethodGet, "/api/products/"+id+"/price?merchantId=m1", "", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1400.0, body["price"])
	assert.Equal(t, tierID, body["tierId"])

	status, body = do(t, srv, http.MethodGet, "/api/prices/"+tierID, "", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "custom", body["type"])

	status, body = do(t, srv, http.MethodGet, "/api/products?customerId="+tenant+"&limit=all", "", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1.0, body["total"])
	assert.Len(t, body["data"], 1)
}

func TestHandler_BulkCreate(t *testing.T) {
	srv := newServer(t)

	status, body := do(t, srv, http.MethodPost, "/api/products/bulk", validKey, `{"products":[
		{"customerId":"tenant-1","name":"A","barCode":"1"},
		{"customerId":"tenant-1","name":"B","barCode":"1"}
	]}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["message"], "duplicated in batch")

	status, body = do(t, srv, http.MethodPost, "/api/products/bulk", validKey, `[
		{"customerId":"tenant-1","name":"A","barCode":"1"},
		{"customerId":"tenant-1","name":"B","barCode":"2"}
	]`)
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, 2.0, body["total"])

	status, body = do(t, srv, http.MethodGet, "/api/products?customerId="+tenant+"&page=2&limit=1", "", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 2.0, body["totalPages"])
	assert.Equal(t, 2.0, body["currentPage"])
}

func TestHandler_Errors(t *testing.T) {
	srv := newServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		key    string
		body   string
		status int
	}{
		{"MissingKey", http.MethodPost, "/api/products", "", `{}`, http.StatusUnauthorized},
		{"UnderScopedKey", http.MethodPost, "/api/products", readKey, `{}`, http.StatusUnauthorized},
		{"MalformedBody", http.MethodPost, "/api/products", validKey, `{"name":`, http.StatusBadRequest},
		{"MissingName", http.MethodPost, "/api/products", validKey, `{"customerId":"t"}`, http.StatusBadRequest},
		{"UnknownProduct", http.MethodGet, "/api/products/ghost", "", "", http.StatusNotFound},
		{"UnknownTier", http.MethodGet, "/api/prices/ghost", "", "", http.StatusNotFound},
		{"UnknownPromo", http.MethodGet, "/api/promos/ghost", "", "", http.StatusNotFound},
		{"TierForUnknownProduct", http.MethodPost, "/api/products/ghost/prices", validKey, `{"type":"default","level":1}`, http.StatusNotFound},
		{"BadLimit", http.MethodGet, "/api/products?limit=zero", "", "", http.StatusBadRequest},
		{"BadPage", http.MethodGet, "/api/products?page=0", "", "", http.StatusBadRequest},
		{"BadSort", http.MethodGet, "/api/products?sort=random", "", "", http.StatusBadRequest},
		{"VisibilityWithoutMerchant", http.MethodGet, "/api/merchant-products?customerId=t", "", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := do(t, srv, tt.method, tt.path, tt.key, tt.body)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, float64(tt.status), body["code"])
		})
	}
}

func TestParseQuery(t *testing.T) {
	q, err := parseQuery(map[string][]string{
		"customerId":      {"t1"},
		"ids":             {"a, b,,c"},
		"brands":          {"b1"},
		"inCase":          {"6"},
		"merchantId":      {"m1"},
		"businessTypeId":  {"bt"},
		"attributeValues": {"0.5"},
		"sort":            {"name"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, q.IDs)
	assert.Equal(t, []string{"b1"}, q.BrandIDs)
	require.NotNil(t, q.InCase)
	assert.Equal(t, 6, *q.InCase)
	assert.Equal(t, catalog.Caller{MerchantID: "m1", BusinessTypeID: "bt"}, q.Caller)
	assert.Nil(t, q.CategoryIDs)
}

func TestDecodeNewProduct(t *testing.T) {
	n, err := decodeNewProduct(jx.DecodeStr(`{
		"customerId": "t1",
		"name": "Cola",
		"barCode": "5449000000996",
		"images": ["cola.png"],
		"attributes": [{"key": "volume", "value": 0.5}],
		"inCase": 12,
		"price": "1500",
		"cost": 900.5,
		"unknown": {"nested": true}
	}`))
	require.NoError(t, err)
	assert.Equal(t, "t1", n.TenantID)
	assert.Equal(t, "Cola", n.Name)
	assert.Equal(t, "5449000000996", n.BarCode)
	assert.Equal(t, []string{"cola.png"}, n.Images)
	require.Len(t, n.Attributes, 1)
	assert.Equal(t, 0.5, n.Attributes[0].Value)
	assert.Equal(t, 12, n.InCase)
	assert.True(t, n.Price.Equal(decimal.NewFromInt(1500)))
	assert.True(t, n.Cost.Equal(decimal.RequireFromString("900.5")))

	_, err = decodeNewProduct(jx.DecodeStr(`{"customerId":"t1","inCase":"twelve"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inCase")
}

func TestDecodeNewTier(t *testing.T) {
	tests := []struct {
		name string
		body string
		want catalog.NewTier
	}{
		{
			name: "Default",
			body: `{"type":"default","level":1}`,
			want: catalog.NewTier{Type: price.TierDefault, Level: 1},
		},
		{
			name: "NestedPrices",
			body: `{"type":"custom","level":5,"entityReferences":["m1"],"prices":{"price":1400,"cost":"900"}}`,
			want: catalog.NewTier{
				Type:             price.TierCustom,
				Level:            5,
				EntityReferences: []string{"m1"},
				Price:            decimal.NewFromInt(1400),
				Cost:             decimal.NewFromInt(900),
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeNewTier(jx.DecodeStr(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want.Type, got.Type)
			assert.Equal(t, tt.want.Level, got.Level)
			assert.Equal(t, tt.want.EntityReferences, got.EntityReferences)
			assert.True(t, tt.want.Price.Equal(got.Price))
			assert.True(t, tt.want.Cost.Equal(got.Cost))
		})
	}

	_, err := decodeNewTier(jx.DecodeStr(`{"level":"high"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "level")
}
