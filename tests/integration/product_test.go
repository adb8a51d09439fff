//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func listSeeded(t *testing.T, query string) pageResponse {
	t.Helper()

	resp := doGet(t, "/api/products?customerId="+seedTenant+query)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	return decodeJSON[pageResponse](t, resp)
}

func TestListProducts(t *testing.T) {
	page := listSeeded(t, "&limit=all")
	if page.Total != seedCount {
		t.Fatalf("expected %d products, got %d", seedCount, page.Total)
	}
	if page.TotalPages != 1 {
		t.Errorf("totalPages: got %d, want 1", page.TotalPages)
	}
	for _, it := range page.Data {
		if it.Price.Source != "default" {
			t.Errorf("%s: price source %q, want default", it.Name, it.Price.Source)
		}
		if it.Promos == nil {
			t.Errorf("%s: promos must be an empty array, not null", it.Name)
		}
		if len(it.Prices) != 1 {
			t.Errorf("%s: expected one default tier, got %d", it.Name, len(it.Prices))
		}
	}
}

func TestListProducts_Pagination(t *testing.T) {
	page := listSeeded(t, "&limit=3&page=2")
	if len(page.Data) != 1 {
		t.Fatalf("expected 1 product on page 2, got %d", len(page.Data))
	}
	if page.TotalPages != 2 || page.CurrentPage != 2 {
		t.Errorf("pages: got %d/%d, want 2/2", page.CurrentPage, page.TotalPages)
	}
}

func TestListProducts_Filters(t *testing.T) {
	page := listSeeded(t, "&categories=cat-beverages&sort=name")
	if page.Total != 2 {
		t.Fatalf("expected 2 beverages, got %d", page.Total)
	}
	if page.Data[0].Name != "Orange Juice 1L" {
		t.Errorf("first by name: got %q", page.Data[0].Name)
	}
	if c := page.Data[0].Category; c == nil || c.Name != "Beverages" {
		t.Errorf("category not joined: %+v", c)
	}

	page = listSeeded(t, "&barCode=4600000000035")
	if page.Total != 1 || page.Data[0].Name != "Rye Bread" {
		t.Fatalf("barcode filter: got %+v", page.Data)
	}
}

func TestGetProduct(t *testing.T) {
	want := listSeeded(t, "&barCode=4600000000011").Data[0]

	resp := doGet(t, "/api/products/"+want.ID+"?customerId="+seedTenant)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	got := decodeJSON[itemResponse](t, resp)
	if got.Name != "Sparkling Water 0.5" || got.Slug != "sparkling-water-0-5" {
		t.Errorf("product: got %q / %q", got.Name, got.Slug)
	}
	if got.Price.Price != 650 || got.Price.Cost != 410 {
		t.Errorf("price: got %+v, want 650/410", got.Price)
	}
}

func TestGetProduct_NotFound(t *testing.T) {
	resp := doGet(t, "/api/products/nonexistent")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	body := decodeJSON[errorResponse](t, resp)
	if body.Code != http.StatusNotFound {
		t.Errorf("code: got %d", body.Code)
	}
}

func TestCreateProduct_Unauthorized(t *testing.T) {
	body := map[string]any{"customerId": "tenant-it", "name": "Nope"}

	for name, key := range map[string]string{"NoKey": "", "WrongKey": "wrong"} {
		t.Run(name, func(t *testing.T) {
			resp := doPostWithAuth(t, "/api/products", body, key)
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", resp.StatusCode)
			}
		})
	}
}

func TestCreateProductAndTier(t *testing.T) {
	resp := doPostWithAuth(t, "/api/products", map[string]any{
		"customerId": "tenant-it",
		"name":       "Mineral Water 1.5",
		"barCode":    "4600000000509",
		"inCase":     6,
		"price":      900,
		"cost":       600,
	}, apiKey)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", resp.StatusCode)
	}
	created := decodeJSON[itemResponse](t, resp)

	// Same barcode again is rejected.
	dup := doPostWithAuth(t, "/api/products/bulk", []map[string]any{
		{"customerId": "tenant-it", "name": "Copy", "barCode": "4600000000509"},
	}, apiKey)
	defer dup.Body.Close()
	if dup.StatusCode != http.StatusBadRequest {
		t.Fatalf("duplicate: expected 400, got %d", dup.StatusCode)
	}

	tierResp := doPostWithAuth(t, "/api/products/"+created.ID+"/prices", map[string]any{
		"type":             "custom",
		"level":            10,
		"entityReferences": []string{"merchant-it"},
		"price":            850,
		"cost":             600,
	}, apiKey)
	defer tierResp.Body.Close()
	if tierResp.StatusCode != http.StatusCreated {
		t.Fatalf("tier: expected 201, got %d", tierResp.StatusCode)
	}
	tier := decodeJSON[tierResponse](t, tierResp)

	priceResp := doGet(t, "/api/products/"+created.ID+"/price?merchantId=merchant-it")
	defer priceResp.Body.Close()
	res := decodeJSON[resolutionResponse](t, priceResp)
	if !res.Found || res.TierID != tier.ID || res.Price != 850 {
		t.Errorf("merchant price: got %+v", res)
	}

	priceResp = doGet(t, "/api/products/"+created.ID+"/price?merchantId=someone-else")
	defer priceResp.Body.Close()
	res = decodeJSON[resolutionResponse](t, priceResp)
	if res.Type != "default" || res.Price != 900 {
		t.Errorf("fallback price: got %+v", res)
	}
}

func TestMerchantVisibility_RequiresMerchant(t *testing.T) {
	resp := doGet(t, "/api/merchant-products?customerId="+seedTenant)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}
