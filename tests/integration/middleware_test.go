//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func TestMiddlewareHeaders(t *testing.T) {
	origin := http.Header{"Origin": {"http://shop.example"}}

	tests := []struct {
		name   string
		method string
		path   string
		header http.Header
		status int
		want   []string
	}{
		{
			name:   "RequestIDGenerated",
			method: http.MethodGet,
			path:   "/livez",
			status: http.StatusOK,
			want:   []string{"X-Request-ID"},
		},
		{
			name:   "Preflight",
			method: http.MethodOptions,
			path:   "/api/products",
			header: http.Header{
				"Origin":                        {"http://shop.example"},
				"Access-Control-Request-Method": {"GET"},
			},
			status: http.StatusNoContent,
			want:   []string{"Access-Control-Allow-Origin", "Access-Control-Allow-Methods"},
		},
		{
			name:   "SimpleCORS",
			method: http.MethodGet,
			path:   "/api/products?customerId=" + seedTenant,
			header: origin,
			status: http.StatusOK,
			want:   []string{"Access-Control-Allow-Origin", "Access-Control-Expose-Headers"},
		},
		{
			name:   "RateLimit",
			method: http.MethodGet,
			path:   "/api/products?customerId=" + seedTenant,
			status: http.StatusOK,
			want:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := request(t, tt.method, tt.path, nil, tt.header)
			defer resp.Body.Close()

			if resp.StatusCode != tt.status {
				t.Fatalf("status: got %d, want %d", resp.StatusCode, tt.status)
			}
			for _, h := range tt.want {
				if resp.Header.Get(h) == "" {
					t.Errorf("%s header not present", h)
				}
			}
		})
	}
}

func TestRequestID_Echoed(t *testing.T) {
	const id = "catalog-it-0001"
	resp := request(t, http.MethodGet, "/livez", nil, http.Header{"X-Request-Id": {id}})
	defer resp.Body.Close()

	if got := resp.Header.Get("X-Request-ID"); got != id {
		t.Errorf("X-Request-ID: got %q, want %q", got, id)
	}
}
