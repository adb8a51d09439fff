package directory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/merchants/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "m1" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"id":"m1","name":"Shop","businessTypeId":"bt1",
			"tradeShops":[{"holdingKey":"TD","tsId":"55"},{"holdingKey":"MCSCC","tsId":"101"}]}`))
	})
	mux.HandleFunc("GET /api/v1/customers", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "c1,c2", r.URL.Query().Get("ids"))
		_, _ = w.Write([]byte(`{"data":[{"id":"c1","name":"Cola","type":"supplier"}]}`))
	})
	mux.HandleFunc("GET /api/v1/inventory/{id}", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient(t *testing.T) {
	srv := newTestServer(t)
	c := NewClient(Config{CustomerURL: srv.URL, InventoryURL: srv.URL}, srv.Client())
	ctx := context.Background()

	m, err := c.Merchant(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "bt1", m.BusinessTypeID)

	ch, ok := m.Channel("MCSCC")
	assert.True(t, ok)
	assert.Equal(t, "101", ch)
	_, ok = m.Channel("UNKNOWN")
	assert.False(t, ok)
	_, ok = m.Channel("")
	assert.False(t, ok)

	_, err = c.Merchant(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)

	customers, err := c.Customers(ctx, []string{"c1", "c2"})
	require.NoError(t, err)
	assert.Len(t, customers, 1)
	assert.Equal(t, "Cola", customers["c1"].Name)

	empty, err := c.Customers(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = c.Inventory(ctx, "i1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestClient_Unconfigured(t *testing.T) {
	c := NewClient(Config{}, nil)
	_, err := c.Merchant(context.Background(), "m1")
	assert.Error(t, err)
}
