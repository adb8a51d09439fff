// Package directory reads merchants, customers and inventory records owned
// by neighbouring services.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when the directory has no such record.
var ErrNotFound = errors.New("directory record not found")

// Config locates the directory services.
type Config struct {
	CustomerURL  string        `usage:"Customer service base URL"`
	InventoryURL string        `usage:"Inventory service base URL"`
	Timeout      time.Duration `default:"5s"`
}

// TradeShop is a merchant's identity in one distributor holding.
type TradeShop struct {
	HoldingKey string `json:"holdingKey"`
	TsID       string `json:"tsId"`
}

// Merchant is a retail outlet buying from tenants.
type Merchant struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	BusinessTypeID string      `json:"businessTypeId"`
	TradeShops     []TradeShop `json:"tradeShops"`
}

// Channel returns the merchant's trade-shop ID in the holding.
func (m *Merchant) Channel(holdingKey string) (string, bool) {
	if holdingKey == "" {
		return "", false
	}
	for _, ts := range m.TradeShops {
		if ts.HoldingKey == holdingKey && ts.TsID != "" {
			return ts.TsID, true
		}
	}
	return "", false
}

// Customer is a tenant as seen by buyers.
type Customer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Type  string `json:"type"`
	Logo  string `json:"logo,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Inventory is the stock record of a product.
type Inventory struct {
	ID             string `json:"id"`
	ProductID      string `json:"productId"`
	TotalStock     int64  `json:"totalStock"`
	ReservedStock  int64  `json:"reservedStock"`
	AvailableStock int64  `json:"availableStock"`
}

// Client queries the customer and inventory services over HTTP.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient creates a Client. A nil httpClient uses one with cfg.Timeout.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, http: httpClient}
}

// Merchant fetches one merchant.
func (c *Client) Merchant(ctx context.Context, id string) (*Merchant, error) {
	var m Merchant
	if err := c.get(ctx, c.cfg.CustomerURL, "/api/v1/merchants/"+url.PathEscape(id), nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Customers fetches customers by ID. Unknown IDs are absent from the
// result.
func (c *Client) Customers(ctx context.Context, ids []string) (map[string]Customer, error) {
	out := make(map[string]Customer, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var resp struct {
		Data []Customer `json:"data"`
	}
	q := url.Values{"ids": {strings.Join(ids, ",")}}
	if err := c.get(ctx, c.cfg.CustomerURL, "/api/v1/customers", q, &resp); err != nil {
		return nil, err
	}
	for _, cust := range resp.Data {
		out[cust.ID] = cust
	}
	return out, nil
}

// Inventory fetches one inventory record.
func (c *Client) Inventory(ctx context.Context, id string) (*Inventory, error) {
	var inv Inventory
	if err := c.get(ctx, c.cfg.InventoryURL, "/api/v1/inventory/"+url.PathEscape(id), nil, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (c *Client) get(ctx context.Context, base, path string, q url.Values, out any) error {
	if base == "" {
		return errors.New("directory endpoint not configured")
	}
	u := strings.TrimRight(base, "/") + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "get %s", path)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 300:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("get %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decode %s", path)
	}
	return nil
}
