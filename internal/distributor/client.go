// Package distributor fetches live stock and price snapshots from upstream
// distributor systems.
package distributor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/xenking/catalog-service/internal/integration"
)

// ErrUnauthorized is returned when the distributor rejects credentials.
var ErrUnauthorized = errors.New("distributor rejected credentials")

// Row is the live state of one product for one merchant channel.
type Row struct {
	ProductRef string
	Price      decimal.Decimal
	Quantity   int64
}

// Snapshot indexes rows by upstream product reference.
type Snapshot map[string]Row

// Client talks to one distributor.
type Client struct {
	name    string
	cfg     integration.Snapshot
	http    *http.Client
	limiter *rate.Limiter
	tokens  TokenCache
	group   singleflight.Group
}

// NewClient creates a Client for the integration named name. A nil
// httpClient uses http.DefaultClient; a nil tokens cache keeps tokens in
// memory.
func NewClient(name string, cfg integration.Snapshot, tokens TokenCache, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if tokens == nil {
		tokens = NewMemoryTokens()
	}
	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	return &Client{
		name:    name,
		cfg:     cfg,
		http:    httpClient,
		limiter: rate.NewLimiter(limit, 1),
		tokens:  tokens,
	}
}

// Name returns the integration name.
func (c *Client) Name() string { return c.name }

// ProductsByChannel returns the snapshot for a merchant's trade-shop
// channel. Quantities below the configured minimum are reported as zero.
func (c *Client) ProductsByChannel(ctx context.Context, channel string) (Snapshot, error) {
	body := map[string]string{"tradeshopid": channel}
	if c.cfg.Company != "" {
		body["company"] = c.cfg.Company
	}

	var raw json.RawMessage
	err := c.withToken(ctx, func(token string) error {
		return c.post(ctx, c.cfg.ProductsPath, token, body, &raw)
	})
	if err != nil {
		return nil, err
	}

	rows, err := decodeRows(raw)
	if err != nil {
		return nil, err
	}
	snap := make(Snapshot, len(rows))
	for _, r := range rows {
		ref := strings.TrimSpace(string(r.ProductID))
		if ref == "" {
			continue
		}
		qty := r.Quantity.IntPart()
		if qty < c.cfg.MinQuantity {
			qty = 0
		}
		snap[ref] = Row{ProductRef: ref, Price: r.Price, Quantity: qty}
	}
	return snap, nil
}

// withToken runs fn with a cached token, refreshing it once when the
// distributor rejects it.
func (c *Client) withToken(ctx context.Context, fn func(token string) error) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}
	err = fn(token)
	if !errors.Is(err, ErrUnauthorized) {
		return err
	}

	if err := c.tokens.Delete(ctx, c.name); err != nil {
		return err
	}
	token, err = c.token(ctx)
	if err != nil {
		return err
	}
	return fn(token)
}

func (c *Client) token(ctx context.Context) (string, error) {
	if c.cfg.TokenPath == "" {
		return "", nil
	}
	if token, ok, err := c.tokens.Get(ctx, c.name); err == nil && ok {
		return token, nil
	}

	v, err, _ := c.group.Do(c.name, func() (any, error) {
		var resp struct {
			Token       string `json:"token"`
			AccessToken string `json:"access_token"`
		}
		creds := map[string]string{"username": c.cfg.Username, "password": c.cfg.Password}
		if err := c.post(ctx, c.cfg.TokenPath, "", creds, &resp); err != nil {
			return "", errors.Wrap(err, "fetch token")
		}
		token := resp.Token
		if token == "" {
			token = resp.AccessToken
		}
		if token == "" {
			return "", errors.New("token response without token")
		}
		if err := c.tokens.Set(ctx, c.name, token, c.cfg.TokenTTL); err != nil {
			return "", err
		}
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) post(ctx context.Context, path, token string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limit")
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "marshal request")
	}
	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "post %s", path)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode >= 300:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("post %s: status %d: %s", path, resp.StatusCode, bytes.TrimSpace(msg))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decode %s", path)
	}
	return nil
}

type wireRow struct {
	ProductID flexID          `json:"productid"`
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
}

// decodeRows accepts either a bare array or an object wrapping it in
// "data".
func decodeRows(raw json.RawMessage) ([]wireRow, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var rows []wireRow
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, errors.Wrap(err, "decode snapshot rows")
		}
		return rows, nil
	}
	var wrapped struct {
		Data []wireRow `json:"data"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, errors.Wrap(err, "decode snapshot")
	}
	return wrapped.Data, nil
}

// flexID accepts string or numeric product references.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}
