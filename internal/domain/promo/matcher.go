package promo

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
)

// Active reports whether p applies at now. The window is half-open:
// StartDate is inclusive and EndDate exclusive. When channel is set, p must
// list it among its tradeshops.
func Active(p Promo, now time.Time, channel *int64) bool {
	if !p.IsActive {
		return false
	}
	if now.Before(p.StartDate) || !now.Before(p.EndDate) {
		return false
	}
	if channel != nil && !slices.Contains(p.Tradeshops, *channel) {
		return false
	}
	return true
}

// FilterActive returns the promos of promos that apply to productID at now,
// preserving order.
func FilterActive(promos []Promo, productID string, now time.Time, channel *int64) []Promo {
	var out []Promo
	for _, p := range promos {
		if !slices.Contains(p.Products, productID) {
			continue
		}
		if Active(p, now, channel) {
			out = append(out, p)
		}
	}
	return out
}

// Matcher finds the promos currently applying to products.
type Matcher struct {
	repo Repository
}

// NewMatcher creates a Matcher backed by repo.
func NewMatcher(repo Repository) *Matcher {
	return &Matcher{repo: repo}
}

// MatchActive returns every promo of tenantID applying to productID at now,
// in creation order.
func (m *Matcher) MatchActive(ctx context.Context, productID, tenantID string, channel *int64, now time.Time) ([]Promo, error) {
	promos, err := m.repo.ListByProduct(ctx, tenantID, productID)
	if err != nil {
		return nil, errors.Wrap(err, "list promos")
	}
	return FilterActive(promos, productID, now, channel), nil
}

// MatchActiveMany is MatchActive for a page of products with a single
// repository read.
func (m *Matcher) MatchActiveMany(ctx context.Context, tenantID string, productIDs []string, channel *int64, now time.Time) (map[string][]Promo, error) {
	out := make(map[string][]Promo, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}
	promos, err := m.repo.ListByProducts(ctx, tenantID, productIDs)
	if err != nil {
		return nil, errors.Wrap(err, "list promos")
	}
	for _, id := range productIDs {
		if matched := FilterActive(promos, id, now, channel); len(matched) > 0 {
			out[id] = matched
		}
	}
	return out, nil
}
