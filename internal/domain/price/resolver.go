package price

import (
	"context"
	"slices"

	"github.com/go-faster/errors"
)

// Context identifies who is asking for a price. EntityID is matched against
// custom tiers (merchant or customer ID), GroupID against category tiers
// (business type or category ID).
type Context struct {
	EntityID string
	GroupID  string
}

// ForMerchant builds a resolution context for a merchant caller.
func ForMerchant(merchantID, businessTypeID string) Context {
	return Context{EntityID: merchantID, GroupID: businessTypeID}
}

// ForCustomer builds a resolution context for a customer caller.
func ForCustomer(customerID, categoryID string) Context {
	return Context{EntityID: customerID, GroupID: categoryID}
}

// Resolution is the outcome of resolving a product price. A zero Resolution
// (Found == false) carries zero prices.
type Resolution struct {
	Found  bool
	TierID string
	Type   TierType
	Level  int
	Prices Prices
}

// Resolve picks the effective tier for c. tiers must be in insertion order.
//
// Tiers are ranked by level, highest first; among equal levels the
// later-inserted tier ranks first. The first custom tier referencing
// c.EntityID wins, then the first category tier referencing c.GroupID, then
// the default tier with the lowest level. With no tiers the result is zero.
func Resolve(tiers []Tier, c Context) Resolution {
	if len(tiers) == 0 {
		return Resolution{}
	}

	ranked := make([]Tier, len(tiers))
	for i := range tiers {
		ranked[len(tiers)-1-i] = tiers[i]
	}
	slices.SortStableFunc(ranked, func(a, b Tier) int {
		return b.Level - a.Level
	})

	if c.EntityID != "" {
		for _, t := range ranked {
			if t.Type == TierCustom && slices.Contains(t.EntityReferences, c.EntityID) {
				return resolved(t)
			}
		}
	}
	if c.GroupID != "" {
		for _, t := range ranked {
			if t.Type == TierCategory && slices.Contains(t.EntityReferences, c.GroupID) {
				return resolved(t)
			}
		}
	}

	// Strict comparison keeps the later-inserted tier on equal levels.
	var (
		fallback Tier
		ok       bool
	)
	for _, t := range ranked {
		if t.Type != TierDefault {
			continue
		}
		if !ok || t.Level < fallback.Level {
			fallback, ok = t, true
		}
	}
	if ok {
		return resolved(fallback)
	}
	return Resolution{}
}

func resolved(t Tier) Resolution {
	return Resolution{
		Found:  true,
		TierID: t.ID,
		Type:   t.Type,
		Level:  t.Level,
		Prices: t.Prices,
	}
}

// Resolver loads tiers from a Repository and resolves them.
type Resolver struct {
	repo Repository
}

// NewResolver creates a Resolver backed by repo.
func NewResolver(repo Repository) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve returns the effective price of productID for c.
func (r *Resolver) Resolve(ctx context.Context, productID string, c Context) (Resolution, error) {
	tiers, err := r.repo.ListByProduct(ctx, productID)
	if err != nil {
		return Resolution{}, errors.Wrap(err, "list price tiers")
	}
	return Resolve(tiers, c), nil
}

// ResolveMany resolves every product in tiersByProduct for the same caller.
func ResolveMany(tiersByProduct map[string][]Tier, c Context) map[string]Resolution {
	out := make(map[string]Resolution, len(tiersByProduct))
	for id, tiers := range tiersByProduct {
		out[id] = Resolve(tiers, c)
	}
	return out
}
