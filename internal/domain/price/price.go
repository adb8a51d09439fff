// Package price holds price tiers and the resolution rules that pick the
// effective price of a product for a given caller.
package price

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested price tier does not exist.
var ErrNotFound = errors.New("price tier not found")

// TierType distinguishes how a tier is matched against a caller.
type TierType string

const (
	TierDefault  TierType = "default"
	TierCategory TierType = "category"
	TierCustom   TierType = "custom"
)

// Valid reports whether t is one of the known tier types.
func (t TierType) Valid() bool {
	switch t {
	case TierDefault, TierCategory, TierCustom:
		return true
	}
	return false
}

// DefaultLevel is the level of the tier created alongside every product.
const DefaultLevel = 1

// Prices is a price/cost pair.
type Prices struct {
	Price decimal.Decimal
	Cost  decimal.Decimal
}

// Tier is a priced rule attached to a product.
type Tier struct {
	ID               string
	ProductID        string
	Type             TierType
	Level            int
	EntityReferences []string
	Prices           Prices
}

// Repository persists price tiers. ListByProduct and ListByProducts must
// return tiers in insertion order.
type Repository interface {
	Create(ctx context.Context, t *Tier) error
	GetByID(ctx context.Context, id string) (*Tier, error)
	ListByProduct(ctx context.Context, productID string) ([]Tier, error)
	ListByProducts(ctx context.Context, productIDs []string) (map[string][]Tier, error)
}
