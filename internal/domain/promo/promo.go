// Package promo describes promotions attached to products and the rules that
// decide whether a promotion currently applies.
package promo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a promo does not exist.
	ErrNotFound = errors.New("promo not found")
	// ErrDuplicate is returned when a promo with the same upstream
	// identity already exists.
	ErrDuplicate = errors.New("promo already exists")
	// ErrUnknownPromoType is returned when an upstream promo type code has
	// no entry in the reference table.
	ErrUnknownPromoType = errors.New("unknown promo type")
)

// Type is an entry of the promo type reference table.
type Type struct {
	ID   int
	Code string
	Name string
}

// KnownTypes are the promo types upstream distributors send.
var KnownTypes = []Type{
	{ID: 1, Code: "x+x", Name: "Buy X get X"},
	{ID: 2, Code: "x+y", Name: "Buy X get Y"},
	{ID: 3, Code: "z>x%", Name: "Quantity over Z, X percent off"},
	{ID: 4, Code: "z>x", Name: "Quantity over Z, X off"},
	{ID: 5, Code: "Z$>x%", Name: "Amount over Z, X percent off"},
	{ID: 6, Code: "Z>(*x,*y)", Name: "Amount over Z, gift products"},
}

// ExternalRef ties a promo to its upstream record.
type ExternalRef struct {
	TenantID         string
	ExternalSystemID string
	ExternalPromoID  string
}

// Promo is a time-windowed promotion on a set of products.
type Promo struct {
	ID                string
	TenantID          string
	Name              string
	StartDate         time.Time
	EndDate           time.Time
	ThresholdQuantity decimal.Decimal
	PromoPercent      decimal.Decimal
	GiftQuantity      decimal.Decimal
	IsActive          bool
	Type              Type
	Products          []string
	GiftProducts      []string
	Tradeshops        []int64
	External          *ExternalRef
	// ThirdParty keeps the upstream payload for reconciliation.
	ThirdParty json.RawMessage
	CreatedAt  time.Time
}

// Patch is a sparse update; nil fields are left untouched.
type Patch struct {
	Name              *string
	StartDate         *time.Time
	EndDate           *time.Time
	ThresholdQuantity *decimal.Decimal
	PromoPercent      *decimal.Decimal
	GiftQuantity      *decimal.Decimal
	IsActive          *bool
	Products          []string
	GiftProducts      []string
	Tradeshops        []int64
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Name == nil && p.StartDate == nil && p.EndDate == nil &&
		p.ThresholdQuantity == nil && p.PromoPercent == nil && p.GiftQuantity == nil &&
		p.IsActive == nil && p.Products == nil && p.GiftProducts == nil && p.Tradeshops == nil
}

// Apply copies the set fields of p onto promo.
func (p Patch) Apply(promo *Promo) {
	if p.Name != nil {
		promo.Name = *p.Name
	}
	if p.StartDate != nil {
		promo.StartDate = *p.StartDate
	}
	if p.EndDate != nil {
		promo.EndDate = *p.EndDate
	}
	if p.ThresholdQuantity != nil {
		promo.ThresholdQuantity = *p.ThresholdQuantity
	}
	if p.PromoPercent != nil {
		promo.PromoPercent = *p.PromoPercent
	}
	if p.GiftQuantity != nil {
		promo.GiftQuantity = *p.GiftQuantity
	}
	if p.IsActive != nil {
		promo.IsActive = *p.IsActive
	}
	if p.Products != nil {
		promo.Products = p.Products
	}
	if p.GiftProducts != nil {
		promo.GiftProducts = p.GiftProducts
	}
	if p.Tradeshops != nil {
		promo.Tradeshops = p.Tradeshops
	}
}

// Repository persists promos. List methods return promos in creation order.
type Repository interface {
	Create(ctx context.Context, p *Promo) error
	GetByID(ctx context.Context, id string) (*Promo, error)
	FindByExternalRef(ctx context.Context, ref ExternalRef) (*Promo, error)
	Update(ctx context.Context, p *Promo) error
	ListByProduct(ctx context.Context, tenantID, productID string) ([]Promo, error)
	ListByProducts(ctx context.Context, tenantID string, productIDs []string) ([]Promo, error)
}

// TypeRepository reads the promo type reference table.
type TypeRepository interface {
	FindByCode(ctx context.Context, code string) (*Type, error)
}
