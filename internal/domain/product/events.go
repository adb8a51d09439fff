package product

import "context"

// CreatedEvent is the denormalized product announced to other services
// after creation.
type CreatedEvent struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Slug       string      `json:"slug"`
	BarCode    string      `json:"barCode"`
	CustomerID string      `json:"customerId"`
	VendorID   string      `json:"vendorId,omitempty"`
	CategoryID string      `json:"categoryId,omitempty"`
	BrandID    string      `json:"brandId,omitempty"`
	Images     []string    `json:"images"`
	Attributes []Attribute `json:"attributes"`
	Prices     []string    `json:"prices"`
	InCase     int         `json:"inCase"`
	IsActive   bool        `json:"isActive"`
}

// NewCreatedEvent builds the announcement for p.
func NewCreatedEvent(p *Product) CreatedEvent {
	return CreatedEvent{
		ID:         p.ID,
		Name:       p.Name,
		Slug:       p.Slug,
		BarCode:    p.BarCode,
		CustomerID: p.TenantID,
		VendorID:   p.VendorID,
		CategoryID: p.CategoryID,
		BrandID:    p.BrandID,
		Images:     nonNil(p.Images),
		Attributes: nonNil(p.Attributes),
		Prices:     nonNil(p.PriceTierIDs),
		InCase:     p.InCase,
		IsActive:   p.IsActive,
	}
}

// Publisher announces product lifecycle events.
type Publisher interface {
	ProductCreated(ctx context.Context, ev CreatedEvent) error
	ProductsCreated(ctx context.Context, evs []CreatedEvent) error
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
