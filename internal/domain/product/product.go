package product

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrDuplicate is returned when a product collides with an existing one
	// on barcode or external correlation within a tenant.
	ErrDuplicate = errors.New("product already exists")
)

// Product is a catalog item owned by a tenant.
type Product struct {
	ID           string
	TenantID     string
	Name         string
	Slug         string
	BarCode      string
	VendorID     string
	BrandID      string
	CategoryID   string
	InventoryID  string
	Description  string
	Images       []string
	Attributes   []Attribute
	PriceTierIDs []string
	InCase       int
	IsActive     bool
	Priority     int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Attribute is a named product characteristic. Value holds a string or a
// float64.
type Attribute struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// Size attribute identity used by distributor feeds.
const (
	SizeAttributeKey  = "size"
	SizeAttributeName = "Хэмжээ"
	SizeAttributeSlug = "hemzhee"
)

// SizeAttribute builds the size attribute for value.
func SizeAttribute(id string, value any) Attribute {
	return Attribute{
		ID:    id,
		Name:  SizeAttributeName,
		Slug:  SizeAttributeSlug,
		Key:   SizeAttributeKey,
		Value: value,
	}
}

// SetAttribute replaces the attribute with the same key in place, or
// appends a when none exists.
func (p *Product) SetAttribute(a Attribute) {
	for i := range p.Attributes {
		if p.Attributes[i].Key == a.Key {
			a.ID = p.Attributes[i].ID
			p.Attributes[i] = a
			return
		}
	}
	p.Attributes = append(p.Attributes, a)
}

// ExternalRef correlates a product with its record in an upstream system.
type ExternalRef struct {
	TenantID          string
	ExternalSystemID  string
	ExternalProductID string
	Metadata          map[string]any
}

// Filter narrows a product listing.
type Filter struct {
	TenantID        string
	IDs             []string
	Name            string
	BarCode         string
	VendorID        string
	BrandIDs        []string
	CategoryIDs     []string
	AttributeValues []string
	InCase          *int
	OnlyActive      bool
	// Limit <= 0 means no limit.
	Limit  int
	Offset int
	Sort   Sort
}

// Sort selects a listing order.
type Sort string

const (
	SortPriority  Sort = "priority"
	SortNewest    Sort = "newest"
	SortNameAsc   Sort = "name"
	SortUpdatedAt Sort = "updated"
)

// Repository persists products and their external correlation records.
type Repository interface {
	Create(ctx context.Context, p *Product) error
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	// FindByExternalRef locks the row for the rest of the enclosing
	// transaction.
	FindByExternalRef(ctx context.Context, ref ExternalRef) (*Product, error)
	AddExternalRef(ctx context.Context, productID string, ref ExternalRef) error
	ExternalIDs(ctx context.Context, externalSystemID string, productIDs []string) (map[string]string, error)
	ExistingBarCodes(ctx context.Context, tenantID string, barCodes []string) ([]string, error)
	AppendPriceTier(ctx context.Context, productID, tierID string) error
	Update(ctx context.Context, p *Product) error
	SetActive(ctx context.Context, tenantID, id string, active bool) error
	SetInventory(ctx context.Context, id, inventoryID string) error
	List(ctx context.Context, f Filter) ([]Product, int, error)
}
