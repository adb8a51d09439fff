package catalog

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/catalog-service/internal/domain/price"
	"github.com/xenking/catalog-service/internal/domain/product"
	"github.com/xenking/catalog-service/internal/domain/uow"
)

// ValidationError rejects caller input. Nothing is written when it is
// returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// MaxBulkSize caps BulkCreate.
const MaxBulkSize = 500

// NewProduct is a product submitted by a tenant.
type NewProduct struct {
	TenantID    string
	Name        string
	BarCode     string
	VendorID    string
	BrandID     string
	CategoryID  string
	Description string
	Images      []string
	Attributes  []product.Attribute
	InCase      int
	Priority    int
	// Price and Cost seed the default tier.
	Price decimal.Decimal
	Cost  decimal.Decimal
}

func (n NewProduct) validate() error {
	switch {
	case strings.TrimSpace(n.TenantID) == "":
		return &ValidationError{Field: "customerId", Reason: "required"}
	case strings.TrimSpace(n.Name) == "":
		return &ValidationError{Field: "name", Reason: "required"}
	case n.InCase < 0:
		return &ValidationError{Field: "inCase", Reason: "must not be negative"}
	case n.Price.IsNegative():
		return &ValidationError{Field: "price", Reason: "must not be negative"}
	case n.Cost.IsNegative():
		return &ValidationError{Field: "cost", Reason: "must not be negative"}
	}
	for _, a := range n.Attributes {
		if strings.TrimSpace(a.Key) == "" && strings.TrimSpace(a.Name) == "" {
			return &ValidationError{Field: "attributes", Reason: "key or name required"}
		}
	}
	return nil
}

// Create stores one product with its default tier and announces it.
func (s *Service) Create(ctx context.Context, in NewProduct) (*product.Product, error) {
	created, err := s.create(ctx, []NewProduct{in})
	if err != nil {
		return nil, err
	}
	p := &created[0]
	if s.publisher != nil {
		if err := s.publisher.ProductCreated(ctx, product.NewCreatedEvent(p)); err != nil {
			zctx.From(ctx).Error("Publish product created", zap.String("product_id", p.ID), zap.Error(err))
		}
	}
	return p, nil
}

// BulkCreate stores all products or none. Barcodes must be unique within
// the batch and unknown to the tenant.
func (s *Service) BulkCreate(ctx context.Context, in []NewProduct) ([]product.Product, error) {
	switch {
	case len(in) == 0:
		return nil, &ValidationError{Field: "products", Reason: "empty batch"}
	case len(in) > MaxBulkSize:
		return nil, &ValidationError{Field: "products", Reason: fmt.Sprintf("at most %d per batch", MaxBulkSize)}
	}
	created, err := s.create(ctx, in)
	if err != nil {
		return nil, err
	}
	if s.publisher != nil {
		events := make([]product.CreatedEvent, len(created))
		for i := range created {
			events[i] = product.NewCreatedEvent(&created[i])
		}
		if err := s.publisher.ProductsCreated(ctx, events); err != nil {
			zctx.From(ctx).Error("Publish products created", zap.Int("count", len(events)), zap.Error(err))
		}
	}
	return created, nil
}

type barKey struct {
	tenant, code string
}

func (s *Service) create(ctx context.Context, in []NewProduct) ([]product.Product, error) {
	byTenant := make(map[string][]string)
	seen := make(map[barKey]struct{})
	for i, n := range in {
		if err := n.validate(); err != nil {
			var ve *ValidationError
			if len(in) > 1 && errors.As(err, &ve) {
				ve.Field = fmt.Sprintf("products[%d].%s", i, ve.Field)
			}
			return nil, err
		}
		code := strings.TrimSpace(n.BarCode)
		if code == "" {
			continue
		}
		k := barKey{tenant: n.TenantID, code: code}
		if _, ok := seen[k]; ok {
			return nil, &ValidationError{Field: "barCode", Reason: "duplicated in batch: " + code}
		}
		seen[k] = struct{}{}
		byTenant[n.TenantID] = append(byTenant[n.TenantID], code)
	}

	out := make([]product.Product, 0, len(in))
	err := s.uow.Do(ctx, func(ctx context.Context, r uow.Repositories) error {
		for tenantID, codes := range byTenant {
			existing, err := r.Products.ExistingBarCodes(ctx, tenantID, codes)
			if err != nil {
				return errors.Wrap(err, "check barcodes")
			}
			if len(existing) > 0 {
				slices.Sort(existing)
				return &ValidationError{Field: "barCode", Reason: "already exists: " + strings.Join(existing, ", ")}
			}
		}

		for _, n := range in {
			p := s.newProduct(n)
			if err := r.Products.Create(ctx, p); err != nil {
				if errors.Is(err, product.ErrDuplicate) {
					return &ValidationError{Field: "barCode", Reason: "already exists: " + p.BarCode}
				}
				return errors.Wrap(err, "create product")
			}
			tier := &price.Tier{
				ID:        s.newID(),
				ProductID: p.ID,
				Type:      price.TierDefault,
				Level:     price.DefaultLevel,
				Prices:    price.Prices{Price: n.Price, Cost: n.Cost},
			}
			if err := r.Prices.Create(ctx, tier); err != nil {
				return errors.Wrap(err, "create default tier")
			}
			if err := r.Products.AppendPriceTier(ctx, p.ID, tier.ID); err != nil {
				return errors.Wrap(err, "link default tier")
			}
			p.PriceTierIDs = append(p.PriceTierIDs, tier.ID)
			out = append(out, *p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) newProduct(n NewProduct) *product.Product {
	name := strings.TrimSpace(n.Name)
	images := slices.Clone(n.Images)
	if len(images) == 0 && s.image != "" {
		images = []string{s.image}
	}
	attrs := make([]product.Attribute, 0, len(n.Attributes))
	for _, a := range n.Attributes {
		if a.ID == "" {
			a.ID = s.newID()
		}
		if a.Key == "" {
			a.Key = product.Slugify(a.Name)
		}
		if a.Slug == "" {
			a.Slug = product.Slugify(firstNonEmpty(a.Name, a.Key))
		}
		attrs = append(attrs, a)
	}
	return &product.Product{
		ID:          s.newID(),
		TenantID:    n.TenantID,
		Name:        name,
		Slug:        product.Slugify(name),
		BarCode:     strings.TrimSpace(n.BarCode),
		VendorID:    n.VendorID,
		BrandID:     n.BrandID,
		CategoryID:  n.CategoryID,
		Description: n.Description,
		Images:      images,
		Attributes:  attrs,
		InCase:      n.InCase,
		IsActive:    true,
		Priority:    n.Priority,
	}
}

// NewTier is a price tier submitted for an existing product.
type NewTier struct {
	Type             price.TierType
	Level            int
	EntityReferences []string
	Price            decimal.Decimal
	Cost             decimal.Decimal
}

func (n NewTier) validate() error {
	switch {
	case !n.Type.Valid():
		return &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown tier type %q", n.Type)}
	case n.Level < 1:
		return &ValidationError{Field: "level", Reason: "must be at least 1"}
	case n.Type != price.TierDefault && len(n.EntityReferences) == 0:
		return &ValidationError{Field: "entityReferences", Reason: "required for " + string(n.Type) + " tiers"}
	case n.Price.IsNegative():
		return &ValidationError{Field: "price", Reason: "must not be negative"}
	case n.Cost.IsNegative():
		return &ValidationError{Field: "cost", Reason: "must not be negative"}
	}
	return nil
}

// CreateTier attaches a new price tier to productID.
func (s *Service) CreateTier(ctx context.Context, productID string, in NewTier) (*price.Tier, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	tier := &price.Tier{
		ID:               s.newID(),
		ProductID:        productID,
		Type:             in.Type,
		Level:            in.Level,
		EntityReferences: slices.Clone(in.EntityReferences),
		Prices:           price.Prices{Price: in.Price, Cost: in.Cost},
	}
	err := s.uow.Do(ctx, func(ctx context.Context, r uow.Repositories) error {
		if _, err := r.Products.GetByID(ctx, productID); err != nil {
			if errors.Is(err, product.ErrNotFound) {
				return ErrNotFound
			}
			return errors.Wrap(err, "get product")
		}
		if err := r.Prices.Create(ctx, tier); err != nil {
			return errors.Wrap(err, "create tier")
		}
		if err := r.Products.AppendPriceTier(ctx, productID, tier.ID); err != nil {
			return errors.Wrap(err, "link tier")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tier, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
