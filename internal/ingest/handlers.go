// Package ingest applies upstream catalog events to the local store.
package ingest

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/catalog-service/internal/domain/brand"
	"github.com/xenking/catalog-service/internal/domain/price"
	"github.com/xenking/catalog-service/internal/domain/product"
	"github.com/xenking/catalog-service/internal/domain/promo"
	"github.com/xenking/catalog-service/internal/domain/uow"
	"github.com/xenking/catalog-service/internal/domain/visibility"
	"github.com/xenking/catalog-service/internal/integration"
)

// ErrInvalidEvent is returned for events missing required fields.
var ErrInvalidEvent = errors.New("invalid event")

// Outcome is the result of applying one event.
type Outcome string

const (
	Applied          Outcome = "applied"
	SkippedDuplicate Outcome = "skipped_duplicate"
	SkippedMissing   Outcome = "skipped_missing"
)

var (
	errDuplicate = errors.New("duplicate event")
	errMissing   = errors.New("missing target")
)

// Handlers applies events inside a unit of work.
type Handlers struct {
	uow       uow.UnitOfWork
	publisher product.Publisher
	newID     func() string
	image     string
}

// Option configures Handlers.
type Option func(*Handlers)

// WithIDGenerator overrides the generator of new record IDs.
func WithIDGenerator(f func() string) Option {
	return func(h *Handlers) { h.newID = f }
}

// NewHandlers creates Handlers. defaultImage is assigned to products and
// brands created from events.
func NewHandlers(u uow.UnitOfWork, publisher product.Publisher, defaultImage string, opts ...Option) *Handlers {
	h := &Handlers{
		uow:       u,
		publisher: publisher,
		newID:     uuid.NewString,
		image:     defaultImage,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handlers) brands(r uow.Repositories) *brand.Resolver {
	return brand.NewResolver(r.Brands, h.newID, product.Slugify, h.image)
}

// NewProduct creates a product, its correlation record and its default
// price tier in one transaction. Replays of a known upstream product are
// skipped without mutation.
func (h *Handlers) NewProduct(ctx context.Context, src integration.Integration, ev NewProductEvent) (Outcome, error) {
	tenantID := ev.tenant(src.TenantID)
	extID := ev.externalID()
	name := strings.TrimSpace(ev.ProductName)
	if tenantID == "" || extID == "" || name == "" {
		return "", errors.Wrap(ErrInvalidEvent, "new product requires tenant, product id and name")
	}

	ref := product.ExternalRef{
		TenantID:          tenantID,
		ExternalSystemID:  src.ExternalSystemID,
		ExternalProductID: extID,
		Metadata:          ev.metadata(),
	}

	var created *product.Product
	err := h.uow.Do(ctx, func(ctx context.Context, r uow.Repositories) error {
		_, err := r.Products.FindByExternalRef(ctx, ref)
		switch {
		case err == nil:
			return errDuplicate
		case !errors.Is(err, product.ErrNotFound):
			return errors.Wrap(err, "lookup correlation")
		}

		p := &product.Product{
			ID:       h.newID(),
			TenantID: tenantID,
			Name:     name,
			Slug:     product.Slugify(name),
			BarCode:  strings.TrimSpace(ev.Barcode),
			VendorID: ev.VendorID,
			Images:   []string{h.image},
			InCase:   ev.InCase,
		}
		if ev.Capacity != nil {
			p.Attributes = []product.Attribute{product.SizeAttribute(h.newID(), *ev.Capacity)}
		}
		if strings.TrimSpace(ev.BrandName) != "" {
			b, err := h.brands(r).FindOrCreate(ctx, tenantID, ev.BrandName)
			if err != nil {
				return errors.Wrap(err, "resolve brand")
			}
			p.BrandID = b.ID
		}

		if err := r.Products.Create(ctx, p); err != nil {
			return errors.Wrap(err, "create product")
		}
		if err := r.Products.AddExternalRef(ctx, p.ID, ref); err != nil {
			return errors.Wrap(err, "add correlation")
		}

		tier := &price.Tier{
			ID:        h.newID(),
			ProductID: p.ID,
			Type:      price.TierDefault,
			Level:     price.DefaultLevel,
		}
		if ev.Price != nil {
			tier.Prices.Price = *ev.Price
		}
		if ev.Cost != nil {
			tier.Prices.Cost = *ev.Cost
		}
		if err := r.Prices.Create(ctx, tier); err != nil {
			return errors.Wrap(err, "create default tier")
		}
		if err := r.Products.AppendPriceTier(ctx, p.ID, tier.ID); err != nil {
			return errors.Wrap(err, "link default tier")
		}
		p.PriceTierIDs = append(p.PriceTierIDs, tier.ID)

		created = p
		return nil
	})
	switch {
	case errors.Is(err, errDuplicate), errors.Is(err, product.ErrDuplicate):
		return SkippedDuplicate, nil
	case err != nil:
		return "", err
	}

	if h.publisher != nil {
		if err := h.publisher.ProductCreated(ctx, product.NewCreatedEvent(created)); err != nil {
			zctx.From(ctx).Error("Publish product created",
				zap.String("product_id", created.ID),
				zap.Error(err),
			)
		}
	}
	return Applied, nil
}

// ProductUpdated applies a sparse patch to the product correlated with the
// upstream ID.
func (h *Handlers) ProductUpdated(ctx context.Context, src integration.Integration, ev ProductUpdatedEvent) (Outcome, error) {
	tenantID := firstNonEmpty(ev.SupplierID, ev.TenantID, src.TenantID)
	if tenantID == "" || ev.ProductID == "" {
		return "", errors.Wrap(ErrInvalidEvent, "product update requires tenant and product id")
	}
	ref := product.ExternalRef{
		TenantID:          tenantID,
		ExternalSystemID:  src.ExternalSystemID,
		ExternalProductID: ev.ProductID,
	}
	f := ev.UpdatedFields

	err := h.uow.Do(ctx, func(ctx context.Context, r uow.Repositories) error {
		p, err := r.Products.FindByExternalRef(ctx, ref)
		switch {
		case errors.Is(err, product.ErrNotFound):
			return errMissing
		case err != nil:
			return errors.Wrap(err, "lookup correlation")
		}

		patch := product.Patch{
			Name:    nonEmpty(f.ProductName),
			BarCode: nonEmpty(f.Barcode),
			InCase:  f.InCase,
		}
		if f.Capacity != nil {
			patch.Size = *f.Capacity
		}
		if name := nonEmpty(f.BrandName); name != nil {
			b, err := h.brands(r).FindOrCreate(ctx, tenantID, *name)
			if err != nil {
				return errors.Wrap(err, "resolve brand")
			}
			patch.BrandID = &b.ID
		}

		if !patch.Apply(p, h.newID) {
			return nil
		}
		if err := r.Products.Update(ctx, p); err != nil {
			return errors.Wrap(err, "update product")
		}
		return nil
	})
	switch {
	case errors.Is(err, errMissing):
		return SkippedMissing, nil
	case errors.Is(err, product.ErrDuplicate):
		// The new barcode belongs to another product of the tenant.
		return SkippedDuplicate, nil
	case err != nil:
		return "", err
	}
	return Applied, nil
}

// ProductDeactivated hides a product from the catalog.
func (h *Handlers) ProductDeactivated(ctx context.Context, src integration.Integration, ev ProductDeactivatedEvent) (Outcome, error) {
	tenantID := firstNonEmpty(ev.TenantID, src.TenantID)
	if tenantID == "" || (ev.ProductID == "" && ev.ExternalProductID == "") {
		return "", errors.Wrap(ErrInvalidEvent, "deactivation requires tenant and product id")
	}

	err := h.uow.Do(ctx, func(ctx context.Context, r uow.Repositories) error {
		id := ev.ProductID
		if id == "" {
			p, err := r.Products.FindByExternalRef(ctx, product.ExternalRef{
				TenantID:          tenantID,
				ExternalSystemID:  src.ExternalSystemID,
				ExternalProductID: ev.ExternalProductID,
			})
			if err != nil {
				return err
			}
			id = p.ID
		}
		return r.Products.SetActive(ctx, tenantID, id, false)
	})
	if errors.Is(err, product.ErrNotFound) {
		return SkippedMissing, nil
	}
	if err != nil {
		return "", errors.Wrap(err, "deactivate product")
	}
	return Applied, nil
}

// MerchantProductsUpdated grants and revokes merchant visibility.
func (h *Handlers) MerchantProductsUpdated(ctx context.Context, src integration.Integration, ev MerchantProductsUpdatedEvent) (Outcome, error) {
	tenantID := firstNonEmpty(ev.TenantID, ev.CustomerID, src.TenantID)
	merchants := ev.merchants()
	if tenantID == "" || len(merchants) == 0 {
		return "", errors.Wrap(ErrInvalidEvent, "visibility change requires tenant and merchant")
	}

	err := h.uow.Do(ctx, func(ctx context.Context, r uow.Repositories) error {
		svc := visibility.NewService(r.Visibility)
		if err := svc.ActivateMany(ctx, tenantID, ev.ActiveList, merchants); err != nil {
			return err
		}
		return svc.DeactivateMany(ctx, tenantID, ev.InactiveList, merchants)
	})
	if err != nil {
		return "", errors.Wrap(err, "update merchant visibility")
	}
	return Applied, nil
}

// PromoReceived stores an upstream promotion. A promotion already known by
// its upstream ID is skipped.
func (h *Handlers) PromoReceived(ctx context.Context, src integration.Integration, ev PromoReceivedEvent, raw json.RawMessage) (Outcome, error) {
	tenantID := firstNonEmpty(ev.TenantID, ev.CustomerID, src.TenantID)
	if tenantID == "" || ev.PromoTypeCode == "" {
		return "", errors.Wrap(ErrInvalidEvent, "promo requires tenant and type code")
	}

	p := &promo.Promo{
		ID:                h.newID(),
		TenantID:          tenantID,
		Name:              ev.Name,
		StartDate:         ev.StartDate,
		EndDate:           ev.EndDate,
		ThresholdQuantity: ev.ThresholdQuantity,
		PromoPercent:      ev.PromoPercent,
		GiftQuantity:      ev.GiftQuantity,
		IsActive:          ev.IsActive,
		Products:          ev.Products,
		GiftProducts:      ev.GiftProducts,
		Tradeshops:        ev.Tradeshops,
		ThirdParty:        raw,
	}
	if ev.PromoID != "" {
		p.External = &promo.ExternalRef{
			TenantID:         tenantID,
			ExternalSystemID: src.ExternalSystemID,
			ExternalPromoID:  string(ev.PromoID),
		}
	}

	err := h.uow.Do(ctx, func(ctx context.Context, r uow.Repositories) error {
		typ, err := r.PromoTypes.FindByCode(ctx, ev.PromoTypeCode)
		if err != nil {
			return err
		}
		p.Type = *typ

		if p.External != nil {
			_, err := r.Promos.FindByExternalRef(ctx, *p.External)
			switch {
			case err == nil:
				return errDuplicate
			case !errors.Is(err, promo.ErrNotFound):
				return errors.Wrap(err, "lookup promo")
			}
		}
		return r.Promos.Create(ctx, p)
	})
	switch {
	case errors.Is(err, errDuplicate), errors.Is(err, promo.ErrDuplicate):
		return SkippedDuplicate, nil
	case err != nil:
		return "", errors.Wrap(err, "store promo")
	}
	return Applied, nil
}

// PromoUpdated applies a sparse patch to a stored promotion.
func (h *Handlers) PromoUpdated(ctx context.Context, _ integration.Integration, ev PromoUpdatedEvent) (Outcome, error) {
	if ev.ID == "" {
		return "", errors.Wrap(ErrInvalidEvent, "promo update requires id")
	}
	f := ev.UpdatedFields
	patch := promo.Patch{
		Name:              f.Name,
		StartDate:         f.StartDate,
		EndDate:           f.EndDate,
		ThresholdQuantity: f.ThresholdQuantity,
		PromoPercent:      f.PromoPercent,
		GiftQuantity:      f.GiftQuantity,
		IsActive:          f.IsActive,
		Products:          f.Products,
		GiftProducts:      f.GiftProducts,
		Tradeshops:        f.Tradeshops,
	}
	if patch.Empty() {
		return Applied, nil
	}

	err := h.uow.Do(ctx, func(ctx context.Context, r uow.Repositories) error {
		p, err := r.Promos.GetByID(ctx, ev.ID)
		if err != nil {
			return err
		}
		patch.Apply(p)
		return r.Promos.Update(ctx, p)
	})
	if errors.Is(err, promo.ErrNotFound) {
		return SkippedMissing, nil
	}
	if err != nil {
		return "", errors.Wrap(err, "update promo")
	}
	return Applied, nil
}

// InventoryCreated links a product to its inventory record.
func (h *Handlers) InventoryCreated(ctx context.Context, ev InventoryCreatedEvent) (Outcome, error) {
	if ev.ID == "" || ev.ProductID == "" {
		return "", errors.Wrap(ErrInvalidEvent, "inventory event requires id and product id")
	}
	err := h.uow.Do(ctx, func(ctx context.Context, r uow.Repositories) error {
		return r.Products.SetInventory(ctx, ev.ProductID, ev.ID)
	})
	if errors.Is(err, product.ErrNotFound) {
		return SkippedMissing, nil
	}
	if err != nil {
		return "", errors.Wrap(err, "set inventory")
	}
	return Applied, nil
}
