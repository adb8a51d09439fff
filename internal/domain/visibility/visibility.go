// Package visibility maintains, per product and tenant, the set of merchants
// a gated product is visible to.
package visibility

import (
	"context"
	"slices"

	"github.com/go-faster/errors"
)

// Defaults for lazily created entries.
const (
	EntryType  = "custom"
	EntryLevel = 10
)

// Entry is the active-merchant set of one product within a tenant.
type Entry struct {
	ProductID        string
	TenantID         string
	Type             string
	Level            int
	EntityReferences []string
}

// Store persists active-merchant sets.
//
// Add unions merchantIDs into the set of every product, creating missing
// entries. Remove subtracts merchantIDs and never creates an entry. Both
// apply one statement per product; each product's update is atomic on its
// own.
type Store interface {
	Add(ctx context.Context, tenantID string, productIDs, merchantIDs []string) error
	Remove(ctx context.Context, tenantID string, productIDs, merchantIDs []string) error
	ListVisibleProductIDs(ctx context.Context, tenantID, merchantID string) ([]string, error)
}

// Service validates and forwards membership changes.
type Service struct {
	store Store
}

// NewService creates a Service backed by store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Activate makes productID visible to merchantID. Repeating it is a no-op.
func (s *Service) Activate(ctx context.Context, productID, tenantID, merchantID string) error {
	return s.ActivateMany(ctx, tenantID, []string{productID}, []string{merchantID})
}

// Deactivate hides productID from merchantID. Deactivating a merchant that
// was never activated changes nothing.
func (s *Service) Deactivate(ctx context.Context, productID, tenantID, merchantID string) error {
	return s.DeactivateMany(ctx, tenantID, []string{productID}, []string{merchantID})
}

// ActivateMany adds every merchant to every product's set.
func (s *Service) ActivateMany(ctx context.Context, tenantID string, productIDs, merchantIDs []string) error {
	products, merchants, ok := normalize(productIDs, merchantIDs)
	if !ok {
		return nil
	}
	if tenantID == "" {
		return errors.New("tenant id is required")
	}
	if err := s.store.Add(ctx, tenantID, products, merchants); err != nil {
		return errors.Wrap(err, "add merchants")
	}
	return nil
}

// DeactivateMany removes every merchant from every product's set.
func (s *Service) DeactivateMany(ctx context.Context, tenantID string, productIDs, merchantIDs []string) error {
	products, merchants, ok := normalize(productIDs, merchantIDs)
	if !ok {
		return nil
	}
	if tenantID == "" {
		return errors.New("tenant id is required")
	}
	if err := s.store.Remove(ctx, tenantID, products, merchants); err != nil {
		return errors.Wrap(err, "remove merchants")
	}
	return nil
}

// VisibleProductIDs lists the products of tenantID visible to merchantID.
func (s *Service) VisibleProductIDs(ctx context.Context, tenantID, merchantID string) ([]string, error) {
	ids, err := s.store.ListVisibleProductIDs(ctx, tenantID, merchantID)
	if err != nil {
		return nil, errors.Wrap(err, "list visible products")
	}
	return ids, nil
}

func normalize(productIDs, merchantIDs []string) (products, merchants []string, ok bool) {
	products = dedupe(productIDs)
	merchants = dedupe(merchantIDs)
	return products, merchants, len(products) > 0 && len(merchants) > 0
}

// dedupe drops empty and repeated IDs, keeping first-seen order.
func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || slices.Contains(out, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}
