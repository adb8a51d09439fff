// Package brand manages product brands and their race-tolerant creation.
package brand

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
)

var (
	// ErrNotFound is returned when a brand does not exist.
	ErrNotFound = errors.New("brand not found")
	// ErrAlreadyExists is returned by Repository.Create when another writer
	// created a brand with the same name first.
	ErrAlreadyExists = errors.New("brand already exists")
)

// Brand is a product brand scoped to a tenant.
type Brand struct {
	ID       string
	TenantID string
	Name     string
	Slug     string
	Image    string
	IsActive bool
}

// Repository persists brands. Names are unique per tenant.
type Repository interface {
	FindByName(ctx context.Context, tenantID, name string) (*Brand, error)
	Create(ctx context.Context, b *Brand) error
	GetByIDs(ctx context.Context, ids []string) ([]Brand, error)
}

// Resolver maps brand names to brands, creating them on first sight.
type Resolver struct {
	repo  Repository
	newID func() string
	slug  func(string) string
	image string
}

// NewResolver creates a Resolver. defaultImage is assigned to created brands.
func NewResolver(repo Repository, newID func() string, slug func(string) string, defaultImage string) *Resolver {
	return &Resolver{repo: repo, newID: newID, slug: slug, image: defaultImage}
}

// FindOrCreate returns the brand named name in tenantID, creating it when
// missing. When a concurrent writer wins the insert the winner's row is
// returned.
func (r *Resolver) FindOrCreate(ctx context.Context, tenantID, name string) (*Brand, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("empty brand name")
	}

	b, err := r.repo.FindByName(ctx, tenantID, name)
	switch {
	case err == nil:
		return b, nil
	case !errors.Is(err, ErrNotFound):
		return nil, errors.Wrap(err, "find brand")
	}

	b = &Brand{
		ID:       r.newID(),
		TenantID: tenantID,
		Name:     name,
		Slug:     r.slug(name),
		Image:    r.image,
		IsActive: true,
	}
	err = r.repo.Create(ctx, b)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, ErrAlreadyExists) {
		return nil, errors.Wrap(err, "create brand")
	}

	winner, err := r.repo.FindByName(ctx, tenantID, name)
	if err != nil {
		return nil, errors.Wrap(err, "re-read brand after conflict")
	}
	return winner, nil
}
