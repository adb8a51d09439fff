// Package category exposes read access to product categories.
package category

import "context"

// Category groups products within a tenant.
type Category struct {
	ID       string
	TenantID string
	Name     string
	Slug     string
}

// Repository reads categories.
type Repository interface {
	GetByIDs(ctx context.Context, ids []string) ([]Category, error)
}
