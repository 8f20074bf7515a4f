package provider

import "context"

// Repository persists provider configuration. The dispatcher only reads;
// writes come from the administrative surface.
type Repository interface {
	Create(ctx context.Context, item Provider) error
	Update(ctx context.Context, item Provider) error
	GetByID(ctx context.Context, providerID string) (Provider, bool, error)
	List(ctx context.Context, includeInactive bool) ([]Provider, error)
	SoftDelete(ctx context.Context, providerID string) error
}
