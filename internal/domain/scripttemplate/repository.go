package scripttemplate

import "context"

// Repository exposes call template storage.
type Repository interface {
	Create(ctx context.Context, item Template) error
	GetByID(ctx context.Context, templateID string) (Template, bool, error)
	List(ctx context.Context) ([]Template, error)
}
