package ports

import (
	"context"
	"errors"

	"github.com/dejobratic/storefront/internal/catalog/domain"
)

// Store exposes the catalog reads and the few writes the order flow depends on.
type Store interface {
	GetTemplate(ctx context.Context, id string) (*domain.Template, error)
	GetTemplates(ctx context.Context, ids []string) ([]domain.Template, error)
	GetBundle(ctx context.Context, id string) (*domain.Bundle, error)
	SaveTemplate(ctx context.Context, template domain.Template) error
	SaveBundle(ctx context.Context, bundle domain.Bundle) error
	IncrementDownloadCount(ctx context.Context, templateID string) error
}

var (
	// ErrNotFound is returned when the requested catalog entry does not exist.
	ErrNotFound = errors.New("catalog entry not found")
)
