package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dejobratic/storefront/internal/catalog/domain"
	"github.com/dejobratic/storefront/internal/catalog/ports"
)

// Store keeps the catalog in memory for local development and tests.
type Store struct {
	mu        sync.RWMutex
	templates map[string]domain.Template
	bundles   map[string]domain.Bundle
}

// NewStore constructs an empty in-memory catalog.
func NewStore() *Store {
	return &Store{
		templates: make(map[string]domain.Template),
		bundles:   make(map[string]domain.Bundle),
	}
}

func (s *Store) GetTemplate(_ context.Context, id string) (*domain.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	template, ok := s.templates[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	template.Features = append([]string(nil), template.Features...)
	return &template, nil
}

// GetTemplates returns the templates that exist among ids, in the order given.
func (s *Store) GetTemplates(_ context.Context, ids []string) ([]domain.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.Template, 0, len(ids))
	for _, id := range ids {
		if template, ok := s.templates[id]; ok {
			result = append(result, template)
		}
	}
	return result, nil
}

func (s *Store) GetBundle(_ context.Context, id string) (*domain.Bundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bundle, ok := s.bundles[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	bundle.TemplateIDs = bundle.MemberIDs()
	return &bundle, nil
}

func (s *Store) SaveTemplate(_ context.Context, template domain.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if existing, ok := s.templates[template.ID]; ok {
		template.CreatedAt = existing.CreatedAt
		template.DownloadCount = existing.DownloadCount
	} else if template.CreatedAt.IsZero() {
		template.CreatedAt = now
	}
	template.UpdatedAt = now
	template.Features = append([]string(nil), template.Features...)
	s.templates[template.ID] = template
	return nil
}

func (s *Store) SaveBundle(_ context.Context, bundle domain.Bundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if existing, ok := s.bundles[bundle.ID]; ok {
		bundle.CreatedAt = existing.CreatedAt
	} else if bundle.CreatedAt.IsZero() {
		bundle.CreatedAt = now
	}
	bundle.UpdatedAt = now
	bundle.TemplateIDs = bundle.MemberIDs()
	s.bundles[bundle.ID] = bundle
	return nil
}

func (s *Store) IncrementDownloadCount(_ context.Context, templateID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	template, ok := s.templates[templateID]
	if !ok {
		return ports.ErrNotFound
	}
	template.DownloadCount++
	s.templates[templateID] = template
	return nil
}
