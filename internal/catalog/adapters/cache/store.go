package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/dejobratic/storefront/internal/catalog/domain"
	"github.com/dejobratic/storefront/internal/catalog/ports"
	"github.com/redis/go-redis/v9"
)

// Store is a read-through Redis cache in front of another catalog store.
// Cache failures never fail a read; they fall through to the backing store.
type Store struct {
	next    ports.Store
	client  redis.UniversalClient
	baseTTL time.Duration
	logger  *slog.Logger
}

var _ ports.Store = (*Store)(nil)

func NewStore(next ports.Store, client redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Store{next: next, client: client, baseTTL: ttl, logger: logger}
}

func (s *Store) GetTemplate(ctx context.Context, id string) (*domain.Template, error) {
	var cached domain.Template
	if s.load(ctx, templateKey(id), &cached) {
		return &cached, nil
	}

	template, err := s.next.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	s.store(ctx, templateKey(id), template)
	return template, nil
}

func (s *Store) GetTemplates(ctx context.Context, ids []string) ([]domain.Template, error) {
	return s.next.GetTemplates(ctx, ids)
}

func (s *Store) GetBundle(ctx context.Context, id string) (*domain.Bundle, error) {
	var cached domain.Bundle
	if s.load(ctx, bundleKey(id), &cached) {
		return &cached, nil
	}

	bundle, err := s.next.GetBundle(ctx, id)
	if err != nil {
		return nil, err
	}
	s.store(ctx, bundleKey(id), bundle)
	return bundle, nil
}

func (s *Store) SaveTemplate(ctx context.Context, template domain.Template) error {
	if err := s.next.SaveTemplate(ctx, template); err != nil {
		return err
	}
	s.invalidate(ctx, templateKey(template.ID))
	return nil
}

func (s *Store) SaveBundle(ctx context.Context, bundle domain.Bundle) error {
	if err := s.next.SaveBundle(ctx, bundle); err != nil {
		return err
	}
	s.invalidate(ctx, bundleKey(bundle.ID))
	return nil
}

func (s *Store) IncrementDownloadCount(ctx context.Context, templateID string) error {
	if err := s.next.IncrementDownloadCount(ctx, templateID); err != nil {
		return err
	}
	s.invalidate(ctx, templateKey(templateID))
	return nil
}

func (s *Store) load(ctx context.Context, key string, dst any) bool {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		s.logger.WarnContext(ctx, "catalog cache read failed", slog.String("key", key), slog.String("error", err.Error()))
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		s.logger.WarnContext(ctx, "catalog cache entry corrupt", slog.String("key", key), slog.String("error", err.Error()))
		s.invalidate(ctx, key)
		return false
	}
	return true
}

func (s *Store) store(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	jitter := time.Duration(rand.Int63n(int64(s.baseTTL/5) + 1))
	if err := s.client.Set(ctx, key, data, s.baseTTL+jitter).Err(); err != nil {
		s.logger.WarnContext(ctx, "catalog cache write failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}

func (s *Store) invalidate(ctx context.Context, key string) {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		s.logger.WarnContext(ctx, "catalog cache invalidation failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}

func templateKey(id string) string {
	return fmt.Sprintf("catalog:template:%s", id)
}

func bundleKey(id string) string {
	return fmt.Sprintf("catalog:bundle:%s", id)
}
