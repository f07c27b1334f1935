package app

import (
	"context"
	"time"

	"github.com/goccy/go-json"

	"housing_sync/internal/domain"
)

const listKey = "properties:all"

func propertyKey(id string) string { return "property:" + id }

type QueryService struct {
	repo     domain.PropertyRepository
	cache    domain.Cache
	cacheTTL time.Duration
}

func NewQueryService(r domain.PropertyRepository, c domain.Cache, ttl time.Duration) *QueryService {
	return &QueryService{repo: r, cache: c, cacheTTL: ttl}
}

func (s *QueryService) GetProperty(ctx context.Context, id string) (domain.Property, error) {
	key := propertyKey(id)
	var p domain.Property
	if ok, _ := s.cache.Get(ctx, key, &p); ok {
		return p, nil
	}
	p, err := s.repo.GetProperty(ctx, id)
	if err != nil {
		return domain.Property{}, err
	}
	_ = s.cache.Set(ctx, key, p, int(s.cacheTTL.Seconds()))
	return p, nil
}

// ListProperties returns every listing, newest first.
func (s *QueryService) ListProperties(ctx context.Context) ([]domain.Property, error) {
	var out []domain.Property
	if ok, _ := s.cache.Get(ctx, listKey, &out); ok {
		return out, nil
	}
	ps, err := s.repo.ListProperties(ctx)
	if err != nil {
		return nil, err
	}

	// copy so callers never share the repo's backing array with the cache
	out = make([]domain.Property, len(ps))
	for i, p := range ps {
		out[i] = p.Clone()
	}

	// size guard
	if b, _ := json.Marshal(out); len(b) < 1_000_000 {
		_ = s.cache.Set(ctx, listKey, out, int(s.cacheTTL.Seconds()))
	}
	return out, nil
}

// GetPhoto is never cached; photo bodies go straight from the store.
func (s *QueryService) GetPhoto(ctx context.Context, propertyID, photoID string) (domain.StoredPhoto, error) {
	return s.repo.GetPhoto(ctx, propertyID, photoID)
}
