package ports

import (
	"context"
	"errors"

	"github.com/samirrijal/pharmacover/internal/core/domain"
)

// PointSearcher finds places inside one circular cell. Implementations drain every
// result page before returning and report how many upstream calls they made.
type PointSearcher interface {
	SearchNearby(ctx context.Context, center domain.GeoPoint, radiusMeters float64) ([]domain.Place, int, error)
}

// PointSearchFunc adapts a plain function to PointSearcher.
type PointSearchFunc func(ctx context.Context, center domain.GeoPoint, radiusMeters float64) ([]domain.Place, int, error)

func (f PointSearchFunc) SearchNearby(ctx context.Context, center domain.GeoPoint, radiusMeters float64) ([]domain.Place, int, error) {
	return f(ctx, center, radiusMeters)
}

// EventPublisher publishes search events to a message broker.
type EventPublisher interface {
	PublishProgress(ctx context.Context, p *domain.SearchProgress) error
	PublishCompleted(ctx context.Context, e *domain.SearchCompleted) error
}

// ErrCacheMiss is returned by CacheService.Get for absent keys.
var ErrCacheMiss = errors.New("cache miss")

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
