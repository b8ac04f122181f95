package places

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/samirrijal/pharmacover/internal/core/domain"
	"github.com/samirrijal/pharmacover/internal/core/ports"
	"github.com/samirrijal/pharmacover/internal/pkg/metrics"
)

const cacheOperation = "places_nearby"

// CachedSearcher serves repeated cells from a cache. A hit reports zero requests
// since no upstream call was made; failures are never cached.
type CachedSearcher struct {
	next   ports.PointSearcher
	cache  ports.CacheService
	ttl    time.Duration
	scope  string
	logger *slog.Logger
}

// NewCachedSearcher wraps next. scope distinguishes cached entries of searchers
// with different filters, typically the joined included types.
func NewCachedSearcher(next ports.PointSearcher, cache ports.CacheService, ttl time.Duration, scope []string) *CachedSearcher {
	sorted := append([]string(nil), scope...)
	sort.Strings(sorted)
	return &CachedSearcher{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		scope:  strings.Join(sorted, ","),
		logger: slog.Default(),
	}
}

// CacheKey identifies a cell query. Coordinates are rounded to ~0.1 m.
func (s *CachedSearcher) CacheKey(center domain.GeoPoint, radiusMeters float64) string {
	return fmt.Sprintf("places:nearby:v1:%.6f:%.6f:%.0f:%s", center.Lat, center.Lon, radiusMeters, s.scope)
}

func (s *CachedSearcher) SearchNearby(ctx context.Context, center domain.GeoPoint, radiusMeters float64) ([]domain.Place, int, error) {
	key := s.CacheKey(center, radiusMeters)

	if data, err := s.cache.Get(ctx, key); err == nil {
		var places []domain.Place
		if err := json.Unmarshal(data, &places); err == nil {
			metrics.CacheHits.WithLabelValues(cacheOperation).Inc()
			return places, 0, nil
		}
	}
	metrics.CacheMisses.WithLabelValues(cacheOperation).Inc()

	places, requests, err := s.next.SearchNearby(ctx, center, radiusMeters)
	if err != nil {
		return nil, requests, err
	}

	if data, err := json.Marshal(places); err == nil {
		if err := s.cache.Set(ctx, key, data, int(s.ttl.Seconds())); err != nil {
			s.logger.Warn("failed to cache cell result", "key", key, "error", err)
		}
	}
	return places, requests, nil
}
