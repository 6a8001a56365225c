// Package data provides the historical data service.
package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/solphase/dlmm-backend/pkg/types"
)

// ErrDataUnavailable is returned when no real data exists and the
// synthetic fallback is disabled.
var ErrDataUnavailable = errors.New("historical data unavailable")

// RealDataSource fetches historical data from an external provider.
// Returning nil data or an error is a normal fallback trigger, not a
// failure of the service.
type RealDataSource interface {
	Fetch(ctx context.Context, poolAddress string, start, end time.Time, interval types.Interval) (*types.HistoricalData, error)
}

// HistoricalService supplies historical market data for a pool and
// range, backed by a TTL cache and a synthetic generator fallback.
type HistoricalService struct {
	logger         *zap.Logger
	cache          *Cache
	source         RealDataSource // optional
	generator      *Generator
	allowSynthetic bool
}

// NewHistoricalService creates a historical data service. source may
// be nil, in which case every fetch falls through to the generator.
func NewHistoricalService(logger *zap.Logger, cache *Cache, source RealDataSource, generator *Generator, allowSynthetic bool) *HistoricalService {
	if cache == nil {
		cache = NewCache(16, DefaultCacheTTL)
	}
	return &HistoricalService{
		logger:         logger,
		cache:          cache,
		source:         source,
		generator:      generator,
		allowSynthetic: allowSynthetic,
	}
}

// Fetch returns historical data for the pool and range. Cached data is
// served while fresh; otherwise the real source is tried first and the
// synthetic generator fills in when it yields nothing.
func (s *HistoricalService) Fetch(ctx context.Context, poolAddress string, start, end time.Time, interval types.Interval) (*types.HistoricalData, error) {
	key := cacheKey(poolAddress, start, end, interval)

	if cached := s.cache.Get(key); cached != nil {
		return cached, nil
	}

	if s.source != nil {
		real, err := s.source.Fetch(ctx, poolAddress, start, end, interval)
		if err != nil {
			s.logger.Warn("Real data source failed, falling back",
				zap.String("pool", poolAddress),
				zap.Error(err),
			)
		} else if real != nil && len(real.PricePoints) > 0 {
			real.Metadata.Source = types.DataSourceReal
			s.cache.Put(key, real)
			return real, nil
		}
	}

	if !s.allowSynthetic {
		return nil, fmt.Errorf("%w: pool %s %s..%s", ErrDataUnavailable,
			poolAddress, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	s.logger.Info("Generating synthetic data",
		zap.String("pool", poolAddress),
		zap.String("interval", string(interval)),
	)
	synthetic := s.generator.Generate(poolAddress, start, end, interval)
	s.cache.Put(key, synthetic)
	return synthetic, nil
}

// CacheLen exposes the number of cached datasets.
func (s *HistoricalService) CacheLen() int {
	return s.cache.Len()
}

// cacheKey builds a deterministic key for a fetch request.
func cacheKey(poolAddress string, start, end time.Time, interval types.Interval) string {
	return fmt.Sprintf("%s_%d_%d_%s", poolAddress, start.Unix(), end.Unix(), interval)
}
