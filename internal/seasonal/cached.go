package seasonal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ledgerstack/predict-engine/internal/cache"
	"github.com/ledgerstack/predict-engine/internal/metrics"
	"github.com/ledgerstack/predict-engine/internal/models"
)

// CachedDecomposer memoises decomposition results in a bounded TTL cache,
// keyed by a signature of the input series. Safe for concurrent use.
type CachedDecomposer struct {
	inner        *Decomposer
	provider     cache.Provider
	ttl          time.Duration
	logger       *slog.Logger
	computations atomic.Int64
}

// NewCachedDecomposer wraps a decomposer with the supplied cache provider.
// A nil provider disables caching via cache.NoopProvider.
func NewCachedDecomposer(inner *Decomposer, provider cache.Provider, ttl time.Duration, logger *slog.Logger) *CachedDecomposer {
	if inner == nil {
		inner = NewDecomposer()
	}
	if provider == nil {
		provider = cache.NoopProvider{}
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedDecomposer{inner: inner, provider: provider, ttl: ttl, logger: logger}
}

// Decompose returns cached factors when the series signature was seen within
// the TTL window, recomputing otherwise.
func (c *CachedDecomposer) Decompose(ctx context.Context, points []models.TimeSeriesPoint, mode Mode) []models.SeasonalFactor {
	key := SeriesSignature(points, mode)

	if data, err := c.provider.Get(ctx, key); err == nil {
		var factors []models.SeasonalFactor
		if err := json.Unmarshal(data, &factors); err == nil {
			metrics.ObserveCacheLookup("hit")
			return factors
		}
		_ = c.provider.Del(ctx, key)
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		c.logger.Warn("seasonal cache read failed", slog.Any("error", err))
	}
	metrics.ObserveCacheLookup("miss")

	c.computations.Add(1)
	factors := c.inner.Decompose(points, mode)

	if data, err := json.Marshal(factors); err == nil {
		if err := c.provider.Set(ctx, key, data, c.ttl); err != nil {
			c.logger.Warn("seasonal cache write failed", slog.Any("error", err))
		}
	}
	return factors
}

// Holidays exposes the wrapped decomposer's calendar for factor application.
func (c *CachedDecomposer) Holidays() []Holiday {
	return c.inner.holidays
}

// Computations reports how many times the underlying decomposition actually
// ran, for cache verification.
func (c *CachedDecomposer) Computations() int64 {
	return c.computations.Load()
}

// SeriesSignature identifies a series by its length and an FNV-1a digest of
// its timestamps and amounts. Any change to the underlying history changes
// the signature and invalidates prior cache entries.
func SeriesSignature(points []models.TimeSeriesPoint, mode Mode) string {
	h := fnv.New64a()
	for _, p := range points {
		fmt.Fprintf(h, "%d|%s|", p.Timestamp.Unix(), p.Amount.String())
	}
	return fmt.Sprintf("seasonal:%s:%d:%x", mode, len(points), h.Sum64())
}
