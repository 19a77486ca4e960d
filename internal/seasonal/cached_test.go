package seasonal

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerstack/predict-engine/internal/cache"
	"github.com/ledgerstack/predict-engine/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleSeries(n int, base float64) []models.TimeSeriesPoint {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	points := make([]models.TimeSeriesPoint, n)
	for i := range points {
		points[i] = models.TimeSeriesPoint{
			Timestamp: start.AddDate(0, i, 0),
			Amount:    decimal.NewFromFloat(base + float64(i%12)*10),
		}
	}
	return points
}

func TestCachedDecomposeReusesResult(t *testing.T) {
	store := cache.NewMemoryStore(16)
	c := NewCachedDecomposer(NewDecomposer(), store, time.Minute, testLogger())
	points := sampleSeries(36, 1000)

	first := c.Decompose(context.Background(), points, Multiplicative)
	second := c.Decompose(context.Background(), points, Multiplicative)

	if c.Computations() != 1 {
		t.Errorf("expected 1 computation for repeated input, got %d", c.Computations())
	}
	if len(first) != len(second) {
		t.Fatalf("cached result has %d factors, fresh had %d", len(second), len(first))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("factor %d differs between fresh and cached result", i)
		}
	}
}

func TestCachedDecomposeExpiresWithTTL(t *testing.T) {
	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	store := cache.NewMemoryStore(16, cache.WithClock(func() time.Time { return now }))
	c := NewCachedDecomposer(NewDecomposer(), store, time.Minute, testLogger())
	points := sampleSeries(36, 1000)

	c.Decompose(context.Background(), points, Multiplicative)
	now = now.Add(2 * time.Minute)
	c.Decompose(context.Background(), points, Multiplicative)

	if c.Computations() != 2 {
		t.Errorf("expected recomputation after TTL expiry, got %d computations", c.Computations())
	}
}

func TestCachedDecomposeDistinguishesSeries(t *testing.T) {
	store := cache.NewMemoryStore(16)
	c := NewCachedDecomposer(NewDecomposer(), store, time.Minute, testLogger())

	c.Decompose(context.Background(), sampleSeries(36, 1000), Multiplicative)
	c.Decompose(context.Background(), sampleSeries(36, 2000), Multiplicative)

	if c.Computations() != 2 {
		t.Errorf("different series must not share cache entries, got %d computations", c.Computations())
	}
}

func TestSeriesSignatureChangesWithData(t *testing.T) {
	a := sampleSeries(12, 1000)
	b := sampleSeries(12, 1000)
	if SeriesSignature(a, Multiplicative) != SeriesSignature(b, Multiplicative) {
		t.Error("identical series should share a signature")
	}

	b[3].Amount = b[3].Amount.Add(decimal.NewFromInt(1))
	if SeriesSignature(a, Multiplicative) == SeriesSignature(b, Multiplicative) {
		t.Error("amount change must change the signature")
	}
	if SeriesSignature(a, Multiplicative) == SeriesSignature(a, Additive) {
		t.Error("mode must be part of the signature")
	}
}

func TestCachedDecomposeWithoutProvider(t *testing.T) {
	c := NewCachedDecomposer(nil, nil, 0, testLogger())
	points := sampleSeries(36, 1000)

	c.Decompose(context.Background(), points, Multiplicative)
	c.Decompose(context.Background(), points, Multiplicative)

	// NoopProvider never stores, so every call recomputes.
	if c.Computations() != 2 {
		t.Errorf("noop provider should recompute every call, got %d", c.Computations())
	}
}
