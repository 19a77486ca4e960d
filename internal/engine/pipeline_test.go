package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerstack/predict-engine/internal/models"
	"github.com/ledgerstack/predict-engine/internal/repo"
	"github.com/ledgerstack/predict-engine/internal/utils"
)

type stubHistory struct {
	points []models.TimeSeriesPoint
	err    error
	calls  int
}

func (s *stubHistory) FetchSeries(ctx context.Context, organizationID, clientID, category string) ([]models.TimeSeriesPoint, error) {
	s.calls++
	return s.points, s.err
}

type stubBenchmarks struct {
	stats *repo.PeerStats
	err   error
}

func (s *stubBenchmarks) PeerStats(ctx context.Context, industry, sizeClass string) (*repo.PeerStats, error) {
	return s.stats, s.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func monthlyPoints(amounts []float64) []models.TimeSeriesPoint {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	points := make([]models.TimeSeriesPoint, len(amounts))
	for i, a := range amounts {
		points[i] = models.TimeSeriesPoint{
			Timestamp: start.AddDate(0, i, 0),
			Amount:    decimal.NewFromFloat(a),
			Category:  "cash",
		}
	}
	return points
}

func validRequest() models.PredictionRequest {
	return models.PredictionRequest{
		OrganizationID: "org-1",
		PredictionType: models.PredictionCashFlow,
		TimeHorizon:    3,
		Confidence:     0.9,
	}
}

func TestGenerateHorizonAndBounds(t *testing.T) {
	history := &stubHistory{points: monthlyPoints([]float64{10000, 9500, 11000, 10500, 9800, 10200})}
	p := NewPipeline(testLogger(), history, nil, nil)

	result, err := p.Generate(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(result.Predictions) != 3 {
		t.Fatalf("predictions = %d, want 3", len(result.Predictions))
	}
	for i, pt := range result.Predictions {
		if !pt.LowerBound.LessThan(pt.Value) || !pt.Value.LessThan(pt.UpperBound) {
			t.Errorf("point %d bounds out of order: %s / %s / %s",
				i, pt.LowerBound, pt.Value, pt.UpperBound)
		}
		if pt.Confidence != 0.9 {
			t.Errorf("point %d confidence = %v, want 0.9", i, pt.Confidence)
		}
	}
	if result.ID == "" {
		t.Error("result must carry an id")
	}
	if result.Confidence <= 0 || result.Confidence >= 1 {
		t.Errorf("result confidence %v out of (0,1)", result.Confidence)
	}

	dr := result.Metadata.DataRange
	if !dr.Start.Equal(history.points[0].Timestamp) || !dr.End.Equal(history.points[5].Timestamp) {
		t.Errorf("data range %v..%v does not span the inputs", dr.Start, dr.End)
	}
	if result.Metadata.Observations != 6 {
		t.Errorf("observations = %d, want 6", result.Metadata.Observations)
	}
}

func TestGenerateValidation(t *testing.T) {
	p := NewPipeline(testLogger(), &stubHistory{}, nil, nil)

	cases := []struct {
		name   string
		mutate func(*models.PredictionRequest)
	}{
		{"missing organization", func(r *models.PredictionRequest) { r.OrganizationID = "" }},
		{"unknown type", func(r *models.PredictionRequest) { r.PredictionType = "weather" }},
		{"zero horizon", func(r *models.PredictionRequest) { r.TimeHorizon = 0 }},
		{"confidence above one", func(r *models.PredictionRequest) { r.Confidence = 1.5 }},
		{"zero confidence", func(r *models.PredictionRequest) { r.Confidence = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(&req)
			_, err := p.Generate(context.Background(), req)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if utils.KindOf(err) != utils.KindValidation {
				t.Errorf("expected validation kind, got %v", utils.KindOf(err))
			}
		})
	}
}

func TestGenerateTinySeriesDegrades(t *testing.T) {
	history := &stubHistory{points: monthlyPoints([]float64{5000, 5200})}
	p := NewPipeline(testLogger(), history, nil, nil)

	req := validRequest()
	req.TimeHorizon = 12

	result, err := p.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("tiny series must degrade, not fail: %v", err)
	}
	if len(result.Predictions) != 12 {
		t.Fatalf("predictions = %d, want 12", len(result.Predictions))
	}
	if !result.Metadata.Degraded {
		t.Error("tiny series must mark the result degraded")
	}
	if result.Confidence >= 0.5 {
		t.Errorf("degraded result confidence %v should be low", result.Confidence)
	}
}

func TestGenerateHistoryFailure(t *testing.T) {
	history := &stubHistory{err: errors.New("feed offline")}
	p := NewPipeline(testLogger(), history, nil, nil)

	_, err := p.Generate(context.Background(), validRequest())
	if err == nil {
		t.Fatal("expected error when history is unavailable")
	}
	if utils.KindOf(err) != utils.KindExternalDependency {
		t.Errorf("expected external dependency kind, got %v", utils.KindOf(err))
	}
}

func TestGenerateScenarioDiffersFromBase(t *testing.T) {
	history := &stubHistory{points: monthlyPoints([]float64{
		10000, 9500, 11000, 10500, 9800, 10200, 10400, 9900, 10600, 10100, 9700, 10300,
	})}
	p := NewPipeline(testLogger(), history, nil, nil)

	req := validRequest()
	req.Scenarios = []models.ScenarioAdjustment{
		{Name: "optimistic", Multiplier: 1.2},
		{Name: ""}, // invalid, must be skipped
	}

	result, err := p.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(result.Scenarios) != 1 {
		t.Fatalf("scenarios = %d, want 1 (unnamed scenario skipped)", len(result.Scenarios))
	}

	scenario := result.Scenarios[0]
	if scenario.Name != "optimistic" {
		t.Errorf("scenario name = %q", scenario.Name)
	}
	if len(scenario.Predictions) != len(result.Predictions) {
		t.Fatalf("scenario horizon %d differs from base %d", len(scenario.Predictions), len(result.Predictions))
	}
	// A 20% uplift must move the forecast.
	if scenario.Predictions[0].Value.Equal(result.Predictions[0].Value) {
		t.Error("scenario forecast should differ from the base forecast")
	}
	if !scenario.Predictions[0].Value.GreaterThan(result.Predictions[0].Value) {
		t.Errorf("optimistic scenario %s should exceed base %s",
			scenario.Predictions[0].Value, result.Predictions[0].Value)
	}
}

func TestGenerateBenchmarkComparison(t *testing.T) {
	history := &stubHistory{points: monthlyPoints([]float64{10000, 9500, 11000, 10500, 9800, 10200})}
	benchmarks := &stubBenchmarks{stats: &repo.PeerStats{
		Median:     9000,
		Mean:       9100,
		StdDev:     1500,
		TopDecile:  12000,
		CohortSize: 40,
	}}
	p := NewPipeline(testLogger(), history, nil, nil, WithBenchmarks(benchmarks))

	req := validRequest()
	req.IncludeBenchmarks = true
	req.Industry = "retail"
	req.SizeClass = "small"

	result, err := p.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.Benchmark == nil {
		t.Fatal("expected a benchmark comparison")
	}
	if result.Benchmark.Percentile < 0 || result.Benchmark.Percentile > 100 {
		t.Errorf("percentile %v out of [0,100]", result.Benchmark.Percentile)
	}
	if result.Benchmark.CohortSize != 40 {
		t.Errorf("cohort size = %d, want 40", result.Benchmark.CohortSize)
	}
}

func TestGenerateBenchmarkFailureOmitted(t *testing.T) {
	history := &stubHistory{points: monthlyPoints([]float64{10000, 9500, 11000, 10500, 9800, 10200})}
	benchmarks := &stubBenchmarks{err: errors.New("peer service down")}
	p := NewPipeline(testLogger(), history, nil, nil, WithBenchmarks(benchmarks))

	req := validRequest()
	req.IncludeBenchmarks = true
	req.Industry = "retail"

	result, err := p.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("benchmark failure must not fail the prediction: %v", err)
	}
	if result.Benchmark != nil {
		t.Error("failed benchmark lookup should omit the comparison")
	}
	if len(result.Predictions) != 3 {
		t.Errorf("prediction unaffected check failed, got %d points", len(result.Predictions))
	}
}

func TestGenerateBatchIsolation(t *testing.T) {
	history := &stubHistory{points: monthlyPoints([]float64{10000, 9500, 11000, 10500, 9800, 10200})}
	p := NewPipeline(testLogger(), history, nil, nil, WithMaxConcurrent(2))

	bad := validRequest()
	bad.OrganizationID = ""

	items := p.GenerateBatch(context.Background(), []models.PredictionRequest{validRequest(), bad, validRequest()})
	if len(items) != 3 {
		t.Fatalf("items = %d, want 3", len(items))
	}
	if items[0].Err != nil || items[0].Result == nil {
		t.Errorf("item 0 should succeed: %v", items[0].Err)
	}
	if items[1].Err == nil {
		t.Error("item 1 should fail validation")
	}
	if items[2].Err != nil || items[2].Result == nil {
		t.Errorf("item 2 should succeed: %v", items[2].Err)
	}
}

func TestInferStep(t *testing.T) {
	daily := make([]models.TimeSeriesPoint, 10)
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range daily {
		daily[i] = models.TimeSeriesPoint{Timestamp: start.AddDate(0, 0, i)}
	}
	if got := inferStep(daily); got != "day" {
		t.Errorf("daily spacing inferred as %q", got)
	}

	weekly := make([]models.TimeSeriesPoint, 10)
	for i := range weekly {
		weekly[i] = models.TimeSeriesPoint{Timestamp: start.AddDate(0, 0, i*7)}
	}
	if got := inferStep(weekly); got != "week" {
		t.Errorf("weekly spacing inferred as %q", got)
	}

	monthly := make([]models.TimeSeriesPoint, 10)
	for i := range monthly {
		monthly[i] = models.TimeSeriesPoint{Timestamp: start.AddDate(0, i, 0)}
	}
	if got := inferStep(monthly); got != "month" {
		t.Errorf("monthly spacing inferred as %q", got)
	}
}

func TestResultConfidenceFloors(t *testing.T) {
	history := &stubHistory{points: monthlyPoints([]float64{100})}
	p := NewPipeline(testLogger(), history, nil, nil)

	result, err := p.Generate(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("single point must degrade, not fail: %v", err)
	}
	if result.Confidence < 0.1 {
		t.Errorf("confidence %v below floor", result.Confidence)
	}
	if !result.Metadata.Degraded {
		t.Error("single-point history must be degraded")
	}
}
