// Package engine orchestrates the prediction pipeline: feature preparation,
// seasonal decomposition, ensemble forecasting, confidence intervals, and the
// optional scenario and benchmark stages.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/ledgerstack/predict-engine/internal/features"
	"github.com/ledgerstack/predict-engine/internal/forecast"
	"github.com/ledgerstack/predict-engine/internal/models"
	"github.com/ledgerstack/predict-engine/internal/repo"
	"github.com/ledgerstack/predict-engine/internal/seasonal"
	"github.com/ledgerstack/predict-engine/internal/utils"
)

// ModelVersion tags results with the pipeline revision that produced them.
const ModelVersion = "1.2.0"

// HistoryClient supplies ordered ledger history per organization/client.
type HistoryClient interface {
	FetchSeries(ctx context.Context, organizationID, clientID, category string) ([]models.TimeSeriesPoint, error)
}

// BenchmarkClient supplies peer percentile statistics. Implementations may be
// unavailable; the pipeline degrades by omitting the comparison.
type BenchmarkClient interface {
	PeerStats(ctx context.Context, industry, sizeClass string) (*repo.PeerStats, error)
}

// Pipeline runs forecast requests end to end.
type Pipeline struct {
	logger     *slog.Logger
	history    HistoryClient
	decomposer *seasonal.CachedDecomposer
	forecaster *forecast.Forecaster
	benchmarks BenchmarkClient

	maxConcurrent int
	now           func() time.Time
}

// PipelineOption adjusts pipeline construction.
type PipelineOption func(*Pipeline)

// WithBenchmarks attaches the optional peer-data collaborator.
func WithBenchmarks(client BenchmarkClient) PipelineOption {
	return func(p *Pipeline) { p.benchmarks = client }
}

// WithMaxConcurrent caps batch parallelism.
func WithMaxConcurrent(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxConcurrent = n
		}
	}
}

// WithPipelineClock injects a time source for tests.
func WithPipelineClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// NewPipeline constructs the prediction pipeline.
func NewPipeline(logger *slog.Logger, history HistoryClient, decomposer *seasonal.CachedDecomposer, forecaster *forecast.Forecaster, opts ...PipelineOption) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if decomposer == nil {
		decomposer = seasonal.NewCachedDecomposer(nil, nil, 0, logger)
	}
	if forecaster == nil {
		forecaster = forecast.NewForecaster(forecast.Config{}, logger)
	}
	p := &Pipeline{
		logger:        logger,
		history:       history,
		decomposer:    decomposer,
		forecaster:    forecaster,
		maxConcurrent: 4,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Generate executes one prediction request. Validation failures are returned
// to the caller; data-quality and model failures degrade the result instead.
func (p *Pipeline) Generate(ctx context.Context, req models.PredictionRequest) (*models.PredictionResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if p.history == nil {
		return nil, fmt.Errorf("history client not configured")
	}

	points, err := p.history.FetchSeries(ctx, req.OrganizationID, req.ClientID, categoryFor(req.PredictionType))
	if err != nil {
		return nil, utils.ExternalDependencyError("engine.Generate", "history fetch failed", err)
	}

	bundle, err := features.Prepare(points, inferStep(points))
	if err != nil {
		return nil, err
	}

	mode := seasonal.ModeFor(bundle.Values)
	var factors []models.SeasonalFactor
	if req.IncludeSeasonality {
		factors = p.decomposer.Decompose(ctx, points, mode)
	}

	base, err := p.forecastSeries(ctx, bundle, factors, mode, req)
	if err != nil {
		return nil, err
	}

	result := &models.PredictionResult{
		ID:              uuid.NewString(),
		OrganizationID:  req.OrganizationID,
		ClientID:        req.ClientID,
		PredictionType:  req.PredictionType,
		Predictions:     base.points,
		Confidence:      resultConfidence(bundle, base.models, base.degraded),
		SeasonalFactors: factors,
		Metadata: models.PredictionMetadata{
			ModelVersion: ModelVersion,
			Models:       base.models,
			TrainedAt:    p.now().UTC(),
			DataRange:    bundle.Range,
			Observations: len(points),
			Features:     featureNames(bundle, req.IncludeSeasonality),
			Degraded:     base.degraded || bundle.LowConfidence,
		},
		CreatedAt: p.now().UTC(),
	}

	for _, adj := range req.Scenarios {
		scenario, err := p.runScenario(ctx, bundle, factors, mode, req, adj)
		if err != nil {
			p.logger.Warn("scenario run failed", slog.String("scenario", adj.Name), slog.Any("error", err))
			continue
		}
		result.Scenarios = append(result.Scenarios, *scenario)
	}

	if req.IncludeBenchmarks {
		result.Benchmark = p.compareBenchmark(ctx, req, base.points)
	}

	return result, nil
}

// BatchItem pairs one batch entry with its outcome.
type BatchItem struct {
	Request models.PredictionRequest
	Result  *models.PredictionResult
	Err     error
}

// GenerateBatch runs independent requests with bounded parallelism. Item
// failures are isolated; the slice order matches the input order.
func (p *Pipeline) GenerateBatch(ctx context.Context, reqs []models.PredictionRequest) []BatchItem {
	items := make([]BatchItem, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxConcurrent)

	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			result, err := p.Generate(gctx, req)
			items[i] = BatchItem{Request: req, Result: result, Err: err}
			// Item failures never abort the batch.
			return nil
		})
	}
	_ = g.Wait()
	return items
}

type seriesForecast struct {
	points   []models.PredictionPoint
	models   []string
	degraded bool
}

// forecastSeries runs the model stage over a prepared bundle and converts
// the float kernel output back to decimal prediction points.
func (p *Pipeline) forecastSeries(ctx context.Context, bundle *features.Bundle, factors []models.SeasonalFactor, mode seasonal.Mode, req models.PredictionRequest) (*seriesForecast, error) {
	values := bundle.Values
	if len(factors) > 0 {
		values = deseasonalise(bundle, factors, mode, p.decomposer.Holidays())
	}

	ensembleResult, err := p.forecaster.Forecast(ctx, values, req.TimeHorizon)
	if err != nil {
		return nil, err
	}

	steps := ensembleResult.Steps
	lastDate := bundle.Range.End
	if len(factors) > 0 {
		steps = reseasonalise(steps, factors, mode, lastDate, bundle.Step, p.decomposer.Holidays())
	}

	intervals := forecast.Intervals(steps, req.Confidence)
	points := make([]models.PredictionPoint, len(intervals))
	for i, iv := range intervals {
		points[i] = models.PredictionPoint{
			Date:       utils.AddPeriods(lastDate, bundle.Step, i+1),
			Value:      decimal.NewFromFloat(iv.Value).Round(2),
			UpperBound: decimal.NewFromFloat(iv.Upper).Round(2),
			LowerBound: decimal.NewFromFloat(iv.Lower).Round(2),
			Confidence: req.Confidence,
		}
	}
	return &seriesForecast{points: points, models: ensembleResult.Models, degraded: ensembleResult.Degraded}, nil
}

func (p *Pipeline) compareBenchmark(ctx context.Context, req models.PredictionRequest, points []models.PredictionPoint) *models.BenchmarkComparison {
	if p.benchmarks == nil || req.Industry == "" {
		return nil
	}

	stats, err := p.benchmarks.PeerStats(ctx, req.Industry, req.SizeClass)
	if err != nil {
		p.logger.Warn("benchmark lookup failed, omitting comparison", slog.Any("error", err))
		return nil
	}
	if stats == nil || stats.CohortSize == 0 {
		return nil
	}

	var total float64
	for _, pt := range points {
		v, _ := pt.Value.Float64()
		total += v
	}
	mean := total / float64(len(points))

	return &models.BenchmarkComparison{
		Industry:      req.Industry,
		SizeClass:     req.SizeClass,
		Percentile:    stats.PercentileOf(mean),
		PeerMedian:    decimal.NewFromFloat(stats.Median).Round(2),
		PeerTopDecile: decimal.NewFromFloat(stats.TopDecile).Round(2),
		CohortSize:    stats.CohortSize,
	}
}

func validateRequest(req models.PredictionRequest) error {
	if req.OrganizationID == "" {
		return utils.ValidationError("engine.Generate", "organization id is required")
	}
	if !req.PredictionType.Valid() {
		return utils.ValidationError("engine.Generate", fmt.Sprintf("unknown prediction type %q", req.PredictionType))
	}
	if req.TimeHorizon <= 0 {
		return utils.ValidationError("engine.Generate", "time horizon must be positive")
	}
	if req.Confidence <= 0 || req.Confidence > 1 {
		return utils.ValidationError("engine.Generate", "confidence must be in (0,1]")
	}
	return nil
}

// resultConfidence derives the quality signal attached to a result. Missing
// models and short histories lower it; it never reaches 1.
func resultConfidence(bundle *features.Bundle, usedModels []string, degraded bool) float64 {
	confidence := 0.85
	if len(usedModels) < 2 {
		confidence -= 0.1
	}
	if bundle.LowConfidence {
		confidence -= 0.2
	}
	if degraded {
		confidence -= 0.25
	}
	if bundle.Gaps > 0 {
		confidence -= 0.05
	}
	if confidence < 0.1 {
		confidence = 0.1
	}
	return confidence
}

func featureNames(bundle *features.Bundle, seasonality bool) []string {
	names := []string{"level", "trend", "volatility"}
	if len(bundle.MonthMeans) > 0 {
		names = append(names, "cyclical")
	}
	if seasonality {
		names = append(names, "seasonality")
	}
	return names
}

func categoryFor(t models.PredictionType) string {
	switch t {
	case models.PredictionRevenue:
		return "revenue"
	case models.PredictionExpense:
		return "expense"
	default:
		return ""
	}
}

// inferStep derives the calendar step from the median spacing of the series.
func inferStep(points []models.TimeSeriesPoint) string {
	if len(points) < 2 {
		return "month"
	}
	gaps := make([]time.Duration, 0, len(points)-1)
	for i := 1; i < len(points); i++ {
		gaps = append(gaps, points[i].Timestamp.Sub(points[i-1].Timestamp))
	}
	median := medianDuration(gaps)
	switch {
	case median <= 2*24*time.Hour:
		return "day"
	case median <= 10*24*time.Hour:
		return "week"
	default:
		return "month"
	}
}

func medianDuration(ds []time.Duration) time.Duration {
	sorted := append([]time.Duration(nil), ds...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j] < sorted[j-1]; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	return sorted[len(sorted)/2]
}

// deseasonalise removes the seasonal signal so the models see the adjusted
// level; reseasonalise restores it on the forecast dates.
func deseasonalise(bundle *features.Bundle, factors []models.SeasonalFactor, mode seasonal.Mode, holidays []seasonal.Holiday) []float64 {
	out := make([]float64, len(bundle.Values))
	for i, v := range bundle.Values {
		f := seasonal.FactorFor(factors, bundle.Points[i].Timestamp, bundle.Step, mode, holidays)
		switch {
		case mode == seasonal.Additive:
			out[i] = v - f
		case f != 0:
			out[i] = v / f
		default:
			out[i] = v
		}
	}
	return out
}

func reseasonalise(steps []forecast.StepForecast, factors []models.SeasonalFactor, mode seasonal.Mode, lastDate time.Time, step string, holidays []seasonal.Holiday) []forecast.StepForecast {
	out := make([]forecast.StepForecast, len(steps))
	for i, s := range steps {
		date := utils.AddPeriods(lastDate, step, i+1)
		f := seasonal.FactorFor(factors, date, step, mode, holidays)
		if mode == seasonal.Additive {
			out[i] = forecast.StepForecast{Value: s.Value + f, Sigma: s.Sigma}
		} else {
			out[i] = forecast.StepForecast{Value: s.Value * f, Sigma: s.Sigma * absFloat(f)}
		}
	}
	return out
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
