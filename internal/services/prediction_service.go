package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/ledgerstack/predict-engine/internal/anomaly"
	"github.com/ledgerstack/predict-engine/internal/engine"
	"github.com/ledgerstack/predict-engine/internal/metrics"
	"github.com/ledgerstack/predict-engine/internal/models"
	"github.com/ledgerstack/predict-engine/internal/repo"
	"github.com/ledgerstack/predict-engine/internal/risk"
	"github.com/ledgerstack/predict-engine/internal/utils"
)

const (
	defaultFraudLookbackDays = 90
	defaultRiskLookbackDays  = 180
	defaultConfidence        = 0.95
)

// PredictionService is the operation facade the transports call into.
type PredictionService struct {
	logger    *slog.Logger
	pipeline  *engine.Pipeline
	history   repo.HistoryProvider
	detector  *anomaly.Detector
	scorer    *risk.Scorer
	latencies *utils.LatencyTracker
	now       func() time.Time
}

// NewPredictionService wires the facade over its collaborators.
func NewPredictionService(logger *slog.Logger, pipeline *engine.Pipeline, history repo.HistoryProvider, detector *anomaly.Detector, scorer *risk.Scorer) *PredictionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PredictionService{
		logger:    logger,
		pipeline:  pipeline,
		history:   history,
		detector:  detector,
		scorer:    scorer,
		latencies: utils.NewLatencyTracker(1024),
		now:       time.Now,
	}
}

// GeneratePrediction runs one forecast request end to end.
func (s *PredictionService) GeneratePrediction(ctx context.Context, req models.PredictionRequest) (*models.PredictionResult, error) {
	if s.pipeline == nil {
		return nil, utils.ExternalDependencyError("services.GeneratePrediction", "pipeline not configured", nil)
	}

	start := time.Now()
	result, err := s.pipeline.Generate(ctx, req)
	duration := time.Since(start)
	if err != nil {
		metrics.ObservePrediction(string(req.PredictionType), duration, metrics.OutcomeError)
		s.logger.Error("prediction failed",
			slog.String("organizationId", req.OrganizationID),
			slog.String("type", string(req.PredictionType)),
			slog.Any("error", err))
		return nil, err
	}

	s.latencies.Observe(duration)
	metrics.ObservePrediction(string(req.PredictionType), duration, metrics.OutcomeSuccess)
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		s.logger.Info("prediction latency",
			slog.Duration("p95", s.latencies.Percentile(95)),
			slog.Int("samples", count))
	}
	return result, nil
}

// ForecastCashFlow is the daily cash flow convenience wrapper. It returns
// exactly `days` prediction points.
func (s *PredictionService) ForecastCashFlow(ctx context.Context, organizationID, clientID string, days int) (*models.PredictionResult, error) {
	return s.GeneratePrediction(ctx, models.PredictionRequest{
		OrganizationID:     organizationID,
		ClientID:           clientID,
		PredictionType:     models.PredictionCashFlow,
		TimeHorizon:        days,
		Confidence:         defaultConfidence,
		IncludeSeasonality: true,
	})
}

// PredictRevenue is the monthly revenue convenience wrapper. It returns
// exactly `months` prediction points.
func (s *PredictionService) PredictRevenue(ctx context.Context, organizationID, clientID string, months int) (*models.PredictionResult, error) {
	return s.GeneratePrediction(ctx, models.PredictionRequest{
		OrganizationID:     organizationID,
		ClientID:           clientID,
		PredictionType:     models.PredictionRevenue,
		TimeHorizon:        months,
		Confidence:         defaultConfidence,
		IncludeSeasonality: true,
	})
}

// GeneratePredictionBatch runs independent requests with bounded parallelism.
func (s *PredictionService) GeneratePredictionBatch(ctx context.Context, reqs []models.PredictionRequest) ([]engine.BatchItem, error) {
	if s.pipeline == nil {
		return nil, utils.ExternalDependencyError("services.GeneratePredictionBatch", "pipeline not configured", nil)
	}
	if len(reqs) == 0 {
		return nil, utils.ValidationError("services.GeneratePredictionBatch", "batch is empty")
	}
	return s.pipeline.GenerateBatch(ctx, reqs), nil
}

// DetectFraud sweeps the lookback window and returns only detections above
// the reporting threshold.
func (s *PredictionService) DetectFraud(ctx context.Context, req models.FraudScanRequest) ([]models.AnomalyDetection, error) {
	if req.OrganizationID == "" {
		return nil, utils.ValidationError("services.DetectFraud", "organization id is required")
	}
	if s.history == nil || s.detector == nil {
		return nil, utils.ExternalDependencyError("services.DetectFraud", "fraud detection not configured", nil)
	}

	lookback := req.LookbackDays
	if lookback <= 0 {
		lookback = defaultFraudLookbackDays
	}
	since := s.now().AddDate(0, 0, -lookback)

	txns, err := s.history.FetchTransactions(ctx, req.OrganizationID, req.ClientID, since)
	if err != nil {
		return nil, utils.ExternalDependencyError("services.DetectFraud", "transaction fetch failed", err)
	}

	detections, err := s.detector.Detect(txns)
	if err != nil {
		return nil, err
	}
	metrics.ObserveAnomalies(len(detections))
	return detections, nil
}

// ComputeRiskScore builds the composite score for one subject. The anomaly
// sweep feeds the behavioral component; a sweep failure downgrades to a
// series-only score rather than failing the call. A subject with no history
// at all gets a neutral score flagged as such. The trend comes from scoring
// the preceding lookback window and comparing composites.
func (s *PredictionService) ComputeRiskScore(ctx context.Context, subjectID string, opts models.RiskScoreOptions) (*models.RiskScore, error) {
	if subjectID == "" {
		return nil, utils.ValidationError("services.ComputeRiskScore", "subject id is required")
	}
	if s.history == nil || s.scorer == nil {
		return nil, utils.ExternalDependencyError("services.ComputeRiskScore", "risk scoring not configured", nil)
	}

	organizationID := opts.OrganizationID
	if organizationID == "" {
		organizationID = subjectID
	}
	lookback := opts.LookbackDays
	if lookback <= 0 {
		lookback = defaultRiskLookbackDays
	}
	since := s.now().AddDate(0, 0, -lookback)
	priorSince := since.AddDate(0, 0, -lookback)

	series, err := s.history.FetchSeries(ctx, organizationID, "", "")
	if err != nil {
		return nil, utils.ExternalDependencyError("services.ComputeRiskScore", "history fetch failed", err)
	}

	// Fetch two windows worth of transactions so the prior period can be
	// scored for the trend.
	var txns []models.Transaction
	txns, err = s.history.FetchTransactions(ctx, organizationID, "", priorSince)
	if err != nil {
		s.logger.Warn("transaction fetch failed, scoring without behavioral input", slog.Any("error", err))
		txns = nil
	}
	currentTxns, priorTxns := splitTransactionsAt(txns, since, priorSince)

	if len(series) == 0 && len(currentTxns) == 0 {
		s.logger.Warn("no history for subject, returning neutral score", slog.String("subjectId", subjectID))
		return neutralRiskScore(subjectID, opts, s.now()), nil
	}

	priorScore := s.priorWindowScore(subjectID, series, priorTxns, since, priorSince, opts)

	return s.scorer.Compute(risk.Input{
		SubjectID:    subjectID,
		Series:       series,
		Transactions: currentTxns,
		Detections:   s.sweepForRisk(currentTxns),
		Options:      opts,
		PriorScore:   priorScore,
	})
}

// priorWindowScore scores the preceding lookback window. A window with no
// usable data yields no prior, which reports the trend as stable.
func (s *PredictionService) priorWindowScore(subjectID string, series []models.TimeSeriesPoint, priorTxns []models.Transaction, since, priorSince time.Time, opts models.RiskScoreOptions) *models.RiskScore {
	priorSeries := make([]models.TimeSeriesPoint, 0, len(series))
	for _, p := range series {
		if p.Timestamp.Before(since) && !p.Timestamp.Before(priorSince) {
			priorSeries = append(priorSeries, p)
		}
	}
	if len(priorSeries) == 0 && len(priorTxns) == 0 {
		return nil
	}

	prior, err := s.scorer.Compute(risk.Input{
		SubjectID:    subjectID,
		Series:       priorSeries,
		Transactions: priorTxns,
		Detections:   s.sweepForRisk(priorTxns),
		Options:      opts,
	})
	if err != nil {
		s.logger.Warn("prior window scoring failed, trend unavailable", slog.Any("error", err))
		return nil
	}
	return prior
}

func (s *PredictionService) sweepForRisk(txns []models.Transaction) []models.AnomalyDetection {
	if s.detector == nil || len(txns) == 0 {
		return nil
	}
	detections, err := s.detector.Detect(txns)
	if err != nil {
		s.logger.Warn("anomaly sweep failed during risk scoring", slog.Any("error", err))
		return nil
	}
	return detections
}

func splitTransactionsAt(txns []models.Transaction, since, priorSince time.Time) (current, prior []models.Transaction) {
	for _, txn := range txns {
		switch {
		case !txn.Timestamp.Before(since):
			current = append(current, txn)
		case !txn.Timestamp.Before(priorSince):
			prior = append(prior, txn)
		}
	}
	return current, prior
}

func neutralRiskScore(subjectID string, opts models.RiskScoreOptions, at time.Time) *models.RiskScore {
	components := map[models.RiskComponentKind]float64{
		models.ComponentFinancial:  50,
		models.ComponentBehavioral: 50,
	}
	if opts.IncludeMarket {
		components[models.ComponentMarket] = 50
	}
	return &models.RiskScore{
		SubjectID:    subjectID,
		OverallScore: 50,
		Components:   components,
		Factors: []models.RiskFactor{{
			Name:        "insufficient_history",
			Component:   models.ComponentFinancial,
			Impact:      0,
			Description: "no series or transactions in the lookback window",
		}},
		Trend:      models.TrendStable,
		ComputedAt: at,
	}
}

// LatencyP95 exposes the rolling p95 prediction latency.
func (s *PredictionService) LatencyP95() time.Duration {
	if s.latencies == nil {
		return 0
	}
	return s.latencies.Percentile(95)
}
