package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerstack/predict-engine/internal/anomaly"
	"github.com/ledgerstack/predict-engine/internal/engine"
	"github.com/ledgerstack/predict-engine/internal/models"
	"github.com/ledgerstack/predict-engine/internal/risk"
	"github.com/ledgerstack/predict-engine/internal/utils"
)

type stubHistory struct {
	series    []models.TimeSeriesPoint
	txns      []models.Transaction
	seriesErr error
	txnsErr   error
}

func (s *stubHistory) FetchSeries(ctx context.Context, organizationID, clientID, category string) ([]models.TimeSeriesPoint, error) {
	return s.series, s.seriesErr
}

func (s *stubHistory) FetchTransactions(ctx context.Context, organizationID, clientID string, since time.Time) ([]models.Transaction, error) {
	return s.txns, s.txnsErr
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dailySeries(n int, base float64) []models.TimeSeriesPoint {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	points := make([]models.TimeSeriesPoint, n)
	for i := 0; i < n; i++ {
		points[i] = models.TimeSeriesPoint{
			Timestamp: start.AddDate(0, 0, i),
			Amount:    decimal.NewFromFloat(base + float64(i%7)*25),
			Category:  "cash",
		}
	}
	return points
}

func newTestService(history *stubHistory) *PredictionService {
	logger := testLogger()
	pipeline := engine.NewPipeline(logger, history, nil, nil)
	return NewPredictionService(logger, pipeline, history,
		anomaly.NewDetector(logger), risk.NewScorer(logger))
}

func TestGeneratePredictionValidation(t *testing.T) {
	svc := newTestService(&stubHistory{series: dailySeries(30, 1000)})

	_, err := svc.GeneratePrediction(context.Background(), models.PredictionRequest{
		OrganizationID: "org-1",
		PredictionType: models.PredictionCashFlow,
		TimeHorizon:    0,
		Confidence:     0.95,
	})
	require.Error(t, err)
	assert.Equal(t, utils.KindValidation, utils.KindOf(err))
}

func TestForecastCashFlowHorizon(t *testing.T) {
	svc := newTestService(&stubHistory{series: dailySeries(60, 1000)})

	result, err := svc.ForecastCashFlow(context.Background(), "org-1", "", 7)
	require.NoError(t, err)
	require.Len(t, result.Predictions, 7)

	for i, p := range result.Predictions {
		assert.True(t, p.LowerBound.LessThanOrEqual(p.Value), "point %d lower > value", i)
		assert.True(t, p.Value.LessThanOrEqual(p.UpperBound), "point %d value > upper", i)
	}
	assert.Equal(t, models.PredictionCashFlow, result.PredictionType)
	assert.NotEmpty(t, result.Metadata.Models)
}

func TestPredictRevenueHorizon(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	series := make([]models.TimeSeriesPoint, 24)
	for i := range series {
		series[i] = models.TimeSeriesPoint{
			Timestamp: start.AddDate(0, i, 0),
			Amount:    decimal.NewFromFloat(50000 + float64(i)*800),
			Category:  "revenue",
		}
	}
	svc := newTestService(&stubHistory{series: series})

	result, err := svc.PredictRevenue(context.Background(), "org-1", "client-9", 6)
	require.NoError(t, err)
	assert.Len(t, result.Predictions, 6)
	assert.Equal(t, "client-9", result.ClientID)
}

func TestDetectFraudValidation(t *testing.T) {
	svc := newTestService(&stubHistory{})

	_, err := svc.DetectFraud(context.Background(), models.FraudScanRequest{})
	require.Error(t, err)
	assert.Equal(t, utils.KindValidation, utils.KindOf(err))
}

func TestDetectFraudThreshold(t *testing.T) {
	base := time.Date(2025, 3, 3, 14, 0, 0, 0, time.UTC)
	txns := make([]models.Transaction, 0, 21)
	for i := 0; i < 20; i++ {
		txns = append(txns, models.Transaction{
			ID:        "routine-" + string(rune('a'+i)),
			Timestamp: base.Add(time.Duration(i) * 24 * time.Hour),
			Amount:    decimal.NewFromFloat(150 + float64(i%4)*7.5),
			Category:  "supplies",
		})
	}
	txns = append(txns, models.Transaction{
		ID:        "suspicious",
		Timestamp: base.Add(500 * time.Hour),
		Amount:    decimal.NewFromFloat(25000),
		Category:  "supplies",
	})

	svc := newTestService(&stubHistory{txns: txns})

	detections, err := svc.DetectFraud(context.Background(), models.FraudScanRequest{OrganizationID: "org-1"})
	require.NoError(t, err)
	require.NotEmpty(t, detections)
	for _, det := range detections {
		assert.Greater(t, det.Score, anomaly.DefaultThreshold)
	}
	assert.Equal(t, "suspicious", detections[0].TransactionID)
}

func TestDetectFraudEmptyWindow(t *testing.T) {
	svc := newTestService(&stubHistory{})

	detections, err := svc.DetectFraud(context.Background(), models.FraudScanRequest{OrganizationID: "org-1"})
	require.NoError(t, err)
	assert.Empty(t, detections)
}

func TestDetectFraudFetchFailure(t *testing.T) {
	svc := newTestService(&stubHistory{txnsErr: errors.New("ledger offline")})

	_, err := svc.DetectFraud(context.Background(), models.FraudScanRequest{OrganizationID: "org-1"})
	require.Error(t, err)
	assert.Equal(t, utils.KindExternalDependency, utils.KindOf(err))
}

func TestComputeRiskScoreBounded(t *testing.T) {
	svc := newTestService(&stubHistory{series: dailySeries(90, 2000)})

	score, err := svc.ComputeRiskScore(context.Background(), "org-1", models.RiskScoreOptions{})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, score.OverallScore, 0.0)
	assert.LessOrEqual(t, score.OverallScore, 100.0)
	assert.Equal(t, "org-1", score.SubjectID)
}

func TestComputeRiskScoreSurvivesTransactionFailure(t *testing.T) {
	svc := newTestService(&stubHistory{
		series:  dailySeries(90, 2000),
		txnsErr: errors.New("ledger offline"),
	})

	score, err := svc.ComputeRiskScore(context.Background(), "org-1", models.RiskScoreOptions{})
	require.NoError(t, err)
	assert.NotNil(t, score)
}

func TestComputeRiskScoreNeutralWithoutHistory(t *testing.T) {
	svc := newTestService(&stubHistory{})

	score, err := svc.ComputeRiskScore(context.Background(), "org-1", models.RiskScoreOptions{})
	require.NoError(t, err)
	assert.Equal(t, 50.0, score.OverallScore)
	assert.Equal(t, models.TrendStable, score.Trend)
	require.NotEmpty(t, score.Factors)
	assert.Equal(t, "insufficient_history", score.Factors[0].Name)
}

func TestComputeRiskScoreTrendAgainstPriorWindow(t *testing.T) {
	monthly := func(year int, month time.Month, amount float64) models.TimeSeriesPoint {
		return models.TimeSeriesPoint{
			Timestamp: time.Date(year, month, 15, 0, 0, 0, 0, time.UTC),
			Amount:    decimal.NewFromFloat(amount),
			Category:  "cash",
		}
	}
	series := []models.TimeSeriesPoint{
		monthly(2024, time.July, 1000),
		monthly(2024, time.August, 1000),
		monthly(2024, time.September, 1000),
		monthly(2024, time.October, 1000),
		monthly(2024, time.November, 1000),
		monthly(2024, time.December, 1000),
		monthly(2025, time.January, 500),
		monthly(2025, time.February, 200),
		monthly(2025, time.March, -100),
		monthly(2025, time.April, -400),
		monthly(2025, time.May, -700),
		monthly(2025, time.June, -1000),
	}

	svc := newTestService(&stubHistory{series: series})
	svc.now = func() time.Time { return time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC) }

	score, err := svc.ComputeRiskScore(context.Background(), "org-1", models.RiskScoreOptions{})
	require.NoError(t, err)
	assert.Greater(t, score.PriorScore, 0.0)
	assert.Greater(t, score.OverallScore, score.PriorScore)
	assert.Equal(t, models.TrendDeteriorating, score.Trend)
}

func TestGeneratePredictionBatchIsolation(t *testing.T) {
	svc := newTestService(&stubHistory{series: dailySeries(60, 1000)})

	reqs := []models.PredictionRequest{
		{
			OrganizationID: "org-1",
			PredictionType: models.PredictionCashFlow,
			TimeHorizon:    5,
			Confidence:     0.9,
		},
		{
			// Missing organization, must fail alone.
			PredictionType: models.PredictionCashFlow,
			TimeHorizon:    5,
			Confidence:     0.9,
		},
	}

	items, err := svc.GeneratePredictionBatch(context.Background(), reqs)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.NoError(t, items[0].Err)
	require.NotNil(t, items[0].Result)
	assert.Len(t, items[0].Result.Predictions, 5)

	assert.Error(t, items[1].Err)
	assert.Nil(t, items[1].Result)
}

func TestGeneratePredictionBatchEmpty(t *testing.T) {
	svc := newTestService(&stubHistory{})

	_, err := svc.GeneratePredictionBatch(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, utils.KindValidation, utils.KindOf(err))
}
