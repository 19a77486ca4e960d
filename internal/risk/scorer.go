package risk

import (
	"log/slog"
	"math"
	"time"

	"github.com/ledgerstack/predict-engine/internal/models"
	"github.com/ledgerstack/predict-engine/internal/utils"
)

// Component weights for the composite score. When the market component is
// excluded its weight is redistributed proportionally over the other two.
const (
	weightFinancial  = 0.40
	weightBehavioral = 0.30
	weightMarket     = 0.30
)

// stableBand is the delta against the prior score that still counts as a
// flat trend.
const stableBand = 2.5

// Input carries everything a composite computation needs. PriorScore is
// optional; without one the trend is reported stable.
type Input struct {
	SubjectID    string
	Series       []models.TimeSeriesPoint
	Transactions []models.Transaction
	Detections   []models.AnomalyDetection
	Options      models.RiskScoreOptions
	PriorScore   *models.RiskScore
}

// Scorer blends financial, behavioral, and market components into one
// bounded score in [0,100]. Higher is riskier.
type Scorer struct {
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Scorer)

// WithClock overrides the scorer's clock.
func WithClock(now func() time.Time) Option {
	return func(s *Scorer) { s.now = now }
}

func NewScorer(logger *slog.Logger, opts ...Option) *Scorer {
	s := &Scorer{
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Compute builds the composite score for one subject.
func (s *Scorer) Compute(in Input) (*models.RiskScore, error) {
	if in.SubjectID == "" {
		return nil, utils.ValidationError("risk.Compute", "subject id is required")
	}
	if len(in.Series) == 0 && len(in.Transactions) == 0 {
		return nil, utils.InsufficientDataError("risk.Compute", "no history to score")
	}

	var factors []models.RiskFactor

	financial := s.financialComponent(in.Series, &factors)
	behavioral := s.behavioralComponent(in.Transactions, in.Detections, &factors)

	components := map[models.RiskComponentKind]float64{
		models.ComponentFinancial:  financial,
		models.ComponentBehavioral: behavioral,
	}

	var overall float64
	if in.Options.IncludeMarket {
		market := s.marketComponent(in.Series, &factors)
		components[models.ComponentMarket] = market
		overall = weightFinancial*financial + weightBehavioral*behavioral + weightMarket*market
	} else {
		total := weightFinancial + weightBehavioral
		overall = (weightFinancial*financial + weightBehavioral*behavioral) / total
	}
	overall = clampScore(overall)

	score := &models.RiskScore{
		SubjectID:    in.SubjectID,
		OverallScore: round1(overall),
		Components:   components,
		Factors:      factors,
		Trend:        models.TrendStable,
		ComputedAt:   s.now(),
	}
	if in.PriorScore != nil {
		score.PriorScore = in.PriorScore.OverallScore
		score.Trend = trendAgainst(score.OverallScore, in.PriorScore.OverallScore)
	}

	s.logger.Info("risk score computed",
		"subjectId", in.SubjectID,
		"overall", score.OverallScore,
		"trend", score.Trend,
		"factors", len(factors))
	return score, nil
}

// financialComponent scores cash flow health: relative volatility, a
// deteriorating level, and the share of negative periods.
func (s *Scorer) financialComponent(series []models.TimeSeriesPoint, factors *[]models.RiskFactor) float64 {
	if len(series) < 3 {
		return 50
	}

	values := make([]float64, len(series))
	negatives := 0
	for i, p := range series {
		values[i] = p.Amount.InexactFloat64()
		if values[i] < 0 {
			negatives++
		}
	}

	component := 0.0

	m := mean(values)
	if sd := stddev(values); m != 0 {
		cv := math.Abs(sd / m)
		vol := math.Min(cv/1.5, 1) * 40
		component += vol
		if cv > 0.75 {
			*factors = append(*factors, models.RiskFactor{
				Name:        "high_cash_flow_volatility",
				Component:   models.ComponentFinancial,
				Impact:      round1(vol),
				Description: "cash flow variance is large relative to its level",
			})
		}
	} else {
		component += 40
	}

	if slope := trendSlope(values); slope < 0 {
		decline := math.Min(math.Abs(slope)/math.Max(math.Abs(m), 1)*float64(len(values)), 1) * 35
		component += decline
		if decline > 10 {
			*factors = append(*factors, models.RiskFactor{
				Name:        "declining_cash_flow",
				Component:   models.ComponentFinancial,
				Impact:      round1(decline),
				Description: "cash flow level is trending down over the window",
			})
		}
	}

	if negatives > 0 {
		negShare := float64(negatives) / float64(len(values)) * 25
		component += negShare
		*factors = append(*factors, models.RiskFactor{
			Name:        "negative_periods",
			Component:   models.ComponentFinancial,
			Impact:      round1(negShare),
			Description: "one or more periods closed negative",
		})
	}

	return clampScore(component)
}

// behavioralComponent scores transaction hygiene from the anomaly sweep.
func (s *Scorer) behavioralComponent(txns []models.Transaction, detections []models.AnomalyDetection, factors *[]models.RiskFactor) float64 {
	if len(txns) == 0 {
		return 50
	}

	component := 0.0

	rate := float64(len(detections)) / float64(len(txns))
	rateScore := math.Min(rate/0.1, 1) * 60
	component += rateScore
	if rate > 0.02 {
		*factors = append(*factors, models.RiskFactor{
			Name:        "elevated_anomaly_rate",
			Component:   models.ComponentBehavioral,
			Impact:      round1(rateScore),
			Description: "flagged transaction share is above the expected baseline",
		})
	}

	severe := 0
	for _, det := range detections {
		if det.RiskLevel == models.RiskHigh || det.RiskLevel == models.RiskCritical {
			severe++
		}
	}
	if severe > 0 {
		severeScore := math.Min(float64(severe)/3, 1) * 40
		component += severeScore
		*factors = append(*factors, models.RiskFactor{
			Name:        "severe_anomalies_present",
			Component:   models.ComponentBehavioral,
			Impact:      round1(severeScore),
			Description: "high or critical anomalies in the lookback window",
		})
	}

	return clampScore(component)
}

// marketComponent proxies external exposure with the dispersion of
// period-over-period growth. A dedicated market feed can replace it later.
func (s *Scorer) marketComponent(series []models.TimeSeriesPoint, factors *[]models.RiskFactor) float64 {
	if len(series) < 4 {
		return 50
	}

	growths := make([]float64, 0, len(series)-1)
	for i := 1; i < len(series); i++ {
		prev := series[i-1].Amount.InexactFloat64()
		cur := series[i].Amount.InexactFloat64()
		if prev == 0 {
			continue
		}
		growths = append(growths, (cur-prev)/math.Abs(prev))
	}
	if len(growths) < 2 {
		return 50
	}

	sd := stddev(growths)
	component := clampScore(math.Min(sd/0.5, 1) * 100)
	if component > 60 {
		*factors = append(*factors, models.RiskFactor{
			Name:        "unstable_growth",
			Component:   models.ComponentMarket,
			Impact:      round1(component),
			Description: "period growth is erratic relative to peers",
		})
	}
	return component
}

func trendAgainst(current, prior float64) models.RiskTrend {
	delta := current - prior
	switch {
	case math.Abs(delta) <= stableBand:
		return models.TrendStable
	case delta < 0:
		return models.TrendImproving
	default:
		return models.TrendDeteriorating
	}
}

// trendSlope is the least-squares slope of values over their index.
func trendSlope(values []float64) float64 {
	n := float64(len(values))
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, v := range values {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

func clampScore(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	sum := 0.0
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)-1))
}
