package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PredictionType enumerates the supported forecast targets.
type PredictionType string

const (
	PredictionCashFlow       PredictionType = "cash_flow"
	PredictionRevenue        PredictionType = "revenue"
	PredictionExpense        PredictionType = "expense"
	PredictionBudgetVariance PredictionType = "budget_variance"
)

// Valid reports whether the prediction type is one of the known targets.
func (t PredictionType) Valid() bool {
	switch t {
	case PredictionCashFlow, PredictionRevenue, PredictionExpense, PredictionBudgetVariance:
		return true
	}
	return false
}

// PredictionPoint is one forecast step. LowerBound <= Value <= UpperBound and
// Confidence lies in (0,1].
type PredictionPoint struct {
	Date       time.Time       `json:"date"`
	Value      decimal.Decimal `json:"value"`
	UpperBound decimal.Decimal `json:"upperBound"`
	LowerBound decimal.Decimal `json:"lowerBound"`
	Confidence float64         `json:"confidence"`
}

// PeriodKind enumerates seasonal factor groupings.
type PeriodKind string

const (
	PeriodMonthly PeriodKind = "monthly"
	PeriodWeekly  PeriodKind = "weekly"
	PeriodHoliday PeriodKind = "holiday"
)

// SeasonalFactor is a derived period adjustment. Multiplicative factors
// average to 1 across a period kind; additive factors average to 0.
type SeasonalFactor struct {
	Kind   PeriodKind `json:"kind"`
	Index  int        `json:"index"`
	Factor float64    `json:"factor"`
}

// Scenario holds the outcome of a named what-if perturbation of a base
// forecast. Read-only once built.
type Scenario struct {
	Name        string            `json:"name"`
	Assumptions map[string]string `json:"assumptions"`
	Predictions []PredictionPoint `json:"predictions"`
}

// BenchmarkComparison positions a forecast against industry peers.
type BenchmarkComparison struct {
	Industry      string          `json:"industry"`
	SizeClass     string          `json:"sizeClass"`
	Percentile    float64         `json:"percentile"`
	PeerMedian    decimal.Decimal `json:"peerMedian"`
	PeerTopDecile decimal.Decimal `json:"peerTopDecile"`
	CohortSize    int             `json:"cohortSize"`
}

// PredictionMetadata describes how a result was produced.
type PredictionMetadata struct {
	ModelVersion string    `json:"modelVersion"`
	Models       []string  `json:"models"`
	TrainedAt    time.Time `json:"trainedAt"`
	DataRange    TimeRange `json:"dataRange"`
	Observations int       `json:"observations"`
	Features     []string  `json:"features"`
	Degraded     bool      `json:"degraded"`
}

// PredictionResult is the immutable outcome of one forecast request.
type PredictionResult struct {
	ID              string               `json:"id"`
	OrganizationID  string               `json:"organizationId"`
	ClientID        string               `json:"clientId,omitempty"`
	PredictionType  PredictionType       `json:"predictionType"`
	Predictions     []PredictionPoint    `json:"predictions"`
	Confidence      float64              `json:"confidence"`
	SeasonalFactors []SeasonalFactor     `json:"seasonalFactors,omitempty"`
	Scenarios       []Scenario           `json:"scenarios,omitempty"`
	Benchmark       *BenchmarkComparison `json:"benchmark,omitempty"`
	Metadata        PredictionMetadata   `json:"metadata"`
	CreatedAt       time.Time            `json:"createdAt"`
}
