package models

import "time"

// RiskTrend compares the current composite score to the prior period.
type RiskTrend string

const (
	TrendImproving     RiskTrend = "improving"
	TrendStable        RiskTrend = "stable"
	TrendDeteriorating RiskTrend = "deteriorating"
)

// RiskComponentKind names a weighted input to the composite score.
type RiskComponentKind string

const (
	ComponentFinancial  RiskComponentKind = "financial"
	ComponentBehavioral RiskComponentKind = "behavioral"
	ComponentMarket     RiskComponentKind = "market"
)

// RiskFactor is a single contributing signal, kept for explainability.
type RiskFactor struct {
	Name        string            `json:"name"`
	Component   RiskComponentKind `json:"component"`
	Impact      float64           `json:"impact"`
	Description string            `json:"description,omitempty"`
}

// RiskScore is the bounded composite risk assessment for a subject.
// OverallScore is always within [0,100].
type RiskScore struct {
	SubjectID    string                        `json:"subjectId"`
	OverallScore float64                       `json:"overallScore"`
	Components   map[RiskComponentKind]float64 `json:"components"`
	Factors      []RiskFactor                  `json:"factors"`
	Trend        RiskTrend                     `json:"trend"`
	PriorScore   float64                       `json:"priorScore,omitempty"`
	ComputedAt   time.Time                     `json:"computedAt"`
}
