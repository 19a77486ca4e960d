package models

// ScenarioAdjustment perturbs the forecast inputs for one what-if run.
// Multiplier scales the historical level (1.0 is identity) and Offset shifts
// it additively after scaling.
type ScenarioAdjustment struct {
	Name       string  `json:"name"`
	Multiplier float64 `json:"multiplier"`
	Offset     float64 `json:"offset"`
}

// PredictionRequest describes one forecast computation.
type PredictionRequest struct {
	OrganizationID     string               `json:"organizationId"`
	ClientID           string               `json:"clientId,omitempty"`
	PredictionType     PredictionType       `json:"predictionType"`
	TimeHorizon        int                  `json:"timeHorizon"`
	Confidence         float64              `json:"confidence"`
	IncludeSeasonality bool                 `json:"includeSeasonality"`
	IncludeBenchmarks  bool                 `json:"includeBenchmarks"`
	Industry           string               `json:"industry,omitempty"`
	SizeClass          string               `json:"sizeClass,omitempty"`
	Scenarios          []ScenarioAdjustment `json:"scenarios,omitempty"`
}

// RiskScoreOptions tunes a composite risk computation.
type RiskScoreOptions struct {
	OrganizationID string `json:"organizationId,omitempty"`
	LookbackDays   int    `json:"lookbackDays"`
	IncludeMarket  bool   `json:"includeMarket"`
}

// FraudScanRequest bounds an anomaly sweep over recent transactions.
type FraudScanRequest struct {
	OrganizationID string `json:"organizationId"`
	ClientID       string `json:"clientId,omitempty"`
	LookbackDays   int    `json:"lookbackDays"`
}
