package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RiskLevel buckets a fraud score into fixed bands.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RiskLevelForScore maps a fraud score in [0,1] onto the fixed bands.
func RiskLevelForScore(score float64) RiskLevel {
	switch {
	case score >= 0.85:
		return RiskCritical
	case score >= 0.7:
		return RiskHigh
	case score >= 0.5:
		return RiskMedium
	default:
		return RiskLow
	}
}

// DetectionLabel records the review outcome for a previously flagged
// transaction. Labels feed the learned per-category weighting.
type DetectionLabel struct {
	TransactionID string `json:"transactionId"`
	Category      string `json:"category"`
	Confirmed     bool   `json:"confirmed"`
}

// AnomalyDetection flags one transaction whose score cleared the reporting
// threshold. Detections at or below the threshold are never emitted.
type AnomalyDetection struct {
	TransactionID     string          `json:"transactionId"`
	Timestamp         time.Time       `json:"timestamp"`
	Amount            decimal.Decimal `json:"amount"`
	Category          string          `json:"category"`
	Score             float64         `json:"score"`
	RiskLevel         RiskLevel       `json:"riskLevel"`
	RiskFactors       []string        `json:"riskFactors"`
	Confidence        float64         `json:"confidence"`
	RecommendedAction string          `json:"recommendedAction"`
}
