package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TimeSeriesPoint is a single historical financial observation. Points are
// immutable and ordered by timestamp by the history feed that owns them.
type TimeSeriesPoint struct {
	Timestamp time.Time       `json:"timestamp"`
	Amount    decimal.Decimal `json:"amount"`
	Category  string          `json:"category"`
	Source    string          `json:"source"`
}

// TimeRange bounds the historical window a computation was derived from.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// SeriesRange returns the inclusive time span covered by an ordered series.
func SeriesRange(points []TimeSeriesPoint) TimeRange {
	if len(points) == 0 {
		return TimeRange{}
	}
	return TimeRange{Start: points[0].Timestamp, End: points[len(points)-1].Timestamp}
}

// Transaction is an individual ledger entry examined by the fraud detector.
type Transaction struct {
	ID          string          `json:"id"`
	Timestamp   time.Time       `json:"timestamp"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Description string          `json:"description,omitempty"`
	Channel     string          `json:"channel,omitempty"`
}
