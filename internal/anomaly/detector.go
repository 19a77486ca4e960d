package anomaly

import (
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/ledgerstack/predict-engine/internal/models"
)

// DefaultThreshold is the reporting cutoff. Transactions scoring at or below
// it are treated as routine and never surface in scan results.
const DefaultThreshold = 0.3

const (
	minCategoryHistory = 5
	duplicateWindow    = 72 * time.Hour
	velocityWindow     = time.Hour
	velocityBurst      = 5
)

// Detector scores transactions against per-category history plus a set of
// structural pattern checks. When labeled review history is supplied, a
// learned per-category weight adjusts the final score.
type Detector struct {
	logger          *slog.Logger
	threshold       float64
	categoryWeights map[string]float64
}

// Option configures a Detector.
type Option func(*Detector)

// WithThreshold overrides the reporting cutoff. Values outside (0,1) fall
// back to the default.
func WithThreshold(t float64) Option {
	return func(d *Detector) {
		if t > 0 && t < 1 {
			d.threshold = t
		}
	}
}

// WithLabeledHistory derives per-category weights from reviewed detections.
// Each category's Laplace-smoothed confirmation rate is compared against the
// overall rate: categories whose flags historically confirm score higher,
// categories that mostly dismiss are discounted.
func WithLabeledHistory(labels []models.DetectionLabel) Option {
	return func(d *Detector) {
		d.categoryWeights = learnCategoryWeights(labels)
	}
}

func NewDetector(logger *slog.Logger, opts ...Option) *Detector {
	d := &Detector{
		logger:    logger,
		threshold: DefaultThreshold,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Threshold returns the active reporting cutoff.
func (d *Detector) Threshold() float64 { return d.threshold }

type categoryStats struct {
	mean   float64
	stddev float64
	q1     float64
	q3     float64
	count  int
}

// Detect scores every transaction and returns only those above the
// reporting threshold, ordered by score descending. An empty window is a
// clean sweep, not an error.
func (d *Detector) Detect(txns []models.Transaction) ([]models.AnomalyDetection, error) {
	if len(txns) == 0 {
		return nil, nil
	}

	ordered := make([]models.Transaction, len(txns))
	copy(ordered, txns)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	stats := buildCategoryStats(ordered)

	var detections []models.AnomalyDetection
	for i, txn := range ordered {
		score, factors := d.scoreTransaction(ordered, i, stats)
		if score <= d.threshold {
			continue
		}
		level := models.RiskLevelForScore(score)
		detections = append(detections, models.AnomalyDetection{
			TransactionID:     txn.ID,
			Timestamp:         txn.Timestamp,
			Amount:            txn.Amount,
			Category:          txn.Category,
			Score:             score,
			RiskLevel:         level,
			RiskFactors:       factors,
			Confidence:        detectionConfidence(stats[txn.Category]),
			RecommendedAction: actionForLevel(level),
		})
	}

	sort.SliceStable(detections, func(i, j int) bool {
		return detections[i].Score > detections[j].Score
	})

	d.logger.Info("anomaly sweep complete",
		"transactions", len(ordered),
		"flagged", len(detections),
		"threshold", d.threshold)
	return detections, nil
}

// scoreTransaction combines statistical distance with pattern flags into a
// bounded [0,1] score. Statistical evidence carries 60% of the weight,
// pattern flags the remaining 40%.
func (d *Detector) scoreTransaction(txns []models.Transaction, idx int, stats map[string]categoryStats) (float64, []string) {
	txn := txns[idx]
	amount := txn.Amount.InexactFloat64()
	var factors []string

	statScore := 0.0
	if cs, ok := stats[txn.Category]; ok && cs.count >= minCategoryHistory {
		if cs.stddev > 0 {
			z := math.Abs(amount-cs.mean) / cs.stddev
			if z > 2 {
				factors = append(factors, "amount_statistical_outlier")
			}
			// z of 4 or more saturates the statistical component.
			statScore = math.Min(z/4, 1)
		}
		iqr := cs.q3 - cs.q1
		if iqr > 0 {
			lower, upper := cs.q1-1.5*iqr, cs.q3+1.5*iqr
			if amount < lower || amount > upper {
				factors = append(factors, "amount_outside_iqr_fence")
				statScore = math.Max(statScore, 0.6)
			}
		}
	}

	patternScore := 0.0
	if isRoundAmount(amount) && math.Abs(amount) >= 1000 {
		factors = append(factors, "round_amount")
		patternScore += 0.25
	}
	if hour := txn.Timestamp.Hour(); hour < 6 || hour > 22 {
		factors = append(factors, "unusual_hour")
		patternScore += 0.25
	}
	if hasNearDuplicate(txns, idx) {
		factors = append(factors, "near_duplicate")
		patternScore += 0.3
	}
	if velocitySpike(txns, idx) {
		factors = append(factors, "velocity_spike")
		patternScore += 0.3
	}
	patternScore = math.Min(patternScore, 1)

	score := math.Min(0.6*statScore+0.4*patternScore, 1)
	if weight, ok := d.categoryWeights[txn.Category]; ok {
		score = math.Min(score*weight, 1)
		if weight > 1 {
			factors = append(factors, "category_confirmation_history")
		}
	}
	return score, factors
}

// Weight bounds keep a sparse label set from dominating the blended score.
const (
	minCategoryWeight = 0.5
	maxCategoryWeight = 1.5
)

// learnCategoryWeights builds a naive-Bayes-style weight per labeled
// category: the category's smoothed confirm rate over the overall rate,
// clamped to [minCategoryWeight, maxCategoryWeight].
func learnCategoryWeights(labels []models.DetectionLabel) map[string]float64 {
	if len(labels) == 0 {
		return nil
	}

	type tally struct {
		confirmed int
		total     int
	}
	byCategory := make(map[string]*tally)
	confirmed := 0
	for _, label := range labels {
		t := byCategory[label.Category]
		if t == nil {
			t = &tally{}
			byCategory[label.Category] = t
		}
		t.total++
		if label.Confirmed {
			t.confirmed++
			confirmed++
		}
	}

	overall := (float64(confirmed) + 1) / (float64(len(labels)) + 2)
	weights := make(map[string]float64, len(byCategory))
	for category, t := range byCategory {
		rate := (float64(t.confirmed) + 1) / (float64(t.total) + 2)
		weight := rate / overall
		if weight < minCategoryWeight {
			weight = minCategoryWeight
		}
		if weight > maxCategoryWeight {
			weight = maxCategoryWeight
		}
		weights[category] = weight
	}
	return weights
}

func buildCategoryStats(txns []models.Transaction) map[string]categoryStats {
	grouped := make(map[string][]float64)
	for _, txn := range txns {
		grouped[txn.Category] = append(grouped[txn.Category], txn.Amount.InexactFloat64())
	}

	stats := make(map[string]categoryStats, len(grouped))
	for category, values := range grouped {
		sorted := make([]float64, len(values))
		copy(sorted, values)
		sort.Float64s(sorted)
		stats[category] = categoryStats{
			mean:   mean(values),
			stddev: stddev(values),
			q1:     quantile(sorted, 0.25),
			q3:     quantile(sorted, 0.75),
			count:  len(values),
		}
	}
	return stats
}

// hasNearDuplicate reports another transaction with the same amount and
// category within the duplicate window.
func hasNearDuplicate(txns []models.Transaction, idx int) bool {
	txn := txns[idx]
	for i, other := range txns {
		if i == idx || other.Category != txn.Category {
			continue
		}
		if !other.Amount.Equal(txn.Amount) {
			continue
		}
		gap := txn.Timestamp.Sub(other.Timestamp)
		if gap < 0 {
			gap = -gap
		}
		if gap <= duplicateWindow {
			return true
		}
	}
	return false
}

// velocitySpike reports a burst of transactions in the hour preceding idx.
func velocitySpike(txns []models.Transaction, idx int) bool {
	cutoff := txns[idx].Timestamp.Add(-velocityWindow)
	count := 0
	for i := idx; i >= 0; i-- {
		if txns[i].Timestamp.Before(cutoff) {
			break
		}
		count++
	}
	return count >= velocityBurst
}

func isRoundAmount(v float64) bool {
	v = math.Abs(v)
	if v == 0 {
		return false
	}
	return math.Mod(v, 100) == 0
}

// detectionConfidence reflects how much category history backed the score.
func detectionConfidence(cs categoryStats) float64 {
	if cs.count >= 30 {
		return 0.9
	}
	if cs.count >= minCategoryHistory {
		return 0.7
	}
	return 0.5
}

func actionForLevel(level models.RiskLevel) string {
	switch level {
	case models.RiskCritical:
		return "block_and_review"
	case models.RiskHigh:
		return "manual_review"
	case models.RiskMedium:
		return "flag_for_monitoring"
	default:
		return "auto_approve"
	}
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

// quantile interpolates linearly over a sorted slice.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
