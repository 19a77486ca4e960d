// Package features derives the statistical inputs the forecasting pipeline
// consumes from raw ledger history.
package features

import (
	"math"

	"github.com/ledgerstack/predict-engine/internal/models"
	"github.com/ledgerstack/predict-engine/internal/utils"
)

// cycleLength returns periods per seasonal cycle for a calendar step.
func cycleLength(step string) int {
	switch step {
	case "month":
		return 12
	case "week":
		return 52
	default:
		return 7
	}
}

// Bundle carries the prepared inputs for one forecast run. Values mirrors the
// point amounts as float64 for the statistical kernels; monetary outputs are
// converted back to decimals at the boundary.
type Bundle struct {
	Points        []models.TimeSeriesPoint
	Values        []float64
	Step          string
	Mean          float64
	Trend         float64
	Volatility    float64
	MonthMeans    map[int]float64
	WeekdayMeans  map[int]float64
	Gaps          int
	Range         models.TimeRange
	LowConfidence bool
}

// Prepare builds a feature bundle from ordered history. Series shorter than
// two full seasonal cycles produce a simplified, low-confidence bundle
// instead of an error; only an empty series fails.
func Prepare(points []models.TimeSeriesPoint, step string) (*Bundle, error) {
	if len(points) == 0 {
		return nil, utils.InsufficientDataError("features.Prepare", "empty historical series")
	}
	if step == "" {
		step = "month"
	}

	values := make([]float64, len(points))
	for i, p := range points {
		values[i], _ = p.Amount.Float64()
	}

	b := &Bundle{
		Points:     points,
		Values:     values,
		Step:       step,
		Mean:       mean(values),
		Trend:      trendPerPeriod(values),
		Volatility: stdDev(values),
		Gaps:       countGaps(points, step),
		Range:      models.SeriesRange(points),
	}

	if len(points) < 2*cycleLength(step) {
		b.LowConfidence = true
	}
	if len(points) < 4 {
		// Too short for cyclical markers; keep only level and trend.
		return b, nil
	}

	b.MonthMeans = groupMeans(points, values, func(p models.TimeSeriesPoint) int {
		return utils.MonthIndex(p.Timestamp)
	})
	b.WeekdayMeans = groupMeans(points, values, func(p models.TimeSeriesPoint) int {
		return utils.WeekdayIndex(p.Timestamp)
	})
	return b, nil
}

// Adjusted returns a copy of the bundle with every value scaled and shifted.
// The receiver is left untouched so scenario runs stay side-effect free.
func (b *Bundle) Adjusted(multiplier, offset float64) *Bundle {
	adjusted := make([]float64, len(b.Values))
	for i, v := range b.Values {
		adjusted[i] = v*multiplier + offset
	}
	out := &Bundle{
		Points:        b.Points,
		Values:        adjusted,
		Step:          b.Step,
		Mean:          mean(adjusted),
		Trend:         trendPerPeriod(adjusted),
		Volatility:    stdDev(adjusted),
		MonthMeans:    b.MonthMeans,
		WeekdayMeans:  b.WeekdayMeans,
		Gaps:          b.Gaps,
		Range:         b.Range,
		LowConfidence: b.LowConfidence,
	}
	return out
}

// trendPerPeriod compares the first and last thirds of the series and
// returns the implied per-period change.
func trendPerPeriod(values []float64) float64 {
	n := len(values)
	if n < 3 {
		if n == 2 {
			return values[1] - values[0]
		}
		return 0
	}
	third := n / 3
	var early, late float64
	for i := 0; i < third; i++ {
		early += values[i]
	}
	for i := n - third; i < n; i++ {
		late += values[i]
	}
	earlyAvg := early / float64(third)
	lateAvg := late / float64(third)
	return (lateAvg - earlyAvg) / float64(n-third)
}

func countGaps(points []models.TimeSeriesPoint, step string) int {
	gaps := 0
	for i := 1; i < len(points); i++ {
		expected := utils.AddPeriods(points[i-1].Timestamp, step, 1)
		period := expected.Sub(points[i-1].Timestamp)
		// Allow half a period of slack before calling it a gap.
		if points[i].Timestamp.Sub(expected) > period/2 {
			gaps++
		}
	}
	return gaps
}

func groupMeans(points []models.TimeSeriesPoint, values []float64, keyFn func(models.TimeSeriesPoint) int) map[int]float64 {
	sums := make(map[int]float64)
	counts := make(map[int]int)
	for i, p := range points {
		k := keyFn(p)
		sums[k] += values[i]
		counts[k]++
	}
	means := make(map[int]float64, len(sums))
	for k, sum := range sums {
		means[k] = sum / float64(counts[k])
	}
	return means
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	var variance float64
	for _, v := range values {
		variance += (v - m) * (v - m)
	}
	variance /= float64(len(values))
	return math.Sqrt(variance)
}

// Mean returns the arithmetic mean of values.
func Mean(values []float64) float64 { return mean(values) }

// StdDev returns the population standard deviation of values.
func StdDev(values []float64) float64 { return stdDev(values) }
