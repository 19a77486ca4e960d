// Package seasonal extracts recurring period effects (month-of-year,
// day-of-week, fixed holidays) from ledger history.
package seasonal

import (
	"time"

	"github.com/ledgerstack/predict-engine/internal/features"
	"github.com/ledgerstack/predict-engine/internal/models"
	"github.com/ledgerstack/predict-engine/internal/utils"
)

// Mode selects how factors combine with the base level.
type Mode string

const (
	// Multiplicative factors scale the base level; they average to 1.
	Multiplicative Mode = "multiplicative"
	// Additive factors shift the base level; they average to 0.
	Additive Mode = "additive"
)

// Holiday is a fixed calendar date treated as its own seasonal group.
type Holiday struct {
	Month time.Month
	Day   int
	Name  string
}

// DefaultHolidays covers the fixed-date US federal holidays the upstream
// ledgers observe. Floating holidays are left to the weekday factors.
func DefaultHolidays() []Holiday {
	return []Holiday{
		{Month: time.January, Day: 1, Name: "new_years_day"},
		{Month: time.July, Day: 4, Name: "independence_day"},
		{Month: time.November, Day: 11, Name: "veterans_day"},
		{Month: time.December, Day: 25, Name: "christmas_day"},
	}
}

// Decomposer computes seasonal factors from raw history.
type Decomposer struct {
	minSamples int
	holidays   []Holiday
}

// Option adjusts Decomposer construction.
type Option func(*Decomposer)

// WithMinSamples overrides the minimum group size below which a period keeps
// the neutral factor.
func WithMinSamples(n int) Option {
	return func(d *Decomposer) {
		if n > 0 {
			d.minSamples = n
		}
	}
}

// WithHolidays replaces the holiday calendar.
func WithHolidays(holidays []Holiday) Option {
	return func(d *Decomposer) { d.holidays = holidays }
}

// NewDecomposer creates a decomposer with a three-sample minimum per group
// and the default holiday calendar.
func NewDecomposer(opts ...Option) *Decomposer {
	d := &Decomposer{minSamples: 3, holidays: DefaultHolidays()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ModeFor picks the combination mode for a series: multiplicative when the
// level is strictly positive, additive otherwise (series crossing zero have
// no meaningful ratios).
func ModeFor(values []float64) Mode {
	if features.Mean(values) > 0 {
		return Multiplicative
	}
	return Additive
}

// Decompose derives monthly, weekly, and holiday factors. Groups with fewer
// than minSamples observations keep the neutral factor.
func (d *Decomposer) Decompose(points []models.TimeSeriesPoint, mode Mode) []models.SeasonalFactor {
	if len(points) == 0 {
		return nil
	}

	values := make([]float64, len(points))
	for i, p := range points {
		values[i], _ = p.Amount.Float64()
	}
	overall := features.Mean(values)
	if mode == "" {
		mode = ModeFor(values)
	}

	factors := make([]models.SeasonalFactor, 0, 12+7+len(d.holidays))
	factors = append(factors, d.groupFactors(points, values, overall, mode, models.PeriodMonthly)...)
	factors = append(factors, d.groupFactors(points, values, overall, mode, models.PeriodWeekly)...)
	factors = append(factors, d.holidayFactors(points, values, overall, mode)...)
	return factors
}

func (d *Decomposer) groupFactors(points []models.TimeSeriesPoint, values []float64, overall float64, mode Mode, kind models.PeriodKind) []models.SeasonalFactor {
	var indexes []int
	keyFn := utils.MonthIndex
	if kind == models.PeriodWeekly {
		keyFn = utils.WeekdayIndex
		indexes = []int{0, 1, 2, 3, 4, 5, 6}
	} else {
		indexes = []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	}

	sums := make(map[int]float64)
	counts := make(map[int]int)
	for i, p := range points {
		k := keyFn(p.Timestamp)
		sums[k] += values[i]
		counts[k]++
	}

	raw := make(map[int]float64, len(indexes))
	estimated := make([]int, 0, len(indexes))
	for _, idx := range indexes {
		if counts[idx] < d.minSamples {
			raw[idx] = neutral(mode)
			continue
		}
		raw[idx] = factorOf(sums[idx]/float64(counts[idx]), overall, mode)
		estimated = append(estimated, idx)
	}
	normalize(raw, estimated, mode)

	out := make([]models.SeasonalFactor, 0, len(indexes))
	for _, idx := range indexes {
		out = append(out, models.SeasonalFactor{Kind: kind, Index: idx, Factor: raw[idx]})
	}
	return out
}

func (d *Decomposer) holidayFactors(points []models.TimeSeriesPoint, values []float64, overall float64, mode Mode) []models.SeasonalFactor {
	out := make([]models.SeasonalFactor, 0, len(d.holidays))
	for i, h := range d.holidays {
		var sum float64
		var count int
		for j, p := range points {
			if p.Timestamp.Month() == h.Month && p.Timestamp.Day() == h.Day {
				sum += values[j]
				count++
			}
		}
		factor := neutral(mode)
		if count >= 1 {
			// Holidays recur at most once a year; a single observation is
			// accepted where calendar groups require minSamples.
			factor = factorOf(sum/float64(count), overall, mode)
		}
		out = append(out, models.SeasonalFactor{Kind: models.PeriodHoliday, Index: i, Factor: factor})
	}
	return out
}

func factorOf(groupMean, overall float64, mode Mode) float64 {
	if mode == Additive {
		return groupMean - overall
	}
	if overall == 0 {
		return 1
	}
	return groupMean / overall
}

func neutral(mode Mode) float64 {
	if mode == Additive {
		return 0
	}
	return 1
}

// normalize rescales the estimated factors so they average to exactly the
// neutral value; groups that kept the neutral factor are left alone.
func normalize(raw map[int]float64, estimated []int, mode Mode) {
	if len(estimated) == 0 {
		return
	}
	var sum float64
	for _, idx := range estimated {
		sum += raw[idx]
	}
	avg := sum / float64(len(estimated))
	if mode == Additive {
		for _, idx := range estimated {
			raw[idx] -= avg
		}
		return
	}
	if avg == 0 {
		return
	}
	for _, idx := range estimated {
		raw[idx] /= avg
	}
}

// FactorFor combines the factors relevant to one forecast date. Monthly
// factors always apply; weekly and holiday factors only matter for daily
// steps.
func FactorFor(factors []models.SeasonalFactor, date time.Time, step string, mode Mode, holidays []Holiday) float64 {
	combined := neutral(mode)
	apply := func(f float64) {
		if mode == Additive {
			combined += f
		} else {
			combined *= f
		}
	}

	for _, f := range factors {
		switch f.Kind {
		case models.PeriodMonthly:
			if f.Index == utils.MonthIndex(date) {
				apply(f.Factor)
			}
		case models.PeriodWeekly:
			if step == "day" && f.Index == utils.WeekdayIndex(date) {
				apply(f.Factor)
			}
		case models.PeriodHoliday:
			if step != "day" {
				continue
			}
			if f.Index < len(holidays) {
				h := holidays[f.Index]
				if date.Month() == h.Month && date.Day() == h.Day {
					apply(f.Factor)
				}
			}
		}
	}
	return combined
}
