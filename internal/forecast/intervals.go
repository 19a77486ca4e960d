package forecast

import "math"

// Interval is a bounded forecast step on the float scale.
type Interval struct {
	Value float64
	Lower float64
	Upper float64
}

// ZScore maps a confidence level onto its two-sided normal quantile.
// Unlisted levels fall back to the 95% value.
func ZScore(confidence float64) float64 {
	switch confidence {
	case 0.90:
		return 1.645
	case 0.95:
		return 1.96
	case 0.99:
		return 2.576
	default:
		return 1.96
	}
}

// Intervals attaches confidence bounds to each forecast step. The half-width
// grows with the square root of the step index, so bounds widen further out;
// a monotonicity pass guarantees non-decreasing widths even when a model
// reports shrinking native bands.
func Intervals(steps []StepForecast, confidence float64) []Interval {
	z := ZScore(confidence)
	out := make([]Interval, len(steps))
	maxHalf := 0.0
	for i, s := range steps {
		sigma := s.Sigma
		if sigma <= 0 {
			sigma = math.Max(math.Abs(s.Value)*0.05, 1e-9)
		}
		half := z * sigma * math.Sqrt(float64(i+1))
		if half < maxHalf {
			half = maxHalf
		}
		maxHalf = half
		out[i] = Interval{Value: s.Value, Lower: s.Value - half, Upper: s.Value + half}
	}
	return out
}
