// Package forecast implements the ensemble forecaster: an autoregressive
// statistical model, a recurrent sequence model, and their combination.
package forecast

import (
	"fmt"
	"math"

	"github.com/ledgerstack/predict-engine/internal/utils"
)

// StepForecast is one future step with the model's native uncertainty.
type StepForecast struct {
	Value float64
	Sigma float64
}

// ARIMAModel is a univariate autoregressive-integrated model with an
// optional first-order moving-average term, fit on the differenced series.
type ARIMAModel struct {
	P, D, Q int

	intercept float64
	phi       []float64
	theta     float64

	diffTail  []float64 // last P values of the differenced series
	lastResid float64
	integTail []float64 // last value before each differencing level
	residStd  float64
	rmse      float64
}

// RMSE reports in-sample root mean squared error on the original scale of
// the differenced series.
func (m *ARIMAModel) RMSE() float64 { return m.rmse }

const minARIMAObservations = 8

// FitARIMA searches a small (p,d,q) grid and returns the model with the
// lowest penalised in-sample error. Fails with an insufficient-data error
// when no configuration has enough observations.
func FitARIMA(values []float64) (*ARIMAModel, error) {
	if len(values) < minARIMAObservations {
		return nil, utils.InsufficientDataError("forecast.FitARIMA",
			fmt.Sprintf("need at least %d observations, have %d", minARIMAObservations, len(values)))
	}

	var best *ARIMAModel
	bestScore := math.Inf(1)
	for _, d := range []int{0, 1} {
		for _, p := range []int{1, 2, 3} {
			for _, q := range []int{0, 1} {
				m, err := fitOne(values, p, d, q)
				if err != nil {
					continue
				}
				// Penalised in-sample error keeps the grid search from
				// always picking the largest order.
				k := float64(p + q + 1)
				n := float64(len(values) - d - p)
				score := n*math.Log(m.rmse*m.rmse+1e-12) + 2*k
				if score < bestScore {
					bestScore = score
					best = m
				}
			}
		}
	}
	if best == nil {
		return nil, utils.ModelFittingError("forecast.FitARIMA", "no (p,d,q) configuration converged", nil)
	}
	return best, nil
}

func fitOne(values []float64, p, d, q int) (*ARIMAModel, error) {
	work := append([]float64(nil), values...)
	integTail := make([]float64, 0, d)
	for i := 0; i < d; i++ {
		integTail = append(integTail, work[len(work)-1])
		work = difference(work)
	}
	n := len(work)
	if n < p+q+4 {
		return nil, fmt.Errorf("series too short for p=%d d=%d q=%d", p, d, q)
	}

	// Stage one: AR(p) by least squares with intercept.
	coeffs, resid, err := fitAR(work, p)
	if err != nil {
		return nil, err
	}

	theta := 0.0
	if q == 1 {
		// Hannan-Rissanen second stage: regress on lags plus the lagged
		// AR residual.
		coeffs, theta, resid, err = fitARMA(work, p, resid)
		if err != nil {
			return nil, err
		}
	}

	residStd := stdOf(resid)
	if math.IsNaN(residStd) || math.IsInf(residStd, 0) {
		return nil, fmt.Errorf("residual variance diverged")
	}

	m := &ARIMAModel{
		P:         p,
		D:         d,
		Q:         q,
		intercept: coeffs[0],
		phi:       coeffs[1:],
		theta:     theta,
		residStd:  residStd,
		rmse:      residStd,
		integTail: integTail,
	}
	m.diffTail = append([]float64(nil), work[n-p:]...)
	if len(resid) > 0 {
		m.lastResid = resid[len(resid)-1]
	}
	return m, nil
}

// Forecast produces h future steps with the model's residual deviation as
// the native error band.
func (m *ARIMAModel) Forecast(h int) []StepForecast {
	out := make([]StepForecast, 0, h)
	tail := append([]float64(nil), m.diffTail...)
	resid := m.lastResid

	diffForecasts := make([]float64, 0, h)
	for step := 0; step < h; step++ {
		v := m.intercept
		for i, coeff := range m.phi {
			v += coeff * tail[len(tail)-1-i]
		}
		if m.Q == 1 && step == 0 {
			v += m.theta * resid
		}
		diffForecasts = append(diffForecasts, v)
		tail = append(tail[1:], v)
	}

	// Integrate back through each differencing level.
	level := diffForecasts
	for i := len(m.integTail) - 1; i >= 0; i-- {
		base := m.integTail[i]
		integrated := make([]float64, len(level))
		running := base
		for j, dv := range level {
			running += dv
			integrated[j] = running
		}
		level = integrated
	}

	for _, v := range level {
		out = append(out, StepForecast{Value: v, Sigma: m.residStd})
	}
	return out
}

func difference(values []float64) []float64 {
	out := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		out[i-1] = values[i] - values[i-1]
	}
	return out
}

// fitAR solves y_t = c + phi_1*y_{t-1} + ... + phi_p*y_{t-p} by least
// squares. Returns [c, phi...] and the in-sample residuals.
func fitAR(values []float64, p int) ([]float64, []float64, error) {
	n := len(values) - p
	cols := p + 1
	X := make([][]float64, n)
	y := make([]float64, n)
	for t := 0; t < n; t++ {
		row := make([]float64, cols)
		row[0] = 1
		for i := 0; i < p; i++ {
			row[i+1] = values[p+t-1-i]
		}
		X[t] = row
		y[t] = values[p+t]
	}
	coeffs, err := solveLeastSquares(X, y)
	if err != nil {
		return nil, nil, err
	}
	resid := residuals(X, y, coeffs)
	return coeffs, resid, nil
}

// fitARMA re-estimates the AR coefficients with a lagged-residual column.
// Returns [c, phi...], theta, and updated residuals.
func fitARMA(values []float64, p int, arResid []float64) ([]float64, float64, []float64, error) {
	// arResid[t] corresponds to values[p+t]; the MA regressor for
	// values[p+t] is arResid[t-1], so the first usable row is t=1.
	n := len(arResid) - 1
	if n < p+3 {
		return nil, 0, nil, fmt.Errorf("not enough residuals for MA stage")
	}
	cols := p + 2
	X := make([][]float64, n)
	y := make([]float64, n)
	for t := 0; t < n; t++ {
		row := make([]float64, cols)
		row[0] = 1
		for i := 0; i < p; i++ {
			row[i+1] = values[p+t-i]
		}
		row[cols-1] = arResid[t]
		X[t] = row
		y[t] = values[p+t+1]
	}
	coeffs, err := solveLeastSquares(X, y)
	if err != nil {
		return nil, 0, nil, err
	}
	theta := coeffs[cols-1]
	resid := residuals(X, y, coeffs)
	return coeffs[:cols-1], theta, resid, nil
}

func residuals(X [][]float64, y, coeffs []float64) []float64 {
	resid := make([]float64, len(y))
	for t := range y {
		pred := 0.0
		for j, c := range coeffs {
			pred += c * X[t][j]
		}
		resid[t] = y[t] - pred
	}
	return resid
}

// solveLeastSquares solves the normal equations X'X b = X'y by Gaussian
// elimination with partial pivoting. The grids here keep the system tiny.
func solveLeastSquares(X [][]float64, y []float64) ([]float64, error) {
	if len(X) == 0 {
		return nil, fmt.Errorf("empty design matrix")
	}
	k := len(X[0])
	xtx := make([][]float64, k)
	xty := make([]float64, k)
	for i := 0; i < k; i++ {
		xtx[i] = make([]float64, k)
		for j := 0; j < k; j++ {
			var sum float64
			for t := range X {
				sum += X[t][i] * X[t][j]
			}
			xtx[i][j] = sum
		}
		var sum float64
		for t := range X {
			sum += X[t][i] * y[t]
		}
		xty[i] = sum
	}

	for col := 0; col < k; col++ {
		pivot := col
		for r := col + 1; r < k; r++ {
			if math.Abs(xtx[r][col]) > math.Abs(xtx[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(xtx[pivot][col]) < 1e-10 {
			return nil, fmt.Errorf("singular system at column %d", col)
		}
		xtx[col], xtx[pivot] = xtx[pivot], xtx[col]
		xty[col], xty[pivot] = xty[pivot], xty[col]

		for r := col + 1; r < k; r++ {
			factor := xtx[r][col] / xtx[col][col]
			for c := col; c < k; c++ {
				xtx[r][c] -= factor * xtx[col][c]
			}
			xty[r] -= factor * xty[col]
		}
	}
	coeffs := make([]float64, k)
	for r := k - 1; r >= 0; r-- {
		sum := xty[r]
		for c := r + 1; c < k; c++ {
			sum -= xtx[r][c] * coeffs[c]
		}
		coeffs[r] = sum / xtx[r][r]
	}
	return coeffs, nil
}

func stdOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	return math.Sqrt(variance / float64(len(values)))
}
