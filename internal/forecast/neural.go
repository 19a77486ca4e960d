package forecast

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/ledgerstack/predict-engine/internal/utils"
)

// SequenceConfig tunes the recurrent sequence model.
type SequenceConfig struct {
	Lookback     int
	Hidden       int
	MaxEpochs    int
	LearningRate float64
	Patience     int
	Seed         int64
}

func (c SequenceConfig) withDefaults() SequenceConfig {
	if c.Lookback <= 0 {
		c.Lookback = 30
	}
	if c.Hidden <= 0 {
		c.Hidden = 8
	}
	if c.MaxEpochs <= 0 {
		c.MaxEpochs = 200
	}
	if c.LearningRate <= 0 {
		c.LearningRate = 0.01
	}
	if c.Patience <= 0 {
		c.Patience = 10
	}
	if c.Seed == 0 {
		c.Seed = 1
	}
	return c
}

// SequenceModel is a single-hidden-layer Elman recurrent network trained on
// sliding windows to predict the next value of a series. Inputs are
// z-normalised; the network operates on scalars fed one step at a time.
type SequenceModel struct {
	cfg SequenceConfig

	wx []float64   // input -> hidden
	wh [][]float64 // hidden -> hidden
	bh []float64
	wo []float64 // hidden -> output
	bo float64

	normMean float64
	normStd  float64
	valRMSE  float64
	lookback int
}

// ValidationRMSE reports held-out error on the original scale.
func (m *SequenceModel) ValidationRMSE() float64 { return m.valRMSE }

const minSequenceWindows = 8

// TrainSequenceModel fits the network with SGD and early stopping on a 20%
// validation tail. The context is checked every epoch so caller deadlines
// cancel long fits. Weight initialisation is driven by cfg.Seed, keeping
// training reproducible.
func TrainSequenceModel(ctx context.Context, values []float64, cfg SequenceConfig) (*SequenceModel, error) {
	cfg = cfg.withDefaults()

	lookback := cfg.Lookback
	if len(values)-lookback < minSequenceWindows {
		// Shrink the window for shorter series before giving up.
		lookback = len(values) / 3
		if lookback < 4 {
			lookback = 4
		}
	}
	windows := len(values) - lookback
	if windows < minSequenceWindows {
		return nil, utils.InsufficientDataError("forecast.TrainSequenceModel",
			fmt.Sprintf("need %d training windows, have %d", minSequenceWindows, windows))
	}

	m := &SequenceModel{cfg: cfg, lookback: lookback}
	m.normMean, m.normStd = meanStd(values)
	if m.normStd == 0 {
		m.normStd = 1
	}
	normalised := make([]float64, len(values))
	for i, v := range values {
		normalised[i] = (v - m.normMean) / m.normStd
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	m.initWeights(rng)

	valCount := windows / 5
	if valCount < 1 {
		valCount = 1
	}
	trainCount := windows - valCount

	bestVal := math.Inf(1)
	bestWeights := m.snapshot()
	sinceBest := 0

	for epoch := 0; epoch < cfg.MaxEpochs; epoch++ {
		select {
		case <-ctx.Done():
			return nil, utils.ModelFittingError("forecast.TrainSequenceModel", "training cancelled", ctx.Err())
		default:
		}

		for w := 0; w < trainCount; w++ {
			window := normalised[w : w+lookback]
			target := normalised[w+lookback]
			m.trainStep(window, target, cfg.LearningRate)
		}

		valMSE := 0.0
		for w := trainCount; w < windows; w++ {
			window := normalised[w : w+lookback]
			target := normalised[w+lookback]
			diff := m.forward(window) - target
			valMSE += diff * diff
		}
		valMSE /= float64(valCount)
		if math.IsNaN(valMSE) || math.IsInf(valMSE, 0) {
			return nil, utils.ModelFittingError("forecast.TrainSequenceModel", "training diverged", nil)
		}

		if valMSE < bestVal-1e-9 {
			bestVal = valMSE
			bestWeights = m.snapshot()
			sinceBest = 0
		} else {
			sinceBest++
			if sinceBest >= cfg.Patience {
				break
			}
		}
	}

	m.restore(bestWeights)
	m.valRMSE = math.Sqrt(bestVal) * m.normStd
	return m, nil
}

// PredictNext returns the model's one-step-ahead prediction for a window of
// raw (unnormalised) values.
func (m *SequenceModel) PredictNext(window []float64) float64 {
	if len(window) > m.lookback {
		window = window[len(window)-m.lookback:]
	}
	normalised := make([]float64, len(window))
	for i, v := range window {
		normalised[i] = (v - m.normMean) / m.normStd
	}
	return m.forward(normalised)*m.normStd + m.normMean
}

// Forecast rolls the model forward h steps, feeding each prediction back as
// input for the next.
func (m *SequenceModel) Forecast(values []float64, h int) []StepForecast {
	window := append([]float64(nil), values...)
	out := make([]StepForecast, 0, h)
	for step := 0; step < h; step++ {
		next := m.PredictNext(window)
		window = append(window, next)
		out = append(out, StepForecast{Value: next, Sigma: m.valRMSE})
	}
	return out
}

func (m *SequenceModel) initWeights(rng *rand.Rand) {
	h := m.cfg.Hidden
	scale := 1.0 / math.Sqrt(float64(h))
	m.wx = make([]float64, h)
	m.bh = make([]float64, h)
	m.wo = make([]float64, h)
	m.wh = make([][]float64, h)
	for i := 0; i < h; i++ {
		m.wx[i] = rng.NormFloat64() * scale
		m.wo[i] = rng.NormFloat64() * scale
		m.wh[i] = make([]float64, h)
		for j := 0; j < h; j++ {
			m.wh[i][j] = rng.NormFloat64() * scale
		}
	}
}

// forward runs the window through the recurrence and returns the output on
// the normalised scale.
func (m *SequenceModel) forward(window []float64) float64 {
	h := m.cfg.Hidden
	state := make([]float64, h)
	for _, x := range window {
		state = m.step(x, state)
	}
	out := m.bo
	for i := 0; i < h; i++ {
		out += m.wo[i] * state[i]
	}
	return out
}

func (m *SequenceModel) step(x float64, prev []float64) []float64 {
	h := m.cfg.Hidden
	next := make([]float64, h)
	for i := 0; i < h; i++ {
		z := m.wx[i]*x + m.bh[i]
		for j := 0; j < h; j++ {
			z += m.wh[i][j] * prev[j]
		}
		next[i] = math.Tanh(z)
	}
	return next
}

// trainStep performs one SGD update via backpropagation through time.
func (m *SequenceModel) trainStep(window []float64, target, lr float64) {
	h := m.cfg.Hidden
	steps := len(window)

	// Forward pass, keeping every hidden state.
	states := make([][]float64, steps+1)
	states[0] = make([]float64, h)
	for t, x := range window {
		states[t+1] = m.step(x, states[t])
	}
	out := m.bo
	last := states[steps]
	for i := 0; i < h; i++ {
		out += m.wo[i] * last[i]
	}

	dOut := out - target

	gradWx := make([]float64, h)
	gradBh := make([]float64, h)
	gradWh := make([][]float64, h)
	for i := range gradWh {
		gradWh[i] = make([]float64, h)
	}

	dState := make([]float64, h)
	for i := 0; i < h; i++ {
		dState[i] = dOut * m.wo[i]
	}

	for t := steps; t >= 1; t-- {
		cur := states[t]
		prev := states[t-1]
		dz := make([]float64, h)
		for i := 0; i < h; i++ {
			dz[i] = dState[i] * (1 - cur[i]*cur[i])
		}
		x := window[t-1]
		for i := 0; i < h; i++ {
			gradWx[i] += dz[i] * x
			gradBh[i] += dz[i]
			for j := 0; j < h; j++ {
				gradWh[i][j] += dz[i] * prev[j]
			}
		}
		next := make([]float64, h)
		for j := 0; j < h; j++ {
			var sum float64
			for i := 0; i < h; i++ {
				sum += m.wh[i][j] * dz[i]
			}
			next[j] = sum
		}
		dState = next
	}

	for i := 0; i < h; i++ {
		m.wo[i] -= lr * dOut * last[i]
		m.wx[i] -= lr * clipGrad(gradWx[i])
		m.bh[i] -= lr * clipGrad(gradBh[i])
		for j := 0; j < h; j++ {
			m.wh[i][j] -= lr * clipGrad(gradWh[i][j])
		}
	}
	m.bo -= lr * dOut
}

// clipGrad bounds a gradient component to keep BPTT stable on long windows.
func clipGrad(g float64) float64 {
	const limit = 5.0
	if g > limit {
		return limit
	}
	if g < -limit {
		return -limit
	}
	return g
}

type weights struct {
	wx, bh, wo []float64
	wh         [][]float64
	bo         float64
}

func (m *SequenceModel) snapshot() weights {
	w := weights{
		wx: append([]float64(nil), m.wx...),
		bh: append([]float64(nil), m.bh...),
		wo: append([]float64(nil), m.wo...),
		bo: m.bo,
		wh: make([][]float64, len(m.wh)),
	}
	for i := range m.wh {
		w.wh[i] = append([]float64(nil), m.wh[i]...)
	}
	return w
}

func (m *SequenceModel) restore(w weights) {
	m.wx = w.wx
	m.bh = w.bh
	m.wo = w.wo
	m.bo = w.bo
	m.wh = w.wh
}

func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
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
	return mean, math.Sqrt(variance / float64(len(values)))
}
