package forecast

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ledgerstack/predict-engine/internal/metrics"
	"github.com/ledgerstack/predict-engine/internal/utils"
)

// Weighting selects how the component forecasts combine.
type Weighting string

const (
	// WeightEqual averages the component forecasts.
	WeightEqual Weighting = "equal"
	// WeightError weights each component by its inverse in-sample /
	// validation error.
	WeightError Weighting = "error"
)

// Config tunes the ensemble forecaster.
type Config struct {
	Sequence  SequenceConfig
	Weighting Weighting
}

// Result is a combined forecast plus provenance for the result metadata.
type Result struct {
	Steps    []StepForecast
	Models   []string
	Degraded bool
}

// Forecaster combines the statistical and sequence models.
type Forecaster struct {
	cfg    Config
	logger *slog.Logger
}

// NewForecaster builds an ensemble forecaster.
func NewForecaster(cfg Config, logger *slog.Logger) *Forecaster {
	if cfg.Weighting == "" {
		cfg.Weighting = WeightEqual
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Forecaster{cfg: cfg, logger: logger}
}

// Forecast fits both models concurrently and combines their h-step
// forecasts. When one model cannot train the surviving model is used alone;
// when neither can, a drift forecast over the observed level and trend is
// returned with the degraded flag set. Only an empty series is an error.
func (f *Forecaster) Forecast(ctx context.Context, values []float64, h int) (*Result, error) {
	if len(values) == 0 {
		return nil, utils.InsufficientDataError("forecast.Forecast", "empty series")
	}
	if h <= 0 {
		return nil, utils.ValidationError("forecast.Forecast", "horizon must be positive")
	}

	var (
		wg       sync.WaitGroup
		arModel  *ARIMAModel
		arErr    error
		seqModel *SequenceModel
		seqErr   error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		arModel, arErr = FitARIMA(values)
	}()
	go func() {
		defer wg.Done()
		seqModel, seqErr = TrainSequenceModel(ctx, values, f.cfg.Sequence)
	}()
	wg.Wait()

	metrics.ObserveModelFit("arima", arErr)
	metrics.ObserveModelFit("sequence", seqErr)

	if err := ctx.Err(); err != nil {
		return nil, utils.ModelFittingError("forecast.Forecast", "forecast cancelled", err)
	}

	switch {
	case arErr == nil && seqErr == nil:
		arSteps := arModel.Forecast(h)
		seqSteps := seqModel.Forecast(values, h)
		return &Result{
			Steps:  f.combine(arSteps, seqSteps, arModel.RMSE(), seqModel.ValidationRMSE()),
			Models: []string{"arima", "sequence"},
		}, nil
	case arErr == nil:
		f.logger.Info("sequence model unavailable, using statistical model alone", slog.Any("reason", seqErr))
		return &Result{Steps: arModel.Forecast(h), Models: []string{"arima"}}, nil
	case seqErr == nil:
		f.logger.Info("statistical model unavailable, using sequence model alone", slog.Any("reason", arErr))
		return &Result{Steps: seqModel.Forecast(values, h), Models: []string{"sequence"}}, nil
	default:
		f.logger.Warn("both models unavailable, falling back to drift forecast",
			slog.Any("arima", arErr), slog.Any("sequence", seqErr))
		return &Result{Steps: driftForecast(values, h), Models: []string{"drift"}, Degraded: true}, nil
	}
}

func (f *Forecaster) combine(a, b []StepForecast, aErr, bErr float64) []StepForecast {
	wa, wb := 0.5, 0.5
	if f.cfg.Weighting == WeightError && aErr > 0 && bErr > 0 {
		ia, ib := 1/aErr, 1/bErr
		wa = ia / (ia + ib)
		wb = ib / (ia + ib)
	}

	out := make([]StepForecast, len(a))
	for i := range a {
		out[i] = StepForecast{
			Value: wa*a[i].Value + wb*b[i].Value,
			Sigma: wa*a[i].Sigma + wb*b[i].Sigma,
		}
	}
	return out
}

// driftForecast extrapolates the series mean plus its per-period trend, the
// last resort for series too short for either model.
func driftForecast(values []float64, h int) []StepForecast {
	last := values[len(values)-1]
	trend := 0.0
	if len(values) >= 2 {
		trend = (values[len(values)-1] - values[0]) / float64(len(values)-1)
	}
	sigma := stdOf(values)
	if sigma == 0 {
		// Flat or single-point history still needs a non-degenerate band.
		if last != 0 {
			sigma = 0.1 * abs(last)
		} else {
			sigma = 1
		}
	}

	out := make([]StepForecast, h)
	for i := 0; i < h; i++ {
		out[i] = StepForecast{Value: last + trend*float64(i+1), Sigma: sigma}
	}
	return out
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
