package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels completed predictions.
	OutcomeSuccess = "success"
	// OutcomeError labels failed predictions (validation, data, or model issues).
	OutcomeError = "error"
)

var (
	predictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "predict_engine",
			Name:      "predictions_total",
			Help:      "Total number of prediction requests handled, partitioned by type and outcome.",
		},
		[]string{"type", "outcome"},
	)

	predictionDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "predict_engine",
			Name:      "prediction_seconds",
			Help:      "Prediction latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 8, 13},
		},
		[]string{"type"},
	)

	seasonalCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "predict_engine",
			Name:      "seasonal_cache_lookups_total",
			Help:      "Seasonal factor cache lookups, partitioned by result.",
		},
		[]string{"result"},
	)

	modelFitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "predict_engine",
			Name:      "model_fits_total",
			Help:      "Individual model fits, partitioned by model and outcome.",
		},
		[]string{"model", "outcome"},
	)

	anomaliesFlagged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "predict_engine",
			Name:      "anomalies_flagged_total",
			Help:      "Transactions flagged above the anomaly reporting threshold.",
		},
	)
)

// Register attaches predict-engine collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		predictionsTotal,
		predictionDurationSeconds,
		seasonalCacheLookups,
		modelFitsTotal,
		anomaliesFlagged,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObservePrediction records a prediction duration and outcome label.
func ObservePrediction(predictionType string, duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	predictionsTotal.WithLabelValues(predictionType, label).Inc()
	if duration < 0 {
		duration = 0
	}
	predictionDurationSeconds.WithLabelValues(predictionType).Observe(duration.Seconds())
}

// ObserveCacheLookup records one seasonal cache lookup result ("hit" or "miss").
func ObserveCacheLookup(result string) {
	seasonalCacheLookups.WithLabelValues(result).Inc()
}

// ObserveModelFit records the outcome of one model fit ("arima" or "sequence").
func ObserveModelFit(model string, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	modelFitsTotal.WithLabelValues(model, outcome).Inc()
}

// ObserveAnomalies adds flagged transactions to the running counter.
func ObserveAnomalies(count int) {
	if count > 0 {
		anomaliesFlagged.Add(float64(count))
	}
}
