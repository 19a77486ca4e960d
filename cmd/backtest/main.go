// Command backtest measures forecast accuracy over a sqlite ledger with a
// rolling-origin evaluation: for each fold the models train on a prefix of
// the series and the forecast is compared against the held-out actuals.
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/schollz/progressbar/v3"

	"github.com/ledgerstack/predict-engine/internal/features"
	"github.com/ledgerstack/predict-engine/internal/forecast"
	"github.com/ledgerstack/predict-engine/internal/models"
	"github.com/ledgerstack/predict-engine/internal/repo"
	"github.com/ledgerstack/predict-engine/internal/utils"
)

func main() {
	var (
		dbPath   string
		xlsxPath string
		orgID    string
		clientID string
		category string
		horizon  int
		folds    int
		seed     int64
	)
	flag.StringVar(&dbPath, "db", "data/ledger.db", "Path to the sqlite ledger")
	flag.StringVar(&xlsxPath, "import", "", "Optional XLSX export to load into the ledger first")
	flag.StringVar(&orgID, "org", "", "Organization to evaluate (required)")
	flag.StringVar(&clientID, "client", "", "Optional client filter")
	flag.StringVar(&category, "category", "", "Optional category filter")
	flag.IntVar(&horizon, "horizon", 6, "Forecast horizon per fold")
	flag.IntVar(&folds, "folds", 5, "Number of rolling-origin folds")
	flag.Int64Var(&seed, "seed", 1, "Sequence model seed")
	flag.Parse()

	if orgID == "" {
		fmt.Fprintln(os.Stderr, "backtest: -org is required")
		os.Exit(2)
	}

	logger := utils.NewLogger("warn", false)
	ctx := context.Background()

	store, err := repo.OpenLedgerStore(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "backtest: open ledger: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if xlsxPath != "" {
		txns, skipped, err := repo.ImportLedgerXLSX(xlsxPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "backtest: import: %v\n", err)
			os.Exit(1)
		}
		if err := store.Insert(ctx, orgID, clientID, txns); err != nil {
			fmt.Fprintf(os.Stderr, "backtest: insert: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("imported %d transactions (%d rows skipped)\n", len(txns), len(skipped))
	}

	points, err := store.FetchSeries(ctx, orgID, clientID, category)
	if err != nil {
		fmt.Fprintf(os.Stderr, "backtest: fetch series: %v\n", err)
		os.Exit(1)
	}
	minLen := horizon*(folds+1) + 8
	if len(points) < minLen {
		fmt.Fprintf(os.Stderr, "backtest: need at least %d observations, have %d\n", minLen, len(points))
		os.Exit(1)
	}

	forecaster := forecast.NewForecaster(forecast.Config{
		Sequence: forecast.SequenceConfig{Seed: seed},
	}, logger)

	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Amount.InexactFloat64()
	}

	bar := progressbar.Default(int64(folds), "backtesting")

	var (
		sumAbsPct float64
		sumSq     float64
		samples   int
		degraded  int
	)
	for fold := 0; fold < folds; fold++ {
		cut := len(values) - horizon*(folds-fold)
		train, actual := values[:cut], values[cut:cut+horizon]

		result, err := forecaster.Forecast(ctx, train, horizon)
		if err != nil {
			fmt.Fprintf(os.Stderr, "\nbacktest: fold %d: %v\n", fold+1, err)
			os.Exit(1)
		}
		if result.Degraded {
			degraded++
		}
		for i, step := range result.Steps {
			diff := step.Value - actual[i]
			sumSq += diff * diff
			if actual[i] != 0 {
				sumAbsPct += math.Abs(diff / actual[i])
			}
			samples++
		}
		_ = bar.Add(1)
	}

	rmse := math.Sqrt(sumSq / float64(samples))
	mape := sumAbsPct / float64(samples) * 100

	fmt.Printf("\norganization %s  series %s\n", orgID, describeSeries(points))
	fmt.Printf("folds: %d  horizon: %d  samples: %d  degraded folds: %d\n", folds, horizon, samples, degraded)
	fmt.Printf("RMSE:  %.2f\n", rmse)
	fmt.Printf("MAPE:  %.2f%%\n", mape)
}

func describeSeries(points []models.TimeSeriesPoint) string {
	r := models.SeriesRange(points)
	m := features.Mean(floatValues(points))
	return fmt.Sprintf("%d points, %s to %s, mean %.2f",
		len(points), r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"), m)
}

func floatValues(points []models.TimeSeriesPoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Amount.InexactFloat64()
	}
	return out
}
