package engine

import (
	"context"
	"fmt"

	"github.com/ledgerstack/predict-engine/internal/features"
	"github.com/ledgerstack/predict-engine/internal/models"
	"github.com/ledgerstack/predict-engine/internal/seasonal"
	"github.com/ledgerstack/predict-engine/internal/utils"
)

// runScenario reruns the forecast stage over an adjusted copy of the feature
// bundle. The base bundle and base result are never touched; each scenario
// run is independent.
func (p *Pipeline) runScenario(ctx context.Context, bundle *features.Bundle, factors []models.SeasonalFactor, mode seasonal.Mode, req models.PredictionRequest, adj models.ScenarioAdjustment) (*models.Scenario, error) {
	if adj.Name == "" {
		return nil, utils.ValidationError("engine.runScenario", "scenario name is required")
	}
	multiplier := adj.Multiplier
	if multiplier == 0 {
		multiplier = 1
	}

	adjusted := bundle.Adjusted(multiplier, adj.Offset)
	result, err := p.forecastSeries(ctx, adjusted, factors, mode, req)
	if err != nil {
		return nil, err
	}

	return &models.Scenario{
		Name: adj.Name,
		Assumptions: map[string]string{
			"multiplier": fmt.Sprintf("%.4f", multiplier),
			"offset":     fmt.Sprintf("%.2f", adj.Offset),
		},
		Predictions: result.points,
	}, nil
}
