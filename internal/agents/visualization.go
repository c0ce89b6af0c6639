package agents

import (
	"context"
	"fmt"
	"time"

	"disaster-analysis-pipeline/internal/models"
	"disaster-analysis-pipeline/internal/pkg/logger"
)

// VisualizationAgent charts the historical yearly series for the prompt's
// metric through the rendering collaborator and returns only the artifact id.
type VisualizationAgent struct {
	warehouse Warehouse
	renderer  Renderer
	logger    *logger.Logger
}

func NewVisualizationAgent(warehouse Warehouse, renderer Renderer, log *logger.Logger) *VisualizationAgent {
	return &VisualizationAgent{
		warehouse: warehouse,
		renderer:  renderer,
		logger:    log,
	}
}

func (a *VisualizationAgent) ID() string {
	return models.AgentVisualization
}

func (a *VisualizationAgent) Invoke(ctx context.Context, prompt *models.Prompt) (*models.AgentResult, error) {
	startTime := time.Now()
	metric := prompt.Filter.Metric

	history, err := a.warehouse.YearlyTotals(ctx, metric, prompt.Filter)
	if err != nil {
		a.logger.LogService("warehouse", "yearly_totals", time.Since(startTime), logger.Fields{
			"metric": metric,
		}, err)
		return nil, models.WrapExternalError("warehouse", err)
	}

	if len(history) == 0 {
		return nil, models.NewValidationError("NO_MATCHING_RECORDS",
			"no warehouse records to chart for the requested filter")
	}

	series := &models.NumericResult{
		Metric: string(metric),
		Unit:   metricUnit(metric),
		Source: "warehouse",
		Points: history,
	}

	artifactID, err := a.renderer.Render(ctx, series)
	if err != nil {
		a.logger.LogService("renderer", "render", time.Since(startTime), logger.Fields{
			"metric": metric,
			"points": len(history),
		}, err)
		return nil, models.WrapExternalError("renderer", err)
	}

	a.logger.LogService("renderer", "render", time.Since(startTime), logger.Fields{
		"metric":      metric,
		"points":      len(history),
		"artifact_id": artifactID,
	}, nil)

	return models.NewChartResult(a.ID(), &models.ChartRef{
		ArtifactID: artifactID,
		Caption:    fmt.Sprintf("Historical %s, %d-%d", metric.Label(), history[0].Year, history[len(history)-1].Year),
	}), nil
}
