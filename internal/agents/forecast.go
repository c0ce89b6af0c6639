package agents

import (
	"context"
	"fmt"
	"time"

	"disaster-analysis-pipeline/internal/models"
	"disaster-analysis-pipeline/internal/pkg/logger"
)

// minHistoryPoints is the fewest yearly observations a least-squares fit is
// allowed to extrapolate from.
const minHistoryPoints = 5

// forecastHorizon is how many years past the last observation are predicted.
const forecastHorizon = 5

// ForecastAgent fits a linear trend to the yearly totals of the metric the
// prompt asks about and extends the series five years forward.
type ForecastAgent struct {
	warehouse Warehouse
	logger    *logger.Logger
}

func NewForecastAgent(warehouse Warehouse, log *logger.Logger) *ForecastAgent {
	return &ForecastAgent{
		warehouse: warehouse,
		logger:    log,
	}
}

func (a *ForecastAgent) ID() string {
	return models.AgentForecast
}

func (a *ForecastAgent) Invoke(ctx context.Context, prompt *models.Prompt) (*models.AgentResult, error) {
	startTime := time.Now()
	metric := prompt.Filter.Metric

	history, err := a.warehouse.YearlyTotals(ctx, metric, prompt.Filter)
	if err != nil {
		a.logger.LogService("warehouse", "yearly_totals", time.Since(startTime), logger.Fields{
			"metric": metric,
		}, err)
		return nil, models.WrapExternalError("warehouse", err)
	}

	if len(history) < minHistoryPoints {
		return nil, models.NewValidationError("INSUFFICIENT_HISTORY",
			fmt.Sprintf("need at least %d yearly observations for %s, have %d",
				minHistoryPoints, metric, len(history)))
	}

	slope, intercept := linearFit(history)

	lastYear := history[len(history)-1].Year
	points := append([]models.SeriesPoint(nil), history...)
	for year := lastYear + 1; year <= lastYear+forecastHorizon; year++ {
		points = append(points, models.SeriesPoint{
			Year:  year,
			Value: slope*float64(year) + intercept,
		})
	}

	a.logger.LogService("warehouse", "yearly_totals", time.Since(startTime), logger.Fields{
		"metric":        metric,
		"history_years": len(history),
		"forecast_from": lastYear + 1,
	}, nil)

	return models.NewNumericResult(a.ID(), &models.NumericResult{
		Metric:       string(metric),
		Unit:         metricUnit(metric),
		Source:       "warehouse",
		Points:       points,
		ForecastFrom: lastYear + 1,
	}), nil
}

// linearFit computes the ordinary least-squares slope and intercept of value
// over year. Callers guarantee at least two points.
func linearFit(points []models.SeriesPoint) (slope, intercept float64) {
	n := float64(len(points))
	var sumX, sumY, sumXY, sumXX float64
	for _, p := range points {
		x := float64(p.Year)
		sumX += x
		sumY += p.Value
		sumXY += x * p.Value
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, sumY / n
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n
	return slope, intercept
}

func metricUnit(metric models.Metric) string {
	switch metric {
	case models.MetricTotalDamage, models.MetricInsuredDamage, models.MetricReconstruction:
		return "USD"
	default:
		return "people"
	}
}
