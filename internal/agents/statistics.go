package agents

import (
	"context"
	"time"

	"disaster-analysis-pipeline/internal/models"
	"disaster-analysis-pipeline/internal/pkg/logger"
)

// StatisticsAgent summarizes the warehouse records matching the prompt's
// filter: totals, per-event averages and the covered year range.
type StatisticsAgent struct {
	warehouse Warehouse
	logger    *logger.Logger
}

func NewStatisticsAgent(warehouse Warehouse, log *logger.Logger) *StatisticsAgent {
	return &StatisticsAgent{
		warehouse: warehouse,
		logger:    log,
	}
}

func (a *StatisticsAgent) ID() string {
	return models.AgentStatistics
}

func (a *StatisticsAgent) Invoke(ctx context.Context, prompt *models.Prompt) (*models.AgentResult, error) {
	startTime := time.Now()

	stats, err := a.warehouse.SummaryStats(ctx, prompt.Filter)
	if err != nil {
		a.logger.LogService("warehouse", "summary_stats", time.Since(startTime), nil, err)
		return nil, models.WrapExternalError("warehouse", err)
	}

	if stats.TotalEvents == 0 {
		return nil, models.NewValidationError("NO_MATCHING_RECORDS",
			"no warehouse records match the requested filter")
	}

	events := float64(stats.TotalEvents)
	values := []models.NamedValue{
		{Name: "total_events", Value: events},
		{Name: "total_deaths", Value: stats.TotalDeaths},
		{Name: "total_affected", Value: stats.TotalAffected},
		{Name: "total_damage_usd", Value: stats.TotalDamageUSD},
		{Name: "avg_deaths_per_event", Value: stats.TotalDeaths / events},
		{Name: "avg_affected_per_event", Value: stats.TotalAffected / events},
		{Name: "avg_damage_per_event_usd", Value: stats.TotalDamageUSD / events},
		{Name: "year_range", Value: float64(stats.MaxYear - stats.MinYear)},
	}

	a.logger.LogService("warehouse", "summary_stats", time.Since(startTime), logger.Fields{
		"total_events": stats.TotalEvents,
		"year_min":     stats.MinYear,
		"year_max":     stats.MaxYear,
	}, nil)

	return models.NewNumericResult(a.ID(), &models.NumericResult{
		Metric:     "summary_statistics",
		Source:     "warehouse",
		Values:     values,
		Highlights: stats.CommonLocations,
	}), nil
}
