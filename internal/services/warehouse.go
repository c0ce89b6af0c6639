package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sony/gobreaker"

	"disaster-analysis-pipeline/internal/agents"
	"disaster-analysis-pipeline/internal/config"
	"disaster-analysis-pipeline/internal/models"
	"disaster-analysis-pipeline/internal/pkg/logger"
)

// WarehouseService queries the disaster-record warehouse over Postgres.
// Queries run behind a circuit breaker with bounded retries; any error
// surfaces to the caller as a collaborator failure for the orchestrator to
// downgrade.
type WarehouseService struct {
	pool    *pgxpool.Pool
	breaker *gobreaker.CircuitBreaker
	config  config.WarehouseConfig
	logger  *logger.Logger
}

var _ agents.Warehouse = (*WarehouseService)(nil)

func NewWarehouseService(ctx context.Context, cfg config.WarehouseConfig, log *logger.Logger) (*WarehouseService, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("warehouse DSN required")
	}

	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect to warehouse: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("warehouse ping failed: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "warehouse",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("Warehouse breaker state changed", "from", from.String(), "to", to.String())
		},
	})

	service := &WarehouseService{
		pool:    pool,
		breaker: breaker,
		config:  cfg,
		logger:  log,
	}

	log.Info("Warehouse service initialized", "table", cfg.Table)
	return service, nil
}

// metricColumn whitelists the measure columns a Metric may address. Metric
// values come from prompt parsing, never straight from user input, but the
// column name is interpolated into SQL so it is validated anyway.
func metricColumn(metric models.Metric) (string, error) {
	switch metric {
	case models.MetricTotalDeaths, models.MetricInjured, models.MetricAffected,
		models.MetricHomeless, models.MetricInsuredDamage,
		models.MetricReconstruction, models.MetricTotalDamage,
		models.MetricTotalAffected:
		return string(metric), nil
	default:
		return "", fmt.Errorf("unknown warehouse metric %q", metric)
	}
}

func (s *WarehouseService) YearlyTotals(ctx context.Context, metric models.Metric, filter models.DisasterFilter) ([]models.SeriesPoint, error) {
	startTime := time.Now()

	column, err := metricColumn(metric)
	if err != nil {
		return nil, models.NewValidationError("INVALID_METRIC", err.Error())
	}

	where, args := s.buildFilter(filter, fmt.Sprintf("start_year IS NOT NULL AND %s IS NOT NULL", column))
	query := fmt.Sprintf(`
		SELECT start_year, SUM(%s)::float8
		FROM %s
		%s
		GROUP BY start_year
		ORDER BY start_year`, column, s.config.Table, where)

	var points []models.SeriesPoint
	err = s.execute(ctx, func(queryCtx context.Context) error {
		rows, err := s.pool.Query(queryCtx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		points = points[:0]
		for rows.Next() {
			var point models.SeriesPoint
			if err := rows.Scan(&point.Year, &point.Value); err != nil {
				return err
			}
			points = append(points, point)
		}
		return rows.Err()
	})

	s.logger.LogService("warehouse", "yearly_totals", time.Since(startTime), logger.Fields{
		"metric": metric,
		"years":  len(points),
	}, err)
	if err != nil {
		return nil, models.NewExternalError("WAREHOUSE_QUERY_FAILED", "yearly totals query failed").WithCause(err)
	}

	return points, nil
}

func (s *WarehouseService) SummaryStats(ctx context.Context, filter models.DisasterFilter) (*agents.SummaryStats, error) {
	startTime := time.Now()

	where, args := s.buildFilter(filter, "start_year IS NOT NULL")
	query := fmt.Sprintf(`
		SELECT
			COUNT(*),
			COALESCE(SUM(total_deaths), 0)::float8,
			COALESCE(SUM(no_affected), 0)::float8,
			COALESCE(SUM(total_damage_usd), 0)::float8,
			COALESCE(MIN(start_year), 0),
			COALESCE(MAX(start_year), 0)
		FROM %s
		%s`, s.config.Table, where)

	locationQuery := fmt.Sprintf(`
		SELECT location
		FROM %s
		%s AND location IS NOT NULL AND location <> ''
		GROUP BY location
		ORDER BY COUNT(*) DESC, location
		LIMIT 3`, s.config.Table, where)

	stats := &agents.SummaryStats{}
	err := s.execute(ctx, func(queryCtx context.Context) error {
		row := s.pool.QueryRow(queryCtx, query, args...)
		if err := row.Scan(&stats.TotalEvents, &stats.TotalDeaths, &stats.TotalAffected,
			&stats.TotalDamageUSD, &stats.MinYear, &stats.MaxYear); err != nil {
			return err
		}

		rows, err := s.pool.Query(queryCtx, locationQuery, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		stats.CommonLocations = stats.CommonLocations[:0]
		for rows.Next() {
			var location string
			if err := rows.Scan(&location); err != nil {
				return err
			}
			stats.CommonLocations = append(stats.CommonLocations, location)
		}
		return rows.Err()
	})

	s.logger.LogService("warehouse", "summary_stats", time.Since(startTime), logger.Fields{
		"total_events": stats.TotalEvents,
	}, err)
	if err != nil {
		return nil, models.NewExternalError("WAREHOUSE_QUERY_FAILED", "summary stats query failed").WithCause(err)
	}

	return stats, nil
}

// buildFilter renders the structured filter as a WHERE clause with positional
// args, starting from a base condition.
func (s *WarehouseService) buildFilter(filter models.DisasterFilter, base string) (string, []any) {
	conditions := []string{base}
	var args []any

	if filter.DisasterType != "" {
		args = append(args, strings.ToLower(filter.DisasterType))
		conditions = append(conditions, fmt.Sprintf("LOWER(disaster_type) = $%d", len(args)))
	}
	if filter.Country != "" {
		args = append(args, strings.ToLower(filter.Country))
		conditions = append(conditions, fmt.Sprintf("LOWER(country) = $%d", len(args)))
	}
	if filter.Year > 0 {
		args = append(args, filter.Year)
		conditions = append(conditions, fmt.Sprintf("start_year = $%d", len(args)))
	}

	return "WHERE " + strings.Join(conditions, " AND "), args
}

// execute runs op behind the breaker with bounded exponential retries and the
// configured per-query timeout.
func (s *WarehouseService) execute(ctx context.Context, op func(context.Context) error) error {
	_, err := s.breaker.Execute(func() (any, error) {
		attempt := func() error {
			queryCtx, cancel := context.WithTimeout(ctx, s.config.QueryTimeout)
			defer cancel()
			if err := op(queryCtx); err != nil {
				if queryCtx.Err() != nil || ctx.Err() != nil {
					return backoff.Permanent(err)
				}
				return err
			}
			return nil
		}

		policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(s.config.MaxRetries))
		return nil, backoff.Retry(attempt, backoff.WithContext(policy, ctx))
	})
	return err
}

func (s *WarehouseService) HealthCheck(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("warehouse connection unhealthy: %w", err)
	}
	return nil
}

func (s *WarehouseService) Close() {
	s.logger.Info("Closing warehouse service")
	s.pool.Close()
}
