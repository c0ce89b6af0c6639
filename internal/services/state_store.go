package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"disaster-analysis-pipeline/internal/config"
	"disaster-analysis-pipeline/internal/models"
	"disaster-analysis-pipeline/internal/pkg/logger"
)

// StateStore keeps per-request state in Redis: finished reports for replay
// and a per-request stream of agent progress updates. Everything here is best
// effort; the orchestrator logs store failures and carries on.
type StateStore struct {
	client *redis.Client
	config config.RedisConfig
	logger *logger.Logger
}

func NewStateStore(cfg config.RedisConfig, log *logger.Logger) (*StateStore, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}

	opt.PoolSize = cfg.PoolSize
	opt.DialTimeout = cfg.DialTimeout
	opt.ReadTimeout = cfg.ReadTimeout
	opt.WriteTimeout = cfg.WriteTimeout

	service := &StateStore{
		client: redis.NewClient(opt),
		config: cfg,
		logger: log,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := service.client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connection to Redis failed: %w", err)
	}

	log.Info("State store initialized", "pool_size", cfg.PoolSize)
	return service, nil
}

func reportKey(requestID string) string {
	return fmt.Sprintf("request:%s:report", requestID)
}

func updateStream(requestID string) string {
	return fmt.Sprintf("request:%s:agent_updates", requestID)
}

// PublishAgentUpdate appends a progress event to the request's stream.
func (s *StateStore) PublishAgentUpdate(ctx context.Context, update *models.AgentUpdate) error {
	startTime := time.Now()

	values := map[string]any{
		"agent_name":  update.AgentName,
		"status":      string(update.Status),
		"message":     update.Message,
		"duration_ms": update.Duration.Milliseconds(),
		"timestamp":   update.Timestamp.Format(time.RFC3339),
	}

	err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: updateStream(update.RequestID),
		Values: values,
		MaxLen: s.config.StreamMaxLen,
		Approx: true,
	}).Err()
	if err != nil {
		s.logger.LogService("redis", "publish_agent_update", time.Since(startTime), logger.Fields{
			"request_id": update.RequestID,
			"agent_name": update.AgentName,
		}, err)
		return models.NewExternalError("REDIS_PUBLISH_FAILED", "failed to publish agent update").WithCause(err)
	}

	return nil
}

// StoreReport caches a finished report for later replay via the API.
func (s *StateStore) StoreReport(ctx context.Context, report *models.Report) error {
	startTime := time.Now()

	payload, err := json.Marshal(report)
	if err != nil {
		return models.NewInternalError("SERIALIZATION_FAILED", "failed to serialize report").WithCause(err)
	}

	err = s.client.Set(ctx, reportKey(report.RequestID), payload, s.config.ReportTTL).Err()
	s.logger.LogService("redis", "store_report", time.Since(startTime), logger.Fields{
		"request_id": report.RequestID,
		"sections":   len(report.Sections),
	}, err)
	if err != nil {
		return models.NewExternalError("REDIS_STORE_FAILED", "failed to store report").WithCause(err)
	}

	return nil
}

var ErrReportNotFound = models.NewValidationError("REPORT_NOT_FOUND", "no report stored for request")

func (s *StateStore) GetReport(ctx context.Context, requestID string) (*models.Report, error) {
	startTime := time.Now()

	payload, err := s.client.Get(ctx, reportKey(requestID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrReportNotFound.WithMetadata("request_id", requestID)
		}
		s.logger.LogService("redis", "get_report", time.Since(startTime), logger.Fields{
			"request_id": requestID,
		}, err)
		return nil, models.NewExternalError("REDIS_GET_FAILED", "failed to get report").WithCause(err)
	}

	var report models.Report
	if err := json.Unmarshal([]byte(payload), &report); err != nil {
		return nil, models.NewInternalError("DESERIALIZATION_FAILED", "failed to deserialize report").WithCause(err)
	}

	return &report, nil
}

func (s *StateStore) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection unhealthy: %w", err)
	}
	return nil
}

func (s *StateStore) Close() error {
	s.logger.Info("Closing state store")
	return s.client.Close()
}
