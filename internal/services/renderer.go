package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"disaster-analysis-pipeline/internal/agents"
	"disaster-analysis-pipeline/internal/config"
	"disaster-analysis-pipeline/internal/models"
	"disaster-analysis-pipeline/internal/pkg/logger"
)

// RendererService posts a numeric series to the chart rendering collaborator
// and returns the artifact identifier it assigns. Chart bytes stay on the
// renderer's side.
type RendererService struct {
	client *http.Client
	config config.RendererConfig
	logger *logger.Logger
}

var _ agents.Renderer = (*RendererService)(nil)

func NewRendererService(cfg config.RendererConfig, log *logger.Logger) *RendererService {
	service := &RendererService{
		client: &http.Client{Timeout: cfg.RequestTimeout},
		config: cfg,
		logger: log,
	}

	log.Info("Renderer service initialized", "base_url", cfg.BaseURL)
	return service
}

type renderRequest struct {
	Metric string               `json:"metric"`
	Unit   string               `json:"unit,omitempty"`
	Points []models.SeriesPoint `json:"points"`
}

type renderResponse struct {
	ArtifactID string `json:"artifact_id"`
}

func (s *RendererService) Render(ctx context.Context, series *models.NumericResult) (string, error) {
	startTime := time.Now()

	payload, err := json.Marshal(renderRequest{
		Metric: series.Metric,
		Unit:   series.Unit,
		Points: series.Points,
	})
	if err != nil {
		return "", models.NewInternalError("RENDER_ENCODE_FAILED", "failed to encode render request").WithCause(err)
	}

	var artifactID string
	attempt := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			s.config.BaseURL+"/render", bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("renderer returned HTTP %d", resp.StatusCode)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return backoff.Permanent(err)
			}
			return err
		}

		var parsed renderResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return backoff.Permanent(fmt.Errorf("decode renderer response: %w", err))
		}
		if parsed.ArtifactID == "" {
			return backoff.Permanent(fmt.Errorf("renderer response missing artifact_id"))
		}
		artifactID = parsed.ArtifactID
		return nil
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(s.config.MaxRetries))
	err = backoff.Retry(attempt, backoff.WithContext(policy, ctx))

	s.logger.LogService("renderer", "render", time.Since(startTime), logger.Fields{
		"metric":      series.Metric,
		"points":      len(series.Points),
		"artifact_id": artifactID,
	}, err)
	if err != nil {
		return "", models.NewExternalError("RENDER_FAILED", "chart rendering failed").WithCause(err)
	}

	return artifactID, nil
}

func (s *RendererService) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("renderer unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("renderer unhealthy: HTTP %d", resp.StatusCode)
	}
	return nil
}
