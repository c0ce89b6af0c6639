// Package agents defines the uniform agent contract and the thin adapters
// that wrap each external collaborator as an invokable capability.
package agents

import (
	"context"

	"disaster-analysis-pipeline/internal/models"
)

// Agent is an independently invokable capability producing one typed partial
// result per prompt. Implementations are stateless between invocations and
// must confine all side effects to their own collaborator calls; timeouts and
// failure isolation are the orchestrator's job.
type Agent interface {
	ID() string
	Invoke(ctx context.Context, prompt *models.Prompt) (*models.AgentResult, error)
}

// VectorIndex is the document index collaborator.
type VectorIndex interface {
	Search(ctx context.Context, query string, topK int) ([]IndexHit, error)
}

type IndexHit struct {
	Text   string
	Source string
	Score  float64
}

// Warehouse is the structured disaster-record store collaborator.
type Warehouse interface {
	YearlyTotals(ctx context.Context, metric models.Metric, filter models.DisasterFilter) ([]models.SeriesPoint, error)
	SummaryStats(ctx context.Context, filter models.DisasterFilter) (*SummaryStats, error)
}

type SummaryStats struct {
	TotalEvents     int
	TotalDeaths     float64
	TotalAffected   float64
	TotalDamageUSD  float64
	MinYear         int
	MaxYear         int
	CommonLocations []string
}

// WebSearcher is the live web lookup collaborator.
type WebSearcher interface {
	Fetch(ctx context.Context, query string) ([]WebHit, error)
}

type WebHit struct {
	Title string
	Text  string
	URL   string
}

// Renderer turns a numeric series into a chart artifact and returns only its
// identifier; raw chart bytes never enter the core.
type Renderer interface {
	Render(ctx context.Context, series *models.NumericResult) (string, error)
}
