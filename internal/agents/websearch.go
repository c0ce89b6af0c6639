package agents

import (
	"context"
	"time"

	"disaster-analysis-pipeline/internal/models"
	"disaster-analysis-pipeline/internal/pkg/logger"
)

// WebSearchAgent pulls current external information for the prompt's subject
// and returns snippets with their source URLs.
type WebSearchAgent struct {
	searcher WebSearcher
	logger   *logger.Logger
}

func NewWebSearchAgent(searcher WebSearcher, log *logger.Logger) *WebSearchAgent {
	return &WebSearchAgent{
		searcher: searcher,
		logger:   log,
	}
}

func (a *WebSearchAgent) ID() string {
	return models.AgentWebSearch
}

func (a *WebSearchAgent) Invoke(ctx context.Context, prompt *models.Prompt) (*models.AgentResult, error) {
	startTime := time.Now()
	query := buildSubjectQuery(prompt)

	hits, err := a.searcher.Fetch(ctx, query)
	if err != nil {
		a.logger.LogService("websearch", "fetch", time.Since(startTime), logger.Fields{
			"query": query,
		}, err)
		return nil, models.WrapExternalError("web search", err)
	}

	snippets := make([]models.TextSnippet, 0, len(hits))
	for _, hit := range hits {
		text := hit.Text
		if text == "" {
			text = hit.Title
		}
		if text == "" {
			continue
		}
		snippets = append(snippets, models.TextSnippet{
			Text:   text,
			Source: hit.URL,
		})
	}

	a.logger.LogService("websearch", "fetch", time.Since(startTime), logger.Fields{
		"query": query,
		"hits":  len(snippets),
	}, nil)

	return models.NewTextResult(a.ID(), snippets), nil
}
