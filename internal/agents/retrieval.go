package agents

import (
	"context"
	"fmt"
	"time"

	"disaster-analysis-pipeline/internal/models"
	"disaster-analysis-pipeline/internal/pkg/logger"
)

// RetrievalAgent queries the vector index for passages relevant to the prompt.
// Always-on: it runs for every request, and an empty hit list is still a
// successful (empty) result.
type RetrievalAgent struct {
	index  VectorIndex
	topK   int
	logger *logger.Logger
}

func NewRetrievalAgent(index VectorIndex, topK int, log *logger.Logger) *RetrievalAgent {
	return &RetrievalAgent{
		index:  index,
		topK:   topK,
		logger: log,
	}
}

func (a *RetrievalAgent) ID() string {
	return models.AgentRetrieval
}

func (a *RetrievalAgent) Invoke(ctx context.Context, prompt *models.Prompt) (*models.AgentResult, error) {
	startTime := time.Now()

	hits, err := a.index.Search(ctx, prompt.Text, a.topK)
	if err != nil {
		a.logger.LogService("vector_index", "search", time.Since(startTime), logger.Fields{
			"top_k": a.topK,
		}, err)
		return nil, models.WrapExternalError("vector index", err)
	}

	snippets := make([]models.TextSnippet, 0, len(hits))
	for _, hit := range hits {
		snippets = append(snippets, models.TextSnippet{
			Text:   hit.Text,
			Source: hit.Source,
			Score:  hit.Score,
		})
	}

	a.logger.LogService("vector_index", "search", time.Since(startTime), logger.Fields{
		"top_k": a.topK,
		"hits":  len(hits),
	}, nil)

	return models.NewTextResult(a.ID(), snippets), nil
}

// buildSubjectQuery renders the parsed filter as a compact search query,
// falling back to the raw prompt when nothing was parsed.
func buildSubjectQuery(prompt *models.Prompt) string {
	filter := prompt.Filter
	switch {
	case filter.DisasterType != "" && filter.Country != "":
		query := fmt.Sprintf("%s in %s", filter.DisasterType, filter.Country)
		if filter.Year > 0 {
			query = fmt.Sprintf("%s %d", query, filter.Year)
		}
		return query
	case filter.DisasterType != "":
		return filter.DisasterType
	default:
		return prompt.Text
	}
}
