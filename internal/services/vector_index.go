package services

import (
	"context"
	"fmt"
	"time"

	"github.com/philippgille/chromem-go"

	"disaster-analysis-pipeline/internal/agents"
	"disaster-analysis-pipeline/internal/config"
	"disaster-analysis-pipeline/internal/models"
	"disaster-analysis-pipeline/internal/pkg/logger"
)

// DocumentIndex is the vector index collaborator, backed by an embedded
// chromem collection. Document ingestion happens out of band; the core only
// searches.
type DocumentIndex struct {
	db         *chromem.DB
	collection *chromem.Collection
	config     config.IndexConfig
	logger     *logger.Logger
}

var _ agents.VectorIndex = (*DocumentIndex)(nil)

func NewDocumentIndex(cfg config.IndexConfig, embed chromem.EmbeddingFunc, log *logger.Logger) (*DocumentIndex, error) {
	db, err := chromem.NewPersistentDB(cfg.Path, true)
	if err != nil {
		return nil, fmt.Errorf("open document index at %s: %w", cfg.Path, err)
	}

	collection, err := db.GetOrCreateCollection(cfg.Collection, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("open collection %s: %w", cfg.Collection, err)
	}

	service := &DocumentIndex{
		db:         db,
		collection: collection,
		config:     cfg,
		logger:     log,
	}

	log.Info("Document index initialized",
		"path", cfg.Path,
		"collection", cfg.Collection,
		"documents", collection.Count())

	return service, nil
}

// Search returns up to topK passages ranked by similarity to the query. An
// index with no documents yields an empty, successful result.
func (s *DocumentIndex) Search(ctx context.Context, query string, topK int) ([]agents.IndexHit, error) {
	startTime := time.Now()

	count := s.collection.Count()
	if count == 0 {
		return nil, nil
	}
	if topK > count {
		topK = count
	}

	results, err := s.collection.Query(ctx, query, topK, nil, nil)
	if err != nil {
		s.logger.LogService("vector_index", "query", time.Since(startTime), logger.Fields{
			"collection": s.config.Collection,
			"top_k":      topK,
		}, err)
		return nil, models.NewExternalError("INDEX_QUERY_FAILED", "vector index query failed").WithCause(err)
	}

	hits := make([]agents.IndexHit, 0, len(results))
	for _, result := range results {
		source := result.Metadata["source"]
		if source == "" {
			source = result.ID
		}
		hits = append(hits, agents.IndexHit{
			Text:   result.Content,
			Source: source,
			Score:  float64(result.Similarity),
		})
	}

	s.logger.LogService("vector_index", "query", time.Since(startTime), logger.Fields{
		"collection": s.config.Collection,
		"top_k":      topK,
		"hits":       len(hits),
	}, nil)

	return hits, nil
}

// AddDocuments loads passages into the collection. Used by ingestion tooling
// and tests, not by the request path.
func (s *DocumentIndex) AddDocuments(ctx context.Context, docs map[string]string, sources map[string]string) error {
	for id, content := range docs {
		doc := chromem.Document{
			ID:      id,
			Content: content,
		}
		if source, ok := sources[id]; ok {
			doc.Metadata = map[string]string{"source": source}
		}
		if err := s.collection.AddDocument(ctx, doc); err != nil {
			return models.NewExternalError("INDEX_ADD_FAILED",
				fmt.Sprintf("failed to add document %s", id)).WithCause(err)
		}
	}
	return nil
}

func (s *DocumentIndex) HealthCheck(_ context.Context) error {
	if s.collection == nil {
		return fmt.Errorf("document index collection not initialized")
	}
	return nil
}
