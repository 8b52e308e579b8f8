package ports

import (
	"context"
	"time"

	"github.com/ymatsuda/docsearch/internal/core/domain"
)

// Embedder builds vectors for query text and document batches.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorIndex performs approximate nearest-neighbor search. Hits come back
// ordered by ascending distance.
type VectorIndex interface {
	Search(ctx context.Context, queryVector []float32, limit int) ([]domain.VectorHit, error)
}

// LexicalIndex performs BM25-style keyword search. Hits come back ordered by
// descending score.
type LexicalIndex interface {
	Search(ctx context.Context, queryText string, keywords []string, limit int) ([]domain.LexicalHit, error)
}

// GraphIndex looks up documents related to query keywords through the
// knowledge graph.
type GraphIndex interface {
	Related(ctx context.Context, keywords []string, limit int) ([]domain.GraphHit, error)
}

// LabelStore is the read path into document metadata.
type LabelStore interface {
	GetLabels(ctx context.Context, documentID string) ([]string, *domain.StructuredLabel, error)
}

// KeywordSource exposes the process-wide domain vocabulary, loaded once at
// startup.
type KeywordSource interface {
	Vocabulary() domain.Vocabulary
}

// ResultCache caches whole fused result sets per query+config key.
type ResultCache interface {
	Get(key string) ([]domain.FusedResult, bool)
	Set(key string, value []domain.FusedResult)
	SetWithTTL(key string, value []domain.FusedResult, ttl time.Duration)
}

// KeywordCache caches preprocessor output per normalized query.
type KeywordCache interface {
	Get(key string) (domain.Keywords, bool)
	Set(key string, value domain.Keywords)
}

// VectorCache caches embeddings per normalized query text.
type VectorCache interface {
	Get(key string) ([]float32, bool)
	Set(key string, value []float32)
}

// SearchObserver receives pipeline observations. Implementations must be
// safe for concurrent use.
type SearchObserver interface {
	RecordSourceFailure(source string)
	RecordResultCache(hit bool)
	RecordSearch(durationSeconds float64, resultCount int)
	RecordFallbackScore()
}
