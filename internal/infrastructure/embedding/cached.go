package embedding

import (
	"context"
	"strings"

	"github.com/ymatsuda/docsearch/internal/core/ports"
)

// CachedEmbedder is the cache fast path in front of the embedding provider.
// Query embeddings are deterministic for a given text, so they live in the
// `embedding` namespace with a TTL well above the result caches.
type CachedEmbedder struct {
	provider ports.Embedder
	cache    ports.VectorCache
}

func NewCachedEmbedder(provider ports.Embedder, cache ports.VectorCache) *CachedEmbedder {
	return &CachedEmbedder{provider: provider, cache: cache}
}

func (e *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := normalizeText(text)
	if e.cache != nil {
		if vector, ok := e.cache.Get(key); ok {
			return vector, nil
		}
	}
	vector, err := e.provider.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		e.cache.Set(key, vector)
	}
	return vector, nil
}

// Embed passes batches straight through; chunk batches are ingestion-shaped
// and not worth caching per entry.
func (e *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return e.provider.Embed(ctx, texts)
}

func normalizeText(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}
