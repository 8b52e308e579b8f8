package ports

import (
	"context"

	"github.com/ymatsuda/docsearch/internal/core/domain"
)

// DocumentSearcher is the inbound contract for ranked document search.
type DocumentSearcher interface {
	Search(ctx context.Context, query string, cfg domain.FusionConfig) ([]domain.FusedResult, error)
}
