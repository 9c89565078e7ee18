package recommend

import (
	"context"

	domdoc "github.com/kailas-cloud/dishrec/internal/domain/document"
	"github.com/kailas-cloud/dishrec/internal/domain/match"
)

// CatalogReader resolves dish keys to catalog documents.
type CatalogReader interface {
	GetByMetadata(ctx context.Context, collection, key, value string) ([]domdoc.Document, error)
}

// PoolQuerier runs nearest-neighbor queries against the recommendation pool.
type PoolQuerier interface {
	Query(ctx context.Context, collection string, embedding []float32, k int) ([]match.Match, error)
}

// Store is the vector store view the recommender needs.
type Store interface {
	CatalogReader
	PoolQuerier
}
