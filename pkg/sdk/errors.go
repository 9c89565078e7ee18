package dishrec

import (
	"errors"

	"github.com/kailas-cloud/dishrec/internal/domain"
)

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrNotFound               = domain.ErrNotFound
	ErrInvalidArgument        = domain.ErrInvalidArgument
	ErrEmptyHistory           = domain.ErrEmptyHistory
	ErrHistoryResolution      = domain.ErrHistoryResolution
	ErrMissingField           = domain.ErrMissingField
	ErrVectorStore            = domain.ErrVectorStore
	ErrRateLimited            = domain.ErrRateLimited
	ErrEmbeddingQuotaExceeded = domain.ErrEmbeddingQuotaExceeded
	ErrEmbeddingProviderError = domain.ErrEmbeddingProviderError
	ErrSynthesis              = domain.ErrSynthesis
	ErrNoEmbedder             = errors.New("dishrec: no embedder configured")
)

// HistoryResolutionError names the dish that has no catalog document.
type HistoryResolutionError = domain.HistoryResolutionError
