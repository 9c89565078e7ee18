package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument signals a caller error such as k <= 0 or a dimension mismatch.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrEmptyHistory signals a history without entries under the reject policy.
	ErrEmptyHistory = errors.New("empty history")
	// ErrHistoryResolution signals a history entry that has no catalog document.
	ErrHistoryResolution = errors.New("history resolution miss")
	// ErrMissingField signals a source row without a required attribute.
	ErrMissingField = errors.New("missing required field")
	// ErrVectorStore signals a vector store failure.
	ErrVectorStore = errors.New("vector store error")

	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrEmbeddingQuotaExceeded signals an exhausted embedding quota on the provider side.
	ErrEmbeddingQuotaExceeded = errors.New("embedding quota exceeded")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrSynthesis signals a text synthesis failure.
	ErrSynthesis = errors.New("text synthesis error")
)

// HistoryResolutionError names the dish key that did not resolve in the catalog.
type HistoryResolutionError struct {
	Key        string
	Collection string
}

func (e *HistoryResolutionError) Error() string {
	return fmt.Sprintf("%s: dish %q not found in collection %q",
		ErrHistoryResolution.Error(), e.Key, e.Collection)
}

func (e *HistoryResolutionError) Unwrap() error { return ErrHistoryResolution }

// NewHistoryResolution creates a resolution miss error for key.
func NewHistoryResolution(collection, key string) error {
	return &HistoryResolutionError{Key: key, Collection: collection}
}

// DimensionMismatchError reports an embedding whose length differs from the deployment dimension.
type DimensionMismatchError struct {
	Key  string
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s: dimension mismatch: want %d, got %d", ErrInvalidArgument.Error(), e.Want, e.Got)
	}
	return fmt.Sprintf("%s: dimension mismatch for %q: want %d, got %d",
		ErrInvalidArgument.Error(), e.Key, e.Want, e.Got)
}

func (e *DimensionMismatchError) Unwrap() error { return ErrInvalidArgument }

// NewDimensionMismatch creates a dimension mismatch error.
func NewDimensionMismatch(key string, want, got int) error {
	return &DimensionMismatchError{Key: key, Want: want, Got: got}
}

// MissingFieldError names the source attribute a row lacks.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingField.Error(), e.Field)
}

func (e *MissingFieldError) Unwrap() error { return ErrMissingField }

// StoreError wraps a backend failure as ErrVectorStore while keeping the cause reachable.
func StoreError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrVectorStore, op, err)
}
