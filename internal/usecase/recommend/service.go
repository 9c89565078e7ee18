// Package recommend builds a composite embedding from a user's dish history and
// asks the recommendation pool for its nearest dishes.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/dishrec/internal/domain"
	"github.com/kailas-cloud/dishrec/internal/domain/history"
	"github.com/kailas-cloud/dishrec/internal/domain/match"
	"github.com/kailas-cloud/dishrec/internal/domain/vector"
	"github.com/kailas-cloud/dishrec/internal/metrics"
)

// Defaults applied by New when a Config field is zero.
const (
	DefaultKeyField       = "dish_name"
	DefaultMaxConcurrency = 8
)

// Config tunes the recommender. Dim is required.
type Config struct {
	Dim            int
	KeyField       string
	Resolution     ResolutionPolicy
	EmptyHistory   EmptyHistoryPolicy
	MaxConcurrency int
}

// Service is the composite-embedding recommender. It holds no per-request state
// and is safe for concurrent use when the store is.
type Service struct {
	store  Store
	cfg    Config
	logger *zap.Logger
}

// New validates cfg and creates the recommender.
func New(store Store, cfg Config, logger *zap.Logger) (*Service, error) {
	if cfg.Dim <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", cfg.Dim)
	}
	if cfg.KeyField == "" {
		cfg.KeyField = DefaultKeyField
	}
	if cfg.Resolution == "" {
		cfg.Resolution = ResolutionStrict
	}
	if cfg.EmptyHistory == "" {
		cfg.EmptyHistory = EmptyReject
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultMaxConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, cfg: cfg, logger: logger}, nil
}

// BuildCompositeEmbedding sums the catalog embeddings of every history entry, in history order.
// A key that occurs n times contributes its embedding n times.
func (s *Service) BuildCompositeEmbedding(
	ctx context.Context, h history.History, catalog string,
) ([]float32, error) {
	if i := h.Valid(); i >= 0 {
		return nil, fmt.Errorf("history entry %d has an empty dish key: %w", i, domain.ErrInvalidArgument)
	}
	if len(h) == 0 {
		return s.emptyComposite()
	}

	resolved, err := s.resolve(ctx, h, catalog)
	if err != nil {
		return nil, err
	}

	acc := vector.Zero(s.cfg.Dim)
	used := 0
	for _, e := range h {
		emb, ok := resolved[e.DishKey]
		if !ok {
			if s.cfg.Resolution == ResolutionStrict {
				metrics.HistoryResolutionMissesTotal.WithLabelValues(string(ResolutionStrict)).Inc()
				return nil, domain.NewHistoryResolution(catalog, e.DishKey)
			}
			metrics.HistoryResolutionMissesTotal.WithLabelValues(string(ResolutionSkip)).Inc()
			s.logger.Warn("Skipping unresolved history entry",
				zap.String("dish", e.DishKey),
				zap.String("collection", catalog),
			)
			continue
		}
		if len(emb) != s.cfg.Dim {
			return nil, domain.NewDimensionMismatch(e.DishKey, s.cfg.Dim, len(emb))
		}
		if err := vector.AddInPlace(acc, emb); err != nil {
			return nil, fmt.Errorf("accumulate %q: %w: %w", e.DishKey, domain.ErrInvalidArgument, err)
		}
		used++
	}

	if used == 0 {
		return s.emptyComposite()
	}
	return acc, nil
}

// resolve looks up each distinct key once, bounded by MaxConcurrency.
// Keys with no catalog document are absent from the result.
func (s *Service) resolve(ctx context.Context, h history.History, catalog string) (map[string][]float32, error) {
	keys := make([]string, 0, len(h))
	seen := make(map[string]struct{}, len(h))
	for _, e := range h {
		if _, ok := seen[e.DishKey]; !ok {
			seen[e.DishKey] = struct{}{}
			keys = append(keys, e.DishKey)
		}
	}

	embeddings := make([][]float32, len(keys))
	found := make([]bool, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxConcurrency)
	for i, key := range keys {
		g.Go(func() error {
			docs, err := s.store.GetByMetadata(gctx, catalog, s.cfg.KeyField, key)
			if err != nil {
				return domain.StoreError("get_by_metadata", err)
			}
			if len(docs) > 0 {
				embeddings[i] = docs[0].Embedding()
				found[i] = true
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string][]float32, len(keys))
	for i, key := range keys {
		if found[i] {
			out[key] = embeddings[i]
		}
	}
	return out, nil
}

func (s *Service) emptyComposite() ([]float32, error) {
	if s.cfg.EmptyHistory == EmptyZero {
		return vector.Zero(s.cfg.Dim), nil
	}
	return nil, domain.ErrEmptyHistory
}

// RecommendMatches returns up to k pool matches nearest to the history's composite embedding,
// in the store's ranking order.
func (s *Service) RecommendMatches(
	ctx context.Context, h history.History, catalog, pool string, k int,
) (matches []match.Match, err error) {
	start := time.Now()
	defer func() {
		metrics.RecommendationDuration.Observe(time.Since(start).Seconds())
		metrics.RecommendationsTotal.WithLabelValues(outcome(err)).Inc()
	}()

	if k <= 0 {
		return nil, fmt.Errorf("k must be >= 1, got %d: %w", k, domain.ErrInvalidArgument)
	}

	composite, err := s.BuildCompositeEmbedding(ctx, h, catalog)
	if err != nil {
		return nil, err
	}

	matches, err = s.store.Query(ctx, pool, composite, k)
	if err != nil {
		return nil, domain.StoreError("query", err)
	}
	return matches, nil
}

// Recommend returns the key field (dish name) of each pool match, nearest first.
// Duplicate names in the pool come back as duplicates.
func (s *Service) Recommend(
	ctx context.Context, h history.History, catalog, pool string, k int,
) ([]string, error) {
	matches, err := s.RecommendMatches(ctx, h, catalog, pool, k)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(matches))
	for i := range matches {
		names[i] = matches[i].Field(s.cfg.KeyField)
	}
	return names, nil
}

// KeyField returns the metadata field used as the dish identifier.
func (s *Service) KeyField() string { return s.cfg.KeyField }

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrHistoryResolution):
		return "resolution_miss"
	case errors.Is(err, domain.ErrEmptyHistory):
		return "empty_history"
	case errors.Is(err, domain.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, domain.ErrVectorStore):
		return "store_error"
	default:
		return "error"
	}
}
