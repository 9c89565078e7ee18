// Package ingest turns source dish rows into stored documents: dedup, field mapping,
// text synthesis, embedding and insert, with a result reported for every row.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/dishrec/internal/domain"
	domcol "github.com/kailas-cloud/dishrec/internal/domain/collection"
	domdoc "github.com/kailas-cloud/dishrec/internal/domain/document"
	dominingest "github.com/kailas-cloud/dishrec/internal/domain/ingest"
	"github.com/kailas-cloud/dishrec/internal/domain/vector"
	"github.com/kailas-cloud/dishrec/internal/metrics"
)

// Defaults applied by New.
const (
	DefaultDedupKey     = "dish_name"
	DefaultIDPrefix     = "dish"
	DefaultMaxBatchSize = 1000
)

// Row is one source record keyed by column name.
type Row map[string]string

// Config tunes the document builder. Dim is required.
type Config struct {
	Dim    int
	Metric vector.Metric
	// DedupKey is a source column.
	DedupKey    string
	DedupPolicy DedupPolicy
	IDPrefix    string
	FieldMap    []FieldMapping
	// Required lists source columns every row must carry. Defaults to every mapped column.
	Required     []string
	MaxBatchSize int
}

// Service is the document builder.
type Service struct {
	store  Store
	synth  domain.Synthesizer
	embed  domain.Embedder
	cfg    Config
	logger *zap.Logger
}

// New validates cfg and creates the builder.
func New(store Store, synth domain.Synthesizer, embed domain.Embedder, cfg Config, logger *zap.Logger) (*Service, error) {
	if cfg.Dim <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", cfg.Dim)
	}
	if cfg.Metric == "" {
		cfg.Metric = vector.MetricL2
	}
	if cfg.DedupKey == "" {
		cfg.DedupKey = DefaultDedupKey
	}
	if cfg.DedupPolicy == "" {
		cfg.DedupPolicy = KeepFirst
	}
	if cfg.IDPrefix == "" {
		cfg.IDPrefix = DefaultIDPrefix
	}
	if len(cfg.FieldMap) == 0 {
		cfg.FieldMap = DefaultFieldMap
	}
	if cfg.Required == nil {
		for _, m := range cfg.FieldMap {
			cfg.Required = append(cfg.Required, m.Source)
		}
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultMaxBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, synth: synth, embed: embed, cfg: cfg, logger: logger}, nil
}

// TagFields returns the metadata keys indexed for exact-match lookups.
func (s *Service) TagFields() []string {
	out := make([]string, len(s.cfg.FieldMap))
	for i, m := range s.cfg.FieldMap {
		out[i] = m.Target
	}
	return out
}

// Build creates the collection when missing and stores one document per unique valid row.
// The returned slice holds one result per input row, in input order.
// A non-nil error means nothing was attempted.
func (s *Service) Build(ctx context.Context, collection string, rows []Row) ([]dominingest.Result, error) {
	if len(rows) > s.cfg.MaxBatchSize {
		return nil, fmt.Errorf("batch of %d rows exceeds %d: %w", len(rows), s.cfg.MaxBatchSize, domain.ErrInvalidArgument)
	}

	col, err := domcol.New(collection, s.cfg.Dim, s.cfg.Metric, s.TagFields())
	if err != nil {
		return nil, fmt.Errorf("collection %q: %w: %w", collection, domain.ErrInvalidArgument, err)
	}
	if err := s.store.Ensure(ctx, col); err != nil {
		return nil, domain.StoreError("ensure", err)
	}

	results := make([]dominingest.Result, len(rows))
	done := make([]bool, len(rows))

	for i, row := range rows {
		if err := s.validate(row); err != nil {
			results[i] = dominingest.NewError(i, "", row[s.cfg.DedupKey], err)
			done[i] = true
		}
	}
	for i, kept := range s.dedup(rows, done) {
		results[i] = dominingest.NewDuplicate(i, rows[i][s.cfg.DedupKey], kept)
		done[i] = true
	}

	for i, row := range rows {
		if done[i] {
			continue
		}
		id := s.cfg.IDPrefix + strconv.Itoa(i)
		key := row[s.cfg.DedupKey]

		cascade, err := s.buildRow(ctx, collection, id, row)
		if err == nil {
			results[i] = dominingest.NewOK(i, id, key)
			continue
		}
		results[i] = dominingest.NewError(i, id, key, err)
		if cascade {
			s.logger.Warn("Stopping ingest after provider throttling",
				zap.String("collection", collection),
				zap.Int("row", i),
				zap.Error(err),
			)
			for j := i + 1; j < len(rows); j++ {
				if !done[j] {
					results[j] = dominingest.NewError(j, s.cfg.IDPrefix+strconv.Itoa(j), rows[j][s.cfg.DedupKey], err)
				}
			}
			break
		}
	}

	for _, r := range results {
		metrics.IngestRowsTotal.WithLabelValues(string(r.Status())).Inc()
	}
	sum := dominingest.Summarize(results)
	s.logger.Info("Ingest completed",
		zap.String("collection", collection),
		zap.Int("ok", sum.OK),
		zap.Int("failed", sum.Failed),
		zap.Int("duplicates", sum.Duplicates),
	)
	return results, nil
}

// validate reports the first required column that is absent or blank.
func (s *Service) validate(row Row) error {
	for _, f := range s.cfg.Required {
		if strings.TrimSpace(row[f]) == "" {
			return &domain.MissingFieldError{Field: f}
		}
	}
	if strings.TrimSpace(row[s.cfg.DedupKey]) == "" {
		return &domain.MissingFieldError{Field: s.cfg.DedupKey}
	}
	return nil
}

// dedup returns, for every losing row not already settled, the index of the row that wins.
func (s *Service) dedup(rows []Row, settled []bool) map[int]int {
	winner := make(map[string]int, len(rows))
	for i, row := range rows {
		if settled[i] {
			continue
		}
		key := row[s.cfg.DedupKey]
		if _, ok := winner[key]; ok && s.cfg.DedupPolicy == KeepFirst {
			continue
		}
		winner[key] = i
	}

	losers := make(map[int]int)
	for i, row := range rows {
		if settled[i] {
			continue
		}
		if w := winner[row[s.cfg.DedupKey]]; w != i {
			losers[i] = w
		}
	}
	return losers
}

// buildRow synthesizes, embeds and stores one row. cascade reports a provider
// throttling error after which the remaining rows are not attempted.
func (s *Service) buildRow(ctx context.Context, collection, id string, row Row) (cascade bool, err error) {
	attrs := s.attributes(row)

	text, err := s.synth.Synthesize(ctx, attrs)
	if err != nil {
		return isThrottled(err), fmt.Errorf("synthesize: %w", err)
	}

	res, err := s.embed.Embed(ctx, text)
	if err != nil {
		return isThrottled(err), fmt.Errorf("embed: %w", err)
	}
	domain.UsageFromContext(ctx).Add(res.TotalTokens)

	if len(res.Embedding) != s.cfg.Dim {
		return false, domain.NewDimensionMismatch(id, s.cfg.Dim, len(res.Embedding))
	}

	doc, err := domdoc.New(id, text, res.Embedding, attrs)
	if err != nil {
		return false, fmt.Errorf("build document: %w: %w", domain.ErrInvalidArgument, err)
	}
	if err := s.store.Insert(ctx, collection, []domdoc.Document{doc}); err != nil {
		return false, domain.StoreError("insert", err)
	}
	return false, nil
}

func (s *Service) attributes(row Row) domain.Attributes {
	attrs := make(domain.Attributes, len(s.cfg.FieldMap))
	for _, m := range s.cfg.FieldMap {
		if v, ok := row[m.Source]; ok {
			attrs[m.Target] = v
		}
	}
	return attrs
}

func isThrottled(err error) bool {
	return errors.Is(err, domain.ErrEmbeddingQuotaExceeded) || errors.Is(err, domain.ErrRateLimited)
}
