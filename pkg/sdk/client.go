package dishrec

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.uber.org/zap"

	dbRedis "github.com/kailas-cloud/dishrec/internal/db/redis"
	domcol "github.com/kailas-cloud/dishrec/internal/domain/collection"
	domdoc "github.com/kailas-cloud/dishrec/internal/domain/document"
	"github.com/kailas-cloud/dishrec/internal/domain/history"
	"github.com/kailas-cloud/dishrec/internal/domain/match"
	"github.com/kailas-cloud/dishrec/internal/domain/vector"
	boltrepo "github.com/kailas-cloud/dishrec/internal/repository/bolt"
	collectionrepo "github.com/kailas-cloud/dishrec/internal/repository/collection"
	"github.com/kailas-cloud/dishrec/internal/repository/memory"
	"github.com/kailas-cloud/dishrec/internal/repository/pgvector"
	"github.com/kailas-cloud/dishrec/internal/synth"
	healthuc "github.com/kailas-cloud/dishrec/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/dishrec/internal/usecase/ingest"
	recommenduc "github.com/kailas-cloud/dishrec/internal/usecase/recommend"
)

const (
	defaultReadinessTimeout = 10 * time.Second
	defaultDimensions       = 1536
	defaultKeyPrefix        = "dishrec:"
)

// vectorStore is the storage surface shared by every backend.
type vectorStore interface {
	Ensure(ctx context.Context, c domcol.Collection) error
	Insert(ctx context.Context, collection string, docs []domdoc.Document) error
	GetByMetadata(ctx context.Context, collection, key, value string) ([]domdoc.Document, error)
	Query(ctx context.Context, collection string, embedding []float32, k int) ([]match.Match, error)
}

// Use case interfaces, swapped for fakes in tests.
type recommendUseCase interface {
	BuildCompositeEmbedding(ctx context.Context, h history.History, catalog string) ([]float32, error)
	RecommendMatches(ctx context.Context, h history.History, catalog, pool string, k int) ([]match.Match, error)
	KeyField() string
}

type ingestUseCase interface {
	Build(ctx context.Context, collection string, rows []ingestuc.Row) ([]IngestResult, error)
}

// Client is the dishrec SDK entry point. It is safe for concurrent use.
type Client struct {
	store     vectorStore
	pinger    healthuc.StorePinger
	closeFn   func()
	recommend recommendUseCase
	ingest    ingestUseCase // nil without an embedder
	healthSvc healthUseCase
	obs       *observer
}

// New creates a Client and opens the configured store (in-memory by default).
// The provided context is used for connecting and the readiness check.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		driver:     driverMemory,
		dimensions: defaultDimensions,
		keyPrefix:  defaultKeyPrefix,
	}
	for _, o := range opts {
		o.apply(cfg)
	}
	if cfg.dimensions <= 0 {
		return nil, fmt.Errorf("dishrec: dimensions must be positive, got %d", cfg.dimensions)
	}

	store, pinger, closeFn, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		closeFn()
		return nil, err
	}

	c, err := wireClient(store, pinger, cfg, obs)
	if err != nil {
		closeFn()
		return nil, err
	}
	c.closeFn = closeFn
	return c, nil
}

func openStore(ctx context.Context, cfg *clientConfig) (vectorStore, healthuc.StorePinger, func(), error) {
	switch cfg.driver {
	case driverMemory:
		s := memory.New()
		return s, s, func() {}, nil
	case driverBolt:
		s, err := boltrepo.Open(cfg.boltPath, defaultReadinessTimeout)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("dishrec: open bolt store: %w", err)
		}
		return s, s, func() { _ = s.Close() }, nil
	case driverPostgres:
		s, err := pgvector.Open(ctx, cfg.postgresDSN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("dishrec: open postgres store: %w", err)
		}
		return s, s, func() { _ = s.Close() }, nil
	case driverRedis, driverValkey:
		flavor := dbRedis.FlavorRedis
		if cfg.driver == driverValkey {
			flavor = dbRedis.FlavorValkey
		}
		s, err := dbRedis.NewStore(dbRedis.Config{Addrs: cfg.addrs, Password: cfg.password, Flavor: flavor})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("dishrec: create %s store: %w", cfg.driver, err)
		}
		if err := s.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
			s.Close()
			return nil, nil, nil, fmt.Errorf("dishrec: database not ready: %w", err)
		}
		return collectionrepo.New(s, cfg.keyPrefix), s, s.Close, nil
	default:
		return nil, nil, nil, fmt.Errorf("dishrec: unknown driver %q", cfg.driver)
	}
}

func wireClient(store vectorStore, pinger healthuc.StorePinger, cfg *clientConfig, obs *observer) (*Client, error) {
	metric := vector.MetricL2
	if cfg.cosine {
		metric = vector.MetricCosine
	}

	rcfg := recommenduc.Config{
		Dim:            cfg.dimensions,
		KeyField:       cfg.keyField,
		Resolution:     recommenduc.ResolutionStrict,
		EmptyHistory:   recommenduc.EmptyReject,
		MaxConcurrency: cfg.maxConcurrency,
	}
	if cfg.skipUnresolved {
		rcfg.Resolution = recommenduc.ResolutionSkip
	}
	if cfg.zeroOnEmpty {
		rcfg.EmptyHistory = recommenduc.EmptyZero
	}
	recommendSvc, err := recommenduc.New(store, rcfg, zap.NewNop())
	if err != nil {
		return nil, fmt.Errorf("dishrec: %w", err)
	}

	c := &Client{
		store:     store,
		pinger:    pinger,
		closeFn:   func() {},
		recommend: recommendSvc,
		obs:       obs,
	}

	// Pass a nil interface, not a typed nil pointer, when no embedder is configured.
	var embeddingChecker healthuc.EmbeddingChecker
	if cfg.embedder != nil {
		emb := &embedderAdapter{inner: cfg.embedder}
		embeddingChecker = emb

		fieldMap, err := ingestuc.ParseFieldMap(cfg.fieldMap)
		if err != nil {
			return nil, fmt.Errorf("dishrec: %w", err)
		}
		dedup := ingestuc.KeepFirst
		if cfg.keepLast {
			dedup = ingestuc.KeepLast
		}
		builder, err := ingestuc.New(store, synth.NewAttributeList(nil), emb, ingestuc.Config{
			Dim:          cfg.dimensions,
			Metric:       metric,
			DedupKey:     cfg.keyField,
			DedupPolicy:  dedup,
			IDPrefix:     cfg.idPrefix,
			FieldMap:     fieldMap,
			MaxBatchSize: cfg.maxBatchSize,
		}, zap.NewNop())
		if err != nil {
			return nil, fmt.Errorf("dishrec: %w", err)
		}
		c.ingest = &ingestAdapter{svc: builder}
	}
	c.healthSvc = healthuc.New(pinger, embeddingChecker, zap.NewNop())
	return c, nil
}

// Close releases all resources.
func (c *Client) Close() {
	if c.closeFn != nil {
		c.closeFn()
	}
}

// CompositeEmbedding sums the catalog embeddings of the dishes in history, in order.
func (c *Client) CompositeEmbedding(ctx context.Context, dishes []string, catalog string) (emb []float32, err error) {
	start := time.Now()
	defer func() { c.obs.observe("composite", start, err, slog.String("catalog", catalog)) }()

	emb, err = c.recommend.BuildCompositeEmbedding(ctx, history.FromKeys(dishes...), catalog)
	if err != nil {
		return nil, fmt.Errorf("composite embedding: %w", err)
	}
	return emb, nil
}

// RecommendDetailed returns up to k pool dishes nearest to the history's composite
// embedding, with their distances, nearest first.
func (c *Client) RecommendDetailed(
	ctx context.Context, dishes []string, catalog, pool string, k int,
) (recs []Recommendation, err error) {
	start := time.Now()
	defer func() {
		c.obs.observe("recommend", start, err,
			slog.String("catalog", catalog), slog.String("pool", pool), slog.Int("k", k))
	}()

	matches, err := c.recommend.RecommendMatches(ctx, history.FromKeys(dishes...), catalog, pool, k)
	if err != nil {
		return nil, fmt.Errorf("recommend: %w", err)
	}
	key := c.recommend.KeyField()
	recs = make([]Recommendation, len(matches))
	for i := range matches {
		m := &matches[i]
		recs[i] = Recommendation{
			ID:       m.ID(),
			Dish:     m.Field(key),
			Distance: m.Distance(),
			Metadata: m.Metadata(),
		}
	}
	return recs, nil
}

// Recommend returns the names of up to k pool dishes nearest to the history, nearest first.
// Duplicate names in the pool are returned as they are.
func (c *Client) Recommend(ctx context.Context, dishes []string, catalog, pool string, k int) ([]string, error) {
	recs, err := c.RecommendDetailed(ctx, dishes, catalog, pool, k)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(recs))
	for i, r := range recs {
		names[i] = r.Dish
	}
	return names, nil
}

// Ingest builds one document per unique valid row into collection, creating it when missing.
// Returns ErrNoEmbedder unless the client was created WithEmbedder.
func (c *Client) Ingest(ctx context.Context, collection string, rows []map[string]string) (res []IngestResult, err error) {
	start := time.Now()
	defer func() {
		c.obs.observe("ingest", start, err, slog.String("collection", collection), slog.Int("rows", len(rows)))
	}()

	if c.ingest == nil {
		return nil, ErrNoEmbedder
	}
	in := make([]ingestuc.Row, len(rows))
	for i, r := range rows {
		in[i] = r
	}
	res, err = c.ingest.Build(ctx, collection, in)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	return res, nil
}

// Ping checks store connectivity.
func (c *Client) Ping(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("ping", start, err) }()

	if err = c.pinger.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}
