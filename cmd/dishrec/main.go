package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kailas-cloud/dishrec/internal/config"
	"github.com/kailas-cloud/dishrec/internal/domain"
	domcol "github.com/kailas-cloud/dishrec/internal/domain/collection"
	"github.com/kailas-cloud/dishrec/internal/domain/vector"
	logpkg "github.com/kailas-cloud/dishrec/internal/logger"
	"github.com/kailas-cloud/dishrec/internal/metrics"
	"github.com/kailas-cloud/dishrec/internal/repository/embcache"
	"github.com/kailas-cloud/dishrec/internal/synth"
	chiTransport "github.com/kailas-cloud/dishrec/internal/transport/chi"
	openaiTransport "github.com/kailas-cloud/dishrec/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/dishrec/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/dishrec/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/dishrec/internal/usecase/ingest"
	recommenduc "github.com/kailas-cloud/dishrec/internal/usecase/recommend"
	"github.com/kailas-cloud/dishrec/internal/version"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting dishrec API server",
		zap.String("build", version.String()),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
	)

	metrics.Register()

	ctx := context.Background()
	be, err := openBackend(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to open vector store", zap.Error(err))
	}
	defer be.close()

	metric, err := vector.ParseMetric(cfg.Database.Metric)
	if err != nil {
		logger.Fatal("Invalid metric", zap.Error(err))
	}
	fieldMap, err := ingestuc.ParseFieldMap(cfg.Ingest.FieldMap)
	if err != nil {
		logger.Fatal("Invalid ingest field map", zap.Error(err))
	}
	if len(fieldMap) == 0 {
		fieldMap = ingestuc.DefaultFieldMap
	}
	if err := ensureCollections(ctx, be.store, cfg, metric, fieldMap); err != nil {
		logger.Fatal("Failed to prepare collections", zap.Error(err))
	}

	recommendSvc, err := buildRecommender(be.store, cfg.Recommend, cfg.Embedding.Dimensions, logger)
	if err != nil {
		logger.Fatal("Failed to create recommender", zap.Error(err))
	}

	var embedder *embeddinguc.InstrumentedEmbedder
	if cfg.Embedding.APIKey != "" {
		embedder = buildEmbedder(cfg.Embedding, cfg.Database.KeyPrefix, be.kv, logger)
		logger.Info("Embedder created",
			zap.String("provider", cfg.Embedding.Provider),
			zap.String("model", cfg.Embedding.Model),
			zap.Int("dimensions", cfg.Embedding.Dimensions),
			zap.Bool("cache", cfg.Embedding.Cache && be.kv != nil),
		)
	}

	var ingestSvc *ingestuc.Service
	if cfg.Ingest.Enabled {
		if embedder == nil {
			logger.Fatal("Ingest requires an embedding provider")
		}
		ingestSvc, err = buildIngest(be.store, embedder, cfg, metric, fieldMap, logger)
		if err != nil {
			logger.Fatal("Failed to create ingest service", zap.Error(err))
		}
	}

	// Pass a nil interface, not a typed nil pointer, when no embedder is configured.
	var embeddingChecker healthuc.EmbeddingChecker
	if embedder != nil {
		embeddingChecker = embedder
	}
	healthSvc := healthuc.New(be.pinger, embeddingChecker, logger)

	server := chiTransport.NewServer(recommendSvc, ingestSvc, healthSvc, chiTransport.Config{
		Catalog:  cfg.Recommend.Catalog,
		Pool:     cfg.Recommend.Pool,
		DefaultK: cfg.Recommend.DefaultK,
		MaxK:     cfg.Recommend.MaxK,
	}, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      chiTransport.NewRouter(server, cfg.Auth.APIKeys),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// ensureCollections creates the catalog and the pool so lookups on a fresh store
// report misses instead of missing collections.
func ensureCollections(
	ctx context.Context, store vectorStore, cfg config.Config, metric vector.Metric, fieldMap []ingestuc.FieldMapping,
) error {
	tags := make([]string, len(fieldMap))
	for i, m := range fieldMap {
		tags[i] = m.Target
	}
	for _, name := range []string{cfg.Recommend.Catalog, cfg.Recommend.Pool} {
		col, err := domcol.New(name, cfg.Embedding.Dimensions, metric, tags)
		if err != nil {
			return fmt.Errorf("collection %q: %w", name, err)
		}
		if err := store.Ensure(ctx, col); err != nil {
			return fmt.Errorf("ensure %q: %w", name, err)
		}
	}
	return nil
}

func buildRecommender(
	store vectorStore, cfg config.RecommendConfig, dim int, logger *zap.Logger,
) (*recommenduc.Service, error) {
	resolution, err := recommenduc.ParseResolutionPolicy(cfg.Resolution)
	if err != nil {
		return nil, err
	}
	empty, err := recommenduc.ParseEmptyHistoryPolicy(cfg.EmptyHistory)
	if err != nil {
		return nil, err
	}
	return recommenduc.New(store, recommenduc.Config{
		Dim:            dim,
		KeyField:       cfg.KeyField,
		Resolution:     resolution,
		EmptyHistory:   empty,
		MaxConcurrency: cfg.MaxConcurrency,
	}, logger)
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instrumented.
func buildEmbedder(
	cfg config.EmbeddingConfig, keyPrefix string, kv kvStore, logger *zap.Logger,
) *embeddinguc.InstrumentedEmbedder {
	base := openaiTransport.NewEmbedder(&openaiTransport.EmbedderConfig{
		Config: openaiTransport.Config{
			APIKey:   cfg.APIKey,
			BaseURL:  cfg.BaseURL,
			Model:    cfg.Model,
			Provider: cfg.Provider,
		},
		Dimensions: cfg.Dimensions,
		Logger:     logger,
	})

	var embedder domain.Embedder = base
	if cfg.Cache && kv != nil {
		embedder = embcache.New(base, kv, keyPrefix, cfg.Model, metrics.EmbeddingCacheTotal, logger)
	}

	return embeddinguc.NewInstrumentedEmbedder(embedder, cfg.Provider, cfg.Model, cfg.Dimensions, logger)
}

func buildIngest(
	store vectorStore,
	embedder domain.Embedder,
	cfg config.Config,
	metric vector.Metric,
	fieldMap []ingestuc.FieldMapping,
	logger *zap.Logger,
) (*ingestuc.Service, error) {
	var completer synth.Completer
	if cfg.Synthesis.Strategy == synth.StrategyChat {
		completer = openaiTransport.NewChatCompleter(&openaiTransport.ChatConfig{
			Config: openaiTransport.Config{
				APIKey:   cfg.Embedding.APIKey,
				BaseURL:  cfg.Embedding.BaseURL,
				Model:    cfg.Synthesis.Model,
				Provider: cfg.Embedding.Provider,
			},
			Temperature: cfg.Synthesis.Temperature,
			MaxTokens:   cfg.Synthesis.MaxTokens,
		})
	}
	synthesizer, err := synth.New(cfg.Synthesis.Strategy, cfg.Synthesis.Fields, completer, cfg.Synthesis.PromptTemplate)
	if err != nil {
		return nil, err
	}

	dedup, err := ingestuc.ParseDedupPolicy(cfg.Ingest.DedupPolicy)
	if err != nil {
		return nil, err
	}
	return ingestuc.New(store, synthesizer, embedder, ingestuc.Config{
		Dim:          cfg.Embedding.Dimensions,
		Metric:       metric,
		DedupKey:     cfg.Ingest.DedupKey,
		DedupPolicy:  dedup,
		IDPrefix:     cfg.Ingest.IDPrefix,
		FieldMap:     fieldMap,
		MaxBatchSize: cfg.Ingest.MaxBatchSize,
	}, logger)
}
