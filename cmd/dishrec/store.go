package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/dishrec/internal/config"
	dbRedis "github.com/kailas-cloud/dishrec/internal/db/redis"
	domcol "github.com/kailas-cloud/dishrec/internal/domain/collection"
	domdoc "github.com/kailas-cloud/dishrec/internal/domain/document"
	"github.com/kailas-cloud/dishrec/internal/domain/match"
	boltrepo "github.com/kailas-cloud/dishrec/internal/repository/bolt"
	collectionrepo "github.com/kailas-cloud/dishrec/internal/repository/collection"
	"github.com/kailas-cloud/dishrec/internal/repository/memory"
	"github.com/kailas-cloud/dishrec/internal/repository/pgvector"
)

// vectorStore is what every backend offers the use cases.
type vectorStore interface {
	Ensure(ctx context.Context, c domcol.Collection) error
	Insert(ctx context.Context, collection string, docs []domdoc.Document) error
	GetByMetadata(ctx context.Context, collection, key, value string) ([]domdoc.Document, error)
	Query(ctx context.Context, collection string, embedding []float32, k int) ([]match.Match, error)
}

// kvStore backs the embedding cache.
type kvStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

type pinger interface {
	Ping(ctx context.Context) error
}

type backend struct {
	store  vectorStore
	pinger pinger
	kv     kvStore // nil when the backend has no key-value space
	close  func()
}

// openBackend connects the vector store selected by cfg.Database.Driver.
func openBackend(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*backend, error) {
	switch cfg.Driver {
	case config.DriverRedis, config.DriverValkey:
		flavor := dbRedis.FlavorRedis
		if cfg.Driver == config.DriverValkey {
			flavor = dbRedis.FlavorValkey
		}
		store, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Addrs,
			Password: cfg.Password,
			Flavor:   flavor,
		})
		if err != nil {
			return nil, fmt.Errorf("create %s store: %w", cfg.Driver, err)
		}
		if err := store.WaitForReady(ctx, time.Duration(cfg.ReadinessTimeout)*time.Second); err != nil {
			store.Close()
			return nil, fmt.Errorf("%s not ready: %w", cfg.Driver, err)
		}
		repo := collectionrepo.New(store, cfg.KeyPrefix)
		if cfg.HNSWM > 0 {
			repo = repo.WithHNSW(collectionrepo.HNSWConfig{M: cfg.HNSWM, EFConstruct: cfg.HNSWEFConstruct})
		}
		logger.Info("Connected to database", zap.String("driver", cfg.Driver), zap.Strings("addrs", cfg.Addrs))
		return &backend{store: repo, pinger: store, kv: store, close: store.Close}, nil

	case config.DriverBolt:
		store, err := boltrepo.Open(cfg.BoltPath, time.Duration(cfg.ReadinessTimeout)*time.Second)
		if err != nil {
			return nil, fmt.Errorf("open bolt store: %w", err)
		}
		logger.Info("Opened bolt store", zap.String("path", cfg.BoltPath))
		return &backend{store: store, pinger: store, kv: store, close: func() { _ = store.Close() }}, nil

	case config.DriverPostgres:
		store, err := pgvector.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		logger.Info("Connected to postgres")
		return &backend{store: store, pinger: store, close: func() { _ = store.Close() }}, nil

	case config.DriverMemory:
		store := memory.New()
		logger.Warn("Using in-memory store; data is lost on restart")
		return &backend{store: store, pinger: store, kv: store, close: func() {}}, nil

	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
