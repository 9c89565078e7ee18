package dishrec

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

const (
	driverMemory   = "memory"
	driverBolt     = "bolt"
	driverPostgres = "postgres"
	driverRedis    = "redis"
	driverValkey   = "valkey"
)

type clientConfig struct {
	driver      string
	addrs       []string
	password    string
	keyPrefix   string
	boltPath    string
	postgresDSN string

	embedder Embedder

	dimensions     int
	cosine         bool
	keyField       string
	skipUnresolved bool
	zeroOnEmpty    bool
	maxConcurrency int

	keepLast     bool
	idPrefix     string
	fieldMap     []string
	maxBatchSize int

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithMemory keeps collections in process memory. This is the default.
func WithMemory() Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = driverMemory
	})
}

// WithBolt stores collections in a single bbolt file.
func WithBolt(path string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = driverBolt
		c.boltPath = path
	})
}

// WithPostgres stores collections in PostgreSQL with the pgvector extension.
func WithPostgres(dsn string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = driverPostgres
		c.postgresDSN = dsn
	})
}

// WithRedis connects to Redis 8+ (or Redis Stack) with the search module.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = driverRedis
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithValkey connects to Valkey with valkey-search.
func WithValkey(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = driverValkey
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithKeyPrefix namespaces Redis/Valkey keys. Default: "dishrec:".
func WithKeyPrefix(prefix string) Option {
	return optionFunc(func(c *clientConfig) {
		c.keyPrefix = prefix
	})
}

// WithEmbedder sets the text embedding provider. Required for Ingest.
func WithEmbedder(e Embedder) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedder = e
	})
}

// WithDimensions sets the embedding dimension of every collection. Default: 1536.
func WithDimensions(dim int) Option {
	return optionFunc(func(c *clientConfig) {
		c.dimensions = dim
	})
}

// WithCosine ranks pool dishes by cosine distance instead of squared L2.
func WithCosine() Option {
	return optionFunc(func(c *clientConfig) {
		c.cosine = true
	})
}

// WithKeyField sets the metadata field that identifies a dish. Default: "dish_name".
func WithKeyField(field string) Option {
	return optionFunc(func(c *clientConfig) {
		c.keyField = field
	})
}

// WithSkipUnresolved drops history entries missing from the catalog instead of failing.
func WithSkipUnresolved() Option {
	return optionFunc(func(c *clientConfig) {
		c.skipUnresolved = true
	})
}

// WithZeroOnEmptyHistory answers an empty history with the zero vector instead of ErrEmptyHistory.
func WithZeroOnEmptyHistory() Option {
	return optionFunc(func(c *clientConfig) {
		c.zeroOnEmpty = true
	})
}

// WithConcurrency bounds parallel catalog lookups per request. Default: 8.
func WithConcurrency(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.maxConcurrency = n
	})
}

// WithKeepLast keeps the last of several rows sharing a dish name on ingest.
// The first one wins by default.
func WithKeepLast() Option {
	return optionFunc(func(c *clientConfig) {
		c.keepLast = true
	})
}

// WithIDPrefix sets the document id prefix used on ingest. Default: "dish".
func WithIDPrefix(prefix string) Option {
	return optionFunc(func(c *clientConfig) {
		c.idPrefix = prefix
	})
}

// WithFieldMap maps source columns to metadata keys as "source:key" pairs.
func WithFieldMap(pairs ...string) Option {
	return optionFunc(func(c *clientConfig) {
		c.fieldMap = pairs
	})
}

// WithMaxBatchSize caps the rows accepted by one Ingest call. Default: 1000.
func WithMaxBatchSize(size int) Option {
	return optionFunc(func(c *clientConfig) {
		c.maxBatchSize = size
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
