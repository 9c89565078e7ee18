package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Database drivers.
const (
	DriverRedis    = "redis"
	DriverValkey   = "valkey"
	DriverBolt     = "bolt"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds the dishrec service configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Synthesis SynthesisConfig `yaml:"synthesis"`
	Recommend RecommendConfig `yaml:"recommend"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig selects and configures the vector store.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // redis, valkey, bolt, postgres, memory (default: redis)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	KeyPrefix        string   `yaml:"key_prefix"`
	HNSWM            int      `yaml:"hnsw_m"` // 0 = FLAT index
	HNSWEFConstruct  int      `yaml:"hnsw_ef_construction"`
	BoltPath         string   `yaml:"bolt_path"`
	PostgresDSN      string   `yaml:"postgres_dsn"`
	Metric           string   `yaml:"metric"` // l2 (default), cosine
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	Cache      bool   `yaml:"cache"`
}

// SynthesisConfig selects how dish attributes become document text.
type SynthesisConfig struct {
	Strategy       string   `yaml:"strategy"` // attributes (default), chat
	Fields         []string `yaml:"fields"`
	Model          string   `yaml:"model"`
	Temperature    float32  `yaml:"temperature"`
	MaxTokens      int      `yaml:"max_tokens"`
	PromptTemplate string   `yaml:"prompt_template"`
}

// RecommendConfig tunes the composite-embedding recommender.
type RecommendConfig struct {
	Catalog        string `yaml:"catalog"`
	Pool           string `yaml:"pool"`
	KeyField       string `yaml:"key_field"`
	DefaultK       int    `yaml:"default_k"`
	MaxK           int    `yaml:"max_k"`
	Resolution     string `yaml:"resolution_policy"`    // strict (default), skip
	EmptyHistory   string `yaml:"empty_history_policy"` // reject (default), zero
	MaxConcurrency int    `yaml:"max_concurrency"`
}

// IngestConfig tunes the document builder.
type IngestConfig struct {
	Enabled      bool     `yaml:"enabled"`
	DedupKey     string   `yaml:"dedup_key"`
	DedupPolicy  string   `yaml:"dedup_policy"` // keep_first (default), keep_last
	IDPrefix     string   `yaml:"id_prefix"`
	FieldMap     []string `yaml:"field_map"` // "source_column:metadata_key"
	MaxBatchSize int      `yaml:"max_batch_size"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse expands env variables in data, decodes it, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 60
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverRedis
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Database.KeyPrefix == "" {
		c.Database.KeyPrefix = "dishrec:"
	}
	if c.Database.Metric == "" {
		c.Database.Metric = "l2"
	}
	if c.Database.BoltPath == "" {
		c.Database.BoltPath = "data/dishrec.db"
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 1536
	}
	if c.Synthesis.Strategy == "" {
		c.Synthesis.Strategy = "attributes"
	}
	if c.Synthesis.Model == "" {
		c.Synthesis.Model = "gpt-3.5-turbo"
	}
	if c.Synthesis.MaxTokens <= 0 {
		c.Synthesis.MaxTokens = 4096
	}
	if c.Recommend.Catalog == "" {
		c.Recommend.Catalog = "restaurant_ratings_enhanced"
	}
	if c.Recommend.Pool == "" {
		c.Recommend.Pool = "cold_start_restaurant_ratings"
	}
	if c.Recommend.KeyField == "" {
		c.Recommend.KeyField = "dish_name"
	}
	if c.Recommend.DefaultK <= 0 {
		c.Recommend.DefaultK = 5
	}
	if c.Recommend.MaxK <= 0 {
		c.Recommend.MaxK = 100
	}
	if c.Recommend.Resolution == "" {
		c.Recommend.Resolution = "strict"
	}
	if c.Recommend.EmptyHistory == "" {
		c.Recommend.EmptyHistory = "reject"
	}
	if c.Recommend.MaxConcurrency <= 0 {
		c.Recommend.MaxConcurrency = 8
	}
	if c.Ingest.DedupKey == "" {
		c.Ingest.DedupKey = "dish_name"
	}
	if c.Ingest.DedupPolicy == "" {
		c.Ingest.DedupPolicy = "keep_first"
	}
	if c.Ingest.IDPrefix == "" {
		c.Ingest.IDPrefix = "dish"
	}
	if c.Ingest.MaxBatchSize <= 0 {
		c.Ingest.MaxBatchSize = 1000
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Database.Driver {
	case DriverRedis, DriverValkey:
		if len(c.Database.Addrs) == 0 {
			return fmt.Errorf("database.addrs is required for driver %q", c.Database.Driver)
		}
	case DriverPostgres:
		if c.Database.PostgresDSN == "" {
			return fmt.Errorf("database.postgres_dsn is required for driver %q", c.Database.Driver)
		}
	case DriverBolt, DriverMemory:
	default:
		return fmt.Errorf("database.driver must be one of redis, valkey, bolt, postgres, memory, got %q",
			c.Database.Driver)
	}
	if err := oneOf("database.metric", c.Database.Metric, "l2", "cosine"); err != nil {
		return err
	}
	if err := oneOf("synthesis.strategy", c.Synthesis.Strategy, "attributes", "chat"); err != nil {
		return err
	}
	if err := oneOf("recommend.resolution_policy", c.Recommend.Resolution, "strict", "skip"); err != nil {
		return err
	}
	if err := oneOf("recommend.empty_history_policy", c.Recommend.EmptyHistory, "reject", "zero"); err != nil {
		return err
	}
	if err := oneOf("ingest.dedup_policy", c.Ingest.DedupPolicy, "keep_first", "keep_last"); err != nil {
		return err
	}
	if c.Recommend.DefaultK > c.Recommend.MaxK {
		return fmt.Errorf("recommend.default_k (%d) must not exceed recommend.max_k (%d)",
			c.Recommend.DefaultK, c.Recommend.MaxK)
	}
	if c.Synthesis.Temperature < 0 || c.Synthesis.Temperature > 2 {
		return fmt.Errorf("synthesis.temperature must be between 0 and 2, got %v", c.Synthesis.Temperature)
	}
	if c.Ingest.Enabled && c.Embedding.APIKey == "" {
		return fmt.Errorf("embedding.api_key is required when ingest is enabled")
	}
	// Only field_map targets are indexed as TAG fields, so history lookups can use nothing else.
	targets := c.Ingest.metadataKeys()
	if !slices.Contains(targets, c.Recommend.KeyField) {
		return fmt.Errorf("recommend.key_field %q must be one of the ingest.field_map targets %s",
			c.Recommend.KeyField, strings.Join(targets, ", "))
	}
	return nil
}

// defaultMetadataKeys are the field_map targets used when ingest.field_map is empty.
var defaultMetadataKeys = []string{"dish_name", "dish_desc", "cuisine_type", "dietary_tags"}

// metadataKeys returns the target side of every field_map pair. A bare column maps onto itself.
func (c IngestConfig) metadataKeys() []string {
	if len(c.FieldMap) == 0 {
		return defaultMetadataKeys
	}
	keys := make([]string, 0, len(c.FieldMap))
	for _, p := range c.FieldMap {
		src, dst, ok := strings.Cut(strings.TrimSpace(p), ":")
		if !ok {
			dst = src
		}
		keys = append(keys, dst)
	}
	return keys
}

func oneOf(name, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", name, strings.Join(allowed, ", "), value)
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
