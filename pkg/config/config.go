// Package config loads the carsearch configuration: YAML over built-in
// defaults, then CARSEARCH_* environment overrides, then validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      RedisConfig      `yaml:"redis"`
	Indexer    IndexerConfig    `yaml:"indexer"`
	Normalizer NormalizerConfig `yaml:"normalizer"`
	Search     SearchConfig     `yaml:"search"`
	Cache      CacheConfig      `yaml:"cache"`
	Analytics  AnalyticsConfig  `yaml:"analytics"`
	Logging    LoggingConfig    `yaml:"logging"`
	Tracing    TracingConfig    `yaml:"tracing"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// RateLimit is the per-client request budget per minute; 0 disables it.
	RateLimit int `yaml:"rateLimit"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	ListingIngest   string `yaml:"listingIngest"`
	IndexComplete   string `yaml:"indexComplete"`
	AnalyticsEvents string `yaml:"analyticsEvents"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// IndexerConfig controls where records come from, which attributes become
// document text, and how snapshots are persisted and refreshed.
type IndexerConfig struct {
	DataDir         string        `yaml:"dataDir"`
	SnapshotFile    string        `yaml:"snapshotFile"`
	Codec           string        `yaml:"codec"`
	Compression     string        `yaml:"compression"`
	RebuildInterval time.Duration `yaml:"rebuildInterval"`
	LoadTimeout     time.Duration `yaml:"loadTimeout"`
	Source          SourceConfig  `yaml:"source"`
	Fields          []string      `yaml:"fields"`
}

// SnapshotPath joins DataDir and SnapshotFile.
func (c IndexerConfig) SnapshotPath() string {
	if c.DataDir == "" {
		return c.SnapshotFile
	}
	return strings.TrimRight(c.DataDir, "/") + "/" + c.SnapshotFile
}

// SourceConfig selects the raw record stream: a scraped JSON file or the
// PostgreSQL listing store.
type SourceConfig struct {
	Type string `yaml:"type"`
	Path string `yaml:"path"`
}

// NormalizerConfig controls the shared text normalization pipeline.
type NormalizerConfig struct {
	KeepDigits bool   `yaml:"keepDigits"`
	Stemmer    string `yaml:"stemmer"`
}

// SearchConfig controls ranking parameters and query limits.
type SearchConfig struct {
	MaxResults   int           `yaml:"maxResults"`
	DefaultLimit int           `yaml:"defaultLimit"`
	K1           float64       `yaml:"k1"`
	B            float64       `yaml:"b"`
	QueryTimeout time.Duration `yaml:"queryTimeout"`
	Rerank       RerankConfig  `yaml:"rerank"`
}

// RerankConfig controls the optional model-year penalty stage.
type RerankConfig struct {
	Enabled bool    `yaml:"enabled"`
	Field   string  `yaml:"field"`
	Weight  float64 `yaml:"weight"`
}

// CacheConfig controls the in-process tier of the query cache.
type CacheConfig struct {
	LocalSize int `yaml:"localSize"`
}

// AnalyticsConfig controls event batching on the producing services and
// the aggregator the searcher runs, including how long persisted
// snapshots are kept.
type AnalyticsConfig struct {
	BatchSize       int           `yaml:"batchSize"`
	FlushInterval   time.Duration `yaml:"flushInterval"`
	QueryCapacity   int           `yaml:"queryCapacity"`
	LatencyWindow   int           `yaml:"latencyWindow"`
	TopN            int           `yaml:"topN"`
	PersistInterval time.Duration `yaml:"persistInterval"`
	Retention       time.Duration `yaml:"retention"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls whether rebuild spans are logged.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) over Default and applies
// CARSEARCH_* environment overrides before validating the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config with defaults for local development.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateLimit:       600,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "carsearch",
			User:            "carsearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "carsearch-group",
			Topics: KafkaTopics{
				ListingIngest:   "listing-ingest",
				IndexComplete:   "index-complete",
				AnalyticsEvents: "analytics-events",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Indexer: IndexerConfig{
			DataDir:         "data",
			SnapshotFile:    "listings.csix",
			Codec:           "json",
			Compression:     "zstd",
			RebuildInterval: 30 * time.Second,
			LoadTimeout:     2 * time.Minute,
			Source: SourceConfig{
				Type: "json",
				Path: "data/anuncios.json",
			},
			Fields: []string{"marca", "modelo", "ano", "preco", "cambio", "quilometragem", "cor"},
		},
		Normalizer: NormalizerConfig{
			KeepDigits: false,
			Stemmer:    "suffix",
		},
		Search: SearchConfig{
			MaxResults:   100,
			DefaultLimit: 10,
			K1:           1.5,
			B:            0.75,
			QueryTimeout: 2 * time.Second,
			Rerank: RerankConfig{
				Enabled: false,
				Field:   "ano",
				Weight:  0.05,
			},
		},
		Cache: CacheConfig{
			LocalSize: 1024,
		},
		Analytics: AnalyticsConfig{
			BatchSize:       100,
			FlushInterval:   2 * time.Second,
			QueryCapacity:   10000,
			LatencyWindow:   10000,
			TopN:            10,
			PersistInterval: time.Minute,
			Retention:       7 * 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// Validate rejects configurations the search core cannot run with and
// reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	check(c.Search.DefaultLimit >= 1, "search.defaultLimit must be at least 1, got %d", c.Search.DefaultLimit)
	check(c.Search.MaxResults >= c.Search.DefaultLimit,
		"search.maxResults (%d) must be >= search.defaultLimit (%d)", c.Search.MaxResults, c.Search.DefaultLimit)
	check(c.Search.K1 >= 0, "search.k1 must be non-negative, got %v", c.Search.K1)
	check(c.Search.B >= 0 && c.Search.B <= 1, "search.b must be within [0,1], got %v", c.Search.B)
	check(len(c.Indexer.Fields) > 0, "indexer.fields must name at least one attribute")
	check(c.Indexer.Source.Type == "json" || c.Indexer.Source.Type == "postgres",
		"indexer.source.type must be json or postgres, got %q", c.Indexer.Source.Type)
	check(c.Server.RateLimit >= 0, "server.rateLimit must be non-negative, got %d", c.Server.RateLimit)
	return errors.Join(errs...)
}

// envBinding maps one CARSEARCH_* variable onto a config field.
type envBinding struct {
	name string
	set  func(cfg *Config, v string) error
}

func str(field func(*Config) *string) func(*Config, string) error {
	return func(cfg *Config, v string) error { *field(cfg) = v; return nil }
}

func parsed[T any](parse func(string) (T, error), field func(*Config) *T) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		x, err := parse(v)
		if err != nil {
			return err
		}
		*field(cfg) = x
		return nil
	}
}

func parseFloat(v string) (float64, error) { return strconv.ParseFloat(v, 64) }

var envBindings = []envBinding{
	{"CARSEARCH_SERVER_PORT", parsed(strconv.Atoi, func(c *Config) *int { return &c.Server.Port })},
	{"CARSEARCH_SERVER_RATE_LIMIT", parsed(strconv.Atoi, func(c *Config) *int { return &c.Server.RateLimit })},
	{"CARSEARCH_POSTGRES_HOST", str(func(c *Config) *string { return &c.Postgres.Host })},
	{"CARSEARCH_POSTGRES_PORT", parsed(strconv.Atoi, func(c *Config) *int { return &c.Postgres.Port })},
	{"CARSEARCH_POSTGRES_DATABASE", str(func(c *Config) *string { return &c.Postgres.Database })},
	{"CARSEARCH_POSTGRES_USER", str(func(c *Config) *string { return &c.Postgres.User })},
	{"CARSEARCH_POSTGRES_PASSWORD", str(func(c *Config) *string { return &c.Postgres.Password })},
	{"CARSEARCH_POSTGRES_SSLMODE", str(func(c *Config) *string { return &c.Postgres.SSLMode })},
	{"CARSEARCH_KAFKA_BROKERS", func(c *Config, v string) error { c.Kafka.Brokers = strings.Split(v, ","); return nil }},
	{"CARSEARCH_REDIS_ADDR", str(func(c *Config) *string { return &c.Redis.Addr })},
	{"CARSEARCH_REDIS_PASSWORD", str(func(c *Config) *string { return &c.Redis.Password })},
	{"CARSEARCH_INDEXER_DATA_DIR", str(func(c *Config) *string { return &c.Indexer.DataDir })},
	{"CARSEARCH_INDEXER_SOURCE_TYPE", str(func(c *Config) *string { return &c.Indexer.Source.Type })},
	{"CARSEARCH_INDEXER_SOURCE_PATH", str(func(c *Config) *string { return &c.Indexer.Source.Path })},
	{"CARSEARCH_NORMALIZER_KEEP_DIGITS", parsed(strconv.ParseBool, func(c *Config) *bool { return &c.Normalizer.KeepDigits })},
	{"CARSEARCH_NORMALIZER_STEMMER", str(func(c *Config) *string { return &c.Normalizer.Stemmer })},
	{"CARSEARCH_SEARCH_K1", parsed(parseFloat, func(c *Config) *float64 { return &c.Search.K1 })},
	{"CARSEARCH_SEARCH_B", parsed(parseFloat, func(c *Config) *float64 { return &c.Search.B })},
	{"CARSEARCH_ANALYTICS_PERSIST_INTERVAL", parsed(time.ParseDuration, func(c *Config) *time.Duration { return &c.Analytics.PersistInterval })},
	{"CARSEARCH_LOGGING_LEVEL", str(func(c *Config) *string { return &c.Logging.Level })},
	{"CARSEARCH_LOGGING_FORMAT", str(func(c *Config) *string { return &c.Logging.Format })},
}

// applyEnvOverrides sets every field whose variable is non-empty. A value
// that does not parse is an error rather than a silent fallback.
func applyEnvOverrides(cfg *Config) error {
	var errs []error
	for _, b := range envBindings {
		v := os.Getenv(b.name)
		if v == "" {
			continue
		}
		if err := b.set(cfg, v); err != nil {
			errs = append(errs, fmt.Errorf("%s=%q: %w", b.name, v, err))
		}
	}
	return errors.Join(errs...)
}
