// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Catalog, Index, Understanding, Strategies, Fusion, Cache,
// Redis, Kafka, Postgres, Analytics, Logging, Metrics).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Catalog       CatalogConfig       `yaml:"catalog"`
	Index         IndexConfig         `yaml:"index"`
	Understanding UnderstandingConfig `yaml:"understanding"`
	Strategies    StrategiesConfig    `yaml:"strategies"`
	Fusion        FusionConfig        `yaml:"fusion"`
	Search        SearchConfig        `yaml:"search"`
	Cache         CacheConfig         `yaml:"cache"`
	Redis         RedisConfig         `yaml:"redis"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	Postgres      PostgresConfig      `yaml:"postgres"`
	Analytics     AnalyticsConfig     `yaml:"analytics"`
	Logging       LoggingConfig       `yaml:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// CatalogConfig selects where item records are loaded from. Source is
// "file" (a JSON array of flat records) or "postgres".
type CatalogConfig struct {
	Source string `yaml:"source"`
	Path   string `yaml:"path"`
	Table  string `yaml:"table"`
}

// IndexConfig controls tokenization and the parallelism of index builds.
type IndexConfig struct {
	StopWords        bool `yaml:"stopWords"`
	Stemming         bool `yaml:"stemming"`
	BuildConcurrency int  `yaml:"buildConcurrency"`
}

// UnderstandingConfig toggles and tunes the query understanding stages.
type UnderstandingConfig struct {
	SpellCorrection      bool    `yaml:"spellCorrection"`
	SynonymExpansion     bool    `yaml:"synonymExpansion"`
	IntentDetection      bool    `yaml:"intentDetection"`
	MaxEditDistance      int     `yaml:"maxEditDistance"`
	MinCorpusFrequency   int     `yaml:"minCorpusFrequency"`
	MinTokenLength       int     `yaml:"minTokenLength"`
	MaxExpansionsPerTerm int     `yaml:"maxExpansionsPerTerm"`
	ExpansionWeight      float64 `yaml:"expansionWeight"`
}

// StrategiesConfig holds per-strategy weights and the classic tunables.
type StrategiesConfig struct {
	Default        []string           `yaml:"default"`
	Weights        map[string]float64 `yaml:"weights"`
	BM25K1         float64            `yaml:"bm25K1"`
	BM25B          float64            `yaml:"bm25B"`
	JaccardFloor   float64            `yaml:"jaccardFloor"`
	JaccardCeiling int                `yaml:"jaccardCeiling"`
	PoolSize       int                `yaml:"poolSize"`
}

// FusionConfig controls the secondary ranking factors and the diversity pass.
type FusionConfig struct {
	AuthorityWeight float64 `yaml:"authorityWeight"`
	FreshnessWeight float64 `yaml:"freshnessWeight"`
	IntentWeight    float64 `yaml:"intentWeight"`
	DiversityWindow int     `yaml:"diversityWindow"`
	DiversityCap    int     `yaml:"diversityCap"`
}

// SearchConfig controls request validation and pagination limits.
type SearchConfig struct {
	MaxQueryLength  int `yaml:"maxQueryLength"`
	DefaultPageSize int `yaml:"defaultPageSize"`
	MaxPageSize     int `yaml:"maxPageSize"`
}

// CacheConfig controls the in-process result cache and its optional Redis tier.
type CacheConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Capacity    int           `yaml:"capacity"`
	TTL         time.Duration `yaml:"ttl"`
	RedisTier   bool          `yaml:"redisTier"`
	WarmQueries []string      `yaml:"warmQueries"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	AnalyticsEvents string `yaml:"analyticsEvents"`
	CatalogReload   string `yaml:"catalogReload"`
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

// AnalyticsConfig controls the outbound query-performance event pipeline.
type AnalyticsConfig struct {
	BufferSize       int           `yaml:"bufferSize"`
	BatchSize        int           `yaml:"batchSize"`
	FlushInterval    time.Duration `yaml:"flushInterval"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
	Port             int           `yaml:"port"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled   bool `yaml:"enabled"`
	Port      int  `yaml:"port"`
	Profiling bool `yaml:"profiling"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
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
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config with defaults suitable for local development.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Catalog: CatalogConfig{
			Source: "file",
			Path:   "data/catalog.json",
			Table:  "catalog_items",
		},
		Index: IndexConfig{
			BuildConcurrency: 8,
		},
		Understanding: UnderstandingConfig{
			SpellCorrection:      true,
			SynonymExpansion:     true,
			IntentDetection:      true,
			MaxEditDistance:      2,
			MinCorpusFrequency:   1,
			MinTokenLength:       3,
			MaxExpansionsPerTerm: 2,
			ExpansionWeight:      0.7,
		},
		Strategies: StrategiesConfig{
			Default: []string{"lexical", "tfidf", "bm25", "jaccard"},
			Weights: map[string]float64{
				"lexical": 0.3,
				"tfidf":   0.2,
				"bm25":    0.3,
				"jaccard": 0.2,
			},
			BM25K1:         1.2,
			BM25B:          0.75,
			JaccardFloor:   0.1,
			JaccardCeiling: 1000,
			PoolSize:       64,
		},
		Fusion: FusionConfig{
			AuthorityWeight: 0.1,
			FreshnessWeight: 0.05,
			IntentWeight:    1.0,
			DiversityWindow: 10,
			DiversityCap:    3,
		},
		Search: SearchConfig{
			MaxQueryLength:  500,
			DefaultPageSize: 10,
			MaxPageSize:     100,
		},
		Cache: CacheConfig{
			Enabled:  true,
			Capacity: 1000,
			TTL:      30 * time.Minute,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 30 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "catalog-search-group",
			Topics: KafkaTopics{
				AnalyticsEvents: "search-analytics",
				CatalogReload:   "catalog-reload",
			},
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "catalogsearch",
			User:            "catalogsearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Analytics: AnalyticsConfig{
			BufferSize:       10000,
			BatchSize:        100,
			FlushInterval:    5 * time.Second,
			SnapshotInterval: time.Minute,
			Port:             8083,
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

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Catalog.Source {
	case "file", "postgres":
	default:
		return fmt.Errorf("catalog.source must be \"file\" or \"postgres\", got %q", c.Catalog.Source)
	}
	if c.Strategies.BM25K1 < 0 {
		return fmt.Errorf("strategies.bm25K1 must be non-negative, got %v", c.Strategies.BM25K1)
	}
	if c.Strategies.BM25B < 0 || c.Strategies.BM25B > 1 {
		return fmt.Errorf("strategies.bm25B must be within [0,1], got %v", c.Strategies.BM25B)
	}
	if c.Strategies.JaccardCeiling <= 0 {
		return fmt.Errorf("strategies.jaccardCeiling must be positive, got %d", c.Strategies.JaccardCeiling)
	}
	for name, w := range c.Strategies.Weights {
		if w < 0 {
			return fmt.Errorf("strategies.weights.%s must be non-negative, got %v", name, w)
		}
	}
	if c.Understanding.ExpansionWeight < 0 || c.Understanding.ExpansionWeight > 1 {
		return fmt.Errorf("understanding.expansionWeight must be within [0,1], got %v", c.Understanding.ExpansionWeight)
	}
	if c.Cache.Enabled && c.Cache.Capacity <= 0 {
		return fmt.Errorf("cache.capacity must be positive, got %d", c.Cache.Capacity)
	}
	if c.Search.DefaultPageSize <= 0 || c.Search.MaxPageSize < c.Search.DefaultPageSize {
		return fmt.Errorf("search page sizes invalid: default=%d max=%d", c.Search.DefaultPageSize, c.Search.MaxPageSize)
	}
	if c.Search.MaxQueryLength <= 0 {
		return fmt.Errorf("search.maxQueryLength must be positive, got %d", c.Search.MaxQueryLength)
	}
	return nil
}

// applyEnvOverrides reads CS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("CS_CATALOG_SOURCE"); v != "" {
		cfg.Catalog.Source = v
	}
	if v := os.Getenv("CS_CATALOG_PATH"); v != "" {
		cfg.Catalog.Path = v
	}
	if v := os.Getenv("CS_CACHE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cache.Capacity = n
		}
	}
	if v := os.Getenv("CS_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.TTL = d
		}
	}
	if v := os.Getenv("CS_BM25_K1"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Strategies.BM25K1 = f
		}
	}
	if v := os.Getenv("CS_BM25_B"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Strategies.BM25B = f
		}
	}
	if v := os.Getenv("CS_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("CS_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("CS_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("CS_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("CS_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("CS_KAFKA_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Kafka.Enabled = b
		}
	}
	if v := os.Getenv("CS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("CS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("CS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("CS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
