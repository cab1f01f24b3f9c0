// Package config loads and validates configuration from YAML files with
// environment-variable overrides. It provides typed structs for the target
// endpoint, the ingestion run, queries, and the optional Redis, Postgres and
// Kafka integrations.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/errors"
)

// Config is the top-level configuration.
type Config struct {
	Target   TargetConfig   `yaml:"target"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Query    QueryConfig    `yaml:"query"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// TargetConfig locates the remote index.
type TargetConfig struct {
	BaseURL            string        `yaml:"baseUrl"`
	Protocol           string        `yaml:"protocol"`
	InsecureSkipVerify bool          `yaml:"insecureSkipVerify"`
	RequestTimeout     time.Duration `yaml:"requestTimeout"`
}

// IngestConfig controls one upload run.
type IngestConfig struct {
	Total               int           `yaml:"total"`
	BatchSize           int           `yaml:"batchSize"`
	Workers             int           `yaml:"workers"`
	Seed                int64         `yaml:"seed"`
	YearMin             int           `yaml:"yearMin"`
	YearMax             int           `yaml:"yearMax"`
	AutoIDs             bool          `yaml:"autoIds"`
	Schema              string        `yaml:"schema"`
	MaxRetries          int           `yaml:"maxRetries"`
	RetryBackoff        time.Duration `yaml:"retryBackoff"`
	RetryStrategy       string        `yaml:"retryStrategy"`
	ChannelCapacity     int           `yaml:"channelCapacity"`
	ReportEvery         int           `yaml:"reportEvery"`
	MaxRecordsPerSecond float64       `yaml:"maxRecordsPerSecond"`
	VocabularyFile      string        `yaml:"vocabularyFile"`
	CapturePath         string        `yaml:"capturePath"`
	CaptureCompression  string        `yaml:"captureCompression"`
}

// QueryConfig controls /search requests.
type QueryConfig struct {
	K            int           `yaml:"k"`
	Fuzzy        bool          `yaml:"fuzzy"`
	WithMeta     bool          `yaml:"withMeta"`
	Width        int           `yaml:"width"`
	DisplayLimit int           `yaml:"displayLimit"`
	Timeout      time.Duration `yaml:"timeout"`
}

// PostgresConfig holds PostgreSQL connection parameters for the run-summary
// store.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
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

// KafkaConfig holds broker and topic settings for run-summary events.
type KafkaConfig struct {
	Enabled bool        `yaml:"enabled"`
	Brokers []string    `yaml:"brokers"`
	Topics  KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to Kafka topic strings.
type KafkaTopics struct {
	RunSummaries string `yaml:"runSummaries"`
}

// RedisConfig holds Redis connection and query-cache parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. Missing values keep their defaults. Load does not validate;
// callers apply flag overrides first and then call Validate.
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
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Target: TargetConfig{
			BaseURL:        "http://127.0.0.1:8080",
			Protocol:       "h1",
			RequestTimeout: 30 * time.Second,
		},
		Ingest: IngestConfig{
			Total:              2_000_000,
			BatchSize:          5000,
			Workers:            2,
			Seed:               1337,
			YearMin:            1960,
			YearMax:            2025,
			Schema:             "bin",
			MaxRetries:         5,
			RetryBackoff:       500 * time.Millisecond,
			RetryStrategy:      "linear",
			ChannelCapacity:    32,
			ReportEvery:        10,
			CaptureCompression: "none",
		},
		Query: QueryConfig{
			K:            5,
			Width:        256,
			DisplayLimit: 10,
			Timeout:      10 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "strobe",
			User:            "strobe",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topics: KafkaTopics{
				RunSummaries: "strobe.run-summaries",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Port: 9090,
		},
	}
}

// Validate checks cross-field constraints and reports the first violation as
// ErrInvalidConfig.
func (c *Config) Validate() error {
	in := c.Ingest
	switch {
	case c.Target.BaseURL == "" && in.CapturePath == "":
		return apperrors.Invalidf("target.baseUrl is required")
	case in.Total < 0:
		return apperrors.Invalidf("ingest.total must be >= 0, got %d", in.Total)
	case !in.AutoIDs && int64(in.Total) >= 0xFFFFFFFF:
		return apperrors.Invalidf("ingest.total %d would reach the auto-id sentinel", in.Total)
	case in.BatchSize < 1:
		return apperrors.Invalidf("ingest.batchSize must be >= 1, got %d", in.BatchSize)
	case in.Workers < 1:
		return apperrors.Invalidf("ingest.workers must be >= 1, got %d", in.Workers)
	case in.ChannelCapacity < 1:
		return apperrors.Invalidf("ingest.channelCapacity must be >= 1, got %d", in.ChannelCapacity)
	case in.MaxRetries < 0:
		return apperrors.Invalidf("ingest.maxRetries must be >= 0, got %d", in.MaxRetries)
	case in.YearMin > in.YearMax:
		return apperrors.Invalidf("ingest.yearMin %d is after yearMax %d", in.YearMin, in.YearMax)
	case in.Schema != "bin" && in.Schema != "pack":
		return apperrors.Invalidf("ingest.schema must be bin or pack, got %q", in.Schema)
	case in.RetryStrategy != "linear" && in.RetryStrategy != "exponential":
		return apperrors.Invalidf("ingest.retryStrategy must be linear or exponential, got %q", in.RetryStrategy)
	case in.MaxRecordsPerSecond < 0:
		return apperrors.Invalidf("ingest.maxRecordsPerSecond must be >= 0")
	case c.Query.Width != 256 && c.Query.Width != 4096:
		return apperrors.Invalidf("query.width must be 256 or 4096, got %d", c.Query.Width)
	case c.Query.K < 1 || c.Query.K > 0xFFFF:
		return apperrors.Invalidf("query.k must be in [1, 65535], got %d", c.Query.K)
	}
	switch c.Target.Protocol {
	case "h1", "h2", "h2c":
	default:
		return apperrors.Invalidf("target.protocol must be h1, h2 or h2c, got %q", c.Target.Protocol)
	}
	switch c.Ingest.CaptureCompression {
	case "", "none", "lz4", "zstd":
	default:
		return apperrors.Invalidf("ingest.captureCompression must be none, lz4 or zstd, got %q", c.Ingest.CaptureCompression)
	}
	return nil
}

// applyEnvOverrides reads STROBE_* environment variables and overrides the
// corresponding config fields. Unparseable numbers are ignored.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("STROBE_TARGET_BASE_URL"); v != "" {
		cfg.Target.BaseURL = v
	}
	if v := os.Getenv("STROBE_TARGET_PROTOCOL"); v != "" {
		cfg.Target.Protocol = v
	}
	if v := os.Getenv("STROBE_TARGET_INSECURE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Target.InsecureSkipVerify = b
		}
	}
	if v := os.Getenv("STROBE_INGEST_TOTAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ingest.Total = n
		}
	}
	if v := os.Getenv("STROBE_INGEST_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ingest.BatchSize = n
		}
	}
	if v := os.Getenv("STROBE_INGEST_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ingest.Workers = n
		}
	}
	if v := os.Getenv("STROBE_INGEST_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Ingest.Seed = n
		}
	}
	if v := os.Getenv("STROBE_INGEST_SCHEMA"); v != "" {
		cfg.Ingest.Schema = v
	}
	if v := os.Getenv("STROBE_INGEST_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ingest.MaxRetries = n
		}
	}
	if v := os.Getenv("STROBE_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("STROBE_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("STROBE_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("STROBE_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("STROBE_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("STROBE_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("STROBE_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("STROBE_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("STROBE_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("STROBE_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("STROBE_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("STROBE_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}
