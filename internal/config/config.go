package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Distributor   DistributorConfig   `yaml:"distributor"`
	Cache         CacheConfig         `yaml:"cache"`
	Redis         RedisConfig         `yaml:"redis"`
	ClickHouse    ClickHouseConfig    `yaml:"clickhouse"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	Search        SearchConfig        `yaml:"search"`
	Mirror        MirrorConfig        `yaml:"mirror"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxConcurrent   int           `yaml:"max_concurrent"`
}

type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
}

type DistributorConfig struct {
	BaseURL        string               `yaml:"base_url"`
	TokenURL       string               `yaml:"token_url"`
	ClientID       string               `yaml:"client_id"`
	ClientSecret   string               `yaml:"client_secret"`
	CustomerNumber string               `yaml:"customer_number"`
	CountryCode    string               `yaml:"country_code"`
	SenderID       string               `yaml:"sender_id"`
	RequestTimeout time.Duration        `yaml:"request_timeout"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

type CacheConfig struct {
	Backend string        `yaml:"backend"`
	TTL     time.Duration `yaml:"ttl"`
}

type RedisConfig struct {
	Addresses    []string      `yaml:"addresses"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	KeyPrefix    string        `yaml:"key_prefix"`
}

type ClickHouseConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addresses    []string      `yaml:"addresses"`
	Database     string        `yaml:"database"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	QueryTimeout time.Duration `yaml:"query_timeout"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	MaxIdleConns int           `yaml:"max_idle_conns"`
}

type KafkaConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Brokers       []string      `yaml:"brokers"`
	TopicChanges  string        `yaml:"topic_changes"`
	TopicDLQ      string        `yaml:"topic_dlq"`
	ConsumerGroup string        `yaml:"consumer_group"`
	BatchSize     int           `yaml:"batch_size"`
	BatchTimeout  time.Duration `yaml:"batch_timeout"`
	MaxRetries    int           `yaml:"max_retries"`
	Retry         RetryConfig   `yaml:"retry"`
}

type SearchConfig struct {
	DefaultPageSize         int             `yaml:"default_page_size"`
	MaxPageSize             int             `yaml:"max_page_size"`
	MaxTotalResults         int             `yaml:"max_total_results"`
	LocalMinResults         int             `yaml:"local_min_results"`
	MinQueryLengthLocal     int             `yaml:"min_query_length_local"`
	KeywordPageSize         int             `yaml:"keyword_page_size"`
	KeywordFetchConcurrency int             `yaml:"keyword_fetch_concurrency"`
	MaxSearchTerms          int             `yaml:"max_search_terms"`
	ExpansionTopN           int             `yaml:"expansion_top_n"`
	SuggestionTopN          int             `yaml:"suggestion_top_n"`
	SuggestionLimit         int             `yaml:"suggestion_limit"`
	HistorySize             int             `yaml:"history_size"`
	Relevance               RelevanceConfig `yaml:"relevance"`
	SKU                     SKUConfig       `yaml:"sku"`
	SlowQuery               SlowQueryConfig `yaml:"slow_query"`
}

type RelevanceConfig struct {
	Weights      FieldWeights `yaml:"weights"`
	TokenBonus   int          `yaml:"token_bonus"`
	MinScore     int          `yaml:"min_score"`
	GateMinScore int          `yaml:"gate_min_score"`
}

type FieldWeights struct {
	Description      int `yaml:"description"`
	VendorName       int `yaml:"vendor_name"`
	PartNumber       int `yaml:"part_number"`
	VendorPartNumber int `yaml:"vendor_part_number"`
	Category         int `yaml:"category"`
	Subcategory      int `yaml:"subcategory"`
}

type SKUConfig struct {
	MinLength    int  `yaml:"min_length"`
	MaxVariants  int  `yaml:"max_variants"`
	RequireDigit bool `yaml:"require_digit"`
}

type CircuitBreakerConfig struct {
	MaxRequests      uint32        `yaml:"max_requests"`
	Interval         time.Duration `yaml:"interval"`
	Timeout          time.Duration `yaml:"timeout"`
	FailureThreshold uint32        `yaml:"failure_threshold"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	InitialWait time.Duration `yaml:"initial_wait"`
	MaxWait     time.Duration `yaml:"max_wait"`
	Multiplier  float64       `yaml:"multiplier"`
}

type SlowQueryConfig struct {
	WarningThreshold  time.Duration `yaml:"warning_threshold"`
	CriticalThreshold time.Duration `yaml:"critical_threshold"`
}

type MirrorConfig struct {
	BulkSize      int           `yaml:"bulk_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

type ObservabilityConfig struct {
	LogLevel          string  `yaml:"log_level"`
	ServiceName       string  `yaml:"service_name"`
	TracingSampleRate float64 `yaml:"tracing_sample_rate"`
}

// LoadEnv reads a dotenv file into the process environment. A missing file
// is not an error.
func LoadEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	return nil
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	data = []byte(os.ExpandEnv(string(data)))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxConcurrent:   500,
		},
		Database: DatabaseConfig{
			Driver:          "sqlite",
			DSN:             "file:catalog.db?_pragma=busy_timeout(5000)",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			QueryTimeout:    2 * time.Second,
		},
		Distributor: DistributorConfig{
			BaseURL:        "https://api.ingrammicro.com:443",
			TokenURL:       "https://api.ingrammicro.com:443/oauth/oauth30/token",
			CountryCode:    "MX",
			SenderID:       "catalog-search",
			RequestTimeout: 10 * time.Second,
			CircuitBreaker: CircuitBreakerConfig{
				MaxRequests:      5,
				Interval:         60 * time.Second,
				Timeout:          30 * time.Second,
				FailureThreshold: 5,
			},
		},
		Cache: CacheConfig{
			Backend: "memory",
			TTL:     24 * time.Hour,
		},
		Redis: RedisConfig{
			Addresses:    []string{"localhost:6379"},
			PoolSize:     50,
			MinIdleConns: 5,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  1 * time.Second,
			WriteTimeout: 1 * time.Second,
			KeyPrefix:    "catalog:",
		},
		ClickHouse: ClickHouseConfig{
			Addresses:    []string{"localhost:9000"},
			Database:     "search_analytics",
			DialTimeout:  5 * time.Second,
			QueryTimeout: 2 * time.Second,
			MaxOpenConns: 10,
			MaxIdleConns: 5,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			TopicChanges:  "catalog.changes",
			TopicDLQ:      "catalog.changes.dlq",
			ConsumerGroup: "catalog-mirror",
			BatchSize:     500,
			BatchTimeout:  1 * time.Second,
			MaxRetries:    3,
			Retry: RetryConfig{
				MaxAttempts: 3,
				InitialWait: 100 * time.Millisecond,
				MaxWait:     2 * time.Second,
				Multiplier:  2.0,
			},
		},
		Search: SearchConfig{
			DefaultPageSize:         20,
			MaxPageSize:             100,
			MaxTotalResults:         10000,
			LocalMinResults:         1,
			MinQueryLengthLocal:     3,
			KeywordPageSize:         50,
			KeywordFetchConcurrency: 3,
			MaxSearchTerms:          6,
			ExpansionTopN:           3,
			SuggestionTopN:          6,
			SuggestionLimit:         10,
			HistorySize:             50,
			Relevance: RelevanceConfig{
				Weights: FieldWeights{
					Description:      20,
					VendorName:       15,
					PartNumber:       10,
					VendorPartNumber: 10,
					Category:         8,
					Subcategory:      8,
				},
				TokenBonus:   5,
				MinScore:     10,
				GateMinScore: 15,
			},
			SKU: SKUConfig{
				MinLength:   3,
				MaxVariants: 5,
			},
			SlowQuery: SlowQueryConfig{
				WarningThreshold:  2 * time.Second,
				CriticalThreshold: 5 * time.Second,
			},
		},
		Mirror: MirrorConfig{
			BulkSize:      500,
			FlushInterval: 5 * time.Second,
		},
		Observability: ObservabilityConfig{
			LogLevel:          "info",
			ServiceName:       "catalog-search",
			TracingSampleRate: 0.1,
		},
	}
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("database dsn required")
	}
	if strings.TrimSpace(c.Distributor.BaseURL) == "" {
		return fmt.Errorf("distributor base url required")
	}
	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if len(c.Redis.Addresses) == 0 {
			return fmt.Errorf("at least one redis address required for redis cache")
		}
	default:
		return fmt.Errorf("unsupported cache backend %q", c.Cache.Backend)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache ttl must be positive")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("at least one kafka broker required")
	}
	if c.ClickHouse.Enabled && len(c.ClickHouse.Addresses) == 0 {
		return fmt.Errorf("at least one clickhouse address required")
	}
	if c.Search.DefaultPageSize <= 0 {
		return fmt.Errorf("default page size must be positive")
	}
	if c.Search.MaxPageSize <= 0 || c.Search.MaxPageSize > 1000 {
		return fmt.Errorf("max page size must be between 1 and 1000")
	}
	if c.Search.MaxTotalResults <= 0 {
		return fmt.Errorf("max total results must be positive")
	}
	if c.Search.MaxSearchTerms <= 0 {
		return fmt.Errorf("max search terms must be positive")
	}
	if c.Search.KeywordPageSize <= 0 {
		return fmt.Errorf("keyword page size must be positive")
	}
	if c.Search.SKU.MinLength <= 0 || c.Search.SKU.MaxVariants <= 0 {
		return fmt.Errorf("sku min length and max variants must be positive")
	}
	return nil
}
