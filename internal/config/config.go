package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string

	HTTP         HTTPConfig
	Log          LogConfig
	Redis        RedisConfig
	Index        IndexConfig
	Warehouse    WarehouseConfig
	WebSearch    WebSearchConfig
	Renderer     RendererConfig
	Orchestrator OrchestratorConfig
}

type HTTPConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type LogConfig struct {
	Level      string
	Format     string
	Output     string
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	ReportTTL    time.Duration
	StreamMaxLen int64
}

type IndexConfig struct {
	Path         string
	Collection   string
	OpenAIAPIKey string
	TopK         int
}

type WarehouseConfig struct {
	DSN            string
	Table          string
	QueryTimeout   time.Duration
	MaxRetries     int
	BreakerTimeout time.Duration
}

type WebSearchConfig struct {
	BaseURL        string
	MaxResults     int
	RequestTimeout time.Duration
	MaxConcurrency int
}

type RendererConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
	MaxRetries     int
}

type OrchestratorConfig struct {
	GlobalDeadline time.Duration
	AbandonGrace   time.Duration
	AgentFile      string
}

// Load reads configuration from the environment, with .env support for local
// development. Missing .env is not an error outside development.
func Load() (*Config, error) {
	// .env is optional; the environment may already carry everything.
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		HTTP: HTTPConfig{
			Port:         getEnvInt("PORT", 8080),
			ReadTimeout:  getEnvDuration("HTTP_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvDuration("HTTP_WRITE_TIMEOUT", 60*time.Second),
			IdleTimeout:  getEnvDuration("HTTP_IDLE_TIMEOUT", 120*time.Second),
		},
		Log: LogConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "json"),
			Output:     getEnv("LOG_OUTPUT", "stdout"),
			FilePath:   getEnv("LOG_FILE_PATH", ""),
			MaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
			MaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 28),
		},
		Redis: RedisConfig{
			URL:          getEnv("REDIS_URL", "redis://localhost:6379/0"),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			ReportTTL:    getEnvDuration("REDIS_REPORT_TTL", 6*time.Hour),
			StreamMaxLen: int64(getEnvInt("REDIS_STREAM_MAX_LEN", 1024)),
		},
		Index: IndexConfig{
			Path:         getEnv("INDEX_PATH", "data/index"),
			Collection:   getEnv("INDEX_COLLECTION", "disaster-documents"),
			OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
			TopK:         getEnvInt("INDEX_TOP_K", 5),
		},
		Warehouse: WarehouseConfig{
			DSN:            getEnv("WAREHOUSE_DSN", ""),
			Table:          getEnv("WAREHOUSE_TABLE", "disaster_events"),
			QueryTimeout:   getEnvDuration("WAREHOUSE_QUERY_TIMEOUT", 8*time.Second),
			MaxRetries:     getEnvInt("WAREHOUSE_MAX_RETRIES", 3),
			BreakerTimeout: getEnvDuration("WAREHOUSE_BREAKER_TIMEOUT", 30*time.Second),
		},
		WebSearch: WebSearchConfig{
			BaseURL:        getEnv("WEBSEARCH_BASE_URL", "https://html.duckduckgo.com/html/"),
			MaxResults:     getEnvInt("WEBSEARCH_MAX_RESULTS", 3),
			RequestTimeout: getEnvDuration("WEBSEARCH_REQUEST_TIMEOUT", 10*time.Second),
			MaxConcurrency: getEnvInt("WEBSEARCH_MAX_CONCURRENCY", 2),
		},
		Renderer: RendererConfig{
			BaseURL:        getEnv("RENDERER_BASE_URL", "http://localhost:9090"),
			RequestTimeout: getEnvDuration("RENDERER_REQUEST_TIMEOUT", 10*time.Second),
			MaxRetries:     getEnvInt("RENDERER_MAX_RETRIES", 3),
		},
		Orchestrator: OrchestratorConfig{
			GlobalDeadline: getEnvDuration("REQUEST_DEADLINE", 25*time.Second),
			AbandonGrace:   getEnvDuration("ABANDON_GRACE", 2*time.Second),
			AgentFile:      getEnv("AGENT_CONFIG_FILE", ""),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.HTTP.Port)
	}
	if c.Orchestrator.GlobalDeadline <= 0 {
		return fmt.Errorf("REQUEST_DEADLINE must be positive")
	}
	if c.Index.TopK <= 0 {
		return fmt.Errorf("INDEX_TOP_K must be positive")
	}
	if c.WebSearch.MaxResults <= 0 {
		return fmt.Errorf("WEBSEARCH_MAX_RESULTS must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
