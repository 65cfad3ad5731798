package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Reasoning provider
	LLM LLMConfig

	// Evaluation engine
	Engine EngineConfig

	// Weight / performance store
	Store StoreConfig

	// Weekly calibration batch
	Batch BatchConfig

	// Execution handoff
	Execution ExecutionConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	URL      string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// LLMConfig holds reasoning provider configuration
type LLMConfig struct {
	Provider          string // claude, gemini, openai
	Model             string
	APIKey            string
	BaseURL           string // openai 호환 엔드포인트
	Temperature       float64
	MaxTokens         int
	Timeout           time.Duration // 호출당 타임아웃
	RequestsPerSecond float64
	CacheTTL          time.Duration
}

// EngineConfig holds evaluation engine settings
type EngineConfig struct {
	Workers    int
	PolicyPath string // decision policy YAML
	IndexCode  string // 시장 국면 판단용 지수 코드
}

// StoreConfig selects the weight generation store
type StoreConfig struct {
	Backend    string // postgres, sqlite
	SQLitePath string
}

// BatchConfig holds the calibration batch settings
type BatchConfig struct {
	CollectorBaseURL string
	StepTimeout      time.Duration
	Schedule         string
}

// ExecutionConfig holds the handoff settings
type ExecutionConfig struct {
	Handoff      string // log, outbox
	WebhookURL   string // outbox 전달 대상 (없으면 로그만)
	PollInterval time.Duration
	MaxAttempts  int
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	// Try multiple paths for .env file
	loadEnvFile()
	return build()
}

// LoadFrom reads the given .env file instead of searching, then loads as Load does.
// An empty path behaves like Load.
func LoadFrom(envFile string) (*Config, error) {
	if envFile == "" {
		return Load()
	}
	if err := godotenv.Load(envFile); err != nil {
		return nil, fmt.Errorf("load env file %s: %w", envFile, err)
	}
	return build()
}

func build() (*Config, error) {
	cfg := &Config{
		// Server
		Port: getEnv("PORT", "8089"),
		Env:  getEnv("ENV", "development"),

		// Database
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			Name:            getEnv("DB_NAME", "scout"),
			User:            getEnv("DB_USER", "scout"),
			Password:        getEnv("DB_PASSWORD", ""),
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		// Redis
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", true),
		},

		LLM: LLMConfig{
			Provider:          getEnv("LLM_PROVIDER", "claude"),
			Model:             getEnv("LLM_MODEL", ""),
			APIKey:            getEnv("LLM_API_KEY", ""),
			BaseURL:           getEnv("LLM_BASE_URL", "https://api.openai.com/v1"),
			Temperature:       getEnvAsFloat("LLM_TEMPERATURE", 0.2),
			MaxTokens:         getEnvAsInt("LLM_MAX_TOKENS", 2048),
			Timeout:           getEnvAsDuration("LLM_TIMEOUT", "60s"),
			RequestsPerSecond: getEnvAsFloat("LLM_RPS", 2),
			CacheTTL:          getEnvAsDuration("LLM_CACHE_TTL", "6h"),
		},

		Engine: EngineConfig{
			Workers:    getEnvAsInt("ENGINE_WORKERS", 4),
			PolicyPath: getEnv("POLICY_PATH", "config/policy/scout_v1.yaml"),
			IndexCode:  getEnv("INDEX_CODE", "KOSPI200"),
		},

		Store: StoreConfig{
			Backend:    getEnv("STORE_BACKEND", "postgres"),
			SQLitePath: getEnv("SQLITE_PATH", "data/scout.db"),
		},

		Batch: BatchConfig{
			CollectorBaseURL: getEnv("COLLECTOR_BASE_URL", "http://localhost:8090"),
			StepTimeout:      getEnvAsDuration("BATCH_STEP_TIMEOUT", "2h"),
			Schedule:         getEnv("BATCH_SCHEDULE", "0 0 6 * * 0"),
		},

		Execution: ExecutionConfig{
			Handoff:      getEnv("EXECUTION_HANDOFF", "log"),
			WebhookURL:   getEnv("EXECUTION_WEBHOOK_URL", ""),
			PollInterval: getEnvAsDuration("EXECUTION_POLL_INTERVAL", "5s"),
			MaxAttempts:  getEnvAsInt("EXECUTION_MAX_ATTEMPTS", 5),
		},

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "debug"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	// Validate environment
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	switch c.Store.Backend {
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required for postgres store")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for sqlite store")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be one of: postgres, sqlite")
	}

	switch c.LLM.Provider {
	case "claude", "gemini", "openai":
	default:
		return fmt.Errorf("LLM_PROVIDER must be one of: claude, gemini, openai")
	}

	switch c.Execution.Handoff {
	case "log":
	case "outbox":
		if c.Store.Backend != "postgres" {
			return fmt.Errorf("EXECUTION_HANDOFF=outbox requires STORE_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("EXECUTION_HANDOFF must be one of: log, outbox")
	}

	if c.Engine.Workers < 1 {
		return fmt.Errorf("ENGINE_WORKERS must be >= 1")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	// Try paths in order of priority
	paths := []string{
		".env",         // Current directory
		"backend/.env", // From project root
	}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		// Fallback to default
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
