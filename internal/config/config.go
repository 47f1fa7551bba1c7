package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store types accepted by ENGINE_STORE
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config holds all configuration for the application
type Config struct {
	// Common
	Environment string
	LogLevel    string

	Database  DatabaseConfig
	Redis     RedisConfig
	Quote     QuoteConfig
	Calendar  CalendarConfig
	Engine    EngineConfig
	Notify    NotifyConfig
	WSGateway WSGatewayConfig
	API       APIConfig
}

// DatabaseConfig holds PostgreSQL configuration for the monitor store
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxConnections  int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN returns the lib/pq connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// RedisConfig holds Redis configuration. Redis backs the holiday cache and
// the notification stream; both are skipped when Enabled is false.
type RedisConfig struct {
	Enabled      bool
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// QuoteConfig holds quote feed configuration
type QuoteConfig struct {
	BaseURL       string        // Tencent feed, codes are appended comma-separated
	NameLookupURL string        // Eastmoney stock/get endpoint
	Timeout       time.Duration // per HTTP request
	BatchSize     int
	Indices       []string
}

// CalendarConfig holds trading calendar configuration
type CalendarConfig struct {
	Timezone         string
	Sessions         string // "09:30-11:30,13:00-15:00"
	HolidayURL       string // %d is replaced with the year
	HolidayTimeout   time.Duration
	HolidayCacheTTL  time.Duration
	HolidayRetry     time.Duration
	PrefetchSchedule string // cron spec, evaluated in Timezone
}

// EngineConfig holds monitor engine and poll loop configuration
type EngineConfig struct {
	StoreType          string
	OwnerIDs           []string // empty means every owner known to the store
	ActiveInterval     time.Duration
	IdleInterval       time.Duration
	IdleAfter          time.Duration
	FetchTimeout       time.Duration
	LoadTimeout        time.Duration
	PersistTimeout     time.Duration
	PersistConcurrency int
}

// NotifyConfig holds notification channel configuration
type NotifyConfig struct {
	Stream         string // Redis stream, empty disables
	Timeout        time.Duration
	DedupeWindow   time.Duration // 0 disables cross-cycle deduplication
	TelegramToken  string
	TelegramChatID int64
}

// WSGatewayConfig holds WebSocket gateway configuration
type WSGatewayConfig struct {
	ReadTimeout            time.Duration
	WriteTimeout           time.Duration
	PingInterval           time.Duration
	MaxConnections         int
	MaxConnectionsPerOwner int // 0 means unlimited
	SendBuffer             int
}

// APIConfig holds REST API configuration
type APIConfig struct {
	Port            int
	JWTSecret       string
	ShutdownTimeout time.Duration
	AllowedOrigin   string
	RateLimitRPS    int // per owner; 0 disables
}

// Load loads configuration from environment variables
// It automatically loads .env file if it exists in the current directory
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			Database:        getEnv("DB_NAME", "stock_watchlist"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxConnections:  getEnvAsInt("DB_MAX_CONNECTIONS", 10),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Enabled:      getEnvAsBool("REDIS_ENABLED", false),
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnvAsInt("REDIS_PORT", 6379),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 2),
		},
		Quote: QuoteConfig{
			BaseURL:       getEnv("QUOTE_BASE_URL", "https://qt.gtimg.cn/q="),
			NameLookupURL: getEnv("QUOTE_NAME_LOOKUP_URL", "https://push2.eastmoney.com/api/qt/stock/get"),
			Timeout:       getEnvAsDuration("QUOTE_TIMEOUT", 5*time.Second),
			BatchSize:     getEnvAsInt("QUOTE_BATCH_SIZE", 50),
			Indices:       getEnvAsStringSlice("QUOTE_INDICES", []string{"sh000001", "sz399001", "sz399006"}),
		},
		Calendar: CalendarConfig{
			Timezone:         getEnv("CALENDAR_TIMEZONE", "Asia/Shanghai"),
			Sessions:         getEnv("CALENDAR_SESSIONS", "09:30-11:30,13:00-15:00"),
			HolidayURL:       getEnv("CALENDAR_HOLIDAY_URL", "https://api.jiejiariapi.com/v1/holidays/%d"),
			HolidayTimeout:   getEnvAsDuration("CALENDAR_HOLIDAY_TIMEOUT", 5*time.Second),
			HolidayCacheTTL:  getEnvAsDuration("CALENDAR_HOLIDAY_CACHE_TTL", 24*time.Hour),
			HolidayRetry:     getEnvAsDuration("CALENDAR_HOLIDAY_RETRY", 5*time.Minute),
			PrefetchSchedule: getEnv("CALENDAR_PREFETCH_SCHEDULE", "15 9 * * 1-5"),
		},
		Engine: EngineConfig{
			StoreType:          getEnv("ENGINE_STORE", StoreMemory),
			OwnerIDs:           getEnvAsStringSlice("ENGINE_OWNER_IDS", []string{}),
			ActiveInterval:     getEnvAsDuration("ENGINE_ACTIVE_INTERVAL", 5*time.Second),
			IdleInterval:       getEnvAsDuration("ENGINE_IDLE_INTERVAL", 10*time.Second),
			IdleAfter:          getEnvAsDuration("ENGINE_IDLE_AFTER", 30*time.Second),
			FetchTimeout:       getEnvAsDuration("ENGINE_FETCH_TIMEOUT", 8*time.Second),
			LoadTimeout:        getEnvAsDuration("ENGINE_LOAD_TIMEOUT", 3*time.Second),
			PersistTimeout:     getEnvAsDuration("ENGINE_PERSIST_TIMEOUT", 3*time.Second),
			PersistConcurrency: getEnvAsInt("ENGINE_PERSIST_CONCURRENCY", 4),
		},
		Notify: NotifyConfig{
			Stream:         getEnv("NOTIFY_REDIS_STREAM", "watchlist.notifications"),
			Timeout:        getEnvAsDuration("NOTIFY_TIMEOUT", 3*time.Second),
			DedupeWindow:   getEnvAsDuration("NOTIFY_DEDUPE_WINDOW", 2*time.Minute),
			TelegramToken:  getEnv("NOTIFY_TELEGRAM_TOKEN", ""),
			TelegramChatID: getEnvAsInt64("NOTIFY_TELEGRAM_CHAT_ID", 0),
		},
		WSGateway: WSGatewayConfig{
			ReadTimeout:            getEnvAsDuration("WS_READ_TIMEOUT", 60*time.Second),
			WriteTimeout:           getEnvAsDuration("WS_WRITE_TIMEOUT", 10*time.Second),
			PingInterval:           getEnvAsDuration("WS_PING_INTERVAL", 30*time.Second),
			MaxConnections:         getEnvAsInt("WS_MAX_CONNECTIONS", 500),
			MaxConnectionsPerOwner: getEnvAsInt("WS_MAX_CONNECTIONS_PER_OWNER", 10),
			SendBuffer:             getEnvAsInt("WS_SEND_BUFFER", 64),
		},
		API: APIConfig{
			Port:            getEnvAsInt("API_PORT", 8090),
			JWTSecret:       getEnv("API_JWT_SECRET", ""),
			ShutdownTimeout: getEnvAsDuration("API_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigin:   getEnv("API_ALLOWED_ORIGIN", "*"),
			RateLimitRPS:    getEnvAsInt("API_RATE_LIMIT_RPS", 20),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Engine.StoreType {
	case StoreMemory:
	case StorePostgres:
		if c.Database.Host == "" {
			return fmt.Errorf("DB_HOST is required when ENGINE_STORE=%s", StorePostgres)
		}
	default:
		return fmt.Errorf("ENGINE_STORE must be %q or %q, got %q", StoreMemory, StorePostgres, c.Engine.StoreType)
	}
	if c.Redis.Enabled && c.Redis.Host == "" {
		return fmt.Errorf("REDIS_HOST is required when REDIS_ENABLED is set")
	}
	if c.Engine.ActiveInterval <= 0 || c.Engine.IdleInterval <= 0 {
		return fmt.Errorf("ENGINE_ACTIVE_INTERVAL and ENGINE_IDLE_INTERVAL must be positive")
	}
	if c.Engine.PersistConcurrency < 1 {
		return fmt.Errorf("ENGINE_PERSIST_CONCURRENCY must be at least 1")
	}
	if c.Quote.BaseURL == "" {
		return fmt.Errorf("QUOTE_BASE_URL is required")
	}
	if c.Quote.BatchSize < 1 {
		return fmt.Errorf("QUOTE_BATCH_SIZE must be at least 1")
	}
	if !strings.Contains(c.Calendar.HolidayURL, "%d") {
		return fmt.Errorf("CALENDAR_HOLIDAY_URL must contain %%d for the year")
	}
	if c.Notify.TelegramToken != "" && c.Notify.TelegramChatID == 0 {
		return fmt.Errorf("NOTIFY_TELEGRAM_CHAT_ID is required when NOTIFY_TELEGRAM_TOKEN is set")
	}
	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}
	return intValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}

func getEnvAsStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	// Split by comma and trim spaces
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
