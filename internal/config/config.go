package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Cache         CacheConfig
	RateLimit     RateLimitConfig
	Audit         AuditConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	QueryTimeout    time.Duration
}

// RedisConfig holds decision cache backend configuration
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	Timeout   time.Duration
	// Enabled false degrades to the in-memory cache backend.
	Enabled bool
}

// CacheConfig holds the per-data-class TTLs of the decision cache.
type CacheConfig struct {
	DecisionTTL time.Duration // authorization decisions
	RoleTTL     time.Duration // resolved role hierarchies
	PolicyTTL   time.Duration // active policy bodies
	TenantTTL   time.Duration // tenant configuration
}

// RateLimitConfig holds rate limiting configuration.
// Principal limits apply per (tenant, principal) inside the evaluator;
// IP limits apply at the transport edge.
type RateLimitConfig struct {
	PrincipalRPS   float64
	PrincipalBurst int
	IPRPS          float64
	IPBurst        int
}

// AuditConfig holds audit hash-chain configuration
type AuditConfig struct {
	AppendTimeout time.Duration
}

// ObservabilityConfig holds logging and tracing configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string
	OTELEnabled    bool
	ServiceName    string
	ServiceVersion string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  parseDuration("SERVER_READ_TIMEOUT", "15s"),
			WriteTimeout: parseDuration("SERVER_WRITE_TIMEOUT", "15s"),
			IdleTimeout:  parseDuration("SERVER_IDLE_TIMEOUT", "60s"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "authzd"),
			Password:        getEnv("DB_PASSWORD", ""),
			Database:        getEnv("DB_NAME", "authzd"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    parseInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    parseInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: parseDuration("DB_CONN_MAX_LIFETIME", "5m"),
			QueryTimeout:    parseDuration("DB_QUERY_TIMEOUT", "2s"),
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", "localhost:6379"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        parseInt("REDIS_DB", 0),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "authzd:"),
			Timeout:   parseDuration("REDIS_TIMEOUT", "250ms"),
			Enabled:   parseBool("REDIS_ENABLED", true),
		},
		Cache: CacheConfig{
			DecisionTTL: parseDuration("CACHE_DECISION_TTL", "5m"),
			RoleTTL:     parseDuration("CACHE_ROLE_TTL", "1h"),
			PolicyTTL:   parseDuration("CACHE_POLICY_TTL", "30m"),
			TenantTTL:   parseDuration("CACHE_TENANT_TTL", "6h"),
		},
		RateLimit: RateLimitConfig{
			PrincipalRPS:   parseFloat("RATELIMIT_PRINCIPAL_RPS", 100),
			PrincipalBurst: parseInt("RATELIMIT_PRINCIPAL_BURST", 200),
			IPRPS:          parseFloat("RATELIMIT_IP_RPS", 50),
			IPBurst:        parseInt("RATELIMIT_IP_BURST", 100),
		},
		Audit: AuditConfig{
			AppendTimeout: parseDuration("AUDIT_APPEND_TIMEOUT", "1s"),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			OTELEnabled:    parseBool("OTEL_ENABLED", false),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "authzd"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "0.1.0"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.RateLimit.PrincipalRPS <= 0 {
		return fmt.Errorf("RATELIMIT_PRINCIPAL_RPS must be positive")
	}
	if c.Cache.DecisionTTL <= 0 {
		return fmt.Errorf("CACHE_DECISION_TTL must be positive")
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

func parseInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func parseFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func parseBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func parseDuration(key string, defaultValue string) time.Duration {
	value := getEnv(key, defaultValue)
	d, err := time.ParseDuration(value)
	if err != nil {
		// Fallback to default
		d, _ = time.ParseDuration(defaultValue)
	}
	return d
}
