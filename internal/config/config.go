package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Upstream UpstreamConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values. An empty DSN disables the user directory.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines token and session parameters.
type AuthConfig struct {
	JWTSecret         string
	Issuer            string
	Audience          string
	TokenTTLSeconds   int
	SessionCookieName string
	SessionTTLSeconds int
	CookieSecure      bool
}

// UpstreamConfig describes the proxied music API and its retry budget.
type UpstreamConfig struct {
	BaseURL               string
	TimeoutSeconds        int
	MaxRetries            int
	InitialIntervalMillis int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "playlist-gateway"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:         os.Getenv("AUTH_JWT_SECRET"),
			Issuer:            getEnv("AUTH_ISSUER", "playlist-gateway"),
			Audience:          getEnv("AUTH_AUDIENCE", "playlist-gateway-clients"),
			TokenTTLSeconds:   getEnvAsInt("AUTH_TOKEN_TTL_SECONDS", 3600),
			SessionCookieName: getEnv("AUTH_SESSION_COOKIE", "SESSION_ID"),
			SessionTTLSeconds: getEnvAsInt("AUTH_SESSION_TTL_SECONDS", 3600),
			CookieSecure:      getEnvAsBool("AUTH_COOKIE_SECURE", false),
		},
		Upstream: UpstreamConfig{
			BaseURL:               getEnv("UPSTREAM_BASE_URL", "https://api.spotify.com"),
			TimeoutSeconds:        getEnvAsInt("UPSTREAM_TIMEOUT_SECONDS", 10),
			MaxRetries:            getEnvAsInt("UPSTREAM_MAX_RETRIES", 3),
			InitialIntervalMillis: getEnvAsInt("UPSTREAM_INITIAL_INTERVAL_MILLIS", 1000),
		},
	}

	if cfg.Auth.JWTSecret == "" && cfg.App.Env == "development" {
		cfg.Auth.JWTSecret = "dev-secret-dev-secret-dev-secret-0000"
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// TokenTTL returns the lifetime of issued tokens.
func (a AuthConfig) TokenTTL() time.Duration {
	if a.TokenTTLSeconds <= 0 {
		return time.Hour
	}
	return time.Duration(a.TokenTTLSeconds) * time.Second
}

// SessionTTL returns the lifetime of server-side sessions.
func (a AuthConfig) SessionTTL() time.Duration {
	if a.SessionTTLSeconds <= 0 {
		return time.Hour
	}
	return time.Duration(a.SessionTTLSeconds) * time.Second
}

// Timeout returns the per-request HTTP timeout for upstream calls.
func (u UpstreamConfig) Timeout() time.Duration {
	if u.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(u.TimeoutSeconds) * time.Second
}

// InitialInterval returns the first backoff interval.
func (u UpstreamConfig) InitialInterval() time.Duration {
	return time.Duration(u.InitialIntervalMillis) * time.Millisecond
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
