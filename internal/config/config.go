// Package config provides configuration management for the wallet scanner.
// Process settings load from environment variables and an optional .env
// file; the chain directory loads from a YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Providers ProvidersConfig
	Scan      ScanConfig
	Logging   LoggingConfig

	// ChainsFile is the path to the chain directory YAML.
	ChainsFile string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration.
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// ClickHouseConfig holds ClickHouse configuration.
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// ProvidersConfig holds third-party data source configuration.
type ProvidersConfig struct {
	// MarketBaseURL / MarketFallbackURL are the primary and secondary
	// market-data sources used by the universe refresh engine.
	MarketBaseURL     string
	MarketAPIKey      string
	MarketFallbackURL string
	MarketFallbackKey string

	// PriceBaseURL is the primary contract-price source; DexPoolBaseURL is
	// the per-contract liquidity-pool fallback.
	PriceBaseURL   string
	DexPoolBaseURL string

	// RequestTimeout bounds every outbound HTTP/RPC call.
	RequestTimeout time.Duration

	// RequestsPerSecond throttles each HTTP provider client.
	RequestsPerSecond float64

	// IconCacheTTL bounds the in-process token icon cache.
	IconCacheTTL time.Duration

	// PriceMaxAge bounds reuse of previously observed prices during
	// valuation. Cached prices older than this are treated as absent.
	PriceMaxAge time.Duration
}

// ScanConfig holds scan engine tunables.
type ScanConfig struct {
	// ChunkSize is the number of tokens resolved per RPC round.
	ChunkSize int

	// Concurrency bounds parallel work inside one scan/refresh/valuation
	// (worker pool size, kept small for rate-limited providers).
	Concurrency int

	// UniverseSize is the target number of top tokens per chain.
	UniverseSize int
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level    string
	Encoding string
}

// Load reads configuration from the .env file and environment variables.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// .env is optional; env vars can be set directly.
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "wallet_scanner"),
				User:           getEnv("POSTGRES_USER", "scanner"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 20),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "wallet_scanner"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host:     getEnv("REDIS_HOST", "localhost"),
				Port:     getEnv("REDIS_PORT", "6379"),
				Password: getEnv("REDIS_PASSWORD", ""),
				DB:       getEnvAsInt("REDIS_DB", 0),
			},
		},
		Providers: ProvidersConfig{
			MarketBaseURL:     getEnv("MARKET_BASE_URL", "https://api.coingecko.com/api/v3"),
			MarketAPIKey:      getEnv("MARKET_API_KEY", ""),
			MarketFallbackURL: getEnv("MARKET_FALLBACK_URL", "https://pro-api.coinmarketcap.com/v1"),
			MarketFallbackKey: getEnv("MARKET_FALLBACK_API_KEY", ""),
			PriceBaseURL:      getEnv("PRICE_BASE_URL", "https://api.coingecko.com/api/v3"),
			DexPoolBaseURL:    getEnv("DEXPOOL_BASE_URL", "https://api.dexscreener.com"),
			RequestTimeout:    getEnvAsDuration("PROVIDER_TIMEOUT", 15*time.Second),
			RequestsPerSecond: getEnvAsFloat("PROVIDER_RPS", 3),
			IconCacheTTL:      getEnvAsDuration("ICON_CACHE_TTL", 6*time.Hour),
			PriceMaxAge:       getEnvAsDuration("PRICE_MAX_AGE", 24*time.Hour),
		},
		Scan: ScanConfig{
			ChunkSize:    getEnvAsInt("SCAN_CHUNK_SIZE", 50),
			Concurrency:  getEnvAsInt("SCAN_CONCURRENCY", 6),
			UniverseSize: getEnvAsInt("UNIVERSE_SIZE", 100),
		},
		Logging: LoggingConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			Encoding: getEnv("LOG_ENCODING", "json"),
		},
		ChainsFile: getEnv("CHAINS_FILE", "chains.yaml"),
	}

	if cfg.Scan.ChunkSize <= 0 {
		return nil, fmt.Errorf("SCAN_CHUNK_SIZE must be positive")
	}
	if cfg.Scan.Concurrency <= 0 {
		return nil, fmt.Errorf("SCAN_CONCURRENCY must be positive")
	}

	return cfg, nil
}

// PostgresURL renders the pgx connection string.
func (c *PostgresConfig) PostgresURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// RedisAddr renders the host:port pair.
func (c *RedisConfig) RedisAddr() string {
	return c.Host + ":" + c.Port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
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
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
