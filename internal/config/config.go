// Package config provides configuration management for the token ledger.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/token-ledger/internal/types"
)

// Store backends for the ledger entity store
const (
	StoreBackendPostgres = "postgres"
	StoreBackendMemory   = "memory"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Chain    ChainConfig
	Ledger   LedgerConfig
	Cache    CacheConfig
	API      APIConfig
	Logging  LoggingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// ClickHouseConfig holds ClickHouse configuration
type ClickHouseConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled        bool
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// ChainConfig describes the single chain an indexer instance follows
type ChainConfig struct {
	Name             string
	RPCPrimary       string
	RPCSecondary     string
	FactoryAddress   string
	LaunchpadAddress string
	StartBlock       uint64
	PollInterval     time.Duration
	MaxBlocksPerPoll int           // Maximum blocks to process per poll cycle
	RPCRateLimit     float64       // Requests per second against the RPC endpoint, 0 disables pacing
	CallTimeout      time.Duration // Timeout for a single read-only contract call
	FetchConcurrency int           // Workers used to fetch block headers and transactions
}

// LedgerConfig holds ledger configuration
type LedgerConfig struct {
	DefaultDecimals uint8
	StoreBackend    string
	// SeedTokens are tracked from startup without a factory creation event.
	// Their metadata is resolved lazily on first transfer.
	SeedTokens []string
}

// CacheConfig holds cache configuration
type CacheConfig struct {
	MetadataTTL time.Duration
	VolumeTTL   time.Duration
}

// APIConfig holds read API configuration
type APIConfig struct {
	RateLimitRPS   float64
	RateLimitBurst int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// .env is optional, environment variables can be set directly
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "token_ledger"),
				User:           getEnv("POSTGRES_USER", "ledger"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 20),
			},
			ClickHouse: ClickHouseConfig{
				Enabled:  getEnvAsBool("CLICKHOUSE_ENABLED", false),
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "token_ledger"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Enabled:        getEnvAsBool("REDIS_ENABLED", true),
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
			},
		},
		Chain: ChainConfig{
			Name:             getEnv("CHAIN_NAME", string(types.ChainEthereum)),
			RPCPrimary:       getEnv("CHAIN_RPC_PRIMARY", ""),
			RPCSecondary:     getEnv("CHAIN_RPC_SECONDARY", ""),
			FactoryAddress:   normalizeOptional(getEnv("CHAIN_FACTORY_ADDRESS", "")),
			LaunchpadAddress: normalizeOptional(getEnv("CHAIN_LAUNCHPAD_ADDRESS", "")),
			StartBlock:       getEnvAsUint64("CHAIN_START_BLOCK", 0),
			PollInterval:     getEnvAsDuration("CHAIN_POLL_INTERVAL", 12*time.Second),
			MaxBlocksPerPoll: getEnvAsInt("CHAIN_MAX_BLOCKS_PER_POLL", 500),
			RPCRateLimit:     getEnvAsFloat("CHAIN_RPC_RATE_LIMIT", 25),
			CallTimeout:      getEnvAsDuration("CHAIN_CALL_TIMEOUT", 10*time.Second),
			FetchConcurrency: getEnvAsInt("CHAIN_FETCH_CONCURRENCY", 8),
		},
		Ledger: LedgerConfig{
			DefaultDecimals: uint8(getEnvAsInt("LEDGER_DEFAULT_DECIMALS", int(types.DefaultDecimals))),
			StoreBackend:    getEnv("LEDGER_STORE_BACKEND", StoreBackendPostgres),
			SeedTokens:      getEnvAsAddressList("LEDGER_SEED_TOKENS"),
		},
		Cache: CacheConfig{
			MetadataTTL: getEnvAsDuration("CACHE_METADATA_TTL", 24*time.Hour),
			VolumeTTL:   getEnvAsDuration("CACHE_VOLUME_TTL", 5*time.Minute),
		},
		API: APIConfig{
			RateLimitRPS:   getEnvAsFloat("API_RATE_LIMIT_RPS", 20),
			RateLimitBurst: getEnvAsInt("API_RATE_LIMIT_BURST", 40),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return config, nil
}

// Validate checks the settings the indexer cannot run without
func (c *Config) Validate() error {
	if c.Chain.RPCPrimary == "" {
		return fmt.Errorf("CHAIN_RPC_PRIMARY is required")
	}
	if c.Chain.FactoryAddress != "" && !types.IsValidAddress(c.Chain.FactoryAddress) {
		return fmt.Errorf("CHAIN_FACTORY_ADDRESS is not a valid address: %s", c.Chain.FactoryAddress)
	}
	if c.Chain.LaunchpadAddress != "" && !types.IsValidAddress(c.Chain.LaunchpadAddress) {
		return fmt.Errorf("CHAIN_LAUNCHPAD_ADDRESS is not a valid address: %s", c.Chain.LaunchpadAddress)
	}
	for _, token := range c.Ledger.SeedTokens {
		if !types.IsValidAddress(token) {
			return fmt.Errorf("LEDGER_SEED_TOKENS contains an invalid address: %s", token)
		}
	}
	switch c.Ledger.StoreBackend {
	case StoreBackendPostgres, StoreBackendMemory:
	default:
		return fmt.Errorf("unknown LEDGER_STORE_BACKEND %q", c.Ledger.StoreBackend)
	}
	if c.Chain.MaxBlocksPerPoll <= 0 {
		return fmt.Errorf("CHAIN_MAX_BLOCKS_PER_POLL must be positive")
	}
	if c.Chain.FetchConcurrency <= 0 {
		return fmt.Errorf("CHAIN_FETCH_CONCURRENCY must be positive")
	}
	return nil
}

func normalizeOptional(address string) string {
	if address == "" {
		return ""
	}
	return types.NormalizeAddress(address)
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
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

// getEnvAsUint64 gets an environment variable as an unsigned integer with a default value
func getEnvAsUint64(key string, defaultValue uint64) uint64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
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

// getEnvAsBool gets an environment variable as a boolean with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
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

// getEnvAsAddressList reads a comma separated list of addresses, normalized
func getEnvAsAddressList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, types.NormalizeAddress(part))
	}
	return out
}
