// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Risk-assessment oracle
	OracleURL  string // HTTP model service base URL (optional)
	OracleMode string // "remote", "embedded", or "off"

	// Ledger anchoring
	RPCURL          string
	ChainID         int64
	PrivateKey      string // Hex-encoded, 0x prefix optional
	ContractAddress string // FraudRegistry contract

	// Event fan-out (all optional)
	KafkaBrokers string // comma-separated broker list
	KafkaTopic   string
	RedisURL     string

	// Observability
	OTLPEndpoint string
}

// Defaults
const (
	DefaultPort       = "8080"
	DefaultEnv        = "development"
	DefaultLogLevel   = "info"
	DefaultChainID    = 84532 // Base Sepolia
	DefaultKafkaTopic = "chainguardian.alerts"
	DefaultOracleMode = "remote"
)

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", DefaultPort),
		Env:             getEnv("ENV", DefaultEnv),
		LogLevel:        getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		OracleURL:       os.Getenv("ORACLE_URL"),
		OracleMode:      getEnv("ORACLE_MODE", DefaultOracleMode),
		RPCURL:          os.Getenv("RPC_URL"),
		ChainID:         getEnvInt64("CHAIN_ID", DefaultChainID),
		PrivateKey:      os.Getenv("PRIVATE_KEY"),
		ContractAddress: os.Getenv("CONTRACT_ADDRESS"),
		KafkaBrokers:    os.Getenv("KAFKA_BROKERS"),
		KafkaTopic:      getEnv("KAFKA_TOPIC", DefaultKafkaTopic),
		RedisURL:        os.Getenv("REDIS_URL"),
		OTLPEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks configuration consistency. Anchoring and the oracle are
// optional capabilities, so only the settings that were provided are checked.
func (c *Config) Validate() error {
	switch c.OracleMode {
	case "remote", "embedded", "off":
	default:
		return fmt.Errorf("ORACLE_MODE must be remote, embedded, or off (got %q)", c.OracleMode)
	}

	if c.OracleMode == "remote" && c.OracleURL != "" && !strings.HasPrefix(c.OracleURL, "http") {
		return fmt.Errorf("ORACLE_URL must be an http(s) URL")
	}

	// Anchoring requires the full set: RPC endpoint, signing key, contract.
	if c.AnchoringConfigured() {
		key := strings.TrimPrefix(c.PrivateKey, "0x")
		if len(key) != 64 {
			return fmt.Errorf("PRIVATE_KEY must be 64 hex characters (with or without 0x prefix)")
		}
		if c.ChainID == 0 {
			return fmt.Errorf("CHAIN_ID is required when anchoring is configured")
		}
	}

	return nil
}

// AnchoringConfigured reports whether all ledger settings are present.
func (c *Config) AnchoringConfigured() bool {
	return c.RPCURL != "" && c.PrivateKey != "" && c.ContractAddress != ""
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}
