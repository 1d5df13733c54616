// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

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

	// Ledger settings
	RPCURL         string
	ChainID        int64
	PrivateKey     string // Hex-encoded operator key, with or without 0x prefix
	EscrowContract string // Escrow contract address

	// Coordination settings
	ConfirmTimeout    time.Duration // How long to track a payment confirmation inline
	ReconcileInterval time.Duration // Background reconciliation pass cadence

	// Blob storage
	BlobServiceURL string // External blob service base URL (optional)

	// Observability
	OTLPEndpoint string // OTLP gRPC endpoint for traces (optional)
}

// Base Sepolia defaults
const (
	DefaultRPCURL            = "https://sepolia.base.org"
	DefaultChainID           = 84532 // Base Sepolia
	DefaultPort              = "8080"
	DefaultEnv               = "development"
	DefaultLogLevel          = "info"
	DefaultConfirmTimeout    = 5 * time.Minute
	DefaultReconcileInterval = 30 * time.Second
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", DefaultPort),
		Env:               getEnv("ENV", DefaultEnv),
		LogLevel:          getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:       os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		RPCURL:            getEnv("RPC_URL", DefaultRPCURL),
		ChainID:           getEnvInt64("CHAIN_ID", DefaultChainID),
		PrivateKey:        os.Getenv("PRIVATE_KEY"), // Required, no default
		EscrowContract:    os.Getenv("ESCROW_CONTRACT"),
		ConfirmTimeout:    getEnvDuration("CONFIRM_TIMEOUT", DefaultConfirmTimeout),
		ReconcileInterval: getEnvDuration("RECONCILE_INTERVAL", DefaultReconcileInterval),
		BlobServiceURL:    os.Getenv("BLOB_SERVICE_URL"),
		OTLPEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.PrivateKey == "" {
		return fmt.Errorf("PRIVATE_KEY is required")
	}

	// Allow both with and without 0x prefix
	key := c.PrivateKey
	if len(key) == 66 && key[:2] == "0x" {
		key = key[2:]
	}
	if len(key) != 64 {
		return fmt.Errorf("PRIVATE_KEY must be 64 hex characters (with or without 0x prefix)")
	}

	if c.RPCURL == "" {
		return fmt.Errorf("RPC_URL is required")
	}

	if c.EscrowContract == "" {
		return fmt.Errorf("ESCROW_CONTRACT is required")
	}
	if len(c.EscrowContract) != 42 || c.EscrowContract[:2] != "0x" {
		return fmt.Errorf("ESCROW_CONTRACT must be a 0x-prefixed 20-byte hex address")
	}

	return nil
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}
