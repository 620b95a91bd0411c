package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds process configuration read from the environment.
type Config struct {
	Port      string
	LogLevel  string
	LogFormat string

	// DatabaseURL selects the ledger backend: sqlite://, postgres://,
	// file:// or empty for an in-memory ledger.
	DatabaseURL string

	RedisAddr      string
	RedisPassword  string
	RevocationFile string

	PolicyFile  string
	AnchorSeed  string
	AnchorKeyID string

	AttestationTimeout time.Duration

	RateLimitRPS   float64
	RateLimitBurst int

	OTelEnabled  bool
	OTelEndpoint string
	ServiceName  string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getenv("PORT", "8080"),
		LogLevel:       getenv("LOG_LEVEL", "INFO"),
		LogFormat:      getenv("LOG_FORMAT", "text"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RevocationFile: os.Getenv("REVOCATION_FILE"),
		PolicyFile:     os.Getenv("POLICY_FILE"),
		AnchorSeed:     os.Getenv("ANCHOR_SEED"),
		AnchorKeyID:    getenv("ANCHOR_KEY_ID", "anchor-root"),
		OTelEnabled:    os.Getenv("OTEL_ENABLED") == "true",
		OTelEndpoint:   getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		ServiceName:    getenv("OTEL_SERVICE_NAME", "govkernel"),
	}

	var err error
	if cfg.AttestationTimeout, err = time.ParseDuration(getenv("ATTESTATION_TIMEOUT", "5s")); err != nil {
		return nil, fmt.Errorf("config: ATTESTATION_TIMEOUT: %w", err)
	}
	if cfg.AttestationTimeout <= 0 {
		return nil, fmt.Errorf("config: ATTESTATION_TIMEOUT must be positive")
	}
	if cfg.RateLimitRPS, err = strconv.ParseFloat(getenv("RATE_LIMIT_RPS", "20"), 64); err != nil {
		return nil, fmt.Errorf("config: RATE_LIMIT_RPS: %w", err)
	}
	if cfg.RateLimitBurst, err = strconv.Atoi(getenv("RATE_LIMIT_BURST", "40")); err != nil {
		return nil, fmt.Errorf("config: RATE_LIMIT_BURST: %w", err)
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
