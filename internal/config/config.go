package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cryptozy/earnd/pkg/logger"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Config is the process configuration, read from the environment.
type Config struct {
	Host string
	Port int

	Logging logger.LoggingConfig

	StoreDriver string
	DatabaseDSN string

	SessionSigningKey string
	SessionTTL        time.Duration

	FaucetPayAPIKey string
	HCaptchaSecret  string

	WithdrawThrottle time.Duration
	WriteQueueSize   int
}

// Load reads configuration from the environment and validates it.
func Load() (Config, error) {
	cfg := Config{
		Host: envString("SERVER_HOST", "0.0.0.0"),
		Logging: logger.LoggingConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "json"),
			Output: envString("LOG_OUTPUT", "stdout"),
		},
		StoreDriver:       strings.ToLower(envString("STORE_DRIVER", DriverMemory)),
		DatabaseDSN:       os.Getenv("DATABASE_DSN"),
		SessionSigningKey: os.Getenv("SESSION_SIGNING_KEY"),
		FaucetPayAPIKey:   os.Getenv("FAUCETPAY_API_KEY"),
		HCaptchaSecret:    os.Getenv("HCAPTCHA_SECRET_KEY"),
	}

	var err error
	if cfg.Port, err = envInt("SERVER_PORT", 8080); err != nil {
		return Config{}, err
	}
	if cfg.WriteQueueSize, err = envInt("WRITE_QUEUE_SIZE", 0); err != nil {
		return Config{}, err
	}
	if cfg.SessionTTL, err = envDuration("SESSION_TTL", 24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.WithdrawThrottle, err = envDuration("WITHDRAW_THROTTLE", 10*time.Second); err != nil {
		return Config{}, err
	}

	if cfg.SessionSigningKey == "" {
		return Config{}, fmt.Errorf("SESSION_SIGNING_KEY is required")
	}
	if cfg.FaucetPayAPIKey == "" {
		return Config{}, fmt.Errorf("FAUCETPAY_API_KEY is required")
	}
	switch cfg.StoreDriver {
	case DriverMemory:
	case DriverPostgres:
		if cfg.DatabaseDSN == "" {
			return Config{}, fmt.Errorf("DATABASE_DSN is required when STORE_DRIVER=postgres")
		}
	default:
		return Config{}, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
	return cfg, nil
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return d, nil
}
