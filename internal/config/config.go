// Package config loads client configuration from the environment and an optional .env file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/billix-app/billix/internal/session"
	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	LogLevel string

	// Remote backend
	DatabaseURL string // Postgres DSN of the backend project
	APIBaseURL  string // REST base for upload and ask
	JWTSecret   string // verifies access tokens locally; empty skips signature checks

	// Local state
	ConfigDir         string
	SessionPassphrase string // optional; derives the session key instead of device.key

	// Platform purchases
	ReceiptsDir  string
	StoreRootPEM string // trusted root certificates for signed transactions
	BundleID     string

	// Quota and tokens
	FreeWeeklyLimit   int
	PrimeWeeklyLimit  int
	WarnRatio         float64
	CritRatio         float64
	FreeMonthlyTokens int
	TokenPackSize     int

	SettingsRetryBase time.Duration
	CommandTimeout    time.Duration

	// Metrics
	PushgatewayURL string
}

// Load reads configuration. With no files, a .env in the working directory
// is loaded if present; explicitly named files must exist. Variables already
// set in the environment win over file values.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		_ = godotenv.Load()
	} else if err := godotenv.Load(files...); err != nil {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	dir := getEnv("BILLIX_CONFIG_DIR", session.DefaultDir())
	cfg := &Config{
		Env:      getEnv("BILLIX_ENV", "production"),
		LogLevel: getEnv("BILLIX_LOG_LEVEL", "warn"),

		DatabaseURL: getEnv("BILLIX_DATABASE_URL", ""),
		APIBaseURL:  strings.TrimRight(getEnv("BILLIX_API_BASE_URL", "http://localhost:8080"), "/"),
		JWTSecret:   getEnv("BILLIX_JWT_SECRET", ""),

		ConfigDir:         dir,
		SessionPassphrase: getEnv("BILLIX_SESSION_PASSPHRASE", ""),

		ReceiptsDir:  getEnv("BILLIX_RECEIPTS_DIR", filepath.Join(dir, "receipts")),
		StoreRootPEM: getEnv("BILLIX_STORE_ROOT_PEM", ""),
		BundleID:     getEnv("BILLIX_BUNDLE_ID", "com.billix.app"),

		FreeWeeklyLimit:   getEnvInt("BILLIX_FREE_WEEKLY_LIMIT", 10),
		PrimeWeeklyLimit:  getEnvInt("BILLIX_PRIME_WEEKLY_LIMIT", 50),
		WarnRatio:         getEnvFloat("BILLIX_WARN_RATIO", 0.3),
		CritRatio:         getEnvFloat("BILLIX_CRIT_RATIO", 0.1),
		FreeMonthlyTokens: getEnvInt("BILLIX_FREE_MONTHLY_TOKENS", 2),
		TokenPackSize:     getEnvInt("BILLIX_TOKEN_PACK_SIZE", 3),

		SettingsRetryBase: getEnvDuration("BILLIX_SETTINGS_RETRY_BASE", 500*time.Millisecond),
		CommandTimeout:    getEnvDuration("BILLIX_COMMAND_TIMEOUT", 150*time.Second),

		PushgatewayURL: getEnv("BILLIX_PUSHGATEWAY_URL", ""),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.FreeWeeklyLimit < 1 || c.PrimeWeeklyLimit < 1 {
		return fmt.Errorf("weekly limits must be at least 1, got free=%d prime=%d", c.FreeWeeklyLimit, c.PrimeWeeklyLimit)
	}
	if c.PrimeWeeklyLimit < c.FreeWeeklyLimit {
		return fmt.Errorf("prime weekly limit %d is below free limit %d", c.PrimeWeeklyLimit, c.FreeWeeklyLimit)
	}
	if c.CritRatio < 0 || c.WarnRatio > 1 || c.CritRatio >= c.WarnRatio {
		return fmt.Errorf("need 0 <= crit < warn <= 1, got crit=%v warn=%v", c.CritRatio, c.WarnRatio)
	}
	if c.FreeMonthlyTokens < 0 {
		return fmt.Errorf("free monthly tokens must not be negative, got %d", c.FreeMonthlyTokens)
	}
	if c.TokenPackSize < 1 {
		return fmt.Errorf("token pack size must be at least 1, got %d", c.TokenPackSize)
	}
	if c.SettingsRetryBase <= 0 || c.CommandTimeout < time.Second {
		return fmt.Errorf("durations out of range: settings retry %v, command timeout %v", c.SettingsRetryBase, c.CommandTimeout)
	}
	if c.ConfigDir == "" {
		return fmt.Errorf("config dir is empty")
	}
	return nil
}

// Development reports whether the client runs in development mode.
func (c *Config) Development() bool { return c.Env == "development" }

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
