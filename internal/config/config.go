package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	RedisURL    string

	// Gateway credentials. Absence of any of the three disables the gateway.
	GatewayDisplayName string
	GatewayAPIKey      string
	GatewayBaseURL     string
	GatewayTimeout     time.Duration

	// CallbackBaseURL is the public base URL callbacks are built against.
	CallbackBaseURL string

	// Pages the synchronous channels redirect the payer to.
	AccountPageURL      string
	ConfirmationPageURL string
	LevelsPageURL       string

	OrderLockTTL time.Duration
	IPNReplayTTL time.Duration
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:      valueOrDefault(k.String("APP_ENV"), "development"),
		Port:        valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL: k.String("DATABASE_URL"),
		RedisURL:    k.String("REDIS_URL"),

		GatewayDisplayName: strings.TrimSpace(k.String("UDDOKTAPAY_DISPLAY_NAME")),
		GatewayAPIKey:      strings.TrimSpace(k.String("UDDOKTAPAY_API_KEY")),
		GatewayBaseURL:     strings.TrimRight(strings.TrimSpace(k.String("UDDOKTAPAY_API_URL")), "/"),
		GatewayTimeout:     parseDuration(k.String("UDDOKTAPAY_TIMEOUT"), "10s"),

		CallbackBaseURL: strings.TrimRight(strings.TrimSpace(k.String("CALLBACK_BASE_URL")), "/"),

		AccountPageURL:      valueOrDefault(k.String("PAGE_ACCOUNT_URL"), "/account"),
		ConfirmationPageURL: valueOrDefault(k.String("PAGE_CONFIRMATION_URL"), "/confirmation"),
		LevelsPageURL:       valueOrDefault(k.String("PAGE_LEVELS_URL"), "/levels"),

		OrderLockTTL: parseDuration(k.String("ORDER_LOCK_TTL"), "30s"),
		IPNReplayTTL: parseDuration(k.String("IPN_REPLAY_TTL"), "10m"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.CallbackBaseURL == "" {
		return nil, errors.New("CALLBACK_BASE_URL is required")
	}

	return cfg, nil
}

// GatewayReady reports whether the gateway is fully configured. The surrounding
// system must not offer the gateway at checkout while this returns false.
func (c *Config) GatewayReady() bool {
	return c.GatewayDisplayName != "" && c.GatewayAPIKey != "" && c.GatewayBaseURL != ""
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}
