// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds everything the server needs to start.
type Config struct {
	// Port the API listens on.
	Port string

	// RemoteBaseURL is the store of record's base URL.
	RemoteBaseURL string

	// RemoteToken is the fallback bearer credential for the store of
	// record, used when a request carries no session of its own.
	RemoteToken string

	// UploadURL is the receipt upload endpoint. Empty disables receipt
	// attachment.
	UploadURL string

	// JWTSecret signs and verifies session tokens.
	JWTSecret string

	// TokenDuration is how long issued tokens remain valid.
	TokenDuration time.Duration

	// RequestTimeout bounds each call to the store of record.
	RequestTimeout time.Duration

	// WarnThreshold is the budget ratio that triggers a warning.
	WarnThreshold float64
}

// Load reads configuration from the environment, applying defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		RemoteBaseURL:  os.Getenv("REMOTE_BASE_URL"),
		RemoteToken:    os.Getenv("REMOTE_TOKEN"),
		UploadURL:      os.Getenv("UPLOAD_URL"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		TokenDuration:  24 * time.Hour,
		RequestTimeout: 15 * time.Second,
		WarnThreshold:  0,
	}

	if v := os.Getenv("TOKEN_DURATION"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("parse TOKEN_DURATION: %w", err)
		}
		cfg.TokenDuration = d
	}
	if v := os.Getenv("REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("parse REQUEST_TIMEOUT: %w", err)
		}
		cfg.RequestTimeout = d
	}
	if v := os.Getenv("WARN_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("parse WARN_THRESHOLD: %w", err)
		}
		cfg.WarnThreshold = f
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that required settings are present and sane.
func (c *Config) Validate() error {
	if c.RemoteBaseURL == "" {
		return errors.New("REMOTE_BASE_URL is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.WarnThreshold < 0 || c.WarnThreshold >= 1 {
		if c.WarnThreshold != 0 {
			return fmt.Errorf("WARN_THRESHOLD must be in (0, 1), got %v", c.WarnThreshold)
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
