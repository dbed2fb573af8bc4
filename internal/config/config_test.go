package config

import (
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("REMOTE_BASE_URL", "http://localhost:9090")
	t.Setenv("JWT_SECRET", "test-secret")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want %q", cfg.Port, "8080")
	}
	if cfg.TokenDuration != 24*time.Hour {
		t.Errorf("TokenDuration = %v, want 24h", cfg.TokenDuration)
	}
	if cfg.RequestTimeout != 15*time.Second {
		t.Errorf("RequestTimeout = %v, want 15s", cfg.RequestTimeout)
	}
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "9999")
	t.Setenv("REQUEST_TIMEOUT", "5s")
	t.Setenv("WARN_THRESHOLD", "0.9")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != "9999" {
		t.Errorf("Port = %q, want %q", cfg.Port, "9999")
	}
	if cfg.RequestTimeout != 5*time.Second {
		t.Errorf("RequestTimeout = %v, want 5s", cfg.RequestTimeout)
	}
	if cfg.WarnThreshold != 0.9 {
		t.Errorf("WarnThreshold = %v, want 0.9", cfg.WarnThreshold)
	}
}

func TestLoad_MissingRemoteURL(t *testing.T) {
	t.Setenv("REMOTE_BASE_URL", "")
	t.Setenv("JWT_SECRET", "test-secret")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "REMOTE_BASE_URL") {
		t.Errorf("Load() error = %v, want REMOTE_BASE_URL error", err)
	}
}

func TestLoad_BadThreshold(t *testing.T) {
	setRequired(t)
	t.Setenv("WARN_THRESHOLD", "1.5")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "WARN_THRESHOLD") {
		t.Errorf("Load() error = %v, want WARN_THRESHOLD error", err)
	}
}
