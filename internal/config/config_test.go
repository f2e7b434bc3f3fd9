package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	tests := []struct {
		name  string
		check func(*Config) bool
	}{
		{"default mode is api", func(c *Config) bool { return c.Mode == "api" }},
		{"default host is 0.0.0.0", func(c *Config) bool { return c.Host == "0.0.0.0" }},
		{"default port is 8080", func(c *Config) bool { return c.Port == 8080 }},
		{"default log level is info", func(c *Config) bool { return c.LogLevel == "info" }},
		{"default log format is json", func(c *Config) bool { return c.LogFormat == "json" }},
		{"default rate limit max is 100", func(c *Config) bool { return c.RateLimitMax == 100 }},
		{"default rate limit window is 1m", func(c *Config) bool { return c.RateLimitWindow == time.Minute }},
		{"default idempotency TTL is 5m", func(c *Config) bool { return c.IdempotencyTTL == 5*time.Minute }},
		{"default payment provider is mock", func(c *Config) bool { return c.PaymentProvider == "mock" }},
		{"default reconciliation threshold is 15m", func(c *Config) bool { return c.ReconciliationThreshold == 15*time.Minute }},
		{"listen addr format", func(c *Config) bool { return c.ListenAddr() == "0.0.0.0:8080" }},
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(cfg) {
				t.Error("default value mismatch")
			}
		})
	}
}

func TestIsProduction(t *testing.T) {
	cfg := &Config{Mode: "production"}
	if !cfg.IsProduction() {
		t.Error("IsProduction() should be true when Mode is production")
	}

	cfg = &Config{Mode: "api"}
	if cfg.IsProduction() {
		t.Error("IsProduction() should be false for non-production modes")
	}
}
