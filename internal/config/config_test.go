package config

import (
	"testing"

	"github.com/spf13/viper"
)

func loadForTest(t *testing.T, env map[string]string) *Config {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	for key, value := range env {
		t.Setenv(key, value)
	}
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	return cfg
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg := loadForTest(t, nil)

	if cfg.ServerPort != "8086" {
		t.Errorf("expected default port 8086, got %q", cfg.ServerPort)
	}
	if cfg.MaxAccountsPerCustomer != 4 {
		t.Errorf("expected default account limit of 4, got %d", cfg.MaxAccountsPerCustomer)
	}
	if cfg.MigrationsPath != "migrations" {
		t.Errorf("expected default migrations path, got %q", cfg.MigrationsPath)
	}
	if cfg.RateLimitPerMinute != 60 {
		t.Errorf("expected default rate limit of 60, got %d", cfg.RateLimitPerMinute)
	}
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	cfg := loadForTest(t, map[string]string{
		"DATABASE_URL":              "postgres://localhost:5432/linking",
		"SERVER_PORT":               "9090",
		"MAX_ACCOUNTS_PER_CUSTOMER": "2",
		"JWT_SECRET":                "supersecret",
	})

	if cfg.DatabaseURL != "postgres://localhost:5432/linking" {
		t.Errorf("unexpected database url %q", cfg.DatabaseURL)
	}
	if cfg.ServerPort != "9090" {
		t.Errorf("expected port 9090, got %q", cfg.ServerPort)
	}
	if cfg.MaxAccountsPerCustomer != 2 {
		t.Errorf("expected account limit of 2, got %d", cfg.MaxAccountsPerCustomer)
	}
	if cfg.JWTSecret != "supersecret" {
		t.Errorf("unexpected jwt secret %q", cfg.JWTSecret)
	}
}
