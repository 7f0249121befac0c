package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Env != "development" {
		t.Errorf("expected development env, got %s", cfg.Env)
	}
	if cfg.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Port)
	}
	if cfg.Preview.TokenTTL != 24*time.Hour {
		t.Errorf("expected 24h token TTL, got %v", cfg.Preview.TokenTTL)
	}
	if cfg.Scheduler.PollInterval != 15*time.Second {
		t.Errorf("expected 15s poll interval, got %v", cfg.Scheduler.PollInterval)
	}
	if cfg.Scheduler.SweepInterval != time.Minute {
		t.Errorf("expected 1m sweep interval, got %v", cfg.Scheduler.SweepInterval)
	}
	// Dev fallback secret so local runs work without a .env file.
	if cfg.Preview.SecretKey == "" {
		t.Error("expected dev fallback secret")
	}
	if !cfg.IsDevelopment() {
		t.Error("expected IsDevelopment true for default env")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9001")
	t.Setenv("PREVIEW_TOKEN_TTL", "2h")
	t.Setenv("SCHEDULER_POLL_INTERVAL", "5s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 9001 {
		t.Errorf("expected port 9001, got %d", cfg.Port)
	}
	if cfg.Preview.TokenTTL != 2*time.Hour {
		t.Errorf("expected 2h token TTL, got %v", cfg.Preview.TokenTTL)
	}
	if cfg.Scheduler.PollInterval != 5*time.Second {
		t.Errorf("expected 5s poll interval, got %v", cfg.Scheduler.PollInterval)
	}
}

func TestLoad_ProductionRequiresSecret(t *testing.T) {
	t.Setenv("ENV", "production")

	if _, err := Load(); err == nil {
		t.Error("expected missing SECRET_KEY to fail in production")
	}

	t.Setenv("SECRET_KEY", "too-short")
	if _, err := Load(); err == nil {
		t.Error("expected short SECRET_KEY to fail in production")
	}

	t.Setenv("SECRET_KEY", "a-perfectly-reasonable-32-char-secret!!")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.IsDevelopment() {
		t.Error("expected IsDevelopment false in production")
	}
}
