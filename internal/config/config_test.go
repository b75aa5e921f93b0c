package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "8000" {
		t.Errorf("expected default port 8000, got %s", cfg.Port)
	}
	if !cfg.IsDev() {
		t.Errorf("expected development env by default, got %s", cfg.Env)
	}
	if cfg.DBMaxConns != 20 || cfg.DBMinConns != 5 {
		t.Errorf("unexpected pool defaults: max=%d min=%d", cfg.DBMaxConns, cfg.DBMinConns)
	}
	if cfg.RateLimitRPS != 100 || cfg.RateLimitBurst != 200 {
		t.Errorf("unexpected rate limit defaults: rps=%v burst=%d", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/medbook")
	t.Setenv("CORS_ORIGINS", "https://a.example.com,https://b.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "9000" {
		t.Errorf("expected port 9000, got %s", cfg.Port)
	}
	if cfg.IsDev() {
		t.Error("production env should not report as dev")
	}
	if cfg.DatabaseURL != "postgres://localhost:5432/medbook" {
		t.Errorf("unexpected database url %s", cfg.DatabaseURL)
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Errorf("expected 2 CORS origins, got %v", cfg.CORSOrigins)
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{RateLimitRPS: 100, RateLimitBurst: 200}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error without DATABASE_URL")
	}

	cfg.InMemory = true
	if err := cfg.Validate(); err != nil {
		t.Errorf("in-memory mode should not require a database: %v", err)
	}

	cfg.InMemory = false
	cfg.DatabaseURL = "postgres://localhost:5432/medbook"
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	cfg.RateLimitRPS = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for non-positive rate limit")
	}
}
