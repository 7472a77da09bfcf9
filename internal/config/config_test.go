package config

import (
	"testing"
	"time"
)

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when DATABASE_URL is unset")
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/smilehealth")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8000" {
		t.Errorf("expected default port 8000, got %s", cfg.Port)
	}
	if !cfg.IsDev() {
		t.Error("expected default env to be development")
	}
	if cfg.JWTTTL != 24*time.Hour {
		t.Errorf("expected default JWT TTL 24h, got %s", cfg.JWTTTL)
	}
}

func TestValidate_ProductionNeedsSecret(t *testing.T) {
	cfg := &Config{Env: "production", JWTTTL: time.Hour}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for production without JWT_SECRET")
	}

	cfg.JWTSecret = "secret"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestValidate_DevAllowsEmptySecret(t *testing.T) {
	cfg := &Config{Env: "development", JWTTTL: time.Hour}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected validation error in dev: %v", err)
	}
}
