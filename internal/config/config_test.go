package config

import (
	"os"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	os.Setenv("DATABASE_URL", "postgres://localhost/pharmacy_test")
	defer os.Unsetenv("DATABASE_URL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "8000" {
		t.Errorf("expected default port 8000, got %s", cfg.Port)
	}
	if cfg.StockUnderflowPolicy != "reject" {
		t.Errorf("expected default underflow policy reject, got %s", cfg.StockUnderflowPolicy)
	}
	if !cfg.IsDev() {
		t.Error("expected development mode by default")
	}
}

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	os.Unsetenv("DATABASE_URL")
	if _, err := Load(); err == nil {
		t.Error("expected error when DATABASE_URL is missing")
	}
}

func TestValidate_UnderflowPolicy(t *testing.T) {
	cfg := &Config{StockUnderflowPolicy: "panic"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown underflow policy")
	}

	cfg.StockUnderflowPolicy = "clamp"
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error for clamp policy: %v", err)
	}
}

func TestValidate_ConnBounds(t *testing.T) {
	cfg := &Config{StockUnderflowPolicy: "reject", DBMinConns: 10, DBMaxConns: 5}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error when min conns exceed max conns")
	}
}
