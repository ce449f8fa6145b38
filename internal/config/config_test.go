package config

import (
	"strings"
	"testing"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.HTTPPort != "8080" {
		t.Errorf("expected default port 8080, got %q", cfg.HTTPPort)
	}
	if cfg.TaxRate.String() != "0.19" {
		t.Errorf("expected default tax rate 0.19, got %s", cfg.TaxRate)
	}
	if cfg.EventsExchange != "restaurant_events" {
		t.Errorf("expected default exchange, got %q", cfg.EventsExchange)
	}
	if !cfg.IsDevelopment() {
		t.Error("expected development environment by default")
	}
	if len(cfg.Warnings) == 0 {
		t.Error("expected warnings for default DSN and CORS")
	}
}

func TestLoad_RejectsMissingOrShortSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing JWT_SECRET")
	}

	t.Setenv("JWT_SECRET", "short")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for short JWT_SECRET")
	}
}

func TestLoad_InvalidDecimal(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("TAX_RATE", "abc")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid TAX_RATE")
	}
	if !strings.Contains(err.Error(), "TAX_RATE") {
		t.Errorf("expected error to mention TAX_RATE, got %q", err.Error())
	}
}

func TestLoad_ThresholdOrder(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("CASH_VARIANCE_WARN_PCT", "10")
	t.Setenv("CASH_VARIANCE_CRITICAL_PCT", "2")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when critical threshold is below warning threshold")
	}
}

func TestCORSOriginList(t *testing.T) {
	cfg := &Config{CORSOrigins: " http://a.test , ,http://b.test"}
	got := cfg.CORSOriginList()
	if len(got) != 2 || got[0] != "http://a.test" || got[1] != "http://b.test" {
		t.Errorf("unexpected origins %v", got)
	}
}
