package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	os.Unsetenv("MSB_PORT")
	os.Unsetenv("MSB_API_KEY")
	os.Unsetenv("MSB_LOG_LEVEL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Port)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected log level info, got %s", cfg.LogLevel)
	}
	if cfg.PortMin != 6000 || cfg.PortMax != 7000 {
		t.Errorf("expected default port range [6000,7000], got [%d,%d]", cfg.PortMin, cfg.PortMax)
	}
}

func TestLoadFromEnv(t *testing.T) {
	os.Setenv("MSB_PORT", "9999")
	os.Setenv("MSB_API_KEY", "test-key")
	defer func() {
		os.Unsetenv("MSB_PORT")
		os.Unsetenv("MSB_API_KEY")
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Port != 9999 {
		t.Errorf("expected port 9999, got %d", cfg.Port)
	}
	if cfg.APIKey != "test-key" {
		t.Errorf("expected API key test-key, got %s", cfg.APIKey)
	}
}

func TestLoadRejectsInvertedPortRange(t *testing.T) {
	os.Setenv("MSB_PORT_MIN", "7000")
	os.Setenv("MSB_PORT_MAX", "6000")
	defer func() {
		os.Unsetenv("MSB_PORT_MIN")
		os.Unsetenv("MSB_PORT_MAX")
	}()

	if _, err := Load(); err == nil {
		t.Error("expected error for inverted port range")
	}
}
