package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := LoadEngineConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	def := DefaultEngineConfig()
	if cfg.RateLimitPerSec != def.RateLimitPerSec || cfg.SignalTTLSec != def.SignalTTLSec {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
signal_ttl_sec: 90
rate_limit_per_sec: 5
priorities:
  RANGING:
    range_fader: 9
closure:
  gradual: "14:45"
  urgent: "15:05"
  immediate: "15:15"
  timezone: "Asia/Kolkata"
`)
	cfg, err := LoadEngineConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SignalTTLSec != 90 || cfg.RateLimitPerSec != 5 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Priorities["RANGING"]["range_fader"] != 9 {
		t.Fatalf("priorities not loaded: %v", cfg.Priorities)
	}
	if cfg.Closure.Gradual != "14:45" {
		t.Fatalf("closure override missing: %+v", cfg.Closure)
	}
	// Untouched keys keep their defaults.
	if cfg.OwnershipTimeoutSec != DefaultEngineConfig().OwnershipTimeoutSec {
		t.Fatalf("unrelated default lost: %d", cfg.OwnershipTimeoutSec)
	}
}

func TestInvalidConfigRefused(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"zero ttl", "signal_ttl_sec: 0"},
		{"negative rate", "rate_limit_per_sec: -1"},
		{"tier fraction over one", "profit_tiers:\n  - trigger_pct: 10\n    book_fraction: 1.5"},
		{"non-increasing tiers", "profit_tiers:\n  - trigger_pct: 20\n    book_fraction: 0.5\n  - trigger_pct: 15\n    book_fraction: 0.5"},
		{"priority out of range", "priorities:\n  RANGING:\n    range_fader: 11"},
		{"malformed yaml", "signal_ttl_sec: [not a number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadEngineConfig(writeTempConfig(t, tt.yaml)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
