package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// EngineConfig is the trading configuration surface: every threshold the
// engine applies is a number here, never a constant in engine logic.
type EngineConfig struct {
	// Arbitration
	SignalTTLSec        int `yaml:"signal_ttl_sec"`
	OwnershipTimeoutSec int `yaml:"ownership_timeout_sec"`
	RegimeMaxAgeSec     int `yaml:"regime_max_age_sec"`

	// Priority matrix: regime -> strategy id -> priority 0-10.
	Priorities map[string]map[string]int `yaml:"priorities"`

	// Rate governor
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`

	// Dispatch
	PendingQueueSize  int     `yaml:"pending_queue_size"`
	DispatchRetries   int     `yaml:"dispatch_retries"`
	DispatchBackoffMs int     `yaml:"dispatch_backoff_ms"`
	DefaultStopPct    float64 `yaml:"default_stop_pct"`
	DefaultTargetPct  float64 `yaml:"default_target_pct"`

	// Risk
	MaxDailyLoss float64 `yaml:"max_daily_loss"`

	// Lifecycle
	EmergencyStopAbs    float64      `yaml:"emergency_stop_abs"`
	EmergencyStopPct    float64      `yaml:"emergency_stop_pct"`
	ProfitTiers         []ProfitTier `yaml:"profit_tiers"`
	GradualTierFactor   float64      `yaml:"gradual_tier_factor"`
	UrgentFractionBoost float64      `yaml:"urgent_fraction_boost"`
	UrgentLossPct       float64      `yaml:"urgent_loss_pct"`
	BreakevenTriggerPct float64      `yaml:"breakeven_trigger_pct"`
	BreakevenBufferPct  float64      `yaml:"breakeven_buffer_pct"`
	VolTightenThreshold float64      `yaml:"vol_tighten_threshold"`
	VolLockFraction     float64      `yaml:"vol_lock_fraction"`
	AgeTightenAfterMin  int          `yaml:"age_tighten_after_min"`
	AgeLockStep         float64      `yaml:"age_lock_step"`
	AgeLockMax          float64      `yaml:"age_lock_max"`
	ScaleMaxAgeMin      int          `yaml:"scale_max_age_min"`
	ScaleMomentumPct    float64      `yaml:"scale_momentum_pct"`
	ScaleVolumeRatio    float64      `yaml:"scale_volume_ratio"`
	ScaleMaxFraction    float64      `yaml:"scale_max_fraction"`

	// Reconciliation
	OrphanStopPct   float64 `yaml:"orphan_stop_pct"`
	OrphanTargetPct float64 `yaml:"orphan_target_pct"`

	// Closure phases
	Closure ClosureConfig `yaml:"closure"`
}

// ProfitTier books a fraction of the position at a profit trigger.
type ProfitTier struct {
	TriggerPct   float64 `yaml:"trigger_pct"`
	BookFraction float64 `yaml:"book_fraction"`
}

// ClosureConfig holds the end-of-session escalation boundaries.
type ClosureConfig struct {
	Gradual   string `yaml:"gradual"`   // HH:MM
	Urgent    string `yaml:"urgent"`    // HH:MM
	Immediate string `yaml:"immediate"` // HH:MM
	Timezone  string `yaml:"timezone"`
}

// DefaultEngineConfig returns the stock thresholds.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		SignalTTLSec:        120,
		OwnershipTimeoutSec: 300,
		RegimeMaxAgeSec:     60,
		RateLimitPerSec:     7,
		PendingQueueSize:    64,
		DispatchRetries:     3,
		DispatchBackoffMs:   500,
		DefaultStopPct:      1.5,
		DefaultTargetPct:    3,
		MaxDailyLoss:        25000,
		EmergencyStopAbs:    2500,
		EmergencyStopPct:    2.5,
		ProfitTiers: []ProfitTier{
			{TriggerPct: 15, BookFraction: 0.5},
			{TriggerPct: 25, BookFraction: 0.5},
		},
		GradualTierFactor:   0.6,
		UrgentFractionBoost: 1.5,
		UrgentLossPct:       0.75,
		BreakevenTriggerPct: 8,
		BreakevenBufferPct:  0.5,
		VolTightenThreshold: 3,
		VolLockFraction:     0.5,
		AgeTightenAfterMin:  45,
		AgeLockStep:         0.2,
		AgeLockMax:          0.8,
		ScaleMaxAgeMin:      10,
		ScaleMomentumPct:    5,
		ScaleVolumeRatio:    1.5,
		ScaleMaxFraction:    0.5,
		OrphanStopPct:       5,
		OrphanTargetPct:     10,
		Closure: ClosureConfig{
			Gradual:   "15:00",
			Urgent:    "15:10",
			Immediate: "15:20",
			Timezone:  "Asia/Kolkata",
		},
	}
}

// LoadEngineConfig reads the YAML engine configuration and validates it.
// A missing file falls back to defaults; an invalid file is an error.
func LoadEngineConfig(path string) (EngineConfig, error) {
	cfg := DefaultEngineConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read engine config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse engine config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("engine config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations the engine must not start with.
func (c EngineConfig) Validate() error {
	if c.SignalTTLSec <= 0 {
		return fmt.Errorf("signal_ttl_sec must be positive, got %d", c.SignalTTLSec)
	}
	if c.OwnershipTimeoutSec <= 0 {
		return fmt.Errorf("ownership_timeout_sec must be positive, got %d", c.OwnershipTimeoutSec)
	}
	if c.RateLimitPerSec <= 0 {
		return fmt.Errorf("rate_limit_per_sec must be positive, got %.2f", c.RateLimitPerSec)
	}
	for i, tier := range c.ProfitTiers {
		if tier.TriggerPct <= 0 {
			return fmt.Errorf("profit tier %d: trigger_pct must be positive", i)
		}
		if tier.BookFraction <= 0 || tier.BookFraction > 1 {
			return fmt.Errorf("profit tier %d: book_fraction must be in (0,1], got %.2f", i, tier.BookFraction)
		}
		if i > 0 && tier.TriggerPct <= c.ProfitTiers[i-1].TriggerPct {
			return fmt.Errorf("profit tiers must have increasing triggers")
		}
	}
	for regime, row := range c.Priorities {
		for id, p := range row {
			if p < 0 || p > 10 {
				return fmt.Errorf("priority %s/%s out of range 0-10: %d", regime, id, p)
			}
		}
	}
	// Closure boundary ordering is validated by the closure controller,
	// which owns the time parsing.
	return nil
}
