package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the engine process.
// Trading thresholds live in the YAML engine config (engine.go); the
// environment only carries deployment concerns.
type Config struct {
	// Engine
	EngineConfigPath string
	CycleInterval    time.Duration

	// Persistence
	DBPath string

	// Execution
	DryRun            bool
	BrokerCallTimeout time.Duration

	// Session scheduling (cron expressions, with seconds field)
	SessionOpenCron  string
	SessionCloseCron string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		EngineConfigPath:  getEnv("ENGINE_CONFIG_PATH", "engine.yaml"),
		CycleInterval:     getEnvDuration("CYCLE_INTERVAL", 5*time.Second),
		DBPath:            getEnv("DB_PATH", "./data/engine.db"),
		DryRun:            getEnv("DRY_RUN", "true") == "true",
		BrokerCallTimeout: getEnvDuration("BROKER_CALL_TIMEOUT", 5*time.Second),
		SessionOpenCron:   getEnv("SESSION_OPEN_CRON", "0 15 9 * * 1-5"),
		SessionCloseCron:  getEnv("SESSION_CLOSE_CRON", "0 35 15 * * 1-5"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return def
}
