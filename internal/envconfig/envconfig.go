// Package envconfig reads example-program settings from the environment.
package envconfig

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Settings holds the environment used by the example programs.
type Settings struct {
	DatabaseURL   string        // DATABASE_URL
	LogMode       string        // STAGEFLOW_LOG_MODE: dev (default), prod or off
	CheckpointDir string        // STAGEFLOW_CHECKPOINT_DIR
	RetryDelay    time.Duration // STAGEFLOW_RETRY_DELAY, e.g. "500ms"
	OTelEnabled   bool          // OTEL_ENABLED
}

// Load reads Settings, applying defaults for unset variables.
func Load() (Settings, error) {
	retryDelay, err := parseEnvDuration("STAGEFLOW_RETRY_DELAY", 0)
	if err != nil {
		return Settings{}, err
	}
	otelEnabled, err := parseEnvBool("OTEL_ENABLED", false)
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		LogMode:       getEnv("STAGEFLOW_LOG_MODE", "dev"),
		CheckpointDir: getEnv("STAGEFLOW_CHECKPOINT_DIR", ".stageflow"),
		RetryDelay:    retryDelay,
		OTelEnabled:   otelEnabled,
	}, nil
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func parseEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration such as 500ms or 2s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must be >= 0", key)
	}
	return d, nil
}

func parseEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean: %w", key, err)
	}
	return parsed, nil
}
