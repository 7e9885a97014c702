// # internal/core/config/env.go
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Pattern: BUNDLEGRAPH_[SECTION]_[KEY] (e.g., BUNDLEGRAPH_OBSERVABILITY_PORT).
func ApplyEnvOverrides(cfg *Config) {
	// Paths
	setEnvString(&cfg.Paths.ProjectRoot, "BUNDLEGRAPH_PATHS_PROJECT_ROOT")
	setEnvString(&cfg.Paths.StateDir, "BUNDLEGRAPH_PATHS_STATE_DIR")
	setEnvString(&cfg.Paths.OutputDir, "BUNDLEGRAPH_PATHS_OUTPUT_DIR")

	// Chunks
	setEnvString(&cfg.Chunks.Hoist, "BUNDLEGRAPH_CHUNKS_HOIST")
	setEnvString(&cfg.Chunks.IDs, "BUNDLEGRAPH_CHUNKS_IDS")
	setEnvString(&cfg.Chunks.Runtime, "BUNDLEGRAPH_CHUNKS_RUNTIME")
	setEnvInt(&cfg.Chunks.HashLength, "BUNDLEGRAPH_CHUNKS_HASH_LENGTH")

	// Build
	setEnvInt(&cfg.Build.Workers, "BUNDLEGRAPH_BUILD_WORKERS")

	// Records
	setEnvString(&cfg.Records.Driver, "BUNDLEGRAPH_RECORDS_DRIVER")
	setEnvString(&cfg.Records.Path, "BUNDLEGRAPH_RECORDS_PATH")

	// Manifest
	setEnvString(&cfg.Manifest.Path, "BUNDLEGRAPH_MANIFEST_PATH")

	// Watch
	setEnvDuration(&cfg.Watch.Debounce, "BUNDLEGRAPH_WATCH_DEBOUNCE")
	setEnvDuration(&cfg.Watch.MinInterval, "BUNDLEGRAPH_WATCH_MIN_INTERVAL")

	// Observability
	setEnvBool(&cfg.Observability.Enabled, "BUNDLEGRAPH_OBSERVABILITY_ENABLED")
	setEnvInt(&cfg.Observability.Port, "BUNDLEGRAPH_OBSERVABILITY_PORT")
	setEnvString(&cfg.Observability.OTLPEndpoint, "BUNDLEGRAPH_OBSERVABILITY_OTLP_ENDPOINT")
	setEnvBool(&cfg.Observability.OTLPInsecure, "BUNDLEGRAPH_OBSERVABILITY_OTLP_INSECURE")
	setEnvBool(&cfg.Observability.EnableTracing, "BUNDLEGRAPH_OBSERVABILITY_ENABLE_TRACING")
	setEnvBool(&cfg.Observability.EnableMetrics, "BUNDLEGRAPH_OBSERVABILITY_ENABLE_METRICS")
}

func setEnvString(target *string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		slog.Debug("applying env override", "key", key, "value", val)
		*target = val
	}
}

func setEnvInt(target *int, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = i
		}
	}
}

func setEnvBool(target *bool, key string) {
	if val, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(strings.ToLower(val))
		if err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = b
		}
	}
}

func setEnvDuration(target *time.Duration, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = d
		}
	}
}
