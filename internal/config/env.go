package config

import (
	"os"
	"strconv"
)

// FromEnv overlays FLUME_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("FLUME_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("FLUME_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("FLUME_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("FLUME_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.BatchSize = n
		}
	}
	if v := os.Getenv("FLUME_BLOCK_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.BlockMs = n
		}
	}
}
