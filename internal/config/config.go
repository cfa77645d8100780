package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

// Config is the CLI configuration loaded from file and environment.
type Config struct {
	// DataDir is the local event log directory.
	DataDir string `json:"dataDir"`
	// LogLevel is one of debug|info|warn|error.
	LogLevel string `json:"logLevel"`
	// LogFormat is text or json.
	LogFormat string `json:"logFormat"`
	// BatchSize bounds a single fetch.
	BatchSize int `json:"batchSize"`
	// BlockMs is how long a fetch waits for new records, in milliseconds.
	BlockMs int `json:"blockMs"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		DataDir:   DefaultDataDir(),
		LogLevel:  "info",
		LogFormat: "text",
		BatchSize: 100,
		BlockMs:   1000,
	}
}

// Load reads configuration from a JSON file. If path is empty, returns
// defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	if ext := filepath.Ext(path); ext != ".json" {
		return Config{}, errors.New("config: only JSON files are supported")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
