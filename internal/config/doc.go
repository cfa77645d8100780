// Package config loads CLI configuration from an optional JSON file with
// FLUME_* environment variables overlaid on top.
package config
