// Package config holds process settings shared by the server and the CLI.
// Values come from HEALTH_* environment variables, optionally seeded from a
// .env file, and act as defaults for command line flags.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix of every environment variable read by Load
const envPrefix = "HEALTH"

// Config is the process configuration
type Config struct {
	HTTPAddr     string `envconfig:"HTTP_ADDR" default:":8080"`
	TemporalAddr string `envconfig:"TEMPORAL_ADDR" default:"localhost:7233"`
	Namespace    string `envconfig:"NAMESPACE" default:"default"`
	TaskQueue    string `envconfig:"TASK_QUEUE" default:"health-pipeline"`
	LogLevel     string `envconfig:"LOG_LEVEL" default:"info"`
	ExportDir    string `envconfig:"EXPORT_DIR"`
	OutputDir    string `envconfig:"OUTPUT_DIR" default:"output"`
}

// Load reads .env (ignored when missing) and then the environment
func Load() (Config, error) {
	_ = godotenv.Load() // ignore missing file
	return FromEnv()
}

// FromEnv builds a Config from the current environment
func FromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to read environment: %w", err)
	}
	return cfg, nil
}

// NewLogger returns a text logger for level (debug, info, warn, error)
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
