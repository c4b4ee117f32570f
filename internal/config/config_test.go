package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unsetenv clears key for the test and restores it afterwards
func unsetenv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{"HTTP_ADDR", "TEMPORAL_ADDR", "NAMESPACE", "TASK_QUEUE", "LOG_LEVEL", "EXPORT_DIR", "OUTPUT_DIR"} {
		unsetenv(t, envPrefix+"_"+key)
	}

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, Config{
		HTTPAddr:     ":8080",
		TemporalAddr: "localhost:7233",
		Namespace:    "default",
		TaskQueue:    "health-pipeline",
		LogLevel:     "info",
		OutputDir:    "output",
	}, cfg)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("HEALTH_HTTP_ADDR", ":9090")
	t.Setenv("HEALTH_EXPORT_DIR", "/data/exports")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "/data/exports", cfg.ExportDir)
}

func TestDotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("HEALTH_TASK_QUEUE=nightly\n"), 0644))

	unsetenv(t, "HEALTH_TASK_QUEUE")
	require.NoError(t, godotenv.Load(path))

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "nightly", cfg.TaskQueue)
}

func TestNewLogger(t *testing.T) {
	ctx := context.Background()
	assert.True(t, NewLogger("debug").Enabled(ctx, slog.LevelDebug))
	assert.False(t, NewLogger("WARN").Enabled(ctx, slog.LevelInfo))
	assert.True(t, NewLogger("bogus").Enabled(ctx, slog.LevelInfo))
	assert.False(t, NewLogger("error").Enabled(ctx, slog.LevelWarn))
}
