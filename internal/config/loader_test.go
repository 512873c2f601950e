package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func TestLoad(t *testing.T) {
	// Keep the suite independent of the invoking user's real config.
	t.Setenv("HOME", t.TempDir())
	chdir(t, t.TempDir())

	t.Run("LoadDefaults", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, "localhost:8080", cfg.Server.Addr())
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
		assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
		assert.Equal(t, "info", cfg.Logging.Level)
		assert.NotEmpty(t, cfg.DataDir)
		assert.Equal(t, filepath.Join(cfg.DataDir, "jobs"), cfg.JobsDir())
		assert.Equal(t, filepath.Join(cfg.DataDir, "ledgers"), cfg.LedgersDir())
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		t.Setenv("INGRAIN_SERVER_PORT", "3000")
		t.Setenv("INGRAIN_LOG_LEVEL", "warn")
		t.Setenv("INGRAIN_DATA_DIR", "/var/lib/ingrain")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 3000, cfg.Server.Port)
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.Equal(t, "/var/lib/ingrain", cfg.DataDir)
	})

	t.Run("RuntimeOverrides", func(t *testing.T) {
		overrides := map[string]any{
			"server": map[string]any{
				"port": 9000,
				"host": "0.0.0.0",
			},
			"logging": map[string]any{
				"level": "debug",
			},
		}

		cfg, err := Load(overrides)
		require.NoError(t, err)
		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, "debug", cfg.Logging.Level)
		// Non-overridden values keep their defaults.
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	})

	// Precedence: runtime > env > file > defaults.
	t.Run("ConfigPrecedence", func(t *testing.T) {
		t.Setenv("INGRAIN_SERVER_PORT", "4000")

		cfg, err := Load(map[string]any{
			"server": map[string]any{"port": 5000},
		})
		require.NoError(t, err)
		assert.Equal(t, 5000, cfg.Server.Port)
	})

	t.Run("ConfigFile", func(t *testing.T) {
		dir := t.TempDir()
		chdir(t, dir)
		body := "data_dir: /srv/ingrain\nserver:\n  port: 7070\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, "ingrain.yaml"), []byte(body), 0o644))

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "/srv/ingrain", cfg.DataDir)
		assert.Equal(t, 7070, cfg.Server.Port)
		// File only overrides what it names.
		assert.Equal(t, "localhost", cfg.Server.Host)
	})

	t.Run("DurationFromEnv", func(t *testing.T) {
		t.Setenv("INGRAIN_SERVER_READ_TIMEOUT", "45s")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 45*time.Second, cfg.Server.ReadTimeout)
	})
}
