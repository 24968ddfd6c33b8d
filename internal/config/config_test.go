package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "./leadfunnel.db", cfg.DBPath)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Minute, cfg.Tracking.AbandonAfter)
	assert.True(t, cfg.Variants.Sticky)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lf.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
db_path: /var/lib/lf/data.db
server:
  port: 9000
log:
  level: debug
  format: console
tracking:
  abandon_after: 45m
  reap_interval: 2m
variants:
  sticky: false
`), 0o600))

	t.Run("file values", func(t *testing.T) {
		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "/var/lib/lf/data.db", cfg.DBPath)
		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, "console", cfg.Log.Format)
		assert.Equal(t, 45*time.Minute, cfg.Tracking.AbandonAfter)
		assert.Equal(t, 2*time.Minute, cfg.Tracking.ReapInterval)
		assert.False(t, cfg.Variants.Sticky)
	})

	t.Run("environment wins", func(t *testing.T) {
		t.Setenv("LF_PORT", "7000")
		t.Setenv("LF_ABANDON_AFTER", "10m")
		t.Setenv("LF_STICKY_VARIANTS", "true")

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, 7000, cfg.Server.Port)
		assert.Equal(t, 10*time.Minute, cfg.Tracking.AbandonAfter)
		assert.True(t, cfg.Variants.Sticky)
	})
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv("LF_PORT", "eighty")
	_, err := Load("")
	require.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Tracking.AbandonAfter = 0
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Server.Port = 70000
	require.Error(t, cfg.Validate())

	require.NoError(t, Default().Validate())
}
