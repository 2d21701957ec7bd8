package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	assert := assert.New(t)

	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(dir, cfg.DataDir)
	assert.Equal(":8080", cfg.ListenAddr)
	assert.Equal(120000, cfg.Speedtest.TimeoutMS)
	assert.Equal(0, cfg.Speedtest.IntervalMin)
	assert.False(cfg.Speedtest.RunOnStart)
	assert.False(cfg.Speedtest.EmbeddedFallback)
	assert.Equal(filepath.Join(dir, "speedtest-state.json"), cfg.Speedtest.StateFile)
}

func TestLoadFromFile(t *testing.T) {
	assert := assert.New(t)

	dir := t.TempDir()
	yaml := `
listen_addr: ":9090"
log:
  pretty: true
  level: debug
speedtest:
  timeout_ms: 60000
  interval_min: 15
  run_on_start: true
  embedded_fallback: true
  override_path: /opt/speedtest
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "argus.yaml"), []byte(yaml), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(":9090", cfg.ListenAddr)
	assert.True(cfg.Log.Pretty)
	assert.Equal("debug", cfg.Log.Level)
	assert.Equal(60000, cfg.Speedtest.TimeoutMS)
	assert.Equal(15, cfg.Speedtest.IntervalMin)
	assert.True(cfg.Speedtest.RunOnStart)
	assert.True(cfg.Speedtest.EmbeddedFallback)
	assert.Equal("/opt/speedtest", cfg.Speedtest.OverridePath)
}

func TestLoadEnvOverrides(t *testing.T) {
	assert := assert.New(t)

	t.Setenv("ARGUS_SPEEDTEST_INTERVAL_MIN", "30")
	t.Setenv("ARGUS_SPEEDTEST_STATE_FILE", "/var/lib/argus/state.json")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(30, cfg.Speedtest.IntervalMin)
	assert.Equal("/var/lib/argus/state.json", cfg.Speedtest.StateFile)
}

func TestLoadRejectsBadTimeout(t *testing.T) {
	assert := assert.New(t)

	t.Setenv("ARGUS_SPEEDTEST_TIMEOUT_MS", "-5")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(120000, cfg.Speedtest.TimeoutMS, "non-positive timeout falls back to default")
}
