package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_NoConfigFile(t *testing.T) {
	// Loading a nonexistent default location falls back to defaults
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, DefaultTableCapacity, cfg.Table.Capacity)
	assert.True(t, cfg.GC.Clustering)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
logging:
  level: debug
  format: json
table:
  capacity: 4096
gc:
  workers: 2
  clustering: true
  multithreaded_destruction: true
  allow_eliminating_references: true
  time_limit: 5ms
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	// Level is normalized to uppercase
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 4096, cfg.Table.Capacity)
	assert.Equal(t, 2, cfg.GC.Workers)
	assert.Equal(t, 5*time.Millisecond, cfg.GC.TimeLimit)

	// Unspecified values get defaults
	assert.Equal(t, "stdout", cfg.Logging.Output)
	assert.Equal(t, 512, cfg.GC.MinObjectsPerWorker)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging: [not: valid"), 0644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_InvalidLevel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
logging:
  level: verbose
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Logging.Level")
}

func TestSaveConfig_Roundtrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	cfg := GetDefaultConfig()
	cfg.Logging.Level = "DEBUG"
	cfg.Table.Capacity = 1 << 16
	cfg.GC.Workers = 4

	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", loaded.Logging.Level)
	assert.Equal(t, 1<<16, loaded.Table.Capacity)
	assert.Equal(t, 4, loaded.GC.Workers)
}

func TestMustLoad_ExplicitMissingFile(t *testing.T) {
	_, err := MustLoad(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration file not found")
}

func TestDurationDecodeHook(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
gc:
  clustering: true
  multithreaded_destruction: true
  allow_eliminating_references: true
  time_limit: 250us
  interval: 2s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Microsecond, cfg.GC.TimeLimit)
	assert.Equal(t, 2*time.Second, cfg.GC.Interval)
}
