package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultInput, cfg.Input)
	assert.Equal(t, DefaultDBPath, cfg.DBPath)
	assert.Equal(t, DefaultBatchSize, cfg.BatchSize)
	assert.Equal(t, "tree", cfg.Order)
	assert.Equal(t, "now", cfg.TimeFallback)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `input: export.json
batch_size: 250
order: mapping
log:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	t.Setenv("CHATLOG_BATCH_SIZE", "50")
	t.Setenv("CHATLOG_TIME_FALLBACK", "epoch")
	t.Setenv("CHATLOG_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "export.json", cfg.Input)
	assert.Equal(t, DefaultDBPath, cfg.DBPath)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, "mapping", cfg.Order)
	assert.Equal(t, "epoch", cfg.TimeFallback)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("batch_size: 0\n"), 0600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch_size")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"bad order", func(c *Config) { c.Order = "random" }, true},
		{"bad fallback", func(c *Config) { c.TimeFallback = "later" }, true},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, true},
		{"negative batch", func(c *Config) { c.BatchSize = -1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CHATLOG_CONFIG_DIR", dir)

	cfg := Default()
	cfg.BatchSize = 42
	cfg.MetricsFile = "/tmp/chatlog.prom"
	require.NoError(t, cfg.Save(""))

	path, err := DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config.yaml"), path)

	loaded, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 42, loaded.BatchSize)
	assert.Equal(t, "/tmp/chatlog.prom", loaded.MetricsFile)
}

func TestGetDataDirOverride(t *testing.T) {
	t.Setenv("CHATLOG_DATA_DIR", "/var/lib/chatlog")
	dir, err := GetDataDir()
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/chatlog", dir)
}
