package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 7333, cfg.Server.Port)
	assert.NotNil(t, cfg.Server.AllowedOrigins, "empty slice survives the yaml round-trip, nil would not")
	assert.Empty(t, cfg.Server.AllowedOrigins)
	assert.False(t, cfg.Fixtures.Enabled)
	assert.Equal(t, "./fixtures", cfg.Fixtures.Dir)
	assert.Equal(t, 100, cfg.Fixtures.DebounceMs)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)

	assert.NoError(t, cfg.Validate(), "defaults must validate")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		valid  bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"port too low", func(c *Config) { c.Server.Port = 0 }, false},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }, false},
		{"empty host", func(c *Config) { c.Server.Host = "" }, false},
		{"fixtures without dir", func(c *Config) {
			c.Fixtures.Enabled = true
			c.Fixtures.Dir = ""
		}, false},
		{"negative debounce", func(c *Config) { c.Fixtures.DebounceMs = -1 }, false},
		{"json log format", func(c *Config) { c.Log.Format = "json" }, true},
		{"uppercase format accepted", func(c *Config) { c.Log.Format = "JSON" }, true},
		{"unknown log format", func(c *Config) { c.Log.Format = "xml" }, false},
		{"empty log format", func(c *Config) { c.Log.Format = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flowmail.yml")

	require.NoError(t, WriteDefault(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var cfg Config
	require.NoError(t, yaml.Unmarshal(data, &cfg))
	assert.Equal(t, Default(), &cfg, "written file round-trips to the defaults")
}

func TestWriteDefault_RefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flowmail.yml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9999\n"), 0o644))

	err := WriteDefault(path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Contains(t, string(data), "9999", "existing file untouched")
}
