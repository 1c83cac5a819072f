package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormats(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		format string
		body   string
	}{
		{"yaml", "yaml", "model: org/model\ntemperature: 0.7\ntop_k: 40\nseed: 9\nserver:\n  address: \":9000\"\n  instances: 2\n"},
		{"toml", "toml", "model = \"org/model\"\ntemperature = 0.7\ntop_k = 40\nseed = 9\n\n[server]\naddress = \":9000\"\ninstances = 2\n"},
		{"json", "json", `{"model":"org/model","temperature":0.7,"top_k":40,"seed":9,"server":{"address":":9000","instances":2}}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := Parse([]byte(tc.body), tc.format)
			require.NoError(t, err)
			assert.Equal(t, "org/model", cfg.Model)
			require.NotNil(t, cfg.Temperature)
			assert.InDelta(t, 0.7, *cfg.Temperature, 1e-9)
			require.NotNil(t, cfg.TopK)
			assert.Equal(t, 40, *cfg.TopK)
			require.NotNil(t, cfg.Seed)
			assert.EqualValues(t, 9, *cfg.Seed)
			assert.Nil(t, cfg.TopP)
			assert.Equal(t, ":9000", cfg.Server.Address)
			require.NotNil(t, cfg.Server.Instances)
			assert.Equal(t, 2, *cfg.Server.Instances)
		})
	}
}

func TestParseRejectsInvalidValues(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("top_p: 1.5\ntemperature: -1\nstream_mode: loud\n"), "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "top_p")
	assert.Contains(t, err.Error(), "temperature")
	assert.Contains(t, err.Error(), "stream_mode")

	_, err = Parse([]byte("{"), "json")
	require.Error(t, err)

	_, err = Parse([]byte(""), "ini")
	require.Error(t, err)
}

func TestFormat(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "toml", Format("/etc/mospeada.TOML"))
	assert.Equal(t, "json", Format("config.json"))
	assert.Equal(t, "yaml", Format("config.yml"))
	assert.Equal(t, "yaml", Format("config"))
}

func TestLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := filepath.Join(dir, "mospeada.toml")
	require.NoError(t, os.WriteFile(p, []byte("log_level = \"debug\"\n"), 0o644))

	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}
