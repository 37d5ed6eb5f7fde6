package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "127.0.0.1:37780", cfg.ListenAddr())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	err := os.WriteFile(path, []byte(`
[server]
port = 9000

[log]
json = true
level = "debug"

[limits]
max_public = 25
`), 0644)
	require.NoError(t, err)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Bind, "unset keys keep defaults")
	assert.True(t, cfg.Log.JSON)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 25, cfg.Limits.MaxPublic)
	assert.Equal(t, 1000, cfg.Limits.MaxPage)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ATOMSPACE_DB", "/tmp/x.db")
	t.Setenv("ATOMSPACE_BIND", "0.0.0.0")
	t.Setenv("ATOMSPACE_PORT", "8080")
	t.Setenv("ATOMSPACE_LOG_JSON", "true")

	cfg, err := Load(filepath.Join(t.TempDir(), "none.toml"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x.db", cfg.Database.Path)
	assert.Equal(t, "0.0.0.0:8080", cfg.ListenAddr())
	assert.True(t, cfg.Log.JSON)
}

func TestLoadBadInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server\nport ="), 0644))
	_, err := Load(path)
	assert.Error(t, err)

	t.Setenv("ATOMSPACE_PORT", "eighty")
	_, err = Load(filepath.Join(t.TempDir(), "none.toml"))
	assert.Error(t, err)
}
