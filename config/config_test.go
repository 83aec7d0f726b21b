package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:8645", cfg.RPCAddress)
	require.Equal(t, "./loand-data", cfg.DataDir)
	require.Empty(t, cfg.PausedModules)

	// The default file is written so the next load reads it back.
	_, err = os.Stat(path)
	require.NoError(t, err)
	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.RPCAddress, reloaded.RPCAddress)
}

func TestLoadExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
RPCAddress = "0.0.0.0:9000"
DataDir = "/var/lib/loand"
Env = "production"
PausedModules = ["bank"]

[[GenesisBalances]]
Address = "0x0101010101010101010101010101010101010101"
Asset = "TOK"
Amount = "1000"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9000", cfg.RPCAddress)
	require.Equal(t, "/var/lib/loand", cfg.DataDir)
	require.Equal(t, "production", cfg.Env)
	require.Equal(t, []string{"bank"}, cfg.PausedModules)
	require.Len(t, cfg.GenesisBalances, 1)
	require.Equal(t, "TOK", cfg.GenesisBalances[0].Asset)

	pauses := cfg.Pauses()
	require.True(t, pauses.IsPaused("bank"))
	require.False(t, pauses.IsPaused("loan"))
}

func TestLoadRejectsUnknownPausedModule(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`PausedModules = ["escrow"]`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "escrow")
}

func TestLoadFillsMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`Env = "dev"`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:8645", cfg.RPCAddress)
	require.Equal(t, "./loand-data", cfg.DataDir)
	require.NotNil(t, cfg.PausedModules)
}
