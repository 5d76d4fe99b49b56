package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsFillBlankFields(t *testing.T) {
	path := writeConfig(t, `storage:
  dsn: test.db
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "test.db", cfg.Storage.DSN)
	assert.Equal(t, "https://clob.polymarket.com", cfg.API.CLOBBase)
	assert.Equal(t, "https://gamma-api.polymarket.com", cfg.API.GammaBase)
	assert.Equal(t, "https://data-api.polymarket.com", cfg.API.DataBase)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, 30_000_000_000, int(cfg.Chain.PollInterval)) // 30s in ns
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, `log:
  level: info
storage:
  dsn: yaml.db
`)
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("STORAGE_DSN", "env.db")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "env.db", cfg.Storage.DSN)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestLoadSecrets_MissingPrivateKey(t *testing.T) {
	t.Setenv("POLY_PRIVATE_KEY", "")
	t.Setenv("POLYGON_RPC_URL", "https://polygon-rpc.com")

	_, err := LoadSecrets()
	assert.Error(t, err)
}

func TestLoadSecrets_MissingRPCURL(t *testing.T) {
	t.Setenv("POLY_PRIVATE_KEY", "0xdeadbeef")
	t.Setenv("POLYGON_RPC_URL", "")

	_, err := LoadSecrets()
	assert.Error(t, err)
}

func TestLoadSecrets_Success(t *testing.T) {
	t.Setenv("POLY_PRIVATE_KEY", "0xdeadbeef")
	t.Setenv("POLYGON_RPC_URL", "https://polygon-rpc.com")

	secrets, err := LoadSecrets()
	require.NoError(t, err)
	assert.Equal(t, "0xdeadbeef", secrets.WalletPrivateKey)
	assert.Equal(t, "https://polygon-rpc.com", secrets.RPCURL)
}
