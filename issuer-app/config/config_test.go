package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/compose-network/issuer/x/credential/catalog"
	"github.com/compose-network/issuer/x/credential/relay"
)

const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeConfig(t, "issuer:\n  private_key_hex: "+testKey+"\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.API.ListenAddr)
	require.Equal(t, 90*time.Second, cfg.API.WriteTimeout)
	require.Equal(t, DriverMemory, cfg.Store.Driver)
	require.Equal(t, 5*time.Minute, cfg.Issuer.AuthorizationTTL)
	require.Equal(t, 8, cfg.Issuer.NonceAttempts)
	require.Equal(t, relay.ModeLocal, cfg.Relay.Mode)
	require.Equal(t, 3, cfg.Relay.MaxAttempts)
	require.Equal(t, int64(5<<20), cfg.Metadata.MaxImageBytes)
	require.True(t, cfg.Metrics.Enabled)
	require.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestLoad_FileOverrides(t *testing.T) {
	path := writeConfig(t, `
api:
  listen_addr: ":9090"
store:
  driver: sqlite
  dsn: "file:x.db"
issuer:
  private_key_hex: `+testKey+`
  authorization_ttl: 30s
relay:
  mode: http
  base_url: "http://relay.local:7000"
  timeout: 2s
categories:
  - id: Hackathon
    fields:
      - name: event
        required: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.API.ListenAddr)
	require.Equal(t, DriverSQLite, cfg.Store.Driver)
	require.Equal(t, 30*time.Second, cfg.Issuer.AuthorizationTTL)
	require.Equal(t, relay.ModeHTTP, cfg.Relay.Mode)
	require.Equal(t, 2*time.Second, cfg.Relay.Timeout)
	require.Len(t, cfg.Categories, 1)
	require.Len(t, cfg.Categories[0].Fields, 1)
	require.True(t, cfg.Categories[0].Fields[0].Required)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ISSUER_PRIVATE_KEY_HEX", testKey)
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, testKey, cfg.Issuer.PrivateKeyHex)
	require.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := Default()
		c.Issuer.PrivateKeyHex = testKey
		return c
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"missing key", func(c *Config) { c.Issuer.PrivateKeyHex = "" }},
		{"empty listen addr", func(c *Config) { c.API.ListenAddr = " " }},
		{"zero write timeout", func(c *Config) { c.API.WriteTimeout = 0 }},
		{"bad metrics path", func(c *Config) { c.Metrics.Path = "metrics" }},
		{"unknown driver", func(c *Config) { c.Store.Driver = "mysql" }},
		{"sqlite without dsn", func(c *Config) { c.Store.Driver = DriverSQLite }},
		{"http relay without url", func(c *Config) { c.Relay.Mode = relay.ModeHTTP }},
		{"relative metadata uri", func(c *Config) { c.Metadata.BaseURI = "/objects" }},
		{"category shadows builtin", func(c *Config) {
			c.Categories = []catalog.Category{{ID: "sports", Fields: []catalog.Field{{Name: "event"}}}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			require.Error(t, c.Validate())
		})
	}
}
