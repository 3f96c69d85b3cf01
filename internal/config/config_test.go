package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.hujson")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.True(t, cfg.Gateway.SSLVerify)
	assert.Equal(t, 100, cfg.Gateway.MaxQueueSize)
	assert.Equal(t, 120*time.Second, cfg.Gateway.ConnectTimeout)
}

func TestLoadHuJSON(t *testing.T) {
	path := writeConfig(t, `{
		// platform endpoint
		"gateway": {
			"host": "ops.example.com/",
			"token": "file-token",
			"max_queue_size": 5,
			"connect_timeout": "30s",
			"backoff": {"initial": "500ms", "multiplier": 3},
		},
		"store": {"command_ttl": "1h"},
		"trace": {"enabled": true, "sample_ratio": 0.25},
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ops.example.com", cfg.Gateway.Host)
	assert.Equal(t, "file-token", cfg.Gateway.Token)
	assert.Equal(t, 5, cfg.Gateway.MaxQueueSize)
	assert.Equal(t, 30*time.Second, cfg.Gateway.ConnectTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Gateway.Backoff.Initial)
	assert.Equal(t, time.Minute, cfg.Gateway.Backoff.Max)
	assert.Equal(t, 3.0, cfg.Gateway.Backoff.Multiplier)
	assert.Equal(t, time.Hour, cfg.Store.CommandTTL)
	assert.Equal(t, ":9100", cfg.Ops.ListenAddr)
	assert.True(t, cfg.Trace.Enabled)
	assert.Equal(t, 0.25, cfg.Trace.SampleRatio)
	require.NoError(t, cfg.Validate())
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, `{"gateway": {"host": "a.example.com", "token": "file-token"}}`)
	t.Setenv("GATEWAY_TOKEN", "env-token")
	t.Setenv("GATEWAY_SSL_VERIFY", "false")
	t.Setenv("STORE_REDIS_ADDR", "localhost:6379")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "a.example.com", cfg.Gateway.Host)
	assert.Equal(t, "env-token", cfg.Gateway.Token)
	assert.False(t, cfg.Gateway.SSLVerify)
	assert.Equal(t, "localhost:6379", cfg.Store.RedisAddr)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.hujson"))
	assert.ErrorContains(t, err, "read config failed")

	_, err = Load(writeConfig(t, `{"gateway": `))
	assert.ErrorContains(t, err, "parse config failed")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "gateway.host is required")
	assert.ErrorContains(t, err, "gateway.token is required")

	cfg.Gateway.Host = "ops.example.com"
	cfg.Gateway.Token = "t"
	require.NoError(t, cfg.Validate())

	cfg.Gateway.MaxQueueSize = -1
	cfg.Gateway.BasicAuth = "nocolon"
	cfg.Log.Format = "xml"
	cfg.Trace.SampleRatio = 2
	err = cfg.Validate()
	assert.ErrorContains(t, err, "max_queue_size")
	assert.ErrorContains(t, err, "basic_auth")
	assert.ErrorContains(t, err, "log.format")
	assert.ErrorContains(t, err, "trace.sample_ratio")
}
