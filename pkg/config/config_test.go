package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "router.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:18790", cfg.Addr())
	assert.Equal(t, "/ipc", cfg.Router.Path)
	assert.Equal(t, 60*time.Second, cfg.Discord.ConfirmTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeConfig(t, `
router:
  port: 9000
  path: /bot
discord:
  confirm_timeout: 30s
log:
  level: debug
`)
	t.Setenv("ROUTER_IPC_PORT", "9100")
	t.Setenv("ROUTER_LOG_FORMAT", "console")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Router.Port, "env overrides file")
	assert.Equal(t, "/bot", cfg.Router.Path)
	assert.Equal(t, 30*time.Second, cfg.Discord.ConfirmTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 20*time.Second, cfg.Discord.DownloadTimeout, "untouched defaults survive")
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port", func(c *Config) { c.Router.Port = 0 }},
		{"path", func(c *Config) { c.Router.Path = "ipc" }},
		{"rate", func(c *Config) { c.Router.Burst = 0 }},
		{"confirm timeout", func(c *Config) { c.Discord.ConfirmTimeout = 0 }},
		{"schedule", func(c *Config) { c.Health.Schedule = "every minute" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
