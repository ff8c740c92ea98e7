package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.yaml")
	body := `
server:
  addr: ":9000"
storage:
  driver: pebble
  path: /var/lib/chat
auth:
  admin: root
  session_ttl: 2h
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "pebble", cfg.Storage.Driver)
	assert.Equal(t, "/var/lib/chat", cfg.Storage.Path)
	assert.Equal(t, "root", cfg.Auth.Admin)
	assert.Equal(t, 2*time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, "debug", cfg.Log.Level)
	// untouched keys keep their defaults
	assert.Equal(t, 64, cfg.Hub.SendBuffer)
}

func TestEnvOverrides(t *testing.T) {
	env := map[string]string{
		"CHAT_ADDR":        ":4000",
		"CHAT_ADMIN":       "boss",
		"CHAT_SESSION_TTL": "30m",
		"CHAT_SEND_BUFFER": "8",
	}
	cfg := Default()
	require.NoError(t, cfg.applyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}))

	assert.Equal(t, ":4000", cfg.Server.Addr)
	assert.Equal(t, "boss", cfg.Auth.Admin)
	assert.Equal(t, 30*time.Minute, cfg.Auth.SessionTTL)
	assert.Equal(t, 8, cfg.Hub.SendBuffer)
}

func TestEnvRejectsBadDuration(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(func(k string) (string, bool) {
		if k == "CHAT_SESSION_TTL" {
			return "tomorrow", true
		}
		return "", false
	})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"unknown driver":    func(c *Config) { c.Storage.Driver = "mongo" },
		"pebble needs path": func(c *Config) { c.Storage.Driver = "pebble"; c.Storage.Path = "" },
		"bad cron":          func(c *Config) { c.Auth.SweepCron = "every minute" },
		"zero ttl":          func(c *Config) { c.Auth.SessionTTL = 0 },
		"bad level":         func(c *Config) { c.Log.Level = "loud" },
		"zero buffer":       func(c *Config) { c.Hub.SendBuffer = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}
