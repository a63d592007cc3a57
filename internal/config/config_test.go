package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, env := range []string{EnvBaseURL, EnvUser, EnvPassword, EnvURL} {
		t.Setenv(env, "")
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
base_url: https://dav.example.com/
user: alice
password: secret
default_url: /calendars/alice/tasks/
timeout: 5s
schedule: "*/15 * * * *"
log_level: DEBUG
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://dav.example.com/", cfg.BaseURL)
	assert.Equal(t, "alice", cfg.User)
	assert.Equal(t, "/calendars/alice/tasks/", cfg.DefaultURL)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, "debug", cfg.LogLevel)
	require.NoError(t, cfg.Validate())

	level, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoad_MissingFileAndEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvURL, "https://dav.example.com/calendars/bob/work/")
	t.Setenv(EnvUser, "bob")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "bob", cfg.User)
	assert.Equal(t, "https://dav.example.com/", cfg.BaseURL, "derived from the collection URL")
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("user: alice\npassword: a\n"), 0o600))
	t.Setenv(EnvPassword, "b")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "alice", cfg.User)
	assert.Equal(t, "b", cfg.Password)
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)
	_, err := Load("")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("timeout: soon\n"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.BaseURL = "https://dav.example.com/"
		return cfg
	}
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"missing base url", func(c *Config) { c.BaseURL = "" }, true},
		{"ftp base url", func(c *Config) { c.BaseURL = "ftp://dav.example.com/" }, true},
		{"relative default url", func(c *Config) { c.DefaultURL = "/calendars/a/" }, false},
		{"ftp default url", func(c *Config) { c.DefaultURL = "ftp://x/y/" }, true},
		{"password without user", func(c *Config) { c.Password = "x" }, true},
		{"bad schedule", func(c *Config) { c.Schedule = "every day" }, true},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	path, err := DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/xdg/caldora-sync/config.yaml", path)
}
