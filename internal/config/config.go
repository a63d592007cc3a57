// Package config loads the sync settings from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the file.
const (
	EnvBaseURL  = "CALDORA_BASE_URL"
	EnvUser     = "CALDORA_USER"
	EnvPassword = "CALDORA_PASSWORD"
	EnvURL      = "CALDORA_URL"
)

const DefaultTimeout = 30 * time.Second

// Config is the top-level configuration.
type Config struct {
	// BaseURL is the server root; relative collection paths resolve
	// against it.
	BaseURL  string `yaml:"base_url"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	// DefaultURL is the collection items are synced into.
	DefaultURL string `yaml:"default_url"`
	UserAgent  string `yaml:"user_agent"`
	// Timeout bounds every HTTP exchange, e.g. "30s".
	Timeout time.Duration `yaml:"timeout"`
	// Schedule is a cron spec ("*/15 * * * *") for repeated syncs.
	Schedule string `yaml:"schedule"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	return &Config{
		Timeout:  DefaultTimeout,
		LogLevel: "info",
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/caldora-sync/config.yaml, falling
// back to the user config directory of the platform.
func DefaultPath() (string, error) {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		var err error
		if dir, err = os.UserConfigDir(); err != nil {
			return "", fmt.Errorf("failed to locate config directory: %w", err)
		}
	}
	return filepath.Join(dir, "caldora-sync", "config.yaml"), nil
}

// Load reads path and applies environment overrides. A missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv(os.LookupEnv)
	cfg.Normalize()
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	for env, field := range map[string]*string{
		EnvBaseURL:  &c.BaseURL,
		EnvUser:     &c.User,
		EnvPassword: &c.Password,
		EnvURL:      &c.DefaultURL,
	} {
		if v, ok := lookup(env); ok && v != "" {
			*field = v
		}
	}
}

// Normalize fills in zero values with defaults.
func (c *Config) Normalize() {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.BaseURL == "" && c.DefaultURL != "" {
		if u, err := url.Parse(c.DefaultURL); err == nil && u.Host != "" {
			c.BaseURL = (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}).String()
		}
	}
}

// Validate rejects settings the client cannot work with.
func (c *Config) Validate() error {
	if err := checkURL("base_url", c.BaseURL); err != nil {
		return err
	}
	if c.DefaultURL != "" {
		if u, err := url.Parse(c.DefaultURL); err != nil || (u.IsAbs() && u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("default_url %q is not an http(s) URL or path", c.DefaultURL)
		}
	}
	if c.Password != "" && c.User == "" {
		return errors.New("password set without user")
	}
	if c.Schedule != "" {
		if _, err := cron.ParseStandard(c.Schedule); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", c.Schedule, err)
		}
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level maps LogLevel onto a slog level.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	return level, nil
}

func checkURL(key, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", key)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%s %q is not an http(s) URL", key, raw)
	}
	return nil
}
