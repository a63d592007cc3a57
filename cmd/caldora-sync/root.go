package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cyp0633/caldora-sync/davclient"
	"github.com/cyp0633/caldora-sync/internal/config"
	"github.com/cyp0633/caldora-sync/internal/httpclient"
	"github.com/spf13/cobra"
)

// app is built once per invocation and shared by every subcommand.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	configPath string
	flags      config.Config

	cfg    *config.Config
	logger *slog.Logger
	client *davclient.Client
	// plain is used for documents fetched from third parties, so the
	// server credentials stay with the server.
	plain *http.Client
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdin: stdin, stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "caldora-sync",
		Short:         "Synchronize calendar items into a CalDAV collection",
		Long:          `caldora-sync writes events and tasks from calendar files and issue trackers into a CalDAV collection, touching only the items that changed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	defaultPath, err := config.DefaultPath()
	if err != nil {
		defaultPath = "config.yaml"
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", defaultPath, "Path to config file")
	pf.StringVar(&a.flags.BaseURL, "base-url", "", "Server root URL")
	pf.StringVar(&a.flags.DefaultURL, "url", "", "Calendar collection URL")
	pf.StringVar(&a.flags.User, "user", "", "User name")
	pf.StringVar(&a.flags.Password, "password", "", "Password")
	pf.StringVar(&a.flags.UserAgent, "user-agent", "", "User-Agent header")
	pf.DurationVar(&a.flags.Timeout, "timeout", 0, "Timeout of each HTTP request")
	pf.StringVar(&a.flags.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")

	root.AddCommand(
		newImportCmd(a),
		newIssuesCmd(a),
		newPrincipalCmd(a),
		newFreeBusyCmd(a),
		newListCmd(a),
		newDeleteCmd(a),
		newDiscoverCmd(a),
	)
	return root
}

// setup loads the configuration, applies flags over it and builds the
// client.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	override := func(name string, dst *string, v string) {
		if flags.Changed(name) {
			*dst = v
		}
	}
	override("base-url", &cfg.BaseURL, a.flags.BaseURL)
	override("url", &cfg.DefaultURL, a.flags.DefaultURL)
	override("user", &cfg.User, a.flags.User)
	override("password", &cfg.Password, a.flags.Password)
	override("user-agent", &cfg.UserAgent, a.flags.UserAgent)
	override("log-level", &cfg.LogLevel, a.flags.LogLevel)
	if flags.Changed("timeout") {
		cfg.Timeout = a.flags.Timeout
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.cfg = cfg

	level, _ := cfg.Level()
	a.logger = slog.New(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{Level: level}))

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return fmt.Errorf("failed to parse base URL: %w", err)
	}
	transport := httpclient.NewClient(cfg.User, cfg.Password, cfg.Timeout, a.logger)
	wrapper, err := httpclient.NewHttpClientWrapper(transport, *base, a.logger, httpclient.WithUserAgent(cfg.UserAgent))
	if err != nil {
		return err
	}
	a.client = davclient.NewClient(wrapper, a.logger)
	a.plain = &http.Client{Timeout: cfg.Timeout}
	return nil
}

// collection returns the configured collection URL.
func (a *app) collection() (string, error) {
	if a.cfg.DefaultURL == "" {
		return "", fmt.Errorf("no calendar collection configured: set --url, %s or default_url", config.EnvURL)
	}
	return a.cfg.DefaultURL, nil
}

// parseTime accepts RFC 3339 timestamps and plain dates.
func parseTime(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, value, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: use RFC 3339 or YYYY-MM-DD", value)
	}
	return t, nil
}
