// SPDX-License-Identifier: GPL-3.0-or-later

// Package cli implements the odoh command line.
package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/quic-go/quic-go/http3"
	"github.com/spf13/cobra"

	"github.com/bassosimone/odoh"
	"github.com/bassosimone/odoh/internal/config"
	"github.com/bassosimone/odoh/internal/logging"
	"github.com/bassosimone/odoh/internal/version"
)

// options holds the command line flags.
type options struct {
	configFile  string
	target      string
	proxy       string
	padding     uint16
	http3       bool
	timeout     time.Duration
	logLevel    string
	logFormat   string
	metricsFile string

	// client overrides the HTTP client built from the config.
	client odoh.Client
}

// NewRootCmd creates the odoh command.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&options{})
}

func newRootCmd(opts *options) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "odoh [--config FILE] <domain> <query-type>",
		Short:         "Resolve a name using Oblivious DNS-over-HTTPS",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			base := logging.Base(cmd.ErrOrStderr(), "odoh", opts.logLevel, opts.logFormat)
			cmd.SetContext(base.WithContext(cmd.Context()))
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd, opts, args[0], args[1])
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "Path to the YAML config file")
	flags.StringVar(&opts.target, "target", "", "Target URL (overrides server.target)")
	flags.StringVar(&opts.proxy, "proxy", "", "Proxy URL (overrides server.proxy)")
	flags.BoolVar(&opts.http3, "http3", false, "Use HTTP/3 (overrides http3)")
	flags.DurationVar(&opts.timeout, "timeout", config.DefaultTimeout, "Overall timeout (overrides timeout)")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	flags.StringVar(&opts.logFormat, "log-format", "console", "Log format: json, console")
	rootCmd.Flags().Uint16Var(&opts.padding, "padding", odoh.DefaultPadding, "Query padding length (overrides padding)")
	rootCmd.Flags().StringVar(&opts.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file")

	rootCmd.AddCommand(newConfigsCmd(opts))

	rootCmd.Version = version.GetVersion()
	rootCmd.SetVersionTemplate(versionString() + "\n")

	return rootCmd
}

func versionString() string {
	if buildTime := version.GetBuildTime(); buildTime != "" {
		return "odoh " + version.GetVersion() + " (built " + buildTime + ")"
	}
	return "odoh " + version.GetVersion()
}

// ExecuteContext runs the odoh command and exits on failure.
func ExecuteContext(ctx context.Context) {
	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads the config file, if any, and applies the flags.
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg := config.Default()
	if opts.configFile != "" {
		loaded, err := config.Load(opts.configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("target") {
		cfg.Server.Target = opts.target
	}
	if flags.Changed("proxy") {
		cfg.Server.Proxy = opts.proxy
	}
	if flags.Changed("http3") {
		cfg.HTTP3 = opts.http3
	}
	if flags.Changed("timeout") {
		cfg.Timeout = opts.timeout.String()
	}
	if flags.Lookup("padding") != nil && flags.Changed("padding") {
		padding := opts.padding
		cfg.Padding = &padding
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newClient returns the HTTP client to use and a function to release it.
func newClient(cfg *config.Config, opts *options) (odoh.Client, func()) {
	if opts.client != nil {
		return opts.client, func() {}
	}
	if cfg.HTTP3 {
		txp := &http3.Transport{}
		return &http.Client{Transport: txp}, func() { _ = txp.Close() }
	}
	txp := http.DefaultTransport.(*http.Transport).Clone()
	return &http.Client{Transport: txp}, txp.CloseIdleConnections
}
