// SPDX-License-Identifier: GPL-3.0-or-later

// Package config loads the client configuration file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	yaml "github.com/goccy/go-yaml"

	"github.com/bassosimone/odoh"
)

const (
	// DefaultTarget is the target used when none is configured.
	DefaultTarget = "https://odoh.cloudflare-dns.com"

	// DefaultTimeout bounds a whole resolution, discovery included.
	DefaultTimeout = 10 * time.Second
)

var (
	errConfigPathEmpty   = errors.New("config path is empty")
	errTargetRequired    = errors.New("server.target is required")
	errURLMustBeAbsolute = errors.New("URL must be an absolute http(s) URL")
	errTimeoutMustBePos  = errors.New("timeout must be positive")
	errProxyEqualsTarget = errors.New("server.proxy must differ from server.target")
)

// ServerConfig names the target and the optional proxy.
type ServerConfig struct {
	Target string `yaml:"target"`
	Proxy  string `yaml:"proxy,omitempty"`
}

// Config is the client configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`

	// Padding is the query padding length; nil means [odoh.DefaultPadding].
	Padding *uint16 `yaml:"padding,omitempty"`

	// HTTP3 selects HTTP/3 instead of HTTP/1.1 or HTTP/2.
	HTTP3 bool `yaml:"http3,omitempty"`

	// Timeout is a duration string such as "10s".
	Timeout string `yaml:"timeout,omitempty"`

	// Path is the file the config was loaded from, if any.
	Path string `yaml:"-"`
}

// Default returns the configuration used without a config file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads, defaults, and validates the config at path.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errConfigPathEmpty
	}
	b, err := os.ReadFile(path) //nolint:gosec // path comes from the command line
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	cfg.Path = path
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Target == "" {
		c.Server.Target = DefaultTarget
	}
	if c.Padding == nil {
		padding := odoh.DefaultPadding
		c.Padding = &padding
	}
	if c.Timeout == "" {
		c.Timeout = DefaultTimeout.String()
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Server.Target == "" {
		return errTargetRequired
	}
	if err := validateURL(c.Server.Target); err != nil {
		return fmt.Errorf("server.target: %w", err)
	}
	if c.Server.Proxy != "" {
		if err := validateURL(c.Server.Proxy); err != nil {
			return fmt.Errorf("server.proxy: %w", err)
		}
		if c.Server.Proxy == c.Server.Target {
			return errProxyEqualsTarget
		}
	}
	if _, err := c.TimeoutDuration(); err != nil {
		return fmt.Errorf("timeout: %w", err)
	}
	return nil
}

// TimeoutDuration parses [Config.Timeout].
func (c *Config) TimeoutDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, errTimeoutMustBePos
	}
	return d, nil
}

// PaddingOrDefault returns the configured padding length.
func (c *Config) PaddingOrDefault() uint16 {
	if c.Padding == nil {
		return odoh.DefaultPadding
	}
	return *c.Padding
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return errURLMustBeAbsolute
	}
	return nil
}
