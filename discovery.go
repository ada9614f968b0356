// SPDX-License-Identifier: GPL-3.0-or-later

package odoh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/bassosimone/iox"
	"github.com/rs/zerolog"
)

// ConfigsPath is the well-known path where a target publishes its configs.
const ConfigsPath = "/.well-known/odohconfigs"

// maxConfigsSize is the largest possible ObliviousDoHConfigs.
const maxConfigsSize = 2 + 0xffff

var (
	errEmptyHost       = errors.New("URL has no host")
	errConfigsTooLarge = errors.New("configs too large")
)

// parseTargetURL parses an absolute http(s) URL.
func parseTargetURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errEmptyHost
	}
	return u, nil
}

// ConfigsURL returns the discovery URL for the given target.
func ConfigsURL(target *url.URL) *url.URL {
	return &url.URL{Scheme: target.Scheme, Host: target.Host, Path: ConfigsPath}
}

// Discover fetches and parses the configs published by the target.
//
// The target is the base URL of the target, e.g. "https://odoh.cloudflare-dns.com";
// any path is ignored.
func Discover(ctx context.Context, client Client, target string) (ConfigSet, error) {
	targetURL, err := parseTargetURL(target)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDiscovery, err)
	}
	return discover(ctx, client, targetURL)
}

func discover(ctx context.Context, client Client, target *url.URL) (ConfigSet, error) {
	logger := zerolog.Ctx(ctx)
	configsURL := ConfigsURL(target).String()

	// 1. Create and send the HTTP request
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, configsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDiscovery, err)
	}
	httpResp, err := client.Do(httpReq)
	if err != nil {
		logger.Debug().Err(err).Str("url", configsURL).Msg("odoh: config fetch failed")
		return nil, fmt.Errorf("%w: %w", ErrDiscovery, err)
	}
	body := iox.LimitReadCloser(httpResp.Body, maxConfigsSize+1)
	defer body.Close()

	// 2. Any 2xx status is fine here
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		logger.Debug().Int("status", httpResp.StatusCode).Str("url", configsURL).Msg("odoh: config fetch failed")
		return nil, fmt.Errorf("%w: status %d", ErrDiscovery, httpResp.StatusCode)
	}

	// 3. Read a bounded body and parse it
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDiscovery, err)
	}
	if len(raw) > maxConfigsSize {
		return nil, fmt.Errorf("%w: %w", ErrDiscovery, errConfigsTooLarge)
	}
	set, err := ParseConfigSet(raw)
	if err != nil {
		return nil, err
	}

	logger.Debug().Int("configs", len(set)).Str("url", configsURL).Msg("odoh: discovered configs")
	return set, nil
}
