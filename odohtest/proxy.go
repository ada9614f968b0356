// SPDX-License-Identifier: GPL-3.0-or-later

package odohtest

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"

	"github.com/bassosimone/odoh"
	"github.com/go-chi/chi/v5"
)

// ProxyPath is the path where [*Proxy] accepts queries.
const ProxyPath = "/proxy"

// Proxy is an oblivious proxy for testing.
//
// Construct using [NewProxy].
type Proxy struct {
	// Client is the [odoh.Client] used to reach the targets.
	Client odoh.Client

	// Scheme is the URL scheme used to reach the targets.
	//
	// Set by [NewProxy] to "https".
	Scheme string

	// Forwarded counts the queries forwarded to a target.
	Forwarded atomic.Int64

	router chi.Router
}

var _ http.Handler = &Proxy{}

// NewProxy creates a new [*Proxy].
func NewProxy(client odoh.Client) *Proxy {
	p := &Proxy{Client: client, Scheme: "https"}
	r := chi.NewRouter()
	r.Post(ProxyPath, p.serveProxy)
	p.router = r
	return p
}

// ServeHTTP implements [http.Handler].
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.router.ServeHTTP(w, r)
}

func (p *Proxy) serveProxy(w http.ResponseWriter, r *http.Request) {
	// 1. Figure out where to send the query
	targetHost := r.URL.Query().Get("targethost")
	targetPath := r.URL.Query().Get("targetpath")
	if targetHost == "" || targetPath == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	targetURL := &url.URL{Scheme: p.Scheme, Host: targetHost, Path: targetPath}

	// 2. Forward the opaque body
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<17))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, targetURL.String(), bytes.NewReader(body))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	req.Header.Set("Content-Type", r.Header.Get("Content-Type"))
	req.Header.Set("Accept", r.Header.Get("Accept"))
	req.Header.Set("Cache-Control", "no-cache, no-store")
	p.Forwarded.Add(1)
	resp, err := p.Client.Do(req)
	if err != nil {
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	// 3. Relay the response as is
	if contentType := resp.Header.Get("Content-Type"); contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}
