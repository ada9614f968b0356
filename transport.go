// SPDX-License-Identifier: GPL-3.0-or-later

package odoh

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"

	"github.com/bassosimone/dnscodec"
	"github.com/bassosimone/iox"
	"github.com/rs/zerolog"
)

// QueryPath is the path of the target's query endpoint.
const QueryPath = "/dns-query"

// maxMessageSize is the largest possible ObliviousDoHMessage.
const maxMessageSize = 1 + 2 + 0xffff + 2 + 0xffff

var errResponseTooLarge = errors.New("response too large")

// Client abstracts over [*http.Client].
type Client interface {
	Do(req *http.Request) (*http.Response, error)
}

// Transport sends encrypted queries to a target, either directly or
// through an oblivious proxy.
//
// Construct using [NewTransport].
type Transport struct {
	// Client is the [Client] to use to exchange a query for a response.
	//
	// Set by [NewTransport] to the user-provided value.
	Client Client

	// Target is the target's query endpoint URL.
	//
	// Set by [NewTransport] to the user-provided value.
	Target *url.URL

	// Proxy is the proxy URL, or nil to contact the target directly.
	//
	// Set by [NewTransport] to the user-provided value.
	Proxy *url.URL
}

// NewTransport creates a new [*Transport].
func NewTransport(client Client, target, proxy *url.URL) *Transport {
	return &Transport{Client: client, Target: target, Proxy: proxy}
}

// Mode returns "proxied" when using a proxy and "direct" otherwise.
func (t *Transport) Mode() string {
	if t.Proxy != nil {
		return "proxied"
	}
	return "direct"
}

// URL returns the URL the request is sent to.
//
// When using a proxy, the target host and path travel as the targethost
// and targetpath query parameters.
func (t *Transport) URL() *url.URL {
	if t.Proxy == nil {
		return t.Target
	}
	u := *t.Proxy
	query := u.Query()
	query.Set("targethost", t.Target.Host)
	query.Set("targetpath", t.Target.EscapedPath())
	u.RawQuery = query.Encode()
	return &u
}

// NewRequest creates the HTTP request carrying the encrypted query.
func (t *Transport) NewRequest(ctx context.Context, encryptedQuery []byte) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL().String(), bytes.NewReader(encryptedQuery))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", MediaType)
	httpReq.Header.Set("Accept", MediaType)
	httpReq.Header.Set("Cache-Control", "no-cache, no-store")
	return httpReq, nil
}

// Exchange sends an encrypted query and returns the encrypted response.
//
// Success requires status 200, the ODoH media type as the Content-Type,
// and a non-empty body. A 200 response with a missing or different
// Content-Type is a [*TransportError] too.
//
// All failures are [*TransportError]. We do not retry.
func (t *Transport) Exchange(ctx context.Context, encryptedQuery []byte) ([]byte, error) {
	logger := zerolog.Ctx(ctx)

	// 1. Create HTTP request
	httpReq, err := t.NewRequest(ctx, encryptedQuery)
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	// 2. Do the HTTP round trip
	httpResp, err := t.Client.Do(httpReq)
	if err != nil {
		logger.Debug().Err(err).Str("mode", t.Mode()).Msg("odoh: round trip failed")
		return nil, &TransportError{Err: err}
	}
	body := iox.LimitReadCloser(httpResp.Body, maxMessageSize+1)
	defer body.Close()

	// 3. Ensure that the response makes sense
	if httpResp.StatusCode != http.StatusOK {
		logger.Debug().Int("status", httpResp.StatusCode).Str("mode", t.Mode()).Msg("odoh: unexpected status")
		return nil, &TransportError{StatusCode: httpResp.StatusCode, Err: dnscodec.ErrServerMisbehaving}
	}
	if mediaType, _, _ := mime.ParseMediaType(httpResp.Header.Get("Content-Type")); mediaType != MediaType {
		return nil, &TransportError{StatusCode: httpResp.StatusCode, Err: dnscodec.ErrServerMisbehaving}
	}

	// 4. Read the bounded response body
	rawResp, err := io.ReadAll(body)
	if err != nil {
		return nil, &TransportError{StatusCode: httpResp.StatusCode, Err: err}
	}
	if len(rawResp) > maxMessageSize {
		return nil, &TransportError{StatusCode: httpResp.StatusCode, Err: errResponseTooLarge}
	}
	if len(rawResp) == 0 {
		return nil, &TransportError{StatusCode: httpResp.StatusCode, Err: dnscodec.ErrServerMisbehaving}
	}
	return rawResp, nil
}
