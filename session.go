// SPDX-License-Identifier: GPL-3.0-or-later

package odoh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bassosimone/dnscodec"
	"github.com/miekg/dns"
	"github.com/rs/zerolog"
	"golang.org/x/net/idna"
)

// DefaultPadding is the default number of padding bytes added to queries.
const DefaultPadding uint16 = 1

// domainProfile converts names to their ASCII form. Unlike [idna.Lookup]
// it accepts underscores, which appear in SRV and TXT owner names.
var domainProfile = idna.New(
	idna.MapForLookup(),
	idna.StrictDomainName(false),
	idna.VerifyDNSLength(true),
	idna.Transitional(false),
)

// SessionConfig contains the arguments for [NewSession].
type SessionConfig struct {
	// Client is the HTTP client used for discovery and queries.
	//
	// Nil means [http.DefaultClient].
	Client Client

	// Target is the target base URL, e.g. "https://odoh.cloudflare-dns.com".
	Target string

	// Proxy is the optional proxy URL, e.g. "https://proxy.example/proxy".
	//
	// Leaving this empty sends queries directly to the target, which then
	// learns the client address along with the query.
	Proxy string

	// Padding is the number of padding bytes added to each query.
	Padding uint16

	// Metrics is the optional [*Metrics] to update.
	Metrics *Metrics

	// Rand is the randomness source for encryption (nil means crypto/rand).
	Rand io.Reader
}

// Session resolves names through a single ODoH target.
//
// Construct using [NewSession]. A session is meant to be used for one
// query at a time.
type Session struct {
	// Config is the config selected at discovery time.
	Config ConfigContents

	// Transport sends the encrypted queries.
	Transport *Transport

	// Padding is the number of padding bytes added to each query.
	Padding uint16

	// Metrics is the optional [*Metrics] to update.
	Metrics *Metrics

	// Rand is the randomness source for encryption (nil means crypto/rand).
	Rand io.Reader
}

// NewSession discovers the target's configs and selects the one to use.
//
// The selected config is kept for the lifetime of the session.
func NewSession(ctx context.Context, config *SessionConfig) (*Session, error) {
	logger := zerolog.Ctx(ctx)
	client := config.Client
	if client == nil {
		client = http.DefaultClient
	}

	// 1. Parse the target and proxy URLs
	target, err := parseTargetURL(config.Target)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDiscovery, err)
	}
	queryURL := &url.URL{Scheme: target.Scheme, Host: target.Host, Path: QueryPath}
	var proxy *url.URL
	if config.Proxy != "" {
		if proxy, err = parseTargetURL(config.Proxy); err != nil {
			return nil, &TransportError{Err: err}
		}
	}

	// 2. Discover and select the config
	var selected ConfigContents
	t0 := time.Now()
	set, err := discover(ctx, client, target)
	if err == nil {
		selected, err = SelectConfig(set)
	}
	config.Metrics.observe(StageDiscovery, t0, err)
	if err != nil {
		return nil, err
	}

	sess := &Session{
		Config:    selected,
		Transport: NewTransport(client, queryURL, proxy),
		Padding:   config.Padding,
		Metrics:   config.Metrics,
		Rand:      config.Rand,
	}
	logger.Info().
		Str("target", target.Host).
		Str("mode", sess.Transport.Mode()).
		Stringer("suite", selected.Suite).
		Msg("odoh: session ready")
	if proxy == nil {
		logger.Warn().Str("target", target.Host).Msg("odoh: no proxy configured; the target sees the client address")
	}
	return sess, nil
}

// normalizeDomain returns the fully qualified ASCII form of the domain.
func normalizeDomain(domain string) (string, error) {
	name := strings.TrimSpace(domain)
	if name == "." {
		return name, nil
	}
	name, err := domainProfile.ToASCII(strings.TrimSuffix(name, "."))
	if err != nil {
		return "", err
	}
	return dns.Fqdn(name), nil
}

// CreateRequest builds and encrypts a query for the domain and query type.
//
// The query type is a label such as "A" or "AAAA".
func (s *Session) CreateRequest(domain, qtype string) (*Request, error) {
	// 1. Map the query type and the domain
	qtypeValue, found := dns.StringToType[strings.ToUpper(strings.TrimSpace(qtype))]
	if !found {
		return nil, fmt.Errorf("%w: unknown query type %q", ErrEncoding, qtype)
	}
	name, err := normalizeDomain(domain)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncoding, err)
	}

	// 2. Create and serialize the query
	//
	// The name is already in ASCII form, so we build the message
	// directly rather than through [dnscodec.Query.NewMsg], whose
	// strict IDNA profile rejects underscores.
	//
	// The query ID is zero like for DoH, since the encrypted
	// envelope already binds the response to the query.
	queryMsg := &dns.Msg{}
	queryMsg.SetQuestion(name, qtypeValue)
	queryMsg.Id = 0
	queryMsg.SetEdns0(dnscodec.QueryMaxResponseSizeTCP, false)
	rawQuery, err := queryMsg.Pack()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncoding, err)
	}

	// 3. Wrap and encrypt
	body := &QueryBody{DNSMessage: rawQuery, Padding: s.Padding}
	return EncryptQuery(s.Config, body, s.Rand)
}

// SendRequest sends the encrypted query and returns the encrypted response.
func (s *Session) SendRequest(ctx context.Context, req *Request) (*Response, error) {
	rawResp, err := s.Transport.Exchange(ctx, req.EncryptedQuery)
	if err != nil {
		return nil, err
	}
	return req.NewResponse(rawResp), nil
}

// ParseResponse decrypts the response and parses the DNS reply.
//
// The request's secret is cleared before returning, whatever the outcome.
func (s *Session) ParseResponse(ctx context.Context, resp *Response) (*dns.Msg, error) {
	defer resp.Request.Close()

	// 1. Open the response
	plaintext, err := resp.Request.openResponse(resp.EncryptedResponse)
	if err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Msg("odoh: cannot open response")
		return nil, ErrDecryption
	}
	body, err := ParseMessagePlaintext(plaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	// 2. Parse and validate the DNS reply
	reply := &dns.Msg{}
	if err := reply.Unpack(body.DNSMessage); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	query := &dns.Msg{}
	if err := query.Unpack(resp.Request.Query.DNSMessage); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if err := validateReply(query, reply); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return reply, nil
}

var errQuestionMismatch = errors.New("question mismatch")

// validateReply makes sure the reply answers the query.
func validateReply(query, reply *dns.Msg) error {
	if !reply.Response || reply.Id != query.Id {
		return dnscodec.ErrInvalidResponse
	}
	if len(reply.Question) != 1 || len(query.Question) != 1 {
		return errQuestionMismatch
	}
	q0, r0 := query.Question[0], reply.Question[0]
	if !strings.EqualFold(q0.Name, r0.Name) || q0.Qtype != r0.Qtype || q0.Qclass != r0.Qclass {
		return errQuestionMismatch
	}
	return nil
}

// Resolve runs a whole resolution: encrypt, send, and decrypt.
//
// Every failure is terminal and no stage is retried.
func (s *Session) Resolve(ctx context.Context, domain, qtype string) (reply *dns.Msg, err error) {
	defer func() { s.Metrics.done(s.Transport.Mode(), err) }()

	t0 := time.Now()
	req, err := s.CreateRequest(domain, qtype)
	s.Metrics.observe(StageEncrypt, t0, err)
	if err != nil {
		return nil, err
	}
	defer req.Close()

	t0 = time.Now()
	resp, err := s.SendRequest(ctx, req)
	s.Metrics.observe(StageTransport, t0, err)
	if err != nil {
		return nil, err
	}

	t0 = time.Now()
	reply, err = s.ParseResponse(ctx, resp)
	s.Metrics.observe(StageDecrypt, t0, err)
	return reply, err
}
