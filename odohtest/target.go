// SPDX-License-Identifier: GPL-3.0-or-later

package odohtest

import (
	"errors"
	"io"
	"mime"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/bassosimone/odoh"
	"github.com/cloudflare/circl/hpke"
	"github.com/go-chi/chi/v5"
	"github.com/miekg/dns"
)

// DefaultSuite is the suite used by [MustNewTarget].
var DefaultSuite = odoh.Suite{
	KEM:  hpke.KEM_X25519_HKDF_SHA256,
	KDF:  hpke.KDF_HKDF_SHA256,
	AEAD: hpke.AEAD_AES128GCM,
}

// Target is an ODoH target for testing.
//
// Construct using [NewTarget] or [MustNewTarget].
type Target struct {
	// KeyPair decrypts the incoming queries.
	KeyPair *odoh.KeyPair

	// Configs is the published config set.
	//
	// Set by [NewTarget] to the KeyPair's config; tests may
	// override it to publish something else.
	Configs odoh.ConfigSet

	// Handler answers the decrypted queries.
	Handler dns.Handler

	// Padding is the padding length of the encrypted responses.
	Padding uint16

	// Discoveries counts the config requests served.
	Discoveries atomic.Int64

	// Queries counts the query requests received.
	Queries atomic.Int64

	router chi.Router
}

var _ http.Handler = &Target{}

// NewTarget creates a new [*Target].
func NewTarget(keyPair *odoh.KeyPair, handler dns.Handler) *Target {
	t := &Target{
		KeyPair: keyPair,
		Configs: keyPair.ConfigSet(),
		Handler: handler,
	}
	r := chi.NewRouter()
	r.Get(odoh.ConfigsPath, t.serveConfigs)
	r.Post(odoh.QueryPath, t.serveQuery)
	t.router = r
	return t
}

// MustNewTarget creates a new [*Target] with a fresh [DefaultSuite] key pair.
func MustNewTarget(handler dns.Handler) *Target {
	keyPair, err := odoh.GenerateKeyPair(DefaultSuite)
	if err != nil {
		panic(err)
	}
	return NewTarget(keyPair, handler)
}

// ServeHTTP implements [http.Handler].
func (t *Target) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	t.router.ServeHTTP(w, r)
}

func (t *Target) serveConfigs(w http.ResponseWriter, r *http.Request) {
	t.Discoveries.Add(1)
	raw, err := t.Configs.MarshalBinary()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Cache-Control", "max-age=86400")
	_, _ = w.Write(raw)
}

func (t *Target) serveQuery(w http.ResponseWriter, r *http.Request) {
	t.Queries.Add(1)

	// 1. Check the request and read the encrypted query
	if mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mediaType != odoh.MediaType {
		w.WriteHeader(http.StatusUnsupportedMediaType)
		return
	}
	rawQuery, err := io.ReadAll(io.LimitReader(r.Body, 1<<17))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	// 2. Decrypt and parse the query
	rctx, err := t.KeyPair.DecryptQuery(rawQuery)
	switch {
	case errors.Is(err, odoh.ErrUnknownKeyID):
		w.WriteHeader(http.StatusUnauthorized)
		return
	case err != nil:
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	query := &dns.Msg{}
	if err := query.Unpack(rctx.Query.DNSMessage); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	// 3. Answer the query
	rw := &responseWriter{}
	t.Handler.ServeDNS(rw, query)
	if rw.msg == nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	rawReply, err := rw.msg.Pack()
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	// 4. Encrypt and send the reply
	body := &odoh.MessagePlaintext{DNSMessage: rawReply, Padding: t.Padding}
	rawResp, err := rctx.EncryptResponse(nil, body)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", odoh.MediaType)
	w.Header().Set("Cache-Control", "no-cache, no-store")
	_, _ = w.Write(rawResp)
}

// responseWriter is the [dns.ResponseWriter] passed to the handler.
type responseWriter struct {
	msg *dns.Msg
}

var _ dns.ResponseWriter = &responseWriter{}

func (rw *responseWriter) LocalAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 443}
}

func (rw *responseWriter) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)}
}

func (rw *responseWriter) WriteMsg(msg *dns.Msg) error {
	rw.msg = msg
	return nil
}

func (rw *responseWriter) Write(raw []byte) (int, error) {
	msg := &dns.Msg{}
	if err := msg.Unpack(raw); err != nil {
		return 0, err
	}
	rw.msg = msg
	return len(raw), nil
}

func (rw *responseWriter) Close() error { return nil }

func (rw *responseWriter) TsigStatus() error { return nil }

func (rw *responseWriter) TsigTimersOnly(bool) {}

func (rw *responseWriter) Hijack() {}
