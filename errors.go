// SPDX-License-Identifier: GPL-3.0-or-later

package odoh

import (
	"errors"
	"fmt"
)

var (
	// ErrDiscovery indicates that we could not fetch or parse the
	// target's published ObliviousDoHConfigs.
	ErrDiscovery = errors.New("odoh: config discovery failed")

	// ErrUnsupportedConfig indicates that no published config uses
	// an algorithm suite we support.
	ErrUnsupportedConfig = errors.New("odoh: no supported config")

	// ErrEncoding indicates that the domain or query type cannot
	// form a valid DNS query.
	ErrEncoding = errors.New("odoh: cannot encode query")

	// ErrCrypto indicates an unexpected HPKE setup or seal failure.
	ErrCrypto = errors.New("odoh: crypto failure")

	// ErrTransport indicates a connection failure or a non-200 response.
	ErrTransport = errors.New("odoh: transport failure")

	// ErrDecryption indicates that the response could not be opened.
	//
	// The error text is the same regardless of the cause.
	ErrDecryption = errors.New("odoh: decryption failed")

	// ErrMalformedResponse indicates that the response decrypted
	// correctly but does not contain a valid DNS reply.
	ErrMalformedResponse = errors.New("odoh: malformed response")
)

// TransportError is the error returned when exchanging a query fails.
//
// It matches [ErrTransport] with [errors.Is].
type TransportError struct {
	// StatusCode is the HTTP status code, or zero when the
	// failure happened before we received a response.
	StatusCode int

	// Err is the underlying cause, if any.
	Err error
}

var _ error = &TransportError{}

// Error implements error.
func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%s: status %d: %s", ErrTransport, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: status %d", ErrTransport, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s", ErrTransport, e.Err)
	default:
		return ErrTransport.Error()
	}
}

// Unwrap allows matching both [ErrTransport] and the cause.
func (e *TransportError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTransport}
	}
	return []error{ErrTransport, e.Err}
}
