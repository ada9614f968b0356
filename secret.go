// SPDX-License-Identifier: GPL-3.0-or-later

package odoh

// ClientSecret holds the per-query secret exported from the HPKE context.
//
// The secret is needed to open the response and must not outlive it. Call
// [*ClientSecret.Zero] once done; it is safe to call more than once.
type ClientSecret struct {
	b []byte
}

func newClientSecret(b []byte) *ClientSecret {
	return &ClientSecret{b: b}
}

// Bytes returns the secret, or nil after [*ClientSecret.Zero].
func (s *ClientSecret) Bytes() []byte {
	return s.b
}

// IsZero returns whether the secret has been cleared.
func (s *ClientSecret) IsZero() bool {
	return s.b == nil
}

// Zero overwrites the secret and drops the reference to it.
func (s *ClientSecret) Zero() {
	clear(s.b)
	s.b = nil
}
