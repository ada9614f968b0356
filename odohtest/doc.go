// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package odohtest contains an ODoH target and an oblivious proxy for testing.

[*Target] publishes its config at the well-known discovery path, decrypts
incoming queries, answers them using a [dns.Handler], and encrypts the
reply. [*Proxy] forwards encrypted queries to the target named by the
targethost and targetpath query parameters.

Both types implement [net/http.Handler], so they can be served using
net/http/httptest. Like net/http/httptest, the Must* constructors panic
on failure because, in a test, such a failure should be loud and obvious.
*/
package odohtest
