// SPDX-License-Identifier: GPL-3.0-or-later

// Package odoh implements an Oblivious DNS-over-HTTPS (RFC 9230) client.
//
// [NewSession] fetches the target's published configs and selects the
// first one we support. [*Session.Resolve] then encrypts a query with
// HPKE, sends it to the target (directly, or through an oblivious proxy
// that never sees the plaintext), and decrypts the response using the
// secret exported when the query was encrypted.
//
// The lower level building blocks ([Discover], [SelectConfig],
// [EncryptQuery], [*Transport], [*Request.OpenResponse]) are exported
// for callers that need to drive the steps themselves. The target-side
// counterparts ([GenerateKeyPair], [*KeyPair.DecryptQuery]) exist mainly
// for testing; see also the odohtest package.
//
// The API is intentionally small: a session handles one query at a time
// and never retries.
package odoh
