// SPDX-License-Identifier: GPL-3.0-or-later

package odoh

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
)

// Response pairs an encrypted response with the [*Request] that produced it.
type Response struct {
	// Request is the originating request.
	Request *Request

	// EncryptedResponse is the serialized ObliviousDoHMessage we received.
	EncryptedResponse []byte
}

// NewResponse creates a new [*Response] for this request.
func (r *Request) NewResponse(encryptedResponse []byte) *Response {
	return &Response{Request: r, EncryptedResponse: encryptedResponse}
}

var (
	errSecretCleared       = errors.New("client secret already cleared")
	errUnexpectedMessage   = errors.New("unexpected message type")
	errInvalidNonceLength  = errors.New("invalid response nonce length")
	errAuthenticationError = errors.New("authentication failed")
)

// OpenResponse decrypts an encrypted response to this request.
//
// Framing and authentication failures return [ErrDecryption] without
// further detail. A plaintext that is not a valid ObliviousDoHMessagePlaintext
// yields [ErrMalformedResponse].
func (r *Request) OpenResponse(encryptedResponse []byte) (*MessagePlaintext, error) {
	plaintext, err := r.openResponse(encryptedResponse)
	if err != nil {
		return nil, ErrDecryption
	}
	body, err := ParseMessagePlaintext(plaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return body, nil
}

// openResponse returns the detailed reason for a failure, which the
// caller must not expose beyond logging.
func (r *Request) openResponse(encryptedResponse []byte) ([]byte, error) {
	if r.Secret.IsZero() || r.plaintext == nil {
		return nil, errSecretCleared
	}
	msg, err := ParseMessage(encryptedResponse)
	if err != nil {
		return nil, err
	}
	if msg.Type != MessageTypeResponse {
		return nil, errUnexpectedMessage
	}
	if len(msg.KeyID) != responseNonceSize(r.Suite) {
		return nil, errInvalidNonceLength
	}
	key, nonce := deriveResponseKeys(r.Suite, r.Secret.Bytes(), r.plaintext, msg.KeyID)
	defer clear(key)
	aead, err := r.Suite.AEAD.New(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, nonce, msg.EncryptedMessage, additionalData(MessageTypeResponse, msg.KeyID))
	if err != nil {
		return nil, errAuthenticationError
	}
	return plaintext, nil
}

// responseNonceSize is max(Nn, Nk).
func responseNonceSize(suite Suite) int {
	return int(max(suite.AEAD.NonceSize(), suite.AEAD.KeySize()))
}

// deriveResponseKeys derives the response AEAD key and nonce from the
// exported secret, the query plaintext, and the response nonce.
func deriveResponseKeys(suite Suite, secret, queryPlaintext, responseNonce []byte) (key, nonce []byte) {
	b := cryptobyte.NewBuilder(nil)
	b.AddBytes(queryPlaintext)
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(responseNonce)
	})
	salt := b.BytesOrPanic()
	prk := suite.KDF.Extract(secret, salt)
	defer clear(prk)
	key = suite.KDF.Expand(prk, []byte(labelResponseKey), suite.AEAD.KeySize())
	nonce = suite.KDF.Expand(prk, []byte(labelResponseNonce), suite.AEAD.NonceSize())
	return key, nonce
}
