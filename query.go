// SPDX-License-Identifier: GPL-3.0-or-later

package odoh

import (
	"fmt"
	"io"
)

// Request is the client-side state of a single encrypted query.
//
// Construct using [EncryptQuery] or [*Session.CreateRequest]. Call
// [*Request.Close] once the request is no longer needed.
type Request struct {
	// Query is the plaintext query body.
	Query *QueryBody

	// Suite is the suite of the config the query was sealed for.
	Suite Suite

	// Secret is the secret required to open the response.
	Secret *ClientSecret

	// EncryptedQuery is the serialized ObliviousDoHMessage to send.
	EncryptedQuery []byte

	// plaintext is the serialized query body, which the
	// response key schedule binds to.
	plaintext []byte
}

// EncryptQuery seals the query body for the given config.
//
// The rnd argument is the source of randomness for the key encapsulation;
// nil means crypto/rand. Every call produces a fresh encapsulated key and
// therefore a fresh client secret.
func EncryptQuery(config ConfigContents, body *QueryBody, rnd io.Reader) (*Request, error) {
	// 1. Make sure we can actually use this config
	if !config.IsSupported() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedConfig, config.Suite)
	}

	// 2. Serialize the plaintext
	plaintext, err := body.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncoding, err)
	}

	// 3. Set up the HPKE sender context bound to the query label
	keyID, err := config.KeyID()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCrypto, err)
	}
	publicKey, err := config.KEM.Scheme().UnmarshalBinaryPublicKey(config.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCrypto, err)
	}
	sender, err := config.hpkeSuite().NewSender(publicKey, []byte(labelQuery))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCrypto, err)
	}
	enc, sealer, err := sender.Setup(rnd)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCrypto, err)
	}

	// 4. Seal the plaintext and export the response secret
	ciphertext, err := sealer.Seal(plaintext, additionalData(MessageTypeQuery, keyID))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCrypto, err)
	}
	secret := newClientSecret(sealer.Export([]byte(labelResponse), config.AEAD.KeySize()))

	// 5. Frame the encapsulated key and ciphertext
	msg := &Message{
		Type:             MessageTypeQuery,
		KeyID:            keyID,
		EncryptedMessage: append(enc, ciphertext...),
	}
	rawMsg, err := msg.MarshalBinary()
	if err != nil {
		secret.Zero()
		return nil, fmt.Errorf("%w: %w", ErrEncoding, err)
	}

	return &Request{
		Query:          body,
		Suite:          config.Suite,
		Secret:         secret,
		EncryptedQuery: rawMsg,
		plaintext:      plaintext,
	}, nil
}

// Close clears the secret material held by the request.
func (r *Request) Close() error {
	r.Secret.Zero()
	clear(r.plaintext)
	r.plaintext = nil
	return nil
}
