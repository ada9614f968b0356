// SPDX-License-Identifier: GPL-3.0-or-later

package odoh

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"

	"github.com/cloudflare/circl/kem"
)

// KeyPair is the target-side key material for one config.
//
// Construct using [GenerateKeyPair].
type KeyPair struct {
	// Config is the public config matching the private key.
	Config ConfigContents

	privateKey kem.PrivateKey
	keyID      []byte
}

// GenerateKeyPair creates a fresh [*KeyPair] for a supported suite.
func GenerateKeyPair(suite Suite) (*KeyPair, error) {
	if !suite.IsSupported() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedConfig, suite)
	}
	publicKey, privateKey, err := suite.KEM.Scheme().GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCrypto, err)
	}
	return newKeyPair(suite, publicKey, privateKey)
}

// DeriveKeyPair deterministically derives a [*KeyPair] from seed, whose
// length must be the KEM's seed size (32 bytes for X25519 and P-256).
func DeriveKeyPair(suite Suite, seed []byte) (*KeyPair, error) {
	if !suite.IsSupported() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedConfig, suite)
	}
	scheme := suite.KEM.Scheme()
	if len(seed) != scheme.SeedSize() {
		return nil, fmt.Errorf("%w: %w", ErrCrypto, kem.ErrSeedSize)
	}
	publicKey, privateKey := scheme.DeriveKeyPair(seed)
	return newKeyPair(suite, publicKey, privateKey)
}

func newKeyPair(suite Suite, publicKey kem.PublicKey, privateKey kem.PrivateKey) (*KeyPair, error) {
	rawPublicKey, err := publicKey.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCrypto, err)
	}
	config := ConfigContents{Suite: suite, PublicKey: rawPublicKey}
	keyID, err := config.KeyID()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCrypto, err)
	}
	return &KeyPair{Config: config, privateKey: privateKey, keyID: keyID}, nil
}

// ConfigSet returns a [ConfigSet] publishing only this key pair.
func (kp *KeyPair) ConfigSet() ConfigSet {
	return ConfigSet{{Version: ConfigVersion, Contents: kp.Config}}
}

// ErrUnknownKeyID indicates that a query was sealed for another config.
var ErrUnknownKeyID = errors.New("odoh: unknown key id")

// ResponseContext is the target-side state needed to answer one query.
type ResponseContext struct {
	// Query is the decrypted query body.
	Query *QueryBody

	suite     Suite
	plaintext []byte
	secret    *ClientSecret
}

// DecryptQuery opens an encrypted query sealed for this key pair.
func (kp *KeyPair) DecryptQuery(encryptedQuery []byte) (*ResponseContext, error) {
	msg, err := ParseMessage(encryptedQuery)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecryption, err)
	}
	if msg.Type != MessageTypeQuery {
		return nil, fmt.Errorf("%w: %w", ErrDecryption, errUnexpectedMessage)
	}
	if subtle.ConstantTimeCompare(msg.KeyID, kp.keyID) != 1 {
		return nil, ErrUnknownKeyID
	}

	encSize := kp.Config.KEM.Scheme().CiphertextSize()
	if len(msg.EncryptedMessage) < encSize {
		return nil, fmt.Errorf("%w: %w", ErrDecryption, errTruncatedMessage)
	}
	enc, ciphertext := msg.EncryptedMessage[:encSize], msg.EncryptedMessage[encSize:]

	receiver, err := kp.Config.hpkeSuite().NewReceiver(kp.privateKey, []byte(labelQuery))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCrypto, err)
	}
	opener, err := receiver.Setup(enc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecryption, err)
	}
	plaintext, err := opener.Open(ciphertext, additionalData(MessageTypeQuery, msg.KeyID))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecryption, errAuthenticationError)
	}
	body, err := ParseMessagePlaintext(plaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncoding, err)
	}

	return &ResponseContext{
		Query:     body,
		suite:     kp.Config.Suite,
		plaintext: plaintext,
		secret:    newClientSecret(opener.Export([]byte(labelResponse), kp.Config.AEAD.KeySize())),
	}, nil
}

// EncryptResponse seals the response body for the client that sent the query.
//
// The context is single use: the secret is cleared before returning.
func (rc *ResponseContext) EncryptResponse(rnd io.Reader, body *MessagePlaintext) ([]byte, error) {
	defer rc.secret.Zero()
	if rc.secret.IsZero() {
		return nil, fmt.Errorf("%w: %w", ErrCrypto, errSecretCleared)
	}
	if rnd == nil {
		rnd = rand.Reader
	}

	plaintext, err := body.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncoding, err)
	}
	responseNonce := make([]byte, responseNonceSize(rc.suite))
	if _, err := io.ReadFull(rnd, responseNonce); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCrypto, err)
	}

	key, nonce := deriveResponseKeys(rc.suite, rc.secret.Bytes(), rc.plaintext, responseNonce)
	defer clear(key)
	aead, err := rc.suite.AEAD.New(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCrypto, err)
	}
	ciphertext := aead.Seal(nil, nonce, plaintext, additionalData(MessageTypeResponse, responseNonce))

	msg := &Message{
		Type:             MessageTypeResponse,
		KeyID:            responseNonce,
		EncryptedMessage: ciphertext,
	}
	raw, err := msg.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncoding, err)
	}
	return raw, nil
}
