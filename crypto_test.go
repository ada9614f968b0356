// SPDX-License-Identifier: GPL-3.0-or-later

package odoh_test

import (
	"testing"

	"github.com/bassosimone/odoh"
	"github.com/cloudflare/circl/hpke"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryResponseRoundTrip(t *testing.T) {
	for _, suite := range odoh.SupportedSuites {
		t.Run(suite.String(), func(t *testing.T) {
			kp := mustGenerateKeyPair(t, suite)

			// 1. the client seals the query
			query := &odoh.QueryBody{DNSMessage: []byte("query bytes"), Padding: 7}
			req, err := odoh.EncryptQuery(kp.Config, query, nil)
			require.NoError(t, err)
			defer req.Close()
			assert.False(t, req.Secret.IsZero())
			assert.Len(t, req.Secret.Bytes(), int(suite.AEAD.KeySize()))

			// 2. the target opens it and seals the response
			rc, err := kp.DecryptQuery(req.EncryptedQuery)
			require.NoError(t, err)
			assert.Equal(t, query, rc.Query)
			answer := &odoh.MessagePlaintext{DNSMessage: []byte("answer bytes"), Padding: 3}
			rawResp, err := rc.EncryptResponse(nil, answer)
			require.NoError(t, err)

			// 3. the client opens the response
			got, err := req.OpenResponse(rawResp)
			require.NoError(t, err)
			assert.Equal(t, answer, got)
		})
	}
}

func TestEncryptQueryIsRandomized(t *testing.T) {
	kp := mustGenerateKeyPair(t, suiteX25519AES)
	query := &odoh.QueryBody{DNSMessage: []byte("same query")}

	first, err := odoh.EncryptQuery(kp.Config, query, nil)
	require.NoError(t, err)
	second, err := odoh.EncryptQuery(kp.Config, query, nil)
	require.NoError(t, err)

	firstMsg, err := odoh.ParseMessage(first.EncryptedQuery)
	require.NoError(t, err)
	secondMsg, err := odoh.ParseMessage(second.EncryptedQuery)
	require.NoError(t, err)

	assert.Equal(t, firstMsg.KeyID, secondMsg.KeyID)
	assert.NotEqual(t, firstMsg.EncryptedMessage, secondMsg.EncryptedMessage)
	assert.NotEqual(t, first.Secret.Bytes(), second.Secret.Bytes())

	// X25519 encapsulated keys are 32 bytes long
	assert.NotEqual(t, firstMsg.EncryptedMessage[:32], secondMsg.EncryptedMessage[:32])
}

func TestEncryptQueryUnsupportedConfig(t *testing.T) {
	config := odoh.ConfigContents{Suite: suiteUnsupported, PublicKey: make([]byte, 56)}
	req, err := odoh.EncryptQuery(config, &odoh.QueryBody{DNSMessage: []byte{1}}, nil)
	require.ErrorIs(t, err, odoh.ErrUnsupportedConfig)
	require.Nil(t, req)
}

func TestEncryptQueryEmptyBody(t *testing.T) {
	kp := mustGenerateKeyPair(t, suiteX25519AES)
	req, err := odoh.EncryptQuery(kp.Config, &odoh.QueryBody{}, nil)
	require.ErrorIs(t, err, odoh.ErrEncoding)
	require.Nil(t, req)
}

// newExchange returns an open request and the target's encrypted response.
func newExchange(t *testing.T, kp *odoh.KeyPair) (*odoh.Request, []byte) {
	t.Helper()
	req, err := odoh.EncryptQuery(kp.Config, &odoh.QueryBody{DNSMessage: []byte("query")}, nil)
	require.NoError(t, err)
	rc, err := kp.DecryptQuery(req.EncryptedQuery)
	require.NoError(t, err)
	rawResp, err := rc.EncryptResponse(nil, &odoh.MessagePlaintext{DNSMessage: []byte("answer")})
	require.NoError(t, err)
	return req, rawResp
}

func TestOpenResponseTampering(t *testing.T) {
	kp := mustGenerateKeyPair(t, suiteX25519AES)
	req, rawResp := newExchange(t, kp)
	defer req.Close()

	for i := range len(rawResp) {
		for bit := range 8 {
			tampered := append([]byte{}, rawResp...)
			tampered[i] ^= 1 << bit
			got, err := req.OpenResponse(tampered)
			require.Equal(t, odoh.ErrDecryption, err, "byte %d bit %d", i, bit)
			require.Nil(t, got)
		}
	}

	// the untampered response still opens
	_, err := req.OpenResponse(rawResp)
	require.NoError(t, err)
}

func TestOpenResponseErrorsAreIndistinguishable(t *testing.T) {
	kp := mustGenerateKeyPair(t, suiteX25519AES)
	req, rawResp := newExchange(t, kp)
	defer req.Close()
	other, _ := newExchange(t, kp)
	defer other.Close()

	type testCase struct {
		// name is the subtest name.
		name string

		// raw is the encrypted response to open.
		raw []byte
	}

	testCases := []testCase{
		{name: "empty", raw: nil},
		{name: "garbage", raw: []byte("garbage")},
		{name: "truncated", raw: rawResp[:len(rawResp)-1]},
		{name: "the query itself", raw: req.EncryptedQuery},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := req.OpenResponse(tt.raw)
			require.Equal(t, odoh.ErrDecryption, err)
		})
	}

	t.Run("response to another query", func(t *testing.T) {
		_, err := other.OpenResponse(rawResp)
		require.Equal(t, odoh.ErrDecryption, err)
	})
}

func TestOpenResponseAfterClose(t *testing.T) {
	kp := mustGenerateKeyPair(t, suiteX25519AES)
	req, rawResp := newExchange(t, kp)
	require.NoError(t, req.Close())
	assert.True(t, req.Secret.IsZero())
	assert.Nil(t, req.Secret.Bytes())

	_, err := req.OpenResponse(rawResp)
	require.Equal(t, odoh.ErrDecryption, err)

	// closing twice is fine
	require.NoError(t, req.Close())
}

func TestDecryptQueryErrors(t *testing.T) {
	kp := mustGenerateKeyPair(t, suiteX25519AES)
	other := mustGenerateKeyPair(t, suiteX25519AES)
	req, err := odoh.EncryptQuery(kp.Config, &odoh.QueryBody{DNSMessage: []byte("query")}, nil)
	require.NoError(t, err)
	defer req.Close()

	t.Run("wrong key pair", func(t *testing.T) {
		_, err := other.DecryptQuery(req.EncryptedQuery)
		require.ErrorIs(t, err, odoh.ErrUnknownKeyID)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := kp.DecryptQuery([]byte("garbage"))
		require.ErrorIs(t, err, odoh.ErrDecryption)
	})

	t.Run("tampered ciphertext", func(t *testing.T) {
		tampered := append([]byte{}, req.EncryptedQuery...)
		tampered[len(tampered)-1] ^= 0x01
		_, err := kp.DecryptQuery(tampered)
		require.ErrorIs(t, err, odoh.ErrDecryption)
	})

	t.Run("response message", func(t *testing.T) {
		msg, err := odoh.ParseMessage(req.EncryptedQuery)
		require.NoError(t, err)
		msg.Type = odoh.MessageTypeResponse
		raw, err := msg.MarshalBinary()
		require.NoError(t, err)
		_, err = kp.DecryptQuery(raw)
		require.ErrorIs(t, err, odoh.ErrDecryption)
	})
}

func TestEncryptResponseIsSingleUse(t *testing.T) {
	kp := mustGenerateKeyPair(t, suiteX25519AES)
	req, err := odoh.EncryptQuery(kp.Config, &odoh.QueryBody{DNSMessage: []byte("query")}, nil)
	require.NoError(t, err)
	defer req.Close()
	rc, err := kp.DecryptQuery(req.EncryptedQuery)
	require.NoError(t, err)

	answer := &odoh.MessagePlaintext{DNSMessage: []byte("answer")}
	_, err = rc.EncryptResponse(nil, answer)
	require.NoError(t, err)
	_, err = rc.EncryptResponse(nil, answer)
	require.ErrorIs(t, err, odoh.ErrCrypto)
}

func TestGenerateKeyPairUnsupported(t *testing.T) {
	kp, err := odoh.GenerateKeyPair(odoh.Suite{
		KEM:  hpke.KEM_P384_HKDF_SHA384,
		KDF:  hpke.KDF_HKDF_SHA384,
		AEAD: hpke.AEAD_AES256GCM,
	})
	require.ErrorIs(t, err, odoh.ErrUnsupportedConfig)
	require.Nil(t, kp)
}
