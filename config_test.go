// SPDX-License-Identifier: GPL-3.0-or-later

package odoh_test

import (
	"testing"

	"github.com/bassosimone/odoh"
	"github.com/cloudflare/circl/hpke"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	suiteX25519AES = odoh.Suite{
		KEM:  hpke.KEM_X25519_HKDF_SHA256,
		KDF:  hpke.KDF_HKDF_SHA256,
		AEAD: hpke.AEAD_AES128GCM,
	}

	suiteX25519ChaCha = odoh.Suite{
		KEM:  hpke.KEM_X25519_HKDF_SHA256,
		KDF:  hpke.KDF_HKDF_SHA256,
		AEAD: hpke.AEAD_ChaCha20Poly1305,
	}

	suiteUnsupported = odoh.Suite{
		KEM:  hpke.KEM_X448_HKDF_SHA512,
		KDF:  hpke.KDF_HKDF_SHA512,
		AEAD: hpke.AEAD_AES256GCM,
	}
)

func mustGenerateKeyPair(t *testing.T, suite odoh.Suite) *odoh.KeyPair {
	t.Helper()
	kp, err := odoh.GenerateKeyPair(suite)
	require.NoError(t, err)
	return kp
}

func configOf(contents odoh.ConfigContents) odoh.Config {
	return odoh.Config{Version: odoh.ConfigVersion, Contents: contents}
}

func TestSelectConfig(t *testing.T) {
	first := mustGenerateKeyPair(t, suiteX25519AES).Config
	second := mustGenerateKeyPair(t, suiteX25519ChaCha).Config
	unsupported := odoh.ConfigContents{Suite: suiteUnsupported, PublicKey: make([]byte, 56)}
	badKey := odoh.ConfigContents{Suite: suiteX25519AES, PublicKey: []byte{1, 2, 3}}

	type testCase struct {
		// name is the subtest name.
		name string

		// set is the config set to select from.
		set odoh.ConfigSet

		// want is the expected selection (ignored on error).
		want odoh.ConfigContents

		// wantErr is the expected error (nil on success).
		wantErr error
	}

	testCases := []testCase{
		{
			name: "single supported",
			set:  odoh.ConfigSet{configOf(first)},
			want: first,
		},

		{
			name: "first supported wins",
			set:  odoh.ConfigSet{configOf(first), configOf(second)},
			want: first,
		},

		{
			name: "publication order beats client preference",
			set:  odoh.ConfigSet{configOf(second), configOf(first)},
			want: second,
		},

		{
			name: "unsupported entries are skipped",
			set:  odoh.ConfigSet{configOf(unsupported), configOf(badKey), configOf(second)},
			want: second,
		},

		{
			name:    "only unsupported",
			set:     odoh.ConfigSet{configOf(unsupported)},
			wantErr: odoh.ErrUnsupportedConfig,
		},

		{
			name:    "supported suite with invalid key",
			set:     odoh.ConfigSet{configOf(badKey)},
			wantErr: odoh.ErrUnsupportedConfig,
		},

		{
			name:    "empty set",
			set:     odoh.ConfigSet{},
			wantErr: odoh.ErrUnsupportedConfig,
		},

		{
			name:    "nil set",
			set:     nil,
			wantErr: odoh.ErrUnsupportedConfig,
		},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			got, err := odoh.SelectConfig(tt.set)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfigSetMarshalParse(t *testing.T) {
	first := mustGenerateKeyPair(t, suiteX25519AES).Config
	unsupported := odoh.ConfigContents{Suite: suiteUnsupported, PublicKey: []byte{0xaa, 0xbb}}

	set := odoh.ConfigSet{configOf(first), configOf(unsupported)}
	raw, err := set.MarshalBinary()
	require.NoError(t, err)

	got, err := odoh.ParseConfigSet(raw)
	require.NoError(t, err)
	assert.Equal(t, set, got)
}

func TestParseConfigSetSkipsUnknownVersions(t *testing.T) {
	known := mustGenerateKeyPair(t, suiteX25519AES).Config
	set := odoh.ConfigSet{
		{Version: 0xff01, Contents: odoh.ConfigContents{Suite: suiteX25519ChaCha, PublicKey: []byte{1}}},
		configOf(known),
	}
	raw, err := set.MarshalBinary()
	require.NoError(t, err)

	got, err := odoh.ParseConfigSet(raw)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, known, got[0].Contents)
}

func TestParseConfigSetErrors(t *testing.T) {
	valid, err := odoh.ConfigSet{configOf(mustGenerateKeyPair(t, suiteX25519AES).Config)}.MarshalBinary()
	require.NoError(t, err)

	type testCase struct {
		// name is the subtest name.
		name string

		// raw is the input.
		raw []byte
	}

	testCases := []testCase{
		{name: "empty input", raw: nil},
		{name: "truncated outer length", raw: []byte{0x00}},
		{name: "truncated body", raw: valid[:len(valid)-1]},
		{name: "trailing data", raw: append(append([]byte{}, valid...), 0x00)},
		{name: "truncated config header", raw: []byte{0x00, 0x03, 0x00, 0x01, 0x00}},
		{name: "contents with trailing bytes", raw: []byte{
			0x00, 0x0e, // configs length
			0x00, 0x01, // version
			0x00, 0x0a, // contents length
			0x00, 0x20, 0x00, 0x01, 0x00, 0x01, // kem, kdf, aead
			0x00, 0x01, 0xff, // public key
			0x00, // extra
		}},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			got, err := odoh.ParseConfigSet(tt.raw)
			require.ErrorIs(t, err, odoh.ErrDiscovery)
			require.Nil(t, got)
		})
	}
}

func TestParseConfigSetEmpty(t *testing.T) {
	got, err := odoh.ParseConfigSet([]byte{0x00, 0x00})
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = odoh.SelectConfig(got)
	require.ErrorIs(t, err, odoh.ErrUnsupportedConfig)
}

func TestConfigContentsKeyID(t *testing.T) {
	config := mustGenerateKeyPair(t, suiteX25519AES).Config

	id1, err := config.KeyID()
	require.NoError(t, err)
	id2, err := config.KeyID()
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
	assert.Len(t, id1, 32)

	other := mustGenerateKeyPair(t, suiteX25519AES).Config
	id3, err := other.KeyID()
	require.NoError(t, err)
	assert.NotEqual(t, id1, id3)
}

func TestSuiteIsSupported(t *testing.T) {
	for _, suite := range odoh.SupportedSuites {
		assert.True(t, suite.IsSupported(), suite.String())
	}
	assert.False(t, suiteUnsupported.IsSupported())
	assert.Equal(t, "kem=0x0020 kdf=0x0001 aead=0x0001", suiteX25519AES.String())
}
