// SPDX-License-Identifier: GPL-3.0-or-later

package odoh

import (
	"errors"
	"fmt"

	"github.com/cloudflare/circl/hpke"
	"golang.org/x/crypto/cryptobyte"
)

// ConfigVersion is the only ObliviousDoHConfig version we understand.
const ConfigVersion uint16 = 0x0001

// Suite is a (KEM, KDF, AEAD) triple.
type Suite struct {
	KEM  hpke.KEM
	KDF  hpke.KDF
	AEAD hpke.AEAD
}

// String returns a human readable representation of the suite.
func (s Suite) String() string {
	return fmt.Sprintf("kem=0x%04x kdf=0x%04x aead=0x%04x", uint16(s.KEM), uint16(s.KDF), uint16(s.AEAD))
}

// SupportedSuites lists the suites this client can use, in no particular
// order. Selection follows the target's publication order, not this list.
var SupportedSuites = []Suite{
	{KEM: hpke.KEM_X25519_HKDF_SHA256, KDF: hpke.KDF_HKDF_SHA256, AEAD: hpke.AEAD_AES128GCM},
	{KEM: hpke.KEM_X25519_HKDF_SHA256, KDF: hpke.KDF_HKDF_SHA256, AEAD: hpke.AEAD_ChaCha20Poly1305},
	{KEM: hpke.KEM_P256_HKDF_SHA256, KDF: hpke.KDF_HKDF_SHA256, AEAD: hpke.AEAD_AES128GCM},
}

// IsSupported returns whether the suite is listed in [SupportedSuites].
func (s Suite) IsSupported() bool {
	for _, candidate := range SupportedSuites {
		if candidate == s {
			return true
		}
	}
	return false
}

// hpkeSuite returns the corresponding circl suite. The caller must
// have checked that the suite is supported.
func (s Suite) hpkeSuite() hpke.Suite {
	return hpke.NewSuite(s.KEM, s.KDF, s.AEAD)
}

// ConfigContents is an ObliviousDoHConfigContents structure.
type ConfigContents struct {
	Suite

	// PublicKey is the target's serialized KEM public key.
	PublicKey []byte
}

// IsSupported returns whether we can encrypt queries for this config.
//
// Besides the suite, the public key must be valid for the KEM.
func (c ConfigContents) IsSupported() bool {
	if !c.Suite.IsSupported() {
		return false
	}
	_, err := c.KEM.Scheme().UnmarshalBinaryPublicKey(c.PublicKey)
	return err == nil
}

// MarshalBinary serializes the contents using the wire format.
func (c ConfigContents) MarshalBinary() ([]byte, error) {
	b := cryptobyte.NewBuilder(nil)
	c.marshal(b)
	return b.Bytes()
}

func (c ConfigContents) marshal(b *cryptobyte.Builder) {
	b.AddUint16(uint16(c.KEM))
	b.AddUint16(uint16(c.KDF))
	b.AddUint16(uint16(c.AEAD))
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(c.PublicKey)
	})
}

// KeyID returns the key identifier the target uses to locate the
// private key matching this config.
func (c ConfigContents) KeyID() ([]byte, error) {
	raw, err := c.MarshalBinary()
	if err != nil {
		return nil, err
	}
	prk := c.KDF.Extract(raw, nil)
	return c.KDF.Expand(prk, []byte(labelKeyID), uint(c.KDF.ExtractSize())), nil
}

// Config is an ObliviousDoHConfig structure.
type Config struct {
	Version  uint16
	Contents ConfigContents
}

// ConfigSet is an ObliviousDoHConfigs structure in publication order.
type ConfigSet []Config

var errTrailingData = errors.New("trailing data")

// ParseConfigSet parses a serialized ObliviousDoHConfigs.
//
// Configs with an unknown version are skipped. Configs whose algorithms
// we do not know are kept so that [SelectConfig] can reject them.
func ParseConfigSet(raw []byte) (ConfigSet, error) {
	input := cryptobyte.String(raw)
	var configs cryptobyte.String
	if !input.ReadUint16LengthPrefixed(&configs) {
		return nil, fmt.Errorf("%w: truncated configs", ErrDiscovery)
	}
	if !input.Empty() {
		return nil, fmt.Errorf("%w: %w", ErrDiscovery, errTrailingData)
	}

	set := ConfigSet{}
	for !configs.Empty() {
		var (
			version  uint16
			contents cryptobyte.String
		)
		if !configs.ReadUint16(&version) || !configs.ReadUint16LengthPrefixed(&contents) {
			return nil, fmt.Errorf("%w: truncated config", ErrDiscovery)
		}
		if version != ConfigVersion {
			continue
		}
		parsed, err := parseConfigContents(contents)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDiscovery, err)
		}
		set = append(set, Config{Version: version, Contents: parsed})
	}
	return set, nil
}

func parseConfigContents(input cryptobyte.String) (ConfigContents, error) {
	var (
		kemID, kdfID, aeadID uint16
		publicKey            cryptobyte.String
	)
	if !input.ReadUint16(&kemID) ||
		!input.ReadUint16(&kdfID) ||
		!input.ReadUint16(&aeadID) ||
		!input.ReadUint16LengthPrefixed(&publicKey) {
		return ConfigContents{}, errors.New("truncated config contents")
	}
	if !input.Empty() {
		return ConfigContents{}, errTrailingData
	}
	return ConfigContents{
		Suite: Suite{
			KEM:  hpke.KEM(kemID),
			KDF:  hpke.KDF(kdfID),
			AEAD: hpke.AEAD(aeadID),
		},
		PublicKey: append([]byte(nil), publicKey...),
	}, nil
}

// MarshalBinary serializes the set using the wire format.
func (s ConfigSet) MarshalBinary() ([]byte, error) {
	b := cryptobyte.NewBuilder(nil)
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		for _, config := range s {
			b.AddUint16(config.Version)
			b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
				config.Contents.marshal(b)
			})
		}
	})
	return b.Bytes()
}

// SelectConfig returns the first supported config in publication order.
func SelectConfig(set ConfigSet) (ConfigContents, error) {
	for _, config := range set {
		if config.Version == ConfigVersion && config.Contents.IsSupported() {
			return config.Contents, nil
		}
	}
	return ConfigContents{}, fmt.Errorf("%w: %d config(s) published", ErrUnsupportedConfig, len(set))
}
