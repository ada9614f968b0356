// SPDX-License-Identifier: GPL-3.0-or-later

package odoh

import (
	"errors"

	"golang.org/x/crypto/cryptobyte"
)

// MediaType is the content type of ODoH queries and responses.
const MediaType = "application/oblivious-dns-message"

// MessageType identifies an ObliviousDoHMessage as a query or a response.
type MessageType uint8

const (
	// MessageTypeQuery is the type of encrypted queries.
	MessageTypeQuery MessageType = 0x01

	// MessageTypeResponse is the type of encrypted responses.
	MessageTypeResponse MessageType = 0x02
)

// Labels used by the key schedule.
const (
	labelKeyID         = "odoh key id"
	labelQuery         = "odoh query"
	labelResponse      = "odoh response"
	labelResponseKey   = "odoh key"
	labelResponseNonce = "odoh nonce"
)

var (
	errTruncatedMessage = errors.New("truncated message")
	errNonZeroPadding   = errors.New("non-zero padding")
	errEmptyDNSMessage  = errors.New("empty DNS message")
)

// MessagePlaintext is an ObliviousDoHMessagePlaintext structure: the DNS
// message sealed inside a query or a response, followed by zero padding.
type MessagePlaintext struct {
	// DNSMessage is the serialized DNS message.
	DNSMessage []byte

	// Padding is the number of zero bytes appended on the wire.
	Padding uint16
}

// QueryBody is the plaintext of an encrypted query.
type QueryBody = MessagePlaintext

// MarshalBinary serializes the plaintext using the wire format.
func (p *MessagePlaintext) MarshalBinary() ([]byte, error) {
	if len(p.DNSMessage) == 0 {
		return nil, errEmptyDNSMessage
	}
	b := cryptobyte.NewBuilder(nil)
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(p.DNSMessage)
	})
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(make([]byte, p.Padding))
	})
	return b.Bytes()
}

// ParseMessagePlaintext parses a serialized ObliviousDoHMessagePlaintext.
func ParseMessagePlaintext(raw []byte) (*MessagePlaintext, error) {
	input := cryptobyte.String(raw)
	var dnsMessage, padding cryptobyte.String
	if !input.ReadUint16LengthPrefixed(&dnsMessage) ||
		!input.ReadUint16LengthPrefixed(&padding) {
		return nil, errTruncatedMessage
	}
	if !input.Empty() {
		return nil, errTrailingData
	}
	if len(dnsMessage) == 0 {
		return nil, errEmptyDNSMessage
	}
	for _, b := range padding {
		if b != 0 {
			return nil, errNonZeroPadding
		}
	}
	return &MessagePlaintext{
		DNSMessage: append([]byte(nil), dnsMessage...),
		Padding:    uint16(len(padding)),
	}, nil
}

// Message is an ObliviousDoHMessage structure.
type Message struct {
	Type MessageType

	// KeyID is the config key ID for queries and the response
	// nonce for responses.
	KeyID []byte

	// EncryptedMessage is the sealed [MessagePlaintext].
	EncryptedMessage []byte
}

// MarshalBinary serializes the message using the wire format.
func (m *Message) MarshalBinary() ([]byte, error) {
	b := cryptobyte.NewBuilder(nil)
	b.AddUint8(uint8(m.Type))
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(m.KeyID)
	})
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(m.EncryptedMessage)
	})
	return b.Bytes()
}

// ParseMessage parses a serialized ObliviousDoHMessage.
func ParseMessage(raw []byte) (*Message, error) {
	input := cryptobyte.String(raw)
	var (
		messageType uint8
		keyID       cryptobyte.String
		encrypted   cryptobyte.String
	)
	if !input.ReadUint8(&messageType) ||
		!input.ReadUint16LengthPrefixed(&keyID) ||
		!input.ReadUint16LengthPrefixed(&encrypted) {
		return nil, errTruncatedMessage
	}
	if !input.Empty() {
		return nil, errTrailingData
	}
	return &Message{
		Type:             MessageType(messageType),
		KeyID:            append([]byte(nil), keyID...),
		EncryptedMessage: append([]byte(nil), encrypted...),
	}, nil
}

// additionalData returns type || len(id) || id.
func additionalData(messageType MessageType, id []byte) []byte {
	b := cryptobyte.NewBuilder(nil)
	b.AddUint8(uint8(messageType))
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(id)
	})
	return b.BytesOrPanic()
}
