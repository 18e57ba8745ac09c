// Copyright (c) 2025 Nostria
// SPDX-License-Identifier: AGPL-3.0-or-later

package nostr

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

// =============================================================================
// NIP-19 ENTITY ENCODING
// =============================================================================

// Human-readable prefixes for bech32-encoded protocol entities.
const (
	PrefixNpub  = "npub"
	PrefixNsec  = "nsec"
	PrefixNote  = "note"
	PrefixNaddr = "naddr"
)

// TLV types used inside naddr payloads.
const (
	tlvSpecial = 0
	tlvRelay   = 1
	tlvAuthor  = 2
	tlvKind    = 3
)

var (
	ErrBadEntity = errors.New("malformed nip-19 entity")
	ErrBadPrefix = errors.New("unexpected nip-19 prefix")
)

// EntityPointer is a decoded naddr: the address of a parameterized
// replaceable event plus relay hints.
type EntityPointer struct {
	Identifier string
	PubKey     string
	Kind       int
	Relays     []string
}

// EncodeNpub encodes a hex pubkey as an npub string.
func EncodeNpub(pubkeyHex string) (string, error) {
	return encodeHex(PrefixNpub, pubkeyHex)
}

// DecodeNpub decodes an npub string to a hex pubkey.
func DecodeNpub(npub string) (string, error) {
	return decodeHex(PrefixNpub, npub)
}

// EncodeNsec encodes a hex private key as an nsec string.
func EncodeNsec(privkeyHex string) (string, error) {
	return encodeHex(PrefixNsec, privkeyHex)
}

// DecodeNsec decodes an nsec string to a hex private key.
func DecodeNsec(nsec string) (string, error) {
	return decodeHex(PrefixNsec, nsec)
}

// EncodeNote encodes a hex event ID as a note string.
func EncodeNote(idHex string) (string, error) {
	return encodeHex(PrefixNote, idHex)
}

// DecodeNote decodes a note string to a hex event ID.
func DecodeNote(note string) (string, error) {
	return decodeHex(PrefixNote, note)
}

// EncodeNaddr encodes the address of a parameterized replaceable event.
func EncodeNaddr(p EntityPointer) (string, error) {
	pub, err := hex.DecodeString(p.PubKey)
	if err != nil || len(pub) != 32 {
		return "", fmt.Errorf("%w: bad author pubkey", ErrBadEntity)
	}

	var payload []byte
	payload, err = appendTLV(payload, tlvSpecial, []byte(p.Identifier))
	if err != nil {
		return "", err
	}
	for _, r := range p.Relays {
		payload, err = appendTLV(payload, tlvRelay, []byte(r))
		if err != nil {
			return "", err
		}
	}
	payload, _ = appendTLV(payload, tlvAuthor, pub)
	kind := make([]byte, 4)
	binary.BigEndian.PutUint32(kind, uint32(p.Kind))
	payload, _ = appendTLV(payload, tlvKind, kind)

	return encodeBytes(PrefixNaddr, payload)
}

// DecodeNaddr decodes an naddr string.
func DecodeNaddr(naddr string) (EntityPointer, error) {
	payload, err := decodeBytes(PrefixNaddr, naddr)
	if err != nil {
		return EntityPointer{}, err
	}

	var p EntityPointer
	sawAuthor, sawKind := false, false
	for len(payload) > 0 {
		if len(payload) < 2 {
			return EntityPointer{}, ErrBadEntity
		}
		typ, length := payload[0], int(payload[1])
		payload = payload[2:]
		if len(payload) < length {
			return EntityPointer{}, ErrBadEntity
		}
		val := payload[:length]
		payload = payload[length:]

		switch typ {
		case tlvSpecial:
			p.Identifier = string(val)
		case tlvRelay:
			p.Relays = append(p.Relays, string(val))
		case tlvAuthor:
			if len(val) != 32 {
				return EntityPointer{}, ErrBadEntity
			}
			p.PubKey = hex.EncodeToString(val)
			sawAuthor = true
		case tlvKind:
			if len(val) != 4 {
				return EntityPointer{}, ErrBadEntity
			}
			p.Kind = int(binary.BigEndian.Uint32(val))
			sawKind = true
		default:
			// Unknown TLV types are ignored for forward compatibility.
		}
	}
	if !sawAuthor || !sawKind {
		return EntityPointer{}, ErrBadEntity
	}
	return p, nil
}

// appendTLV appends one type-length-value record. The length field is a
// single byte, so values over 255 bytes are unrepresentable.
func appendTLV(buf []byte, typ byte, val []byte) ([]byte, error) {
	if len(val) > 255 {
		return nil, fmt.Errorf("%w: tlv value exceeds 255 bytes", ErrBadEntity)
	}
	buf = append(buf, typ, byte(len(val)))
	return append(buf, val...), nil
}

func encodeHex(hrp, h string) (string, error) {
	raw, err := hex.DecodeString(h)
	if err != nil || len(raw) != 32 {
		return "", fmt.Errorf("%w: want 32 hex bytes", ErrBadEntity)
	}
	return encodeBytes(hrp, raw)
}

func decodeHex(hrp, s string) (string, error) {
	raw, err := decodeBytes(hrp, s)
	if err != nil {
		return "", err
	}
	if len(raw) != 32 {
		return "", fmt.Errorf("%w: want 32 bytes", ErrBadEntity)
	}
	return hex.EncodeToString(raw), nil
}

func encodeBytes(hrp string, raw []byte) (string, error) {
	grouped, err := bech32.ConvertBits(raw, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadEntity, err)
	}
	s, err := bech32.Encode(hrp, grouped)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadEntity, err)
	}
	return s, nil
}

func decodeBytes(wantHRP, s string) ([]byte, error) {
	// Naddr entities routinely exceed the 90-character bech32 limit.
	hrp, grouped, err := bech32.DecodeNoLimit(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadEntity, err)
	}
	if hrp != wantHRP {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrBadPrefix, hrp, wantHRP)
	}
	raw, err := bech32.ConvertBits(grouped, 5, 8, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadEntity, err)
	}
	return raw, nil
}
