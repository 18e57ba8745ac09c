// Copyright (c) 2025 Nostria
// SPDX-License-Identifier: AGPL-3.0-or-later

package nostr

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrInvalidKey       = errors.New("invalid key")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrIDMismatch       = errors.New("event id does not match content")
)

// =============================================================================
// EVENT
// =============================================================================

// Event is a signed protocol message in the NIP-01 wire format.
type Event struct {
	ID        string     `json:"id"`
	PubKey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

// Serialize returns the canonical form used for ID computation:
// a JSON array [0, pubkey, created_at, kind, tags, content] with no
// insignificant whitespace and no HTML escaping.
func (ev *Event) Serialize() ([]byte, error) {
	tags := ev.Tags
	if tags == nil {
		tags = [][]string{}
	}
	arr := []interface{}{0, ev.PubKey, ev.CreatedAt, ev.Kind, tags, ev.Content}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(arr); err != nil {
		return nil, fmt.Errorf("serialize event: %w", err)
	}
	// Encoder appends a newline; the canonical form has none.
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// ComputeID returns the hex sha256 of the canonical serialization.
func (ev *Event) ComputeID() (string, error) {
	ser, err := ev.Serialize()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(ser)
	return hex.EncodeToString(sum[:]), nil
}

// Sign computes the event ID and Schnorr signature using the given hex
// private key, filling in PubKey, ID, and Sig.
func (ev *Event) Sign(privKeyHex string) error {
	keyBytes, err := hex.DecodeString(privKeyHex)
	if err != nil || len(keyBytes) != 32 {
		return ErrInvalidKey
	}
	priv, pub := btcec.PrivKeyFromBytes(keyBytes)

	ev.PubKey = hex.EncodeToString(schnorr.SerializePubKey(pub))

	id, err := ev.ComputeID()
	if err != nil {
		return err
	}
	ev.ID = id

	digest, _ := hex.DecodeString(id)
	sig, err := schnorr.Sign(priv, digest)
	if err != nil {
		return fmt.Errorf("sign event: %w", err)
	}
	ev.Sig = hex.EncodeToString(sig.Serialize())
	return nil
}

// Verify checks that the event ID matches the content and that the
// signature is valid for the author's pubkey. Any malformed field fails
// closed.
func (ev *Event) Verify() (bool, error) {
	id, err := ev.ComputeID()
	if err != nil {
		return false, err
	}
	if id != strings.ToLower(ev.ID) {
		return false, ErrIDMismatch
	}

	pubBytes, err := hex.DecodeString(ev.PubKey)
	if err != nil || len(pubBytes) != 32 {
		return false, ErrInvalidKey
	}
	pub, err := schnorr.ParsePubKey(pubBytes)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	sigBytes, err := hex.DecodeString(ev.Sig)
	if err != nil || len(sigBytes) != 64 {
		return false, ErrInvalidSignature
	}
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	digest, _ := hex.DecodeString(id)
	if !sig.Verify(digest, pub) {
		return false, ErrInvalidSignature
	}
	return true, nil
}

// IsReplaceable reports whether the event replaces older events of the
// same kind by the same author.
func (ev *Event) IsReplaceable() bool { return IsReplaceable(ev.Kind) }

// IsParamReplaceable reports whether the event replaces older events with
// the same kind, author, and d tag.
func (ev *Event) IsParamReplaceable() bool { return IsParamReplaceable(ev.Kind) }

// Address returns the replaceable address "kind:pubkey:d" for the event.
// For plain replaceable kinds the d part is empty; for regular events the
// address is empty.
func (ev *Event) Address() string {
	switch {
	case ev.IsParamReplaceable():
		return fmt.Sprintf("%d:%s:%s", ev.Kind, ev.PubKey, ev.TagValue("d"))
	case ev.IsReplaceable():
		return fmt.Sprintf("%d:%s:", ev.Kind, ev.PubKey)
	default:
		return ""
	}
}

// =============================================================================
// TAG HELPERS
// =============================================================================

// TagValue returns the first value of the first tag with the given name,
// or "" if absent.
func (ev *Event) TagValue(name string) string {
	for _, tag := range ev.Tags {
		if len(tag) >= 2 && tag[0] == name {
			return tag[1]
		}
	}
	return ""
}

// TagValues returns the first value of every tag with the given name.
func (ev *Event) TagValues(name string) []string {
	var vals []string
	for _, tag := range ev.Tags {
		if len(tag) >= 2 && tag[0] == name {
			vals = append(vals, tag[1])
		}
	}
	return vals
}

// Tag returns the first full tag with the given name, or nil.
func (ev *Event) Tag(name string) []string {
	for _, tag := range ev.Tags {
		if len(tag) >= 1 && tag[0] == name {
			return tag
		}
	}
	return nil
}

// AddTag appends a tag.
func (ev *Event) AddTag(name string, values ...string) {
	ev.Tags = append(ev.Tags, append([]string{name}, values...))
}
