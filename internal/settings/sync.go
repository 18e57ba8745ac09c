// Copyright (c) 2025 Nostria
// SPDX-License-Identifier: AGPL-3.0-or-later

package settings

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/nostria-app/nostria-go/internal/account"
	"github.com/nostria-app/nostria-go/internal/nostr"
)

// =============================================================================
// REMOTE SYNC (NIP-78 APP DATA)
// =============================================================================

// SyncIdentifier is the d tag of the replaceable settings event.
const SyncIdentifier = "nostria:settings"

// keyInfo is the HKDF info string binding the derived key to this use.
const keyInfo = "nostria-settings-v1"

var (
	ErrBadPayload = errors.New("undecryptable settings payload")
	ErrNotSynced  = errors.New("event is not a settings sync event")
)

// deriveKey derives the settings encryption key from the account's private
// key via HKDF-SHA256.
func deriveKey(privHex string) ([]byte, error) {
	secret, err := hex.DecodeString(privHex)
	if err != nil || len(secret) != 32 {
		return nil, nostr.ErrInvalidKey
	}
	key := make([]byte, chacha20poly1305.KeySize)
	r := hkdf.New(sha256.New, secret, nil, []byte(keyInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// encrypt seals the settings JSON with ChaCha20-Poly1305; the random nonce
// is prepended to the ciphertext and the whole payload base64-encoded.
func encrypt(s *Settings, privHex string) (string, error) {
	key, err := deriveKey(privHex)
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return "", err
	}

	plain, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := aead.Seal(nonce, nonce, plain, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// decrypt reverses encrypt.
func decrypt(payload, privHex string) (*Settings, error) {
	key, err := deriveKey(privHex)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil || len(raw) < aead.NonceSize() {
		return nil, ErrBadPayload
	}
	plain, err := aead.Open(nil, raw[:aead.NonceSize()], raw[aead.NonceSize():], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	var s Settings
	if err := json.Unmarshal(plain, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return &s, nil
}

// SyncEvent builds the signed replaceable event carrying the current
// settings, for publication to the user's write relays.
func (st *Store) SyncEvent(acct *account.Account) (*nostr.Event, error) {
	if acct.ReadOnly() {
		return nil, account.ErrReadOnly
	}

	payload, err := encrypt(st.Get(), acct.PrivKey)
	if err != nil {
		return nil, err
	}

	ev := &nostr.Event{
		Kind:    nostr.KindAppData,
		Tags:    [][]string{{"d", SyncIdentifier}},
		Content: payload,
	}
	if err := acct.Sign(ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// ApplyRemote decrypts a settings sync event and merges it. Events for
// other identifiers or authors, and undecryptable payloads, are rejected.
func (st *Store) ApplyRemote(ev *nostr.Event, acct *account.Account) (MergeResult, error) {
	if ev.Kind != nostr.KindAppData || ev.TagValue("d") != SyncIdentifier {
		return MergeEqual, ErrNotSynced
	}
	if ev.PubKey != acct.PubKey {
		return MergeEqual, fmt.Errorf("%w: foreign author", ErrNotSynced)
	}
	if acct.ReadOnly() {
		return MergeEqual, account.ErrReadOnly
	}

	remote, err := decrypt(ev.Content, acct.PrivKey)
	if err != nil {
		return MergeEqual, err
	}
	return st.Merge(remote)
}

// SyncFilter returns the filter that selects the account's settings events.
func SyncFilter(pubkey string) nostr.Filter {
	return nostr.Filter{
		Authors: []string{pubkey},
		Kinds:   []int{nostr.KindAppData},
		Tags:    map[string][]string{"d": {SyncIdentifier}},
		Limit:   1,
	}
}
