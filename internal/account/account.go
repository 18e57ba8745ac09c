// Copyright (c) 2025 Nostria
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package account manages the user's identity: key generation, key file
// persistence, and signing.
package account

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nostria-app/nostria-go/internal/nostr"
	"github.com/nostria-app/nostria-go/internal/util"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrReadOnly   = errors.New("account has no private key")
	ErrNoAccount  = errors.New("no account found")
	ErrBadKeyFile = errors.New("malformed key file")
)

// =============================================================================
// ACCOUNT
// =============================================================================

// Account is a protocol identity. Read-only accounts (followed from an
// npub) carry only a public key.
type Account struct {
	PubKey  string `json:"pubkey"`
	PrivKey string `json:"privkey,omitempty"`
	Created int64  `json:"created,omitempty"`
}

// Npub returns the account's NIP-19 public identifier.
func (a *Account) Npub() (string, error) {
	return nostr.EncodeNpub(a.PubKey)
}

// ReadOnly reports whether the account can sign.
func (a *Account) ReadOnly() bool { return a.PrivKey == "" }

// Sign signs the event with the account key, filling PubKey, ID, and Sig.
func (a *Account) Sign(ev *nostr.Event) error {
	if a.ReadOnly() {
		return ErrReadOnly
	}
	if ev.CreatedAt == 0 {
		ev.CreatedAt = time.Now().Unix()
	}
	return ev.Sign(a.PrivKey)
}

// Generate creates a fresh account.
func Generate() (*Account, error) {
	priv, err := nostr.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	pub, err := nostr.GetPublicKey(priv)
	if err != nil {
		return nil, err
	}
	return &Account{PubKey: pub, PrivKey: priv, Created: time.Now().Unix()}, nil
}

// Import builds an account from a hex key, nsec, or npub string. An npub
// yields a read-only account.
func Import(key string) (*Account, error) {
	key = strings.TrimSpace(key)
	switch {
	case strings.HasPrefix(key, nostr.PrefixNsec):
		priv, err := nostr.DecodeNsec(key)
		if err != nil {
			return nil, err
		}
		return fromPriv(priv)
	case strings.HasPrefix(key, nostr.PrefixNpub):
		pub, err := nostr.DecodeNpub(key)
		if err != nil {
			return nil, err
		}
		return &Account{PubKey: pub}, nil
	default:
		// Hex private key.
		return fromPriv(key)
	}
}

func fromPriv(priv string) (*Account, error) {
	pub, err := nostr.GetPublicKey(priv)
	if err != nil {
		return nil, err
	}
	return &Account{PubKey: pub, PrivKey: priv, Created: time.Now().Unix()}, nil
}

// =============================================================================
// KEY FILE
// =============================================================================

// DefaultKeyPath returns ~/.nostria/keys.json.
func DefaultKeyPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".nostria", "keys.json"), nil
}

// Load reads an account from the key file.
func Load(path string) (*Account, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrNoAccount
	}
	if err != nil {
		return nil, err
	}

	var a Account
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadKeyFile, err)
	}
	if len(a.PubKey) != 64 {
		return nil, ErrBadKeyFile
	}
	return &a, nil
}

// Save writes the account to the key file. The file holds key material,
// so it is written atomically with owner-only permissions.
func Save(path string, a *Account) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return err
	}
	return util.AtomicWriteFile(path, data, 0600)
}
