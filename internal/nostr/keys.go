// Copyright (c) 2025 Nostria
// SPDX-License-Identifier: AGPL-3.0-or-later

package nostr

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// GeneratePrivateKey returns a fresh secp256k1 private key as hex.
func GeneratePrivateKey() (string, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return hex.EncodeToString(priv.Serialize()), nil
}

// GetPublicKey derives the x-only hex pubkey for a hex private key.
func GetPublicKey(privKeyHex string) (string, error) {
	raw, err := hex.DecodeString(privKeyHex)
	if err != nil || len(raw) != 32 {
		return "", ErrInvalidKey
	}
	_, pub := btcec.PrivKeyFromBytes(raw)
	return hex.EncodeToString(schnorr.SerializePubKey(pub)), nil
}
