// Copyright (c) 2025 Nostria
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package nostr implements the protocol core: events, filters, signing,
// and NIP-19 entity encoding.
//
// # Key Types
//
//   - Event: a signed protocol message (NIP-01 wire format)
//   - Filter: a subscription filter with tag, author, and time constraints
//
// # Usage
//
// Create, sign, and verify an event:
//
//	ev := &nostr.Event{Kind: nostr.KindTextNote, Content: "hello"}
//	err := ev.Sign(privKeyHex)
//	ok, err := ev.Verify()
//
// Match events against a filter:
//
//	f := nostr.Filter{Kinds: []int{1}, Authors: []string{pubkey}}
//	if f.Matches(ev) { ... }
//
// Encode protocol entities (NIP-19):
//
//	npub, err := nostr.EncodeNpub(pubkeyHex)
//	pubkey, err := nostr.DecodeNpub(npub)
package nostr
