// Copyright (c) 2025 Nostria
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package relay implements the websocket transport to protocol relays.
//
// # Key Types
//
//   - Relay: a single relay connection with automatic reconnect
//   - Subscription: a REQ subscription delivering verified events
//   - Pool: a set of relays queried together with cross-relay dedup
//
// # Usage
//
// Connect and subscribe:
//
//	r := relay.New("wss://relay.example")
//	err := r.Connect(ctx)
//	sub, err := r.Subscribe(ctx, []nostr.Filter{{Kinds: []int{1}}})
//	for ev := range sub.Events { ... }
//
// Publish and wait for acknowledgement:
//
//	err := r.Publish(ctx, ev)
//
// Query several relays at once:
//
//	pool := relay.NewPool("wss://a.example", "wss://b.example")
//	sub, err := pool.Subscribe(ctx, filters)
package relay
