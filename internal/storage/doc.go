// Copyright (c) 2025 Nostria
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the local event cache backed by SQLite.
//
// Events received from relays are cached so feeds, calendars, and profiles
// render without waiting for the network. Replaceable and parameterized
// replaceable events keep only their newest revision per address.
//
// # Usage
//
//	cache, err := storage.Open(path)
//	defer cache.Close()
//
//	err = cache.Save(ctx, ev)
//	events, err := cache.Query(ctx, nostr.Filter{Kinds: []int{1}, Limit: 50})
//	profile, err := cache.Profile(ctx, pubkey)
package storage
