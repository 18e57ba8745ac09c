// Copyright (c) 2025 Nostria
// SPDX-License-Identifier: AGPL-3.0-or-later

package feed

import (
	"encoding/json"
	"errors"

	"github.com/nostria-app/nostria-go/internal/nostr"
)

var (
	// ErrNotRepost is returned when the event is not kind 6.
	ErrNotRepost = errors.New("feed: not a repost")

	// ErrNoEmbedded is returned when a repost carries no verifiable
	// embedded event. Ref may still name the reposted event ID.
	ErrNoEmbedded = errors.New("feed: repost has no embedded event")
)

// Unwrap extracts and verifies the event embedded in a kind 6 repost.
// If the content is empty, malformed, or fails signature verification,
// ErrNoEmbedded is returned and the caller should fall back to Ref.
func Unwrap(ev *nostr.Event) (*nostr.Event, error) {
	if ev == nil || ev.Kind != nostr.KindRepost {
		return nil, ErrNotRepost
	}
	if ev.Content == "" {
		return nil, ErrNoEmbedded
	}
	var inner nostr.Event
	if err := json.Unmarshal([]byte(ev.Content), &inner); err != nil {
		return nil, ErrNoEmbedded
	}
	if ok, _ := inner.Verify(); !ok {
		return nil, ErrNoEmbedded
	}
	return &inner, nil
}

// Ref returns the event ID a repost points at, or "" when absent.
func Ref(ev *nostr.Event) string {
	if ev == nil || ev.Kind != nostr.KindRepost {
		return ""
	}
	return ev.TagValue("e")
}
