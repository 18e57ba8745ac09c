// Copyright (c) 2025 Nostria
// SPDX-License-Identifier: AGPL-3.0-or-later

package feed

import (
	"github.com/nostria-app/nostria-go/internal/nostr"
)

// DefaultPageSize bounds a column filter when no explicit limit is set.
const DefaultPageSize = 50

// Column describes one feed lane: which kinds, from whom, and where.
type Column struct {
	Label         string   `json:"label"`
	Kinds         []int    `json:"kinds,omitempty"`
	Authors       []string `json:"authors,omitempty"`
	Relays        []string `json:"relays,omitempty"`
	Hashtags      []string `json:"hashtags,omitempty"`
	FollowingOnly bool     `json:"following_only,omitempty"`
	Limit         int      `json:"limit,omitempty"`
}

// Filter translates the column to a protocol filter. When the column is
// following-only, the given follow list narrows the authors; an empty
// follow list yields a filter that matches nothing the caller should
// subscribe with, so FollowingOnly columns with no follows fall back to
// the column's explicit authors.
func (c Column) Filter(following []string) nostr.Filter {
	f := nostr.Filter{
		Kinds:   c.Kinds,
		Authors: c.Authors,
		Limit:   c.Limit,
	}
	if len(f.Kinds) == 0 {
		f.Kinds = []int{nostr.KindTextNote, nostr.KindRepost}
	}
	if c.FollowingOnly && len(following) > 0 {
		f.Authors = following
	}
	if len(c.Hashtags) > 0 {
		f.Tags = map[string][]string{"t": c.Hashtags}
	}
	if f.Limit <= 0 {
		f.Limit = DefaultPageSize
	}
	return f
}
