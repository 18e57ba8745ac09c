// Copyright (c) 2025 Nostria
// SPDX-License-Identifier: AGPL-3.0-or-later

package nostr

import (
	"encoding/json"
	"strings"
)

// =============================================================================
// FILTER
// =============================================================================

// Filter selects events for a subscription (NIP-01). Zero-value fields are
// unconstrained. Tag filters are keyed by tag name without the '#' prefix;
// the wire form uses "#e", "#p", etc.
type Filter struct {
	IDs     []string
	Authors []string
	Kinds   []int
	Tags    map[string][]string
	Since   int64
	Until   int64
	Limit   int
	Search  string
}

// filterJSON is the wire representation without tag filters; tag filters
// are merged in by MarshalJSON.
type filterJSON struct {
	IDs     []string `json:"ids,omitempty"`
	Authors []string `json:"authors,omitempty"`
	Kinds   []int    `json:"kinds,omitempty"`
	Since   *int64   `json:"since,omitempty"`
	Until   *int64   `json:"until,omitempty"`
	Limit   *int     `json:"limit,omitempty"`
	Search  string   `json:"search,omitempty"`
}

// MarshalJSON emits the NIP-01 wire form, with tag filters as "#x" keys.
func (f Filter) MarshalJSON() ([]byte, error) {
	base := filterJSON{
		IDs:     f.IDs,
		Authors: f.Authors,
		Kinds:   f.Kinds,
		Search:  f.Search,
	}
	if f.Since > 0 {
		base.Since = &f.Since
	}
	if f.Until > 0 {
		base.Until = &f.Until
	}
	if f.Limit > 0 {
		base.Limit = &f.Limit
	}

	raw, err := json.Marshal(base)
	if err != nil {
		return nil, err
	}
	if len(f.Tags) == 0 {
		return raw, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	for name, vals := range f.Tags {
		enc, err := json.Marshal(vals)
		if err != nil {
			return nil, err
		}
		obj["#"+name] = enc
	}
	return json.Marshal(obj)
}

// UnmarshalJSON parses the wire form, gathering "#x" keys into Tags.
func (f *Filter) UnmarshalJSON(data []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}

	var base filterJSON
	if err := json.Unmarshal(data, &base); err != nil {
		return err
	}
	f.IDs = base.IDs
	f.Authors = base.Authors
	f.Kinds = base.Kinds
	f.Search = base.Search
	if base.Since != nil {
		f.Since = *base.Since
	}
	if base.Until != nil {
		f.Until = *base.Until
	}
	if base.Limit != nil {
		f.Limit = *base.Limit
	}

	for key, raw := range obj {
		if !strings.HasPrefix(key, "#") || len(key) < 2 {
			continue
		}
		var vals []string
		if err := json.Unmarshal(raw, &vals); err != nil {
			return err
		}
		if f.Tags == nil {
			f.Tags = make(map[string][]string)
		}
		f.Tags[key[1:]] = vals
	}
	return nil
}

// =============================================================================
// MATCHING
// =============================================================================

// Matches reports whether the event satisfies every constraint of the
// filter. IDs and Authors match on full value or hex prefix, per NIP-01.
func (f Filter) Matches(ev *Event) bool {
	if ev == nil {
		return false
	}
	if len(f.IDs) > 0 && !matchPrefix(f.IDs, ev.ID) {
		return false
	}
	if len(f.Authors) > 0 && !matchPrefix(f.Authors, ev.PubKey) {
		return false
	}
	if len(f.Kinds) > 0 && !containsInt(f.Kinds, ev.Kind) {
		return false
	}
	if f.Since > 0 && ev.CreatedAt < f.Since {
		return false
	}
	if f.Until > 0 && ev.CreatedAt > f.Until {
		return false
	}
	for name, wanted := range f.Tags {
		if !matchTag(ev, name, wanted) {
			return false
		}
	}
	return true
}

// matchTag reports whether the event carries a tag with the given name
// whose first value is one of wanted.
func matchTag(ev *Event, name string, wanted []string) bool {
	for _, have := range ev.TagValues(name) {
		for _, w := range wanted {
			if have == w {
				return true
			}
		}
	}
	return false
}

func matchPrefix(prefixes []string, value string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(value, p) {
			return true
		}
	}
	return false
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
