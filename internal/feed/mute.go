// Copyright (c) 2025 Nostria
// SPDX-License-Identifier: AGPL-3.0-or-later

package feed

import (
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"

	"github.com/nostria-app/nostria-go/internal/nostr"
	"github.com/nostria-app/nostria-go/internal/settings"
)

// =============================================================================
// MUTE LIST
// =============================================================================

// MuteList filters events by author, hashtag, or content word. It merges
// the user's local settings with the public portion of their kind 10000
// mute list; either source alone is enough to block an event.
type MuteList struct {
	mu       sync.RWMutex
	pubkeys  map[string]struct{}
	hashtags map[string]struct{}
	words    []string
}

// NewMuteList seeds a mute list from local settings. Settings may be nil.
func NewMuteList(s *settings.Settings) *MuteList {
	m := &MuteList{
		pubkeys:  make(map[string]struct{}),
		hashtags: make(map[string]struct{}),
	}
	if s != nil {
		for _, pk := range s.MutedPubkeys {
			m.pubkeys[pk] = struct{}{}
		}
		for _, w := range s.MutedWords {
			if w = foldText(w); w != "" {
				m.words = append(m.words, w)
			}
		}
	}
	return m
}

// ApplyEvent folds a kind 10000 mute list event into the set. Events of
// other kinds are ignored. Only public entries are read; encrypted
// content is left alone.
func (m *MuteList) ApplyEvent(ev *nostr.Event) {
	if ev == nil || ev.Kind != nostr.KindMuteList {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tag := range ev.Tags {
		if len(tag) < 2 || tag[1] == "" {
			continue
		}
		switch tag[0] {
		case "p":
			m.pubkeys[tag[1]] = struct{}{}
		case "t":
			m.hashtags[foldText(tag[1])] = struct{}{}
		case "word":
			m.words = append(m.words, foldText(tag[1]))
		}
	}
}

// Blocked reports whether the event should be dropped from a timeline.
func (m *MuteList) Blocked(ev *nostr.Event) bool {
	if ev == nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.pubkeys[ev.PubKey]; ok {
		return true
	}
	if len(m.hashtags) > 0 {
		for _, t := range ev.TagValues("t") {
			if _, ok := m.hashtags[foldText(t)]; ok {
				return true
			}
		}
	}
	if len(m.words) > 0 {
		content := foldText(ev.Content)
		for _, w := range m.words {
			if strings.Contains(content, w) {
				return true
			}
		}
	}
	return false
}

// foldText prepares a string for case- and form-insensitive matching.
func foldText(s string) string {
	return strings.ToLower(norm.NFKC.String(s))
}
