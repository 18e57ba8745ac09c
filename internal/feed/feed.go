// Copyright (c) 2025 Nostria
// SPDX-License-Identifier: AGPL-3.0-or-later

package feed

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/nostria-app/nostria-go/internal/nostr"
	"github.com/nostria-app/nostria-go/internal/relay"
)

// DefaultMaxEvents bounds the timeline when no limit is configured.
const DefaultMaxEvents = 1000

// =============================================================================
// FEED
// =============================================================================

// Feed maintains a bounded timeline in created_at-descending order.
// Events are deduped by ID and filtered through the mute list before
// insertion. While paused, arrivals accumulate in a pending buffer that
// Resume folds into the timeline.
type Feed struct {
	Column Column

	mu      sync.Mutex
	events  []*nostr.Event
	seen    map[string]struct{}
	pending []*nostr.Event
	paused  bool
	max     int
	mutes   *MuteList
}

// Option configures a Feed.
type Option func(*Feed)

// WithMaxEvents caps the timeline length.
func WithMaxEvents(n int) Option {
	return func(f *Feed) {
		if n > 0 {
			f.max = n
		}
	}
}

// WithMuteList attaches a mute list; without one nothing is muted.
func WithMuteList(m *MuteList) Option {
	return func(f *Feed) { f.mutes = m }
}

// New creates a feed for a column.
func New(col Column, opts ...Option) *Feed {
	f := &Feed{
		Column: col,
		seen:   make(map[string]struct{}),
		max:    DefaultMaxEvents,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Run consumes a pool subscription until the context is cancelled or
// the subscription closes. It blocks; run it in a goroutine.
func (f *Feed) Run(ctx context.Context, sub *relay.PoolSub) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events:
			if !ok {
				return
			}
			f.Add(ev)
		}
	}
}

// Add offers one event to the feed. It reports whether the event was
// accepted into the timeline or the pending buffer.
func (f *Feed) Add(ev *nostr.Event) bool {
	if ev == nil || ev.ID == "" {
		return false
	}
	if f.mutes != nil && f.mutes.Blocked(ev) {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, dup := f.seen[ev.ID]; dup {
		return false
	}
	f.seen[ev.ID] = struct{}{}

	if f.paused {
		f.pending = append(f.pending, ev)
		return true
	}
	f.insert(ev)
	return true
}

// insert places ev at its created_at-descending position and trims the
// tail past the cap. Callers hold f.mu.
func (f *Feed) insert(ev *nostr.Event) {
	i := sort.Search(len(f.events), func(i int) bool {
		return f.events[i].CreatedAt < ev.CreatedAt
	})
	f.events = append(f.events, nil)
	copy(f.events[i+1:], f.events[i:])
	f.events[i] = ev

	if len(f.events) > f.max {
		for _, old := range f.events[f.max:] {
			delete(f.seen, old.ID)
		}
		f.events = f.events[:f.max]
	}
}

// Pause stops timeline insertion; arrivals buffer until Resume.
func (f *Feed) Pause() {
	f.mu.Lock()
	f.paused = true
	f.mu.Unlock()
}

// Resume folds the pending buffer into the timeline and returns how
// many events were surfaced.
func (f *Feed) Resume() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused = false
	n := len(f.pending)
	for _, ev := range f.pending {
		f.insert(ev)
	}
	f.pending = nil
	return n
}

// Pending returns how many events are buffered while paused.
func (f *Feed) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// Events returns a snapshot of the timeline, newest first. A limit of
// zero or less returns everything.
func (f *Feed) Events(limit int) []*nostr.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.events)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]*nostr.Event, n)
	copy(out, f.events[:n])
	return out
}

// Len returns the current timeline length.
func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

// Search returns timeline events whose content, or author display name,
// contains the query. Matching is case-insensitive and Unicode
// normalized. The names map is keyed by pubkey and may be nil.
func (f *Feed) Search(query string, names map[string]string) []*nostr.Event {
	q := foldText(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*nostr.Event
	for _, ev := range f.events {
		if strings.Contains(foldText(ev.Content), q) {
			out = append(out, ev)
			continue
		}
		if name, ok := names[ev.PubKey]; ok && strings.Contains(foldText(name), q) {
			out = append(out, ev)
		}
	}
	return out
}
