// Copyright (c) 2025 Nostria
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package settings persists user settings locally and syncs them through
// relays as encrypted application data.
//
// Local writes are debounced: mutations mark the store dirty and a flush
// runs after a quiet interval, bounded by a maximum latency. Remote copies
// are replaceable kind-30078 events; merging is newest-wins by the Updated
// timestamp.
package settings

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nostria-app/nostria-go/internal/util"
)

// =============================================================================
// MODEL
// =============================================================================

// RelayEntry is one configured relay with its read/write markers.
type RelayEntry struct {
	URL   string `json:"url"`
	Read  bool   `json:"read"`
	Write bool   `json:"write"`
}

// Settings is the persisted user settings document. Extra preserves fields
// written by newer client versions.
type Settings struct {
	Relays         []RelayEntry `json:"relays,omitempty"`
	MediaServers   []string     `json:"media_servers,omitempty"`
	CalendarSystem string       `json:"calendar_system,omitempty"` // gregorian, ethiopian, chronia
	CalendarView   string       `json:"calendar_view,omitempty"`   // month, week, agenda
	Locale         string       `json:"locale,omitempty"`
	MutedPubkeys   []string     `json:"muted_pubkeys,omitempty"`
	MutedWords     []string     `json:"muted_words,omitempty"`
	TrustProvider  string       `json:"trust_provider,omitempty"` // provider pubkey

	Extra map[string]json.RawMessage `json:"extra,omitempty"`

	// Updated is the unix-second timestamp of the last mutation; it
	// drives the newest-wins merge.
	Updated int64 `json:"updated"`
}

// Default returns the settings a fresh install starts from.
func Default() *Settings {
	return &Settings{
		Relays: []RelayEntry{
			{URL: "wss://relay.damus.io", Read: true, Write: true},
			{URL: "wss://nos.lol", Read: true, Write: true},
		},
		CalendarSystem: "gregorian",
		CalendarView:   "month",
		Locale:         "en",
	}
}

// ReadRelays returns the URLs marked for reading.
func (s *Settings) ReadRelays() []string {
	var urls []string
	for _, r := range s.Relays {
		if r.Read {
			urls = append(urls, r.URL)
		}
	}
	return urls
}

// WriteRelays returns the URLs marked for writing.
func (s *Settings) WriteRelays() []string {
	var urls []string
	for _, r := range s.Relays {
		if r.Write {
			urls = append(urls, r.URL)
		}
	}
	return urls
}

// clone deep-copies the settings document via JSON.
func (s *Settings) clone() *Settings {
	data, _ := json.Marshal(s)
	var c Settings
	_ = json.Unmarshal(data, &c)
	return &c
}

// =============================================================================
// STORE
// =============================================================================

const (
	// DefaultDebounce is the quiet interval before a dirty store flushes.
	DefaultDebounce = 500 * time.Millisecond

	// DefaultMaxLatency bounds how long a dirty store may stay unflushed
	// while mutations keep arriving.
	DefaultMaxLatency = 5 * time.Second
)

var ErrStoreClosed = errors.New("settings store closed")

// Store owns the local settings file with debounced writes.
type Store struct {
	path       string
	debounce   time.Duration
	maxLatency time.Duration

	mu         sync.Mutex
	current    *Settings
	dirty      bool
	firstDirty time.Time
	timer      *time.Timer
	closed     bool
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithDebounce overrides the flush intervals (mainly for tests).
func WithDebounce(quiet, max time.Duration) StoreOption {
	return func(st *Store) {
		st.debounce = quiet
		st.maxLatency = max
	}
}

// DefaultPath returns ~/.nostria/settings.json.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".nostria", "settings.json"), nil
}

// Open loads the settings file, falling back to defaults when it is
// missing. A corrupt file is set aside rather than silently overwritten.
func Open(path string, opts ...StoreOption) (*Store, error) {
	st := &Store{
		path:       path,
		debounce:   DefaultDebounce,
		maxLatency: DefaultMaxLatency,
	}
	for _, opt := range opts {
		opt(st)
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		st.current = Default()
	case err != nil:
		return nil, err
	default:
		var s Settings
		if jsonErr := json.Unmarshal(data, &s); jsonErr != nil {
			// Keep the damaged file for inspection and start over.
			_ = os.Rename(path, path+".corrupt")
			st.current = Default()
		} else {
			st.current = &s
		}
	}
	return st, nil
}

// Get returns a copy of the current settings.
func (st *Store) Get() *Settings {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.current.clone()
}

// Update applies a mutation, stamps Updated, and schedules a debounced
// flush.
func (st *Store) Update(fn func(*Settings)) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return ErrStoreClosed
	}

	fn(st.current)
	st.current.Updated = time.Now().Unix()

	now := time.Now()
	if !st.dirty {
		st.dirty = true
		st.firstDirty = now
	}

	// Restart the quiet timer, but never let the first mutation wait
	// longer than maxLatency.
	delay := st.debounce
	if remaining := st.maxLatency - now.Sub(st.firstDirty); remaining < delay {
		delay = remaining
	}
	if delay < 0 {
		delay = 0
	}
	if st.timer != nil {
		st.timer.Stop()
	}
	st.timer = time.AfterFunc(delay, func() {
		_ = st.Flush()
	})
	return nil
}

// Flush writes the settings to disk immediately if dirty.
func (st *Store) Flush() error {
	st.mu.Lock()
	if !st.dirty {
		st.mu.Unlock()
		return nil
	}
	snapshot := st.current.clone()
	st.dirty = false
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}
	st.mu.Unlock()

	return st.write(snapshot)
}

func (st *Store) write(s *Settings) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return util.AtomicWriteFile(st.path, data, 0644)
}

// Close flushes pending changes and stops the store.
func (st *Store) Close() error {
	st.mu.Lock()
	if st.closed {
		st.mu.Unlock()
		return nil
	}
	st.closed = true
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}
	st.mu.Unlock()

	return st.Flush()
}

// =============================================================================
// MERGE
// =============================================================================

// MergeResult describes the outcome of merging a remote copy.
type MergeResult int

const (
	// MergeEqual means both copies carry the same timestamp.
	MergeEqual MergeResult = iota

	// MergeRemoteApplied means the remote copy was newer and replaced the
	// local settings wholesale.
	MergeRemoteApplied

	// MergeLocalNewer means the local copy wins and should be republished.
	MergeLocalNewer
)

// clockSkewTolerance is how close two Updated stamps may be while still
// counting as equal; within it the local copy is favored.
const clockSkewTolerance = 1 // seconds

// Merge reconciles a remote settings document into the store, newest
// Updated timestamp winning.
func (st *Store) Merge(remote *Settings) (MergeResult, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return MergeEqual, ErrStoreClosed
	}

	diff := remote.Updated - st.current.Updated
	switch {
	case diff > clockSkewTolerance:
		st.current = remote.clone()
		st.dirty = true
		if st.timer != nil {
			st.timer.Stop()
		}
		st.timer = time.AfterFunc(st.debounce, func() { _ = st.Flush() })
		return MergeRemoteApplied, nil
	case diff < -clockSkewTolerance:
		return MergeLocalNewer, nil
	default:
		return MergeEqual, nil
	}
}
