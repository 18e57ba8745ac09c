// Copyright (c) 2025 Nostria
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package trust implements NIP-85 trusted assertions: reputation metrics
// about pubkeys published by trust providers, with signature dispatch so
// only assertions from the user's chosen providers are accepted.
package trust

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/nostria-app/nostria-go/internal/nostr"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrNotAssertion    = errors.New("not a trusted assertion kind")
	ErrNoSubject       = errors.New("assertion has no subject")
	ErrBadMetric       = errors.New("assertion metric is not numeric")
	ErrUnknownProvider = errors.New("assertion author is not an accepted provider")
	ErrBadSignature    = errors.New("assertion failed verification")
)

// =============================================================================
// ASSERTION
// =============================================================================

// RankUnknown marks a missing rank; it is distinct from a rank of zero.
const RankUnknown = -1

// Assertion is a parsed kind-30382 event: metrics a provider asserts about
// a subject pubkey.
type Assertion struct {
	Subject   string // pubkey the assertion is about
	Provider  string // pubkey of the asserting provider
	CreatedAt int64

	// Rank is the provider's 0-100 reputation score, RankUnknown if the
	// provider did not assert one.
	Rank      int
	Followers int64
	ZapAmount int64

	// Metrics keeps every named metric tag, including the ones above,
	// as published.
	Metrics map[string]string
}

// wellKnown maps metric tags with dedicated fields; their values must be
// integers.
var wellKnown = map[string]bool{"rank": true, "followers": true, "zap_amount": true}

// ParseAssertion decodes a kind-30382 event. Numeric metrics are validated
// strictly; a malformed number rejects the assertion.
func ParseAssertion(ev *nostr.Event) (*Assertion, error) {
	if ev.Kind != nostr.KindTrustedAssertion {
		return nil, fmt.Errorf("%w: %d", ErrNotAssertion, ev.Kind)
	}
	subject := ev.TagValue("d")
	if len(subject) != 64 {
		return nil, ErrNoSubject
	}

	a := &Assertion{
		Subject:   subject,
		Provider:  ev.PubKey,
		CreatedAt: ev.CreatedAt,
		Rank:      RankUnknown,
		Metrics:   make(map[string]string),
	}

	for _, tag := range ev.Tags {
		if len(tag) < 2 || tag[0] == "d" {
			continue
		}
		name, val := tag[0], tag[1]
		if wellKnown[name] {
			n, err := strconv.ParseInt(val, 10, 64)
			if err != nil || n < 0 {
				return nil, fmt.Errorf("%w: %s=%q", ErrBadMetric, name, val)
			}
			switch name {
			case "rank":
				a.Rank = clampRank(int(n))
			case "followers":
				a.Followers = n
			case "zap_amount":
				a.ZapAmount = n
			}
		}
		a.Metrics[name] = val
	}
	return a, nil
}

// ToEvent encodes the assertion for provider tooling, unsigned.
func (a *Assertion) ToEvent() *nostr.Event {
	ev := &nostr.Event{
		Kind:      nostr.KindTrustedAssertion,
		CreatedAt: a.CreatedAt,
		Tags:      [][]string{{"d", a.Subject}},
	}
	if a.Rank != RankUnknown {
		ev.AddTag("rank", strconv.Itoa(a.Rank))
	}
	if a.Followers > 0 {
		ev.AddTag("followers", strconv.FormatInt(a.Followers, 10))
	}
	if a.ZapAmount > 0 {
		ev.AddTag("zap_amount", strconv.FormatInt(a.ZapAmount, 10))
	}
	for name, val := range a.Metrics {
		if wellKnown[name] {
			continue
		}
		ev.AddTag(name, val)
	}
	return ev
}

func clampRank(r int) int {
	if r < 0 {
		return 0
	}
	if r > 100 {
		return 100
	}
	return r
}

// =============================================================================
// PROVIDERS
// =============================================================================

// Provider is a known trust provider.
type Provider struct {
	PubKey string
	Relay  string
	Name   string
}

// Registry holds the accepted providers and the assertions they have
// published, newest per (provider, subject).
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	selected  string
	// assertions[subject][provider] = latest assertion
	assertions map[string]map[string]*Assertion

	accepted int64
	rejected int64
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers:  make(map[string]Provider),
		assertions: make(map[string]map[string]*Assertion),
	}
}

// AddProvider allows assertions from the provider's pubkey.
func (reg *Registry) AddProvider(p Provider) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.providers[p.PubKey] = p
	if reg.selected == "" {
		reg.selected = p.PubKey
	}
}

// Select makes the given provider the preferred score source.
func (reg *Registry) Select(pubkey string) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, ok := reg.providers[pubkey]; !ok {
		return ErrUnknownProvider
	}
	reg.selected = pubkey
	return nil
}

// Selected returns the preferred provider's pubkey.
func (reg *Registry) Selected() string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return reg.selected
}

// Accept verifies and ingests an assertion event. Events that fail
// signature verification or whose author is not an accepted provider are
// discarded and counted.
func (reg *Registry) Accept(ev *nostr.Event) (*Assertion, error) {
	if ok, _ := ev.Verify(); !ok {
		reg.count(false)
		return nil, ErrBadSignature
	}

	reg.mu.RLock()
	_, known := reg.providers[ev.PubKey]
	reg.mu.RUnlock()
	if !known {
		reg.count(false)
		return nil, ErrUnknownProvider
	}

	a, err := ParseAssertion(ev)
	if err != nil {
		reg.count(false)
		return nil, err
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	bySubject := reg.assertions[a.Subject]
	if bySubject == nil {
		bySubject = make(map[string]*Assertion)
		reg.assertions[a.Subject] = bySubject
	}
	if prev, ok := bySubject[a.Provider]; ok && prev.CreatedAt >= a.CreatedAt {
		// Stale replaceable event; the newer assertion stands.
		reg.accepted++
		return prev, nil
	}
	bySubject[a.Provider] = a
	reg.accepted++
	return a, nil
}

func (reg *Registry) count(accepted bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if accepted {
		reg.accepted++
	} else {
		reg.rejected++
	}
}

// Counters returns how many assertions were ingested and discarded.
func (reg *Registry) Counters() (accepted, rejected int64) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return reg.accepted, reg.rejected
}

// =============================================================================
// SCORING
// =============================================================================

// Badge levels derived from rank thresholds.
const (
	BadgeNone = ""
	BadgeLow  = "low"
	BadgeMid  = "mid"
	BadgeHigh = "high"
)

// Score is the trust summary for a subject from the selected provider.
type Score struct {
	Subject   string
	Provider  string
	Rank      int
	Followers int64
	ZapAmount int64
	UpdatedAt int64
}

// Badge maps the rank to a display level.
func (s Score) Badge() string {
	switch {
	case s.Rank >= 80:
		return BadgeHigh
	case s.Rank >= 50:
		return BadgeMid
	case s.Rank >= 20:
		return BadgeLow
	default:
		return BadgeNone
	}
}

// Score returns the subject's score from the selected provider. The second
// return is false when no assertion is known, which is distinct from a
// zero rank.
func (reg *Registry) Score(subject string) (Score, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	a := reg.assertions[subject][reg.selected]
	if a == nil || a.Rank == RankUnknown {
		return Score{}, false
	}
	return Score{
		Subject:   subject,
		Provider:  a.Provider,
		Rank:      a.Rank,
		Followers: a.Followers,
		ZapAmount: a.ZapAmount,
		UpdatedAt: a.CreatedAt,
	}, true
}

// AssertionFilter selects assertion events from the accepted providers,
// optionally narrowed to specific subjects.
func (reg *Registry) AssertionFilter(subjects ...string) nostr.Filter {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	authors := make([]string, 0, len(reg.providers))
	for pk := range reg.providers {
		authors = append(authors, pk)
	}
	f := nostr.Filter{
		Authors: authors,
		Kinds:   []int{nostr.KindTrustedAssertion},
	}
	if len(subjects) > 0 {
		f.Tags = map[string][]string{"d": subjects}
	}
	return f
}
