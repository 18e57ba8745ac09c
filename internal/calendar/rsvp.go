// Copyright (c) 2025 Nostria
// SPDX-License-Identifier: AGPL-3.0-or-later

package calendar

import (
	"errors"
	"fmt"

	"github.com/nostria-app/nostria-go/internal/account"
	"github.com/nostria-app/nostria-go/internal/nostr"
)

// =============================================================================
// CALENDAR (KIND 31924)
// =============================================================================

// Calendar groups calendar events by their addresses.
type Calendar struct {
	UID         string
	PubKey      string
	Title       string
	Description string
	Events      []string // a-tag addresses of member events
}

// ParseCalendar decodes a kind-31924 event.
func ParseCalendar(ev *nostr.Event) (*Calendar, error) {
	if ev.Kind != nostr.KindCalendar {
		return nil, fmt.Errorf("%w: %d", ErrNotCalendarEvent, ev.Kind)
	}
	c := &Calendar{
		UID:         ev.TagValue("d"),
		PubKey:      ev.PubKey,
		Title:       ev.TagValue("title"),
		Description: ev.Content,
		Events:      ev.TagValues("a"),
	}
	if c.UID == "" {
		return nil, ErrMissingUID
	}
	return c, nil
}

// ToEvent encodes the calendar back to its protocol form, unsigned.
func (c *Calendar) ToEvent() (*nostr.Event, error) {
	if c.UID == "" {
		return nil, ErrMissingUID
	}
	ev := &nostr.Event{
		Kind:    nostr.KindCalendar,
		Content: c.Description,
		Tags:    [][]string{{"d", c.UID}},
	}
	if c.Title != "" {
		ev.AddTag("title", c.Title)
	}
	for _, addr := range c.Events {
		ev.AddTag("a", addr)
	}
	return ev, nil
}

// =============================================================================
// RSVP (KIND 31925)
// =============================================================================

// RSVP statuses.
const (
	StatusAccepted  = "accepted"
	StatusDeclined  = "declined"
	StatusTentative = "tentative"
)

var (
	ErrNotRSVP       = errors.New("not an RSVP kind")
	ErrRSVPNoTarget  = errors.New("rsvp has no a tag")
	ErrRSVPBadStatus = errors.New("rsvp status must be accepted, declined, or tentative")
)

// RSVP is a response to a calendar event.
type RSVP struct {
	UID       string
	PubKey    string
	CreatedAt int64

	// EventAddr is the a-tag address of the calendar event.
	EventAddr string

	// EventID optionally pins a specific revision via an e tag.
	EventID string

	Status   string
	FreeBusy string // "free" or "busy"; empty when declined
	Note     string
}

// ParseRSVP decodes a kind-31925 event.
func ParseRSVP(ev *nostr.Event) (*RSVP, error) {
	if ev.Kind != nostr.KindCalendarRSVP {
		return nil, fmt.Errorf("%w: %d", ErrNotRSVP, ev.Kind)
	}

	r := &RSVP{
		UID:       ev.TagValue("d"),
		PubKey:    ev.PubKey,
		CreatedAt: ev.CreatedAt,
		EventAddr: ev.TagValue("a"),
		EventID:   ev.TagValue("e"),
		Status:    ev.TagValue("status"),
		FreeBusy:  ev.TagValue("fb"),
		Note:      ev.Content,
	}
	if r.EventAddr == "" {
		return nil, ErrRSVPNoTarget
	}
	switch r.Status {
	case StatusAccepted, StatusDeclined, StatusTentative:
	default:
		return nil, ErrRSVPBadStatus
	}
	// Free/busy is meaningless on a declined RSVP.
	if r.Status == StatusDeclined {
		r.FreeBusy = ""
	}
	return r, nil
}

// NewRSVP builds and signs an RSVP to the given calendar event.
func NewRSVP(acct *account.Account, target *Event, status string) (*nostr.Event, error) {
	switch status {
	case StatusAccepted, StatusDeclined, StatusTentative:
	default:
		return nil, ErrRSVPBadStatus
	}

	ev := &nostr.Event{
		Kind: nostr.KindCalendarRSVP,
		Tags: [][]string{
			{"d", target.UID + ":rsvp"},
			{"a", target.Address()},
			{"status", status},
			{"p", target.PubKey},
		},
	}
	if status != StatusDeclined {
		ev.AddTag("fb", "busy")
	}
	if err := acct.Sign(ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// =============================================================================
// TALLY
// =============================================================================

// Tally counts RSVPs per status for one event address. Duplicate RSVPs by
// the same pubkey count once, the latest CreatedAt winning.
func Tally(addr string, rsvps []*RSVP) map[string]int {
	latest := make(map[string]*RSVP)
	for _, r := range rsvps {
		if r.EventAddr != addr {
			continue
		}
		if prev, ok := latest[r.PubKey]; ok && prev.CreatedAt >= r.CreatedAt {
			continue
		}
		latest[r.PubKey] = r
	}

	counts := make(map[string]int)
	for _, r := range latest {
		counts[r.Status]++
	}
	return counts
}
