// Copyright (c) 2025 Nostria
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package calendar implements NIP-52 calendar events: date-based and
// time-based events, calendars, and RSVPs, plus display in the alternative
// calendar systems.
package calendar

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/nostria-app/nostria-go/internal/account"
	"github.com/nostria-app/nostria-go/internal/chronia"
	"github.com/nostria-app/nostria-go/internal/nostr"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrNotCalendarEvent = errors.New("not a calendar event kind")
	ErrMissingStart     = errors.New("calendar event has no start")
	ErrMissingTitle     = errors.New("calendar event has no title")
	ErrEndBeforeStart   = errors.New("calendar event ends before it starts")
	ErrMissingUID       = errors.New("calendar event has no d tag")
)

// dateLayout is the NIP-52 date-based start/end format.
const dateLayout = "2006-01-02"

// =============================================================================
// EVENT MODEL
// =============================================================================

// Participant is a p tag on a calendar event.
type Participant struct {
	PubKey string
	Relay  string
	Role   string
}

// Event is a parsed NIP-52 calendar event. Kind distinguishes date-based
// (31922) from time-based (31923) events. For date-based events Start and
// End are UTC midnights and End is exclusive.
type Event struct {
	UID       string
	Kind      int
	PubKey    string
	CreatedAt int64

	Title       string
	Description string
	Start       time.Time
	End         time.Time
	StartTZ     string
	EndTZ       string

	Locations    []string
	Geohash      string
	Participants []Participant
	Hashtags     []string
	References   []string
	Image        string
}

// DateBased reports whether the event is an all-day or multi-day event.
func (e *Event) DateBased() bool { return e.Kind == nostr.KindCalendarDateEvent }

// EffectiveEnd returns the instant the event is over: the explicit end, or
// start plus one day for date-based events, or the start instant itself.
func (e *Event) EffectiveEnd() time.Time {
	if !e.End.IsZero() {
		return e.End
	}
	if e.DateBased() {
		return e.Start.AddDate(0, 0, 1)
	}
	return e.Start
}

// Address returns the naddr-style address "kind:pubkey:uid".
func (e *Event) Address() string {
	return fmt.Sprintf("%d:%s:%s", e.Kind, e.PubKey, e.UID)
}

// StartInSystem renders the start date in an alternative calendar system.
func (e *Event) StartInSystem(sys *chronia.System) (chronia.Date, error) {
	return sys.FromTime(e.Start)
}

// =============================================================================
// PARSING
// =============================================================================

// Parse decodes a NIP-52 calendar event. Unknown tags are ignored;
// malformed dates are errors.
func Parse(ev *nostr.Event) (*Event, error) {
	if ev.Kind != nostr.KindCalendarDateEvent && ev.Kind != nostr.KindCalendarTimeEvent {
		return nil, fmt.Errorf("%w: %d", ErrNotCalendarEvent, ev.Kind)
	}

	e := &Event{
		Kind:        ev.Kind,
		PubKey:      ev.PubKey,
		CreatedAt:   ev.CreatedAt,
		UID:         ev.TagValue("d"),
		Title:       ev.TagValue("title"),
		Description: ev.Content,
		Geohash:     ev.TagValue("g"),
		Image:       ev.TagValue("image"),
		StartTZ:     ev.TagValue("start_tzid"),
		EndTZ:       ev.TagValue("end_tzid"),
		Locations:   ev.TagValues("location"),
		Hashtags:    ev.TagValues("t"),
		References:  ev.TagValues("r"),
	}
	if e.UID == "" {
		return nil, ErrMissingUID
	}
	if e.Title == "" {
		// Older clients used a "name" tag.
		e.Title = ev.TagValue("name")
	}
	if e.Title == "" {
		return nil, ErrMissingTitle
	}

	var err error
	e.Start, err = parseStamp(ev, "start", e.DateBased())
	if err != nil {
		return nil, err
	}
	if raw := ev.TagValue("end"); raw != "" {
		e.End, err = parseStamp(ev, "end", e.DateBased())
		if err != nil {
			return nil, err
		}
		if e.End.Before(e.Start) {
			return nil, ErrEndBeforeStart
		}
	}

	for _, tag := range ev.Tags {
		if len(tag) < 2 || tag[0] != "p" {
			continue
		}
		p := Participant{PubKey: tag[1]}
		if len(tag) > 2 {
			p.Relay = tag[2]
		}
		if len(tag) > 3 {
			p.Role = tag[3]
		}
		e.Participants = append(e.Participants, p)
	}
	return e, nil
}

func parseStamp(ev *nostr.Event, name string, dateBased bool) (time.Time, error) {
	raw := ev.TagValue(name)
	if raw == "" {
		return time.Time{}, ErrMissingStart
	}
	if dateBased {
		t, err := time.ParseInLocation(dateLayout, raw, time.UTC)
		if err != nil {
			return time.Time{}, fmt.Errorf("bad %s date %q: %w", name, raw, err)
		}
		return t, nil
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || secs < 0 {
		return time.Time{}, fmt.Errorf("bad %s timestamp %q", name, raw)
	}
	return time.Unix(secs, 0).UTC(), nil
}

// =============================================================================
// BUILDING
// =============================================================================

// ToEvent encodes the calendar event back to its protocol form, unsigned.
// Parse(e.ToEvent()) is lossless for the modeled fields.
func (e *Event) ToEvent() (*nostr.Event, error) {
	if e.UID == "" {
		return nil, ErrMissingUID
	}
	if e.Title == "" {
		return nil, ErrMissingTitle
	}
	if e.Start.IsZero() {
		return nil, ErrMissingStart
	}
	if !e.End.IsZero() && e.End.Before(e.Start) {
		return nil, ErrEndBeforeStart
	}

	ev := &nostr.Event{
		Kind:      e.Kind,
		PubKey:    e.PubKey,
		CreatedAt: e.CreatedAt,
		Content:   e.Description,
		Tags:      [][]string{{"d", e.UID}, {"title", e.Title}},
	}

	stamp := func(t time.Time) string {
		if e.DateBased() {
			return t.UTC().Format(dateLayout)
		}
		return strconv.FormatInt(t.Unix(), 10)
	}
	ev.AddTag("start", stamp(e.Start))
	if !e.End.IsZero() {
		ev.AddTag("end", stamp(e.End))
	}
	if e.StartTZ != "" {
		ev.AddTag("start_tzid", e.StartTZ)
	}
	if e.EndTZ != "" {
		ev.AddTag("end_tzid", e.EndTZ)
	}
	for _, loc := range e.Locations {
		ev.AddTag("location", loc)
	}
	if e.Geohash != "" {
		ev.AddTag("g", e.Geohash)
	}
	if e.Image != "" {
		ev.AddTag("image", e.Image)
	}
	for _, p := range e.Participants {
		tag := []string{"p", p.PubKey, p.Relay, p.Role}
		// Trim trailing empty fields.
		for len(tag) > 2 && tag[len(tag)-1] == "" {
			tag = tag[:len(tag)-1]
		}
		ev.Tags = append(ev.Tags, tag)
	}
	for _, h := range e.Hashtags {
		ev.AddTag("t", h)
	}
	for _, r := range e.References {
		ev.AddTag("r", r)
	}
	return ev, nil
}

// Sign encodes and signs the calendar event with the account.
func (e *Event) Sign(acct *account.Account) (*nostr.Event, error) {
	ev, err := e.ToEvent()
	if err != nil {
		return nil, err
	}
	ev.PubKey = ""
	if err := acct.Sign(ev); err != nil {
		return nil, err
	}
	e.PubKey = ev.PubKey
	e.CreatedAt = ev.CreatedAt
	return ev, nil
}

// =============================================================================
// QUERIES
// =============================================================================

// SortByStart orders events ascending by start time, ties broken by UID
// for a stable order.
func SortByStart(events []*Event) {
	sort.Slice(events, func(i, j int) bool {
		if events[i].Start.Equal(events[j].Start) {
			return events[i].UID < events[j].UID
		}
		return events[i].Start.Before(events[j].Start)
	})
}

// Partition splits events into upcoming (effective end after now) and past,
// both sorted ascending by start.
func Partition(events []*Event, now time.Time) (upcoming, past []*Event) {
	for _, e := range events {
		if e.EffectiveEnd().After(now) {
			upcoming = append(upcoming, e)
		} else {
			past = append(past, e)
		}
	}
	SortByStart(upcoming)
	SortByStart(past)
	return upcoming, past
}
