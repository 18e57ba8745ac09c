// Copyright (c) 2025 Nostria
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/nostria-app/nostria-go/internal/calendar"
	"github.com/nostria-app/nostria-go/internal/chronia"
	"github.com/nostria-app/nostria-go/internal/config"
	"github.com/nostria-app/nostria-go/internal/nostr"
	"github.com/nostria-app/nostria-go/internal/util"
)

// HandleCalendar implements the calendar subcommands: list, create, rsvp.
func HandleCalendar(args Args) error {
	switch args.Subcommand {
	case "", "list":
		return calendarList(args)
	case "create":
		return calendarCreate(args)
	case "rsvp":
		return calendarRSVP(args)
	default:
		return errorf("unknown calendar subcommand: %s", args.Subcommand)
	}
}

func calendarList(args Args) error {
	ctx := context.Background()

	sys, err := displaySystem(args)
	if err != nil {
		return err
	}

	filter := nostr.Filter{
		Kinds: []int{nostr.KindCalendarDateEvent, nostr.KindCalendarTimeEvent},
		Limit: 200,
	}
	if author := args.Options["author"]; author != "" {
		pk, err := decodePubkey(author)
		if err != nil {
			return err
		}
		filter.Authors = []string{pk}
	}

	raw, err := fetchStored(ctx, args, filter)
	if err != nil {
		return err
	}

	var events []*calendar.Event
	for _, ev := range raw {
		ce, err := calendar.Parse(ev)
		if err != nil {
			continue
		}
		events = append(events, ce)
	}
	calendar.SortByStart(events)

	upcoming, past := calendar.Partition(events, time.Now())
	show := upcoming
	if args.Options["past"] == "true" {
		show = past
	}
	if args.Limit > 0 && len(show) > args.Limit {
		show = show[:args.Limit]
	}

	if args.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(show)
	}

	for _, ce := range show {
		if err := printCalendarEvent(ce, sys, args.Verbose); err != nil {
			return err
		}
	}
	if len(show) == 0 && !args.Quiet {
		fmt.Println("No events found.")
	}
	return nil
}

func printCalendarEvent(ce *calendar.Event, sys *chronia.System, verbose bool) error {
	var when string
	if ce.DateBased() {
		when = ce.Start.Format("2006-01-02")
	} else {
		when = ce.Start.Local().Format("2006-01-02 15:04")
	}
	if sys != nil {
		d, err := ce.StartInSystem(sys)
		if err == nil {
			when = fmt.Sprintf("%s (%s)", when, sys.Format(d))
		}
	}

	fmt.Printf("%s  %s\n", when, util.TruncateRunes(ce.Title, 80))
	if verbose {
		if ce.Description != "" {
			fmt.Printf("  %s\n", util.TruncateRunes(util.FirstLine(ce.Description), 100))
		}
		for _, loc := range ce.Locations {
			fmt.Printf("  @ %s\n", loc)
		}
		naddr, err := nostr.EncodeNaddr(nostr.EntityPointer{
			Identifier: ce.UID,
			PubKey:     ce.PubKey,
			Kind:       ce.Kind,
		})
		if err == nil {
			fmt.Printf("  %s\n", naddr)
		}
	}
	return nil
}

// displaySystem resolves the alternative calendar system for display,
// if any: --calendar flag first, then configuration. Gregorian means no
// alternative rendering.
func displaySystem(args Args) (*chronia.System, error) {
	name := args.Options["calendar"]
	if name == "" {
		name = config.Global().Calendar.System
	}
	if name == "" || name == "gregorian" {
		return nil, nil
	}
	return chronia.Lookup(name)
}

func calendarCreate(args Args) error {
	ctx := context.Background()

	acct, err := loadAccount()
	if err != nil {
		return err
	}
	if acct.ReadOnly() {
		return errorf("cannot create events with a read-only account")
	}

	title := args.Options["title"]
	if title == "" {
		return errorf("--title is required")
	}
	startStr := args.Options["start"]
	if startStr == "" {
		return errorf("--start is required (RFC 3339 timestamp or YYYY-MM-DD)")
	}

	ce := &calendar.Event{
		UID:         uuid.NewString(),
		Title:       title,
		Description: args.Options["description"],
		Geohash:     args.Options["geohash"],
		Image:       args.Options["image"],
		Hashtags:    splitOption(args.Options["tag"]),
	}
	if loc := args.Options["location"]; loc != "" {
		ce.Locations = []string{loc}
	}

	start, dateBased, err := parseWhen(startStr)
	if err != nil {
		return err
	}
	ce.Start = start
	if dateBased {
		ce.Kind = nostr.KindCalendarDateEvent
	} else {
		ce.Kind = nostr.KindCalendarTimeEvent
		ce.StartTZ = start.Location().String()
	}

	if endStr := args.Options["end"]; endStr != "" {
		end, endDateBased, err := parseWhen(endStr)
		if err != nil {
			return err
		}
		if endDateBased != dateBased {
			return errorf("start and end must both be dates or both be timestamps")
		}
		if !end.After(start) {
			return errorf("end must be after start")
		}
		ce.End = end
		if !dateBased {
			ce.EndTZ = end.Location().String()
		}
	}

	signed, err := ce.Sign(acct)
	if err != nil {
		return err
	}

	pool, err := connectPool(ctx, args)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := publish(ctx, pool, signed, args.Quiet); err != nil {
		return err
	}

	naddr, err := nostr.EncodeNaddr(nostr.EntityPointer{
		Identifier: ce.UID,
		PubKey:     acct.PubKey,
		Kind:       ce.Kind,
	})
	if err != nil {
		return err
	}
	if !args.Quiet {
		fmt.Printf("Published %q\n  %s\n", title, naddr)
	}
	return nil
}

// parseWhen accepts an RFC 3339 timestamp or a bare YYYY-MM-DD date; the
// second return reports the date-only form.
func parseWhen(s string) (time.Time, bool, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), true, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, false, nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04", s, time.Local); err == nil {
		return t, false, nil
	}
	return time.Time{}, false, errorf("cannot parse time %q", s)
}

func calendarRSVP(args Args) error {
	ctx := context.Background()

	if len(args.Raw) == 0 {
		return errorf("usage: nostria calendar rsvp <naddr> --status accepted|declined|tentative")
	}
	ptr, err := nostr.DecodeNaddr(args.Raw[0])
	if err != nil {
		return err
	}

	status := args.Options["status"]
	if status == "" {
		status = calendar.StatusAccepted
	}

	acct, err := loadAccount()
	if err != nil {
		return err
	}

	filter := nostr.Filter{
		Kinds:   []int{ptr.Kind},
		Authors: []string{ptr.PubKey},
		Tags:    map[string][]string{"d": {ptr.Identifier}},
		Limit:   1,
	}
	raw, err := fetchStored(ctx, args, filter)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return errorf("calendar event not found on the configured relays")
	}
	target, err := calendar.Parse(raw[0])
	if err != nil {
		return err
	}

	rsvp, err := calendar.NewRSVP(acct, target, status)
	if err != nil {
		return err
	}

	pool, err := connectPool(ctx, args)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := publish(ctx, pool, rsvp, args.Quiet); err != nil {
		return err
	}
	if !args.Quiet {
		fmt.Printf("RSVP %s to %q\n", status, target.Title)
	}
	return nil
}

// fetchStored opens a pool, runs the filter to EOSE, and returns the
// stored events.
func fetchStored(ctx context.Context, args Args, filter nostr.Filter) ([]*nostr.Event, error) {
	pool, err := connectPool(ctx, args)
	if err != nil {
		return nil, err
	}
	defer pool.Close()

	sub, err := pool.Subscribe(ctx, []nostr.Filter{filter})
	if err != nil {
		return nil, err
	}
	defer sub.Close()

	seen := make(map[string]struct{})
	var out []*nostr.Event
	deadline := time.NewTimer(30 * time.Second)
	defer deadline.Stop()

	for {
		select {
		case ev, ok := <-sub.Events:
			if !ok {
				return out, nil
			}
			if valid, _ := ev.Verify(); !valid {
				continue
			}
			if _, dup := seen[ev.ID]; dup {
				continue
			}
			seen[ev.ID] = struct{}{}
			out = append(out, ev)
		case <-sub.EOSE():
			return out, nil
		case <-deadline.C:
			return out, nil
		}
	}
}
