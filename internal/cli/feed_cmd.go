// Copyright (c) 2025 Nostria
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nostria-app/nostria-go/internal/config"
	"github.com/nostria-app/nostria-go/internal/feed"
	"github.com/nostria-app/nostria-go/internal/nostr"
	"github.com/nostria-app/nostria-go/internal/relay"
	"github.com/nostria-app/nostria-go/internal/settings"
	"github.com/nostria-app/nostria-go/internal/storage"
	"github.com/nostria-app/nostria-go/internal/util"
)

// feedDrain is how long we keep reading after EOSE before printing; late
// relays often deliver a few stored events past the first EOSE signal.
const feedDrain = 2 * time.Second

// HandleFeed implements the feed command: subscribe, collect, print.
func HandleFeed(args Args) error {
	ctx := context.Background()
	cfg := config.Global()

	col := feed.Column{
		Label:    "home",
		Hashtags: splitOption(args.Options["tag"]),
		Limit:    args.Limit,
	}
	if col.Limit <= 0 {
		col.Limit = cfg.Feed.PageSize
	}
	if author := args.Options["author"]; author != "" {
		pk, err := decodePubkey(author)
		if err != nil {
			return err
		}
		col.Authors = []string{pk}
	}

	mutes := feedMutes()

	pool, err := connectPool(ctx, args)
	if err != nil {
		return err
	}
	defer pool.Close()

	sub, err := pool.Subscribe(ctx, []nostr.Filter{col.Filter(nil)})
	if err != nil {
		return err
	}
	defer sub.Close()

	f := feed.New(col, feed.WithMuteList(mutes), feed.WithMaxEvents(cfg.Feed.MaxBuffered))

	live := args.Options["live"] == "true"
	if live {
		return runLiveFeed(ctx, f, sub, args)
	}

	collectUntilEOSE(f, sub)

	events := f.Events(col.Limit)
	cacheEvents(ctx, events, args)
	return printEvents(events, args)
}

// feedMutes builds the mute list from local settings; a missing or broken
// settings file just means no mutes.
func feedMutes() *feed.MuteList {
	path, err := settings.DefaultPath()
	if err != nil {
		return feed.NewMuteList(nil)
	}
	st, err := settings.Open(path)
	if err != nil {
		return feed.NewMuteList(nil)
	}
	defer st.Close()
	return feed.NewMuteList(st.Get())
}

// collectUntilEOSE feeds events until every relay signals end-of-stored,
// then drains stragglers briefly.
func collectUntilEOSE(f *feed.Feed, sub *relay.PoolSub) {
	deadline := time.NewTimer(30 * time.Second)
	defer deadline.Stop()

	for {
		select {
		case ev, ok := <-sub.Events:
			if !ok {
				return
			}
			f.Add(ev)
		case <-sub.EOSE():
			drain := time.NewTimer(feedDrain)
			defer drain.Stop()
			for {
				select {
				case ev, ok := <-sub.Events:
					if !ok {
						return
					}
					f.Add(ev)
				case <-drain.C:
					return
				}
			}
		case <-deadline.C:
			return
		}
	}
}

// runLiveFeed prints events as they arrive until interrupted.
func runLiveFeed(ctx context.Context, f *feed.Feed, sub *relay.PoolSub, args Args) error {
	for {
		select {
		case ev, ok := <-sub.Events:
			if !ok {
				return nil
			}
			if f.Add(ev) {
				if err := printEvents([]*nostr.Event{ev}, args); err != nil {
					return err
				}
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// cacheEvents stores fetched events in the local cache, best-effort.
func cacheEvents(ctx context.Context, events []*nostr.Event, args Args) {
	path, err := storage.DefaultPath()
	if err != nil {
		return
	}
	cache, err := storage.Open(path)
	if err != nil {
		if args.Verbose {
			fmt.Fprintf(os.Stderr, "cache unavailable: %v\n", err)
		}
		return
	}
	defer cache.Close()

	for _, ev := range events {
		if err := cache.Save(ctx, ev); err != nil && args.Verbose {
			fmt.Fprintf(os.Stderr, "cache save %s: %v\n", ev.ID, err)
		}
	}
}

// printEvents writes events to stdout, JSON lines or human-readable.
func printEvents(events []*nostr.Event, args Args) error {
	if args.JSON {
		enc := json.NewEncoder(os.Stdout)
		for _, ev := range events {
			if err := enc.Encode(ev); err != nil {
				return err
			}
		}
		return nil
	}

	for _, ev := range events {
		npub, err := nostr.EncodeNpub(ev.PubKey)
		if err != nil {
			npub = ev.PubKey
		}
		when := time.Unix(ev.CreatedAt, 0).Local().Format("2006-01-02 15:04")
		line := util.TruncateRunes(util.FirstLine(ev.Content), 120)
		fmt.Printf("%s  %s\n  %s\n", when, util.TruncateRunes(npub, 20), line)
	}
	return nil
}

// splitOption splits a comma-separated option value.
func splitOption(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
