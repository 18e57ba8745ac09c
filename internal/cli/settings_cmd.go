// Copyright (c) 2025 Nostria
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/nostria-app/nostria-go/internal/config"
	"github.com/nostria-app/nostria-go/internal/nostr"
	"github.com/nostria-app/nostria-go/internal/relay"
	"github.com/nostria-app/nostria-go/internal/settings"
)

// HandleSettings implements the settings subcommands: show, set, sync.
func HandleSettings(args Args) error {
	switch args.Subcommand {
	case "", "show":
		return settingsShow(args)
	case "set":
		return settingsSet(args)
	case "sync":
		return settingsSync(args)
	default:
		return errorf("unknown settings subcommand: %s", args.Subcommand)
	}
}

// syncIntervals maps the configured debounce knobs to store options,
// falling back to the store defaults for unset or inconsistent values.
func syncIntervals(cfg *config.Config) (quiet, max time.Duration) {
	quiet = time.Duration(cfg.Sync.DebounceMs) * time.Millisecond
	max = time.Duration(cfg.Sync.MaxLatencyMs) * time.Millisecond
	if quiet <= 0 {
		quiet = settings.DefaultDebounce
	}
	if max < quiet {
		max = settings.DefaultMaxLatency
	}
	return quiet, max
}

func openStore() (*settings.Store, error) {
	path, err := settings.DefaultPath()
	if err != nil {
		return nil, err
	}
	quiet, max := syncIntervals(config.Global())
	return settings.Open(path, settings.WithDebounce(quiet, max))
}

func settingsShow(args Args) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	s := st.Get()

	if args.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}

	fmt.Println("Relays:")
	for _, r := range s.Relays {
		marker := ""
		if r.Read && r.Write {
			marker = "read/write"
		} else if r.Read {
			marker = "read"
		} else if r.Write {
			marker = "write"
		}
		fmt.Printf("  %s  [%s]\n", r.URL, marker)
	}
	if len(s.MediaServers) > 0 {
		fmt.Println("Media servers:")
		for _, u := range s.MediaServers {
			fmt.Printf("  %s\n", u)
		}
	}
	fmt.Printf("Calendar:       %s (%s view)\n", s.CalendarSystem, s.CalendarView)
	fmt.Printf("Locale:         %s\n", s.Locale)
	if s.TrustProvider != "" {
		fmt.Printf("Trust provider: %s\n", s.TrustProvider)
	}
	fmt.Printf("Muted:          %d pubkeys, %d words\n", len(s.MutedPubkeys), len(s.MutedWords))
	if s.Updated > 0 {
		fmt.Printf("Updated:        %s\n", time.Unix(s.Updated, 0).Local().Format(time.RFC1123))
	}
	return nil
}

func settingsSet(args Args) error {
	if len(args.Raw) < 2 {
		return errorf("usage: nostria settings set <key> <value>")
	}
	key, value := args.Raw[0], args.Raw[1]

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	var setErr error
	err = st.Update(func(s *settings.Settings) {
		switch key {
		case "calendar_system":
			s.CalendarSystem = value
		case "calendar_view":
			s.CalendarView = value
		case "locale":
			s.Locale = value
		case "trust_provider":
			s.TrustProvider = value
		case "media_servers":
			s.MediaServers = splitOption(value)
		case "mute_pubkey":
			if pk, perr := decodePubkey(value); perr == nil {
				s.MutedPubkeys = appendUnique(s.MutedPubkeys, pk)
			} else {
				setErr = perr
			}
		case "mute_word":
			s.MutedWords = appendUnique(s.MutedWords, value)
		default:
			setErr = errorf("unknown settings key: %s", key)
		}
	})
	if err != nil {
		return err
	}
	if setErr != nil {
		return setErr
	}
	if ferr := st.Flush(); ferr != nil {
		return ferr
	}
	if !args.Quiet {
		fmt.Printf("Set %s\n", key)
	}
	return nil
}

// settingsSync reconciles the local settings document with the encrypted
// relay copy: fetch the remote, merge newest-wins, and republish when the
// local copy is newer.
func settingsSync(args Args) error {
	ctx := context.Background()

	acct, err := loadAccount()
	if err != nil {
		return err
	}
	if acct.ReadOnly() {
		return errorf("settings sync needs the private key to decrypt the relay copy")
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	pool, err := connectPool(ctx, args)
	if err != nil {
		return err
	}
	defer pool.Close()

	remote := fetchNewest(ctx, pool, settings.SyncFilter(acct.PubKey))

	result := settings.MergeLocalNewer
	if remote != nil {
		result, err = st.ApplyRemote(remote, acct)
		if err != nil {
			return err
		}
	}

	switch result {
	case settings.MergeRemoteApplied:
		if err := st.Flush(); err != nil {
			return err
		}
		if !args.Quiet {
			fmt.Println("Applied newer settings from relays.")
		}
	case settings.MergeLocalNewer:
		ev, err := st.SyncEvent(acct)
		if err != nil {
			return err
		}
		if err := publish(ctx, pool, ev, args.Quiet); err != nil {
			return err
		}
		if !args.Quiet {
			fmt.Println("Published local settings to relays.")
		}
	default:
		if !args.Quiet {
			fmt.Println("Settings already in sync.")
		}
	}
	return nil
}

// fetchNewest returns the newest event matching the filter, or nil.
func fetchNewest(ctx context.Context, pool *relay.Pool, filter nostr.Filter) *nostr.Event {
	sub, err := pool.Subscribe(ctx, []nostr.Filter{filter})
	if err != nil {
		return nil
	}
	defer sub.Close()

	var newest *nostr.Event
	deadline := time.NewTimer(15 * time.Second)
	defer deadline.Stop()

	for {
		select {
		case ev, ok := <-sub.Events:
			if !ok {
				return newest
			}
			if newest == nil || ev.CreatedAt > newest.CreatedAt {
				newest = ev
			}
		case <-sub.EOSE():
			return newest
		case <-deadline.C:
			return newest
		}
	}
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
