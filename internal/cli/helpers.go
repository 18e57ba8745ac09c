// Copyright (c) 2025 Nostria
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nostria-app/nostria-go/internal/account"
	"github.com/nostria-app/nostria-go/internal/config"
	"github.com/nostria-app/nostria-go/internal/nostr"
	"github.com/nostria-app/nostria-go/internal/relay"
)

// loadAccount loads the account from the configured key path.
func loadAccount() (*account.Account, error) {
	path := config.Global().Account.KeysPath
	if path == "" {
		var err error
		path, err = account.DefaultKeyPath()
		if err != nil {
			return nil, err
		}
	}
	acct, err := account.Load(path)
	if err != nil {
		if errors.Is(err, account.ErrNoAccount) {
			return nil, errors.New("no account configured; run 'nostria keys gen' first")
		}
		return nil, err
	}
	return acct, nil
}

// keyPath resolves the key file location.
func keyPath() (string, error) {
	if path := config.Global().Account.KeysPath; path != "" {
		return path, nil
	}
	return account.DefaultKeyPath()
}

// relayURLs resolves the relay list: --relays flag, then config.
func relayURLs(args Args) []string {
	if args.Relays != "" {
		var out []string
		for _, u := range strings.Split(args.Relays, ",") {
			if u = strings.TrimSpace(u); u != "" {
				out = append(out, u)
			}
		}
		return out
	}
	return config.Global().Relays.Read
}

// authSigner answers relay AUTH challenges with signed kind-22242 events
// for the given identity (NIP-42).
func authSigner(acct *account.Account) relay.AuthSigner {
	return func(relayURL, challenge string) (*nostr.Event, error) {
		ev := &nostr.Event{
			Kind:      nostr.KindClientAuth,
			CreatedAt: time.Now().Unix(),
			Tags: [][]string{
				{"relay", relayURL},
				{"challenge", challenge},
			},
		}
		if err := acct.Sign(ev); err != nil {
			return nil, err
		}
		return ev, nil
	}
}

// poolOptions wires optional relay behavior: a signing identity, when one
// is available, answers AUTH challenges.
func poolOptions() []relay.Option {
	path, err := keyPath()
	if err != nil {
		return nil
	}
	acct, err := account.Load(path)
	if err != nil || acct.ReadOnly() {
		return nil
	}
	return []relay.Option{relay.WithAuthSigner(authSigner(acct))}
}

// connectPool dials the relays and fails if none answer.
func connectPool(ctx context.Context, args Args) (*relay.Pool, error) {
	urls := relayURLs(args)
	if len(urls) == 0 {
		return nil, errors.New("no relays configured")
	}
	pool := relay.NewPoolWith(poolOptions(), urls...)

	// ctx doubles as the reconnect supervisor's lifetime, so it must
	// outlive the dial; the dialer's handshake timeout bounds each
	// connection attempt on its own.
	if err := pool.Connect(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// publishTimeout is the configured bound on waiting for relay OKs.
func publishTimeout() time.Duration {
	secs := config.Global().Relays.PublishTimeoutSecs
	if secs <= 0 {
		return relay.DefaultPublishTimeout
	}
	return time.Duration(secs) * time.Second
}

// publish sends an event to the pool and reports per-relay failures. The
// wait for relay OKs is bounded by the configured publish timeout.
func publish(ctx context.Context, pool *relay.Pool, ev *nostr.Event, quiet bool) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout())
	defer cancel()

	results := pool.Publish(ctx, ev)
	var failed int
	for url, err := range results {
		if err != nil {
			failed++
			if !quiet {
				fmt.Fprintf(os.Stderr, "  %s: %v\n", url, err)
			}
		}
	}
	if failed == len(results) {
		return errors.New("event was not accepted by any relay")
	}
	return nil
}

// decodePubkey accepts a hex pubkey or an npub.
func decodePubkey(s string) (string, error) {
	if strings.HasPrefix(s, "npub1") {
		return nostr.DecodeNpub(s)
	}
	if len(s) != 64 {
		return "", fmt.Errorf("not a pubkey: %q", s)
	}
	return strings.ToLower(s), nil
}

// errorf prints an error message and returns a non-nil error for main.
func errorf(format string, a ...interface{}) error {
	return fmt.Errorf(format, a...)
}
