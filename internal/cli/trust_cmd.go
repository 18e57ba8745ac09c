// Copyright (c) 2025 Nostria
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/nostria-app/nostria-go/internal/nostr"
	"github.com/nostria-app/nostria-go/internal/settings"
	"github.com/nostria-app/nostria-go/internal/trust"
)

// HandleTrust implements the trust subcommands: score.
func HandleTrust(args Args) error {
	switch args.Subcommand {
	case "score":
		return trustScore(args)
	case "":
		return errorf("usage: nostria trust score <pubkey> --provider <pubkey>")
	default:
		return errorf("unknown trust subcommand: %s", args.Subcommand)
	}
}

func trustScore(args Args) error {
	ctx := context.Background()

	if len(args.Raw) == 0 {
		return errorf("usage: nostria trust score <pubkey> --provider <pubkey>")
	}
	subject, err := decodePubkey(args.Raw[0])
	if err != nil {
		return err
	}

	provider, err := resolveProvider(args)
	if err != nil {
		return err
	}

	reg := trust.NewRegistry()
	reg.AddProvider(trust.Provider{PubKey: provider, Relay: args.Options["relay"]})

	// A provider-specific relay takes over unless --relays was given.
	if r := args.Options["relay"]; r != "" && args.Relays == "" {
		args.Relays = r
	}

	raw, err := fetchStored(ctx, args, reg.AssertionFilter(subject))
	if err != nil {
		return err
	}
	for _, ev := range raw {
		// Accept verifies and counts; rejects are expected noise.
		_, _ = reg.Accept(ev)
	}

	score, ok := reg.Score(subject)
	if !ok {
		return errorf("no trust assertion for this subject from the provider")
	}

	if args.JSON {
		out := struct {
			trust.Score
			Badge string `json:"badge"`
		}{score, score.Badge()}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	npub, err := nostr.EncodeNpub(score.Subject)
	if err != nil {
		npub = score.Subject
	}
	fmt.Printf("Subject:   %s\n", npub)
	fmt.Printf("Rank:      %d/100", score.Rank)
	if badge := score.Badge(); badge != "" {
		fmt.Printf("  [%s]", badge)
	}
	fmt.Println()
	if score.Followers > 0 {
		fmt.Printf("Followers: %d\n", score.Followers)
	}
	if score.ZapAmount > 0 {
		fmt.Printf("Zapped:    %d sats\n", score.ZapAmount)
	}
	if score.UpdatedAt > 0 {
		fmt.Printf("As of:     %s\n", time.Unix(score.UpdatedAt, 0).Local().Format(time.RFC1123))
	}
	return nil
}

// resolveProvider picks the trust provider: --provider flag first, then
// the one stored in settings.
func resolveProvider(args Args) (string, error) {
	if p := args.Options["provider"]; p != "" {
		return decodePubkey(p)
	}
	path, err := settings.DefaultPath()
	if err == nil {
		if st, serr := settings.Open(path); serr == nil {
			defer st.Close()
			if p := st.Get().TrustProvider; p != "" {
				return decodePubkey(p)
			}
		}
	}
	return "", errorf("no trust provider configured; pass --provider or set trust_provider in settings")
}
