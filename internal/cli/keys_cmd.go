// Copyright (c) 2025 Nostria
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/nostria-app/nostria-go/internal/account"
	"github.com/nostria-app/nostria-go/internal/nostr"
)

// HandleKeys implements the keys subcommands: gen, show, import.
func HandleKeys(args Args) error {
	switch args.Subcommand {
	case "", "show":
		return keysShow(args)
	case "gen":
		return keysGen(args)
	case "import":
		return keysImport(args)
	default:
		return errorf("unknown keys subcommand: %s", args.Subcommand)
	}
}

func keysGen(args Args) error {
	path, err := keyPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return errorf("key file already exists at %s; remove it first to generate a new identity", path)
	}

	acct, err := account.Generate()
	if err != nil {
		return err
	}
	if err := account.Save(path, acct); err != nil {
		return err
	}

	npub, err := acct.Npub()
	if err != nil {
		return err
	}
	if !args.Quiet {
		fmt.Printf("Generated new identity\n")
		fmt.Printf("  Public key: %s\n", npub)
		fmt.Printf("  Saved to:   %s\n", path)
	}
	return nil
}

func keysShow(args Args) error {
	acct, err := loadAccount()
	if err != nil {
		return err
	}
	npub, err := acct.Npub()
	if err != nil {
		return err
	}

	if args.JSON {
		out := map[string]interface{}{
			"pubkey":    acct.PubKey,
			"npub":      npub,
			"read_only": acct.ReadOnly(),
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Printf("Public key (hex):  %s\n", acct.PubKey)
	fmt.Printf("Public key (npub): %s\n", npub)
	if acct.ReadOnly() {
		fmt.Println("Mode:              read-only (no private key)")
	}
	if args.Verbose && !acct.ReadOnly() {
		nsec, err := nostr.EncodeNsec(acct.PrivKey)
		if err != nil {
			return err
		}
		fmt.Printf("Private key:       %s\n", nsec)
	}
	return nil
}

func keysImport(args Args) error {
	if len(args.Raw) == 0 {
		return errorf("usage: nostria keys import <nsec|npub|hex>")
	}
	key := args.Raw[0]

	path, err := keyPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return errorf("key file already exists at %s; remove it first to import", path)
	}

	acct, err := account.Import(key)
	if err != nil {
		return err
	}
	if err := account.Save(path, acct); err != nil {
		return err
	}

	npub, err := acct.Npub()
	if err != nil {
		return err
	}
	if !args.Quiet {
		mode := "full"
		if acct.ReadOnly() {
			mode = "read-only"
		}
		fmt.Printf("Imported %s identity\n", mode)
		fmt.Printf("  Public key: %s\n", npub)
		fmt.Printf("  Saved to:   %s\n", path)
	}
	return nil
}
