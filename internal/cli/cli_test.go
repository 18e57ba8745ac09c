// Copyright (c) 2025 Nostria
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"testing"
)

func TestParse_Default(t *testing.T) {
	cmd, args := parse(nil)
	if cmd != CmdFeed {
		t.Errorf("expected CmdFeed, got %d", cmd)
	}
	if args.Quiet || args.Verbose || args.JSON {
		t.Error("expected no global flags set")
	}
}

func TestParse_GlobalFlags(t *testing.T) {
	cmd, args := parse([]string{"-q", "--json", "--relays", "wss://a,wss://b", "feed"})
	if cmd != CmdFeed {
		t.Fatalf("expected CmdFeed, got %d", cmd)
	}
	if !args.Quiet {
		t.Error("expected Quiet")
	}
	if !args.JSON {
		t.Error("expected JSON")
	}
	if args.Relays != "wss://a,wss://b" {
		t.Errorf("Relays = %q", args.Relays)
	}
}

func TestParse_RelaysEquals(t *testing.T) {
	_, args := parse([]string{"--relays=wss://x", "feed"})
	if args.Relays != "wss://x" {
		t.Errorf("Relays = %q", args.Relays)
	}
}

func TestParse_Commands(t *testing.T) {
	cases := []struct {
		argv []string
		want Command
	}{
		{[]string{"feed"}, CmdFeed},
		{[]string{"keys", "gen"}, CmdKeys},
		{[]string{"key", "show"}, CmdKeys},
		{[]string{"calendar", "list"}, CmdCalendar},
		{[]string{"cal", "list"}, CmdCalendar},
		{[]string{"settings", "show"}, CmdSettings},
		{[]string{"trust", "score"}, CmdTrust},
		{[]string{"media", "upload"}, CmdMedia},
		{[]string{"config"}, CmdConfig},
		{[]string{"version"}, CmdVersion},
		{[]string{"help"}, CmdHelp},
		{[]string{"bogus"}, CmdHelp},
	}
	for _, tc := range cases {
		cmd, _ := parse(tc.argv)
		if cmd != tc.want {
			t.Errorf("parse(%v) = %d, want %d", tc.argv, cmd, tc.want)
		}
	}
}

func TestParse_Subcommand(t *testing.T) {
	_, args := parse([]string{"keys", "import", "nsec1xyz"})
	if args.Subcommand != "import" {
		t.Errorf("Subcommand = %q", args.Subcommand)
	}
	if len(args.Raw) != 1 || args.Raw[0] != "nsec1xyz" {
		t.Errorf("Raw = %v", args.Raw)
	}
}

func TestParse_Options(t *testing.T) {
	_, args := parse([]string{"calendar", "create",
		"--title", "Standup", "--start=2026-01-05", "--location", "Addis Ababa"})
	if args.Subcommand != "create" {
		t.Fatalf("Subcommand = %q", args.Subcommand)
	}
	if args.Options["title"] != "Standup" {
		t.Errorf("title = %q", args.Options["title"])
	}
	if args.Options["start"] != "2026-01-05" {
		t.Errorf("start = %q", args.Options["start"])
	}
	if args.Options["location"] != "Addis Ababa" {
		t.Errorf("location = %q", args.Options["location"])
	}
}

func TestParse_BareFlag(t *testing.T) {
	_, args := parse([]string{"calendar", "list", "--past"})
	if args.Options["past"] != "true" {
		t.Errorf("past = %q", args.Options["past"])
	}
}

func TestParse_Limit(t *testing.T) {
	_, args := parse([]string{"feed", "--limit", "25"})
	if args.Limit != 25 {
		t.Errorf("Limit = %d", args.Limit)
	}

	_, args = parse([]string{"feed", "--limit", "garbage"})
	if args.Limit != 0 {
		t.Errorf("Limit = %d for garbage input", args.Limit)
	}
}

func TestParse_PositionalsWithOptions(t *testing.T) {
	_, args := parse([]string{"calendar", "rsvp", "naddr1abc", "--status", "declined"})
	if args.Subcommand != "rsvp" {
		t.Fatalf("Subcommand = %q", args.Subcommand)
	}
	if len(args.Raw) != 1 || args.Raw[0] != "naddr1abc" {
		t.Errorf("Raw = %v", args.Raw)
	}
	if args.Options["status"] != "declined" {
		t.Errorf("status = %q", args.Options["status"])
	}
}

func TestParse_ConfigArgs(t *testing.T) {
	_, args := parse([]string{"config"})
	if args.Subcommand != "show" {
		t.Errorf("default Subcommand = %q", args.Subcommand)
	}

	_, args = parse([]string{"config", "get", "relays.read"})
	if args.Subcommand != "get" || args.ConfigKey != "relays.read" {
		t.Errorf("get parsed as %q %q", args.Subcommand, args.ConfigKey)
	}

	_, args = parse([]string{"config", "set", "calendar.system", "ethiopian"})
	if args.Subcommand != "set" || args.ConfigKey != "calendar.system" || args.ConfigVal != "ethiopian" {
		t.Errorf("set parsed as %q %q %q", args.Subcommand, args.ConfigKey, args.ConfigVal)
	}
}

func TestSplitOption(t *testing.T) {
	got := splitOption("a, b ,,c")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("splitOption = %v", got)
	}
	if splitOption("") != nil {
		t.Error("expected nil for empty input")
	}
}

func TestDecodePubkey(t *testing.T) {
	hex := "3bf0c63fcb93463407af97a5e5ee64fa883d107ef9e558472c4eb9aaaefa459d"
	got, err := decodePubkey(hex)
	if err != nil {
		t.Fatalf("hex pubkey rejected: %v", err)
	}
	if got != hex {
		t.Errorf("got %q", got)
	}

	if _, err := decodePubkey("tooshort"); err == nil {
		t.Error("expected error for short input")
	}
}
