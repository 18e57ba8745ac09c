// Copyright (c) 2025 Nostria
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - CLI parsing and command handlers for nostria.
package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdFeed Command = iota
	CmdKeys
	CmdCalendar
	CmdSettings
	CmdTrust
	CmdMedia
	CmdConfig
	CmdVersion
	CmdHelp
)

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Quiet   bool
	Verbose bool
	JSON    bool
	Relays  string // comma-separated relay override

	// Command-specific
	Subcommand string
	ConfigKey  string
	ConfigVal  string
	Limit      int

	// Raw args (remaining after flag parsing)
	Raw []string

	// Options holds command-specific named options (e.g., --status, --server)
	Options map[string]string
}

const usageText = `nostria - decentralized social protocol client

Nostria is a command-line client for the Nostr protocol.

It provides:
  - Feeds aggregated across relays, with mute filtering
  - Calendar events (NIP-52) with Ethiopian and Chronia calendar display
  - Encrypted settings sync across devices (NIP-78)
  - Trusted assertions for reputation scoring (NIP-85)
  - Media uploads to Blossom-style servers

Usage:
  nostria feed               Stream a feed column (default)
  nostria keys [subcommand]  Key management
  nostria calendar [subcommand] Calendar events
  nostria settings [subcommand] Settings management and sync
  nostria trust score <pubkey>  Reputation lookup
  nostria media [subcommand] Media server operations
  nostria config [show|get|set|path] Configuration
  nostria version            Show version
  nostria help               Show this help

Key Commands:
  nostria keys gen                  Generate a new key pair
  nostria keys show                 Show the current public key (npub)
  nostria keys import <nsec|hex>    Import an existing key

Feed Commands:
  nostria feed                      Fetch text notes from your relays
    --author PK                     Only this author (hex or npub)
    --tag TAG,TAG                   Filter by hashtags
    --limit N                       Events to show (default from config)
    --live                          Keep streaming after the stored page

Calendar Commands:
  nostria calendar list             List upcoming calendar events
    --calendar SYSTEM               Display dates as gregorian, ethiopian, chronia
    --author PK                     Only this organizer
    --past                          Show past events instead
  nostria calendar create           Publish a calendar event
    --title TEXT                    Event title (required)
    --start WHEN                    Start: RFC 3339 or YYYY-MM-DD (required)
    --end WHEN                      End, same format as start
    --description TEXT              Description
    --location TEXT                 Location
    --tag TAG,TAG                   Hashtags
  nostria calendar rsvp <naddr>     RSVP to a calendar event
    --status accepted|declined|tentative

Settings Commands:
  nostria settings show             Show current settings
  nostria settings set KEY VALUE    Update a setting
  nostria settings sync             Reconcile settings with the relay copy

Trust Commands:
  nostria trust score <pubkey>      Look up a reputation score
    --provider PK                   Assertion provider pubkey
    --relay URL                     Provider's relay

Media Commands:
  nostria media upload <file>       Upload a file, mirroring across servers
    --server URL                    Media server (default from settings)
  nostria media download <sha256>   Download and verify a blob
    --server URL --out FILE
  nostria media mirror <url> <sha256>  Replicate a blob to your servers
    --server URL
  nostria media servers             Show the resolved server list
    --publish                       Publish it as a kind-10063 event

Global Flags:
  --relays URL,URL  Override configured relays
  --json            Output in JSON format
  -q, --quiet       Suppress progress output
  -v, --verbose     Verbose output

Version: %s
`

// PrintUsage prints the usage/help text.
func PrintUsage() {
	fmt.Printf(usageText, Version)
}

// PrintVersion prints version information.
func PrintVersion() {
	fmt.Printf("nostria version %s\n", Version)
	fmt.Printf("  Git commit: %s\n", GitCommit)
	fmt.Printf("  Build date: %s\n", BuildDate)
}

// Parse parses command-line arguments and returns the command and args.
func Parse() (Command, Args) {
	return parse(os.Args[1:])
}

// parse is the testable core of Parse.
func parse(argv []string) (Command, Args) {
	remaining, parsedArgs := parseGlobalFlags(argv)

	if len(remaining) == 0 {
		return CmdFeed, parsedArgs
	}

	cmd := strings.ToLower(remaining[0])
	remaining = remaining[1:]
	parsedArgs.Raw = remaining

	switch cmd {
	case "feed":
		parseOptionArgs(&parsedArgs, remaining)
		return CmdFeed, parsedArgs

	case "keys", "key":
		if len(remaining) > 0 {
			parsedArgs.Subcommand = remaining[0]
			parsedArgs.Raw = remaining[1:]
		}
		return CmdKeys, parsedArgs

	case "calendar", "cal":
		if len(remaining) > 0 {
			parsedArgs.Subcommand = remaining[0]
			parseOptionArgs(&parsedArgs, remaining[1:])
		}
		return CmdCalendar, parsedArgs

	case "settings", "setting":
		if len(remaining) > 0 {
			parsedArgs.Subcommand = remaining[0]
			parsedArgs.Raw = remaining[1:]
		}
		return CmdSettings, parsedArgs

	case "trust":
		if len(remaining) > 0 {
			parsedArgs.Subcommand = remaining[0]
			parseOptionArgs(&parsedArgs, remaining[1:])
		}
		return CmdTrust, parsedArgs

	case "media":
		if len(remaining) > 0 {
			parsedArgs.Subcommand = remaining[0]
			parseOptionArgs(&parsedArgs, remaining[1:])
		}
		return CmdMedia, parsedArgs

	case "config":
		parseConfigArgs(&parsedArgs, remaining)
		return CmdConfig, parsedArgs

	case "version", "-v", "--version":
		return CmdVersion, parsedArgs

	case "help", "-h", "--help":
		return CmdHelp, parsedArgs

	default:
		// Unknown command: show help rather than guessing.
		parsedArgs.Raw = append([]string{cmd}, remaining...)
		return CmdHelp, parsedArgs
	}
}

// parseGlobalFlags extracts global flags from args and returns remaining args.
func parseGlobalFlags(args []string) ([]string, Args) {
	var remaining []string
	parsedArgs := Args{
		Options: make(map[string]string),
	}

	i := 0
	for i < len(args) {
		arg := args[i]

		switch arg {
		case "-q", "--quiet":
			parsedArgs.Quiet = true
		case "-v", "--verbose":
			parsedArgs.Verbose = true
		case "--json":
			parsedArgs.JSON = true
		case "--relays":
			if i+1 < len(args) {
				i++
				parsedArgs.Relays = args[i]
			}
		default:
			if strings.HasPrefix(arg, "--relays=") {
				parsedArgs.Relays = strings.TrimPrefix(arg, "--relays=")
			} else {
				remaining = append(remaining, arg)
			}
		}
		i++
	}

	return remaining, parsedArgs
}

// parseOptionArgs collects --name value and --name=value pairs into
// Options; bare flags get the value "true". Positional arguments stay
// in Raw.
func parseOptionArgs(args *Args, remaining []string) {
	var positional []string

	i := 0
	for i < len(remaining) {
		arg := remaining[i]
		if !strings.HasPrefix(arg, "--") {
			positional = append(positional, arg)
			i++
			continue
		}

		name := strings.TrimPrefix(arg, "--")
		if eq := strings.IndexByte(name, '='); eq >= 0 {
			args.Options[name[:eq]] = name[eq+1:]
			i++
			continue
		}
		if i+1 < len(remaining) && !strings.HasPrefix(remaining[i+1], "--") {
			args.Options[name] = remaining[i+1]
			i += 2
			continue
		}
		args.Options[name] = "true"
		i++
	}

	args.Raw = positional
	if limit, ok := args.Options["limit"]; ok {
		if n, err := strconv.Atoi(limit); err == nil && n > 0 {
			args.Limit = n
		}
	}
}

// parseConfigArgs parses config command specific arguments.
func parseConfigArgs(args *Args, remaining []string) {
	if len(remaining) == 0 {
		args.Subcommand = "show"
		return
	}
	args.Subcommand = remaining[0]
	if len(remaining) > 1 {
		args.ConfigKey = remaining[1]
	}
	if len(remaining) > 2 {
		args.ConfigVal = strings.Join(remaining[2:], " ")
	}
}
