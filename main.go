// nostria - a command-line client for the Nostr protocol.
//
// Copyright (c) 2025 Nostria
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"fmt"
	"os"

	"github.com/nostria-app/nostria-go/internal/cli"
	"github.com/nostria-app/nostria-go/internal/config"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	// Sync version info with cli package
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	cmd, args := cli.Parse()

	// Configuration loads once up front; handlers read the global copy.
	if err := config.ReloadGlobal(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	var err error
	switch cmd {
	case cli.CmdFeed:
		err = cli.HandleFeed(args)
	case cli.CmdKeys:
		err = cli.HandleKeys(args)
	case cli.CmdCalendar:
		err = cli.HandleCalendar(args)
	case cli.CmdSettings:
		err = cli.HandleSettings(args)
	case cli.CmdTrust:
		err = cli.HandleTrust(args)
	case cli.CmdMedia:
		err = cli.HandleMedia(args)
	case cli.CmdConfig:
		err = cli.HandleConfig(args)
	case cli.CmdVersion:
		cli.PrintVersion()
	case cli.CmdHelp:
		cli.PrintUsage()
	default:
		cli.PrintUsage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
