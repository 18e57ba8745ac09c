// Copyright (c) 2025 Nostria
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/nostria-app/nostria-go/internal/config"
)

// HandleConfig implements the config subcommands: show, get, set, path.
func HandleConfig(args Args) error {
	switch args.Subcommand {
	case "", "show":
		return configShow(args)
	case "get":
		return configGet(args)
	case "set":
		return configSet(args)
	case "path":
		return configPath(args)
	default:
		return errorf("unknown config subcommand: %s", args.Subcommand)
	}
}

func configShow(args Args) error {
	cfg := config.Global()
	if args.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	}
	fmt.Println(cfg.String())
	return nil
}

func configGet(args Args) error {
	if args.ConfigKey == "" {
		return errorf("usage: nostria config get <key>")
	}
	value, err := config.Global().Get(args.ConfigKey)
	if err != nil {
		return err
	}
	if args.JSON {
		return json.NewEncoder(os.Stdout).Encode(value)
	}
	fmt.Printf("%v\n", value)
	return nil
}

func configSet(args Args) error {
	if args.ConfigKey == "" || args.ConfigVal == "" {
		return errorf("usage: nostria config set <key> <value>")
	}

	cfg := config.Global().Clone()
	if err := cfg.Set(args.ConfigKey, args.ConfigVal); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.Save(cfg); err != nil {
		return err
	}
	config.SetGlobal(cfg)

	if !args.Quiet {
		value, _ := cfg.Get(args.ConfigKey)
		fmt.Printf("%s = %v\n", args.ConfigKey, value)
	}
	return nil
}

func configPath(args Args) error {
	path, err := config.ConfigPathTOML()
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}
