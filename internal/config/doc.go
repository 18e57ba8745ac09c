// Copyright (c) 2025 Nostria
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management.
//
// Supports both TOML and JSON configuration formats, with sensible
// defaults, environment variable overrides, and validation.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - RelayConfig: Relay transport settings (read/write lists)
//   - MediaConfig: Media server settings
//   - CalendarConfig: Display calendar system and view
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (NOSTRIA_*)
//   - ~/.nostria/config.toml
//   - ~/.nostria/config.json
//   - Built-in defaults
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Access settings:
//
//	relays := cfg.Relays.Read
//	system := cfg.Calendar.System
package config
