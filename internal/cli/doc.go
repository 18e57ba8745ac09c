// Copyright (c) 2025 Nostria
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli parses the nostria command line and runs the commands.
//
// Each command group lives in its own file (keys_cmd.go, feed_cmd.go, ...)
// with a Handle* entry point taking the parsed Args. Handlers load their
// own dependencies (config, account, relay pool) so main stays a thin
// dispatcher.
package cli
