// Copyright (c) 2025 Nostria
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package media talks to Blossom-style media servers.
//
// A user's preferred servers are published as a kind 10063 event and
// mirrored in local settings. Uploads are authorized with a signed kind
// 24242 event carried in the Authorization header; every transfer is
// verified against the blob's sha256 locally so a misbehaving server
// cannot substitute content.
package media
