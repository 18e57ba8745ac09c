// Copyright (c) 2025 Nostria
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package feed aggregates relay subscriptions into ordered timelines.
//
// A Column describes what the user wants to see and translates to a
// protocol filter. A Feed consumes the resulting pool subscription,
// dedupes events, applies the mute list, and maintains a bounded
// timeline in reverse chronological order. Live mode appends events as
// they arrive; paused mode buffers them until the user resumes.
package feed
