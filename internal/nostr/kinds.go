// Copyright (c) 2025 Nostria
// SPDX-License-Identifier: AGPL-3.0-or-later

package nostr

// Event kinds used by the client. Numeric values follow the NIP registry.
const (
	// KindMetadata is a user profile document (NIP-01).
	KindMetadata = 0

	// KindTextNote is a plain text note (NIP-01).
	KindTextNote = 1

	// KindContacts is a follow list (NIP-02).
	KindContacts = 3

	// KindRepost rebroadcasts another event (NIP-18).
	KindRepost = 6

	// KindReaction is a reaction to another event (NIP-25).
	KindReaction = 7

	// KindMuteList is the user's mute list (NIP-51).
	KindMuteList = 10000

	// KindMediaServers lists the user's preferred media servers.
	KindMediaServers = 10063

	// KindClientAuth answers a relay AUTH challenge (NIP-42).
	KindClientAuth = 22242

	// KindMediaAuth authorizes a media server operation.
	KindMediaAuth = 24242

	// KindAppData is arbitrary application data (NIP-78).
	KindAppData = 30078

	// KindTrustedAssertion carries reputation metrics about a subject
	// pubkey, published by a trust provider (NIP-85).
	KindTrustedAssertion = 30382

	// KindCalendarDateEvent is an all-day or multi-day calendar event
	// (NIP-52, date-based).
	KindCalendarDateEvent = 31922

	// KindCalendarTimeEvent is a calendar event with a clock time
	// (NIP-52, time-based).
	KindCalendarTimeEvent = 31923

	// KindCalendar groups calendar events into a named calendar (NIP-52).
	KindCalendar = 31924

	// KindCalendarRSVP is a response to a calendar event (NIP-52).
	KindCalendarRSVP = 31925
)

// IsReplaceable reports whether events of the kind replace older events of
// the same kind by the same author.
func IsReplaceable(kind int) bool {
	return kind == KindMetadata || kind == KindContacts ||
		(kind >= 10000 && kind < 20000)
}

// IsParamReplaceable reports whether events of the kind replace older events
// with the same kind, author, and d tag.
func IsParamReplaceable(kind int) bool {
	return kind >= 30000 && kind < 40000
}

// IsEphemeral reports whether relays are expected not to store the kind.
func IsEphemeral(kind int) bool {
	return kind >= 20000 && kind < 30000
}
