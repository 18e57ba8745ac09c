// Copyright (c) 2025 Nostria
// SPDX-License-Identifier: AGPL-3.0-or-later

package media

import (
	"errors"
	"net/url"
	"strings"

	"github.com/nostria-app/nostria-go/internal/account"
	"github.com/nostria-app/nostria-go/internal/nostr"
	"github.com/nostria-app/nostria-go/internal/settings"
)

var (
	// ErrNotServerList is returned when the event is not kind 10063.
	ErrNotServerList = errors.New("media: not a server list event")

	// ErrNoServers indicates no usable media server could be found.
	ErrNoServers = errors.New("media: no media servers configured")
)

// ParseServerList extracts server URLs from a kind 10063 event. Entries
// that are not http or https URLs are skipped.
func ParseServerList(ev *nostr.Event) ([]string, error) {
	if ev == nil || ev.Kind != nostr.KindMediaServers {
		return nil, ErrNotServerList
	}
	var out []string
	for _, raw := range ev.TagValues("server") {
		if u := normalizeServerURL(raw); u != "" {
			out = append(out, u)
		}
	}
	return out, nil
}

// ServerListEvent builds and signs a kind 10063 event for the account.
func ServerListEvent(acct *account.Account, urls []string) (*nostr.Event, error) {
	ev := &nostr.Event{Kind: nostr.KindMediaServers}
	for _, raw := range urls {
		u := normalizeServerURL(raw)
		if u == "" {
			return nil, errors.New("media: invalid server URL: " + raw)
		}
		ev.AddTag("server", u)
	}
	if err := acct.Sign(ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// Servers resolves the user's media server list: the published event
// when present, otherwise the local settings fallback.
func Servers(listEvent *nostr.Event, s *settings.Settings) ([]string, error) {
	if listEvent != nil {
		if urls, err := ParseServerList(listEvent); err == nil && len(urls) > 0 {
			return urls, nil
		}
	}
	if s != nil {
		var out []string
		for _, raw := range s.MediaServers {
			if u := normalizeServerURL(raw); u != "" {
				out = append(out, u)
			}
		}
		if len(out) > 0 {
			return out, nil
		}
	}
	return nil, ErrNoServers
}

// normalizeServerURL validates and canonicalizes a server URL, yielding
// "" when unusable. Trailing slashes are dropped so paths join cleanly.
func normalizeServerURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return strings.TrimSuffix(u.String(), "/")
}
