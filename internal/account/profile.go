// Copyright (c) 2025 Nostria
// SPDX-License-Identifier: AGPL-3.0-or-later

package account

import (
	"encoding/json"
	"fmt"

	"github.com/nostria-app/nostria-go/internal/nostr"
)

// Profile is the kind-0 metadata document for a pubkey.
type Profile struct {
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	About       string `json:"about,omitempty"`
	Picture     string `json:"picture,omitempty"`
	Banner      string `json:"banner,omitempty"`
	NIP05       string `json:"nip05,omitempty"`
	LUD16       string `json:"lud16,omitempty"`
	Website     string `json:"website,omitempty"`
}

// BestName returns the most presentable name the profile offers.
func (p *Profile) BestName(fallback string) string {
	switch {
	case p == nil:
		return fallback
	case p.DisplayName != "":
		return p.DisplayName
	case p.Name != "":
		return p.Name
	default:
		return fallback
	}
}

// ParseProfile decodes a kind-0 event's content.
func ParseProfile(ev *nostr.Event) (*Profile, error) {
	if ev.Kind != nostr.KindMetadata {
		return nil, fmt.Errorf("kind %d is not a metadata event", ev.Kind)
	}
	var p Profile
	if err := json.Unmarshal([]byte(ev.Content), &p); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}
	return &p, nil
}

// ProfileEvent builds and signs a metadata event for the account.
func (a *Account) ProfileEvent(p *Profile) (*nostr.Event, error) {
	content, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	ev := &nostr.Event{
		Kind:    nostr.KindMetadata,
		Content: string(content),
		Tags:    [][]string{},
	}
	if err := a.Sign(ev); err != nil {
		return nil, err
	}
	return ev, nil
}
