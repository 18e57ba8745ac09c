// Copyright (c) 2025 Nostria
// SPDX-License-Identifier: AGPL-3.0-or-later

package relay

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nostria-app/nostria-go/internal/nostr"
)

// =============================================================================
// WIRE FRAMES
// =============================================================================

// Frame labels defined by NIP-01 and NIP-42.
const (
	labelEvent  = "EVENT"
	labelReq    = "REQ"
	labelClose  = "CLOSE"
	labelClosed = "CLOSED"
	labelEOSE   = "EOSE"
	labelOK     = "OK"
	labelNotice = "NOTICE"
	labelAuth   = "AUTH"
)

var errBadFrame = errors.New("malformed relay frame")

// Frame is a parsed relay-to-client message. Only the fields relevant to
// the frame's Label are set.
type Frame struct {
	Label string
	Sub   string       // EVENT, EOSE, CLOSED
	Event *nostr.Event // EVENT
	ID    string       // OK: acknowledged event ID
	OK    bool         // OK: accepted flag
	Text  string       // OK, CLOSED, NOTICE: message; AUTH: challenge
}

// parseFrame decodes one relay message. Unknown labels return a Frame with
// just the Label set; callers ignore them rather than failing the stream.
func parseFrame(data []byte) (*Frame, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil || len(parts) == 0 {
		return nil, errBadFrame
	}

	var label string
	if err := json.Unmarshal(parts[0], &label); err != nil {
		return nil, errBadFrame
	}
	f := &Frame{Label: label}

	switch label {
	case labelEvent:
		if len(parts) < 3 {
			return nil, errBadFrame
		}
		if err := json.Unmarshal(parts[1], &f.Sub); err != nil {
			return nil, errBadFrame
		}
		f.Event = &nostr.Event{}
		if err := json.Unmarshal(parts[2], f.Event); err != nil {
			return nil, fmt.Errorf("%w: %v", errBadFrame, err)
		}
	case labelEOSE:
		if len(parts) < 2 {
			return nil, errBadFrame
		}
		if err := json.Unmarshal(parts[1], &f.Sub); err != nil {
			return nil, errBadFrame
		}
	case labelOK:
		if len(parts) < 3 {
			return nil, errBadFrame
		}
		if err := json.Unmarshal(parts[1], &f.ID); err != nil {
			return nil, errBadFrame
		}
		if err := json.Unmarshal(parts[2], &f.OK); err != nil {
			return nil, errBadFrame
		}
		if len(parts) > 3 {
			_ = json.Unmarshal(parts[3], &f.Text)
		}
	case labelClosed:
		if len(parts) < 2 {
			return nil, errBadFrame
		}
		if err := json.Unmarshal(parts[1], &f.Sub); err != nil {
			return nil, errBadFrame
		}
		if len(parts) > 2 {
			_ = json.Unmarshal(parts[2], &f.Text)
		}
	case labelNotice:
		if len(parts) > 1 {
			_ = json.Unmarshal(parts[1], &f.Text)
		}
	case labelAuth:
		// Relay-to-client AUTH carries a challenge string (NIP-42).
		if len(parts) > 1 {
			_ = json.Unmarshal(parts[1], &f.Text)
		}
	}
	return f, nil
}

// reqFrame encodes ["REQ", sub, filters...].
func reqFrame(sub string, filters []nostr.Filter) ([]byte, error) {
	parts := make([]interface{}, 0, 2+len(filters))
	parts = append(parts, labelReq, sub)
	for _, f := range filters {
		parts = append(parts, f)
	}
	return json.Marshal(parts)
}

// eventFrame encodes ["EVENT", event].
func eventFrame(ev *nostr.Event) ([]byte, error) {
	return json.Marshal([]interface{}{labelEvent, ev})
}

// closeFrame encodes ["CLOSE", sub].
func closeFrame(sub string) ([]byte, error) {
	return json.Marshal([]interface{}{labelClose, sub})
}

// authFrame encodes the client-to-relay ["AUTH", event] answer to a
// challenge (NIP-42).
func authFrame(ev *nostr.Event) ([]byte, error) {
	return json.Marshal([]interface{}{labelAuth, ev})
}
