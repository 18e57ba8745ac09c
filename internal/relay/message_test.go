// Copyright (c) 2025 Nostria
// SPDX-License-Identifier: AGPL-3.0-or-later

package relay

import (
	"strings"
	"testing"

	"github.com/nostria-app/nostria-go/internal/nostr"
)

func TestParseFrame_Event(t *testing.T) {
	raw := `["EVENT","sub-1",{"id":"abc","pubkey":"def","created_at":10,"kind":1,"tags":[],"content":"hi","sig":"00"}]`

	f, err := parseFrame([]byte(raw))
	if err != nil {
		t.Fatalf("parseFrame: %v", err)
	}
	if f.Label != labelEvent || f.Sub != "sub-1" {
		t.Errorf("frame = %+v", f)
	}
	if f.Event == nil || f.Event.Content != "hi" || f.Event.Kind != 1 {
		t.Errorf("event = %+v", f.Event)
	}
}

func TestParseFrame_OK(t *testing.T) {
	f, err := parseFrame([]byte(`["OK","eventid",false,"blocked: spam"]`))
	if err != nil {
		t.Fatalf("parseFrame: %v", err)
	}
	if f.ID != "eventid" || f.OK || f.Text != "blocked: spam" {
		t.Errorf("frame = %+v", f)
	}

	// OK without a message is legal.
	f, err = parseFrame([]byte(`["OK","eventid",true]`))
	if err != nil || !f.OK {
		t.Errorf("frame = %+v, err %v", f, err)
	}
}

func TestParseFrame_EOSEAndClosed(t *testing.T) {
	f, err := parseFrame([]byte(`["EOSE","sub-9"]`))
	if err != nil || f.Label != labelEOSE || f.Sub != "sub-9" {
		t.Errorf("EOSE frame = %+v, err %v", f, err)
	}

	f, err = parseFrame([]byte(`["CLOSED","sub-9","auth-required: nope"]`))
	if err != nil || f.Sub != "sub-9" || !strings.Contains(f.Text, "auth-required") {
		t.Errorf("CLOSED frame = %+v, err %v", f, err)
	}
}

func TestParseFrame_UnknownLabel(t *testing.T) {
	f, err := parseFrame([]byte(`["COUNT","sub",{"count":5}]`))
	if err != nil {
		t.Fatalf("unknown labels should parse: %v", err)
	}
	if f.Label != "COUNT" {
		t.Errorf("label = %q", f.Label)
	}
}

func TestParseFrame_Malformed(t *testing.T) {
	for _, raw := range []string{
		``, `{}`, `[]`, `[5]`, `["EVENT"]`, `["EVENT","s"]`,
		`["OK","id"]`, `["EOSE"]`, `not json`,
	} {
		if _, err := parseFrame([]byte(raw)); err == nil {
			t.Errorf("parseFrame(%q) should fail", raw)
		}
	}
}

func TestFrameEncoding(t *testing.T) {
	msg, err := reqFrame("s1", []nostr.Filter{{Kinds: []int{1}, Limit: 5}})
	if err != nil {
		t.Fatalf("reqFrame: %v", err)
	}
	want := `["REQ","s1",{"kinds":[1],"limit":5}]`
	if string(msg) != want {
		t.Errorf("reqFrame = %s, want %s", msg, want)
	}

	msg, err = closeFrame("s1")
	if err != nil || string(msg) != `["CLOSE","s1"]` {
		t.Errorf("closeFrame = %s, %v", msg, err)
	}

	ev := &nostr.Event{Kind: 1, Tags: [][]string{}}
	msg, err = eventFrame(ev)
	if err != nil || !strings.HasPrefix(string(msg), `["EVENT",{`) {
		t.Errorf("eventFrame = %s, %v", msg, err)
	}
}

func TestParseFrame_AuthChallenge(t *testing.T) {
	f, err := parseFrame([]byte(`["AUTH","challenge-string-123"]`))
	if err != nil {
		t.Fatalf("parseFrame: %v", err)
	}
	if f.Label != labelAuth || f.Text != "challenge-string-123" {
		t.Errorf("frame = %+v", f)
	}
}

func TestAuthFrame(t *testing.T) {
	ev := &nostr.Event{
		Kind:      nostr.KindClientAuth,
		CreatedAt: 100,
		Tags: [][]string{
			{"relay", "wss://relay.example"},
			{"challenge", "abc"},
		},
	}
	msg, err := authFrame(ev)
	if err != nil {
		t.Fatalf("authFrame: %v", err)
	}
	s := string(msg)
	if !strings.HasPrefix(s, `["AUTH",{`) {
		t.Errorf("frame = %s", s)
	}
	if !strings.Contains(s, `"challenge","abc"`) {
		t.Errorf("frame missing challenge tag: %s", s)
	}
}
