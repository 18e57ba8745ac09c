// Copyright (c) 2025 Nostria
// SPDX-License-Identifier: AGPL-3.0-or-later

package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nostria-app/nostria-go/internal/nostr"
)

// =============================================================================
// TEST RELAY SERVER
// =============================================================================

// testRelay is a minimal in-process relay: it answers REQ with its stored
// events plus EOSE, and acknowledges EVENT with OK.
type testRelay struct {
	mu        sync.Mutex
	stored    []*nostr.Event
	seen      []*nostr.Event
	reject    bool   // answer EVENT with OK=false
	challenge string // when set, send an AUTH challenge on connect

	conns []*websocket.Conn
	reqs  int
	auths []*nostr.Event
}

// dropConns force-closes every live connection, simulating a network cut.
func (tr *testRelay) dropConns() {
	tr.mu.Lock()
	conns := tr.conns
	tr.conns = nil
	tr.mu.Unlock()
	for _, ws := range conns {
		ws.Close()
	}
}

func (tr *testRelay) reqCount() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.reqs
}

func (tr *testRelay) authEvents() []*nostr.Event {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]*nostr.Event(nil), tr.auths...)
}

func (tr *testRelay) addStored(ev *nostr.Event) {
	tr.mu.Lock()
	tr.stored = append(tr.stored, ev)
	tr.mu.Unlock()
}

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (tr *testRelay) handler(w http.ResponseWriter, r *http.Request) {
	ws, err := testUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	tr.mu.Lock()
	tr.conns = append(tr.conns, ws)
	challenge := tr.challenge
	tr.mu.Unlock()

	if challenge != "" {
		out, _ := json.Marshal([]interface{}{"AUTH", challenge})
		_ = ws.WriteMessage(websocket.TextMessage, out)
	}

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}

		var parts []json.RawMessage
		if json.Unmarshal(data, &parts) != nil || len(parts) == 0 {
			continue
		}
		var label string
		_ = json.Unmarshal(parts[0], &label)

		switch label {
		case "REQ":
			var sub string
			_ = json.Unmarshal(parts[1], &sub)
			var filter nostr.Filter
			if len(parts) > 2 {
				_ = json.Unmarshal(parts[2], &filter)
			}
			tr.mu.Lock()
			tr.reqs++
			stored := append([]*nostr.Event(nil), tr.stored...)
			tr.mu.Unlock()
			for _, ev := range stored {
				if filter.Matches(ev) {
					out, _ := json.Marshal([]interface{}{"EVENT", sub, ev})
					_ = ws.WriteMessage(websocket.TextMessage, out)
				}
			}
			out, _ := json.Marshal([]interface{}{"EOSE", sub})
			_ = ws.WriteMessage(websocket.TextMessage, out)
		case "EVENT":
			var ev nostr.Event
			_ = json.Unmarshal(parts[1], &ev)
			tr.mu.Lock()
			tr.seen = append(tr.seen, &ev)
			reject := tr.reject
			tr.mu.Unlock()
			msg := ""
			if reject {
				msg = "blocked: test"
			}
			out, _ := json.Marshal([]interface{}{"OK", ev.ID, !reject, msg})
			_ = ws.WriteMessage(websocket.TextMessage, out)
		case "AUTH":
			var ev nostr.Event
			_ = json.Unmarshal(parts[1], &ev)
			tr.mu.Lock()
			tr.auths = append(tr.auths, &ev)
			tr.mu.Unlock()
		}
	}
}

func startTestRelay(t *testing.T, tr *testRelay) (*httptest.Server, string) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(tr.handler))
	t.Cleanup(srv.Close)
	return srv, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func signedNote(t *testing.T, content string) *nostr.Event {
	t.Helper()
	priv, err := nostr.GeneratePrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	ev := &nostr.Event{
		CreatedAt: time.Now().Unix(),
		Kind:      nostr.KindTextNote,
		Content:   content,
	}
	if err := ev.Sign(priv); err != nil {
		t.Fatal(err)
	}
	return ev
}

// =============================================================================
// RELAY TESTS
// =============================================================================

func TestSubscribe_StoredEventsAndEOSE(t *testing.T) {
	good := signedNote(t, "good")
	bad := signedNote(t, "forged")
	bad.Content = "tampered after signing"

	tr := &testRelay{stored: []*nostr.Event{good, bad}}
	_, url := startTestRelay(t, tr)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	r := New(url)
	if err := r.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer r.Close()

	sub, err := r.Subscribe(ctx, []nostr.Filter{{Kinds: []int{1}}})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	select {
	case <-sub.EOSE():
	case <-ctx.Done():
		t.Fatal("no EOSE before timeout")
	}

	var got []*nostr.Event
drain:
	for {
		select {
		case ev := <-sub.Events:
			got = append(got, ev)
		default:
			break drain
		}
	}

	if len(got) != 1 || got[0].ID != good.ID {
		t.Errorf("received %d events, want only the verified one", len(got))
	}
	if r.Stats().Invalid != 1 {
		t.Errorf("invalid counter = %d, want 1", r.Stats().Invalid)
	}
}

func TestPublish_OKRoundTrip(t *testing.T) {
	tr := &testRelay{}
	_, url := startTestRelay(t, tr)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	r := New(url)
	if err := r.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer r.Close()

	ev := signedNote(t, "publish me")
	if err := r.Publish(ctx, ev); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	tr.mu.Lock()
	seen := len(tr.seen)
	tr.mu.Unlock()
	if seen != 1 {
		t.Errorf("relay saw %d events, want 1", seen)
	}
}

func TestPublish_Rejected(t *testing.T) {
	tr := &testRelay{reject: true}
	_, url := startTestRelay(t, tr)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	r := New(url)
	if err := r.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer r.Close()

	err := r.Publish(ctx, signedNote(t, "rejected"))
	if !errors.Is(err, ErrNotAccepted) {
		t.Errorf("Publish = %v, want ErrNotAccepted", err)
	}
	if err != nil && !strings.Contains(err.Error(), "blocked: test") {
		t.Errorf("error should carry the relay reason: %v", err)
	}
}

func TestConnect_Refused(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	r := New("ws://127.0.0.1:1")
	if err := r.Connect(ctx); err == nil {
		t.Error("Connect to a dead port should fail")
	}
}

func TestClose_Idempotent(t *testing.T) {
	tr := &testRelay{}
	_, url := startTestRelay(t, tr)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	r := New(url)
	if err := r.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	sub, err := r.Subscribe(ctx, []nostr.Filter{{Kinds: []int{1}}})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	r.Close()
	r.Close()

	// The subscription channel must be closed after relay teardown.
	select {
	case _, open := <-sub.Events:
		if open {
			// Drain any buffered event; channel should close soon after.
			for range sub.Events {
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not torn down on Close")
	}

	if _, err := r.Subscribe(ctx, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Subscribe after Close = %v, want ErrClosed", err)
	}
}

// =============================================================================
// POOL TESTS
// =============================================================================

func TestPool_DedupAcrossRelays(t *testing.T) {
	shared := signedNote(t, "everywhere")
	only2 := signedNote(t, "only on relay 2")

	tr1 := &testRelay{stored: []*nostr.Event{shared}}
	tr2 := &testRelay{stored: []*nostr.Event{shared, only2}}
	_, url1 := startTestRelay(t, tr1)
	_, url2 := startTestRelay(t, tr2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool := NewPool(url1, url2)
	if err := pool.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer pool.Close()

	sub, err := pool.Subscribe(ctx, []nostr.Filter{{Kinds: []int{1}}})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	select {
	case <-sub.EOSE():
	case <-ctx.Done():
		t.Fatal("no pool EOSE before timeout")
	}

	got := map[string]int{}
deadline:
	for {
		select {
		case ev := <-sub.Events:
			got[ev.ID]++
		case <-time.After(200 * time.Millisecond):
			break deadline
		}
	}

	if got[shared.ID] != 1 {
		t.Errorf("shared event delivered %d times, want 1", got[shared.ID])
	}
	if got[only2.ID] != 1 {
		t.Errorf("relay-2 event delivered %d times, want 1", got[only2.ID])
	}
}

func TestPool_PublishFanOut(t *testing.T) {
	tr1 := &testRelay{}
	tr2 := &testRelay{reject: true}
	_, url1 := startTestRelay(t, tr1)
	_, url2 := startTestRelay(t, tr2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool := NewPool(url1, url2)
	if err := pool.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer pool.Close()

	results := pool.Publish(ctx, signedNote(t, "fan out"))
	if len(results) != 2 {
		t.Fatalf("results for %d relays, want 2", len(results))
	}
	if results[url1] != nil {
		t.Errorf("relay 1 = %v, want accepted", results[url1])
	}
	if !errors.Is(results[url2], ErrNotAccepted) {
		t.Errorf("relay 2 = %v, want ErrNotAccepted", results[url2])
	}
}

func TestPool_ConnectPartialFailure(t *testing.T) {
	tr := &testRelay{}
	_, url := startTestRelay(t, tr)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	pool := NewPool(url, "ws://127.0.0.1:1")
	if err := pool.Connect(ctx); err != nil {
		t.Errorf("Connect with one live relay = %v, want nil", err)
	}
	pool.Close()
}

func TestReconnect_Resubscribes(t *testing.T) {
	if testing.Short() {
		t.Skip("reconnect backoff makes this test slow")
	}

	before := signedNote(t, "before the cut")
	tr := &testRelay{stored: []*nostr.Event{before}}
	_, url := startTestRelay(t, tr)

	// The supervisor's context must outlive the dial for reconnects to
	// happen at all.
	r := New(url)
	if err := r.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer r.Close()

	sub, err := r.Subscribe(context.Background(), []nostr.Filter{{Kinds: []int{1}}})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	select {
	case <-sub.EOSE():
	case <-time.After(5 * time.Second):
		t.Fatal("no EOSE before timeout")
	}

	after := signedNote(t, "after the cut")
	tr.addStored(after)
	tr.dropConns()

	// The client should redial with backoff and replay the REQ; the event
	// stored during the outage then arrives on the same subscription.
	deadline := time.After(15 * time.Second)
	for {
		select {
		case ev, ok := <-sub.Events:
			if !ok {
				t.Fatal("subscription closed instead of surviving the reconnect")
			}
			if ev.ID == after.ID {
				if got := tr.reqCount(); got < 2 {
					t.Errorf("relay saw %d REQ frames, want a replay after redial", got)
				}
				return
			}
		case <-deadline:
			t.Fatal("no resubscribed delivery after connection drop")
		}
	}
}

func TestPublish_RateLimited(t *testing.T) {
	tr := &testRelay{}
	_, url := startTestRelay(t, tr)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	r := New(url)
	if err := r.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer r.Close()

	// Drain the limiter's burst allowance.
	for i := 0; i < publishBurst; i++ {
		if err := r.Publish(ctx, signedNote(t, "burst")); err != nil {
			t.Fatalf("publish %d within burst: %v", i, err)
		}
	}

	// The next publish must wait for a token; a context too short for the
	// refill interval has to fail rather than send unthrottled.
	shortCtx, shortCancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer shortCancel()
	if err := r.Publish(shortCtx, signedNote(t, "over the limit")); err == nil {
		t.Error("publish beyond the burst succeeded without waiting for the limiter")
	}
}

func TestAuthChallenge_Answered(t *testing.T) {
	priv, err := nostr.GeneratePrivateKey()
	if err != nil {
		t.Fatal(err)
	}

	tr := &testRelay{challenge: "nonce-5577"}
	_, url := startTestRelay(t, tr)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	r := New(url, WithAuthSigner(func(relayURL, challenge string) (*nostr.Event, error) {
		ev := &nostr.Event{
			Kind:      nostr.KindClientAuth,
			CreatedAt: time.Now().Unix(),
			Tags: [][]string{
				{"relay", relayURL},
				{"challenge", challenge},
			},
		}
		if err := ev.Sign(priv); err != nil {
			return nil, err
		}
		return ev, nil
	}))
	if err := r.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer r.Close()

	var got *nostr.Event
	for start := time.Now(); time.Since(start) < 3*time.Second; {
		if auths := tr.authEvents(); len(auths) > 0 {
			got = auths[0]
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if got == nil {
		t.Fatal("relay never received an AUTH answer")
	}
	if got.Kind != nostr.KindClientAuth {
		t.Errorf("auth event kind = %d, want %d", got.Kind, nostr.KindClientAuth)
	}
	if got.TagValue("challenge") != "nonce-5577" {
		t.Errorf("challenge tag = %q", got.TagValue("challenge"))
	}
	if got.TagValue("relay") != url {
		t.Errorf("relay tag = %q, want %q", got.TagValue("relay"), url)
	}
	if ok, _ := got.Verify(); !ok {
		t.Error("auth answer is not validly signed")
	}
}
