// Copyright (c) 2025 Nostria
// SPDX-License-Identifier: AGPL-3.0-or-later

package media

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nostria-app/nostria-go/internal/account"
	"github.com/nostria-app/nostria-go/internal/nostr"
	"github.com/nostria-app/nostria-go/internal/settings"
)

func testAccount(t *testing.T) *account.Account {
	t.Helper()
	acct, err := account.Generate()
	if err != nil {
		t.Fatal(err)
	}
	return acct
}

// decodeAuth extracts and verifies the kind 24242 event from an
// Authorization header.
func decodeAuth(t *testing.T, header string) *nostr.Event {
	t.Helper()
	raw, ok := strings.CutPrefix(header, "Nostr ")
	if !ok {
		t.Fatalf("bad auth scheme: %q", header)
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		t.Fatalf("auth not base64: %v", err)
	}
	var ev nostr.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("auth not an event: %v", err)
	}
	if ok, err := ev.Verify(); !ok {
		t.Fatalf("auth event invalid: %v", err)
	}
	return &ev
}

func TestServerList(t *testing.T) {
	acct := testAccount(t)

	ev, err := ServerListEvent(acct, []string{"https://media.example.com/", "http://other.example.com"})
	if err != nil {
		t.Fatal(err)
	}
	if ev.Kind != nostr.KindMediaServers {
		t.Errorf("kind = %d", ev.Kind)
	}

	urls, err := ParseServerList(ev)
	if err != nil {
		t.Fatal(err)
	}
	if len(urls) != 2 || urls[0] != "https://media.example.com" {
		t.Errorf("urls = %v", urls)
	}

	if _, err := ParseServerList(&nostr.Event{Kind: 1}); !errors.Is(err, ErrNotServerList) {
		t.Errorf("wrong kind = %v", err)
	}
	if _, err := ServerListEvent(acct, []string{"ftp://nope"}); err == nil {
		t.Error("bad scheme accepted")
	}
}

func TestServersFallback(t *testing.T) {
	s := &settings.Settings{MediaServers: []string{"https://fallback.example.com"}}

	urls, err := Servers(nil, s)
	if err != nil || len(urls) != 1 || urls[0] != "https://fallback.example.com" {
		t.Errorf("fallback = %v, %v", urls, err)
	}

	acct := testAccount(t)
	ev, _ := ServerListEvent(acct, []string{"https://published.example.com"})
	urls, err = Servers(ev, s)
	if err != nil || urls[0] != "https://published.example.com" {
		t.Errorf("published list = %v, %v", urls, err)
	}

	if _, err := Servers(nil, nil); !errors.Is(err, ErrNoServers) {
		t.Errorf("empty = %v", err)
	}
}

func TestUpload(t *testing.T) {
	acct := testAccount(t)
	blob := []byte("hello media")
	sum := sha256.Sum256(blob)
	sha := hex.EncodeToString(sum[:])

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/upload" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		auth := decodeAuth(t, r.Header.Get("Authorization"))
		if auth.Kind != nostr.KindMediaAuth {
			t.Errorf("auth kind = %d", auth.Kind)
		}
		if auth.TagValue("t") != "upload" || auth.TagValue("x") != sha {
			t.Errorf("auth tags = %v", auth.Tags)
		}
		json.NewEncoder(w).Encode(Descriptor{
			URL: "https://cdn.example.com/" + sha, SHA256: sha, Size: int64(len(blob)),
		})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, acct)
	if err != nil {
		t.Fatal(err)
	}
	desc, err := c.Upload(context.Background(), blob, "text/plain")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if desc.SHA256 != sha || desc.Size != int64(len(blob)) {
		t.Errorf("descriptor = %+v", desc)
	}
}

func TestUpload_HashMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Descriptor{SHA256: strings.Repeat("0", 64)})
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, testAccount(t))
	_, err := c.Upload(context.Background(), []byte("blob"), "")
	if !errors.Is(err, ErrHashMismatch) {
		t.Errorf("err = %v, want ErrHashMismatch", err)
	}
}

func TestUpload_RetriesOn5xx(t *testing.T) {
	var calls int
	blob := []byte("retry me")
	sum := sha256.Sum256(blob)
	sha := hex.EncodeToString(sum[:])

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			http.Error(w, "try later", http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(Descriptor{SHA256: sha, Size: int64(len(blob))})
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, testAccount(t))
	if _, err := c.Upload(context.Background(), blob, ""); err != nil {
		t.Fatalf("Upload after retries: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestUpload_RejectedNotRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("X-Reason", "blob too big")
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, testAccount(t))
	_, err := c.Upload(context.Background(), []byte("blob"), "")

	var serr *ServerError
	if !errors.As(err, &serr) || serr.Status != http.StatusForbidden {
		t.Fatalf("err = %v", err)
	}
	if serr.Message != "blob too big" {
		t.Errorf("reason = %q", serr.Message)
	}
	if calls != 1 {
		t.Errorf("4xx retried: calls = %d", calls)
	}
}

func TestUpload_ReadOnlyAccount(t *testing.T) {
	acct := testAccount(t)
	viewer := &account.Account{PubKey: acct.PubKey}

	c, _ := NewClient("https://media.example.com", viewer)
	if _, err := c.Upload(context.Background(), []byte("x"), ""); !errors.Is(err, ErrReadOnly) {
		t.Errorf("err = %v, want ErrReadOnly", err)
	}
}

func TestMirror(t *testing.T) {
	sha := strings.Repeat("a", 64)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/mirror" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["url"] != "https://origin.example.com/"+sha {
			t.Errorf("mirror source = %q", body["url"])
		}
		json.NewEncoder(w).Encode(Descriptor{SHA256: sha})
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, testAccount(t))
	desc, err := c.Mirror(context.Background(), "https://origin.example.com/"+sha, sha)
	if err != nil {
		t.Fatalf("Mirror: %v", err)
	}
	if desc.SHA256 != sha {
		t.Errorf("descriptor = %+v", desc)
	}
}

func TestDownload(t *testing.T) {
	blob := []byte("downloaded bytes")
	sum := sha256.Sum256(blob)
	sha := hex.EncodeToString(sum[:])

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/"+sha {
			http.NotFound(w, r)
			return
		}
		w.Write(blob)
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, testAccount(t))
	got, err := c.Download(context.Background(), sha)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if string(got) != string(blob) {
		t.Errorf("blob = %q", got)
	}

	// Server returning different bytes must fail verification.
	_, err = c.Download(context.Background(), strings.Repeat("b", 64))
	var serr *ServerError
	if !errors.As(err, &serr) || serr.Status != http.StatusNotFound {
		t.Errorf("missing blob err = %v", err)
	}
}

func TestDownload_Corrupted(t *testing.T) {
	sha := strings.Repeat("c", 64)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not the blob you asked for"))
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, testAccount(t))
	if _, err := c.Download(context.Background(), sha); !errors.Is(err, ErrHashMismatch) {
		t.Errorf("err = %v, want ErrHashMismatch", err)
	}
}
