// Copyright (c) 2025 Nostria
// SPDX-License-Identifier: AGPL-3.0-or-later

package account

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nostria-app/nostria-go/internal/nostr"
)

func TestGenerateAndSign(t *testing.T) {
	a, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if a.ReadOnly() {
		t.Fatal("generated account should hold a private key")
	}

	ev := &nostr.Event{Kind: nostr.KindTextNote, Content: "hi"}
	if err := a.Sign(ev); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if ev.PubKey != a.PubKey {
		t.Errorf("signed pubkey = %s, want %s", ev.PubKey, a.PubKey)
	}
	if ev.CreatedAt == 0 {
		t.Error("Sign should stamp CreatedAt")
	}
	if ok, err := ev.Verify(); !ok {
		t.Errorf("Verify = %v, %v", ok, err)
	}
}

func TestImport(t *testing.T) {
	a, _ := Generate()
	nsec, _ := nostr.EncodeNsec(a.PrivKey)
	npub, _ := a.Npub()

	fromNsec, err := Import(nsec)
	if err != nil || fromNsec.PubKey != a.PubKey {
		t.Errorf("Import(nsec) = %+v, %v", fromNsec, err)
	}

	fromHex, err := Import(a.PrivKey)
	if err != nil || fromHex.PubKey != a.PubKey {
		t.Errorf("Import(hex) = %+v, %v", fromHex, err)
	}

	fromNpub, err := Import(npub)
	if err != nil {
		t.Fatalf("Import(npub): %v", err)
	}
	if !fromNpub.ReadOnly() {
		t.Error("npub import should be read-only")
	}
	if err := fromNpub.Sign(&nostr.Event{Kind: 1}); !errors.Is(err, ErrReadOnly) {
		t.Errorf("read-only Sign = %v, want ErrReadOnly", err)
	}

	if _, err := Import("garbage"); err == nil {
		t.Error("Import(garbage) should fail")
	}
}

func TestSaveLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keys.json")

	a, _ := Generate()
	if err := Save(path, a); err != nil {
		t.Fatalf("Save: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("key file mode = %o, want 0600", info.Mode().Perm())
	}

	back, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if back.PubKey != a.PubKey || back.PrivKey != a.PrivKey {
		t.Error("round trip lost key material")
	}
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if !errors.Is(err, ErrNoAccount) {
		t.Errorf("Load missing = %v, want ErrNoAccount", err)
	}
}

func TestLoad_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); !errors.Is(err, ErrBadKeyFile) {
		t.Errorf("Load corrupt = %v, want ErrBadKeyFile", err)
	}
}

func TestProfileRoundTrip(t *testing.T) {
	a, _ := Generate()
	p := &Profile{Name: "alice", DisplayName: "Alice", NIP05: "alice@example.com"}

	ev, err := a.ProfileEvent(p)
	if err != nil {
		t.Fatalf("ProfileEvent: %v", err)
	}
	if ev.Kind != nostr.KindMetadata {
		t.Errorf("kind = %d, want 0", ev.Kind)
	}

	back, err := ParseProfile(ev)
	if err != nil {
		t.Fatalf("ParseProfile: %v", err)
	}
	if back.Name != "alice" || back.DisplayName != "Alice" {
		t.Errorf("round trip = %+v", back)
	}

	if _, err := ParseProfile(&nostr.Event{Kind: 1, Content: "{}"}); err == nil {
		t.Error("ParseProfile should reject non-metadata kinds")
	}
	if !strings.Contains(back.BestName("?"), "Alice") {
		t.Errorf("BestName = %q", back.BestName("?"))
	}
	var nilProfile *Profile
	if nilProfile.BestName("fallback") != "fallback" {
		t.Error("nil profile BestName should fall back")
	}
}
