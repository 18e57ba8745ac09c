// Copyright (c) 2025 Nostria
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"
)

// =============================================================================
// ATOMIC WRITE TESTS
// =============================================================================

func TestAtomicWriteFile_Basic(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "test.txt")
	data := []byte("hello, world!")

	err := AtomicWriteFile(path, data, 0644)
	if err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if string(content) != string(data) {
		t.Errorf("Content mismatch: got %q, want %q", string(content), string(data))
	}
}

func TestAtomicWriteFile_CreatesParentDir(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "subdir", "deep", "test.txt")

	if err := AtomicWriteFile(path, []byte("test data"), 0644); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("File not created: %v", err)
	}
}

func TestAtomicWriteFile_Overwrites(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "test.txt")

	if err := AtomicWriteFile(path, []byte("initial"), 0644); err != nil {
		t.Fatalf("First write failed: %v", err)
	}
	if err := AtomicWriteFile(path, []byte("updated"), 0644); err != nil {
		t.Fatalf("Second write failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if string(content) != "updated" {
		t.Errorf("Content not updated: got %q", string(content))
	}
}

func TestAtomicWriteFile_Permissions(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "secret.txt")

	if err := AtomicWriteFile(path, []byte("key material"), 0600); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("Permissions: got %o, want 0600", perm)
	}
}

func TestAtomicWriteFile_LargeData(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "large.bin")
	data := bytes.Repeat([]byte("x"), 1<<20)

	if err := AtomicWriteFile(path, data, 0644); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(content, data) {
		t.Error("Large write round-trip mismatch")
	}
}

func TestAtomicWriteFile_NoTempLeftover(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "clean.txt")

	if err := AtomicWriteFile(path, []byte("data"), 0644); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(tempDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("Leftover temp files: %v", entries)
	}
}

// =============================================================================
// STRING TESTS
// =============================================================================

func TestTruncateRunes_ASCII(t *testing.T) {
	tests := []struct {
		input    string
		maxRunes int
		want     string
	}{
		{"hello", 10, "hello"},
		{"hello world", 8, "hello..."},
		{"hello", 5, "hello"},
		{"hello", 3, "hel"},
		{"hello", 0, ""},
		{"", 5, ""},
	}

	for _, tt := range tests {
		if got := TruncateRunes(tt.input, tt.maxRunes); got != tt.want {
			t.Errorf("TruncateRunes(%q, %d) = %q, want %q", tt.input, tt.maxRunes, got, tt.want)
		}
	}
}

func TestTruncateRunes_UTF8(t *testing.T) {
	// Each character is multi-byte; truncation must not split them.
	input := "こんにちは世界"
	got := TruncateRunes(input, 6)
	want := "こんに..."
	if got != want {
		t.Errorf("TruncateRunes(%q, 6) = %q, want %q", input, got, want)
	}

	// No truncation needed.
	if got := TruncateRunes(input, 7); got != input {
		t.Errorf("TruncateRunes(%q, 7) = %q", input, got)
	}
}

func TestFirstLine(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"one line", "one line"},
		{"first\nsecond", "first"},
		{"first\r\nsecond", "first"},
		{"\nleading", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := FirstLine(tt.input); got != tt.want {
			t.Errorf("FirstLine(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestRuneLen(t *testing.T) {
	if got := RuneLen("héllo"); got != 5 {
		t.Errorf("RuneLen(héllo) = %d, want 5", got)
	}
	if got := RuneLen("日本語"); got != 3 {
		t.Errorf("RuneLen(日本語) = %d, want 3", got)
	}
}

// =============================================================================
// CONVERSION TESTS
// =============================================================================

func TestToInt(t *testing.T) {
	if v, ok := ToInt(42); !ok || v != 42 {
		t.Errorf("ToInt(42) = %d, %v", v, ok)
	}
	if v, ok := ToInt(-7); !ok || v != -7 {
		t.Errorf("ToInt(-7) = %d, %v", v, ok)
	}
	if v, ok := ToInt(math.MaxInt64); ok != (math.MaxInt64 <= math.MaxInt) {
		t.Errorf("ToInt(MaxInt64) = %d, %v", v, ok)
	}
}

func TestMBToBytes(t *testing.T) {
	tests := []struct {
		mb   int
		want int64
	}{
		{0, 0},
		{-5, 0},
		{1, 1 << 20},
		{100, 100 << 20},
	}
	for _, tt := range tests {
		if got := MBToBytes(tt.mb); got != tt.want {
			t.Errorf("MBToBytes(%d) = %d, want %d", tt.mb, got, tt.want)
		}
	}
	if got := MBToBytes(math.MaxInt); got != math.MaxInt64 {
		t.Errorf("MBToBytes(MaxInt) = %d, want clamp to MaxInt64", got)
	}
}
