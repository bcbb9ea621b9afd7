package security

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// =============================================================================
// Key generation and derivation
// =============================================================================

func TestGenerateKey(t *testing.T) {
	key, err := GenerateKey(KeySize)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	if len(key) != KeySize {
		t.Fatalf("key length = %d, want %d", len(key), KeySize)
	}
	if err := ValidateKeyStrength(key); err != nil {
		t.Errorf("generated key failed strength check: %v", err)
	}
}

func TestGenerateKeyTooSmall(t *testing.T) {
	if _, err := GenerateKey(8); err == nil {
		t.Fatal("expected error for undersized key")
	}
}

func TestDeriveKeyDeterministic(t *testing.T) {
	master, _ := GenerateKey(KeySize)

	a, err := DeriveKey(master, "history-at-rest", KeySize)
	if err != nil {
		t.Fatalf("DeriveKey failed: %v", err)
	}
	b, _ := DeriveKey(master, "history-at-rest", KeySize)
	if !bytes.Equal(a, b) {
		t.Error("same label must derive the same key")
	}

	c, _ := DeriveKey(master, "other-label", KeySize)
	if bytes.Equal(a, c) {
		t.Error("different labels must derive different keys")
	}
}

func TestValidateKeyStrength(t *testing.T) {
	if err := ValidateKeyStrength(make([]byte, KeySize)); err == nil {
		t.Error("all-zero key should be rejected")
	}
	if err := ValidateKeyStrength([]byte{1, 2, 3}); err == nil {
		t.Error("short key should be rejected")
	}
}

func TestSecureCompare(t *testing.T) {
	a := []byte("same")
	if !SecureCompare(a, []byte("same")) {
		t.Error("equal slices should compare true")
	}
	if SecureCompare(a, []byte("diff")) {
		t.Error("different slices should compare false")
	}
}

// =============================================================================
// Key file
// =============================================================================

func TestLoadOrCreateKeyFileIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.json")

	first, err := LoadOrCreateKeyFile(path)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	second, err := LoadOrCreateKeyFile(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	if !bytes.Equal(first.Key, second.Key) {
		t.Error("repeated loads must return byte-identical key material")
	}
	if first.InstallID != second.InstallID {
		t.Error("install id must be stable across loads")
	}
}

func TestKeyFilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permission bits")
	}
	path := filepath.Join(t.TempDir(), "key.json")

	if _, err := LoadOrCreateKeyFile(path); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("key file permissions = %o, want 0600", perm)
	}
}

func TestParseKeyFileRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.json")
	if err := os.WriteFile(path, []byte("not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadOrCreateKeyFile(path); err == nil {
		t.Fatal("expected error for corrupt key file")
	}
}
