package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"
	"testing"
)

func newTestLocalStorage(t *testing.T) *LocalStorage {
	t.Helper()
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create local storage: %v", err)
	}
	return storage
}

func TestLocalStorageSaveAndOpen(t *testing.T) {
	storage := newTestLocalStorage(t)
	content := "This agreement may be terminated by either party."

	stored, err := storage.Save(context.Background(), strings.NewReader(content), "contract.txt", nil)
	if err != nil {
		t.Fatalf("Failed to save: %v", err)
	}

	if stored.Backend != LocalBackend {
		t.Errorf("Expected backend %s, got %s", LocalBackend, stored.Backend)
	}
	if stored.SizeBytes != int64(len(content)) {
		t.Errorf("Expected size %d, got %d", len(content), stored.SizeBytes)
	}

	sum := sha256.Sum256([]byte(content))
	if stored.SHA256Hex != hex.EncodeToString(sum[:]) {
		t.Errorf("Expected hash %s, got %s", hex.EncodeToString(sum[:]), stored.SHA256Hex)
	}

	rc, err := storage.Open(context.Background(), stored.Key)
	if err != nil {
		t.Fatalf("Failed to open: %v", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("Failed to read: %v", err)
	}
	if string(data) != content {
		t.Errorf("Round trip mismatch: got %q", string(data))
	}
}

func TestLocalStorageSaveWithPrefix(t *testing.T) {
	storage := newTestLocalStorage(t)
	prefix := []byte("Prefix already read by the sniffer. ")
	rest := "Remainder of the document."
	full := string(prefix) + rest

	stored, err := storage.Save(context.Background(), strings.NewReader(rest), "contract.md", prefix)
	if err != nil {
		t.Fatalf("Failed to save: %v", err)
	}

	// The prefix counts toward size and hash without being re-read.
	if stored.SizeBytes != int64(len(full)) {
		t.Errorf("Expected size %d, got %d", len(full), stored.SizeBytes)
	}
	sum := sha256.Sum256([]byte(full))
	if stored.SHA256Hex != hex.EncodeToString(sum[:]) {
		t.Errorf("Expected hash of prefix+rest, got %s", stored.SHA256Hex)
	}

	rc, err := storage.Open(context.Background(), stored.Key)
	if err != nil {
		t.Fatalf("Failed to open: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != full {
		t.Errorf("Expected stored bytes to start with the prefix, got %q", string(data))
	}
}

func TestLocalStorageLargeStream(t *testing.T) {
	storage := newTestLocalStorage(t)

	// Larger than one chunk, to cross the chunked-copy boundary.
	content := bytes.Repeat([]byte("clause text "), 200_000) // ~2.4 MB

	stored, err := storage.Save(context.Background(), bytes.NewReader(content), "big.txt", nil)
	if err != nil {
		t.Fatalf("Failed to save: %v", err)
	}
	if stored.SizeBytes != int64(len(content)) {
		t.Errorf("Expected size %d, got %d", len(content), stored.SizeBytes)
	}
	sum := sha256.Sum256(content)
	if stored.SHA256Hex != hex.EncodeToString(sum[:]) {
		t.Error("Hash mismatch on chunked write")
	}
}

func TestLocalStorageOpenMissingKey(t *testing.T) {
	storage := newTestLocalStorage(t)
	if _, err := storage.Open(context.Background(), "no-such-key.txt"); err == nil {
		t.Error("Expected error opening missing blob")
	}
}

func TestNewObjectKeyOpaque(t *testing.T) {
	k1 := newObjectKey("contract.txt")
	k2 := newObjectKey("contract.txt")

	if k1 == k2 {
		t.Error("Expected unique keys per upload")
	}
	if !strings.HasSuffix(k1, ".txt") {
		t.Errorf("Expected key to keep the extension, got %s", k1)
	}
	if strings.Contains(k1, "contract") {
		t.Errorf("Expected key not to leak the filename, got %s", k1)
	}
}

func TestNewObjectKeyTruncatesLongExtension(t *testing.T) {
	key := newObjectKey("weird.reallyreallylongextension")
	// 32 hex chars plus at most 10 bytes of extension.
	if len(key) > 42 {
		t.Errorf("Expected extension truncated to %d chars, key %s", maxKeyExtLen, key)
	}
}

func TestNewObjectKeyNoExtension(t *testing.T) {
	key := newObjectKey("README")
	if len(key) != 32 {
		t.Errorf("Expected bare 32-char key, got %s", key)
	}
}
