package fsutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteFileAtomicReplaces(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "file.txt")
	if err := WriteFileAtomic(path, []byte("one"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := WriteFileAtomic(path, []byte("two"), 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "two" {
		t.Fatalf("expected two, got %q (%v)", data, err)
	}
	if mode := FileMode(path, 0o644); mode != 0o600 {
		t.Fatalf("expected 0600, got %v", mode)
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("expected no temp files left, got %d entries", len(entries))
	}
}

func TestFileModeFallback(t *testing.T) {
	if mode := FileMode(filepath.Join(t.TempDir(), "missing"), 0o640); mode != 0o640 {
		t.Fatalf("expected fallback, got %v", mode)
	}
}
