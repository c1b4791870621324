package persist

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStoreLoadMissing(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	roots, err := store.Roots()
	if err != nil {
		t.Fatalf("roots: %v", err)
	}
	if len(roots) != 0 {
		t.Fatalf("expected no roots, got %+v", roots)
	}
}

func TestStoreAddRemove(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.Add("/games/a", 10); err != nil {
		t.Fatalf("add a: %v", err)
	}
	if err := store.Add("/games/b", 11); err != nil {
		t.Fatalf("add b: %v", err)
	}
	if err := store.Add("/games/a", 12); err != nil {
		t.Fatalf("re-add a: %v", err)
	}

	reopened, err := NewStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	roots, err := reopened.Roots()
	if err != nil {
		t.Fatalf("roots: %v", err)
	}
	if len(roots) != 2 || roots[0].Path != "/games/b" || roots[1].Path != "/games/a" || roots[1].PID != 12 {
		t.Fatalf("unexpected roots: %+v", roots)
	}
	if roots[1].InjectedAt.IsZero() {
		t.Fatalf("expected injection time")
	}

	if err := reopened.Remove("/games/a"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := reopened.Remove("/games/missing"); err != nil {
		t.Fatalf("remove missing: %v", err)
	}
	roots, _ = reopened.Roots()
	if len(roots) != 1 || roots[0].Path != "/games/b" {
		t.Fatalf("unexpected roots after remove: %+v", roots)
	}
	info, err := os.Stat(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("stat state file: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600 state file, got %v", info.Mode().Perm())
	}
}

func TestStoreLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("roots: [unterminated"), 0o600); err != nil {
		t.Fatalf("write bad yaml: %v", err)
	}
	if _, err := store.Roots(); err == nil {
		t.Fatalf("expected error for invalid YAML")
	}
	if err := store.Add("/games/a", 1); err == nil {
		t.Fatalf("expected add to refuse overwriting an unreadable record")
	}
}

func TestNewStoreRequiresDir(t *testing.T) {
	if _, err := NewStore("  "); err == nil {
		t.Fatalf("expected error for empty dir")
	}
}
