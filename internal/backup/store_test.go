// internal/backup/store_test.go
package backup

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStore_SaveAndContent(t *testing.T) {
	store := NewStore(t.TempDir(), 3)

	snap, err := store.Save("session-001", "index.html", "<h1>Hi</h1>")
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if snap.Hash != Hash("<h1>Hi</h1>") {
		t.Errorf("unexpected hash: %s", snap.Hash)
	}
	if snap.Size != int64(len("<h1>Hi</h1>")) {
		t.Errorf("unexpected size: %d", snap.Size)
	}

	content, err := store.Content("session-001", snap.ID)
	if err != nil {
		t.Fatalf("Content failed: %v", err)
	}
	if content != "<h1>Hi</h1>" {
		t.Errorf("round trip mismatch: %q", content)
	}
}

func TestStore_DeduplicatesByHash(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, 3)

	if _, err := store.Save("s1", "a.txt", "same content"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := store.Save("s1", "b.txt", "same content"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "content_pool"))
	if err != nil {
		t.Fatalf("read pool failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("identical content should share one blob, got %d", len(entries))
	}

	snapshots, err := store.List("s1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(snapshots) != 2 {
		t.Errorf("expected 2 snapshot refs, got %d", len(snapshots))
	}
}

func TestStore_ListEmptySession(t *testing.T) {
	store := NewStore(t.TempDir(), 3)

	snapshots, err := store.List("no-such-session")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if snapshots != nil {
		t.Errorf("expected nil for unknown session, got %v", snapshots)
	}
}

func TestStore_Latest(t *testing.T) {
	store := NewStore(t.TempDir(), 3)

	if _, err := store.Save("s1", "a.txt", "v1"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := store.Save("s1", "a.txt", "v2"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := store.Save("s1", "other.txt", "x"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	latest, err := store.Latest("s1", "a.txt")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}

	content, err := store.Content("s1", latest.ID)
	if err != nil {
		t.Fatalf("Content failed: %v", err)
	}
	if content != "v2" {
		t.Errorf("expected latest snapshot content v2, got %q", content)
	}

	if _, err := store.Latest("s1", "missing.txt"); err == nil {
		t.Error("expected error for file without snapshots")
	}
}

func TestStore_Delete(t *testing.T) {
	store := NewStore(t.TempDir(), 3)

	snap, err := store.Save("s-del", "a.txt", "content")
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := store.Delete("s-del"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := store.Content("s-del", snap.ID); err == nil {
		t.Error("expected error reading deleted session snapshot")
	}
}

func TestHash(t *testing.T) {
	hash := Hash("test content")
	if len(hash) != 64 {
		t.Errorf("expected 64 char hash, got %d", len(hash))
	}
	if Hash("a") == Hash("b") {
		t.Error("different content should hash differently")
	}
}
