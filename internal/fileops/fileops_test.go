// internal/fileops/fileops_test.go
package fileops

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"autopatch/internal/backup"
	"autopatch/internal/events"
)

func newTestService(t *testing.T) (*Service, string) {
	t.Helper()
	root := t.TempDir()
	emitter := events.New("test-session", events.NopSink{})
	return NewService(root, emitter, nil), root
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return string(data)
}

func TestApplyChange_Idempotent(t *testing.T) {
	svc, root := newTestService(t)
	target := filepath.Join(root, "index.html")
	writeFile(t, target, "<h1>Hi</h1>")

	before, err := os.Stat(target)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}

	outcome, err := svc.ApplyChange("index.html", "<h1>Hi</h1>")
	if err != nil {
		t.Fatalf("ApplyChange failed: %v", err)
	}
	if outcome != "File index.html already has the requested content" {
		t.Errorf("unexpected outcome: %q", outcome)
	}

	after, err := os.Stat(target)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if !after.ModTime().Equal(before.ModTime()) {
		t.Error("identical content must not touch the filesystem")
	}
}

func TestApplyChange_WritesAndVerifies(t *testing.T) {
	svc, root := newTestService(t)
	target := filepath.Join(root, "index.html")
	writeFile(t, target, "<h1>Hi</h1>")

	newContent := "<h1>Hi</h1>\n<footer>bye</footer>"
	outcome, err := svc.ApplyChange("index.html", newContent)
	if err != nil {
		t.Fatalf("ApplyChange failed: %v", err)
	}
	if outcome != "Successfully updated index.html" {
		t.Errorf("unexpected outcome: %q", outcome)
	}

	if got := readFile(t, target); got != newContent {
		t.Errorf("file content = %q, want %q", got, newContent)
	}
}

func TestApplyChange_MissingFile(t *testing.T) {
	svc, root := newTestService(t)

	_, err := svc.ApplyChange("missing.txt", "content")
	if !errors.Is(err, ErrFileNotFound) {
		t.Fatalf("expected ErrFileNotFound, got %v", err)
	}

	// the mutator must never create files
	if _, statErr := os.Stat(filepath.Join(root, "missing.txt")); !os.IsNotExist(statErr) {
		t.Error("ApplyChange must not create the file")
	}
}

func TestApplyChange_AbsolutePathInsideRoot(t *testing.T) {
	svc, root := newTestService(t)
	target := filepath.Join(root, "app.js")
	writeFile(t, target, "old")

	if _, err := svc.ApplyChange(target, "new"); err != nil {
		t.Fatalf("ApplyChange with absolute path failed: %v", err)
	}
	if got := readFile(t, target); got != "new" {
		t.Errorf("file content = %q, want %q", got, "new")
	}
}

func TestResolve_RejectsEscapes(t *testing.T) {
	svc, _ := newTestService(t)

	cases := []string{
		"../outside.txt",
		"a/../../outside.txt",
		"/etc/passwd",
	}
	for _, path := range cases {
		if _, err := svc.Resolve(path); !errors.Is(err, ErrPathOutsideRoot) {
			t.Errorf("Resolve(%q): expected ErrPathOutsideRoot, got %v", path, err)
		}
	}
}

func TestApplyChange_SnapshotsOldContent(t *testing.T) {
	root := t.TempDir()
	backups := backup.NewStore(t.TempDir(), 3)
	emitter := events.New("snap-session", events.NopSink{})
	svc := NewService(root, emitter, backups)

	writeFile(t, filepath.Join(root, "a.txt"), "original")

	if _, err := svc.ApplyChange("a.txt", "replaced"); err != nil {
		t.Fatalf("ApplyChange failed: %v", err)
	}

	// The snapshot must record the resolved absolute path, even though the
	// change was requested with a project-relative name
	resolved := filepath.Join(root, "a.txt")
	snap, err := backups.Latest("snap-session", resolved)
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if snap.FilePath != resolved {
		t.Errorf("snapshot FilePath = %q, want %q", snap.FilePath, resolved)
	}
	content, err := backups.Content("snap-session", snap.ID)
	if err != nil {
		t.Fatalf("Content failed: %v", err)
	}
	if content != "original" {
		t.Errorf("snapshot content = %q, want original", content)
	}
}

func TestCreateFile_MakesParentDirs(t *testing.T) {
	svc, root := newTestService(t)

	outcome, err := svc.CreateFile("a/b/c.txt", "nested")
	if err != nil {
		t.Fatalf("CreateFile failed: %v", err)
	}
	if outcome != "Created new file: a/b/c.txt" {
		t.Errorf("unexpected outcome: %q", outcome)
	}

	if got := readFile(t, filepath.Join(root, "a", "b", "c.txt")); got != "nested" {
		t.Errorf("file content = %q, want nested", got)
	}
}

func TestCreateFile_OverwritesExisting(t *testing.T) {
	svc, root := newTestService(t)
	writeFile(t, filepath.Join(root, "exists.txt"), "old")

	if _, err := svc.CreateFile("exists.txt", "new"); err != nil {
		t.Fatalf("CreateFile failed: %v", err)
	}
	if got := readFile(t, filepath.Join(root, "exists.txt")); got != "new" {
		t.Errorf("file content = %q, want new", got)
	}
}

func TestReadFile(t *testing.T) {
	svc, root := newTestService(t)
	writeFile(t, filepath.Join(root, "readme.md"), "# Hello")

	content, err := svc.ReadFile("readme.md")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if content != "# Hello" {
		t.Errorf("content = %q", content)
	}

	if _, err := svc.ReadFile("nope.md"); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("expected ErrFileNotFound, got %v", err)
	}
}
