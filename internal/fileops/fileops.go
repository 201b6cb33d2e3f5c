// internal/fileops/fileops.go
package fileops

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"autopatch/internal/backup"
	"autopatch/internal/events"
)

// Error kinds surfaced by the mutation pipeline. VerificationFailed is
// deliberately distinct from a plain I/O failure: the write syscall succeeded
// but the re-read content disagrees with what was written.
var (
	ErrFileNotFound       = errors.New("file not found")
	ErrVerificationFailed = errors.New("write verification failed")
	ErrPathOutsideRoot    = errors.New("path outside project root")
)

// Service is the single verified write path for one session. Every mutation
// goes through it: existence checks, idempotence, snapshot, write, re-read.
type Service struct {
	root    string
	emitter *events.Emitter
	backups *backup.Store
}

// NewService creates a file service rooted at the project directory.
// The backup store may be nil, in which case no snapshots are taken.
func NewService(root string, emitter *events.Emitter, backups *backup.Store) *Service {
	return &Service{
		root:    filepath.Clean(root),
		emitter: emitter,
		backups: backups,
	}
}

// Resolve turns a model-supplied path into an absolute path inside the project
// root. Absolute paths are accepted only when they already point inside the
// root; relative paths must not escape it. Nothing on disk is touched.
func (s *Service) Resolve(path string) (string, error) {
	resolved := path
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(s.root, resolved)
	}
	resolved = filepath.Clean(resolved)

	rel, err := filepath.Rel(s.root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %s", ErrPathOutsideRoot, path)
	}
	return resolved, nil
}

// ApplyChange overwrites an existing file with newContent and verifies the
// write landed. It never creates files. Unchanged content is a no-op.
func (s *Service) ApplyChange(path, newContent string) (string, error) {
	s.emitter.FileOp(events.OpPatch, path, events.StatusStarted)
	s.emitter.Log(fmt.Sprintf("Applying changes to: %s", path), events.LevelInfo)

	outcome, err := s.applyChange(path, newContent)
	if err != nil {
		s.emitter.FileOp(events.OpPatch, path, events.StatusFailed)
		s.emitter.Log(fmt.Sprintf("Failed to update %s: %v", path, err), events.LevelError)
		return "", err
	}

	s.emitter.FileOp(events.OpPatch, path, events.StatusCompleted)
	return outcome, nil
}

func (s *Service) applyChange(path, newContent string) (string, error) {
	resolved, err := s.Resolve(path)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrFileNotFound, resolved)
		}
		return "", fmt.Errorf("stat %s: %w", resolved, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrFileNotFound, resolved)
	}

	current, err := os.ReadFile(resolved)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", resolved, err)
	}

	// Idempotence: identical content never touches the filesystem
	if string(current) == newContent {
		s.emitter.Log(fmt.Sprintf("File content unchanged: %s", path), events.LevelInfo)
		return fmt.Sprintf("File %s already has the requested content", path), nil
	}

	if s.backups != nil {
		// Snapshots record the resolved absolute path so a later restore
		// targets the project file, not whatever the relative name means
		// in the restoring process's working directory.
		if _, err := s.backups.Save(s.emitter.SessionID(), resolved, string(current)); err != nil {
			s.emitter.Log(fmt.Sprintf("Snapshot failed for %s: %v", path, err), events.LevelWarning)
		}
	}

	if err := os.WriteFile(resolved, []byte(newContent), info.Mode().Perm()); err != nil {
		return "", fmt.Errorf("write %s: %w", resolved, err)
	}

	if err := s.verify(resolved, newContent); err != nil {
		return "", err
	}

	s.emitter.Log(fmt.Sprintf("Successfully updated %s", path), events.LevelSuccess)
	return fmt.Sprintf("Successfully updated %s", path), nil
}

// CreateFile writes a brand-new file, creating parent directories as needed.
// An existing file at the path is overwritten; there is no exclusivity check.
func (s *Service) CreateFile(path, content string) (string, error) {
	s.emitter.FileOp(events.OpCreate, path, events.StatusStarted)
	s.emitter.Log(fmt.Sprintf("Creating new file: %s", path), events.LevelInfo)

	outcome, err := s.createFile(path, content)
	if err != nil {
		s.emitter.FileOp(events.OpCreate, path, events.StatusFailed)
		s.emitter.Log(fmt.Sprintf("Failed to create file %s: %v", path, err), events.LevelError)
		return "", err
	}

	s.emitter.FileOp(events.OpCreate, path, events.StatusCompleted)
	return outcome, nil
}

func (s *Service) createFile(path, content string) (string, error) {
	resolved, err := s.Resolve(path)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0755); err != nil {
		return "", fmt.Errorf("create parent dirs for %s: %w", resolved, err)
	}

	if err := os.WriteFile(resolved, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("write %s: %w", resolved, err)
	}

	if err := s.verify(resolved, content); err != nil {
		return "", err
	}

	s.emitter.Log(fmt.Sprintf("Successfully created file: %s", path), events.LevelSuccess)
	return fmt.Sprintf("Created new file: %s", path), nil
}

// ReadFile reads a file inside the project root, bracketed by read events
func (s *Service) ReadFile(path string) (string, error) {
	s.emitter.FileOp(events.OpRead, path, events.StatusStarted)

	resolved, err := s.Resolve(path)
	if err != nil {
		s.emitter.FileOp(events.OpRead, path, events.StatusFailed)
		return "", err
	}

	content, err := os.ReadFile(resolved)
	if err != nil {
		s.emitter.FileOp(events.OpRead, path, events.StatusFailed)
		s.emitter.Log(fmt.Sprintf("Failed to read file %s: %v", path, err), events.LevelError)
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrFileNotFound, resolved)
		}
		return "", fmt.Errorf("read %s: %w", resolved, err)
	}

	s.emitter.FileOp(events.OpRead, path, events.StatusCompleted)
	return string(content), nil
}

// verify re-reads the path and compares against the intended content,
// converting "write succeeded" from an assumption into a checked postcondition
func (s *Service) verify(resolved, want string) error {
	got, err := os.ReadFile(resolved)
	if err != nil {
		return fmt.Errorf("verification read %s: %w", resolved, err)
	}
	if string(got) != want {
		return fmt.Errorf("%w: %s (wrote %d bytes, read back %d)",
			ErrVerificationFailed, resolved, len(want), len(got))
	}
	return nil
}

// Root returns the project root the service operates on
func (s *Service) Root() string {
	return s.root
}
