// internal/backup/store.go
package backup

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

// Snapshot describes one pre-mutation copy of a file
type Snapshot struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	FilePath  string    `json:"file_path"`
	Hash      string    `json:"hash"`
	Size      int64     `json:"size"`
	Timestamp time.Time `json:"timestamp"`
}

// Store persists pre-mutation file snapshots. Content is zstd-compressed and
// stored by hash so repeated snapshots of identical content share one blob.
type Store struct {
	baseDir string
	mu      sync.RWMutex
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewStore creates a snapshot store rooted at baseDir
func NewStore(baseDir string, compressionLevel int) *Store {
	encoder, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(compressionLevel)))
	decoder, _ := zstd.NewReader(nil)

	return &Store{
		baseDir: baseDir,
		encoder: encoder,
		decoder: decoder,
	}
}

func (s *Store) sessionDir(sessionID string) string {
	return filepath.Join(s.baseDir, "sessions", sessionID)
}

func (s *Store) poolDir() string {
	return filepath.Join(s.baseDir, "content_pool")
}

// Save snapshots the given content for a file about to be overwritten
func (s *Store) Save(sessionID, filePath, content string) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := &Snapshot{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		FilePath:  filePath,
		Hash:      Hash(content),
		Size:      int64(len(content)),
		Timestamp: time.Now(),
	}

	// Content-addressable: write the blob only if this hash is new
	if err := os.MkdirAll(s.poolDir(), 0755); err != nil {
		return nil, fmt.Errorf("create content pool: %w", err)
	}
	blobPath := filepath.Join(s.poolDir(), snapshot.Hash)
	if _, err := os.Stat(blobPath); os.IsNotExist(err) {
		compressed := s.encoder.EncodeAll([]byte(content), nil)
		if err := os.WriteFile(blobPath, compressed, 0644); err != nil {
			return nil, fmt.Errorf("write blob: %w", err)
		}
	}

	refsDir := s.sessionDir(sessionID)
	if err := os.MkdirAll(refsDir, 0755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	refJSON, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	refPath := filepath.Join(refsDir, snapshot.ID+".json")
	if err := os.WriteFile(refPath, refJSON, 0644); err != nil {
		return nil, fmt.Errorf("write snapshot ref: %w", err)
	}

	return snapshot, nil
}

// List returns all snapshots recorded for a session, oldest first
func (s *Store) List(sessionID string) ([]Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.sessionDir(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var snapshots []Snapshot
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		refJSON, err := os.ReadFile(filepath.Join(s.sessionDir(sessionID), entry.Name()))
		if err != nil {
			continue
		}

		var snap Snapshot
		if json.Unmarshal(refJSON, &snap) == nil {
			snapshots = append(snapshots, snap)
		}
	}

	sort.SliceStable(snapshots, func(i, j int) bool {
		return snapshots[i].Timestamp.Before(snapshots[j].Timestamp)
	})

	return snapshots, nil
}

// Content loads and decompresses the snapshotted content by snapshot ID
func (s *Store) Content(sessionID, snapshotID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	refPath := filepath.Join(s.sessionDir(sessionID), snapshotID+".json")
	refJSON, err := os.ReadFile(refPath)
	if err != nil {
		return "", fmt.Errorf("read snapshot ref: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(refJSON, &snap); err != nil {
		return "", fmt.Errorf("unmarshal snapshot ref: %w", err)
	}

	compressed, err := os.ReadFile(filepath.Join(s.poolDir(), snap.Hash))
	if err != nil {
		return "", fmt.Errorf("read blob: %w", err)
	}

	content, err := s.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return "", fmt.Errorf("decompress blob: %w", err)
	}

	return string(content), nil
}

// Latest returns the most recent snapshot of a given file within a session
func (s *Store) Latest(sessionID, filePath string) (*Snapshot, error) {
	snapshots, err := s.List(sessionID)
	if err != nil {
		return nil, err
	}

	for i := len(snapshots) - 1; i >= 0; i-- {
		if snapshots[i].FilePath == filePath {
			return &snapshots[i], nil
		}
	}
	return nil, fmt.Errorf("no snapshot of %s in session %s", filePath, sessionID)
}

// Delete removes all snapshot refs for a session (blobs stay pooled)
func (s *Store) Delete(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return os.RemoveAll(s.sessionDir(sessionID))
}

// Hash calculates the SHA256 hash of content
func Hash(content string) string {
	h := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%x", h)
}
