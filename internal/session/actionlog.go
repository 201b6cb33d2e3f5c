// internal/session/actionlog.go
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"autopatch/internal/config"
)

// ActionEntry is one line of the per-session action log
type ActionEntry struct {
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Message   string `json:"message,omitempty"`
}

// ActionLogger appends JSON-lines action records to log/<session>.jsonl
// inside the project being worked on
type ActionLogger struct {
	path string
}

// NewActionLogger creates a logger for one session's action log
func NewActionLogger(projectPath, sessionID string) *ActionLogger {
	return &ActionLogger{path: config.SessionLogPath(projectPath, sessionID)}
}

// Log appends one action record
func (l *ActionLogger) Log(actionType, message string) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}

	entry := ActionEntry{
		Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05Z"),
		Type:      actionType,
		Message:   message,
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal action entry: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open action log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write action log: %w", err)
	}
	return nil
}
