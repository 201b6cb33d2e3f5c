// internal/session/session.go
package session

import (
	"context"
	"sync"
	"time"

	"autopatch/internal/events"
	"autopatch/internal/fileops"
)

// Config describes one requested session
type Config struct {
	ProjectPath string `json:"project_path"`
	SessionID   string `json:"session_id,omitempty"`
	Instruction string `json:"instruction"`
}

// Result is returned to the caller after one full cycle
type Result struct {
	Success   bool   `json:"success"`
	Summary   string `json:"summary"`
	SessionID string `json:"session_id"`
}

// Status is a point-in-time view of a session
type Status struct {
	SessionID   string    `json:"session_id"`
	ProjectPath string    `json:"project_path"`
	Status      string    `json:"status"` // "running", "completed", "failed"
	StartedAt   time.Time `json:"started_at"`
}

// Planner is the planning surface the runner drives. The production
// implementation is planner.Planner; tests substitute a fake.
type Planner interface {
	Plan(ctx context.Context, files *fileops.Service, emitter *events.Emitter, instruction string) (string, error)
}

// Session tracks one in-flight or finished run
type Session struct {
	ID          string
	ProjectPath string
	Instruction string

	mu        sync.RWMutex
	status    string
	summary   string
	startedAt time.Time
	done      chan struct{}
}

func newSession(id, projectPath, instruction string) *Session {
	return &Session{
		ID:          id,
		ProjectPath: projectPath,
		Instruction: instruction,
		status:      "running",
		startedAt:   time.Now(),
		done:        make(chan struct{}),
	}
}

func (s *Session) finish(status, summary string) {
	s.mu.Lock()
	s.status = status
	s.summary = summary
	s.mu.Unlock()
	close(s.done)
}

// Wait blocks until the session reaches a terminal state
func (s *Session) Wait() {
	<-s.done
}

// GetStatus returns the current session status
func (s *Session) GetStatus() *Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &Status{
		SessionID:   s.ID,
		ProjectPath: s.ProjectPath,
		Status:      s.status,
		StartedAt:   s.startedAt,
	}
}

// Summary returns the session summary, empty until the session finishes
func (s *Session) Summary() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summary
}
