// internal/session/manager.go
package session

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"autopatch/internal/backup"
	"autopatch/internal/events"
	"autopatch/internal/fileops"
	"autopatch/internal/gitinfo"
	"autopatch/internal/store"
)

// Manager runs sessions and tracks their lifecycle
type Manager struct {
	ctx      context.Context
	planner  Planner
	store    *store.Store
	backups  *backup.Store
	sessions map[string]*Session
	mu       sync.RWMutex
}

// NewManager creates a session manager. store and backups may be nil.
func NewManager(ctx context.Context, planner Planner, st *store.Store, backups *backup.Store) *Manager {
	return &Manager{
		ctx:      ctx,
		planner:  planner,
		store:    st,
		backups:  backups,
		sessions: make(map[string]*Session),
	}
}

// Run executes one full session cycle synchronously and returns its Result
func (m *Manager) Run(cfg Config, sink events.Sink) Result {
	sessionID := cfg.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	emitter := events.New(sessionID, sink)
	emitter.Log("Agent starting validation checks", events.LevelInfo)

	info, err := os.Stat(cfg.ProjectPath)
	if err != nil || !info.IsDir() {
		msg := fmt.Sprintf("Error: project_root '%s' is not a valid directory.", cfg.ProjectPath)
		emitter.Log(msg, events.LevelError)
		m.record(&store.SessionRecord{
			ID:          sessionID,
			ProjectPath: cfg.ProjectPath,
			Instruction: cfg.Instruction,
			Status:      "failed",
			Summary:     msg,
			StartedAt:   time.Now(),
		})
		return Result{Success: false, Summary: msg, SessionID: sessionID}
	}

	emitter.Log(fmt.Sprintf("Project directory validated: %s", cfg.ProjectPath), events.LevelSuccess)

	sess := newSession(sessionID, cfg.ProjectPath, cfg.Instruction)
	m.mu.Lock()
	m.sessions[sessionID] = sess
	m.mu.Unlock()

	branch := m.inspectGit(cfg.ProjectPath, emitter)
	m.record(&store.SessionRecord{
		ID:          sessionID,
		ProjectPath: cfg.ProjectPath,
		Instruction: cfg.Instruction,
		Status:      "running",
		Branch:      branch,
		StartedAt:   sess.startedAt,
	})

	actions := NewActionLogger(cfg.ProjectPath, sessionID)
	m.logAction(actions, sessionID, "session_started", cfg.Instruction)

	emitter.Log("Starting agent session...", events.LevelInfo)

	files := fileops.NewService(cfg.ProjectPath, emitter, m.backups)
	summary, err := m.planner.Plan(m.ctx, files, emitter, cfg.Instruction)
	if err != nil {
		msg := fmt.Sprintf("Agent execution failed: %v", err)
		emitter.Log(msg, events.LevelError)
		emitter.Error(msg)
		sess.finish("failed", msg)
		m.finish(sessionID, "failed", msg)
		m.logAction(actions, sessionID, "session_failed", err.Error())
		return Result{Success: false, Summary: msg, SessionID: sessionID}
	}

	emitter.Log("Agent execution summary ready", events.LevelSuccess)
	emitter.Complete(summary)
	sess.finish("completed", summary)
	m.finish(sessionID, "completed", summary)
	m.logAction(actions, sessionID, "session_completed", "")

	return Result{Success: true, Summary: summary, SessionID: sessionID}
}

// Start runs a session on its own goroutine and returns its ID immediately
func (m *Manager) Start(cfg Config, sink events.Sink) string {
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.New().String()
	}

	go func() {
		result := m.Run(cfg, sink)
		log.Printf("[Session] %s finished: success=%v", result.SessionID, result.Success)
	}()

	return cfg.SessionID
}

// GetStatus returns the status of a known session
func (m *Manager) GetStatus(sessionID string) (*Status, error) {
	m.mu.RLock()
	sess, ok := m.sessions[sessionID]
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("session not found: %s", sessionID)
	}
	return sess.GetStatus(), nil
}

// List returns the status of every session this manager has seen
func (m *Manager) List() []*Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	statuses := make([]*Status, 0, len(m.sessions))
	for _, sess := range m.sessions {
		statuses = append(statuses, sess.GetStatus())
	}
	return statuses
}

// inspectGit logs the repository state; projects outside git are fine
func (m *Manager) inspectGit(projectPath string, emitter *events.Emitter) string {
	info, err := gitinfo.Inspect(projectPath)
	if err != nil {
		emitter.Log(fmt.Sprintf("Git inspection failed: %v", err), events.LevelWarning)
		return ""
	}
	if info == nil {
		return ""
	}

	if info.Branch != "" {
		emitter.Log(fmt.Sprintf("Git branch: %s", info.Branch), events.LevelInfo)
	}
	if !info.IsClean {
		emitter.Log("Working tree has uncommitted changes", events.LevelWarning)
	}
	return info.Branch
}

func (m *Manager) record(rec *store.SessionRecord) {
	if m.store == nil {
		return
	}
	if err := m.store.SaveSession(rec); err != nil {
		log.Printf("[Session] Failed to save session record: %v", err)
	}
}

func (m *Manager) finish(sessionID, status, summary string) {
	if m.store == nil {
		return
	}
	if err := m.store.FinishSession(sessionID, status, summary); err != nil {
		log.Printf("[Session] Failed to finish session record: %v", err)
	}
}

func (m *Manager) logAction(actions *ActionLogger, sessionID, actionType, message string) {
	if err := actions.Log(actionType, message); err != nil {
		log.Printf("[Session] Failed to write action log: %v", err)
	}
	if m.store != nil {
		if err := m.store.LogAction(sessionID, actionType, message); err != nil {
			log.Printf("[Session] Failed to store action: %v", err)
		}
	}
}
