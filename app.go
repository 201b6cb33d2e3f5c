// app.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"autopatch/internal/backup"
	"autopatch/internal/config"
	"autopatch/internal/events"
	"autopatch/internal/gitinfo"
	"autopatch/internal/lint"
	"autopatch/internal/planner"
	"autopatch/internal/scanner"
	"autopatch/internal/session"
	"autopatch/internal/store"
	"autopatch/internal/watcher"
)

const watchDebounce = 300 * time.Millisecond

// App struct contains the core application state and managers
type App struct {
	ctx    context.Context
	config *config.Config

	db       *store.Store
	backups  *backup.Store
	sessions *session.Manager

	mu        sync.RWMutex
	broadcast events.Sink

	watcherMu sync.Mutex
	watchers  map[string]*watcher.Watcher
}

// NewApp creates a new App application struct
func NewApp() *App {
	return &App{
		broadcast: events.NopSink{},
		watchers:  make(map[string]*watcher.Watcher),
	}
}

// Startup initializes config, storage and the session manager
func (a *App) Startup(ctx context.Context) error {
	a.ctx = ctx

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.config = cfg

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		// Sessions still run without history, so keep going
		log.Printf("[App] failed to open database: %v", err)
	} else {
		a.db = db
	}

	a.backups = backup.NewStore(cfg.BackupDir, cfg.Compression)

	if cfg.APIKey == "" {
		log.Printf("[App] GEMINI_API_KEY not set, sessions are disabled")
	} else {
		llm, err := planner.NewLLM(ctx, cfg.APIKey)
		if err != nil {
			return fmt.Errorf("create model client: %w", err)
		}
		p := planner.New(llm, cfg.Model, cfg.MaxTurns, cfg.LintEnabled)
		a.sessions = session.NewManager(ctx, p, a.db, a.backups)
	}

	log.Printf("[App] autopatch started, model %s", cfg.Model)
	return nil
}

// Shutdown stops watchers and closes storage
func (a *App) Shutdown(ctx context.Context) {
	a.watcherMu.Lock()
	for path, w := range a.watchers {
		if err := w.Close(); err != nil {
			log.Printf("[App] failed to close watcher for %s: %v", path, err)
		}
	}
	a.watchers = make(map[string]*watcher.Watcher)
	a.watcherMu.Unlock()

	if a.db != nil {
		a.db.Close()
	}

	log.Printf("[App] autopatch shutdown complete")
}

// Config returns the resolved configuration
func (a *App) Config() *config.Config {
	return a.config
}

// SetBroadcaster 设置事件广播器（用于 WebSocket 模式）
func (a *App) SetBroadcaster(sink events.Sink) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if sink == nil {
		sink = events.NopSink{}
	}
	a.broadcast = sink
}

func (a *App) broadcaster() events.Sink {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.broadcast
}

// RunSession runs one full agent cycle and blocks until it finishes.
// Events stream to the calling client's sink while the cycle runs.
func (a *App) RunSession(sink events.Sink, cfg session.Config) (session.Result, error) {
	if a.sessions == nil {
		return session.Result{}, fmt.Errorf("sessions are disabled: GEMINI_API_KEY not set")
	}
	return a.sessions.Run(cfg, sink), nil
}

// StartSession launches an agent cycle in the background and returns
// its session ID immediately.
func (a *App) StartSession(sink events.Sink, cfg session.Config) (string, error) {
	if a.sessions == nil {
		return "", fmt.Errorf("sessions are disabled: GEMINI_API_KEY not set")
	}
	return a.sessions.Start(cfg, sink), nil
}

// GetSessionStatus reports the state of an in-memory session
func (a *App) GetSessionStatus(sessionID string) (*session.Status, error) {
	if a.sessions == nil {
		return nil, fmt.Errorf("sessions are disabled: GEMINI_API_KEY not set")
	}
	return a.sessions.GetStatus(sessionID)
}

// ListSessions returns recorded sessions, newest first
func (a *App) ListSessions() ([]*store.SessionRecord, error) {
	if a.db == nil {
		return nil, fmt.Errorf("session history is unavailable")
	}
	return a.db.ListSessions()
}

// ListActions returns the recorded actions of one session
func (a *App) ListActions(sessionID string) ([]*store.ActionRecord, error) {
	if a.db == nil {
		return nil, fmt.Errorf("session history is unavailable")
	}
	return a.db.ListActions(sessionID)
}

// ProjectScan is the result of scanning a project directory
type ProjectScan struct {
	ProjectPath string       `json:"project_path"`
	Tree        scanner.Tree `json:"tree"`
	Rendered    string       `json:"rendered"`
	ProjectType string       `json:"project_type"`
	GitBranch   string       `json:"git_branch,omitempty"`
	GitClean    bool         `json:"git_clean,omitempty"`
}

// ScanProject walks a project directory and reports its layout
func (a *App) ScanProject(sink events.Sink, projectPath string) (*ProjectScan, error) {
	emitter := events.New("", sink)

	tree, err := scanner.Scan(projectPath, emitter)
	if err != nil {
		return nil, err
	}

	result := &ProjectScan{
		ProjectPath: projectPath,
		Tree:        tree,
		Rendered:    scanner.RenderTree(projectPath),
		ProjectType: lint.DetectProjectType(tree),
	}

	if info, err := gitinfo.Inspect(projectPath); err == nil && info != nil {
		result.GitBranch = info.Branch
		result.GitClean = info.IsClean
	}

	return result, nil
}

// ListBackups returns the snapshots taken during one session
func (a *App) ListBackups(sessionID string) ([]backup.Snapshot, error) {
	return a.backups.List(sessionID)
}

// RestoreBackup writes a snapshot's content back to its original path
// and returns the restored file path.
func (a *App) RestoreBackup(sessionID, snapshotID string) (string, error) {
	snapshots, err := a.backups.List(sessionID)
	if err != nil {
		return "", err
	}

	var target *backup.Snapshot
	for i := range snapshots {
		if snapshots[i].ID == snapshotID {
			target = &snapshots[i]
			break
		}
	}
	if target == nil {
		return "", fmt.Errorf("snapshot %s not found in session %s", snapshotID, sessionID)
	}

	content, err := a.backups.Content(sessionID, snapshotID)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(target.FilePath), 0755); err != nil {
		return "", fmt.Errorf("failed to restore %s: %w", target.FilePath, err)
	}
	if err := os.WriteFile(target.FilePath, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to restore %s: %w", target.FilePath, err)
	}

	return target.FilePath, nil
}

// WatchProject 开始监听指定项目的文件变化
func (a *App) WatchProject(projectPath string) error {
	key := filepath.Clean(projectPath)

	a.watcherMu.Lock()
	defer a.watcherMu.Unlock()

	if _, exists := a.watchers[key]; exists {
		return fmt.Errorf("already watching %s", key)
	}

	w, err := watcher.New(key, watchDebounce, func(c watcher.Change) {
		a.broadcaster().Publish("project:changed", c)
	})
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		w.Close()
		return err
	}

	a.watchers[key] = w
	return nil
}

// UnwatchProject 停止监听指定项目
func (a *App) UnwatchProject(projectPath string) error {
	key := filepath.Clean(projectPath)

	a.watcherMu.Lock()
	defer a.watcherMu.Unlock()

	w, exists := a.watchers[key]
	if !exists {
		return fmt.Errorf("not watching %s", key)
	}

	delete(a.watchers, key)
	return w.Close()
}
