// internal/watcher/watcher.go
package watcher

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"autopatch/internal/scanner"
)

// ChangeType classifies a file system change inside a watched project.
type ChangeType string

const (
	ChangeCreate ChangeType = "create"
	ChangeModify ChangeType = "modify"
	ChangeDelete ChangeType = "delete"
	ChangeRename ChangeType = "rename"
)

// Change is a single debounced file system change.
type Change struct {
	ProjectPath string     `json:"project_path"`
	FilePath    string     `json:"file_path"`
	Type        ChangeType `json:"change"`
	Timestamp   string     `json:"timestamp"`
}

// Watcher watches a project tree and reports debounced changes.
// Directories on the scanner ignore list are never watched.
type Watcher struct {
	root     string
	debounce time.Duration
	callback func(Change)
	watcher  *fsnotify.Watcher
	done     chan struct{}
	started  bool
	closed   bool
	mu       sync.Mutex

	timers  map[string]*time.Timer
	timerMu sync.Mutex
}

// New creates a Watcher rooted at projectPath. Every subdirectory that is
// not on the ignore list is registered with fsnotify up front.
func New(projectPath string, debounce time.Duration, callback func(Change)) (*Watcher, error) {
	info, err := os.Stat(projectPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat project path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project path %s is not a directory", projectPath)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		root:     filepath.Clean(projectPath),
		debounce: debounce,
		callback: callback,
		watcher:  fsw,
		done:     make(chan struct{}),
		timers:   make(map[string]*time.Timer),
	}

	if err := w.addTree(w.root); err != nil {
		fsw.Close()
		return nil, err
	}

	return w, nil
}

// Root returns the watched project path.
func (w *Watcher) Root() string {
	return w.root
}

// Start begins delivering changes to the callback.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("watcher is closed")
	}
	if w.started {
		return fmt.Errorf("watcher already started")
	}
	w.started = true

	go w.watch()

	return nil
}

// Close stops watching and cancels pending debounce timers.
// Closing twice is a no-op.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if w.started {
		close(w.done)
	}

	w.timerMu.Lock()
	for _, timer := range w.timers {
		timer.Stop()
	}
	w.timers = make(map[string]*time.Timer)
	w.timerMu.Unlock()

	return w.watcher.Close()
}

// addTree registers dir and all non-ignored subdirectories.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && scanner.IsIgnored(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch path %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) watch() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			fmt.Printf("watcher error: %v\n", err)

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	var changeType ChangeType

	switch {
	case event.Op&fsnotify.Create == fsnotify.Create:
		changeType = ChangeCreate
	case event.Op&fsnotify.Write == fsnotify.Write:
		changeType = ChangeModify
	case event.Op&fsnotify.Remove == fsnotify.Remove:
		changeType = ChangeDelete
	case event.Op&fsnotify.Rename == fsnotify.Rename:
		changeType = ChangeRename
	default:
		return
	}

	// Newly created directories need their own watch registration so
	// changes below them keep flowing.
	if changeType == ChangeCreate {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !scanner.IsIgnored(filepath.Base(event.Name)) {
				w.addTree(event.Name)
			}
			return
		}
	}

	w.debounceChange(Change{
		ProjectPath: w.root,
		FilePath:    event.Name,
		Type:        changeType,
		Timestamp:   time.Now().Format(time.RFC3339),
	})
}

// debounceChange collapses bursts of changes to the same file.
func (w *Watcher) debounceChange(c Change) {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if timer, exists := w.timers[c.FilePath]; exists {
		timer.Stop()
	}

	w.timers[c.FilePath] = time.AfterFunc(w.debounce, func() {
		w.timerMu.Lock()
		delete(w.timers, c.FilePath)
		w.timerMu.Unlock()

		w.callback(c)
	})
}
