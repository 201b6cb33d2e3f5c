// internal/store/store.go
package store

import (
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

// SessionRecord is one persisted session row
type SessionRecord struct {
	ID          string     `json:"id"`
	ProjectPath string     `json:"project_path"`
	Instruction string     `json:"instruction"`
	Status      string     `json:"status"`
	Summary     string     `json:"summary"`
	Branch      string     `json:"branch,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// ActionRecord is one logged action within a session
type ActionRecord struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Store wraps the SQLite session history database
type Store struct {
	db *sql.DB
}

// Open creates or opens the session database at the given path
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}

	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// init creates the database schema
func (s *Store) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		project_path TEXT NOT NULL,
		instruction TEXT,
		status TEXT NOT NULL,
		summary TEXT,
		branch TEXT,
		started_at DATETIME NOT NULL,
		finished_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS actions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		type TEXT NOT NULL,
		message TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_actions_session ON actions(session_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveSession inserts or replaces a session row
func (s *Store) SaveSession(rec *SessionRecord) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO sessions (id, project_path, instruction, status, summary, branch, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ProjectPath, rec.Instruction, rec.Status, rec.Summary, rec.Branch, rec.StartedAt, rec.FinishedAt)
	return err
}

// FinishSession records the terminal status and summary of a session
func (s *Store) FinishSession(id, status, summary string) error {
	now := time.Now()
	_, err := s.db.Exec(`
		UPDATE sessions SET status = ?, summary = ?, finished_at = ? WHERE id = ?`,
		status, summary, now, id)
	return err
}

// GetSession retrieves a session by ID
func (s *Store) GetSession(id string) (*SessionRecord, error) {
	row := s.db.QueryRow(`
		SELECT id, project_path, instruction, status, summary, branch, started_at, finished_at
		FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

// ListSessions retrieves all sessions, newest first
func (s *Store) ListSessions() ([]*SessionRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, project_path, instruction, status, summary, branch, started_at, finished_at
		FROM sessions ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*SessionRecord, error) {
	rec := &SessionRecord{}
	var summary, branch, instruction sql.NullString
	var finished sql.NullTime
	err := row.Scan(&rec.ID, &rec.ProjectPath, &instruction, &rec.Status, &summary, &branch, &rec.StartedAt, &finished)
	if err != nil {
		return nil, err
	}
	rec.Instruction = instruction.String
	rec.Summary = summary.String
	rec.Branch = branch.String
	if finished.Valid {
		rec.FinishedAt = &finished.Time
	}
	return rec, nil
}

// LogAction appends an action record for a session
func (s *Store) LogAction(sessionID, actionType, message string) error {
	_, err := s.db.Exec(`
		INSERT INTO actions (session_id, type, message, created_at)
		VALUES (?, ?, ?, ?)`, sessionID, actionType, message, time.Now())
	return err
}

// ListActions retrieves all actions for a session in insertion order
func (s *Store) ListActions(sessionID string) ([]*ActionRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, type, message, created_at
		FROM actions WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*ActionRecord
	for rows.Next() {
		rec := &ActionRecord{}
		var message sql.NullString
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Type, &message, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Message = message.String
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}
