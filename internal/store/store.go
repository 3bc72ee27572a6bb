// Package store persists dispatch outcomes to SQLite: the mode history
// per session, the auto-switch policy, and per-session metadata. It
// subscribes to engine events for writes, so the engine itself stays
// storage-free.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"cogmux/internal/logging"
)

// LocalStore is the SQLite-backed persistence layer. A single
// connection serializes writers; WAL keeps readers cheap.
type LocalStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
	log    *zap.Logger
}

// NewLocalStore opens (creating if needed) the database at path.
func NewLocalStore(path string) (*LocalStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	log := logging.Get(logging.CategoryStore)
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		// NORMAL is safe under WAL and much faster than FULL.
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			log.Debug("pragma failed", zap.String("pragma", pragma), zap.Error(err))
		}
	}

	s := &LocalStore{db: db, dbPath: path, log: log}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: initialize schema: %w", err)
	}
	return s, nil
}

func (s *LocalStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS mode_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		mode TEXT NOT NULL,
		trigger_kind TEXT NOT NULL,
		confidence REAL NOT NULL,
		started_at DATETIME NOT NULL,
		ended_at DATETIME NOT NULL,
		duration_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_mode_history_session ON mode_history(session_id, started_at);
	CREATE INDEX IF NOT EXISTS idx_mode_history_mode ON mode_history(mode);

	CREATE TABLE IF NOT EXISTS policy (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		payload TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS session_meta (
		session_id TEXT PRIMARY KEY,
		first_seen DATETIME NOT NULL,
		last_touched DATETIME NOT NULL,
		ended_at DATETIME
	);`

	_, err := s.db.Exec(schema)
	return err
}

// Path returns the database file location.
func (s *LocalStore) Path() string {
	return s.dbPath
}

// Close releases the database connection.
func (s *LocalStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
