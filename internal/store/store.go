// Package store provides the sqlite persistence layer: users, settings,
// cost records, queue tasks, trust state, assumptions, tasks, events,
// reply drafts, and the conversation/memory tables backing vector search.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"aide/internal/logging"
)

// Store wraps a single sqlite connection. WAL mode with a single writer
// keeps the concurrency story simple; every repository is a method set on
// this type.
type Store struct {
	db     *sql.DB
	dbPath string
	log    *zap.Logger

	vectorExt bool
}

// Open initializes the sqlite database at the given path, creating parent
// directories and the schema as needed.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	log := logging.Named(logging.ComponentStore)
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		// NORMAL is safe under WAL and much faster than FULL.
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			log.Debug("pragma failed", zap.String("pragma", pragma), zap.Error(err))
		}
	}

	s := &Store{db: db, dbPath: path, log: log}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	s.detectVecExtension()

	log.Info("store ready", zap.String("path", path), zap.Bool("vector_ext", s.vectorExt))
	return s, nil
}

// OpenMemory opens an in-memory database. Test fixtures use this.
func OpenMemory() (*Store, error) {
	return Open(":memory:")
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw handle for packages that manage their own statements.
func (s *Store) DB() *sql.DB { return s.db }

// HasVectorExt reports whether the sqlite-vec extension loaded.
func (s *Store) HasVectorExt() bool { return s.vectorExt }

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY,
		display_name TEXT NOT NULL DEFAULT '',
		timezone TEXT NOT NULL DEFAULT 'UTC',
		quiet_start INTEGER,
		quiet_end INTEGER,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS settings (
		namespace TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (namespace, key)
	)`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		actor TEXT NOT NULL DEFAULT '',
		detail TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS cost_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		provider TEXT NOT NULL,
		model TEXT NOT NULL,
		tokens_in INTEGER NOT NULL DEFAULT 0,
		tokens_out INTEGER NOT NULL DEFAULT 0,
		cost_usd REAL NOT NULL DEFAULT 0,
		cost_estimated INTEGER NOT NULL DEFAULT 0,
		task_type TEXT NOT NULL DEFAULT '',
		latency_ms INTEGER NOT NULL DEFAULT 0,
		rate_limit_hit INTEGER NOT NULL DEFAULT 0,
		success INTEGER NOT NULL DEFAULT 1,
		error TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_cost_records_ts ON cost_records(timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_cost_records_provider ON cost_records(provider)`,
	`CREATE TABLE IF NOT EXISTS model_registry (
		model TEXT PRIMARY KEY,
		provider TEXT NOT NULL,
		tier TEXT NOT NULL DEFAULT '',
		context_window INTEGER NOT NULL DEFAULT 0,
		deprecated INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS queue_tasks (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		task_type TEXT NOT NULL,
		user_id INTEGER NOT NULL DEFAULT 0,
		payload TEXT NOT NULL DEFAULT '{}',
		priority INTEGER NOT NULL DEFAULT 1,
		status TEXT NOT NULL DEFAULT 'pending',
		attempts INTEGER NOT NULL DEFAULT 0,
		scheduled_for DATETIME,
		last_error TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_queue_tasks_claim
		ON queue_tasks(status, priority, scheduled_for, seq)`,
	`CREATE TABLE IF NOT EXISTS trust_state (
		user_id INTEGER NOT NULL,
		category TEXT NOT NULL,
		level TEXT NOT NULL DEFAULT 'new',
		approvals INTEGER NOT NULL DEFAULT 0,
		rejections INTEGER NOT NULL DEFAULT 0,
		edits INTEGER NOT NULL DEFAULT 0,
		total_interactions INTEGER NOT NULL DEFAULT 0,
		recent_outcomes TEXT NOT NULL DEFAULT '[]',
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (user_id, category)
	)`,
	`CREATE TABLE IF NOT EXISTS assumptions (
		id TEXT PRIMARY KEY,
		channel TEXT NOT NULL,
		category TEXT NOT NULL,
		statement TEXT NOT NULL,
		source TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		confidence REAL NOT NULL DEFAULT 0.5,
		evidence TEXT NOT NULL DEFAULT '[]',
		confirmed_at DATETIME,
		last_validated DATETIME,
		next_validation DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_assumptions_channel ON assumptions(channel, category)`,
	`CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		title TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		due_at DATETIME,
		completed INTEGER NOT NULL DEFAULT 0,
		completed_at DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_user ON tasks(user_id, completed, due_at)`,
	`CREATE TABLE IF NOT EXISTS calendar_events (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		title TEXT NOT NULL,
		starts_at DATETIME NOT NULL,
		ends_at DATETIME,
		location TEXT NOT NULL DEFAULT '',
		reminded INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_calendar_events_user ON calendar_events(user_id, starts_at)`,
	`CREATE TABLE IF NOT EXISTS reply_drafts (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		channel TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL,
		source_comment TEXT NOT NULL DEFAULT '',
		draft TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		resolved_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		channel_id INTEGER NOT NULL DEFAULT 0,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		embedding BLOB,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_user ON messages(user_id, channel_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS memories (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		content TEXT NOT NULL,
		kind TEXT NOT NULL DEFAULT 'fact',
		embedding BLOB,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_memories_user ON memories(user_id, kind)`,
}

func (s *Store) initSchema() error {
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}
