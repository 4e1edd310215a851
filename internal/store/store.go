package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mtzanidakis/erevna/internal/config"
	_ "modernc.org/sqlite"
)

type Store struct {
	db    *sql.DB
	cfg   config.StoreConfig
	cache *sourceCache

	// Serializes dedup-check-then-insert and other mutations so concurrent
	// runs cannot race a duplicate past the check. Reads do not take it.
	mu sync.Mutex
}

func New(cfg config.StoreConfig) (*Store, error) {
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// Enable WAL mode for concurrent read/write access and set a busy
	// timeout so writers retry instead of immediately returning SQLITE_BUSY.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("exec %s: %w", p, err)
		}
	}

	if cfg.DuplicateThreshold <= 0 {
		cfg.DuplicateThreshold = 0.8
	}
	if cfg.CacheSizeLimit <= 0 {
		cfg.CacheSizeLimit = 1000
	}

	s := &Store{
		db:    db,
		cfg:   cfg,
		cache: newSourceCache(cfg.CacheSizeLimit),
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

// DuplicateThreshold returns the configured content-similarity cutoff.
func (s *Store) DuplicateThreshold() float64 {
	return s.cfg.DuplicateThreshold
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sources (
			id                TEXT PRIMARY KEY,
			url               TEXT NOT NULL UNIQUE,
			title             TEXT,
			content           TEXT,
			domain            TEXT,
			author            TEXT,
			publish_date      TEXT,
			credibility_score REAL DEFAULT 0.5,
			tags              TEXT,
			metadata          TEXT,
			content_hash      TEXT,
			access_count      INTEGER DEFAULT 0,
			last_accessed     DATETIME DEFAULT CURRENT_TIMESTAMP,
			created_at        DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sources_domain ON sources(domain)`,
		`CREATE INDEX IF NOT EXISTS idx_sources_credibility ON sources(credibility_score)`,
		`CREATE INDEX IF NOT EXISTS idx_sources_publish_date ON sources(publish_date)`,
		`CREATE INDEX IF NOT EXISTS idx_sources_content_hash ON sources(content_hash)`,
		`CREATE TABLE IF NOT EXISTS collections (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			description TEXT,
			sources     TEXT,
			metadata    TEXT,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS research_runs (
			id           TEXT PRIMARY KEY,
			topic        TEXT NOT NULL,
			query        TEXT,
			format       TEXT,
			status       TEXT DEFAULT 'running',
			steps        TEXT,
			started_at   DATETIME DEFAULT CURRENT_TIMESTAMP,
			completed_at DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS scheduled_topics (
			id          TEXT PRIMARY KEY,
			topic       TEXT NOT NULL,
			query       TEXT,
			format      TEXT,
			max_sources INTEGER DEFAULT 5,
			schedule    TEXT NOT NULL,
			status      TEXT DEFAULT 'active',
			next_run_at DATETIME,
			last_run_at DATETIME,
			last_status TEXT,
			last_error  TEXT,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scheduled_next_run ON scheduled_topics(status, next_run_at)`,
		`CREATE TABLE IF NOT EXISTS secrets (
			name       TEXT PRIMARY KEY,
			value      BLOB NOT NULL,
			nonce      BLOB NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}

	return nil
}
