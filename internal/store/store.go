package store

import (
	"database/sql"
	"fmt"
	"strconv"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite data access layer for bracefmt's check results.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use in transactions.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates all tables and indexes, then applies any schema upgrades
// the database has not seen yet. Idempotent.
func (s *Store) Migrate() error {
	if _, err := s.db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	stored, err := s.GetMetadata(schemaVersionKey)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	version := 0
	if stored != "" {
		if version, err = strconv.Atoi(stored); err != nil {
			return fmt.Errorf("migrate: bad %s %q: %w", schemaVersionKey, stored, err)
		}
	}
	if version > len(upgrades) {
		return fmt.Errorf("migrate: database schema version %d is newer than %d", version, len(upgrades))
	}

	for i := version; i < len(upgrades); i++ {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("migrate: begin: %w", err)
		}
		if _, err := tx.Exec(upgrades[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("migrate to version %d: %w", i+1, err)
		}
		if err := setMetadata(tx, schemaVersionKey, strconv.Itoa(i+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migrate to version %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migrate to version %d: %w", i+1, err)
		}
	}
	return nil
}

const schemaVersionKey = "schema_version"

// upgrades are applied in order on top of schemaDDL. The metadata key
// schema_version records how many have run.
var upgrades = []string{
	// 1: engine options that produced the row.
	`ALTER TABLE files ADD COLUMN options TEXT NOT NULL DEFAULT ''`,
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS runs (
  id              TEXT PRIMARY KEY,
  root            TEXT,
  started_at      TIMESTAMP NOT NULL,
  finished_at     TIMESTAMP,
  file_count      INTEGER DEFAULT 0,
  skipped_count   INTEGER DEFAULT 0,
  failed_count    INTEGER DEFAULT 0
);

CREATE TABLE IF NOT EXISTS files (
  id              INTEGER PRIMARY KEY,
  path            TEXT NOT NULL UNIQUE,
  language        TEXT NOT NULL,
  hash            TEXT,
  line_count      INTEGER DEFAULT 0,
  open_braces     INTEGER DEFAULT 0,
  close_braces    INTEGER DEFAULT 0,
  error_kind      TEXT NOT NULL DEFAULT 'none',
  error_count     INTEGER DEFAULT 0,
  error_line      INTEGER DEFAULT 0,
  grammar_checked BOOLEAN DEFAULT FALSE,
  grammar_open    INTEGER DEFAULT 0,
  grammar_close   INTEGER DEFAULT 0,
  divergent       BOOLEAN DEFAULT FALSE,
  run_id          TEXT REFERENCES runs(id),
  last_checked    TIMESTAMP
);

CREATE TABLE IF NOT EXISTS metadata (
  key             TEXT PRIMARY KEY,
  value           TEXT
);

CREATE INDEX IF NOT EXISTS idx_files_language ON files(language);
CREATE INDEX IF NOT EXISTS idx_files_error_kind ON files(error_kind);
CREATE INDEX IF NOT EXISTS idx_files_run ON files(run_id);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`

// GetMetadata returns the value stored under key, or "" when unset.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get metadata %q: %w", key, err)
	}
	return value, nil
}

// SetMetadata stores value under key, replacing any previous value.
func (s *Store) SetMetadata(key, value string) error {
	return setMetadata(s.db, key, value)
}

func setMetadata(x execer, key, value string) error {
	_, err := x.Exec(
		"INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set metadata %q: %w", key, err)
	}
	return nil
}
