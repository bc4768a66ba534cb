package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/goodtune/worklog/internal/storage"
	_ "modernc.org/sqlite"
)

// Store implements storage.Store on a single-connection SQLite database.
type Store struct {
	db *sql.DB
}

// Open creates a new database connection and runs migrations
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && path != ":memory:" {
		if err := storage.EnsureDir(dir); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection serialises every transaction.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Update runs fn in a transaction and commits when it returns nil.
func (s *Store) Update(ctx context.Context, fn func(tx storage.Tx) error) error {
	return s.run(ctx, true, fn)
}

// View runs fn in a transaction that is always rolled back.
func (s *Store) View(ctx context.Context, fn func(tx storage.Tx) error) error {
	return s.run(ctx, false, fn)
}

func (s *Store) run(ctx context.Context, writable bool, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(&sqlTx{ctx: ctx, tx: tx, writable: writable}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if !writable {
		return tx.Rollback()
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type sqlTx struct {
	ctx      context.Context
	tx       *sql.Tx
	writable bool
}

// Entries returns the entry store bound to this transaction.
func (t *sqlTx) Entries() storage.EntryStore { return &entryStore{t: t} }

// Spans returns the span store bound to this transaction.
func (t *sqlTx) Spans() storage.SpanStore { return &spanStore{t: t} }

func (t *sqlTx) check(write bool) error {
	if err := t.ctx.Err(); err != nil {
		return err
	}
	if write && !t.writable {
		return storage.ErrReadOnly
	}
	return nil
}

// runMigrations applies all database migrations
func runMigrations(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS migrations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			version INTEGER NOT NULL UNIQUE,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var currentVersion int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	migrations := getMigrations()
	versions := make([]int, 0, len(migrations))
	for version := range migrations {
		versions = append(versions, version)
	}
	sort.Ints(versions)

	for _, version := range versions {
		if version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(migrations[version]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO migrations (version) VALUES (?)", version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", version, err)
		}
	}

	return nil
}

// getMigrations returns all database migrations
func getMigrations() map[int]string {
	return map[int]string{
		1: migration001LogEntries,
		2: migration002TimeSpans,
	}
}

const migration001LogEntries = `
CREATE TABLE IF NOT EXISTS log_entries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	uuid TEXT NOT NULL DEFAULT '',
	date TEXT NOT NULL, -- YYYY-MM-DD
	category TEXT NOT NULL,
	project TEXT NOT NULL,
	task TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'Completed',
	notes TEXT NOT NULL DEFAULT '',
	hours REAL NOT NULL DEFAULT 0,
	additional_hours REAL NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX idx_log_entries_date ON log_entries(date);
CREATE INDEX idx_log_entries_uuid ON log_entries(uuid);
`

const migration002TimeSpans = `
CREATE TABLE IF NOT EXISTS time_spans (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	log_entry_id INTEGER NOT NULL,
	start_timestamp TEXT NOT NULL, -- RFC3339 UTC
	end_timestamp TEXT, -- NULL while running
	created_at TEXT NOT NULL
);

CREATE INDEX idx_time_spans_entry ON time_spans(log_entry_id);
CREATE INDEX idx_time_spans_open ON time_spans(end_timestamp) WHERE end_timestamp IS NULL;
`
