package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS ledger_transactions (
	external_id           TEXT PRIMARY KEY,
	date                  TEXT NOT NULL,
	description           TEXT NOT NULL DEFAULT '',
	amount                INTEGER NOT NULL,
	source_account        TEXT NOT NULL DEFAULT '',
	category_major        TEXT NOT NULL DEFAULT '',
	category_minor        TEXT NOT NULL DEFAULT '',
	memo                  TEXT NOT NULL DEFAULT '',
	is_transfer           INTEGER NOT NULL DEFAULT 0,
	is_calculation_target INTEGER NOT NULL DEFAULT 1,
	matched_expense_id    TEXT,
	created_at            TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ledger_date ON ledger_transactions(date);
CREATE INDEX IF NOT EXISTS idx_ledger_amount ON ledger_transactions(amount);

CREATE TABLE IF NOT EXISTS expenses (
	id                 TEXT PRIMARY KEY,
	date               TEXT NOT NULL,
	store_name         TEXT NOT NULL,
	amount             INTEGER NOT NULL,
	tax_amount         INTEGER,
	category           TEXT NOT NULL DEFAULT '',
	subcategory        TEXT,
	payment_method     TEXT NOT NULL DEFAULT 'cash',
	receipt_image_path TEXT,
	source             TEXT NOT NULL DEFAULT 'manual',
	matched            INTEGER NOT NULL DEFAULT 0,
	matched_ledger_id  TEXT,
	created_at         TEXT NOT NULL,
	updated_at         TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_expenses_store ON expenses(store_name);
CREATE INDEX IF NOT EXISTS idx_expenses_date ON expenses(date);

CREATE TABLE IF NOT EXISTS import_runs (
	import_run_id TEXT PRIMARY KEY,
	file_name     TEXT NOT NULL,
	started_ts    TEXT NOT NULL,
	finished_ts   TEXT,
	status        TEXT NOT NULL,
	imported      INTEGER NOT NULL DEFAULT 0,
	skipped       INTEGER NOT NULL DEFAULT 0,
	error_count   INTEGER NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT ''
);
`

// Store wraps the SQLite database holding expenses, imported ledger
// transactions and import run history.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and ensures the
// schema exists. The parent directory is created if missing.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("Open: create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("Open: open db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("Open: create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
