// Package index keeps a sqlite history of mirror runs. It is informational
// only: skip decisions are always made from the files on disk.
package index

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

type DB struct {
	db *sql.DB
}

// Open opens (creating if needed) the ledger at path and applies the schema
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	instance := &DB{db: db}
	if err := instance.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate ledger: %w", err)
	}

	return instance, nil
}

func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

func (d *DB) Migrate(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx, schemaSQL)
	return err
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	started_at INTEGER NOT NULL,
	finished_at INTEGER,
	shares TEXT NOT NULL,
	status TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS share_results (
	run_id TEXT NOT NULL,
	share_id TEXT NOT NULL,
	status TEXT NOT NULL,
	files INTEGER NOT NULL DEFAULT 0,
	bytes INTEGER NOT NULL DEFAULT 0,
	error_code TEXT,
	error_message TEXT,
	finished_at INTEGER NOT NULL,
	PRIMARY KEY (run_id, share_id),
	FOREIGN KEY (run_id) REFERENCES runs(id)
);

CREATE TABLE IF NOT EXISTS task_results (
	run_id TEXT NOT NULL,
	share_id TEXT NOT NULL,
	item_id TEXT NOT NULL,
	rel_path TEXT NOT NULL,
	target_path TEXT NOT NULL,
	size INTEGER NOT NULL,
	outcome TEXT NOT NULL,
	bytes INTEGER NOT NULL DEFAULT 0,
	error_code TEXT,
	error TEXT,
	finished_at INTEGER NOT NULL,
	PRIMARY KEY (run_id, share_id, item_id),
	FOREIGN KEY (run_id) REFERENCES runs(id)
);

CREATE INDEX IF NOT EXISTS idx_task_results_outcome ON task_results(run_id, outcome);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`
