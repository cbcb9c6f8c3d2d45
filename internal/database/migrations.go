package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS registry (
    uid TEXT PRIMARY KEY,
    first_seen TEXT,
    title TEXT,
    source TEXT,
    recorded_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS candidates (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    period_id TEXT NOT NULL,
    uid TEXT NOT NULL,
    title TEXT NOT NULL,
    source TEXT,
    start_at TEXT NOT NULL,
    end_at TEXT,
    score REAL DEFAULT 0,
    payload TEXT NOT NULL,
    collected_at TEXT DEFAULT (datetime('now')),
    UNIQUE (period_id, uid)
);

CREATE TABLE IF NOT EXISTS portfolios (
    period_id TEXT PRIMARY KEY,
    total_selected INTEGER DEFAULT 0,
    weeks_scheduled INTEGER DEFAULT 0,
    payload TEXT NOT NULL,
    generated_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS run_reports (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    period_id TEXT UNIQUE NOT NULL,
    generated_at TEXT DEFAULT (datetime('now')),
    source_count INTEGER DEFAULT 0,
    event_count INTEGER DEFAULT 0,
    unique_count INTEGER DEFAULT 0,
    duplicate_count INTEGER DEFAULT 0,
    selected_count INTEGER DEFAULT 0,
    skipped_sources TEXT
);

CREATE INDEX IF NOT EXISTS idx_candidates_period ON candidates(period_id);
CREATE INDEX IF NOT EXISTS idx_registry_source ON registry(source);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "per-source run stats and availability snapshots",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS source_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    period_id TEXT NOT NULL,
    slug TEXT NOT NULL,
    adapter TEXT,
    event_count INTEGER DEFAULT 0,
    error TEXT,
    recorded_at TEXT DEFAULT (datetime('now')),
    UNIQUE (period_id, slug)
);

CREATE TABLE IF NOT EXISTS availability_days (
    period_id TEXT NOT NULL,
    date TEXT NOT NULL,
    status TEXT NOT NULL CHECK(status IN ('free', 'busy')),
    notes TEXT,
    evening_window TEXT,
    PRIMARY KEY (period_id, date)
);

CREATE INDEX IF NOT EXISTS idx_source_runs_slug ON source_runs(slug);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
