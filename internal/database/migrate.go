package database

import (
	"database/sql"
	"fmt"
	"log"
)

// getSchemaVersion reads PRAGMA user_version from the database.
func getSchemaVersion(conn *sql.DB) (int, error) {
	var version int
	if err := conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

// legacyRegistryColumns reports which registry columns exist when the table
// predates the migration system (user_version 0). ok is false if there is no
// registry table at all.
func legacyRegistryColumns(conn *sql.DB) (cols map[string]bool, ok bool, err error) {
	rows, err := conn.Query("PRAGMA table_info(registry)")
	if err != nil {
		return nil, false, fmt.Errorf("inspecting registry table: %w", err)
	}
	defer rows.Close()

	cols = map[string]bool{}
	for rows.Next() {
		var (
			cid       int
			name, typ string
			notNull   int
			dflt      sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, false, err
		}
		cols[name] = true
	}
	return cols, len(cols) > 0, rows.Err()
}

// upgradeLegacyRegistry adds the columns that the first, registry-only
// releases did not have. Existing rows are kept untouched.
func upgradeLegacyRegistry(conn *sql.DB, cols map[string]bool) error {
	for _, c := range []struct{ name, ddl string }{
		{"first_seen", "ALTER TABLE registry ADD COLUMN first_seen TEXT"},
		{"title", "ALTER TABLE registry ADD COLUMN title TEXT"},
		{"source", "ALTER TABLE registry ADD COLUMN source TEXT"},
		{"recorded_at", "ALTER TABLE registry ADD COLUMN recorded_at TEXT"},
	} {
		if cols[c.name] {
			continue
		}
		if _, err := conn.Exec(c.ddl); err != nil {
			return fmt.Errorf("adding registry.%s: %w", c.name, err)
		}
	}
	return nil
}

// migrate brings the database schema up to the latest version.
// It uses PRAGMA user_version to track which migrations have been applied.
func migrate(conn *sql.DB) error {
	current, err := getSchemaVersion(conn)
	if err != nil {
		return err
	}

	if current == 0 {
		cols, legacy, err := legacyRegistryColumns(conn)
		if err != nil {
			return err
		}
		if legacy {
			log.Printf("detected legacy registry table, upgrading columns")
			if err := upgradeLegacyRegistry(conn, cols); err != nil {
				return err
			}
		}
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		log.Printf("applying migration %d: %s", m.Version, m.Description)

		tx, err := conn.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		if err := m.Up(tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}

		// modernc/sqlite does not allow user_version inside the transaction.
		// The DDL is idempotent, so a crash here only re-runs the step.
		if _, err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
			return fmt.Errorf("setting version %d: %w", m.Version, err)
		}
	}

	return nil
}
