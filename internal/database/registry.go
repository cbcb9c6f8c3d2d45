package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/TobiSchelling/eventfolio/internal/dedupe"
)

// RegistryEntries returns every recorded uid.
func (db *DB) RegistryEntries() ([]dedupe.Entry, error) {
	rows, err := db.conn.Query(
		"SELECT uid, first_seen, title, source, recorded_at FROM registry ORDER BY uid",
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dedupe.ErrCorruptRegistry, err)
	}
	defer rows.Close()

	var entries []dedupe.Entry
	for rows.Next() {
		var (
			e                                    dedupe.Entry
			firstSeen, title, source, recordedAt sql.NullString
		)
		if err := rows.Scan(&e.UID, &firstSeen, &title, &source, &recordedAt); err != nil {
			return nil, fmt.Errorf("%w: %v", dedupe.ErrCorruptRegistry, err)
		}
		e.FirstSeen = parseTime(firstSeen.String)
		e.Title = title.String
		e.Source = source.String
		e.RecordedAt = parseTime(recordedAt.String)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", dedupe.ErrCorruptRegistry, err)
	}
	return entries, nil
}

// AppendRegistry inserts entries in one transaction. Existing uids are left
// as they are.
func (db *DB) AppendRegistry(entries []dedupe.Entry) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(
		`INSERT OR IGNORE INTO registry (uid, first_seen, title, source, recorded_at)
		VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		recorded := e.RecordedAt
		if recorded.IsZero() {
			recorded = time.Now()
		}
		if _, err := stmt.Exec(e.UID, formatTime(e.FirstSeen), e.Title, e.Source, formatTime(recorded)); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording uid %s: %w", e.UID, err)
		}
	}
	return tx.Commit()
}

// GetRegistryStats summarizes the registry by source.
func (db *DB) GetRegistryStats() (*RegistryStats, error) {
	s := &RegistryStats{}
	var oldest, newest sql.NullString
	if err := db.conn.QueryRow(
		"SELECT COUNT(*), MIN(first_seen), MAX(first_seen) FROM registry",
	).Scan(&s.Total, &oldest, &newest); err != nil {
		return nil, err
	}
	s.Oldest, s.Newest = oldest.String, newest.String

	rows, err := db.conn.Query(
		`SELECT COALESCE(source, ''), COUNT(*) FROM registry
		GROUP BY COALESCE(source, '') ORDER BY COUNT(*) DESC, 1`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var rs RegistrySource
		if err := rows.Scan(&rs.Source, &rs.Count); err != nil {
			return nil, err
		}
		s.BySource = append(s.BySource, rs)
	}
	return s, rows.Err()
}

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	// SQLite datetime('now') defaults.
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	return time.Time{}
}
