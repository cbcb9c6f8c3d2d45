package database

import (
	"database/sql"
	"encoding/json"
)

// InsertReport inserts or replaces the run report of a period.
func (db *DB) InsertReport(r RunReport) (int64, error) {
	skipped, err := json.Marshal(r.SkippedSources)
	if err != nil {
		return 0, err
	}
	result, err := db.conn.Exec(
		`INSERT OR REPLACE INTO run_reports
		(period_id, source_count, event_count, unique_count, duplicate_count, selected_count, skipped_sources)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.PeriodID, r.SourceCount, r.EventCount, r.UniqueCount, r.DuplicateCount, r.SelectedCount, string(skipped),
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetReport returns the run report of a period, or nil.
func (db *DB) GetReport(periodID string) (*RunReport, error) {
	var (
		r       RunReport
		skipped sql.NullString
	)
	err := db.conn.QueryRow(
		`SELECT id, period_id, generated_at, source_count, event_count, unique_count,
		duplicate_count, selected_count, skipped_sources
		FROM run_reports WHERE period_id = ?`, periodID,
	).Scan(&r.ID, &r.PeriodID, &r.GeneratedAt, &r.SourceCount, &r.EventCount, &r.UniqueCount,
		&r.DuplicateCount, &r.SelectedCount, &skipped)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if skipped.String != "" {
		_ = json.Unmarshal([]byte(skipped.String), &r.SkippedSources)
	}
	return &r, nil
}

// GetLastRunDate returns the period of the most recent run report, or "".
func (db *DB) GetLastRunDate() (string, error) {
	var periodID string
	err := db.conn.QueryRow(
		"SELECT period_id FROM run_reports ORDER BY period_id DESC LIMIT 1",
	).Scan(&periodID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return periodID, err
}

// SaveSourceRuns replaces the per-source results of a period.
func (db *DB) SaveSourceRuns(periodID string, runs []SourceRun) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM source_runs WHERE period_id = ?", periodID); err != nil {
		tx.Rollback()
		return err
	}
	for _, r := range runs {
		if _, err := tx.Exec(
			`INSERT INTO source_runs (period_id, slug, adapter, event_count, error)
			VALUES (?, ?, ?, ?, ?)`,
			periodID, r.Slug, r.Adapter, r.EventCount, r.Error,
		); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// GetSourceRuns returns the per-source results of a period ordered by slug.
func (db *DB) GetSourceRuns(periodID string) ([]SourceRun, error) {
	rows, err := db.conn.Query(
		`SELECT period_id, slug, COALESCE(adapter, ''), event_count, COALESCE(error, '')
		FROM source_runs WHERE period_id = ? ORDER BY slug`, periodID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SourceRun
	for rows.Next() {
		var r SourceRun
		if err := rows.Scan(&r.PeriodID, &r.Slug, &r.Adapter, &r.EventCount, &r.Error); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetSourcePerformance aggregates every recorded run per source.
func (db *DB) GetSourcePerformance() ([]SourcePerformance, error) {
	rows, err := db.conn.Query(`
SELECT s.slug, COUNT(*), SUM(s.event_count), SUM(CASE WHEN s.event_count = 0 THEN 1 ELSE 0 END),
       (SELECT COALESCE(adapter, '') FROM source_runs l WHERE l.slug = s.slug ORDER BY l.period_id DESC LIMIT 1),
       (SELECT COALESCE(error, '') FROM source_runs l WHERE l.slug = s.slug ORDER BY l.period_id DESC LIMIT 1)
FROM source_runs s GROUP BY s.slug ORDER BY SUM(s.event_count) DESC, s.slug`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SourcePerformance
	for rows.Next() {
		var p SourcePerformance
		if err := rows.Scan(&p.Slug, &p.Runs, &p.TotalEvents, &p.EmptyRuns, &p.LastAdapter, &p.LastError); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetStats returns aggregate database statistics.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}

	queries := []struct {
		sql  string
		dest *int
	}{
		{"SELECT COUNT(*) FROM registry", &s.RegistryEntries},
		{"SELECT COUNT(*) FROM candidates", &s.Candidates},
		{"SELECT COUNT(DISTINCT period_id) FROM candidates", &s.Periods},
		{"SELECT COUNT(*) FROM portfolios", &s.Portfolios},
		{"SELECT COUNT(*) FROM run_reports", &s.RunReports},
		{"SELECT COUNT(*) FROM availability_days WHERE status = 'busy'", &s.BusyDays},
	}

	for _, q := range queries {
		if err := db.conn.QueryRow(q.sql).Scan(q.dest); err != nil {
			return nil, err
		}
	}

	return s, nil
}
