package database

import (
	"encoding/json"
	"fmt"

	"github.com/TobiSchelling/eventfolio/internal/event"
)

// SaveCandidates replaces the stored candidates of a period.
func (db *DB) SaveCandidates(periodID string, events []event.Event) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM candidates WHERE period_id = ?", periodID); err != nil {
		tx.Rollback()
		return err
	}
	stmt, err := tx.Prepare(
		`INSERT OR REPLACE INTO candidates (period_id, uid, title, source, start_at, end_at, score, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("encoding candidate %s: %w", e.UID, err)
		}
		if _, err := stmt.Exec(periodID, e.UID, e.Title, e.Source,
			formatTime(e.Start), formatTime(e.End), e.Score, string(payload)); err != nil {
			tx.Rollback()
			return fmt.Errorf("storing candidate %s: %w", e.UID, err)
		}
	}
	return tx.Commit()
}

// GetCandidates returns a period's candidates, highest score first.
func (db *DB) GetCandidates(periodID string) ([]event.Event, error) {
	rows, err := db.conn.Query(
		"SELECT payload FROM candidates WHERE period_id = ? ORDER BY score DESC, start_at",
		periodID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var e event.Event
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			return nil, fmt.Errorf("decoding candidate: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
