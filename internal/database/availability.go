package database

import (
	"github.com/TobiSchelling/eventfolio/internal/availability"
)

// SaveAvailability stores the evening summary computed for a period.
func (db *DB) SaveAvailability(periodID string, summary availability.Summary) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM availability_days WHERE period_id = ?", periodID); err != nil {
		tx.Rollback()
		return err
	}
	for _, d := range summary.Days() {
		if _, err := tx.Exec(
			`INSERT INTO availability_days (period_id, date, status, notes, evening_window)
			VALUES (?, ?, ?, ?, ?)`,
			periodID, d.Date, d.Status, d.Notes, d.Window,
		); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// GetAvailability returns the stored summary of a period; empty if none.
func (db *DB) GetAvailability(periodID string) (availability.Summary, error) {
	rows, err := db.conn.Query(
		`SELECT date, status, COALESCE(notes, ''), COALESCE(evening_window, '')
		FROM availability_days WHERE period_id = ?`, periodID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := availability.Summary{}
	for rows.Next() {
		var d availability.Day
		if err := rows.Scan(&d.Date, &d.Status, &d.Notes, &d.Window); err != nil {
			return nil, err
		}
		out[d.Date] = d
	}
	return out, rows.Err()
}
