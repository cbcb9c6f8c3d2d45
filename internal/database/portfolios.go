package database

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/TobiSchelling/eventfolio/internal/portfolio"
)

// SavePortfolio archives the portfolio of a period, replacing an earlier one.
func (db *DB) SavePortfolio(periodID string, p *portfolio.Portfolio) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding portfolio: %w", err)
	}
	_, err = db.conn.Exec(
		`INSERT OR REPLACE INTO portfolios (period_id, total_selected, weeks_scheduled, payload)
		VALUES (?, ?, ?, ?)`,
		periodID, p.Summary.TotalSelected, p.Summary.WeeksScheduled, string(payload),
	)
	return err
}

// GetPortfolio returns the archived portfolio of a period, or nil.
func (db *DB) GetPortfolio(periodID string) (*portfolio.Portfolio, error) {
	var payload string
	err := db.conn.QueryRow(
		"SELECT payload FROM portfolios WHERE period_id = ?", periodID,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodePortfolio(payload)
}

// LatestPortfolioBefore returns the most recent portfolio archived for a
// period earlier than periodID. It returns "", nil when there is none.
func (db *DB) LatestPortfolioBefore(periodID string) (string, *portfolio.Portfolio, error) {
	var id, payload string
	err := db.conn.QueryRow(
		`SELECT period_id, payload FROM portfolios
		WHERE period_id < ? ORDER BY period_id DESC LIMIT 1`, periodID,
	).Scan(&id, &payload)
	if err == sql.ErrNoRows {
		return "", nil, nil
	}
	if err != nil {
		return "", nil, err
	}
	p, err := decodePortfolio(payload)
	if err != nil {
		return "", nil, err
	}
	return id, p, nil
}

// ListPortfolios returns archived portfolios, newest first.
func (db *DB) ListPortfolios() ([]PortfolioInfo, error) {
	rows, err := db.conn.Query(
		`SELECT period_id, total_selected, weeks_scheduled, generated_at
		FROM portfolios ORDER BY period_id DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PortfolioInfo
	for rows.Next() {
		var p PortfolioInfo
		if err := rows.Scan(&p.PeriodID, &p.TotalSelected, &p.WeeksScheduled, &p.GeneratedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func decodePortfolio(payload string) (*portfolio.Portfolio, error) {
	var p portfolio.Portfolio
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return nil, fmt.Errorf("decoding portfolio: %w", err)
	}
	return &p, nil
}
