package database

import (
	"time"
)

// PeriodID returns the period key of a run started at t: its local date.
func PeriodID(t time.Time) string {
	return t.Format("2006-01-02")
}

// FormatPeriodDisplay formats a period_id for human-readable display, e.g.
// "Wed, Oct 01 2025". Unparseable ids are returned unchanged.
func FormatPeriodDisplay(periodID string) string {
	d, err := time.Parse("2006-01-02", periodID)
	if err != nil {
		return periodID
	}
	return d.Format("Mon, Jan 02 2006")
}
