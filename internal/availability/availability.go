// Package availability turns the personal busy calendar into a per-day
// free/busy summary of the configured evening windows.
package availability

import (
	"sort"
	"strings"
	"time"

	"github.com/TobiSchelling/eventfolio/internal/timez"
)

const (
	StatusFree = "free"
	StatusBusy = "busy"
)

// Day is the evening status of one calendar date.
type Day struct {
	Date   string `json:"date"`
	Status string `json:"status"`
	Notes  string `json:"notes,omitempty"`
	Window string `json:"window,omitempty"`
}

// Summary maps YYYY-MM-DD to that day's evening status. Days without a
// configured evening window are absent.
type Summary map[string]Day

// Summarize evaluates each day from today through today+horizonDays. A day is
// busy when any entry starting that day overlaps its evening window.
func Summarize(busy []Busy, evenings timez.EveningWindows, today time.Time, horizonDays int) Summary {
	first := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())
	last := first.AddDate(0, 0, horizonDays)

	byDay := map[string][]Busy{}
	for _, b := range busy {
		s := b.Start.In(today.Location())
		day := time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, s.Location())
		if day.Before(first) || day.After(last) {
			continue
		}
		key := timez.DayKey(s)
		byDay[key] = append(byDay[key], b)
	}

	out := Summary{}
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		w, ok := evenings.For(d)
		if !ok {
			continue
		}
		key := timez.DayKey(d)
		day := Day{Date: key, Status: StatusFree, Window: w.String()}
		var notes []string
		for _, b := range byDay[key] {
			start := b.Start.In(today.Location())
			if !w.Intersects(timez.MinuteOfDay(start), b.End.Sub(b.Start)) {
				continue
			}
			day.Status = StatusBusy
			if b.Title == "" {
				notes = append(notes, "Busy")
			} else {
				notes = append(notes, b.Title)
			}
		}
		day.Notes = strings.Join(notes, "; ")
		out[key] = day
	}
	return out
}

// IsBusy reports whether the evening of t's date is marked busy.
func (s Summary) IsBusy(t time.Time) bool {
	d, ok := s[timez.DayKey(t)]
	return ok && d.Status == StatusBusy
}

// Days returns the summary ordered by date.
func (s Summary) Days() []Day {
	out := make([]Day, 0, len(s))
	for _, d := range s {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// BusyCount is the number of busy days.
func (s Summary) BusyCount() int {
	n := 0
	for _, d := range s {
		if d.Status == StatusBusy {
			n++
		}
	}
	return n
}
