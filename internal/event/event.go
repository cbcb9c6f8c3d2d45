// Package event defines the candidate event record that flows from the
// source adapters through dedupe, scoring and selection.
package event

import (
	"errors"
	"strings"
	"time"

	"github.com/TobiSchelling/eventfolio/internal/identity"
	"github.com/TobiSchelling/eventfolio/internal/timez"
)

// Event is a candidate occurrence pulled from any source.
type Event struct {
	UID           string    `json:"uid"`
	Title         string    `json:"title"`
	Category      string    `json:"category,omitempty"`
	Tags          []string  `json:"tags,omitempty"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	AllDay        bool      `json:"all_day,omitempty"`
	Location      string    `json:"location,omitempty"`
	City          string    `json:"city,omitempty"`
	URL           string    `json:"url,omitempty"`
	Cost          string    `json:"cost,omitempty"`
	Organizer     string    `json:"organizer,omitempty"`
	Source        string    `json:"source,omitempty"`
	Notes         string    `json:"notes,omitempty"`
	Rationale     string    `json:"rationale,omitempty"`
	TravelMinutes *float64  `json:"travel_minutes,omitempty"`
	Score         float64   `json:"score"`
	Approved      bool      `json:"approved,omitempty"`
}

var (
	ErrMissingTitle = errors.New("event has no title")
	ErrMissingStart = errors.New("event has no start time")
)

// Validate reports the first reason e cannot be scheduled.
func (e *Event) Validate() error {
	if strings.TrimSpace(e.Title) == "" {
		return ErrMissingTitle
	}
	if e.Start.IsZero() {
		return ErrMissingStart
	}
	return nil
}

// Normalize moves times into loc, repairs a missing or inverted end and
// derives the UID when the source did not provide one.
func (e *Event) Normalize(loc *time.Location) {
	e.Title = strings.TrimSpace(e.Title)
	if loc != nil && !e.Start.IsZero() {
		e.Start = e.Start.In(loc)
		if !e.End.IsZero() {
			e.End = e.End.In(loc)
		}
	}
	if !e.Start.IsZero() && !e.End.After(e.Start) {
		e.End = e.Start.Add(timez.DefaultDuration(e.Category, e.AllDay))
	}
	if e.UID == "" {
		e.UID = e.DerivedUID()
	}
}

// DerivedUID computes the fingerprint from title, start and url-or-location.
func (e *Event) DerivedUID() string {
	ref := e.URL
	if ref == "" {
		ref = e.Location
	}
	return identity.EventUID(e.Title, e.Start, ref)
}

// Duration is End minus Start.
func (e *Event) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// Text concatenates the free-text fields used for keyword matching.
func (e *Event) Text() string {
	return strings.Join([]string{e.Title, e.Notes, e.Category, e.Organizer, e.URL}, " ")
}

// HasTag reports whether e carries tag, case-insensitively.
func (e *Event) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// ApprovalKey identifies an event across portfolios when uids differ.
func (e *Event) ApprovalKey() string {
	return identity.Normalize(e.Title) + "|" + e.Start.Format(time.RFC3339)
}
