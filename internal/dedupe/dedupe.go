// Package dedupe collapses duplicate candidate events within a run and
// against the registry of uids seen by earlier runs.
package dedupe

import (
	"time"

	"github.com/TobiSchelling/eventfolio/internal/event"
	"github.com/TobiSchelling/eventfolio/internal/identity"
)

// Dedupe splits events into first occurrences and duplicates. Events without
// a uid get one derived from their identity fields. A uid already present in
// reg is always a duplicate. Every newly unique uid is added to reg with the
// event start as its first-seen time; call reg.Save to persist.
func Dedupe(events []event.Event, reg *Registry, now time.Time) (unique, duplicates []event.Event) {
	seen := make(map[string]bool, len(events))
	for _, e := range events {
		if e.UID == "" {
			e.UID = e.DerivedUID()
		}
		if seen[e.UID] || reg.Contains(e.UID) {
			duplicates = append(duplicates, e)
			continue
		}
		seen[e.UID] = true
		unique = append(unique, e)
		reg.Add(Entry{
			UID:        e.UID,
			FirstSeen:  e.Start,
			Title:      e.Title,
			Source:     e.Source,
			RecordedAt: now,
		})
	}
	return unique, duplicates
}

// SimilarityKey is a coarse title|date|venue key for spotting near
// duplicates that slipped past uid matching.
func SimilarityKey(e event.Event) string {
	var date string
	if !e.Start.IsZero() {
		date = e.Start.Format("2006-01-02")
	}
	ref := e.Location
	if ref == "" {
		ref = e.URL
	}
	return identity.Normalize(e.Title) + "|" + date + "|" + identity.Normalize(ref)
}

// NearDuplicates groups events sharing a SimilarityKey, keeping only groups
// with more than one member. Groups are returned in first-seen order.
func NearDuplicates(events []event.Event) [][]event.Event {
	index := map[string]int{}
	var groups [][]event.Event
	for _, e := range events {
		k := SimilarityKey(e)
		i, ok := index[k]
		if !ok {
			index[k] = len(groups)
			groups = append(groups, []event.Event{e})
			continue
		}
		groups[i] = append(groups[i], e)
	}
	out := groups[:0]
	for _, g := range groups {
		if len(g) > 1 {
			out = append(out, g)
		}
	}
	return out
}
