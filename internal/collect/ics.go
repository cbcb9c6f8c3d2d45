package collect

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	ical "github.com/arran4/golang-ical"

	"github.com/TobiSchelling/eventfolio/internal/availability"
	"github.com/TobiSchelling/eventfolio/internal/config"
	"github.com/TobiSchelling/eventfolio/internal/event"
)

// ICS reads iCalendar feeds. Feed UIDs are not kept: the same event listed
// by two calendars must fingerprint the same.
type ICS struct {
	Pages Page
}

func (a *ICS) Name() string { return "ics" }

func (a *ICS) Pull(ctx context.Context, src config.Source, w Window) ([]event.Event, error) {
	body, err := a.Pages.Get(ctx, src.URL)
	if err != nil {
		return nil, err
	}
	if !bytes.Contains(body, []byte("BEGIN:VCALENDAR")) {
		return nil, ErrUnsupported
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing calendar: %w", err)
	}

	var events []event.Event
	for _, ve := range cal.Events() {
		start, end, allDay, ok := availability.EventSpan(ve, w.Loc)
		if !ok {
			continue
		}
		e := fromSource(src)
		e.Start, e.End, e.AllDay = start, end, allDay
		e.Title = firstNonEmpty(prop(ve, ical.ComponentPropertySummary), "Untitled Event")
		e.Location = firstNonEmpty(prop(ve, ical.ComponentPropertyLocation), src.City)
		e.Notes = prop(ve, ical.ComponentPropertyDescription)
		e.URL = prop(ve, ical.ComponentPropertyUrl)
		if !w.Admits(e) {
			continue
		}
		events = append(events, e)
	}
	return events, nil
}

func prop(ve *ical.VEvent, p ical.ComponentProperty) string {
	if v := ve.GetProperty(p); v != nil {
		return strings.TrimSpace(v.Value)
	}
	return ""
}
