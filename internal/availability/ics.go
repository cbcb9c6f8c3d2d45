package availability

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"
)

// maxOccurrences caps recurrence expansion per VEVENT.
const maxOccurrences = 1000

// Busy is one occupied interval from the personal calendar.
type Busy struct {
	Start  time.Time
	End    time.Time
	Title  string
	AllDay bool
}

// LoadFile parses the calendar at path. A missing file yields no entries.
func LoadFile(path string, loc *time.Location, from, to time.Time) ([]Busy, error) {
	body, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading calendar %s: %w", path, err)
	}
	return ParseICS(body, loc, from, to)
}

// ParseICS extracts busy intervals from an ICS payload. Recurring entries are
// expanded within [from, to]; all times are converted to loc. A VEVENT without
// DTEND lasts one hour.
func ParseICS(body []byte, loc *time.Location, from, to time.Time) ([]Busy, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing calendar: %w", err)
	}

	var out []Busy
	for _, ve := range cal.Events() {
		b, ok := parseVEvent(ve, loc)
		if !ok {
			continue
		}
		rule := ve.GetProperty(ical.ComponentPropertyRrule)
		if rule == nil || rule.Value == "" {
			out = append(out, b)
			continue
		}
		occ, err := expand(b, rule.Value, exDates(ve, loc), from, to)
		if err != nil {
			log.Printf("  availability: skipping %q: %v", b.Title, err)
			continue
		}
		out = append(out, occ...)
	}
	return out, nil
}

func parseVEvent(ve *ical.VEvent, loc *time.Location) (Busy, bool) {
	start, end, allDay, ok := EventSpan(ve, loc)
	if !ok {
		return Busy{}, false
	}
	b := Busy{Start: start, End: end, AllDay: allDay}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		b.Title = strings.TrimSpace(p.Value)
	}
	return b, true
}

// EventSpan resolves the start and end of a VEVENT in loc. A date-only
// DTSTART is an all-day entry ending at the next midnight unless DTEND says
// otherwise. A timed entry without a usable DTEND lasts one hour.
func EventSpan(ve *ical.VEvent, loc *time.Location) (start, end time.Time, allDay, ok bool) {
	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil || dtStart.Value == "" {
		return start, end, false, false
	}

	if !strings.Contains(dtStart.Value, "T") {
		day, err := time.ParseInLocation("20060102", dtStart.Value, loc)
		if err != nil {
			return start, end, false, false
		}
		end = day.AddDate(0, 0, 1)
		if p := ve.GetProperty(ical.ComponentPropertyDtEnd); p != nil {
			if e, err := time.ParseInLocation("20060102", p.Value, loc); err == nil && e.After(day) {
				end = e
			}
		}
		return day, end, true, true
	}

	s, err := ve.GetStartAt()
	if err != nil {
		return start, end, false, false
	}
	start = s.In(loc)
	end = start.Add(time.Hour)
	if ve.GetProperty(ical.ComponentPropertyDtEnd) != nil {
		if e, err := ve.GetEndAt(); err == nil && e.After(s) {
			end = e.In(loc)
		}
	}
	return start, end, false, true
}

func exDates(ve *ical.VEvent, loc *time.Location) []time.Time {
	var out []time.Time
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			var (
				t   time.Time
				err error
			)
			switch {
			case part == "":
				continue
			case strings.HasSuffix(part, "Z"):
				t, err = time.Parse("20060102T150405Z", part)
			case strings.Contains(part, "T"):
				t, err = time.ParseInLocation("20060102T150405", part, loc)
			default:
				t, err = time.ParseInLocation("20060102", part, loc)
			}
			if err == nil {
				out = append(out, t)
			}
		}
	}
	return out
}

func expand(base Busy, raw string, exclude []time.Time, from, to time.Time) ([]Busy, error) {
	r, err := rrule.StrToRRule(raw)
	if err != nil {
		return nil, fmt.Errorf("bad RRULE %q: %w", raw, err)
	}
	r.DTStart(base.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range exclude {
		set.ExDate(ex.In(base.Start.Location()))
	}

	dur := base.End.Sub(base.Start)
	starts := set.Between(from.Add(-dur), to, true)
	if len(starts) > maxOccurrences {
		starts = starts[:maxOccurrences]
	}
	out := make([]Busy, 0, len(starts))
	for _, s := range starts {
		out = append(out, Busy{Start: s, End: s.Add(dur), Title: base.Title, AllDay: base.AllDay})
	}
	return out, nil
}
