// Package timez holds the time-of-day and calendar bucketing helpers shared by
// the scorer, the availability overlay and the portfolio selector.
package timez

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"gopkg.in/yaml.v3"
)

// DefaultZone is used when the config does not name a timezone.
const DefaultZone = "America/Detroit"

const minutesPerDay = 24 * 60

// TimeOfDay is a wall-clock time without a date, e.g. "17:30".
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" (seconds, if present, are ignored).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return TimeOfDay{}, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid minute in %q", s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

// MustTimeOfDay is ParseTimeOfDay for literals in tests and defaults.
func MustTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

// Minutes returns minutes since midnight.
func (t TimeOfDay) Minutes() int {
	return t.Hour*60 + t.Minute
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// UnmarshalYAML accepts a "HH:MM" scalar.
func (t *TimeOfDay) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MarshalYAML writes the "HH:MM" form.
func (t TimeOfDay) MarshalYAML() (any, error) {
	return t.String(), nil
}

// MinuteOfDay returns the wall-clock minutes since midnight of t in its own location.
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// Week identifies an ISO (year, week) bucket.
type Week struct {
	Year int
	Num  int
}

// WeekOf returns the ISO week bucket of t.
func WeekOf(t time.Time) Week {
	y, w := t.ISOWeek()
	return Week{Year: y, Num: w}
}

func (w Week) String() string {
	return fmt.Sprintf("%d-W%02d", w.Year, w.Num)
}

// DayKey returns the calendar date of t as YYYY-MM-DD.
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// IsWeekend reports whether t falls on a Saturday or Sunday.
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// LoadZone resolves an IANA zone name, falling back to DefaultZone when empty.
func LoadZone(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultZone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", name, err)
	}
	return loc, nil
}

// Parse reads the loosely formatted datetimes scraped from event pages
// (ISO-8601, RFC1123, "October 3, 2025 7:00 PM", ...). Values without an
// explicit offset are interpreted in loc; the result is converted to loc.
func Parse(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty datetime")
	}
	t, err := dateparse.ParseIn(value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing datetime %q: %w", value, err)
	}
	return t.In(loc), nil
}

// DefaultDuration is the fallback length of an event with no usable end time.
func DefaultDuration(category string, allDay bool) time.Duration {
	if allDay {
		return 12 * time.Hour
	}
	c := strings.ToLower(category)
	switch {
	case c == "":
		return 2 * time.Hour
	case strings.Contains(c, "conference"), strings.Contains(c, "fair"):
		return 4 * time.Hour
	case strings.Contains(c, "workshop"), strings.Contains(c, "seminar"):
		return 2 * time.Hour
	case strings.Contains(c, "fitness"), strings.Contains(c, "outdoor"):
		return 90 * time.Minute
	default:
		return 75 * time.Minute
	}
}
