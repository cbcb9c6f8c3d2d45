package timez

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Window is a time-of-day range. End before Start means the window wraps
// past midnight (e.g. 22:30-07:00).
type Window struct {
	Start TimeOfDay
	End   TimeOfDay
}

// NewWindow builds a window from two "HH:MM" strings.
func NewWindow(start, end string) (Window, error) {
	s, err := ParseTimeOfDay(start)
	if err != nil {
		return Window{}, err
	}
	e, err := ParseTimeOfDay(end)
	if err != nil {
		return Window{}, err
	}
	return Window{Start: s, End: e}, nil
}

// MustWindow is NewWindow for literals.
func MustWindow(start, end string) Window {
	w, err := NewWindow(start, end)
	if err != nil {
		panic(err)
	}
	return w
}

// Wraps reports whether the window crosses midnight.
func (w Window) Wraps() bool {
	return w.End.Minutes() < w.Start.Minutes()
}

// Contains reports whether minute m falls in the half-open window [Start, End).
func (w Window) Contains(m int) bool {
	s, e := w.Start.Minutes(), w.End.Minutes()
	if s <= e {
		return s <= m && m < e
	}
	return m >= s || m < e
}

// ContainsInclusive is Contains with the End boundary included.
func (w Window) ContainsInclusive(m int) bool {
	s, e := w.Start.Minutes(), w.End.Minutes()
	if s <= e {
		return s <= m && m <= e
	}
	return m >= s || m <= e
}

// length is the window span in minutes; a zero-length window is empty.
func (w Window) length() int {
	return ((w.End.Minutes()-w.Start.Minutes())%minutesPerDay + minutesPerDay) % minutesPerDay
}

// Intersects reports whether the span starting at minute start and lasting
// dur minutes shares any minute with the window. Spans of a day or longer
// intersect every non-empty window.
func (w Window) Intersects(start int, dur time.Duration) bool {
	wl := w.length()
	if wl == 0 {
		return false
	}
	d := int(dur / time.Minute)
	if d <= 0 {
		return w.Contains(start)
	}
	if d >= minutesPerDay {
		return true
	}
	end := start + d
	ws := w.Start.Minutes()
	for _, shift := range []int{-minutesPerDay, 0, minutesPerDay} {
		a, b := ws+shift, ws+shift+wl
		if start < b && a < end {
			return true
		}
	}
	return false
}

func (w Window) String() string {
	return w.Start.String() + "-" + w.End.String()
}

// UnmarshalYAML accepts a two element sequence: ["17:30", "21:30"].
func (w *Window) UnmarshalYAML(value *yaml.Node) error {
	var pair []string
	if err := value.Decode(&pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("line %d: window needs exactly two times, got %d", value.Line, len(pair))
	}
	parsed, err := NewWindow(pair[0], pair[1])
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*w = parsed
	return nil
}

// MarshalYAML writes the two element form.
func (w Window) MarshalYAML() (any, error) {
	return []string{w.Start.String(), w.End.String()}, nil
}

// Windows is a list of windows that may be written in YAML either as a single
// pair (["22:30", "07:00"]) or as a list of pairs.
type Windows []Window

// UnmarshalYAML accepts both the single pair and the list-of-pairs forms.
func (ws *Windows) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.SequenceNode {
		return fmt.Errorf("line %d: expected a list of times", value.Line)
	}
	if len(value.Content) == 0 {
		*ws = nil
		return nil
	}
	if value.Content[0].Kind == yaml.ScalarNode {
		var w Window
		if err := w.UnmarshalYAML(value); err != nil {
			return err
		}
		*ws = Windows{w}
		return nil
	}
	out := make(Windows, 0, len(value.Content))
	for _, item := range value.Content {
		var w Window
		if err := w.UnmarshalYAML(item); err != nil {
			return err
		}
		out = append(out, w)
	}
	*ws = out
	return nil
}

// EveningWindows maps a weekday to its allowed start-time window.
type EveningWindows map[time.Weekday]Window

// For returns the window configured for t's weekday.
func (ew EveningWindows) For(t time.Time) (Window, bool) {
	w, ok := ew[t.Weekday()]
	return w, ok
}
