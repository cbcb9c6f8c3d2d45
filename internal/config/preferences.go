package config

import (
	"sort"
	"strings"
	"time"

	"github.com/TobiSchelling/eventfolio/internal/timez"
)

// Cap defaults used when neither the preferences nor the hard rules set one.
const (
	DefaultMaxPerDay       = 2
	DefaultMaxPerWeek      = 6
	DefaultMaxWeekendTotal = 4
)

// Limits are the resolved selection caps.
type Limits struct {
	PerDay       int
	PerWeek      int
	WeekendTotal int
}

// GoalWeightKey is the weight key a goal's weight is stored under.
func GoalWeightKey(goal string) string {
	return "goals." + goal
}

// MergeWeights combines scoring weights with preference weights. Preference
// values win; preference goal weights land under "goals.<goal>".
func MergeWeights(s Scoring, p Preferences) map[string]float64 {
	out := make(map[string]float64, len(s.Weights)+len(p.Weights.Goals)+len(p.Weights.Flat))
	for k, w := range s.Weights {
		out[k] = w
	}
	for goal, w := range p.Weights.Goals {
		out[GoalWeightKey(goal)] = w
	}
	for k, w := range p.Weights.Flat {
		out[k] = w
	}
	return out
}

// CategoryGoals returns the category map with lower-cased keys and empty goal
// names dropped.
func (p Preferences) CategoryGoals() map[string][]string {
	out := make(map[string][]string, len(p.Categories.Map))
	for key, goals := range p.Categories.Map {
		kept := make([]string, 0, len(goals))
		for _, g := range goals {
			if g != "" {
				kept = append(kept, g)
			}
		}
		out[strings.ToLower(key)] = kept
	}
	return out
}

// CategoryKeys returns the lower-cased category map keys in sorted order.
func (p Preferences) CategoryKeys() []string {
	goals := p.CategoryGoals()
	keys := make([]string, 0, len(goals))
	for k := range goals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// EveningWindows expands the weekday/saturday/sunday definitions into a
// per-weekday lookup. Days without a window are absent.
func (p Preferences) EveningWindows() timez.EveningWindows {
	ev := p.TimeWindows.Evenings
	out := timez.EveningWindows{}
	if ev.Weekdays != nil {
		for d := time.Monday; d <= time.Friday; d++ {
			out[d] = *ev.Weekdays
		}
	}
	if ev.Saturday != nil {
		out[time.Saturday] = *ev.Saturday
	}
	if ev.Sunday != nil {
		out[time.Sunday] = *ev.Sunday
	}
	return out
}

// QuietHours returns the preference quiet windows, falling back to the hard
// rules' evening quiet hours.
func QuietHours(s Scoring, p Preferences) timez.Windows {
	if len(p.TimeWindows.QuietHours) > 0 {
		return p.TimeWindows.QuietHours
	}
	return s.HardRules.EveningQuietHours
}

// ResolveLimits applies cap precedence: preferences, then hard rules, then
// the package defaults.
func ResolveLimits(s Scoring, p Preferences) Limits {
	l := Limits{
		PerDay:       DefaultMaxPerDay,
		PerWeek:      DefaultMaxPerWeek,
		WeekendTotal: DefaultMaxWeekendTotal,
	}
	if s.HardRules.MaxEventsPerWeek != nil {
		l.PerWeek = *s.HardRules.MaxEventsPerWeek
	}
	if p.Caps.MaxPerWeek != nil {
		l.PerWeek = *p.Caps.MaxPerWeek
	}
	if p.Caps.MaxPerDay != nil {
		l.PerDay = *p.Caps.MaxPerDay
	}
	if p.Caps.MaxWeekendTotal != nil {
		l.WeekendTotal = *p.Caps.MaxWeekendTotal
	}
	return l
}

// Goals returns every goal name referenced by weights, keywords, quotas or the
// category map, sorted.
func Goals(s Scoring, p Preferences) []string {
	set := map[string]bool{}
	for k := range s.Weights {
		if g, ok := strings.CutPrefix(k, "goals."); ok {
			set[g] = true
		}
	}
	for g := range p.Weights.Goals {
		set[g] = true
	}
	for g := range s.GoalKeywords {
		set[g] = true
	}
	for g := range p.Quotas.Weekly {
		set[g] = true
	}
	for g := range p.Quotas.Monthly {
		set[g] = true
	}
	for _, goals := range p.Categories.Map {
		for _, g := range goals {
			if g != "" {
				set[g] = true
			}
		}
	}
	out := make([]string, 0, len(set))
	for g := range set {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}
