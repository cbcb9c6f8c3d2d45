// Package portfolio selects a bounded set of events from scored candidates,
// admitting each event greedily by score through a fixed sequence of gates.
package portfolio

import (
	"sort"
	"strings"
	"time"

	"github.com/TobiSchelling/eventfolio/internal/availability"
	"github.com/TobiSchelling/eventfolio/internal/event"
	"github.com/TobiSchelling/eventfolio/internal/timez"
)

// Gate names the admission check that rejected an event.
type Gate string

const (
	GateInvalidStart  Gate = "invalid_start"
	GateOverlap       Gate = "overlap"
	GateQuietHours    Gate = "quiet_hours"
	GateEveningWindow Gate = "evening_window"
	GateWeeklyCap     Gate = "weekly_cap"
	GateDailyCap      Gate = "daily_cap"
	GateWeekendCap    Gate = "weekend_cap"
	GateBusyEvening   Gate = "busy_evening"
)

// Gates lists every gate in evaluation order.
var Gates = []Gate{
	GateInvalidStart, GateOverlap, GateQuietHours, GateEveningWindow,
	GateWeeklyCap, GateDailyCap, GateWeekendCap, GateBusyEvening,
}

// fallbackDuration applies to events that reach the selector without an end.
const fallbackDuration = 90 * time.Minute

type Portfolio struct {
	Selected []event.Event `json:"selected"`
	Summary  Summary       `json:"summary"`
	Rejected []Rejection   `json:"rejected,omitempty"`
}

type Summary struct {
	TotalSelected  int           `json:"total_selected"`
	WeeksScheduled int           `json:"weeks_scheduled"`
	QuotaProgress  QuotaProgress `json:"quota_progress"`
	Rejections     map[Gate]int  `json:"rejections,omitempty"`
}

type QuotaProgress struct {
	Weekly  map[string]WeeklyQuota  `json:"weekly"`
	Monthly map[string]MonthlyQuota `json:"monthly"`
}

// WeeklyQuota compares the busiest week's count for a goal to its target.
type WeeklyQuota struct {
	Target   int `json:"target"`
	MaxCount int `json:"max_count"`
}

// MonthlyQuota compares the selection's total for a goal to its target.
type MonthlyQuota struct {
	Target int `json:"target"`
	Count  int `json:"count"`
}

// Met reports whether the weekly target was reached in at least one week.
func (q WeeklyQuota) Met() bool { return q.MaxCount >= q.Target }

// Met reports whether the monthly target was reached.
func (q MonthlyQuota) Met() bool { return q.Count >= q.Target }

// Rejection records the first gate an event failed.
type Rejection struct {
	UID   string    `json:"uid"`
	Title string    `json:"title"`
	Start time.Time `json:"start,omitempty"`
	Gate  Gate      `json:"gate"`
}

// Choose runs the greedy selection. avail may be nil.
func Choose(events []event.Event, rules Rules, avail availability.Summary) *Portfolio {
	ordered := make([]event.Event, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Score != ordered[j].Score {
			return ordered[i].Score > ordered[j].Score
		}
		if rules.TieBreakUID {
			return ordered[i].UID < ordered[j].UID
		}
		return false
	})

	p := &Portfolio{Selected: []event.Event{}}
	rejections := map[Gate]int{}
	sched := newSchedule()

	for _, e := range ordered {
		end := e.End
		if !e.Start.IsZero() && !end.After(e.Start) {
			end = e.Start.Add(fallbackDuration)
		}
		if gate, ok := rules.admit(sched, e, end, avail); !ok {
			rejections[gate]++
			p.Rejected = append(p.Rejected, Rejection{UID: e.UID, Title: e.Title, Start: e.Start, Gate: gate})
			continue
		}
		p.Selected = append(p.Selected, e)
		sched.book(e.Start, end, rules.goalsFor(e))
	}

	p.Summary = Summary{
		TotalSelected:  len(p.Selected),
		WeeksScheduled: sched.weeksScheduled(),
		QuotaProgress: QuotaProgress{
			Weekly:  map[string]WeeklyQuota{},
			Monthly: map[string]MonthlyQuota{},
		},
	}
	if len(rejections) > 0 {
		p.Summary.Rejections = rejections
	}
	for goal, target := range rules.WeeklyQuotas {
		p.Summary.QuotaProgress.Weekly[goal] = WeeklyQuota{Target: target, MaxCount: sched.maxWeekly(goal)}
	}
	for goal, target := range rules.MonthlyQuotas {
		p.Summary.QuotaProgress.Monthly[goal] = MonthlyQuota{Target: target, Count: sched.goalTotals[goal]}
	}
	return p
}

// admit evaluates the gates in order and returns the first one that fails.
func (r Rules) admit(s *schedule, e event.Event, end time.Time, avail availability.Summary) (Gate, bool) {
	if e.Start.IsZero() {
		return GateInvalidStart, false
	}
	start := e.Start

	if r.NoOverlap && s.overlaps(start, end) {
		return GateOverlap, false
	}

	startMin := timez.MinuteOfDay(start)
	for _, w := range r.QuietHours {
		if w.Intersects(startMin, end.Sub(start)) {
			return GateQuietHours, false
		}
	}

	if w, ok := r.Evenings.For(start); ok && !w.ContainsInclusive(startMin) {
		return GateEveningWindow, false
	}

	wk := timez.WeekOf(start)
	if s.perWeek[wk] >= r.Limits.PerWeek {
		return GateWeeklyCap, false
	}
	if s.perDay[timez.DayKey(start)] >= r.Limits.PerDay {
		return GateDailyCap, false
	}
	if timez.IsWeekend(start) && s.weekend[wk] >= r.Limits.WeekendTotal {
		return GateWeekendCap, false
	}

	if avail != nil && r.RespectAvailability && avail.IsBusy(start) {
		return GateBusyEvening, false
	}
	return "", true
}

// goalsFor attributes an event to goals by its category, falling back to the
// first map key contained in any of its tags.
func (r Rules) goalsFor(e event.Event) []string {
	if goals, ok := r.CategoryGoals[strings.ToLower(e.Category)]; ok && e.Category != "" && len(goals) > 0 {
		return goals
	}
	for _, key := range r.CategoryKeys {
		for _, tag := range e.Tags {
			if strings.Contains(strings.ToLower(tag), key) {
				return r.CategoryGoals[key]
			}
		}
	}
	return nil
}

// MarkApproved flags selected events that also appeared in the previous
// portfolio, matching by uid and then by title and start.
func MarkApproved(selected []event.Event, previous []event.Event) int {
	uids := make(map[string]bool, len(previous))
	keys := make(map[string]bool, len(previous))
	for _, e := range previous {
		uids[e.UID] = true
		keys[e.ApprovalKey()] = true
	}
	n := 0
	for i := range selected {
		if uids[selected[i].UID] || keys[selected[i].ApprovalKey()] {
			selected[i].Approved = true
			n++
		}
	}
	return n
}

// ByDay groups the selection by calendar date, in date order.
func (p *Portfolio) ByDay() []DayPlan {
	index := map[string]int{}
	var out []DayPlan
	for _, e := range p.Selected {
		key := timez.DayKey(e.Start)
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, DayPlan{Date: key, Weekday: e.Start.Weekday().String()})
		}
		out[i].Events = append(out[i].Events, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	for i := range out {
		evs := out[i].Events
		sort.SliceStable(evs, func(a, b int) bool { return evs[a].Start.Before(evs[b].Start) })
	}
	return out
}

// DayPlan is one day of the selection.
type DayPlan struct {
	Date    string
	Weekday string
	Events  []event.Event
}
