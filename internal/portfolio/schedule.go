package portfolio

import (
	"time"

	"github.com/TobiSchelling/eventfolio/internal/timez"
)

type interval struct {
	start, end time.Time
}

// schedule accumulates the state of one selection pass.
type schedule struct {
	perWeek     map[timez.Week]int
	perDay      map[string]int
	weekend     map[timez.Week]int
	intervals   []interval
	weeklyGoals map[timez.Week]map[string]int
	goalTotals  map[string]int
}

func newSchedule() *schedule {
	return &schedule{
		perWeek:     map[timez.Week]int{},
		perDay:      map[string]int{},
		weekend:     map[timez.Week]int{},
		weeklyGoals: map[timez.Week]map[string]int{},
		goalTotals:  map[string]int{},
	}
}

func (s *schedule) overlaps(start, end time.Time) bool {
	for _, iv := range s.intervals {
		latest := start
		if iv.start.After(latest) {
			latest = iv.start
		}
		earliest := end
		if iv.end.Before(earliest) {
			earliest = iv.end
		}
		if latest.Before(earliest) {
			return true
		}
	}
	return false
}

func (s *schedule) book(start, end time.Time, goals []string) {
	wk := timez.WeekOf(start)
	s.perWeek[wk]++
	s.perDay[timez.DayKey(start)]++
	if timez.IsWeekend(start) {
		s.weekend[wk]++
	}
	s.intervals = append(s.intervals, interval{start: start, end: end})
	if len(goals) == 0 {
		return
	}
	if s.weeklyGoals[wk] == nil {
		s.weeklyGoals[wk] = map[string]int{}
	}
	for _, g := range goals {
		s.weeklyGoals[wk][g]++
		s.goalTotals[g]++
	}
}

func (s *schedule) weeksScheduled() int {
	n := 0
	for _, c := range s.perWeek {
		if c > 0 {
			n++
		}
	}
	return n
}

func (s *schedule) maxWeekly(goal string) int {
	best := 0
	for _, counts := range s.weeklyGoals {
		if c := counts[goal]; c > best {
			best = c
		}
	}
	return best
}
