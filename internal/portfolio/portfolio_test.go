package portfolio

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/TobiSchelling/eventfolio/internal/availability"
	"github.com/TobiSchelling/eventfolio/internal/config"
	"github.com/TobiSchelling/eventfolio/internal/event"
	"github.com/TobiSchelling/eventfolio/internal/timez"
)

func ptr[T any](v T) *T { return &v }

// testRules mirrors a typical preference file: weekday evenings, overnight
// quiet hours, one event a day and two a week.
func testRules() Rules {
	sc := config.Scoring{HardRules: config.HardRules{NoOverlap: true, RespectAvailability: true}}
	var p config.Preferences
	p.TimeWindows.Evenings.Weekdays = ptr(timez.MustWindow("17:30", "21:30"))
	p.TimeWindows.QuietHours = timez.Windows{timez.MustWindow("22:30", "07:00")}
	p.Caps = config.Caps{MaxPerDay: ptr(1), MaxPerWeek: ptr(2)}
	p.Quotas.Weekly = map[string]int{"career_learning_min": 1}
	p.Quotas.Monthly = map[string]int{"major_flagship_min": 1}
	p.Categories.Map = config.GoalMap{"Lecture": {"career_learning_min"}}
	return NewRules(sc, p)
}

func ev(title string, start time.Time, d time.Duration, score float64) event.Event {
	e := event.Event{Title: title, Category: "Lecture", Start: start, End: start.Add(d), Score: score}
	e.UID = e.DerivedUID()
	return e
}

func day(d, h, m int) time.Time {
	return time.Date(2025, 10, d, h, m, 0, 0, time.UTC)
}

func TestDailyCapKeepsHigherScore(t *testing.T) {
	events := []event.Event{
		ev("One", day(1, 18, 0), time.Hour, 1.0),
		ev("Two", day(1, 19, 0), time.Hour, 1.5),
	}
	p := Choose(events, testRules(), nil)
	if len(p.Selected) != 1 || p.Selected[0].Title != "Two" {
		t.Fatalf("expected only the higher-scored event, got %v", titles(p.Selected))
	}
	if p.Summary.Rejections[GateDailyCap] != 1 {
		t.Errorf("expected one daily_cap rejection, got %v", p.Summary.Rejections)
	}
}

func TestDailyCapTieKeepsInputOrder(t *testing.T) {
	events := []event.Event{
		ev("One", day(1, 18, 0), 30*time.Minute, 1.0),
		ev("Two", day(1, 19, 0), 30*time.Minute, 1.0),
	}
	p := Choose(events, testRules(), nil)
	if len(p.Selected) != 1 || p.Selected[0].Title != "One" {
		t.Fatalf("expected first input to win the tie, got %v", titles(p.Selected))
	}
}

func TestTieBreakByUID(t *testing.T) {
	a := ev("Alpha", day(1, 18, 0), 30*time.Minute, 1.0)
	b := ev("Beta", day(1, 19, 0), 30*time.Minute, 1.0)
	rules := testRules()
	rules.TieBreakUID = true

	want := a.Title
	if b.UID < a.UID {
		want = b.Title
	}
	for _, order := range [][]event.Event{{a, b}, {b, a}} {
		p := Choose(order, rules, nil)
		if p.Selected[0].Title != want {
			t.Errorf("expected %s regardless of input order, got %s", want, p.Selected[0].Title)
		}
	}
}

func TestQuietHoursEndInsideWindow(t *testing.T) {
	rules := testRules()
	rules.Evenings = nil
	p := Choose([]event.Event{ev("Late", day(1, 22, 0), time.Hour, 1)}, rules, nil)
	if len(p.Selected) != 0 {
		t.Fatal("expected 22:00-23:00 to be rejected by 22:30-07:00 quiet hours")
	}
	if p.Rejected[0].Gate != GateQuietHours {
		t.Errorf("expected quiet_hours gate, got %s", p.Rejected[0].Gate)
	}
}

func TestQuietHoursContainedInsideEvent(t *testing.T) {
	rules := testRules()
	rules.Evenings = nil
	rules.QuietHours = timez.Windows{timez.MustWindow("13:00", "13:30")}
	p := Choose([]event.Event{ev("Long", day(1, 12, 0), 3*time.Hour, 1)}, rules, nil)
	if len(p.Selected) != 0 {
		t.Fatal("expected a quiet window inside the event span to reject it")
	}
}

func TestQuietHoursTouchingEndAllowed(t *testing.T) {
	rules := testRules()
	rules.Evenings = nil
	p := Choose([]event.Event{ev("Early", day(1, 21, 0), 90*time.Minute, 1)}, rules, nil)
	if len(p.Selected) != 1 {
		t.Fatalf("expected event ending exactly at quiet start to pass, got %v", p.Summary.Rejections)
	}
}

func TestEveningWindow(t *testing.T) {
	events := []event.Event{
		ev("Too early", day(1, 16, 0), time.Hour, 3),
		ev("Boundary", day(2, 21, 30), 30*time.Minute, 2),
		ev("Saturday", day(4, 11, 0), time.Hour, 1),
	}
	p := Choose(events, testRules(), nil)
	got := titles(p.Selected)
	if len(got) != 2 || got[0] != "Boundary" || got[1] != "Saturday" {
		t.Fatalf("expected Boundary and Saturday (no window), got %v", got)
	}
	if p.Rejected[0].Gate != GateEveningWindow {
		t.Errorf("expected evening_window gate, got %s", p.Rejected[0].Gate)
	}
}

func TestOverlapGate(t *testing.T) {
	rules := testRules()
	rules.Limits.PerDay = 5
	rules.Limits.PerWeek = 5
	events := []event.Event{
		ev("A", day(1, 18, 0), time.Hour, 3),
		ev("Touching", day(1, 19, 0), time.Hour, 2),
		ev("Overlapping", day(1, 18, 30), time.Hour, 1),
	}
	p := Choose(events, rules, nil)
	if got := titles(p.Selected); len(got) != 2 || got[1] != "Touching" {
		t.Fatalf("expected A and Touching, got %v", got)
	}
	if p.Summary.Rejections[GateOverlap] != 1 {
		t.Errorf("expected one overlap rejection, got %v", p.Summary.Rejections)
	}

	rules.NoOverlap = false
	if p := Choose(events, rules, nil); len(p.Selected) != 3 {
		t.Errorf("expected overlap allowed when rule disabled, got %d", len(p.Selected))
	}
}

func TestWeeklyAndWeekendCaps(t *testing.T) {
	rules := testRules()
	rules.Evenings = nil
	rules.Limits = config.Limits{PerDay: 3, PerWeek: 3, WeekendTotal: 1}
	events := []event.Event{
		ev("Sat", day(4, 12, 0), time.Hour, 5),
		ev("Sun", day(5, 12, 0), time.Hour, 4),
		ev("Mon", day(6, 18, 0), time.Hour, 3),
		ev("Tue", day(7, 18, 0), time.Hour, 2),
		ev("Wed", day(8, 18, 0), time.Hour, 1),
		ev("Thu", day(9, 18, 0), time.Hour, 0.5),
	}
	p := Choose(events, rules, nil)
	// Oct 4-5 are ISO week 40, Oct 6-9 are week 41.
	got := titles(p.Selected)
	want := []string{"Sat", "Mon", "Tue", "Wed"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if p.Summary.Rejections[GateWeekendCap] != 1 || p.Summary.Rejections[GateWeeklyCap] != 1 {
		t.Errorf("unexpected rejections %v", p.Summary.Rejections)
	}
	if p.Summary.WeeksScheduled != 2 {
		t.Errorf("expected 2 weeks scheduled, got %d", p.Summary.WeeksScheduled)
	}
}

func TestBusyEveningGate(t *testing.T) {
	avail := availability.Summary{
		"2025-10-01": {Date: "2025-10-01", Status: availability.StatusBusy, Notes: "Dentist"},
	}
	events := []event.Event{ev("Wed", day(1, 18, 0), time.Hour, 1)}

	p := Choose(events, testRules(), avail)
	if len(p.Selected) != 0 || p.Rejected[0].Gate != GateBusyEvening {
		t.Fatalf("expected busy evening rejection, got %+v", p.Rejected)
	}

	rules := testRules()
	rules.RespectAvailability = false
	if p := Choose(events, rules, avail); len(p.Selected) != 1 {
		t.Error("expected availability ignored when not respected")
	}
}

func TestInvalidStartSkippedWithoutCountingCaps(t *testing.T) {
	bad := event.Event{UID: "bad", Title: "No start", Score: 10}
	good := ev("Good", day(1, 18, 0), time.Hour, 1)
	p := Choose([]event.Event{bad, good}, testRules(), nil)
	if len(p.Selected) != 1 || p.Selected[0].Title != "Good" {
		t.Fatalf("expected the valid event selected, got %v", titles(p.Selected))
	}
	if p.Summary.Rejections[GateInvalidStart] != 1 {
		t.Errorf("expected invalid_start rejection, got %v", p.Summary.Rejections)
	}
}

func TestMissingEndUsesFallback(t *testing.T) {
	rules := testRules()
	rules.Limits.PerDay = 5
	a := event.Event{UID: "a", Title: "A", Start: day(1, 18, 0), Score: 2}
	b := ev("B", day(1, 19, 0), time.Hour, 1)
	p := Choose([]event.Event{a, b}, rules, nil)
	if len(p.Selected) != 1 {
		t.Fatalf("expected 90 minute fallback to overlap B, got %v", titles(p.Selected))
	}
}

func TestQuotaWeeklyIsMaxNotSum(t *testing.T) {
	rules := testRules()
	rules.Limits = config.Limits{PerDay: 2, PerWeek: 6, WeekendTotal: 4}
	events := []event.Event{
		ev("W40a", day(1, 18, 0), time.Hour, 1),
		ev("W40b", day(2, 18, 0), time.Hour, 1),
		ev("W41a", day(7, 18, 0), time.Hour, 1),
	}
	p := Choose(events, rules, nil)
	q := p.Summary.QuotaProgress.Weekly["career_learning_min"]
	if q.MaxCount != 2 || q.Target != 1 || !q.Met() {
		t.Errorf("expected max_count 2 against target 1, got %+v", q)
	}
	m := p.Summary.QuotaProgress.Monthly["major_flagship_min"]
	if m.Count != 0 || m.Met() {
		t.Errorf("expected unmet monthly quota, got %+v", m)
	}
}

func TestGoalAttributionFallsBackToTags(t *testing.T) {
	rules := testRules()
	rules.CategoryGoals["music"] = []string{"major_flagship_min"}
	rules.CategoryKeys = []string{"lecture", "music"}
	e := ev("Gig", day(1, 19, 0), time.Hour, 1)
	e.Category = "Concert"
	e.Tags = []string{"Live-Music"}
	p := Choose([]event.Event{e}, rules, nil)
	if got := p.Summary.QuotaProgress.Monthly["major_flagship_min"].Count; got != 1 {
		t.Errorf("expected tag substring to attribute goal, got %d", got)
	}
}

func TestChooseDoesNotMutateInput(t *testing.T) {
	events := []event.Event{
		ev("Low", day(1, 18, 0), time.Hour, 1),
		ev("High", day(2, 18, 0), time.Hour, 2),
	}
	Choose(events, testRules(), nil)
	if events[0].Title != "Low" {
		t.Error("expected input order to be preserved")
	}
}

func TestInvariantsOnRandomInput(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	rules := testRules()
	rules.Limits = config.Limits{PerDay: 2, PerWeek: 4, WeekendTotal: 2}
	rules.Evenings = nil
	rules.QuietHours = nil

	var events []event.Event
	for i := 0; i < 300; i++ {
		start := time.Date(2025, 10, 1+rng.Intn(40), rng.Intn(24), rng.Intn(4)*15, 0, 0, time.UTC)
		d := time.Duration(30+rng.Intn(240)) * time.Minute
		events = append(events, ev(fmt.Sprintf("e%d", i), start, d, float64(rng.Intn(10))/10))
	}
	p := Choose(events, rules, nil)
	if len(p.Selected)+len(p.Rejected) != len(events) {
		t.Fatalf("expected every event selected or rejected")
	}

	perWeek := map[timez.Week]int{}
	perDay := map[string]int{}
	weekend := map[timez.Week]int{}
	for i, a := range p.Selected {
		perWeek[timez.WeekOf(a.Start)]++
		perDay[timez.DayKey(a.Start)]++
		if timez.IsWeekend(a.Start) {
			weekend[timez.WeekOf(a.Start)]++
		}
		for _, b := range p.Selected[i+1:] {
			if a.Start.Before(b.End) && b.Start.Before(a.End) {
				t.Errorf("overlap between %s and %s", a.Title, b.Title)
			}
		}
	}
	for w, n := range perWeek {
		if n > rules.Limits.PerWeek {
			t.Errorf("week %s has %d events", w, n)
		}
	}
	for d, n := range perDay {
		if n > rules.Limits.PerDay {
			t.Errorf("day %s has %d events", d, n)
		}
	}
	for w, n := range weekend {
		if n > rules.Limits.WeekendTotal {
			t.Errorf("weekend of %s has %d events", w, n)
		}
	}
}

func TestMarkApproved(t *testing.T) {
	prev := []event.Event{ev("Kept", day(1, 18, 0), time.Hour, 1)}
	renamed := ev("Kept", day(1, 18, 0), time.Hour, 1)
	renamed.UID = "different"
	selected := []event.Event{renamed, ev("New", day(2, 18, 0), time.Hour, 1)}

	if n := MarkApproved(selected, prev); n != 1 {
		t.Fatalf("expected 1 approval, got %d", n)
	}
	if !selected[0].Approved || selected[1].Approved {
		t.Errorf("unexpected approval flags %v %v", selected[0].Approved, selected[1].Approved)
	}
}

func TestByDay(t *testing.T) {
	p := &Portfolio{Selected: []event.Event{
		ev("Late", day(2, 20, 0), time.Hour, 1),
		ev("First", day(1, 18, 0), time.Hour, 1),
		ev("Early", day(2, 18, 0), time.Hour, 1),
	}}
	days := p.ByDay()
	if len(days) != 2 || days[0].Date != "2025-10-01" {
		t.Fatalf("unexpected grouping %+v", days)
	}
	if days[1].Events[0].Title != "Early" {
		t.Errorf("expected events sorted by start, got %v", titles(days[1].Events))
	}
}

func titles(events []event.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Title
	}
	return out
}
