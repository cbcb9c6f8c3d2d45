package score

import (
	"math"
	"testing"
	"time"

	"github.com/TobiSchelling/eventfolio/internal/config"
	"github.com/TobiSchelling/eventfolio/internal/event"
	"github.com/TobiSchelling/eventfolio/internal/timez"
)

func ptr[T any](v T) *T { return &v }

func testScoring() config.Scoring {
	return config.Scoring{
		Weights: map[string]float64{
			"goals.career_learning": 0.3,
			"novelty":               0.1,
			"travel_time_penalty":   -0.1,
		},
		GoalKeywords:    map[string][]string{"career_learning": {"climate", "energy"}},
		CategoryWeights: map[string]float64{"lecture": 0.05},
		CostPreferences: config.CostPreferences{FreeBonus: 0.05},
		NoveltySources:  []string{"source-a"},
		Travel:          config.Travel{PenaltyAboveMinutes: 45, BonusAtOrBelowMinutes: 30},
	}
}

func testPreferences() config.Preferences {
	var p config.Preferences
	p.Weights.Goals = map[string]float64{"career_learning": 0.4}
	p.Weights.Flat = map[string]float64{"must_see_bonus": 0.2}
	p.Categories.Map = config.GoalMap{"Lecture": {"career_learning"}}
	p.Categories.MustSeeKeywords = []string{"keynote"}
	p.StartTime.LateStartPenaltyAfter = ptr(timez.MustTimeOfDay("20:00"))
	p.StartTime.LateStartPenalty = ptr(-0.04)
	return p
}

func at(hour int) time.Time {
	return time.Date(2025, 10, 1, hour, 0, 0, 0, time.UTC)
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestScoreCombinesTerms(t *testing.T) {
	s := New(testScoring(), testPreferences())
	e := event.Event{
		Title:    "Climate keynote",
		Category: "Lecture",
		URL:      "https://example.com",
		Start:    at(19),
		Source:   "source-a",
		Cost:     "Free",
	}
	b := s.Explain(&e)

	// keyword "climate" x 0.4, reinforcement 0.4, category 0.05, free 0.05,
	// novelty 0.1, must-see 0.2
	if !approx(b.Keywords["career_learning"], 0.4) {
		t.Errorf("expected keyword term 0.4, got %v", b.Keywords)
	}
	if !approx(b.Reinforcement, 0.4) {
		t.Errorf("expected reinforcement 0.4, got %v", b.Reinforcement)
	}
	if !approx(b.Total, 1.2) {
		t.Errorf("expected total 1.2, got %v", b.Total)
	}
	if b.LateStart != 0 {
		t.Errorf("expected no late penalty at 19:00, got %v", b.LateStart)
	}
}

func TestKeywordMatchesCountDistinctKeywords(t *testing.T) {
	s := New(testScoring(), config.Preferences{})
	e := event.Event{Title: "Climate & Energy: climate futures", Start: at(18)}
	b := s.Explain(&e)
	if !approx(b.Keywords["career_learning"], 0.6) {
		t.Errorf("expected 2 keywords x 0.3, got %v", b.Keywords["career_learning"])
	}
}

func TestReinforcementCountsEachGoalOnce(t *testing.T) {
	p := testPreferences()
	p.Categories.Map["talks"] = []string{"career_learning"}
	s := New(testScoring(), p)
	e := event.Event{Title: "x", Category: "lecture", Tags: []string{"Talks"}, Start: at(18)}
	if b := s.Explain(&e); !approx(b.Reinforcement, 0.4) {
		t.Errorf("expected goal reinforced once, got %v", b.Reinforcement)
	}
}

func TestFreeVersusPaidDifference(t *testing.T) {
	sc := testScoring()
	sc.Weights["cost_penalty"] = -0.1
	s := New(sc, config.Preferences{})

	free := event.Event{Title: "Gallery opening", Start: at(18), Cost: "Free"}
	paid := event.Event{Title: "Gallery opening", Start: at(18), Cost: "$20"}
	diff := s.Score(&free) - s.Score(&paid)
	if !approx(round4(diff), 0.15) {
		t.Errorf("expected difference 0.15, got %v", diff)
	}
}

func TestTravelAdjustment(t *testing.T) {
	s := New(testScoring(), config.Preferences{})
	cases := []struct {
		minutes float64
		want    float64
	}{
		{60, -0.1},
		{45, 0},
		{31, 0},
		{30, 0.03},
		{5, 0.03},
	}
	for _, tc := range cases {
		e := event.Event{Title: "x", Start: at(18), TravelMinutes: ptr(tc.minutes)}
		if got := s.Explain(&e).Travel; !approx(got, tc.want) {
			t.Errorf("travel %v: expected %v, got %v", tc.minutes, tc.want, got)
		}
	}

	noTravel := event.Event{Title: "x", Start: at(18)}
	if got := s.Explain(&noTravel).Travel; got != 0 {
		t.Errorf("expected no travel term without minutes, got %v", got)
	}
}

func TestTravelPenaltyDefaultsWhenUnset(t *testing.T) {
	s := New(config.Scoring{}, config.Preferences{})
	e := event.Event{Title: "x", Start: at(18), TravelMinutes: ptr(90.0)}
	if got := s.Explain(&e).Travel; !approx(got, -0.1) {
		t.Errorf("expected default penalty -0.1, got %v", got)
	}
}

func TestLateStartPenalty(t *testing.T) {
	s := New(testScoring(), testPreferences())
	late := event.Event{Title: "x", Start: at(20)}
	if got := s.Explain(&late).LateStart; !approx(got, -0.04) {
		t.Errorf("expected -0.04 at 20:00, got %v", got)
	}

	p := testPreferences()
	p.StartTime.LateStartPenalty = nil
	sc := testScoring()
	sc.Weights["evening_penalty"] = -0.07
	if got := New(sc, p).Explain(&late).LateStart; !approx(got, -0.07) {
		t.Errorf("expected evening_penalty fallback, got %v", got)
	}
	if got := New(testScoring(), p).Explain(&late).LateStart; !approx(got, -0.05) {
		t.Errorf("expected -0.05 default, got %v", got)
	}
}

func TestMissingConfigIsNeutral(t *testing.T) {
	s := New(config.Scoring{}, config.Preferences{})
	e := event.Event{Title: "Anything", Category: "Lecture", Cost: "$5", Start: at(23), Source: "x"}
	if got := s.Score(&e); got != 0 {
		t.Errorf("expected zero score with empty config, got %v", got)
	}
}

func TestAttachWritesScores(t *testing.T) {
	s := New(testScoring(), testPreferences())
	events := []event.Event{
		{Title: "Energy meetup", Category: "Lecture", Start: at(19)},
		{Title: "Unrelated", Start: at(19)},
	}
	s.Attach(events)
	if events[0].Score <= events[1].Score {
		t.Errorf("expected matching event to score higher: %v vs %v", events[0].Score, events[1].Score)
	}
}

func TestScoreRoundedToFourPlaces(t *testing.T) {
	sc := config.Scoring{CategoryWeights: map[string]float64{"x": 0.123456789}}
	s := New(sc, config.Preferences{})
	e := event.Event{Title: "t", Category: "X", Start: at(18)}
	if got := s.Score(&e); got != 0.1235 {
		t.Errorf("expected 0.1235, got %v", got)
	}
}

func TestKeywordTermsSumInGoalOrder(t *testing.T) {
	goals := []string{"arts", "civic", "craft", "food", "music", "outdoors", "science", "social"}
	sc := config.Scoring{Weights: map[string]float64{}, GoalKeywords: map[string][]string{}}
	for i, g := range goals {
		sc.Weights["goals."+g] = 0.1 / float64(3+i)
		sc.GoalKeywords[g] = []string{"jazz"}
	}
	s := New(sc, config.Preferences{})
	e := event.Event{Title: "Jazz in the park", Start: at(18)}

	want := 0.0
	for _, g := range goals {
		want += sc.Weights["goals."+g]
	}
	first := s.Explain(&e).Total
	if first != round4(want) {
		t.Errorf("expected %v, got %v", round4(want), first)
	}
	for i := 0; i < 100; i++ {
		if got := s.Explain(&e).Total; got != first {
			t.Fatalf("score changed between calls: %v then %v", first, got)
		}
	}
}
