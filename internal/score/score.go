// Package score assigns each candidate event an additive desirability score
// from the scoring config and the preference model.
package score

import (
	"math"
	"sort"
	"strings"

	"github.com/TobiSchelling/eventfolio/internal/config"
	"github.com/TobiSchelling/eventfolio/internal/event"
	"github.com/TobiSchelling/eventfolio/internal/identity"
	"github.com/TobiSchelling/eventfolio/internal/timez"
)

// Weight keys read from the merged weight table.
const (
	KeyTravelPenalty  = "travel_time_penalty"
	KeyCostPenalty    = "cost_penalty"
	KeyNovelty        = "novelty"
	KeyMustSeeBonus   = "must_see_bonus"
	KeyEveningPenalty = "evening_penalty"
)

const (
	defaultTravelPenalty    = -0.1
	defaultLateStartPenalty = -0.05
	nearTravelFraction      = 0.3
)

// Breakdown is the per-term contribution to an event's score.
type Breakdown struct {
	Keywords      map[string]float64 `json:"keywords,omitempty"`
	Reinforcement float64            `json:"reinforcement"`
	Category      float64            `json:"category"`
	Travel        float64            `json:"travel"`
	Cost          float64            `json:"cost"`
	Novelty       float64            `json:"novelty"`
	LateStart     float64            `json:"late_start"`
	MustSee       float64            `json:"must_see"`
	Total         float64            `json:"total"`
}

type goalKeywords struct {
	goal     string
	keywords []string
}

// Scorer holds the lookups resolved once from config.
type Scorer struct {
	weights         map[string]float64
	keywords        []goalKeywords
	categoryGoals   map[string][]string
	categoryWeights map[string]float64
	freeBonus       float64
	novelty         map[string]bool
	travelAbove     float64
	travelNear      float64
	lateAfter       *timez.TimeOfDay
	latePenalty     float64
	mustSee         []string
}

// New builds a Scorer. Missing keys resolve to neutral values.
func New(sc config.Scoring, prefs config.Preferences) *Scorer {
	s := &Scorer{
		weights:         config.MergeWeights(sc, prefs),
		categoryGoals:   prefs.CategoryGoals(),
		categoryWeights: make(map[string]float64, len(sc.CategoryWeights)),
		freeBonus:       sc.CostPreferences.FreeBonus,
		novelty:         make(map[string]bool, len(sc.NoveltySources)),
		travelAbove:     sc.Travel.PenaltyAboveMinutes,
		travelNear:      sc.Travel.BonusAtOrBelowMinutes,
		lateAfter:       prefs.StartTime.LateStartPenaltyAfter,
	}
	if s.travelAbove == 0 && s.travelNear == 0 {
		s.travelAbove, s.travelNear = 45, 30
	}

	goals := make([]string, 0, len(sc.GoalKeywords))
	for g := range sc.GoalKeywords {
		goals = append(goals, g)
	}
	sort.Strings(goals)
	for _, g := range goals {
		s.keywords = append(s.keywords, goalKeywords{goal: g, keywords: normalizeAll(sc.GoalKeywords[g])})
	}

	for k, w := range sc.CategoryWeights {
		s.categoryWeights[strings.ToLower(k)] = w
	}
	for _, src := range sc.NoveltySources {
		s.novelty[src] = true
	}

	s.latePenalty = defaultLateStartPenalty
	if w, ok := s.weights[KeyEveningPenalty]; ok {
		s.latePenalty = w
	}
	if prefs.StartTime.LateStartPenalty != nil {
		s.latePenalty = *prefs.StartTime.LateStartPenalty
	}
	s.mustSee = normalizeAll(prefs.Categories.MustSeeKeywords)
	return s
}

func normalizeAll(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		if n := identity.Normalize(w); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// Score returns the rounded total for e.
func (s *Scorer) Score(e *event.Event) float64 {
	return s.Explain(e).Total
}

// Attach writes each event's score in place.
func (s *Scorer) Attach(events []event.Event) {
	for i := range events {
		events[i].Score = s.Score(&events[i])
	}
}

// Explain computes every term of the score for e.
func (s *Scorer) Explain(e *event.Event) Breakdown {
	var b Breakdown
	text := identity.Normalize(e.Text())

	for _, gk := range s.keywords {
		matches := 0
		for _, kw := range gk.keywords {
			if strings.Contains(text, kw) {
				matches++
			}
		}
		if matches == 0 {
			continue
		}
		if b.Keywords == nil {
			b.Keywords = map[string]float64{}
		}
		b.Keywords[gk.goal] = float64(matches) * s.weights[config.GoalWeightKey(gk.goal)]
	}

	for _, g := range s.reinforcedGoals(e) {
		b.Reinforcement += s.weights[config.GoalWeightKey(g)]
	}

	if e.Category != "" {
		b.Category = s.categoryWeights[strings.ToLower(e.Category)]
	}

	if e.TravelMinutes != nil {
		penalty, ok := s.weights[KeyTravelPenalty]
		if !ok {
			penalty = defaultTravelPenalty
		}
		switch m := *e.TravelMinutes; {
		case m > s.travelAbove:
			b.Travel = penalty
		case m <= s.travelNear:
			b.Travel = math.Abs(penalty) * nearTravelFraction
		}
	}

	if cost := strings.TrimSpace(e.Cost); cost != "" {
		if strings.Contains(strings.ToLower(cost), "free") {
			b.Cost = s.freeBonus
		} else {
			b.Cost = s.weights[KeyCostPenalty]
		}
	}

	if s.novelty[e.Source] {
		b.Novelty = s.weights[KeyNovelty]
	}

	if s.lateAfter != nil && !e.Start.IsZero() && e.Start.Hour() >= s.lateAfter.Hour {
		b.LateStart = s.latePenalty
	}

	if s.mustSeeHit(e) {
		b.MustSee = s.weights[KeyMustSeeBonus]
	}

	total := b.Reinforcement + b.Category + b.Travel + b.Cost + b.Novelty + b.LateStart + b.MustSee
	for _, gk := range s.keywords {
		total += b.Keywords[gk.goal]
	}
	b.Total = round4(total)
	return b
}

// reinforcedGoals returns the goals the event's category or tags map to,
// each goal once.
func (s *Scorer) reinforcedGoals(e *event.Event) []string {
	candidates := make([]string, 0, 1+len(e.Tags))
	if e.Category != "" {
		candidates = append(candidates, e.Category)
	}
	candidates = append(candidates, e.Tags...)

	var out []string
	seen := map[string]bool{}
	for _, c := range candidates {
		for _, g := range s.categoryGoals[strings.ToLower(c)] {
			if !seen[g] {
				seen[g] = true
				out = append(out, g)
			}
		}
	}
	return out
}

func (s *Scorer) mustSeeHit(e *event.Event) bool {
	if len(s.mustSee) == 0 {
		return false
	}
	title := identity.Normalize(e.Title)
	notes := identity.Normalize(e.Notes)
	for _, kw := range s.mustSee {
		if strings.Contains(title, kw) || strings.Contains(notes, kw) {
			return true
		}
	}
	return false
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
