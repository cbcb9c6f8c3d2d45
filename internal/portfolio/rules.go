package portfolio

import (
	"github.com/TobiSchelling/eventfolio/internal/config"
	"github.com/TobiSchelling/eventfolio/internal/timez"
)

// Rules is the resolved, read-only constraint set for one selection pass.
type Rules struct {
	NoOverlap           bool
	QuietHours          timez.Windows
	Evenings            timez.EveningWindows
	Limits              config.Limits
	CategoryGoals       map[string][]string
	CategoryKeys        []string
	WeeklyQuotas        map[string]int
	MonthlyQuotas       map[string]int
	RespectAvailability bool
	TieBreakUID         bool
}

// NewRules resolves the scoring hard rules and the preference model.
func NewRules(sc config.Scoring, prefs config.Preferences) Rules {
	return Rules{
		NoOverlap:           sc.HardRules.NoOverlap,
		QuietHours:          config.QuietHours(sc, prefs),
		Evenings:            prefs.EveningWindows(),
		Limits:              config.ResolveLimits(sc, prefs),
		CategoryGoals:       prefs.CategoryGoals(),
		CategoryKeys:        prefs.CategoryKeys(),
		WeeklyQuotas:        prefs.Quotas.Weekly,
		MonthlyQuotas:       prefs.Quotas.Monthly,
		RespectAvailability: sc.HardRules.RespectAvailability,
		TieBreakUID:         sc.HardRules.TieBreak == "uid",
	}
}
