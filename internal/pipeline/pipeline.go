// Package pipeline runs the six planning steps: availability, collect,
// dedupe, score, select and archive.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/TobiSchelling/eventfolio/internal/availability"
	"github.com/TobiSchelling/eventfolio/internal/collect"
	"github.com/TobiSchelling/eventfolio/internal/config"
	"github.com/TobiSchelling/eventfolio/internal/database"
	"github.com/TobiSchelling/eventfolio/internal/dedupe"
	"github.com/TobiSchelling/eventfolio/internal/event"
	"github.com/TobiSchelling/eventfolio/internal/fetch"
	"github.com/TobiSchelling/eventfolio/internal/llm"
	"github.com/TobiSchelling/eventfolio/internal/portfolio"
	"github.com/TobiSchelling/eventfolio/internal/research"
	"github.com/TobiSchelling/eventfolio/internal/score"
)

// ErrNoProvider is returned when LLM research is requested but no model is
// reachable.
var ErrNoProvider = errors.New("no LLM provider available")

// StepResult holds the result of a single pipeline step. Warning reports a
// problem the run continued past; only Err fails the run.
type StepResult struct {
	Name    string
	Summary string
	Warning string
	Err     error
}

// Result holds the results of a full pipeline run.
type Result struct {
	PeriodID  string
	Steps     []StepResult
	Portfolio *portfolio.Portfolio
}

// Failed reports whether any step returned an error.
func (r *Result) Failed() bool {
	for _, s := range r.Steps {
		if s.Err != nil {
			return true
		}
	}
	return false
}

// Options are the per-run switches.
type Options struct {
	IncludeJS      bool
	UseLLMResearch bool
	// RollingUpdate carries approvals over from the previous portfolio.
	RollingUpdate bool
}

// Collector pulls candidate events from the sources.
type Collector interface {
	Collect(ctx context.Context) (*collect.Result, error)
}

// Pipeline orchestrates a planning run.
type Pipeline struct {
	cfg     *config.Config
	db      *database.DB
	loc     *time.Location
	fetcher *fetch.Fetcher

	// Now and NewCollector are replaceable in tests.
	Now          func() time.Time
	NewCollector func(ctx context.Context, opts Options) (Collector, error)
}

// New creates a new pipeline.
func New(cfg *config.Config, db *database.DB) (*Pipeline, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		cfg:     cfg,
		db:      db,
		loc:     loc,
		fetcher: fetch.NewFetcher(0),
		Now:     time.Now,
	}
	p.NewCollector = p.defaultCollector
	return p, nil
}

func (p *Pipeline) defaultCollector(ctx context.Context, opts Options) (Collector, error) {
	copts := collect.Options{IncludeJS: opts.IncludeJS, Now: p.Now}
	if opts.UseLLMResearch {
		provider := llm.CreateProvider(ctx, p.cfg.LLM)
		if provider == nil {
			return nil, ErrNoProvider
		}
		copts.Research = research.New(provider, p.fetcher, p.cfg)
	}
	return collect.NewCollector(p.cfg, p.fetcher, copts)
}

// Collect runs only the collection step, without touching the database.
func (p *Pipeline) Collect(ctx context.Context, opts Options) (*collect.Result, error) {
	c, err := p.NewCollector(ctx, opts)
	if err != nil {
		return nil, err
	}
	return c.Collect(ctx)
}

// Availability loads the busy calendar and summarizes the evenings of the
// planning horizon. It returns nil when no calendar is configured.
func (p *Pipeline) Availability(ctx context.Context) (availability.Summary, error) {
	av := p.cfg.Availability
	if !av.Enabled() {
		return nil, nil
	}
	now := p.Now().In(p.loc)
	from, to := now.AddDate(0, 0, -1), now.AddDate(0, 0, p.cfg.HorizonDays+1)

	var (
		busy []availability.Busy
		err  error
	)
	if av.ICSPath != "" {
		busy, err = availability.LoadFile(av.ICSPath, p.loc, from, to)
	} else {
		var body []byte
		body, err = p.fetcher.Get(ctx, av.ICSURL)
		if err == nil {
			busy, err = availability.ParseICS(body, p.loc, from, to)
		}
	}
	if err != nil {
		return nil, err
	}
	return availability.Summarize(busy, p.cfg.Preferences.EveningWindows(), now, p.cfg.HorizonDays), nil
}

// Run executes the full pipeline for periodID.
func (p *Pipeline) Run(ctx context.Context, periodID string, opts Options) *Result {
	r := &Result{PeriodID: periodID}
	// Pages and calendars are cached for one run only.
	p.fetcher.Reset()

	// Step 1: Availability. A broken calendar is reported but not fatal.
	log.Println("Step 1/6: Reading availability...")
	avail, err := p.Availability(ctx)
	switch {
	case err != nil:
		log.Printf("Error reading busy calendar: %v", err)
		r.Steps = append(r.Steps, StepResult{
			Name:    "Availability",
			Summary: "Continuing without availability",
			Warning: err.Error(),
		})
		avail = nil
	case avail == nil:
		r.Steps = append(r.Steps, StepResult{Name: "Availability", Summary: "No busy calendar configured"})
	default:
		if err := p.db.SaveAvailability(periodID, avail); err != nil {
			log.Printf("Error saving availability: %v", err)
		}
		r.Steps = append(r.Steps, StepResult{
			Name:    "Availability",
			Summary: fmt.Sprintf("%d evenings, %d busy", len(avail), avail.BusyCount()),
		})
	}

	// Step 2: Collect
	log.Println("Step 2/6: Collecting events...")
	collected, err := p.Collect(ctx, opts)
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Collect", Err: err})
		return r
	}
	if err := p.db.SaveSourceRuns(periodID, sourceRuns(periodID, collected)); err != nil {
		log.Printf("Error saving source stats: %v", err)
	}
	r.Steps = append(r.Steps, StepResult{
		Name: "Collect",
		Summary: fmt.Sprintf("Found %d events from %d sources (%d skipped)",
			len(collected.Events), len(collected.Sources)-len(collected.Skipped), len(collected.Skipped)),
	})

	// Step 3: Dedupe. A registry that cannot be read aborts the run; new
	// uids are persisted only once the portfolio is archived.
	log.Println("Step 3/6: Removing duplicates...")
	reg, err := dedupe.LoadRegistry(p.db)
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Dedupe", Err: err})
		return r
	}
	fresh, duplicates := dedupe.Dedupe(collected.Events, reg, p.Now())
	// A rerun of the same period keeps the candidates found earlier in that
	// period; the registry would otherwise hide them for good.
	earlier, err := p.db.GetCandidates(periodID)
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Dedupe", Err: err})
		return r
	}
	for i := range earlier {
		earlier[i].Normalize(p.loc)
	}
	unique := mergeCandidates(earlier, fresh)
	summary := fmt.Sprintf("%d unique, %d duplicates", len(fresh), len(duplicates))
	if len(earlier) > 0 {
		summary += fmt.Sprintf(", %d kept from an earlier run of %s", len(earlier), periodID)
	}
	r.Steps = append(r.Steps, StepResult{Name: "Dedupe", Summary: summary})

	// Step 4: Score
	log.Println("Step 4/6: Scoring candidates...")
	score.New(p.cfg.Scoring, p.cfg.Preferences).Attach(unique)
	if err := p.db.SaveCandidates(periodID, unique); err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Score", Err: err})
		return r
	}
	r.Steps = append(r.Steps, StepResult{Name: "Score", Summary: fmt.Sprintf("Scored %d candidates", len(unique))})

	// Step 5: Select
	log.Println("Step 5/6: Selecting portfolio...")
	pf := portfolio.Choose(unique, portfolio.NewRules(p.cfg.Scoring, p.cfg.Preferences), avail)
	summary = fmt.Sprintf("Selected %d events across %d weeks", pf.Summary.TotalSelected, pf.Summary.WeeksScheduled)
	if opts.RollingUpdate {
		prevID, prev, err := p.db.LatestPortfolioBefore(periodID)
		if err != nil {
			log.Printf("Error loading previous portfolio: %v", err)
		} else if prev != nil {
			n := portfolio.MarkApproved(pf.Selected, prev.Selected)
			summary += fmt.Sprintf(", %d carried over from %s", n, prevID)
		}
	}
	r.Portfolio = pf
	r.Steps = append(r.Steps, StepResult{Name: "Select", Summary: summary})

	// Step 6: Archive
	log.Println("Step 6/6: Archiving...")
	if err := p.db.SavePortfolio(periodID, pf); err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Archive", Err: err})
		return r
	}
	_, err = p.db.InsertReport(database.RunReport{
		PeriodID:       periodID,
		SourceCount:    len(collected.Sources),
		EventCount:     len(collected.Events),
		UniqueCount:    len(fresh),
		DuplicateCount: len(duplicates),
		SelectedCount:  len(pf.Selected),
		SkippedSources: collected.Skipped,
	})
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Archive", Err: err})
		return r
	}
	recorded := len(reg.Added())
	if err := reg.Save(p.db); err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Archive", Err: err})
		return r
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    "Archive",
		Summary: fmt.Sprintf("Portfolio archived for %s, %d new uids recorded", periodID, recorded),
	})

	return r
}

// mergeCandidates returns earlier followed by the fresh events whose uid it
// does not already hold.
func mergeCandidates(earlier, fresh []event.Event) []event.Event {
	if len(earlier) == 0 {
		return fresh
	}
	seen := make(map[string]bool, len(earlier))
	out := make([]event.Event, 0, len(earlier)+len(fresh))
	for _, e := range earlier {
		seen[e.UID] = true
		out = append(out, e)
	}
	for _, e := range fresh {
		if !seen[e.UID] {
			out = append(out, e)
		}
	}
	return out
}

func sourceRuns(periodID string, r *collect.Result) []database.SourceRun {
	runs := make([]database.SourceRun, 0, len(r.Sources))
	for _, s := range r.Sources {
		runs = append(runs, database.SourceRun{
			PeriodID:   periodID,
			Slug:       s.Slug,
			Adapter:    s.Adapter,
			EventCount: len(s.Events),
			Error:      s.Err,
		})
	}
	return runs
}

// DryRun shows what a run would start from without executing it.
func (p *Pipeline) DryRun(periodID string) *Result {
	r := &Result{PeriodID: periodID}

	if p.cfg.Availability.Enabled() {
		r.Steps = append(r.Steps, StepResult{Name: "Availability", Summary: "[dry-run] Would read the busy calendar"})
	} else {
		r.Steps = append(r.Steps, StepResult{Name: "Availability", Summary: "[dry-run] No busy calendar configured"})
	}

	r.Steps = append(r.Steps, StepResult{
		Name:    "Collect",
		Summary: fmt.Sprintf("[dry-run] Would pull %d sources", len(p.cfg.Sources)),
	})

	stats, err := p.db.GetRegistryStats()
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Dedupe", Err: err})
		return r
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    "Dedupe",
		Summary: fmt.Sprintf("[dry-run] Registry holds %d uids", stats.Total),
	})

	candidates, err := p.db.GetCandidates(periodID)
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Score", Err: err})
		return r
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    "Score",
		Summary: fmt.Sprintf("[dry-run] %d candidates already stored for %s", len(candidates), periodID),
	})

	existing, err := p.db.GetPortfolio(periodID)
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Select", Err: err})
		return r
	}
	if existing != nil {
		r.Steps = append(r.Steps, StepResult{
			Name:    "Select",
			Summary: fmt.Sprintf("[dry-run] Portfolio already exists for %s (%d events)", periodID, existing.Summary.TotalSelected),
		})
	} else {
		r.Steps = append(r.Steps, StepResult{
			Name:    "Select",
			Summary: fmt.Sprintf("[dry-run] Would select a portfolio for %s", periodID),
		})
	}

	return r
}
