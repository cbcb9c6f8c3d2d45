// Package collect pulls candidate events from the configured sources.
package collect

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/eventfolio/internal/config"
	"github.com/TobiSchelling/eventfolio/internal/event"
	"github.com/TobiSchelling/eventfolio/internal/fetch"
)

// fallbackOrder is tried for sources without an explicit type. js joins the
// end of the list only when browser rendering is enabled.
var fallbackOrder = []string{"ics", "jsonld", "html"}

const defaultConcurrency = 4

// Options control which adapters a collection run may use.
type Options struct {
	// IncludeJS enables the headless browser adapter.
	IncludeJS bool
	// Research, when set, replaces direct scraping for every source.
	Research Adapter
	// Concurrency bounds the sources pulled at once.
	Concurrency int
	// Now anchors the planning window; defaults to time.Now.
	Now func() time.Time
}

// SourceResult is what one source produced.
type SourceResult struct {
	Slug    string
	Adapter string
	Events  []event.Event
	Err     string
	Skipped bool
}

// Result holds the results of a collection run.
type Result struct {
	Events  []event.Event
	Sources []SourceResult
	Skipped []string
	Invalid int
}

// Counts returns the number of events per source slug.
func (r *Result) Counts() map[string]int {
	out := make(map[string]int, len(r.Sources))
	for _, s := range r.Sources {
		out[s.Slug] = len(s.Events)
	}
	return out
}

// Collector orchestrates event collection across sources.
type Collector struct {
	sources  []config.Source
	window   func() Window
	adapters map[string]Adapter
	opts     Options
}

// NewCollector creates a collector for the sources in cfg.
func NewCollector(cfg *config.Config, f *fetch.Fetcher, opts Options) (*Collector, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return New(cfg.Sources, loc, cfg.HorizonDays, opts, Defaults(f, f)...), nil
}

// Defaults returns the built-in adapters reading pages through pages and
// rendering scripts through browser.
func Defaults(pages Page, browser Renderer) []Adapter {
	return []Adapter{
		&ICS{Pages: pages},
		&JSONLD{Pages: pages},
		&HTML{Pages: pages},
		&RSS{Pages: pages},
		&JS{Browser: browser},
	}
}

// New creates a collector from explicit parts.
func New(sources []config.Source, loc *time.Location, horizonDays int, opts Options, adapters ...Adapter) *Collector {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	c := &Collector{
		sources:  sources,
		adapters: map[string]Adapter{},
		opts:     opts,
	}
	for _, a := range adapters {
		c.adapters[a.Name()] = a
	}
	if opts.Research != nil {
		c.adapters[opts.Research.Name()] = opts.Research
	}
	c.window = func() Window {
		now := opts.Now().In(loc)
		return Window{From: now, To: now.AddDate(0, 0, horizonDays), Loc: loc}
	}
	return c
}

// Collect pulls every source. Sources run concurrently but results are
// flattened in configuration order, so the first source listed wins when two
// report the same event.
func (c *Collector) Collect(ctx context.Context) (*Result, error) {
	w := c.window()
	results := make([]SourceResult, len(c.sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Concurrency)
	for i, src := range c.sources {
		i, src := i, src
		g.Go(func() error {
			results[i] = c.pullSource(gctx, src, w)
			return nil
		})
	}
	g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r := &Result{Sources: results}
	for i := range results {
		s := &results[i]
		var kept []event.Event
		for _, e := range s.Events {
			e.Source = s.Slug
			e.Normalize(w.Loc)
			if err := e.Validate(); err != nil {
				r.Invalid++
				continue
			}
			if !w.Admits(e) {
				continue
			}
			kept = append(kept, e)
		}
		s.Events = kept
		if len(kept) == 0 {
			r.Skipped = append(r.Skipped, s.Slug)
		}
		r.Events = append(r.Events, kept...)
	}

	log.Printf("Collection complete: %d events from %d sources, %d skipped",
		len(r.Events), len(c.sources)-len(r.Skipped), len(r.Skipped))
	return r, nil
}

func (c *Collector) pullSource(ctx context.Context, src config.Source, w Window) SourceResult {
	res := SourceResult{Slug: src.Slug}

	var order []string
	switch {
	case c.opts.Research != nil:
		order = []string{c.opts.Research.Name()}
	case src.Type == "js" && !c.opts.IncludeJS:
		log.Printf("  %s: skipped (js sources need --include-js)", src.Slug)
		res.Skipped, res.Adapter = true, "js"
		return res
	case src.Type == "llm":
		log.Printf("  %s: skipped (llm sources need --use-llm-research)", src.Slug)
		res.Skipped, res.Adapter = true, "llm"
		return res
	case src.Type != "":
		order = []string{src.Type}
	default:
		order = append([]string(nil), fallbackOrder...)
		if c.opts.IncludeJS {
			order = append(order, "js")
		}
	}

	for _, name := range order {
		a, ok := c.adapters[name]
		if !ok {
			continue
		}
		res.Adapter = name
		events, err := a.Pull(ctx, src, w)
		if errors.Is(err, ErrUnsupported) {
			continue
		}
		if err != nil {
			log.Printf("  [warn] %s: %s adapter failed: %v", src.Slug, name, err)
			res.Err = fmt.Sprintf("%s: %v", name, err)
			continue
		}
		if len(events) > 0 {
			log.Printf("  %s: %d events via %s", src.Slug, len(events), name)
			res.Events, res.Err = events, ""
			return res
		}
	}
	if res.Adapter == "" && len(order) > 0 {
		res.Adapter = order[len(order)-1]
	}
	log.Printf("  %s: no events", src.Slug)
	return res
}
