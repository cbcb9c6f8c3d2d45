// Package research asks a language model to read a source page and list the
// events on it. It is a collect.Adapter used instead of direct scraping.
package research

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/TobiSchelling/eventfolio/internal/collect"
	"github.com/TobiSchelling/eventfolio/internal/config"
	"github.com/TobiSchelling/eventfolio/internal/event"
	"github.com/TobiSchelling/eventfolio/internal/fetch"
	"github.com/TobiSchelling/eventfolio/internal/llm"
	"github.com/TobiSchelling/eventfolio/internal/timez"
)

const contextChars = 8000

// hedgeWords mark events the model made up rather than read off the page.
var hedgeWords = []string{
	"inferred", "plausible", "suggested", "example", "realistic suggestion",
	"likely", "probable", "estimated event", "typical", "might", "could be",
	"potentially", "presumably", "hypothetical",
}

// Adapter is the "llm" source adapter.
type Adapter struct {
	Provider  llm.Provider
	Pages     collect.Page
	MaxTokens int
	// Goals and MustSee are passed to the model as curation hints.
	Goals   []string
	MustSee []string
}

// New creates the research adapter from the configuration.
func New(p llm.Provider, pages collect.Page, cfg *config.Config) *Adapter {
	return &Adapter{
		Provider:  p,
		Pages:     pages,
		MaxTokens: cfg.LLM.MaxTokens,
		Goals:     config.Goals(cfg.Scoring, cfg.Preferences),
		MustSee:   cfg.Preferences.Categories.MustSeeKeywords,
	}
}

func (a *Adapter) Name() string { return "llm" }

func (a *Adapter) Pull(ctx context.Context, src config.Source, w collect.Window) ([]event.Event, error) {
	var pageText string
	if body, err := a.Pages.Get(ctx, src.URL); err != nil {
		log.Printf("  research %s: no page context: %v", src.Slug, err)
	} else {
		pageText = fetch.ExtractText(body, src.URL, contextChars)
	}

	reply, err := a.Provider.Generate(ctx, a.prompt(src, w, pageText), a.MaxTokens)
	if err != nil {
		return nil, fmt.Errorf("research %s: %w", src.Slug, err)
	}
	payload, err := llm.ParseJSONObject(reply)
	if err != nil {
		return nil, fmt.Errorf("research %s: %w", src.Slug, err)
	}
	if summary, _ := payload["summary"].(string); summary != "" {
		log.Printf("  research %s: %s", src.Slug, summary)
	}

	items, _ := payload["events"].([]any)
	var events []event.Event
	for _, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if e, ok := toEvent(item, src, w); ok {
			events = append(events, e)
		}
	}
	log.Printf("  research %s: %d of %d proposed events accepted", src.Slug, len(events), len(items))
	return events, nil
}

func (a *Adapter) prompt(src config.Source, w collect.Window, pageText string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You curate real evening events for a personal planner in %s.\n\n", firstNonEmpty(src.City, "the local area"))
	b.WriteString("RULES:\n")
	b.WriteString("- ONLY return events that are listed in the website content below.\n")
	b.WriteString("- NEVER invent, infer or guess events.\n")
	fmt.Fprintf(&b, "- Events must start between %s and %s.\n", timez.DayKey(w.From), timez.DayKey(w.To))
	fmt.Fprintf(&b, "- Times are local to %s, ISO 8601 without offset.\n\n", w.Loc)

	b.WriteString("For each event return: title, description, start_local, end_local, location,\n")
	b.WriteString("url, organizer, cost ('Free' or a price), category, travel_minutes, rationale.\n\n")

	if len(a.Goals) > 0 {
		fmt.Fprintf(&b, "Planner goals: %s\n", strings.Join(a.Goals, ", "))
	}
	if len(a.MustSee) > 0 {
		fmt.Fprintf(&b, "Must-see keywords: %s\n", strings.Join(a.MustSee, ", "))
	}

	fmt.Fprintf(&b, "\nSOURCE: %s (%s), expected category: %s\n", firstNonEmpty(src.Name, src.Slug), src.URL, firstNonEmpty(src.Category, "general"))
	if pageText != "" {
		b.WriteString("\nWEBSITE CONTENT:\n")
		b.WriteString(strings.Repeat("=", 50) + "\n")
		b.WriteString(pageText)
		b.WriteString("\n" + strings.Repeat("=", 50) + "\n")
	} else {
		b.WriteString("\nWEBSITE CONTENT: (no page content available)\n")
	}

	b.WriteString("\nRespond with STRICT JSON only: {\"summary\": \"...\", \"events\": [...]}.\n")
	b.WriteString("Use an empty events array when nothing in the date range is listed.\n")
	return b.String()
}

// toEvent validates one proposed event: title, start and location are
// required, hedged wording is rejected and the start must be in the window.
func toEvent(item map[string]any, src config.Source, w collect.Window) (event.Event, bool) {
	title := text(item["title"])
	startRaw := text(item["start_local"])
	location := text(item["location"])
	if title == "" || startRaw == "" || location == "" {
		return event.Event{}, false
	}

	notes := firstNonEmpty(text(item["description"]), text(item["notes"]))
	rationale := text(item["rationale"])
	if hedged(title, notes, rationale, text(item["career_rationale"]), text(item["social_rationale"])) {
		return event.Event{}, false
	}

	start, err := timez.Parse(startRaw, w.Loc)
	if err != nil || start.Before(w.From) || start.After(w.To) {
		return event.Event{}, false
	}

	e := event.Event{
		Title:     title,
		Start:     start,
		Location:  location,
		Notes:     notes,
		Rationale: rationale,
		URL:       firstNonEmpty(text(item["url"]), src.URL),
		Cost:      firstNonEmpty(text(item["cost"]), src.Cost),
		Organizer: firstNonEmpty(text(item["organizer"]), src.Name),
		Category:  firstNonEmpty(src.Category, text(item["category"])),
		City:      src.City,
		Source:    src.Slug,
		Tags:      append([]string(nil), src.Tags...),
	}
	if end, err := timez.Parse(text(item["end_local"]), w.Loc); err == nil && end.After(start) {
		e.End = end
	}
	if m, ok := item["travel_minutes"].(float64); ok && m >= 0 {
		e.TravelMinutes = &m
	}
	if strings.EqualFold(e.Cost, "free") {
		e.Cost = "free"
	}
	return e, true
}

func hedged(fields ...string) bool {
	all := strings.ToLower(strings.Join(fields, " "))
	for _, w := range hedgeWords {
		if strings.Contains(all, w) {
			return true
		}
	}
	return false
}

func text(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

var _ collect.Adapter = (*Adapter)(nil)
