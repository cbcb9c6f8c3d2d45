package collect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/TobiSchelling/eventfolio/internal/config"
	"github.com/TobiSchelling/eventfolio/internal/event"
	"github.com/TobiSchelling/eventfolio/internal/timez"
)

// JSONLD reads schema.org Event objects embedded as application/ld+json.
type JSONLD struct {
	Pages Page
}

func (a *JSONLD) Name() string { return "jsonld" }

func (a *JSONLD) Pull(ctx context.Context, src config.Source, w Window) ([]event.Event, error) {
	body, err := a.Pages.Get(ctx, src.URL)
	if err != nil {
		return nil, err
	}
	return parseJSONLD(body, src, w)
}

func parseJSONLD(body []byte, src config.Source, w Window) ([]event.Event, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}

	scripts := doc.Find(`script[type="application/ld+json"]`)
	if scripts.Length() == 0 {
		return nil, ErrUnsupported
	}

	var events []event.Event
	scripts.Each(func(_ int, s *goquery.Selection) {
		var payload any
		if err := json.Unmarshal([]byte(strings.TrimSpace(s.Text())), &payload); err != nil {
			return
		}
		for _, item := range schemaEvents(payload) {
			e, ok := jsonldEvent(item, src, w)
			if ok {
				events = append(events, e)
			}
		}
	})
	return events, nil
}

// schemaEvents walks a JSON-LD payload for Event objects, including those in
// an @graph and in top-level arrays.
func schemaEvents(payload any) []map[string]any {
	switch v := payload.(type) {
	case map[string]any:
		if isEventType(v["@type"]) {
			return []map[string]any{v}
		}
		if graph, ok := v["@graph"]; ok {
			return schemaEvents(graph)
		}
	case []any:
		var out []map[string]any
		for _, item := range v {
			out = append(out, schemaEvents(item)...)
		}
		return out
	}
	return nil
}

// isEventType accepts "Event" and its schema.org subtypes such as
// "MusicEvent", as a string or inside a type list.
func isEventType(t any) bool {
	switch v := t.(type) {
	case string:
		return strings.HasSuffix(v, "Event")
	case []any:
		for _, item := range v {
			if isEventType(item) {
				return true
			}
		}
	}
	return false
}

func jsonldEvent(item map[string]any, src config.Source, w Window) (event.Event, bool) {
	startRaw := str(item["startDate"])
	if startRaw == "" {
		return event.Event{}, false
	}
	start, err := timez.Parse(startRaw, w.Loc)
	if err != nil {
		return event.Event{}, false
	}

	e := fromSource(src)
	e.Start = start
	if endRaw := str(item["endDate"]); endRaw != "" {
		if end, err := timez.Parse(endRaw, w.Loc); err == nil {
			e.End = end
		}
	}
	e.Title = firstNonEmpty(str(item["name"]), "Untitled Event")
	e.URL = resolveURL(src.URL, firstNonEmpty(str(item["url"]), src.URL))
	e.Location = firstNonEmpty(placeName(item["location"]), src.City)
	e.Notes = stripHTML(str(item["description"]))
	if cost := offerPrice(item["offers"]); cost != "" {
		e.Cost = cost
	}
	if org := orgName(item["organizer"]); org != "" {
		e.Organizer = org
	}
	if e.Category == "" {
		e.Category = str(item["eventType"])
	}
	if !w.Admits(e) {
		return event.Event{}, false
	}
	return e, true
}

func str(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strings.TrimSpace(fmt.Sprintf("%g", s))
	}
	return ""
}

func placeName(v any) string {
	switch p := v.(type) {
	case string:
		return strings.TrimSpace(p)
	case []any:
		if len(p) > 0 {
			return placeName(p[0])
		}
	case map[string]any:
		if name := str(p["name"]); name != "" {
			return name
		}
		switch addr := p["address"].(type) {
		case string:
			return strings.TrimSpace(addr)
		case map[string]any:
			return str(addr["streetAddress"])
		}
	}
	return ""
}

func offerPrice(v any) string {
	switch o := v.(type) {
	case map[string]any:
		price := str(o["price"])
		if price == "0" {
			return "free"
		}
		return price
	case []any:
		if len(o) > 0 {
			return offerPrice(o[0])
		}
	}
	return ""
}

func orgName(v any) string {
	switch o := v.(type) {
	case string:
		return strings.TrimSpace(o)
	case map[string]any:
		return str(o["name"])
	case []any:
		if len(o) > 0 {
			return orgName(o[0])
		}
	}
	return ""
}
