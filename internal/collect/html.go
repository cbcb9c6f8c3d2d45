package collect

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/TobiSchelling/eventfolio/internal/config"
	"github.com/TobiSchelling/eventfolio/internal/event"
	"github.com/TobiSchelling/eventfolio/internal/timez"
)

// HTML scrapes listing pages with the CSS selectors configured per source.
type HTML struct {
	Pages Page
}

func (a *HTML) Name() string { return "html" }

func (a *HTML) Pull(ctx context.Context, src config.Source, w Window) ([]event.Event, error) {
	if src.HTML.Item == "" {
		return nil, ErrUnsupported
	}
	body, err := a.Pages.Get(ctx, src.URL)
	if err != nil {
		return nil, err
	}
	return parseHTML(body, src, w)
}

func parseHTML(body []byte, src config.Source, w Window) ([]event.Event, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}

	sel := src.HTML
	var events []event.Event
	doc.Find(sel.Item).Each(func(_ int, node *goquery.Selection) {
		startText := field(node, sel.Datetime)
		if startText == "" {
			return
		}
		start, err := timez.Parse(startText, w.Loc)
		if err != nil {
			return
		}

		e := fromSource(src)
		e.Start = start
		if endText := field(node, sel.Endtime); endText != "" {
			if end, err := timez.Parse(endText, w.Loc); err == nil {
				e.End = end
			}
		}
		e.Title = firstNonEmpty(field(node, sel.Title), src.Name, "Untitled Event")
		e.Location = firstNonEmpty(field(node, sel.Location), src.City)
		e.URL = resolveURL(src.URL, firstNonEmpty(field(node, sel.URL), src.URL))
		e.Notes = field(node, sel.Notes)
		if w.Admits(e) {
			events = append(events, e)
		}
	})
	return events, nil
}

// field reads the first match of selector under node. A selector ending in
// "::attr(name)" reads that attribute instead of the text.
func field(node *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	attr := ""
	if i := strings.Index(selector, "::attr("); i >= 0 {
		attr = strings.TrimSuffix(selector[i+len("::attr("):], ")")
		selector = strings.TrimSpace(selector[:i])
	}

	target := node
	if selector != "" {
		target = node.Find(selector).First()
	}
	if target.Length() == 0 {
		return ""
	}
	if attr != "" {
		v, _ := target.Attr(attr)
		return strings.TrimSpace(v)
	}
	return strings.Join(strings.Fields(target.Text()), " ")
}
