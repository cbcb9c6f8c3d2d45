package collect

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"

	"github.com/TobiSchelling/eventfolio/internal/config"
	"github.com/TobiSchelling/eventfolio/internal/event"
	"github.com/TobiSchelling/eventfolio/internal/timez"
)

const maxPerFeed = 200

// RSS reads feeds that carry the RSS event module (ev:startdate). Items
// without a start date are skipped: their publication date says nothing about
// when the event happens.
type RSS struct {
	Pages Page
}

func (a *RSS) Name() string { return "rss" }

func (a *RSS) Pull(ctx context.Context, src config.Source, w Window) ([]event.Event, error) {
	body, err := a.Pages.Get(ctx, src.URL)
	if err != nil {
		return nil, err
	}
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if errors.Is(err, gofeed.ErrFeedTypeNotDetected) {
		return nil, ErrUnsupported
	}
	if err != nil {
		return nil, fmt.Errorf("parsing feed: %w", err)
	}

	var events []event.Event
	for _, item := range feed.Items {
		if len(events) >= maxPerFeed {
			break
		}
		e, ok := feedEvent(item, src, w)
		if ok {
			events = append(events, e)
		}
	}
	return events, nil
}

func feedEvent(item *gofeed.Item, src config.Source, w Window) (event.Event, bool) {
	startText := evValue(item.Extensions, "startdate")
	if startText == "" {
		return event.Event{}, false
	}
	start, err := timez.Parse(startText, w.Loc)
	if err != nil {
		return event.Event{}, false
	}

	e := fromSource(src)
	e.Start = start
	if endText := evValue(item.Extensions, "enddate"); endText != "" {
		if end, err := timez.Parse(endText, w.Loc); err == nil {
			e.End = end
		}
	}
	e.Title = firstNonEmpty(item.Title, "Untitled Event")
	e.URL = firstNonEmpty(item.Link, src.URL)
	e.Location = firstNonEmpty(evValue(item.Extensions, "location"), src.City)
	if org := evValue(item.Extensions, "organizer"); org != "" {
		e.Organizer = org
	}
	if e.Category == "" {
		e.Category = evValue(item.Extensions, "type")
	}
	if item.Content != "" {
		e.Notes = stripHTML(item.Content)
	} else {
		e.Notes = stripHTML(item.Description)
	}
	for _, c := range item.Categories {
		if c = strings.TrimSpace(c); c != "" && !e.HasTag(c) {
			e.Tags = append(e.Tags, c)
		}
	}
	if !w.Admits(e) {
		return event.Event{}, false
	}
	return e, true
}

// evValue reads an element of the RSS event module namespace.
func evValue(exts ext.Extensions, name string) string {
	for _, prefix := range []string{"ev", "event"} {
		if values := exts[prefix][name]; len(values) > 0 {
			return strings.TrimSpace(values[0].Value)
		}
	}
	return ""
}
