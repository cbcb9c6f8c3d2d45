package collect

import (
	"context"
	"errors"

	"github.com/TobiSchelling/eventfolio/internal/config"
	"github.com/TobiSchelling/eventfolio/internal/event"
)

// JS renders script-driven pages in a headless browser, then reads the
// resulting DOM like the jsonld and html adapters do.
type JS struct {
	Browser Renderer
}

func (a *JS) Name() string { return "js" }

func (a *JS) Pull(ctx context.Context, src config.Source, w Window) ([]event.Event, error) {
	dom, err := a.Browser.Render(ctx, src.URL)
	if err != nil {
		return nil, err
	}
	body := []byte(dom)

	events, err := parseJSONLD(body, src, w)
	if err != nil && !errors.Is(err, ErrUnsupported) {
		return nil, err
	}
	if len(events) > 0 || src.HTML.Item == "" {
		return events, nil
	}
	return parseHTML(body, src, w)
}
