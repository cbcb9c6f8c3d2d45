package collect

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/TobiSchelling/eventfolio/internal/config"
	"github.com/TobiSchelling/eventfolio/internal/event"
	"github.com/TobiSchelling/eventfolio/internal/fetch"
)

// ErrUnsupported is returned by an adapter that cannot read a source at all,
// e.g. the html adapter for a source without selectors. The collector moves
// on to the next adapter without logging a warning.
var ErrUnsupported = errors.New("adapter does not support this source")

// Window is the planning horizon events must fall in.
type Window struct {
	From time.Time
	To   time.Time
	Loc  *time.Location
}

// Admits reports whether e has not ended before From and starts no later
// than To.
func (w Window) Admits(e event.Event) bool {
	if !e.End.IsZero() && e.End.Before(w.From) {
		return false
	}
	return !e.Start.After(w.To)
}

// Adapter turns one source into candidate events.
type Adapter interface {
	Name() string
	Pull(ctx context.Context, src config.Source, w Window) ([]event.Event, error)
}

// Page is how adapters obtain source documents.
type Page interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Renderer returns the DOM of a page after its scripts ran.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

var (
	_ Page     = (*fetch.Fetcher)(nil)
	_ Renderer = (*fetch.Fetcher)(nil)
)

// fromSource starts an event carrying the source defaults.
func fromSource(src config.Source) event.Event {
	e := event.Event{
		Category:  src.Category,
		City:      src.City,
		Cost:      src.Cost,
		Organizer: src.Name,
		Source:    src.Slug,
	}
	if len(src.Tags) > 0 {
		e.Tags = append([]string(nil), src.Tags...)
	}
	if e.Organizer == "" {
		e.Organizer = sourceName(src.URL)
	}
	return e
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
