package collect

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/TobiSchelling/eventfolio/internal/config"
	"github.com/TobiSchelling/eventfolio/internal/event"
	"github.com/TobiSchelling/eventfolio/internal/fetch"
)

var now = time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return now }

func testWindow() Window {
	return Window{From: now, To: now.AddDate(0, 0, 45), Loc: time.UTC}
}

const icsBody = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//EN
BEGIN:VEVENT
UID:lecture-1@library
DTSTART:20251003T230000Z
DTEND:20251004T000000Z
SUMMARY:Lecture on Urban Trees
LOCATION:Downtown Library
URL:https://library.example/lecture
DESCRIPTION:A talk.
END:VEVENT
BEGIN:VEVENT
DTSTART;VALUE=DATE:20251010
SUMMARY:Harvest Fair
END:VEVENT
BEGIN:VEVENT
DTSTART:20250901T230000Z
SUMMARY:Already Over
END:VEVENT
END:VCALENDAR
`

const jsonldBody = `<html><head>
<script type="application/ld+json">
{"@context":"https://schema.org","@graph":[
 {"@type":"MusicEvent","name":"Jazz Night","startDate":"2025-10-05T20:00:00Z",
  "endDate":"2025-10-05T22:00:00Z","url":"/jazz",
  "location":{"@type":"Place","name":"Blue Llama"},
  "offers":{"price":0},"organizer":{"name":"Jazz Club"}},
 {"@type":"Organization","name":"Not an event"}
]}
</script>
<script type="application/ld+json">{ broken</script>
</head><body></body></html>`

const htmlBody = `<html><body>
<div class="event">
  <h3 class="title">Pottery Workshop</h3>
  <time datetime="2025-10-07T18:30:00Z">Oct 7</time>
  <span class="where">Art Center</span>
  <a class="more" href="/pottery">More</a>
</div>
<div class="event">
  <h3 class="title">No Date Here</h3>
</div>
</body></html>`

const rssBody = `<?xml version="1.0"?>
<rss version="2.0" xmlns:ev="http://purl.org/rss/1.0/modules/event/">
<channel><title>Club events</title>
<item>
  <title>Trail Run</title>
  <link>https://club.example/run</link>
  <description>&lt;p&gt;Meet at the &amp;amp; gate&lt;/p&gt;</description>
  <category>outdoors</category>
  <ev:startdate>2025-10-04T13:00:00Z</ev:startdate>
  <ev:location>Bird Hills Park</ev:location>
</item>
<item>
  <title>Newsletter</title>
  <link>https://club.example/news</link>
</item>
</channel></rss>`

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/cal.ics", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.ReplaceAll(icsBody, "\n", "\r\n")))
	})
	mux.HandleFunc("/jsonld", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(jsonldBody)) })
	mux.HandleFunc("/html", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(htmlBody)) })
	mux.HandleFunc("/feed", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(rssBody)) })
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestICSAdapter(t *testing.T) {
	srv := newServer(t)
	a := &ICS{Pages: fetch.NewFetcher(0)}
	events, err := a.Pull(context.Background(), config.Source{Slug: "lib", URL: srv.URL + "/cal.ics", City: "Ann Arbor"}, testWindow())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 upcoming events, got %d", len(events))
	}
	lecture := events[0]
	if lecture.UID != "" || lecture.Location != "Downtown Library" {
		t.Errorf("unexpected lecture: %+v", lecture)
	}
	fair := events[1]
	if !fair.AllDay || fair.Location != "Ann Arbor" || fair.Duration() != 24*time.Hour {
		t.Errorf("unexpected all-day event: %+v", fair)
	}
}

func TestICSAdapterRejectsNonCalendar(t *testing.T) {
	srv := newServer(t)
	a := &ICS{Pages: fetch.NewFetcher(0)}
	_, err := a.Pull(context.Background(), config.Source{Slug: "x", URL: srv.URL + "/html"}, testWindow())
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}

func TestJSONLDAdapter(t *testing.T) {
	srv := newServer(t)
	a := &JSONLD{Pages: fetch.NewFetcher(0)}
	events, err := a.Pull(context.Background(), config.Source{Slug: "club", URL: srv.URL + "/jsonld"}, testWindow())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	e := events[0]
	if e.Title != "Jazz Night" || e.Location != "Blue Llama" || e.Cost != "free" || e.Organizer != "Jazz Club" {
		t.Errorf("unexpected event: %+v", e)
	}
	if e.URL != srv.URL+"/jazz" {
		t.Errorf("expected relative url to be resolved, got %q", e.URL)
	}
}

func TestHTMLAdapter(t *testing.T) {
	srv := newServer(t)
	src := config.Source{
		Slug: "art", Name: "Art Center", URL: srv.URL + "/html",
		HTML: config.HTMLSelectors{
			Item:     "div.event",
			Title:    ".title",
			Datetime: "time::attr(datetime)",
			Location: ".where",
			URL:      "a.more::attr(href)",
		},
	}
	events, err := (&HTML{Pages: fetch.NewFetcher(0)}).Pull(context.Background(), src, testWindow())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	e := events[0]
	if e.Title != "Pottery Workshop" || e.Location != "Art Center" || e.URL != srv.URL+"/pottery" {
		t.Errorf("unexpected event: %+v", e)
	}
	if e.Start.Hour() != 18 || e.Start.Minute() != 30 {
		t.Errorf("unexpected start %v", e.Start)
	}

	src.HTML = config.HTMLSelectors{}
	if _, err := (&HTML{Pages: fetch.NewFetcher(0)}).Pull(context.Background(), src, testWindow()); !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported without selectors, got %v", err)
	}
}

func TestRSSAdapter(t *testing.T) {
	srv := newServer(t)
	events, err := (&RSS{Pages: fetch.NewFetcher(0)}).Pull(context.Background(), config.Source{Slug: "club", URL: srv.URL + "/feed"}, testWindow())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected only the item with ev:startdate, got %d", len(events))
	}
	e := events[0]
	if e.Title != "Trail Run" || e.Location != "Bird Hills Park" || !e.HasTag("outdoors") {
		t.Errorf("unexpected event: %+v", e)
	}
	if strings.Contains(e.Notes, "<p>") {
		t.Errorf("expected html to be stripped, got %q", e.Notes)
	}
}

type fakeRenderer struct{ dom string }

func (f fakeRenderer) Render(context.Context, string) (string, error) { return f.dom, nil }

func TestJSAdapterReadsRenderedDOM(t *testing.T) {
	a := &JS{Browser: fakeRenderer{dom: jsonldBody}}
	events, err := a.Pull(context.Background(), config.Source{Slug: "spa", URL: "https://spa.example/"}, testWindow())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 || events[0].Title != "Jazz Night" {
		t.Errorf("unexpected events: %+v", events)
	}
}

// stubAdapter returns fixed events, or an error, and counts calls.
type stubAdapter struct {
	name   string
	events map[string][]event.Event
	err    error
	calls  int
}

func (s *stubAdapter) Name() string { return s.name }

func (s *stubAdapter) Pull(_ context.Context, src config.Source, _ Window) ([]event.Event, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.events[src.Slug], nil
}

func at(day, hour int) time.Time {
	return time.Date(2025, 10, day, hour, 0, 0, 0, time.UTC)
}

func TestCollectFallbackOrder(t *testing.T) {
	ics := &stubAdapter{name: "ics", err: ErrUnsupported}
	jsonld := &stubAdapter{name: "jsonld", err: errors.New("timeout")}
	html := &stubAdapter{name: "html", events: map[string][]event.Event{
		"a": {{Title: "Found by html", Start: at(3, 19)}},
	}}
	js := &stubAdapter{name: "js"}

	c := New([]config.Source{{Slug: "a", URL: "https://a.example"}}, time.UTC, 45,
		Options{Now: fixedNow}, ics, jsonld, html, js)
	r, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(r.Events) != 1 || r.Sources[0].Adapter != "html" {
		t.Fatalf("expected html to win, got %+v", r.Sources)
	}
	if r.Sources[0].Err != "" {
		t.Errorf("expected earlier failure to be cleared on success, got %q", r.Sources[0].Err)
	}
	if js.calls != 0 {
		t.Error("expected js adapter to stay unused without IncludeJS")
	}
	e := r.Events[0]
	if e.Source != "a" || e.UID == "" || !e.End.After(e.Start) {
		t.Errorf("expected normalized event, got %+v", e)
	}
}

func TestCollectPreservesSourceOrder(t *testing.T) {
	adapter := &orderedStub{events: map[string][]event.Event{}}
	var sources []config.Source
	for i, slug := range []string{"s1", "s2", "s3", "s4", "s5", "s6"} {
		sources = append(sources, config.Source{Slug: slug, URL: "https://x", Type: "ics"})
		adapter.events[slug] = []event.Event{{Title: slug, Start: at(2+i, 19)}}
	}

	r, err := New(sources, time.UTC, 45, Options{Now: fixedNow}, adapter).Collect(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(r.Events) != len(sources) {
		t.Fatalf("expected %d events, got %d", len(sources), len(r.Events))
	}
	for i, e := range r.Events {
		if e.Title != sources[i].Slug {
			t.Fatalf("expected configuration order, got %s at %d", e.Title, i)
		}
	}
}

// orderedStub is read-only and safe for concurrent sources.
type orderedStub struct{ events map[string][]event.Event }

func (o *orderedStub) Name() string { return "ics" }

func (o *orderedStub) Pull(_ context.Context, src config.Source, _ Window) ([]event.Event, error) {
	return o.events[src.Slug], nil
}

func TestCollectSkipsAndFilters(t *testing.T) {
	ics := &stubAdapter{name: "ics", events: map[string][]event.Event{
		"cal": {
			{Title: "Upcoming", Start: at(5, 19)},
			{Title: "", Start: at(5, 20)},
			{Title: "Past", Start: time.Date(2025, 9, 1, 19, 0, 0, 0, time.UTC)},
			{Title: "Too far", Start: time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC)},
		},
	}}
	sources := []config.Source{
		{Slug: "cal", URL: "https://cal", Type: "ics"},
		{Slug: "spa", URL: "https://spa", Type: "js"},
		{Slug: "agent", URL: "https://agent", Type: "llm"},
	}
	r, err := New(sources, time.UTC, 45, Options{Now: fixedNow}, ics).Collect(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(r.Events) != 1 || r.Events[0].Title != "Upcoming" {
		t.Errorf("unexpected events: %+v", r.Events)
	}
	if r.Invalid != 1 {
		t.Errorf("expected 1 invalid event, got %d", r.Invalid)
	}
	if len(r.Skipped) != 2 || r.Skipped[0] != "spa" || r.Skipped[1] != "agent" {
		t.Errorf("unexpected skipped sources: %v", r.Skipped)
	}
	if r.Counts()["cal"] != 1 {
		t.Errorf("unexpected counts: %v", r.Counts())
	}
}

func TestCollectResearchReplacesScraping(t *testing.T) {
	ics := &stubAdapter{name: "ics"}
	research := &stubAdapter{name: "llm", events: map[string][]event.Event{
		"cal": {{Title: "Researched", Start: at(6, 19), Location: "Hall"}},
	}}
	sources := []config.Source{{Slug: "cal", URL: "https://cal", Type: "ics"}}
	r, err := New(sources, time.UTC, 45, Options{Now: fixedNow, Research: research}, ics).Collect(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ics.calls != 0 || len(r.Events) != 1 || r.Sources[0].Adapter != "llm" {
		t.Errorf("expected research adapter to serve the source, got %+v", r.Sources)
	}
}

func TestSourceName(t *testing.T) {
	cases := map[string]string{
		"https://www.aadl.org/events":       "Aadl",
		"https://events.umich.edu/list/ics": "Umich",
		"not a url":                         "",
	}
	for in, want := range cases {
		if got := sourceName(in); got != want {
			t.Errorf("sourceName(%q) = %q, want %q", in, got, want)
		}
	}
}
