// Package server serves the archived portfolios as a small read-only site.
package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/TobiSchelling/eventfolio/internal/database"
	"github.com/TobiSchelling/eventfolio/internal/portfolio"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New()

// Server is the HTTP server for browsing portfolios.
type Server struct {
	db    *database.DB
	pages map[string]*template.Template
	mux   *http.ServeMux
}

// New creates a new Server.
func New(db *database.DB) (*Server, error) {
	funcMap := template.FuncMap{
		"markdown":     renderMarkdown,
		"formatPeriod": database.FormatPeriodDisplay,
		"clock":        func(t time.Time) string { return t.Format("15:04") },
		"day":          func(t time.Time) string { return t.Format("Mon, Jan 02") },
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
	}

	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// Each page gets its own clone of base so that {{define "content"}}
	// does not collide between pages.
	pageNames := []string{"index.html", "portfolio.html", "sources.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		if _, err := clone.ParseFS(templateFS, "templates/"+name); err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{db: db, pages: pages, mux: http.NewServeMux()}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/portfolio/", s.handlePortfolio)
	s.mux.HandleFunc("/sources", s.handleSources)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	portfolios, err := s.db.ListPortfolios()
	if err != nil {
		log.Printf("Error listing portfolios: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.render(w, "index.html", map[string]any{
		"Portfolios": portfolios,
	})
}

// gateCount is one row of the rejection table.
type gateCount struct {
	Gate  portfolio.Gate
	Count int
}

// quotaRow is one goal target with its progress.
type quotaRow struct {
	Goal   string
	Period string
	Target int
	Count  int
	Met    bool
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	periodID := strings.TrimPrefix(r.URL.Path, "/portfolio/")
	if periodID == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	pf, err := s.db.GetPortfolio(periodID)
	if err != nil {
		log.Printf("Error loading portfolio %s: %v", periodID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if pf == nil {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		s.render(w, "portfolio.html", map[string]any{"PeriodID": periodID})
		return
	}

	report, _ := s.db.GetReport(periodID)
	avail, _ := s.db.GetAvailability(periodID)
	runs, _ := s.db.GetSourceRuns(periodID)

	s.render(w, "portfolio.html", map[string]any{
		"PeriodID":     periodID,
		"Portfolio":    pf,
		"Days":         pf.ByDay(),
		"Gates":        gateCounts(pf.Summary.Rejections),
		"Quotas":       quotaRows(pf.Summary.QuotaProgress),
		"Report":       report,
		"Availability": avail.Days(),
		"SourceRuns":   runs,
	})
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	perf, err := s.db.GetSourcePerformance()
	if err != nil {
		log.Printf("Error loading source performance: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	s.render(w, "sources.html", map[string]any{
		"Sources": perf,
	})
}

func gateCounts(rejections map[portfolio.Gate]int) []gateCount {
	var out []gateCount
	for _, g := range portfolio.Gates {
		if n := rejections[g]; n > 0 {
			out = append(out, gateCount{Gate: g, Count: n})
		}
	}
	return out
}

func quotaRows(q portfolio.QuotaProgress) []quotaRow {
	var out []quotaRow
	for goal, w := range q.Weekly {
		out = append(out, quotaRow{Goal: goal, Period: "weekly", Target: w.Target, Count: w.MaxCount, Met: w.Met()})
	}
	for goal, m := range q.Monthly {
		out = append(out, quotaRow{Goal: goal, Period: "monthly", Target: m.Target, Count: m.Count, Met: m.Met()})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Period != out[j].Period {
			return out[i].Period == "weekly"
		}
		return out[i].Goal < out[j].Goal
	})
	return out
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		log.Printf("Template %s not found", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		log.Printf("Error rendering template %s: %v", name, err)
	}
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// Serve starts the HTTP server on the given port.
func Serve(db *database.DB, port int) error {
	srv, err := New(db)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	log.Printf("Server listening on http://%s", addr)
	return http.ListenAndServe(addr, srv.Handler())
}
