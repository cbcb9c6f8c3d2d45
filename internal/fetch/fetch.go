// Package fetch downloads source pages for the collection adapters.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	readability "github.com/go-shiori/go-readability"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	userAgent        = "eventfolio/1.0 (event planner)"
	defaultTimeout   = 20 * time.Second
	defaultCacheSize = 128
	maxRedirects     = 10
	maxBodyBytes     = 8 << 20
)

// HTTPError is returned for responses with status >= 400.
type HTTPError struct {
	URL  string
	Code int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: %d %s", e.URL, e.Code, http.StatusText(e.Code))
}

// Fetcher issues GET requests and keeps the bodies of one run in memory, so
// that the fallback adapters of a source do not download the same page twice.
type Fetcher struct {
	client *http.Client
	cache  *lru.Cache[string, []byte]
	// RenderTimeout bounds a headless browser render.
	RenderTimeout time.Duration
}

// NewFetcher creates a fetcher. A zero timeout uses the default.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout == 0 {
		timeout = defaultTimeout
	}
	cache, err := lru.New[string, []byte](defaultCacheSize)
	if err != nil {
		panic(err)
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		cache:         cache,
		RenderTimeout: 30 * time.Second,
	}
}

// Reset drops every cached body. Call it when a new run starts.
func (f *Fetcher) Reset() {
	f.cache.Purge()
}

// Get returns the body of pageURL.
func (f *Fetcher) Get(ctx context.Context, pageURL string) ([]byte, error) {
	if body, ok := f.cache.Get(pageURL); ok {
		return body, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &HTTPError{URL: pageURL, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", pageURL, err)
	}
	f.cache.Add(pageURL, body)
	return body, nil
}

// Render loads pageURL in headless Chromium and returns the DOM after scripts
// have run.
func (f *Fetcher) Render(ctx context.Context, pageURL string) (string, error) {
	ctx, cancel := chromedp.NewContext(ctx)
	defer cancel()
	ctx, timeoutCancel := context.WithTimeout(ctx, f.RenderTimeout)
	defer timeoutCancel()

	var html string
	err := chromedp.Run(ctx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(time.Second),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("rendering %s: %w", pageURL, err)
	}
	log.Printf("Rendered %s (%d bytes)", pageURL, len(html))
	return html, nil
}

// ExtractText returns the readable text of an HTML page, cut to max runes.
// It returns "" when nothing readable is found.
func ExtractText(body []byte, pageURL string, max int) string {
	parsed, _ := url.Parse(pageURL)
	article, err := readability.FromReader(bytes.NewReader(body), parsed)
	if err != nil {
		return ""
	}
	text := strings.Join(strings.Fields(article.TextContent), " ")
	if max > 0 {
		if r := []rune(text); len(r) > max {
			text = string(r[:max])
		}
	}
	return text
}
