// Package xsearch pulls tweet texts out of an X/Twitter live-search
// page, either fetched over HTTP or read from a saved HTML file.
// AppleScript is not involved; the page markup is parsed directly.
package xsearch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	defaultMaxTweets = 15
	tweetSelector    = "[data-testid=tweetText]"
)

// Fetcher retrieves and parses search pages.
type Fetcher struct {
	httpc *http.Client
	// MaxTweets caps the result list; zero means the default of 15.
	MaxTweets int
}

// New returns a fetcher with a 45 second request timeout.
func New() *Fetcher {
	return &Fetcher{httpc: &http.Client{Timeout: 45 * time.Second}}
}

// SearchURL builds the live-search URL for a query.
func SearchURL(query string) string {
	return "https://x.com/search?q=" + url.QueryEscape(query) + "&f=live"
}

func (f *Fetcher) max() int {
	if f.MaxTweets > 0 {
		return f.MaxTweets
	}
	return defaultMaxTweets
}

// Search fetches the live-search page for the query and extracts up to
// MaxTweets tweet texts. Login walls yield pages with no tweet nodes,
// reported as an error.
func (f *Fetcher) Search(ctx context.Context, query string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, SearchURL(query), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)")

	resp, err := f.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching search page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search page returned %d", resp.StatusCode)
	}
	return f.extract(resp.Body, query)
}

// FromFile extracts tweets from a saved page, for pages grabbed with
// the browser when the site refuses plain HTTP clients.
func (f *Fetcher) FromFile(path, query string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening saved page: %w", err)
	}
	defer file.Close()
	return f.extract(file, query)
}

func (f *Fetcher) extract(r io.Reader, query string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing page: %w", err)
	}
	var tweets []string
	doc.Find(tweetSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.TrimSpace(s.Text())
		if text != "" {
			tweets = append(tweets, text)
		}
		return len(tweets) < f.max()
	})
	if len(tweets) == 0 {
		return nil, fmt.Errorf("no tweets found for %q (page may need a logged-in session)", query)
	}
	return tweets, nil
}

// Format renders the numbered digest the notify channel expects.
func Format(query string, tweets []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== X Search: %s ===\n", query)
	for i, t := range tweets {
		fmt.Fprintf(&b, "%d. %s\n", i+1, strings.ReplaceAll(t, "\n", " "))
	}
	fmt.Fprintf(&b, "=== %d tweets fetched ===", len(tweets))
	return b.String()
}
