package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// DefaultDuckDuckGoURL is the JavaScript-free DuckDuckGo results page.
const DefaultDuckDuckGoURL = "https://html.duckduckgo.com/html/"

const duckDuckGoResults = 3

// DuckDuckGo scrapes the HTML results page. It needs no API key.
type DuckDuckGo struct {
	baseURL string
	client  *http.Client
}

// NewDuckDuckGo returns a scraper. An empty baseURL uses the public page.
func NewDuckDuckGo(baseURL string, timeout time.Duration) *DuckDuckGo {
	if baseURL == "" {
		baseURL = DefaultDuckDuckGoURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &DuckDuckGo{baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

// Search implements Searcher. The answer lists the top results as
// "title: snippet" lines.
func (d *DuckDuckGo) Search(ctx context.Context, query string) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", ErrEmptyQuery
	}
	form := url.Values{"q": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("duckduckgo: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) Jarvis/1.0")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("duckduckgo: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("duckduckgo: HTTP %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("duckduckgo: parse HTML: %w", err)
	}

	var lines []string
	doc.Find(".result").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		title := strings.TrimSpace(s.Find("a.result__a").First().Text())
		snippet := strings.Join(strings.Fields(s.Find(".result__snippet").First().Text()), " ")
		switch {
		case title == "" && snippet == "":
			return true
		case snippet == "":
			lines = append(lines, title)
		case title == "":
			lines = append(lines, snippet)
		default:
			lines = append(lines, title+": "+snippet)
		}
		return len(lines) < duckDuckGoResults
	})
	if len(lines) == 0 {
		return NoAnswer, nil
	}
	return strings.Join(lines, "\n"), nil
}
