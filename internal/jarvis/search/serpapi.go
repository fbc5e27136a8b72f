package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultSerpAPIURL is the SerpApi search endpoint.
const DefaultSerpAPIURL = "https://serpapi.com/search.json"

// SerpAPI queries Google through SerpApi and extracts the most direct answer.
type SerpAPI struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewSerpAPI returns a SerpApi client. An empty baseURL uses the public
// endpoint.
func NewSerpAPI(apiKey, baseURL string, timeout time.Duration) *SerpAPI {
	if baseURL == "" {
		baseURL = DefaultSerpAPIURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &SerpAPI{apiKey: apiKey, baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

type serpResponse struct {
	Error     string `json:"error"`
	AnswerBox *struct {
		Answer  string `json:"answer"`
		Snippet string `json:"snippet"`
	} `json:"answer_box"`
	OrganicResults []struct {
		Snippet string `json:"snippet"`
	} `json:"organic_results"`
}

// Search implements Searcher.
func (s *SerpAPI) Search(ctx context.Context, query string) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", ErrEmptyQuery
	}
	q := url.Values{}
	q.Set("engine", "google")
	q.Set("q", query)
	q.Set("api_key", s.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("serpapi: build request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("serpapi: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("serpapi: read response: %w", err)
	}
	var out serpResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("serpapi: decode response (HTTP %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("serpapi: HTTP %d: %s", resp.StatusCode, out.Error)
	}
	return out.answer(), nil
}

func (r *serpResponse) answer() string {
	if r.AnswerBox != nil {
		if r.AnswerBox.Answer != "" {
			return r.AnswerBox.Answer
		}
		if r.AnswerBox.Snippet != "" {
			return r.AnswerBox.Snippet
		}
	}
	if len(r.OrganicResults) > 0 {
		if r.OrganicResults[0].Snippet != "" {
			return r.OrganicResults[0].Snippet
		}
		return "No snippet available."
	}
	return NoAnswer
}
