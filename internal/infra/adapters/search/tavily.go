// Package search holds ContentSearcher implementations that are not tied to
// a chat provider.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"voice-companion/internal/domain/ports/adapter"
	"voice-companion/internal/infra/metrics"
)

var _ adapter.ContentSearcher = (*TavilySearcher)(nil)

const defaultTavilyURL = "https://api.tavily.com/search"

// TavilySearcher calls the Tavily search API. Results become citations;
// the optional answer becomes the free text.
type TavilySearcher struct {
	apiKey     string
	url        string
	maxResults int
	client     *http.Client
}

func NewTavilySearcher(apiKey, url string, maxResults int, timeout time.Duration) (*TavilySearcher, error) {
	if apiKey == "" {
		return nil, errors.New("tavily api key empty")
	}
	if url == "" {
		url = defaultTavilyURL
	}
	if maxResults <= 0 {
		maxResults = 5
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &TavilySearcher{
		apiKey:     apiKey,
		url:        url,
		maxResults: maxResults,
		client:     &http.Client{Timeout: timeout},
	}, nil
}

type tavilyRequest struct {
	Query         string `json:"query"`
	MaxResults    int    `json:"max_results"`
	SearchDepth   string `json:"search_depth"`
	IncludeAnswer bool   `json:"include_answer"`
}

type tavilyResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

func (s *TavilySearcher) Search(ctx context.Context, query string) (adapter.SearchResult, error) {
	start := time.Now()
	res, err := s.search(ctx, query)
	metrics.ObserveAICall("tavily", "search", time.Since(start), err)
	return res, err
}

func (s *TavilySearcher) search(ctx context.Context, query string) (adapter.SearchResult, error) {
	b, _ := json.Marshal(tavilyRequest{
		Query:         query,
		MaxResults:    s.maxResults,
		SearchDepth:   "basic",
		IncludeAnswer: true,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(b))
	if err != nil {
		return adapter.SearchResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return adapter.SearchResult{}, fmt.Errorf("tavily: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return adapter.SearchResult{}, fmt.Errorf("tavily http %d", resp.StatusCode)
	}

	var payload tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return adapter.SearchResult{}, fmt.Errorf("tavily decode: %w", err)
	}
	out := adapter.SearchResult{Text: strings.TrimSpace(payload.Answer)}
	for _, r := range payload.Results {
		if r.URL == "" {
			continue
		}
		out.Citations = append(out.Citations, adapter.Citation{Title: r.Title, URL: r.URL})
	}
	return out, nil
}
