package greybot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/lmittmann/tint"
)

const (
	upstreamBrave      = "brave"
	braveSearchURL     = "https://api.search.brave.com/res/v1/web/search"
	searchResultsLimit = 10
)

// SearchResult is a single web search hit.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// SearchClient queries the Brave Search API. A nil SearchClient is
// valid and means search is disabled.
type SearchClient struct {
	config     *SearchConfig
	httpClient *http.Client
	logger     *slog.Logger
}

func newSearchClient(config *SearchConfig, httpClient *http.Client) *SearchClient {
	if !config.Enabled {
		return nil
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &SearchClient{
		config:     config,
		httpClient: httpClient,
		logger: slog.Default().With(
			loggerNameKey, "search",
		),
	}
}

// Search runs the given query and returns an ordered list of result
// snippets. No results is not an error - the slice is just empty.
// Network failures and non-success statuses are UpstreamError.
func (s *SearchClient) Search(ctx context.Context, query string) (
	[]SearchResult,
	error,
) {
	count := s.config.MaxResults
	if count <= 0 || count > searchResultsLimit {
		count = DefaultSearchMaxResults
	}

	if s.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.RequestTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		braveSearchURL,
		nil,
	)
	if err != nil {
		return nil, NewUpstreamError(upstreamBrave, 0, err)
	}
	q := req.URL.Query()
	q.Set("q", query)
	q.Set("count", fmt.Sprintf("%d", count))
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", s.config.APIKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.ErrorContext(ctx, "search request failed", tint.Err(err))
		return nil, NewUpstreamError(upstreamBrave, 0, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		s.logger.ErrorContext(
			ctx,
			"search returned non-success status",
			"status", resp.StatusCode,
		)
		return nil, NewUpstreamError(
			upstreamBrave,
			resp.StatusCode,
			fmt.Errorf("unexpected status %d", resp.StatusCode),
		)
	}

	var data struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, NewUpstreamError(upstreamBrave, resp.StatusCode, err)
	}

	results := make([]SearchResult, 0, len(data.Web.Results))
	for i, item := range data.Web.Results {
		if i >= count {
			break
		}
		results = append(
			results, SearchResult{
				Title:   item.Title,
				URL:     item.URL,
				Snippet: item.Description,
			},
		)
	}

	s.logger.InfoContext(
		ctx,
		"search finished",
		"query", query,
		"results", len(results),
	)
	return results, nil
}

// formatSearchResults renders results as numbered lines for use as
// auxiliary prompt context or a direct `!search` reply.
func formatSearchResults(query string, results []SearchResult) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results for: %s", query)
	}
	lines := []string{fmt.Sprintf("Results for: %s", query)}
	for i, r := range results {
		lines = append(lines, fmt.Sprintf("%d. %s\n   %s", i+1, r.Title, r.URL))
		if r.Snippet != "" {
			lines = append(lines, "   "+r.Snippet)
		}
	}
	return strings.Join(lines, "\n")
}
