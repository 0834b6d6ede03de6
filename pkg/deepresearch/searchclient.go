package deepresearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// SearchClient performs a web search for a single query and returns
// results in provider rank order, plus the Source records derived from
// them.
type SearchClient interface {
	Search(ctx context.Context, query string) (SearchResponse, error)
}

// HTTPSearchClient adapts a web-search-and-scrape HTTP service to the
// SearchClient contract, grounded on the request/response shape in the
// spec's collaborator contract and on the teacher's
// pkg/research/tools/scraper.go HTTP-call idiom (build request, bearer
// header, decode JSON, wrap every failure with %w).
type HTTPSearchClient struct {
	BaseURL     string
	APIKey      string
	HTTPClient  *http.Client
	RateLimiter *RateLimiter
	Timeout     time.Duration
	Country     string
	Lang        string
}

// NewHTTPSearchClient builds a client with the spec's default 45s
// per-request timeout.
func NewHTTPSearchClient(baseURL, apiKey string, limiter *RateLimiter) *HTTPSearchClient {
	return &HTTPSearchClient{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		APIKey:      apiKey,
		HTTPClient:  &http.Client{},
		RateLimiter: limiter,
		Timeout:     45 * time.Second,
		Country:     "us",
		Lang:        "en",
	}
}

type searchRequestBody struct {
	Query         string              `json:"query"`
	Limit         int                 `json:"limit"`
	Country       string              `json:"country"`
	Lang          string              `json:"lang"`
	ScrapeOptions searchScrapeOptions `json:"scrapeOptions"`
	Timeout       int                 `json:"timeout"`
}

type searchScrapeOptions struct {
	Formats         []string `json:"formats"`
	OnlyMainContent bool     `json:"onlyMainContent"`
}

// searchResponseBody tolerates schema drift in key casing per the spec's
// "never trust provider key casing" design note: it decodes into a
// permissive map first, then projects.
type searchResponseBody struct {
	Data []map[string]interface{} `json:"data"`
}

const defaultSearchLimit = 8

// Search implements SearchClient. Failures are classified per spec §4.2:
// rate_limited (429, after signalling RateLimiter.SignalRateLimitError) and
// transient (timeout/network) are both retried within this loop, up to
// maxTransientRetries times with backoff; provider_error (4xx other than
// 429) surfaces immediately, and zero results is not an error.
func (c *HTTPSearchClient) Search(ctx context.Context, query string) (SearchResponse, error) {
	const maxTransientRetries = 2

	var lastErr error
	for attempt := 0; attempt <= maxTransientRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return SearchResponse{}, WrapError(KindCancelled, ctx.Err())
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}

		resp, err := c.doSearch(ctx, query)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !IsKind(err, KindTransient) && !IsKind(err, KindRateLimited) {
			return SearchResponse{}, err
		}
	}
	return SearchResponse{}, lastErr
}

func (c *HTTPSearchClient) doSearch(ctx context.Context, query string) (SearchResponse, error) {
	if c.RateLimiter != nil {
		if err := c.RateLimiter.Acquire(ctx); err != nil {
			return SearchResponse{}, err
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	body := searchRequestBody{
		Query:   query,
		Limit:   defaultSearchLimit,
		Country: c.Country,
		Lang:    c.Lang,
		ScrapeOptions: searchScrapeOptions{
			Formats:         []string{"markdown", "links"},
			OnlyMainContent: true,
		},
		Timeout: int(c.Timeout / time.Millisecond),
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return SearchResponse{}, fmt.Errorf("failed to marshal search request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.BaseURL+"/search", bytes.NewReader(payload))
	if err != nil {
		return SearchResponse{}, fmt.Errorf("failed to build search request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		if reqCtx.Err() != nil {
			return SearchResponse{}, WrapError(KindTransient, fmt.Errorf("search request timed out: %w", err))
		}
		return SearchResponse{}, WrapError(KindTransient, fmt.Errorf("search request failed: %w", err))
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return SearchResponse{}, WrapError(KindTransient, fmt.Errorf("failed to read search response: %w", err))
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		if c.RateLimiter != nil {
			c.RateLimiter.SignalRateLimitError(retryAfter)
		}
		return SearchResponse{}, WrapError(KindRateLimited, fmt.Errorf("search provider rate limited us: %s", string(respBytes)))
	}
	if resp.StatusCode >= 500 {
		return SearchResponse{}, WrapError(KindTransient, fmt.Errorf("search provider returned %d: %s", resp.StatusCode, string(respBytes)))
	}
	if resp.StatusCode >= 400 {
		return SearchResponse{}, WrapError(KindProviderError, fmt.Errorf("search provider returned %d: %s", resp.StatusCode, string(respBytes)))
	}

	var parsed searchResponseBody
	if err := json.Unmarshal(respBytes, &parsed); err != nil {
		return SearchResponse{}, WrapError(KindTransient, fmt.Errorf("failed to unmarshal search response: %w", err))
	}
	if c.RateLimiter != nil {
		c.RateLimiter.ResetBackoff()
	}

	return projectSearchDocs(parsed.Data), nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := time.ParseDuration(header + "s"); err == nil {
		return secs
	}
	return 0
}

// projectSearchDocs turns the provider's loosely-typed result rows into
// SearchDoc/Source pairs, filtering out rows with an empty or invalid URL
// and deriving Source fields per spec §4.2 (domain, favicon, relevance).
func projectSearchDocs(rows []map[string]interface{}) SearchResponse {
	docs := make([]SearchDoc, 0, len(rows))
	sources := make([]Source, 0, len(rows))

	rank := 0
	for _, row := range rows {
		rawURL := stringField(row, "url")
		if rawURL == "" {
			continue
		}
		parsed, err := url.Parse(rawURL)
		if err != nil || parsed.Host == "" {
			continue
		}

		doc := SearchDoc{
			URL:      rawURL,
			Title:    stringField(row, "title"),
			Snippet:  firstNonEmpty(stringField(row, "description"), stringField(row, "snippet")),
			MainText: stringField(row, "markdown"),
			Rank:     rank,
		}
		docs = append(docs, doc)
		sources = append(sources, deriveSource(doc, rank))
		rank++
	}

	return SearchResponse{Docs: docs, Sources: sources}
}

func stringField(row map[string]interface{}, key string) string {
	v, ok := row[key]
	if !ok {
		for k, candidate := range row {
			if strings.EqualFold(k, key) {
				v, ok = candidate, true
				break
			}
		}
	}
	if ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// domainOf lowercases the host and strips a leading "www." per spec §4.2.
func domainOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(parsed.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// faviconURL builds a standard external favicon-service URL for a domain.
func faviconURL(domain string) string {
	if domain == "" {
		return ""
	}
	return fmt.Sprintf("https://www.google.com/s2/favicons?domain=%s&sz=64", domain)
}

// CompositeSearchClient fans a query out to multiple SearchClients
// concurrently and merges their SearchDoc/Source results in client order
// (not by which client answered first); when two clients return the same
// URL, the earlier client's doc is kept. Docs are not re-ranked across
// clients. Used to combine the general web SearchClient with a supplemental
// domain-specific one such as ArxivSearchClient.
type CompositeSearchClient struct {
	Clients []SearchClient
}

// NewCompositeSearchClient builds a fan-out client over the given
// SearchClients, in priority order for tie-breaking.
func NewCompositeSearchClient(clients ...SearchClient) *CompositeSearchClient {
	return &CompositeSearchClient{Clients: clients}
}

// Search queries every configured client concurrently. A single client's
// failure is logged into the aggregate error only if every client fails;
// partial results from the surviving clients are still returned.
func (c *CompositeSearchClient) Search(ctx context.Context, query string) (SearchResponse, error) {
	type result struct {
		resp SearchResponse
		err  error
	}

	if len(c.Clients) == 0 {
		return SearchResponse{}, nil
	}

	results := make([]result, len(c.Clients))
	var wg sync.WaitGroup
	wg.Add(len(c.Clients))
	for i, client := range c.Clients {
		go func(i int, client SearchClient) {
			defer wg.Done()
			resp, err := client.Search(ctx, query)
			results[i] = result{resp: resp, err: err}
		}(i, client)
	}
	wg.Wait()

	merged := SearchResponse{}
	seenURLs := make(map[string]bool)
	var lastErr error
	successCount := 0

	for _, r := range results {
		if r.err != nil {
			lastErr = r.err
			continue
		}
		successCount++
		for i, doc := range r.resp.Docs {
			if seenURLs[doc.URL] {
				continue
			}
			seenURLs[doc.URL] = true
			merged.Docs = append(merged.Docs, doc)
			merged.Sources = append(merged.Sources, r.resp.Sources[i])
		}
	}

	if successCount == 0 && lastErr != nil {
		return SearchResponse{}, lastErr
	}
	return merged, nil
}

// deriveSource projects a SearchDoc into its Source record, computing
// relevance = 0.9 - 0.05*rank, clamped to [0.1, 0.95].
func deriveSource(doc SearchDoc, rank int) Source {
	relevance := 0.9 - 0.05*float64(rank)
	if relevance > 0.95 {
		relevance = 0.95
	}
	if relevance < 0.1 {
		relevance = 0.1
	}
	domain := domainOf(doc.URL)
	return Source{
		URL:       doc.URL,
		Title:     doc.Title,
		Domain:    domain,
		Favicon:   faviconURL(domain),
		Relevance: relevance,
	}
}
