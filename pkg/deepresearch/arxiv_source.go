package deepresearch

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// arxivEntry mirrors one <entry> in the arXiv Atom feed.
type arxivEntry struct {
	Title     string      `xml:"title"`
	Summary   string      `xml:"summary"`
	Published string      `xml:"published"`
	Link      []arxivLink `xml:"link"`
}

type arxivLink struct {
	Href string `xml:"href,attr"`
	Type string `xml:"type,attr"`
}

type arxivFeed struct {
	XMLName xml.Name     `xml:"feed"`
	Entry   []arxivEntry `xml:"entry"`
}

// ArxivSearchClient is a supplemental SearchClient that queries the arXiv
// Atom API directly, for research sessions scoped to academic literature.
// Adapted from the teacher's pkg/research/tools/arxiv.go, which returned a
// single formatted string; here each entry becomes a SearchDoc/Source pair
// so it can be composed with any other SearchClient in ResearchEngine.
type ArxivSearchClient struct {
	HTTPClient *http.Client
	MaxResults int
}

// NewArxivSearchClient builds a client with the teacher's default result
// cap of 5.
func NewArxivSearchClient() *ArxivSearchClient {
	return &ArxivSearchClient{HTTPClient: http.DefaultClient, MaxResults: 5}
}

func (c *ArxivSearchClient) Search(ctx context.Context, query string) (SearchResponse, error) {
	maxResults := c.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}

	params := url.Values{}
	params.Add("search_query", query)
	params.Add("max_results", strconv.Itoa(maxResults))
	params.Add("start", "0")
	apiURL := "https://export.arxiv.org/api/query?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return SearchResponse{}, fmt.Errorf("failed to build arxiv request: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return SearchResponse{}, WrapError(KindTransient, fmt.Errorf("arxiv request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return SearchResponse{}, WrapError(KindTransient, fmt.Errorf("failed to read arxiv response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return SearchResponse{}, WrapError(KindProviderError, fmt.Errorf("arxiv returned status %d: %s", resp.StatusCode, string(body)))
	}

	var feed arxivFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return SearchResponse{}, WrapError(KindTransient, fmt.Errorf("failed to unmarshal arxiv feed: %w", err))
	}

	docs := make([]SearchDoc, 0, len(feed.Entry))
	sources := make([]Source, 0, len(feed.Entry))
	for rank, entry := range feed.Entry {
		pdfLink := pdfLinkOf(entry)
		if pdfLink == "" {
			continue
		}
		doc := SearchDoc{
			URL:      pdfLink,
			Title:    strings.TrimSpace(entry.Title),
			Snippet:  strings.TrimSpace(entry.Summary),
			MainText: "",
			Rank:     rank,
		}
		docs = append(docs, doc)
		sources = append(sources, deriveSource(doc, rank))
	}

	return SearchResponse{Docs: docs, Sources: sources}, nil
}

func pdfLinkOf(entry arxivEntry) string {
	for _, link := range entry.Link {
		if link.Type == "application/pdf" {
			return link.Href
		}
	}
	return ""
}
