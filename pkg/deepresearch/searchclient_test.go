package deepresearch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectSearchDocs_FiltersInvalidURLsAndAssignsRank(t *testing.T) {
	rows := []map[string]interface{}{
		{"url": "https://go.dev/blog/generics", "title": "Generics", "markdown": "body text"},
		{"url": "", "title": "no url"},
		{"url": "not a url with spaces and no scheme", "title": "still no host"},
		{"url": "https://blog.golang.org/generics", "description": "a description"},
	}

	resp := projectSearchDocs(rows)

	require.Len(t, resp.Docs, 2)
	assert.Equal(t, 0, resp.Docs[0].Rank)
	assert.Equal(t, 1, resp.Docs[1].Rank)
	assert.Equal(t, "body text", resp.Docs[0].MainText)
	assert.Equal(t, "a description", resp.Docs[1].Snippet)
	require.Len(t, resp.Sources, 2)
}

func TestDeriveSource_RelevanceDecaysWithRankAndClamps(t *testing.T) {
	doc := SearchDoc{URL: "https://www.example.com/page"}

	s0 := deriveSource(doc, 0)
	assert.InDelta(t, 0.9, s0.Relevance, 0.001)
	assert.Equal(t, "example.com", s0.Domain)
	assert.Contains(t, s0.Favicon, "example.com")

	sFar := deriveSource(doc, 100)
	assert.Equal(t, 0.1, sFar.Relevance, "relevance must clamp at the floor")
}

func TestDomainOf_StripsWWWAndLowercases(t *testing.T) {
	assert.Equal(t, "example.com", domainOf("https://WWW.Example.com/foo"))
	assert.Equal(t, "sub.example.com", domainOf("https://sub.example.com"))
	assert.Equal(t, "", domainOf("::not a url::"))
}

func TestParseRetryAfter(t *testing.T) {
	d := parseRetryAfter("5")
	assert.Equal(t, int64(5), d.Milliseconds()/1000)
	assert.Equal(t, int64(0), parseRetryAfter("").Milliseconds())
}

func TestCompositeSearchClient_MergesAndDedupesAcrossClients(t *testing.T) {
	a := newFakeSearchClient()
	a.responses["go generics"] = SearchResponse{
		Docs:    []SearchDoc{{URL: "https://a.example.com/1", Title: "A1"}},
		Sources: []Source{{URL: "https://a.example.com/1", Title: "A1"}},
	}
	b := newFakeSearchClient()
	b.responses["go generics"] = SearchResponse{
		Docs: []SearchDoc{
			{URL: "https://a.example.com/1", Title: "duplicate"},
			{URL: "https://arxiv.org/pdf/1234", Title: "B1"},
		},
		Sources: []Source{
			{URL: "https://a.example.com/1", Title: "duplicate"},
			{URL: "https://arxiv.org/pdf/1234", Title: "B1"},
		},
	}

	c := NewCompositeSearchClient(a, b)
	resp, err := c.Search(context.Background(), "go generics")

	require.NoError(t, err)
	require.Len(t, resp.Docs, 2)
	urls := []string{resp.Docs[0].URL, resp.Docs[1].URL}
	assert.ElementsMatch(t, []string{"https://a.example.com/1", "https://arxiv.org/pdf/1234"}, urls)
}

func TestCompositeSearchClient_SurvivesPartialFailure(t *testing.T) {
	a := newFakeSearchClient()
	a.errs["go generics"] = WrapError(KindProviderError, fmt.Errorf("boom"))
	b := newFakeSearchClient()
	b.responses["go generics"] = SearchResponse{
		Docs:    []SearchDoc{{URL: "https://b.example.com/1", Title: "B1"}},
		Sources: []Source{{URL: "https://b.example.com/1", Title: "B1"}},
	}

	c := NewCompositeSearchClient(a, b)
	resp, err := c.Search(context.Background(), "go generics")

	require.NoError(t, err)
	require.Len(t, resp.Docs, 1)
	assert.Equal(t, "https://b.example.com/1", resp.Docs[0].URL)
}

// staggeredSearchClient sleeps for a configurable duration before returning,
// so a fan-out test can force widely different goroutine finish times
// instead of every client racing to complete near-simultaneously.
type staggeredSearchClient struct {
	delay time.Duration
	resp  SearchResponse
}

func (s *staggeredSearchClient) Search(ctx context.Context, query string) (SearchResponse, error) {
	time.Sleep(s.delay)
	return s.resp, nil
}

// TestCompositeSearchClient_WaitsForEverySlowClient guards against the fan-out
// hanging or dropping results when goroutines finish far apart in time; run
// with -race to catch any reintroduced unsynchronized shared counter.
func TestCompositeSearchClient_WaitsForEverySlowClient(t *testing.T) {
	clients := make([]SearchClient, 0, 20)
	for i := 0; i < 20; i++ {
		clients = append(clients, &staggeredSearchClient{
			delay: time.Duration(i) * time.Millisecond,
			resp: SearchResponse{
				Docs:    []SearchDoc{{URL: fmt.Sprintf("https://example.com/%d", i)}},
				Sources: []Source{{URL: fmt.Sprintf("https://example.com/%d", i)}},
			},
		})
	}

	c := NewCompositeSearchClient(clients...)

	done := make(chan struct{})
	var resp SearchResponse
	var err error
	go func() {
		resp, err = c.Search(context.Background(), "go generics")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("CompositeSearchClient.Search did not return; fan-out likely hung")
	}

	require.NoError(t, err)
	require.Len(t, resp.Docs, 20)
}

// TestHTTPSearchClient_RetriesAfter429ThenSucceeds guards against
// KindRateLimited errors being surfaced immediately instead of retried:
// spec §4.2 requires rate_limited responses to be retried internally with
// backoff, the same as transient ones.
func TestHTTPSearchClient_RetriesAfter429ThenSucceeds(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error": "rate limited"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"data": [{"url": "https://example.com/1", "title": "one"}]}`))
	}))
	defer server.Close()

	c := NewHTTPSearchClient(server.URL, "test-key", nil)

	resp, err := c.Search(context.Background(), "go generics")

	require.NoError(t, err)
	require.Equal(t, 2, calls, "must retry once after the 429 instead of surfacing it immediately")
	require.Len(t, resp.Docs, 1)
	assert.Equal(t, "https://example.com/1", resp.Docs[0].URL)
}

func TestCompositeSearchClient_AllClientsFailReturnsError(t *testing.T) {
	a := newFakeSearchClient()
	a.errs["go generics"] = WrapError(KindProviderError, fmt.Errorf("boom a"))
	b := newFakeSearchClient()
	b.errs["go generics"] = WrapError(KindProviderError, fmt.Errorf("boom b"))

	c := NewCompositeSearchClient(a, b)
	_, err := c.Search(context.Background(), "go generics")

	require.Error(t, err)
}
