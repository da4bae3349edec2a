package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/headlinehq/newsflow/engine/article"
)

const testFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:content="http://purl.org/rss/1.0/modules/content/">
<channel>
  <title>Test Feed</title>
  <link>http://example.com</link>
  <item>
    <title>Quantum Leap</title>
    <link>http://example.com/quantum</link>
    <pubDate>Wed, 15 Jan 2025 10:00:00 GMT</pubDate>
    <description>short summary</description>
    <content:encoded><![CDATA[<p>Scientists announced a major breakthrough in quantum computing today.</p>]]></content:encoded>
  </item>
  <item>
    <title>Markets Rally</title>
    <link>http://example.com/markets</link>
    <description><![CDATA[<p>Stocks climbed for a third straight session.</p>]]></description>
  </item>
  <item>
    <title>No Link Entry</title>
  </item>
</channel>
</rss>`

type capture struct {
	mu       sync.Mutex
	articles []article.RawArticle
}

func (c *capture) publish(_ context.Context, a article.RawArticle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.articles = append(c.articles, a)
	return nil
}

func feedServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(testFeed))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCycleFetchesAndPublishes(t *testing.T) {
	srv := feedServer(t)
	var got capture
	f := New(Config{Feeds: []string{srv.URL + "/feed"}}, Deps{Publish: got.publish})

	n, err := f.Cycle(context.Background())
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 published (link-less entry skipped), got %d", n)
	}

	byTitle := map[string]article.RawArticle{}
	for _, a := range got.articles {
		byTitle[a.Title] = a
	}

	quantum := byTitle["Quantum Leap"]
	if quantum.ID == "" || quantum.ID == byTitle["Markets Rally"].ID {
		t.Error("ids must be fresh and unique")
	}
	if !strings.Contains(quantum.Content, "quantum computing") {
		t.Errorf("full content body should win over description: %q", quantum.Content)
	}
	want := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	if !quantum.PublishedAt.Equal(want) {
		t.Errorf("published_at: got %v", quantum.PublishedAt)
	}
	if quantum.Source != "127.0.0.1" {
		t.Errorf("source should be the feed host, got %q", quantum.Source)
	}
	if quantum.Metadata["feed_url"] != srv.URL+"/feed" {
		t.Errorf("metadata feed_url: %v", quantum.Metadata["feed_url"])
	}

	markets := byTitle["Markets Rally"]
	if !strings.Contains(markets.Content, "third straight session") {
		t.Errorf("description fallback missing: %q", markets.Content)
	}
	if markets.PublishedAt.IsZero() {
		t.Error("missing pubDate should default to now")
	}
}

func TestCycleIsolatesFailingFeeds(t *testing.T) {
	good := feedServer(t)
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	var got capture
	f := New(Config{Feeds: []string{bad.URL, good.URL}}, Deps{Publish: got.publish})

	n, err := f.Cycle(context.Background())
	if err != nil {
		t.Fatalf("one bad feed should not fail the cycle: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 from the healthy feed, got %d", n)
	}
}

func TestCycleAllFeedsDown(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer bad.Close()

	var got capture
	f := New(Config{Feeds: []string{bad.URL}}, Deps{Publish: got.publish})

	n, err := f.Cycle(context.Background())
	if err != nil || n != 0 {
		t.Errorf("empty cycle is not an error: n=%d err=%v", n, err)
	}
}

func TestSourceHost(t *testing.T) {
	cases := []struct{ in, want string }{
		{"https://www.theguardian.com/international/rss", "theguardian.com"},
		{"https://feeds.bbci.co.uk/news/rss.xml", "feeds.bbci.co.uk"},
		{"http://RSS.CNN.com/rss/edition.rss", "rss.cnn.com"},
		{"not a url", "not a url"},
	}
	for _, c := range cases {
		if got := sourceHost(c.in); got != c.want {
			t.Errorf("sourceHost(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestTopHeadlines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("apiKey") != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"status": "ok",
			"articles": [
				{
					"source": {"id": "ap", "name": "Associated Press"},
					"author": "Jane Reporter",
					"title": "Senate Passes Bill",
					"description": "The bill passed narrowly.",
					"url": "https://apnews.com/senate-bill",
					"publishedAt": "2025-01-15T08:30:00Z",
					"content": "The Senate passed the bill on Wednesday."
				},
				{"source": {"name": "Broken"}, "title": "", "url": ""}
			]
		}`))
	}))
	defer srv.Close()

	api := NewHeadlineAPI("test-key", srv.Client())
	api.baseURL = srv.URL

	articles, err := api.TopHeadlines(context.Background())
	if err != nil {
		t.Fatalf("top headlines: %v", err)
	}
	if len(articles) != 1 {
		t.Fatalf("expected 1 article (empty one skipped), got %d", len(articles))
	}

	a := articles[0]
	if a.Source != "Associated Press" {
		t.Errorf("source should be the provider name, got %q", a.Source)
	}
	if a.Author == nil || *a.Author != "Jane Reporter" {
		t.Errorf("author: %v", a.Author)
	}
	if !a.PublishedAt.Equal(time.Date(2025, 1, 15, 8, 30, 0, 0, time.UTC)) {
		t.Errorf("published_at: %v", a.PublishedAt)
	}
	if a.Metadata["api_source"] != "newsapi" {
		t.Errorf("metadata api_source: %v", a.Metadata["api_source"])
	}
}

func TestTopHeadlinesErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	api := NewHeadlineAPI("k", srv.Client())
	api.baseURL = srv.URL
	api.retry.InitialWait = time.Millisecond
	if _, err := api.TopHeadlines(context.Background()); err == nil {
		t.Fatal("expected error on non-200")
	}
}

func TestTopHeadlinesRetriesTransientFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "ok", "articles": [
			{"source": {"name": "Wire"}, "title": "Recovered", "url": "https://example.com/x", "publishedAt": "2025-08-20T10:00:00Z"}
		]}`))
	}))
	defer srv.Close()

	api := NewHeadlineAPI("k", srv.Client())
	api.baseURL = srv.URL
	api.retry.InitialWait = time.Millisecond

	articles, err := api.TopHeadlines(context.Background())
	if err != nil {
		t.Fatalf("expected success after retries: %v", err)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
	if len(articles) != 1 || articles[0].Title != "Recovered" {
		t.Errorf("articles: %v", articles)
	}
}
