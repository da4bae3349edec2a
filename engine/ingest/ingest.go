// Package ingest fetches configured syndication feeds and the optional
// headline API on a fixed cadence and produces RawArticle records.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/headlinehq/newsflow/engine/article"
	"github.com/headlinehq/newsflow/pkg/fn"
	"github.com/mmcdole/gofeed"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

const (
	// FetchTimeout bounds a single feed HTTP GET.
	FetchTimeout = 30 * time.Second
	// failureWait is how long to wait after a failed cycle before retrying.
	failureWait = 60 * time.Second
	// maxFeedConcurrency bounds parallel feed fetches per cycle.
	maxFeedConcurrency = 8
)

// DefaultFeeds are used when RSS_FEEDS is not configured.
var DefaultFeeds = []string{
	"https://rss.cnn.com/rss/edition.rss",
	"https://feeds.bbci.co.uk/news/rss.xml",
	"https://www.reuters.com/tools/rss",
	"https://techcrunch.com/feed/",
	"https://feeds.npr.org/1001/rss.xml",
	"https://www.theguardian.com/international/rss",
	"https://nypost.com/feed/",
	"https://feeds.washingtonpost.com/rss/world",
}

// Config controls the fetch schedule and sources.
type Config struct {
	Feeds      []string
	Interval   time.Duration
	NewsAPIKey string
}

// Deps holds the external dependencies of the fetcher.
type Deps struct {
	// Publish sends one raw article to the raw topic, keyed by id.
	Publish func(ctx context.Context, a article.RawArticle) error
	Logger  *slog.Logger
}

// Fetcher runs the periodic ingestion loop.
type Fetcher struct {
	feeds    []string
	interval time.Duration
	parser   *gofeed.Parser
	limiter  *rate.Limiter
	headline *HeadlineAPI
	publish  func(ctx context.Context, a article.RawArticle) error
	log      *slog.Logger
	now      func() time.Time // for testing
}

// New creates a Fetcher. Empty config fields fall back to defaults.
func New(cfg Config, deps Deps) *Fetcher {
	feeds := cfg.Feeds
	if len(feeds) == 0 {
		feeds = DefaultFeeds
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	client := &http.Client{
		Timeout:   FetchTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	parser := gofeed.NewParser()
	parser.Client = client

	f := &Fetcher{
		feeds:    feeds,
		interval: interval,
		parser:   parser,
		limiter:  rate.NewLimiter(rate.Limit(4), maxFeedConcurrency),
		publish:  deps.Publish,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
	if cfg.NewsAPIKey != "" {
		f.headline = NewHeadlineAPI(cfg.NewsAPIKey, client)
	}
	return f
}

// Run fetches until ctx is cancelled. Each cycle starts interval after
// the previous cycle started; an overrunning cycle does not catch up.
// A failed cycle retries after a shorter fixed wait.
func (f *Fetcher) Run(ctx context.Context) error {
	f.log.Info("ingestor starting", "feeds", len(f.feeds), "interval", f.interval, "headline_api", f.headline != nil)
	for {
		start := time.Now()
		n, err := f.Cycle(ctx)

		var wait time.Duration
		if err != nil {
			f.log.Error("ingestion cycle failed", "error", err)
			wait = failureWait
		} else {
			f.log.Info("ingestion cycle completed", "published", n, "took", time.Since(start))
			wait = f.interval - time.Since(start)
			if wait < 0 {
				wait = 0
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Cycle runs one ingestion pass: all feeds in parallel, then the
// headline API, then publish. Per-feed and per-article errors are
// isolated; the cycle only fails when nothing could be published at all.
func (f *Fetcher) Cycle(ctx context.Context) (int, error) {
	results := fn.ParMap(f.feeds, maxFeedConcurrency, func(feedURL string) fn.Result[[]article.RawArticle] {
		return fn.FromPair(f.fetchFeed(ctx, feedURL))
	})

	var all []article.RawArticle
	for i, r := range results {
		arts, err := r.Unwrap()
		if err != nil {
			f.log.Warn("feed fetch failed", "feed", f.feeds[i], "error", err)
			continue
		}
		f.log.Info("feed fetched", "feed", f.feeds[i], "articles", len(arts))
		all = append(all, arts...)
	}

	if f.headline != nil {
		arts, err := f.headline.TopHeadlines(ctx)
		if err != nil {
			f.log.Warn("headline api fetch failed", "error", err)
		} else {
			f.log.Info("headline api fetched", "articles", len(arts))
			all = append(all, arts...)
		}
	}

	if len(all) == 0 {
		f.log.Warn("no articles fetched this cycle")
		return 0, nil
	}

	published := 0
	for _, a := range all {
		if err := f.publish(ctx, a); err != nil {
			f.log.Error("publish failed", "article_id", a.ID, "error", err)
			continue
		}
		published++
	}
	if published == 0 {
		return 0, errors.New("all publishes failed")
	}
	return published, nil
}

// fetchFeed downloads and parses one syndication feed.
func (f *Fetcher) fetchFeed(ctx context.Context, feedURL string) ([]article.RawArticle, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	feed, err := f.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, err
	}

	source := sourceHost(feedURL)
	articles := make([]article.RawArticle, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item.Link == "" {
			continue
		}
		articles = append(articles, f.fromFeedItem(feedURL, source, item))
	}
	return articles, nil
}

func (f *Fetcher) fromFeedItem(feedURL, source string, item *gofeed.Item) article.RawArticle {
	now := f.now()

	publishedAt := now
	if item.PublishedParsed != nil {
		publishedAt = item.PublishedParsed.UTC()
	}

	// Prefer the full content body, then the summary/description.
	content := item.Content
	if content == "" {
		content = item.Description
	}

	var author *string
	if item.Author != nil && item.Author.Name != "" {
		author = &item.Author.Name
	}

	return article.RawArticle{
		ID:          uuid.NewString(),
		URL:         item.Link,
		Title:       item.Title,
		Content:     content,
		Author:      author,
		Source:      source,
		PublishedAt: publishedAt,
		ScrapedAt:   now,
		Metadata: article.Metadata{
			"feed_url": feedURL,
			"tags":     item.Categories,
		},
	}
}

// sourceHost derives the source name from a feed URL: the lowercased
// host with any www prefix removed.
func sourceHost(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return rawURL
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
