package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/headlinehq/newsflow/engine/article"
	"github.com/headlinehq/newsflow/pkg/fn"
)

// headlineRetry paces retries of transient headline API failures.
var headlineRetry = fn.RetryOpts{
	MaxAttempts: 3,
	InitialWait: 500 * time.Millisecond,
	MaxWait:     5 * time.Second,
	Jitter:      true,
}

// HeadlineAPI is a client for the newsapi.org top-headlines endpoint.
// One page of up to 100 US english headlines is fetched per cycle.
type HeadlineAPI struct {
	apiKey  string
	baseURL string
	client  *http.Client
	retry   fn.RetryOpts
}

// NewHeadlineAPI creates a client using the given HTTP client.
func NewHeadlineAPI(apiKey string, client *http.Client) *HeadlineAPI {
	if client == nil {
		client = &http.Client{Timeout: FetchTimeout}
	}
	return &HeadlineAPI{
		apiKey:  apiKey,
		baseURL: "https://newsapi.org/v2/top-headlines",
		client:  client,
		retry:   headlineRetry,
	}
}

type headlineResponse struct {
	Status   string         `json:"status"`
	Articles []headlineItem `json:"articles"`
}

type headlineItem struct {
	Source struct {
		ID   *string `json:"id"`
		Name string  `json:"name"`
	} `json:"source"`
	Author      *string `json:"author"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	URL         string  `json:"url"`
	URLToImage  *string `json:"urlToImage"`
	PublishedAt string  `json:"publishedAt"`
	Content     string  `json:"content"`
}

// TopHeadlines fetches one page of headlines and converts them to raw
// articles. Transient fetch failures retry with backoff. Source is the
// provider's source name, not the URL host.
func (h *HeadlineAPI) TopHeadlines(ctx context.Context) ([]article.RawArticle, error) {
	q := url.Values{}
	q.Set("apiKey", h.apiKey)
	q.Set("language", "en")
	q.Set("pageSize", "100")
	q.Set("country", "us")

	res := fn.Retry(ctx, h.retry, func(ctx context.Context) fn.Result[headlineResponse] {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"?"+q.Encode(), nil)
		if err != nil {
			return fn.Err[headlineResponse](err)
		}
		resp, err := h.client.Do(req)
		if err != nil {
			return fn.Errf[headlineResponse]("headline api: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fn.Errf[headlineResponse]("headline api: unexpected status %d", resp.StatusCode)
		}
		var body headlineResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return fn.Errf[headlineResponse]("headline api: decode: %w", err)
		}
		return fn.Ok(body)
	})
	body, err := res.Unwrap()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	articles := make([]article.RawArticle, 0, len(body.Articles))
	for _, item := range body.Articles {
		if item.URL == "" || item.Title == "" {
			continue
		}

		publishedAt := now
		if t, err := time.Parse(time.RFC3339, item.PublishedAt); err == nil {
			publishedAt = t.UTC()
		}

		content := item.Content
		if content == "" {
			content = item.Description
		}

		articles = append(articles, article.RawArticle{
			ID:          uuid.NewString(),
			URL:         item.URL,
			Title:       item.Title,
			Content:     content,
			Author:      item.Author,
			Source:      item.Source.Name,
			PublishedAt: publishedAt,
			ScrapedAt:   now,
			Metadata: article.Metadata{
				"source_id":    item.Source.ID,
				"url_to_image": item.URLToImage,
				"api_source":   "newsapi",
			},
		})
	}
	return articles, nil
}
