// Package search is the read and write surface over the article index.
// Enriched articles land in monthly Elasticsearch indices; queries run
// across all of them. A fixed in-memory corpus stands in for the store
// when it is unreachable.
package search

import (
	"context"
	"errors"
	"time"

	"github.com/headlinehq/newsflow/engine/article"
)

// ErrNotFound is returned when an article id matches no document.
var ErrNotFound = errors.New("article not found")

const (
	// DefaultPageSize is the search page size when none is given.
	DefaultPageSize = 20
	// MaxPageSize bounds both search size and latest limit.
	MaxPageSize = 100
)

// SearchRequest carries the filters of one search call.
type SearchRequest struct {
	Query     string
	Topics    []string
	Sources   []string
	Languages []string
	Sentiment string
	DateFrom  *time.Time
	DateTo    *time.Time
	Page      int
	Size      int
}

// Clamp normalizes page and size into their allowed ranges.
func (r *SearchRequest) Clamp() {
	if r.Page < 1 {
		r.Page = 1
	}
	if r.Size < 1 {
		r.Size = DefaultPageSize
	}
	if r.Size > MaxPageSize {
		r.Size = MaxPageSize
	}
}

// SearchResponse is the paginated result of a search call.
type SearchResponse struct {
	Articles []article.EnrichedArticle `json:"articles"`
	Total    int                       `json:"total"`
	Page     int                       `json:"page"`
	Size     int                       `json:"size"`
	Took     int                       `json:"took"`
}

// NamedCount is one aggregation bucket.
type NamedCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// DailyCount is one day-bucketed article count.
type DailyCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Stats aggregates the indexed corpus.
type Stats struct {
	TotalArticles int          `json:"total_articles"`
	Sources       []NamedCount `json:"sources"`
	Languages     []NamedCount `json:"languages"`
	Sentiments    []NamedCount `json:"sentiments"`
	DailyCounts   []DailyCount `json:"daily_counts"`
}

// Repository is the read path of the query API. Two variants exist:
// the Elasticsearch Store and the in-memory Mock.
type Repository interface {
	Search(ctx context.Context, req SearchRequest) (*SearchResponse, error)
	GetByID(ctx context.Context, id string) (*article.EnrichedArticle, error)
	Latest(ctx context.Context, limit int, source, language string) ([]article.EnrichedArticle, error)
	Stats(ctx context.Context) (*Stats, error)
	// Mode identifies the variant in health output.
	Mode() string
}
