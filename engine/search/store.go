package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/headlinehq/newsflow/engine/article"
)

// healthTimeout bounds store health probes.
const healthTimeout = 2 * time.Second

// Store is the Elasticsearch-backed Repository and the indexer's write
// target. Documents live in monthly indices named {pattern}-YYYY-MM.
type Store struct {
	es      *elasticsearch.Client
	pattern string
	log     *slog.Logger

	mu      sync.Mutex
	ensured map[string]bool // months whose index exists
}

// NormalizeHost prepends http:// to a bare host:port.
func NormalizeHost(host string) string {
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return host
	}
	return "http://" + host
}

// NewStore creates a Store for the given host and index pattern.
func NewStore(host, pattern string, log *slog.Logger) (*Store, error) {
	if pattern == "" {
		pattern = "news"
	}
	if log == nil {
		log = slog.Default()
	}
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{NormalizeHost(host)},
	})
	if err != nil {
		return nil, fmt.Errorf("search: new client: %w", err)
	}
	return &Store{
		es:      es,
		pattern: pattern,
		log:     log,
		ensured: make(map[string]bool),
	}, nil
}

// Mode implements Repository.
func (s *Store) Mode() string { return "elasticsearch" }

// Ping verifies the cluster answers within the health timeout.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	res, err := s.es.Ping(s.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("search: ping: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("search: ping: %s", res.Status())
	}
	return nil
}

// IndexName returns the monthly index for t.
func (s *Store) IndexName(t time.Time) string {
	return fmt.Sprintf("%s-%s", s.pattern, t.UTC().Format("2006-01"))
}

// indices is the wildcard covering all monthly indices.
func (s *Store) indices() string { return s.pattern + "-*" }

// EnsureTemplate installs the index template for all monthly indices.
func (s *Store) EnsureTemplate(ctx context.Context) error {
	body, err := json.Marshal(indexTemplate(s.pattern))
	if err != nil {
		return err
	}
	res, err := s.es.Indices.PutIndexTemplate(
		s.pattern+"_template",
		bytes.NewReader(body),
		s.es.Indices.PutIndexTemplate.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("search: put template: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("search: put template: %s", res.Status())
	}
	s.log.Info("index template installed", "template", s.pattern+"_template")
	return nil
}

// ensureIndex creates the monthly index if needed. Creation is
// idempotent and the result is cached per month.
func (s *Store) ensureIndex(ctx context.Context, name string) error {
	s.mu.Lock()
	done := s.ensured[name]
	s.mu.Unlock()
	if done {
		return nil
	}

	res, err := s.es.Indices.Exists([]string{name}, s.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("search: index exists: %w", err)
	}
	res.Body.Close()

	if res.StatusCode == 404 {
		created, err := s.es.Indices.Create(name, s.es.Indices.Create.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("search: create index: %w", err)
		}
		created.Body.Close()
		// A concurrent creator winning the race is fine.
		if created.IsError() && created.StatusCode != 400 {
			return fmt.Errorf("search: create index %s: %s", name, created.Status())
		}
		s.log.Info("created index", "index", name)
	}

	s.mu.Lock()
	s.ensured[name] = true
	s.mu.Unlock()
	return nil
}

// BulkIndex writes articles to the current monthly index with refresh.
// Document id = article id, so replays overwrite.
func (s *Store) BulkIndex(ctx context.Context, articles []article.EnrichedArticle) error {
	if len(articles) == 0 {
		return nil
	}
	name := s.IndexName(time.Now())
	if err := s.ensureIndex(ctx, name); err != nil {
		return err
	}

	body, err := bulkBody(name, articles)
	if err != nil {
		return err
	}
	res, err := s.es.Bulk(
		bytes.NewReader(body),
		s.es.Bulk.WithContext(ctx),
		s.es.Bulk.WithRefresh("true"),
	)
	if err != nil {
		return fmt.Errorf("search: bulk: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("search: bulk: %s", res.Status())
	}

	var out struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return fmt.Errorf("search: bulk decode: %w", err)
	}
	if out.Errors {
		return fmt.Errorf("search: bulk reported item errors")
	}
	s.log.Info("bulk indexed", "index", name, "articles", len(articles))
	return nil
}

// bulkBody renders the NDJSON payload for one bulk request.
func bulkBody(index string, articles []article.EnrichedArticle) ([]byte, error) {
	var buf bytes.Buffer
	for _, a := range articles {
		meta := map[string]any{"index": map[string]any{"_index": index, "_id": a.ID}}
		if err := json.NewEncoder(&buf).Encode(meta); err != nil {
			return nil, err
		}
		if err := json.NewEncoder(&buf).Encode(a); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// esHits mirrors the slice of an Elasticsearch search response we use.
type esHits struct {
	Took int `json:"took"`
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source article.EnrichedArticle `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (s *Store) search(ctx context.Context, body map[string]any) (*esHits, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	res, err := s.es.Search(
		s.es.Search.WithContext(ctx),
		s.es.Search.WithIndex(s.indices()),
		s.es.Search.WithBody(bytes.NewReader(payload)),
		s.es.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return nil, fmt.Errorf("search: query: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("search: query: %s", res.Status())
	}

	var out esHits
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("search: decode: %w", err)
	}
	return &out, nil
}

// Search implements Repository.
func (s *Store) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	req.Clamp()
	out, err := s.search(ctx, map[string]any{
		"query": BuildQuery(req),
		"sort":  sortNewestFirst,
		"from":  (req.Page - 1) * req.Size,
		"size":  req.Size,
	})
	if err != nil {
		return nil, err
	}

	articles := make([]article.EnrichedArticle, 0, len(out.Hits.Hits))
	for _, h := range out.Hits.Hits {
		articles = append(articles, h.Source)
	}
	return &SearchResponse{
		Articles: articles,
		Total:    out.Hits.Total.Value,
		Page:     req.Page,
		Size:     req.Size,
		Took:     out.Took,
	}, nil
}

// GetByID implements Repository. The id is matched across all monthly
// indices.
func (s *Store) GetByID(ctx context.Context, id string) (*article.EnrichedArticle, error) {
	out, err := s.search(ctx, map[string]any{
		"query": map[string]any{"term": map[string]any{"id": id}},
		"size":  1,
	})
	if err != nil {
		return nil, err
	}
	if len(out.Hits.Hits) == 0 {
		return nil, ErrNotFound
	}
	a := out.Hits.Hits[0].Source
	return &a, nil
}

// Latest implements Repository.
func (s *Store) Latest(ctx context.Context, limit int, source, language string) ([]article.EnrichedArticle, error) {
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	out, err := s.search(ctx, map[string]any{
		"query": latestQuery(source, language),
		"sort":  sortNewestFirst,
		"size":  limit,
	})
	if err != nil {
		return nil, err
	}
	articles := make([]article.EnrichedArticle, 0, len(out.Hits.Hits))
	for _, h := range out.Hits.Hits {
		articles = append(articles, h.Source)
	}
	return articles, nil
}

type esAggs struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
	} `json:"hits"`
	Aggregations struct {
		Sources     termBuckets `json:"sources"`
		Languages   termBuckets `json:"languages"`
		Sentiments  termBuckets `json:"sentiments"`
		DailyCounts struct {
			Buckets []struct {
				KeyAsString string `json:"key_as_string"`
				DocCount    int    `json:"doc_count"`
			} `json:"buckets"`
		} `json:"daily_counts"`
	} `json:"aggregations"`
}

type termBuckets struct {
	Buckets []struct {
		Key      string `json:"key"`
		DocCount int    `json:"doc_count"`
	} `json:"buckets"`
}

func (b termBuckets) counts() []NamedCount {
	out := make([]NamedCount, 0, len(b.Buckets))
	for _, bucket := range b.Buckets {
		out = append(out, NamedCount{Name: bucket.Key, Count: bucket.DocCount})
	}
	return out
}

// Stats implements Repository: top sources, languages, and sentiments
// plus day-bucketed counts sorted newest first and truncated to 7.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	payload, err := json.Marshal(map[string]any{
		"size": 0,
		"aggs": map[string]any{
			"sources":    map[string]any{"terms": map[string]any{"field": "source", "size": 20}},
			"languages":  map[string]any{"terms": map[string]any{"field": "language", "size": 10}},
			"sentiments": map[string]any{"terms": map[string]any{"field": "sentiment", "size": 3}},
			"daily_counts": map[string]any{
				"date_histogram": map[string]any{
					"field":             "published_at",
					"calendar_interval": "day",
					"format":            "yyyy-MM-dd",
					"order":             map[string]any{"_key": "desc"},
				},
			},
		},
	})
	if err != nil {
		return nil, err
	}
	res, err := s.es.Search(
		s.es.Search.WithContext(ctx),
		s.es.Search.WithIndex(s.indices()),
		s.es.Search.WithBody(bytes.NewReader(payload)),
		s.es.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return nil, fmt.Errorf("search: stats: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("search: stats: %s", res.Status())
	}

	var out esAggs
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("search: stats decode: %w", err)
	}

	daily := make([]DailyCount, 0, 7)
	for _, b := range out.Aggregations.DailyCounts.Buckets {
		if len(daily) == 7 {
			break
		}
		daily = append(daily, DailyCount{Date: b.KeyAsString, Count: b.DocCount})
	}

	return &Stats{
		TotalArticles: out.Hits.Total.Value,
		Sources:       out.Aggregations.Sources.counts(),
		Languages:     out.Aggregations.Languages.counts(),
		Sentiments:    out.Aggregations.Sentiments.counts(),
		DailyCounts:   daily,
	}, nil
}

// ClusterHealth returns the cluster health summary for /healthz.
func (s *Store) ClusterHealth(ctx context.Context) map[string]any {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	res, err := s.es.Cluster.Health(s.es.Cluster.Health.WithContext(ctx))
	if err != nil {
		return map[string]any{"status": "error", "error": err.Error()}
	}
	defer res.Body.Close()
	if res.IsError() {
		return map[string]any{"status": "error", "error": res.Status()}
	}

	var health struct {
		Status              string `json:"status"`
		NumberOfNodes       int    `json:"number_of_nodes"`
		ActivePrimaryShards int    `json:"active_primary_shards"`
		ActiveShards        int    `json:"active_shards"`
	}
	if err := json.NewDecoder(res.Body).Decode(&health); err != nil {
		return map[string]any{"status": "error", "error": err.Error()}
	}
	return map[string]any{
		"status":                health.Status,
		"number_of_nodes":       health.NumberOfNodes,
		"active_primary_shards": health.ActivePrimaryShards,
		"active_shards":         health.ActiveShards,
	}
}
