package search

import (
	"context"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/headlinehq/newsflow/engine/article"
)

// Mock serves the read path from a fixed in-memory corpus. It is the
// construction-time fallback when the search store is unreachable, so
// local development and demos work without infrastructure.
type Mock struct {
	corpus []article.EnrichedArticle
}

// NewMock creates a Mock over the built-in corpus.
func NewMock() *Mock {
	return &Mock{corpus: MockCorpus()}
}

// Mode implements Repository.
func (m *Mock) Mode() string { return "mock" }

func strptr(s string) *string { return &s }

// MockCorpus returns the fixed demo articles.
func MockCorpus() []article.EnrichedArticle {
	return []article.EnrichedArticle{
		{
			ID:             "1",
			URL:            "https://example.com/ai-healthcare",
			Title:          "AI Revolution in Healthcare",
			Text:           "Artificial intelligence is transforming healthcare with new diagnostic tools and treatment methods. Machine learning algorithms are now capable of detecting diseases earlier than traditional methods.",
			Summary:        "AI is revolutionizing healthcare through advanced diagnostic tools and early disease detection capabilities.",
			Author:         strptr("Dr. Sarah Johnson"),
			Source:         "TechNews",
			PublishedAt:    time.Date(2025, 9, 14, 1, 0, 0, 0, time.UTC),
			ScrapedAt:      time.Date(2025, 9, 14, 1, 0, 0, 0, time.UTC),
			Language:       "en",
			WordCount:      150,
			Topics:         []string{"artificial intelligence", "healthcare", "technology"},
			Entities:       []string{"AI", "machine learning", "healthcare"},
			Sentiment:      article.SentimentPositive,
			SentimentScore: 0.8,
			Embeddings:     []float32{},
		},
		{
			ID:             "2",
			URL:            "https://example.com/climate-economy",
			Title:          "Climate Change Impact on Global Economy",
			Text:           "Recent studies show that climate change is having significant impacts on the global economy, affecting agriculture, tourism, and energy sectors worldwide.",
			Summary:        "Climate change is significantly impacting global economy across multiple sectors including agriculture and tourism.",
			Author:         strptr("Maria Rodriguez"),
			Source:         "Global News",
			PublishedAt:    time.Date(2025, 9, 14, 2, 0, 0, 0, time.UTC),
			ScrapedAt:      time.Date(2025, 9, 14, 2, 0, 0, 0, time.UTC),
			Language:       "en",
			WordCount:      200,
			Topics:         []string{"climate change", "economy", "environment"},
			Entities:       []string{"climate", "economy", "agriculture", "tourism"},
			Sentiment:      article.SentimentNegative,
			SentimentScore: -0.6,
			Embeddings:     []float32{},
		},
		{
			ID:             "3",
			URL:            "https://example.com/space-discovery",
			Title:          "Space Exploration Breakthrough",
			Text:           "Scientists have made a groundbreaking discovery about exoplanets that could change our understanding of life in the universe. The new findings suggest habitable conditions may be more common than previously thought.",
			Summary:        "New exoplanet research suggests habitable conditions may be more widespread in the universe.",
			Author:         strptr("Prof. Michael Chen"),
			Source:         "Science Daily",
			PublishedAt:    time.Date(2025, 9, 14, 3, 0, 0, 0, time.UTC),
			ScrapedAt:      time.Date(2025, 9, 14, 3, 0, 0, 0, time.UTC),
			Language:       "en",
			WordCount:      180,
			Topics:         []string{"space", "science", "discovery"},
			Entities:       []string{"exoplanets", "space", "universe", "science"},
			Sentiment:      article.SentimentPositive,
			SentimentScore: 0.9,
			Embeddings:     []float32{},
		},
	}
}

func matchesQuery(a article.EnrichedArticle, query string) bool {
	q := strings.ToLower(query)
	return strings.Contains(strings.ToLower(a.Title), q) ||
		strings.Contains(strings.ToLower(a.Text), q) ||
		strings.Contains(strings.ToLower(a.Summary), q)
}

func matchesTopics(a article.EnrichedArticle, topics []string) bool {
	for _, want := range topics {
		for _, have := range a.Topics {
			if strings.EqualFold(want, have) {
				return true
			}
		}
	}
	return false
}

// Search implements Repository with simple substring and membership
// filtering over the corpus.
func (m *Mock) Search(_ context.Context, req SearchRequest) (*SearchResponse, error) {
	req.Clamp()

	var matched []article.EnrichedArticle
	for _, a := range m.corpus {
		if req.Query != "" && !matchesQuery(a, req.Query) {
			continue
		}
		if len(req.Topics) > 0 && !matchesTopics(a, req.Topics) {
			continue
		}
		if len(req.Sources) > 0 && !slices.Contains(req.Sources, a.Source) {
			continue
		}
		if len(req.Languages) > 0 && !slices.Contains(req.Languages, a.Language) {
			continue
		}
		if req.Sentiment != "" && string(a.Sentiment) != req.Sentiment {
			continue
		}
		matched = append(matched, a)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].PublishedAt.After(matched[j].PublishedAt)
	})

	from := (req.Page - 1) * req.Size
	page := []article.EnrichedArticle{}
	if from < len(matched) {
		end := from + req.Size
		if end > len(matched) {
			end = len(matched)
		}
		page = matched[from:end]
	}

	return &SearchResponse{
		Articles: page,
		Total:    len(matched),
		Page:     req.Page,
		Size:     req.Size,
		Took:     1,
	}, nil
}

// GetByID implements Repository.
func (m *Mock) GetByID(_ context.Context, id string) (*article.EnrichedArticle, error) {
	for _, a := range m.corpus {
		if a.ID == id {
			return &a, nil
		}
	}
	return nil, ErrNotFound
}

// Latest implements Repository.
func (m *Mock) Latest(_ context.Context, limit int, source, language string) ([]article.EnrichedArticle, error) {
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	var matched []article.EnrichedArticle
	for _, a := range m.corpus {
		if source != "" && a.Source != source {
			continue
		}
		if language != "" && a.Language != language {
			continue
		}
		matched = append(matched, a)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].PublishedAt.After(matched[j].PublishedAt)
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// Stats implements Repository by aggregating the corpus.
func (m *Mock) Stats(_ context.Context) (*Stats, error) {
	sources := map[string]int{}
	languages := map[string]int{}
	sentiments := map[string]int{}
	daily := map[string]int{}
	for _, a := range m.corpus {
		sources[a.Source]++
		languages[a.Language]++
		sentiments[string(a.Sentiment)]++
		daily[a.PublishedAt.UTC().Format("2006-01-02")]++
	}

	toCounts := func(in map[string]int, max int) []NamedCount {
		out := make([]NamedCount, 0, len(in))
		for name, count := range in {
			out = append(out, NamedCount{Name: name, Count: count})
		}
		sort.Slice(out, func(i, j int) bool {
			if out[i].Count != out[j].Count {
				return out[i].Count > out[j].Count
			}
			return out[i].Name < out[j].Name
		})
		if len(out) > max {
			out = out[:max]
		}
		return out
	}

	days := make([]DailyCount, 0, len(daily))
	for date, count := range daily {
		days = append(days, DailyCount{Date: date, Count: count})
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date > days[j].Date })
	if len(days) > 7 {
		days = days[:7]
	}

	return &Stats{
		TotalArticles: len(m.corpus),
		Sources:       toCounts(sources, 20),
		Languages:     toCounts(languages, 10),
		Sentiments:    toCounts(sentiments, 3),
		DailyCounts:   days,
	}, nil
}
