// Package enrich produces summary, topics, entities, sentiment, and
// embeddings for normalized articles. The five model calls per article
// run concurrently, each with its own fallback, so one failing call
// never drops an article. Without an API key the enricher degrades to
// a deterministic pass-through so the index stays populated.
package enrich

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/headlinehq/newsflow/engine/article"
	"github.com/headlinehq/newsflow/pkg/fn"
	"github.com/headlinehq/newsflow/pkg/resilience"
)

const (
	// EmbeddingDims is the embedding vector dimension.
	EmbeddingDims = 768
	// ModelName identifies the generation model.
	ModelName = "gemini-1.5-flash"
	// EmbeddingModelName identifies the embedding model.
	EmbeddingModelName = "models/embedding-001"

	// Per-task input caps, in characters.
	summaryCap   = 2000
	topicsCap    = 2000
	entitiesCap  = 2000
	sentimentCap = 1500
	embedCap     = 1000

	maxTopics   = 5
	maxEntities = 10

	passThroughSummaryCap = 200
)

// Model is the external LLM.
type Model interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Deps holds the external dependencies of the enricher.
type Deps struct {
	Model   Model               // nil enables pass-through mode
	Breaker *resilience.Breaker // optional, defaults applied
	// Publish sends one enriched article to the enriched topic.
	Publish func(ctx context.Context, a article.EnrichedArticle) error
	Logger  *slog.Logger
}

// Enricher turns normalized articles into enriched articles.
type Enricher struct {
	model   Model
	breaker *resilience.Breaker
	publish func(ctx context.Context, a article.EnrichedArticle) error
	log     *slog.Logger
	now     func() time.Time // for testing
}

// New creates an Enricher.
func New(deps Deps) *Enricher {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	breaker := deps.Breaker
	if breaker == nil {
		breaker = resilience.NewBreaker(resilience.DefaultBreakerOpts)
	}
	return &Enricher{
		model:   deps.Model,
		breaker: breaker,
		publish: deps.Publish,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// PassThrough reports whether the enricher runs without a model.
func (e *Enricher) PassThrough() bool { return e.model == nil }

// Handle enriches one normalized article and publishes it.
func (e *Enricher) Handle(ctx context.Context, n article.NormalizedArticle) error {
	var out article.EnrichedArticle
	if e.model == nil {
		out = e.passThrough(n)
	} else {
		out = e.enrich(ctx, n)
	}
	if err := e.publish(ctx, out); err != nil {
		return err
	}
	e.log.Info("enriched article",
		"article_id", out.ID,
		"topics", len(out.Topics),
		"entities", len(out.Entities),
		"sentiment", out.Sentiment,
	)
	return nil
}

// enrich runs the five model tasks concurrently. The translated title
// and text are preferred when present.
func (e *Enricher) enrich(ctx context.Context, n article.NormalizedArticle) article.EnrichedArticle {
	title := n.Title
	if n.TranslatedTitle != nil {
		title = *n.TranslatedTitle
	}
	text := n.Text
	if n.TranslatedText != nil {
		text = *n.TranslatedText
	}

	var (
		summary    string
		topics     []string
		entities   []string
		sentiment  article.Sentiment
		score      float64
		embeddings []float32
	)
	fn.FanOut(
		func() error { summary = e.summarize(ctx, title, text); return nil },
		func() error { topics = e.topics(ctx, title, text); return nil },
		func() error { entities = e.entities(ctx, title, text); return nil },
		func() error { sentiment, score = e.sentiment(ctx, title, text); return nil },
		func() error { embeddings = e.embeddings(ctx, text); return nil },
	)

	return n.Enriched(article.Enrichment{
		Summary:        summary,
		Topics:         topics,
		Entities:       entities,
		Sentiment:      sentiment,
		SentimentScore: score,
		Embeddings:     embeddings,
		Meta: map[string]any{
			"enriched_at":     e.now().Format(time.RFC3339),
			"model":           ModelName,
			"embedding_model": EmbeddingModelName,
		},
	})
}

// passThrough synthesizes a deterministic enriched article.
func (e *Enricher) passThrough(n article.NormalizedArticle) article.EnrichedArticle {
	summary := n.Text
	if utf8.RuneCountInString(summary) > passThroughSummaryCap {
		summary = string([]rune(summary)[:passThroughSummaryCap]) + "..."
	}
	return n.Enriched(article.Enrichment{
		Summary:        summary,
		Topics:         []string{"general", "news"},
		Entities:       []string{},
		Sentiment:      article.SentimentNeutral,
		SentimentScore: 0.0,
		Embeddings:     []float32{},
		Meta: map[string]any{
			"enriched_at":     e.now().Format(time.RFC3339),
			"model":           "pass-through",
			"embedding_model": "none",
		},
	})
}

func (e *Enricher) summarize(ctx context.Context, title, text string) string {
	out, err := e.generate(ctx, summaryPrompt(title, Truncate(text, summaryCap)))
	if err != nil {
		e.log.Warn("summary generation failed", "error", err)
		return FallbackSummary(title, text)
	}
	return strings.TrimSpace(out)
}

func (e *Enricher) topics(ctx context.Context, title, text string) []string {
	out, err := e.generate(ctx, topicsPrompt(title, Truncate(text, topicsCap)))
	if err != nil {
		e.log.Warn("topic extraction failed", "error", err)
		return []string{}
	}
	return ParseList(out, maxTopics)
}

func (e *Enricher) entities(ctx context.Context, title, text string) []string {
	out, err := e.generate(ctx, entitiesPrompt(title, Truncate(text, entitiesCap)))
	if err != nil {
		e.log.Warn("entity extraction failed", "error", err)
		return []string{}
	}
	return ParseList(out, maxEntities)
}

func (e *Enricher) sentiment(ctx context.Context, title, text string) (article.Sentiment, float64) {
	out, err := e.generate(ctx, sentimentPrompt(title, Truncate(text, sentimentCap)))
	if err != nil {
		e.log.Warn("sentiment analysis failed", "error", err)
		return article.SentimentNeutral, 0.5
	}
	return ParseSentiment(out)
}

func (e *Enricher) embeddings(ctx context.Context, text string) []float32 {
	res := resilience.CallResult(e.breaker, ctx, func(ctx context.Context) fn.Result[[]float32] {
		return fn.FromPair(e.model.Embed(ctx, Truncate(text, embedCap)))
	})
	vec, err := res.Unwrap()
	if err != nil {
		e.log.Warn("embedding generation failed", "error", err)
		return make([]float32, EmbeddingDims)
	}
	return vec
}

// generate runs one model call through the circuit breaker.
func (e *Enricher) generate(ctx context.Context, prompt string) (string, error) {
	res := resilience.CallResult(e.breaker, ctx, func(ctx context.Context) fn.Result[string] {
		return fn.FromPair(e.model.Generate(ctx, prompt))
	})
	return res.Unwrap()
}

// Truncate caps text at maxChars, preferring to end at the last
// sentence boundary inside the cap, otherwise hard-cutting with an
// ellipsis.
func Truncate(text string, maxChars int) string {
	if utf8.RuneCountInString(text) <= maxChars {
		return text
	}
	head := string([]rune(text)[:maxChars])
	if i := strings.LastIndex(head, "."); i > 0 {
		return head[:i+1]
	}
	return head + "..."
}

// FallbackSummary is the degraded summary: the first two sentences of
// the text, or the title when there is no text.
func FallbackSummary(title, text string) string {
	if strings.TrimSpace(text) == "" {
		return title
	}
	parts := strings.Split(text, ".")
	if len(parts) > 2 {
		parts = parts[:2]
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return strings.Join(parts, ". ") + "."
}

// ParseList splits a comma-separated model response, trims items, drops
// those shorter than two characters, and caps the result at max.
func ParseList(s string, max int) []string {
	items := []string{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if utf8.RuneCountInString(part) > 1 {
			items = append(items, part)
		}
		if len(items) == max {
			break
		}
	}
	return items
}

// ParseSentiment keyword-matches a model response onto the closed
// sentiment set with a fixed confidence per label.
func ParseSentiment(s string) (article.Sentiment, float64) {
	t := strings.ToLower(strings.TrimSpace(s))
	switch {
	case strings.Contains(t, "positive"):
		return article.SentimentPositive, 0.8
	case strings.Contains(t, "negative"):
		return article.SentimentNegative, 0.8
	default:
		return article.SentimentNeutral, 0.7
	}
}
