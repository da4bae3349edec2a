package enrich

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/headlinehq/newsflow/engine/article"
)

// fakeModel answers each prompt kind with a canned response.
type fakeModel struct {
	summary   string
	topics    string
	entities  string
	sentiment string
	vector    []float32
	err       error
	gotEmbed  string
}

func (m *fakeModel) Generate(_ context.Context, prompt string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	switch {
	case strings.Contains(prompt, "Summary:"):
		return m.summary, nil
	case strings.Contains(prompt, "Topics:"):
		return m.topics, nil
	case strings.Contains(prompt, "Entities:"):
		return m.entities, nil
	case strings.Contains(prompt, "Sentiment:"):
		return m.sentiment, nil
	}
	return "", errors.New("unknown prompt")
}

func (m *fakeModel) Embed(_ context.Context, text string) ([]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.gotEmbed = text
	return m.vector, nil
}

func normalizedWith(text string) article.NormalizedArticle {
	return article.NormalizedArticle{
		ID:          "art-1",
		URL:         "https://example.com/a",
		Title:       "Quantum Leap",
		Text:        text,
		Source:      "example.com",
		PublishedAt: time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC),
		ScrapedAt:   time.Date(2025, 1, 15, 10, 5, 0, 0, time.UTC),
		ContentHash: article.ContentHash("Quantum Leap", text),
		Language:    "en",
		WordCount:   8,
	}
}

func newEnricher(m Model, published *[]article.EnrichedArticle) *Enricher {
	e := New(Deps{
		Model: m,
		Publish: func(_ context.Context, a article.EnrichedArticle) error {
			*published = append(*published, a)
			return nil
		},
	})
	e.now = func() time.Time { return time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC) }
	return e
}

func TestHandleEnriches(t *testing.T) {
	m := &fakeModel{
		summary:   " Scientists achieved a quantum computing milestone. ",
		topics:    "quantum computing, science, technology, research, breakthroughs, extra one",
		entities:  "MIT, Boston, a, IBM",
		sentiment: "Positive",
		vector:    make([]float32, EmbeddingDims),
	}
	var got []article.EnrichedArticle
	e := newEnricher(m, &got)

	if err := e.Handle(context.Background(), normalizedWith("Scientists announced a breakthrough. Details followed later.")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	a := got[0]

	if a.Summary != "Scientists achieved a quantum computing milestone." {
		t.Errorf("summary: %q", a.Summary)
	}
	if len(a.Topics) != maxTopics {
		t.Errorf("topics must cap at %d: %v", maxTopics, a.Topics)
	}
	if len(a.Entities) != 3 {
		t.Errorf("one-char entity must be dropped: %v", a.Entities)
	}
	if a.Sentiment != article.SentimentPositive || a.SentimentScore != 0.8 {
		t.Errorf("sentiment: %s %v", a.Sentiment, a.SentimentScore)
	}
	if len(a.Embeddings) != EmbeddingDims {
		t.Errorf("embeddings length: %d", len(a.Embeddings))
	}
	if a.ID != "art-1" || a.ContentHash == "" {
		t.Error("identity fields must carry forward")
	}

	meta, ok := a.Metadata["enrichment"].(map[string]any)
	if !ok {
		t.Fatalf("enrichment metadata missing: %v", a.Metadata)
	}
	if meta["model"] != ModelName || meta["embedding_model"] != EmbeddingModelName {
		t.Errorf("model identifiers: %v", meta)
	}
	if meta["enriched_at"] != "2025-01-15T12:00:00Z" {
		t.Errorf("enriched_at: %v", meta["enriched_at"])
	}
}

func TestHandlePrefersTranslatedText(t *testing.T) {
	m := &fakeModel{summary: "s", topics: "tt", entities: "ee", sentiment: "neutral", vector: make([]float32, EmbeddingDims)}
	var got []article.EnrichedArticle
	e := newEnricher(m, &got)

	n := normalizedWith("Texte original en français. Deux phrases complètes ici.")
	translated := "Original text in French. Two full sentences here."
	n.Language = "fr"
	n.TranslatedText = &translated

	if err := e.Handle(context.Background(), n); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !strings.Contains(m.gotEmbed, "Original text in French") {
		t.Errorf("model should see the translated text, got %q", m.gotEmbed)
	}
}

func TestHandleFallbacksOnModelFailure(t *testing.T) {
	m := &fakeModel{err: errors.New("model down")}
	var got []article.EnrichedArticle
	e := newEnricher(m, &got)

	text := "First sentence of the story. Second sentence with detail. Third sentence ignored."
	if err := e.Handle(context.Background(), normalizedWith(text)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	a := got[0]

	if a.Summary != "First sentence of the story. Second sentence with detail." {
		t.Errorf("fallback summary: %q", a.Summary)
	}
	if len(a.Topics) != 0 || len(a.Entities) != 0 {
		t.Errorf("fallback lists must be empty: %v %v", a.Topics, a.Entities)
	}
	if a.Sentiment != article.SentimentNeutral || a.SentimentScore != 0.5 {
		t.Errorf("fallback sentiment: %s %v", a.Sentiment, a.SentimentScore)
	}
	if len(a.Embeddings) != EmbeddingDims {
		t.Fatalf("fallback embeddings length: %d", len(a.Embeddings))
	}
	for _, v := range a.Embeddings {
		if v != 0 {
			t.Fatal("fallback embeddings must be the zero vector")
		}
	}
}

func TestPassThroughMode(t *testing.T) {
	var got []article.EnrichedArticle
	e := newEnricher(nil, &got)
	if !e.PassThrough() {
		t.Fatal("nil model must enable pass-through")
	}

	text := strings.Repeat("a", 500)
	if err := e.Handle(context.Background(), normalizedWith(text)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	a := got[0]

	if a.Summary != strings.Repeat("a", 200)+"..." {
		t.Errorf("pass-through summary: %d chars, suffix %q", len(a.Summary), a.Summary[len(a.Summary)-5:])
	}
	if len(a.Topics) != 2 || a.Topics[0] != "general" || a.Topics[1] != "news" {
		t.Errorf("pass-through topics: %v", a.Topics)
	}
	if len(a.Entities) != 0 || len(a.Embeddings) != 0 {
		t.Errorf("pass-through entities/embeddings must be empty: %v %v", a.Entities, a.Embeddings)
	}
	if a.Sentiment != article.SentimentNeutral || a.SentimentScore != 0.0 {
		t.Errorf("pass-through sentiment: %s %v", a.Sentiment, a.SentimentScore)
	}

	meta := a.Metadata["enrichment"].(map[string]any)
	if meta["model"] != "pass-through" || meta["embedding_model"] != "none" {
		t.Errorf("pass-through metadata: %v", meta)
	}
}

func TestPassThroughIsDeterministic(t *testing.T) {
	var a, b []article.EnrichedArticle
	e1 := newEnricher(nil, &a)
	e2 := newEnricher(nil, &b)

	in := normalizedWith("Short deterministic body for the pass-through check.")
	e1.Handle(context.Background(), in)
	e2.Handle(context.Background(), in)

	if a[0].Summary != b[0].Summary || a[0].SentimentScore != b[0].SentimentScore {
		t.Error("pass-through output must be a pure function of the input")
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short text", 100); got != "short text" {
		t.Errorf("under-cap text must pass unchanged: %q", got)
	}

	long := "First sentence here. Second sentence here. " + strings.Repeat("x", 100)
	got := Truncate(long, 50)
	if got != "First sentence here. Second sentence here." {
		t.Errorf("should cut at last sentence boundary: %q", got)
	}

	noDot := strings.Repeat("y", 80)
	got = Truncate(noDot, 50)
	if got != strings.Repeat("y", 50)+"..." {
		t.Errorf("no boundary should hard-cut with ellipsis: %q", got)
	}
}

func TestParseList(t *testing.T) {
	got := ParseList(" politics , economy, a, , trade policy ", 5)
	want := []string{"politics", "economy", "trade policy"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("item %d: %q", i, got[i])
		}
	}

	capped := ParseList("a1, b2, c3, d4", 2)
	if len(capped) != 2 {
		t.Errorf("cap not applied: %v", capped)
	}
}

func TestParseSentiment(t *testing.T) {
	cases := []struct {
		in    string
		want  article.Sentiment
		score float64
	}{
		{"Positive", article.SentimentPositive, 0.8},
		{"the tone is negative overall", article.SentimentNegative, 0.8},
		{"mixed", article.SentimentNeutral, 0.7},
	}
	for _, c := range cases {
		s, score := ParseSentiment(c.in)
		if s != c.want || score != c.score {
			t.Errorf("ParseSentiment(%q) = %s/%v", c.in, s, score)
		}
	}
}

func TestFallbackSummaryEmptyText(t *testing.T) {
	if got := FallbackSummary("The Title", "  "); got != "The Title" {
		t.Errorf("empty text should fall back to the title: %q", got)
	}
}
