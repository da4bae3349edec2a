package parse

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/headlinehq/newsflow/engine/article"
)

func longBody(s string) string {
	return s + " " + strings.Repeat("More context about this developing story follows. ", 5)
}

func rawWith(title, content string) article.RawArticle {
	return article.RawArticle{
		ID:          "art-1",
		URL:         "https://example.com/a",
		Title:       title,
		Content:     content,
		Source:      "example.com",
		PublishedAt: time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC),
		ScrapedAt:   time.Date(2025, 1, 15, 10, 5, 0, 0, time.UTC),
	}
}

func newProcessor(published *[]article.CleanedArticle) *Processor {
	return New(Deps{
		Deduper: NewDeduper(nil, time.Hour, nil),
		Publish: func(_ context.Context, a article.CleanedArticle) error {
			*published = append(*published, a)
			return nil
		},
	})
}

func TestCleanHTMLStripsMarkup(t *testing.T) {
	in := `<html><head><style>p { color: red }</style></head>
		<body><script>alert("x")</script><p>Scientists   announced a
		breakthrough.</p><p>More details followed.</p></body></html>`
	got := CleanHTML(in)
	if strings.Contains(got, "alert") || strings.Contains(got, "color") {
		t.Errorf("script/style content leaked: %q", got)
	}
	if got != "Scientists announced a breakthrough. More details followed." {
		t.Errorf("unexpected clean output: %q", got)
	}
}

func TestCleanHTMLIdempotent(t *testing.T) {
	in := "<p>Plain   text with    spacing.</p>"
	once := CleanHTML(in)
	if CleanHTML(once) != once {
		t.Errorf("cleaning is not idempotent: %q vs %q", once, CleanHTML(once))
	}
}

func TestHandlePublishesCleaned(t *testing.T) {
	var published []article.CleanedArticle
	p := newProcessor(&published)

	out, err := p.Handle(context.Background(), rawWith("  Quantum Leap  ", "<p>"+longBody("Scientists announced a major breakthrough.")+"</p>"))
	if err != nil || out != OutcomePublished {
		t.Fatalf("handle: outcome=%v err=%v", out, err)
	}
	if len(published) != 1 {
		t.Fatalf("expected 1 published, got %d", len(published))
	}

	a := published[0]
	if a.ID != "art-1" {
		t.Errorf("id must be preserved, got %q", a.ID)
	}
	if a.Title != "Quantum Leap" {
		t.Errorf("title should be trimmed, got %q", a.Title)
	}
	if strings.Contains(a.Text, "<p>") {
		t.Errorf("markup leaked into text: %q", a.Text)
	}
	if a.ContentHash != article.ContentHash(a.Title, a.Text) {
		t.Error("content hash mismatch")
	}
	if a.IsDuplicate {
		t.Error("first sighting must not be a duplicate")
	}
}

func TestHandleDropsShortArticles(t *testing.T) {
	var published []article.CleanedArticle
	p := newProcessor(&published)

	out, err := p.Handle(context.Background(), rawWith("Short", "<p>Too little text.</p>"))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if out != OutcomeTooShort || len(published) != 0 {
		t.Errorf("short article must be dropped: outcome=%v published=%d", out, len(published))
	}
}

func TestHandleDropsDuplicates(t *testing.T) {
	var published []article.CleanedArticle
	p := newProcessor(&published)
	ctx := context.Background()

	body := "<p>" + longBody("Stocks climbed for a third session.") + "</p>"
	if out, _ := p.Handle(ctx, rawWith("Markets Rally", body)); out != OutcomePublished {
		t.Fatalf("first copy: %v", out)
	}
	// Same title and text, different id and casing.
	second := rawWith("MARKETS RALLY", body)
	second.ID = "art-2"
	if out, _ := p.Handle(ctx, second); out != OutcomeDuplicate {
		t.Errorf("second copy should be a duplicate, got %v", out)
	}
	if len(published) != 1 {
		t.Errorf("exactly one copy may be published, got %d", len(published))
	}
}

func TestHandleDistinctContentPasses(t *testing.T) {
	var published []article.CleanedArticle
	p := newProcessor(&published)
	ctx := context.Background()

	p.Handle(ctx, rawWith("Title A", "<p>"+longBody("First story body.")+"</p>"))
	other := rawWith("Title B", "<p>"+longBody("Second, unrelated story body.")+"</p>")
	other.ID = "art-2"
	if out, _ := p.Handle(ctx, other); out != OutcomePublished {
		t.Errorf("distinct content must pass, got %v", out)
	}
	if len(published) != 2 {
		t.Errorf("expected 2 published, got %d", len(published))
	}
}

func TestDeduperLocalCacheBounded(t *testing.T) {
	d := NewDeduper(nil, time.Hour, nil)
	d.maxLocal = 2
	ctx := context.Background()

	d.Seen(ctx, "h1")
	d.Seen(ctx, "h2")
	d.Seen(ctx, "h3")
	d.Seen(ctx, "h4") // over the bound, cache cleared before insert
	if d.Seen(ctx, "h1") {
		t.Error("h1 should have been evicted by the overflow clear")
	}
	if !d.Seen(ctx, "h4") {
		t.Error("h4 was inserted after the clear and must still be present")
	}
}
