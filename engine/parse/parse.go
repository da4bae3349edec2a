// Package parse strips markup from raw articles, computes the content
// hash, and drops duplicates seen within a rolling window.
package parse

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/headlinehq/newsflow/engine/article"
)

// MinTextLength is the minimum post-clean text length; shorter articles
// are dropped before publish.
const MinTextLength = 100

// Outcome reports what happened to one raw article.
type Outcome int

const (
	OutcomePublished Outcome = iota
	OutcomeTooShort
	OutcomeDuplicate
)

// CleanHTML extracts text from markup-bearing content. Script and style
// subtrees are removed and all whitespace is collapsed to single spaces.
func CleanHTML(content string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return strings.Join(strings.Fields(content), " ")
	}
	doc.Find("script, style").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// Deps holds the external dependencies of the processor.
type Deps struct {
	Deduper *Deduper
	// Publish sends one cleaned article to the cleaned topic, keyed by id.
	Publish func(ctx context.Context, a article.CleanedArticle) error
	Logger  *slog.Logger
}

// Processor turns raw articles into cleaned articles.
type Processor struct {
	deduper *Deduper
	publish func(ctx context.Context, a article.CleanedArticle) error
	log     *slog.Logger
}

// New creates a Processor.
func New(deps Deps) *Processor {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Processor{
		deduper: deps.Deduper,
		publish: deps.Publish,
		log:     log,
	}
}

// Handle processes one raw article. Too-short and duplicate articles
// are dropped with a log; only the outcome distinguishes them for the
// caller's counters. Publish failures surface as errors so the consumer
// leaves the message uncommitted for redelivery.
func (p *Processor) Handle(ctx context.Context, raw article.RawArticle) (Outcome, error) {
	text := CleanHTML(raw.Content)
	if utf8.RuneCountInString(text) < MinTextLength {
		p.log.Info("dropping short article", "article_id", raw.ID, "length", utf8.RuneCountInString(text))
		return OutcomeTooShort, nil
	}

	cleaned := raw.Cleaned(text)
	if p.deduper.Seen(ctx, cleaned.ContentHash) {
		p.log.Info("skipping duplicate article", "article_id", raw.ID, "content_hash", cleaned.ContentHash)
		return OutcomeDuplicate, nil
	}

	if err := p.publish(ctx, cleaned); err != nil {
		return OutcomePublished, err
	}
	return OutcomePublished, nil
}
