// Package article defines the records shared by every pipeline stage.
// An article is created once at ingestion and copied forward through
// cleaning, normalization, and enrichment; the id, url, and content
// hash identity triple never changes after it is assigned.
package article

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Status is the pipeline stage an article has reached.
type Status string

const (
	StatusRaw        Status = "raw"
	StatusCleaned    Status = "cleaned"
	StatusNormalized Status = "normalized"
	StatusEnriched   Status = "enriched"
	StatusIndexed    Status = "indexed"
)

// Sentiment is the closed set of sentiment labels. The wire form is
// the lowercase string.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// Valid reports whether s is one of the three allowed labels.
func (s Sentiment) Valid() bool {
	switch s {
	case SentimentPositive, SentimentNegative, SentimentNeutral:
		return true
	}
	return false
}

// Metadata is free-form key/value data accumulated across stages.
// Stage additions nest under a reserved subkey and never overwrite
// earlier keys.
type Metadata map[string]any

// With returns a copy of m with block nested under key.
func (m Metadata) With(key string, block map[string]any) Metadata {
	out := make(Metadata, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	out[key] = block
	return out
}

// RawArticle is the record produced by the ingestor. Content is the
// markup-bearing body exactly as the feed delivered it.
type RawArticle struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Author      *string   `json:"author,omitempty"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
	ScrapedAt   time.Time `json:"scraped_at"`
	Metadata    Metadata  `json:"metadata"`
}

// CleanedArticle is the record produced by the parser/deduper. Text is
// the stripped, whitespace-normalized body.
type CleanedArticle struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Text        string    `json:"text"`
	Author      *string   `json:"author,omitempty"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
	ScrapedAt   time.Time `json:"scraped_at"`
	ContentHash string    `json:"content_hash"`
	IsDuplicate bool      `json:"is_duplicate"`
	Metadata    Metadata  `json:"metadata"`
}

// NormalizedArticle is the record produced by the normalizer.
// Translated fields are set only when translation is enabled and the
// detected language differs from the target.
type NormalizedArticle struct {
	ID              string    `json:"id"`
	URL             string    `json:"url"`
	Title           string    `json:"title"`
	Text            string    `json:"text"`
	Author          *string   `json:"author,omitempty"`
	Source          string    `json:"source"`
	PublishedAt     time.Time `json:"published_at"`
	ScrapedAt       time.Time `json:"scraped_at"`
	ContentHash     string    `json:"content_hash"`
	Language        string    `json:"language"`
	TranslatedTitle *string   `json:"translated_title,omitempty"`
	TranslatedText  *string   `json:"translated_text,omitempty"`
	WordCount       int       `json:"word_count"`
	Metadata        Metadata  `json:"metadata"`
}

// EnrichedArticle is the terminal record written to the search index.
type EnrichedArticle struct {
	ID              string    `json:"id"`
	URL             string    `json:"url"`
	Title           string    `json:"title"`
	Text            string    `json:"text"`
	Author          *string   `json:"author,omitempty"`
	Source          string    `json:"source"`
	PublishedAt     time.Time `json:"published_at"`
	ScrapedAt       time.Time `json:"scraped_at"`
	ContentHash     string    `json:"content_hash"`
	Language        string    `json:"language"`
	TranslatedTitle *string   `json:"translated_title,omitempty"`
	TranslatedText  *string   `json:"translated_text,omitempty"`
	WordCount       int       `json:"word_count"`

	Summary        string    `json:"summary"`
	Topics         []string  `json:"topics"`
	Entities       []string  `json:"entities"`
	Sentiment      Sentiment `json:"sentiment"`
	SentimentScore float64   `json:"sentiment_score"`
	Embeddings     []float32 `json:"embeddings"`

	Metadata Metadata `json:"metadata"`
}

// ContentHash computes the canonical dedup key: SHA-256 of
// lower(trim(title)) followed by lower(trim(text)), hex encoded.
// It is stable across re-ingestion of the same content.
func ContentHash(title, text string) string {
	h := sha256.New()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(title))))
	h.Write([]byte(strings.ToLower(strings.TrimSpace(text))))
	return hex.EncodeToString(h.Sum(nil))
}

// Cleaned copies a raw article forward into the cleaned stage.
func (r RawArticle) Cleaned(text string) CleanedArticle {
	return CleanedArticle{
		ID:          r.ID,
		URL:         r.URL,
		Title:       strings.TrimSpace(r.Title),
		Text:        text,
		Author:      r.Author,
		Source:      r.Source,
		PublishedAt: r.PublishedAt,
		ScrapedAt:   r.ScrapedAt,
		ContentHash: ContentHash(r.Title, text),
		Metadata:    r.Metadata,
	}
}

// Normalized copies a cleaned article forward into the normalized stage.
// The normalization metadata block nests under the "normalization" key.
func (c CleanedArticle) Normalized(language string, translatedTitle, translatedText *string, wordCount int, norm map[string]any) NormalizedArticle {
	return NormalizedArticle{
		ID:              c.ID,
		URL:             c.URL,
		Title:           c.Title,
		Text:            c.Text,
		Author:          c.Author,
		Source:          c.Source,
		PublishedAt:     c.PublishedAt,
		ScrapedAt:       c.ScrapedAt,
		ContentHash:     c.ContentHash,
		Language:        language,
		TranslatedTitle: translatedTitle,
		TranslatedText:  translatedText,
		WordCount:       wordCount,
		Metadata:        c.Metadata.With("normalization", norm),
	}
}

// Enrichment carries the model outputs attached at the enrichment stage.
type Enrichment struct {
	Summary        string
	Topics         []string
	Entities       []string
	Sentiment      Sentiment
	SentimentScore float64
	Embeddings     []float32
	Meta           map[string]any
}

// Enriched copies a normalized article forward into the enriched stage.
// The enrichment metadata block nests under the "enrichment" key.
func (n NormalizedArticle) Enriched(e Enrichment) EnrichedArticle {
	return EnrichedArticle{
		ID:              n.ID,
		URL:             n.URL,
		Title:           n.Title,
		Text:            n.Text,
		Author:          n.Author,
		Source:          n.Source,
		PublishedAt:     n.PublishedAt,
		ScrapedAt:       n.ScrapedAt,
		ContentHash:     n.ContentHash,
		Language:        n.Language,
		TranslatedTitle: n.TranslatedTitle,
		TranslatedText:  n.TranslatedText,
		WordCount:       n.WordCount,
		Summary:         e.Summary,
		Topics:          e.Topics,
		Entities:        e.Entities,
		Sentiment:       e.Sentiment,
		SentimentScore:  e.SentimentScore,
		Embeddings:      e.Embeddings,
		Metadata:        n.Metadata.With("enrichment", e.Meta),
	}
}
