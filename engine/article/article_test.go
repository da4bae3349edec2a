package article

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func sampleRaw() RawArticle {
	author := "Jane Doe"
	return RawArticle{
		ID:          "a1b2c3",
		URL:         "https://example.com/story",
		Title:       "Quantum Leap",
		Content:     "<p>Scientists announced a breakthrough.</p>",
		Author:      &author,
		Source:      "example.com",
		PublishedAt: time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC),
		ScrapedAt:   time.Date(2025, 1, 15, 10, 5, 0, 0, time.UTC),
		Metadata:    Metadata{"feed_url": "https://example.com/rss"},
	}
}

func TestContentHashStable(t *testing.T) {
	a := ContentHash("Quantum Leap", "Scientists announced a breakthrough.")
	b := ContentHash("  Quantum Leap ", "Scientists announced a breakthrough.  ")
	if a != b {
		t.Errorf("hash should ignore surrounding whitespace: %s != %s", a, b)
	}
	c := ContentHash("QUANTUM LEAP", "SCIENTISTS ANNOUNCED A BREAKTHROUGH.")
	if a != c {
		t.Errorf("hash should ignore case: %s != %s", a, c)
	}
	if len(a) != 64 {
		t.Errorf("expected hex sha256, got %d chars", len(a))
	}
}

func TestContentHashDistinguishesTitleText(t *testing.T) {
	a := ContentHash("ab", "c")
	b := ContentHash("a", "bc")
	if a == b {
		// Both concatenate to "abc" and that is fine per the contract,
		// but a distinct title/text pair must differ.
		t.Log("boundary collision tolerated by contract")
	}
	if ContentHash("x", "y") == ContentHash("y", "x") {
		t.Error("swapped title and text must not collide")
	}
}

func TestCleanedPreservesIdentity(t *testing.T) {
	raw := sampleRaw()
	cleaned := raw.Cleaned("Scientists announced a breakthrough.")
	if cleaned.ID != raw.ID {
		t.Errorf("id changed: %s != %s", cleaned.ID, raw.ID)
	}
	if cleaned.URL != raw.URL {
		t.Errorf("url changed: %s != %s", cleaned.URL, raw.URL)
	}
	if cleaned.ContentHash != ContentHash(raw.Title, cleaned.Text) {
		t.Error("content hash not derived from title and cleaned text")
	}
	if cleaned.IsDuplicate {
		t.Error("fresh cleaned article should not be marked duplicate")
	}
}

func TestStageChainKeepsIDAndHash(t *testing.T) {
	raw := sampleRaw()
	cleaned := raw.Cleaned("Scientists announced a breakthrough.")
	normalized := cleaned.Normalized("en", nil, nil, 4, map[string]any{"detected_language": "en"})
	enriched := normalized.Enriched(Enrichment{
		Summary:        "Scientists announced a breakthrough.",
		Topics:         []string{"science"},
		Entities:       nil,
		Sentiment:      SentimentNeutral,
		SentimentScore: 0.7,
		Meta:           map[string]any{"model": "gemini-1.5-flash"},
	})
	if enriched.ID != raw.ID {
		t.Errorf("id not preserved through chain: %s", enriched.ID)
	}
	if enriched.ContentHash != cleaned.ContentHash {
		t.Errorf("content hash not preserved through chain")
	}
}

func TestMetadataNestsWithoutOverwriting(t *testing.T) {
	raw := sampleRaw()
	cleaned := raw.Cleaned("some text")
	normalized := cleaned.Normalized("en", nil, nil, 2, map[string]any{"translation_enabled": false})
	enriched := normalized.Enriched(Enrichment{Sentiment: SentimentNeutral, Meta: map[string]any{"model": "pass-through"}})

	if _, ok := enriched.Metadata["feed_url"]; !ok {
		t.Error("ingest metadata lost")
	}
	if _, ok := enriched.Metadata["normalization"]; !ok {
		t.Error("normalization block missing")
	}
	if _, ok := enriched.Metadata["enrichment"]; !ok {
		t.Error("enrichment block missing")
	}
	// With must not mutate the earlier stage's map.
	if _, ok := normalized.Metadata["enrichment"]; ok {
		t.Error("With mutated the source metadata")
	}
}

func TestSentimentValid(t *testing.T) {
	for _, s := range []Sentiment{SentimentPositive, SentimentNegative, SentimentNeutral} {
		if !s.Valid() {
			t.Errorf("%s should be valid", s)
		}
	}
	if Sentiment("mixed").Valid() {
		t.Error("mixed is not an allowed sentiment")
	}
}

func TestWireFormat(t *testing.T) {
	raw := sampleRaw()
	data, err := json.Marshal(raw)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(data)
	for _, field := range []string{`"id"`, `"url"`, `"title"`, `"content"`, `"source"`, `"published_at"`, `"scraped_at"`, `"metadata"`} {
		if !strings.Contains(s, field) {
			t.Errorf("wire form missing %s", field)
		}
	}
	if !strings.Contains(s, "2025-01-15T10:00:00Z") {
		t.Errorf("timestamps should be RFC3339 UTC strings: %s", s)
	}

	var back RawArticle
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.ID != raw.ID || !back.PublishedAt.Equal(raw.PublishedAt) {
		t.Error("round trip lost data")
	}
}

func TestOptionalAuthorOmitted(t *testing.T) {
	raw := sampleRaw()
	raw.Author = nil
	data, _ := json.Marshal(raw)
	if strings.Contains(string(data), `"author"`) {
		t.Error("nil author should be omitted, not an empty string")
	}
}
