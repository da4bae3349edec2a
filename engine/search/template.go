package search

import "github.com/headlinehq/newsflow/engine/enrich"

// indexTemplate builds the index template applied to {pattern}-*.
// Analyzed text fields share one custom analyzer; identity and filter
// fields are keywords; embeddings are an indexed cosine dense vector;
// metadata is stored but never indexed.
func indexTemplate(pattern string) map[string]any {
	analyzed := map[string]any{"type": "text", "analyzer": "news_analyzer"}

	return map[string]any{
		"index_patterns": []string{pattern + "-*"},
		"template": map[string]any{
			"settings": map[string]any{
				"number_of_shards":   1,
				"number_of_replicas": 1,
				"analysis": map[string]any{
					"analyzer": map[string]any{
						"news_analyzer": map[string]any{
							"type":      "custom",
							"tokenizer": "standard",
							"filter":    []string{"lowercase", "stop", "snowball"},
						},
					},
				},
			},
			"mappings": map[string]any{
				"properties": map[string]any{
					"id":  map[string]any{"type": "keyword"},
					"url": map[string]any{"type": "keyword"},
					"title": map[string]any{
						"type":     "text",
						"analyzer": "news_analyzer",
						"fields": map[string]any{
							"keyword": map[string]any{"type": "keyword", "ignore_above": 256},
						},
					},
					"text":             analyzed,
					"summary":          analyzed,
					"translated_title": analyzed,
					"translated_text":  analyzed,
					"author":           map[string]any{"type": "keyword"},
					"source":           map[string]any{"type": "keyword"},
					"language":         map[string]any{"type": "keyword"},
					"published_at":     map[string]any{"type": "date"},
					"scraped_at":       map[string]any{"type": "date"},
					"content_hash":     map[string]any{"type": "keyword"},
					"word_count":       map[string]any{"type": "integer"},
					"topics":           map[string]any{"type": "keyword"},
					"entities":         map[string]any{"type": "keyword"},
					"sentiment":        map[string]any{"type": "keyword"},
					"sentiment_score":  map[string]any{"type": "float"},
					"embeddings": map[string]any{
						"type":       "dense_vector",
						"dims":       enrich.EmbeddingDims,
						"index":      true,
						"similarity": "cosine",
					},
					"metadata": map[string]any{"type": "object", "enabled": false},
				},
			},
		},
	}
}
