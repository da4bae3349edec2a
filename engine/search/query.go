package search

import "time"

// searchFields are the full-text fields with their boosts.
var searchFields = []string{"title^3", "summary^2", "text", "topics^2", "entities"}

// BuildQuery translates a SearchRequest into an Elasticsearch bool
// query. Full text goes into must as a best-fields multi_match with
// automatic fuzziness; everything else becomes a filter clause.
func BuildQuery(req SearchRequest) map[string]any {
	var must []any
	var filter []any

	if req.Query != "" {
		must = append(must, map[string]any{
			"multi_match": map[string]any{
				"query":     req.Query,
				"fields":    searchFields,
				"type":      "best_fields",
				"fuzziness": "AUTO",
			},
		})
	}
	if len(req.Topics) > 0 {
		filter = append(filter, map[string]any{"terms": map[string]any{"topics": req.Topics}})
	}
	if len(req.Sources) > 0 {
		filter = append(filter, map[string]any{"terms": map[string]any{"source": req.Sources}})
	}
	if len(req.Languages) > 0 {
		filter = append(filter, map[string]any{"terms": map[string]any{"language": req.Languages}})
	}
	if req.Sentiment != "" {
		filter = append(filter, map[string]any{"term": map[string]any{"sentiment": req.Sentiment}})
	}
	if req.DateFrom != nil || req.DateTo != nil {
		rng := map[string]any{}
		if req.DateFrom != nil {
			rng["gte"] = req.DateFrom.UTC().Format(time.RFC3339)
		}
		if req.DateTo != nil {
			rng["lte"] = req.DateTo.UTC().Format(time.RFC3339)
		}
		filter = append(filter, map[string]any{"range": map[string]any{"published_at": rng}})
	}

	if len(must) == 0 {
		must = append(must, map[string]any{"match_all": map[string]any{}})
	}

	return map[string]any{
		"bool": map[string]any{
			"must":   must,
			"filter": filter,
		},
	}
}

// latestQuery builds the latest-N query with optional exact filters.
func latestQuery(source, language string) map[string]any {
	var filter []any
	if source != "" {
		filter = append(filter, map[string]any{"term": map[string]any{"source": source}})
	}
	if language != "" {
		filter = append(filter, map[string]any{"term": map[string]any{"language": language}})
	}
	if len(filter) == 0 {
		return map[string]any{"match_all": map[string]any{}}
	}
	return map[string]any{
		"bool": map[string]any{
			"must":   []any{map[string]any{"match_all": map[string]any{}}},
			"filter": filter,
		},
	}
}

// sortNewestFirst is the only sort the pipeline relies on.
var sortNewestFirst = []any{
	map[string]any{"published_at": map[string]any{"order": "desc"}},
}
