package enrich

import "fmt"

func summaryPrompt(title, text string) string {
	return fmt.Sprintf(`Summarize the following news article in 1-2 clear, concise sentences.
Focus on the key facts and main points.

Title: %s
Text: %s

Summary:`, title, text)
}

func topicsPrompt(title, text string) string {
	return fmt.Sprintf(`Extract 3-5 main topics from the following news article.
Return topics as a comma-separated list. Use single words or short phrases.
Focus on: people, places, organizations, events, themes.

Title: %s
Text: %s

Topics:`, title, text)
}

func entitiesPrompt(title, text string) string {
	return fmt.Sprintf(`Extract named entities from the following news article.
Return entities as a comma-separated list.
Focus on: person names, company names, location names, organization names.

Title: %s
Text: %s

Entities:`, title, text)
}

func sentimentPrompt(title, text string) string {
	return fmt.Sprintf(`Analyze the sentiment of the following news article.
Respond with ONLY one word: positive, negative, or neutral.
Consider the overall tone and emotional impact of the article.

Title: %s
Text: %s

Sentiment:`, title, text)
}
