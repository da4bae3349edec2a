package enrich

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Gemini adapts the Google GenAI SDK to the Model interface.
type Gemini struct {
	client     *genai.Client
	model      string
	embedModel string
}

// NewGemini creates a Gemini model client authenticated by API key.
func NewGemini(ctx context.Context, apiKey string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	return &Gemini{
		client:     client,
		model:      ModelName,
		embedModel: EmbeddingModelName,
	}, nil
}

// Generate implements Model.
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	temp := float32(0.1)
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature: &temp,
	})
	if err != nil {
		return "", fmt.Errorf("gemini: generate: %w", err)
	}
	return resp.Text(), nil
}

// Embed implements Model.
func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	dims := int32(EmbeddingDims)
	resp, err := g.client.Models.EmbedContent(ctx, g.embedModel, genai.Text(text), &genai.EmbedContentConfig{
		OutputDimensionality: &dims,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: embed: %w", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("gemini: empty embedding response")
	}
	return resp.Embeddings[0].Values, nil
}
