package planner

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// GeminiBackend calls the Gemini API in JSON response mode.
type GeminiBackend struct {
	client      *genai.Client
	temperature float32
}

// NewGeminiBackend returns ErrMissingCredential when apiKey is empty.
func NewGeminiBackend(ctx context.Context, apiKey string) (*GeminiBackend, error) {
	if apiKey == "" {
		return nil, ErrMissingCredential
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("planner: create genai client: %w", err)
	}
	return &GeminiBackend{client: client, temperature: 0.5}, nil
}

func (b *GeminiBackend) Generate(ctx context.Context, model string, p Prompt) (string, error) {
	resp, err := b.client.Models.GenerateContent(ctx, model, genai.Text(p.User), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(p.System, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		Temperature:       genai.Ptr(b.temperature),
	})
	if err != nil {
		return "", fmt.Errorf("planner: gemini generate: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", errors.New("planner: gemini returned no text")
	}
	return text, nil
}
