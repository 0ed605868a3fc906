package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

var _ Generator = (*GeminiGenerator)(nil)

// GeminiGenerator implements Generator using the Google Gemini API.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

// NewGeminiGenerator creates a Gemini-backed Generator.
func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, errors.New("chat: gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("chat: gemini client: %w", err)
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &GeminiGenerator{client: client, model: model}, nil
}

func (g *GeminiGenerator) Generate(ctx context.Context, turns []Turn) (string, error) {
	contents := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		role := "user"
		if t.Role == RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: t.Content}},
		})
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("chat: gemini generate: %w", err)
	}

	var sb strings.Builder
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			sb.WriteString(part.Text)
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("chat: gemini returned no content")
	}
	return sb.String(), nil
}
