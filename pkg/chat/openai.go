package chat

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

var _ Generator = (*OpenAIGenerator)(nil)

// OpenAIGenerator implements Generator using the OpenAI chat completions API.
type OpenAIGenerator struct {
	client      openai.Client
	model       string
	temperature float64
	maxTokens   int64
}

// NewOpenAIGenerator creates an OpenAI-backed Generator.
// baseURL may be empty to use the default endpoint.
func NewOpenAIGenerator(apiKey, baseURL, model string, temperature float64, maxTokens int64) (*OpenAIGenerator, error) {
	if apiKey == "" {
		return nil, errors.New("chat: openai api key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = openai.ChatModelGPT3_5Turbo
	}
	return &OpenAIGenerator{
		client:      openai.NewClient(opts...),
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
	}, nil
}

func (g *OpenAIGenerator) Generate(ctx context.Context, turns []Turn) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:    g.model,
		Messages: buildOpenAIMessages(turns),
	}
	if g.temperature > 0 {
		params.Temperature = openai.Float(g.temperature)
	}
	if g.maxTokens > 0 {
		params.MaxTokens = openai.Int(g.maxTokens)
	}

	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat: openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func buildOpenAIMessages(turns []Turn) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case RoleSystem:
			msgs = append(msgs, openai.SystemMessage(t.Content))
		case RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(t.Content))
		default:
			msgs = append(msgs, openai.UserMessage(t.Content))
		}
	}
	return msgs
}
