package transcribe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

var _ Transcriber = (*Whisper)(nil)

// Whisper transcribes audio through the OpenAI transcription API, avoiding
// the local model download the Exec collaborator needs.
type Whisper struct {
	client openai.Client
	model  string
}

// NewWhisper creates the API-backed transcriber. Empty model defaults to
// whisper-1.
func NewWhisper(apiKey, baseURL, model string) (*Whisper, error) {
	if apiKey == "" {
		return nil, errors.New("transcribe: openai api key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = "whisper-1"
	}
	return &Whisper{client: openai.NewClient(opts...), model: model}, nil
}

func (w *Whisper) Transcribe(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("transcribe: open audio: %w", err)
	}
	defer f.Close()

	resp, err := w.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		Model: openai.AudioModel(w.model),
		File:  f,
	})
	if err != nil {
		return "", fmt.Errorf("transcribe: whisper api: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrEmptyTranscript
	}
	return text, nil
}
