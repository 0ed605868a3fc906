package tts

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

var _ Provider = (*OpenAI)(nil)

// OpenAI synthesizes speech through the OpenAI audio speech API.
// Unlike GoogleTranslate it requires credentials, but accepts much longer
// input per request.
type OpenAI struct {
	client openai.Client
	model  string
	voice  openai.AudioSpeechNewParamsVoice
}

// NewOpenAI creates the provider. Empty model and voice default to tts-1
// and alloy.
func NewOpenAI(apiKey, baseURL, model, voice string) (*OpenAI, error) {
	if apiKey == "" {
		return nil, errors.New("tts: openai api key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = "tts-1"
	}
	v := openai.AudioSpeechNewParamsVoiceAlloy
	if voice != "" {
		v = openai.AudioSpeechNewParamsVoice(voice)
	}
	return &OpenAI{
		client: openai.NewClient(opts...),
		model:  model,
		voice:  v,
	}, nil
}

// Speak synthesizes one bounded piece of text to MP3 bytes.
func (o *OpenAI) Speak(ctx context.Context, text string) ([]byte, error) {
	if text == "" {
		return nil, errors.New("tts: empty text")
	}

	resp, err := o.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model:          openai.SpeechModel(o.model),
		Input:          text,
		Voice:          o.voice,
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return nil, fmt.Errorf("tts: openai speech: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tts: read audio: %w", err)
	}
	return audio, nil
}
