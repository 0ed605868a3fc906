package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const googleTranslateBaseURL = "https://translate.googleapis.com"

var _ Provider = (*GoogleTranslate)(nil)

// GoogleTranslate synthesizes speech through the public Google Translate TTS
// endpoint. It needs no credentials but caps input at 200 characters per
// request, which SplitText already enforces upstream.
type GoogleTranslate struct {
	baseURL    string
	httpClient *http.Client
	lang       string
}

// GoogleTranslateOption configures the provider.
type GoogleTranslateOption func(*GoogleTranslate)

// WithGoogleBaseURL overrides the endpoint. For tests.
func WithGoogleBaseURL(u string) GoogleTranslateOption {
	return func(g *GoogleTranslate) { g.baseURL = u }
}

// WithGoogleHTTPClient overrides the HTTP client.
func WithGoogleHTTPClient(hc *http.Client) GoogleTranslateOption {
	return func(g *GoogleTranslate) { g.httpClient = hc }
}

// NewGoogleTranslate creates the provider for the given language code
// (e.g. "ru"). An empty lang defaults to "ru".
func NewGoogleTranslate(lang string, opts ...GoogleTranslateOption) *GoogleTranslate {
	if lang == "" {
		lang = "ru"
	}
	g := &GoogleTranslate{
		baseURL:    googleTranslateBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		lang:       lang,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Speak fetches MP3 audio for one bounded piece of text.
func (g *GoogleTranslate) Speak(ctx context.Context, text string) ([]byte, error) {
	if text == "" {
		return nil, errors.New("tts: empty text")
	}

	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("client", "tw-ob")
	q.Set("tl", g.lang)
	q.Set("q", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/translate_tts?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("tts: create request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts: google translate request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("tts: google translate returned %d: %s", resp.StatusCode, body)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tts: read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("tts: google translate returned empty audio")
	}
	return audio, nil
}
