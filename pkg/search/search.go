// Package search provides a web-search collaborator backed by SerpAPI.
// The client returns a short plain-text summary built from the first organic
// result, or from the structured weather answer box when present.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://serpapi.com"

// Error is a SerpAPI-level failure (as opposed to transport errors).
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("search: api error (status %d): %s", e.StatusCode, e.Message)
	}
	return "search: api error: " + e.Message
}

// Client is a SerpAPI search client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client

	// lang and country select the search interface language and region.
	lang    string
	country string
}

// Option configures the Client.
type Option func(*Client)

// WithBaseURL overrides the SerpAPI endpoint. For tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLocale sets the interface language and region parameters.
func WithLocale(lang, country string) Option {
	return func(c *Client) { c.lang, c.country = lang, country }
}

// NewClient creates a search client. The API key is required.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("search: api key is required")
	}
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		lang:       "ru",
		country:    "ru",
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// response mirrors the subset of the SerpAPI JSON payload we consume.
type response struct {
	Error          string          `json:"error"`
	AnswerBox      *answerBox      `json:"answer_box"`
	OrganicResults []organicResult `json:"organic_results"`
}

type answerBox struct {
	Type          string `json:"type"`
	Location      string `json:"location"`
	Date          string `json:"date"`
	Weather       string `json:"weather"`
	Temperature   string `json:"temperature"`
	Unit          string `json:"unit"`
	Precipitation string `json:"precipitation"`
	Humidity      string `json:"humidity"`
	Wind          string `json:"wind"`
}

type organicResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Link    string `json:"link"`
}

// defaultLocation is sent when no place keyword matches the query.
const defaultLocation = "En"

// locationFor derives an explicit search location from the query text.
// Weather queries are left unrestricted so the engine resolves the place
// named in the query itself.
func locationFor(query string) string {
	lower := strings.ToLower(query)
	switch {
	case strings.Contains(lower, "погода"), strings.Contains(lower, "weather"):
		return ""
	case strings.Contains(lower, "киев"), strings.Contains(lower, "kyiv"):
		return "Kyiv, Ukraine"
	case strings.Contains(lower, "берн"), strings.Contains(lower, "bern"):
		return "Bern, Switzerland"
	case strings.Contains(lower, "лондон"), strings.Contains(lower, "london"):
		return "London, United Kingdom"
	}
	return defaultLocation
}

// Search runs a query and returns a short plain-text summary with an
// optional source link.
func (c *Client) Search(ctx context.Context, query string) (string, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("hl", c.lang)
	q.Set("gl", c.country)
	q.Set("api_key", c.apiKey)
	if loc := locationFor(query); loc != "" {
		q.Set("location", loc)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search.json?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("search: create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("search: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("search: read response: %w", err)
	}

	var r response
	if err := json.Unmarshal(body, &r); err != nil {
		return "", fmt.Errorf("search: decode response: %w", err)
	}
	if r.Error != "" {
		return "", &Error{StatusCode: resp.StatusCode, Message: r.Error}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &Error{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}

	return format(&r), nil
}

// format builds the user-visible summary from a search response.
func format(r *response) string {
	var link string
	if len(r.OrganicResults) > 0 {
		link = r.OrganicResults[0].Link
	}

	if ab := r.AnswerBox; ab != nil && ab.Type == "weather_result" {
		text := fmt.Sprintf(
			"Погода в %s на %s: %s, температура %s°%s, осадки %s, влажность %s, ветер %s.",
			ab.Location, ab.Date, ab.Weather, ab.Temperature, ab.Unit,
			ab.Precipitation, ab.Humidity, ab.Wind,
		)
		return appendLink(text, link)
	}

	if len(r.OrganicResults) > 0 {
		first := r.OrganicResults[0]
		var sb strings.Builder
		if first.Title != "" {
			sb.WriteString(first.Title)
			sb.WriteString(". ")
		}
		sb.WriteString(first.Snippet)
		return appendLink(sb.String(), link)
	}

	return "Результаты поиска не найдены."
}

func appendLink(text, link string) string {
	if link == "" {
		return text
	}
	return fmt.Sprintf(`%s Подробнее: <a href="%s" target="_blank">%s</a>`, text, link, link)
}
