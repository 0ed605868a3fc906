// Package intent classifies raw chat messages into the response source that
// should answer them. Classification is an ordered list of pure matchers
// evaluated top-down; the first match wins and unmatched input always falls
// through to the generative backend, so classification never fails.
package intent

import (
	"regexp"
	"strings"
	"time"
)

// Kind identifies the response source for a message.
type Kind int

const (
	// KindGenerative routes the message to the generative-text backend
	// with the session's conversation history.
	KindGenerative Kind = iota

	// KindClock answers date/time questions from the server clock.
	KindClock

	// KindSearch routes the message to the web-search backend.
	KindSearch
)

func (k Kind) String() string {
	switch k {
	case KindClock:
		return "clock"
	case KindSearch:
		return "search"
	default:
		return "generative"
	}
}

// Intent is the classified purpose of a message.
type Intent struct {
	Kind Kind

	// Query is the search query for KindSearch; empty otherwise.
	Query string

	// Explicit is true when the user requested the search with the
	// "search:" prefix rather than the classifier deriving it.
	Explicit bool
}

// Rule examines a message and either claims it with an Intent or passes.
type Rule func(message string) (Intent, bool)

// Classifier evaluates a fixed priority-ordered rule list.
type Classifier struct {
	now   func() time.Time
	rules []Rule
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithNow injects the clock used by the future-year rule. For tests.
func WithNow(now func() time.Time) Option {
	return func(c *Classifier) { c.now = now }
}

// New creates a Classifier with the standard rule order:
// explicit search prefix, date/time phrasing, future-year outcome
// questions, then the generative fallback.
func New(opts ...Option) *Classifier {
	c := &Classifier{now: time.Now}
	for _, o := range opts {
		o(c)
	}
	c.rules = []Rule{
		matchSearchPrefix,
		matchClock,
		c.matchYearOutcome,
	}
	return c
}

// Classify returns the intent for a message. It is deterministic and has no
// side effects.
func (c *Classifier) Classify(message string) Intent {
	for _, rule := range c.rules {
		if in, ok := rule(message); ok {
			return in
		}
	}
	return Intent{Kind: KindGenerative}
}

// searchPrefix is the explicit marker that forces a web search.
const searchPrefix = "search:"

func matchSearchPrefix(message string) (Intent, bool) {
	trimmed := strings.TrimSpace(message)
	if len(trimmed) < len(searchPrefix) {
		return Intent{}, false
	}
	if !strings.EqualFold(trimmed[:len(searchPrefix)], searchPrefix) {
		return Intent{}, false
	}
	query := strings.TrimSpace(trimmed[len(searchPrefix):])
	return Intent{Kind: KindSearch, Query: query, Explicit: true}, true
}

// clockPhrases are the date/time phrasings answered from the server clock.
var clockPhrases = []string{
	"какой сегодня день",
	"какое сегодня число",
	"сколько сейчас время",
	"сколько сейчас времени",
	"what day is it",
	"what time is it",
}

func matchClock(message string) (Intent, bool) {
	lower := strings.ToLower(message)
	for _, p := range clockPhrases {
		if strings.Contains(lower, p) {
			return Intent{Kind: KindClock}, true
		}
	}
	return Intent{}, false
}

// outcomePhrases mark questions about the result of some event.
var outcomePhrases = []string{
	"кто победил",
	"кто выиграл",
	"who won",
}

var yearPattern = regexp.MustCompile(`(?:^|\D)(\d{4})(?:\D|$)`)

// matchYearOutcome handles outcome questions carrying a 4-digit year. Years
// up to the current one stay with the generative backend; later years go to
// search, since the model cannot know unannounced future outcomes.
func (c *Classifier) matchYearOutcome(message string) (Intent, bool) {
	lower := strings.ToLower(message)
	matched := false
	for _, p := range outcomePhrases {
		if strings.Contains(lower, p) {
			matched = true
			break
		}
	}
	if !matched {
		return Intent{}, false
	}
	m := yearPattern.FindStringSubmatch(message)
	if m == nil {
		return Intent{}, false
	}
	year := 0
	for _, r := range m[1] {
		year = year*10 + int(r-'0')
	}
	if year > c.now().Year() {
		return Intent{Kind: KindSearch, Query: strings.TrimSpace(message)}, true
	}
	return Intent{Kind: KindGenerative}, true
}
