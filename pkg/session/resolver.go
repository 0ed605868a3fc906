package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chathelp/relay/pkg/cache"
	"github.com/chathelp/relay/pkg/chat"
	"github.com/chathelp/relay/pkg/intent"
)

// User-visible fallback strings, matching the tone of the web client.
const (
	msgInvalidInput  = "⚠️ Пустое или некорректное сообщение не может быть обработано"
	msgApology       = "⚠️ Произошла ошибка при обработке запроса"
	msgSearchFailed  = "Ошибка при поиске в интернете."
	msgVoiceFailed   = "⚠️ Произошла ошибка при генерации речи. Попробуйте еще раз."
	msgSearchDecline = "Хорошо, поиск отменён."
)

// Searcher is the web-search collaborator consumed by the resolver.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// Resolver produces an answer string for a classified message. It always
// produces some string: external failures are logged and converted to fixed
// fallback answers, never raised to the dispatcher.
type Resolver struct {
	// Cache is the shared text-answer cache.
	Cache *cache.Cache

	// Classifier routes messages to a response source.
	Classifier *intent.Classifier

	// Generator is the generative-text collaborator.
	Generator chat.Generator

	// Searcher is the web-search collaborator.
	Searcher Searcher

	// Now is the server clock for date/time answers. Defaults to time.Now.
	Now func() time.Time

	// Location is the timezone for date/time answers. Defaults to UTC.
	Location *time.Location

	// ConfirmSearch requires a yes/no confirmation turn before executing
	// a search the classifier derived (explicit "search:" requests run
	// immediately regardless).
	ConfirmSearch bool
}

// Resolve produces the answer for one message. The returned string is
// always non-empty.
func (r *Resolver) Resolve(ctx context.Context, s *Session, message string) string {
	if strings.TrimSpace(message) == "" {
		return msgInvalidInput
	}
	message = strings.TrimSpace(message)

	key := cache.NormalizeKey(message)
	if answer, ok := r.Cache.GetString(ctx, key); ok {
		slog.Debug("resolver: cache hit", "session", s.ID, "key", key)
		return answer
	}

	in := r.Classifier.Classify(message)
	slog.Debug("resolver: classified", "session", s.ID, "intent", in.Kind.String())

	switch in.Kind {
	case intent.KindClock:
		// Served from the server clock; never cached, a replay would be
		// stale by definition.
		return r.clockAnswer()

	case intent.KindSearch:
		if r.ConfirmSearch && !in.Explicit {
			s.setPendingSearch(in.Query)
			return fmt.Sprintf("Выполнить поиск в интернете по запросу «%s»? Ответьте «да» или «нет».", in.Query)
		}
		return r.searchAnswer(ctx, s, in.Query, key)

	default:
		return r.generativeAnswer(ctx, s, message, key)
	}
}

func (r *Resolver) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Resolver) clockAnswer() string {
	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}
	return r.now().In(loc).Format("02.01.2006, 15:04:05")
}

func (r *Resolver) searchAnswer(ctx context.Context, s *Session, query, key string) string {
	if r.Searcher == nil {
		slog.Warn("resolver: search requested but no searcher configured", "session", s.ID)
		return msgSearchFailed
	}
	answer, err := r.Searcher.Search(ctx, query)
	if err != nil {
		slog.Error("resolver: search failed", "session", s.ID, "query", query, "err", err)
		return msgSearchFailed
	}
	if err := r.Cache.PutString(ctx, key, answer); err != nil {
		slog.Warn("resolver: cache write failed", "session", s.ID, "err", err)
	}
	return answer
}

func (r *Resolver) generativeAnswer(ctx context.Context, s *Session, message, key string) string {
	userTurn := chat.UserTurn(message)
	turns := append(s.History(), userTurn)

	reply, err := r.Generator.Generate(ctx, turns)
	if err != nil {
		slog.Error("resolver: generation failed", "session", s.ID, "err", err)
		// The failed exchange stays out of history and cache.
		return msgApology
	}

	s.appendTurns(userTurn, chat.AssistantTurn(reply))
	if err := r.Cache.PutString(ctx, key, reply); err != nil {
		slog.Warn("resolver: cache write failed", "session", s.ID, "err", err)
	}
	return reply
}
