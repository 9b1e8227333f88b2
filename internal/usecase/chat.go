package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"chat-relay/internal/domain"
	"chat-relay/internal/observability"
)

const reasonAllProvidersFailed = "all_providers_failed"

var errEmptyReply = errors.New("empty reply")

// LLMClient is implemented by every provider integration.
type LLMClient interface {
	Chat(ctx context.Context, messages []domain.ChatMessage) (string, error)
}

// ChatService relays a conversation to the preferred provider and falls back
// to the alternate one. The set of configured providers is fixed at
// construction.
type ChatService struct {
	clients map[domain.Provider]LLMClient
	logger  *slog.Logger
}

type ChatInput struct {
	Messages     []domain.ChatMessage
	PreferredAPI string
}

type ChatOutput struct {
	Reply   string
	UsedAPI domain.Provider
}

// NewChatService creates a ChatService over the configured clients. Nil
// clients are treated as not configured; an empty set is allowed and makes
// every request fail with ErrorUnavailable.
func NewChatService(clients map[domain.Provider]LLMClient, logger *slog.Logger) (*ChatService, error) {
	if logger == nil {
		logger = slog.Default()
	}
	configured := make(map[domain.Provider]LLMClient, len(clients))
	for p, c := range clients {
		if !p.Valid() {
			return nil, fmt.Errorf("usecase: unknown provider %q", p)
		}
		if c != nil {
			configured[p] = c
		}
	}
	return &ChatService{clients: configured, logger: logger}, nil
}

// Available returns the configured providers in default preference order.
func (s *ChatService) Available() []domain.Provider {
	out := make([]domain.Provider, 0, len(s.clients))
	for _, p := range domain.Providers {
		if _, ok := s.clients[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

func (s *ChatService) Chat(ctx context.Context, in ChatInput) (ChatOutput, error) {
	if len(in.Messages) == 0 {
		return ChatOutput{}, newError(ErrorInvalidInput, ReasonMessagesRequired, nil)
	}
	for i, m := range in.Messages {
		if !m.Role.Valid() {
			return ChatOutput{}, newError(ErrorInvalidInput, ReasonInvalidRole, fmt.Errorf("message %d has role %q", i, m.Role))
		}
	}
	preferred, err := domain.ParseProvider(in.PreferredAPI)
	if err != nil {
		return ChatOutput{}, newError(ErrorInvalidInput, ReasonInvalidPreferredAPI, err)
	}

	for _, p := range preferred.FallbackOrder() {
		client, ok := s.clients[p]
		if !ok {
			s.logger.DebugContext(ctx, "provider not configured, skipping", "provider", p)
			continue
		}
		reply, ok := s.invoke(ctx, p, client, in.Messages)
		if !ok {
			continue
		}
		if p != preferred {
			observability.FallbacksTotal.WithLabelValues(string(preferred), string(p)).Inc()
		}
		return ChatOutput{Reply: reply, UsedAPI: p}, nil
	}
	return ChatOutput{}, newError(ErrorUnavailable, reasonAllProvidersFailed, nil)
}

// invoke calls one provider exactly once. Failures, including an empty reply
// or a panic inside the client, are logged and reported as ok=false.
func (s *ChatService) invoke(ctx context.Context, p domain.Provider, client LLMClient, messages []domain.ChatMessage) (reply string, ok bool) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			reply, ok = "", false
			observability.ProviderRequestsTotal.WithLabelValues(string(p), observability.StatusError).Inc()
			s.logger.ErrorContext(ctx, "provider call panicked", "provider", p, "panic", r)
		}
	}()

	reply, err := client.Chat(ctx, messages)
	observability.ProviderLatency.WithLabelValues(string(p)).Observe(time.Since(start).Seconds())
	if err == nil && reply == "" {
		err = errEmptyReply
	}
	if err != nil {
		observability.ProviderRequestsTotal.WithLabelValues(string(p), observability.StatusError).Inc()
		s.logger.WarnContext(ctx, "provider call failed", "provider", p, "err", err)
		return "", false
	}
	observability.ProviderRequestsTotal.WithLabelValues(string(p), observability.StatusOK).Inc()
	return reply, true
}
