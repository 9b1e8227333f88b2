// Package gemini adapts chat conversations to the Google Gemini API.
//
// Gemini only knows two conversation roles, "user" and "model". Assistant
// turns become "model"; every other role is sent as "user". All but the last
// message form the chat history and the last message is sent as the new user
// turn.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"chat-relay/internal/domain"
)

const (
	DefaultModel   = "gemini-2.0-flash"
	defaultTimeout = 60 * time.Second
)

type modelsClient interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

var newGenAIClient = func(ctx context.Context, cfg *genai.ClientConfig) (*genai.Client, error) {
	return genai.NewClient(ctx, cfg)
}

// Client sends conversations to Gemini.
type Client struct {
	models  modelsClient
	model   string
	timeout time.Duration
}

type Option func(*Client)

func WithModel(model string) Option {
	return func(c *Client) {
		if model = strings.TrimSpace(model); model != "" {
			c.model = model
		}
	}
}

// WithTimeout bounds each Chat call when the caller's context has no deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// NewClient creates a Gemini API client authenticated with apiKey.
func NewClient(ctx context.Context, apiKey string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini: api key must not be empty")
	}
	gc, err := newGenAIClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	c := &Client{
		models:  gc.Models,
		model:   DefaultModel,
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Model returns the model used for generation.
func (c *Client) Model() string {
	return c.model
}

func (c *Client) Chat(ctx context.Context, messages []domain.ChatMessage) (string, error) {
	contents, err := buildContents(messages)
	if err != nil {
		return "", err
	}

	if _, ok := ctx.Deadline(); !ok && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("gemini: generate content: %w", err)
	}
	text := extractText(resp)
	if text == "" {
		return "", errors.New("gemini: empty response")
	}
	return text, nil
}

func buildContents(messages []domain.ChatMessage) ([]*genai.Content, error) {
	if len(messages) == 0 {
		return nil, errors.New("gemini: messages must not be empty")
	}
	history, last := messages[:len(messages)-1], messages[len(messages)-1]

	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range history {
		contents = append(contents, textContent(historyRole(m.Role), m.Content))
	}
	return append(contents, textContent(genai.RoleUser, last.Content)), nil
}

func textContent(role, text string) *genai.Content {
	return &genai.Content{
		Role:  role,
		Parts: []*genai.Part{{Text: text}},
	}
}

func historyRole(r domain.Role) string {
	if r == domain.RoleAssistant {
		return genai.RoleModel
	}
	return genai.RoleUser
}

func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought || part.Text == "" {
			continue
		}
		sb.WriteString(part.Text)
	}
	return sb.String()
}
