package deepseek

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"chat-relay/internal/domain"
)

const (
	DefaultBaseURL = "https://api.deepseek.com"
	DefaultModel   = "deepseek-chat"
	defaultTimeout = 60 * time.Second
)

// Client is a chat-completions client for the DeepSeek OpenAI-compatible API.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client

	api openai.Client
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

func WithModel(model string) Option {
	return func(c *Client) {
		if model = strings.TrimSpace(model); model != "" {
			c.model = model
		}
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a Client authenticated with apiKey. SDK-level retries are
// disabled: every Chat call is exactly one upstream request.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("deepseek: api key must not be empty")
	}
	c := &Client{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		model:      DefaultModel,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: defaultTimeout}
	}
	c.api = openai.NewClient(
		option.WithAPIKey(c.apiKey),
		option.WithBaseURL(c.baseURL),
		option.WithHTTPClient(c.httpClient),
		option.WithMaxRetries(0),
	)
	return c, nil
}

// Model returns the model used for completions.
func (c *Client) Model() string {
	return c.model
}

// Chat sends the conversation as-is and returns the first choice's content.
func (c *Client) Chat(ctx context.Context, messages []domain.ChatMessage) (string, error) {
	if len(messages) == 0 {
		return "", errors.New("deepseek: messages must not be empty")
	}
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)),
	}
	for _, m := range messages {
		p, err := toMessageParam(m)
		if err != nil {
			return "", err
		}
		params.Messages = append(params.Messages, p)
	}

	resp, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("deepseek: request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("deepseek: no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

// toMessageParam maps a message onto the chat-completions shape. Name is only
// sent when present.
func toMessageParam(m domain.ChatMessage) (openai.ChatCompletionMessageParamUnion, error) {
	var p openai.ChatCompletionMessageParamUnion
	switch m.Role {
	case domain.RoleSystem:
		p = openai.SystemMessage(m.Content)
		if m.Name != "" {
			p.OfSystem.Name = openai.String(m.Name)
		}
	case domain.RoleUser:
		p = openai.UserMessage(m.Content)
		if m.Name != "" {
			p.OfUser.Name = openai.String(m.Name)
		}
	case domain.RoleAssistant:
		p = openai.AssistantMessage(m.Content)
		if m.Name != "" {
			p.OfAssistant.Name = openai.String(m.Name)
		}
	default:
		return p, fmt.Errorf("deepseek: unsupported role %q", m.Role)
	}
	return p, nil
}
