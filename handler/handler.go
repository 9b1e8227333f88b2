package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"chat-relay/internal/domain"
	"chat-relay/internal/usecase"
)

const (
	correlationHeader = "X-Correlation-Id"
	maxBodyBytes      = 1 << 20

	successMessage = "Reply generated successfully"

	reasonInvalidBody   = "invalid_body"
	reasonMissingFields = "message_fields_required"
	reasonBodyTooLarge  = "body_too_large"
)

var invalidInputMessages = map[string]string{
	reasonInvalidBody:                 "Request body must be JSON with a messages array of {role, content} text fields",
	reasonMissingFields:               "Each message must have text role and content fields",
	reasonBodyTooLarge:                "Request body is too large",
	usecase.ReasonMessagesRequired:    "Messages array is required and must not be empty",
	usecase.ReasonInvalidRole:         "Message role must be one of system, user, assistant",
	usecase.ReasonInvalidPreferredAPI: `preferredApi must be "google" or "deepseek"`,
}

// ChatUseCase is the orchestration the handler delegates to.
type ChatUseCase interface {
	Chat(ctx context.Context, in usecase.ChatInput) (usecase.ChatOutput, error)
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

type messagePayload struct {
	Role    *string `json:"role"`
	Content *string `json:"content"`
	Name    *string `json:"name"`
}

type chatRequest struct {
	Messages     []messagePayload `json:"messages"`
	PreferredAPI string           `json:"preferredApi"`
}

type chatResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Reply     string `json:"reply"`
	UsedAPI   string `json:"usedApi"`
	Timestamp string `json:"timestamp"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Stack   string `json:"stack,omitempty"`
}

// Handler serves POST /api/chat, either as an http.Handler or as an API
// Gateway proxy Lambda handler.
type Handler struct {
	uc         ChatUseCase
	production bool
	origin     string
	now        func() time.Time
}

type Option func(*Handler)

// WithProduction hides stack traces from error responses.
func WithProduction(production bool) Option {
	return func(h *Handler) {
		h.production = production
	}
}

// WithAllowedOrigin sets the CORS origin advertised on Lambda responses.
// Under net/http CORS is applied by middleware instead.
func WithAllowedOrigin(origin string) Option {
	return func(h *Handler) {
		h.origin = strings.TrimSpace(origin)
	}
}

func NewHandler(uc ChatUseCase, opts ...Option) (*Handler, error) {
	if uc == nil {
		return nil, errors.New("handler: chat use case must not be nil")
	}
	h := &Handler{uc: uc, now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	corrID := correlationID(r.Header.Get(correlationHeader))

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, corrID, http.StatusRequestEntityTooLarge, invalidInput(reasonBodyTooLarge))
			return
		}
		writeJSON(w, corrID, http.StatusBadRequest, invalidInput(reasonInvalidBody))
		return
	}

	status, payload := h.process(r.Context(), corrID, body)
	writeJSON(w, corrID, status, payload)
}

// Handle is the AWS Lambda entrypoint for API Gateway proxy events.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	corrID := correlationID(headerValue(event.Headers, correlationHeader))

	switch event.HTTPMethod {
	case http.MethodPost:
	case http.MethodOptions:
		return h.lambdaResponse(corrID, http.StatusNoContent, nil), nil
	default:
		return h.lambdaResponse(corrID, http.StatusMethodNotAllowed, errorResponse{Error: "Method not allowed"}), nil
	}

	body := []byte(event.Body)
	if event.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(event.Body)
		if err != nil {
			return h.lambdaResponse(corrID, http.StatusBadRequest, invalidInput(reasonInvalidBody)), nil
		}
		body = decoded
	}
	if len(body) > maxBodyBytes {
		return h.lambdaResponse(corrID, http.StatusRequestEntityTooLarge, invalidInput(reasonBodyTooLarge)), nil
	}

	status, payload := h.process(ctx, corrID, body)
	return h.lambdaResponse(corrID, status, payload), nil
}

// process runs one chat request and returns the HTTP status and JSON body.
func (h *Handler) process(ctx context.Context, corrID string, body []byte) (status int, payload any) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "chat request panicked", "correlation_id", corrID, "panic", r)
			status, payload = http.StatusInternalServerError, h.internalError(fmt.Errorf("panic: %v", r))
		}
	}()

	var req chatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		slog.InfoContext(ctx, "chat request rejected", "correlation_id", corrID, "reason", reasonInvalidBody, "err", err)
		return http.StatusBadRequest, invalidInput(reasonInvalidBody)
	}
	messages, ok := toDomainMessages(req.Messages)
	if !ok {
		slog.InfoContext(ctx, "chat request rejected", "correlation_id", corrID, "reason", reasonMissingFields)
		return http.StatusBadRequest, invalidInput(reasonMissingFields)
	}

	out, err := h.uc.Chat(ctx, usecase.ChatInput{Messages: messages, PreferredAPI: req.PreferredAPI})
	if err != nil {
		return h.errorResult(ctx, corrID, err)
	}

	slog.InfoContext(ctx, "chat request completed", "correlation_id", corrID, "used_api", out.UsedAPI)
	return http.StatusOK, chatResponse{
		Success:   true,
		Message:   successMessage,
		Reply:     out.Reply,
		UsedAPI:   string(out.UsedAPI),
		Timestamp: h.now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
}

func (h *Handler) errorResult(ctx context.Context, corrID string, err error) (int, any) {
	var ucErr *usecase.Error
	if errors.As(err, &ucErr) {
		switch ucErr.Code {
		case usecase.ErrorInvalidInput:
			slog.InfoContext(ctx, "chat request rejected", "correlation_id", corrID, "reason", ucErr.Reason, "err", err)
			return http.StatusBadRequest, invalidInput(ucErr.Reason)
		case usecase.ErrorUnavailable:
			slog.WarnContext(ctx, "no provider produced a reply", "correlation_id", corrID)
			return http.StatusServiceUnavailable, errorResponse{
				Error:   "All AI providers failed",
				Message: "Unable to get a reply from any configured AI provider. Please try again later.",
			}
		}
	}

	status := http.StatusInternalServerError
	var coder httpStatusCoder
	if errors.As(err, &coder) && coder.HTTPStatusCode() >= 400 && coder.HTTPStatusCode() <= 599 {
		status = coder.HTTPStatusCode()
	}
	slog.ErrorContext(ctx, "chat request failed", "correlation_id", corrID, "status", status, "err", err)
	return status, h.internalError(err)
}

func (h *Handler) internalError(err error) errorResponse {
	resp := errorResponse{
		Error:   "Internal server error",
		Code:    string(usecase.ErrorInternal),
		Message: err.Error(),
	}
	if !h.production {
		resp.Stack = string(debug.Stack())
	}
	return resp
}

func (h *Handler) lambdaResponse(corrID string, status int, payload any) events.APIGatewayProxyResponse {
	headers := map[string]string{correlationHeader: corrID}
	if h.origin != "" {
		headers["Access-Control-Allow-Origin"] = h.origin
		headers["Access-Control-Allow-Methods"] = http.MethodPost
		headers["Access-Control-Allow-Headers"] = "Content-Type"
		headers["Vary"] = "Origin"
	}
	if payload == nil {
		return events.APIGatewayProxyResponse{StatusCode: status, Headers: headers}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		status, body = http.StatusInternalServerError, []byte(`{"error":"Internal server error"}`)
	}
	headers["Content-Type"] = "application/json"
	return events.APIGatewayProxyResponse{StatusCode: status, Headers: headers, Body: string(body)}
}

func writeJSON(w http.ResponseWriter, corrID string, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		status, body = http.StatusInternalServerError, []byte(`{"error":"Internal server error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(correlationHeader, corrID)
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// toDomainMessages requires role and content on every message. Role values
// are checked by the use case.
func toDomainMessages(in []messagePayload) ([]domain.ChatMessage, bool) {
	out := make([]domain.ChatMessage, 0, len(in))
	for _, m := range in {
		if m.Role == nil || m.Content == nil {
			return nil, false
		}
		msg := domain.ChatMessage{Role: domain.Role(*m.Role), Content: *m.Content}
		if m.Name != nil {
			msg.Name = *m.Name
		}
		out = append(out, msg)
	}
	return out, true
}

func invalidInput(reason string) errorResponse {
	msg, ok := invalidInputMessages[reason]
	if !ok {
		msg = "Invalid request"
	}
	return errorResponse{Error: msg, Code: string(usecase.ErrorInvalidInput)}
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func correlationID(v string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return newUUID()
}

var newUUID = func() string {
	return uuid.NewString()
}
