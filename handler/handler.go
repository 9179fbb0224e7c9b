package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"support-agent/internal/usecase"
	"support-agent/pkg/logging"
)

// ChatUseCase is the single operation the transport layer needs. Declared
// here so the handler can be tested against a stub.
type ChatUseCase interface {
	Respond(ctx context.Context, in usecase.ChatInput) (usecase.ChatOutput, error)
}

type chatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId,omitempty"`
	PersonaID      string `json:"personaId,omitempty"`
	Intent         string `json:"intent,omitempty"`
}

type chatResponse struct {
	Reply          string `json:"reply"`
	PersonaID      string `json:"personaId"`
	Intent         string `json:"intent"`
	ConversationID string `json:"conversationId"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

type Handler struct {
	uc     ChatUseCase
	logger *logging.Logger
}

func NewHandler(uc ChatUseCase) (*Handler, error) {
	if uc == nil {
		return nil, errors.New("handler: use case must not be nil")
	}
	return &Handler{uc: uc, logger: logging.Default()}, nil
}

// Handle is the API Gateway proxy entrypoint for POST /chat.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := correlationIDFrom(event.Headers)

	var req chatRequest
	if err := json.Unmarshal([]byte(event.Body), &req); err != nil {
		return errorResult(http.StatusBadRequest, string(usecase.ErrorInvalidInput), "malformed_json", correlationID), nil
	}

	out, err := h.uc.Respond(ctx, usecase.ChatInput{
		Message:        req.Message,
		ConversationID: req.ConversationID,
		PersonaID:      req.PersonaID,
		Intent:         req.Intent,
	})
	if err != nil {
		status, code, reason := mapError(err)
		h.logger.Error("chat request failed",
			"error", err,
			"status", status,
			"correlation_id", correlationID,
		)
		return errorResult(status, code, reason, correlationID), nil
	}

	return jsonResult(http.StatusOK, chatResponse{
		Reply:          out.Reply,
		PersonaID:      out.PersonaID,
		Intent:         out.Intent,
		ConversationID: out.ConversationID,
	}, correlationID), nil
}

func mapError(err error) (status int, code, reason string) {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		return http.StatusInternalServerError, string(usecase.ErrorInternal), "unexpected_error"
	}
	switch ucErr.Code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest, string(ucErr.Code), ucErr.Reason
	case usecase.ErrorRateLimited:
		return http.StatusTooManyRequests, string(ucErr.Code), ucErr.Reason
	case usecase.ErrorUpstream:
		return http.StatusServiceUnavailable, string(ucErr.Code), ucErr.Reason
	default:
		return http.StatusInternalServerError, string(usecase.ErrorInternal), ucErr.Reason
	}
}

func correlationIDFrom(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, "X-Correlation-Id") && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

func jsonResult(status int, body any, correlationID string) events.APIGatewayProxyResponse {
	raw, err := json.Marshal(body)
	if err != nil {
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusInternalServerError,
			Headers:    resultHeaders(correlationID),
			Body:       `{"error":"INTERNAL_ERROR"}`,
		}
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    resultHeaders(correlationID),
		Body:       string(raw),
	}
}

func errorResult(status int, code, reason, correlationID string) events.APIGatewayProxyResponse {
	return jsonResult(status, errorResponse{Error: code, Reason: reason}, correlationID)
}

func resultHeaders(correlationID string) map[string]string {
	return map[string]string{
		"Content-Type":     "application/json",
		"X-Correlation-Id": correlationID,
	}
}
