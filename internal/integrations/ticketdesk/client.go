package ticketdesk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"support-agent/internal/domain"
	"support-agent/internal/integrations/paramstore"
)

// createRequest is the wire shape the ticketing collaborator accepts.
type createRequest struct {
	Subject        string `json:"subject"`
	InitialMessage string `json:"initialMessage"`
	PersonaID      string `json:"personaId"`
	Intent         string `json:"intent"`
	Source         string `json:"source"`
}

// createResponse is the collaborator's reply envelope.
type createResponse struct {
	Ticket struct {
		ID string `json:"id"`
	} `json:"ticket"`
}

// tokenPayload is the expected JSON shape stored in SSM for the API token.
type tokenPayload struct {
	Token string `json:"token"`
}

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// HTTPStatusError captures non-2xx collaborator responses.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("ticketdesk: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client talks to the ticket-creation collaborator. The routing core treats
// it as fire-and-forget: failures are logged and retried out of band, never
// surfaced to the chat user.
type Client struct {
	endpoint    string
	httpClient  *http.Client
	getter      Getter
	paramPrefix string

	keyOnce sync.Once
	apiKey  string
	keyErr  error
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a ticketdesk client for the given endpoint. The API
// token is fetched from SSM on first use, same as the completion client.
func NewClient(endpoint string, ps Getter, paramPrefix string, opts ...Option) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("ticketdesk: endpoint must not be empty")
	}
	if ps == nil {
		return nil, errors.New("ticketdesk: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("ticketdesk: parameter prefix must not be empty")
	}
	c := &Client{
		endpoint:    endpoint,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		getter:      ps,
		paramPrefix: paramPrefix,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) resolveAPIKey(ctx context.Context) (string, error) {
	c.keyOnce.Do(func() {
		raw, err := paramstore.GetUnder(ctx, c.getter, c.paramPrefix, "ticket-api-token")
		if err != nil {
			c.keyErr = fmt.Errorf("ticketdesk: fetch token from paramstore: %w", err)
			return
		}
		var tp tokenPayload
		if err := json.Unmarshal([]byte(raw), &tp); err != nil {
			c.keyErr = fmt.Errorf("ticketdesk: unmarshal paramstore token value as JSON: %w", err)
			return
		}
		if tp.Token == "" {
			c.keyErr = errors.New("ticketdesk: API token is empty")
			return
		}
		c.apiKey = tp.Token
	})
	return c.apiKey, c.keyErr
}

// CreateTicket submits a ticket and returns the collaborator-assigned id.
func (c *Client) CreateTicket(ctx context.Context, ticket domain.Ticket) (string, error) {
	apiKey, err := c.resolveAPIKey(ctx)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(createRequest{
		Subject:        ticket.Subject,
		InitialMessage: ticket.InitialMessage,
		PersonaID:      ticket.PersonaID,
		Intent:         ticket.Intent,
		Source:         ticket.Source,
	})
	if err != nil {
		return "", fmt.Errorf("ticketdesk: marshal request: %w", err)
	}

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if reqErr != nil {
		return "", fmt.Errorf("ticketdesk: create request: %w", reqErr)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	res, doErr := c.httpClient.Do(req)
	if doErr != nil {
		return "", fmt.Errorf("ticketdesk: request failed: %w", doErr)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return "", &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        c.endpoint,
			Body:       string(buf),
		}
	}

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("ticketdesk: read response body: %w", err)
	}

	var payload createResponse
	if decErr := json.Unmarshal(raw, &payload); decErr != nil {
		return "", fmt.Errorf("ticketdesk: decode response: %w", decErr)
	}
	if payload.Ticket.ID == "" {
		return "", errors.New("ticketdesk: response missing ticket id")
	}
	return payload.Ticket.ID, nil
}
