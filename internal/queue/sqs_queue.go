package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// TicketRetry is the payload published when the ticketing collaborator is
// unavailable. An out-of-band worker drains the queue and completes the
// reservation left on the session record.
type TicketRetry struct {
	ConversationID string `json:"conversationId"`
	Subject        string `json:"subject"`
	InitialMessage string `json:"initialMessage"`
	PersonaID      string `json:"personaId"`
	Intent         string `json:"intent"`
	Source         string `json:"source"`
	Reservation    string `json:"reservation"`
}

// Publisher is the enqueue contract consumed by the routing core.
type Publisher interface {
	PublishTicketRetry(ctx context.Context, retry TicketRetry) error
}

// sqsAPI is the minimal SQS surface required by SQSPublisher.
type sqsAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher publishes ticket-retry payloads to an SQS queue.
type SQSPublisher struct {
	api      sqsAPI
	queueURL string
}

// NewSQSPublisher creates a publisher for the given queue URL.
func NewSQSPublisher(api sqsAPI, queueURL string) (*SQSPublisher, error) {
	if api == nil {
		return nil, errors.New("queue: api must not be nil")
	}
	if strings.TrimSpace(queueURL) == "" {
		return nil, errors.New("queue: queue URL must not be empty")
	}
	return &SQSPublisher{api: api, queueURL: queueURL}, nil
}

// PublishTicketRetry enqueues one retry payload.
func (p *SQSPublisher) PublishTicketRetry(ctx context.Context, retry TicketRetry) error {
	body, err := json.Marshal(retry)
	if err != nil {
		return fmt.Errorf("queue: marshal ticket retry: %w", err)
	}
	_, err = p.api.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("queue: send ticket retry: %w", err)
	}
	return nil
}

// Noop discards retry payloads. Used when no retry queue is configured, so
// the routing core keeps a single code path.
type Noop struct{}

func (Noop) PublishTicketRetry(context.Context, TicketRetry) error { return nil }
