package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"support-agent/internal/domain"
)

const (
	skPrefixMsg = "MSG#"
	skMeta      = "META#"
	ttlDuration = 30 * 24 * time.Hour // 30-day TTL
)

// ErrTicketExists is returned by ReserveTicket when the conversation already
// holds a ticket id (or a pending reservation).
var ErrTicketExists = errors.New("repository: ticket already reserved for conversation")

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// SessionStore defines the conversation state operations consumed by the
// routing core. Both write-once invariants (persona binding, ticket id) are
// conditional writes against the session record, never in-memory state.
type SessionStore interface {
	GetSession(ctx context.Context, conversationID string) (domain.Session, bool, error)
	BindPersona(ctx context.Context, conversationID, personaID, intent string) (domain.Session, error)
	ReserveTicket(ctx context.Context, conversationID, reservation string) error
	SetTicketID(ctx context.Context, conversationID, ticketID string) error
	SaveCompletedTurn(ctx context.Context, userMsg, assistantMsg domain.Message) error
}

// Client wraps a DynamoDB table for conversation session state.
type Client struct {
	api       dynamodbAPI
	tableName string
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName}, nil
}

// convPK returns the DynamoDB partition key for a conversation.
func convPK(conversationID string) string {
	return "CONV#" + conversationID
}

// msgSK returns the sort key for a message. The role suffix keeps the user
// and assistant halves of one turn from colliding on the same timestamp.
func msgSK(ts time.Time, role string) string {
	return skPrefixMsg + ts.UTC().Format(time.RFC3339Nano) + "#" + role
}

// ttlValue returns a Unix timestamp 30 days in the future.
func ttlValue() int64 {
	return time.Now().Add(ttlDuration).Unix()
}

// GetSession loads the META record for a conversation. The second return
// value reports whether the record exists.
func (c *Client) GetSession(ctx context.Context, conversationID string) (domain.Session, bool, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: convPK(conversationID)},
			"SK": &types.AttributeValueMemberS{Value: skMeta},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("repository: GetSession get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.Session{}, false, nil
	}
	session, err := itemToSession(out.Item)
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("repository: GetSession decode: %w", err)
	}
	return session, true, nil
}

// BindPersona sets the conversation's persona and intent only if no persona
// is bound yet. On a lost race the already-bound record wins and is returned
// unchanged, so concurrent first turns for the same conversation id converge
// on a single persona.
func (c *Client) BindPersona(ctx context.Context, conversationID, personaID, intent string) (domain.Session, error) {
	_, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: convPK(conversationID)},
			"SK": &types.AttributeValueMemberS{Value: skMeta},
		},
		ConditionExpression: aws.String("attribute_not_exists(boundPersonaId)"),
		UpdateExpression:    aws.String("SET boundPersonaId = :p, intent = :i, conversationId = :c, lastActivity = :a, #ttl = :t"),
		ExpressionAttributeNames: map[string]string{
			"#ttl": "ttl",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":p": &types.AttributeValueMemberS{Value: personaID},
			":i": &types.AttributeValueMemberS{Value: intent},
			":c": &types.AttributeValueMemberS{Value: conversationID},
			":a": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
			":t": &types.AttributeValueMemberN{Value: strconv.FormatInt(ttlValue(), 10)},
		},
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			session, found, getErr := c.GetSession(ctx, conversationID)
			if getErr != nil {
				return domain.Session{}, fmt.Errorf("repository: BindPersona read after lost race: %w", getErr)
			}
			if !found || session.BoundPersonaID == "" {
				return domain.Session{}, errors.New("repository: BindPersona: condition failed but no binding present")
			}
			return session, nil
		}
		return domain.Session{}, fmt.Errorf("repository: BindPersona update: %w", err)
	}
	return domain.Session{
		PK:             convPK(conversationID),
		SK:             skMeta,
		ConversationID: conversationID,
		BoundPersonaID: personaID,
		Intent:         intent,
	}, nil
}

// ReserveTicket writes a pending ticket marker only if the conversation has
// no ticket id yet. Returns ErrTicketExists when another request already
// holds the reservation, which is how at-most-once ticketing is enforced.
func (c *Client) ReserveTicket(ctx context.Context, conversationID, reservation string) error {
	_, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: convPK(conversationID)},
			"SK": &types.AttributeValueMemberS{Value: skMeta},
		},
		ConditionExpression: aws.String("attribute_not_exists(ticketId)"),
		UpdateExpression:    aws.String("SET ticketId = :r"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":r": &types.AttributeValueMemberS{Value: reservation},
		},
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return ErrTicketExists
		}
		return fmt.Errorf("repository: ReserveTicket update: %w", err)
	}
	return nil
}

// SetTicketID replaces the pending reservation with the collaborator's real
// ticket id.
func (c *Client) SetTicketID(ctx context.Context, conversationID, ticketID string) error {
	_, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: convPK(conversationID)},
			"SK": &types.AttributeValueMemberS{Value: skMeta},
		},
		UpdateExpression: aws.String("SET ticketId = :t"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t": &types.AttributeValueMemberS{Value: ticketID},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: SetTicketID update: %w", err)
	}
	return nil
}

// SaveCompletedTurn persists the user and assistant halves of a successful
// turn and bumps the session's activity metadata in one transaction.
func (c *Client) SaveCompletedTurn(ctx context.Context, userMsg, assistantMsg domain.Message) error {
	if userMsg.PK == "" || userMsg.SK == "" || assistantMsg.PK == "" || assistantMsg.SK == "" {
		return errors.New("repository: SaveCompletedTurn: message PK and SK are required")
	}

	userItem, err := attributevalue.MarshalMap(userMsg)
	if err != nil {
		return fmt.Errorf("repository: SaveCompletedTurn marshal user message: %w", err)
	}
	assistantItem, err := attributevalue.MarshalMap(assistantMsg)
	if err != nil {
		return fmt.Errorf("repository: SaveCompletedTurn marshal assistant message: %w", err)
	}

	_, err = c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(c.tableName),
					Item:                userItem,
					ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
				},
			},
			{
				Put: &types.Put{
					TableName:           aws.String(c.tableName),
					Item:                assistantItem,
					ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
				},
			},
			{
				Update: &types.Update{
					TableName: aws.String(c.tableName),
					Key: map[string]types.AttributeValue{
						"PK": &types.AttributeValueMemberS{Value: userMsg.PK},
						"SK": &types.AttributeValueMemberS{Value: skMeta},
					},
					UpdateExpression: aws.String("SET lastActivity = :a, #ttl = :t ADD turns :one"),
					ExpressionAttributeNames: map[string]string{
						"#ttl": "ttl",
					},
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":a":   &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
						":t":   &types.AttributeValueMemberN{Value: strconv.FormatInt(ttlValue(), 10)},
						":one": &types.AttributeValueMemberN{Value: "1"},
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: SaveCompletedTurn: %w", err)
	}
	return nil
}

// NewMessage constructs a Message with PK/SK/TTL set from conversationID and
// the supplied timestamp.
func NewMessage(conversationID, role, text, intent string, ts time.Time) domain.Message {
	return domain.Message{
		PK:             convPK(conversationID),
		SK:             msgSK(ts, role),
		ConversationID: conversationID,
		Role:           role,
		Text:           text,
		Intent:         intent,
		CreatedAt:      ts.UTC().Format(time.RFC3339Nano),
		TTL:            ttlValue(),
	}
}

// itemToSession converts a META attribute map to a Session.
func itemToSession(item map[string]types.AttributeValue) (domain.Session, error) {
	pk, err := strAttr(item, "PK")
	if err != nil {
		return domain.Session{}, err
	}
	sk, err := strAttr(item, "SK")
	if err != nil {
		return domain.Session{}, err
	}
	convID, _ := strAttr(item, "conversationId") // allow empty
	personaID, _ := strAttr(item, "boundPersonaId")
	intentVal, _ := strAttr(item, "intent")
	ticketID, _ := strAttr(item, "ticketId")
	lastActivity, _ := strAttr(item, "lastActivity")

	turns := 0
	if _, ok := item["turns"]; ok {
		turns, err = intAttr(item, "turns")
		if err != nil {
			return domain.Session{}, err
		}
	}

	return domain.Session{
		PK:             pk,
		SK:             sk,
		ConversationID: convID,
		BoundPersonaID: personaID,
		Intent:         intentVal,
		TicketID:       ticketID,
		LastActivity:   lastActivity,
		Turns:          turns,
	}, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
