package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"support-agent/internal/domain"
	"support-agent/internal/integrations/paramstore"
	"support-agent/internal/intent"
	"support-agent/internal/persona"
	"support-agent/internal/queue"
	"support-agent/internal/repository"
	"support-agent/pkg/logging"
)

const defaultMaxMessageLen = 2000

type ParamGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

type LLMClient interface {
	Chat(ctx context.Context, model string, messages []domain.ChatMessage) (string, error)
}

type SessionStore interface {
	GetSession(ctx context.Context, conversationID string) (domain.Session, bool, error)
	BindPersona(ctx context.Context, conversationID, personaID, intent string) (domain.Session, error)
	ReserveTicket(ctx context.Context, conversationID, reservation string) error
	SetTicketID(ctx context.Context, conversationID, ticketID string) error
	SaveCompletedTurn(ctx context.Context, userMsg, assistantMsg domain.Message) error
}

type TicketCreator interface {
	CreateTicket(ctx context.Context, ticket domain.Ticket) (string, error)
}

type RetryPublisher interface {
	PublishTicketRetry(ctx context.Context, retry queue.TicketRetry) error
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// ChatService is the routing core: persona assignment, escalation detection,
// completion invocation, and at-most-once ticketing for support
// conversations. It holds no per-conversation state; everything lives in the
// session record behind SessionStore.
type ChatService struct {
	params        ParamGetter
	llm           LLMClient
	state         SessionStore
	tickets       TicketCreator
	retries       RetryPublisher
	registry      *persona.Registry
	logger        *logging.Logger
	paramPrefix   string
	maxMessageLen int

	cacheMu        sync.RWMutex
	cacheLoaded    bool
	supportContext string
	model          string
}

type ChatInput struct {
	Message        string
	ConversationID string
	PersonaID      string
	Intent         string
}

type ChatOutput struct {
	Reply          string
	PersonaID      string
	Intent         string
	ConversationID string
}

func NewChatService(p ParamGetter, llm LLMClient, s SessionStore, t TicketCreator, r RetryPublisher, reg *persona.Registry, logger *logging.Logger, paramPrefix string, maxMessageLen int) (*ChatService, error) {
	if p == nil {
		return nil, errors.New("usecase: param getter must not be nil")
	}
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if s == nil {
		return nil, errors.New("usecase: session store must not be nil")
	}
	if t == nil {
		return nil, errors.New("usecase: ticket creator must not be nil")
	}
	if r == nil {
		r = queue.Noop{}
	}
	if reg == nil {
		return nil, errors.New("usecase: persona registry must not be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("usecase: parameter prefix must not be empty")
	}
	if maxMessageLen <= 0 {
		maxMessageLen = defaultMaxMessageLen
	}
	return &ChatService{
		params:        p,
		llm:           llm,
		state:         s,
		tickets:       t,
		retries:       r,
		registry:      reg,
		logger:        logger,
		paramPrefix:   paramPrefix,
		maxMessageLen: maxMessageLen,
	}, nil
}

// Respond processes one conversation turn.
func (s *ChatService) Respond(ctx context.Context, in ChatInput) (ChatOutput, error) {
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return ChatOutput{}, newError(ErrorInvalidInput, "empty_message", nil)
	}
	if len(message) > s.maxMessageLen {
		return ChatOutput{}, newError(ErrorInvalidInput, "message_too_long", nil)
	}

	convID := strings.TrimSpace(in.ConversationID)
	if convID == "" {
		convID = newUUID()
	}

	suppliedPersona, suppliedValid := persona.Persona{}, false
	if pid := strings.TrimSpace(in.PersonaID); pid != "" {
		// Unknown persona ids degrade to the classification path; a stale or
		// mistyped id must never fail the request.
		suppliedPersona, suppliedValid = s.registry.Get(pid)
	}

	session, sessionFound := domain.Session{}, false
	if strings.TrimSpace(in.ConversationID) != "" {
		var err error
		session, sessionFound, err = s.state.GetSession(ctx, convID)
		if err != nil {
			return ChatOutput{}, newError(ErrorInternal, "session_read_error", err)
		}
	}

	// Escalation short-circuit: only for conversations that already hold a
	// persona binding, whether or not the caller echoed the persona id back.
	// The completion collaborator is not called and no state changes.
	if sessionFound && session.BoundPersonaID != "" && intent.DetectsEscalation(message) {
		boundIntent := session.Intent
		if boundIntent == "" && intent.Valid(in.Intent) {
			boundIntent = in.Intent
		}
		return ChatOutput{
			Reply:          escalationMessage,
			PersonaID:      session.BoundPersonaID,
			Intent:         boundIntent,
			ConversationID: convID,
		}, nil
	}

	personaID, intentStr, isFirstTurn, bindErr := s.bind(ctx, convID, session, sessionFound, suppliedPersona, suppliedValid, in.Intent, message)
	if bindErr != nil {
		return ChatOutput{}, bindErr
	}

	if err := s.ensureConfig(ctx); err != nil {
		return ChatOutput{}, newError(ErrorInternal, "ssm_load_error", err)
	}

	activePersona, ok := s.registry.Get(personaID)
	if !ok {
		// A binding can outlive the catalog entry it referenced. Keep the
		// bound id on the response but answer with the general persona.
		activePersona, _ = s.registry.Get(persona.GeneralConcierge)
	}

	reply, err := s.llm.Chat(ctx, s.model, buildPromptMessages(s.supportContext, activePersona, message))
	if err != nil {
		if status, ok := upstreamStatusCode(err); ok && status == 429 {
			return ChatOutput{}, newError(ErrorRateLimited, "completion_rate_limited", err)
		}
		return ChatOutput{}, newError(ErrorUpstream, "completion_error", err)
	}

	now := time.Now()
	msgIntent := ""
	if isFirstTurn {
		msgIntent = intentStr
	}
	userMsg := repository.NewMessage(convID, domain.RoleUser, message, msgIntent, now)
	assistantMsg := repository.NewMessage(convID, domain.RoleAssistant, reply, "", now)
	if err := s.state.SaveCompletedTurn(ctx, userMsg, assistantMsg); err != nil {
		return ChatOutput{}, newError(ErrorInternal, "session_write_error", err)
	}

	if isFirstTurn {
		s.ensureTicket(ctx, convID, message, personaID, intentStr)
	}

	return ChatOutput{
		Reply:          reply,
		PersonaID:      personaID,
		Intent:         intentStr,
		ConversationID: convID,
	}, nil
}

// bind resolves the conversation's persona and intent. The persona binding
// is first-write-wins: once a session record holds a boundPersonaId it is
// authoritative regardless of what this request supplied or classified.
func (s *ChatService) bind(ctx context.Context, convID string, session domain.Session, sessionFound bool, supplied persona.Persona, suppliedValid bool, suppliedIntent, message string) (personaID, intentStr string, isFirstTurn bool, err *Error) {
	if sessionFound && session.BoundPersonaID != "" {
		return session.BoundPersonaID, session.Intent, false, nil
	}

	if suppliedValid {
		// Caller carries a valid persona but the record is unbound (first
		// turn with a caller-chosen persona, or a recreated conversation).
		// Bind it without reclassifying; continuity beats reclassification.
		boundIntent := suppliedIntent
		if !intent.Valid(boundIntent) {
			boundIntent = string(intent.Classify(message))
		}
		bound, bindErr := s.state.BindPersona(ctx, convID, supplied.ID, boundIntent)
		if bindErr != nil {
			return "", "", false, newError(ErrorInternal, "persona_bind_error", bindErr)
		}
		return bound.BoundPersonaID, bound.Intent, false, nil
	}

	category := intent.Classify(message)
	bound, bindErr := s.state.BindPersona(ctx, convID, persona.ForIntent(category), string(category))
	if bindErr != nil {
		return "", "", false, newError(ErrorInternal, "persona_bind_error", bindErr)
	}
	// A lost bind race means a concurrent first turn won; its binding is the
	// conversation's persona and this request is no longer the first turn.
	isFirstTurn = bound.BoundPersonaID == persona.ForIntent(category) && bound.Intent == string(category)
	return bound.BoundPersonaID, bound.Intent, isFirstTurn, nil
}

// ensureTicket creates at most one ticket per conversation, after the first
// successful reply. Best-effort: every failure path logs and returns; the
// user-visible reply is never blocked by ticketing.
func (s *ChatService) ensureTicket(ctx context.Context, convID, message, personaID, intentStr string) {
	reservation := "pending#" + newUUID()
	if err := s.state.ReserveTicket(ctx, convID, reservation); err != nil {
		if errors.Is(err, repository.ErrTicketExists) {
			return
		}
		s.logger.Error("ticket reservation failed", "error", err, "conversation_id", convID)
		return
	}

	ticket := domain.Ticket{
		ConversationID: convID,
		Subject:        ticketSubject(message),
		InitialMessage: message,
		PersonaID:      personaID,
		Intent:         intentStr,
		Source:         ticketSourceTag,
		CreatedAt:      time.Now().UTC().Format(time.RFC3339),
	}

	ticketID, err := s.tickets.CreateTicket(ctx, ticket)
	if err != nil {
		s.logger.Error("ticket creation failed, queueing retry", "error", err, "conversation_id", convID)
		retry := queue.TicketRetry{
			ConversationID: convID,
			Subject:        ticket.Subject,
			InitialMessage: ticket.InitialMessage,
			PersonaID:      ticket.PersonaID,
			Intent:         ticket.Intent,
			Source:         ticket.Source,
			Reservation:    reservation,
		}
		if pubErr := s.retries.PublishTicketRetry(ctx, retry); pubErr != nil {
			s.logger.Error("ticket retry publish failed", "error", pubErr, "conversation_id", convID)
		}
		return
	}

	if err := s.state.SetTicketID(ctx, convID, ticketID); err != nil {
		s.logger.Error("ticket id write failed", "error", err, "conversation_id", convID, "ticket_id", ticketID)
	}
}

func (s *ChatService) ensureConfig(ctx context.Context) error {
	s.cacheMu.RLock()
	if s.cacheLoaded {
		s.cacheMu.RUnlock()
		return nil
	}
	s.cacheMu.RUnlock()

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.cacheLoaded {
		return nil
	}

	supportContext, model, err := s.loadSSMParams(ctx)
	if err != nil {
		return err
	}

	s.supportContext = supportContext
	s.model = model
	s.cacheLoaded = true
	return nil
}

func (s *ChatService) loadSSMParams(ctx context.Context) (supportContext, model string, err error) {
	supportContext, err = paramstore.GetUnder(ctx, s.params, s.paramPrefix, "support_context")
	if err != nil {
		return "", "", fmt.Errorf("usecase: load support context: %w", err)
	}
	model, err = paramstore.GetUnder(ctx, s.params, s.paramPrefix, "config/openai_model")
	if err != nil {
		return "", "", fmt.Errorf("usecase: load openai model: %w", err)
	}
	return supportContext, model, nil
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}

var newUUID = func() string {
	return uuid.NewString()
}
