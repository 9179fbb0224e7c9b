package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"support-agent/internal/domain"
	"support-agent/internal/integrations/openai"
	"support-agent/internal/persona"
	"support-agent/internal/queue"
	"support-agent/internal/repository"
)

type mockParams struct {
	vals map[string]string
	err  error
}

func (m *mockParams) GetParameter(_ context.Context, name string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	v, ok := m.vals[name]
	if !ok {
		return "", fmt.Errorf("param not found: %s", name)
	}
	return v, nil
}

type mockLLM struct {
	reply     string
	err       error
	callCount int
	captured  []domain.ChatMessage
}

func (m *mockLLM) Chat(_ context.Context, _ string, msgs []domain.ChatMessage) (string, error) {
	m.callCount++
	m.captured = msgs
	return m.reply, m.err
}

type mockState struct {
	session      domain.Session
	sessionFound bool
	getErr       error
	bindErr      error
	reserveErr   error
	setTicketErr error
	saveErr      error

	boundPersonaID string
	boundIntent    string
	bindCalls      int
	reserveCalls   int
	reservation    string
	setTicketID    string
	savedUser      domain.Message
	savedAssistant domain.Message
	saveInvoked    bool
}

func (m *mockState) GetSession(_ context.Context, _ string) (domain.Session, bool, error) {
	return m.session, m.sessionFound, m.getErr
}

func (m *mockState) BindPersona(_ context.Context, conversationID, personaID, intent string) (domain.Session, error) {
	m.bindCalls++
	if m.bindErr != nil {
		return domain.Session{}, m.bindErr
	}
	if m.session.BoundPersonaID != "" {
		// Simulates a lost compare-and-set race: the stored binding wins.
		return m.session, nil
	}
	m.boundPersonaID = personaID
	m.boundIntent = intent
	return domain.Session{ConversationID: conversationID, BoundPersonaID: personaID, Intent: intent}, nil
}

func (m *mockState) ReserveTicket(_ context.Context, _ string, reservation string) error {
	m.reserveCalls++
	if m.reserveErr != nil {
		return m.reserveErr
	}
	m.reservation = reservation
	return nil
}

func (m *mockState) SetTicketID(_ context.Context, _ string, ticketID string) error {
	if m.setTicketErr != nil {
		return m.setTicketErr
	}
	m.setTicketID = ticketID
	return nil
}

func (m *mockState) SaveCompletedTurn(_ context.Context, userMsg, assistantMsg domain.Message) error {
	m.saveInvoked = true
	m.savedUser = userMsg
	m.savedAssistant = assistantMsg
	return m.saveErr
}

type mockTickets struct {
	id        string
	err       error
	callCount int
	last      domain.Ticket
}

func (m *mockTickets) CreateTicket(_ context.Context, ticket domain.Ticket) (string, error) {
	m.callCount++
	m.last = ticket
	if m.err != nil {
		return "", m.err
	}
	return m.id, nil
}

type mockRetries struct {
	err       error
	published []queue.TicketRetry
}

func (m *mockRetries) PublishTicketRetry(_ context.Context, retry queue.TicketRetry) error {
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, retry)
	return nil
}

func defaultParams() *mockParams {
	return &mockParams{
		vals: map[string]string{
			"/prefix/support_context":     "You are the support assistant for the platform.",
			"/prefix/config/openai_model": "gpt-4o-mini",
		},
	}
}

type testDeps struct {
	params  *mockParams
	llm     *mockLLM
	state   *mockState
	tickets *mockTickets
	retries *mockRetries
}

func newDeps() *testDeps {
	return &testDeps{
		params:  defaultParams(),
		llm:     &mockLLM{reply: "Here is what to try next."},
		state:   &mockState{},
		tickets: &mockTickets{id: "TICK-1"},
		retries: &mockRetries{},
	}
}

func newTestService(t *testing.T, d *testDeps) *ChatService {
	t.Helper()
	svc, err := NewChatService(d.params, d.llm, d.state, d.tickets, d.retries, persona.NewRegistry(), nil, "/prefix", 0)
	require.NoError(t, err)
	return svc
}

func expectChatError(t *testing.T, err error, code ErrorCode, reason string) {
	t.Helper()
	var usecaseErr *Error
	require.ErrorAs(t, err, &usecaseErr)
	require.Equal(t, code, usecaseErr.Code)
	require.Equal(t, reason, usecaseErr.Reason)
}

func boundSession(conversationID, personaID, intent string) domain.Session {
	return domain.Session{
		ConversationID: conversationID,
		BoundPersonaID: personaID,
		Intent:         intent,
		Turns:          1,
	}
}

func TestNewChatService_ValidatesDependencies(t *testing.T) {
	d := newDeps()
	reg := persona.NewRegistry()

	_, err := NewChatService(nil, d.llm, d.state, d.tickets, d.retries, reg, nil, "/prefix", 0)
	require.Error(t, err)

	_, err = NewChatService(d.params, nil, d.state, d.tickets, d.retries, reg, nil, "/prefix", 0)
	require.Error(t, err)

	_, err = NewChatService(d.params, d.llm, nil, d.tickets, d.retries, reg, nil, "/prefix", 0)
	require.Error(t, err)

	_, err = NewChatService(d.params, d.llm, d.state, nil, d.retries, reg, nil, "/prefix", 0)
	require.Error(t, err)

	_, err = NewChatService(d.params, d.llm, d.state, d.tickets, d.retries, nil, nil, "/prefix", 0)
	require.Error(t, err)

	_, err = NewChatService(d.params, d.llm, d.state, d.tickets, d.retries, reg, nil, " ", 0)
	require.Error(t, err)

	// nil retry publisher degrades to a no-op, not an error
	_, err = NewChatService(d.params, d.llm, d.state, d.tickets, nil, reg, nil, "/prefix", 0)
	require.NoError(t, err)
}

func TestRespond_FirstTurn_TechnicalRoutesAndCreatesTicket(t *testing.T) {
	d := newDeps()
	svc := newTestService(t, d)

	out, err := svc.Respond(context.Background(), ChatInput{Message: "I can't log in to my account"})
	require.NoError(t, err)
	require.Equal(t, "Here is what to try next.", out.Reply)
	require.Equal(t, persona.TechTriage, out.PersonaID)
	require.Equal(t, "technical", out.Intent)
	require.NotEmpty(t, out.ConversationID)

	require.Equal(t, persona.TechTriage, d.state.boundPersonaID)
	require.Equal(t, "technical", d.state.boundIntent)

	require.Equal(t, 1, d.tickets.callCount)
	require.Equal(t, "I can't log in to my account", d.tickets.last.Subject)
	require.Equal(t, "I can't log in to my account", d.tickets.last.InitialMessage)
	require.Equal(t, persona.TechTriage, d.tickets.last.PersonaID)
	require.Equal(t, "technical", d.tickets.last.Intent)
	require.Equal(t, "support-chat", d.tickets.last.Source)
	require.Equal(t, "TICK-1", d.state.setTicketID)
}

func TestRespond_FirstTurn_BillingScenario(t *testing.T) {
	d := newDeps()
	svc := newTestService(t, d)

	out, err := svc.Respond(context.Background(), ChatInput{Message: "How much does the Pro plan cost?"})
	require.NoError(t, err)
	require.Equal(t, persona.BillingDesk, out.PersonaID)
	require.Equal(t, "billing", out.Intent)
}

func TestRespond_FirstTurn_GeneralFallback(t *testing.T) {
	d := newDeps()
	svc := newTestService(t, d)

	out, err := svc.Respond(context.Background(), ChatInput{Message: "hi"})
	require.NoError(t, err)
	require.Equal(t, persona.GeneralConcierge, out.PersonaID)
	require.Equal(t, "general", out.Intent)
}

func TestRespond_PersonaImmutableAcrossTurns(t *testing.T) {
	d := newDeps()
	d.state.session = boundSession("conv-1", persona.TechTriage, "technical")
	d.state.sessionFound = true
	svc := newTestService(t, d)

	// Billing keywords on a later turn must not rebind the persona.
	out, err := svc.Respond(context.Background(), ChatInput{
		Message:        "Actually, can you explain the refund policy?",
		ConversationID: "conv-1",
		PersonaID:      persona.TechTriage,
		Intent:         "technical",
	})
	require.NoError(t, err)
	require.Equal(t, persona.TechTriage, out.PersonaID)
	require.Equal(t, "technical", out.Intent)
	require.Zero(t, d.state.bindCalls, "bound conversations must not re-run binding")
}

func TestRespond_BoundSessionWinsEvenWithoutSuppliedPersona(t *testing.T) {
	d := newDeps()
	d.state.session = boundSession("conv-1", persona.WellbeingCoach, "emotional")
	d.state.sessionFound = true
	svc := newTestService(t, d)

	out, err := svc.Respond(context.Background(), ChatInput{
		Message:        "the invoice looks wrong",
		ConversationID: "conv-1",
	})
	require.NoError(t, err)
	require.Equal(t, persona.WellbeingCoach, out.PersonaID)
	require.Equal(t, "emotional", out.Intent)
}

func TestRespond_EscalationShortCircuit(t *testing.T) {
	d := newDeps()
	d.state.session = boundSession("conv-1", persona.TechTriage, "technical")
	d.state.sessionFound = true
	svc := newTestService(t, d)

	out, err := svc.Respond(context.Background(), ChatInput{
		Message:        "this still didn't fix it",
		ConversationID: "conv-1",
		PersonaID:      persona.TechTriage,
	})
	require.NoError(t, err)
	require.Equal(t, escalationMessage, out.Reply)
	require.Equal(t, persona.TechTriage, out.PersonaID)
	require.Equal(t, "technical", out.Intent)

	require.Zero(t, d.llm.callCount, "escalation must not invoke the completion adapter")
	require.Zero(t, d.tickets.callCount, "escalation must not create a ticket")
	require.Zero(t, d.state.reserveCalls)
	require.False(t, d.state.saveInvoked, "escalation must not alter conversation state")
}

func TestRespond_EscalationAppliesWhenPersonaOmitted(t *testing.T) {
	d := newDeps()
	d.state.session = boundSession("conv-1", persona.TechTriage, "technical")
	d.state.sessionFound = true
	svc := newTestService(t, d)

	// The session binding alone decides; the caller dropping the persona id
	// must not disable escalation detection.
	out, err := svc.Respond(context.Background(), ChatInput{
		Message:        "that still didn't work",
		ConversationID: "conv-1",
	})
	require.NoError(t, err)
	require.Equal(t, escalationMessage, out.Reply)
	require.Equal(t, persona.TechTriage, out.PersonaID)
	require.Equal(t, "technical", out.Intent)
	require.Zero(t, d.llm.callCount)
	require.Zero(t, d.tickets.callCount)
	require.False(t, d.state.saveInvoked)
}

func TestRespond_EscalationIgnoredOnFirstTurn(t *testing.T) {
	d := newDeps()
	svc := newTestService(t, d)

	// Nothing has been suggested yet, so failure phrasing routes normally.
	out, err := svc.Respond(context.Background(), ChatInput{Message: "the login button still doesn't work"})
	require.NoError(t, err)
	require.Equal(t, persona.TechTriage, out.PersonaID)
	require.Equal(t, 1, d.llm.callCount)
}

func TestRespond_UnknownPersonaFallsBackToClassification(t *testing.T) {
	d := newDeps()
	svc := newTestService(t, d)

	out, err := svc.Respond(context.Background(), ChatInput{
		Message:   "hi",
		PersonaID: "does-not-exist",
	})
	require.NoError(t, err)
	require.Equal(t, persona.GeneralConcierge, out.PersonaID)
	require.Equal(t, "general", out.Intent)
	require.Equal(t, 1, d.state.bindCalls)
	require.Equal(t, 1, d.tickets.callCount, "fallback behaves exactly like an unsupplied persona")
}

func TestRespond_SuppliedValidPersonaOnUnboundSession(t *testing.T) {
	d := newDeps()
	svc := newTestService(t, d)

	out, err := svc.Respond(context.Background(), ChatInput{
		Message:        "hello again",
		ConversationID: "conv-1",
		PersonaID:      persona.BillingDesk,
		Intent:         "billing",
	})
	require.NoError(t, err)
	require.Equal(t, persona.BillingDesk, out.PersonaID)
	require.Equal(t, "billing", out.Intent)
	require.Equal(t, persona.BillingDesk, d.state.boundPersonaID)
	require.Zero(t, d.tickets.callCount, "caller-supplied personas are not first turns")
}

func TestRespond_ValidationErrors(t *testing.T) {
	d := newDeps()
	svc := newTestService(t, d)

	_, err := svc.Respond(context.Background(), ChatInput{Message: ""})
	expectChatError(t, err, ErrorInvalidInput, "empty_message")

	_, err = svc.Respond(context.Background(), ChatInput{Message: "   "})
	expectChatError(t, err, ErrorInvalidInput, "empty_message")

	_, err = svc.Respond(context.Background(), ChatInput{Message: strings.Repeat("a", defaultMaxMessageLen+1)})
	expectChatError(t, err, ErrorInvalidInput, "message_too_long")

	require.Zero(t, d.llm.callCount)
	require.Zero(t, d.state.bindCalls)
	require.Zero(t, d.tickets.callCount)
	require.False(t, d.state.saveInvoked)
}

func TestRespond_TicketIdempotentUnderRetry(t *testing.T) {
	d := newDeps()
	svc := newTestService(t, d)

	_, err := svc.Respond(context.Background(), ChatInput{Message: "I can't log in", ConversationID: "conv-1"})
	require.NoError(t, err)
	require.Equal(t, 1, d.tickets.callCount)

	// Same conversation retried: the reservation CAS refuses a second ticket.
	d.state.reserveErr = repository.ErrTicketExists
	_, err = svc.Respond(context.Background(), ChatInput{Message: "I can't log in", ConversationID: "conv-1"})
	require.NoError(t, err)
	require.Equal(t, 1, d.tickets.callCount, "retried first turn must not create a second ticket")
}

func TestRespond_TicketFailureDoesNotFailReply(t *testing.T) {
	d := newDeps()
	d.tickets.err = errors.New("ticketing down")
	svc := newTestService(t, d)

	out, err := svc.Respond(context.Background(), ChatInput{Message: "I can't log in"})
	require.NoError(t, err)
	require.Equal(t, "Here is what to try next.", out.Reply)

	require.Len(t, d.retries.published, 1)
	require.Equal(t, out.ConversationID, d.retries.published[0].ConversationID)
	require.Equal(t, "support-chat", d.retries.published[0].Source)
	require.NotEmpty(t, d.retries.published[0].Reservation)
}

func TestRespond_TicketRetryPublishFailureStillReturnsReply(t *testing.T) {
	d := newDeps()
	d.tickets.err = errors.New("ticketing down")
	d.retries.err = errors.New("sqs down")
	svc := newTestService(t, d)

	out, err := svc.Respond(context.Background(), ChatInput{Message: "I can't log in"})
	require.NoError(t, err)
	require.NotEmpty(t, out.Reply)
}

func TestRespond_TicketReservationErrorStillReturnsReply(t *testing.T) {
	d := newDeps()
	d.state.reserveErr = errors.New("dynamodb throttled")
	svc := newTestService(t, d)

	out, err := svc.Respond(context.Background(), ChatInput{Message: "I can't log in"})
	require.NoError(t, err)
	require.NotEmpty(t, out.Reply)
	require.Zero(t, d.tickets.callCount, "no ticket call without a reservation")
}

func TestRespond_SubjectTruncation(t *testing.T) {
	d := newDeps()
	svc := newTestService(t, d)

	long := "I can't log in and " + strings.Repeat("it keeps failing ", 20)
	_, err := svc.Respond(context.Background(), ChatInput{Message: long})
	require.NoError(t, err)
	require.Equal(t, 1, d.tickets.callCount)
	require.True(t, strings.HasSuffix(d.tickets.last.Subject, truncationMarker))
	require.LessOrEqual(t, len(d.tickets.last.Subject), maxSubjectLen+len(truncationMarker))
	require.Equal(t, strings.TrimSpace(long), d.tickets.last.InitialMessage, "initial message stays verbatim")
}

func TestRespond_UpstreamErrors(t *testing.T) {
	d := newDeps()
	d.llm.err = &openai.HTTPStatusError{StatusCode: http.StatusInternalServerError}
	svc := newTestService(t, d)

	_, err := svc.Respond(context.Background(), ChatInput{Message: "I can't log in"})
	expectChatError(t, err, ErrorUpstream, "completion_error")
	require.Zero(t, d.tickets.callCount, "no ticket without a successful reply")
	require.False(t, d.state.saveInvoked)

	d = newDeps()
	d.llm.err = &openai.HTTPStatusError{StatusCode: http.StatusTooManyRequests}
	svc = newTestService(t, d)

	_, err = svc.Respond(context.Background(), ChatInput{Message: "I can't log in"})
	expectChatError(t, err, ErrorRateLimited, "completion_rate_limited")
}

func TestRespond_SSMLoadError(t *testing.T) {
	d := newDeps()
	d.params.err = errors.New("ssm unavailable")
	svc := newTestService(t, d)

	_, err := svc.Respond(context.Background(), ChatInput{Message: "hi"})
	expectChatError(t, err, ErrorInternal, "ssm_load_error")
}

func TestRespond_SSMLoadError_IsRetriedOnNextRequest(t *testing.T) {
	d := newDeps()
	d.params.err = errors.New("temporary ssm failure")
	svc := newTestService(t, d)

	_, err := svc.Respond(context.Background(), ChatInput{Message: "hi"})
	expectChatError(t, err, ErrorInternal, "ssm_load_error")

	d.params.err = nil
	out, err := svc.Respond(context.Background(), ChatInput{Message: "hi"})
	require.NoError(t, err)
	require.NotEmpty(t, out.Reply)
}

func TestRespond_StateErrors(t *testing.T) {
	d := newDeps()
	d.state.getErr = errors.New("dynamodb down")
	svc := newTestService(t, d)
	_, err := svc.Respond(context.Background(), ChatInput{Message: "hi", ConversationID: "conv-1"})
	expectChatError(t, err, ErrorInternal, "session_read_error")

	d = newDeps()
	d.state.bindErr = errors.New("bind failed")
	svc = newTestService(t, d)
	_, err = svc.Respond(context.Background(), ChatInput{Message: "hi"})
	expectChatError(t, err, ErrorInternal, "persona_bind_error")

	d = newDeps()
	d.state.saveErr = errors.New("write failed")
	svc = newTestService(t, d)
	_, err = svc.Respond(context.Background(), ChatInput{Message: "hi"})
	expectChatError(t, err, ErrorInternal, "session_write_error")
}

func TestRespond_MissingConversationID_GeneratesID(t *testing.T) {
	d := newDeps()
	svc := newTestService(t, d)

	out, err := svc.Respond(context.Background(), ChatInput{Message: "hi"})
	require.NoError(t, err)
	require.NotEmpty(t, out.ConversationID)
}

func TestRespond_PromptStackOrderAndContent(t *testing.T) {
	d := newDeps()
	svc := newTestService(t, d)

	_, err := svc.Respond(context.Background(), ChatInput{Message: "I can't log in to my account"})
	require.NoError(t, err)
	require.Len(t, d.llm.captured, 3)
	require.Equal(t, "system", d.llm.captured[0].Role)
	require.Contains(t, d.llm.captured[0].Content, "support assistant")
	require.Equal(t, "system", d.llm.captured[1].Role)
	require.Contains(t, d.llm.captured[1].Content, "Sam")
	require.Equal(t, "user", d.llm.captured[2].Role)
	require.Equal(t, "I can't log in to my account", d.llm.captured[2].Content)
}

func TestRespond_FirstMessageCarriesClassifiedIntent(t *testing.T) {
	d := newDeps()
	svc := newTestService(t, d)

	_, err := svc.Respond(context.Background(), ChatInput{Message: "I can't log in"})
	require.NoError(t, err)
	require.True(t, d.state.saveInvoked)
	require.Equal(t, domain.RoleUser, d.state.savedUser.Role)
	require.Equal(t, "technical", d.state.savedUser.Intent)
	require.Equal(t, domain.RoleAssistant, d.state.savedAssistant.Role)
	require.Empty(t, d.state.savedAssistant.Intent)
}

func TestTicketSubject(t *testing.T) {
	require.Equal(t, "short message", ticketSubject("short message"))

	long := strings.Repeat("x", maxSubjectLen+40)
	subject := ticketSubject(long)
	require.True(t, strings.HasSuffix(subject, truncationMarker))
	require.Equal(t, maxSubjectLen+len(truncationMarker), len(subject))

	exact := strings.Repeat("y", maxSubjectLen)
	require.Equal(t, exact, ticketSubject(exact))
}
