package domain

// Session is the externally addressable conversation record. BoundPersonaID
// and TicketID are write-once: both are only ever set through conditional
// writes keyed on the conversation id.
type Session struct {
	PK             string
	SK             string
	ConversationID string
	BoundPersonaID string
	Intent         string
	TicketID       string
	LastActivity   string
	Turns          int
	TTL            int64
}

// Message is a single persisted conversation turn.
type Message struct {
	PK             string `dynamodbav:"PK"`
	SK             string `dynamodbav:"SK"`
	ConversationID string `dynamodbav:"conversationId"`
	Role           string `dynamodbav:"role"`
	Text           string `dynamodbav:"text"`
	// Intent is set only on the first user message of a conversation, where
	// classification produced the persona binding.
	Intent    string `dynamodbav:"intent,omitempty"`
	CreatedAt string `dynamodbav:"createdAt"`
	TTL       int64  `dynamodbav:"ttl"`
}

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Ticket is the record handed to the ticketing collaborator after the first
// successful exchange of a conversation. Never mutated once created.
type Ticket struct {
	ID             string
	ConversationID string
	Subject        string
	InitialMessage string
	PersonaID      string
	Intent         string
	Source         string
	CreatedAt      string
}
