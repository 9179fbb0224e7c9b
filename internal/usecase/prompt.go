package usecase

import (
	"strings"
	"unicode/utf8"

	"support-agent/internal/domain"
	"support-agent/internal/persona"
)

const (
	maxSubjectLen     = 80
	truncationMarker  = "..."
	ticketSourceTag   = "support-chat"
	escalationMessage = "It sounds like that suggestion didn't solve the problem - I'm sorry about that. " +
		"Would you like me to escalate this conversation to our support team? " +
		"A specialist will pick it up with the full history and follow up with you directly."
)

// buildPromptMessages assembles the fixed three-part instruction stack for
// the completion collaborator: global platform context, persona behavior
// specification, then the user message. Order is part of the contract.
func buildPromptMessages(globalContext string, p persona.Persona, message string) []domain.ChatMessage {
	return []domain.ChatMessage{
		{Role: "system", Content: normalizePromptInput(globalContext)},
		{Role: "system", Content: persona.SystemPrompt(p)},
		{Role: "user", Content: message},
	}
}

func normalizePromptInput(s string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(s)), " ")
}

// ticketSubject derives a ticket subject from the first user message,
// truncating long messages and appending a marker so the cut is visible.
func ticketSubject(message string) string {
	message = strings.TrimSpace(message)
	if utf8.RuneCountInString(message) <= maxSubjectLen {
		return message
	}
	runes := []rune(message)
	return strings.TrimSpace(string(runes[:maxSubjectLen])) + truncationMarker
}
