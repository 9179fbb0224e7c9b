package persona

import (
	"fmt"
	"strings"

	"support-agent/internal/intent"
)

// Registry is the immutable process-wide persona catalog. Built once at
// startup; lookups are read-only and safe for concurrent use.
type Registry struct {
	byID  map[string]Persona
	order []string
}

// NewRegistry builds the registry from the seeded catalog.
func NewRegistry() *Registry {
	items := seed()
	r := &Registry{byID: make(map[string]Persona, len(items))}
	for _, p := range items {
		r.byID[p.ID] = p
		r.order = append(r.order, p.ID)
	}
	return r
}

// Get returns the persona for id, reporting whether it exists.
func (r *Registry) Get(id string) (Persona, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// List returns all persona ids in catalog order.
func (r *Registry) List() []string {
	return append([]string(nil), r.order...)
}

// intentPersona maps every intent category to exactly one persona id. The
// mapping is total by construction and verified in tests; changing triggers
// or adding personas must not require touching the other side.
var intentPersona = map[intent.Category]string{
	intent.General:   GeneralConcierge,
	intent.Technical: TechTriage,
	intent.Billing:   BillingDesk,
	intent.Recruiter: TalentLiaison,
	intent.Emotional: WellbeingCoach,
}

// ForIntent resolves an intent category to its persona id. Unrecognized
// categories resolve to the general persona so the function stays total.
func ForIntent(cat intent.Category) string {
	if id, ok := intentPersona[cat]; ok {
		return id
	}
	return GeneralConcierge
}

// SystemPrompt renders the persona behavior specification as the second
// system message of the completion instruction stack.
func SystemPrompt(p Persona) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, %s. You respond best to: %s.\n", p.Name, p.Role, strings.Join(p.BestFor, ", "))

	b.WriteString("\nTone:\n")
	for _, rule := range p.Behavior.ToneRules {
		b.WriteString("- " + rule + "\n")
	}
	b.WriteString("\nAlways:\n")
	for _, rule := range p.Behavior.Do {
		b.WriteString("- " + rule + "\n")
	}
	b.WriteString("\nNever:\n")
	for _, rule := range p.Behavior.Dont {
		b.WriteString("- " + rule + "\n")
	}

	b.WriteString("\nIf the user indicates a previous suggestion failed, offer to escalate using one of:\n")
	for i, script := range p.Behavior.EscalationScripts {
		fmt.Fprintf(&b, "%d) %s\n", i+1, script)
	}

	b.WriteString("\nWhen the conversation is resolved, close with one of:\n")
	for _, script := range p.Behavior.ClosingScripts {
		b.WriteString("- " + script + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
