package intent

import "strings"

// escalationTriggers are failure acknowledgments: the user is telling us a
// previously suggested fix did not work. Matched as case-insensitive
// substrings, same rule as the classifier tables.
var escalationTriggers = []string{
	"didn't work",
	"didnt work",
	"did not work",
	"didn't fix",
	"didnt fix",
	"did not fix",
	"doesn't work",
	"doesnt work",
	"does not work",
	"still not working",
	"still doesn't work",
	"still broken",
	"still happening",
	"same issue",
	"same problem",
	"same error",
	"no change",
	"not fixed",
	"that failed",
}

// DetectsEscalation reports whether text acknowledges a failed suggestion.
// Callers apply this only to conversations with an already-bound persona;
// there is nothing to have "not worked" on a first turn.
func DetectsEscalation(text string) bool {
	lowered := strings.ToLower(text)
	for _, phrase := range escalationTriggers {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}
	return false
}
