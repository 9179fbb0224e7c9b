package intent

import "strings"

// Category is the routing intent assigned to a conversation's first message.
type Category string

const (
	General   Category = "general"
	Technical Category = "technical"
	Billing   Category = "billing"
	Recruiter Category = "recruiter"
	Emotional Category = "emotional"
)

// Valid reports whether s names a known category.
func Valid(s string) bool {
	switch Category(s) {
	case General, Technical, Billing, Recruiter, Emotional:
		return true
	}
	return false
}

// Trigger tables are literal phrases matched as case-insensitive substrings.
// Evaluation order below is a routing policy: technical outranks billing
// outranks recruiter outranks emotional, so a login failure described in
// frustrated language still routes to technical support.
var (
	technicalTriggers = []string{
		"can't log in",
		"cant log in",
		"cannot log in",
		"can't sign in",
		"log in",
		"login",
		"password",
		"error",
		"bug",
		"broken",
		"not loading",
		"won't load",
		"crash",
		"404",
		"doesn't save",
		"won't save",
		"upload failed",
	}
	billingTriggers = []string{
		"billing",
		"invoice",
		"refund",
		"charge",
		"charged",
		"payment",
		"subscription",
		"cancel my plan",
		"upgrade",
		"downgrade",
		"price",
		"pricing",
		"cost",
		"pro plan",
		"free plan",
	}
	recruiterTriggers = []string{
		"recruiter",
		"recruiting",
		"hiring",
		"candidate",
		"job posting",
		"job post",
		"applicant",
		"talent pool",
		"interview request",
	}
	emotionalTriggers = []string{
		"frustrated",
		"frustrating",
		"stressed",
		"stressful",
		"overwhelmed",
		"anxious",
		"giving up",
		"give up",
		"hopeless",
		"discouraged",
		"losing hope",
		"burned out",
		"burnt out",
	}
)

// categoryOrder fixes the evaluation priority. Trigger sets overlap, so the
// order is load-bearing: the first category with a hit wins.
var categoryOrder = []struct {
	cat      Category
	triggers []string
}{
	{Technical, technicalTriggers},
	{Billing, billingTriggers},
	{Recruiter, recruiterTriggers},
	{Emotional, emotionalTriggers},
}

// Classify maps a message to an intent category. Total and deterministic:
// unmatched input is General.
func Classify(text string) Category {
	lowered := strings.ToLower(text)
	for _, entry := range categoryOrder {
		for _, phrase := range entry.triggers {
			if strings.Contains(lowered, phrase) {
				return entry.cat
			}
		}
	}
	return General
}
