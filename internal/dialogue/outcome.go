package dialogue

import "strings"

// Outcome is the result of a concluded negotiation.
type Outcome string

const (
	OutcomeAffirmative Outcome = "affirmative"
	OutcomeNegative    Outcome = "negative"
	OutcomeReschedule  Outcome = "reschedule"
	OutcomeUnclear     Outcome = "unclear"
)

// ParseOutcome maps a free-form label to an Outcome. Anything unrecognized
// is unclear.
func ParseOutcome(s string) Outcome {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, ".!\"'` ")
	switch Outcome(s) {
	case OutcomeAffirmative, OutcomeNegative, OutcomeReschedule:
		return Outcome(s)
	}
	return OutcomeUnclear
}

// Agreed reports whether the outcome commits to an appointment.
func (o Outcome) Agreed() bool {
	return o == OutcomeAffirmative
}
