// Package dialogue keeps the in-memory conversation state of live calls.
package dialogue

import (
	"fmt"
	"strings"
	"time"

	"github.com/zulandar/dialbook/internal/models"
)

// Role tags who spoke a turn.
type Role string

const (
	RoleSystem       Role = "system"
	RoleAssistant    Role = "assistant"
	RoleCounterparty Role = "counterparty"
)

// Turn is one utterance in a call transcript.
type Turn struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// BookingContext is the copy of a booking request a session works from.
type BookingContext struct {
	RequestID     string                        `json:"request_id"`
	OwnerID       string                        `json:"owner_id"`
	Category      string                        `json:"category"`
	ProviderName  string                        `json:"provider_name"`
	ProviderPhone string                        `json:"provider_phone"`
	Preference    models.AvailabilityPreference `json:"preference"`
	Details       models.BookingDetails         `json:"details"`
	Language      string                        `json:"language"`
}

// ContextFromRequest builds the session context for req.
func ContextFromRequest(req *models.BookingRequest, language string) BookingContext {
	return BookingContext{
		RequestID:     req.ID,
		OwnerID:       req.OwnerID,
		Category:      req.Category,
		ProviderName:  req.ProviderName,
		ProviderPhone: req.ProviderPhone,
		Preference:    req.Preference,
		Details:       req.Details,
		Language:      language,
	}
}

// Snapshot is a point-in-time copy of a session. Mutating it does not
// affect the registry.
type Snapshot struct {
	CallID       string         `json:"call_id"`
	Context      BookingContext `json:"context"`
	Turns        []Turn         `json:"turns"`
	Terminated   bool           `json:"terminated"`
	CreatedAt    time.Time      `json:"created_at"`
	LastActivity time.Time      `json:"last_activity"`
	LastToken    string         `json:"last_token,omitempty"`
	LastPayload  string         `json:"last_payload,omitempty"`
}

// Transcript renders the turns as "role: text" lines, skipping system turns.
func (s Snapshot) Transcript() string {
	var b strings.Builder
	for _, t := range s.Turns {
		if t.Role == RoleSystem {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s", t.Role, t.Text)
	}
	return b.String()
}

// TextsFromEnd returns the texts of turns spoken by role, most recent first.
func (s Snapshot) TextsFromEnd(role Role) []string {
	var out []string
	for i := len(s.Turns) - 1; i >= 0; i-- {
		if s.Turns[i].Role == role {
			out = append(out, s.Turns[i].Text)
		}
	}
	return out
}

// LastTurn returns the most recent turn spoken by role.
func (s Snapshot) LastTurn(role Role) (Turn, bool) {
	for i := len(s.Turns) - 1; i >= 0; i-- {
		if s.Turns[i].Role == role {
			return s.Turns[i], true
		}
	}
	return Turn{}, false
}

func (s Snapshot) clone() Snapshot {
	s.Turns = append([]Turn(nil), s.Turns...)
	return s
}
