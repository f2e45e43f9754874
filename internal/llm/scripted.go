package llm

import (
	"context"
	"strings"

	"github.com/zulandar/dialbook/internal/dialogue"
)

// Scripted is a deterministic Provider for local runs. It confirms on a yes,
// bows out on a no, and otherwise asks once more before ending the call.
type Scripted struct {
	// MaxQuestions bounds how many times the caller asks again before giving
	// up. Defaults to 2.
	MaxQuestions int
}

var (
	scriptedYes = []string{"yes", "sure", "okay", "ok", "fine", "works", "ja", "gerne", "passt", "geht"}
	scriptedNo  = []string{"no", "not possible", "fully booked", "nein", "leider nicht", "ausgebucht"}
)

func (s Scripted) Respond(_ context.Context, bctx dialogue.BookingContext, history []dialogue.Turn) (string, error) {
	de := dialogue.NormalizeLanguage(bctx.Language) == dialogue.LanguageGerman
	snap := dialogue.Snapshot{Turns: history}

	asked := len(snap.TextsFromEnd(dialogue.RoleAssistant))
	last, ok := snap.LastTurn(dialogue.RoleCounterparty)
	reply := ""
	if ok {
		reply = strings.ToLower(last.Text)
	}

	maxQ := s.MaxQuestions
	if maxQ <= 0 {
		maxQ = 2
	}

	switch {
	case dialogue.ContainsAnyPhrase(reply, scriptedNo):
		if de {
			return "Schade, trotzdem vielen Dank für Ihre Zeit. " + farewellGerman, nil
		}
		return "I understand, thank you for your time. " + farewellEnglish, nil
	case dialogue.ContainsAnyPhrase(reply, scriptedYes):
		when := dialogue.DescribeTime(bctx.Preference, bctx.Language)
		if de {
			return "Wunderbar, dann ist der Termin " + when + " bestätigt. Vielen Dank. " + farewellGerman, nil
		}
		return "Wonderful, so that is confirmed for " + when + ". Thank you very much. " + farewellEnglish, nil
	case asked >= maxQ:
		if de {
			return "Ich melde mich später noch einmal. Vielen Dank. " + farewellGerman, nil
		}
		return "I will follow up later. Thank you. " + farewellEnglish, nil
	default:
		if de {
			return "Entschuldigung, hätten Sie zu der genannten Zeit einen Termin frei? Bitte antworten Sie mit ja oder nein.", nil
		}
		return "Sorry, would the requested time work for you? Please answer yes or no.", nil
	}
}
