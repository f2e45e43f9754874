package orchestrator

import (
	"regexp"
	"strings"

	"github.com/zulandar/dialbook/internal/dialogue"
)

// Phrases are matched case-insensitively on word boundaries. Within one
// clause reschedule beats negative beats affirmative.
var (
	rescheduleWords = []string{
		"another day", "another time", "different day", "different time", "other day",
		"instead", "how about", "what about", "reschedule",
		"anderen tag", "andere zeit", "anderen termin", "stattdessen", "wie wäre es", "verschieben",
	}
	negativeWords = []string{
		"no", "nope", "not possible", "cannot", "can't", "unfortunately", "fully booked",
		"no availability", "closed", "taken",
		"nein", "leider", "ausgebucht", "nicht möglich", "geht nicht", "keine zeit", "geschlossen", "vergeben",
	}
	affirmativeWords = []string{
		"yes", "yeah", "sure", "okay", "ok", "fine", "works", "perfect", "sounds good",
		"of course", "possible", "available", "booked",
		"ja", "gerne", "passt", "geht", "in ordnung", "einverstanden", "klar", "natürlich", "möglich",
	}
	// Idioms that contain a negative word but agree.
	agreeingIdioms = []string{"no problem", "not a problem", "no worries", "kein problem", "kein thema"}

	// An assistant line carrying one of these, and no regret, commits the booking.
	closingAffirmative = []string{"confirmed", "see you", "booked", "bestätigt", "bis dann", "eingetragen"}
	closingNegative    = []string{"i understand", "schade"}
)

// contrast splits an utterance into clauses; the clause after the last
// contrast word carries the speaker's final position.
var contrast = regexp.MustCompile(`(?i)\b(but|however|aber|jedoch|allerdings)\b`)

// ClassifyTranscript is the keyword baseline for a concluded call.
//
// The latest assistant line that confirms the booking settles everything
// said before it. After that line only a renewed agreement or a reschedule
// request counts; a negative there is a courtesy ("No, that's all") and is
// ignored. Without a confirmation the counterparty's utterances are read
// from the last one back and the first signal wins, then the assistant's
// closing line decides.
func ClassifyTranscript(snap dialogue.Snapshot) dialogue.Outcome {
	confirmedAt := -1
	for i := len(snap.Turns) - 1; i >= 0; i-- {
		if t := snap.Turns[i]; t.Role == dialogue.RoleAssistant && assistantConfirms(t.Text) {
			confirmedAt = i
			break
		}
	}

	for i := len(snap.Turns) - 1; i >= 0; i-- {
		if i == confirmedAt {
			return dialogue.OutcomeAffirmative
		}
		t := snap.Turns[i]
		if t.Role != dialogue.RoleCounterparty {
			continue
		}
		out := classifyUtterance(t.Text)
		if out == dialogue.OutcomeUnclear || (out == dialogue.OutcomeNegative && confirmedAt >= 0) {
			continue
		}
		return out
	}

	if last, ok := snap.LastTurn(dialogue.RoleAssistant); ok &&
		dialogue.ContainsAnyPhrase(normalize(last.Text), closingNegative) {
		return dialogue.OutcomeNegative
	}
	return dialogue.OutcomeUnclear
}

// assistantConfirms reports whether an assistant line states the booking as
// made. "fully booked" and similar regrets do not count.
func assistantConfirms(text string) bool {
	s := normalize(text)
	return dialogue.ContainsAnyPhrase(s, closingAffirmative) &&
		!dialogue.ContainsAnyPhrase(s, closingNegative) &&
		!dialogue.ContainsAnyPhrase(s, negativeWords)
}

// classifyUtterance scores the last clause first, so "nine is taken, but ten
// works" agrees. A last clause without a signal defers to the whole text.
func classifyUtterance(text string) dialogue.Outcome {
	s := normalize(text)
	if locs := contrast.FindAllStringIndex(s, -1); len(locs) > 0 {
		if out := classifyClause(s[locs[len(locs)-1][1]:]); out != dialogue.OutcomeUnclear {
			return out
		}
	}
	return classifyClause(s)
}

func classifyClause(s string) dialogue.Outcome {
	switch {
	case dialogue.ContainsAnyPhrase(s, rescheduleWords):
		return dialogue.OutcomeReschedule
	case dialogue.ContainsAnyPhrase(s, negativeWords):
		return dialogue.OutcomeNegative
	case dialogue.ContainsAnyPhrase(s, affirmativeWords):
		return dialogue.OutcomeAffirmative
	}
	return dialogue.OutcomeUnclear
}

// normalize lower-cases s and rewrites agreeing idioms to "okay".
func normalize(text string) string {
	s := strings.ToLower(text)
	for _, idiom := range agreeingIdioms {
		s = strings.ReplaceAll(s, idiom, "okay")
	}
	return s
}
