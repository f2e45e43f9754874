package llm

import (
	"fmt"
	"strings"

	"github.com/zulandar/dialbook/internal/dialogue"
)

// Farewell phrases the model is told to end a finished call with. The
// script generator's closing markers include them.
const (
	farewellEnglish = "Goodbye."
	farewellGerman  = "Auf Wiederhören."
)

// SystemPrompt builds the instruction that frames the model as the caller.
func SystemPrompt(bctx dialogue.BookingContext) string {
	lang := dialogue.NormalizeLanguage(bctx.Language)
	var b strings.Builder

	if lang == dialogue.LanguageGerman {
		fmt.Fprintf(&b, "Du bist ein freundlicher Telefonassistent und rufst %s an, um %s zu vereinbaren.\n",
			bctx.ProviderName, dialogue.DescribeCategory(bctx.Category, lang))
		fmt.Fprintf(&b, "Gewünschte Zeit: %s.\n", dialogue.DescribeTime(bctx.Preference, lang))
		if d := dialogue.DescribeDetails(bctx.Category, bctx.Details, lang); d != "" {
			fmt.Fprintf(&b, "Details: %s.\n", d)
		}
		if bctx.Preference.Notes != "" {
			fmt.Fprintf(&b, "Hinweise des Kunden: %s\n", bctx.Preference.Notes)
		}
		b.WriteString("Sprich ausschließlich Deutsch, in kurzen Sätzen, die vorgelesen werden.\n")
		b.WriteString("Nenne bei einer Zusage immer Datum und Uhrzeit ausdrücklich.\n")
		fmt.Fprintf(&b, "Wenn das Gespräch beendet ist, ob mit Termin oder ohne, beende deine Antwort mit %q.", farewellGerman)
		return b.String()
	}

	fmt.Fprintf(&b, "You are a polite phone assistant calling %s to arrange %s on behalf of a client.\n",
		bctx.ProviderName, dialogue.DescribeCategory(bctx.Category, lang))
	fmt.Fprintf(&b, "Requested time: %s.\n", dialogue.DescribeTime(bctx.Preference, lang))
	if d := dialogue.DescribeDetails(bctx.Category, bctx.Details, lang); d != "" {
		fmt.Fprintf(&b, "Details: %s.\n", d)
	}
	if bctx.Preference.Notes != "" {
		fmt.Fprintf(&b, "Client notes: %s\n", bctx.Preference.Notes)
	}
	b.WriteString("Speak English only, in short sentences that will be read aloud.\n")
	b.WriteString("When a slot is agreed, always repeat the exact date and time.\n")
	fmt.Fprintf(&b, "When the conversation is over, with or without an appointment, end your reply with %q.", farewellEnglish)
	return b.String()
}

// classifyPrompt asks for a one-word outcome label.
func classifyPrompt(transcript string) string {
	return "Here is the transcript of a phone call in which an assistant tried to book an appointment.\n\n" +
		transcript +
		"\n\nDid the called party agree to a specific appointment? Answer with exactly one word: " +
		"affirmative (an appointment was agreed), negative (declined), reschedule (they asked to call " +
		"back or proposed discussing another time without agreeing), or unclear."
}
