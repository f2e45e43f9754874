package script

import (
	"strings"

	"github.com/zulandar/dialbook/internal/dialogue"
)

// closingMarkers are farewell phrases that end a call, per language.
var closingMarkers = map[string][]string{
	dialogue.LanguageEnglish: {"goodbye", "good bye", "bye bye", "have a nice day", "have a great day", "talk to you soon"},
	dialogue.LanguageGerman:  {"auf wiederhören", "auf wiederhoeren", "auf wiedersehen", "tschüss", "schönen tag noch", "einen schönen tag"},
}

// HasClosingMarker reports whether utterance contains a farewell phrase in
// lang, or in English, which models fall back to.
func HasClosingMarker(utterance, lang string) bool {
	s := strings.ToLower(utterance)
	langs := []string{dialogue.NormalizeLanguage(lang)}
	if langs[0] != dialogue.LanguageEnglish {
		langs = append(langs, dialogue.LanguageEnglish)
	}
	for _, l := range langs {
		for _, m := range closingMarkers[l] {
			if strings.Contains(s, m) {
				return true
			}
		}
	}
	return false
}
