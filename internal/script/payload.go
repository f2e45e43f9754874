package script

import (
	"github.com/twilio/twilio-go/twiml"

	"github.com/zulandar/dialbook/internal/dialogue"
)

// Payload is one spoken response to the telephony provider.
type Payload struct {
	Say       string
	Listen    bool
	Hangup    bool
	Language  string // conversation language, "en" or "de"
	ActionURL string // where recognized speech is posted
}

// fallbackMarkup is sent if rendering ever fails.
const fallbackMarkup = `<?xml version="1.0" encoding="UTF-8"?><Response><Hangup/></Response>`

// Render produces TwiML. A payload that does not hang up always wraps its
// speech in a speech Gather, posting to ActionURL even on silence, so the
// provider keeps listening.
func (p Payload) Render() string {
	lang := sayLanguage(p.Language)
	say := &twiml.VoiceSay{Message: p.Say, Language: lang}

	var verbs []twiml.Element
	if p.Hangup {
		if p.Say != "" {
			verbs = append(verbs, say)
		}
		verbs = append(verbs, &twiml.VoiceHangup{})
	} else {
		verbs = append(verbs, &twiml.VoiceGather{
			Input:               "speech",
			Action:              p.ActionURL,
			Method:              "POST",
			Language:            lang,
			SpeechTimeout:       "auto",
			ActionOnEmptyResult: "true",
			InnerElements:       []twiml.Element{say},
		})
	}

	out, err := twiml.Voice(verbs)
	if err != nil {
		return fallbackMarkup
	}
	return out
}

func sayLanguage(lang string) string {
	if dialogue.NormalizeLanguage(lang) == dialogue.LanguageGerman {
		return "de-DE"
	}
	return "en-US"
}
