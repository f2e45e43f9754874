// Package script generates what the assistant says on a booking call.
package script

import (
	"context"
	"fmt"
	"strings"

	"github.com/zulandar/dialbook/internal/dialogue"
	"github.com/zulandar/dialbook/internal/llm"
	"go.uber.org/zap"
)

// GeneratorOpts holds parameters for creating a Generator.
type GeneratorOpts struct {
	Registry *dialogue.Registry
	Provider llm.Provider
	Logger   *zap.Logger
	// TurnURL is the action address placed on every listening payload.
	TurnURL string
}

// Generator produces opening, follow-up and closing turns.
type Generator struct {
	registry *dialogue.Registry
	provider llm.Provider
	logger   *zap.Logger
	turnURL  string
}

// NewGenerator creates a Generator.
func NewGenerator(opts GeneratorOpts) (*Generator, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("script: registry is required")
	}
	if opts.Provider == nil {
		return nil, fmt.Errorf("script: dialogue provider is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		registry: opts.Registry,
		provider: opts.Provider,
		logger:   logger,
		turnURL:  opts.TurnURL,
	}, nil
}

// OpeningTurn introduces the call and asks a yes/no question about the
// requested slot.
func (g *Generator) OpeningTurn(bctx dialogue.BookingContext) Payload {
	lang := dialogue.NormalizeLanguage(bctx.Language)
	what := dialogue.DescribeCategory(bctx.Category, lang)
	when := dialogue.DescribeTime(bctx.Preference, lang)
	details := dialogue.DescribeDetails(bctx.Category, bctx.Details, lang)

	var say string
	if lang == dialogue.LanguageGerman {
		say = fmt.Sprintf("Guten Tag, hier ist ein automatischer Assistent im Auftrag eines Kunden. "+
			"Ich möchte gerne bei %s %s vereinbaren", bctx.ProviderName, what)
		if details != "" {
			say += ", " + details
		}
		say += fmt.Sprintf(", und zwar %s. Wäre das möglich? Bitte antworten Sie mit ja oder nein.", when)
	} else {
		say = fmt.Sprintf("Hello, this is an automated assistant calling on behalf of a client. "+
			"I would like to make %s with %s", what, bctx.ProviderName)
		if details != "" {
			say += ", " + details
		}
		say += fmt.Sprintf(", for %s. Would that be possible? Please answer yes or no.", when)
	}

	return Payload{Say: say, Listen: true, Language: lang, ActionURL: g.turnURL}
}

// NextTurn records the counterparty's utterance, asks the dialogue provider
// for a reply and records that too. concluded is true when the reply says
// goodbye, or when the provider failed and the fallback ends the call.
func (g *Generator) NextTurn(ctx context.Context, callID string, utterance *string) (Payload, bool, error) {
	if utterance != nil && strings.TrimSpace(*utterance) != "" {
		if err := g.registry.AppendTurn(callID, dialogue.RoleCounterparty, strings.TrimSpace(*utterance)); err != nil {
			return Payload{}, false, fmt.Errorf("script: next turn: %w", err)
		}
	}
	snap, ok := g.registry.Get(callID)
	if !ok {
		return Payload{}, false, fmt.Errorf("script: next turn %s: %w", callID, dialogue.ErrSessionNotFound)
	}
	lang := dialogue.NormalizeLanguage(snap.Context.Language)

	reply, err := g.provider.Respond(ctx, snap.Context, snap.Turns)
	reply = strings.TrimSpace(reply)
	if err != nil || reply == "" {
		if err == nil {
			err = fmt.Errorf("empty reply")
		}
		g.logger.Warn("dialogue provider failed, ending call with fallback",
			zap.String("call_id", callID), zap.Error(err))
		p := Fallback(lang)
		if appendErr := g.registry.AppendTurn(callID, dialogue.RoleAssistant, p.Say); appendErr != nil {
			return Payload{}, false, fmt.Errorf("script: next turn: %w", appendErr)
		}
		return p, true, nil
	}

	if err := g.registry.AppendTurn(callID, dialogue.RoleAssistant, reply); err != nil {
		return Payload{}, false, fmt.Errorf("script: next turn: %w", err)
	}

	concluded := HasClosingMarker(reply, lang)
	return Payload{
		Say:       reply,
		Listen:    !concluded,
		Hangup:    concluded,
		Language:  lang,
		ActionURL: g.turnURL,
	}, concluded, nil
}

// Fallback is the static apology used when the dialogue provider is down.
func Fallback(language string) Payload {
	lang := dialogue.NormalizeLanguage(language)
	say := "I am sorry, we are having technical difficulties. We will call you back shortly. Goodbye."
	if lang == dialogue.LanguageGerman {
		say = "Entschuldigung, wir haben gerade technische Schwierigkeiten. Wir rufen Sie in Kürze zurück. Auf Wiederhören."
	}
	return Payload{Say: say, Hangup: true, Language: lang}
}

// Farewell politely ends a call whose outcome is already settled.
func Farewell(language string) Payload {
	lang := dialogue.NormalizeLanguage(language)
	say := "Thank you for your time. Goodbye."
	if lang == dialogue.LanguageGerman {
		say = "Vielen Dank für Ihre Zeit. Auf Wiederhören."
	}
	return Payload{Say: say, Hangup: true, Language: lang}
}
