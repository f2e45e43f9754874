// Package llm binds the dialogue to a language model.
package llm

import (
	"context"

	"github.com/zulandar/dialbook/internal/dialogue"
)

// Provider produces the next assistant utterance for a call.
type Provider interface {
	Respond(ctx context.Context, bctx dialogue.BookingContext, history []dialogue.Turn) (string, error)
}

// Classifier decides the outcome of a concluded call. It is optional; the
// orchestrator falls back to keyword matching when it errors.
type Classifier interface {
	Classify(ctx context.Context, bctx dialogue.BookingContext, history []dialogue.Turn) (dialogue.Outcome, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, bctx dialogue.BookingContext, history []dialogue.Turn) (string, error)

func (f ProviderFunc) Respond(ctx context.Context, bctx dialogue.BookingContext, history []dialogue.Turn) (string, error) {
	return f(ctx, bctx, history)
}
