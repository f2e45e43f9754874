// Package telephony places outbound calls and decodes the provider's
// webhook callbacks.
package telephony

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// CallRequest describes one outbound call.
type CallRequest struct {
	To   string
	From string
	// Markup is the rendered opening payload executed when the call connects.
	Markup string
	// TurnURL receives each gathered utterance.
	TurnURL string
	// StatusCallbackURL receives call lifecycle events.
	StatusCallbackURL string
}

// Provider places calls and returns the provider's call id.
type Provider interface {
	PlaceCall(ctx context.Context, req CallRequest) (string, error)
}

// Paced wraps a Provider so that at most perMinute calls are placed each
// minute. A non-positive perMinute returns p unchanged.
func Paced(p Provider, perMinute int) Provider {
	if perMinute <= 0 {
		return p
	}
	return &pacedProvider{
		next:    p,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
	}
}

type pacedProvider struct {
	next    Provider
	limiter *rate.Limiter
}

func (p *pacedProvider) PlaceCall(ctx context.Context, req CallRequest) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("telephony: pace call: %w", err)
	}
	return p.next.PlaceCall(ctx, req)
}
