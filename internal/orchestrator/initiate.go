package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/zulandar/dialbook/internal/booking"
	"github.com/zulandar/dialbook/internal/dialogue"
	"github.com/zulandar/dialbook/internal/models"
	"github.com/zulandar/dialbook/internal/telephony"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Initiate places the call for a Pending request and moves it to Calling.
// When the telephony provider fails the request stays Pending and the error
// wraps ErrProviderUnavailable.
func (o *Orchestrator) Initiate(ctx context.Context, requestID string) (_ *models.BookingRequest, err error) {
	ctx, span := startSpan(ctx, "orchestrator.Initiate", attribute.String("booking_id", requestID))
	defer func() { endSpan(span, err) }()

	req, err := o.bookings.GetByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: initiate: %w", err)
	}
	if req.Status != models.StatusPending {
		return nil, fmt.Errorf("orchestrator: initiate %s in status %q: %w", requestID, req.Status, booking.ErrInvalidTransition)
	}

	bctx := dialogue.ContextFromRequest(req, o.language)
	opening := o.script.OpeningTurn(bctx)

	callID, err := o.telephony.PlaceCall(ctx, telephony.CallRequest{
		To:                req.ProviderPhone,
		From:              o.from,
		Markup:            opening.Render(),
		TurnURL:           o.turnURL,
		StatusCallbackURL: o.statusURL,
	})
	if err != nil {
		o.logger.Warn("call placement failed, request stays pending",
			zap.String("booking_id", requestID), zap.Error(err))
		return nil, fmt.Errorf("orchestrator: initiate %s: %w: %w", requestID, ErrProviderUnavailable, err)
	}
	span.SetAttributes(attribute.String("call_id", callID))

	// Hold the call lock until the request records the call id, so an early
	// webhook waits for the session instead of finding nothing.
	unlock := o.registry.Lock(callID)
	defer unlock()

	o.registry.GetOrCreate(callID, bctx)
	if err := o.registry.AppendTurn(callID, dialogue.RoleAssistant, opening.Say); err != nil {
		return nil, fmt.Errorf("orchestrator: initiate %s: %w", requestID, err)
	}

	updated, err := o.bookings.TransitionTo(ctx, requestID, models.StatusCalling, booking.TransitionOpts{CallID: callID})
	if err != nil {
		o.registry.Discard(callID)
		if errors.Is(err, booking.ErrInvalidTransition) {
			o.logger.Warn("request moved while its call was placed",
				zap.String("booking_id", requestID), zap.String("call_id", callID))
		}
		return nil, fmt.Errorf("orchestrator: initiate %s: %w", requestID, err)
	}
	o.saveSnapshot(ctx, callID)

	o.logger.Info("call placed",
		zap.String("booking_id", requestID),
		zap.String("call_id", callID),
		zap.String("provider", req.ProviderName))
	return updated, nil
}
