package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/zulandar/dialbook/internal/booking"
	"github.com/zulandar/dialbook/internal/dialogue"
	"github.com/zulandar/dialbook/internal/models"
	"github.com/zulandar/dialbook/internal/script"
	"github.com/zulandar/dialbook/internal/telephony"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// HandleTurn answers one gathered utterance with the markup to execute next.
// Deliveries repeating an idempotency token get the same markup back, and
// turns for a call whose request is no longer Calling get a farewell without
// touching the store. A returned error means nothing durable happened and
// the webhook should be retried.
func (o *Orchestrator) HandleTurn(ctx context.Context, ev telephony.TurnEvent) (_ string, err error) {
	ctx, span := startSpan(ctx, "orchestrator.HandleTurn", attribute.String("call_id", ev.CallID))
	defer func() { endSpan(span, err) }()

	unlock := o.registry.Lock(ev.CallID)
	defer unlock()

	if markup, ok := o.registry.Replay(ev.CallID, ev.IdempotencyToken); ok {
		o.logger.Debug("replaying turn response", zap.String("call_id", ev.CallID))
		return markup, nil
	}

	snap, live, err := o.session(ctx, ev.CallID)
	if err != nil {
		return "", err
	}
	if !live {
		return script.Farewell(o.language).Render(), nil
	}
	lang := snap.Context.Language

	if snap.Terminated {
		// An earlier delivery concluded the call but could not resolve it.
		if err := o.resolve(ctx, snap); err != nil {
			return "", err
		}
		return script.Farewell(lang).Render(), nil
	}

	payload, concluded, err := o.script.NextTurn(ctx, ev.CallID, ev.Speech)
	if err != nil {
		return "", fmt.Errorf("orchestrator: handle turn %s: %w", ev.CallID, err)
	}
	markup := payload.Render()

	if !concluded {
		o.registry.Remember(ev.CallID, ev.IdempotencyToken, markup)
		o.saveSnapshot(ctx, ev.CallID)
		return markup, nil
	}

	o.registry.MarkTerminated(ev.CallID)
	o.saveSnapshot(ctx, ev.CallID)
	snap, _ = o.registry.Get(ev.CallID)
	if err := o.resolve(ctx, snap); err != nil {
		return "", err
	}
	return markup, nil
}

// session returns the live session for callID, restoring it from a snapshot
// or rebuilding it from the request when this process has none. live is
// false when the call's request is unknown or no longer Calling.
func (o *Orchestrator) session(ctx context.Context, callID string) (dialogue.Snapshot, bool, error) {
	if snap, ok := o.registry.Get(callID); ok {
		req, err := o.bookings.GetByID(ctx, snap.Context.RequestID)
		if err != nil {
			return dialogue.Snapshot{}, false, fmt.Errorf("orchestrator: load request for %s: %w", callID, err)
		}
		if req.Status != models.StatusCalling {
			o.discard(ctx, callID)
			return dialogue.Snapshot{}, false, nil
		}
		return snap, true, nil
	}

	req, err := o.bookings.GetByCallID(ctx, callID)
	if errors.Is(err, booking.ErrNotFound) {
		o.logger.Warn("turn for unknown call", zap.String("call_id", callID))
		return dialogue.Snapshot{}, false, nil
	}
	if err != nil {
		return dialogue.Snapshot{}, false, fmt.Errorf("orchestrator: load request for %s: %w", callID, err)
	}
	if req.Status != models.StatusCalling {
		return dialogue.Snapshot{}, false, nil
	}

	saved, err := o.snapshots.Load(ctx, callID)
	switch {
	case err == nil:
		o.logger.Info("session restored from snapshot", zap.String("call_id", callID), zap.String("booking_id", req.ID))
		return o.registry.Restore(saved), true, nil
	case !errors.Is(err, dialogue.ErrSessionNotFound):
		o.logger.Warn("load session snapshot", zap.String("call_id", callID), zap.Error(err))
	}
	o.logger.Info("session rebuilt from request", zap.String("call_id", callID), zap.String("booking_id", req.ID))
	return o.registry.GetOrCreate(callID, dialogue.ContextFromRequest(req, o.language)), true, nil
}
