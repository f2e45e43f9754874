package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/zulandar/dialbook/internal/booking"
	"github.com/zulandar/dialbook/internal/models"
	"github.com/zulandar/dialbook/internal/telephony"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// HandleStatus applies a call lifecycle event. A call that ended without
// reaching anyone fails its request with no transcript; a completed call
// whose conversation never concluded is resolved from what was said. Other
// statuses only refresh the session's activity time.
func (o *Orchestrator) HandleStatus(ctx context.Context, ev telephony.StatusEvent) (err error) {
	ctx, span := startSpan(ctx, "orchestrator.HandleStatus",
		attribute.String("call_id", ev.CallID), attribute.String("status", string(ev.Status)))
	defer func() { endSpan(span, err) }()

	unlock := o.registry.Lock(ev.CallID)
	defer unlock()

	switch {
	case ev.Status.Unreached():
		req, err := o.bookings.GetByCallID(ctx, ev.CallID)
		if errors.Is(err, booking.ErrNotFound) {
			o.logger.Warn("status for unknown call", zap.String("call_id", ev.CallID), zap.String("status", string(ev.Status)))
			return nil
		}
		if err != nil {
			return fmt.Errorf("orchestrator: handle status %s: %w", ev.CallID, err)
		}
		if req.Status == models.StatusCalling {
			if err := o.fail(ctx, req.ID, booking.TransitionOpts{FailureReason: string(ev.Status)}); err != nil {
				return err
			}
		}
		o.discard(ctx, ev.CallID)
		return nil

	case ev.Status == telephony.StatusCompleted:
		snap, ok := o.registry.Get(ev.CallID)
		if !ok {
			return nil
		}
		o.registry.MarkTerminated(ev.CallID)
		snap.Terminated = true
		return o.resolve(ctx, snap)

	default:
		o.registry.Touch(ev.CallID)
		return nil
	}
}
