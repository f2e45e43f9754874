package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zulandar/dialbook/internal/alert"
	"github.com/zulandar/dialbook/internal/availability"
	"github.com/zulandar/dialbook/internal/booking"
	"github.com/zulandar/dialbook/internal/calendar"
	"github.com/zulandar/dialbook/internal/dialogue"
	"github.com/zulandar/dialbook/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// resolve settles the booking for a concluded call and discards its session.
// It is safe to repeat: a request that already left Calling is left alone.
// Only persistence failures are returned.
func (o *Orchestrator) resolve(ctx context.Context, snap dialogue.Snapshot) (err error) {
	reqID := snap.Context.RequestID
	ctx, span := startSpan(ctx, "orchestrator.resolve",
		attribute.String("call_id", snap.CallID), attribute.String("booking_id", reqID))
	defer func() { endSpan(span, err) }()

	req, err := o.bookings.GetByID(ctx, reqID)
	if err != nil {
		return fmt.Errorf("orchestrator: resolve %s: %w", reqID, err)
	}
	if req.Status != models.StatusCalling {
		o.discard(ctx, snap.CallID)
		return nil
	}

	outcome := o.classify(ctx, snap)
	span.SetAttributes(attribute.String("outcome", string(outcome)))
	transcript := snap.Transcript()

	if outcome.Agreed() {
		err = o.confirm(ctx, req, snap, transcript)
	} else {
		err = o.fail(ctx, reqID, booking.TransitionOpts{
			Transcript:    &transcript,
			FailureReason: failureReason(outcome),
		})
	}
	if err != nil {
		return err
	}
	o.discard(ctx, snap.CallID)
	return nil
}

func (o *Orchestrator) classify(ctx context.Context, snap dialogue.Snapshot) dialogue.Outcome {
	if o.classifier != nil {
		out, err := o.classifier.Classify(ctx, snap.Context, snap.Turns)
		if err == nil && out != dialogue.OutcomeUnclear {
			return out
		}
		if err != nil {
			o.logger.Warn("model classification failed, using keywords",
				zap.String("call_id", snap.CallID), zap.Error(err))
		}
	}
	return ClassifyTranscript(snap)
}

func (o *Orchestrator) confirm(ctx context.Context, req *models.BookingRequest, snap dialogue.Snapshot, transcript string) error {
	now := o.now().In(o.loc)
	res := availability.Resolve(req.Preference, req.Category, now, o.hint(now, snap))

	eventID, err := o.createEvent(ctx, eventRequest(req, res))
	if err != nil {
		o.logger.Error("calendar commit failed after agreement",
			zap.String("booking_id", req.ID), zap.String("call_id", snap.CallID), zap.Error(err))
		if err := o.fail(ctx, req.ID, booking.TransitionOpts{
			Transcript:    &transcript,
			FailureReason: ReasonCalendarUnavailable,
			NeedsReview:   true,
		}); err != nil {
			return err
		}
		o.alert(ctx, alert.Alert{
			Title:    "Booking agreed but not written to the calendar",
			Body:     fmt.Sprintf("%s agreed to an appointment at %s, but the calendar rejected it: %v", req.ProviderName, res.Start.Format(time.RFC1123), err),
			Severity: alert.SeverityCritical,
			Fields:   requestFields(req),
		})
		return nil
	}

	start := res.Start
	_, err = o.bookings.TransitionTo(ctx, req.ID, models.StatusConfirmed, booking.TransitionOpts{
		ConfirmedAt: &start,
		EventRef:    &eventID,
		Transcript:  &transcript,
		NeedsReview: res.LowConfidence(),
	})
	if errors.Is(err, booking.ErrInvalidTransition) {
		o.logger.Warn("request resolved concurrently, cancelling calendar event",
			zap.String("booking_id", req.ID), zap.String("event_id", eventID))
		if cerr := o.calendar.CancelEvent(ctx, eventID); cerr != nil {
			o.logger.Error("cancel orphaned calendar event", zap.String("event_id", eventID), zap.Error(cerr))
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("orchestrator: confirm %s: %w", req.ID, err)
	}

	o.logger.Info("booking confirmed",
		zap.String("booking_id", req.ID),
		zap.Time("confirmed_at", start),
		zap.String("source", string(res.Source)))
	if res.LowConfidence() {
		o.alert(ctx, alert.Alert{
			Title:    "Booking confirmed at a guessed time",
			Body:     fmt.Sprintf("Neither the call nor the request named a usable time; %s was assumed. Please verify with %s.", start.Format(time.RFC1123), req.ProviderName),
			Severity: alert.SeverityWarning,
			Fields:   requestFields(req),
		})
	}
	return nil
}

// hint reads the agreed date and time from the assistant's closing line
// first, then from what the counterparty said, most recent first.
func (o *Orchestrator) hint(now time.Time, snap dialogue.Snapshot) availability.Hint {
	var texts []string
	if last, ok := snap.LastTurn(dialogue.RoleAssistant); ok {
		texts = append(texts, last.Text)
	}
	texts = append(texts, snap.TextsFromEnd(dialogue.RoleCounterparty)...)
	return availability.ExtractHint(now, texts...)
}

// createEvent retries with exponential backoff.
func (o *Orchestrator) createEvent(ctx context.Context, req calendar.EventRequest) (string, error) {
	var lastErr error
	wait := o.retryBackoff
	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		id, err := o.calendar.CreateEvent(ctx, req)
		if err == nil {
			return id, nil
		}
		lastErr = err
		if attempt == o.maxAttempts {
			break
		}
		o.logger.Warn("create calendar event failed, retrying",
			zap.String("booking_id", req.BookingID), zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
	return "", lastErr
}

// fail moves the request to Failed. Losing the race to another terminal
// transition is not an error.
func (o *Orchestrator) fail(ctx context.Context, reqID string, opts booking.TransitionOpts) error {
	_, err := o.bookings.TransitionTo(ctx, reqID, models.StatusFailed, opts)
	if errors.Is(err, booking.ErrInvalidTransition) {
		o.logger.Info("request already resolved", zap.String("booking_id", reqID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("orchestrator: fail %s: %w", reqID, err)
	}
	o.logger.Info("booking failed", zap.String("booking_id", reqID), zap.String("reason", opts.FailureReason))
	return nil
}

func (o *Orchestrator) alert(ctx context.Context, a alert.Alert) {
	if err := o.notifier.Notify(ctx, a); err != nil {
		o.logger.Warn("operator alert failed", zap.String("title", a.Title), zap.Error(err))
	}
}

func failureReason(out dialogue.Outcome) string {
	switch out {
	case dialogue.OutcomeNegative:
		return ReasonDeclined
	case dialogue.OutcomeReschedule:
		return ReasonReschedule
	default:
		return ReasonUnclear
	}
}

func eventRequest(req *models.BookingRequest, res availability.Resolution) calendar.EventRequest {
	title := fmt.Sprintf("%s: %s", categoryTitle(req.Category), req.ProviderName)
	var desc []string
	if d := dialogue.DescribeDetails(req.Category, req.Details, dialogue.LanguageEnglish); d != "" {
		desc = append(desc, d)
	}
	if req.Preference.Notes != "" {
		desc = append(desc, req.Preference.Notes)
	}
	desc = append(desc, "Phone: "+req.ProviderPhone)
	return calendar.EventRequest{
		OwnerID:     req.OwnerID,
		BookingID:   req.ID,
		Title:       title,
		Description: strings.Join(desc, "\n"),
		Location:    req.ProviderName,
		Category:    req.Category,
		Start:       res.Start,
		End:         res.End(),
	}
}

func categoryTitle(category string) string {
	switch category {
	case models.CategoryMedical:
		return "Medical appointment"
	case models.CategoryRestaurant:
		return "Restaurant reservation"
	case models.CategoryHairdresser:
		return "Hairdresser appointment"
	}
	if category == "" {
		return "Appointment"
	}
	return strings.ToUpper(category[:1]) + category[1:] + " appointment"
}

func requestFields(req *models.BookingRequest) []alert.Field {
	return []alert.Field{
		{Name: "Booking", Value: req.ID, Short: true},
		{Name: "Owner", Value: req.OwnerID, Short: true},
		{Name: "Provider", Value: req.ProviderName, Short: true},
		{Name: "Phone", Value: req.ProviderPhone, Short: true},
	}
}
