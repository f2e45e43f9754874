// Package orchestrator drives a booking request through its call: it places
// the call, answers each telephony webhook with the next line of dialogue,
// and resolves the booking once the conversation concludes.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zulandar/dialbook/internal/alert"
	"github.com/zulandar/dialbook/internal/booking"
	"github.com/zulandar/dialbook/internal/calendar"
	"github.com/zulandar/dialbook/internal/dialogue"
	"github.com/zulandar/dialbook/internal/llm"
	"github.com/zulandar/dialbook/internal/script"
	"github.com/zulandar/dialbook/internal/telephony"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ErrProviderUnavailable is returned when the telephony provider could not
// place a call. The request stays Pending.
var ErrProviderUnavailable = errors.New("telephony provider unavailable")

// Webhook paths relative to the public base URL.
const (
	TurnPath   = "/webhooks/telephony/turn"
	StatusPath = "/webhooks/telephony/status"
)

// Failure reasons recorded on Failed requests besides the raw call status.
const (
	ReasonDeclined            = "declined"
	ReasonReschedule          = "reschedule_requested"
	ReasonUnclear             = "unclear_outcome"
	ReasonCalendarUnavailable = "calendar_unavailable"
	ReasonIdleTimeout         = "idle_timeout"
)

const (
	defaultIdleTimeout  = 10 * time.Minute
	defaultMaxAttempts  = 3
	defaultRetryBackoff = 500 * time.Millisecond
)

var tracer = otel.Tracer("github.com/zulandar/dialbook/internal/orchestrator")

// Opts holds parameters for creating an Orchestrator.
type Opts struct {
	Bookings  *booking.Store
	Calendar  calendar.Calendar
	Telephony telephony.Provider
	Dialogue  llm.Provider
	// Classifier, when set, is asked for the outcome before the keyword
	// baseline.
	Classifier llm.Classifier
	Notifier   alert.Notifier
	Snapshots  dialogue.SnapshotStore
	Registry   *dialogue.Registry
	Logger     *zap.Logger

	PublicBaseURL string
	FromNumber    string
	Language      string
	Location      *time.Location

	IdleTimeout  time.Duration
	MaxAttempts  int
	RetryBackoff time.Duration

	Now func() time.Time
}

// Orchestrator coordinates telephony, dialogue, resolution and persistence.
type Orchestrator struct {
	bookings   *booking.Store
	calendar   calendar.Calendar
	telephony  telephony.Provider
	classifier llm.Classifier
	notifier   alert.Notifier
	snapshots  dialogue.SnapshotStore
	registry   *dialogue.Registry
	script     *script.Generator
	logger     *zap.Logger

	turnURL   string
	statusURL string
	from      string
	language  string
	loc       *time.Location

	idleTimeout  time.Duration
	maxAttempts  int
	retryBackoff time.Duration

	now func() time.Time
}

// New creates an Orchestrator.
func New(opts Opts) (*Orchestrator, error) {
	if opts.Bookings == nil {
		return nil, fmt.Errorf("orchestrator: booking store is required")
	}
	if opts.Calendar == nil {
		return nil, fmt.Errorf("orchestrator: calendar is required")
	}
	if opts.Telephony == nil {
		return nil, fmt.Errorf("orchestrator: telephony provider is required")
	}
	if opts.Dialogue == nil {
		return nil, fmt.Errorf("orchestrator: dialogue provider is required")
	}
	base := strings.TrimRight(opts.PublicBaseURL, "/")
	if base == "" {
		return nil, fmt.Errorf("orchestrator: public base url is required")
	}

	o := &Orchestrator{
		bookings:     opts.Bookings,
		calendar:     opts.Calendar,
		telephony:    opts.Telephony,
		classifier:   opts.Classifier,
		notifier:     opts.Notifier,
		snapshots:    opts.Snapshots,
		registry:     opts.Registry,
		logger:       opts.Logger,
		turnURL:      base + TurnPath,
		statusURL:    base + StatusPath,
		from:         opts.FromNumber,
		language:     dialogue.NormalizeLanguage(opts.Language),
		loc:          opts.Location,
		idleTimeout:  opts.IdleTimeout,
		maxAttempts:  opts.MaxAttempts,
		retryBackoff: opts.RetryBackoff,
		now:          opts.Now,
	}
	if o.notifier == nil {
		o.notifier = alert.Nop{}
	}
	if o.snapshots == nil {
		o.snapshots = dialogue.NopSnapshotStore{}
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.loc == nil {
		o.loc = time.UTC
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.registry == nil {
		o.registry = dialogue.NewRegistry(dialogue.RegistryOpts{Now: o.now})
	}
	if o.idleTimeout <= 0 {
		o.idleTimeout = defaultIdleTimeout
	}
	if o.maxAttempts <= 0 {
		o.maxAttempts = defaultMaxAttempts
	}
	if o.retryBackoff <= 0 {
		o.retryBackoff = defaultRetryBackoff
	}

	gen, err := script.NewGenerator(script.GeneratorOpts{
		Registry: o.registry,
		Provider: opts.Dialogue,
		Logger:   o.logger,
		TurnURL:  o.turnURL,
	})
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}
	o.script = gen
	return o, nil
}

// Registry returns the live session registry.
func (o *Orchestrator) Registry() *dialogue.Registry {
	return o.registry
}

// saveSnapshot persists the session. Failures only cost durability, so
// they are logged.
func (o *Orchestrator) saveSnapshot(ctx context.Context, callID string) {
	snap, ok := o.registry.Get(callID)
	if !ok {
		return
	}
	if err := o.snapshots.Save(ctx, snap); err != nil {
		o.logger.Warn("save session snapshot", zap.String("call_id", callID), zap.Error(err))
	}
}

// discard drops the live session and its snapshot.
func (o *Orchestrator) discard(ctx context.Context, callID string) {
	o.registry.Discard(callID)
	if err := o.snapshots.Delete(ctx, callID); err != nil {
		o.logger.Warn("delete session snapshot", zap.String("call_id", callID), zap.Error(err))
	}
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
