package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zulandar/dialbook/internal/alert"
	"github.com/zulandar/dialbook/internal/booking"
	"github.com/zulandar/dialbook/internal/models"
	"go.uber.org/zap"
)

// SweepResult counts what one sweep reclaimed.
type SweepResult struct {
	Sessions int // idle sessions discarded
	Requests int // requests moved to Failed
}

// Sweep fails requests whose call went quiet. It covers idle live sessions
// and requests stuck in Calling with no session in this process, which is
// what a crash mid-call leaves behind.
func (o *Orchestrator) Sweep(ctx context.Context) (res SweepResult, err error) {
	ctx, span := startSpan(ctx, "orchestrator.Sweep")
	defer func() { endSpan(span, err) }()

	for _, callID := range o.registry.Idle(o.idleTimeout) {
		failed, err := o.sweepSession(ctx, callID)
		if err != nil {
			return res, err
		}
		res.Sessions++
		if failed {
			res.Requests++
		}
	}

	stale, err := o.bookings.ListStaleCalling(ctx, o.now().Add(-o.idleTimeout))
	if err != nil {
		return res, fmt.Errorf("orchestrator: sweep: %w", err)
	}
	for i := range stale {
		req := &stale[i]
		if _, live := o.registry.Get(req.CallID); live {
			continue
		}
		failed, err := o.sweepOrphan(ctx, req)
		if err != nil {
			return res, err
		}
		if failed {
			res.Requests++
		}
	}

	if res.Sessions > 0 || res.Requests > 0 {
		o.logger.Info("sweep reclaimed calls",
			zap.Int("sessions", res.Sessions), zap.Int("requests", res.Requests))
	}
	return res, nil
}

func (o *Orchestrator) sweepSession(ctx context.Context, callID string) (bool, error) {
	unlock := o.registry.Lock(callID)
	defer unlock()

	// Activity may have arrived while we waited for the lock.
	snap, ok := o.registry.Get(callID)
	if !ok || o.now().Sub(snap.LastActivity) < o.idleTimeout {
		return false, nil
	}

	req, err := o.bookings.GetByID(ctx, snap.Context.RequestID)
	if err != nil {
		return false, fmt.Errorf("orchestrator: sweep %s: %w", callID, err)
	}
	failed := false
	if req.Status == models.StatusCalling {
		transcript := snap.Transcript()
		opts := booking.TransitionOpts{FailureReason: ReasonIdleTimeout}
		if transcript != "" {
			opts.Transcript = &transcript
		}
		if err := o.fail(ctx, req.ID, opts); err != nil {
			return false, err
		}
		failed = true
	}
	o.discard(ctx, callID)
	return failed, nil
}

func (o *Orchestrator) sweepOrphan(ctx context.Context, req *models.BookingRequest) (bool, error) {
	unlock := o.registry.Lock(req.CallID)
	defer unlock()

	if _, live := o.registry.Get(req.CallID); live {
		return false, nil
	}
	if err := o.fail(ctx, req.ID, booking.TransitionOpts{
		FailureReason: ReasonIdleTimeout,
		NeedsReview:   true,
	}); err != nil {
		return false, err
	}
	if err := o.snapshots.Delete(ctx, req.CallID); err != nil {
		o.logger.Warn("delete session snapshot", zap.String("call_id", req.CallID), zap.Error(err))
	}
	o.alert(ctx, alert.Alert{
		Title:    "Call stopped reporting",
		Body:     fmt.Sprintf("The call to %s stopped reporting and was failed by the sweep. Someone should check whether an appointment was made.", req.ProviderName),
		Severity: alert.SeverityWarning,
		Fields:   requestFields(req),
	})
	return true, nil
}

// cronParser accepts standard 5-field expressions and descriptors such as
// "@every 1m".
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// StartSweeper runs Sweep on schedule until ctx is cancelled or stop is
// called. stop waits for a running sweep to finish.
func (o *Orchestrator) StartSweeper(ctx context.Context, schedule string) (stop func(), err error) {
	if _, err := cronParser.Parse(schedule); err != nil {
		return nil, fmt.Errorf("orchestrator: sweep schedule %q: %w", schedule, err)
	}

	c := cron.New(cron.WithParser(cronParser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(schedule, func() {
		if _, err := o.Sweep(ctx); err != nil {
			o.logger.Error("sweep failed", zap.Error(err))
		}
	}); err != nil {
		return nil, fmt.Errorf("orchestrator: schedule sweep: %w", err)
	}
	c.Start()
	o.logger.Info("sweeper started",
		zap.String("schedule", schedule),
		zap.Duration("next_in", nextSweep(schedule, o.now())),
		zap.Duration("idle_timeout", o.idleTimeout))

	done := make(chan struct{})
	var once sync.Once
	stop = func() {
		once.Do(func() {
			close(done)
			<-c.Stop().Done()
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			c.Stop()
		case <-done:
		}
	}()
	return stop, nil
}

// nextSweep returns how long until schedule next fires after now, or 0 when
// the schedule does not parse.
func nextSweep(schedule string, now time.Time) time.Duration {
	sched, err := cronParser.Parse(schedule)
	if err != nil {
		return 0
	}
	d := sched.Next(now).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
