package alert

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	slackapi "github.com/slack-go/slack"
)

const maxRetries = 3

// SlackOpts holds parameters for creating a Slack notifier.
type SlackOpts struct {
	WebhookURL string
	// BaseBackoff is the wait before the first retry when Slack gives no
	// Retry-After. Defaults to one second.
	BaseBackoff time.Duration
}

// Slack posts alerts to an incoming webhook.
type Slack struct {
	webhookURL  string
	baseBackoff time.Duration
	post        func(ctx context.Context, url string, msg *slackapi.WebhookMessage) error
}

// NewSlack creates a Slack notifier.
func NewSlack(opts SlackOpts) (*Slack, error) {
	if opts.WebhookURL == "" {
		return nil, fmt.Errorf("alert: slack webhook url is required")
	}
	backoff := opts.BaseBackoff
	if backoff <= 0 {
		backoff = time.Second
	}
	return &Slack{
		webhookURL:  opts.WebhookURL,
		baseBackoff: backoff,
		post:        slackapi.PostWebhookContext,
	}, nil
}

func (s *Slack) Notify(ctx context.Context, a Alert) error {
	msg := buildWebhookMessage(a)
	err := s.retryOnRateLimit(ctx, func() error {
		return s.post(ctx, s.webhookURL, msg)
	})
	if err != nil {
		return fmt.Errorf("alert: slack: %w", err)
	}
	return nil
}

// buildWebhookMessage renders the alert as a single colored attachment with
// the title as plain-text fallback.
func buildWebhookMessage(a Alert) *slackapi.WebhookMessage {
	att := slackapi.Attachment{
		Title:    a.Title,
		Text:     a.Body,
		Color:    a.Severity.Color(),
		Fallback: a.Title,
	}
	for _, f := range a.Fields {
		att.Fields = append(att.Fields, slackapi.AttachmentField{
			Title: f.Name,
			Value: f.Value,
			Short: f.Short,
		})
	}
	return &slackapi.WebhookMessage{
		Text:        fmt.Sprintf("[%s] %s", a.Severity, a.Title),
		Attachments: []slackapi.Attachment{att},
	}
}

func (s *Slack) retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var rle *slackapi.RateLimitedError
		if !errors.As(err, &rle) {
			return err
		}
		if attempt == maxRetries {
			return err
		}

		wait := rle.RetryAfter
		if wait <= 0 {
			wait = time.Duration(math.Pow(2, float64(attempt))) * s.baseBackoff
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil
}
