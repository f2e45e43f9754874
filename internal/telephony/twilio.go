package telephony

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/twilio/twilio-go"
	"github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

const (
	defaultAPIBase = "https://api.twilio.com"
	maxRetries     = 3
)

// statusEvents are the lifecycle events requested for every call.
var statusEvents = []string{"initiated", "ringing", "answered", "completed"}

// TwilioOpts holds parameters for creating a TwilioProvider.
type TwilioOpts struct {
	AccountSID string
	AuthToken  string
	APIBase    string       // overrides https://api.twilio.com, for test doubles
	HTTPClient *http.Client // defaults to a client with a 15s timeout
}

// TwilioProvider places calls through the Twilio Programmable Voice REST API.
type TwilioProvider struct {
	accountSID string
	rest       *twilio.RestClient
}

// NewTwilio creates a TwilioProvider.
func NewTwilio(opts TwilioOpts) (*TwilioProvider, error) {
	if opts.AccountSID == "" {
		return nil, fmt.Errorf("telephony: account sid is required")
	}
	if opts.AuthToken == "" {
		return nil, fmt.Errorf("telephony: auth token is required")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if b := strings.TrimRight(opts.APIBase, "/"); b != "" && b != defaultAPIBase {
		base, err := url.Parse(b)
		if err != nil || base.Host == "" {
			return nil, fmt.Errorf("telephony: invalid api base %q", opts.APIBase)
		}
		rebased := *httpClient
		rebased.Transport = &rebaseTransport{base: base, next: httpClient.Transport}
		httpClient = &rebased
	}

	c := &client.Client{
		Credentials: client.NewCredentials(opts.AccountSID, opts.AuthToken),
		HTTPClient:  httpClient,
	}
	c.SetAccountSid(opts.AccountSID)

	return &TwilioProvider{
		accountSID: opts.AccountSID,
		rest:       twilio.NewRestClientWithParams(twilio.ClientParams{Client: c}),
	}, nil
}

// PlaceCall creates the call with the opening markup inline.
func (p *TwilioProvider) PlaceCall(ctx context.Context, req CallRequest) (string, error) {
	if req.To == "" || req.From == "" {
		return "", fmt.Errorf("telephony: place call: to and from are required")
	}
	params := &openapi.CreateCallParams{}
	params.SetPathAccountSid(p.accountSID)
	params.SetTo(req.To)
	params.SetFrom(req.From)
	params.SetTwiml(req.Markup)
	if req.StatusCallbackURL != "" {
		params.SetStatusCallback(req.StatusCallbackURL)
		params.SetStatusCallbackMethod(http.MethodPost)
		params.SetStatusCallbackEvent(statusEvents)
	}

	var sid string
	err := retryOnRateLimit(ctx, func() error {
		call, err := p.rest.Api.CreateCall(params)
		if err != nil {
			return err
		}
		if call == nil || call.Sid == nil || *call.Sid == "" {
			return fmt.Errorf("response carried no call sid")
		}
		sid = *call.Sid
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("telephony: place call to %s: %w", req.To, err)
	}
	return sid, nil
}

// retryable reports whether err is a Twilio 429 or 5xx response.
func retryable(err error) bool {
	var restErr *client.TwilioRestError
	if !errors.As(err, &restErr) {
		return false
	}
	return restErr.Status == http.StatusTooManyRequests || restErr.Status >= 500
}

// retryOnRateLimit retries fn on 429 and 5xx responses with exponential
// backoff.
func retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !retryable(err) || attempt == maxRetries {
			return err
		}

		wait := time.Duration(math.Pow(2, float64(attempt))) * retryUnit
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil
}

// retryUnit is the base backoff; tests shrink it.
var retryUnit = time.Second

// rebaseTransport sends every request to base instead of the Twilio host.
type rebaseTransport struct {
	base *url.URL
	next http.RoundTripper
}

func (t *rebaseTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.URL.Scheme = t.base.Scheme
	r.URL.Host = t.base.Host
	r.URL.Path = t.base.Path + req.URL.Path
	r.Host = t.base.Host
	next := t.next
	if next == nil {
		next = http.DefaultTransport
	}
	return next.RoundTrip(r)
}
