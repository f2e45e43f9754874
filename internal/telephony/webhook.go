package telephony

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/twilio/twilio-go/client"
)

// CallStatus is a normalized call lifecycle state.
type CallStatus string

const (
	StatusInitiated CallStatus = "initiated"
	StatusRinging   CallStatus = "ringing"
	StatusAnswered  CallStatus = "answered"
	StatusCompleted CallStatus = "completed"
	StatusFailed    CallStatus = "failed"
	StatusBusy      CallStatus = "busy"
	StatusNoAnswer  CallStatus = "no-answer"
	StatusCanceled  CallStatus = "canceled"
)

// Unreached reports whether the call ended without the counterparty ever
// talking to us.
func (s CallStatus) Unreached() bool {
	switch s {
	case StatusFailed, StatusBusy, StatusNoAnswer, StatusCanceled:
		return true
	}
	return false
}

// ParseCallStatus maps a provider status string onto a CallStatus.
func ParseCallStatus(s string) (CallStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "queued", "initiated":
		return StatusInitiated, nil
	case "ringing":
		return StatusRinging, nil
	case "in-progress", "answered":
		return StatusAnswered, nil
	case "completed":
		return StatusCompleted, nil
	case "failed":
		return StatusFailed, nil
	case "busy":
		return StatusBusy, nil
	case "no-answer", "no_answer":
		return StatusNoAnswer, nil
	case "canceled", "cancelled":
		return StatusCanceled, nil
	}
	return "", fmt.Errorf("telephony: unknown call status %q", s)
}

// IdempotencyHeader carries the provider's per-delivery token; retried
// deliveries of the same webhook repeat it.
const IdempotencyHeader = "I-Twilio-Idempotency-Token"

// SignatureHeader carries the request signature.
const SignatureHeader = "X-Twilio-Signature"

// TurnEvent is one gathered utterance. Speech is nil when the gather timed
// out with nothing recognised.
type TurnEvent struct {
	CallID           string
	Speech           *string
	Confidence       float64
	IdempotencyToken string
}

// StatusEvent is one call lifecycle callback.
type StatusEvent struct {
	CallID   string
	Status   CallStatus
	Duration int // seconds, when reported
}

// ParseTurn decodes a gather callback.
func ParseTurn(form url.Values, header http.Header) (TurnEvent, error) {
	ev := TurnEvent{
		CallID:           strings.TrimSpace(form.Get("CallSid")),
		IdempotencyToken: header.Get(IdempotencyHeader),
	}
	if ev.CallID == "" {
		return TurnEvent{}, fmt.Errorf("telephony: turn callback without CallSid")
	}
	if vals, ok := form["SpeechResult"]; ok && len(vals) > 0 {
		speech := vals[0]
		ev.Speech = &speech
	}
	if c := form.Get("Confidence"); c != "" {
		if f, err := strconv.ParseFloat(c, 64); err == nil {
			ev.Confidence = f
		}
	}
	return ev, nil
}

// ParseStatus decodes a status callback.
func ParseStatus(form url.Values) (StatusEvent, error) {
	ev := StatusEvent{CallID: strings.TrimSpace(form.Get("CallSid"))}
	if ev.CallID == "" {
		return StatusEvent{}, fmt.Errorf("telephony: status callback without CallSid")
	}
	status, err := ParseCallStatus(form.Get("CallStatus"))
	if err != nil {
		return StatusEvent{}, err
	}
	ev.Status = status
	if d := form.Get("CallDuration"); d != "" {
		ev.Duration, _ = strconv.Atoi(d)
	}
	return ev, nil
}

// ValidateSignature reports whether signature matches a POST of form to
// fullURL, as signed by the provider with authToken.
func ValidateSignature(authToken, fullURL string, form url.Values, signature string) bool {
	if authToken == "" || signature == "" {
		return false
	}
	params := make(map[string]string, len(form))
	for k := range form {
		params[k] = form.Get(k)
	}
	validator := client.NewRequestValidator(authToken)
	return validator.Validate(fullURL, params, signature)
}
