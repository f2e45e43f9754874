package booking

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNotFound is returned when a request does not exist or belongs to
	// another owner.
	ErrNotFound = errors.New("booking request not found")

	// ErrInvalidTransition is returned when the state machine forbids a
	// status change, including any move out of a terminal state and a
	// transition that lost a race to a concurrent writer.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ValidationError collects per-field messages for rejected input. It is never
// worth retrying.
type ValidationError struct {
	fields map[string][]string
}

func newValidationError() *ValidationError {
	return &ValidationError{fields: make(map[string][]string)}
}

// AsValidationError returns the ValidationError in err's chain, or nil.
func AsValidationError(err error) *ValidationError {
	if err == nil {
		return nil
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr
	}
	return nil
}

func (v *ValidationError) add(field, msg string) {
	v.fields[field] = append(v.fields[field], msg)
}

func (v *ValidationError) empty() bool {
	return len(v.fields) == 0
}

// Fields returns the messages keyed by field name.
func (v *ValidationError) Fields() map[string][]string {
	return v.fields
}

// Has reports whether field has at least one message.
func (v *ValidationError) Has(field string) bool {
	return len(v.fields[field]) > 0
}

func (v *ValidationError) Error() string {
	keys := make([]string, 0, len(v.fields))
	for k := range v.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, strings.Join(v.fields[k], ", ")))
	}
	return "booking: invalid request: " + strings.Join(parts, "; ")
}
