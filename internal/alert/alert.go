// Package alert raises operator notifications for bookings that need a
// human to look at them.
package alert

import (
	"context"
	"errors"
)

// Severity orders how urgently an alert needs attention.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Color returns the hex accent color used by chat integrations.
func (s Severity) Color() string {
	switch s {
	case SeverityCritical:
		return "#a30200"
	case SeverityWarning:
		return "#daa038"
	default:
		return "#36a64f"
	}
}

// Field is one labelled value shown with an alert.
type Field struct {
	Name  string
	Value string
	Short bool
}

// Alert is one operator notification.
type Alert struct {
	Title    string
	Body     string
	Severity Severity
	Fields   []Field
}

// Notifier delivers alerts.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// Nop drops every alert.
type Nop struct{}

func (Nop) Notify(context.Context, Alert) error { return nil }

// Multi fans an alert out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, a Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
