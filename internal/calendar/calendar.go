// Package calendar writes confirmed appointments to the owner's calendar.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/dialbook/internal/models"
	"gorm.io/gorm"
)

// ErrEventNotFound is returned when no event matches.
var ErrEventNotFound = errors.New("calendar event not found")

// EventRequest describes the event to write for one booking.
type EventRequest struct {
	OwnerID     string
	BookingID   string
	Title       string
	Description string
	Location    string
	Category    string
	Start       time.Time
	End         time.Time
}

// Calendar is the collaborator the orchestrator commits confirmed bookings
// to. CreateEvent is idempotent on BookingID.
type Calendar interface {
	CreateEvent(ctx context.Context, req EventRequest) (string, error)
	CancelEvent(ctx context.Context, eventID string) error
}

// StoreOpts holds parameters for creating a Store.
type StoreOpts struct {
	DB  *gorm.DB
	Now func() time.Time
}

// Store keeps calendar events in the application database.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// NewStore creates a Store.
func NewStore(opts StoreOpts) (*Store, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("calendar: db is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{db: opts.DB, now: now}, nil
}

// CreateEvent writes the event and returns its id. A second call for the
// same booking returns the existing event's id; a cancelled event is
// reinstated with the new times.
func (s *Store) CreateEvent(ctx context.Context, req EventRequest) (string, error) {
	if err := validateEvent(req); err != nil {
		return "", err
	}

	existing, err := s.byBooking(ctx, req.BookingID)
	switch {
	case err == nil:
		return s.reuse(ctx, existing, req)
	case !errors.Is(err, ErrEventNotFound):
		return "", err
	}

	ev := models.CalendarEvent{
		ID:          uuid.NewString(),
		OwnerID:     req.OwnerID,
		BookingID:   req.BookingID,
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		Category:    req.Category,
		StartAt:     req.Start.UTC(),
		EndAt:       req.End.UTC(),
		CreatedAt:   s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&ev).Error; err != nil {
		// A concurrent create for the same booking won the unique index.
		if again, lookupErr := s.byBooking(ctx, req.BookingID); lookupErr == nil {
			return again.ID, nil
		}
		return "", fmt.Errorf("calendar: create event for %s: %w", req.BookingID, err)
	}
	return ev.ID, nil
}

func (s *Store) reuse(ctx context.Context, ev *models.CalendarEvent, req EventRequest) (string, error) {
	if ev.CancelledAt == nil {
		return ev.ID, nil
	}
	err := s.db.WithContext(ctx).Model(&models.CalendarEvent{}).
		Where("id = ?", ev.ID).
		Updates(map[string]interface{}{
			"cancelled_at": nil,
			"start_at":     req.Start.UTC(),
			"end_at":       req.End.UTC(),
			"title":        req.Title,
			"description":  req.Description,
		}).Error
	if err != nil {
		return "", fmt.Errorf("calendar: reinstate event %s: %w", ev.ID, err)
	}
	return ev.ID, nil
}

// CancelEvent marks the event cancelled. Cancelling twice is a no-op.
func (s *Store) CancelEvent(ctx context.Context, eventID string) error {
	now := s.now().UTC()
	result := s.db.WithContext(ctx).Model(&models.CalendarEvent{}).
		Where("id = ? AND cancelled_at IS NULL", eventID).
		Update("cancelled_at", now)
	if result.Error != nil {
		return fmt.Errorf("calendar: cancel event %s: %w", eventID, result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := s.Get(ctx, eventID); err != nil {
			return err
		}
	}
	return nil
}

// Get returns an event by id.
func (s *Store) Get(ctx context.Context, eventID string) (*models.CalendarEvent, error) {
	var ev models.CalendarEvent
	err := s.db.WithContext(ctx).Where("id = ?", eventID).First(&ev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("calendar: get event %s: %w", eventID, ErrEventNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("calendar: get event %s: %w", eventID, err)
	}
	return &ev, nil
}

// ListByOwner returns the owner's active events, soonest first.
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]models.CalendarEvent, error) {
	var events []models.CalendarEvent
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND cancelled_at IS NULL", ownerID).
		Order("start_at ASC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("calendar: list events for %s: %w", ownerID, err)
	}
	return events, nil
}

func (s *Store) byBooking(ctx context.Context, bookingID string) (*models.CalendarEvent, error) {
	var ev models.CalendarEvent
	err := s.db.WithContext(ctx).Where("booking_id = ?", bookingID).First(&ev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("calendar: lookup booking %s: %w", bookingID, err)
	}
	return &ev, nil
}

func validateEvent(req EventRequest) error {
	var missing []string
	if req.OwnerID == "" {
		missing = append(missing, "owner_id")
	}
	if req.BookingID == "" {
		missing = append(missing, "booking_id")
	}
	if req.Title == "" {
		missing = append(missing, "title")
	}
	if req.Start.IsZero() {
		missing = append(missing, "start")
	}
	if len(missing) > 0 {
		return fmt.Errorf("calendar: event missing %s", strings.Join(missing, ", "))
	}
	if !req.End.After(req.Start) {
		return fmt.Errorf("calendar: event end %s is not after start %s", req.End, req.Start)
	}
	return nil
}
