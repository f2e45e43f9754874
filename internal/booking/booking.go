// Package booking provides the durable store for booking requests and
// enforces their status lifecycle.
package booking

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

// ValidTransitions maps each status to its valid next statuses. Confirmed and
// Failed have no entry and are therefore terminal.
var ValidTransitions = map[string][]string{
	models.StatusPending: {models.StatusCalling},
	models.StatusCalling: {models.StatusConfirmed, models.StatusFailed},
}

// CreateOpts holds parameters for creating a new booking request. Either
// Dates (with optional Buckets) or ExactTime must be given, not both.
type CreateOpts struct {
	OwnerID       string
	Category      string
	ProviderName  string
	ProviderPhone string
	Dates         []string // YYYY-MM-DD
	Buckets       []string // morning, afternoon, evening
	ExactTime     *time.Time
	Notes         string
	Details       models.BookingDetails
}

// TransitionOpts carries the fields written alongside a status change.
// ConfirmedAt and EventRef are required for, and only applied on, Confirmed.
type TransitionOpts struct {
	CallID        string
	ConfirmedAt   *time.Time
	EventRef      *string
	Transcript    *string
	FailureReason string
	NeedsReview   bool
}

// StoreOpts holds parameters for creating a Store.
type StoreOpts struct {
	DB  *gorm.DB
	Now func() time.Time // defaults to time.Now().UTC()
}

// Store reads and writes booking requests.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// NewStore creates a Store.
func NewStore(opts StoreOpts) (*Store, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("booking: db is required")
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Store{db: opts.DB, now: now}, nil
}

// Create validates opts and persists a new request in Pending.
func (s *Store) Create(ctx context.Context, opts CreateOpts) (*models.BookingRequest, error) {
	pref, verr := validateCreate(opts)
	if !verr.empty() {
		return nil, verr
	}

	now := s.now()
	req := models.BookingRequest{
		ID:            uuid.NewString(),
		OwnerID:       strings.TrimSpace(opts.OwnerID),
		Category:      opts.Category,
		ProviderName:  strings.TrimSpace(opts.ProviderName),
		ProviderPhone: strings.TrimSpace(opts.ProviderPhone),
		Preference:    pref,
		Details:       opts.Details,
		Status:        models.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.db.WithContext(ctx).Create(&req).Error; err != nil {
		return nil, fmt.Errorf("booking: create: %w", err)
	}
	return &req, nil
}

// Get returns the request with id when it belongs to ownerID.
func (s *Store) Get(ctx context.Context, id, ownerID string) (*models.BookingRequest, error) {
	var req models.BookingRequest
	err := s.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, ownerID).First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("booking: get %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("booking: get %s: %w", id, err)
	}
	return &req, nil
}

// GetByID returns the request with id regardless of owner.
func (s *Store) GetByID(ctx context.Context, id string) (*models.BookingRequest, error) {
	var req models.BookingRequest
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&req).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("booking: get %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("booking: get %s: %w", id, err)
	}
	return &req, nil
}

// GetByCallID returns the request whose call is callID.
func (s *Store) GetByCallID(ctx context.Context, callID string) (*models.BookingRequest, error) {
	if callID == "" {
		return nil, fmt.Errorf("booking: get by call: %w", ErrNotFound)
	}
	var req models.BookingRequest
	if err := s.db.WithContext(ctx).Where("call_id = ?", callID).First(&req).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("booking: get by call %s: %w", callID, ErrNotFound)
		}
		return nil, fmt.Errorf("booking: get by call %s: %w", callID, err)
	}
	return &req, nil
}

// ListByOwner returns the owner's requests, newest first.
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]models.BookingRequest, error) {
	var reqs []models.BookingRequest
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC, id DESC").
		Find(&reqs).Error
	if err != nil {
		return nil, fmt.Errorf("booking: list by owner %s: %w", ownerID, err)
	}
	return reqs, nil
}

// ListStaleCalling returns requests still in Calling that have not been
// touched since before.
func (s *Store) ListStaleCalling(ctx context.Context, before time.Time) ([]models.BookingRequest, error) {
	var reqs []models.BookingRequest
	err := s.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", models.StatusCalling, before).
		Order("updated_at ASC").
		Find(&reqs).Error
	if err != nil {
		return nil, fmt.Errorf("booking: list stale calling: %w", err)
	}
	return reqs, nil
}

// TransitionTo moves request id to status to, writing the fields in opts.
// The write is a single conditional update on the status that was read, so
// of two racing transitions out of the same state exactly one succeeds and
// the other gets ErrInvalidTransition.
func (s *Store) TransitionTo(ctx context.Context, id, to string, opts TransitionOpts) (*models.BookingRequest, error) {
	if to == models.StatusConfirmed {
		verr := newValidationError()
		if opts.ConfirmedAt == nil {
			verr.add("confirmed_at", "is required to confirm")
		}
		if opts.EventRef == nil || *opts.EventRef == "" {
			verr.add("event_ref", "is required to confirm")
		}
		if !verr.empty() {
			return nil, verr
		}
	}

	cur, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isValidTransition(cur.Status, to) {
		return nil, fmt.Errorf("booking: transition %s from %q to %q: %w", id, cur.Status, to, ErrInvalidTransition)
	}

	updates := map[string]interface{}{
		"status":     to,
		"updated_at": s.now(),
	}
	if opts.CallID != "" {
		updates["call_id"] = opts.CallID
	}
	if to == models.StatusConfirmed {
		updates["confirmed_at"] = opts.ConfirmedAt.UTC()
		updates["event_ref"] = *opts.EventRef
	}
	if opts.Transcript != nil {
		updates["transcript"] = *opts.Transcript
	}
	if opts.FailureReason != "" {
		updates["failure_reason"] = opts.FailureReason
	}
	if opts.NeedsReview {
		updates["needs_review"] = true
	}

	result := s.db.WithContext(ctx).Model(&models.BookingRequest{}).
		Where("id = ? AND status = ?", id, cur.Status).
		Updates(updates)
	if result.Error != nil {
		return nil, fmt.Errorf("booking: transition %s to %q: %w", id, to, result.Error)
	}
	if result.RowsAffected == 0 {
		// Someone else moved the request between our read and write.
		latest, err := s.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("booking: transition %s from %q to %q: %w", id, latest.Status, to, ErrInvalidTransition)
	}

	return s.GetByID(ctx, id)
}

// isValidTransition checks whether a status transition is allowed.
func isValidTransition(from, to string) bool {
	for _, s := range ValidTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// validateCreate checks every input rule and returns the normalized
// preference together with any problems found.
func validateCreate(opts CreateOpts) (models.AvailabilityPreference, *ValidationError) {
	verr := newValidationError()

	if strings.TrimSpace(opts.OwnerID) == "" {
		verr.add("owner_id", "is required")
	}
	if strings.TrimSpace(opts.ProviderName) == "" {
		verr.add("provider_name", "is required")
	}
	if strings.TrimSpace(opts.ProviderPhone) == "" {
		verr.add("provider_phone", "is required")
	}

	if check, ok := lookupCategory(opts.Category); ok {
		check(opts.Details, verr)
	} else {
		verr.add("category", fmt.Sprintf("%q is not one of %s", opts.Category, strings.Join(Categories(), ", ")))
	}

	pref := models.AvailabilityPreference{Notes: opts.Notes}
	switch {
	case opts.ExactTime != nil && (len(opts.Dates) > 0 || len(opts.Buckets) > 0):
		verr.add("preference", "exact time and candidate dates are mutually exclusive")
	case opts.ExactTime != nil:
		if opts.ExactTime.IsZero() {
			verr.add("preference.exact_time", "must be a valid instant")
		}
		t := *opts.ExactTime
		pref.ExactTime = &t
	case len(opts.Dates) == 0:
		verr.add("preference.dates", "at least one candidate date or an exact time is required")
	default:
		for _, d := range opts.Dates {
			if _, err := time.Parse(models.DateLayout, d); err != nil {
				verr.add("preference.dates", fmt.Sprintf("%q is not a YYYY-MM-DD date", d))
			}
		}
		pref.Dates = append([]string(nil), opts.Dates...)
		for _, b := range opts.Buckets {
			switch strings.ToLower(strings.TrimSpace(b)) {
			case "morning":
				pref.Morning = true
			case "afternoon":
				pref.Afternoon = true
			case "evening":
				pref.Evening = true
			default:
				verr.add("preference.buckets", fmt.Sprintf("%q is not one of morning, afternoon, evening", b))
			}
		}
	}

	return pref, verr
}
