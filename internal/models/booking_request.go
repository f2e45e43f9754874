package models

import "time"

// Booking request statuses. Confirmed and Failed are terminal.
const (
	StatusPending   = "pending"
	StatusCalling   = "calling"
	StatusConfirmed = "confirmed"
	StatusFailed    = "failed"
)

// DateLayout is the format of candidate dates.
const DateLayout = "2006-01-02"

// Booking categories understood by the intake validation and the resolver.
const (
	CategoryMedical     = "medical"
	CategoryRestaurant  = "restaurant"
	CategoryHairdresser = "hairdresser"
)

// BookingRequest is a user's intent to obtain an appointment with a
// third-party provider. After creation it is written only through the
// booking store's TransitionTo.
type BookingRequest struct {
	ID            string                 `gorm:"primaryKey;size:36" json:"id"`
	OwnerID       string                 `gorm:"size:64;not null;index" json:"owner_id"`
	Category      string                 `gorm:"size:32;not null" json:"category"`
	ProviderName  string                 `gorm:"size:128;not null" json:"provider_name"`
	ProviderPhone string                 `gorm:"size:32;not null" json:"provider_phone"`
	Preference    AvailabilityPreference `gorm:"serializer:json;type:text" json:"preference"`
	Details       BookingDetails         `gorm:"serializer:json;type:text" json:"details"`
	Status        string                 `gorm:"size:16;default:pending;index" json:"status"`
	CallID        string                 `gorm:"size:64;index" json:"call_id,omitempty"`
	ConfirmedAt   *time.Time             `json:"confirmed_at,omitempty"`
	EventRef      *string                `gorm:"size:64" json:"event_ref,omitempty"`
	Transcript    *string                `gorm:"type:text" json:"transcript,omitempty"`
	FailureReason string                 `gorm:"size:32" json:"failure_reason,omitempty"`
	NeedsReview   bool                   `gorm:"default:false" json:"needs_review"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `gorm:"index" json:"updated_at"`
}

// IsTerminal reports whether the request has reached Confirmed or Failed.
func (b *BookingRequest) IsTerminal() bool {
	return b.Status == StatusConfirmed || b.Status == StatusFailed
}

// AvailabilityPreference describes when the appointment should happen:
// either candidate dates with coarse time-of-day buckets, or one exact
// instant. Exactly one of the two modes applies.
type AvailabilityPreference struct {
	Dates     []string   `json:"dates,omitempty"` // YYYY-MM-DD
	Morning   bool       `json:"morning,omitempty"`
	Afternoon bool       `json:"afternoon,omitempty"`
	Evening   bool       `json:"evening,omitempty"`
	ExactTime *time.Time `json:"exact_time,omitempty"`
	Notes     string     `json:"notes,omitempty"`
}

// IsExact reports whether the preference is in exact-time mode.
func (p AvailabilityPreference) IsExact() bool {
	return p.ExactTime != nil
}

// Buckets returns the set bucket names in day order.
func (p AvailabilityPreference) Buckets() []string {
	var out []string
	if p.Morning {
		out = append(out, "morning")
	}
	if p.Afternoon {
		out = append(out, "afternoon")
	}
	if p.Evening {
		out = append(out, "evening")
	}
	return out
}

// BookingDetails holds the category-specific fields of a request.
type BookingDetails struct {
	Reason    string            `json:"reason,omitempty"`     // medical
	PartySize int               `json:"party_size,omitempty"` // restaurant
	Service   string            `json:"service,omitempty"`    // hairdresser
	Extra     map[string]string `json:"extra,omitempty"`
}
