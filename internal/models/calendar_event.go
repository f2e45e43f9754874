package models

import "time"

// CalendarEvent is an appointment written to a user's calendar. BookingID is
// unique so a retried create for the same booking returns the same event.
type CalendarEvent struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	OwnerID     string     `gorm:"size:64;not null;index" json:"owner_id"`
	BookingID   string     `gorm:"size:36;uniqueIndex" json:"booking_id"`
	Title       string     `gorm:"size:255;not null" json:"title"`
	Description string     `gorm:"type:text" json:"description"`
	Location    string     `gorm:"size:255" json:"location"`
	Category    string     `gorm:"size:32" json:"category"`
	StartAt     time.Time  `gorm:"not null;index" json:"start_at"`
	EndAt       time.Time  `gorm:"not null" json:"end_at"`
	CreatedAt   time.Time  `json:"created_at"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}
