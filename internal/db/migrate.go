package db

import (
	"fmt"

	"github.com/zulandar/dialbook/internal/models"
	"gorm.io/gorm"
)

// AllModels returns every GORM model that needs a table.
func AllModels() []interface{} {
	return []interface{}{
		&models.BookingRequest{},
		&models.CalendarEvent{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
