package booking

import (
	"sort"
	"strings"
	"sync"

	"github.com/zulandar/dialbook/internal/models"
)

// DetailsCheck validates the category-specific details of a request and
// records problems on verr.
type DetailsCheck func(d models.BookingDetails, verr *ValidationError)

var (
	categoryMu sync.RWMutex
	categories = map[string]DetailsCheck{
		models.CategoryMedical: func(d models.BookingDetails, verr *ValidationError) {
			if strings.TrimSpace(d.Reason) == "" {
				verr.add("details.reason", "is required for medical appointments")
			}
		},
		models.CategoryRestaurant: func(d models.BookingDetails, verr *ValidationError) {
			if d.PartySize <= 0 {
				verr.add("details.party_size", "must be a positive number")
			}
		},
		models.CategoryHairdresser: func(d models.BookingDetails, verr *ValidationError) {
			if strings.TrimSpace(d.Service) == "" {
				verr.add("details.service", "is required for hairdresser appointments")
			}
		},
	}
)

// RegisterCategory adds or replaces a category and its details check. A nil
// check accepts any details.
func RegisterCategory(name string, check DetailsCheck) {
	if check == nil {
		check = func(models.BookingDetails, *ValidationError) {}
	}
	categoryMu.Lock()
	defer categoryMu.Unlock()
	categories[name] = check
}

// Categories returns the registered category names, sorted.
func Categories() []string {
	categoryMu.RLock()
	defer categoryMu.RUnlock()
	out := make([]string, 0, len(categories))
	for name := range categories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func lookupCategory(name string) (DetailsCheck, bool) {
	categoryMu.RLock()
	defer categoryMu.RUnlock()
	check, ok := categories[name]
	return check, ok
}
