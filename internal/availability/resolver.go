// Package availability turns a loosely structured availability preference
// into one concrete appointment slot. Everything here is pure.
package availability

import (
	"sort"
	"time"

	"github.com/zulandar/dialbook/internal/models"
)

// Source says where a resolved start time came from.
type Source string

const (
	SourceExact      Source = "exact"
	SourceTranscript Source = "transcript"
	SourceCandidate  Source = "candidate"
	SourceFallback   Source = "fallback"
)

// Resolution is a concrete slot.
type Resolution struct {
	Start    time.Time
	Duration time.Duration
	Source   Source
}

// End returns Start plus Duration.
func (r Resolution) End() time.Time {
	return r.Start.Add(r.Duration)
}

// LowConfidence reports whether the slot was invented rather than taken from
// the user's preference or the call. Callers flag such bookings for review.
func (r Resolution) LowConfidence() bool {
	return r.Source == SourceFallback
}

// bucketHours is the start hour used for each bucket, per category. Morning
// falls in [9,12), afternoon in [13,17), evening in [17,20).
var bucketHours = map[string][3]int{
	models.CategoryMedical:     {9, 14, 17},
	models.CategoryHairdresser: {10, 14, 17},
	models.CategoryRestaurant:  {11, 13, 19},
}

var defaultBucketHours = [3]int{10, 14, 18}

const (
	middayHour   = 12
	fallbackDays = 2
	fallbackHour = 14
)

// Duration returns the default appointment length for category.
func Duration(category string) time.Duration {
	switch category {
	case models.CategoryMedical:
		return 30 * time.Minute
	case models.CategoryHairdresser:
		return 60 * time.Minute
	case models.CategoryRestaurant:
		return 120 * time.Minute
	default:
		return 60 * time.Minute
	}
}

// BucketHour returns the start hour for bucket in category, and false for an
// unknown bucket.
func BucketHour(category, bucket string) (int, bool) {
	hours, ok := bucketHours[category]
	if !ok {
		hours = defaultBucketHours
	}
	switch bucket {
	case "morning":
		return hours[0], true
	case "afternoon":
		return hours[1], true
	case "evening":
		return hours[2], true
	}
	return 0, false
}

// Resolve picks the appointment slot. Candidate dates are interpreted in
// now's location. It never fails:
//   - exact mode returns the instant unchanged;
//   - a hint naming a candidate date or a clock time wins over the defaults;
//   - otherwise the earliest candidate at the earliest requested bucket hour,
//     or midday when no bucket is set;
//   - with no usable candidate, now plus two days at 14:00.
func Resolve(pref models.AvailabilityPreference, category string, now time.Time, hint Hint) Resolution {
	dur := Duration(category)
	if pref.ExactTime != nil && !pref.ExactTime.IsZero() {
		return Resolution{Start: *pref.ExactTime, Duration: dur, Source: SourceExact}
	}

	loc := now.Location()
	candidates := parseDates(pref.Dates, loc)

	day, dayFromHint := pickDay(candidates, hint, loc)
	if day.IsZero() {
		fb := now.AddDate(0, 0, fallbackDays)
		start := time.Date(fb.Year(), fb.Month(), fb.Day(), fallbackHour, 0, 0, 0, loc)
		return Resolution{Start: start, Duration: dur, Source: SourceFallback}
	}

	hour, minute := middayHour, 0
	clockFromHint := false
	if hint.HasTime {
		hour, minute = hint.Hour, hint.Minute
		clockFromHint = true
	} else if buckets := pref.Buckets(); len(buckets) > 0 {
		hour, _ = BucketHour(category, buckets[0])
	}

	src := SourceCandidate
	if dayFromHint || clockFromHint {
		src = SourceTranscript
	}
	start := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc)
	return Resolution{Start: start, Duration: dur, Source: src}
}

// pickDay returns the hinted date when it is a candidate (or when there are
// no candidates at all), otherwise the earliest candidate.
func pickDay(candidates []time.Time, hint Hint, loc *time.Location) (time.Time, bool) {
	if hd, ok := hint.day(loc); ok {
		if len(candidates) == 0 {
			return hd, true
		}
		for _, c := range candidates {
			if c.Equal(hd) {
				return c, true
			}
		}
	}
	if hint.Weekday != nil {
		for _, c := range candidates {
			if c.Weekday() == *hint.Weekday {
				return c, true
			}
		}
	}
	if len(candidates) == 0 {
		return time.Time{}, false
	}
	return candidates[0], false
}

// parseDates returns the valid dates in ascending order; malformed entries
// are skipped.
func parseDates(dates []string, loc *time.Location) []time.Time {
	out := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		t, err := time.ParseInLocation(models.DateLayout, d, loc)
		if err != nil {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
