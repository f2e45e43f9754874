package availability

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Hint is a date and/or clock time mentioned during the call. The zero Hint
// mentions nothing.
type Hint struct {
	Date    time.Time     // calendar day only; zero when none was named
	Weekday *time.Weekday // a named weekday, matched against candidates
	Hour    int
	Minute  int
	HasTime bool
}

// IsZero reports whether the hint carries no information.
func (h Hint) IsZero() bool {
	return h.Date.IsZero() && h.Weekday == nil && !h.HasTime
}

func (h Hint) day(loc *time.Location) (time.Time, bool) {
	if h.Date.IsZero() {
		return time.Time{}, false
	}
	return time.Date(h.Date.Year(), h.Date.Month(), h.Date.Day(), 0, 0, 0, 0, loc), true
}

var monthNames = map[string]time.Month{
	"january": time.January, "januar": time.January,
	"february": time.February, "februar": time.February,
	"march": time.March, "märz": time.March, "maerz": time.March,
	"april": time.April,
	"may": time.May, "mai": time.May,
	"june": time.June, "juni": time.June,
	"july": time.July, "juli": time.July,
	"august": time.August,
	"september": time.September, "sept": time.September,
	"october": time.October, "oktober": time.October,
	"november": time.November,
	"december": time.December, "dezember": time.December,
}

var weekdayNames = map[string]time.Weekday{
	"monday": time.Monday, "montag": time.Monday,
	"tuesday": time.Tuesday, "dienstag": time.Tuesday,
	"wednesday": time.Wednesday, "mittwoch": time.Wednesday,
	"thursday": time.Thursday, "donnerstag": time.Thursday,
	"friday": time.Friday, "freitag": time.Friday,
	"saturday": time.Saturday, "samstag": time.Saturday,
	"sunday": time.Sunday, "sonntag": time.Sunday,
}

var (
	isoDateRe    = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	dottedDateRe = regexp.MustCompile(`\b(\d{1,2})\.(\d{1,2})\.(\d{4}|\d{2})?`)
	monthDayRe   = regexp.MustCompile(`\b(` + alternation(monthNames) + `)\s+(\d{1,2})(?:st|nd|rd|th)?\b`)
	dayMonthRe   = regexp.MustCompile(`\b(\d{1,2})(?:st|nd|rd|th|\.)?\s+(?:of\s+)?(` + alternation(monthNames) + `)\b`)
	weekdayRe    = regexp.MustCompile(`\b(` + alternation(weekdayNames) + `)`)
	suffixClock  = regexp.MustCompile(`\b(\d{1,2})(?:[:.](\d{2}))?\s*(a\.?m\b\.?|p\.?m\b\.?|uhr\b|o'clock)`)
	plainClock   = regexp.MustCompile(`\b([01]?\d|2[0-3]):([0-5]\d)\b`)
	noonRe       = regexp.MustCompile(`\b(noon|midday|mittag)`)
)

// alternation builds a longest-first regexp alternation of the map's keys.
func alternation[V any](m map[string]V) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, regexp.QuoteMeta(k))
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return strings.Join(keys, "|")
}

// ExtractHint scans texts in order and returns the first date and the first
// clock time found, each possibly from a different text. English and German
// phrasings are recognized. Dates without a year take now's year, rolling
// over to the next year when that day has already passed.
func ExtractHint(now time.Time, texts ...string) Hint {
	var h Hint
	dateFound := false
	for _, raw := range texts {
		text := strings.ToLower(raw)
		if !dateFound {
			if d, ok := findDate(text, now); ok {
				h.Date = d
				dateFound = true
			} else if h.Weekday == nil {
				if m := weekdayRe.FindStringSubmatch(text); m != nil {
					wd := weekdayNames[m[1]]
					h.Weekday = &wd
				}
			}
		}
		if !h.HasTime {
			if hour, minute, ok := findClock(text); ok {
				h.Hour, h.Minute, h.HasTime = hour, minute, true
			}
		}
		if dateFound && h.HasTime {
			break
		}
	}
	if dateFound {
		h.Weekday = nil
	}
	return h
}

func findDate(text string, now time.Time) (time.Time, bool) {
	if m := isoDateRe.FindStringSubmatch(text); m != nil {
		if d, ok := mkDate(atoi(m[1]), atoi(m[2]), atoi(m[3])); ok {
			return d, true
		}
	}
	if m := dottedDateRe.FindStringSubmatch(text); m != nil {
		year := 0
		if m[3] != "" {
			year = atoi(m[3])
			if year < 100 {
				year += 2000
			}
		}
		if d, ok := dateWithYear(year, atoi(m[2]), atoi(m[1]), now); ok {
			return d, true
		}
	}
	if m := monthDayRe.FindStringSubmatch(text); m != nil {
		if d, ok := dateWithYear(0, int(monthNames[m[1]]), atoi(m[2]), now); ok {
			return d, true
		}
	}
	if m := dayMonthRe.FindStringSubmatch(text); m != nil {
		if d, ok := dateWithYear(0, int(monthNames[m[2]]), atoi(m[1]), now); ok {
			return d, true
		}
	}
	return time.Time{}, false
}

func findClock(text string) (int, int, bool) {
	if m := suffixClock.FindStringSubmatch(text); m != nil {
		hour, minute := atoi(m[1]), 0
		if m[2] != "" {
			minute = atoi(m[2])
		}
		switch suffix := strings.ReplaceAll(m[3], ".", ""); {
		case strings.HasPrefix(suffix, "pm") && hour < 12:
			hour += 12
		case strings.HasPrefix(suffix, "am") && hour == 12:
			hour = 0
		}
		if hour <= 23 && minute <= 59 {
			return hour, minute, true
		}
	}
	if m := plainClock.FindStringSubmatch(text); m != nil {
		return atoi(m[1]), atoi(m[2]), true
	}
	if noonRe.MatchString(text) {
		return 12, 0, true
	}
	return 0, 0, false
}

func dateWithYear(year, month, day int, now time.Time) (time.Time, bool) {
	if year != 0 {
		return mkDate(year, month, day)
	}
	d, ok := mkDate(now.Year(), month, day)
	if !ok {
		return time.Time{}, false
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if d.Before(today) {
		return mkDate(now.Year()+1, month, day)
	}
	return d, true
}

// mkDate returns the UTC midnight of year-month-day, rejecting values that
// time.Date would normalize into a different day.
func mkDate(year, month, day int) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if d.Day() != day || int(d.Month()) != month {
		return time.Time{}, false
	}
	return d, true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
