package dialogue

import (
	"fmt"
	"strings"
	"time"

	"github.com/zulandar/dialbook/internal/models"
)

// Supported conversation languages.
const (
	LanguageEnglish = "en"
	LanguageGerman  = "de"
)

var categoryNouns = map[string]map[string]string{
	LanguageEnglish: {
		models.CategoryMedical:     "a medical appointment",
		models.CategoryRestaurant:  "a table reservation",
		models.CategoryHairdresser: "a hairdresser appointment",
	},
	LanguageGerman: {
		models.CategoryMedical:     "einen Arzttermin",
		models.CategoryRestaurant:  "eine Tischreservierung",
		models.CategoryHairdresser: "einen Friseurtermin",
	},
}

var bucketWords = map[string]map[string]string{
	LanguageEnglish: {"morning": "in the morning", "afternoon": "in the afternoon", "evening": "in the evening"},
	LanguageGerman:  {"morning": "vormittags", "afternoon": "nachmittags", "evening": "abends"},
}

// NormalizeLanguage returns lang when supported and English otherwise.
func NormalizeLanguage(lang string) string {
	if strings.EqualFold(lang, LanguageGerman) {
		return LanguageGerman
	}
	return LanguageEnglish
}

// DescribeCategory names what is being booked, e.g. "a table reservation".
func DescribeCategory(category, lang string) string {
	lang = NormalizeLanguage(lang)
	if noun, ok := categoryNouns[lang][category]; ok {
		return noun
	}
	if lang == LanguageGerman {
		return "einen Termin"
	}
	return "an appointment"
}

// DescribeTime renders the requested time in words.
func DescribeTime(pref models.AvailabilityPreference, lang string) string {
	lang = NormalizeLanguage(lang)
	if pref.ExactTime != nil {
		if lang == LanguageGerman {
			return pref.ExactTime.Format("02.01.2006") + " um " + pref.ExactTime.Format("15:04") + " Uhr"
		}
		return pref.ExactTime.Format("Monday, January 2 at 3:04 PM")
	}

	var days []string
	for _, d := range pref.Dates {
		t, err := time.Parse(models.DateLayout, d)
		if err != nil {
			continue
		}
		if lang == LanguageGerman {
			days = append(days, t.Format("02.01."))
		} else {
			days = append(days, t.Format("Monday, January 2"))
		}
	}
	or := " or "
	if lang == LanguageGerman {
		or = " oder "
	}
	out := strings.Join(days, or)
	var buckets []string
	for _, b := range pref.Buckets() {
		buckets = append(buckets, bucketWords[lang][b])
	}
	if len(buckets) > 0 {
		out = strings.TrimSpace(out + " " + strings.Join(buckets, or))
	}
	if out == "" {
		if lang == LanguageGerman {
			return "in den nächsten Tagen"
		}
		return "in the next few days"
	}
	return out
}

// DescribeDetails renders the category-specific details as a short phrase,
// or "" when there is nothing to add.
func DescribeDetails(category string, d models.BookingDetails, lang string) string {
	de := NormalizeLanguage(lang) == LanguageGerman
	switch category {
	case models.CategoryMedical:
		if d.Reason != "" {
			if de {
				return "Grund: " + d.Reason
			}
			return "reason: " + d.Reason
		}
	case models.CategoryRestaurant:
		if d.PartySize > 0 {
			if de {
				return fmt.Sprintf("für %d Personen", d.PartySize)
			}
			return fmt.Sprintf("for %d people", d.PartySize)
		}
	case models.CategoryHairdresser:
		if d.Service != "" {
			if de {
				return "Leistung: " + d.Service
			}
			return "service: " + d.Service
		}
	}
	return ""
}
