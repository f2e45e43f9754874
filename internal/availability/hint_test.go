package availability

import (
	"testing"
	"time"
)

func TestExtractHint_Dates(t *testing.T) {
	tests := []struct {
		name string
		text string
		want time.Time
	}{
		{"iso", "We can do 2025-03-12 if that suits.", time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)},
		{"german dotted", "Passt Ihnen der 13.03.?", time.Date(2025, 3, 13, 0, 0, 0, 0, time.UTC)},
		{"german dotted with year", "am 14.03.2025 geht es", time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)},
		{"month day", "How about March 12th?", time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)},
		{"day of month", "the 13th of March works", time.Date(2025, 3, 13, 0, 0, 0, 0, time.UTC)},
		{"german day month", "Am 12. März hätten wir etwas frei.", time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)},
		{"past day rolls to next year", "January 5 is open", time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := ExtractHint(now, tt.text)
			if !h.Date.Equal(tt.want) {
				t.Errorf("Date = %v, want %v", h.Date, tt.want)
			}
		})
	}
}

func TestExtractHint_InvalidDateIgnored(t *testing.T) {
	h := ExtractHint(now, "Call back at 31.02. please")
	if !h.Date.IsZero() {
		t.Errorf("Date = %v, want zero for 31 February", h.Date)
	}
}

func TestExtractHint_Clock(t *testing.T) {
	tests := []struct {
		text         string
		hour, minute int
	}{
		{"see you at 7 pm", 19, 0},
		{"at 7:30pm then", 19, 30},
		{"9 a.m. is free", 9, 0},
		{"12 am", 0, 0},
		{"12 pm", 12, 0},
		{"um 19 Uhr", 19, 0},
		{"um 9.30 Uhr", 9, 30},
		{"we have 14:45 available", 14, 45},
		{"around noon", 12, 0},
		{"gegen Mittag", 12, 0},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			h := ExtractHint(now, tt.text)
			if !h.HasTime {
				t.Fatal("HasTime = false")
			}
			if h.Hour != tt.hour || h.Minute != tt.minute {
				t.Errorf("clock = %02d:%02d, want %02d:%02d", h.Hour, h.Minute, tt.hour, tt.minute)
			}
		})
	}
}

func TestExtractHint_Weekday(t *testing.T) {
	h := ExtractHint(now, "Thursday evening would be fine")
	if h.Weekday == nil || *h.Weekday != time.Thursday {
		t.Fatalf("Weekday = %v, want Thursday", h.Weekday)
	}

	h = ExtractHint(now, "Mittwoch, den 12.03. um 19 Uhr")
	if h.Weekday != nil {
		t.Error("Weekday kept although an explicit date was found")
	}
	if h.Date.Day() != 12 || h.Hour != 19 {
		t.Errorf("hint = %+v", h)
	}
}

func TestExtractHint_FirstTextWins(t *testing.T) {
	h := ExtractHint(now,
		"Yes, 8 pm is fine.",
		"We have March 12 or March 13 at 7 pm.",
	)
	if h.Hour != 20 {
		t.Errorf("Hour = %d, want 20 from the first text", h.Hour)
	}
	if h.Date.Day() != 12 {
		t.Errorf("Date = %v, want March 12 from the second text", h.Date)
	}
}

func TestExtractHint_Nothing(t *testing.T) {
	h := ExtractHint(now, "Yes, that works for us.", "")
	if !h.IsZero() {
		t.Errorf("hint = %+v, want zero", h)
	}
}
