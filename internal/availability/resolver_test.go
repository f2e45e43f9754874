package availability

import (
	"testing"
	"time"

	"github.com/zulandar/dialbook/internal/models"
)

var now = time.Date(2025, 3, 8, 15, 30, 0, 0, time.UTC)

func TestResolve_ExactTimeUnchanged(t *testing.T) {
	exact := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	pref := models.AvailabilityPreference{ExactTime: &exact}

	hour := 16
	got := Resolve(pref, models.CategoryMedical, now, Hint{Hour: hour, HasTime: true})
	if !got.Start.Equal(exact) {
		t.Errorf("Start = %v, want %v", got.Start, exact)
	}
	if got.Duration != 30*time.Minute {
		t.Errorf("Duration = %v, want 30m", got.Duration)
	}
	if got.Source != SourceExact {
		t.Errorf("Source = %q, want exact", got.Source)
	}
	if !got.End().Equal(exact.Add(30 * time.Minute)) {
		t.Errorf("End = %v", got.End())
	}
}

func TestResolve_CandidateBuckets(t *testing.T) {
	tests := []struct {
		name     string
		category string
		pref     models.AvailabilityPreference
		want     time.Time
	}{
		{
			name:     "medical morning",
			category: models.CategoryMedical,
			pref:     models.AvailabilityPreference{Dates: []string{"2025-03-12"}, Morning: true},
			want:     time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC),
		},
		{
			name:     "hairdresser morning",
			category: models.CategoryHairdresser,
			pref:     models.AvailabilityPreference{Dates: []string{"2025-03-12"}, Morning: true},
			want:     time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC),
		},
		{
			name:     "restaurant evening earliest candidate",
			category: models.CategoryRestaurant,
			pref:     models.AvailabilityPreference{Dates: []string{"2025-03-13", "2025-03-12"}, Evening: true},
			want:     time.Date(2025, 3, 12, 19, 0, 0, 0, time.UTC),
		},
		{
			name:     "medical afternoon",
			category: models.CategoryMedical,
			pref:     models.AvailabilityPreference{Dates: []string{"2025-03-14"}, Afternoon: true},
			want:     time.Date(2025, 3, 14, 14, 0, 0, 0, time.UTC),
		},
		{
			name:     "earliest bucket wins",
			category: models.CategoryRestaurant,
			pref:     models.AvailabilityPreference{Dates: []string{"2025-03-14"}, Afternoon: true, Evening: true},
			want:     time.Date(2025, 3, 14, 13, 0, 0, 0, time.UTC),
		},
		{
			name:     "no bucket defaults to midday",
			category: models.CategoryHairdresser,
			pref:     models.AvailabilityPreference{Dates: []string{"2025-03-14"}},
			want:     time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.pref, tt.category, now, Hint{})
			if !got.Start.Equal(tt.want) {
				t.Errorf("Start = %v, want %v", got.Start, tt.want)
			}
			if got.Source != SourceCandidate {
				t.Errorf("Source = %q, want candidate", got.Source)
			}
			if got.LowConfidence() {
				t.Error("LowConfidence() = true for a candidate slot")
			}
		})
	}
}

func TestResolve_BucketHoursInRange(t *testing.T) {
	ranges := map[string][2]int{"morning": {9, 12}, "afternoon": {13, 17}, "evening": {17, 20}}
	for _, cat := range []string{models.CategoryMedical, models.CategoryHairdresser, models.CategoryRestaurant, "other"} {
		for bucket, r := range ranges {
			h, ok := BucketHour(cat, bucket)
			if !ok {
				t.Fatalf("BucketHour(%s, %s) unknown", cat, bucket)
			}
			if h < r[0] || h >= r[1] {
				t.Errorf("BucketHour(%s, %s) = %d, want in [%d,%d)", cat, bucket, h, r[0], r[1])
			}
		}
	}
	if _, ok := BucketHour(models.CategoryMedical, "night"); ok {
		t.Error("BucketHour accepted unknown bucket")
	}
}

func TestResolve_Fallback(t *testing.T) {
	got := Resolve(models.AvailabilityPreference{}, models.CategoryRestaurant, now, Hint{})
	want := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	if !got.Start.Equal(want) {
		t.Errorf("Start = %v, want %v", got.Start, want)
	}
	if got.Duration != 120*time.Minute {
		t.Errorf("Duration = %v, want 120m", got.Duration)
	}
	if !got.LowConfidence() {
		t.Error("LowConfidence() = false for fallback")
	}
}

func TestResolve_FallbackWhenAllCandidatesMalformed(t *testing.T) {
	pref := models.AvailabilityPreference{Dates: []string{"soon", "13/03/2025"}}
	got := Resolve(pref, models.CategoryMedical, now, Hint{})
	if got.Source != SourceFallback {
		t.Errorf("Source = %q, want fallback", got.Source)
	}
}

func TestResolve_UsesNowLocation(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	pref := models.AvailabilityPreference{Dates: []string{"2025-03-12"}, Morning: true}
	got := Resolve(pref, models.CategoryMedical, now.In(berlin), Hint{})
	want := time.Date(2025, 3, 12, 9, 0, 0, 0, berlin)
	if !got.Start.Equal(want) {
		t.Errorf("Start = %v, want %v", got.Start, want)
	}
}

func TestResolve_HintWins(t *testing.T) {
	pref := models.AvailabilityPreference{Dates: []string{"2025-03-12", "2025-03-13"}, Evening: true}
	thu := time.Thursday

	tests := []struct {
		name       string
		hint       Hint
		want       time.Time
		wantSource Source
	}{
		{
			name:       "candidate date and clock",
			hint:       Hint{Date: time.Date(2025, 3, 13, 0, 0, 0, 0, time.UTC), Hour: 20, Minute: 30, HasTime: true},
			want:       time.Date(2025, 3, 13, 20, 30, 0, 0, time.UTC),
			wantSource: SourceTranscript,
		},
		{
			name:       "clock only keeps earliest date",
			hint:       Hint{Hour: 18, Minute: 15, HasTime: true},
			want:       time.Date(2025, 3, 12, 18, 15, 0, 0, time.UTC),
			wantSource: SourceTranscript,
		},
		{
			name:       "date only uses bucket hour",
			hint:       Hint{Date: time.Date(2025, 3, 13, 0, 0, 0, 0, time.UTC)},
			want:       time.Date(2025, 3, 13, 19, 0, 0, 0, time.UTC),
			wantSource: SourceTranscript,
		},
		{
			name:       "non-candidate date ignored",
			hint:       Hint{Date: time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC)},
			want:       time.Date(2025, 3, 12, 19, 0, 0, 0, time.UTC),
			wantSource: SourceCandidate,
		},
		{
			name:       "weekday picks matching candidate",
			hint:       Hint{Weekday: &thu},
			want:       time.Date(2025, 3, 13, 19, 0, 0, 0, time.UTC),
			wantSource: SourceTranscript,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(pref, models.CategoryRestaurant, now, tt.hint)
			if !got.Start.Equal(tt.want) {
				t.Errorf("Start = %v, want %v", got.Start, tt.want)
			}
			if got.Source != tt.wantSource {
				t.Errorf("Source = %q, want %q", got.Source, tt.wantSource)
			}
		})
	}
}

func TestResolve_HintDateWithoutCandidates(t *testing.T) {
	hint := Hint{Date: time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC), Hour: 10, HasTime: true}
	got := Resolve(models.AvailabilityPreference{}, models.CategoryMedical, now, hint)
	want := time.Date(2025, 3, 11, 10, 0, 0, 0, time.UTC)
	if !got.Start.Equal(want) {
		t.Errorf("Start = %v, want %v", got.Start, want)
	}
	if got.LowConfidence() {
		t.Error("LowConfidence() = true for a transcript slot")
	}
}

func TestDuration(t *testing.T) {
	tests := map[string]time.Duration{
		models.CategoryMedical:     30 * time.Minute,
		models.CategoryHairdresser: 60 * time.Minute,
		models.CategoryRestaurant:  120 * time.Minute,
		"veterinary":               60 * time.Minute,
	}
	for cat, want := range tests {
		if got := Duration(cat); got != want {
			t.Errorf("Duration(%s) = %v, want %v", cat, got, want)
		}
	}
}
