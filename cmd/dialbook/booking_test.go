package main

import (
	"strings"
	"testing"
	"time"

	"github.com/zulandar/dialbook/internal/models"
)

// createBooking migrates, creates a restaurant request for u1 and returns
// the config path and request id.
func createBooking(t *testing.T) (string, string) {
	t.Helper()
	cfg := writeTestConfig(t)
	if _, err := run(t, "db", "migrate", "-c", cfg); err != nil {
		t.Fatalf("db migrate: %v", err)
	}

	out, err := run(t, "booking", "create", "-c", cfg,
		"--owner", "u1",
		"--category", "restaurant",
		"--provider", "Trattoria Roma",
		"--phone", "+4930123456",
		"--date", "2025-03-12",
		"--bucket", "evening",
		"--party-size", "4")
	if err != nil {
		t.Fatalf("booking create: %v\n%s", err, out)
	}
	fields := strings.Fields(out)
	if len(fields) < 3 || fields[0] != "Created" {
		t.Fatalf("unexpected create output: %s", out)
	}
	if !strings.Contains(out, "(pending)") {
		t.Errorf("create output = %s, want pending", out)
	}
	return cfg, fields[2]
}

func TestBookingCmd_Help(t *testing.T) {
	out, err := run(t, "booking", "--help")
	if err != nil {
		t.Fatalf("booking --help failed: %v", err)
	}
	for _, sub := range []string{"create", "list", "show", "call"} {
		if !strings.Contains(out, sub) {
			t.Errorf("expected help to list %q, got: %s", sub, out)
		}
	}
}

func TestBookingCreateCmd_RequiresOwner(t *testing.T) {
	_, err := run(t, "booking", "create", "-c", writeTestConfig(t), "--category", "medical")
	if err == nil || !strings.Contains(err.Error(), "owner") {
		t.Errorf("error = %v, want missing owner flag", err)
	}
}

func TestBookingCreateCmd_Invalid(t *testing.T) {
	cfg := writeTestConfig(t)
	if _, err := run(t, "db", "migrate", "-c", cfg); err != nil {
		t.Fatal(err)
	}

	_, err := run(t, "booking", "create", "-c", cfg, "--owner", "u1", "--category", "medical",
		"--provider", "Dr. Weber", "--phone", "+4930999")
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, field := range []string{"details.reason", "preference.dates"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("error %q does not mention %s", err, field)
		}
	}
}

func TestBookingCreateCmd_BadExactTime(t *testing.T) {
	_, err := run(t, "booking", "create", "-c", writeTestConfig(t), "--owner", "u1",
		"--category", "medical", "--provider", "Dr. Weber", "--phone", "+4930999",
		"--reason", "check-up", "--at", "next tuesday")
	if err == nil || !strings.Contains(err.Error(), "invalid --at") {
		t.Errorf("error = %v, want invalid --at", err)
	}
}

func TestBookingListAndShow(t *testing.T) {
	cfg, id := createBooking(t)

	out, err := run(t, "booking", "list", "-c", cfg, "--owner", "u1")
	if err != nil {
		t.Fatalf("booking list: %v", err)
	}
	for _, want := range []string{"ID", "PROVIDER", id, "restaurant", "Trattoria Roma", "pending"} {
		if !strings.Contains(out, want) {
			t.Errorf("list output missing %q:\n%s", want, out)
		}
	}

	out, err = run(t, "booking", "list", "-c", cfg, "--owner", "someone-else")
	if err != nil {
		t.Fatalf("booking list: %v", err)
	}
	if !strings.Contains(out, "No booking requests found.") {
		t.Errorf("other owner list = %s", out)
	}

	out, err = run(t, "booking", "show", id, "-c", cfg, "--owner", "u1")
	if err != nil {
		t.Fatalf("booking show: %v", err)
	}
	for _, want := range []string{"Trattoria Roma (+4930123456)", "Status:      pending", "2025-03-12 (evening)"} {
		if !strings.Contains(out, want) {
			t.Errorf("show output missing %q:\n%s", want, out)
		}
	}

	if _, err := run(t, "booking", "show", id, "-c", cfg, "--owner", "someone-else"); err == nil {
		t.Error("expected not found for another owner")
	}
}

func TestBookingCallCmd(t *testing.T) {
	cfg, id := createBooking(t)

	out, err := run(t, "booking", "call", id, "-c", cfg, "--owner", "u1")
	if err != nil {
		t.Fatalf("booking call: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Calling Trattoria Roma") || !strings.Contains(out, "(call LOG") {
		t.Errorf("call output = %s", out)
	}

	out, err = run(t, "booking", "show", id, "-c", cfg, "--owner", "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Status:      calling") || !strings.Contains(out, "Call:        LOG") {
		t.Errorf("show after call = %s", out)
	}

	if _, err := run(t, "booking", "call", id, "-c", cfg, "--owner", "u1"); err == nil {
		t.Error("expected second call of the same request to fail")
	}
}

func TestParseExactTime(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skip("tzdata unavailable")
	}

	got, err := parseExactTime("2025-03-10 09:00", berlin)
	if err != nil {
		t.Fatalf("parseExactTime: %v", err)
	}
	if want := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("wall clock = %v, want %v", got.UTC(), want)
	}

	got, err = parseExactTime("2025-03-10T09:00:00Z", berlin)
	if err != nil {
		t.Fatalf("parseExactTime: %v", err)
	}
	if got.Hour() != 9 || got.Location() != time.UTC {
		t.Errorf("RFC 3339 = %v", got)
	}
}

func TestDescribePreference(t *testing.T) {
	exact := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		pref models.AvailabilityPreference
		want string
	}{
		{"exact", models.AvailabilityPreference{ExactTime: &exact}, "2025-03-10 08:00"},
		{"dates only", models.AvailabilityPreference{Dates: []string{"2025-03-12", "2025-03-13"}}, "2025-03-12, 2025-03-13"},
		{"buckets and notes", models.AvailabilityPreference{Dates: []string{"2025-03-12"}, Morning: true, Evening: true, Notes: "not before 8"},
			"2025-03-12 (morning, evening); not before 8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := describePreference(tt.pref, time.UTC); got != tt.want {
				t.Errorf("describePreference() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate(short) = %q", got)
	}
	if got := truncate("a very long provider name", 10); got != "a very ..." {
		t.Errorf("truncate(long) = %q", got)
	}
}
