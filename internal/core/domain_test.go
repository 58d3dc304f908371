package core

import (
	"errors"
	"testing"
	"time"
)

func TestDayKeyFor(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tz database unavailable: %v", err)
	}

	tests := []struct {
		name     string
		at       time.Time
		expected DayKey
	}{
		{
			name:     "utc midday",
			at:       time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
			expected: "2024-06-01",
		},
		{
			name:     "local zone wins over utc",
			at:       time.Date(2024, 6, 2, 1, 30, 0, 0, loc),
			expected: "2024-06-02",
		},
		{
			name:     "just before midnight",
			at:       time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC),
			expected: "2024-12-31",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DayKeyFor(tt.at); got != tt.expected {
				t.Errorf("DayKeyFor() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestDayKeyValidate(t *testing.T) {
	tests := []struct {
		key   DayKey
		valid bool
	}{
		{"2024-06-01", true},
		{"1999-12-31", true},
		{"2024-6-1", false},
		{"2024-13-01", false},
		{"2024-02-30", false},
		{"not-a-date", false},
		{"", false},
		{"2024-06-01T00:00:00", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.key), func(t *testing.T) {
			err := tt.key.Validate()
			if tt.valid && err != nil {
				t.Errorf("Validate(%q) = %v, want nil", tt.key, err)
			}
			if !tt.valid && !errors.Is(err, ErrInvalidDate) {
				t.Errorf("Validate(%q) = %v, want ErrInvalidDate", tt.key, err)
			}
		})
	}
}

func TestDayEntryValidate(t *testing.T) {
	if err := (DayEntry{Date: "2024-06-01", Steps: 0}).Validate(); err != nil {
		t.Errorf("zero-step entry should be valid, got %v", err)
	}
	if err := (DayEntry{Date: "2024-06-01", Steps: -1}).Validate(); !errors.Is(err, ErrNegativeDelta) {
		t.Errorf("negative steps should fail with ErrNegativeDelta, got %v", err)
	}
	if err := (DayEntry{Date: "junk", Steps: 10}).Validate(); !errors.Is(err, ErrInvalidDate) {
		t.Errorf("bad date should fail with ErrInvalidDate, got %v", err)
	}
}

func TestDerivedMetrics(t *testing.T) {
	e := DayEntry{Date: "2024-06-01", Steps: 10000}
	if got := e.DistanceKM(); got != 8.0 {
		t.Errorf("DistanceKM() = %v, want 8.0", got)
	}
	if got := e.Calories(); got != 400.0 {
		t.Errorf("Calories() = %v, want 400.0", got)
	}
}

func TestSortOrders(t *testing.T) {
	entries := []DayEntry{
		{Date: "2024-01-02", Steps: 2},
		{Date: "2024-01-03", Steps: 3},
		{Date: "2024-01-01", Steps: 1},
	}

	SortDescending(entries)
	if entries[0].Date != "2024-01-03" || entries[2].Date != "2024-01-01" {
		t.Errorf("SortDescending order wrong: %v", entries)
	}

	SortAscending(entries)
	if entries[0].Date != "2024-01-01" || entries[2].Date != "2024-01-03" {
		t.Errorf("SortAscending order wrong: %v", entries)
	}
}
