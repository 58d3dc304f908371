package core

import (
	"errors"
	"regexp"
	"sort"
	"time"
)

// DayKeyLayout is the canonical calendar-date form used as the ledger key.
const DayKeyLayout = "2006-01-02"

// DefaultDailyGoal is the step target the progress display is rendered against.
const DefaultDailyGoal = 10000

// Conversion factors for the derived per-entry metrics.
const (
	KilometersPerStep = 0.0008
	CaloriesPerStep   = 0.04
)

type (
	// DayKey is a calendar date in YYYY-MM-DD form. Keys compare
	// correctly as plain strings, which the ledger relies on for sorting.
	DayKey string

	// DayEntry is one ledger record: the steps attributed to a single
	// calendar date. At most one entry exists per date.
	DayEntry struct {
		Date  DayKey `json:"date"`
		Steps int64  `json:"steps"`
	}
)

var (
	ErrNegativeDelta = errors.New("negative step delta")
	ErrInvalidDate   = errors.New("invalid date key")
	ErrInvalidWindow = errors.New("invalid summary window")

	dayKeyPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// DayKeyFor returns the day key for a point in time, in that time's location.
func DayKeyFor(t time.Time) DayKey {
	return DayKey(t.Format(DayKeyLayout))
}

func (k DayKey) Validate() error {
	if !dayKeyPattern.MatchString(string(k)) {
		return ErrInvalidDate
	}
	if _, err := time.Parse(DayKeyLayout, string(k)); err != nil {
		return ErrInvalidDate
	}
	return nil
}

// Time parses the key back into a time at midnight UTC.
func (k DayKey) Time() (time.Time, error) {
	t, err := time.Parse(DayKeyLayout, string(k))
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

func (k DayKey) String() string {
	return string(k)
}

func (e DayEntry) Validate() error {
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if e.Steps < 0 {
		return ErrNegativeDelta
	}
	return nil
}

// DistanceKM estimates walked distance for the entry.
func (e DayEntry) DistanceKM() float64 {
	return float64(e.Steps) * KilometersPerStep
}

// Calories estimates burned calories for the entry.
func (e DayEntry) Calories() float64 {
	return float64(e.Steps) * CaloriesPerStep
}

// SortDescending orders entries newest-first in place.
func SortDescending(entries []DayEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Date > entries[j].Date
	})
}

// SortAscending orders entries oldest-first in place.
func SortAscending(entries []DayEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Date < entries[j].Date
	})
}
