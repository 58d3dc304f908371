package core

import "math"

// Summary aggregates the most recent entries of the ledger.
//
// The window is counted in entries, not calendar days: dates with no
// recorded steps are simply absent and never count as zero-step days,
// so the average divisor is the number of entries actually present.
type Summary struct {
	WindowDays int      `json:"window_days"` // requested window, 0 = all
	Entries    int      `json:"entries"`
	Total      int64    `json:"total"`
	Average    int64    `json:"average"`
	Best       DayEntry `json:"best"`
	DistanceKM float64  `json:"distance_km"`
	Calories   float64  `json:"calories"`
}

// ComputeSummary aggregates the first windowDays entries of a
// descending-by-date ledger snapshot. windowDays 0 means all entries.
// Returns nil when the window contains no entries.
//
// Best-day ties prefer the more recent date: iteration is newest-first
// and only a strictly greater count displaces the current best.
func ComputeSummary(entries []DayEntry, windowDays int) *Summary {
	if windowDays < 0 {
		return nil
	}

	window := entries
	if windowDays > 0 && len(entries) > windowDays {
		window = entries[:windowDays]
	}
	if len(window) == 0 {
		return nil
	}

	s := &Summary{
		WindowDays: windowDays,
		Entries:    len(window),
		Best:       window[0],
	}
	for _, e := range window {
		s.Total += e.Steps
		if e.Steps > s.Best.Steps {
			s.Best = e
		}
	}
	s.Average = int64(math.Round(float64(s.Total) / float64(len(window))))
	s.DistanceKM = float64(s.Total) * KilometersPerStep
	s.Calories = float64(s.Total) * CaloriesPerStep
	return s
}
