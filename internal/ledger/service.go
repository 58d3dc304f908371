// Package ledger implements the daily step ledger: an append-style record of
// one entry per calendar day, with a live counter for the current day.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"stepledger/internal/core"
	"stepledger/internal/log"
	"stepledger/internal/metrics"
	"stepledger/internal/sensor"
)

// Store persists the whole ledger document under a single key.
type Store interface {
	LoadLedger(ctx context.Context) ([]core.DayEntry, error)
	SaveLedger(ctx context.Context, entries []core.DayEntry) error
	DeleteLedger(ctx context.Context) error
}

// GoalNotifier is told when the daily goal is reached for a given day.
type GoalNotifier interface {
	NotifyGoalReached(ctx context.Context, date core.DayKey, steps, goal int64) error
}

// AppState mirrors the lifecycle states reported by clients.
type AppState string

const (
	StateActive     AppState = "active"
	StateBackground AppState = "background"
	StateInactive   AppState = "inactive"
)

// TodaySnapshot is the live view of the current day.
type TodaySnapshot struct {
	Date       core.DayKey         `json:"date"`
	Steps      int64               `json:"steps"`
	Goal       int64               `json:"goal"`
	Progress   float64             `json:"progress"`
	DistanceKM float64             `json:"distance_km"`
	Calories   float64             `json:"calories"`
	Sensor     sensor.Availability `json:"sensor"`
}

// Config tunes a Service. Zero values fall back to defaults.
type Config struct {
	DailyGoal int64
	Now       func() time.Time
}

// Service owns the ledger state. All operations are serialized by a mutex so
// that concurrent deltas, lifecycle transitions and reads observe a
// consistent ledger.
type Service struct {
	mu       sync.Mutex
	store    Store
	notifier GoalNotifier
	metrics  *metrics.Metrics
	logger   *log.Logger
	now      func() time.Time
	goal     int64

	entries      []core.DayEntry
	currentDate  core.DayKey
	liveSteps    int64
	goalNotified core.DayKey
	availability sensor.Availability

	// onMutate runs after every ledger mutation, whichever path it came
	// in on. The HTTP server registers its view-cache flush here.
	onMutate func()
}

// NewService wires a Service. The notifier and metrics may be nil.
func NewService(store Store, notifier GoalNotifier, m *metrics.Metrics, logger *log.Logger, cfg Config) *Service {
	if cfg.DailyGoal <= 0 {
		cfg.DailyGoal = core.DefaultDailyGoal
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		store:        store,
		notifier:     notifier,
		metrics:      m,
		logger:       logger.WithComponent(log.ComponentLedger),
		now:          cfg.Now,
		goal:         cfg.DailyGoal,
		availability: sensor.AvailabilityChecking,
	}
}

// Initialize loads the persisted ledger and resumes the current day's counter
// from it. A missing or unreadable document yields an empty ledger rather
// than an error: losing history is preferred over refusing to start.
func (s *Service) Initialize(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.store.LoadLedger(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "ledger load failed, starting empty", log.FieldError, err.Error())
		s.metrics.IncStorageErrors()
		entries = []core.DayEntry{}
	}

	s.entries = entries
	s.currentDate = core.DayKeyFor(s.now())
	s.liveSteps = s.stepsFor(s.currentDate)
	s.metrics.SetLedgerEntries(len(s.entries))

	s.logger.InfoContext(ctx, "ledger initialized",
		log.FieldDate, s.currentDate.String(),
		log.FieldSteps, s.liveSteps,
		log.FieldEntries, len(s.entries))
	return s.liveSteps, nil
}

// SetOnMutate registers a hook that runs after every mutation. It is meant
// to be called once during wiring, before the service receives traffic.
func (s *Service) SetOnMutate(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMutate = fn
}

// RecordDelta adds a step delta to the current day, persists the updated
// ledger and returns the resulting today view. Negative deltas are rejected.
// A failed write keeps the in-memory counter intact and is retried implicitly
// by the next delta.
func (s *Service) RecordDelta(ctx context.Context, delta int64) (TodaySnapshot, error) {
	if delta < 0 {
		return TodaySnapshot{}, fmt.Errorf("delta %d: %w", delta, core.ErrNegativeDelta)
	}

	s.mu.Lock()
	s.rollIfNeeded(ctx)
	s.liveSteps += delta
	s.upsertToday()
	s.metrics.AddStepsRecorded(delta)
	s.metrics.SetLedgerEntries(len(s.entries))

	if err := s.store.SaveLedger(ctx, s.entries); err != nil {
		s.logger.WarnContext(ctx, "ledger save failed",
			log.FieldDate, s.currentDate.String(),
			log.FieldError, err.Error())
		s.metrics.IncStorageErrors()
	}

	snap := s.snapshotLocked()
	notify := s.armGoalLocked()
	s.mu.Unlock()

	s.mutated()
	if notify {
		s.notifyGoal(ctx, snap.Date, snap.Steps)
	}
	return snap, nil
}

// HandleLifecycle reacts to app lifecycle transitions. Only a transition to
// the active state matters: it is the moment the service checks whether the
// calendar day changed while nothing was happening.
func (s *Service) HandleLifecycle(ctx context.Context, next AppState) {
	if next != StateActive {
		return
	}

	s.mu.Lock()
	rolled := s.rollIfNeeded(ctx)
	s.mu.Unlock()

	if rolled {
		s.mutated()
	}
}

// Today returns the live view of the current day.
func (s *Service) Today(ctx context.Context) TodaySnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// History returns a copy of the ledger, most recent day first by default.
func (s *Service) History(ctx context.Context, ascending bool) []core.DayEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]core.DayEntry, len(s.entries))
	copy(out, s.entries)
	if ascending {
		core.SortAscending(out)
	} else {
		core.SortDescending(out)
	}
	return out
}

// Summary aggregates the most recent windowDays entries. A window of 0 means
// all entries. The average divides by the number of entries actually present,
// not by the window size.
func (s *Service) Summary(ctx context.Context, windowDays int) (*core.Summary, error) {
	if windowDays < 0 {
		return nil, fmt.Errorf("window %d: %w", windowDays, core.ErrInvalidWindow)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sorted := make([]core.DayEntry, len(s.entries))
	copy(sorted, s.entries)
	core.SortDescending(sorted)
	return core.ComputeSummary(sorted, windowDays), nil
}

// Clear wipes the ledger, both in memory and in storage. It is idempotent.
func (s *Service) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.entries = nil
	s.liveSteps = 0
	s.goalNotified = ""
	s.metrics.SetLedgerEntries(0)
	err := s.store.DeleteLedger(ctx)
	s.mu.Unlock()

	// Memory was wiped regardless of the storage outcome.
	s.mutated()

	if err != nil {
		s.metrics.IncStorageErrors()
		return fmt.Errorf("deleting ledger: %w", err)
	}
	s.logger.InfoContext(ctx, "ledger cleared")
	return nil
}

// SetAvailability records the sensor probe result for the today view.
func (s *Service) SetAvailability(a sensor.Availability) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.availability = a
}

// rollIfNeeded resets the live counter when the calendar day changed since
// the last operation, reporting whether it did. There is no midnight timer:
// the roll happens lazily on the first delta or lifecycle activation of the
// new day. Callers hold s.mu.
func (s *Service) rollIfNeeded(ctx context.Context) bool {
	today := core.DayKeyFor(s.now())
	if today == s.currentDate {
		return false
	}

	previous := s.currentDate
	s.currentDate = today
	s.liveSteps = s.stepsFor(today)
	s.metrics.IncRollovers()
	s.logger.InfoContext(ctx, "day rollover",
		log.FieldDate, today.String(),
		"previous_date", previous.String(),
		log.FieldSteps, s.liveSteps)
	return true
}

// snapshotLocked builds the today view. Callers hold s.mu.
func (s *Service) snapshotLocked() TodaySnapshot {
	entry := core.DayEntry{Date: s.currentDate, Steps: s.liveSteps}
	progress := float64(s.liveSteps) / float64(s.goal) * 100
	if progress > 100 {
		progress = 100
	}
	return TodaySnapshot{
		Date:       s.currentDate,
		Steps:      s.liveSteps,
		Goal:       s.goal,
		Progress:   progress,
		DistanceKM: entry.DistanceKM(),
		Calories:   entry.Calories(),
		Sensor:     s.availability,
	}
}

// mutated runs the registered mutation hook, outside s.mu.
func (s *Service) mutated() {
	s.mu.Lock()
	fn := s.onMutate
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// upsertToday replaces or appends the current day's entry. Callers hold s.mu.
func (s *Service) upsertToday() {
	for i := range s.entries {
		if s.entries[i].Date == s.currentDate {
			s.entries[i].Steps = s.liveSteps
			return
		}
	}
	s.entries = append(s.entries, core.DayEntry{Date: s.currentDate, Steps: s.liveSteps})
}

// armGoalLocked marks the day notified the first time its total reaches the
// goal and reports whether a notification should go out. Marking happens
// before the publish, so a failed publish is not retried within the day.
// Callers hold s.mu.
func (s *Service) armGoalLocked() bool {
	if s.notifier == nil || s.liveSteps < s.goal || s.goalNotified == s.currentDate {
		return false
	}
	s.goalNotified = s.currentDate
	s.metrics.IncGoalReached()
	return true
}

// notifyGoal publishes a goal event without holding s.mu, so a slow broker
// cannot stall the ledger. Publish failures are logged and dropped.
func (s *Service) notifyGoal(ctx context.Context, date core.DayKey, steps int64) {
	if err := s.notifier.NotifyGoalReached(ctx, date, steps, s.goal); err != nil {
		s.logger.WarnContext(ctx, "goal notification failed",
			log.FieldDate, date.String(),
			log.FieldError, err.Error())
		return
	}
	s.logger.InfoContext(ctx, "daily goal reached",
		log.FieldDate, date.String(),
		log.FieldSteps, steps,
		log.FieldGoal, s.goal)
}

// stepsFor returns the persisted steps for a day, 0 when absent. Callers
// hold s.mu.
func (s *Service) stepsFor(date core.DayKey) int64 {
	for i := range s.entries {
		if s.entries[i].Date == date {
			return s.entries[i].Steps
		}
	}
	return 0
}
