package resolver

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/akash1114/flowbuddy-schedule/internal/api"
	"github.com/akash1114/flowbuddy-schedule/internal/slot"
)

const DefaultLookaheadDays = 14

type TaskSource interface {
	ListScheduled(ctx context.Context, userID, from, to string) ([]api.Task, error)
}

type ConflictSource interface {
	LoadConflicts(ctx context.Context, windowStart, windowEnd time.Time) (slot.OccupiedMap, error)
}

// Report records the outcome of the last refresh. An empty snapshot with a
// recorded source error means conflicts were dropped fail-open, not that the
// window is genuinely free.
type Report struct {
	RefreshedAt time.Time
	Days        int
	Slots       int
	TaskErr     error
	CalendarErr error
}

func (r Report) Degraded() bool {
	return r.TaskErr != nil || r.CalendarErr != nil
}

// Resolver merges remote tasks and device-calendar events into one occupied
// map over the lookahead window and answers point queries against the
// current snapshot. All failures degrade to an empty snapshot; Refresh never
// reports an error to the caller.
type Resolver struct {
	tasks     TaskSource
	conflicts ConflictSource
	userID    string
	lookahead int
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.RWMutex
	gen      uint64
	closed   bool
	occupied slot.OccupiedMap
	report   Report
}

func New(tasks TaskSource, conflicts ConflictSource, userID string, lookaheadDays int, logger *slog.Logger) *Resolver {
	if lookaheadDays <= 0 {
		lookaheadDays = DefaultLookaheadDays
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		tasks:     tasks,
		conflicts: conflicts,
		userID:    strings.TrimSpace(userID),
		lookahead: lookaheadDays,
		logger:    logger,
		now:       time.Now,
		occupied:  slot.NewOccupiedMap(),
	}
}

// Refresh rebuilds the snapshot from both sources and swaps it in atomically.
// A refresh that loses the race to a newer one, or that completes after
// Close, is discarded.
func (r *Resolver) Refresh(ctx context.Context) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.gen++
	gen := r.gen
	r.mu.Unlock()

	report := Report{RefreshedAt: r.now()}

	if r.userID == "" {
		r.swap(gen, slot.NewOccupiedMap(), report)
		return
	}

	windowStart, windowEnd := slot.Window(r.now(), r.lookahead)
	from := slot.DayKeyOf(windowStart)
	to := slot.DayKeyOf(windowStart.AddDate(0, 0, r.lookahead))

	merged := slot.NewOccupiedMap()

	tasks, err := r.tasks.ListScheduled(ctx, r.userID, from, to)
	if err != nil {
		report.TaskErr = err
		r.logger.Warn("dropping conflict map after source failure", "source", "tasks", "err", err)
		r.swap(gen, slot.NewOccupiedMap(), report)
		return
	}
	for _, task := range tasks {
		day, clock, ok := task.Scheduled()
		if !ok {
			continue
		}
		dayKey, valid := slot.DayKey(day)
		if !valid || dayKey < from || dayKey > to {
			continue
		}
		merged.Add(dayKey, clock)
	}

	calendarConflicts, err := r.conflicts.LoadConflicts(ctx, windowStart, windowEnd)
	if err != nil {
		report.CalendarErr = err
		r.logger.Warn("dropping conflict map after source failure", "source", "calendar", "err", err)
		r.swap(gen, slot.NewOccupiedMap(), report)
		return
	}
	merged.Merge(calendarConflicts)

	report.Days = len(merged)
	report.Slots = merged.SlotCount()
	r.swap(gen, merged, report)
}

func (r *Resolver) swap(gen uint64, occupied slot.OccupiedMap, report Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || gen != r.gen {
		return
	}
	r.occupied = occupied
	r.report = report
}

// IsSlotTaken reports whether day+clock is occupied in the current snapshot,
// excluding any clock keys in ignore. Malformed input counts as free.
func (r *Resolver) IsSlotTaken(day, clock string, ignore ...string) bool {
	r.mu.RLock()
	occupied := r.occupied
	r.mu.RUnlock()
	return occupied.Taken(day, clock, ignore)
}

// Occupied returns a sorted copy of the current snapshot.
func (r *Resolver) Occupied() map[string][]string {
	r.mu.RLock()
	occupied := r.occupied
	r.mu.RUnlock()
	return occupied.Sorted()
}

func (r *Resolver) LastRefresh() Report {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.report
}

// Close marks the resolver disposed. In-flight refreshes resolve but their
// results are dropped.
func (r *Resolver) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}
