package resolver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/akash1114/flowbuddy-schedule/internal/api"
	"github.com/akash1114/flowbuddy-schedule/internal/slot"
)

type taskSourceFunc func(ctx context.Context, userID, from, to string) ([]api.Task, error)

func (f taskSourceFunc) ListScheduled(ctx context.Context, userID, from, to string) ([]api.Task, error) {
	return f(ctx, userID, from, to)
}

type conflictSourceFunc func(ctx context.Context, windowStart, windowEnd time.Time) (slot.OccupiedMap, error)

func (f conflictSourceFunc) LoadConflicts(ctx context.Context, windowStart, windowEnd time.Time) (slot.OccupiedMap, error) {
	return f(ctx, windowStart, windowEnd)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strPtr(s string) *string {
	return &s
}

func noTasks(ctx context.Context, userID, from, to string) ([]api.Task, error) {
	return nil, nil
}

func noConflicts(ctx context.Context, windowStart, windowEnd time.Time) (slot.OccupiedMap, error) {
	return slot.NewOccupiedMap(), nil
}

func TestRefresh_MergesBothSources(t *testing.T) {
	t.Parallel()

	tasks := taskSourceFunc(func(ctx context.Context, userID, from, to string) ([]api.Task, error) {
		return []api.Task{
			{ID: "t1", ScheduledDay: strPtr("2024-06-10"), ScheduledTime: strPtr("09:00:00")},
			{ID: "t2", ScheduledDay: strPtr("2024-06-10"), ScheduledTime: strPtr("14:30:00")},
			{ID: "t3", ScheduledDay: strPtr("2024-06-09"), ScheduledTime: nil},
		}, nil
	})
	conflicts := conflictSourceFunc(func(ctx context.Context, windowStart, windowEnd time.Time) (slot.OccupiedMap, error) {
		m := slot.NewOccupiedMap()
		m.Add("2024-06-10", "09:00")
		m.Add("2024-06-11", "08:00")
		return m, nil
	})

	r := New(tasks, conflicts, "user-1", 14, quietLogger())
	r.now = func() time.Time { return time.Date(2024, 6, 5, 10, 0, 0, 0, time.Local) }

	r.Refresh(context.Background())

	occupied := r.Occupied()
	if len(occupied) != 2 {
		t.Fatalf("expected 2 days, got %d: %v", len(occupied), occupied)
	}
	if got := occupied["2024-06-10"]; len(got) != 2 || got[0] != "09:00" || got[1] != "14:30" {
		t.Fatalf("2024-06-10 slots = %v", got)
	}
	if got := occupied["2024-06-11"]; len(got) != 1 || got[0] != "08:00" {
		t.Fatalf("2024-06-11 slots = %v", got)
	}

	if !r.IsSlotTaken("2024-06-10", "09:00") {
		t.Fatalf("expected duplicate-source slot to be taken")
	}
	if r.IsSlotTaken("2024-06-12", "09:00") {
		t.Fatalf("day absent from map should be free")
	}

	report := r.LastRefresh()
	if report.Degraded() {
		t.Fatalf("unexpected degraded report: %+v", report)
	}
	if report.Slots != 3 {
		t.Fatalf("report slots = %d, want 3", report.Slots)
	}
}

func TestRefresh_WindowBoundaries(t *testing.T) {
	t.Parallel()

	var gotFrom, gotTo string
	tasks := taskSourceFunc(func(ctx context.Context, userID, from, to string) ([]api.Task, error) {
		gotFrom, gotTo = from, to
		// A task exactly on today, and one past the horizon that a
		// misbehaving server failed to filter out.
		return []api.Task{
			{ID: "t1", ScheduledDay: strPtr("2024-06-05"), ScheduledTime: strPtr("08:00")},
			{ID: "t2", ScheduledDay: strPtr("2024-06-20"), ScheduledTime: strPtr("08:00")},
		}, nil
	})

	r := New(tasks, conflictSourceFunc(noConflicts), "user-1", 14, quietLogger())
	r.now = func() time.Time { return time.Date(2024, 6, 5, 10, 0, 0, 0, time.Local) }

	r.Refresh(context.Background())

	if gotFrom != "2024-06-05" || gotTo != "2024-06-19" {
		t.Fatalf("window = [%s, %s], want [2024-06-05, 2024-06-19]", gotFrom, gotTo)
	}
	if !r.IsSlotTaken("2024-06-05", "08:00") {
		t.Fatalf("task on today should be included")
	}
	if r.IsSlotTaken("2024-06-20", "08:00") {
		t.Fatalf("task past the horizon should be excluded")
	}
}

func TestRefresh_FailOpenOnTaskError(t *testing.T) {
	t.Parallel()

	tasks := taskSourceFunc(func(ctx context.Context, userID, from, to string) ([]api.Task, error) {
		return nil, fmt.Errorf("api unreachable")
	})

	r := New(tasks, conflictSourceFunc(noConflicts), "user-1", 14, quietLogger())
	r.Refresh(context.Background())

	if r.IsSlotTaken("2024-06-10", "09:00") {
		t.Fatalf("degraded snapshot must report everything free")
	}
	report := r.LastRefresh()
	if report.TaskErr == nil {
		t.Fatalf("expected suppressed task error in report")
	}
}

func TestRefresh_FailOpenOnCalendarError(t *testing.T) {
	t.Parallel()

	tasks := taskSourceFunc(func(ctx context.Context, userID, from, to string) ([]api.Task, error) {
		return []api.Task{
			{ID: "t1", ScheduledDay: strPtr("2024-06-10"), ScheduledTime: strPtr("09:00")},
		}, nil
	})
	conflicts := conflictSourceFunc(func(ctx context.Context, windowStart, windowEnd time.Time) (slot.OccupiedMap, error) {
		return nil, fmt.Errorf("bus gone")
	})

	r := New(tasks, conflicts, "user-1", 14, quietLogger())
	r.now = func() time.Time { return time.Date(2024, 6, 5, 10, 0, 0, 0, time.Local) }
	r.Refresh(context.Background())

	// Task slots are dropped too: the snapshot is all-or-nothing.
	if r.IsSlotTaken("2024-06-10", "09:00") {
		t.Fatalf("partial snapshot observable after calendar failure")
	}
	if r.LastRefresh().CalendarErr == nil {
		t.Fatalf("expected suppressed calendar error in report")
	}
}

func TestRefresh_MissingIdentitySkipsSources(t *testing.T) {
	t.Parallel()

	tasks := taskSourceFunc(func(ctx context.Context, userID, from, to string) ([]api.Task, error) {
		t.Errorf("task source called without identity")
		return nil, nil
	})
	conflicts := conflictSourceFunc(func(ctx context.Context, windowStart, windowEnd time.Time) (slot.OccupiedMap, error) {
		t.Errorf("conflict source called without identity")
		return nil, nil
	})

	r := New(tasks, conflicts, "   ", 14, quietLogger())
	r.Refresh(context.Background())

	if len(r.Occupied()) != 0 {
		t.Fatalf("expected empty snapshot without identity")
	}
}

func TestRefresh_DiscardedAfterClose(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	conflicts := conflictSourceFunc(func(ctx context.Context, windowStart, windowEnd time.Time) (slot.OccupiedMap, error) {
		<-release
		m := slot.NewOccupiedMap()
		m.Add("2024-06-10", "09:00")
		return m, nil
	})

	r := New(taskSourceFunc(noTasks), conflicts, "user-1", 14, quietLogger())
	r.now = func() time.Time { return time.Date(2024, 6, 5, 10, 0, 0, 0, time.Local) }

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.Refresh(context.Background())
	}()

	r.Close()
	close(release)
	wg.Wait()

	if r.IsSlotTaken("2024-06-10", "09:00") {
		t.Fatalf("late refresh result applied to closed resolver")
	}
}

func TestIsSlotTaken_IgnoreListOnEdit(t *testing.T) {
	t.Parallel()

	tasks := taskSourceFunc(func(ctx context.Context, userID, from, to string) ([]api.Task, error) {
		return []api.Task{
			{ID: "t1", ScheduledDay: strPtr("2024-06-10"), ScheduledTime: strPtr("09:00")},
			{ID: "t2", ScheduledDay: strPtr("2024-06-10"), ScheduledTime: strPtr("10:00")},
		}, nil
	})

	r := New(tasks, conflictSourceFunc(noConflicts), "user-1", 14, quietLogger())
	r.now = func() time.Time { return time.Date(2024, 6, 5, 10, 0, 0, 0, time.Local) }
	r.Refresh(context.Background())

	if r.IsSlotTaken("2024-06-10", "09:00", "09:00") {
		t.Fatalf("a task's own slot must not block re-saving it")
	}
	if !r.IsSlotTaken("2024-06-10", "10:00", "09:00") {
		t.Fatalf("other slots stay taken while editing")
	}
	if r.IsSlotTaken("not-a-date", "09:00") {
		t.Fatalf("malformed day must be free")
	}
}
