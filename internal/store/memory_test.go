package store

import (
	"context"
	"testing"
	"time"
)

func seedTask(t *testing.T, s Store, task Task) {
	t.Helper()
	if err := s.(Seeder).PutTask(context.Background(), task); err != nil {
		t.Fatalf("PutTask: %v", err)
	}
}

func TestMemoryTaskSchedule(t *testing.T) {
	t.Parallel()
	s := NewMemory()
	ctx := context.Background()

	seedTask(t, s, Task{ID: "t1", AssignmentID: "a1", UserID: "u1", Title: "read", DurationMinutes: 50})

	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	end := start.Add(50 * time.Minute)
	if err := s.UpdateTaskSchedule(ctx, "t1", &start, &end, "evt-1"); err != nil {
		t.Fatalf("UpdateTaskSchedule: %v", err)
	}

	got, err := s.Task(ctx, "t1")
	if err != nil {
		t.Fatalf("Task: %v", err)
	}
	if !got.Scheduled() {
		t.Fatal("task should report scheduled")
	}
	if !got.ScheduledStart.Equal(start) || got.EventRef != "evt-1" {
		t.Fatalf("unexpected placement: %+v", got)
	}

	listed, err := s.ScheduledTasks(ctx, "u1")
	if err != nil {
		t.Fatalf("ScheduledTasks: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != "t1" {
		t.Fatalf("ScheduledTasks = %+v, want [t1]", listed)
	}

	// Clearing the placement rolls the task back to unscheduled.
	if err := s.UpdateTaskSchedule(ctx, "t1", nil, nil, ""); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	listed, _ = s.ScheduledTasks(ctx, "u1")
	if len(listed) != 0 {
		t.Fatalf("expected no scheduled tasks after rollback, got %d", len(listed))
	}

	if err := s.UpdateTaskSchedule(ctx, "missing", &start, &end, ""); err != ErrNotFound {
		t.Fatalf("UpdateTaskSchedule(missing) = %v, want ErrNotFound", err)
	}
}

func TestMemoryEventRefTTL(t *testing.T) {
	t.Parallel()
	s := NewMemory()
	ctx := context.Background()

	if err := s.PutEventRef(ctx, "t1|100|200", "evt-9", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("PutEventRef: %v", err)
	}
	ref, ok, err := s.GetEventRef(ctx, "t1|100|200")
	if err != nil || !ok || ref != "evt-9" {
		t.Fatalf("GetEventRef = (%q, %v, %v), want (evt-9, true, nil)", ref, ok, err)
	}

	// Expired entries are invisible and pruned.
	if err := s.PutEventRef(ctx, "stale", "evt-0", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("PutEventRef: %v", err)
	}
	if _, ok, _ := s.GetEventRef(ctx, "stale"); ok {
		t.Fatal("expired ref should not be returned")
	}
	if err := s.PruneExpired(ctx); err != nil {
		t.Fatalf("PruneExpired: %v", err)
	}
}

func TestMemoryRepairTentative(t *testing.T) {
	t.Parallel()
	s := NewMemory()
	ctx := context.Background()

	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	tentative := Task{ID: "t1", UserID: "u1", Title: "draft", DurationMinutes: 60,
		ScheduledStart: &start, ScheduledEnd: &end}
	committed := Task{ID: "t2", UserID: "u1", Title: "review", DurationMinutes: 30,
		ScheduledStart: &start, ScheduledEnd: &end, EventRef: "evt-2"}
	seedTask(t, s, tentative)
	seedTask(t, s, committed)

	// Fresh tentative writes are left alone.
	n, err := s.RepairTentative(ctx, time.Minute)
	if err != nil {
		t.Fatalf("RepairTentative: %v", err)
	}
	if n != 0 {
		t.Fatalf("repaired %d fresh tasks, want 0", n)
	}

	n, err = s.RepairTentative(ctx, 0)
	if err != nil {
		t.Fatalf("RepairTentative: %v", err)
	}
	if n != 1 {
		t.Fatalf("repaired %d tasks, want 1", n)
	}
	got, _ := s.Task(ctx, "t1")
	if got.ScheduledStart != nil {
		t.Fatal("tentative placement should have been cleared")
	}
	got, _ = s.Task(ctx, "t2")
	if !got.Scheduled() {
		t.Fatal("committed placement must survive repair")
	}
}
