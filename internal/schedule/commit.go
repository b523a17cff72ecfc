package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"studypilot/internal/calendar"
	"studypilot/internal/store"
	"studypilot/internal/timeline"
	logx "studypilot/pkg/logx"
)

// freshnessPad is how far around a candidate slot the pre-create recheck
// looks for events that appeared after the timeline was built.
const freshnessPad = time.Hour

// commitOutcome reports how one commit attempt ended.
//
// Exactly one of ok / conflict / failure is set. On conflict the caller adds
// conflicts to its timeline (they can be empty when the provider itself
// rejected the slot) and tries the next candidate.
type commitOutcome struct {
	ok        bool
	placement Placement

	conflict  bool
	conflicts []timeline.Interval

	failure *Failure
}

func idemKey(taskID string, s slot) string {
	return fmt.Sprintf("%s|%d|%d", taskID, s.start.Unix(), s.end.Unix())
}

// commitTask runs the compensating-transaction commit for one task and slot:
// snapshot, tentative store write, freshness recheck, provider create with
// bounded retries, and rollback of the tentative write on any failure.
func (e *Engine) commitTask(ctx context.Context, cache *calendar.Cache, p plan, a store.Assignment, task store.Task, s slot) commitOutcome {
	log := e.log.With(logx.String("task", task.ID))

	key := idemKey(task.ID, s)
	if ref, ok, err := e.store.GetEventRef(ctx, key); err == nil && ok {
		// A previous run already created this exact placement.
		if err := e.store.UpdateTaskSchedule(ctx, task.ID, &s.start, &s.end, ref); err != nil {
			return commitOutcome{failure: taskFailure(task, ReasonExternal, "persist replayed placement: "+err.Error())}
		}
		log.Info("placement replayed from idempotency record", logx.String("ref", ref))
		return commitOutcome{ok: true, placement: placementFor(task, s, ref, 0)}
	}

	// Snapshot for rollback, then the tentative write.
	prevStart, prevEnd, prevRef := task.ScheduledStart, task.ScheduledEnd, task.EventRef
	rollback := func() {
		if err := e.store.UpdateTaskSchedule(ctx, task.ID, prevStart, prevEnd, prevRef); err != nil {
			log.Error("rollback of tentative placement failed", logx.Err(err))
		}
	}
	if err := e.store.UpdateTaskSchedule(ctx, task.ID, &s.start, &s.end, ""); err != nil {
		return commitOutcome{failure: taskFailure(task, ReasonExternal, "tentative write: "+err.Error())}
	}

	// Freshness recheck: events may have landed since the timeline was built.
	events, err := cache.ListEvents(ctx, task.UserID, s.start.Add(-freshnessPad), s.end.Add(freshnessPad))
	if err != nil {
		rollback()
		return commitOutcome{failure: taskFailure(task, ReasonExternal, "freshness check: "+err.Error())}
	}
	if conflicts := freshConflicts(events, s, p); len(conflicts) > 0 {
		rollback()
		log.Debug("candidate slot went stale", logx.Int("conflicts", len(conflicts)))
		return commitOutcome{conflict: true, conflicts: conflicts}
	}

	draft := calendar.EventDraft{
		TaskID:      task.ID,
		Title:       eventTitle(a, task),
		Description: fmt.Sprintf("assignment %s, phase %s", a.ID, task.Phase),
		Start:       s.start,
		End:         s.end,
		ClientToken: uuid.NewString(), // stable across the retry loop
	}

	cfg := e.config()
	maxAttempts := cfg.CommitRetryMax
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ref, err := cache.CreateEvent(ctx, task.UserID, draft)
		if err == nil {
			if perr := e.store.UpdateTaskSchedule(ctx, task.ID, &s.start, &s.end, string(ref)); perr != nil {
				// The event exists but we could not persist the ref; the
				// idempotency record below still lets a re-run recover it.
				log.Error("persist committed placement failed", logx.Err(perr))
			}
			if perr := e.store.PutEventRef(ctx, key, string(ref), time.Now().Add(cfg.CacheTTL)); perr != nil {
				log.Warn("store idempotency record failed", logx.Err(perr))
			}
			cache.Invalidate(task.UserID)
			return commitOutcome{ok: true, placement: placementFor(task, s, string(ref), attempt)}
		}

		switch {
		case errors.Is(err, calendar.ErrConflict):
			// The provider saw an overlap we did not; refresh on the next pass.
			rollback()
			cache.Invalidate(task.UserID)
			return commitOutcome{conflict: true}
		case calendar.IsRetryable(err) && attempt < maxAttempts:
			delay := e.backoff(attempt)
			log.Warn("provider create failed, retrying",
				logx.Int("attempt", attempt), logx.Duration("delay", delay), logx.Err(err))
			if serr := sleepCtx(ctx, delay); serr != nil {
				rollback()
				return commitOutcome{failure: taskFailure(task, ReasonTimeout, serr.Error())}
			}
		default:
			rollback()
			return commitOutcome{failure: taskFailure(task, ReasonExternal, err.Error())}
		}
	}

	rollback()
	return commitOutcome{failure: taskFailure(task, ReasonExternal,
		fmt.Sprintf("provider unavailable after %d attempts", maxAttempts))}
}

// freshConflicts converts the rechecked events that collide with the slot
// (buffer included) into timeline intervals.
func freshConflicts(events []calendar.Event, s slot, p plan) []timeline.Interval {
	probe := timeline.Build(events, nil, p.loc)
	return probe.Overlapping(s.start, s.end, p.buffer)
}

func eventTitle(a store.Assignment, task store.Task) string {
	if a.Title == "" {
		return "Study: " + task.Title
	}
	return fmt.Sprintf("Study: %s / %s", a.Title, task.Title)
}

func placementFor(task store.Task, s slot, ref string, attempts int) Placement {
	return Placement{
		TaskID:   task.ID,
		Title:    task.Title,
		Start:    s.start,
		End:      s.end,
		EventRef: ref,
		Attempts: attempts,
		Fallback: s.fallback,
	}
}

func taskFailure(task store.Task, reason Reason, detail string) *Failure {
	return &Failure{TaskID: task.ID, Title: task.Title, Reason: reason, Detail: detail}
}

// commitBackoff returns the delay after a failed attempt: 1s, 2s, 4s, ...
func commitBackoff(attempt int) time.Duration {
	return (500 * time.Millisecond) << attempt
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
