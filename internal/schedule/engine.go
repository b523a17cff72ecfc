// Package schedule implements the study-plan scheduling engine: topological
// task ordering, preference-aware slot search against the busy timeline, and
// the compensating-transaction commit against the external calendar.
package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"studypilot/internal/calendar"
	"studypilot/internal/depgraph"
	"studypilot/internal/eventbus"
	"studypilot/internal/store"
	"studypilot/internal/timeline"
	"studypilot/internal/timeutil"
	logx "studypilot/pkg/logx"
)

// Config holds engine knobs. Zero values get safe defaults.
type Config struct {
	RunTimeout          time.Duration // whole-run deadline, default 2m
	CommitRetryMax      int           // attempts per task, default 3
	FallbackDays        int           // relaxed pass length, default 30
	DefaultWorkDuration int           // minutes, drives the search step, default 50
	MaxTaskDuration     int           // minutes, hard cap on a single session, default 240
	CacheTTL            time.Duration // event cache and idempotency TTL, default 60s
}

func (c Config) withDefaults() Config {
	if c.RunTimeout <= 0 {
		c.RunTimeout = 2 * time.Minute
	}
	if c.CommitRetryMax <= 0 {
		c.CommitRetryMax = 3
	}
	if c.FallbackDays <= 0 {
		c.FallbackDays = 30
	}
	if c.DefaultWorkDuration <= 0 {
		c.DefaultWorkDuration = 50
	}
	if c.MaxTaskDuration <= 0 {
		c.MaxTaskDuration = 240
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 60 * time.Second
	}
	return c
}

// Engine runs scheduling requests. Safe for concurrent use; each run owns
// its own timeline and event cache.
type Engine struct {
	mu       sync.RWMutex
	cfg      Config
	store    store.Store
	provider calendar.Provider
	bus      eventbus.Bus
	log      logx.Logger

	// Injectable for tests.
	now     func() time.Time
	backoff func(attempt int) time.Duration
}

func New(cfg Config, st store.Store, provider calendar.Provider, bus eventbus.Bus, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{
		cfg:      cfg.withDefaults(),
		store:    st,
		provider: provider,
		bus:      bus,
		log:      log,
		now:      time.Now,
		backoff:  commitBackoff,
	}
}

// Apply swaps the engine knobs; runs already in flight keep their snapshot.
func (e *Engine) Apply(cfg Config) {
	e.mu.Lock()
	e.cfg = cfg.withDefaults()
	e.mu.Unlock()
}

func (e *Engine) config() Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// Schedule places every unscheduled task of the assignment. Partial failure
// is a normal outcome and lands in Result.Failed, not in the error return;
// the error return covers bad requests and a broken environment.
func (e *Engine) Schedule(ctx context.Context, req Request) (*Result, error) {
	return e.run(ctx, req, "")
}

// Reschedule clears one task's placement and finds it a new slot. The old
// calendar event is abandoned, not deleted; the provider owns cleanup.
func (e *Engine) Reschedule(ctx context.Context, taskID string, req Request) (*Result, error) {
	task, err := e.store.Task(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if req.UserID != "" && task.UserID != req.UserID {
		return nil, store.ErrNotFound
	}
	req.UserID = task.UserID
	req.AssignmentID = task.AssignmentID

	if task.ScheduledStart != nil {
		if err := e.store.UpdateTaskSchedule(ctx, taskID, nil, nil, ""); err != nil {
			return nil, err
		}
	}
	return e.run(ctx, req, taskID)
}

// run is the orchestrator: load state, build the timeline, order tasks, then
// search+commit each one. only, when set, limits placement to that task id.
func (e *Engine) run(ctx context.Context, req Request, only string) (*Result, error) {
	started := e.now()
	runID := uuid.NewString()
	res := &Result{RunID: runID}
	cfg := e.config()

	ctx, cancel := context.WithTimeout(ctx, cfg.RunTimeout)
	defer cancel()

	log := e.log.With(logx.String("run", runID), logx.String("assignment", req.AssignmentID))

	a, err := e.store.Assignment(ctx, req.AssignmentID)
	if err != nil {
		return nil, err
	}
	if req.UserID != "" && a.UserID != req.UserID {
		// Do not leak other users' assignments.
		return nil, store.ErrNotFound
	}

	tasks, err := e.store.AssignmentTasks(ctx, a.ID)
	if err != nil {
		return nil, err
	}

	prefs, found, err := e.store.Preferences(ctx, a.UserID)
	if err != nil {
		return nil, err
	}
	if !found {
		res.Warnings = append(res.Warnings, "no stored preferences, using defaults")
	}
	loc, ok := timeutil.Location(prefs.Timezone)
	if !ok && prefs.Timezone != "" {
		res.Warnings = append(res.Warnings, fmt.Sprintf("unknown timezone %q, using UTC", prefs.Timezone))
	}

	p := buildPlan(req, a, prefs, loc, cfg, e.now())

	prior, err := e.store.ScheduledTasks(ctx, a.UserID)
	if err != nil {
		return nil, err
	}

	cache := calendar.NewCache(e.provider, cfg.CacheTTL)
	events, err := cache.ListEvents(ctx, a.UserID,
		p.searchStart.AddDate(0, 0, -1),
		p.horizonEnd.AddDate(0, 0, p.fallbackDays+1))
	if err != nil {
		return nil, fmt.Errorf("load calendar events: %w", err)
	}
	tl := timeline.Build(events, prior, loc)

	e.publish(TopicRunStarted, RunEvent{RunID: runID, UserID: a.UserID, AssignmentID: a.ID})
	log.Info("scheduling run started",
		logx.Int("tasks", len(tasks)),
		logx.Int("busy_intervals", tl.Len()),
		logx.Time("horizon_end", p.horizonEnd))

	ordered, unresolved := depgraph.Order(tasks)
	for _, t := range unresolved {
		if !e.shouldPlace(t, only) {
			continue
		}
		f := Failure{TaskID: t.ID, Title: t.Title, Reason: ReasonCycle,
			Detail: "dependency cycle involving this task or one of its prerequisites"}
		res.Failed = append(res.Failed, f)
		e.publish(TopicTaskFailed, TaskEvent{RunID: runID, TaskID: t.ID, Title: t.Title, Reason: ReasonCycle})
	}

	// Ends of already-placed siblings, so dependents never start before them.
	depEnd := make(map[string]time.Time)
	for _, t := range ordered {
		if t.ScheduledStart != nil && t.ScheduledEnd != nil {
			depEnd[t.Title] = t.ScheduledEnd.UTC()
		}
	}

	var lastIntenseEnd time.Time
	for _, task := range ordered {
		if !e.shouldPlace(task, only) {
			if task.Intensity == store.IntensityIntense && task.ScheduledEnd != nil && task.ScheduledEnd.After(lastIntenseEnd) {
				lastIntenseEnd = task.ScheduledEnd.UTC()
			}
			continue
		}
		if ctx.Err() != nil {
			res.Failed = append(res.Failed, *taskFailure(task, ReasonTimeout, "run deadline expired before this task was attempted"))
			continue
		}

		durMin := scaledDuration(task.DurationMinutes, a.Subject, prefs)
		if durMin <= 0 {
			res.Failed = append(res.Failed, *taskFailure(task, ReasonNoSlot, "task has no duration"))
			continue
		}
		if durMin > cfg.MaxTaskDuration {
			durMin = cfg.MaxTaskDuration
		}

		minStart := earliestStart(task, depEnd)
		restFloor := restAfterIntense(task, lastIntenseEnd)
		placement, failure := e.placeTask(ctx, cache, tl, p, a, task, durMin, minStart, restFloor)
		if failure != nil {
			res.Failed = append(res.Failed, *failure)
			e.publish(TopicTaskFailed, TaskEvent{RunID: runID, TaskID: task.ID, Title: task.Title, Reason: failure.Reason})
			log.Warn("task not placed",
				logx.String("task", task.ID),
				logx.String("reason", string(failure.Reason)))
			continue
		}

		res.Scheduled = append(res.Scheduled, placement)
		tl.Add(timeline.Interval{
			Start: placement.Start, End: placement.End,
			Source: timeline.SourceTask, Ref: task.ID, Title: task.Title,
		})
		depEnd[task.Title] = placement.End
		if task.Intensity == store.IntensityIntense {
			lastIntenseEnd = placement.End
		}
		e.publish(TopicTaskCommitted, TaskEvent{
			RunID: runID, TaskID: task.ID, Title: task.Title,
			Attempts: placement.Attempts, Fallback: placement.Fallback,
		})
		log.Info("task placed",
			logx.String("task", task.ID),
			logx.Time("start", placement.Start),
			logx.Int("attempts", placement.Attempts),
			logx.Bool("fallback", placement.Fallback))
	}

	res.Success = len(res.Scheduled) > 0 || len(res.Failed) == 0
	res.Took = e.now().Sub(started)
	res.TookMS = res.Took.Milliseconds()

	e.publish(TopicRunFinished, RunEvent{
		RunID: runID, UserID: a.UserID, AssignmentID: a.ID,
		Scheduled: len(res.Scheduled), Failed: len(res.Failed), Took: res.Took,
	})
	log.Info("scheduling run finished",
		logx.Int("scheduled", len(res.Scheduled)),
		logx.Int("failed", len(res.Failed)),
		logx.Duration("took", res.Took))
	return res, nil
}

// placeTask alternates slot search and commit until the task lands, retries
// run out, or the search space is exhausted. Conflicts discovered during
// commit are fed back into the timeline so the next search skips them.
func (e *Engine) placeTask(ctx context.Context, cache *calendar.Cache, tl *timeline.Timeline, p plan, a store.Assignment, task store.Task, durMin int, minStart, restFloor time.Time) (Placement, *Failure) {
	conflictSeen := false
	maxTries := e.config().CommitRetryMax
	for try := 0; try < maxTries; try++ {
		s, ok := findSlot(tl, p, durMin, minStart, restFloor)
		if !ok {
			if conflictSeen {
				return Placement{}, taskFailure(task, ReasonConflict, "no candidate survived the conflict rechecks")
			}
			return Placement{}, taskFailure(task, ReasonNoSlot, "no free slot inside the horizon or the fallback pass")
		}

		out := e.commitTask(ctx, cache, p, a, task, s)
		if out.ok {
			out.placement.Attempts += try
			return out.placement, nil
		}
		if out.failure != nil {
			return Placement{}, out.failure
		}

		conflictSeen = true
		for _, iv := range out.conflicts {
			tl.Add(iv)
		}
		if len(out.conflicts) == 0 {
			// Provider rejected the slot without details; block it directly.
			tl.Add(timeline.Interval{Start: s.start, End: s.end, Source: timeline.SourceCalendar, Ref: "provider-conflict"})
		}
	}
	return Placement{}, taskFailure(task, ReasonConflict,
		fmt.Sprintf("calendar kept conflicting after %d candidates", maxTries))
}

// shouldPlace filters the run's targets: unscheduled tasks, or just the one
// being rescheduled.
func (e *Engine) shouldPlace(t store.Task, only string) bool {
	if only != "" {
		return t.ID == only
	}
	return !t.Scheduled()
}

func earliestStart(task store.Task, depEnd map[string]time.Time) time.Time {
	var min time.Time
	for _, dep := range task.DependsOn {
		if end, ok := depEnd[dep]; ok && end.After(min) {
			min = end
		}
	}
	return min
}

// restAfterIntense is the earliest start that honors the rest gap after the
// previous intense session. The fallback pass does not enforce it.
func restAfterIntense(task store.Task, lastIntenseEnd time.Time) time.Time {
	if task.Intensity != store.IntensityIntense || lastIntenseEnd.IsZero() {
		return time.Time{}
	}
	return lastIntenseEnd.Add(intenseGap)
}

func (e *Engine) publish(topic string, data any) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventbus.Event{Type: topic, Data: data})
}
