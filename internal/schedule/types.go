package schedule

import (
	"time"
)

// Reason classifies why a task could not be placed.
type Reason string

const (
	// ReasonNoSlot: the search exhausted the horizon and the fallback pass.
	ReasonNoSlot Reason = "NO_SLOT_FOUND"
	// ReasonConflict: every candidate kept colliding with fresh calendar
	// state until retries ran out.
	ReasonConflict Reason = "CONFLICT_UNRESOLVED"
	// ReasonExternal: the provider failed in a non-recoverable way.
	ReasonExternal Reason = "EXTERNAL_ERROR"
	// ReasonCycle: the task is part of (or downstream of) a dependency cycle.
	ReasonCycle Reason = "DEPENDENCY_CYCLE"
	// ReasonTimeout: the run deadline expired before the task was attempted.
	ReasonTimeout Reason = "RUN_TIMEOUT"
)

// Request asks for an assignment's unscheduled tasks to be placed.
type Request struct {
	UserID       string `json:"user_id"`
	AssignmentID string `json:"assignment_id"`

	// StartDate optionally moves the search start ("YYYY-MM-DD", user-local).
	// Empty means today. EndDate caps the search horizon at the end of that
	// day; it never extends a due-date horizon.
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`

	// WindowStart/WindowEnd ("HH:MM") form an explicit daily window that
	// overrides stored preferences and productivity defaults.
	WindowStart string `json:"window_start,omitempty"`
	WindowEnd   string `json:"window_end,omitempty"`
}

// Placement is one successfully committed task.
type Placement struct {
	TaskID   string    `json:"task_id"`
	Title    string    `json:"title"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	EventRef string    `json:"event_ref"`
	Attempts int       `json:"attempts"`
	// Fallback marks slots found by the relaxed pass outside preferred
	// windows; clients surface these for user confirmation.
	Fallback bool `json:"fallback,omitempty"`
}

// Failure is one task the run could not place.
type Failure struct {
	TaskID string `json:"task_id"`
	Title  string `json:"title"`
	Reason Reason `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

// Result is the outcome of one scheduling run. Success means at least one
// task was committed; partial failure is normal operation.
type Result struct {
	RunID     string      `json:"run_id"`
	Success   bool        `json:"success"`
	Scheduled []Placement `json:"scheduled"`
	Failed    []Failure   `json:"failed,omitempty"`
	Warnings  []string    `json:"warnings,omitempty"`
	Took      time.Duration `json:"-"`
	TookMS    int64         `json:"took_ms"`
}

// Bus topics and payloads.
const (
	TopicRunStarted    = "run.started"
	TopicRunFinished   = "run.finished"
	TopicTaskCommitted = "task.committed"
	TopicTaskFailed    = "task.failed"
)

type RunEvent struct {
	RunID        string
	UserID       string
	AssignmentID string
	Scheduled    int
	Failed       int
	Took         time.Duration
}

type TaskEvent struct {
	RunID    string
	TaskID   string
	Title    string
	Reason   Reason // empty on commit
	Attempts int
	Fallback bool
}
