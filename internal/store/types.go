package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrDisabled is returned by a nil/closed store.
	ErrDisabled = errors.New("store: disabled")
)

// Config configures persistence.
//
// Driver values:
//   - "memory": in-process store, volatile (tests and demos)
//   - "sqlite": SQLite database file (default)
//   - "postgres": PostgreSQL via DSN
type Config struct {
	Driver      string
	Path        string        // sqlite file path
	DSN         string        // postgres connection string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Intensity classifies how demanding a task is.
type Intensity string

const (
	IntensityLight   Intensity = "light"
	IntensityMedium  Intensity = "medium"
	IntensityIntense Intensity = "intense"
)

// Task is one unit of work inside an assignment.
// DependsOn holds sibling task titles; unknown titles are ignored by ordering.
type Task struct {
	ID              string
	AssignmentID    string
	UserID          string
	Title           string
	Phase           string
	DurationMinutes int
	Intensity       Intensity
	DependsOn       []string
	OrderIndex      int

	// Scheduling state. Start/End are UTC. EventRef is the external
	// calendar event id; a task with times but no ref is tentative.
	ScheduledStart *time.Time
	ScheduledEnd   *time.Time
	EventRef       string
}

// Scheduled reports whether the task has a confirmed calendar placement.
func (t Task) Scheduled() bool {
	return t.ScheduledStart != nil && t.ScheduledEnd != nil && t.EventRef != ""
}

// Assignment groups tasks under a subject and due date.
type Assignment struct {
	ID                 string
	UserID             string
	Title              string
	Subject            string
	DueDate            *time.Time // UTC
	DeadlineBufferDays int
}

// TimeWindow is a daily window in the user's local time.
type TimeWindow struct {
	Start string `json:"start"` // "HH:MM"
	End   string `json:"end"`
}

// SubjectStrength flags a subject the user wants extra time for.
type SubjectStrength struct {
	Subject       string `json:"subject"`
	NeedsMoreTime bool   `json:"needs_more_time"`
}

// Preferences hold per-user scheduling settings.
// Zero value is usable; the engine fills documented defaults.
type Preferences struct {
	Timezone            string            `json:"timezone"`
	DaysAvailable       []int             `json:"days_available"` // Sunday=0
	PreferredWindows    []TimeWindow      `json:"preferred_windows"`
	ProductivityPattern string            `json:"productivity_pattern"` // morning|midday|evening
	MaxDailyStudyHours  int               `json:"max_daily_study_hours"`
	BufferMinutes       int               `json:"buffer_minutes"`
	SubjectStrengths    []SubjectStrength `json:"subject_strengths"`
}

// NeedsMoreTime reports whether the subject carries the extra-time flag.
// The match ignores case: "History" and "history" are the same subject.
func (p Preferences) NeedsMoreTime(subject string) bool {
	for _, s := range p.SubjectStrengths {
		if s.NeedsMoreTime && strings.EqualFold(s.Subject, subject) {
			return true
		}
	}
	return false
}

// Store is the persistence API used by the scheduling engine and the HTTP
// layer. All timestamps cross the boundary in UTC.
type Store interface {
	Assignment(ctx context.Context, id string) (Assignment, error)
	AssignmentTasks(ctx context.Context, assignmentID string) ([]Task, error)
	Task(ctx context.Context, id string) (Task, error)

	// ScheduledTasks returns every task of the user that has a scheduled
	// start, across all assignments. Tentative tasks are included.
	ScheduledTasks(ctx context.Context, userID string) ([]Task, error)

	// UpdateTaskSchedule writes the scheduling state of a task.
	// Passing nil times clears the placement.
	UpdateTaskSchedule(ctx context.Context, taskID string, start, end *time.Time, eventRef string) error

	Preferences(ctx context.Context, userID string) (Preferences, bool, error)

	// Idempotency records: task+slot -> created event ref, with a TTL.
	PutEventRef(ctx context.Context, key, ref string, until time.Time) error
	GetEventRef(ctx context.Context, key string) (ref string, ok bool, err error)
	PruneExpired(ctx context.Context) error

	// RepairTentative clears placements that have times but no event ref
	// and were last touched before the cutoff. Returns the number cleared.
	RepairTentative(ctx context.Context, olderThan time.Duration) (int, error)

	Close() error
}

// Seeder is implemented by drivers that accept direct record writes.
// The HTTP layer and tests use it to load fixtures.
type Seeder interface {
	PutAssignment(ctx context.Context, a Assignment) error
	PutTask(ctx context.Context, t Task) error
	PutPreferences(ctx context.Context, userID string, p Preferences) error
}
