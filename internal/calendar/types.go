package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Event is a busy entry as reported by the external calendar. Start/End stay
// in wire form: either full timestamps or bare dates for all-day events.
// Parsing and timezone handling happen downstream.
type Event struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// EventDraft describes a calendar event to create.
type EventDraft struct {
	TaskID      string    `json:"task_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	// ClientToken lets the provider deduplicate retried creates.
	ClientToken string `json:"client_token,omitempty"`
}

// EventRef identifies a created event on the provider side.
type EventRef string

var (
	// ErrConflict means the provider rejected the slot as already busy.
	ErrConflict = errors.New("calendar: slot conflict")
	// ErrUnauthorized means the provider rejected our credentials.
	ErrUnauthorized = errors.New("calendar: unauthorized")
)

// TransportError wraps provider failures that are worth retrying:
// 5xx responses and network-level errors.
type TransportError struct {
	Status int // 0 for network errors
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("calendar: provider status %d", e.Status)
	}
	return "calendar: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsRetryable reports whether the error is transient.
func IsRetryable(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// Provider is the external calendar surface the scheduler depends on.
type Provider interface {
	ListEvents(ctx context.Context, userID string, start, end time.Time) ([]Event, error)
	CreateEvent(ctx context.Context, userID string, d EventDraft) (EventRef, error)
}
