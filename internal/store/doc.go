// Package store persists assignments, tasks, user preferences, and the
// idempotency records that guard calendar event creation.
//
// Drivers: sqlite (default), postgres, memory.
package store
