// Package timeutil normalizes the mixed time representations that reach the
// scheduler: zone-aware timestamps, naive local timestamps, and date-only
// strings for all-day events. Everything leaving this package is UTC.
package timeutil

import (
	"errors"
	"strings"
	"time"
)

// naiveLayouts are tried, in order, for timestamps without zone info.
// Naive values are interpreted in the user's location.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// Location resolves an IANA timezone name. Unknown or empty names fall back
// to UTC with ok=false so callers can surface a warning.
func Location(name string) (*time.Location, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.UTC, false
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC, false
	}
	return loc, true
}

// IsDateOnly reports whether the value is a bare calendar date (YYYY-MM-DD).
func IsDateOnly(v string) bool {
	_, err := time.Parse("2006-01-02", strings.TrimSpace(v))
	return err == nil
}

// Normalize parses a timestamp string into a UTC instant.
//
// Zone-aware values keep their instant. Naive values are interpreted in loc.
// Date-only values become local midnight. Returns ok=false for anything
// unparseable; callers skip such inputs rather than fail the run.
func Normalize(v string, loc *time.Location) (time.Time, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), true
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t.UTC(), true
		}
	}
	if t, err := time.ParseInLocation("2006-01-02", v, loc); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

// ExpandAllDay converts a date-only event into the half-open interval
// [localMidnight(start), localMidnight(end)). When the end date does not
// follow the start (same day, missing, or inverted) the event covers one day.
func ExpandAllDay(startDate, endDate string, loc *time.Location) (time.Time, time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	s, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(startDate), loc)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	e, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(endDate), loc)
	if err != nil || !e.After(s) {
		e = s.AddDate(0, 0, 1)
	}
	return s.UTC(), e.UTC(), true
}

// LocalMidnight returns the start of t's day in loc, as a UTC instant.
func LocalMidnight(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc).UTC()
}

// Weekday returns t's day of week in loc, Sunday=0.
func Weekday(t time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	return int(t.In(loc).Weekday())
}

// At places a wall-clock time h:m on the local day containing t, returning
// the UTC instant. DST gaps resolve the way time.Date does.
func At(t time.Time, h, m int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), h, m, 0, 0, loc).UTC()
}

// ParseHHMM parses a 24h "HH:MM" wall-clock string.
func ParseHHMM(v string) (h, m int, err error) {
	v = strings.TrimSpace(v)
	if len(v) != 5 || v[2] != ':' {
		return 0, 0, errors.New("invalid HH:MM value: " + v)
	}
	t, perr := time.Parse("15:04", v)
	if perr != nil {
		return 0, 0, errors.New("invalid HH:MM value: " + v)
	}
	return t.Hour(), t.Minute(), nil
}

// MinuteOfDay converts "HH:MM" to minutes since local midnight.
func MinuteOfDay(v string) (int, bool) {
	h, m, err := ParseHHMM(v)
	if err != nil {
		return 0, false
	}
	return h*60 + m, true
}
