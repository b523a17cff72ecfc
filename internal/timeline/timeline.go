// Package timeline maintains the merged busy view a scheduling run works
// against: external calendar events plus every task already placed, all as
// half-open UTC intervals.
package timeline

import (
	"sort"
	"time"

	"studypilot/internal/calendar"
	"studypilot/internal/store"
	"studypilot/internal/timeutil"
)

// Source tags where a busy interval came from.
type Source string

const (
	SourceCalendar Source = "calendar"
	SourceTask     Source = "task"
)

// Interval is one busy span. End is exclusive.
type Interval struct {
	Start  time.Time
	End    time.Time
	Source Source
	Ref    string // event id or task id
	Title  string
}

func (iv Interval) Duration() time.Duration { return iv.End.Sub(iv.Start) }

// Timeline is an ordered set of busy intervals. Not safe for concurrent use;
// each scheduling run owns its own.
type Timeline struct {
	intervals []Interval
}

// New returns an empty timeline.
func New() *Timeline { return &Timeline{} }

// Build merges calendar events and scheduled tasks into one timeline.
//
// Event timestamps are normalized in loc: naive values are localized,
// date-only events expand to full local days. Unparseable or inverted
// events are skipped, never fatal.
func Build(events []calendar.Event, tasks []store.Task, loc *time.Location) *Timeline {
	tl := New()
	for _, ev := range events {
		if iv, ok := eventInterval(ev, loc); ok {
			tl.Add(iv)
		}
	}
	for _, t := range tasks {
		if t.ScheduledStart == nil || t.ScheduledEnd == nil {
			continue
		}
		if !t.ScheduledEnd.After(*t.ScheduledStart) {
			continue
		}
		tl.Add(Interval{
			Start:  t.ScheduledStart.UTC(),
			End:    t.ScheduledEnd.UTC(),
			Source: SourceTask,
			Ref:    t.ID,
			Title:  t.Title,
		})
	}
	return tl
}

func eventInterval(ev calendar.Event, loc *time.Location) (Interval, bool) {
	if timeutil.IsDateOnly(ev.Start) {
		start, end, ok := timeutil.ExpandAllDay(ev.Start, ev.End, loc)
		if !ok {
			return Interval{}, false
		}
		return Interval{Start: start, End: end, Source: SourceCalendar, Ref: ev.ID, Title: ev.Title}, true
	}
	start, ok := timeutil.Normalize(ev.Start, loc)
	if !ok {
		return Interval{}, false
	}
	end, ok := timeutil.Normalize(ev.End, loc)
	if !ok || !end.After(start) {
		return Interval{}, false
	}
	return Interval{Start: start, End: end, Source: SourceCalendar, Ref: ev.ID, Title: ev.Title}, true
}

// Add inserts an interval, keeping start order.
func (t *Timeline) Add(iv Interval) {
	i := sort.Search(len(t.intervals), func(i int) bool {
		return t.intervals[i].Start.After(iv.Start)
	})
	t.intervals = append(t.intervals, Interval{})
	copy(t.intervals[i+1:], t.intervals[i:])
	t.intervals[i] = iv
}

// Intervals returns the busy set in start order. Callers must not mutate it.
func (t *Timeline) Intervals() []Interval { return t.intervals }

// Len reports the number of busy intervals.
func (t *Timeline) Len() int { return len(t.intervals) }

// IsFree reports whether [start, end) padded by buffer on both sides touches
// no busy interval.
func (t *Timeline) IsFree(start, end time.Time, buffer time.Duration) bool {
	return len(t.Overlapping(start, end, buffer)) == 0
}

// Overlapping returns the busy intervals that intersect [start-buffer,
// end+buffer).
func (t *Timeline) Overlapping(start, end time.Time, buffer time.Duration) []Interval {
	lo := start.Add(-buffer)
	hi := end.Add(buffer)
	var out []Interval
	for _, iv := range t.intervals {
		if !iv.Start.Before(hi) {
			break
		}
		if iv.End.After(lo) {
			out = append(out, iv)
		}
	}
	return out
}

// maxCountedInterval caps what DailyLoadMinutes counts as study-like load.
// Longer blocks (all-day events, trips) are availability, not workload.
const maxCountedInterval = 180 * time.Minute

// DailyLoadMinutes sums the busy minutes on the local day containing t.
// Only intervals at most three hours long and fully inside the day count.
func (t *Timeline) DailyLoadMinutes(day time.Time, loc *time.Location) int {
	dayStart := timeutil.LocalMidnight(day, loc)
	// Next local midnight, not +24h: DST transition days are 23 or 25 hours.
	dayEnd := timeutil.LocalMidnight(dayStart.Add(36*time.Hour), loc)

	total := 0
	for _, iv := range t.intervals {
		if !iv.Start.Before(dayEnd) {
			break
		}
		if iv.Start.Before(dayStart) || iv.End.After(dayEnd) {
			continue
		}
		if d := iv.Duration(); d <= maxCountedInterval {
			total += int(d / time.Minute)
		}
	}
	return total
}
