package timeline

import (
	"testing"
	"time"

	"studypilot/internal/calendar"
	"studypilot/internal/store"
)

func utc(h, m int) time.Time {
	return time.Date(2026, 3, 2, h, m, 0, 0, time.UTC)
}

func TestBuildMergesAndSkipsInvalid(t *testing.T) {
	t.Parallel()
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatal(err)
	}

	start := utc(15, 0)
	end := utc(16, 0)
	tasks := []store.Task{
		{ID: "t1", Title: "draft", ScheduledStart: &start, ScheduledEnd: &end},
		{ID: "t2", Title: "unscheduled"},
	}
	events := []calendar.Event{
		{ID: "e1", Title: "Lecture", Start: "2026-03-02T09:00:00", End: "2026-03-02T10:00:00"},
		{ID: "e2", Title: "All day", Start: "2026-03-03", End: "2026-03-04"},
		{ID: "e3", Title: "bad", Start: "whenever", End: "2026-03-02T10:00:00Z"},
		{ID: "e4", Title: "inverted", Start: "2026-03-02T12:00:00Z", End: "2026-03-02T11:00:00Z"},
	}

	tl := Build(events, tasks, ny)
	if tl.Len() != 3 {
		t.Fatalf("Len = %d, want 3 (invalid events and unscheduled tasks skipped)", tl.Len())
	}

	// Naive event localized: 09:00 NY == 14:00 UTC.
	ivs := tl.Intervals()
	if !ivs[0].Start.Equal(utc(14, 0)) {
		t.Fatalf("first interval start = %v, want 14:00Z", ivs[0].Start)
	}
	if ivs[1].Source != SourceTask || ivs[1].Ref != "t1" {
		t.Fatalf("second interval = %+v, want task t1", ivs[1])
	}
	// All-day event spans local midnights: 2026-03-03T05:00Z to 03-04T05:00Z.
	if want := time.Date(2026, 3, 3, 5, 0, 0, 0, time.UTC); !ivs[2].Start.Equal(want) {
		t.Fatalf("all-day start = %v, want %v", ivs[2].Start, want)
	}
	if ivs[2].Duration() != 24*time.Hour {
		t.Fatalf("all-day duration = %v, want 24h", ivs[2].Duration())
	}
}

func TestIsFreeWithBuffer(t *testing.T) {
	t.Parallel()
	tl := New()
	tl.Add(Interval{Start: utc(10, 0), End: utc(11, 0), Source: SourceCalendar, Ref: "e1"})

	tests := []struct {
		name       string
		start, end time.Time
		buffer     time.Duration
		free       bool
	}{
		{name: "clear before", start: utc(8, 0), end: utc(9, 0), free: true},
		{name: "direct overlap", start: utc(10, 30), end: utc(11, 30), free: false},
		{name: "touching edge is free", start: utc(11, 0), end: utc(12, 0), free: true},
		{name: "edge blocked by buffer", start: utc(11, 0), end: utc(12, 0), buffer: 15 * time.Minute, free: false},
		{name: "beyond buffer", start: utc(11, 15), end: utc(12, 0), buffer: 15 * time.Minute, free: true},
		{name: "before with buffer", start: utc(9, 0), end: utc(9, 45), buffer: 15 * time.Minute, free: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := tl.IsFree(tt.start, tt.end, tt.buffer); got != tt.free {
				t.Fatalf("IsFree(%v, %v, %v) = %v, want %v", tt.start, tt.end, tt.buffer, got, tt.free)
			}
		})
	}
}

func TestAddKeepsOrder(t *testing.T) {
	t.Parallel()
	tl := New()
	tl.Add(Interval{Start: utc(14, 0), End: utc(15, 0)})
	tl.Add(Interval{Start: utc(9, 0), End: utc(10, 0)})
	tl.Add(Interval{Start: utc(11, 0), End: utc(12, 0)})

	ivs := tl.Intervals()
	for i := 1; i < len(ivs); i++ {
		if ivs[i].Start.Before(ivs[i-1].Start) {
			t.Fatalf("intervals out of order at %d: %+v", i, ivs)
		}
	}
}

func TestDailyLoadMinutes(t *testing.T) {
	t.Parallel()
	tl := New()
	// Two countable blocks: 60 + 45 minutes.
	tl.Add(Interval{Start: utc(9, 0), End: utc(10, 0)})
	tl.Add(Interval{Start: utc(13, 0), End: utc(13, 45)})
	// Four-hour block: availability, not load.
	tl.Add(Interval{Start: utc(15, 0), End: utc(19, 0)})
	// Crosses midnight, not fully inside the day.
	tl.Add(Interval{Start: utc(23, 30), End: utc(23, 30).Add(time.Hour)})
	// Different day entirely.
	tl.Add(Interval{Start: utc(9, 0).AddDate(0, 0, 1), End: utc(10, 0).AddDate(0, 0, 1)})

	if got := tl.DailyLoadMinutes(utc(12, 0), time.UTC); got != 105 {
		t.Fatalf("DailyLoadMinutes = %d, want 105", got)
	}
}
