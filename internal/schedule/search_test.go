package schedule

import (
	"testing"
	"time"

	"studypilot/internal/store"
	"studypilot/internal/timeline"
)

func testPlan(windows []window) plan {
	return plan{
		loc:          time.UTC,
		windows:      windows,
		buffer:       15 * time.Minute,
		stepMin:      45,
		searchStart:  monday,
		horizonEnd:   monday.AddDate(0, 0, 10),
		fallbackDays: 30,
	}
}

func TestSearchStepClamps(t *testing.T) {
	t.Parallel()
	tests := []struct{ in, want int }{
		{50, 45}, {10, 15}, {30, 30}, {240, 45}, {0, 15},
	}
	for _, tt := range tests {
		if got := searchStep(tt.in); got != tt.want {
			t.Fatalf("searchStep(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestBuildPlanWindowPriority(t *testing.T) {
	t.Parallel()
	a := baseAssignment()
	prefs := store.Preferences{
		ProductivityPattern: "morning",
		PreferredWindows:    []store.TimeWindow{{Start: "13:00", End: "15:00"}},
	}

	// Preferred windows beat the pattern.
	p := buildPlan(Request{}, a, prefs, time.UTC, Config{}.withDefaults(), monday)
	if len(p.windows) != 1 || p.windows[0] != (window{13 * 60, 15 * 60}) {
		t.Fatalf("windows = %+v, want preferred 13:00-15:00", p.windows)
	}

	// An explicit request window beats both.
	p = buildPlan(Request{WindowStart: "06:00", WindowEnd: "07:30"}, a, prefs, time.UTC, Config{}.withDefaults(), monday)
	if len(p.windows) != 1 || p.windows[0] != (window{6 * 60, 7*60 + 30}) {
		t.Fatalf("windows = %+v, want explicit 06:00-07:30", p.windows)
	}

	// Pattern applies when nothing else is set.
	p = buildPlan(Request{}, a, store.Preferences{ProductivityPattern: "morning"}, time.UTC, Config{}.withDefaults(), monday)
	if len(p.windows) != 1 || p.windows[0] != (window{8 * 60, 12 * 60}) {
		t.Fatalf("windows = %+v, want morning 08:00-12:00", p.windows)
	}

	// No pattern at all: the neutral default window.
	p = buildPlan(Request{}, a, store.Preferences{}, time.UTC, Config{}.withDefaults(), monday)
	if len(p.windows) != 1 || p.windows[0] != defaultWindow {
		t.Fatalf("windows = %+v, want default", p.windows)
	}
}

func TestBuildPlanHorizon(t *testing.T) {
	t.Parallel()
	prefs := store.Preferences{}
	cfg := Config{}.withDefaults()

	// Due date minus the deadline buffer.
	a := baseAssignment() // due 2026-03-12
	a.DeadlineBufferDays = 2
	p := buildPlan(Request{}, a, prefs, time.UTC, cfg, monday)
	if want := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC); !p.horizonEnd.Equal(want) {
		t.Fatalf("horizonEnd = %v, want %v", p.horizonEnd, want)
	}

	// No due date: 14 days out.
	a.DueDate = nil
	p = buildPlan(Request{}, a, prefs, time.UTC, cfg, monday)
	if want := monday.AddDate(0, 0, 14); !p.horizonEnd.Equal(want) {
		t.Fatalf("horizonEnd = %v, want %v", p.horizonEnd, want)
	}

	// An explicit end date caps the horizon through the end of that day.
	p = buildPlan(Request{EndDate: "2026-03-06"}, a, prefs, time.UTC, cfg, monday)
	if want := time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC); !p.horizonEnd.Equal(want) {
		t.Fatalf("horizonEnd with end_date = %v, want %v", p.horizonEnd, want)
	}

	// It never extends a due-date horizon.
	a = baseAssignment()
	a.DeadlineBufferDays = 2
	p = buildPlan(Request{EndDate: "2026-03-20"}, a, prefs, time.UTC, cfg, monday)
	if want := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC); !p.horizonEnd.Equal(want) {
		t.Fatalf("horizonEnd past due = %v, want %v", p.horizonEnd, want)
	}
}

func TestFindSlotHonorsDailyCap(t *testing.T) {
	t.Parallel()
	p := testPlan([]window{{17 * 60, 21 * 60}})
	p.maxDailyMin = 2 * 60

	tl := timeline.New()
	// 90 minutes already on day one.
	tl.Add(timeline.Interval{
		Start: time.Date(2026, 3, 2, 17, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 3, 2, 18, 30, 0, 0, time.UTC),
	})

	// 60 more would exceed the 120-minute cap; the slot moves to day two.
	s, ok := findSlot(tl, p, 60, time.Time{}, time.Time{})
	if !ok {
		t.Fatal("expected a slot")
	}
	if s.start.Day() != 3 {
		t.Fatalf("slot on day %d, want 3", s.start.Day())
	}

	// A 30-minute task still fits on day one.
	s, ok = findSlot(tl, p, 30, time.Time{}, time.Time{})
	if !ok || s.start.Day() != 2 {
		t.Fatalf("short task slot = %+v, want day 2", s)
	}
}

func TestFindSlotMinStart(t *testing.T) {
	t.Parallel()
	p := testPlan([]window{{17 * 60, 21 * 60}})
	floor := time.Date(2026, 3, 2, 19, 0, 0, 0, time.UTC)

	s, ok := findSlot(timeline.New(), p, 50, floor, time.Time{})
	if !ok {
		t.Fatal("expected a slot")
	}
	if s.start.Before(floor) {
		t.Fatalf("slot %v starts before the floor %v", s.start, floor)
	}
}

func TestFindSlotFallbackKeepsBuffer(t *testing.T) {
	t.Parallel()
	// A one-day horizon entirely busy during the window forces fallback.
	p := testPlan([]window{{17 * 60, 18 * 60}})
	p.horizonEnd = monday.AddDate(0, 0, 1)
	p.fallbackDays = 2

	tl := timeline.New()
	tl.Add(timeline.Interval{
		Start: time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 3, 2, 19, 0, 0, 0, time.UTC),
	})

	s, ok := findSlot(tl, p, 120, time.Time{}, time.Time{})
	if !ok {
		t.Fatal("expected a fallback slot")
	}
	if !s.fallback {
		t.Fatal("slot should be marked fallback")
	}
	if !tl.IsFree(s.start, s.end, p.buffer) {
		t.Fatal("fallback slot violates the buffer")
	}
	// Fallback never ends past 23:00 local.
	if endMin := s.end.Hour()*60 + s.end.Minute(); endMin > fallbackEndMin && s.end.Day() == s.start.Day() {
		t.Fatalf("fallback ends at minute %d, past 23:00", endMin)
	}
}

func TestFindSlotFallbackIgnoresRestFloor(t *testing.T) {
	t.Parallel()
	// A rest floor past the horizon starves the primary pass; the relaxed
	// pass drops back-to-back-intensity avoidance along with the windows.
	p := testPlan([]window{{17 * 60, 21 * 60}})
	p.horizonEnd = monday.AddDate(0, 0, 2)
	p.fallbackDays = 2
	restFloor := p.horizonEnd.AddDate(0, 0, 10)

	s, ok := findSlot(timeline.New(), p, 50, time.Time{}, restFloor)
	if !ok {
		t.Fatal("expected a fallback slot")
	}
	if !s.fallback {
		t.Fatal("slot should come from the fallback pass")
	}
	if !s.start.Before(restFloor) {
		t.Fatalf("fallback start %v still honors the rest floor %v", s.start, restFloor)
	}

	// The dependency floor still binds the fallback pass.
	dep := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	s, ok = findSlot(timeline.New(), p, 50, dep, restFloor)
	if !ok {
		t.Fatal("expected a fallback slot")
	}
	if s.start.Before(dep) {
		t.Fatalf("fallback start %v before the dependency floor %v", s.start, dep)
	}
}

func TestScaledDuration(t *testing.T) {
	t.Parallel()
	prefs := store.Preferences{SubjectStrengths: []store.SubjectStrength{
		{Subject: "math", NeedsMoreTime: true},
		{Subject: "art", NeedsMoreTime: false},
	}}
	if got := scaledDuration(60, "math", prefs); got != 75 {
		t.Fatalf("scaled = %d, want 75", got)
	}
	if got := scaledDuration(50, "math", prefs); got != 63 {
		t.Fatalf("scaled = %d, want 63 (rounded)", got)
	}
	if got := scaledDuration(60, "art", prefs); got != 60 {
		t.Fatalf("unflagged subject scaled = %d, want 60", got)
	}
	if got := scaledDuration(60, "science", prefs); got != 60 {
		t.Fatalf("unknown subject scaled = %d, want 60", got)
	}
}
