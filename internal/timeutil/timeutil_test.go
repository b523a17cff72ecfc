package timeutil

import (
	"testing"
	"time"
)

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("LoadLocation(%s): %v", name, err)
	}
	return loc
}

func TestNormalizeVariants(t *testing.T) {
	t.Parallel()
	ny := mustLoc(t, "America/New_York")

	tests := []struct {
		name string
		raw  string
		want time.Time
		ok   bool
	}{
		{name: "aware utc", raw: "2026-03-02T14:30:00Z",
			want: time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC), ok: true},
		{name: "aware offset", raw: "2026-03-02T09:30:00-05:00",
			want: time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC), ok: true},
		{name: "naive localized", raw: "2026-03-02T09:30:00",
			want: time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC), ok: true},
		{name: "naive no seconds", raw: "2026-03-02T09:30",
			want: time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC), ok: true},
		{name: "date only", raw: "2026-03-02",
			want: time.Date(2026, 3, 2, 5, 0, 0, 0, time.UTC), ok: true},
		{name: "garbage", raw: "soon", ok: false},
		{name: "empty", raw: "", ok: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Normalize(tt.raw, ny)
			if ok != tt.ok {
				t.Fatalf("Normalize(%q) ok = %v, want %v", tt.raw, ok, tt.ok)
			}
			if ok && !got.Equal(tt.want) {
				t.Fatalf("Normalize(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestExpandAllDay(t *testing.T) {
	t.Parallel()
	ny := mustLoc(t, "America/New_York")

	start, end, ok := ExpandAllDay("2026-03-02", "2026-03-04", ny)
	if !ok {
		t.Fatal("expected ok")
	}
	wantStart := time.Date(2026, 3, 2, 5, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2026, 3, 4, 5, 0, 0, 0, time.UTC)
	if !start.Equal(wantStart) || !end.Equal(wantEnd) {
		t.Fatalf("ExpandAllDay = [%v, %v), want [%v, %v)", start, end, wantStart, wantEnd)
	}

	// Single-day events cover exactly one local day.
	start, end, ok = ExpandAllDay("2026-03-02", "2026-03-02", ny)
	if !ok || end.Sub(start) != 24*time.Hour {
		t.Fatalf("single day span = %v, want 24h", end.Sub(start))
	}

	if _, _, ok := ExpandAllDay("tomorrow", "", ny); ok {
		t.Fatal("expected failure for invalid date")
	}
}

func TestLocationFallback(t *testing.T) {
	t.Parallel()
	if loc, ok := Location("America/New_York"); !ok || loc == time.UTC {
		t.Fatal("known zone should resolve")
	}
	if loc, ok := Location("Mars/Olympus"); ok || loc != time.UTC {
		t.Fatal("unknown zone should fall back to UTC with ok=false")
	}
	if loc, ok := Location(""); ok || loc != time.UTC {
		t.Fatal("empty zone should fall back to UTC with ok=false")
	}
}

func TestWeekdaySundayZero(t *testing.T) {
	t.Parallel()
	ny := mustLoc(t, "America/New_York")
	// 2026-03-01 is a Sunday; 03:00 UTC is still Saturday evening in NY.
	sun := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if d := Weekday(sun, time.UTC); d != 0 {
		t.Fatalf("Weekday = %d, want 0", d)
	}
	if d := Weekday(time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC), ny); d != 6 {
		t.Fatalf("Weekday in NY = %d, want 6", d)
	}
}

func TestAtAndMinuteOfDay(t *testing.T) {
	t.Parallel()
	ny := mustLoc(t, "America/New_York")
	day := time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)
	got := At(day, 8, 0, ny)
	if want := time.Date(2026, 3, 2, 13, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("At = %v, want %v", got, want)
	}

	if m, ok := MinuteOfDay("17:30"); !ok || m != 17*60+30 {
		t.Fatalf("MinuteOfDay = (%d, %v)", m, ok)
	}
	if _, ok := MinuteOfDay("25:00"); ok {
		t.Fatal("expected failure for invalid hour")
	}
}
