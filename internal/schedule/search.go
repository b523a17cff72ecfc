package schedule

import (
	"time"

	"studypilot/internal/store"
	"studypilot/internal/timeline"
	"studypilot/internal/timeutil"
)

// window is a daily slice in minutes since local midnight.
type window struct {
	startMin int
	endMin   int
}

// patternWindows maps a productivity pattern to its default window.
var patternWindows = map[string]window{
	"morning": {8 * 60, 12 * 60},
	"midday":  {12 * 60, 17 * 60},
	"evening": {17 * 60, 21 * 60},
}

// defaultWindow applies when neither request, preferences, nor pattern give
// one.
var defaultWindow = window{9 * 60, 21 * 60}

// fallback pass constants: hourly candidates, 09:00 through 22:00 starts,
// nothing ends past 23:00.
const (
	fallbackFirstHour = 9
	fallbackLastHour  = 22
	fallbackEndMin    = 23 * 60
)

// intenseGap is the minimum rest between two consecutive intense tasks.
const intenseGap = 60 * time.Minute

// plan holds the per-run settings derived from preferences, the assignment,
// and the request. All instants are UTC.
type plan struct {
	loc     *time.Location
	days    map[int]bool // allowed weekdays, Sunday=0; nil means every day
	windows []window
	buffer  time.Duration

	maxDailyMin  int // 0 = uncapped
	stepMin      int
	searchStart  time.Time
	horizonEnd   time.Time
	fallbackDays int
}

// buildPlan resolves the window priority chain: an explicit request window
// beats stored preferred windows, which beat the productivity pattern.
func buildPlan(req Request, a store.Assignment, prefs store.Preferences, loc *time.Location, cfg Config, now time.Time) plan {
	p := plan{
		loc:          loc,
		stepMin:      searchStep(cfg.DefaultWorkDuration),
		fallbackDays: cfg.FallbackDays,
	}

	if len(prefs.DaysAvailable) > 0 {
		p.days = make(map[int]bool, len(prefs.DaysAvailable))
		for _, d := range prefs.DaysAvailable {
			if d >= 0 && d <= 6 {
				p.days[d] = true
			}
		}
	}

	if w, ok := requestWindow(req); ok {
		p.windows = []window{w}
	} else if ws := preferredWindows(prefs.PreferredWindows); len(ws) > 0 {
		p.windows = ws
	} else if w, ok := patternWindows[prefs.ProductivityPattern]; ok {
		p.windows = []window{w}
	} else {
		p.windows = []window{defaultWindow}
	}

	buffer := prefs.BufferMinutes
	if buffer <= 0 {
		buffer = 15
	}
	p.buffer = time.Duration(buffer) * time.Minute

	if prefs.MaxDailyStudyHours > 0 {
		p.maxDailyMin = prefs.MaxDailyStudyHours * 60
	}

	p.searchStart = now.UTC()
	if req.StartDate != "" {
		if t, ok := timeutil.Normalize(req.StartDate, loc); ok && t.After(p.searchStart) {
			p.searchStart = t
		}
	}

	if a.DueDate != nil {
		p.horizonEnd = a.DueDate.UTC().AddDate(0, 0, -a.DeadlineBufferDays)
	} else {
		p.horizonEnd = p.searchStart.AddDate(0, 0, 14)
	}
	if req.EndDate != "" {
		// An explicit end caps the horizon; the requested day itself counts.
		if t, ok := timeutil.Normalize(req.EndDate, loc); ok {
			if end := timeutil.LocalMidnight(t, loc).AddDate(0, 0, 1); end.Before(p.horizonEnd) {
				p.horizonEnd = end
			}
		}
	}
	return p
}

func searchStep(defaultWorkMin int) int {
	step := defaultWorkMin
	if step < 15 {
		step = 15
	}
	if step > 45 {
		step = 45
	}
	return step
}

func requestWindow(req Request) (window, bool) {
	if req.WindowStart == "" || req.WindowEnd == "" {
		return window{}, false
	}
	s, okS := timeutil.MinuteOfDay(req.WindowStart)
	e, okE := timeutil.MinuteOfDay(req.WindowEnd)
	if !okS || !okE || e <= s {
		return window{}, false
	}
	return window{s, e}, true
}

func preferredWindows(ws []store.TimeWindow) []window {
	var out []window
	for _, w := range ws {
		s, okS := timeutil.MinuteOfDay(w.Start)
		e, okE := timeutil.MinuteOfDay(w.End)
		if okS && okE && e > s {
			out = append(out, window{s, e})
		}
	}
	return out
}

// slot is a candidate placement.
type slot struct {
	start    time.Time
	end      time.Time
	fallback bool
}

// findSlot returns the earliest acceptable slot for a task of durMin minutes.
// minStart pushes the earliest candidate forward (dependency ends, intense
// rest gaps); pass the zero time for no constraint.
//
// The primary pass walks available days inside the horizon through the
// plan's windows. When it comes up empty a relaxed pass scans hourly
// candidates for fallbackDays beyond the horizon, keeping only the buffered
// free check.
// minStart floors both passes (dependency ends must hold everywhere);
// restFloor carries the intense-rest gap and binds the primary pass only.
func findSlot(tl *timeline.Timeline, p plan, durMin int, minStart, restFloor time.Time) (slot, bool) {
	dur := time.Duration(durMin) * time.Minute
	floor := p.searchStart
	if minStart.After(floor) {
		floor = minStart
	}
	primaryFloor := floor
	if restFloor.After(primaryFloor) {
		primaryFloor = restFloor
	}

	for day := timeutil.LocalMidnight(p.searchStart, p.loc); day.Before(p.horizonEnd); day = nextDay(day, p.loc) {
		if p.days != nil && !p.days[timeutil.Weekday(day, p.loc)] {
			continue
		}
		if p.maxDailyMin > 0 && tl.DailyLoadMinutes(day, p.loc)+durMin > p.maxDailyMin {
			continue
		}
		for _, w := range p.windows {
			for m := w.startMin; m+durMin <= w.endMin; m += p.stepMin {
				start := timeutil.At(day, m/60, m%60, p.loc)
				if start.Before(primaryFloor) {
					continue
				}
				end := start.Add(dur)
				if end.After(p.horizonEnd) {
					continue
				}
				if tl.IsFree(start, end, p.buffer) {
					return slot{start: start, end: end}, true
				}
			}
		}
	}

	// Relaxed pass: preferences could not be honored anywhere in the
	// horizon, so trade them for any buffered free slot.
	limit := timeutil.LocalMidnight(p.horizonEnd, p.loc)
	if limit.Before(p.searchStart) {
		limit = timeutil.LocalMidnight(p.searchStart, p.loc)
	}
	limit = limit.AddDate(0, 0, p.fallbackDays)
	for day := timeutil.LocalMidnight(p.searchStart, p.loc); day.Before(limit); day = nextDay(day, p.loc) {
		for h := fallbackFirstHour; h <= fallbackLastHour; h++ {
			if h*60+durMin > fallbackEndMin {
				break
			}
			start := timeutil.At(day, h, 0, p.loc)
			if start.Before(floor) {
				continue
			}
			end := start.Add(dur)
			if tl.IsFree(start, end, p.buffer) {
				return slot{start: start, end: end, fallback: true}, true
			}
		}
	}

	return slot{}, false
}

func nextDay(day time.Time, loc *time.Location) time.Time {
	return timeutil.LocalMidnight(day.Add(36*time.Hour), loc)
}

// scaledDuration applies the needs-more-time multiplier for the subject.
func scaledDuration(baseMin int, subject string, prefs store.Preferences) int {
	if baseMin <= 0 {
		return 0
	}
	if prefs.NeedsMoreTime(subject) {
		return (baseMin*5 + 2) / 4 // 1.25x, rounded
	}
	return baseMin
}
