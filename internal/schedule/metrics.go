package schedule

import (
	"context"
	"sync"
	"time"

	"studypilot/internal/eventbus"
)

// Snapshot is the aggregate view served by the metrics endpoint.
type Snapshot struct {
	Runs           uint64            `json:"runs"`
	TasksScheduled uint64            `json:"tasks_scheduled"`
	TasksFailed    uint64            `json:"tasks_failed"`
	Fallbacks      uint64            `json:"fallback_placements"`
	FailedByReason map[string]uint64 `json:"failed_by_reason,omitempty"`
	LastRunAt      time.Time         `json:"last_run_at,omitzero"`
	LastRunTookMS  int64             `json:"last_run_took_ms"`
}

// Collector aggregates engine events from the bus.
type Collector struct {
	mu   sync.Mutex
	snap Snapshot
}

func NewCollector() *Collector {
	return &Collector{snap: Snapshot{FailedByReason: map[string]uint64{}}}
}

// Run consumes bus events until ctx is done. Intended for a supervisor
// goroutine.
func (c *Collector) Run(ctx context.Context, bus eventbus.Bus) error {
	ch, unsub := bus.Subscribe(64)
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			c.observe(ev)
		}
	}
}

func (c *Collector) observe(ev eventbus.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Type {
	case TopicRunFinished:
		c.snap.Runs++
		if re, ok := ev.Data.(RunEvent); ok {
			c.snap.LastRunAt = ev.Time
			c.snap.LastRunTookMS = re.Took.Milliseconds()
		}
	case TopicTaskCommitted:
		c.snap.TasksScheduled++
		if te, ok := ev.Data.(TaskEvent); ok && te.Fallback {
			c.snap.Fallbacks++
		}
	case TopicTaskFailed:
		c.snap.TasksFailed++
		if te, ok := ev.Data.(TaskEvent); ok && te.Reason != "" {
			c.snap.FailedByReason[string(te.Reason)]++
		}
	}
}

// Snapshot returns a copy of the current counters.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.snap
	out.FailedByReason = make(map[string]uint64, len(c.snap.FailedByReason))
	for k, v := range c.snap.FailedByReason {
		out.FailedByReason[k] = v
	}
	return out
}
