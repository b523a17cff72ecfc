package schedule

import (
	"context"
	"testing"
	"time"

	"studypilot/internal/eventbus"
)

func TestCollectorAggregates(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	c := NewCollector()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx, bus)
	}()

	// Give the subscriber a moment to attach before publishing.
	time.Sleep(10 * time.Millisecond)

	bus.Publish(eventbus.Event{Type: TopicTaskCommitted, Data: TaskEvent{TaskID: "t1"}})
	bus.Publish(eventbus.Event{Type: TopicTaskCommitted, Data: TaskEvent{TaskID: "t2", Fallback: true}})
	bus.Publish(eventbus.Event{Type: TopicTaskFailed, Data: TaskEvent{TaskID: "t3", Reason: ReasonNoSlot}})
	bus.Publish(eventbus.Event{Type: TopicRunFinished, Data: RunEvent{RunID: "r1", Took: 120 * time.Millisecond}})

	deadline := time.Now().Add(2 * time.Second)
	for {
		s := c.Snapshot()
		if s.Runs == 1 && s.TasksScheduled == 2 && s.TasksFailed == 1 {
			if s.Fallbacks != 1 {
				t.Fatalf("Fallbacks = %d, want 1", s.Fallbacks)
			}
			if s.FailedByReason[string(ReasonNoSlot)] != 1 {
				t.Fatalf("FailedByReason = %v", s.FailedByReason)
			}
			if s.LastRunTookMS != 120 {
				t.Fatalf("LastRunTookMS = %d, want 120", s.LastRunTookMS)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("collector never converged: %+v", s)
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collector did not stop on cancel")
	}
}
