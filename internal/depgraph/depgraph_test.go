package depgraph

import (
	"testing"

	"studypilot/internal/store"
)

func titles(tasks []store.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.Title
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestOrderRespectsDependencies(t *testing.T) {
	t.Parallel()
	tasks := []store.Task{
		{ID: "1", Title: "outline", OrderIndex: 0},
		{ID: "2", Title: "draft", OrderIndex: 1, DependsOn: []string{"outline", "research"}},
		{ID: "3", Title: "research", OrderIndex: 2},
		{ID: "4", Title: "review", OrderIndex: 3, DependsOn: []string{"draft"}},
	}

	ordered, unresolved := Order(tasks)
	if len(unresolved) != 0 {
		t.Fatalf("unresolved = %v, want none", titles(unresolved))
	}
	if got := titles(ordered); !equal(got, []string{"outline", "research", "draft", "review"}) {
		t.Fatalf("order = %v", got)
	}
}

func TestOrderPrefersSequenceIndexAmongReady(t *testing.T) {
	t.Parallel()
	tasks := []store.Task{
		{ID: "1", Title: "c", OrderIndex: 2},
		{ID: "2", Title: "a", OrderIndex: 0},
		{ID: "3", Title: "b", OrderIndex: 1},
	}
	ordered, _ := Order(tasks)
	if got := titles(ordered); !equal(got, []string{"a", "b", "c"}) {
		t.Fatalf("order = %v, want declared sequence", got)
	}
}

func TestOrderIgnoresUnknownAndSelfDeps(t *testing.T) {
	t.Parallel()
	tasks := []store.Task{
		{ID: "1", Title: "read", OrderIndex: 0, DependsOn: []string{"ghost chapter", "read"}},
		{ID: "2", Title: "notes", OrderIndex: 1, DependsOn: []string{"read"}},
	}
	ordered, unresolved := Order(tasks)
	if len(unresolved) != 0 {
		t.Fatalf("unresolved = %v, want none", titles(unresolved))
	}
	if got := titles(ordered); !equal(got, []string{"read", "notes"}) {
		t.Fatalf("order = %v", got)
	}
}

func TestOrderReportsCycle(t *testing.T) {
	t.Parallel()
	tasks := []store.Task{
		{ID: "1", Title: "a", OrderIndex: 0, DependsOn: []string{"b"}},
		{ID: "2", Title: "b", OrderIndex: 1, DependsOn: []string{"a"}},
		{ID: "3", Title: "c", OrderIndex: 2},
		{ID: "4", Title: "d", OrderIndex: 3, DependsOn: []string{"a"}},
	}

	ordered, unresolved := Order(tasks)
	if got := titles(ordered); !equal(got, []string{"c"}) {
		t.Fatalf("ordered = %v, want [c]", got)
	}
	// The cycle and its downstream task are both unresolved.
	if got := titles(unresolved); !equal(got, []string{"a", "b", "d"}) {
		t.Fatalf("unresolved = %v, want [a b d]", got)
	}
}

func TestOrderDuplicateDepCountedOnce(t *testing.T) {
	t.Parallel()
	tasks := []store.Task{
		{ID: "1", Title: "read", OrderIndex: 0},
		{ID: "2", Title: "write", OrderIndex: 1, DependsOn: []string{"read", "read"}},
	}
	ordered, unresolved := Order(tasks)
	if len(unresolved) != 0 || len(ordered) != 2 {
		t.Fatalf("ordered=%v unresolved=%v", titles(ordered), titles(unresolved))
	}
}
