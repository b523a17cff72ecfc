// Package depgraph orders an assignment's tasks so that every task runs
// after the siblings it depends on.
package depgraph

import (
	"sort"

	"studypilot/internal/store"
)

// Order topologically sorts tasks by their DependsOn titles (Kahn's
// algorithm). Among ready tasks the declared order index wins, with task id
// as the tie-break, so runs are deterministic.
//
// Dependencies naming unknown titles are ignored. Tasks caught in a cycle
// (and anything downstream of one) come back in unresolved; ordered still
// contains every task that could be placed.
func Order(tasks []store.Task) (ordered, unresolved []store.Task) {
	if len(tasks) == 0 {
		return nil, nil
	}

	byTitle := make(map[string]int, len(tasks))
	for i, t := range tasks {
		if _, dup := byTitle[t.Title]; !dup {
			byTitle[t.Title] = i
		}
	}

	indegree := make([]int, len(tasks))
	dependents := make([][]int, len(tasks))
	for i, t := range tasks {
		seen := map[int]bool{}
		for _, dep := range t.DependsOn {
			j, ok := byTitle[dep]
			if !ok || j == i || seen[j] {
				continue
			}
			seen[j] = true
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	ready := make([]int, 0, len(tasks))
	for i := range tasks {
		if indegree[i] == 0 {
			ready = append(ready, i)
		}
	}

	less := func(a, b int) bool {
		if tasks[a].OrderIndex != tasks[b].OrderIndex {
			return tasks[a].OrderIndex < tasks[b].OrderIndex
		}
		return tasks[a].ID < tasks[b].ID
	}

	done := make([]bool, len(tasks))
	ordered = make([]store.Task, 0, len(tasks))
	for len(ready) > 0 {
		sort.Slice(ready, func(x, y int) bool { return less(ready[x], ready[y]) })
		i := ready[0]
		ready = ready[1:]

		done[i] = true
		ordered = append(ordered, tasks[i])
		for _, j := range dependents[i] {
			indegree[j]--
			if indegree[j] == 0 {
				ready = append(ready, j)
			}
		}
	}

	for i, t := range tasks {
		if !done[i] {
			unresolved = append(unresolved, t)
		}
	}
	return ordered, unresolved
}
