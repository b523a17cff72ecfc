package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// memStore keeps everything in process memory. Volatile; the scheduling
// engine's tests and demo runs use it.
type memStore struct {
	mu          sync.RWMutex
	assignments map[string]Assignment
	tasks       map[string]Task
	prefs       map[string]Preferences
	refs        map[string]memRef
	touched     map[string]time.Time
}

type memRef struct {
	ref   string
	until time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() Store {
	return &memStore{
		assignments: map[string]Assignment{},
		tasks:       map[string]Task{},
		prefs:       map[string]Preferences{},
		refs:        map[string]memRef{},
		touched:     map[string]time.Time{},
	}
}

func (m *memStore) Close() error { return nil }

func (m *memStore) Assignment(ctx context.Context, id string) (Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assignments[id]
	if !ok {
		return Assignment{}, ErrNotFound
	}
	return a, nil
}

func (m *memStore) AssignmentTasks(ctx context.Context, assignmentID string) ([]Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Task
	for _, t := range m.tasks {
		if t.AssignmentID == assignmentID {
			out = append(out, cloneTask(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OrderIndex != out[j].OrderIndex {
			return out[i].OrderIndex < out[j].OrderIndex
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *memStore) Task(ctx context.Context, id string) (Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return Task{}, ErrNotFound
	}
	return cloneTask(t), nil
}

func (m *memStore) ScheduledTasks(ctx context.Context, userID string) ([]Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Task
	for _, t := range m.tasks {
		if t.UserID == userID && t.ScheduledStart != nil {
			out = append(out, cloneTask(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ScheduledStart.Before(*out[j].ScheduledStart)
	})
	return out, nil
}

func (m *memStore) UpdateTaskSchedule(ctx context.Context, taskID string, start, end *time.Time, eventRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return ErrNotFound
	}
	t.ScheduledStart = copyTime(start)
	t.ScheduledEnd = copyTime(end)
	t.EventRef = eventRef
	m.tasks[taskID] = t
	m.touched[taskID] = time.Now()
	return nil
}

func (m *memStore) Preferences(ctx context.Context, userID string) (Preferences, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.prefs[userID]
	return p, ok, nil
}

func (m *memStore) PutEventRef(ctx context.Context, key, ref string, until time.Time) error {
	if key == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refs[key] = memRef{ref: ref, until: until}
	return nil
}

func (m *memStore) GetEventRef(ctx context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.refs[key]
	if !ok || !time.Now().Before(r.until) {
		return "", false, nil
	}
	return r.ref, true, nil
}

func (m *memStore) PruneExpired(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for k, r := range m.refs {
		if r.until.Before(now) {
			delete(m.refs, k)
		}
	}
	return nil
}

func (m *memStore) RepairTentative(ctx context.Context, olderThan time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	n := 0
	for id, t := range m.tasks {
		if t.ScheduledStart == nil || t.EventRef != "" {
			continue
		}
		if m.touched[id].After(cutoff) {
			continue
		}
		t.ScheduledStart = nil
		t.ScheduledEnd = nil
		m.tasks[id] = t
		n++
	}
	return n, nil
}

func (m *memStore) PutAssignment(ctx context.Context, a Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignments[a.ID] = a
	return nil
}

func (m *memStore) PutTask(ctx context.Context, t Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.ID] = cloneTask(t)
	m.touched[t.ID] = time.Now()
	return nil
}

func (m *memStore) PutPreferences(ctx context.Context, userID string, p Preferences) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs[userID] = p
	return nil
}

func cloneTask(t Task) Task {
	t.DependsOn = append([]string(nil), t.DependsOn...)
	t.ScheduledStart = copyTime(t.ScheduledStart)
	t.ScheduledEnd = copyTime(t.ScheduledEnd)
	return t
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
