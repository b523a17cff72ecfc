package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	logx "studypilot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger

	opCount    atomic.Uint64
	pruneEvery uint64
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = "./studypilot.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log, pruneEvery: 500}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const taskColumns = `id, assignment_id, user_id, title, phase, duration_minutes,
	intensity, depends_on, order_index, scheduled_start, scheduled_end, event_ref`

func (s *sqliteStore) Assignment(ctx context.Context, id string) (Assignment, error) {
	if s == nil || s.db == nil {
		return Assignment{}, ErrDisabled
	}
	var (
		a   Assignment
		due sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, subject, due_date, deadline_buffer_days
		 FROM assignments WHERE id = ?`, id,
	).Scan(&a.ID, &a.UserID, &a.Title, &a.Subject, &due, &a.DeadlineBufferDays)
	if errors.Is(err, sql.ErrNoRows) {
		return Assignment{}, ErrNotFound
	}
	if err != nil {
		return Assignment{}, err
	}
	a.DueDate = scanTime(due)
	return a, nil
}

func (s *sqliteStore) AssignmentTasks(ctx context.Context, assignmentID string) ([]Task, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	return s.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE assignment_id = ? ORDER BY order_index, id`,
		assignmentID)
}

func (s *sqliteStore) Task(ctx context.Context, id string) (Task, error) {
	if s == nil || s.db == nil {
		return Task{}, ErrDisabled
	}
	tasks, err := s.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	if err != nil {
		return Task{}, err
	}
	if len(tasks) == 0 {
		return Task{}, ErrNotFound
	}
	return tasks[0], nil
}

func (s *sqliteStore) ScheduledTasks(ctx context.Context, userID string) ([]Task, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	return s.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE user_id = ? AND scheduled_start IS NOT NULL
		 ORDER BY scheduled_start`, userID)
}

func (s *sqliteStore) queryTasks(ctx context.Context, q string, args ...any) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		var (
			t          Task
			deps       string
			start, end sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.AssignmentID, &t.UserID, &t.Title, &t.Phase,
			&t.DurationMinutes, &t.Intensity, &deps, &t.OrderIndex,
			&start, &end, &t.EventRef); err != nil {
			return nil, err
		}
		t.DependsOn = decodeDeps(deps)
		t.ScheduledStart = scanTime(start)
		t.ScheduledEnd = scanTime(end)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *sqliteStore) UpdateTaskSchedule(ctx context.Context, taskID string, start, end *time.Time, eventRef string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET scheduled_start=?, scheduled_end=?, event_ref=?, updated_at=?
		 WHERE id = ?`,
		fmtTime(start), fmtTime(end), eventRef, time.Now().UTC().Format(time.RFC3339Nano), taskID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) Preferences(ctx context.Context, userID string) (Preferences, bool, error) {
	if s == nil || s.db == nil {
		return Preferences{}, false, ErrDisabled
	}
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM preferences WHERE user_id = ?`, userID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return Preferences{}, false, nil
	}
	if err != nil {
		return Preferences{}, false, err
	}
	var p Preferences
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return Preferences{}, false, fmt.Errorf("preferences for %s: %w", userID, err)
	}
	return p, true, nil
}

func (s *sqliteStore) PutEventRef(ctx context.Context, key, ref string, until time.Time) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if key == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO event_refs(key, ref, until) VALUES(?,?,?)
		 ON CONFLICT(key) DO UPDATE SET ref=excluded.ref, until=excluded.until`,
		key, ref, until.UnixMilli(),
	)
	if err == nil && s.opCount.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		_ = s.PruneExpired(pctx)
		cancel()
	}
	return err
}

func (s *sqliteStore) GetEventRef(ctx context.Context, key string) (string, bool, error) {
	if s == nil || s.db == nil {
		return "", false, ErrDisabled
	}
	if key == "" {
		return "", false, nil
	}
	var (
		ref string
		ms  int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT ref, until FROM event_refs WHERE key = ?`, key).Scan(&ref, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if time.Now().UnixMilli() >= ms {
		return "", false, nil
	}
	return ref, true, nil
}

func (s *sqliteStore) PruneExpired(ctx context.Context) error {
	if s == nil || s.db == nil {
		return nil
	}
	now := time.Now().UnixMilli()
	_, err := s.db.ExecContext(ctx, `DELETE FROM event_refs WHERE until < ?`, now)
	return err
}

func (s *sqliteStore) RepairTentative(ctx context.Context, olderThan time.Duration) (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET scheduled_start=NULL, scheduled_end=NULL, updated_at=?
		 WHERE scheduled_start IS NOT NULL AND event_ref = '' AND updated_at < ?`,
		time.Now().UTC().Format(time.RFC3339Nano), cutoff,
	)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *sqliteStore) PutAssignment(ctx context.Context, a Assignment) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO assignments(id, user_id, title, subject, due_date, deadline_buffer_days)
		 VALUES(?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET user_id=excluded.user_id, title=excluded.title,
		   subject=excluded.subject, due_date=excluded.due_date,
		   deadline_buffer_days=excluded.deadline_buffer_days`,
		a.ID, a.UserID, a.Title, a.Subject, fmtTime(a.DueDate), a.DeadlineBufferDays,
	)
	return err
}

func (s *sqliteStore) PutTask(ctx context.Context, t Task) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	deps, err := json.Marshal(t.DependsOn)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tasks(`+taskColumns+`, updated_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET title=excluded.title, phase=excluded.phase,
		   duration_minutes=excluded.duration_minutes, intensity=excluded.intensity,
		   depends_on=excluded.depends_on, order_index=excluded.order_index,
		   scheduled_start=excluded.scheduled_start, scheduled_end=excluded.scheduled_end,
		   event_ref=excluded.event_ref, updated_at=excluded.updated_at`,
		t.ID, t.AssignmentID, t.UserID, t.Title, t.Phase, t.DurationMinutes,
		string(t.Intensity), string(deps), t.OrderIndex,
		fmtTime(t.ScheduledStart), fmtTime(t.ScheduledEnd), t.EventRef,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) PutPreferences(ctx context.Context, userID string, p Preferences) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	doc, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO preferences(user_id, doc) VALUES(?,?)
		 ON CONFLICT(user_id) DO UPDATE SET doc=excluded.doc`,
		userID, string(doc),
	)
	return err
}

func decodeDeps(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var deps []string
	if err := json.Unmarshal([]byte(raw), &deps); err != nil {
		return nil
	}
	return deps
}

func scanTime(v sql.NullString) *time.Time {
	if !v.Valid || strings.TrimSpace(v.String) == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, v.String)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

func fmtTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
