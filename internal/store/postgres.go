package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	logx "studypilot/pkg/logx"
)

//go:embed migrations_postgres.sql
var pgMigrationsFS embed.FS

type pgStore struct {
	db  *sql.DB
	log logx.Logger
}

func openPostgres(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	st := &pgStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *pgStore) migrate(ctx context.Context) error {
	b, err := pgMigrationsFS.ReadFile("migrations_postgres.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *pgStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *pgStore) Assignment(ctx context.Context, id string) (Assignment, error) {
	var (
		a   Assignment
		due sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, subject, due_date, deadline_buffer_days
		 FROM assignments WHERE id = $1`, id,
	).Scan(&a.ID, &a.UserID, &a.Title, &a.Subject, &due, &a.DeadlineBufferDays)
	if errors.Is(err, sql.ErrNoRows) {
		return Assignment{}, ErrNotFound
	}
	if err != nil {
		return Assignment{}, err
	}
	if due.Valid {
		t := due.Time.UTC()
		a.DueDate = &t
	}
	return a, nil
}

func (s *pgStore) AssignmentTasks(ctx context.Context, assignmentID string) ([]Task, error) {
	return s.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE assignment_id = $1 ORDER BY order_index, id`,
		assignmentID)
}

func (s *pgStore) Task(ctx context.Context, id string) (Task, error) {
	tasks, err := s.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	if err != nil {
		return Task{}, err
	}
	if len(tasks) == 0 {
		return Task{}, ErrNotFound
	}
	return tasks[0], nil
}

func (s *pgStore) ScheduledTasks(ctx context.Context, userID string) ([]Task, error) {
	return s.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE user_id = $1 AND scheduled_start IS NOT NULL
		 ORDER BY scheduled_start`, userID)
}

func (s *pgStore) queryTasks(ctx context.Context, q string, args ...any) ([]Task, error) {
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
			start, end sql.NullTime
		)
		if err := rows.Scan(&t.ID, &t.AssignmentID, &t.UserID, &t.Title, &t.Phase,
			&t.DurationMinutes, &t.Intensity, &deps, &t.OrderIndex,
			&start, &end, &t.EventRef); err != nil {
			return nil, err
		}
		t.DependsOn = decodeDeps(deps)
		if start.Valid {
			v := start.Time.UTC()
			t.ScheduledStart = &v
		}
		if end.Valid {
			v := end.Time.UTC()
			t.ScheduledEnd = &v
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *pgStore) UpdateTaskSchedule(ctx context.Context, taskID string, start, end *time.Time, eventRef string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET scheduled_start=$1, scheduled_end=$2, event_ref=$3, updated_at=now()
		 WHERE id = $4`,
		pgTime(start), pgTime(end), eventRef, taskID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgStore) Preferences(ctx context.Context, userID string) (Preferences, bool, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM preferences WHERE user_id = $1`, userID).Scan(&doc)
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

func (s *pgStore) PutEventRef(ctx context.Context, key, ref string, until time.Time) error {
	if key == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO event_refs(key, ref, until) VALUES($1,$2,$3)
		 ON CONFLICT(key) DO UPDATE SET ref=excluded.ref, until=excluded.until`,
		key, ref, until.UnixMilli(),
	)
	return err
}

func (s *pgStore) GetEventRef(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, nil
	}
	var (
		ref string
		ms  int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT ref, until FROM event_refs WHERE key = $1`, key).Scan(&ref, &ms)
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

func (s *pgStore) PruneExpired(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM event_refs WHERE until < $1`, time.Now().UnixMilli())
	return err
}

func (s *pgStore) RepairTentative(ctx context.Context, olderThan time.Duration) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET scheduled_start=NULL, scheduled_end=NULL, updated_at=now()
		 WHERE scheduled_start IS NOT NULL AND event_ref = '' AND updated_at < $1`,
		time.Now().UTC().Add(-olderThan),
	)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *pgStore) PutAssignment(ctx context.Context, a Assignment) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO assignments(id, user_id, title, subject, due_date, deadline_buffer_days)
		 VALUES($1,$2,$3,$4,$5,$6)
		 ON CONFLICT(id) DO UPDATE SET user_id=excluded.user_id, title=excluded.title,
		   subject=excluded.subject, due_date=excluded.due_date,
		   deadline_buffer_days=excluded.deadline_buffer_days`,
		a.ID, a.UserID, a.Title, a.Subject, pgTime(a.DueDate), a.DeadlineBufferDays,
	)
	return err
}

func (s *pgStore) PutTask(ctx context.Context, t Task) error {
	deps, err := json.Marshal(t.DependsOn)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tasks(`+taskColumns+`, updated_at)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,now())
		 ON CONFLICT(id) DO UPDATE SET title=excluded.title, phase=excluded.phase,
		   duration_minutes=excluded.duration_minutes, intensity=excluded.intensity,
		   depends_on=excluded.depends_on, order_index=excluded.order_index,
		   scheduled_start=excluded.scheduled_start, scheduled_end=excluded.scheduled_end,
		   event_ref=excluded.event_ref, updated_at=excluded.updated_at`,
		t.ID, t.AssignmentID, t.UserID, t.Title, t.Phase, t.DurationMinutes,
		string(t.Intensity), string(deps), t.OrderIndex,
		pgTime(t.ScheduledStart), pgTime(t.ScheduledEnd), t.EventRef,
	)
	return err
}

func (s *pgStore) PutPreferences(ctx context.Context, userID string, p Preferences) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO preferences(user_id, doc) VALUES($1,$2)
		 ON CONFLICT(user_id) DO UPDATE SET doc=excluded.doc`,
		userID, string(doc),
	)
	return err
}

func pgTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
