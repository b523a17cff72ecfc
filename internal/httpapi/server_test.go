package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"studypilot/internal/schedule"
	"studypilot/internal/store"
	logx "studypilot/pkg/logx"
)

type fakeScheduler struct {
	res      *schedule.Result
	err      error
	lastTask string
	lastReq  schedule.Request
}

func (f *fakeScheduler) Schedule(ctx context.Context, req schedule.Request) (*schedule.Result, error) {
	f.lastReq = req
	return f.res, f.err
}

func (f *fakeScheduler) Reschedule(ctx context.Context, taskID string, req schedule.Request) (*schedule.Result, error) {
	f.lastTask = taskID
	f.lastReq = req
	return f.res, f.err
}

func newTestServer(f *fakeScheduler) *Server {
	return New(Config{}, f, schedule.NewCollector(), logx.Nop())
}

func TestHandleSchedulePartialSuccess(t *testing.T) {
	t.Parallel()
	f := &fakeScheduler{res: &schedule.Result{
		RunID:   "r1",
		Success: true,
		Scheduled: []schedule.Placement{
			{TaskID: "t1", Title: "outline", EventRef: "evt-1"},
		},
		Failed: []schedule.Failure{
			{TaskID: "t2", Title: "draft", Reason: schedule.ReasonNoSlot},
		},
	}}
	srv := newTestServer(f)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/schedule",
		strings.NewReader(`{"user_id":"u1","assignment_id":"a1"}`))
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var out schedule.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.Success || len(out.Scheduled) != 1 || len(out.Failed) != 1 {
		t.Fatalf("unexpected result: %+v", out)
	}
	if out.Failed[0].Reason != schedule.ReasonNoSlot {
		t.Fatalf("reason = %s", out.Failed[0].Reason)
	}
	if f.lastReq.AssignmentID != "a1" {
		t.Fatalf("engine got request %+v", f.lastReq)
	}
}

func TestHandleScheduleValidation(t *testing.T) {
	t.Parallel()
	srv := newTestServer(&fakeScheduler{res: &schedule.Result{}})

	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "missing assignment", body: `{"user_id":"u1"}`, want: http.StatusBadRequest},
		{name: "bad json", body: `{"user_id"`, want: http.StatusBadRequest},
		{name: "unknown field", body: `{"assignment_id":"a1","bogus":1}`, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/schedule", strings.NewReader(tt.body))
			srv.Handler().ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestHandleScheduleNotFound(t *testing.T) {
	t.Parallel()
	srv := newTestServer(&fakeScheduler{err: store.ErrNotFound})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/schedule",
		strings.NewReader(`{"assignment_id":"missing"}`))
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandleReschedule(t *testing.T) {
	t.Parallel()
	f := &fakeScheduler{res: &schedule.Result{Success: true}}
	srv := newTestServer(f)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/tasks/t42/reschedule",
		strings.NewReader(`{"user_id":"u1"}`))
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if f.lastTask != "t42" {
		t.Fatalf("task id = %q, want t42", f.lastTask)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()
	srv := newTestServer(&fakeScheduler{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	var snap schedule.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode metrics: %v", err)
	}
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()
	srv := newTestServer(&fakeScheduler{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/schedule", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	srv.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("Allow-Origin = %q, want *", got)
	}
}
