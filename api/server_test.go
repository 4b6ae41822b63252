package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus/hooks/test"

	"taskflow/board"
	"taskflow/dashboard"
	"taskflow/domain"
	"taskflow/notify"
)

type fakeChanger struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *fakeChanger) ChangeStatus(ctx context.Context, id int, status domain.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

type flushRecorder struct{ *httptest.ResponseRecorder }

func (flushRecorder) Flush() {}

var (
	master = domain.User{ID: 1, Username: "sm", Role: domain.RoleScrumMaster}
	dev    = domain.User{ID: 2, Username: "dev", Role: domain.RoleEmployee}
	now    = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
)

func seedTasks() []domain.Task {
	u := dev
	return []domain.Task{
		{ID: 1, Title: "one", Status: domain.StatusTodo, Priority: domain.PriorityUrgent, Assignee: &u},
		{ID: 2, Title: "two", Status: domain.StatusTodo, Priority: domain.PriorityLow},
		{ID: 3, Title: "three", Status: domain.StatusDone, Priority: domain.PriorityHigh},
	}
}

func newTestServer(t *testing.T, viewer domain.User, changer *fakeChanger, token string) (*Server, *board.Board, *notify.Center) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	b := board.New(viewer, changer, board.WithLogger(logger))
	t.Cleanup(b.Close)
	b.Replace(seedTasks())
	center := notify.New(nil, notify.WithLogger(logger))
	srv := New(b, center, Options{Token: token, Logger: logger, Now: func() time.Time { return now }})
	return srv, b, center
}

func do(t *testing.T, e *echo.Echo, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHealthzSkipsAuth(t *testing.T) {
	srv, _, _ := newTestServer(t, master, &fakeChanger{}, "secret")
	rec := do(t, srv.Echo(), http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestBearerTokenRequired(t *testing.T) {
	srv, _, _ := newTestServer(t, master, &fakeChanger{}, "secret")
	e := srv.Echo()
	if rec := do(t, e, http.MethodGet, "/api/board", "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	if rec := do(t, e, http.MethodGet, "/api/board", "", "wrong"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", rec.Code)
	}
	if rec := do(t, e, http.MethodGet, "/api/board", "", "secret"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", rec.Code)
	}
	if rec := do(t, e, http.MethodGet, "/api/board?token=secret", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with query token, got %d", rec.Code)
	}
}

func TestGetBoard(t *testing.T) {
	srv, _, _ := newTestServer(t, master, &fakeChanger{}, "")
	rec := do(t, srv.Echo(), http.MethodGet, "/api/board", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp boardResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Viewer != "sm" || len(resp.Columns) != 4 {
		t.Fatalf("unexpected board %+v", resp)
	}
	if len(resp.Columns[0].Tasks) != 2 || resp.Columns[0].Title != "To Do" {
		t.Fatalf("unexpected todo column %+v", resp.Columns[0])
	}
}

func TestGetStats(t *testing.T) {
	srv, _, _ := newTestServer(t, master, &fakeChanger{}, "")
	rec := do(t, srv.Echo(), http.MethodGet, "/api/stats", "", "")
	var stats dashboard.Stats
	if err := sonic.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.Total != 3 || stats.Completed != 1 || stats.UrgentOpen != 1 || stats.CompletionRate != 33 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestPostMove(t *testing.T) {
	changer := &fakeChanger{}
	srv, b, _ := newTestServer(t, master, changer, "")
	e := srv.Echo()

	rec := do(t, e, http.MethodPost, "/api/tasks/2/move", `{"status":"done","index":0}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	done := b.Snapshot().Column(domain.StatusDone)
	if len(done.Tasks) != 2 || done.Tasks[0].ID != 2 {
		t.Fatalf("task 2 should lead the done column: %+v", done.Tasks)
	}

	rec = do(t, e, http.MethodPost, "/api/tasks/1/move", `{"status":"review"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("quick action: expected 200, got %d", rec.Code)
	}
	if changer.calls != 2 {
		t.Fatalf("expected 2 backend calls, got %d", changer.calls)
	}
}

func TestPostMoveErrors(t *testing.T) {
	cases := []struct {
		name   string
		viewer domain.User
		err    error
		path   string
		body   string
		want   int
	}{
		{name: "bad id", viewer: master, path: "/api/tasks/abc/move", body: `{"status":"done"}`, want: http.StatusBadRequest},
		{name: "bad status", viewer: master, path: "/api/tasks/1/move", body: `{"status":"blocked"}`, want: http.StatusBadRequest},
		{name: "bad body", viewer: master, path: "/api/tasks/1/move", body: `{"status":`, want: http.StatusBadRequest},
		{name: "unknown task", viewer: master, path: "/api/tasks/42/move", body: `{"status":"done"}`, want: http.StatusNotFound},
		{name: "rejected", viewer: master, err: errors.New("500"), path: "/api/tasks/1/move", body: `{"status":"done"}`, want: http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv, _, _ := newTestServer(t, tc.viewer, &fakeChanger{err: tc.err}, "")
			rec := do(t, srv.Echo(), http.MethodPost, tc.path, tc.body, "")
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestPostMoveRejectedMessage(t *testing.T) {
	srv, b, _ := newTestServer(t, master, &fakeChanger{err: errors.New("boom")}, "")
	rec := do(t, srv.Echo(), http.MethodPost, "/api/tasks/1/move", `{"status":"done","index":0}`, "")
	var resp errorResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error != "Failed to update task status. Please try again." {
		t.Fatalf("unexpected message %q", resp.Error)
	}
	if got := len(b.Snapshot().Column(domain.StatusTodo).Tasks); got != 2 {
		t.Fatalf("board not rolled back: todo has %d tasks", got)
	}
}

func TestNotificationsRoutes(t *testing.T) {
	srv, _, center := newTestServer(t, master, &fakeChanger{}, "")
	center.Receive(domain.Notification{ID: "n1", Title: "hello", CreatedAt: now})
	center.Receive(domain.Notification{ID: "n2", Title: "again", CreatedAt: now.Add(time.Minute)})
	e := srv.Echo()

	var resp notificationsResponse
	rec := do(t, e, http.MethodGet, "/api/notifications", "", "")
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Unread != 2 || len(resp.Notifications) != 2 || resp.Notifications[0].ID != "n2" {
		t.Fatalf("unexpected notifications %+v", resp)
	}

	if rec := do(t, e, http.MethodPost, "/api/notifications/n1/read", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("mark read: %d", rec.Code)
	}
	if rec := do(t, e, http.MethodPost, "/api/notifications/missing/read", "", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("mark missing: %d", rec.Code)
	}
	if center.UnreadCount() != 1 {
		t.Fatalf("unread = %d, want 1", center.UnreadCount())
	}
	if rec := do(t, e, http.MethodPost, "/api/notifications/read", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("mark all: %d", rec.Code)
	}
	if center.UnreadCount() != 0 {
		t.Fatalf("unread = %d, want 0", center.UnreadCount())
	}
}

func TestStreamPushesOnChange(t *testing.T) {
	srv, b, _ := newTestServer(t, master, &fakeChanger{}, "")
	stop := srv.Watch(context.Background())
	defer stop()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	rec := flushRecorder{httptest.NewRecorder()}
	ctx, cancel := context.WithCancel(context.Background())
	req = req.WithContext(ctx)
	c := e.NewContext(req, rec)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.streamBoard(c) }()
	time.Sleep(50 * time.Millisecond)
	b.Replace(seedTasks()[:1])
	time.Sleep(50 * time.Millisecond)
	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("handler error: %v", err)
	}

	body := rec.Body.String()
	if n := strings.Count(body, "event: board\n"); n != 2 {
		t.Fatalf("expected 2 events, got %d: %q", n, body)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	events := strings.Split(strings.TrimSpace(body), "\n\n")
	last := strings.TrimPrefix(events[len(events)-1], "event: board\ndata: ")
	var ev streamEvent
	if err := sonic.Unmarshal([]byte(last), &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if len(ev.Board.Columns[0].Tasks) != 1 {
		t.Fatalf("latest event should carry the replaced board: %+v", ev.Board.Columns[0])
	}
}
