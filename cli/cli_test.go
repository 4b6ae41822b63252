package cli

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

type fakeBackend struct {
	mu        sync.Mutex
	moves     []string
	analytics int
}

func employee() map[string]any {
	return map[string]any{"id": 1, "username": "dev", "first_name": "Dana", "last_name": "Dev", "role": "employee"}
}

func (f *fakeBackend) tasks() []map[string]any {
	other := map[string]any{"id": 2, "username": "sam", "role": "employee"}
	return []map[string]any{
		{"id": 10, "title": "Fix login", "status": "todo", "priority": "high", "project": 1, "assignee": employee(), "created_at": "2026-01-01T10:00:00Z"},
		{"id": 11, "title": "Write docs", "status": "done", "priority": "low", "project": 1, "assignee": employee(), "created_at": "2026-01-01T10:00:00Z", "completed_at": "2026-01-03T10:00:00Z"},
		{"id": 12, "title": "Deploy", "status": "review", "priority": "urgent", "project": 1, "assignee": other, "created_at": "2026-01-01T10:00:00Z"},
	}
}

func (f *fakeBackend) register(e *echo.Echo) {
	e.POST("/api/users/login/", func(c echo.Context) error {
		var body map[string]string
		if err := c.Bind(&body); err != nil || body["password"] != "secret" {
			return c.JSON(http.StatusUnauthorized, map[string]string{"detail": "Invalid credentials"})
		}
		return c.JSON(http.StatusOK, map[string]any{"access": "a1", "refresh": "r1", "user": employee()})
	})
	e.GET("/api/users/profile/", func(c echo.Context) error {
		if c.Request().Header.Get("Authorization") != "Bearer a1" {
			return c.JSON(http.StatusUnauthorized, map[string]string{"detail": "bad token"})
		}
		return c.JSON(http.StatusOK, employee())
	})
	e.GET("/api/tasks/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, f.tasks())
	})
	e.GET("/api/projects/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, []map[string]any{{"id": 1, "name": "Website"}})
	})
	e.POST("/api/tasks/:id/change_status/", func(c echo.Context) error {
		var body map[string]string
		if err := c.Bind(&body); err != nil {
			return err
		}
		f.mu.Lock()
		f.moves = append(f.moves, c.Param("id")+"->"+body["status"])
		f.mu.Unlock()
		return c.JSON(http.StatusOK, map[string]string{"status": body["status"]})
	})
	e.GET("/api/users/notifications/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, []map[string]any{
			{"id": 5, "type": "task_assigned", "title": "Task assigned", "message": "Fix login", "is_read": false, "created_at": "2026-01-02T10:00:00Z"},
		})
	})
	e.GET("/api/events/dashboard/", func(c echo.Context) error {
		f.mu.Lock()
		f.analytics++
		f.mu.Unlock()
		return c.JSON(http.StatusInternalServerError, map[string]string{"detail": "analytics down"})
	})
}

type harness struct {
	t       *testing.T
	backend *fakeBackend
	config  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	backend := &fakeBackend{}
	e := echo.New()
	e.HideBanner = true
	backend.register(e)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	cfg := fmt.Sprintf(`api:
  base_url: %s/api
  retry_base_delay: 1ms
  max_retries: 1
session:
  backend: file
  path: %s
log:
  level: error
`, srv.URL, filepath.Join(dir, "session.json"))
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return &harness{t: t, backend: backend, config: path}
}

func (h *harness) run(args ...string) (string, string, error) {
	h.t.Helper()
	var out, errOut bytes.Buffer
	root := NewRootCmd(strings.NewReader(""), &out, &errOut)
	root.SetArgs(append([]string{"--config", h.config}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func (h *harness) login() {
	h.t.Helper()
	if _, _, err := h.run("login", "-u", "dev", "-p", "secret"); err != nil {
		h.t.Fatalf("login: %v", err)
	}
}

func TestLoginAndWhoami(t *testing.T) {
	h := newHarness(t)

	out, _, err := h.run("login", "-u", "dev", "-p", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !strings.Contains(out, "Logged in as Dana Dev (employee)") {
		t.Fatalf("unexpected login output %q", out)
	}

	out, _, err = h.run("whoami")
	if err != nil {
		t.Fatalf("whoami: %v", err)
	}
	if !strings.Contains(out, "dev") || !strings.Contains(out, "Dana Dev") {
		t.Fatalf("unexpected whoami output %q", out)
	}
}

func TestWhoamiRequiresLogin(t *testing.T) {
	h := newHarness(t)
	_, _, err := h.run("whoami")
	if err == nil || !strings.Contains(err.Error(), "not logged in") {
		t.Fatalf("expected not logged in error, got %v", err)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	h := newHarness(t)
	if _, _, err := h.run("login", "-u", "dev", "-p", "nope"); err == nil {
		t.Fatalf("expected login failure")
	}
	if _, _, err := h.run("whoami"); err == nil {
		t.Fatalf("failed login must not leave a session")
	}
}

func TestTasksListShowsOnlyAssignedForEmployee(t *testing.T) {
	h := newHarness(t)
	h.login()

	out, _, err := h.run("tasks")
	if err != nil {
		t.Fatalf("tasks: %v", err)
	}
	if !strings.Contains(out, "Fix login") || !strings.Contains(out, "Write docs") {
		t.Fatalf("missing own tasks in %q", out)
	}
	if strings.Contains(out, "Deploy") {
		t.Fatalf("employee must not see other people's tasks: %q", out)
	}
}

func TestBoardMove(t *testing.T) {
	h := newHarness(t)
	h.login()

	out, _, err := h.run("board", "move", "10", "in-progress")
	if err != nil {
		t.Fatalf("board move: %v", err)
	}
	if !strings.Contains(out, "Moved task #10 to In Progress") {
		t.Fatalf("unexpected output %q", out)
	}
	if !strings.Contains(out, "In Progress (1)") || !strings.Contains(out, "To Do (0)") {
		t.Fatalf("board not updated: %q", out)
	}
	h.backend.mu.Lock()
	defer h.backend.mu.Unlock()
	if len(h.backend.moves) != 1 || h.backend.moves[0] != "10->in-progress" {
		t.Fatalf("unexpected backend moves %v", h.backend.moves)
	}
}

func TestBoardMoveOtherUsersTask(t *testing.T) {
	h := newHarness(t)
	h.login()

	_, _, err := h.run("board", "status", "12", "done")
	if err == nil || !strings.Contains(err.Error(), "not on your board") {
		t.Fatalf("expected not on board error, got %v", err)
	}
	if len(h.backend.moves) != 0 {
		t.Fatalf("no backend call expected, got %v", h.backend.moves)
	}
}

func TestBoardMoveInvalidStatus(t *testing.T) {
	h := newHarness(t)
	h.login()
	if _, _, err := h.run("board", "move", "10", "blocked"); err == nil {
		t.Fatalf("expected invalid status error")
	}
}

func TestStatsFallsBackWhenAnalyticsFail(t *testing.T) {
	h := newHarness(t)
	h.login()

	out, _, err := h.run("stats")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if !strings.Contains(out, "Completion rate") || !strings.Contains(out, "50%") {
		t.Fatalf("unexpected stats output %q", out)
	}
	if !strings.Contains(out, "Website") {
		t.Fatalf("missing project summary in %q", out)
	}
	if h.backend.analytics != 2 {
		t.Fatalf("expected one retry of the analytics call, got %d calls", h.backend.analytics)
	}
}

func TestStatsJSON(t *testing.T) {
	h := newHarness(t)
	h.login()

	out, _, err := h.run("--json", "stats")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if !strings.Contains(out, `"completion_rate": 50`) {
		t.Fatalf("unexpected json %q", out)
	}
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	run := func(args ...string) (string, error) {
		var out, errOut bytes.Buffer
		root := NewRootCmd(strings.NewReader(""), &out, &errOut)
		root.SetArgs(append([]string{"--config", path}, args...))
		err := root.Execute()
		return out.String(), err
	}

	out, err := run("config", "init")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, path) {
		t.Fatalf("unexpected output %q", out)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read written config: %v", err)
	}
	if !strings.Contains(string(data), "base_url") {
		t.Fatalf("written config lacks api.base_url: %s", data)
	}

	if _, err := run("config", "init"); err == nil {
		t.Fatalf("expected refusal to overwrite")
	}
	if _, err := run("config", "init", "--force"); err != nil {
		t.Fatalf("config init --force: %v", err)
	}

	out, err = run("config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if !strings.Contains(out, "refresh_delay: 500ms") {
		t.Fatalf("unexpected config show output %q", out)
	}
}

func TestConfigPathSkipsLoading(t *testing.T) {
	var out bytes.Buffer
	root := NewRootCmd(strings.NewReader(""), &out, &out)
	root.SetArgs([]string{"--config", "/does/not/exist.yaml", "config", "path"})
	if err := root.Execute(); err != nil {
		t.Fatalf("config path: %v", err)
	}
	if strings.TrimSpace(out.String()) != "/does/not/exist.yaml" {
		t.Fatalf("unexpected path %q", out.String())
	}
}

func TestLiveSessionFeedsBoardAndNotifications(t *testing.T) {
	h := newHarness(t)
	h.login()

	var out bytes.Buffer
	a := &app{configPath: h.config, in: strings.NewReader(""), out: &out, errOut: &out}
	if err := a.setup(); err != nil {
		t.Fatalf("setup: %v", err)
	}
	defer a.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l, err := a.newLive(ctx, nil, nil)
	if err != nil {
		t.Fatalf("new live: %v", err)
	}
	changes, unsubscribe := l.board.Subscribe()
	defer unsubscribe()
	a.startLive(l)

	select {
	case s := <-changes:
		if s.Len() != 2 {
			t.Fatalf("expected the 2 assigned tasks on the board, got %d", s.Len())
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("board was never populated")
	}

	deadline := time.Now().Add(2 * time.Second)
	for l.center.UnreadCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("notifications were never fetched")
		}
		time.Sleep(5 * time.Millisecond)
	}
	a.stopLive(l)
}
