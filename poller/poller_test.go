package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"taskflow/domain"
)

type fakeSource struct {
	mu       sync.Mutex
	tasks    []domain.Task
	projects []domain.Project
	taskErr  error
	calls    int
}

func (s *fakeSource) ListTasks(ctx context.Context) ([]domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.taskErr != nil {
		return nil, s.taskErr
	}
	return append([]domain.Task(nil), s.tasks...), nil
}

func (s *fakeSource) ListProjects(ctx context.Context) ([]domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Project(nil), s.projects...), nil
}

func (s *fakeSource) setTasks(tasks []domain.Task) {
	s.mu.Lock()
	s.tasks = tasks
	s.mu.Unlock()
}

type manualTicker struct {
	ch      chan time.Time
	stopped chan struct{}
	once    sync.Once
}

func newManualTicker() *manualTicker {
	return &manualTicker{ch: make(chan time.Time), stopped: make(chan struct{})}
}

func (t *manualTicker) C() <-chan time.Time { return t.ch }

func (t *manualTicker) Stop() { t.once.Do(func() { close(t.stopped) }) }

func (t *manualTicker) tick(tb testing.TB) {
	tb.Helper()
	select {
	case t.ch <- time.Now():
	case <-time.After(time.Second):
		tb.Fatal("loop did not accept tick")
	}
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recorder struct {
	mu     sync.Mutex
	tasks  [][]domain.Task
	notes  []domain.Notification
	signal chan struct{}
}

func newRecorder() *recorder { return &recorder{signal: make(chan struct{}, 16)} }

func (r *recorder) onTasks(ts []domain.Task) {
	r.mu.Lock()
	r.tasks = append(r.tasks, ts)
	r.mu.Unlock()
	r.signal <- struct{}{}
}

func (r *recorder) onNotification(n domain.Notification) {
	r.mu.Lock()
	r.notes = append(r.notes, n)
	r.mu.Unlock()
}

func (r *recorder) wait(tb testing.TB) {
	tb.Helper()
	select {
	case <-r.signal:
	case <-time.After(time.Second):
		tb.Fatal("no cycle completed")
	}
}

func (r *recorder) cycles() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

func (r *recorder) last() []domain.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tasks[len(r.tasks)-1]
}

var base = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func assigned(id, userID int, created time.Time) domain.Task {
	return domain.Task{
		ID:        id,
		Title:     "task",
		Status:    domain.StatusTodo,
		Assignee:  &domain.User{ID: userID},
		CreatedAt: created,
	}
}

func newTestPoller(t *testing.T, src Source, cfg Config, ticker *manualTicker, clk *clock) *Poller {
	t.Helper()
	logger, _ := test.NewNullLogger()
	p := New(src, cfg,
		WithLogger(logger),
		WithClock(clk.Now),
		WithTicker(func(time.Duration) Ticker { return ticker }),
	)
	t.Cleanup(p.Stop)
	return p
}

func TestPollerRunsImmediatelyThenPerTick(t *testing.T) {
	src := &fakeSource{tasks: []domain.Task{assigned(1, 5, base)}}
	rec := newRecorder()
	ticker := newManualTicker()
	p := newTestPoller(t, src, Config{UserID: 5, Role: domain.RoleScrumMaster, OnTasks: rec.onTasks}, ticker, &clock{now: base})

	p.Start(context.Background())
	rec.wait(t)
	if rec.cycles() != 1 {
		t.Fatalf("expected one immediate cycle, got %d", rec.cycles())
	}

	ticker.tick(t)
	rec.wait(t)
	ticker.tick(t)
	rec.wait(t)
	if rec.cycles() != 3 {
		t.Fatalf("expected 3 cycles after 2 ticks, got %d", rec.cycles())
	}

	select {
	case <-rec.signal:
		t.Fatal("cycle ran without a tick")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestPollerFiltersTasksForEmployees(t *testing.T) {
	tasks := []domain.Task{assigned(1, 5, base), assigned(2, 6, base), {ID: 3, Status: domain.StatusTodo}}
	cases := []struct {
		name string
		role domain.Role
		want []int
	}{
		{name: "employee", role: domain.RoleEmployee, want: []int{1}},
		{name: "scrum master", role: domain.RoleScrumMaster, want: []int{1, 2, 3}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := newRecorder()
			p := newTestPoller(t, &fakeSource{tasks: tasks}, Config{UserID: 5, Role: tc.role, OnTasks: rec.onTasks}, newManualTicker(), &clock{now: base})
			if err := p.SyncNow(context.Background()); err != nil {
				t.Fatalf("sync: %v", err)
			}
			got := rec.last()
			if len(got) != len(tc.want) {
				t.Fatalf("got %d tasks, want %v", len(got), tc.want)
			}
			for i, id := range tc.want {
				if got[i].ID != id {
					t.Fatalf("task %d = %d, want %d", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestPollerNotifiesNewAssignmentsAfterInterval(t *testing.T) {
	clk := &clock{now: base}
	src := &fakeSource{}
	rec := newRecorder()
	p := newTestPoller(t, src, Config{
		UserID:         5,
		Role:           domain.RoleEmployee,
		Interval:       30 * time.Second,
		OnTasks:        rec.onTasks,
		OnNotification: rec.onNotification,
	}, newManualTicker(), clk)

	src.setTasks([]domain.Task{assigned(1, 5, base.Add(-time.Hour))})
	clk.Advance(10 * time.Second)
	src.setTasks([]domain.Task{assigned(1, 5, base.Add(-time.Hour)), assigned(2, 5, base.Add(5*time.Second))})
	if err := p.SyncNow(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(rec.notes) != 0 {
		t.Fatalf("no notification expected inside the first interval, got %d", len(rec.notes))
	}

	clk.Advance(25 * time.Second)
	task3 := assigned(3, 5, base.Add(31*time.Second))
	task3.Title = "Fix login"
	src.setTasks([]domain.Task{assigned(2, 5, base.Add(5*time.Second)), task3, assigned(4, 6, base.Add(32*time.Second))})
	if err := p.SyncNow(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(rec.notes) != 2 {
		t.Fatalf("expected notifications for tasks 2 and 3, got %d", len(rec.notes))
	}
	n := rec.notes[1]
	if n.Title != "New Task Assigned" || n.Message != `You have been assigned a new task: "Fix login"` || n.Link != "/tasks" {
		t.Fatalf("unexpected notification %+v", n)
	}
	if n.Level != domain.LevelInfo || n.IsRead {
		t.Fatalf("unexpected level/read state %+v", n)
	}

	// Checkpoint advanced, so the same tasks are not reported again.
	clk.Advance(31 * time.Second)
	if err := p.SyncNow(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(rec.notes) != 2 {
		t.Fatalf("tasks reported twice: %d notifications", len(rec.notes))
	}
}

func TestPollerScrumMasterGetsNoSyntheticNotifications(t *testing.T) {
	clk := &clock{now: base}
	rec := newRecorder()
	src := &fakeSource{tasks: []domain.Task{assigned(1, 5, base.Add(time.Minute))}}
	p := newTestPoller(t, src, Config{
		UserID:         5,
		Role:           domain.RoleScrumMaster,
		OnTasks:        rec.onTasks,
		OnNotification: rec.onNotification,
	}, newManualTicker(), clk)
	clk.Advance(2 * time.Minute)
	if err := p.SyncNow(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(rec.notes) != 0 {
		t.Fatalf("unexpected notifications %v", rec.notes)
	}
}

func TestPollerSkipsCallbacksOnFailure(t *testing.T) {
	logger, hook := test.NewNullLogger()
	src := &fakeSource{taskErr: errors.New("backend down")}
	rec := newRecorder()
	var projectCalls int
	ticker := newManualTicker()
	p := New(src, Config{
		Role:       domain.RoleScrumMaster,
		OnTasks:    rec.onTasks,
		OnProjects: func([]domain.Project) { projectCalls++ },
	}, WithLogger(logger), WithClock((&clock{now: base}).Now), WithTicker(func(time.Duration) Ticker { return ticker }))
	defer p.Stop()

	failures := func() int {
		n := 0
		for _, e := range hook.AllEntries() {
			if e.Level == logrus.ErrorLevel && e.Message == "Error syncing data" {
				n++
			}
		}
		return n
	}
	waitFailures := func(want int) {
		deadline := time.Now().Add(time.Second)
		for failures() < want {
			if time.Now().After(deadline) {
				t.Fatalf("expected %d logged failures, got %d", want, failures())
			}
			time.Sleep(time.Millisecond)
		}
	}

	p.Start(context.Background())
	waitFailures(1)
	ticker.tick(t)
	waitFailures(2)
	p.Stop()

	if rec.cycles() != 0 || projectCalls != 0 {
		t.Fatalf("callbacks fired on failure: tasks=%d projects=%d", rec.cycles(), projectCalls)
	}
}

func TestPollerStopHaltsCallbacks(t *testing.T) {
	src := &fakeSource{}
	rec := newRecorder()
	ticker := newManualTicker()
	p := newTestPoller(t, src, Config{Role: domain.RoleScrumMaster, OnTasks: rec.onTasks}, ticker, &clock{now: base})

	p.Start(context.Background())
	rec.wait(t)
	p.Stop()

	select {
	case <-ticker.stopped:
	default:
		t.Fatal("ticker not stopped")
	}
	select {
	case ticker.ch <- time.Now():
		t.Fatal("loop still receiving ticks after Stop")
	case <-time.After(20 * time.Millisecond):
	}
	if rec.cycles() != 1 {
		t.Fatalf("expected 1 cycle, got %d", rec.cycles())
	}
	p.Stop()
}

func TestPollerCycleSpan(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	}()

	src := &fakeSource{taskErr: errors.New("boom")}
	p := newTestPoller(t, src, Config{Role: domain.RoleScrumMaster}, newManualTicker(), &clock{now: base})
	if err := p.SyncNow(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name != "taskflow.poller.cycle" || spans[0].Status.Code != codes.Error {
		t.Fatalf("unexpected span %s status %v", spans[0].Name, spans[0].Status.Code)
	}
}
