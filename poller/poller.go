package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"taskflow/apiclient"
	"taskflow/domain"
)

const (
	DefaultInterval = 30 * time.Second

	cycleSpanName = "taskflow.poller.cycle"
	tracerName    = "taskflow/poller"
)

// Source is what the poller reads every cycle.
type Source interface {
	ListTasks(ctx context.Context) ([]domain.Task, error)
	ListProjects(ctx context.Context) ([]domain.Project, error)
}

type clientSource struct {
	c *apiclient.Client
}

// ClientSource reads every task and project visible to the logged in user.
func ClientSource(c *apiclient.Client) Source { return clientSource{c: c} }

func (s clientSource) ListTasks(ctx context.Context) ([]domain.Task, error) {
	return s.c.Tasks.List(ctx, apiclient.TaskFilter{})
}

func (s clientSource) ListProjects(ctx context.Context) ([]domain.Project, error) {
	return s.c.Projects.List(ctx)
}

// Config describes who is polling and where results go. Callbacks are
// optional and run on the polling goroutine.
type Config struct {
	UserID   int
	Role     domain.Role
	Interval time.Duration

	OnTasks        func([]domain.Task)
	OnProjects     func([]domain.Project)
	OnNotification func(domain.Notification)
}

// Ticker is the part of time.Ticker the loop uses.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type stdTicker struct{ *time.Ticker }

func (t stdTicker) C() <-chan time.Time { return t.Ticker.C }

type Option func(*Poller)

func WithLogger(l *log.Logger) Option {
	return func(p *Poller) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithClock replaces time.Now for checkpoint bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(p *Poller) { p.now = now }
}

// WithTicker replaces the interval ticker.
func WithTicker(newTicker func(time.Duration) Ticker) Option {
	return func(p *Poller) { p.newTicker = newTicker }
}

// Poller keeps the board and dashboards in sync by refetching on a fixed
// interval.
type Poller struct {
	src       Source
	cfg       Config
	logger    *log.Logger
	now       func() time.Time
	newTicker func(time.Duration) Ticker

	cycleMu    sync.Mutex
	checkpoint time.Time

	loopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(src Source, cfg Config, opts ...Option) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	p := &Poller{
		src:    src,
		cfg:    cfg,
		logger: log.StandardLogger(),
		now:    time.Now,
		newTicker: func(d time.Duration) Ticker {
			return stdTicker{time.NewTicker(d)}
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	p.checkpoint = p.now()
	return p
}

// Start runs one cycle right away and then one per interval until Stop or
// ctx is done. Calling Start on a running poller does nothing.
func (p *Poller) Start(ctx context.Context) {
	p.loopMu.Lock()
	defer p.loopMu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done

	ticker := p.newTicker(p.cfg.Interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		p.runCycle(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C():
				p.runCycle(ctx)
			}
		}
	}()
}

// Stop cancels the schedule and waits for the loop to exit. No callback
// fires after Stop returns.
func (p *Poller) Stop() {
	p.loopMu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.loopMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// SyncNow forces a cycle outside the schedule.
func (p *Poller) SyncNow(ctx context.Context) error {
	return p.cycle(ctx)
}

// Refresh lets the board reload through the poller after a move.
func (p *Poller) Refresh(ctx context.Context) error {
	return p.SyncNow(ctx)
}

func (p *Poller) runCycle(ctx context.Context) {
	err := p.cycle(ctx)
	switch {
	case err == nil:
	case ctx.Err() != nil:
	case errors.Is(err, apiclient.ErrSessionExpired):
		p.logger.WithError(err).Warn("sync skipped: session expired")
	default:
		p.logger.WithError(err).Error("Error syncing data")
	}
}

func (p *Poller) cycle(ctx context.Context) (err error) {
	p.cycleMu.Lock()
	defer p.cycleMu.Unlock()

	ctx, span := otel.Tracer(tracerName).Start(ctx, cycleSpanName)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}()

	var (
		tasks    []domain.Task
		projects []domain.Project
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tasks, err = p.src.ListTasks(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		projects, err = p.src.ListProjects(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	visible := p.visible(tasks)
	span.SetAttributes(
		attribute.Int("taskflow.poller.tasks", len(visible)),
		attribute.Int("taskflow.poller.projects", len(projects)),
	)
	if p.cfg.OnTasks != nil {
		p.cfg.OnTasks(visible)
	}
	if p.cfg.OnProjects != nil {
		p.cfg.OnProjects(projects)
	}
	p.checkNewAssignments(visible)
	return nil
}

func (p *Poller) visible(tasks []domain.Task) []domain.Task {
	if p.cfg.Role != domain.RoleEmployee {
		return tasks
	}
	out := make([]domain.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.AssignedTo(p.cfg.UserID) {
			out = append(out, t)
		}
	}
	return out
}

// checkNewAssignments reports tasks created since the last checkpoint. The
// checkpoint only moves once a full interval has passed.
func (p *Poller) checkNewAssignments(tasks []domain.Task) {
	now := p.now()
	if now.Sub(p.checkpoint) <= p.cfg.Interval {
		return
	}
	if p.cfg.Role == domain.RoleEmployee && p.cfg.OnNotification != nil {
		for _, t := range tasks {
			if t.CreatedAt.After(p.checkpoint) {
				p.cfg.OnNotification(domain.NewTaskAssigned(t, now))
			}
		}
	}
	p.checkpoint = now
}
