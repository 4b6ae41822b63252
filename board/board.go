package board

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"taskflow/domain"
)

var (
	ErrTaskNotFound = errors.New("task not found on board")
	// ErrNotAssignee rejects an employee moving a task that is not theirs.
	ErrNotAssignee = errors.New("You can only move tasks assigned to you")
	// ErrMoveRejected wraps the backend error after a move was rolled back.
	ErrMoveRejected = errors.New("Failed to update task status. Please try again.")
)

const changeStatusDenied = "You can only change status of tasks assigned to you"

// DefaultRefreshDelay is the wait between a confirmed move and the refetch.
const DefaultRefreshDelay = 500 * time.Millisecond

// StatusChanger confirms a move on the backend.
type StatusChanger interface {
	ChangeStatus(ctx context.Context, taskID int, status domain.Status) error
}

// Refresher reloads the board from the backend.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// RefreshFunc adapts a function to Refresher.
type RefreshFunc func(ctx context.Context) error

func (f RefreshFunc) Refresh(ctx context.Context) error { return f(ctx) }

// Alerter shows a message to the user.
type Alerter interface {
	Alert(msg string)
}

// AlertFunc adapts a function to Alerter.
type AlertFunc func(msg string)

func (f AlertFunc) Alert(msg string) { f(msg) }

type Option func(*Board)

func WithRefresher(r Refresher) Option { return func(b *Board) { b.refresher = r } }

func WithAlerter(a Alerter) Option { return func(b *Board) { b.alerter = a } }

// WithRefreshDelay sets the wait before the post-move refresh.
func WithRefreshDelay(d time.Duration) Option {
	return func(b *Board) {
		if d >= 0 {
			b.refreshDelay = d
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(b *Board) {
		if l != nil {
			b.logger = l
		}
	}
}

// Board is the four column Kanban view of a task list. Moves are applied
// optimistically and rolled back when the backend rejects them.
type Board struct {
	viewer       domain.User
	changer      StatusChanger
	refresher    Refresher
	alerter      Alerter
	refreshDelay time.Duration
	logger       *log.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	state  State
	subs   map[chan State]struct{}
	timers map[*time.Timer]struct{}
	closed bool
}

// New creates an empty board for viewer. Employees only see tasks assigned
// to them.
func New(viewer domain.User, changer StatusChanger, opts ...Option) *Board {
	if changer == nil {
		panic("board.New: status changer is nil")
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &Board{
		viewer:       viewer,
		changer:      changer,
		refreshDelay: DefaultRefreshDelay,
		logger:       log.StandardLogger(),
		ctx:          ctx,
		cancel:       cancel,
		state:        emptyState(),
		subs:         make(map[chan State]struct{}),
		timers:       make(map[*time.Timer]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Viewer returns the user the board is rendered for.
func (b *Board) Viewer() domain.User { return b.viewer }

// Replace rebuilds every column from tasks, keeping their order.
func (b *Board) Replace(tasks []domain.Task) {
	next := emptyState()
	seen := make(map[int]struct{}, len(tasks))
	for _, t := range tasks {
		if b.viewer.IsEmployee() && !t.AssignedTo(b.viewer.ID) {
			continue
		}
		if _, dup := seen[t.ID]; dup {
			continue
		}
		i := columnIndex(t.Status)
		if i < 0 {
			b.logger.WithFields(log.Fields{"task_id": t.ID, "status": t.Status}).Warn("skipping task with unknown status")
			continue
		}
		seen[t.ID] = struct{}{}
		next.Columns[i].Tasks = append(next.Columns[i].Tasks, t.Clone())
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.state = next
	b.publishLocked()
}

// Snapshot returns a deep copy of the current board.
func (b *Board) Snapshot() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.clone()
}

// Validate checks the partition invariant of the current board.
func (b *Board) Validate() error {
	return b.Snapshot().Validate()
}

// Move drags a task into dest at index. An index outside the column is
// clamped and a negative index appends.
func (b *Board) Move(ctx context.Context, taskID int, dest domain.Status, index int) error {
	return b.move(ctx, taskID, dest, index, ErrNotAssignee.Error())
}

// ChangeStatus is the quick action variant of Move: the task is appended to
// the destination column.
func (b *Board) ChangeStatus(ctx context.Context, taskID int, dest domain.Status) error {
	return b.move(ctx, taskID, dest, -1, changeStatusDenied)
}

func (b *Board) move(ctx context.Context, taskID int, dest domain.Status, index int, deniedMsg string) error {
	if !dest.Valid() {
		return fmt.Errorf("move task %d: invalid status %q", taskID, dest)
	}
	logger := b.logger.WithFields(log.Fields{"task_id": taskID, "to": dest})

	b.mu.Lock()
	task, src, pos, ok := b.state.Find(taskID)
	if !ok {
		b.mu.Unlock()
		return ErrTaskNotFound
	}
	if b.viewer.IsEmployee() && !task.AssignedTo(b.viewer.ID) {
		b.mu.Unlock()
		logger.Info("move rejected: task not assigned to viewer")
		b.alert(deniedMsg)
		return ErrNotAssignee
	}
	if task.Status == dest {
		b.mu.Unlock()
		return nil
	}

	before := b.state.clone()
	srcCol := &b.state.Columns[columnIndex(src)]
	srcCol.Tasks = append(srcCol.Tasks[:pos:pos], srcCol.Tasks[pos+1:]...)
	task.Status = dest
	dstCol := &b.state.Columns[columnIndex(dest)]
	dstCol.Tasks = insertAt(dstCol.Tasks, task, index)
	b.publishLocked()
	b.mu.Unlock()

	if err := b.changer.ChangeStatus(ctx, taskID, dest); err != nil {
		b.mu.Lock()
		b.state = before
		b.publishLocked()
		b.mu.Unlock()
		logger.WithError(err).Warn("status change failed, board rolled back")
		b.alert(ErrMoveRejected.Error())
		return fmt.Errorf("%w: %w", ErrMoveRejected, err)
	}
	logger.WithField("from", src).Debug("task moved")
	b.scheduleRefresh()
	return nil
}

// Subscribe returns a channel receiving the board after every change. Only
// the latest state is kept for slow readers. The returned func unsubscribes.
func (b *Board) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			if _, ok := b.subs[ch]; ok {
				delete(b.subs, ch)
				close(ch)
			}
			b.mu.Unlock()
		})
	}
}

// Close stops pending refreshes and closes subscriber channels.
func (b *Board) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.cancel()
	for t := range b.timers {
		t.Stop()
	}
	b.timers = nil
	for ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}

func (b *Board) publishLocked() {
	if len(b.subs) == 0 {
		return
	}
	snap := b.state.clone()
	for ch := range b.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func (b *Board) scheduleRefresh() {
	if b.refresher == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(b.refreshDelay, func() {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return
		}
		delete(b.timers, t)
		b.mu.Unlock()
		if err := b.refresher.Refresh(b.ctx); err != nil && b.ctx.Err() == nil {
			b.logger.WithError(err).Warn("refresh after move")
		}
	})
	b.timers[t] = struct{}{}
}

func (b *Board) alert(msg string) {
	if b.alerter != nil {
		b.alerter.Alert(msg)
	}
}

func insertAt(tasks []domain.Task, t domain.Task, index int) []domain.Task {
	if index < 0 || index > len(tasks) {
		index = len(tasks)
	}
	tasks = append(tasks, domain.Task{})
	copy(tasks[index+1:], tasks[index:])
	tasks[index] = t
	return tasks
}
