package notify

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	log "github.com/sirupsen/logrus"

	"taskflow/domain"
)

var ErrUnknownNotification = errors.New("notification not found")

// Backend is the server side inbox.
type Backend interface {
	Notifications(ctx context.Context) ([]domain.Notification, error)
	MarkNotificationRead(ctx context.Context, id int) error
	MarkAllRead(ctx context.Context) error
}

// Publisher fans locally raised notifications out to other processes.
type Publisher interface {
	Publish(ctx context.Context, n domain.Notification) error
}

// DefaultMaxLocal bounds how many locally raised notifications are kept.
const DefaultMaxLocal = 100

type Option func(*Center)

// WithMaxLocal overrides DefaultMaxLocal. Non-positive values are ignored.
func WithMaxLocal(n int) Option {
	return func(c *Center) {
		if n > 0 {
			c.maxLocal = n
		}
	}
}

func WithPublisher(p Publisher) Option { return func(c *Center) { c.publisher = p } }

func WithLogger(l *log.Logger) Option {
	return func(c *Center) {
		if l != nil {
			c.logger = l
		}
	}
}

// Center merges the server inbox with notifications raised by the sync
// loop and keeps read state for both.
type Center struct {
	backend   Backend
	publisher Publisher
	logger    *log.Logger
	maxLocal  int

	mu        sync.Mutex
	server    []domain.Notification
	local     []domain.Notification
	listeners []func([]domain.Notification)
}

// New creates a center. backend may be nil when only local notifications
// are wanted.
func New(backend Backend, opts ...Option) *Center {
	c := &Center{backend: backend, logger: log.StandardLogger(), maxLocal: DefaultMaxLocal}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnChange registers fn to receive the merged list after every change.
func (c *Center) OnChange(fn func([]domain.Notification)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Fetch replaces the server part of the list.
func (c *Center) Fetch(ctx context.Context) error {
	if c.backend == nil {
		return nil
	}
	items, err := c.backend.Notifications(ctx)
	if err != nil {
		return fmt.Errorf("fetch notifications: %w", err)
	}
	c.mu.Lock()
	c.server = items
	c.mu.Unlock()
	c.changed()
	return nil
}

// Add records a locally raised notification and publishes it when a
// publisher is configured. Publishing failures are logged only.
func (c *Center) Add(ctx context.Context, n domain.Notification) {
	c.Receive(n)
	if c.publisher == nil {
		return
	}
	if err := c.publisher.Publish(ctx, n); err != nil {
		c.logger.WithError(err).WithField("notification_id", n.ID).Warn("publish notification")
	}
}

// Receive records a notification without publishing it. Duplicate ids are
// ignored. Past the local limit the oldest read entries go first, then the
// oldest unread ones.
func (c *Center) Receive(n domain.Notification) {
	c.mu.Lock()
	for _, existing := range c.local {
		if existing.ID == n.ID {
			c.mu.Unlock()
			return
		}
	}
	c.local = append(c.local, n)
	c.trimLocked()
	c.mu.Unlock()
	c.changed()
}

func (c *Center) trimLocked() {
	excess := len(c.local) - c.maxLocal
	if excess <= 0 {
		return
	}
	kept := c.local[:0]
	for _, n := range c.local {
		if excess > 0 && n.IsRead {
			excess--
			continue
		}
		kept = append(kept, n)
	}
	if excess > 0 {
		kept = kept[excess:]
	}
	c.local = slices.Clone(kept)
}

// List returns every notification, newest first.
func (c *Center) List() []domain.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mergedLocked()
}

// UnreadCount is the number of unread notifications.
func (c *Center) UnreadCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, list := range [][]domain.Notification{c.server, c.local} {
		for _, item := range list {
			if !item.IsRead {
				n++
			}
		}
	}
	return n
}

// MarkRead flags one notification. Server notifications are confirmed with
// the backend first and stay unread when that fails.
func (c *Center) MarkRead(ctx context.Context, id domain.NotificationID) error {
	c.mu.Lock()
	_, inServer := indexOf(c.server, id)
	_, inLocal := indexOf(c.local, id)
	c.mu.Unlock()
	if !inServer && !inLocal {
		return ErrUnknownNotification
	}

	if inServer && c.backend != nil {
		serverID, ok := id.ServerID()
		if ok {
			if err := c.backend.MarkNotificationRead(ctx, serverID); err != nil {
				return fmt.Errorf("mark notification %s read: %w", id, err)
			}
		}
	}

	c.mu.Lock()
	if i, ok := indexOf(c.server, id); ok {
		c.server[i].IsRead = true
	}
	if i, ok := indexOf(c.local, id); ok {
		c.local[i].IsRead = true
	}
	c.mu.Unlock()
	c.changed()
	return nil
}

// MarkAllRead flags everything once the backend accepted it.
func (c *Center) MarkAllRead(ctx context.Context) error {
	if c.backend != nil {
		if err := c.backend.MarkAllRead(ctx); err != nil {
			return fmt.Errorf("mark all notifications read: %w", err)
		}
	}
	c.mu.Lock()
	for i := range c.server {
		c.server[i].IsRead = true
	}
	for i := range c.local {
		c.local[i].IsRead = true
	}
	c.mu.Unlock()
	c.changed()
	return nil
}

func (c *Center) mergedLocked() []domain.Notification {
	out := make([]domain.Notification, 0, len(c.server)+len(c.local))
	out = append(out, c.server...)
	out = append(out, c.local...)
	slices.SortStableFunc(out, func(a, b domain.Notification) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out
}

func (c *Center) changed() {
	c.mu.Lock()
	if len(c.listeners) == 0 {
		c.mu.Unlock()
		return
	}
	items := c.mergedLocked()
	listeners := slices.Clone(c.listeners)
	c.mu.Unlock()
	for _, fn := range listeners {
		fn(items)
	}
}

func indexOf(list []domain.Notification, id domain.NotificationID) (int, bool) {
	for i, n := range list {
		if n.ID == id {
			return i, true
		}
	}
	return -1, false
}
