package cli

import (
	"context"
	"sync"
	"time"

	"taskflow/board"
	"taskflow/domain"
	"taskflow/notify"
	"taskflow/poller"
)

// live wires the long running pieces used by watch and serve: the board
// fed by the poller, the notification center and the profile refresh.
type live struct {
	user   domain.User
	board  *board.Board
	poller *poller.Poller
	center *notify.Center

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// newLive builds the live session without starting it, so callers can
// subscribe to the board before the first sync lands.
func (a *app) newLive(ctx context.Context, alert board.AlertFunc, onNotification func(domain.Notification)) (*live, error) {
	u, err := a.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	l := &live{user: u, ctx: ctx, cancel: cancel}

	centerOpts := []notify.Option{notify.WithLogger(a.logger)}
	var pub *notify.RedisPublisher
	if a.redis != nil && a.cfg.Notify.Channel != "" {
		pub = notify.NewRedisPublisher(a.redis, a.cfg.Notify.Channel)
		centerOpts = append(centerOpts, notify.WithPublisher(pub))
	}
	l.center = notify.New(a.client.Users, centerOpts...)
	if pub != nil {
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			pub.Subscribe(ctx, a.logger, l.center.Receive)
		}()
	}

	l.poller = poller.New(poller.ClientSource(a.client), poller.Config{
		UserID:   u.ID,
		Role:     u.Role,
		Interval: a.cfg.Sync.Interval,
		OnTasks: func(tasks []domain.Task) {
			l.board.Replace(tasks)
		},
		OnNotification: func(n domain.Notification) {
			l.center.Add(ctx, n)
			if onNotification != nil {
				onNotification(n)
			}
		},
	}, poller.WithLogger(a.logger))

	boardOpts := []board.Option{
		board.WithLogger(a.logger),
		board.WithRefresher(l.poller),
		board.WithRefreshDelay(a.cfg.Board.RefreshDelay),
	}
	if alert != nil {
		boardOpts = append(boardOpts, board.WithAlerter(alert))
	}
	l.board = board.New(u, a.client.Tasks, boardOpts...)
	return l, nil
}

// startLive starts polling, the profile refresh and the notification sync.
func (a *app) startLive(l *live) {
	l.poller.Start(l.ctx)
	a.auth.Start(l.ctx)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.syncNotifications(l.ctx, a, a.cfg.Sync.Interval)
	}()
}

func (l *live) syncNotifications(ctx context.Context, a *app, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := l.center.Fetch(ctx); err != nil && ctx.Err() == nil {
			a.logger.WithError(err).Warn("Error fetching notifications")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// stopLive closes the board first so a pending post-move refresh cannot
// feed it after the poller stopped.
func (a *app) stopLive(l *live) {
	l.board.Close()
	l.poller.Stop()
	a.auth.Stop()
	l.cancel()
	l.wg.Wait()
}
