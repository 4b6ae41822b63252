package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"

	"taskflow/board"
	"taskflow/domain"
)

// Board is the live Kanban state the server renders.
type Board interface {
	Viewer() domain.User
	Snapshot() board.State
	Subscribe() (<-chan board.State, func())
	Move(ctx context.Context, taskID int, dest domain.Status, index int) error
	ChangeStatus(ctx context.Context, taskID int, dest domain.Status) error
}

// Notifications is the inbox shown next to the board.
type Notifications interface {
	List() []domain.Notification
	UnreadCount() int
	MarkRead(ctx context.Context, id domain.NotificationID) error
	MarkAllRead(ctx context.Context) error
	OnChange(fn func([]domain.Notification))
}

type Options struct {
	// Token, when set, is required as a bearer token on every route but
	// /healthz.
	Token  string
	Logger *log.Logger
	Now    func() time.Time
}

// Server exposes the board, dashboard numbers and notifications over HTTP
// for local tooling and browsers.
type Server struct {
	board  Board
	notes  Notifications
	token  string
	logger *log.Logger
	now    func() time.Time
	broker *updateBroker
}

func New(b Board, notes Notifications, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Server{
		board:  b,
		notes:  notes,
		token:  opts.Token,
		logger: opts.Logger,
		now:    opts.Now,
		broker: newUpdateBroker(),
	}
}

// Register wires up all routes on the provided Echo instance.
func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", healthz)

	g := e.Group("", bearerAuth(s.token))
	g.GET("/api/board", s.getBoard)
	g.GET("/api/stats", s.getStats)
	g.GET("/api/notifications", s.getNotifications)
	g.POST("/api/notifications/:id/read", s.postNotificationRead)
	g.POST("/api/notifications/read", s.postAllNotificationsRead)
	g.POST("/api/tasks/:id/move", s.postMove)
	g.GET("/stream", s.streamBoard)
}

// Echo builds a configured Echo instance with every route registered.
func (s *Server) Echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = sonicSerializer{}
	e.Use(middleware.Recover())
	e.Use(requestLogger(s.logger))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	s.Register(e)
	return e
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	stop := s.Watch(ctx)
	defer stop()

	e := s.Echo()
	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("view server listening")
		errCh <- e.Start(addr)
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// Watch forwards board and notification changes to stream subscribers until
// ctx is done or the returned func is called.
func (s *Server) Watch(ctx context.Context) func() {
	ctx, cancel := context.WithCancel(ctx)
	changes, unsubscribe := s.board.Subscribe()
	if s.notes != nil {
		s.notes.OnChange(func([]domain.Notification) {
			if ctx.Err() == nil {
				s.broker.notify()
			}
		})
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-changes:
				if !ok {
					return
				}
				s.broker.notify()
			}
		}
	}()
	return func() {
		cancel()
		unsubscribe()
		<-done
	}
}
