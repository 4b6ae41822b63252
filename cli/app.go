package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"taskflow/apiclient"
	"taskflow/auth"
	"taskflow/config"
	"taskflow/domain"
	"taskflow/logging"
	"taskflow/session"
)

// app holds everything a command needs. It is built once per invocation in
// the root command's PersistentPreRunE.
type app struct {
	configPath string
	debug      bool
	jsonOut    bool

	in     io.Reader
	out    io.Writer
	errOut io.Writer

	cfg     *config.Config
	logger  *log.Logger
	store   session.Store
	redis   *redis.Client
	client  *apiclient.Client
	auth    *auth.Manager
	closers []io.Closer
}

func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.debug {
		cfg.Log.Level = "debug"
	}
	logger, closer, err := logging.New(cfg.Log, a.errOut)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	a.closers = append(a.closers, closer)

	if cfg.Redis.URL != "" && (cfg.Session.Backend == "redis" || cfg.Notify.Channel != "") {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("invalid redis.url: %w", err)
		}
		a.redis = redis.NewClient(opts)
		a.closers = append(a.closers, a.redis)
	}

	switch cfg.Session.Backend {
	case "redis":
		a.store = session.NewRedisStore(a.redis, cfg.Session.Profile, cfg.Redis.TTL)
	case "memory":
		a.store = session.NewMemoryStore()
	default:
		a.store = session.NewFileStore(cfg.Session.Path)
	}

	a.client, err = apiclient.New(apiclient.Options{
		BaseURL:         cfg.API.BaseURL,
		Timeout:         cfg.API.Timeout,
		MaxRetries:      cfg.API.MaxRetries,
		RetryBaseDelay:  cfg.API.RetryBaseDelay,
		BreakerFailures: cfg.Breaker.Failures,
		BreakerTimeout:  cfg.Breaker.Timeout,
		Logger:          logger,
		OnSessionExpired: func() {
			logger.Warn("session expired, stored tokens cleared")
		},
	}, a.store)
	if err != nil {
		return err
	}
	a.auth = auth.NewManager(a.client, logger, auth.DefaultRefreshInterval)
	return nil
}

// run wraps a command body so resources opened by setup are released on
// every exit path.
func (a *app) run(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		defer a.close()
		return fn(cmd, args)
	}
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && a.logger != nil {
			a.logger.WithError(err).Debug("close")
		}
	}
	a.closers = nil
}

// currentUser restores the stored session or explains how to log in.
func (a *app) currentUser(ctx context.Context) (domain.User, error) {
	u, err := a.auth.Restore(ctx)
	if errors.Is(err, apiclient.ErrNotLoggedIn) {
		return domain.User{}, errors.New("not logged in: run `taskflow login` first")
	}
	return u, err
}

// visibleTasks lists the tasks the user works with. Employees only see
// tasks assigned to them.
func (a *app) visibleTasks(ctx context.Context, u domain.User, f apiclient.TaskFilter) ([]domain.Task, error) {
	tasks, err := a.client.Tasks.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if !u.IsEmployee() {
		return tasks, nil
	}
	out := tasks[:0]
	for _, t := range tasks {
		if t.AssignedTo(u.ID) {
			out = append(out, t)
		}
	}
	return out, nil
}
