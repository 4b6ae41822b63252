package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"taskflow/apiclient"
	"taskflow/domain"
)

// ErrProfileUnavailable is returned by Login when the tokens were issued but
// the profile could not be loaded.
var ErrProfileUnavailable = errors.New("Authentication successful but failed to load user profile. Please try again.")

// DefaultRefreshInterval is how often the profile is refetched while logged in.
const DefaultRefreshInterval = 30 * time.Second

// Manager holds the logged in user and keeps it fresh.
type Manager struct {
	client   *apiclient.Client
	logger   *log.Logger
	interval time.Duration

	mu        sync.RWMutex
	user      *domain.User
	listeners []func(*domain.User)

	loopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a Manager. A non-positive interval means
// DefaultRefreshInterval.
func NewManager(client *apiclient.Client, logger *log.Logger, interval time.Duration) *Manager {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Manager{client: client, logger: logger, interval: interval}
}

// OnChange registers fn to be called whenever the user changes. fn receives
// nil after logout or session expiry.
func (m *Manager) OnChange(fn func(*domain.User)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// User returns the current user.
func (m *Manager) User() (domain.User, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return domain.User{}, false
	}
	return *m.user, true
}

func (m *Manager) IsAuthenticated() bool {
	_, ok := m.User()
	return ok
}

func (m *Manager) IsEmployee() bool {
	u, ok := m.User()
	return ok && u.IsEmployee()
}

func (m *Manager) IsScrumMaster() bool {
	u, ok := m.User()
	return ok && u.IsScrumMaster()
}

// Restore loads the stored session. The stored user is used immediately and
// replaced by a fresh profile when the backend answers; a failed profile
// fetch keeps the stored copy unless the session itself expired.
func (m *Manager) Restore(ctx context.Context) (domain.User, error) {
	sess, err := m.client.Session(ctx)
	if err != nil {
		return domain.User{}, err
	}
	if !sess.LoggedIn() {
		m.setUser(nil)
		return domain.User{}, apiclient.ErrNotLoggedIn
	}
	if sess.User != nil {
		m.setUser(sess.User)
	}
	if err := m.RefreshProfile(ctx); err != nil {
		if errors.Is(err, apiclient.ErrSessionExpired) {
			m.setUser(nil)
			return domain.User{}, err
		}
		m.logger.WithError(err).Warn("refresh profile on restore, using stored user")
		if sess.User == nil {
			return domain.User{}, err
		}
	}
	u, _ := m.User()
	return u, nil
}

// Login authenticates, then loads the full profile.
func (m *Manager) Login(ctx context.Context, username, password string) (domain.User, error) {
	if username == "" || password == "" {
		return domain.User{}, errors.New("Username and password are required")
	}
	sess, err := m.client.Auth.Login(ctx, domain.Credentials{Username: username, Password: password})
	if err != nil {
		_ = m.client.ClearSession(ctx)
		return domain.User{}, err
	}
	if sess.Access == "" || sess.Refresh == "" {
		_ = m.client.ClearSession(ctx)
		return domain.User{}, errors.New("invalid response from server: missing authentication tokens")
	}
	if err := m.RefreshProfile(ctx); err != nil {
		m.logger.WithError(err).Error("load profile after login")
		_ = m.client.ClearSession(ctx)
		m.setUser(nil)
		return domain.User{}, ErrProfileUnavailable
	}
	u, _ := m.User()
	m.logger.WithFields(log.Fields{"user": u.Username, "role": u.Role}).Info("logged in")
	return u, nil
}

// Register creates an account and logs into it. The role defaults to
// employee.
func (m *Manager) Register(ctx context.Context, form domain.Registration) (domain.User, error) {
	if form.Role == "" {
		form.Role = domain.RoleEmployee
	}
	if form.Confirm == "" {
		form.Confirm = form.Password
	}
	if _, err := m.client.Auth.Register(ctx, form); err != nil {
		return domain.User{}, err
	}
	if err := m.RefreshProfile(ctx); err != nil {
		m.logger.WithError(err).Warn("load profile after registration")
	}
	u, ok := m.User()
	if !ok {
		return domain.User{}, ErrProfileUnavailable
	}
	return u, nil
}

// Logout stops the refresh loop and forgets the session.
func (m *Manager) Logout(ctx context.Context) error {
	m.Stop()
	err := m.client.Auth.Logout(ctx)
	m.setUser(nil)
	return err
}

// RefreshProfile fetches the current user and stores it with the session.
func (m *Manager) RefreshProfile(ctx context.Context) error {
	u, err := m.client.Auth.Profile(ctx)
	if err != nil {
		if errors.Is(err, apiclient.ErrSessionExpired) {
			m.setUser(nil)
		}
		return err
	}
	sess, err := m.client.Session(ctx)
	if err != nil {
		return err
	}
	if !sess.LoggedIn() {
		return apiclient.ErrNotLoggedIn
	}
	sess.User = &u
	if err := m.client.SetSession(ctx, sess); err != nil {
		return fmt.Errorf("persist profile: %w", err)
	}
	m.setUser(&u)
	return nil
}

// UpdateProfile saves profile fields and returns the updated user.
func (m *Manager) UpdateProfile(ctx context.Context, upd domain.ProfileUpdate) (domain.User, error) {
	if _, err := m.client.Auth.UpdateProfile(ctx, upd); err != nil {
		return domain.User{}, err
	}
	if err := m.RefreshProfile(ctx); err != nil {
		return domain.User{}, err
	}
	u, _ := m.User()
	return u, nil
}

func (m *Manager) ChangePassword(ctx context.Context, current, next string) error {
	return m.client.Auth.ChangePassword(ctx, domain.PasswordChange{
		CurrentPassword: current,
		NewPassword:     next,
		ConfirmPassword: next,
	})
}

// Start refreshes the profile every interval until Stop or ctx is done.
// Failures are logged and the loop keeps going; an expired session ends it.
func (m *Manager) Start(ctx context.Context) {
	m.loopMu.Lock()
	defer m.loopMu.Unlock()
	if m.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := m.RefreshProfile(ctx)
				switch {
				case err == nil:
				case errors.Is(err, apiclient.ErrSessionExpired), errors.Is(err, apiclient.ErrNotLoggedIn):
					m.logger.WithError(err).Warn("stopping profile refresh")
					return
				case ctx.Err() != nil:
					return
				default:
					m.logger.WithError(err).Warn("refresh profile")
				}
			}
		}
	}()
}

// Stop ends the refresh loop and waits for it to exit.
func (m *Manager) Stop() {
	m.loopMu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.loopMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (m *Manager) setUser(u *domain.User) {
	m.mu.Lock()
	if u != nil {
		c := *u
		u = &c
	}
	m.user = u
	listeners := append([]func(*domain.User){}, m.listeners...)
	m.mu.Unlock()
	for _, fn := range listeners {
		fn(u)
	}
}
