package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus/hooks/test"

	"taskflow/apiclient"
	"taskflow/domain"
	"taskflow/session"
)

type fakeBackend struct {
	profileCalls atomic.Int32
	profileFail  atomic.Bool
	role         string
	lastRegister domain.Registration
}

func (f *fakeBackend) register(e *echo.Echo) {
	e.POST("/api/users/login/", func(c echo.Context) error {
		var creds domain.Credentials
		if err := c.Bind(&creds); err != nil {
			return err
		}
		if creds.Password != "secret" {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
		}
		return c.JSON(http.StatusOK, map[string]any{
			"access": "access", "refresh": "refresh",
			"user": map[string]any{"id": 5, "username": creds.Username},
		})
	})
	e.POST("/api/users/register/", func(c echo.Context) error {
		if err := c.Bind(&f.lastRegister); err != nil {
			return err
		}
		return c.JSON(http.StatusCreated, map[string]any{
			"access": "access", "refresh": "refresh",
			"user": map[string]any{"id": 6, "username": f.lastRegister.Username, "role": f.lastRegister.Role},
		})
	})
	e.GET("/api/users/profile/", func(c echo.Context) error {
		f.profileCalls.Add(1)
		if f.profileFail.Load() {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "boom"})
		}
		return c.JSON(http.StatusOK, map[string]any{
			"id": 5, "username": "dev", "first_name": "Dana", "role": f.role,
		})
	})
}

func newManager(t *testing.T, store session.Store, interval time.Duration) (*Manager, *fakeBackend) {
	t.Helper()
	backend := &fakeBackend{role: "employee"}
	e := echo.New()
	backend.register(e)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	logger, _ := test.NewNullLogger()
	client, err := apiclient.New(apiclient.Options{
		BaseURL:    srv.URL + "/api",
		MaxRetries: -1,
		Logger:     logger,
	}, store)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return NewManager(client, logger, interval), backend
}

func TestLoginLoadsProfile(t *testing.T) {
	store := session.NewMemoryStore()
	m, _ := newManager(t, store, 0)
	var notified *domain.User
	m.OnChange(func(u *domain.User) { notified = u })

	u, err := m.Login(context.Background(), "dev", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if u.FirstName != "Dana" || !u.IsEmployee() {
		t.Fatalf("expected profile user, got %+v", u)
	}
	if !m.IsAuthenticated() || !m.IsEmployee() || m.IsScrumMaster() {
		t.Fatalf("unexpected role helpers")
	}
	if notified == nil || notified.ID != 5 {
		t.Fatalf("expected change notification, got %+v", notified)
	}
	saved, err := store.Load(context.Background())
	if err != nil || saved.User == nil || saved.User.FirstName != "Dana" {
		t.Fatalf("expected profile persisted with session: %+v %v", saved, err)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	store := session.NewMemoryStore()
	m, _ := newManager(t, store, 0)

	_, err := m.Login(context.Background(), "dev", "wrong")
	if apiclient.UserMessage(err) != "Invalid credentials" {
		t.Fatalf("unexpected error %v", err)
	}
	if m.IsAuthenticated() {
		t.Fatalf("must not be authenticated")
	}
	if _, err := m.Login(context.Background(), "", ""); err == nil {
		t.Fatalf("expected error for empty credentials")
	}
}

func TestLoginProfileFailureClearsSession(t *testing.T) {
	store := session.NewMemoryStore()
	m, backend := newManager(t, store, 0)
	backend.profileFail.Store(true)

	if _, err := m.Login(context.Background(), "dev", "secret"); !errors.Is(err, ErrProfileUnavailable) {
		t.Fatalf("expected ErrProfileUnavailable, got %v", err)
	}
	if _, err := store.Load(context.Background()); !errors.Is(err, session.ErrNoSession) {
		t.Fatalf("expected session cleared, got %v", err)
	}
}

func TestRestoreKeepsStoredUserWhenProfileFails(t *testing.T) {
	store := session.NewMemoryStore()
	_ = store.Save(context.Background(), session.Session{
		Access: "access", Refresh: "refresh",
		User: &domain.User{ID: 5, Username: "stored", Role: domain.RoleScrumMaster},
	})
	m, backend := newManager(t, store, 0)
	backend.profileFail.Store(true)

	u, err := m.Restore(context.Background())
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if u.Username != "stored" || !m.IsScrumMaster() {
		t.Fatalf("expected stored user, got %+v", u)
	}
}

func TestRestoreWithoutSession(t *testing.T) {
	m, _ := newManager(t, session.NewMemoryStore(), 0)
	if _, err := m.Restore(context.Background()); !errors.Is(err, apiclient.ErrNotLoggedIn) {
		t.Fatalf("expected ErrNotLoggedIn, got %v", err)
	}
}

func TestRegisterDefaultsRoleAndConfirmation(t *testing.T) {
	m, backend := newManager(t, session.NewMemoryStore(), 0)

	u, err := m.Register(context.Background(), domain.Registration{Username: "new", Email: "n@example.com", Password: "longpassword"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if backend.lastRegister.Role != domain.RoleEmployee || backend.lastRegister.Confirm != "longpassword" {
		t.Fatalf("unexpected registration payload %+v", backend.lastRegister)
	}
	if u.ID == 0 {
		t.Fatalf("expected a user after registration")
	}
}

func TestStartRefreshesProfileUntilStop(t *testing.T) {
	store := session.NewMemoryStore()
	m, backend := newManager(t, store, 10*time.Millisecond)
	if _, err := m.Login(context.Background(), "dev", "secret"); err != nil {
		t.Fatalf("login: %v", err)
	}
	base := backend.profileCalls.Load()

	m.Start(context.Background())
	deadline := time.Now().Add(2 * time.Second)
	for backend.profileCalls.Load() < base+2 {
		if time.Now().After(deadline) {
			t.Fatalf("profile not refreshed periodically")
		}
		time.Sleep(5 * time.Millisecond)
	}
	m.Stop()
	after := backend.profileCalls.Load()
	time.Sleep(50 * time.Millisecond)
	if backend.profileCalls.Load() != after {
		t.Fatalf("profile refreshed after Stop")
	}
}

func TestLogoutClearsUser(t *testing.T) {
	store := session.NewMemoryStore()
	m, _ := newManager(t, store, time.Hour)
	if _, err := m.Login(context.Background(), "dev", "secret"); err != nil {
		t.Fatalf("login: %v", err)
	}
	m.Start(context.Background())
	if err := m.Logout(context.Background()); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if m.IsAuthenticated() {
		t.Fatalf("expected logged out")
	}
	if _, err := store.Load(context.Background()); !errors.Is(err, session.ErrNoSession) {
		t.Fatalf("expected session cleared, got %v", err)
	}
}
