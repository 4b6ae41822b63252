package apiclient

import (
	"context"
	"net/http"

	"taskflow/domain"
	"taskflow/session"
)

// AuthService covers login, registration and the current user's profile.
type AuthService struct{ c *Client }

type loginResponse struct {
	Access  string      `json:"access"`
	Refresh string      `json:"refresh"`
	User    domain.User `json:"user"`
	Message string      `json:"message"`
}

// Login exchanges credentials for a token pair and stores the new session.
func (s *AuthService) Login(ctx context.Context, creds domain.Credentials) (session.Session, error) {
	var out loginResponse
	req := request{method: http.MethodPost, path: "/users/login/", body: creds, noRefresh: true}
	if err := s.c.do(ctx, req, &out); err != nil {
		return session.Session{}, err
	}
	return s.store(ctx, out)
}

// Register creates an account. The backend logs the new user in directly.
func (s *AuthService) Register(ctx context.Context, form domain.Registration) (session.Session, error) {
	var out loginResponse
	req := request{method: http.MethodPost, path: "/users/register/", body: form, noRefresh: true}
	if err := s.c.do(ctx, req, &out); err != nil {
		return session.Session{}, err
	}
	return s.store(ctx, out)
}

func (s *AuthService) store(ctx context.Context, out loginResponse) (session.Session, error) {
	user := out.User
	sess := session.Session{Access: out.Access, Refresh: out.Refresh, User: &user}
	if err := s.c.SetSession(ctx, sess); err != nil {
		return session.Session{}, err
	}
	return sess, nil
}

// Logout forgets the stored tokens. The backend keeps no server side session.
func (s *AuthService) Logout(ctx context.Context) error {
	return s.c.ClearSession(ctx)
}

// Profile fetches the current user.
func (s *AuthService) Profile(ctx context.Context) (domain.User, error) {
	var u domain.User
	err := s.c.do(ctx, request{method: http.MethodGet, path: "/users/profile/"}, &u)
	return u, err
}

func (s *AuthService) UpdateProfile(ctx context.Context, upd domain.ProfileUpdate) (domain.User, error) {
	var u domain.User
	err := s.c.do(ctx, request{method: http.MethodPut, path: "/users/profile/", body: upd}, &u)
	return u, err
}

func (s *AuthService) ChangePassword(ctx context.Context, change domain.PasswordChange) error {
	return s.c.do(ctx, request{method: http.MethodPost, path: "/users/change_password/", body: change}, nil)
}

// RequestPasswordReset asks the backend to email a reset token.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	req := request{method: http.MethodPost, path: "/users/password_reset/", body: map[string]string{"email": email}, noRefresh: true}
	return s.c.do(ctx, req, nil)
}

func (s *AuthService) ConfirmPasswordReset(ctx context.Context, confirm domain.PasswordResetConfirm) error {
	req := request{method: http.MethodPost, path: "/users/password_reset_confirm/", body: confirm, noRefresh: true}
	return s.c.do(ctx, req, nil)
}
