package session

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"taskflow/domain"
)

// ErrNoSession is returned by Load when nothing has been saved.
var ErrNoSession = errors.New("no saved session")

// Session is the persisted client state: the token pair and the user it was
// issued to.
type Session struct {
	Access  string       `json:"access"`
	Refresh string       `json:"refresh"`
	User    *domain.User `json:"user,omitempty"`
}

// Store persists a session between runs.
type Store interface {
	Load(ctx context.Context) (Session, error)
	Save(ctx context.Context, s Session) error
	Clear(ctx context.Context) error
}

// LoggedIn reports whether an access token is present.
func (s Session) LoggedIn() bool { return s.Access != "" }

// AccessExpiresAt reads the exp claim of the access token. The signature is
// not checked since the client holds no key material.
func (s Session) AccessExpiresAt() (time.Time, bool) {
	claims, ok := unverifiedClaims(s.Access)
	if !ok {
		return time.Time{}, false
	}
	exp, ok := claims["exp"].(float64)
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(int64(exp), 0), true
}

// AccessExpired reports whether the access token expires within skew of now.
// Tokens without a readable exp claim are treated as valid and left to the
// backend to reject.
func (s Session) AccessExpired(now time.Time, skew time.Duration) bool {
	exp, ok := s.AccessExpiresAt()
	if !ok {
		return false
	}
	return !now.Add(skew).Before(exp)
}

// TokenUserID returns the user_id claim issued by the backend.
func (s Session) TokenUserID() (int, bool) {
	claims, ok := unverifiedClaims(s.Access)
	if !ok {
		return 0, false
	}
	switch v := claims["user_id"].(type) {
	case float64:
		return int(v), true
	}
	return 0, false
}

func unverifiedClaims(token string) (jwt.MapClaims, bool) {
	if token == "" {
		return nil, false
	}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	parsed, _, err := parser.ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return nil, false
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	return claims, ok
}
