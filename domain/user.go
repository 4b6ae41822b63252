package domain

import (
	"bytes"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

// User is a TaskFlow account as returned by the profile and task endpoints.
type User struct {
	ID              int       `json:"id"`
	Username        string    `json:"username"`
	Email           string    `json:"email,omitempty"`
	FirstName       string    `json:"first_name,omitempty"`
	LastName        string    `json:"last_name,omitempty"`
	Role            Role      `json:"role,omitempty"`
	Bio             string    `json:"bio,omitempty"`
	JobTitle        string    `json:"job_title,omitempty"`
	Department      string    `json:"department,omitempty"`
	Phone           string    `json:"phone,omitempty"`
	ThemePreference string    `json:"theme_preference,omitempty"`
	DateJoined      time.Time `json:"date_joined,omitempty"`
	LastActive      time.Time `json:"last_active,omitempty"`
}

// IsEmployee reports whether the user only acts on tasks assigned to them.
func (u User) IsEmployee() bool { return u.Role == RoleEmployee }

// IsScrumMaster reports whether the user manages projects and assignments.
func (u User) IsScrumMaster() bool { return u.Role == RoleScrumMaster }

// DisplayName prefers the full name and falls back to the username.
func (u User) DisplayName() string {
	full := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if full != "" {
		return full
	}
	return u.Username
}

// Initials of the first and last name, upper cased.
func (u User) Initials() string {
	var b strings.Builder
	if u.FirstName != "" {
		b.WriteString(strings.ToUpper(u.FirstName[:1]))
	}
	if u.LastName != "" {
		b.WriteString(strings.ToUpper(u.LastName[:1]))
	}
	if b.Len() == 0 && u.Username != "" {
		b.WriteString(strings.ToUpper(u.Username[:1]))
	}
	return b.String()
}

// UserRef is a reference to a user that the backend serializes either as a
// nested object, a bare id or a username string.
type UserRef struct {
	ID       int    `json:"id,omitempty"`
	Username string `json:"username,omitempty"`
}

func (r UserRef) String() string {
	if r.Username != "" {
		return r.Username
	}
	if r.ID != 0 {
		return strconv.Itoa(r.ID)
	}
	return ""
}

func (r *UserRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*r = UserRef{}
		return nil
	case len(b) > 0 && b[0] == '"':
		s, err := strconv.Unquote(string(b))
		if err != nil {
			return err
		}
		*r = UserRef{Username: s}
		return nil
	case len(b) > 0 && b[0] == '{':
		var u struct {
			ID       int    `json:"id"`
			Username string `json:"username"`
		}
		if err := sonic.Unmarshal(b, &u); err != nil {
			return err
		}
		*r = UserRef{ID: u.ID, Username: u.Username}
		return nil
	}
	id, err := strconv.Atoi(string(b))
	if err != nil {
		return err
	}
	*r = UserRef{ID: id}
	return nil
}
