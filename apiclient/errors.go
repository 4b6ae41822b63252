package apiclient

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/bytedance/sonic"
)

var (
	// ErrNetwork is returned when the backend could not be reached at all.
	ErrNetwork = errors.New("Network error. Please check your internet connection.")
	// ErrSessionExpired is returned when a 401 could not be recovered by a
	// token refresh. The stored session has been cleared.
	ErrSessionExpired = errors.New("session expired, please log in again")
	// ErrBackendUnavailable is returned while the circuit breaker is open.
	ErrBackendUnavailable = errors.New("backend unavailable, try again shortly")
	// ErrNotLoggedIn is returned by calls that need a user when no session exists.
	ErrNotLoggedIn = errors.New("not logged in")
)

// APIError is a non-2xx answer from the backend.
type APIError struct {
	StatusCode int
	Message    string
	Fields     map[string][]string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.StatusCode, e.Message)
}

// Temporary reports whether the request may succeed if repeated.
func (e *APIError) Temporary() bool {
	return e.StatusCode >= http.StatusInternalServerError
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

// UserMessage renders err the way it should be shown to a person.
func UserMessage(err error) string {
	var apiErr *APIError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNetwork):
		return ErrNetwork.Error()
	case errors.Is(err, ErrSessionExpired), errors.Is(err, ErrNotLoggedIn):
		return "Your session has expired. Run `taskflow login` to sign in again."
	case errors.Is(err, ErrBackendUnavailable):
		return ErrBackendUnavailable.Error()
	case errors.As(err, &apiErr):
		return apiErr.Message
	}
	return err.Error()
}

// parseAPIError builds an APIError from the error bodies the backend sends:
// {"error": ...}, {"detail": ...}, {"message": ...} or a map of field errors.
func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Message: http.StatusText(status)}
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return apiErr
	}
	var raw map[string]any
	if err := sonic.Unmarshal(body, &raw); err != nil {
		return apiErr
	}
	for _, key := range []string{"error", "detail", "message"} {
		if msg := flatten(raw[key]); len(msg) > 0 {
			apiErr.Message = strings.Join(msg, " ")
			return apiErr
		}
	}
	if msg := flatten(raw["non_field_errors"]); len(msg) > 0 {
		apiErr.Message = strings.Join(msg, " ")
		return apiErr
	}

	fields := make(map[string][]string)
	for k, v := range raw {
		if msgs := flatten(v); len(msgs) > 0 {
			fields[k] = msgs
		}
	}
	if len(fields) == 0 {
		return apiErr
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(fields[k], " "))
	}
	apiErr.Fields = fields
	apiErr.Message = strings.Join(parts, "; ")
	return apiErr
}

func flatten(v any) []string {
	switch val := v.(type) {
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	case []any:
		var out []string
		for _, item := range val {
			out = append(out, flatten(item)...)
		}
		return out
	}
	return nil
}
