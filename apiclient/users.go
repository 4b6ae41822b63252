package apiclient

import (
	"context"
	"net/http"
	"net/url"

	"taskflow/domain"
)

type UserService struct{ c *Client }

func (s *UserService) Search(ctx context.Context, q string) ([]domain.User, error) {
	return listAll[domain.User](ctx, s.c, "/users/search/", url.Values{"q": {q}})
}

// Notifications returns the server side inbox of the current user.
func (s *UserService) Notifications(ctx context.Context) ([]domain.Notification, error) {
	return listAll[domain.Notification](ctx, s.c, "/users/notifications/", nil)
}

func (s *UserService) MarkNotificationRead(ctx context.Context, id int) error {
	req := request{method: http.MethodPost, path: "/users/mark_notification_read/", body: map[string]int{"notification_id": id}}
	return s.c.do(ctx, req, nil)
}

func (s *UserService) MarkAllRead(ctx context.Context) error {
	return s.c.do(ctx, request{method: http.MethodPost, path: "/users/mark_all_read/"}, nil)
}

// Activity returns the user's recent activity log as served.
func (s *UserService) Activity(ctx context.Context) ([]map[string]any, error) {
	return listAll[map[string]any](ctx, s.c, "/users/activity/", nil)
}
