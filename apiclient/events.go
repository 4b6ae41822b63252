package apiclient

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"taskflow/domain"
)

type EventService struct{ c *Client }

func daysQuery(days int) url.Values {
	if days <= 0 {
		return nil
	}
	return url.Values{"days": {strconv.Itoa(days)}}
}

// Dashboard returns activity analytics over the last days (30 when zero).
func (s *EventService) Dashboard(ctx context.Context, days int) (domain.DashboardAnalytics, error) {
	return getEnveloped[domain.DashboardAnalytics](ctx, s.c, "/events/dashboard/", daysQuery(days))
}

func (s *EventService) TaskAnalytics(ctx context.Context, days int) (domain.TaskAnalytics, error) {
	return getEnveloped[domain.TaskAnalytics](ctx, s.c, "/events/task-analytics/", daysQuery(days))
}

func (s *EventService) List(ctx context.Context, days int) ([]domain.Event, error) {
	return getEnveloped[[]domain.Event](ctx, s.c, "/events/list/", daysQuery(days))
}

// Record logs an analytics event.
func (s *EventService) Record(ctx context.Context, ev domain.Event) error {
	return s.c.do(ctx, request{method: http.MethodPost, path: "/events/", body: ev}, nil)
}
