package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"taskflow/domain"
)

type TaskService struct{ c *Client }

// TaskFilter narrows a task listing. Zero fields are not sent.
type TaskFilter struct {
	ProjectID  int
	Status     domain.Status
	Priority   domain.Priority
	AssigneeID int
	Search     string
	Ordering   string
}

func (f TaskFilter) values() url.Values {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	if f.Priority != "" {
		q.Set("priority", string(f.Priority))
	}
	if f.AssigneeID != 0 {
		q.Set("assignee", strconv.Itoa(f.AssigneeID))
	}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if f.Ordering != "" {
		q.Set("ordering", f.Ordering)
	}
	return q
}

// List returns all tasks visible to the user, scoped to one project when
// the filter names it.
func (s *TaskService) List(ctx context.Context, f TaskFilter) ([]domain.Task, error) {
	path := "/tasks/"
	if f.ProjectID != 0 {
		path = fmt.Sprintf("/projects/%d/tasks/", f.ProjectID)
	}
	return listAll[domain.Task](ctx, s.c, path, f.values())
}

func (s *TaskService) Get(ctx context.Context, id int) (domain.Task, error) {
	var t domain.Task
	err := s.c.do(ctx, request{method: http.MethodGet, path: fmt.Sprintf("/tasks/%d/", id)}, &t)
	return t, err
}

func (s *TaskService) Create(ctx context.Context, projectID int, form domain.TaskForm) (domain.Task, error) {
	var t domain.Task
	err := s.c.do(ctx, request{method: http.MethodPost, path: fmt.Sprintf("/projects/%d/tasks/", projectID), body: form}, &t)
	return t, err
}

// Update patches the fields set in form.
func (s *TaskService) Update(ctx context.Context, id int, form domain.TaskForm) (domain.Task, error) {
	var t domain.Task
	err := s.c.do(ctx, request{method: http.MethodPatch, path: fmt.Sprintf("/tasks/%d/", id), body: form}, &t)
	return t, err
}

func (s *TaskService) Delete(ctx context.Context, id int) error {
	return s.c.do(ctx, request{method: http.MethodDelete, path: fmt.Sprintf("/tasks/%d/", id)}, nil)
}

// ChangeStatus confirms a board move on the backend.
func (s *TaskService) ChangeStatus(ctx context.Context, id int, status domain.Status) error {
	req := request{method: http.MethodPost, path: fmt.Sprintf("/tasks/%d/change_status/", id), body: map[string]string{"status": string(status)}}
	return s.c.do(ctx, req, nil)
}

func (s *TaskService) ChangePriority(ctx context.Context, id int, priority domain.Priority) error {
	req := request{method: http.MethodPost, path: fmt.Sprintf("/tasks/%d/change_priority/", id), body: map[string]string{"priority": string(priority)}}
	return s.c.do(ctx, req, nil)
}

func (s *TaskService) Assign(ctx context.Context, id, userID int) error {
	req := request{method: http.MethodPost, path: fmt.Sprintf("/tasks/%d/assign/", id), body: map[string]int{"user_id": userID}}
	return s.c.do(ctx, req, nil)
}

func (s *TaskService) Unassign(ctx context.Context, id int) error {
	return s.c.do(ctx, request{method: http.MethodPost, path: fmt.Sprintf("/tasks/%d/unassign/", id)}, nil)
}

func (s *TaskService) Comments(ctx context.Context, id int) ([]domain.Comment, error) {
	return listAll[domain.Comment](ctx, s.c, fmt.Sprintf("/tasks/%d/comments/", id), nil)
}

func (s *TaskService) AddComment(ctx context.Context, id int, content string) (domain.Comment, error) {
	var cm domain.Comment
	req := request{method: http.MethodPost, path: fmt.Sprintf("/tasks/%d/comments/", id), body: map[string]string{"content": content}}
	err := s.c.do(ctx, req, &cm)
	return cm, err
}
