package apiclient

import (
	"context"
	"fmt"
	"net/http"

	"taskflow/domain"
)

type ProjectService struct{ c *Client }

func (s *ProjectService) List(ctx context.Context) ([]domain.Project, error) {
	return listAll[domain.Project](ctx, s.c, "/projects/", nil)
}

func (s *ProjectService) Get(ctx context.Context, id int) (domain.Project, error) {
	var p domain.Project
	err := s.c.do(ctx, request{method: http.MethodGet, path: fmt.Sprintf("/projects/%d/", id)}, &p)
	return p, err
}

func (s *ProjectService) Create(ctx context.Context, form domain.ProjectForm) (domain.Project, error) {
	var p domain.Project
	err := s.c.do(ctx, request{method: http.MethodPost, path: "/projects/", body: form}, &p)
	return p, err
}

func (s *ProjectService) Update(ctx context.Context, id int, form domain.ProjectForm) (domain.Project, error) {
	var p domain.Project
	err := s.c.do(ctx, request{method: http.MethodPut, path: fmt.Sprintf("/projects/%d/", id), body: form}, &p)
	return p, err
}

func (s *ProjectService) Delete(ctx context.Context, id int) error {
	return s.c.do(ctx, request{method: http.MethodDelete, path: fmt.Sprintf("/projects/%d/", id)}, nil)
}

func (s *ProjectService) AddMember(ctx context.Context, projectID, userID int) error {
	req := request{method: http.MethodPost, path: fmt.Sprintf("/projects/%d/members/", projectID), body: map[string]int{"user_id": userID}}
	return s.c.do(ctx, req, nil)
}

func (s *ProjectService) RemoveMember(ctx context.Context, projectID, userID int) error {
	return s.c.do(ctx, request{method: http.MethodDelete, path: fmt.Sprintf("/projects/%d/members/%d/", projectID, userID)}, nil)
}

// AssignableUsers lists users a task of the project may be assigned to.
func (s *ProjectService) AssignableUsers(ctx context.Context, projectID int) ([]domain.User, error) {
	return listAll[domain.User](ctx, s.c, fmt.Sprintf("/projects/%d/assignable_users/", projectID), nil)
}
