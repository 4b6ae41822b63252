package domain

import (
	"bytes"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
)

// Task represents a single board item as served by the tasks endpoints.
type Task struct {
	ID              int        `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Status          Status     `json:"status"`
	Priority        Priority   `json:"priority"`
	DueDate         Date       `json:"due_date"`
	Project         ProjectRef `json:"project"`
	ProjectName     string     `json:"project_name,omitempty"`
	Assignee        *User      `json:"assignee,omitempty"`
	CreatedBy       UserRef    `json:"created_by"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CommentCount    int        `json:"comment_count"`
	AttachmentCount int        `json:"attachment_count"`
}

// AssigneeID returns the assignee's id or zero when unassigned.
func (t Task) AssigneeID() int {
	if t.Assignee == nil {
		return 0
	}
	return t.Assignee.ID
}

// AssignedTo reports whether the task is assigned to the given user.
func (t Task) AssignedTo(userID int) bool {
	return t.Assignee != nil && t.Assignee.ID == userID
}

// Overdue reports whether the due date has passed and the task is still open.
func (t Task) Overdue(now time.Time) bool {
	if t.DueDate.IsZero() || t.Status == StatusDone {
		return false
	}
	return t.DueDate.Before(NewDate(now).Time)
}

// Clone returns a copy that shares no pointers with t.
func (t Task) Clone() Task {
	c := t
	if t.Assignee != nil {
		a := *t.Assignee
		c.Assignee = &a
	}
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		c.CompletedAt = &ts
	}
	return c
}

// ProjectRef is the owning project of a task. The backend sends either the
// project id or the nested project object.
type ProjectRef struct {
	ID   int    `json:"id"`
	Name string `json:"name,omitempty"`
}

func (r ProjectRef) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Itoa(r.ID)), nil
}

func (r *ProjectRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*r = ProjectRef{}
		return nil
	}
	if len(b) > 0 && b[0] == '{' {
		var p struct {
			ID   int    `json:"id"`
			Name string `json:"name"`
		}
		if err := sonic.Unmarshal(b, &p); err != nil {
			return err
		}
		*r = ProjectRef{ID: p.ID, Name: p.Name}
		return nil
	}
	id, err := strconv.Atoi(string(b))
	if err != nil {
		return err
	}
	*r = ProjectRef{ID: id}
	return nil
}

// TaskForm is the payload for creating or patching a task. Nil fields are
// left untouched by PATCH requests.
type TaskForm struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Priority    *Priority `json:"priority,omitempty"`
	Status      *Status   `json:"status,omitempty"`
	DueDate     *Date     `json:"due_date,omitempty"`
	AssigneeID  *int      `json:"assignee_id,omitempty"`
}

// Comment on a task.
type Comment struct {
	ID        int       `json:"id"`
	Content   string    `json:"content"`
	User      UserRef   `json:"user"`
	CreatedAt time.Time `json:"created_at"`
}
