package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
)

func TestTaskUnmarshalAcceptsNestedProjectAndCreator(t *testing.T) {
	payload := `{
		"id": 7,
		"title": "Ship",
		"status": "in-progress",
		"priority": "urgent",
		"due_date": "2024-05-01",
		"project": {"id": 3, "name": "Apollo"},
		"created_by": {"id": 1, "username": "sm"},
		"assignee": {"id": 2, "username": "dev", "role": "employee"},
		"comment_count": 2
	}`
	var task Task
	if err := sonic.UnmarshalString(payload, &task); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	if task.Project.ID != 3 || task.Project.Name != "Apollo" {
		t.Fatalf("unexpected project %+v", task.Project)
	}
	if task.CreatedBy.Username != "sm" || task.CreatedBy.ID != 1 {
		t.Fatalf("unexpected creator %+v", task.CreatedBy)
	}
	if task.AssigneeID() != 2 || !task.AssignedTo(2) {
		t.Fatalf("expected task assigned to 2, got %d", task.AssigneeID())
	}
	if got := task.DueDate.String(); got != "2024-05-01" {
		t.Fatalf("unexpected due date %q", got)
	}
}

func TestTaskUnmarshalAcceptsFlatReferences(t *testing.T) {
	var task Task
	if err := sonic.UnmarshalString(`{"id":1,"project":4,"created_by":"alice","due_date":null}`, &task); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	if task.Project.ID != 4 {
		t.Fatalf("expected project 4, got %d", task.Project.ID)
	}
	if task.CreatedBy.String() != "alice" {
		t.Fatalf("expected creator alice, got %q", task.CreatedBy.String())
	}
	if !task.DueDate.IsZero() {
		t.Fatalf("expected no due date, got %v", task.DueDate)
	}
	if task.AssigneeID() != 0 || task.AssignedTo(0) {
		t.Fatalf("unassigned task must not match any user")
	}
}

func TestTaskMarshalWritesProjectID(t *testing.T) {
	task := Task{ID: 1, Title: "x", Status: StatusTodo, Project: ProjectRef{ID: 9, Name: "n"}}
	payload, err := sonic.Marshal(task)
	if err != nil {
		t.Fatalf("marshal task: %v", err)
	}
	if !strings.Contains(string(payload), `"project":9`) {
		t.Fatalf("expected project id in %s", payload)
	}
	if !strings.Contains(string(payload), `"due_date":null`) {
		t.Fatalf("expected null due date in %s", payload)
	}
}

func TestTaskOverdue(t *testing.T) {
	now := time.Date(2024, 5, 10, 15, 0, 0, 0, time.UTC)
	yesterday, _ := ParseDate("2024-05-09")
	today, _ := ParseDate("2024-05-10")

	tests := []struct {
		name string
		task Task
		want bool
	}{
		{name: "past open", task: Task{Status: StatusTodo, DueDate: yesterday}, want: true},
		{name: "past done", task: Task{Status: StatusDone, DueDate: yesterday}},
		{name: "due today", task: Task{Status: StatusReview, DueDate: today}},
		{name: "no date", task: Task{Status: StatusTodo}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.task.Overdue(now); got != tt.want {
				t.Fatalf("Overdue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTaskCloneDoesNotShareAssignee(t *testing.T) {
	orig := Task{ID: 1, Assignee: &User{ID: 2, Username: "a"}}
	c := orig.Clone()
	c.Assignee.Username = "b"
	if orig.Assignee.Username != "a" {
		t.Fatalf("clone mutated original assignee")
	}
}

func TestParseStatus(t *testing.T) {
	for _, s := range []string{"todo", "in-progress", "review", "done"} {
		if _, err := ParseStatus(s); err != nil {
			t.Fatalf("ParseStatus(%q): %v", s, err)
		}
	}
	if _, err := ParseStatus("blocked"); err == nil {
		t.Fatalf("expected error for unknown status")
	}
	if StatusInProgress.Title() != "In Progress" {
		t.Fatalf("unexpected title %q", StatusInProgress.Title())
	}
	if StatusTodo.Rank() >= StatusDone.Rank() {
		t.Fatalf("expected todo to rank before done")
	}
}

func TestParsePriorityAndRole(t *testing.T) {
	p, err := ParsePriority("urgent")
	if err != nil || p.Weight() != 4 {
		t.Fatalf("ParsePriority(urgent) = %v, %v", p, err)
	}
	if _, err := ParsePriority("critical"); err == nil {
		t.Fatalf("expected error for unknown priority")
	}
	if _, err := ParseRole("admin"); err == nil {
		t.Fatalf("expected error for unknown role")
	}
}
