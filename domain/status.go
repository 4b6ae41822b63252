package domain

import "fmt"

// Status is the workflow state of a task. Any status may move to any other.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in-progress"
	StatusReview     Status = "review"
	StatusDone       Status = "done"
)

// Statuses lists every task status in board column order.
var Statuses = []Status{StatusTodo, StatusInProgress, StatusReview, StatusDone}

var statusTitles = map[Status]string{
	StatusTodo:       "To Do",
	StatusInProgress: "In Progress",
	StatusReview:     "Review",
	StatusDone:       "Done",
}

// ParseStatus validates a status string received from a user or the backend.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := statusTitles[st]; !ok {
		return "", fmt.Errorf("invalid status %q: must be one of todo, in-progress, review, done", s)
	}
	return st, nil
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := statusTitles[s]
	return ok
}

// Title is the human readable column heading.
func (s Status) Title() string {
	if t, ok := statusTitles[s]; ok {
		return t
	}
	return string(s)
}

// Rank orders statuses the way the scrum master dashboard sorts them.
func (s Status) Rank() int {
	for i, st := range Statuses {
		if st == s {
			return i + 1
		}
	}
	return len(Statuses) + 1
}

// Priority of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Priorities lists priorities from lowest to highest.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

// ParsePriority validates a priority string.
func ParsePriority(s string) (Priority, error) {
	for _, p := range Priorities {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("invalid priority %q: must be one of low, medium, high, urgent", s)
}

// Weight returns 1 for low through 4 for urgent, 0 when unknown.
func (p Priority) Weight() int {
	for i, pr := range Priorities {
		if pr == p {
			return i + 1
		}
	}
	return 0
}

// Role is the capability set of a user.
type Role string

const (
	RoleScrumMaster Role = "scrum_master"
	RoleEmployee    Role = "employee"
)

// ParseRole validates a role string.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleScrumMaster, RoleEmployee:
		return Role(s), nil
	}
	return "", fmt.Errorf("invalid role %q: must be scrum_master or employee", s)
}
