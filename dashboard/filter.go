package dashboard

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"taskflow/domain"
)

// Filter narrows a task list. Zero fields match everything.
type Filter struct {
	Status    domain.Status
	Priority  domain.Priority
	ProjectID int
	Search    string
}

// Apply returns the tasks matching f, keeping their order.
func (f Filter) Apply(tasks []domain.Task) []domain.Task {
	search := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]domain.Task, 0, len(tasks))
	for _, t := range tasks {
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.Priority != "" && t.Priority != f.Priority {
			continue
		}
		if f.ProjectID != 0 && t.Project.ID != f.ProjectID {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(t.Title), search) &&
			!strings.Contains(strings.ToLower(t.Description), search) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// FilterTasks is shorthand for f.Apply(tasks).
func FilterTasks(tasks []domain.Task, f Filter) []domain.Task { return f.Apply(tasks) }

// SortKey selects the task ordering.
type SortKey string

const (
	SortDueDate  SortKey = "due_date"
	SortPriority SortKey = "priority"
	SortStatus   SortKey = "status"
	SortCreated  SortKey = "created"
)

// ParseSortKey validates a sort key; empty means SortCreated.
func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(s); k {
	case "":
		return SortCreated, nil
	case SortDueDate, SortPriority, SortStatus, SortCreated:
		return k, nil
	}
	return "", fmt.Errorf("invalid sort %q: must be one of due_date, priority, status, created", s)
}

// Sort orders tasks in place. Due dates ascend with undated tasks last,
// priority descends from urgent, status follows the board columns and
// created puts the newest first. The sort is stable.
func Sort(tasks []domain.Task, key SortKey) {
	var less func(a, b domain.Task) int
	switch key {
	case SortDueDate:
		less = func(a, b domain.Task) int {
			switch {
			case a.DueDate.IsZero() && b.DueDate.IsZero():
				return 0
			case a.DueDate.IsZero():
				return 1
			case b.DueDate.IsZero():
				return -1
			}
			return a.DueDate.Compare(b.DueDate.Time)
		}
	case SortPriority:
		less = func(a, b domain.Task) int { return cmp.Compare(b.Priority.Weight(), a.Priority.Weight()) }
	case SortStatus:
		less = func(a, b domain.Task) int { return cmp.Compare(a.Status.Rank(), b.Status.Rank()) }
	default:
		less = func(a, b domain.Task) int { return b.CreatedAt.Compare(a.CreatedAt) }
	}
	slices.SortStableFunc(tasks, less)
}
