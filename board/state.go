package board

import (
	"fmt"

	"taskflow/domain"
)

// Column is the ordered list of tasks sharing one status.
type Column struct {
	Status domain.Status `json:"status"`
	Title  string        `json:"title"`
	Tasks  []domain.Task `json:"tasks"`
}

// State is a value copy of the board. Columns are always in the fixed
// To Do, In Progress, Review, Done order.
type State struct {
	Columns []Column `json:"columns"`
}

// Column returns the column holding status.
func (s State) Column(status domain.Status) Column {
	for _, c := range s.Columns {
		if c.Status == status {
			return c
		}
	}
	return Column{Status: status, Title: status.Title()}
}

// Find locates a task and returns its column status and position.
func (s State) Find(taskID int) (domain.Task, domain.Status, int, bool) {
	for _, c := range s.Columns {
		for i, t := range c.Tasks {
			if t.ID == taskID {
				return t, c.Status, i, true
			}
		}
	}
	return domain.Task{}, "", -1, false
}

// Len is the number of tasks on the board.
func (s State) Len() int {
	n := 0
	for _, c := range s.Columns {
		n += len(c.Tasks)
	}
	return n
}

// Counts returns the number of tasks per status.
func (s State) Counts() map[domain.Status]int {
	out := make(map[domain.Status]int, len(s.Columns))
	for _, c := range s.Columns {
		out[c.Status] = len(c.Tasks)
	}
	return out
}

// Validate checks that every task sits in exactly one column and that the
// column matches the task status.
func (s State) Validate() error {
	if len(s.Columns) != len(domain.Statuses) {
		return fmt.Errorf("board has %d columns, want %d", len(s.Columns), len(domain.Statuses))
	}
	seen := make(map[int]domain.Status)
	for i, c := range s.Columns {
		if c.Status != domain.Statuses[i] {
			return fmt.Errorf("column %d is %q, want %q", i, c.Status, domain.Statuses[i])
		}
		for _, t := range c.Tasks {
			if t.Status != c.Status {
				return fmt.Errorf("task %d has status %q but sits in column %q", t.ID, t.Status, c.Status)
			}
			if prev, dup := seen[t.ID]; dup {
				return fmt.Errorf("task %d appears in both %q and %q", t.ID, prev, c.Status)
			}
			seen[t.ID] = c.Status
		}
	}
	return nil
}

func (s State) clone() State {
	out := State{Columns: make([]Column, len(s.Columns))}
	for i, c := range s.Columns {
		tasks := make([]domain.Task, len(c.Tasks))
		for j, t := range c.Tasks {
			tasks[j] = t.Clone()
		}
		out.Columns[i] = Column{Status: c.Status, Title: c.Title, Tasks: tasks}
	}
	return out
}

func emptyState() State {
	s := State{Columns: make([]Column, len(domain.Statuses))}
	for i, st := range domain.Statuses {
		s.Columns[i] = Column{Status: st, Title: st.Title(), Tasks: []domain.Task{}}
	}
	return s
}

func columnIndex(status domain.Status) int {
	for i, st := range domain.Statuses {
		if st == status {
			return i
		}
	}
	return -1
}

// Tasks flattens the board in column order.
func (s State) Tasks() []domain.Task {
	out := make([]domain.Task, 0, s.Len())
	for _, c := range s.Columns {
		out = append(out, c.Tasks...)
	}
	return out
}
