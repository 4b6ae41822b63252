package dashboard

import (
	"math"
	"time"

	"taskflow/domain"
)

// Stats are the headline numbers of the employee and scrum master
// dashboards.
type Stats struct {
	Total          int                     `json:"total"`
	ByStatus       map[domain.Status]int   `json:"by_status"`
	ByPriority     map[domain.Priority]int `json:"by_priority"`
	Completed      int                     `json:"completed"`
	InProgress     int                     `json:"in_progress"`
	Overdue        int                     `json:"overdue"`
	UrgentOpen     int                     `json:"urgent_open"`
	CompletionRate int                     `json:"completion_rate"`
	Productivity   int                     `json:"productivity_score"`
	// AvgPlannedDays is the mean of due date minus creation, tasks without a
	// due date count as zero.
	AvgPlannedDays int `json:"avg_planned_days"`
	// AvgCompletionDays is the mean time from creation to completion of done
	// tasks.
	AvgCompletionDays int `json:"avg_completion_days"`
}

const day = 24 * time.Hour

// Compute derives Stats from tasks as of now.
func Compute(tasks []domain.Task, now time.Time) Stats {
	s := Stats{
		Total:      len(tasks),
		ByStatus:   make(map[domain.Status]int, len(domain.Statuses)),
		ByPriority: make(map[domain.Priority]int, len(domain.Priorities)),
	}
	for _, st := range domain.Statuses {
		s.ByStatus[st] = 0
	}
	for _, p := range domain.Priorities {
		s.ByPriority[p] = 0
	}
	if len(tasks) == 0 {
		return s
	}

	var plannedDays, completionDays, doneWithTimes int
	for _, t := range tasks {
		s.ByStatus[t.Status]++
		s.ByPriority[t.Priority]++
		switch t.Status {
		case domain.StatusDone:
			s.Completed++
			if end := completedAt(t); !end.IsZero() && !t.CreatedAt.IsZero() {
				completionDays += ceilDays(end.Sub(t.CreatedAt))
				doneWithTimes++
			}
		case domain.StatusInProgress:
			s.InProgress++
		}
		if t.Overdue(now) {
			s.Overdue++
		}
		if t.Priority == domain.PriorityUrgent && t.Status != domain.StatusDone {
			s.UrgentOpen++
		}
		if !t.DueDate.IsZero() && !t.CreatedAt.IsZero() {
			plannedDays += ceilDays(t.DueDate.Sub(t.CreatedAt))
		}
	}

	total := float64(s.Total)
	s.CompletionRate = round(float64(s.Completed) / total * 100)
	s.Productivity = round((float64(s.Completed)*0.4 + float64(s.InProgress)*0.3 + float64(s.Total-s.Overdue)*0.3) / total * 100)
	s.AvgPlannedDays = round(float64(plannedDays) / total)
	if doneWithTimes > 0 {
		s.AvgCompletionDays = round(float64(completionDays) / float64(doneWithTimes))
	}
	return s
}

func completedAt(t domain.Task) time.Time {
	if t.CompletedAt != nil {
		return *t.CompletedAt
	}
	return t.UpdatedAt
}

func ceilDays(d time.Duration) int {
	return int(math.Ceil(float64(d) / float64(day)))
}

// round matches half-up rounding of the web dashboards.
func round(f float64) int {
	return int(math.Floor(f + 0.5))
}

// ProjectSummary is the per project progress line of the analytics page.
type ProjectSummary struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Total    int    `json:"total"`
	Done     int    `json:"done"`
	Progress int    `json:"progress"`
}

// ProjectSummaries counts tasks per project in the order projects are given.
func ProjectSummaries(projects []domain.Project, tasks []domain.Task) []ProjectSummary {
	type counts struct{ total, done int }
	byProject := make(map[int]*counts, len(projects))
	for _, t := range tasks {
		c := byProject[t.Project.ID]
		if c == nil {
			c = &counts{}
			byProject[t.Project.ID] = c
		}
		c.total++
		if t.Status == domain.StatusDone {
			c.done++
		}
	}
	out := make([]ProjectSummary, 0, len(projects))
	for _, p := range projects {
		sum := ProjectSummary{ID: p.ID, Name: p.Name}
		if c := byProject[p.ID]; c != nil {
			sum.Total, sum.Done = c.total, c.done
			sum.Progress = round(float64(c.done) / float64(c.total) * 100)
		}
		out = append(out, sum)
	}
	return out
}
