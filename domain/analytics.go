package domain

import "time"

// Event is an analytics event recorded against a task or project.
type Event struct {
	ID         int            `json:"id,omitempty"`
	EventType  string         `json:"event_type"`
	EntityType string         `json:"entity_type"`
	EntityID   int            `json:"entity_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Timestamp  time.Time      `json:"timestamp,omitempty"`
}

// ActivitySummary totals the user's events over the analysed window.
type ActivitySummary struct {
	TaskCreated    int `json:"task_created"`
	TaskCompleted  int `json:"task_completed"`
	TaskMoved      int `json:"task_moved"`
	ProjectCreated int `json:"project_created"`
	TotalEvents    int `json:"total_events"`
}

// DayActivity is one bucket of the activity chart.
type DayActivity struct {
	Date          string `json:"date"`
	Events        int    `json:"events"`
	TaskCreated   int    `json:"task_created"`
	TaskCompleted int    `json:"task_completed"`
}

// EventCount pairs an event type with its frequency.
type EventCount struct {
	EventType string `json:"event_type"`
	Count     int    `json:"count"`
}

// ProjectActivity counts events for one project.
type ProjectActivity struct {
	EntityID    int    `json:"entity_id"`
	ProjectName string `json:"project_name"`
	Count       int    `json:"count"`
}

// DashboardAnalytics is served by the events dashboard endpoint.
type DashboardAnalytics struct {
	Summary            ActivitySummary   `json:"summary"`
	ActivityOverTime   []DayActivity     `json:"activity_over_time"`
	EventDistribution  []EventCount      `json:"event_distribution"`
	MostActiveProjects []ProjectActivity `json:"most_active_projects"`
}

// TaskAnalytics is served by the task analytics endpoint.
type TaskAnalytics struct {
	CompletionByPriority map[string]int `json:"completion_by_priority"`
	AvgCompletionTime    float64        `json:"avg_completion_time"`
	TotalTasksCreated    int            `json:"total_tasks_created"`
	TotalTasksCompleted  int            `json:"total_tasks_completed"`
}
