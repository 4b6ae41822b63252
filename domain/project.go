package domain

import "time"

// ProjectStatus is the lifecycle state of a project.
type ProjectStatus string

const (
	ProjectPlanning   ProjectStatus = "planning"
	ProjectInProgress ProjectStatus = "in-progress"
	ProjectReview     ProjectStatus = "review"
	ProjectCompleted  ProjectStatus = "completed"
	ProjectOnHold     ProjectStatus = "on-hold"
	ProjectCancelled  ProjectStatus = "cancelled"
)

// Project groups tasks and members.
type Project struct {
	ID          int             `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	StartDate   Date            `json:"start_date"`
	EndDate     Date            `json:"end_date"`
	Status      ProjectStatus   `json:"status"`
	CreatedBy   UserRef         `json:"created_by"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Progress    float64         `json:"progress"`
	TaskCount   int             `json:"task_count"`
	MemberCount int             `json:"member_count"`
	Members     []ProjectMember `json:"members,omitempty"`
}

// ProjectMember is a user's membership in a project. Depending on the
// endpoint the user is either flattened into the member or nested under User.
type ProjectMember struct {
	ID       int    `json:"id"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role,omitempty"`
	User     *User  `json:"user,omitempty"`
}

// Name returns the member's username from whichever shape was served.
func (m ProjectMember) Name() string {
	if m.Username != "" {
		return m.Username
	}
	if m.User != nil {
		return m.User.Username
	}
	return ""
}

// ProjectForm creates or updates a project.
type ProjectForm struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	StartDate   Date           `json:"start_date"`
	EndDate     Date           `json:"end_date"`
	Status      ProjectStatus  `json:"status,omitempty"`
	TeamMembers []MemberInvite `json:"team_members,omitempty"`
}

// MemberInvite adds a user with a membership role when a project is created.
type MemberInvite struct {
	UserID int    `json:"user_id"`
	Role   string `json:"role"`
}
