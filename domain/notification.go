package domain

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// NotificationType classifies a notification.
type NotificationType string

const (
	NotifyTaskAssigned   NotificationType = "task_assigned"
	NotifyTaskUpdated    NotificationType = "task_updated"
	NotifyTaskCommented  NotificationType = "task_commented"
	NotifyProjectUpdated NotificationType = "project_updated"
	NotifyMention        NotificationType = "mention"
	NotifyDueDate        NotificationType = "due_date"
	NotifySystem         NotificationType = "system"
)

// Level of a client side notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// NotificationID holds either a numeric server id or a UUID generated locally.
type NotificationID string

func (id *NotificationID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		s, err := strconv.Unquote(string(b))
		if err != nil {
			return err
		}
		*id = NotificationID(s)
		return nil
	}
	if _, err := strconv.ParseInt(string(b), 10, 64); err != nil {
		return fmt.Errorf("notification id: %w", err)
	}
	*id = NotificationID(b)
	return nil
}

// ServerID returns the numeric id assigned by the backend.
func (id NotificationID) ServerID() (int, bool) {
	n, err := strconv.Atoi(string(id))
	return n, err == nil
}

// Notification is shown to the user either from the server inbox or raised
// locally by the sync loop.
type Notification struct {
	ID        NotificationID   `json:"id"`
	Type      NotificationType `json:"type"`
	Level     Level            `json:"level,omitempty"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Link      string           `json:"link,omitempty"`
	IsRead    bool             `json:"is_read"`
	CreatedAt time.Time        `json:"created_at"`
}

// Local reports whether the notification was generated client side.
func (n Notification) Local() bool {
	_, ok := n.ID.ServerID()
	return !ok
}

// NewTaskAssigned builds the notification raised when a newly created task
// assigned to the current user shows up in a sync cycle.
func NewTaskAssigned(t Task, now time.Time) Notification {
	return Notification{
		ID:        NotificationID(uuid.NewString()),
		Type:      NotifyTaskAssigned,
		Level:     LevelInfo,
		Title:     "New Task Assigned",
		Message:   fmt.Sprintf("You have been assigned a new task: %q", t.Title),
		Link:      "/tasks",
		CreatedAt: now,
	}
}
