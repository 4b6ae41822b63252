package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/bytedance/sonic"

	"taskflow/board"
	"taskflow/domain"
)

func (a *app) printJSON(v any) error {
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.out, string(data))
	return err
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func assigneeName(t domain.Task) string {
	if t.Assignee == nil {
		return "-"
	}
	return t.Assignee.Username
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func (a *app) printTasks(tasks []domain.Task) error {
	if a.jsonOut {
		return a.printJSON(tasks)
	}
	tw := newTable(a.out)
	fmt.Fprintln(tw, "ID\tTITLE\tSTATUS\tPRIORITY\tASSIGNEE\tDUE\tPROJECT")
	now := time.Now()
	for _, t := range tasks {
		due := orDash(t.DueDate.String())
		if t.Overdue(now) {
			due += " (overdue)"
		}
		project := t.ProjectName
		if project == "" && t.Project.ID != 0 {
			project = fmt.Sprintf("#%d", t.Project.ID)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.Title, t.Status, t.Priority, assigneeName(t), due, orDash(project))
	}
	return tw.Flush()
}

func (a *app) printTask(t domain.Task, comments []domain.Comment) error {
	if a.jsonOut {
		return a.printJSON(struct {
			domain.Task
			Comments []domain.Comment `json:"comments"`
		}{t, comments})
	}
	tw := newTable(a.out)
	fmt.Fprintf(tw, "Task\t#%d %s\n", t.ID, t.Title)
	fmt.Fprintf(tw, "Status\t%s\n", t.Status.Title())
	fmt.Fprintf(tw, "Priority\t%s\n", t.Priority)
	fmt.Fprintf(tw, "Assignee\t%s\n", assigneeName(t))
	fmt.Fprintf(tw, "Due\t%s\n", orDash(t.DueDate.String()))
	fmt.Fprintf(tw, "Project\t%s\n", orDash(t.ProjectName))
	fmt.Fprintf(tw, "Created by\t%s\n", orDash(t.CreatedBy.String()))
	if err := tw.Flush(); err != nil {
		return err
	}
	if t.Description != "" {
		fmt.Fprintf(a.out, "\n%s\n", t.Description)
	}
	if len(comments) > 0 {
		fmt.Fprintf(a.out, "\nComments (%d)\n", len(comments))
		for _, c := range comments {
			fmt.Fprintf(a.out, "  %s  %s: %s\n", c.CreatedAt.Format("2006-01-02 15:04"), c.User, c.Content)
		}
	}
	return nil
}

func (a *app) printBoard(s board.State) error {
	if a.jsonOut {
		return a.printJSON(s)
	}
	return renderBoard(a.out, s)
}

func renderBoard(w io.Writer, s board.State) error {
	var b strings.Builder
	for i, c := range s.Columns {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s (%d)\n", c.Title, len(c.Tasks))
		if len(c.Tasks) == 0 {
			b.WriteString("  -\n")
		}
		for _, t := range c.Tasks {
			fmt.Fprintf(&b, "  #%d [%s] %s  @%s\n", t.ID, t.Priority, t.Title, assigneeName(t))
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func (a *app) printProjects(projects []domain.Project) error {
	if a.jsonOut {
		return a.printJSON(projects)
	}
	tw := newTable(a.out)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tPROGRESS\tTASKS\tMEMBERS\tEND")
	for _, p := range projects {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.0f%%\t%d\t%d\t%s\n",
			p.ID, p.Name, p.Status, p.Progress, p.TaskCount, p.MemberCount, orDash(p.EndDate.String()))
	}
	return tw.Flush()
}

func (a *app) printUsers(users []domain.User) error {
	if a.jsonOut {
		return a.printJSON(users)
	}
	tw := newTable(a.out)
	fmt.Fprintln(tw, "ID\tUSERNAME\tNAME\tROLE\tEMAIL")
	for _, u := range users {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", u.ID, u.Username, u.DisplayName(), orDash(string(u.Role)), orDash(u.Email))
	}
	return tw.Flush()
}

func (a *app) printUser(u domain.User) error {
	if a.jsonOut {
		return a.printJSON(u)
	}
	tw := newTable(a.out)
	fmt.Fprintf(tw, "Username\t%s\n", u.Username)
	fmt.Fprintf(tw, "Name\t%s\n", u.DisplayName())
	fmt.Fprintf(tw, "Email\t%s\n", orDash(u.Email))
	fmt.Fprintf(tw, "Role\t%s\n", orDash(string(u.Role)))
	if u.JobTitle != "" {
		fmt.Fprintf(tw, "Job title\t%s\n", u.JobTitle)
	}
	if u.Department != "" {
		fmt.Fprintf(tw, "Department\t%s\n", u.Department)
	}
	return tw.Flush()
}

func (a *app) printNotifications(items []domain.Notification, unread int) error {
	if a.jsonOut {
		return a.printJSON(map[string]any{"notifications": items, "unread": unread})
	}
	fmt.Fprintf(a.out, "%d unread\n", unread)
	tw := newTable(a.out)
	for _, n := range items {
		mark := " "
		if !n.IsRead {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", mark, n.ID, n.CreatedAt.Format("2006-01-02 15:04"), n.Title, n.Message)
	}
	return tw.Flush()
}
