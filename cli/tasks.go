package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"taskflow/apiclient"
	"taskflow/dashboard"
	"taskflow/domain"
)

func taskFilterForProject(id int) apiclient.TaskFilter {
	return apiclient.TaskFilter{ProjectID: id}
}

func newTasksCmd(a *app) *cobra.Command {
	var (
		projectID, assigneeID    int
		status, priority, search string
		sortKey                  string
	)
	cmd := &cobra.Command{
		Use:     "tasks",
		Aliases: []string{"task"},
		Short:   "List and manage tasks",
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			f := dashboard.Filter{ProjectID: projectID, Search: search}
			if status != "" {
				st, err := domain.ParseStatus(status)
				if err != nil {
					return err
				}
				f.Status = st
			}
			if priority != "" {
				p, err := domain.ParsePriority(priority)
				if err != nil {
					return err
				}
				f.Priority = p
			}
			key, err := dashboard.ParseSortKey(sortKey)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			u, err := a.currentUser(ctx)
			if err != nil {
				return err
			}
			tasks, err := a.visibleTasks(ctx, u, apiclient.TaskFilter{
				ProjectID:  projectID,
				Status:     f.Status,
				Priority:   f.Priority,
				AssigneeID: assigneeID,
				Search:     search,
			})
			if err != nil {
				return err
			}
			tasks = dashboard.FilterTasks(tasks, f)
			dashboard.Sort(tasks, key)
			return a.printTasks(tasks)
		}),
	}
	f := cmd.Flags()
	f.IntVar(&projectID, "project", 0, "only tasks of this project")
	f.IntVar(&assigneeID, "assignee", 0, "only tasks assigned to this user id")
	f.StringVar(&status, "status", "", "todo, in-progress, review or done")
	f.StringVar(&priority, "priority", "", "low, medium, high or urgent")
	f.StringVar(&search, "search", "", "text in title or description")
	f.StringVar(&sortKey, "sort", "", "due_date, priority, status or created (default created)")

	cmd.AddCommand(
		newTaskShowCmd(a),
		newTaskCreateCmd(a),
		newTaskUpdateCmd(a),
		newTaskDeleteCmd(a),
		newTaskCommentCmd(a),
		newTaskAssignCmd(a),
		newTaskUnassignCmd(a),
		newTaskPriorityCmd(a),
	)
	return cmd
}

func newTaskShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a task with its comments",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "task")
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			t, err := a.client.Tasks.Get(ctx, id)
			if err != nil {
				return err
			}
			comments, err := a.client.Tasks.Comments(ctx, id)
			if err != nil {
				a.logger.WithError(err).Warn("load comments")
				comments = nil
			}
			return a.printTask(t, comments)
		}),
	}
}

type taskFlags struct {
	title, description, priority, status, due string
	assignee                                  int
}

func (f *taskFlags) register(cmd *cobra.Command, withStatus bool) {
	cmd.Flags().StringVar(&f.title, "title", "", "task title")
	cmd.Flags().StringVar(&f.description, "description", "", "description")
	cmd.Flags().StringVar(&f.priority, "priority", "", "low, medium, high or urgent")
	cmd.Flags().StringVar(&f.due, "due", "", "due date (YYYY-MM-DD), empty clears it")
	cmd.Flags().IntVar(&f.assignee, "assignee", 0, "assignee user id")
	if withStatus {
		cmd.Flags().StringVar(&f.status, "status", "", "todo, in-progress, review or done")
	}
}

// form builds a patch from the flags that were set.
func (f *taskFlags) form(cmd *cobra.Command) (domain.TaskForm, int, error) {
	var form domain.TaskForm
	set := 0
	changed := cmd.Flags().Changed
	if changed("title") {
		title := strings.TrimSpace(f.title)
		if title == "" {
			return form, 0, errors.New("title must not be empty")
		}
		form.Title = &title
		set++
	}
	if changed("description") {
		form.Description = &f.description
		set++
	}
	if changed("priority") {
		p, err := domain.ParsePriority(f.priority)
		if err != nil {
			return form, 0, err
		}
		form.Priority = &p
		set++
	}
	if changed("status") {
		st, err := domain.ParseStatus(f.status)
		if err != nil {
			return form, 0, err
		}
		form.Status = &st
		set++
	}
	if changed("due") {
		d, err := domain.ParseDate(f.due)
		if err != nil {
			return form, 0, fmt.Errorf("invalid --due: %w", err)
		}
		form.DueDate = &d
		set++
	}
	if changed("assignee") {
		form.AssigneeID = &f.assignee
		set++
	}
	return form, set, nil
}

func newTaskCreateCmd(a *app) *cobra.Command {
	var flags taskFlags
	var projectID int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task in a project",
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			if projectID == 0 {
				return errors.New("--project is required")
			}
			if !cmd.Flags().Changed("title") {
				return errors.New("--title is required")
			}
			form, _, err := flags.form(cmd)
			if err != nil {
				return err
			}
			if form.Priority == nil {
				p := domain.PriorityMedium
				form.Priority = &p
			}
			t, err := a.client.Tasks.Create(cmd.Context(), projectID, form)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Created task #%d %s\n", t.ID, t.Title)
			return nil
		}),
	}
	cmd.Flags().IntVar(&projectID, "project", 0, "project id")
	flags.register(cmd, false)
	return cmd
}

func newTaskUpdateCmd(a *app) *cobra.Command {
	var flags taskFlags
	cmd := &cobra.Command{
		Use:   "update <task-id>",
		Short: "Change task fields",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "task")
			if err != nil {
				return err
			}
			form, set, err := flags.form(cmd)
			if err != nil {
				return err
			}
			if set == 0 {
				return errors.New("nothing to update")
			}
			t, err := a.client.Tasks.Update(cmd.Context(), id, form)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Updated task #%d %s\n", t.ID, t.Title)
			return nil
		}),
	}
	flags.register(cmd, true)
	return cmd
}

func newTaskDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "task")
			if err != nil {
				return err
			}
			if err := a.client.Tasks.Delete(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Deleted task #%d\n", id)
			return nil
		}),
	}
}

func newTaskCommentCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "comment <task-id> <text>...",
		Short: "Comment on a task",
		Args:  cobra.MinimumNArgs(2),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "task")
			if err != nil {
				return err
			}
			content := strings.TrimSpace(strings.Join(args[1:], " "))
			if content == "" {
				return errors.New("comment must not be empty")
			}
			if _, err := a.client.Tasks.AddComment(cmd.Context(), id, content); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Commented on task #%d\n", id)
			return nil
		}),
	}
}

func newTaskAssignCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "assign <task-id> <user-id>",
		Short: "Assign a task to a user",
		Args:  cobra.ExactArgs(2),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "task")
			if err != nil {
				return err
			}
			uid, err := parseID(args[1], "user")
			if err != nil {
				return err
			}
			if err := a.client.Tasks.Assign(cmd.Context(), id, uid); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Assigned task #%d to user %d\n", id, uid)
			return nil
		}),
	}
}

func newTaskUnassignCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "unassign <task-id>",
		Short: "Remove the assignee of a task",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "task")
			if err != nil {
				return err
			}
			if err := a.client.Tasks.Unassign(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Unassigned task #%d\n", id)
			return nil
		}),
	}
}

func newTaskPriorityCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "priority <task-id> <priority>",
		Short: "Change the priority of a task",
		Args:  cobra.ExactArgs(2),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "task")
			if err != nil {
				return err
			}
			p, err := domain.ParsePriority(args[1])
			if err != nil {
				return err
			}
			if err := a.client.Tasks.ChangePriority(cmd.Context(), id, p); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Task #%d is now %s priority\n", id, p)
			return nil
		}),
	}
}
