package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"taskflow/dashboard"
	"taskflow/domain"
)

func parseID(arg, what string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", what, arg)
	}
	return id, nil
}

func newProjectsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "projects",
		Aliases: []string{"project"},
		Short:   "List and manage projects",
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			projects, err := a.client.Projects.List(cmd.Context())
			if err != nil {
				return err
			}
			return a.printProjects(projects)
		}),
	}
	cmd.AddCommand(
		newProjectShowCmd(a),
		newProjectCreateCmd(a),
		newProjectUpdateCmd(a),
		newProjectDeleteCmd(a),
		newMembersCmd(a),
	)
	return cmd
}

func newProjectShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show a project with its members and task progress",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "project")
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			p, err := a.client.Projects.Get(ctx, id)
			if err != nil {
				return err
			}
			tasks, err := a.client.Tasks.List(ctx, taskFilterForProject(id))
			if err != nil {
				return err
			}
			summary := dashboard.ProjectSummaries([]domain.Project{p}, tasks)[0]
			if a.jsonOut {
				return a.printJSON(map[string]any{"project": p, "summary": summary})
			}
			tw := newTable(a.out)
			fmt.Fprintf(tw, "Project\t#%d %s\n", p.ID, p.Name)
			fmt.Fprintf(tw, "Status\t%s\n", p.Status)
			fmt.Fprintf(tw, "Dates\t%s .. %s\n", orDash(p.StartDate.String()), orDash(p.EndDate.String()))
			fmt.Fprintf(tw, "Tasks\t%d done of %d (%d%%)\n", summary.Done, summary.Total, summary.Progress)
			if err := tw.Flush(); err != nil {
				return err
			}
			if p.Description != "" {
				fmt.Fprintf(a.out, "\n%s\n", p.Description)
			}
			if len(p.Members) > 0 {
				fmt.Fprintf(a.out, "\nMembers (%d)\n", len(p.Members))
				for _, m := range p.Members {
					fmt.Fprintf(a.out, "  %s  %s\n", m.Name(), orDash(m.Role))
				}
			}
			return nil
		}),
	}
}

type projectFlags struct {
	name, description, start, end, status string
}

func (f *projectFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "project name")
	cmd.Flags().StringVar(&f.description, "description", "", "description")
	cmd.Flags().StringVar(&f.start, "start", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.end, "end", "", "end date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.status, "status", "", "planning, in-progress, review, completed, on-hold or cancelled")
}

// apply copies the flags that were set onto form.
func (f *projectFlags) apply(cmd *cobra.Command, form *domain.ProjectForm) error {
	if cmd.Flags().Changed("name") {
		form.Name = f.name
	}
	if cmd.Flags().Changed("description") {
		form.Description = f.description
	}
	if cmd.Flags().Changed("start") {
		d, err := domain.ParseDate(f.start)
		if err != nil {
			return fmt.Errorf("invalid --start: %w", err)
		}
		form.StartDate = d
	}
	if cmd.Flags().Changed("end") {
		d, err := domain.ParseDate(f.end)
		if err != nil {
			return fmt.Errorf("invalid --end: %w", err)
		}
		form.EndDate = d
	}
	if cmd.Flags().Changed("status") {
		form.Status = domain.ProjectStatus(f.status)
	}
	if !form.StartDate.IsZero() && !form.EndDate.IsZero() && form.EndDate.Before(form.StartDate.Time) {
		return errors.New("end date must not be before the start date")
	}
	return nil
}

func newProjectCreateCmd(a *app) *cobra.Command {
	var flags projectFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project",
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			if flags.name == "" {
				return errors.New("--name is required")
			}
			form := domain.ProjectForm{Status: domain.ProjectPlanning}
			if err := flags.apply(cmd, &form); err != nil {
				return err
			}
			p, err := a.client.Projects.Create(cmd.Context(), form)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Created project #%d %s\n", p.ID, p.Name)
			return nil
		}),
	}
	flags.register(cmd)
	return cmd
}

func newProjectUpdateCmd(a *app) *cobra.Command {
	var flags projectFlags
	cmd := &cobra.Command{
		Use:   "update <project-id>",
		Short: "Change project fields",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "project")
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			p, err := a.client.Projects.Get(ctx, id)
			if err != nil {
				return err
			}
			form := domain.ProjectForm{
				Name:        p.Name,
				Description: p.Description,
				StartDate:   p.StartDate,
				EndDate:     p.EndDate,
				Status:      p.Status,
			}
			if err := flags.apply(cmd, &form); err != nil {
				return err
			}
			if _, err := a.client.Projects.Update(ctx, id, form); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Updated project #%d\n", id)
			return nil
		}),
	}
	flags.register(cmd)
	return cmd
}

func newProjectDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <project-id>",
		Short: "Delete a project and its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "project")
			if err != nil {
				return err
			}
			if err := a.client.Projects.Delete(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Deleted project #%d\n", id)
			return nil
		}),
	}
}

func newMembersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "members <project-id>",
		Short: "List users that tasks of a project can be assigned to",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "project")
			if err != nil {
				return err
			}
			users, err := a.client.Projects.AssignableUsers(cmd.Context(), id)
			if err != nil {
				return err
			}
			return a.printUsers(users)
		}),
	}

	memberAction := func(use, short, done string, call func(cmd *cobra.Command, projectID, userID int) error) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <project-id> <user-id>",
			Short: short,
			Args:  cobra.ExactArgs(2),
			RunE: a.run(func(cmd *cobra.Command, args []string) error {
				pid, err := parseID(args[0], "project")
				if err != nil {
					return err
				}
				uid, err := parseID(args[1], "user")
				if err != nil {
					return err
				}
				if err := call(cmd, pid, uid); err != nil {
					return err
				}
				fmt.Fprintf(a.out, done+"\n", uid, pid)
				return nil
			}),
		}
	}
	cmd.AddCommand(
		memberAction("add", "Add a member to a project", "Added user %d to project #%d",
			func(cmd *cobra.Command, pid, uid int) error {
				return a.client.Projects.AddMember(cmd.Context(), pid, uid)
			}),
		memberAction("remove", "Remove a member from a project", "Removed user %d from project #%d",
			func(cmd *cobra.Command, pid, uid int) error {
				return a.client.Projects.RemoveMember(cmd.Context(), pid, uid)
			}),
	)
	return cmd
}
