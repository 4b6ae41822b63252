package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"taskflow/apiclient"
	"taskflow/dashboard"
	"taskflow/domain"
)

type statsReport struct {
	User      string                     `json:"user"`
	Role      domain.Role                `json:"role"`
	Stats     dashboard.Stats            `json:"stats"`
	Projects  []dashboard.ProjectSummary `json:"projects"`
	Analytics domain.DashboardAnalytics  `json:"analytics"`
}

func newStatsCmd(a *app) *cobra.Command {
	var (
		days      int
		projectID int
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show dashboard statistics and activity",
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			u, err := a.currentUser(ctx)
			if err != nil {
				return err
			}
			tasks, err := a.visibleTasks(ctx, u, apiclient.TaskFilter{ProjectID: projectID})
			if err != nil {
				return err
			}
			projects, err := a.client.Projects.List(ctx)
			if err != nil {
				return err
			}
			analytics, err := a.client.Events.Dashboard(ctx, days)
			if err != nil {
				a.logger.WithError(err).Warn("Error fetching analytics, showing task statistics only")
				analytics = domain.DashboardAnalytics{}
			}

			report := statsReport{
				User:      u.Username,
				Role:      u.Role,
				Stats:     dashboard.Compute(tasks, time.Now()),
				Projects:  dashboard.ProjectSummaries(projects, tasks),
				Analytics: analytics,
			}
			if a.jsonOut {
				return a.printJSON(report)
			}
			return a.printStats(report, days)
		}),
	}
	cmd.Flags().IntVar(&days, "days", 30, "analytics window in days")
	cmd.Flags().IntVar(&projectID, "project", 0, "only tasks of this project")
	return cmd
}

func (a *app) printStats(r statsReport, days int) error {
	s := r.Stats
	tw := newTable(a.out)
	fmt.Fprintf(tw, "Tasks\t%d\n", s.Total)
	for _, st := range domain.Statuses {
		fmt.Fprintf(tw, "  %s\t%d\n", st.Title(), s.ByStatus[st])
	}
	fmt.Fprintf(tw, "Overdue\t%d\n", s.Overdue)
	fmt.Fprintf(tw, "Urgent open\t%d\n", s.UrgentOpen)
	fmt.Fprintf(tw, "Completion rate\t%d%%\n", s.CompletionRate)
	fmt.Fprintf(tw, "Productivity\t%d\n", s.Productivity)
	fmt.Fprintf(tw, "Avg planned days\t%d\n", s.AvgPlannedDays)
	fmt.Fprintf(tw, "Avg completion days\t%d\n", s.AvgCompletionDays)
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(r.Projects) > 0 {
		fmt.Fprintln(a.out, "\nProjects")
		tw = newTable(a.out)
		fmt.Fprintln(tw, "ID\tNAME\tDONE\tTOTAL\tPROGRESS")
		for _, p := range r.Projects {
			fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d%%\n", p.ID, p.Name, p.Done, p.Total, p.Progress)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	sum := r.Analytics.Summary
	fmt.Fprintf(a.out, "\nActivity, last %d days\n", days)
	tw = newTable(a.out)
	fmt.Fprintf(tw, "Events\t%d\n", sum.TotalEvents)
	fmt.Fprintf(tw, "Tasks created\t%d\n", sum.TaskCreated)
	fmt.Fprintf(tw, "Tasks completed\t%d\n", sum.TaskCompleted)
	fmt.Fprintf(tw, "Tasks moved\t%d\n", sum.TaskMoved)
	fmt.Fprintf(tw, "Projects created\t%d\n", sum.ProjectCreated)
	for _, p := range r.Analytics.MostActiveProjects {
		fmt.Fprintf(tw, "  %s\t%d events\n", p.ProjectName, p.Count)
	}
	return tw.Flush()
}
