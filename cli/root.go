package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"taskflow/apiclient"
)

// NewRootCmd builds the command tree. Streams are injectable for tests.
func NewRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	a := &app{in: in, out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "taskflow",
		Short: "TaskFlow - project and task management from the terminal",
		Long: `TaskFlow talks to the TaskFlow backend to manage projects, tasks and the
Kanban board. Scrum masters see every task; employees work on the tasks
assigned to them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if skipSetup(cmd) {
				return nil
			}
			return a.setup()
		},
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file (default ~/.taskflow/config.yaml)")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")
	root.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "print JSON instead of tables")

	root.AddCommand(
		newLoginCmd(a),
		newRegisterCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newProfileCmd(a),
		newPasswordCmd(a),
		newProjectsCmd(a),
		newTasksCmd(a),
		newBoardCmd(a),
		newWatchCmd(a),
		newServeCmd(a),
		newStatsCmd(a),
		newNotificationsCmd(a),
		newConfigCmd(a),
	)
	return root
}

// skipSetup is true for commands that must work without a loadable config.
func skipSetup(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations["setup"] == "skip" {
			return true
		}
	}
	return false
}

// Execute runs the CLI with the process streams.
func Execute(version string) error {
	root := NewRootCmd(os.Stdin, os.Stdout, os.Stderr)
	root.Version = version
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", apiclient.UserMessage(err))
		return err
	}
	return nil
}
