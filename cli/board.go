package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"taskflow/api"
	"taskflow/apiclient"
	"taskflow/board"
	"taskflow/domain"
)

func newBoardCmd(a *app) *cobra.Command {
	var projectID int
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Show the Kanban board",
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			b, _, err := a.loadBoard(cmd.Context(), projectID)
			if err != nil {
				return err
			}
			defer b.Close()
			return a.printBoard(b.Snapshot())
		}),
	}
	cmd.PersistentFlags().IntVar(&projectID, "project", 0, "only tasks of this project")

	var index int
	move := &cobra.Command{
		Use:   "move <task-id> <status>",
		Short: "Drag a task into another column",
		Args:  cobra.ExactArgs(2),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			return a.moveTask(cmd.Context(), projectID, args, func(ctx context.Context, b *board.Board, id int, st domain.Status) error {
				return b.Move(ctx, id, st, index)
			})
		}),
	}
	move.Flags().IntVar(&index, "index", 0, "position in the destination column, negative appends")

	status := &cobra.Command{
		Use:   "status <task-id> <status>",
		Short: "Change the status of a task",
		Args:  cobra.ExactArgs(2),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			return a.moveTask(cmd.Context(), projectID, args, func(ctx context.Context, b *board.Board, id int, st domain.Status) error {
				return b.ChangeStatus(ctx, id, st)
			})
		}),
	}

	cmd.AddCommand(move, status)
	return cmd
}

// loadBoard fetches the visible tasks into a fresh board. The returned
// pointer receives the last alert raised by the board.
func (a *app) loadBoard(ctx context.Context, projectID int) (*board.Board, *string, error) {
	u, err := a.currentUser(ctx)
	if err != nil {
		return nil, nil, err
	}
	tasks, err := a.client.Tasks.List(ctx, apiclient.TaskFilter{ProjectID: projectID})
	if err != nil {
		return nil, nil, err
	}
	var lastAlert string
	b := board.New(u, a.client.Tasks,
		board.WithLogger(a.logger),
		board.WithAlerter(board.AlertFunc(func(msg string) { lastAlert = msg })),
	)
	b.Replace(tasks)
	return b, &lastAlert, nil
}

func (a *app) moveTask(ctx context.Context, projectID int, args []string, move func(context.Context, *board.Board, int, domain.Status) error) error {
	id, err := parseID(args[0], "task")
	if err != nil {
		return err
	}
	st, err := domain.ParseStatus(args[1])
	if err != nil {
		return err
	}
	b, alert, err := a.loadBoard(ctx, projectID)
	if err != nil {
		return err
	}
	defer b.Close()

	if err := move(ctx, b, id, st); err != nil {
		if errors.Is(err, board.ErrTaskNotFound) {
			return fmt.Errorf("task #%d is not on your board", id)
		}
		if *alert != "" {
			a.logger.WithError(err).Debug("move failed")
			return errors.New(*alert)
		}
		return err
	}
	if !a.jsonOut {
		fmt.Fprintf(a.out, "Moved task #%d to %s\n\n", id, st.Title())
	}
	return a.printBoard(b.Snapshot())
}

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Keep the board in sync and print it on every change",
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			l, err := a.newLive(ctx,
				func(msg string) { fmt.Fprintln(a.errOut, msg) },
				func(n domain.Notification) { fmt.Fprintf(a.out, "[%s] %s\n", n.Title, n.Message) },
			)
			if err != nil {
				return err
			}
			defer a.stopLive(l)

			changes, unsubscribe := l.board.Subscribe()
			defer unsubscribe()
			a.startLive(l)
			fmt.Fprintf(a.errOut, "Watching the board of %s every %s, press Ctrl+C to stop\n", l.user.Username, a.cfg.Sync.Interval)
			for {
				select {
				case <-ctx.Done():
					return nil
				case s, ok := <-changes:
					if !ok {
						return nil
					}
					if !a.jsonOut {
						fmt.Fprintf(a.out, "\n-- %s --\n", time.Now().Format("15:04:05"))
					}
					if err := a.printBoard(s); err != nil {
						return err
					}
				}
			}
		}),
	}
}

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the live board, stats and notifications over HTTP",
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			l, err := a.newLive(ctx, nil, nil)
			if err != nil {
				return err
			}
			defer a.stopLive(l)
			a.startLive(l)

			if addr == "" {
				addr = a.cfg.Serve.Addr
			}
			srv := api.New(l.board, l.center, api.Options{Token: a.cfg.Serve.Token, Logger: a.logger})
			fmt.Fprintf(a.errOut, "Serving the board of %s on http://%s\n", l.user.Username, addr)
			return srv.Run(ctx, addr)
		}),
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default serve.addr)")
	return cmd
}
