package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"taskflow/domain"
	"taskflow/notify"
)

func newNotificationsCmd(a *app) *cobra.Command {
	load := func(cmd *cobra.Command) (*notify.Center, error) {
		if _, err := a.currentUser(cmd.Context()); err != nil {
			return nil, err
		}
		c := notify.New(a.client.Users, notify.WithLogger(a.logger))
		if err := c.Fetch(cmd.Context()); err != nil {
			return nil, err
		}
		return c, nil
	}

	cmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"notes"},
		Short:   "List notifications",
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			c, err := load(cmd)
			if err != nil {
				return err
			}
			return a.printNotifications(c.List(), c.UnreadCount())
		}),
	}

	read := &cobra.Command{
		Use:   "read <id>",
		Short: "Mark a notification as read",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			id := domain.NotificationID(args[0])
			c, err := load(cmd)
			if err != nil {
				return err
			}
			if err := c.MarkRead(cmd.Context(), id); err != nil {
				if errors.Is(err, notify.ErrUnknownNotification) {
					return fmt.Errorf("notification %s not found", args[0])
				}
				return err
			}
			return a.printNotifications(c.List(), c.UnreadCount())
		}),
	}

	readAll := &cobra.Command{
		Use:   "read-all",
		Short: "Mark every notification as read",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			c, err := load(cmd)
			if err != nil {
				return err
			}
			if err := c.MarkAllRead(cmd.Context()); err != nil {
				return err
			}
			return a.printNotifications(c.List(), c.UnreadCount())
		}),
	}

	cmd.AddCommand(read, readAll)
	return cmd
}
