package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"gm-dapp/internal/lifecycle"
	"gm-dapp/internal/model"
)

func newSendCommand(a *app) *cobra.Command {
	var (
		to    string
		title string
		body  string
		kind  string
		url   string
		icon  string
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a gm notification (to yourself by default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd.Context())
			defer cancel()

			sess, _, err := a.openSession(ctx, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer sess.Close()

			target := to
			if target == "" {
				target = sess.Identity().Account
			}
			req := model.TestNotification(target)
			if title != "" {
				req.Notification.Title = title
			}
			if body != "" {
				req.Notification.Body = body
			}
			if url != "" {
				req.Notification.URL = url
			}
			if icon != "" {
				req.Notification.Icon = icon
			}
			switch kind {
			case "", "manual":
			case "hourly":
				req.Notification.Type = model.TypeHourly
				req.FriendlyType = "Hourly gm"
			default:
				req.Notification.Type = kind
				req.FriendlyType = ""
			}

			res, err := sess.Send(ctx, req)
			if err != nil && !errors.Is(err, lifecycle.ErrNotSubscribed) {
				return fmt.Errorf("send: %w", err)
			}
			out := cmd.OutOrStdout()
			if res.Success {
				fmt.Fprintf(out, "Sent %q to %s\n", req.Notification.Title, target)
				return nil
			}
			fmt.Fprintf(out, "Not delivered: %s\n", res.Message)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&to, "to", "", "target account or address")
	flags.StringVar(&title, "title", "", "notification title")
	flags.StringVar(&body, "body", "", "notification body")
	flags.StringVar(&kind, "type", "manual", "notification type: manual, hourly or a raw type id")
	flags.StringVar(&url, "url", "", "link opened from the notification")
	flags.StringVar(&icon, "icon", "", "icon URL")
	return cmd
}
