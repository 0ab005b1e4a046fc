package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"gm-dapp/internal/model"
)

func newInboxCommand(a *app) *cobra.Command {
	var (
		pages    int
		pageSize int
		all      bool
		deleteID int64
		markRead []int64
	)

	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "List received notifications, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd.Context())
			defer cancel()

			sess, _, err := a.openSession(ctx, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer sess.Close()
			out := cmd.OutOrStdout()

			if deleteID > 0 {
				if err := sess.DeleteMessage(ctx, deleteID); err != nil {
					return fmt.Errorf("delete: %w", err)
				}
				fmt.Fprintf(out, "Deleted message %d\n", deleteID)
			}
			if len(markRead) > 0 {
				if err := sess.MarkRead(ctx, markRead); err != nil {
					return fmt.Errorf("mark read: %w", err)
				}
			}

			pager := sess.Pager(pageSize)
			for i := 0; (all || i < pages) && pager.HasMore(); i++ {
				if _, err := pager.Next(ctx); err != nil {
					return fmt.Errorf("inbox: %w", err)
				}
			}

			items := pager.Items()
			if len(items) == 0 {
				fmt.Fprintln(out, "No messages")
				return nil
			}
			for _, m := range items {
				printMessage(out, m)
			}
			if pager.HasMore() {
				fmt.Fprintln(out, "... more messages, use --all or --pages")
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&pages, "pages", 1, "number of pages to load")
	flags.IntVar(&pageSize, "page-size", 0, "messages per page (default 5)")
	flags.BoolVar(&all, "all", false, "load every page")
	flags.Int64Var(&deleteID, "delete", 0, "delete the message with this id first")
	flags.Int64SliceVar(&markRead, "read", nil, "mark these message ids as read first")
	return cmd
}

func printMessage(out io.Writer, m model.NotificationMessage) {
	marker := "*"
	if m.Read {
		marker = " "
	}
	sent := time.UnixMilli(m.SentAt).Format("2006-01-02 15:04")
	fmt.Fprintf(out, "%s %-5s %s  %s: %s\n", marker, strconv.FormatInt(m.ID, 10), sent, m.Title, m.Body)
}
