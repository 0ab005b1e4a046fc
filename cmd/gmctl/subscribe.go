package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSubscribeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "subscribe",
		Short: "Subscribe to gm notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd.Context())
			defer cancel()

			sess, _, err := a.openSession(ctx, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer sess.Close()

			if sess.SubscriptionState().Subscribed {
				fmt.Fprintln(cmd.OutOrStdout(), "Already subscribed")
				return nil
			}
			if err := sess.Subscribe(ctx); err != nil {
				return fmt.Errorf("subscribe: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Subscribed %s\n", sess.Identity().Account)
			return nil
		},
	}
}

func newUnsubscribeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "unsubscribe",
		Short: "Remove the gm subscription",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd.Context())
			defer cancel()

			sess, _, err := a.openSession(ctx, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer sess.Close()

			if !sess.SubscriptionState().Subscribed {
				fmt.Fprintln(cmd.OutOrStdout(), "Not subscribed")
				return nil
			}
			if err := sess.Unsubscribe(ctx); err != nil {
				return fmt.Errorf("unsubscribe: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Unsubscribed %s\n", sess.Identity().Account)
			return nil
		},
	}
}
