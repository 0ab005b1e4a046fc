package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"gm-dapp/internal/model"
)

func newRegisterCommand(a *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register the wallet as a messaging identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := a.loadWallet()
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd.Context())
			defer cancel()

			signer := &promptSigner{wallet: w, in: a.in, out: cmd.OutOrStdout(), assumeYes: yes}
			sess, err := a.session(ctx, signer, false)
			if err != nil {
				return err
			}
			defer sess.Close()

			id, err := sess.Connect(ctx, w.Address())
			if err != nil {
				return fmt.Errorf("register: %w", err)
			}
			if err := a.saveState(id); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Registered %s\n  identity key: %s\n", id.Account, id.IdentityKey)
			fmt.Fprintf(out, "  subscribed:   %t\n", sess.SubscriptionState().Subscribed)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "sign without asking")
	return cmd
}

func newStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show identity, subscription and subscriber record",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd.Context())
			defer cancel()

			sess, _, err := a.openSession(ctx, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer sess.Close()

			id := sess.Identity()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "account:      %s\n", id.Account)
			fmt.Fprintf(out, "identity key: %s\n", id.IdentityKey)
			fmt.Fprintf(out, "subscribed:   %t\n", sess.SubscriptionState().Subscribed)

			if rec, err := a.subscriberRecord(ctx, id.Account); err != nil {
				fmt.Fprintf(out, "subscriber:   unavailable (%v)\n", err)
			} else if rec == nil {
				fmt.Fprintln(out, "subscriber:   none")
			} else {
				fmt.Fprintf(out, "subscriber:   welcomed=%t\n", rec.HasBeenWelcomed)
			}
			return nil
		},
	}
}

func (a *app) subscriberRecord(ctx context.Context, account string) (*model.Subscriber, error) {
	_, backend, err := a.clients()
	if err != nil {
		return nil, err
	}
	return backend.Subscriber(ctx, account)
}
