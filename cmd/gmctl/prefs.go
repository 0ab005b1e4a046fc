package main

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"gm-dapp/internal/model"
)

func newPrefsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Read or replace notification preferences",
	}
	cmd.AddCommand(newPrefsGetCommand(a))
	cmd.AddCommand(newPrefsSetCommand(a))
	return cmd
}

func newPrefsGetCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "List scopes and whether they are enabled",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd.Context())
			defer cancel()

			sess, _, err := a.openSession(ctx, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer sess.Close()

			scopes, err := sess.Scopes(ctx)
			if err != nil {
				return fmt.Errorf("prefs: %w", err)
			}
			keys := make([]string, 0, len(scopes))
			for k := range scopes {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				state := "off"
				if scopes[k].Enabled {
					state = "on "
				}
				fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s  %s\n", state, k, scopes[k].Description)
			}
			return nil
		},
	}
}

func newPrefsSetCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set [scope...]",
		Short: "Enable exactly the given scopes and disable the rest",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd.Context())
			defer cancel()

			sess, _, err := a.openSession(ctx, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer sess.Close()

			enabled := make([]string, 0, len(args))
			for _, arg := range args {
				enabled = append(enabled, scopeKey(arg))
			}
			if !sess.UpdateScopes(ctx, enabled) {
				return errors.New("preferences were not updated")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Preferences updated")
			return nil
		},
	}
}

func scopeKey(name string) string {
	switch name {
	case "hourly":
		return model.TypeHourly
	case "manual":
		return model.TypeManual
	}
	return name
}
