package main

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func newWatchCommand(a *app) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream subscriber record changes from gm-server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Offline {
				return errors.New("watch needs gm-server, drop --offline")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			openCtx, cancel := a.context(ctx)
			sess, _, err := a.openSession(openCtx, cmd.OutOrStdout())
			cancel()
			if err != nil {
				return err
			}
			defer sess.Close()

			watcher, err := a.api.WatchUpdates(ctx)
			if err != nil {
				return err
			}
			defer watcher.Close()

			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			out := cmd.OutOrStdout()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if err := watcher.Ping(); err != nil {
						return fmt.Errorf("watch: %w", err)
					}
				case ev, ok := <-watcher.Events():
					if !ok {
						return watcher.Err()
					}
					if ev.Type != "subscriber" {
						continue
					}
					if ev.Subscriber != nil {
						fmt.Fprintf(out, "%s %s welcomed=%t\n", ev.Event, ev.Account, ev.Subscriber.HasBeenWelcomed)
					} else {
						fmt.Fprintf(out, "%s %s\n", ev.Event, ev.Account)
					}
				}
			}
		},
	}
	cmd.Flags().DurationVar(&interval, "ping", 30*time.Second, "keepalive ping interval")
	return cmd
}
