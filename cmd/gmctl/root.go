package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"gm-dapp/internal/config"
	"gm-dapp/internal/logger"
)

func newRootCommand(a *app) *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:   "gmctl",
		Short: "Register, subscribe and exchange gm notifications",
		Long: `gmctl drives a wallet through the gm dApp lifecycle: register a messaging
identity, subscribe to the dApp, send gm notifications and read the inbox.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("load .env: %w", err)
			}
			if configFile != "" {
				a.v.SetConfigFile(configFile)
				if err := a.v.ReadInConfig(); err != nil {
					return fmt.Errorf("read config: %w", err)
				}
			}
			cfg, err := config.DecodeClient(a.v)
			if err != nil {
				return err
			}
			a.cfg = cfg
			return logger.Init(cfg.LogLevel, true)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.persistOffline()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (yaml)")
	flags.String("project-id", "", "WalletConnect project id")
	flags.String("server-url", "", "gm-server base URL")
	flags.String("relay-url", "", "notification service URL")
	flags.String("chain", "", "chain used to qualify wallet addresses")
	flags.String("state-file", "", "where the registered identity is cached")
	flags.Duration("timeout", 0, "request timeout")
	flags.Bool("offline", false, "use the in-process notification service")
	flags.String("log-level", "", "log level")
	flags.String("keyring-dir", "", "directory of the file keyring backend")
	flags.String("keyring-backend", "", "keyring backend (file, keychain, secret-service, wincred, pass)")

	for key, flag := range map[string]string{
		"project_id":      "project-id",
		"server_url":      "server-url",
		"relay_url":       "relay-url",
		"chain":           "chain",
		"state_file":      "state-file",
		"timeout":         "timeout",
		"offline":         "offline",
		"log_level":       "log-level",
		"keyring_dir":     "keyring-dir",
		"keyring_backend": "keyring-backend",
	} {
		_ = a.v.BindPFlag(key, flags.Lookup(flag))
	}

	root.AddCommand(newWalletCommand(a))
	root.AddCommand(newRegisterCommand(a))
	root.AddCommand(newStatusCommand(a))
	root.AddCommand(newSubscribeCommand(a))
	root.AddCommand(newUnsubscribeCommand(a))
	root.AddCommand(newSendCommand(a))
	root.AddCommand(newInboxCommand(a))
	root.AddCommand(newPrefsCommand(a))
	root.AddCommand(newWatchCommand(a))

	return root
}
