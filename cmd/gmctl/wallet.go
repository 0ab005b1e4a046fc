package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"gm-dapp/internal/model"
	"gm-dapp/internal/wallet"
)

func newWalletCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Manage the local signing wallet",
	}
	cmd.AddCommand(newWalletInitCommand(a))
	cmd.AddCommand(newWalletShowCommand(a))
	return cmd
}

func newWalletInitCommand(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Generate a wallet and store its seed in the keyring",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.walletStore()
			if err != nil {
				return err
			}
			if _, err := store.Load(); err == nil && !force {
				return errors.New("wallet already exists, use --force to replace it")
			} else if err != nil && !errors.Is(err, wallet.ErrNoWallet) {
				return err
			}

			w, err := wallet.Generate()
			if err != nil {
				return err
			}
			if err := store.Save(w); err != nil {
				return err
			}
			account, err := model.QualifyAccount(a.cfg.Chain, w.Address())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wallet created\n  account:    %s\n  public key: %s\n", account, w.PublicKey())
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "replace an existing wallet")
	return cmd
}

func newWalletShowCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the wallet account and public key",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := a.loadWallet()
			if err != nil {
				return err
			}
			account, err := model.QualifyAccount(a.cfg.Chain, w.Address())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "account:    %s\npublic key: %s\n", account, w.PublicKey())
			return nil
		},
	}
}
