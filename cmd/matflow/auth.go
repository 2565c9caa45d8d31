package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/Veraticus/matflow/internal/api"
	"github.com/Veraticus/matflow/internal/cli"
	"github.com/Veraticus/matflow/internal/common"
	"github.com/spf13/cobra"
)

func loginCmd() *cobra.Command {
	var (
		token    string
		noVerify bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Save an API token for the configured backend",
		Long: `Save a bearer token for the configured backend in the local database.

Without --token the token is read from standard input. The token is checked
against the backend before it is saved unless --no-verify is given.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, release := withInterrupts(cmd.Context(), "")
			defer release()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if token == "" {
				fmt.Fprint(cmd.OutOrStdout(), cli.FormatPrompt("API token"))
				token, err = cli.NewNonBlockingReader(os.Stdin).ReadLine(ctx)
				if err != nil {
					return err
				}
			}
			if token == "" {
				return common.NewUserError("no token given", common.ErrNoToken)
			}

			if !noVerify {
				client, err := api.NewClient(cfg.BaseURL, api.StaticToken(token))
				if err != nil {
					return err
				}
				if _, err := client.ListUniverses(ctx); err != nil {
					return common.NewUserError("the backend did not accept the token", err)
				}
			}

			store, err := initStorage(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := store.Close(); err != nil {
					slog.Warn("Failed to close database", "error", err)
				}
			}()

			if err := store.SaveToken(ctx, cfg.BaseURL, token); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Logged in to "+cfg.BaseURL))
			return nil
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "bearer token (read from stdin when omitted)")
	cmd.Flags().BoolVar(&noVerify, "no-verify", false, "save the token without checking it")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved API token for the configured backend",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := initStorage(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := store.Close(); err != nil {
					slog.Warn("Failed to close database", "error", err)
				}
			}()

			deleted, err := store.DeleteToken(cmd.Context(), cfg.BaseURL)
			if err != nil {
				return err
			}
			if !deleted {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("No saved token for "+cfg.BaseURL))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Logged out of "+cfg.BaseURL))
			return nil
		},
	}
}
