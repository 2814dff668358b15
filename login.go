package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/drivestash/drivestash/internal/credstore"
	"github.com/drivestash/drivestash/internal/drive"
)

func newLoginCmd() *cobra.Command {
	var (
		flagClientID     string
		flagClientSecret string
		flagAPIKey       string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authorize drivestash against Google Drive",
		Long: `Store the OAuth client identity and run the interactive authorization-code
exchange. The obtained refresh token is persisted so subsequent runs renew
access without user interaction.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := buildLogger()
			store := credstore.New(resolvedCfg.ResolveCredentialsPath())

			// Persist the client identity first so EnsureAccessToken sees it.
			updates := map[string]string{}
			if flagClientID != "" {
				updates[credstore.KeyClientID] = flagClientID
			}

			if flagClientSecret != "" {
				updates[credstore.KeyClientSecret] = flagClientSecret
			}

			if flagAPIKey != "" {
				updates[credstore.KeyAPIKey] = flagAPIKey
			}

			if len(updates) > 0 {
				if err := store.SetAll(updates); err != nil {
					return err
				}
			}

			auth := drive.NewAuthenticator(store, promptForCode, defaultHTTPClient(), logger)

			if _, err := auth.EnsureAccessToken(cmd.Context()); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Logged in. Credentials stored at %s\n", store.Path())

			return nil
		},
	}

	cmd.Flags().StringVar(&flagClientID, "client-id", "", "OAuth client identifier")
	cmd.Flags().StringVar(&flagClientSecret, "client-secret", "", "OAuth client secret")
	cmd.Flags().StringVar(&flagAPIKey, "api-key", "", "optional API key")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Discard persisted tokens",
		Long:  "Remove the refresh and access tokens from the credential file.\nThe client identity is kept so login can run again without flags.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store := credstore.New(resolvedCfg.ResolveCredentialsPath())

			// Empty values remove the keys from the file.
			if err := store.SetAll(map[string]string{
				credstore.KeyRefreshToken: "",
				credstore.KeyAccessToken:  "",
				credstore.KeyTokenKind:    "",
			}); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")

			return nil
		},
	}
}
