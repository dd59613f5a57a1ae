package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Oudwins/taskforge/internals/auth"
)

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage provider credentials",
	}

	var token string
	github := &cobra.Command{
		Use:   "github",
		Short: "Store a GitHub token for forged",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(token) == "" {
				return fmt.Errorf("--token is required")
			}
			if err := auth.WriteGitHubAuth(auth.GitHubAuth{AccessToken: token, TokenType: "bearer"}); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "GitHub token saved; restart forged to pick it up")
			return nil
		},
	}
	github.Flags().StringVar(&token, "token", "", "GitHub personal access token")
	cmd.AddCommand(github)

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show whether a GitHub token is configured",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, source, err := auth.GitHubToken()
			if err != nil {
				return err
			}
			switch source {
			case auth.SourceEnv:
				fmt.Fprintln(cmd.OutOrStdout(), "GitHub: configured (GITHUB_TOKEN)")
			case auth.SourceFile:
				path, _ := auth.Path()
				fmt.Fprintf(cmd.OutOrStdout(), "GitHub: configured (%s)\n", path)
			default:
				fmt.Fprintln(cmd.OutOrStdout(), "GitHub: not configured")
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "logout",
		Short: "Forget the stored GitHub token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := auth.DeleteGitHubAuth(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "GitHub token removed")
			return nil
		},
	})
	return cmd
}
