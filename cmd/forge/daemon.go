package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Oudwins/taskforge/internals/cliutil"
	"github.com/Oudwins/taskforge/internals/version"
)

func newDaemonCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the forged daemon",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show whether forged is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			health, err := a.client.Health(cmd.Context())
			if err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "forged is not running (%v)\n", err)
				return nil
			}
			if a.asJSON {
				return a.printer.Any(health)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "forged %s at %s: %s (cli %s)\n", health.Version, a.client.BaseURL(), health.Status, version.Version())
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Start forged if it is not running",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cliutil.EnsureDaemonRunning(cmd.Context(), a.client); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "forged is running")
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "stop",
		Short: "Ask forged to shut down",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client.Shutdown(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "forged is shutting down")
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "sweep",
		Short: "Reclaim idle worktrees now",
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			result, err := a.client.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			if a.asJSON {
				return a.printer.Any(result)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reclaimed %d workspace(s)\n", len(result.Reclaimed))
			for _, id := range result.Reclaimed {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", id)
			}
			return nil
		}),
	})
	return cmd
}
