package main

import (
	"github.com/spf13/cobra"

	"github.com/Oudwins/taskforge/internals/cliutil"
	"github.com/Oudwins/taskforge/internals/version"
	"github.com/Oudwins/taskforge/sdk"
)

// app is shared by every subcommand. It is filled in by the root
// PersistentPreRunE.
type app struct {
	baseURL     string
	asJSON      bool
	noAutostart bool

	client  *sdk.Client
	printer *cliutil.Printer
}

// connect makes sure a daemon of the same version is answering.
func (a *app) connect(cmd *cobra.Command) error {
	if a.noAutostart {
		return nil
	}
	return cliutil.EnsureDaemonRunning(cmd.Context(), a.client)
}

// run wraps a RunE so the daemon is reachable before fn runs.
func (a *app) run(fn func(cmd *cobra.Command, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := a.connect(cmd); err != nil {
			return err
		}
		return fn(cmd, args)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:           "forge",
		Short:         "Drive tasks, workspaces and pull requests through forged",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Version(),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var opts []sdk.Option
			if a.baseURL != "" {
				opts = append(opts, sdk.WithBaseURL(a.baseURL))
				a.noAutostart = true
			}
			a.client = sdk.NewClient(opts...)
			a.printer = cliutil.NewPrinter(cmd.OutOrStdout(), a.asJSON)
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&a.baseURL, "url", "", "forged base URL (disables daemon autostart)")
	cmd.PersistentFlags().BoolVar(&a.asJSON, "json", false, "print JSON instead of tables")
	cmd.PersistentFlags().BoolVar(&a.noAutostart, "no-autostart", false, "do not start forged when it is not running")
	cmd.SetVersionTemplate("{{.Version}}\n")

	cmd.AddCommand(newDaemonCmd(a))
	cmd.AddCommand(newProjectCmd(a))
	cmd.AddCommand(newRepoCmd(a))
	cmd.AddCommand(newTaskCmd(a))
	cmd.AddCommand(newWorkspaceCmd(a))
	cmd.AddCommand(newPRCmd(a))
	cmd.AddCommand(newWebhookCmd(a))
	cmd.AddCommand(newAuthCmd())
	return cmd
}
