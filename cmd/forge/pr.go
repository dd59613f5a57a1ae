package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Oudwins/taskforge/internals/cliutil"
	"github.com/Oudwins/taskforge/internals/schemas"
)

func newPRCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pr",
		Short: "Push branches and track pull requests",
	}

	var pushReq schemas.PushRequest
	push := &cobra.Command{
		Use:   "push <workspace-id>",
		Short: "Push the workspace branch to origin",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			result, err := a.client.Push(cmd.Context(), args[0], pushReq)
			if err != nil {
				return err
			}
			if a.asJSON {
				return a.printer.Any(result)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pushed %s to %s\n", result.BranchName, result.RemoteURL)
			return nil
		}),
	}
	push.Flags().StringVar(&pushReq.RepoID, "repo", "", "repo id")
	push.Flags().BoolVar(&pushReq.Force, "force", false, "overwrite the remote branch")
	_ = push.MarkFlagRequired("repo")
	cmd.AddCommand(push)

	var createReq schemas.CreatePRRequest
	var open bool
	create := &cobra.Command{
		Use:   "create <workspace-id>",
		Short: "Open a pull request for a pushed workspace branch",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			result, err := a.client.CreatePR(cmd.Context(), args[0], createReq)
			if err != nil {
				return err
			}
			if a.asJSON {
				if err := a.printer.Any(result); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", cliutil.Link(fmt.Sprintf("PR #%d", result.PRNumber), result.PRURL))
			}
			if open {
				return cliutil.OpenURL(result.PRURL)
			}
			return nil
		}),
	}
	create.Flags().StringVar(&createReq.RepoID, "repo", "", "repo id")
	create.Flags().StringVar(&createReq.Title, "title", "", "pull request title")
	create.Flags().StringVar(&createReq.Body, "body", "", "pull request body")
	create.Flags().StringVar(&createReq.TargetBranch, "target", "", "target branch (default: repo default)")
	create.Flags().BoolVar(&createReq.Draft, "draft", false, "open as draft")
	create.Flags().BoolVar(&open, "open", false, "open the pull request in a browser")
	_ = create.MarkFlagRequired("repo")
	_ = create.MarkFlagRequired("title")
	cmd.AddCommand(create)

	var statusRepo string
	status := &cobra.Command{
		Use:   "status <workspace-id>",
		Short: "Show the cached pull request state",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			s, err := a.client.PRStatus(cmd.Context(), args[0], statusRepo)
			if err != nil {
				return err
			}
			return a.printer.PRStatus(s)
		}),
	}
	status.Flags().StringVar(&statusRepo, "repo", "", "repo id")
	_ = status.MarkFlagRequired("repo")
	cmd.AddCommand(status)

	var refreshRepo string
	refresh := &cobra.Command{
		Use:   "refresh <workspace-id>",
		Short: "Ask the provider for the pull request state",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			result, err := a.client.RefreshPR(cmd.Context(), args[0], refreshRepo)
			if err != nil {
				return err
			}
			if a.asJSON {
				return a.printer.Any(result)
			}
			out := cmd.OutOrStdout()
			if !result.StatusChanged {
				fmt.Fprintf(out, "PR #%d is still %s\n", result.PRNumber, result.CurrentStatus)
				return nil
			}
			fmt.Fprintf(out, "PR #%d: %s -> %s\n", result.PRNumber, result.PreviousStatus, result.CurrentStatus)
			if result.TaskUpdated {
				fmt.Fprintln(out, "task moved to done")
			}
			return nil
		}),
	}
	refresh.Flags().StringVar(&refreshRepo, "repo", "", "repo id")
	_ = refresh.MarkFlagRequired("repo")
	cmd.AddCommand(refresh)

	var mergeReq schemas.DirectMergeRequest
	merge := &cobra.Command{
		Use:   "merge <workspace-id>",
		Short: "Record a merge done outside a pull request",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			record, err := a.client.RecordDirectMerge(cmd.Context(), args[0], mergeReq)
			if err != nil {
				return err
			}
			return a.printer.Any(record)
		}),
	}
	merge.Flags().StringVar(&mergeReq.RepoID, "repo", "", "repo id")
	merge.Flags().StringVar(&mergeReq.CommitHash, "commit", "", "merge commit hash")
	merge.Flags().StringVar(&mergeReq.TargetBranch, "target", "", "branch merged into (default: repo default)")
	_ = merge.MarkFlagRequired("repo")
	_ = merge.MarkFlagRequired("commit")
	cmd.AddCommand(merge)

	cmd.AddCommand(&cobra.Command{
		Use:   "merges <workspace-id>",
		Short: "List merge records for a workspace",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			list, err := a.client.ListMerges(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printer.Merges(list)
		}),
	})
	return cmd
}
