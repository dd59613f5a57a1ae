package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Oudwins/taskforge/internals/schemas"
)

func absPath(path string) (string, error) {
	if path == "" {
		return os.Getwd()
	}
	return filepath.Abs(path)
}

// parseRepoFlags turns "repo-id" or "repo-id@base-branch" into requests.
func parseRepoFlags(values []string) ([]schemas.WorkspaceRepoRequest, error) {
	repos := make([]schemas.WorkspaceRepoRequest, 0, len(values))
	for _, value := range values {
		id, base, _ := strings.Cut(value, "@")
		if strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("invalid --repo %q", value)
		}
		repos = append(repos, schemas.WorkspaceRepoRequest{RepoID: id, BaseBranch: base})
	}
	return repos, nil
}

func newWorkspaceCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "workspace",
		Aliases: []string{"ws"},
		Short:   "Start and inspect workspaces",
	}

	var req schemas.WorkspaceStartRequest
	var repoFlags []string
	start := &cobra.Command{
		Use:   "start",
		Short: "Start a workspace for a task",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			repos, err := parseRepoFlags(repoFlags)
			if err != nil {
				return err
			}
			req.Repos = repos
			result, err := a.client.StartWorkspace(cmd.Context(), req)
			if err != nil {
				return err
			}
			return a.printer.Started(result)
		}),
	}
	start.Flags().StringVar(&req.TaskID, "task", "", "task id")
	start.Flags().StringVar(&req.Executor, "executor", "", "CLAUDE_CODE, CODEX, GEMINI or ORCHESTRATOR_MANAGED")
	start.Flags().StringVar(&req.Variant, "variant", "", "executor variant")
	start.Flags().StringVar(&req.Mode, "mode", "", "worktree or branch (default depends on executor)")
	start.Flags().StringVar(&req.AgentName, "agent", "", "agent name recorded on the task")
	start.Flags().StringArrayVar(&repoFlags, "repo", nil, "repo id, optionally repo-id@base-branch (repeatable)")
	_ = start.MarkFlagRequired("task")
	_ = start.MarkFlagRequired("executor")
	_ = start.MarkFlagRequired("repo")
	cmd.AddCommand(start)

	cmd.AddCommand(&cobra.Command{
		Use:     "show <workspace-id>",
		Aliases: []string{"get"},
		Short:   "Show a workspace with its repos and sessions",
		Args:    cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			details, err := a.client.GetWorkspace(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printer.Workspace(details)
		}),
	})

	var failed bool
	complete := &cobra.Command{
		Use:   "complete <session-id>",
		Short: "Mark an executor session finished",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			status := "completed"
			if failed {
				status = "failed"
			}
			session, err := a.client.CompleteSession(cmd.Context(), args[0], status)
			if err != nil {
				return err
			}
			return a.printer.Any(session)
		}),
	}
	complete.Flags().BoolVar(&failed, "failed", false, "record the session as failed")
	cmd.AddCommand(complete)

	cmd.AddCommand(&cobra.Command{
		Use:   "heartbeat <session-id>",
		Short: "Report that a session is still working",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			session, err := a.client.Heartbeat(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printer.Any(session)
		}),
	})

	var path, workspaceID string
	contextCmd := &cobra.Command{
		Use:   "context",
		Short: "Resolve the project, task and workspace for a checkout",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			if path == "" {
				path = "."
			}
			abs, err := absPath(path)
			if err != nil {
				return err
			}
			info, err := a.client.ContainerContext(cmd.Context(), abs, workspaceID)
			if err != nil {
				return err
			}
			return a.printer.Any(info)
		}),
	}
	contextCmd.Flags().StringVar(&path, "path", "", "path inside a workspace (default: current directory)")
	contextCmd.Flags().StringVar(&workspaceID, "workspace", "", "workspace id, when the path is ambiguous")
	cmd.AddCommand(contextCmd)
	return cmd
}
