package main

import (
	"github.com/spf13/cobra"

	"github.com/Oudwins/taskforge/internals/cliutil"
	"github.com/Oudwins/taskforge/internals/schemas"
	"github.com/Oudwins/taskforge/internals/store"
)

func newProjectCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "create <name>",
		Short: "Create a project",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			project, err := a.client.CreateProject(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printer.Projects([]store.Project{*project})
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List projects",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			list, err := a.client.ListProjects(cmd.Context())
			if err != nil {
				return err
			}
			return a.printer.Projects(list)
		}),
	})
	return cmd
}

func newRepoCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repo",
		Short: "Manage repositories registered with a project",
	}

	var projectID string
	var req schemas.RepoCreateRequest
	add := &cobra.Command{
		Use:   "add [path]",
		Short: "Register a git repository (defaults to the current one)",
		Args:  cobra.MaximumNArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				req.Path = args[0]
			} else {
				root, err := cliutil.RepoRootFromCwd(cmd.Context())
				if err != nil {
					return err
				}
				req.Path = root
			}
			repo, err := a.client.RegisterRepo(cmd.Context(), projectID, req)
			if err != nil {
				return err
			}
			return a.printer.Repos([]store.Repo{*repo})
		}),
	}
	add.Flags().StringVar(&projectID, "project", "", "project id")
	add.Flags().StringVar(&req.Name, "name", "", "repo name (default: directory name)")
	add.Flags().StringVar(&req.RemoteURL, "remote", "", "remote URL (default: origin)")
	add.Flags().StringVar(&req.DefaultTargetBranch, "target", "", "default target branch (default: main)")
	_ = add.MarkFlagRequired("project")
	cmd.AddCommand(add)

	var listProject string
	list := &cobra.Command{
		Use:   "list",
		Short: "List a project's repositories",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			repos, err := a.client.ListRepos(cmd.Context(), listProject)
			if err != nil {
				return err
			}
			return a.printer.Repos(repos)
		}),
	}
	list.Flags().StringVar(&listProject, "project", "", "project id")
	_ = list.MarkFlagRequired("project")
	cmd.AddCommand(list)
	return cmd
}
