package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Oudwins/taskforge/internals/schemas"
	"github.com/Oudwins/taskforge/sdk"
)

// changed returns a pointer to value only when the flag was set, so an
// explicit empty value still reaches the server.
func changed(cmd *cobra.Command, name string, value string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &value
}

func newTaskCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "task",
		Aliases: []string{"tasks"},
		Short:   "Manage tasks",
	}
	cmd.AddCommand(
		newTaskCreateCmd(a),
		newTaskListCmd(a),
		newTaskSearchCmd(a),
		newTaskShowCmd(a),
		newTaskUpdateCmd(a),
		newTaskAssignCmd(a),
		newTaskBulkStatusCmd(a),
		newTaskDeleteCmd(a),
		newTaskHistoryCmd(a),
		newTaskRelationshipsCmd(a),
		newTaskCommentCmd(a),
		newTaskActivityCmd(a),
		newTaskWorkspacesCmd(a),
	)
	return cmd
}

func newTaskCreateCmd(a *app) *cobra.Command {
	var req schemas.TaskCreateRequest
	var description, assignee, parent string
	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Create a task in todo",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			req.Title = args[0]
			req.Description = changed(cmd, "description", description)
			req.Assignee = changed(cmd, "assignee", assignee)
			req.ParentWorkspaceID = changed(cmd, "parent-workspace", parent)
			task, err := a.client.CreateTask(cmd.Context(), req)
			if err != nil {
				return err
			}
			return a.printer.Task(task)
		}),
	}
	cmd.Flags().StringVar(&req.ProjectID, "project", "", "project id")
	cmd.Flags().StringVar(&description, "description", "", "task description")
	cmd.Flags().StringVar(&assignee, "assignee", "", "assignee")
	cmd.Flags().StringVar(&parent, "parent-workspace", "", "workspace that spawned this task")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func newTaskListCmd(a *app) *cobra.Command {
	var params sdk.ListTasksParams
	var assignee string
	var createdAfter, createdBefore, updatedAfter, updatedBefore time.Duration
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a project's tasks",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			params.Assignee = changed(cmd, "assignee", assignee)
			now := time.Now()
			params.CreatedAfter = since(now, createdAfter)
			params.CreatedBefore = since(now, createdBefore)
			params.UpdatedAfter = since(now, updatedAfter)
			params.UpdatedBefore = since(now, updatedBefore)
			list, err := a.client.ListTasks(cmd.Context(), params)
			if err != nil {
				return err
			}
			return a.printer.Tasks(list)
		}),
	}
	cmd.Flags().StringVar(&params.ProjectID, "project", "", "project id")
	cmd.Flags().StringSliceVar(&params.Statuses, "status", nil, "filter by status (repeatable)")
	cmd.Flags().StringVar(&assignee, "assignee", "", "filter by assignee")
	cmd.Flags().DurationVar(&createdAfter, "created-within", 0, "only tasks created within this duration")
	cmd.Flags().DurationVar(&createdBefore, "created-before", 0, "only tasks created longer ago than this duration")
	cmd.Flags().DurationVar(&updatedAfter, "updated-within", 0, "only tasks updated within this duration")
	cmd.Flags().DurationVar(&updatedBefore, "updated-before", 0, "only tasks updated longer ago than this duration")
	cmd.Flags().StringVar(&params.SortBy, "sort", "", "created_at, updated_at or title")
	cmd.Flags().StringVar(&params.Order, "order", "", "asc or desc")
	cmd.Flags().IntVar(&params.Limit, "limit", 0, "maximum number of tasks")
	cmd.Flags().IntVar(&params.Offset, "offset", 0, "number of tasks to skip")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func since(now time.Time, d time.Duration) *time.Time {
	if d <= 0 {
		return nil
	}
	t := now.Add(-d)
	return &t
}

func newTaskSearchCmd(a *app) *cobra.Command {
	var projectID string
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search task titles and descriptions",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			list, err := a.client.SearchTasks(cmd.Context(), projectID, args[0], limit)
			if err != nil {
				return err
			}
			return a.printer.Tasks(list)
		}),
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of results")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func newTaskShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "show <task-id>",
		Aliases: []string{"get"},
		Short:   "Show a task",
		Args:    cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			task, err := a.client.GetTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printer.Task(task)
		}),
	}
}

func newTaskUpdateCmd(a *app) *cobra.Command {
	var title, description, status, assignee, by string
	cmd := &cobra.Command{
		Use:   "update <task-id>",
		Short: "Change a task's fields or status",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			req := schemas.TaskUpdateRequest{
				Title:       changed(cmd, "title", title),
				Description: changed(cmd, "description", description),
				Status:      changed(cmd, "status", status),
				Assignee:    changed(cmd, "assignee", assignee),
				ChangedBy:   by,
			}
			if req.Title == nil && req.Description == nil && req.Status == nil && req.Assignee == nil {
				return fmt.Errorf("nothing to update")
			}
			task, err := a.client.UpdateTask(cmd.Context(), args[0], req)
			if err != nil {
				return err
			}
			return a.printer.Task(task)
		}),
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&description, "description", "", "new description (empty clears)")
	cmd.Flags().StringVar(&status, "status", "", "new status")
	cmd.Flags().StringVar(&assignee, "assignee", "", "new assignee (empty clears)")
	cmd.Flags().StringVar(&by, "by", "", "who is making the change")
	return cmd
}

func newTaskAssignCmd(a *app) *cobra.Command {
	var by string
	cmd := &cobra.Command{
		Use:   "assign <task-id> [assignee]",
		Short: "Assign a task, or clear the assignee when none is given",
		Args:  cobra.RangeArgs(1, 2),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			req := schemas.TaskAssignRequest{ChangedBy: by}
			if len(args) == 2 {
				req.Assignee = &args[1]
			}
			task, err := a.client.AssignTask(cmd.Context(), args[0], req)
			if err != nil {
				return err
			}
			return a.printer.Task(task)
		}),
	}
	cmd.Flags().StringVar(&by, "by", "", "who is making the change")
	return cmd
}

func newTaskBulkStatusCmd(a *app) *cobra.Command {
	var req schemas.TaskBulkStatusRequest
	cmd := &cobra.Command{
		Use:   "bulk-status <task-id>...",
		Short: "Move several tasks to one status, all or nothing",
		Args:  cobra.MinimumNArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			req.TaskIDs = args
			list, err := a.client.BulkUpdateStatus(cmd.Context(), req)
			if err != nil {
				return err
			}
			return a.printer.Tasks(list)
		}),
	}
	cmd.Flags().StringVar(&req.Status, "status", "", "target status")
	cmd.Flags().StringVar(&req.ChangedBy, "by", "", "who is making the change")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func newTaskDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a task with its history, comments and activity",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			if err := a.client.DeleteTask(cmd.Context(), args[0]); err != nil {
				return err
			}
			if a.asJSON {
				return a.printer.Any(schemas.TaskDeleteResponse{Deleted: true, ID: args[0]})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		}),
	}
}

func newTaskHistoryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "history <task-id>",
		Short: "Show a task's status transitions",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			list, err := a.client.TaskHistory(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printer.History(list)
		}),
	}
}

func newTaskRelationshipsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "relationships <task-id>",
		Short: "Show the parent and child tasks",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			rel, err := a.client.TaskRelationships(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if a.asJSON {
				return a.printer.Any(rel)
			}
			out := cmd.OutOrStdout()
			if rel.Parent != nil {
				fmt.Fprintln(out, "Parent:")
				if err := a.printer.Task(rel.Parent); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(out, "Parent: (none)")
			}
			fmt.Fprintln(out, "Children:")
			return a.printer.Tasks(rel.Children)
		}),
	}
}

func newTaskCommentCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "comment",
		Short: "Add or list task comments",
	}
	var author string
	add := &cobra.Command{
		Use:   "add <task-id> <content>",
		Short: "Comment on a task",
		Args:  cobra.ExactArgs(2),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			comment, err := a.client.AddComment(cmd.Context(), args[0], schemas.CommentCreateRequest{Content: args[1], Author: author})
			if err != nil {
				return err
			}
			return a.printer.Any(comment)
		}),
	}
	add.Flags().StringVar(&author, "author", "", "comment author")
	_ = add.MarkFlagRequired("author")
	cmd.AddCommand(add)
	cmd.AddCommand(&cobra.Command{
		Use:   "list <task-id>",
		Short: "List comments oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			list, err := a.client.ListComments(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printer.Comments(list)
		}),
	})
	return cmd
}

func newTaskActivityCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Record or list agent activity",
	}
	var agent, action, summary string
	add := &cobra.Command{
		Use:   "add <task-id>",
		Short: "Append an activity entry",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			entry, err := a.client.AppendActivity(cmd.Context(), args[0], schemas.ActivityCreateRequest{
				AgentName: agent,
				Action:    action,
				Summary:   changed(cmd, "summary", summary),
			})
			if err != nil {
				return err
			}
			return a.printer.Any(entry)
		}),
	}
	add.Flags().StringVar(&agent, "agent", "", "agent name")
	add.Flags().StringVar(&action, "action", "", "what the agent did")
	add.Flags().StringVar(&summary, "summary", "", "optional summary")
	_ = add.MarkFlagRequired("agent")
	_ = add.MarkFlagRequired("action")
	cmd.AddCommand(add)
	cmd.AddCommand(&cobra.Command{
		Use:   "list <task-id>",
		Short: "List activity newest first",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			list, err := a.client.ListActivity(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printer.Activity(list)
		}),
	})
	return cmd
}

func newTaskWorkspacesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "workspaces <task-id>",
		Short: "List the workspaces started for a task",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			list, err := a.client.TaskWorkspaces(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printer.Workspaces(list)
		}),
	}
}
