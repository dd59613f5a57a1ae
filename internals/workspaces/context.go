package workspaces

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/Oudwins/taskforge/internals/errs"
	"github.com/Oudwins/taskforge/internals/store"
)

type ContextRepo struct {
	RepoID       string `json:"repo_id"`
	RepoName     string `json:"repo_name"`
	TargetBranch string `json:"target_branch"`
}

// Context identifies the project, task and workspace a checkout belongs to.
type Context struct {
	ProjectID       string        `json:"project_id"`
	TaskID          string        `json:"task_id"`
	TaskTitle       string        `json:"task_title"`
	WorkspaceID     string        `json:"workspace_id"`
	WorkspaceBranch string        `json:"workspace_branch"`
	WorkspaceRepos  []ContextRepo `json:"workspace_repos"`
}

// Context resolves path to the workspace it sits in. Worktree checkouts are
// found by path alone. A branch-mode workspace shares the original repository
// path, so workspaceID must name it.
func (m *Manager) Context(ctx context.Context, path string, workspaceID string) (*Context, error) {
	const op = "workspaces.Context"
	if path == "" {
		return nil, errs.E(errs.KindInvalidInput, op, "path is required")
	}
	root, err := m.git.GitToplevel(ctx, filepath.Clean(path))
	if err != nil {
		return nil, errs.E(errs.KindNotFound, op, "path is not inside a git checkout")
	}

	var ws *store.Workspace
	if workspaceID != "" {
		ws, err = m.store.GetWorkspace(ctx, workspaceID)
		if err != nil {
			return nil, notFound(op, "workspace", err)
		}
	} else {
		link, err := m.findByPath(ctx, root)
		if err != nil {
			return nil, err
		}
		ws, err = m.store.GetWorkspace(ctx, link.WorkspaceID)
		if err != nil {
			return nil, notFound(op, "workspace", err)
		}
	}
	if ws.SetupCompletedAt == nil || ws.CleanedAt != nil {
		return nil, errs.E(errs.KindNotFound, op, "workspace is not provisioned")
	}

	links, err := m.store.ListWorkspaceRepos(ctx, ws.ID)
	if err != nil {
		return nil, err
	}
	inside := false
	repos := make([]ContextRepo, len(links))
	for i, link := range links {
		repos[i] = ContextRepo{RepoID: link.RepoID, RepoName: link.RepoName, TargetBranch: link.TargetBranch}
		dir := link.RepoPath
		if link.WorktreePath != nil {
			dir = *link.WorktreePath
		}
		if samePath(dir, root) {
			inside = true
		}
	}
	if !inside {
		return nil, errs.E(errs.KindNotFound, op, "path is not inside a provisioned workspace")
	}

	task, err := m.store.GetTask(ctx, ws.TaskID)
	if err != nil {
		return nil, notFound(op, "task", err)
	}
	return &Context{
		ProjectID:       task.ProjectID,
		TaskID:          task.ID,
		TaskTitle:       task.Title,
		WorkspaceID:     ws.ID,
		WorkspaceBranch: ws.BranchName,
		WorkspaceRepos:  repos,
	}, nil
}

func (m *Manager) findByPath(ctx context.Context, root string) (*store.WorkspaceRepo, error) {
	const op = "workspaces.Context"
	candidates := []string{root}
	if resolved, err := filepath.EvalSymlinks(root); err == nil && resolved != root {
		candidates = append(candidates, resolved)
	}
	for _, candidate := range candidates {
		link, err := m.store.FindWorkspaceRepoByPath(ctx, candidate)
		if err == nil {
			return link, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	return nil, errs.E(errs.KindNotFound, op, "path is not inside a provisioned workspace")
}

func samePath(a string, b string) bool {
	if filepath.Clean(a) == filepath.Clean(b) {
		return true
	}
	ra, errA := filepath.EvalSymlinks(a)
	rb, errB := filepath.EvalSymlinks(b)
	return errA == nil && errB == nil && ra == rb
}
