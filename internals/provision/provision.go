// Package provision materialises workspaces on disk (git branch, optional
// worktree and container) and reclaims idle ones.
package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Oudwins/taskforge/internals/container"
	"github.com/Oudwins/taskforge/internals/errs"
	"github.com/Oudwins/taskforge/internals/events"
	"github.com/Oudwins/taskforge/internals/metrics"
	"github.com/Oudwins/taskforge/internals/naming"
	"github.com/Oudwins/taskforge/internals/store"
	"github.com/Oudwins/taskforge/internals/workspace"
)

type Config struct {
	Image string
	// Containers is false when no container runtime should be used.
	Containers bool
}

type Provisioner struct {
	store   *store.Store
	git     workspace.Host
	runtime container.Runtime
	events  events.Sink
	cfg     Config
	logger  *slog.Logger

	// one provisioning run per workspace at a time
	inflight sync.Map
}

func New(s *store.Store, git workspace.Host, runtime container.Runtime, sink events.Sink, cfg Config, logger *slog.Logger) *Provisioner {
	if sink == nil {
		sink = events.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	if runtime == nil {
		cfg.Containers = false
	}
	return &Provisioner{store: s, git: git, runtime: runtime, events: sink, cfg: cfg, logger: logger}
}

// WorktreePath is where repoName is checked out for a worktree-mode
// workspace.
func WorktreePath(root string, repoName string) string {
	return filepath.Join(root, repoName)
}

// Provision creates the git branch (and in worktree mode the checkout and
// container) for every repo of the workspace. A completed workspace is left
// alone. Failures are recorded on the row and returned as ProvisioningFailed;
// nothing already created is rolled back.
func (p *Provisioner) Provision(ctx context.Context, workspaceID string) error {
	const op = "provision.Provision"
	if _, busy := p.inflight.LoadOrStore(workspaceID, struct{}{}); busy {
		return errs.Ef(errs.KindConflict, op, "workspace %s is already provisioning", workspaceID)
	}
	defer p.inflight.Delete(workspaceID)

	ws, err := p.store.GetWorkspace(ctx, workspaceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errs.E(errs.KindNotFound, op, "workspace not found")
		}
		return err
	}
	if ws.SetupCompletedAt != nil {
		return nil
	}
	task, err := p.store.GetTask(ctx, ws.TaskID)
	if err != nil {
		return err
	}
	links, err := p.store.ListWorkspaceRepos(ctx, ws.ID)
	if err != nil {
		return err
	}

	logger := p.logger.With(slog.String("workspace_id", ws.ID), slog.String("mode", string(ws.Mode)), slog.String("branch", ws.BranchName))
	logger.Debug("Provisioning workspace", slog.Int("repos", len(links)))

	containerRef, err := p.provision(ctx, ws, links)
	if err != nil {
		logger.Error("Provisioning failed", slog.String("error", err.Error()))
		metrics.RecordProvisioning(ctx, string(ws.Mode), "failed")
		if markErr := p.markFailed(ctx, ws, task.ProjectID, err); markErr != nil {
			logger.Error("Failed to record provisioning failure", slog.String("error", markErr.Error()))
		}
		return errs.Wrap(errs.KindProvisioningFailed, op, err)
	}

	err = p.store.InTx(ctx, func(q *store.Queries) error {
		if err := q.MarkSetupCompleted(ctx, ws.ID); err != nil {
			return err
		}
		return p.events.Enqueue(ctx, q, task.ProjectID, events.WorkspaceProvisioned, ProvisionedEvent{
			WorkspaceID:  ws.ID,
			TaskID:       ws.TaskID,
			Mode:         ws.Mode,
			BranchName:   ws.BranchName,
			ContainerRef: containerRef,
		})
	})
	if err != nil {
		return err
	}
	metrics.RecordProvisioning(ctx, string(ws.Mode), "success")
	logger.Info("Workspace provisioned")
	return nil
}

type ProvisionedEvent struct {
	WorkspaceID  string              `json:"workspace_id"`
	TaskID       string              `json:"task_id"`
	Mode         store.WorkspaceMode `json:"mode"`
	BranchName   string              `json:"branch_name"`
	ContainerRef *string             `json:"container_ref,omitempty"`
	Error        string              `json:"error,omitempty"`
}

func (p *Provisioner) provision(ctx context.Context, ws *store.Workspace, links []store.WorkspaceRepo) (*string, error) {
	if len(links) == 0 {
		return nil, errors.New("workspace has no repositories")
	}
	if ws.Mode == store.WorkspaceModeBranch {
		for _, link := range links {
			if err := p.createBranch(ctx, ws, link); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}

	if ws.WorktreeRoot == nil {
		return nil, errors.New("worktree root is not set")
	}
	root := *ws.WorktreeRoot
	if err := p.git.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create worktree root: %w", err)
	}

	paths := make([]string, len(links))
	g, gctx := errgroup.WithContext(ctx)
	for i, link := range links {
		paths[i] = WorktreePath(root, link.RepoName)
		g.Go(func() error {
			return p.createWorktree(gctx, ws, link, paths[i])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, link := range links {
		if err := p.store.SetWorktreePath(ctx, ws.ID, link.RepoID, &paths[i]); err != nil {
			return nil, err
		}
	}

	if !p.cfg.Containers {
		return nil, nil
	}
	spec := container.Spec{
		Name:   naming.ContainerName(ws.ID),
		Image:  p.cfg.Image,
		Labels: map[string]string{container.LabelWorkspace: ws.ID},
	}
	for i, link := range links {
		spec.Mounts = append(spec.Mounts, container.Mount{Source: paths[i], Target: filepath.Join(container.MountTarget, link.RepoName)})
	}
	ref, err := p.runtime.Start(ctx, spec)
	if err != nil {
		return nil, err
	}
	if err := p.store.SetContainerRef(ctx, ws.ID, &ref); err != nil {
		return nil, err
	}
	return &ref, nil
}

func (p *Provisioner) createBranch(ctx context.Context, ws *store.Workspace, link store.WorkspaceRepo) error {
	if err := p.git.GitIsInsideWorkTree(ctx, link.RepoPath); err != nil {
		return fmt.Errorf("%s: %w", link.RepoName, err)
	}
	exists, err := p.git.BranchExists(ctx, link.RepoPath, ws.BranchName)
	if err != nil {
		return fmt.Errorf("%s: %w", link.RepoName, err)
	}
	if exists {
		return fmt.Errorf("%s: branch %s already exists", link.RepoName, ws.BranchName)
	}
	if err := p.git.CreateBranch(ctx, link.RepoPath, ws.BranchName, link.TargetBranch); err != nil {
		return fmt.Errorf("%s: %w", link.RepoName, err)
	}
	return nil
}

// createWorktree tolerates a checkout left behind by an interrupted run of
// the same workspace.
func (p *Provisioner) createWorktree(ctx context.Context, ws *store.Workspace, link store.WorkspaceRepo, path string) error {
	if err := p.git.GitIsInsideWorkTree(ctx, link.RepoPath); err != nil {
		return fmt.Errorf("%s: %w", link.RepoName, err)
	}
	exists, err := p.git.BranchExists(ctx, link.RepoPath, ws.BranchName)
	if err != nil {
		return fmt.Errorf("%s: %w", link.RepoName, err)
	}
	if exists {
		if _, statErr := p.git.Stat(path); statErr == nil {
			return nil
		} else if !os.IsNotExist(statErr) {
			return fmt.Errorf("%s: %w", link.RepoName, statErr)
		}
		return fmt.Errorf("%s: branch %s already exists", link.RepoName, ws.BranchName)
	}
	if err := p.git.CreateWorktree(ctx, link.RepoPath, path, ws.BranchName, link.TargetBranch); err != nil {
		return fmt.Errorf("%s: %w", link.RepoName, err)
	}
	if err := p.git.RunWorktreeSetup(ctx, link.RepoPath, path); err != nil {
		return fmt.Errorf("%s: %w", link.RepoName, err)
	}
	return nil
}

func (p *Provisioner) markFailed(ctx context.Context, ws *store.Workspace, projectID string, cause error) error {
	return p.store.InTx(ctx, func(q *store.Queries) error {
		if err := q.MarkSetupFailed(ctx, ws.ID, cause.Error()); err != nil {
			return err
		}
		return p.events.Enqueue(ctx, q, projectID, events.WorkspaceProvisionFailed, ProvisionedEvent{
			WorkspaceID: ws.ID,
			TaskID:      ws.TaskID,
			Mode:        ws.Mode,
			BranchName:  ws.BranchName,
			Error:       cause.Error(),
		})
	})
}
