package provision

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.uber.org/multierr"

	"github.com/Oudwins/taskforge/internals/metrics"
	"github.com/Oudwins/taskforge/internals/store"
)

const DefaultRetention = 72 * time.Hour

type SweepResult struct {
	Reclaimed []string `json:"reclaimed"`
}

// Sweep reclaims worktree-mode workspaces idle for longer than retention.
// Sessions still marked running on a reclaimed workspace are failed, since
// nothing reported for them inside the window. Rows and history stay; only
// the container and checkout go away. A failure on one workspace does not
// stop the others.
func (p *Provisioner) Sweep(ctx context.Context, retention time.Duration) (SweepResult, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	result := SweepResult{Reclaimed: []string{}}
	candidates, err := p.store.ListCleanupCandidates(ctx, p.store.Now().Add(-retention))
	if err != nil {
		return result, err
	}

	var errs error
	for _, ws := range candidates {
		if ctx.Err() != nil {
			return result, multierr.Append(errs, ctx.Err())
		}
		if err := p.reclaim(ctx, &ws); err != nil {
			p.logger.Error("Failed to reclaim workspace", slog.String("workspace_id", ws.ID), slog.String("error", err.Error()))
			errs = multierr.Append(errs, fmt.Errorf("workspace %s: %w", ws.ID, err))
			continue
		}
		result.Reclaimed = append(result.Reclaimed, ws.ID)
	}

	metrics.RecordCleanup(ctx, len(result.Reclaimed))
	if len(candidates) > 0 {
		p.logger.Info("Cleanup sweep finished", slog.Int("candidates", len(candidates)), slog.Int("reclaimed", len(result.Reclaimed)))
	}
	return result, errs
}

func (p *Provisioner) reclaim(ctx context.Context, ws *store.Workspace) error {
	if ws.Mode != store.WorkspaceModeWorktree {
		return nil
	}
	if ws.ContainerRef != nil {
		if p.runtime == nil {
			return fmt.Errorf("container %s recorded but no runtime configured", *ws.ContainerRef)
		}
		if err := p.runtime.Stop(ctx, *ws.ContainerRef); err != nil {
			return err
		}
	}

	links, err := p.store.ListWorkspaceRepos(ctx, ws.ID)
	if err != nil {
		return err
	}
	var errs error
	for _, link := range links {
		if link.WorktreePath == nil {
			continue
		}
		errs = multierr.Append(errs, p.git.RemoveWorktree(ctx, link.RepoPath, *link.WorktreePath))
	}
	if errs != nil {
		return errs
	}
	if ws.WorktreeRoot != nil {
		// only succeeds once every checkout under it is gone
		_ = os.Remove(*ws.WorktreeRoot)
	}
	return p.store.InTx(ctx, func(q *store.Queries) error {
		abandoned, err := q.AbandonSessions(ctx, ws.ID)
		if err != nil {
			return err
		}
		if abandoned > 0 {
			p.logger.Info("Abandoned idle sessions", slog.String("workspace_id", ws.ID), slog.Int64("sessions", abandoned))
		}
		return q.MarkCleaned(ctx, ws.ID)
	})
}

// RunSweeper sweeps every interval until ctx is done.
func (p *Provisioner) RunSweeper(ctx context.Context, interval time.Duration, retention time.Duration) error {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := p.Sweep(ctx, retention); err != nil && ctx.Err() == nil {
			p.logger.Error("Cleanup sweep failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
