package prs

import (
	"context"
	"log/slog"
	"time"
)

// PollOnce refreshes every open PR record and returns how many changed.
// Errors on one record are logged and do not stop the others.
func (s *Service) PollOnce(ctx context.Context) (int, error) {
	open, err := s.store.ListOpenPRMerges(ctx)
	if err != nil {
		return 0, err
	}
	changed := 0
	for _, record := range open {
		if ctx.Err() != nil {
			return changed, ctx.Err()
		}
		res, err := s.Refresh(ctx, record.WorkspaceID, record.RepoID)
		if err != nil {
			s.logger.Warn("Background PR refresh failed",
				slog.String("workspace_id", record.WorkspaceID),
				slog.String("repo_id", record.RepoID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if res.StatusChanged {
			changed++
		}
	}
	return changed, nil
}

// RunPoller calls PollOnce every interval until ctx is done. A non-positive
// interval disables polling.
func (s *Service) RunPoller(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.PollOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("PR poll failed", slog.String("error", err.Error()))
			}
		}
	}
}
