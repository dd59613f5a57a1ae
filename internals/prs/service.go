// Package prs pushes workspace branches, opens pull requests and keeps the
// cached merge records in line with the provider.
package prs

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/Oudwins/taskforge/internals/errs"
	"github.com/Oudwins/taskforge/internals/events"
	"github.com/Oudwins/taskforge/internals/metrics"
	"github.com/Oudwins/taskforge/internals/remote"
	"github.com/Oudwins/taskforge/internals/store"
	"github.com/Oudwins/taskforge/internals/tasks"
	"github.com/Oudwins/taskforge/internals/workspace"
)

// Actor is recorded as changed_by when reconciliation advances a task.
const Actor = "pr-reconciler"

type Service struct {
	store    *store.Store
	git      workspace.Host
	provider remote.Provider
	tasks    *tasks.Service
	events   events.Sink
	logger   *slog.Logger
}

func New(s *store.Store, git workspace.Host, provider remote.Provider, taskSvc *tasks.Service, sink events.Sink, logger *slog.Logger) *Service {
	if sink == nil {
		sink = events.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: s, git: git, provider: provider, tasks: taskSvc, events: sink, logger: logger}
}

type target struct {
	workspace *store.Workspace
	link      *store.WorkspaceRepo
	task      *store.Task
}

func (s *Service) load(ctx context.Context, op string, workspaceID string, repoID string) (*target, error) {
	ws, err := s.store.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, notFound(op, "workspace", err)
	}
	if repoID == "" {
		return nil, errs.E(errs.KindInvalidInput, op, "repo_id is required")
	}
	link, err := s.store.GetWorkspaceRepo(ctx, workspaceID, repoID)
	if err != nil {
		return nil, notFound(op, "workspace repo", err)
	}
	task, err := s.store.GetTask(ctx, ws.TaskID)
	if err != nil {
		return nil, notFound(op, "task", err)
	}
	return &target{workspace: ws, link: link, task: task}, nil
}

func (s *Service) remoteURL(ctx context.Context, link *store.WorkspaceRepo) string {
	if link.RemoteURL != "" {
		return link.RemoteURL
	}
	url, err := s.git.GetRemoteURL(ctx, link.RepoPath)
	if err != nil || url == "" {
		return link.RepoPath
	}
	return url
}

type PushResult struct {
	Success    bool   `json:"success"`
	BranchName string `json:"branch_name"`
	RemoteURL  string `json:"remote_url"`
}

// Push sends the workspace branch to origin. Pushing with nothing new is a
// successful no-op. force must be explicit to overwrite remote history.
func (s *Service) Push(ctx context.Context, workspaceID string, repoID string, force bool) (*PushResult, error) {
	const op = "prs.Push"
	t, err := s.load(ctx, op, workspaceID, repoID)
	if err != nil {
		return nil, err
	}
	if t.workspace.SetupCompletedAt == nil {
		return nil, errs.E(errs.KindFailedPrecondition, op, "workspace is not provisioned")
	}

	logger := s.logger.With(slog.String("workspace_id", workspaceID), slog.String("repo_id", repoID), slog.String("branch", t.workspace.BranchName))
	if err := s.git.PushBranch(ctx, t.link.RepoPath, t.workspace.BranchName, force); err != nil {
		logger.Error("Push failed", slog.String("error", err.Error()))
		return nil, errs.Wrap(errs.KindExternalAPI, op, err)
	}
	err = s.store.InTx(ctx, func(q *store.Queries) error {
		if err := q.MarkPushed(ctx, workspaceID, repoID); err != nil {
			return err
		}
		return q.TouchWorkspace(ctx, workspaceID)
	})
	if err != nil {
		return nil, err
	}
	logger.Info("Branch pushed", slog.Bool("force", force))
	return &PushResult{Success: true, BranchName: t.workspace.BranchName, RemoteURL: s.remoteURL(ctx, t.link)}, nil
}

type CreatePRParams struct {
	WorkspaceID  string
	RepoID       string
	Title        string
	Body         *string
	TargetBranch *string
	Draft        bool
}

type CreatePRResult struct {
	PRNumber int64          `json:"pr_number"`
	PRURL    string         `json:"pr_url"`
	Status   store.PRStatus `json:"status"`
}

// PREvent is the payload of pr_created and pr_status_changed.
type PREvent struct {
	WorkspaceID    string         `json:"workspace_id"`
	RepoID         string         `json:"repo_id"`
	TaskID         string         `json:"task_id"`
	PRNumber       int64          `json:"pr_number"`
	PRURL          string         `json:"pr_url"`
	PreviousStatus store.PRStatus `json:"previous_status,omitempty"`
	Status         store.PRStatus `json:"status"`
	TaskUpdated    bool           `json:"task_updated,omitempty"`
}

// CreatePR opens a pull request for an already pushed branch. At most one
// active merge record exists per workspace and repo.
func (s *Service) CreatePR(ctx context.Context, params CreatePRParams) (*CreatePRResult, error) {
	const op = "prs.CreatePR"
	title := strings.TrimSpace(params.Title)
	if title == "" {
		return nil, errs.E(errs.KindInvalidInput, op, "title is required")
	}
	t, err := s.load(ctx, op, params.WorkspaceID, params.RepoID)
	if err != nil {
		return nil, err
	}

	if t.link.PushedAt == nil {
		pushed, err := s.git.RemoteBranchExists(ctx, t.link.RepoPath, t.workspace.BranchName)
		if err != nil {
			return nil, errs.Wrap(errs.KindExternalAPI, op, err)
		}
		if !pushed {
			return nil, errs.E(errs.KindFailedPrecondition, op, "branch has not been pushed")
		}
	}
	if _, err := s.store.GetActiveMerge(ctx, params.WorkspaceID, params.RepoID); err == nil {
		return nil, errs.E(errs.KindConflict, op, "an active merge record already exists for this workspace and repo")
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	base := t.link.TargetBranch
	if params.TargetBranch != nil && strings.TrimSpace(*params.TargetBranch) != "" {
		base = strings.TrimSpace(*params.TargetBranch)
	}
	body := ""
	if params.Body != nil {
		body = *params.Body
	}

	pr, err := s.provider.CreatePR(ctx, remote.CreatePRParams{
		RemoteURL: s.remoteURL(ctx, t.link),
		Head:      t.workspace.BranchName,
		Base:      base,
		Title:     title,
		Body:      body,
		Draft:     params.Draft,
	})
	if err != nil {
		s.logger.Error("Failed to create pull request", slog.String("workspace_id", params.WorkspaceID), slog.String("error", err.Error()))
		return nil, errs.Wrap(errs.KindExternalAPI, op, err)
	}

	err = s.store.InTx(ctx, func(q *store.Queries) error {
		if _, err := q.GetActiveMerge(ctx, params.WorkspaceID, params.RepoID); err == nil {
			return errs.E(errs.KindConflict, op, "an active merge record already exists for this workspace and repo")
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		now := q.Now()
		record := &store.MergeRecord{
			ID:           store.NewID(),
			WorkspaceID:  params.WorkspaceID,
			RepoID:       params.RepoID,
			TargetBranch: base,
			Merge:        &store.PRMerge{Number: pr.Number, URL: pr.URL, Status: store.PRStatusOpen},
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := q.InsertMerge(ctx, record); err != nil {
			return err
		}
		if err := q.TouchWorkspace(ctx, params.WorkspaceID); err != nil {
			return err
		}
		return s.events.Enqueue(ctx, q, t.task.ProjectID, events.PRCreated, PREvent{
			WorkspaceID: params.WorkspaceID,
			RepoID:      params.RepoID,
			TaskID:      t.task.ID,
			PRNumber:    pr.Number,
			PRURL:       pr.URL,
			Status:      store.PRStatusOpen,
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Pull request created", slog.String("workspace_id", params.WorkspaceID), slog.Int64("pr_number", pr.Number))
	return &CreatePRResult{PRNumber: pr.Number, PRURL: pr.URL, Status: store.PRStatusOpen}, nil
}

type Status struct {
	HasPR    bool           `json:"has_pr"`
	PRNumber *int64         `json:"pr_number,omitempty"`
	PRURL    *string        `json:"pr_url,omitempty"`
	Status   store.PRStatus `json:"status,omitempty"`
	MergedAt *string        `json:"merged_at,omitempty"`
}

// GetStatus reads the cached merge record. It never calls the provider.
func (s *Service) GetStatus(ctx context.Context, workspaceID string, repoID string) (*Status, error) {
	const op = "prs.GetStatus"
	if _, err := s.load(ctx, op, workspaceID, repoID); err != nil {
		return nil, err
	}
	record, err := s.store.GetLatestPRMerge(ctx, workspaceID, repoID)
	if errors.Is(err, store.ErrNotFound) {
		return &Status{HasPR: false}, nil
	}
	if err != nil {
		return nil, err
	}
	pr := record.PR()
	status := &Status{HasPR: true, PRNumber: &pr.Number, PRURL: &pr.URL, Status: pr.Status}
	if pr.MergedAt != nil {
		formatted := pr.MergedAt.UTC().Format("2006-01-02T15:04:05Z07:00")
		status.MergedAt = &formatted
	}
	return status, nil
}

type RefreshResult struct {
	PRNumber       int64          `json:"pr_number"`
	PreviousStatus store.PRStatus `json:"previous_status"`
	CurrentStatus  store.PRStatus `json:"current_status"`
	StatusChanged  bool           `json:"status_changed"`
	TaskUpdated    bool           `json:"task_updated"`
}

// Refresh asks the provider for the PR state and stores it. When the state
// changes into merged and the task is exactly in review, the task moves to
// done in the same transaction. A provider error leaves the record as it was.
func (s *Service) Refresh(ctx context.Context, workspaceID string, repoID string) (*RefreshResult, error) {
	const op = "prs.Refresh"
	t, err := s.load(ctx, op, workspaceID, repoID)
	if err != nil {
		return nil, err
	}
	record, err := s.store.GetLatestPRMerge(ctx, workspaceID, repoID)
	if err != nil {
		return nil, notFound(op, "pull request", err)
	}

	pr, err := s.provider.GetPR(ctx, s.remoteURL(ctx, t.link), record.PR().Number)
	if err != nil {
		s.logger.Error("Failed to fetch pull request", slog.String("workspace_id", workspaceID), slog.Int64("pr_number", record.PR().Number), slog.String("error", err.Error()))
		return nil, errs.Wrap(errs.KindExternalAPI, op, err)
	}
	current := store.ParsePRStatus(pr.State)

	var result *RefreshResult
	err = s.store.InTx(ctx, func(q *store.Queries) error {
		// re-read under the write lock so concurrent refreshes see each
		// other's result
		fresh, err := q.GetMerge(ctx, record.ID)
		if err != nil {
			return notFound(op, "pull request", err)
		}
		cached := fresh.PR()
		next := current
		if cached.Status == store.PRStatusMerged && next != store.PRStatusMerged {
			// merged is final upstream, so anything else is a partial answer
			s.logger.Warn("Ignoring provider state for merged pull request", slog.Int64("pr_number", cached.Number), slog.String("reported", string(current)))
			next = store.PRStatusMerged
		}
		result = &RefreshResult{PRNumber: cached.Number, PreviousStatus: cached.Status, CurrentStatus: next}
		if cached.Status == next {
			return nil
		}
		result.StatusChanged = true

		if cached.Status == store.PRStatusClosed {
			// the record becomes active again; the pair may only hold one
			if active, err := q.GetActiveMerge(ctx, workspaceID, repoID); err == nil {
				return errs.Ef(errs.KindConflict, op, "pull request #%d was reopened but %s merge %s is already active", cached.Number, active.Merge.Kind(), active.ID)
			} else if !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}

		mergedAt := cached.MergedAt
		if pr.MergedAt != nil {
			mergedAt = pr.MergedAt
		}
		if err := q.UpdatePRStatus(ctx, store.UpdatePRStatusParams{ID: fresh.ID, Status: next, MergedAt: mergedAt, MergeCommit: pr.MergeCommit}); err != nil {
			return err
		}
		if next == store.PRStatusMerged {
			updated, err := s.tasks.CompleteIfInReview(ctx, q, t.task.ID, Actor)
			if err != nil {
				return err
			}
			result.TaskUpdated = updated
		}
		return s.events.Enqueue(ctx, q, t.task.ProjectID, events.PRStatusChanged, PREvent{
			WorkspaceID:    workspaceID,
			RepoID:         repoID,
			TaskID:         t.task.ID,
			PRNumber:       cached.Number,
			PRURL:          cached.URL,
			PreviousStatus: cached.Status,
			Status:         next,
			TaskUpdated:    result.TaskUpdated,
		})
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordPRRefresh(ctx, result.StatusChanged)
	if result.StatusChanged {
		s.logger.Info("Pull request status changed",
			slog.String("workspace_id", workspaceID),
			slog.Int64("pr_number", result.PRNumber),
			slog.String("previous", string(result.PreviousStatus)),
			slog.String("current", string(result.CurrentStatus)),
			slog.Bool("task_updated", result.TaskUpdated),
		)
	}
	return result, nil
}

type DirectMergeParams struct {
	WorkspaceID  string
	RepoID       string
	CommitHash   string
	TargetBranch *string
}

// RecordDirectMerge stores a merge that bypassed a pull request.
func (s *Service) RecordDirectMerge(ctx context.Context, params DirectMergeParams) (*store.MergeRecord, error) {
	const op = "prs.RecordDirectMerge"
	commit := strings.TrimSpace(params.CommitHash)
	if commit == "" {
		return nil, errs.E(errs.KindInvalidInput, op, "merge_commit is required")
	}
	t, err := s.load(ctx, op, params.WorkspaceID, params.RepoID)
	if err != nil {
		return nil, err
	}
	base := t.link.TargetBranch
	if params.TargetBranch != nil && strings.TrimSpace(*params.TargetBranch) != "" {
		base = strings.TrimSpace(*params.TargetBranch)
	}

	var record *store.MergeRecord
	err = s.store.InTx(ctx, func(q *store.Queries) error {
		if _, err := q.GetActiveMerge(ctx, params.WorkspaceID, params.RepoID); err == nil {
			return errs.E(errs.KindConflict, op, "an active merge record already exists for this workspace and repo")
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		now := q.Now()
		record = &store.MergeRecord{
			ID:           store.NewID(),
			WorkspaceID:  params.WorkspaceID,
			RepoID:       params.RepoID,
			TargetBranch: base,
			Merge:        &store.DirectMerge{CommitHash: commit},
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		return q.InsertMerge(ctx, record)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *Service) ListMerges(ctx context.Context, workspaceID string) ([]store.MergeRecord, error) {
	const op = "prs.ListMerges"
	if _, err := s.store.GetWorkspace(ctx, workspaceID); err != nil {
		return nil, notFound(op, "workspace", err)
	}
	return s.store.ListMergesByWorkspace(ctx, workspaceID)
}

func notFound(op string, what string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return errs.Ef(errs.KindNotFound, op, "%s not found", what)
	}
	return err
}
