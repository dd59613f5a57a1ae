// Package workspaces starts workspace sessions for tasks and answers reads
// about them. Provisioning itself lives in internals/provision.
package workspaces

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/Oudwins/taskforge/internals/errs"
	"github.com/Oudwins/taskforge/internals/events"
	"github.com/Oudwins/taskforge/internals/naming"
	"github.com/Oudwins/taskforge/internals/store"
	"github.com/Oudwins/taskforge/internals/tasks"
	"github.com/Oudwins/taskforge/internals/workspace"
)

// ExecutorExternal is driven by an outside orchestrator. It always gets a
// branch-mode workspace and never spawns a process.
const ExecutorExternal = "ORCHESTRATOR_MANAGED"

var processExecutors = map[string]struct{}{
	"CLAUDE_CODE": {},
	"CODEX":       {},
	"GEMINI":      {},
	"OPENCODE":    {},
}

// NormalizeExecutor trims, maps '-' to '_' and upper-cases.
func NormalizeExecutor(executor string) string {
	executor = strings.TrimSpace(executor)
	executor = strings.ReplaceAll(executor, "-", "_")
	return strings.ToUpper(executor)
}

// Provisioner runs provisioning synchronously. Satisfied by
// *provision.Provisioner.
type Provisioner interface {
	Provision(ctx context.Context, workspaceID string) error
}

// Dispatcher schedules provisioning to run later.
type Dispatcher interface {
	Dispatch(ctx context.Context, workspaceID string) error
}

type Config struct {
	// WorktreesDir holds one directory per worktree-mode workspace.
	WorktreesDir string
}

type Manager struct {
	store      *store.Store
	tasks      *tasks.Service
	git        workspace.Host
	provision  Provisioner
	dispatcher Dispatcher
	events     events.Sink
	cfg        Config
	logger     *slog.Logger
}

func New(s *store.Store, taskSvc *tasks.Service, git workspace.Host, prov Provisioner, dispatcher Dispatcher, sink events.Sink, cfg Config, logger *slog.Logger) *Manager {
	if sink == nil {
		sink = events.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: s, tasks: taskSvc, git: git, provision: prov, dispatcher: dispatcher, events: sink, cfg: cfg, logger: logger}
}

type RepoRequest struct {
	RepoID     string `json:"repo_id"`
	BaseBranch string `json:"base_branch"`
}

type StartParams struct {
	TaskID    string
	Executor  string
	Variant   *string
	Repos     []RepoRequest
	AgentName *string
	// Mode is "", "branch" or "worktree". Empty picks the executor default.
	Mode string
}

type RepoResult struct {
	RepoID           string `json:"repo_id"`
	RepoName         string `json:"repo_name"`
	BranchName       string `json:"branch_name"`
	BaseBranch       string `json:"base_branch"`
	WorkingDirectory string `json:"working_directory"`
}

type StartResult struct {
	Workspace *store.Workspace `json:"workspace"`
	Session   *store.Session   `json:"session"`
	Repos     []RepoResult     `json:"repos"`
}

// StartedEvent is the payload of workspace_started.
type StartedEvent struct {
	WorkspaceID string              `json:"workspace_id"`
	TaskID      string              `json:"task_id"`
	SessionID   string              `json:"session_id"`
	Executor    string              `json:"executor"`
	Mode        store.WorkspaceMode `json:"mode"`
	BranchName  string              `json:"branch_name"`
}

func resolveMode(op string, executor string, requested string) (store.WorkspaceMode, error) {
	mode := store.WorkspaceMode(strings.ToLower(strings.TrimSpace(requested)))
	switch mode {
	case "", store.WorkspaceModeBranch, store.WorkspaceModeWorktree:
	default:
		return "", errs.Ef(errs.KindInvalidArgument, op, "invalid mode %q", requested)
	}

	if executor == ExecutorExternal {
		if mode == store.WorkspaceModeWorktree {
			return "", errs.Ef(errs.KindInvalidArgument, op, "executor %s cannot run in worktree mode", ExecutorExternal)
		}
		return store.WorkspaceModeBranch, nil
	}
	if _, ok := processExecutors[executor]; !ok {
		return "", errs.Ef(errs.KindInvalidArgument, op, "unknown executor %q", executor)
	}
	if mode == "" {
		return store.WorkspaceModeWorktree, nil
	}
	return mode, nil
}

// StartSession creates the workspace, its repo links and a running session
// in one transaction, then provisions. Branch mode is provisioned before
// returning; worktree mode is dispatched and returns with setup still
// pending. A provisioning failure does not remove the rows.
func (m *Manager) StartSession(ctx context.Context, params StartParams) (*StartResult, error) {
	const op = "workspaces.StartSession"
	if strings.TrimSpace(params.Executor) == "" {
		return nil, errs.E(errs.KindInvalidInput, op, "executor is required")
	}
	if len(params.Repos) == 0 {
		return nil, errs.E(errs.KindInvalidInput, op, "at least one repo is required")
	}
	executor := NormalizeExecutor(params.Executor)
	mode, err := resolveMode(op, executor, params.Mode)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(params.Repos))
	for _, r := range params.Repos {
		if r.RepoID == "" {
			return nil, errs.E(errs.KindInvalidInput, op, "repo_id is required")
		}
		if _, dup := seen[r.RepoID]; dup {
			return nil, errs.Ef(errs.KindInvalidInput, op, "repo %s listed twice", r.RepoID)
		}
		seen[r.RepoID] = struct{}{}
	}
	var agent string
	if params.AgentName != nil {
		agent = strings.TrimSpace(*params.AgentName)
	}

	var (
		ws      *store.Workspace
		session *store.Session
		results []RepoResult
	)
	err = m.store.InTx(ctx, func(q *store.Queries) error {
		task, err := q.GetTask(ctx, params.TaskID)
		if err != nil {
			return notFound(op, "task", err)
		}

		repos := make([]*store.Repo, len(params.Repos))
		for i, r := range params.Repos {
			repo, err := q.GetRepo(ctx, r.RepoID)
			if err != nil {
				return notFound(op, "repo "+r.RepoID, err)
			}
			if repo.ProjectID != task.ProjectID {
				return errs.Ef(errs.KindInvalidInput, op, "repo %s does not belong to the task's project", repo.ID)
			}
			repos[i] = repo
		}

		now := q.Now()
		id := store.NewID()
		ws = &store.Workspace{
			ID:             id,
			TaskID:         task.ID,
			BranchName:     naming.BranchName(id, task.Title),
			Mode:           mode,
			LastActivityAt: now,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if mode == store.WorkspaceModeWorktree {
			root := filepath.Join(m.cfg.WorktreesDir, id)
			ws.WorktreeRoot = &root
		}
		if err := q.InsertWorkspace(ctx, ws); err != nil {
			return err
		}

		results = make([]RepoResult, len(repos))
		for i, repo := range repos {
			base := strings.TrimSpace(params.Repos[i].BaseBranch)
			if base == "" {
				base = repo.DefaultTargetBranch
			}
			if err := q.InsertWorkspaceRepo(ctx, ws.ID, repo.ID, base); err != nil {
				return err
			}
			dir := repo.Path
			if ws.WorktreeRoot != nil {
				dir = filepath.Join(*ws.WorktreeRoot, repo.Name)
			}
			results[i] = RepoResult{RepoID: repo.ID, RepoName: repo.Name, BranchName: ws.BranchName, BaseBranch: base, WorkingDirectory: dir}
		}

		session = &store.Session{
			ID:          store.NewID(),
			WorkspaceID: ws.ID,
			Executor:    executor,
			Variant:     params.Variant,
			Status:      store.SessionStatusRunning,
			CreatedAt:   now,
		}
		if err := q.InsertSession(ctx, session); err != nil {
			return err
		}

		if agent != "" {
			summary := fmt.Sprintf("Started workspace session with executor %s (mode: %s)", executor, mode)
			if _, err := tasks.AppendActivityTx(ctx, q, task.ID, tasks.ActivityParams{AgentName: agent, Action: "started", Summary: &summary}); err != nil {
				return err
			}
			if task.Assignee == nil {
				if _, _, err := m.tasks.UpdateTx(ctx, q, task.ID, tasks.UpdateParams{Assignee: &agent, ChangedBy: agent}); err != nil {
					return err
				}
			}
		}

		return m.events.Enqueue(ctx, q, task.ProjectID, events.WorkspaceStarted, StartedEvent{
			WorkspaceID: ws.ID,
			TaskID:      task.ID,
			SessionID:   session.ID,
			Executor:    executor,
			Mode:        mode,
			BranchName:  ws.BranchName,
		})
	})
	if err != nil {
		return nil, err
	}

	logger := m.logger.With(slog.String("workspace_id", ws.ID), slog.String("task_id", ws.TaskID), slog.String("mode", string(mode)))
	logger.Info("Workspace session started", slog.String("executor", executor), slog.String("branch", ws.BranchName))

	if mode == store.WorkspaceModeBranch {
		if err := m.provision.Provision(ctx, ws.ID); err != nil {
			return nil, err
		}
	} else if err := m.dispatcher.Dispatch(ctx, ws.ID); err != nil {
		logger.Error("Failed to dispatch provisioning", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to dispatch provisioning: %w", err)
	}

	fresh, err := m.store.GetWorkspace(ctx, ws.ID)
	if err != nil {
		return nil, err
	}
	return &StartResult{Workspace: fresh, Session: session, Repos: results}, nil
}

// Details is a workspace with its repo links and sessions.
type Details struct {
	*store.Workspace
	SetupState string                `json:"setup_state"`
	Repos      []store.WorkspaceRepo `json:"repos"`
	Sessions   []store.Session       `json:"sessions"`
}

func (m *Manager) Get(ctx context.Context, id string) (*Details, error) {
	const op = "workspaces.Get"
	ws, err := m.store.GetWorkspace(ctx, id)
	if err != nil {
		return nil, notFound(op, "workspace", err)
	}
	repos, err := m.store.ListWorkspaceRepos(ctx, id)
	if err != nil {
		return nil, err
	}
	sessions, err := m.store.ListSessions(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Details{Workspace: ws, SetupState: ws.SetupState(), Repos: repos, Sessions: sessions}, nil
}

func (m *Manager) ListByTask(ctx context.Context, taskID string) ([]store.Workspace, error) {
	const op = "workspaces.ListByTask"
	if _, err := m.store.GetTask(ctx, taskID); err != nil {
		return nil, notFound(op, "task", err)
	}
	return m.store.ListWorkspacesByTask(ctx, taskID)
}

// CompleteSession ends a running session and counts as workspace activity.
func (m *Manager) CompleteSession(ctx context.Context, sessionID string, status store.SessionStatus) (*store.Session, error) {
	const op = "workspaces.CompleteSession"
	if status != store.SessionStatusCompleted && status != store.SessionStatusFailed {
		return nil, errs.Ef(errs.KindInvalidInput, op, "invalid session status %q", status)
	}
	var session *store.Session
	err := m.store.InTx(ctx, func(q *store.Queries) error {
		current, err := q.GetSession(ctx, sessionID)
		if err != nil {
			return notFound(op, "session", err)
		}
		if current.Status != store.SessionStatusRunning {
			return errs.Ef(errs.KindFailedPrecondition, op, "session is already %s", current.Status)
		}
		if err := q.CompleteSession(ctx, sessionID, status); err != nil {
			return err
		}
		if err := q.TouchWorkspace(ctx, current.WorkspaceID); err != nil {
			return err
		}
		session, err = q.GetSession(ctx, sessionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Heartbeat records that a running session is still working. It only bumps
// the workspace's last activity; the sweep reads nothing else.
func (m *Manager) Heartbeat(ctx context.Context, sessionID string) (*store.Session, error) {
	const op = "workspaces.Heartbeat"
	var session *store.Session
	err := m.store.InTx(ctx, func(q *store.Queries) error {
		current, err := q.GetSession(ctx, sessionID)
		if err != nil {
			return notFound(op, "session", err)
		}
		if current.Status != store.SessionStatusRunning {
			return errs.Ef(errs.KindFailedPrecondition, op, "session is already %s", current.Status)
		}
		ws, err := q.GetWorkspace(ctx, current.WorkspaceID)
		if err != nil {
			return err
		}
		if ws.CleanedAt != nil {
			return errs.E(errs.KindFailedPrecondition, op, "workspace has been cleaned up")
		}
		session = current
		return q.TouchWorkspace(ctx, current.WorkspaceID)
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

func notFound(op string, what string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return errs.Ef(errs.KindNotFound, op, "%s not found", what)
	}
	return err
}
