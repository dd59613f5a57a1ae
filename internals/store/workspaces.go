package store

import (
	"context"
	"database/sql"
	"time"
)

const workspaceColumns = `id, task_id, branch_name, mode, container_ref, worktree_root, setup_completed_at, setup_failed_at, setup_error, last_activity_at, cleaned_at, created_at, updated_at`

func scanWorkspace(scan func(dest ...any) error) (*Workspace, error) {
	var w Workspace
	var mode, lastActivity, createdAt, updatedAt string
	var containerRef, worktreeRoot, completedAt, failedAt, setupError, cleanedAt sql.NullString
	if err := scan(&w.ID, &w.TaskID, &w.BranchName, &mode, &containerRef, &worktreeRoot, &completedAt, &failedAt, &setupError, &lastActivity, &cleanedAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	w.Mode = WorkspaceMode(mode)
	w.ContainerRef = stringPtr(containerRef)
	w.WorktreeRoot = stringPtr(worktreeRoot)
	w.SetupCompletedAt = timePtr(completedAt)
	w.SetupFailedAt = timePtr(failedAt)
	w.SetupError = stringPtr(setupError)
	w.LastActivityAt = parseTime(lastActivity)
	w.CleanedAt = timePtr(cleanedAt)
	w.CreatedAt = parseTime(createdAt)
	w.UpdatedAt = parseTime(updatedAt)
	return &w, nil
}

func (q *Queries) InsertWorkspace(ctx context.Context, w *Workspace) error {
	_, err := q.db.ExecContext(ctx, `
INSERT INTO workspaces (`+workspaceColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, w.ID, w.TaskID, w.BranchName, string(w.Mode), nullString(w.ContainerRef), nullString(w.WorktreeRoot),
		nullTime(w.SetupCompletedAt), nullTime(w.SetupFailedAt), nullString(w.SetupError),
		formatTime(w.LastActivityAt), nullTime(w.CleanedAt), formatTime(w.CreatedAt), formatTime(w.UpdatedAt))
	return err
}

func (q *Queries) GetWorkspace(ctx context.Context, id string) (*Workspace, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+workspaceColumns+` FROM workspaces WHERE id = ?`, id)
	w, err := scanWorkspace(row.Scan)
	if err != nil {
		return nil, notFound(err)
	}
	return w, nil
}

func (q *Queries) ListWorkspacesByTask(ctx context.Context, taskID string) ([]Workspace, error) {
	return q.queryWorkspaces(ctx, `SELECT `+workspaceColumns+` FROM workspaces WHERE task_id = ? ORDER BY created_at ASC, id ASC`, taskID)
}

func (q *Queries) CountWorkspacesByTask(ctx context.Context, taskID string) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT count(*) FROM workspaces WHERE task_id = ?`, taskID).Scan(&n)
	return n, err
}

func (q *Queries) MarkSetupCompleted(ctx context.Context, id string) error {
	now := formatTime(q.Now())
	res, err := q.db.ExecContext(ctx, `
UPDATE workspaces
SET setup_completed_at = ?, setup_failed_at = NULL, setup_error = NULL, updated_at = ?
WHERE id = ?
`, now, now, id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (q *Queries) MarkSetupFailed(ctx context.Context, id string, reason string) error {
	now := formatTime(q.Now())
	res, err := q.db.ExecContext(ctx, `
UPDATE workspaces
SET setup_failed_at = ?, setup_error = ?, updated_at = ?
WHERE id = ? AND setup_completed_at IS NULL
`, now, reason, now, id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (q *Queries) SetContainerRef(ctx context.Context, id string, ref *string) error {
	res, err := q.db.ExecContext(ctx, `
UPDATE workspaces SET container_ref = ?, updated_at = ? WHERE id = ?
`, nullString(ref), formatTime(q.Now()), id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (q *Queries) TouchWorkspace(ctx context.Context, id string) error {
	now := formatTime(q.Now())
	_, err := q.db.ExecContext(ctx, `UPDATE workspaces SET last_activity_at = ?, updated_at = ? WHERE id = ?`, now, now, id)
	return err
}

// TouchTaskWorkspaces bumps last_activity_at on every uncleaned workspace of
// a task.
func (q *Queries) TouchTaskWorkspaces(ctx context.Context, taskID string) error {
	now := formatTime(q.Now())
	_, err := q.db.ExecContext(ctx, `
UPDATE workspaces SET last_activity_at = ?, updated_at = ? WHERE task_id = ? AND cleaned_at IS NULL
`, now, now, taskID)
	return err
}

// ListCleanupCandidates returns worktree-mode workspaces idle since before
// cutoff that still hold provisioned resources. Idleness is last_activity_at
// alone: a session that stopped reporting does not pin its workspace.
func (q *Queries) ListCleanupCandidates(ctx context.Context, cutoff time.Time) ([]Workspace, error) {
	return q.queryWorkspaces(ctx, `
SELECT `+workspaceColumns+`
FROM workspaces w
WHERE w.mode = 'worktree'
  AND w.cleaned_at IS NULL
  AND w.last_activity_at < ?
ORDER BY w.last_activity_at ASC
`, formatTime(cutoff))
}

// MarkCleaned clears the container reference and stamps cleaned_at. The row
// itself is kept for audit.
func (q *Queries) MarkCleaned(ctx context.Context, id string) error {
	now := formatTime(q.Now())
	_, err := q.db.ExecContext(ctx, `
UPDATE workspaces SET container_ref = NULL, cleaned_at = ?, updated_at = ? WHERE id = ?
`, now, now, id)
	return err
}

func (q *Queries) queryWorkspaces(ctx context.Context, query string, args ...any) ([]Workspace, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	workspaces := []Workspace{}
	for rows.Next() {
		w, err := scanWorkspace(rows.Scan)
		if err != nil {
			return nil, err
		}
		workspaces = append(workspaces, *w)
	}
	return workspaces, rows.Err()
}

func (q *Queries) InsertWorkspaceRepo(ctx context.Context, workspaceID string, repoID string, targetBranch string) error {
	_, err := q.db.ExecContext(ctx, `
INSERT INTO workspace_repos (workspace_id, repo_id, target_branch, worktree_path, pushed_at, created_at)
VALUES (?, ?, ?, NULL, NULL, ?)
`, workspaceID, repoID, targetBranch, formatTime(q.Now()))
	return err
}

const workspaceRepoSelect = `
SELECT wr.workspace_id, wr.repo_id, r.name, r.path, r.remote_url, wr.target_branch, wr.worktree_path, wr.pushed_at, wr.created_at
FROM workspace_repos wr
JOIN repos r ON r.id = wr.repo_id
`

func scanWorkspaceRepo(scan func(dest ...any) error) (*WorkspaceRepo, error) {
	var wr WorkspaceRepo
	var remote, worktreePath, pushedAt sql.NullString
	var createdAt string
	if err := scan(&wr.WorkspaceID, &wr.RepoID, &wr.RepoName, &wr.RepoPath, &remote, &wr.TargetBranch, &worktreePath, &pushedAt, &createdAt); err != nil {
		return nil, err
	}
	wr.RemoteURL = remote.String
	wr.WorktreePath = stringPtr(worktreePath)
	wr.PushedAt = timePtr(pushedAt)
	wr.CreatedAt = parseTime(createdAt)
	return &wr, nil
}

func (q *Queries) ListWorkspaceRepos(ctx context.Context, workspaceID string) ([]WorkspaceRepo, error) {
	rows, err := q.db.QueryContext(ctx, workspaceRepoSelect+`WHERE wr.workspace_id = ? ORDER BY wr.created_at ASC, r.name ASC`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	links := []WorkspaceRepo{}
	for rows.Next() {
		wr, err := scanWorkspaceRepo(rows.Scan)
		if err != nil {
			return nil, err
		}
		links = append(links, *wr)
	}
	return links, rows.Err()
}

func (q *Queries) GetWorkspaceRepo(ctx context.Context, workspaceID string, repoID string) (*WorkspaceRepo, error) {
	row := q.db.QueryRowContext(ctx, workspaceRepoSelect+`WHERE wr.workspace_id = ? AND wr.repo_id = ?`, workspaceID, repoID)
	wr, err := scanWorkspaceRepo(row.Scan)
	if err != nil {
		return nil, notFound(err)
	}
	return wr, nil
}

// FindWorkspaceRepoByPath resolves a worktree path back to its link.
// Cleaned workspaces keep their worktree_path for audit but never match.
func (q *Queries) FindWorkspaceRepoByPath(ctx context.Context, worktreePath string) (*WorkspaceRepo, error) {
	row := q.db.QueryRowContext(ctx, workspaceRepoSelect+`
JOIN workspaces w ON w.id = wr.workspace_id
WHERE wr.worktree_path = ? AND w.cleaned_at IS NULL
LIMIT 1`, worktreePath)
	wr, err := scanWorkspaceRepo(row.Scan)
	if err != nil {
		return nil, notFound(err)
	}
	return wr, nil
}

func (q *Queries) SetWorktreePath(ctx context.Context, workspaceID string, repoID string, path *string) error {
	_, err := q.db.ExecContext(ctx, `
UPDATE workspace_repos SET worktree_path = ? WHERE workspace_id = ? AND repo_id = ?
`, nullString(path), workspaceID, repoID)
	return err
}

func (q *Queries) MarkPushed(ctx context.Context, workspaceID string, repoID string) error {
	res, err := q.db.ExecContext(ctx, `
UPDATE workspace_repos SET pushed_at = ? WHERE workspace_id = ? AND repo_id = ?
`, formatTime(q.Now()), workspaceID, repoID)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (q *Queries) InsertSession(ctx context.Context, s *Session) error {
	_, err := q.db.ExecContext(ctx, `
INSERT INTO sessions (id, workspace_id, executor, variant, status, created_at, completed_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, s.ID, s.WorkspaceID, s.Executor, nullString(s.Variant), string(s.Status), formatTime(s.CreatedAt), nullTime(s.CompletedAt))
	return err
}

func (q *Queries) GetSession(ctx context.Context, id string) (*Session, error) {
	row := q.db.QueryRowContext(ctx, `
SELECT id, workspace_id, executor, variant, status, created_at, completed_at FROM sessions WHERE id = ?
`, id)
	s, err := scanSession(row.Scan)
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

func (q *Queries) ListSessions(ctx context.Context, workspaceID string) ([]Session, error) {
	rows, err := q.db.QueryContext(ctx, `
SELECT id, workspace_id, executor, variant, status, created_at, completed_at
FROM sessions
WHERE workspace_id = ?
ORDER BY created_at ASC, id ASC
`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		s, err := scanSession(rows.Scan)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

func (q *Queries) CompleteSession(ctx context.Context, id string, status SessionStatus) error {
	res, err := q.db.ExecContext(ctx, `
UPDATE sessions SET status = ?, completed_at = ? WHERE id = ? AND status = 'running'
`, string(status), formatTime(q.Now()), id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// AbandonSessions fails every session of the workspace that is still
// running.
func (q *Queries) AbandonSessions(ctx context.Context, workspaceID string) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
UPDATE sessions SET status = 'failed', completed_at = ? WHERE workspace_id = ? AND status = 'running'
`, formatTime(q.Now()), workspaceID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanSession(scan func(dest ...any) error) (*Session, error) {
	var s Session
	var variant, completedAt sql.NullString
	var status, createdAt string
	if err := scan(&s.ID, &s.WorkspaceID, &s.Executor, &variant, &status, &createdAt, &completedAt); err != nil {
		return nil, err
	}
	s.Variant = stringPtr(variant)
	s.Status = SessionStatus(status)
	s.CreatedAt = parseTime(createdAt)
	s.CompletedAt = timePtr(completedAt)
	return &s, nil
}
