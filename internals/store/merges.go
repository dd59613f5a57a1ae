package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const mergeColumns = `id, workspace_id, repo_id, merge_type, target_branch, merge_commit, pr_number, pr_url, pr_status, pr_merged_at, created_at, updated_at`

func scanMerge(scan func(dest ...any) error) (*MergeRecord, error) {
	var m MergeRecord
	var kind, createdAt, updatedAt string
	var commit, prURL, prStatus, mergedAt sql.NullString
	var prNumber sql.NullInt64
	if err := scan(&m.ID, &m.WorkspaceID, &m.RepoID, &kind, &m.TargetBranch, &commit, &prNumber, &prURL, &prStatus, &mergedAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	switch MergeKind(kind) {
	case MergeKindDirect:
		m.Merge = &DirectMerge{CommitHash: commit.String}
	case MergeKindPR:
		m.Merge = &PRMerge{
			Number:      prNumber.Int64,
			URL:         prURL.String,
			Status:      ParsePRStatus(prStatus.String),
			MergedAt:    timePtr(mergedAt),
			MergeCommit: stringPtr(commit),
		}
	default:
		return nil, fmt.Errorf("unknown merge type %q", kind)
	}
	m.CreatedAt = parseTime(createdAt)
	m.UpdatedAt = parseTime(updatedAt)
	return &m, nil
}

func (q *Queries) InsertMerge(ctx context.Context, m *MergeRecord) error {
	var (
		commit   sql.NullString
		prNumber sql.NullInt64
		prURL    sql.NullString
		prStatus sql.NullString
		mergedAt sql.NullString
	)
	switch v := m.Merge.(type) {
	case *DirectMerge:
		commit = nullIfEmpty(v.CommitHash)
	case *PRMerge:
		commit = nullString(v.MergeCommit)
		prNumber = sql.NullInt64{Int64: v.Number, Valid: true}
		prURL = sql.NullString{String: v.URL, Valid: true}
		prStatus = sql.NullString{String: string(v.Status), Valid: true}
		mergedAt = nullTime(v.MergedAt)
	default:
		return fmt.Errorf("unsupported merge variant %T", m.Merge)
	}
	_, err := q.db.ExecContext(ctx, `
INSERT INTO merges (`+mergeColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, m.ID, m.WorkspaceID, m.RepoID, string(m.Merge.Kind()), m.TargetBranch, commit, prNumber, prURL, prStatus, mergedAt, formatTime(m.CreatedAt), formatTime(m.UpdatedAt))
	return err
}

func (q *Queries) GetMerge(ctx context.Context, id string) (*MergeRecord, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+mergeColumns+` FROM merges WHERE id = ?`, id)
	m, err := scanMerge(row.Scan)
	if err != nil {
		return nil, notFound(err)
	}
	return m, nil
}

// GetActiveMerge returns the single active record for the pair: a direct
// merge or a PR that is not closed.
func (q *Queries) GetActiveMerge(ctx context.Context, workspaceID string, repoID string) (*MergeRecord, error) {
	row := q.db.QueryRowContext(ctx, `
SELECT `+mergeColumns+`
FROM merges
WHERE workspace_id = ? AND repo_id = ? AND (merge_type = 'direct' OR pr_status <> 'closed')
LIMIT 1
`, workspaceID, repoID)
	m, err := scanMerge(row.Scan)
	if err != nil {
		return nil, notFound(err)
	}
	return m, nil
}

// GetLatestPRMerge returns the newest PR record for the pair, closed or not.
func (q *Queries) GetLatestPRMerge(ctx context.Context, workspaceID string, repoID string) (*MergeRecord, error) {
	row := q.db.QueryRowContext(ctx, `
SELECT `+mergeColumns+`
FROM merges
WHERE workspace_id = ? AND repo_id = ? AND merge_type = 'pr'
ORDER BY created_at DESC, id DESC
LIMIT 1
`, workspaceID, repoID)
	m, err := scanMerge(row.Scan)
	if err != nil {
		return nil, notFound(err)
	}
	return m, nil
}

func (q *Queries) ListMergesByWorkspace(ctx context.Context, workspaceID string) ([]MergeRecord, error) {
	return q.queryMerges(ctx, `SELECT `+mergeColumns+` FROM merges WHERE workspace_id = ? ORDER BY created_at ASC, id ASC`, workspaceID)
}

// ListOpenPRMerges feeds the background poller.
func (q *Queries) ListOpenPRMerges(ctx context.Context) ([]MergeRecord, error) {
	return q.queryMerges(ctx, `SELECT `+mergeColumns+` FROM merges WHERE merge_type = 'pr' AND pr_status IN ('open', 'unknown') ORDER BY updated_at ASC`)
}

type UpdatePRStatusParams struct {
	ID          string
	Status      PRStatus
	MergedAt    *time.Time
	MergeCommit *string
}

func (q *Queries) UpdatePRStatus(ctx context.Context, params UpdatePRStatusParams) error {
	res, err := q.db.ExecContext(ctx, `
UPDATE merges
SET pr_status = ?, pr_merged_at = ?, merge_commit = coalesce(?, merge_commit), updated_at = ?
WHERE id = ? AND merge_type = 'pr'
`, string(params.Status), nullTime(params.MergedAt), nullString(params.MergeCommit), formatTime(q.Now()), params.ID)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (q *Queries) queryMerges(ctx context.Context, query string, args ...any) ([]MergeRecord, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	merges := []MergeRecord{}
	for rows.Next() {
		m, err := scanMerge(rows.Scan)
		if err != nil {
			return nil, err
		}
		merges = append(merges, *m)
	}
	return merges, rows.Err()
}
