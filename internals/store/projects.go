package store

import (
	"context"
	"database/sql"
)

func (q *Queries) CreateProject(ctx context.Context, name string) (*Project, error) {
	now := q.Now()
	project := &Project{ID: NewID(), Name: name, CreatedAt: now, UpdatedAt: now}
	_, err := q.db.ExecContext(ctx, `
INSERT INTO projects (id, name, created_at, updated_at)
VALUES (?, ?, ?, ?)
`, project.ID, project.Name, formatTime(now), formatTime(now))
	if err != nil {
		return nil, err
	}
	return project, nil
}

func (q *Queries) GetProject(ctx context.Context, id string) (*Project, error) {
	row := q.db.QueryRowContext(ctx, `SELECT id, name, created_at, updated_at FROM projects WHERE id = ?`, id)
	var p Project
	var createdAt, updatedAt string
	if err := row.Scan(&p.ID, &p.Name, &createdAt, &updatedAt); err != nil {
		return nil, notFound(err)
	}
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

func (q *Queries) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT id, name, created_at, updated_at FROM projects ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	projects := []Project{}
	for rows.Next() {
		var p Project
		var createdAt, updatedAt string
		if err := rows.Scan(&p.ID, &p.Name, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt = parseTime(createdAt)
		p.UpdatedAt = parseTime(updatedAt)
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

type CreateRepoParams struct {
	ProjectID           string
	Name                string
	Path                string
	RemoteURL           string
	DefaultTargetBranch string
}

func (q *Queries) CreateRepo(ctx context.Context, params CreateRepoParams) (*Repo, error) {
	now := q.Now()
	repo := &Repo{
		ID:                  NewID(),
		ProjectID:           params.ProjectID,
		Name:                params.Name,
		Path:                params.Path,
		RemoteURL:           params.RemoteURL,
		DefaultTargetBranch: params.DefaultTargetBranch,
		CreatedAt:           now,
	}
	if repo.DefaultTargetBranch == "" {
		repo.DefaultTargetBranch = "main"
	}
	_, err := q.db.ExecContext(ctx, `
INSERT INTO repos (id, project_id, name, path, remote_url, default_target_branch, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, repo.ID, repo.ProjectID, repo.Name, repo.Path, nullIfEmpty(repo.RemoteURL), repo.DefaultTargetBranch, formatTime(now))
	if err != nil {
		return nil, err
	}
	return repo, nil
}

const repoColumns = `id, project_id, name, path, remote_url, default_target_branch, created_at`

func scanRepo(scan func(dest ...any) error) (*Repo, error) {
	var r Repo
	var remote sql.NullString
	var createdAt string
	if err := scan(&r.ID, &r.ProjectID, &r.Name, &r.Path, &remote, &r.DefaultTargetBranch, &createdAt); err != nil {
		return nil, err
	}
	r.RemoteURL = remote.String
	r.CreatedAt = parseTime(createdAt)
	return &r, nil
}

func (q *Queries) GetRepo(ctx context.Context, id string) (*Repo, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+repoColumns+` FROM repos WHERE id = ?`, id)
	repo, err := scanRepo(row.Scan)
	if err != nil {
		return nil, notFound(err)
	}
	return repo, nil
}

func (q *Queries) ListRepos(ctx context.Context, projectID string) ([]Repo, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+repoColumns+` FROM repos WHERE project_id = ? ORDER BY name ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	repos := []Repo{}
	for rows.Next() {
		repo, err := scanRepo(rows.Scan)
		if err != nil {
			return nil, err
		}
		repos = append(repos, *repo)
	}
	return repos, rows.Err()
}
