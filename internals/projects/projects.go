// Package projects registers projects and the git repositories they own.
package projects

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/Oudwins/taskforge/internals/errs"
	"github.com/Oudwins/taskforge/internals/store"
	"github.com/Oudwins/taskforge/internals/workspace"
)

type Service struct {
	store  *store.Store
	git    workspace.Host
	logger *slog.Logger
}

func New(s *store.Store, git workspace.Host, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: s, git: git, logger: logger}
}

func (s *Service) Create(ctx context.Context, name string) (*store.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errs.E(errs.KindInvalidInput, "projects.Create", "name is required")
	}
	project, err := s.store.CreateProject(ctx, name)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Project created", slog.String("project_id", project.ID), slog.String("name", name))
	return project, nil
}

func (s *Service) List(ctx context.Context) ([]store.Project, error) {
	return s.store.ListProjects(ctx)
}

func (s *Service) Get(ctx context.Context, id string) (*store.Project, error) {
	project, err := s.store.GetProject(ctx, id)
	if err != nil {
		return nil, notFound("projects.Get", "project", err)
	}
	return project, nil
}

type RepoParams struct {
	Name                string
	Path                string
	RemoteURL           string
	DefaultTargetBranch string
}

// RegisterRepo adds the git repository at Path to the project. The path is
// resolved to the repository top level; name defaults to its base name and
// remote_url to origin.
func (s *Service) RegisterRepo(ctx context.Context, projectID string, params RepoParams) (*store.Repo, error) {
	const op = "projects.RegisterRepo"
	path := strings.TrimSpace(params.Path)
	if path == "" {
		return nil, errs.E(errs.KindInvalidInput, op, "path is required")
	}
	if _, err := s.Get(ctx, projectID); err != nil {
		return nil, err
	}

	path = filepath.Clean(path)
	info, err := s.git.Stat(path)
	if err != nil {
		return nil, errs.Ef(errs.KindInvalidInput, op, "path %s not found", path)
	}
	if !info.IsDir() {
		return nil, errs.Ef(errs.KindInvalidInput, op, "path %s is not a directory", path)
	}
	if err := s.git.GitIsInsideWorkTree(ctx, path); err != nil {
		return nil, errs.Ef(errs.KindInvalidInput, op, "path %s is not a git repository", path)
	}
	if top, err := s.git.GitToplevel(ctx, path); err == nil && top != "" {
		path = top
	}

	name := strings.TrimSpace(params.Name)
	if name == "" {
		name = filepath.Base(path)
	}
	remote := strings.TrimSpace(params.RemoteURL)
	if remote == "" {
		if url, err := s.git.GetRemoteURL(ctx, path); err == nil {
			remote = url
		}
	}

	repo, err := s.store.CreateRepo(ctx, store.CreateRepoParams{
		ProjectID:           projectID,
		Name:                name,
		Path:                path,
		RemoteURL:           remote,
		DefaultTargetBranch: strings.TrimSpace(params.DefaultTargetBranch),
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Repo registered", slog.String("repo_id", repo.ID), slog.String("path", path))
	return repo, nil
}

func (s *Service) ListRepos(ctx context.Context, projectID string) ([]store.Repo, error) {
	if _, err := s.Get(ctx, projectID); err != nil {
		return nil, err
	}
	return s.store.ListRepos(ctx, projectID)
}

func (s *Service) GetRepo(ctx context.Context, id string) (*store.Repo, error) {
	repo, err := s.store.GetRepo(ctx, id)
	if err != nil {
		return nil, notFound("projects.GetRepo", "repo", err)
	}
	return repo, nil
}

func notFound(op string, what string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return errs.Ef(errs.KindNotFound, op, "%s not found", what)
	}
	return err
}
